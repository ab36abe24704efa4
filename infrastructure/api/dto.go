package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codefuse-ai/modelcache/application/service"
	"github.com/codefuse-ai/modelcache/domain/cache"
)

// requestEnvelope is the body of POST /modelcache. Query is raw because it
// may be a plain string or a [{role,content}] conversation.
type requestEnvelope struct {
	Type       string          `json:"type"`
	Scope      scope           `json:"scope"`
	Query      json.RawMessage `json:"query,omitempty"`
	ChatInfo   []chatPair      `json:"chat_info,omitempty"`
	RemoveType string          `json:"remove_type,omitempty"`
	IDList     []string        `json:"id_list,omitempty"`
}

type scope struct {
	Model string `json:"model"`
}

// chatPair is one prompt/answer pair of an insert request.
type chatPair struct {
	Query  json.RawMessage `json:"query"`
	Answer string          `json:"answer"`
}

// messageDTO is one conversation turn on the wire.
type messageDTO struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// queryResponse is the envelope of a query request. All fields are always
// present; hit_query is a string, or a [{role,content}] list in
// multi-splicing mode.
type queryResponse struct {
	ErrorCode int    `json:"errorCode"`
	ErrorDesc string `json:"errorDesc"`
	CacheHit  bool   `json:"cacheHit"`
	DeltaTime string `json:"delta_time"`
	HitQuery  any    `json:"hit_query"`
	Answer    string `json:"answer"`
}

// writeResponse is the envelope of insert, remove and register requests.
type writeResponse struct {
	ErrorCode   int    `json:"errorCode"`
	ErrorDesc   string `json:"errorDesc"`
	WriteStatus string `json:"writeStatus"`
	Response    any    `json:"response,omitempty"`
}

// errorResponse is the envelope of failures where the request stage is
// unknown, i.e. malformed JSON or an unknown type.
type errorResponse struct {
	ErrorCode int    `json:"errorCode"`
	ErrorDesc string `json:"errorDesc"`
}

var modelNormalizer = strings.NewReplacer("-", "_", ".", "_")

// NormalizeModel maps a caller-facing model name onto the storage-safe scope
// name used everywhere below the API.
func NormalizeModel(model string) string {
	return modelNormalizer.Replace(model)
}

// parsePrompt decodes the polymorphic query field. Absent means empty, which
// the engine rejects with its own missing-field code.
func parsePrompt(raw json.RawMessage) (cache.Prompt, error) {
	if len(raw) == 0 {
		return cache.NewTextPrompt(""), nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return cache.NewTextPrompt(text), nil
	}

	var turns []messageDTO
	if err := json.Unmarshal(raw, &turns); err != nil {
		return cache.Prompt{}, fmt.Errorf("query must be a string or a [{role,content}] list")
	}
	messages := make([]cache.Message, len(turns))
	for i, turn := range turns {
		messages[i] = cache.NewMessage(turn.Role, turn.Content)
	}
	return cache.NewConversationPrompt(messages), nil
}

// renderHitQuery picks the wire form of hit_query: the message list in
// multi-splicing mode, the serialised prompt otherwise.
func renderHitQuery(result service.QueryResult) any {
	if len(result.HitMessages) == 0 {
		return result.HitQuery
	}
	turns := make([]messageDTO, len(result.HitMessages))
	for i, m := range result.HitMessages {
		turns[i] = messageDTO{Role: m.Role(), Content: m.Content()}
	}
	return turns
}

// renderRemoveResponse flattens the per-store outcome structs into the JSON
// object of the response field.
func renderRemoveResponse(v any) any {
	switch r := v.(type) {
	case service.DeleteResult:
		return map[string]any{
			"vector_status":  r.VectorStatus,
			"vector_deleted": r.VectorDeleted,
			"scalar_status":  r.ScalarStatus,
			"scalar_deleted": r.ScalarDeleted,
		}
	case service.TruncateResult:
		return map[string]any{
			"vector_status":  r.VectorStatus,
			"vector_deleted": r.VectorDeleted,
			"scalar_status":  r.ScalarStatus,
			"scalar_deleted": r.ScalarDeleted,
			"logs_deleted":   r.LogsDeleted,
		}
	}
	return v
}
