package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/codefuse-ai/modelcache/application/service"
)

// Handler serves the cache envelope endpoints.
type Handler struct {
	service *service.CacheService
	logger  *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(svc *service.CacheService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: svc, logger: logger}
}

// Welcome handles GET /welcome.
func (h *Handler) Welcome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("hello, modelcache!"))
}

// ModelCache handles POST /modelcache. The transport status is always 200;
// failures travel in the envelope's errorCode.
func (h *Handler) ModelCache(w http.ResponseWriter, r *http.Request) {
	var req requestEnvelope
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, errorResponse{
			ErrorCode: service.CodeRequestInvalid,
			ErrorDesc: fmt.Sprintf("malformed request body: %v", err),
		})
		return
	}
	h.writeJSON(w, h.dispatch(r.Context(), req))
}

// dispatch maps one request envelope onto the engine and renders the
// response envelope. Model names are normalised at this boundary.
func (h *Handler) dispatch(ctx context.Context, req requestEnvelope) any {
	model := NormalizeModel(req.Scope.Model)

	switch req.Type {
	case "query":
		prompt, err := parsePrompt(req.Query)
		if err != nil {
			return errorResponse{ErrorCode: service.CodeRequestInvalid, ErrorDesc: err.Error()}
		}
		result := h.service.Query(ctx, model, prompt)
		return queryResponse{
			ErrorCode: result.Code,
			ErrorDesc: result.Desc,
			CacheHit:  result.Hit,
			DeltaTime: result.DeltaTime,
			HitQuery:  renderHitQuery(result),
			Answer:    result.Answer,
		}

	case "insert":
		pairs := make([]service.InsertPair, len(req.ChatInfo))
		for i, pair := range req.ChatInfo {
			prompt, err := parsePrompt(pair.Query)
			if err != nil {
				return errorResponse{ErrorCode: service.CodeRequestInvalid, ErrorDesc: err.Error()}
			}
			pairs[i] = service.InsertPair{Prompt: prompt, Answer: pair.Answer}
		}
		result := h.service.Insert(ctx, model, pairs)
		return writeResponse{
			ErrorCode:   result.Code,
			ErrorDesc:   result.Desc,
			WriteStatus: result.WriteStatus,
		}

	case "remove":
		result := h.service.Remove(ctx, model, req.RemoveType, req.IDList)
		return writeResponse{
			ErrorCode:   result.Code,
			ErrorDesc:   result.Desc,
			WriteStatus: result.WriteStatus,
			Response:    renderRemoveResponse(result.Response),
		}

	case "register":
		result := h.service.Register(ctx, model)
		return writeResponse{
			ErrorCode:   result.Code,
			ErrorDesc:   result.Desc,
			WriteStatus: result.WriteStatus,
			Response:    result.Response,
		}

	default:
		return errorResponse{
			ErrorCode: service.CodeUnknownType,
			ErrorDesc: fmt.Sprintf("unknown request type %q", req.Type),
		}
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response encode failed", "error", err)
	}
}
