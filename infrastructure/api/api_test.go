package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefuse-ai/modelcache/application/service"
	"github.com/codefuse-ai/modelcache/domain/cache"
	"github.com/codefuse-ai/modelcache/infrastructure/persistence"
	"github.com/codefuse-ai/modelcache/infrastructure/vector"
	"github.com/codefuse-ai/modelcache/internal/config"
	"github.com/codefuse-ai/modelcache/internal/testdb"
)

const testDimension = 8

// stubEmbedder gives each distinct text its own basis vector, so identical
// texts are cosine-identical and distinct texts orthogonal.
type stubEmbedder struct {
	mu      sync.Mutex
	next    int
	vectors map[string][]float32
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vectors == nil {
		s.vectors = make(map[string][]float32)
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, ok := s.vectors[text]
		if !ok {
			v = make([]float32, testDimension)
			v[s.next%testDimension] = 1
			s.next++
			s.vectors[text] = v
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) Dimension() int { return testDimension }
func (s *stubEmbedder) Close() error   { return nil }

type testServer struct {
	url     string
	scalar  *persistence.ScalarStore
	service *service.CacheService
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	db := testdb.New(t)
	scalar := persistence.NewScalarStore(db, nil)
	vectors := vector.NewMemoryStore(cache.MetricCosine, testDimension)

	manager, err := service.NewDataManager(scalar, vectors, config.NewEvictionConfigWithOptions(config.WithCapacity(4)))
	require.NoError(t, err)

	simCfg := config.NewSimilarityConfigWithOptions(
		config.WithMetric("COSINE"),
		config.WithThreshold(0.9),
		config.WithThresholdLong(0.9),
		config.WithTopK(5),
	)
	svc, err := service.NewCacheService(manager, &stubEmbedder{}, simCfg, "last_content_with_role", nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	server := NewServer("127.0.0.1:0", NewHandler(svc, nil), nil)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	return testServer{url: ts.URL, scalar: scalar, service: svc}
}

// post sends a raw body to /modelcache and decodes the envelope.
func (s testServer) post(t *testing.T, body string) map[string]any {
	t.Helper()
	resp, err := http.Post(s.url+"/modelcache", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope
}

func TestWelcome(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.url + "/welcome")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello, modelcache!", string(body))
}

func TestModelCache_RegisterInsertQuery(t *testing.T) {
	server := newTestServer(t)

	envelope := server.post(t, `{"type":"register","scope":{"model":"m1"}}`)
	assert.Equal(t, float64(0), envelope["errorCode"])
	assert.Equal(t, "create_success", envelope["response"])

	envelope = server.post(t, `{"type":"register","scope":{"model":"m1"}}`)
	assert.Equal(t, "already_exists", envelope["response"])

	envelope = server.post(t, `{"type":"insert","scope":{"model":"m1"},
		"chat_info":[{"query":[{"role":"user","content":"hello"}],"answer":"hi"}]}`)
	assert.Equal(t, float64(0), envelope["errorCode"])
	assert.Equal(t, "success", envelope["writeStatus"])

	envelope = server.post(t, `{"type":"query","scope":{"model":"m1"},
		"query":[{"role":"user","content":"hello"}]}`)
	assert.Equal(t, float64(0), envelope["errorCode"])
	assert.Equal(t, true, envelope["cacheHit"])
	assert.Equal(t, "hi", envelope["answer"])
	assert.Equal(t, "user: hello", envelope["hit_query"])
	assert.NotEmpty(t, envelope["delta_time"])
}

func TestModelCache_QueryMiss(t *testing.T) {
	server := newTestServer(t)

	server.post(t, `{"type":"insert","scope":{"model":"m1"},
		"chat_info":[{"query":"hello","answer":"hi"}]}`)

	envelope := server.post(t, `{"type":"query","scope":{"model":"m1"},"query":"unrelated bananas"}`)
	assert.Equal(t, float64(0), envelope["errorCode"])
	assert.Equal(t, false, envelope["cacheHit"])
	assert.Equal(t, "", envelope["answer"])
	assert.Equal(t, "", envelope["hit_query"])
}

func TestModelCache_MalformedBody(t *testing.T) {
	server := newTestServer(t)

	envelope := server.post(t, `{"type":`)
	assert.Equal(t, float64(service.CodeRequestInvalid), envelope["errorCode"])
}

func TestModelCache_UnknownType(t *testing.T) {
	server := newTestServer(t)

	envelope := server.post(t, `{"type":"upsert","scope":{"model":"m1"}}`)
	assert.Equal(t, float64(service.CodeUnknownType), envelope["errorCode"])
}

func TestModelCache_QueryWrongShape(t *testing.T) {
	server := newTestServer(t)

	envelope := server.post(t, `{"type":"query","scope":{"model":"m1"},"query":42}`)
	assert.Equal(t, float64(service.CodeRequestInvalid), envelope["errorCode"])
}

func TestModelCache_MissingModel(t *testing.T) {
	server := newTestServer(t)

	envelope := server.post(t, `{"type":"query","query":"hello"}`)
	assert.Equal(t, float64(service.CodeMissingField), envelope["errorCode"])
}

func TestModelCache_ModelNameNormalised(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t)

	envelope := server.post(t, `{"type":"insert","scope":{"model":"gpt-3.5"},
		"chat_info":[{"query":"hello","answer":"hi"}]}`)
	require.Equal(t, float64(0), envelope["errorCode"])

	count, err := server.scalar.CountByModel(ctx, "gpt_3_5")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestModelCache_RemoveByID(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t)

	server.post(t, `{"type":"insert","scope":{"model":"m1"},
		"chat_info":[{"query":"hello","answer":"hi"}]}`)

	entries, err := server.scalar.ListByModel(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	body, err := json.Marshal(map[string]any{
		"type":        "remove",
		"scope":       map[string]string{"model": "m1"},
		"remove_type": "delete_by_id",
		"id_list":     []string{entries[0].ID()},
	})
	require.NoError(t, err)

	envelope := server.post(t, string(body))
	assert.Equal(t, float64(0), envelope["errorCode"])
	assert.Equal(t, "success", envelope["writeStatus"])

	response, ok := envelope["response"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "success", response["vector_status"])
	assert.Equal(t, float64(1), response["vector_deleted"])
	assert.Equal(t, "success", response["scalar_status"])
	assert.Equal(t, float64(1), response["scalar_deleted"])

	envelope = server.post(t, `{"type":"query","scope":{"model":"m1"},"query":"hello"}`)
	assert.Equal(t, false, envelope["cacheHit"])
}

func TestModelCache_RemoveTruncate(t *testing.T) {
	server := newTestServer(t)

	server.post(t, `{"type":"insert","scope":{"model":"m1"},
		"chat_info":[{"query":"a","answer":"1"},{"query":"b","answer":"2"}]}`)

	envelope := server.post(t, `{"type":"remove","scope":{"model":"m1"},"remove_type":"truncate_by_model"}`)
	assert.Equal(t, float64(0), envelope["errorCode"])

	response, ok := envelope["response"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), response["vector_deleted"])
	assert.Equal(t, float64(2), response["scalar_deleted"])
}

func TestModelCache_RemoveUnknownType(t *testing.T) {
	server := newTestServer(t)

	envelope := server.post(t, `{"type":"remove","scope":{"model":"m1"},"remove_type":"drop_everything"}`)
	assert.Equal(t, float64(service.CodeRemoveInvalid), envelope["errorCode"])
	assert.Equal(t, "exception", envelope["writeStatus"])
}

func TestWebSocket_Envelope(t *testing.T) {
	server := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(server.url, "http") + "/modelcache/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	frame := `{"requestId":"r1","payload":{"type":"register","scope":{"model":"m1"}}}`
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(frame)))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var response struct {
		RequestID string         `json:"requestId"`
		Payload   map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &response))
	assert.Equal(t, "r1", response.RequestID)
	assert.Equal(t, float64(0), response.Payload["errorCode"])
	assert.Equal(t, "create_success", response.Payload["response"])
}

func TestWebSocket_MalformedFrame(t *testing.T) {
	server := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(server.url, "http") + "/modelcache/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`not json`)))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var response struct {
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &response))
	assert.Equal(t, float64(service.CodeRequestInvalid), response.Payload["errorCode"])
}

func TestParsePrompt(t *testing.T) {
	prompt, err := parsePrompt(json.RawMessage(`"hello"`))
	require.NoError(t, err)
	assert.True(t, prompt.IsText())
	assert.Equal(t, "hello", prompt.Text())

	prompt, err = parsePrompt(json.RawMessage(`[{"role":"user","content":"hi"}]`))
	require.NoError(t, err)
	assert.False(t, prompt.IsText())
	require.Len(t, prompt.Messages(), 1)
	assert.Equal(t, "user", prompt.Messages()[0].Role())

	prompt, err = parsePrompt(nil)
	require.NoError(t, err)
	assert.True(t, prompt.Empty())

	_, err = parsePrompt(json.RawMessage(`42`))
	assert.Error(t, err)
}

func TestNormalizeModel(t *testing.T) {
	assert.Equal(t, "gpt_3_5_turbo", NormalizeModel("gpt-3.5-turbo"))
	assert.Equal(t, "plain", NormalizeModel("plain"))
}
