package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/codefuse-ai/modelcache/domain/cache"
	"github.com/codefuse-ai/modelcache/domain/process"
	"github.com/codefuse-ai/modelcache/domain/similarity"
	"github.com/codefuse-ai/modelcache/infrastructure/embedding"
	"github.com/codefuse-ai/modelcache/infrastructure/vector"
	"github.com/codefuse-ai/modelcache/internal/config"
)

// Envelope error codes, carved by request stage.
const (
	CodeSuccess           = 0
	CodeRequestInvalid    = 101
	CodeUnknownType       = 102
	CodeMissingField      = 103
	CodeModelBlacklisted  = 105
	CodeQueryEmbedFailed  = 201
	CodeQuerySearchFailed = 202
	CodeInsertInvalid     = 301
	CodeInsertEmbedFailed = 302
	CodeInsertSaveFailed  = 303
	CodeInsertBlacklisted = 305
	CodeRemoveInvalid     = 401
	CodeRemoveFailed      = 402
	CodeRegisterFailed    = 502
)

// Write status strings of the response envelope.
const (
	WriteSuccess   = "success"
	WriteException = "exception"
)

// Remove sub-modes.
const (
	RemoveByID       = "delete_by_id"
	RemoveByTruncate = "truncate_by_model"
)

// backgroundTimeout bounds fire-and-forget store writes.
const backgroundTimeout = 5 * time.Second

// CacheService runs the request state machines for query, insert, remove and
// register on top of the DataManager.
type CacheService struct {
	data     *DataManager
	embedder embedding.Embedder

	metric     cache.MetricType
	evaluator  similarity.SearchDistance
	thresholds similarity.Thresholds
	rawShort   float64
	rawLong    float64
	topK       int

	pre     process.PreProcessor
	preMode process.Mode

	blacklist map[string]struct{}
	logger    *slog.Logger
	tasks     sync.WaitGroup
}

// NewCacheService creates a CacheService. The similarity config fixes the
// metric and thresholds; the pre-processor mode comes from the embedding
// profile so queries and inserts serialise identically.
func NewCacheService(data *DataManager, embedder embedding.Embedder, simCfg config.SimilarityConfig, preMode string, blacklist []string, logger *slog.Logger) (*CacheService, error) {
	if data == nil || embedder == nil {
		return nil, fmt.Errorf("%w: data manager and embedder must be configured", cache.ErrNotInit)
	}
	metric, err := cache.ParseMetricType(simCfg.Metric())
	if err != nil {
		return nil, err
	}
	mode, err := process.ParseMode(preMode)
	if err != nil {
		return nil, err
	}
	if simCfg.Threshold() < 0 || simCfg.Threshold() > 1 || simCfg.ThresholdLong() < 0 || simCfg.ThresholdLong() > 1 {
		return nil, fmt.Errorf("%w: similarity thresholds must be within [0,1]", cache.ErrCapacity)
	}
	if logger == nil {
		logger = slog.Default()
	}

	blocked := make(map[string]struct{}, len(blacklist))
	for _, model := range blacklist {
		blocked[model] = struct{}{}
	}

	evaluator := similarity.NewSearchDistance()
	return &CacheService{
		data:       data,
		embedder:   embedder,
		metric:     metric,
		evaluator:  evaluator,
		thresholds: similarity.NewThresholds(evaluator, simCfg.Threshold(), simCfg.ThresholdLong(), simCfg.CacheFactor()),
		rawShort:   simCfg.Threshold(),
		rawLong:    simCfg.ThresholdLong(),
		topK:       simCfg.TopK(),
		pre:        process.For(mode),
		preMode:    mode,
		blacklist:  blocked,
		logger:     logger,
	}, nil
}

// QueryResult is the typed outcome of a query request.
type QueryResult struct {
	Code        int
	Desc        string
	Hit         bool
	DeltaTime   string
	HitQuery    string
	HitMessages []cache.Message
	Answer      string
}

// hydrated pairs a candidate's rank with its scalar entry during evaluation.
type hydrated struct {
	rank  float64
	entry cache.Entry
}

// Query runs the read path: pre-process, embed, vector search, threshold
// pre-check, per-candidate hydrate and rank, post-process. Hit-count bumps
// and the query-log write are scheduled fire-and-forget.
func (s *CacheService) Query(ctx context.Context, model string, prompt cache.Prompt) QueryResult {
	started := time.Now()
	serialized := serializePrompt(prompt)

	result := s.runQuery(ctx, model, prompt)
	result.DeltaTime = deltaTime(started)

	s.scheduleQueryLog(result, model, serialized)
	return result
}

func (s *CacheService) runQuery(ctx context.Context, model string, prompt cache.Prompt) QueryResult {
	if model == "" {
		return QueryResult{Code: CodeMissingField, Desc: "model is required"}
	}
	if prompt.Empty() {
		return QueryResult{Code: CodeMissingField, Desc: "query is required"}
	}
	if s.blocked(model) {
		return QueryResult{Code: CodeModelBlacklisted, Desc: "model is blacklisted"}
	}

	text, err := s.pre(prompt)
	if err != nil {
		return QueryResult{Code: CodeMissingField, Desc: err.Error()}
	}

	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		s.logger.Error("query embed failed", "model", model, "error", err)
		return QueryResult{Code: CodeQueryEmbedFailed, Desc: err.Error()}
	}

	candidates, err := s.data.Search(ctx, vectors[0], s.topK, model)
	if err != nil {
		s.logger.Error("query search failed", "model", model, "error", err)
		return QueryResult{Code: CodeQuerySearchFailed, Desc: err.Error()}
	}
	if len(candidates) == 0 {
		return QueryResult{Code: CodeSuccess, Desc: "success"}
	}

	// First-candidate pre-check uses only the vector-returned score; a
	// best candidate below threshold means no candidate can pass.
	cutoff := s.cutoff(text)
	if s.rank(candidates[0], candidates[0]) < cutoff {
		return QueryResult{Code: CodeSuccess, Desc: "success"}
	}

	kept := make([]hydrated, 0, len(candidates))
	for _, candidate := range candidates {
		entry, ok, err := s.data.GetScalarData(ctx, candidate.ID(), model)
		if err != nil {
			s.logger.Warn("candidate hydration failed", "model", model, "id", candidate.ID(), "error", err)
			continue
		}
		if !ok {
			continue
		}

		rank := s.rank(candidate, candidates[0])
		if rank < cutoff {
			continue
		}
		kept = append(kept, hydrated{rank: rank, entry: entry})
	}
	if len(kept) == 0 {
		return QueryResult{Code: CodeSuccess, Desc: "success"}
	}

	// Rank descending; stable so equal ranks keep the vector order.
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].rank > kept[j].rank })

	answers := make([]string, len(kept))
	for i, h := range kept {
		answer, err := s.data.ResolveAnswer(h.entry)
		if err != nil {
			s.logger.Warn("answer resolution failed", "model", model, "id", h.entry.ID(), "error", err)
		}
		answers[i] = answer
	}

	best := kept[0].entry
	result := QueryResult{
		Code:     CodeSuccess,
		Desc:     "success",
		Hit:      true,
		HitQuery: best.Prompt(),
		Answer:   process.First(answers),
	}
	if s.preMode == process.ModeMultiSplicing {
		result.HitMessages = process.MultiAnalysis(best.Prompt())
	}

	s.scheduleHitCount(best.ID())
	return result
}

// rank maps a candidate's raw index score onto the "higher is better" scale.
// Cosine passes the first candidate's similarity through unchanged; L2 runs
// the distance evaluator per candidate.
func (s *CacheService) rank(candidate, first similarity.Candidate) float64 {
	if s.metric == cache.MetricCosine {
		return first.Score()
	}
	return s.evaluator.Evaluation(candidate)
}

// cutoff picks the threshold for the serialised embed input: cosine compares
// raw similarity, L2 compares evaluator ranks; both switch on the long-prompt
// boundary.
func (s *CacheService) cutoff(text string) float64 {
	if s.metric == cache.MetricCosine {
		if utf8.RuneCountInString(text) <= similarity.LongPromptBoundary {
			return s.rawShort
		}
		return s.rawLong
	}
	return s.thresholds.For(text)
}

// InsertPair is one prompt/answer pair of an insert request.
type InsertPair struct {
	Prompt cache.Prompt
	Answer string
}

// InsertResult is the typed outcome of an insert request.
type InsertResult struct {
	Code        int
	Desc        string
	WriteStatus string
	IDs         []string
}

// Insert runs the write path: pre-process all pairs, embed them in one
// batch, then import scalar → memory → vector.
func (s *CacheService) Insert(ctx context.Context, model string, pairs []InsertPair) InsertResult {
	if model == "" {
		return InsertResult{Code: CodeMissingField, Desc: "model is required", WriteStatus: WriteException}
	}
	if len(pairs) == 0 {
		return InsertResult{Code: CodeInsertInvalid, Desc: "chat_info is required", WriteStatus: WriteException}
	}
	if s.blocked(model) {
		return InsertResult{Code: CodeInsertBlacklisted, Desc: "model is blacklisted", WriteStatus: WriteException}
	}

	prompts := make([]string, len(pairs))
	answers := make([]string, len(pairs))
	for i, pair := range pairs {
		text, err := s.pre(pair.Prompt)
		if err != nil {
			return InsertResult{Code: CodeInsertInvalid, Desc: err.Error(), WriteStatus: WriteException}
		}
		prompts[i] = text
		answers[i] = pair.Answer
	}

	embeddings, err := s.embedder.Embed(ctx, prompts)
	if err != nil {
		s.logger.Error("insert embed failed", "model", model, "pairs", len(pairs), "error", err)
		return InsertResult{Code: CodeInsertEmbedFailed, Desc: err.Error(), WriteStatus: WriteException}
	}

	ids, err := s.data.ImportData(ctx, prompts, answers, embeddings, model)
	if err != nil {
		s.logger.Error("insert save failed", "model", model, "pairs", len(pairs), "error", err)
		return InsertResult{Code: CodeInsertSaveFailed, Desc: err.Error(), WriteStatus: WriteException}
	}

	return InsertResult{Code: CodeSuccess, Desc: "success", WriteStatus: WriteSuccess, IDs: ids}
}

// RemoveResult is the typed outcome of a remove request. Response carries
// the per-store status of the delete or truncate.
type RemoveResult struct {
	Code        int
	Desc        string
	WriteStatus string
	Response    any
}

// Remove dispatches the two removal sub-modes: soft-delete by id list, or
// hard truncation of a whole model scope.
func (s *CacheService) Remove(ctx context.Context, model, removeType string, ids []string) RemoveResult {
	if model == "" {
		return RemoveResult{Code: CodeMissingField, Desc: "model is required", WriteStatus: WriteException}
	}

	switch removeType {
	case RemoveByID:
		if len(ids) == 0 {
			return RemoveResult{Code: CodeRemoveInvalid, Desc: "id_list is required", WriteStatus: WriteException}
		}
		result, err := s.data.Delete(ctx, ids, model)
		if err != nil {
			return RemoveResult{Code: CodeRemoveFailed, Desc: err.Error(), WriteStatus: WriteException, Response: result}
		}
		return RemoveResult{Code: CodeSuccess, Desc: "success", WriteStatus: WriteSuccess, Response: result}

	case RemoveByTruncate:
		result, err := s.data.Truncate(ctx, model)
		if err != nil {
			return RemoveResult{Code: CodeRemoveFailed, Desc: err.Error(), WriteStatus: WriteException, Response: result}
		}
		return RemoveResult{Code: CodeSuccess, Desc: "success", WriteStatus: WriteSuccess, Response: result}

	default:
		return RemoveResult{Code: CodeRemoveInvalid, Desc: fmt.Sprintf("unknown remove_type %q", removeType), WriteStatus: WriteException}
	}
}

// RegisterResult is the typed outcome of a register request.
type RegisterResult struct {
	Code        int
	Desc        string
	WriteStatus string
	Response    string
}

// Register ensures the model's vector collection exists.
func (s *CacheService) Register(ctx context.Context, model string) RegisterResult {
	if model == "" {
		return RegisterResult{Code: CodeMissingField, Desc: "model is required", WriteStatus: WriteException}
	}

	status, err := s.data.CreateIndex(ctx, model)
	if err != nil {
		s.logger.Error("register failed", "model", model, "error", err)
		return RegisterResult{Code: CodeRegisterFailed, Desc: err.Error(), WriteStatus: WriteException}
	}

	response := "create_success"
	if status == vector.StatusAlreadyExists {
		response = "already_exists"
	}
	return RegisterResult{Code: CodeSuccess, Desc: "success", WriteStatus: WriteSuccess, Response: response}
}

// Flush waits for scheduled background writes and flushes the stores.
func (s *CacheService) Flush(ctx context.Context) error {
	s.tasks.Wait()
	return s.data.Flush(ctx)
}

// Close waits for background writes and closes the data manager.
func (s *CacheService) Close() error {
	s.tasks.Wait()
	return s.data.Close()
}

func (s *CacheService) blocked(model string) bool {
	_, ok := s.blacklist[model]
	return ok
}

// scheduleHitCount bumps an entry's hit counter off the response path.
// Failures are logged and swallowed.
func (s *CacheService) scheduleHitCount(id string) {
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		if err := s.data.UpdateHitCount(ctx, id); err != nil {
			s.logger.Warn("hit count update failed", "id", id, "error", err)
		}
	}()
}

// scheduleQueryLog appends the audit row off the response path. Failures are
// logged and swallowed.
func (s *CacheService) scheduleQueryLog(result QueryResult, model, query string) {
	entry := cache.NewQueryLog(
		result.Code, result.Desc, result.Hit,
		model, query, result.DeltaTime, result.HitQuery, result.Answer,
	)
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		if err := s.data.SaveQueryLog(ctx, entry); err != nil {
			s.logger.Warn("query log write failed", "model", model, "error", err)
		}
	}()
}

// serializePrompt renders the prompt as the JSON payload recorded in the
// query log.
func serializePrompt(prompt cache.Prompt) string {
	if prompt.IsText() {
		return prompt.Text()
	}
	type turn struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	messages := prompt.Messages()
	turns := make([]turn, len(messages))
	for i, m := range messages {
		turns[i] = turn{Role: m.Role(), Content: m.Content()}
	}
	data, err := json.Marshal(turns)
	if err != nil {
		return ""
	}
	return string(data)
}

// deltaTime formats a request duration for the envelope, e.g. "0.12s".
func deltaTime(started time.Time) string {
	return fmt.Sprintf("%.2fs", time.Since(started).Seconds())
}
