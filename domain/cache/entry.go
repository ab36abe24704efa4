package cache

// AnswerType tags how an entry's answer is stored.
type AnswerType int

// Answer storage forms.
const (
	// AnswerString means the answer column holds the answer text itself.
	AnswerString AnswerType = 0
	// AnswerObjectHandle means the answer column holds an object-store handle.
	AnswerObjectHandle AnswerType = 1
)

// Entry is one cached prompt/answer pair. The id is assigned by the scalar
// store at insert time and echoed to the vector index and memory tier.
type Entry struct {
	id         string
	prompt     string
	answer     string
	answerType AnswerType
	model      string
	embedding  []float32
	hitCount   int64
	deleted    bool
}

// NewEntry creates an Entry that has not been persisted yet (empty id).
func NewEntry(prompt, answer, model string, embedding []float32) Entry {
	vec := make([]float32, len(embedding))
	copy(vec, embedding)
	return Entry{
		prompt:    prompt,
		answer:    answer,
		model:     model,
		embedding: vec,
	}
}

// ID returns the store-assigned identifier, or empty if unsaved.
func (e Entry) ID() string { return e.id }

// Prompt returns the exact pre-processed text that was embedded.
func (e Entry) Prompt() string { return e.prompt }

// Answer returns the stored answer, or an object-store handle when
// AnswerType is AnswerObjectHandle.
func (e Entry) Answer() string { return e.answer }

// AnswerType returns the answer storage form.
func (e Entry) AnswerType() AnswerType { return e.answerType }

// Model returns the normalised model scope.
func (e Entry) Model() string { return e.model }

// Embedding returns the entry's embedding vector (copy).
func (e Entry) Embedding() []float32 {
	vec := make([]float32, len(e.embedding))
	copy(vec, e.embedding)
	return vec
}

// HitCount returns the best-effort hit counter.
func (e Entry) HitCount() int64 { return e.hitCount }

// Deleted reports the soft-delete flag.
func (e Entry) Deleted() bool { return e.deleted }

// WithID returns a copy of the entry carrying the store-assigned id.
func (e Entry) WithID(id string) Entry {
	e.id = id
	return e
}

// WithAnswerHandle returns a copy whose answer is an object-store handle.
func (e Entry) WithAnswerHandle(handle string) Entry {
	e.answer = handle
	e.answerType = AnswerObjectHandle
	return e
}

// WithEmbedding returns a copy with the given embedding vector.
func (e Entry) WithEmbedding(embedding []float32) Entry {
	vec := make([]float32, len(embedding))
	copy(vec, embedding)
	e.embedding = vec
	return e
}

// WithHitCount returns a copy with the given hit counter value.
func (e Entry) WithHitCount(n int64) Entry {
	e.hitCount = n
	return e
}

// WithDeleted returns a copy with the soft-delete flag set.
func (e Entry) WithDeleted(deleted bool) Entry {
	e.deleted = deleted
	return e
}
