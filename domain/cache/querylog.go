package cache

// QueryLog is one append-only row of the query audit log. The core read path
// never consults it; writes are fire-and-forget.
type QueryLog struct {
	errorCode int
	errorDesc string
	cacheHit  bool
	model     string
	query     string
	deltaTime string
	hitQuery  string
	answer    string
}

// NewQueryLog creates a QueryLog row.
func NewQueryLog(errorCode int, errorDesc string, cacheHit bool, model, query, deltaTime, hitQuery, answer string) QueryLog {
	return QueryLog{
		errorCode: errorCode,
		errorDesc: errorDesc,
		cacheHit:  cacheHit,
		model:     model,
		query:     query,
		deltaTime: deltaTime,
		hitQuery:  hitQuery,
		answer:    answer,
	}
}

// ErrorCode returns the envelope error code of the logged request.
func (q QueryLog) ErrorCode() int { return q.errorCode }

// ErrorDesc returns the envelope error description.
func (q QueryLog) ErrorDesc() string { return q.errorDesc }

// CacheHit reports whether the logged query hit the cache.
func (q QueryLog) CacheHit() bool { return q.cacheHit }

// Model returns the normalised model scope.
func (q QueryLog) Model() string { return q.model }

// Query returns the serialized query payload.
func (q QueryLog) Query() string { return q.query }

// DeltaTime returns the formatted request duration (e.g. "0.12s").
func (q QueryLog) DeltaTime() string { return q.deltaTime }

// HitQuery returns the stored prompt the query matched, if any.
func (q QueryLog) HitQuery() string { return q.hitQuery }

// Answer returns the served answer, if any.
func (q QueryLog) Answer() string { return q.answer }
