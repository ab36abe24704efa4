// Package persistence provides database storage implementations.
package persistence

import (
	"time"

	"github.com/codefuse-ai/modelcache/domain/cache"
)

// EntryModel is the scalar-store row for one cached prompt/answer pair.
// The embedding travels alongside the scalar fields so the memory tier can be
// repopulated from a single row fetch.
type EntryModel struct {
	ID         string    `gorm:"column:id;primaryKey"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
	Prompt     string    `gorm:"column:prompt;type:text;not null"`
	Answer     string    `gorm:"column:answer;type:text;not null"`
	AnswerType int       `gorm:"column:answer_type;not null;default:0"`
	HitCount   int64     `gorm:"column:hit_count;not null;default:0"`
	Model      string    `gorm:"column:model;index;not null"`
	Embedding  []byte    `gorm:"column:embedding_data"`
	IsDeleted  bool      `gorm:"column:is_deleted;index;not null;default:false"`
}

// TableName returns the scalar store table name.
func (EntryModel) TableName() string { return "cache_entries" }

// QueryLogModel is one append-only audit row per query request.
type QueryLogModel struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
	ErrorCode int       `gorm:"column:error_code;not null"`
	ErrorDesc string    `gorm:"column:error_desc;type:text"`
	CacheHit  string    `gorm:"column:cache_hit;not null"`
	Model     string    `gorm:"column:model;index;not null"`
	Query     string    `gorm:"column:query;type:text"`
	DeltaTime string    `gorm:"column:delta_time"`
	HitQuery  string    `gorm:"column:hit_query;type:text"`
	Answer    string    `gorm:"column:answer;type:text"`
}

// TableName returns the query log table name.
func (QueryLogModel) TableName() string { return "query_log" }

// entryMapper maps between cache.Entry and EntryModel.
type entryMapper struct{}

func (entryMapper) ToDomain(e EntryModel) cache.Entry {
	// A corrupt embedding column decodes to nil; the entry stays servable
	// because the read path only needs prompt and answer.
	vec, _ := cache.DecodeVector(e.Embedding)
	entry := cache.NewEntry(e.Prompt, e.Answer, e.Model, vec).
		WithID(e.ID).
		WithHitCount(e.HitCount).
		WithDeleted(e.IsDeleted)
	if cache.AnswerType(e.AnswerType) == cache.AnswerObjectHandle {
		entry = entry.WithAnswerHandle(e.Answer)
	}
	return entry
}

func (entryMapper) ToModel(entry cache.Entry) EntryModel {
	return EntryModel{
		ID:         entry.ID(),
		Prompt:     entry.Prompt(),
		Answer:     entry.Answer(),
		AnswerType: int(entry.AnswerType()),
		HitCount:   entry.HitCount(),
		Model:      entry.Model(),
		Embedding:  cache.EncodeVector(entry.Embedding()),
		IsDeleted:  entry.Deleted(),
	}
}

// queryLogMapper maps between cache.QueryLog and QueryLogModel.
type queryLogMapper struct{}

// Values of the cache_hit column.
const (
	cacheHitTrue  = "hit"
	cacheHitFalse = "miss"
)

func (queryLogMapper) ToDomain(m QueryLogModel) cache.QueryLog {
	return cache.NewQueryLog(
		m.ErrorCode,
		m.ErrorDesc,
		m.CacheHit == cacheHitTrue,
		m.Model,
		m.Query,
		m.DeltaTime,
		m.HitQuery,
		m.Answer,
	)
}

func (queryLogMapper) ToModel(q cache.QueryLog) QueryLogModel {
	hit := cacheHitFalse
	if q.CacheHit() {
		hit = cacheHitTrue
	}
	return QueryLogModel{
		ErrorCode: q.ErrorCode(),
		ErrorDesc: q.ErrorDesc(),
		CacheHit:  hit,
		Model:     q.Model(),
		Query:     q.Query(),
		DeltaTime: q.DeltaTime(),
		HitQuery:  q.HitQuery(),
		Answer:    q.Answer(),
	}
}
