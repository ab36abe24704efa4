package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefuse-ai/modelcache/domain/cache"
	"github.com/codefuse-ai/modelcache/internal/database"
)

// newTestDB creates an in-memory SQLite database for testing.
// Cannot use testdb package here due to import cycle (testdb imports persistence).
func newTestDB(t *testing.T) database.Database {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewDatabase(ctx, "sqlite:///:memory:")
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestStore(t *testing.T) *ScalarStore {
	t.Helper()
	return NewScalarStore(newTestDB(t), nil)
}

func testEntry(prompt, answer, model string) cache.Entry {
	return cache.NewEntry(prompt, answer, model, []float32{0.1, 0.2, 0.3})
}

func TestScalarStore_BatchInsert(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ids, err := store.BatchInsert(ctx, []cache.Entry{
		testEntry("q1", "a1", "gpt_4"),
		testEntry("q2", "a2", "gpt_4"),
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])

	entry, err := store.GetByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "q1", entry.Prompt())
	assert.Equal(t, "a1", entry.Answer())
	assert.Equal(t, "gpt_4", entry.Model())
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, entry.Embedding())
	assert.Equal(t, int64(0), entry.HitCount())
}

func TestScalarStore_BatchInsert_Empty(t *testing.T) {
	store := newTestStore(t)

	ids, err := store.BatchInsert(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestScalarStore_DuplicatesAreNotDeduplicated(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first, err := store.BatchInsert(ctx, []cache.Entry{testEntry("same", "a", "m")})
	require.NoError(t, err)
	second, err := store.BatchInsert(ctx, []cache.Entry{testEntry("same", "a", "m")})
	require.NoError(t, err)

	assert.NotEqual(t, first[0], second[0])

	count, err := store.CountByModel(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestScalarStore_GetByID_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestScalarStore_GetByID_ExcludesSoftDeleted(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ids, err := store.BatchInsert(ctx, []cache.Entry{testEntry("q", "a", "m")})
	require.NoError(t, err)

	affected, err := store.MarkDeleted(ctx, ids...)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	_, err = store.GetByID(ctx, ids[0])
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestScalarStore_GetByIDs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ids, err := store.BatchInsert(ctx, []cache.Entry{
		testEntry("q1", "a1", "m"),
		testEntry("q2", "a2", "m"),
		testEntry("q3", "a3", "m"),
	})
	require.NoError(t, err)

	_, err = store.MarkDeleted(ctx, ids[1])
	require.NoError(t, err)

	entries, err := store.GetByIDs(ctx, append(ids, "unknown"))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	prompts := []string{entries[0].Prompt(), entries[1].Prompt()}
	assert.Contains(t, prompts, "q1")
	assert.Contains(t, prompts, "q3")
}

func TestScalarStore_IncrementHitCount(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ids, err := store.BatchInsert(ctx, []cache.Entry{testEntry("q", "a", "m")})
	require.NoError(t, err)

	require.NoError(t, store.IncrementHitCount(ctx, ids[0]))
	require.NoError(t, store.IncrementHitCount(ctx, ids[0]))

	entry, err := store.GetByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, int64(2), entry.HitCount())
}

func TestScalarStore_MarkDeleted_CountsOnlyLiveRows(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ids, err := store.BatchInsert(ctx, []cache.Entry{
		testEntry("q1", "a1", "m"),
		testEntry("q2", "a2", "m"),
	})
	require.NoError(t, err)

	affected, err := store.MarkDeleted(ctx, ids[0], ids[1], "unknown")
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)

	// Deleting again affects nothing.
	affected, err = store.MarkDeleted(ctx, ids...)
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)
}

func TestScalarStore_DeleteModel(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.BatchInsert(ctx, []cache.Entry{
		testEntry("q1", "a1", "doomed"),
		testEntry("q2", "a2", "doomed"),
		testEntry("q3", "a3", "kept"),
	})
	require.NoError(t, err)

	require.NoError(t, store.InsertQueryLog(ctx, cache.NewQueryLog(0, "success", true, "doomed", "q1", "0.1s", "q1", "a1")))
	require.NoError(t, store.InsertQueryLog(ctx, cache.NewQueryLog(0, "success", false, "kept", "q3", "0.1s", "", "")))

	result, err := store.DeleteModel(ctx, "doomed")
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Entries)
	assert.Equal(t, int64(1), result.Logs)

	count, err := store.CountByModel(ctx, "doomed")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// Other model scopes are untouched.
	count, err = store.CountByModel(ctx, "kept")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	logs, err := store.QueryLogs(ctx, "kept", 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestScalarStore_QueryLogs_NewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.InsertQueryLog(ctx, cache.NewQueryLog(0, "success", false, "m", "first", "0.1s", "", "")))
	require.NoError(t, store.InsertQueryLog(ctx, cache.NewQueryLog(0, "success", true, "m", "second", "0.2s", "first", "a")))

	logs, err := store.QueryLogs(ctx, "m", 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "second", logs[0].Query())
	assert.True(t, logs[0].CacheHit())
}

func TestScalarStore_QueryLogs_CarryTimestamps(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := NewScalarStore(db, nil)

	require.NoError(t, store.InsertQueryLog(ctx, cache.NewQueryLog(0, "success", false, "m", "q", "0.1s", "", "")))

	var row QueryLogModel
	require.NoError(t, db.Session(ctx).First(&row).Error)
	assert.False(t, row.CreatedAt.IsZero())
	assert.False(t, row.UpdatedAt.IsZero())
}

func TestScalarStore_ErrorsWrapStoreSentinel(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := NewScalarStore(db, nil)
	require.NoError(t, db.Close())

	_, err := store.BatchInsert(ctx, []cache.Entry{testEntry("q", "a", "m")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, cache.ErrStore))
}

func TestEntryMapper_ObjectHandleRoundTrip(t *testing.T) {
	entry := cache.NewEntry("q", "", "m", []float32{1, 2}).
		WithID("id-1").
		WithAnswerHandle("objects/abc")

	model := entryMapper{}.ToModel(entry)
	assert.Equal(t, int(cache.AnswerObjectHandle), model.AnswerType)
	assert.Equal(t, "objects/abc", model.Answer)

	back := entryMapper{}.ToDomain(model)
	assert.Equal(t, cache.AnswerObjectHandle, back.AnswerType())
	assert.Equal(t, "objects/abc", back.Answer())
}
