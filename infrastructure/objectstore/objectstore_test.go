package objectstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefuse-ai/modelcache/domain/cache"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)

	handle, err := store.Put("a very large answer")
	require.NoError(t, err)
	assert.True(t, IsHandle(handle))

	content, err := store.Get(handle)
	require.NoError(t, err)
	assert.Equal(t, "a very large answer", content)
}

func TestStore_PutIsContentAddressed(t *testing.T) {
	store := newTestStore(t)

	first, err := store.Put("same content")
	require.NoError(t, err)
	second, err := store.Put("same content")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := store.Put("different content")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestStore_AccessLink(t *testing.T) {
	store := newTestStore(t)

	handle, err := store.Put("content")
	require.NoError(t, err)

	path, err := store.AccessLink(handle)
	require.NoError(t, err)
	assert.FileExists(t, path)

	_, err = store.AccessLink("objects/deadbeef")
	assert.True(t, errors.Is(err, cache.ErrNotFound))
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)

	handle, err := store.Put("content")
	require.NoError(t, err)

	require.NoError(t, store.Delete(handle))
	_, err = store.Get(handle)
	assert.True(t, errors.Is(err, cache.ErrNotFound))

	// Deleting again is not an error.
	require.NoError(t, store.Delete(handle))
}

func TestStore_RejectsMalformedHandles(t *testing.T) {
	store := newTestStore(t)

	for _, handle := range []string{"not-a-handle", "objects/", "objects/../escape"} {
		_, err := store.Get(handle)
		assert.True(t, errors.Is(err, cache.ErrValidation), "handle %q", handle)
	}
}

func TestIsHandle(t *testing.T) {
	assert.True(t, IsHandle("objects/abc"))
	assert.False(t, IsHandle("plain answer"))
}
