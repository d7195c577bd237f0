package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorePutGet(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "reports/1.json.sz", []byte("payload")))

	data, err := store.Get(ctx, "reports/1.json.sz")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestLocalStorePutOverwrites(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "obj", []byte("one")))
	require.NoError(t, store.Put(ctx, "obj", []byte("two")))

	data, err := store.Get(ctx, "obj")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), data)
}

func TestLocalStoreGetMissing(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalStoreExists(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	exists, err := store.Exists(ctx, "obj")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Put(ctx, "obj", []byte("x")))

	exists, err = store.Exists(ctx, "obj")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLocalStoreDelete(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "obj", []byte("x")))
	require.NoError(t, store.Delete(ctx, "obj"))
	require.NoError(t, store.Delete(ctx, "obj"), "deleting a missing object is not an error")

	_, err = store.Get(ctx, "obj")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalStoreList(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "reports/1.json.sz", []byte("a")))
	require.NoError(t, store.Put(ctx, "reports/2.json.sz", []byte("b")))
	require.NoError(t, store.Put(ctx, "other/3.json.sz", []byte("c")))

	listed, err := store.List(ctx, "reports")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"reports/1.json.sz", "reports/2.json.sz"}, listed)

	empty, err := store.List(ctx, "nothing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
