package go_cask

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDB_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	db := NewDB[string](WithDataRoot[string](t.TempDir()))
	require.NoError(t, db.Open(ctx))
	defer db.Close(ctx)

	require.NoError(t, db.Put(ctx, Key("k1"), "hello"))

	v, err := db.Get(ctx, Key("k1"))
	require.NoError(t, err)
	require.Equal(t, "hello", v)

	require.NoError(t, db.Delete(ctx, Key("k1")))
	_, err = db.Get(ctx, Key("k1"))
	require.ErrorIs(t, err, errNotFound)
}

func TestDB_RebuildKeydirAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db := NewDB[int](WithDataRoot[int](dir))
	require.NoError(t, db.Open(ctx))
	require.NoError(t, db.Put(ctx, Key("a"), 1))
	require.NoError(t, db.Put(ctx, Key("b"), 2))
	require.NoError(t, db.Delete(ctx, Key("a")))
	require.NoError(t, db.Close(ctx))

	reopened := NewDB[int](WithDataRoot[int](dir))
	require.NoError(t, reopened.Open(ctx))
	defer reopened.Close(ctx)

	_, err := reopened.Get(ctx, Key("a"))
	require.ErrorIs(t, err, errNotFound, "tombstone for a must survive reopen")

	v, err := reopened.Get(ctx, Key("b"))
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestDB_PutOverwritesValue(t *testing.T) {
	ctx := context.Background()
	db := NewDB[string](WithDataRoot[string](t.TempDir()))
	require.NoError(t, db.Open(ctx))
	defer db.Close(ctx)

	require.NoError(t, db.Put(ctx, Key("k"), "v1"))
	require.NoError(t, db.Put(ctx, Key("k"), "v2"))

	v, err := db.Get(ctx, Key("k"))
	require.NoError(t, err)
	require.Equal(t, "v2", v)
}

func TestDB_ListKeysAndFold(t *testing.T) {
	ctx := context.Background()
	db := NewDB[int](WithDataRoot[int](t.TempDir()))
	require.NoError(t, db.Open(ctx))
	defer db.Close(ctx)

	want := map[string]int{"a": 1, "b": 2, "c": 3}
	for k, v := range want {
		require.NoError(t, db.Put(ctx, Key(k), v))
	}

	keys, err := db.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, len(want))

	got := make(map[string]int)
	err = db.Fold(ctx, func(_ context.Context, k Key, v int) error {
		got[string(k)] = v
		return nil
	}, 0)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestDB_MergeDropsTombstonesAndSupersededValues(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	db := NewDB[string](WithDataRoot[string](dir))
	require.NoError(t, db.Open(ctx))
	defer db.Close(ctx)

	require.NoError(t, db.Put(ctx, Key("keep"), "v1"))
	require.NoError(t, db.Put(ctx, Key("keep"), "v2"))
	require.NoError(t, db.Put(ctx, Key("gone"), "x"))
	require.NoError(t, db.Delete(ctx, Key("gone")))

	require.NoError(t, db.Merge(ctx))

	v, err := db.Get(ctx, Key("keep"))
	require.NoError(t, err)
	require.Equal(t, "v2", v)

	_, err = db.Get(ctx, Key("gone"))
	require.ErrorIs(t, err, errNotFound)
}

func TestDB_ClosedRejectsOperations(t *testing.T) {
	ctx := context.Background()
	db := NewDB[string](WithDataRoot[string](t.TempDir()))
	require.NoError(t, db.Open(ctx))
	require.NoError(t, db.Close(ctx))

	_, err := db.Get(ctx, Key("x"))
	require.ErrorIs(t, err, errClosed)
	require.ErrorIs(t, db.Put(ctx, Key("x"), "y"), errClosed)
}
