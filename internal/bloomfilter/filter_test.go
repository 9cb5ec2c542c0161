package bloomfilter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	go_block_cache "github.com/datnguyenzzz/bloomd/internal/blockcache"
	"github.com/datnguyenzzz/bloomd/internal/config"
)

func testConfig() Config {
	return Config{BitsPerKey: 10, Capacity: 1000}
}

func TestFilter_DiskBacked_AddContainsFlushReopen(t *testing.T) {
	dir := t.TempDir()

	f, err := Open(dir, "orders", testConfig(), nil)
	require.NoError(t, err)

	added, err := f.Add([]byte("k1"))
	require.NoError(t, err)
	require.True(t, added)

	ok, err := f.Contains([]byte("k1"))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.Flush())
	require.NoError(t, f.Close())

	// Contains after Close must transparently reload from disk.
	ok, err = f.Contains([]byte("k1"))
	require.NoError(t, err)
	require.True(t, ok)

	reopened, err := Open(dir, "orders", testConfig(), nil)
	require.NoError(t, err)
	ok, err = reopened.Contains([]byte("k1"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestFilter_DiskBacked_ReopenIsServedFromCacheNotStorage(t *testing.T) {
	dir := t.TempDir()
	cache := go_block_cache.NewMap(
		go_block_cache.WithCacheType(go_block_cache.LRU),
		go_block_cache.WithMaxSize(1<<20),
	)

	f, err := Open(dir, "orders", testConfig(), cache)
	require.NoError(t, err)

	_, err = f.Add([]byte("k1"))
	require.NoError(t, err)
	require.NoError(t, f.Flush())
	require.NoError(t, f.Close())

	// Remove the persisted object directly, bypassing the Filter, so that
	// a real reload from storage would fail: Contains must still succeed
	// by serving the decoded bitset out of the shared block cache.
	require.NoError(t, os.Remove(filepath.Join(dir, "1-0.obj")))

	ok, err := f.Contains([]byte("k1"))
	require.NoError(t, err)
	require.True(t, ok, "Contains after Close must be served from the block cache, not re-read from storage")
}

func TestFilter_InMemory_NeverPersists(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.InMemory = true

	f, err := Open(dir, "ephemeral", cfg, nil)
	require.NoError(t, err)

	_, err = f.Add([]byte("k1"))
	require.NoError(t, err)
	require.NoError(t, f.Flush())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "in-memory filter must not create any on-disk object")
}

func TestFilter_InMemory_SurvivesCloseViaInProcessStorage(t *testing.T) {
	cfg := testConfig()
	cfg.InMemory = true

	f, err := Open(t.TempDir(), "ephemeral", cfg, nil)
	require.NoError(t, err)

	_, err = f.Add([]byte("k1"))
	require.NoError(t, err)
	require.NoError(t, f.Flush())
	require.NoError(t, f.Close())

	ok, err := f.Contains([]byte("k1"))
	require.NoError(t, err)
	require.True(t, ok, "Close on an in-memory filter must reload from its in-process storage, not lose state")
}

func TestFilter_Proxied_ExactMembership(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Proxied = true

	f, err := Open(dir, "exact", cfg, nil)
	require.NoError(t, err)
	require.True(t, f.IsProxied())

	added, err := f.Add([]byte("only-member"))
	require.NoError(t, err)
	require.True(t, added)

	added, err = f.Add([]byte("only-member"))
	require.NoError(t, err)
	require.False(t, added, "re-adding an exact member reports already-present")

	ok, err := f.Contains([]byte("only-member"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.Contains([]byte("never-added"))
	require.NoError(t, err)
	require.False(t, ok, "proxied membership has no false positives")
}

func TestFilter_DeleteRemovesBacking(t *testing.T) {
	dir := t.TempDir()

	f, err := Open(dir, "to-delete", testConfig(), nil)
	require.NoError(t, err)
	_, err = f.Add([]byte("k1"))
	require.NoError(t, err)
	require.NoError(t, f.Flush())

	require.NoError(t, f.Delete())

	_, err = f.Contains([]byte("k1"))
	require.ErrorIs(t, err, errFilterClosed)

	_, err = os.Stat(dir)
	require.True(t, os.IsNotExist(err), "delete must remove the filter's whole directory")
}

func TestFilter_Compact_RewritesProxiedLogAndRejectsBitset(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Proxied = true

	f, err := Open(dir, "exact", cfg, nil)
	require.NoError(t, err)

	_, err = f.Add([]byte("k1"))
	require.NoError(t, err)
	_, err = f.Add([]byte("k1"))
	require.NoError(t, err)

	require.NoError(t, f.Compact(context.Background()))

	ok, err := f.Contains([]byte("k1"))
	require.NoError(t, err)
	require.True(t, ok)

	bitsetFilter, err := Open(t.TempDir(), "probabilistic", testConfig(), nil)
	require.NoError(t, err)
	require.ErrorIs(t, bitsetFilter.Compact(context.Background()), errNotProxied)
}

func TestFromManagerDefault(t *testing.T) {
	mgrCfg := config.New(
		config.WithBitsPerKey(7),
		config.WithDefaultCapacity(42),
		config.WithProxied(true),
	)
	cfg := FromManagerDefault(mgrCfg)
	require.Equal(t, 7, cfg.BitsPerKey)
	require.Equal(t, 42, cfg.Capacity)
	require.True(t, cfg.Proxied)
}

