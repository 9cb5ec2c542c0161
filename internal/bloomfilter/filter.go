package bloomfilter

import (
	"context"
	"os"
	"sync"

	"github.com/twmb/murmur3"

	go_block_cache "github.com/datnguyenzzz/bloomd/internal/blockcache"
	go_bytesbufferpool "github.com/datnguyenzzz/bloomd/internal/bufferpool"
	go_cask "github.com/datnguyenzzz/bloomd/internal/cask"
	"github.com/datnguyenzzz/bloomd/internal/config"
	go_fs "github.com/datnguyenzzz/bloomd/internal/objstore"
)

// bitsetObjectNum is the single object number a non-proxied filter's
// bitset is stored under within its own directory — each filter owns a
// dedicated internal/objstore.Storage, so there is never more than one
// object to distinguish.
const bitsetObjectNum int64 = 0

// Filter is the concrete bloom-filter payload spec.md §6 treats as an
// external collaborator: open/contains/add/flush/close/delete plus the
// is_proxied/in_memory_only/name queries, satisfying
// internal/filtmgr.Payload.
type Filter struct {
	name string
	cfg  Config
	dir  string

	cache    go_block_cache.IMap
	cacheKey uint64

	// mu guards bits/storage/proxyDB/deleted so Flush (invoked by the
	// manager with no further locking per spec.md §4.1) is safe against a
	// concurrent Add/Contains, which the manager otherwise only serializes
	// through the owning FilterEntry's rwlock.
	mu      sync.Mutex
	storage go_fs.Storage
	bits    *bitset
	proxyDB *go_cask.DB[struct{}]
	deleted bool
}

// Open opens (or creates, if no persisted object yet exists) a Filter
// rooted at dir. dir is the filter's own directory, conventionally
// objstore.FilterDir(dataDir, name).
func Open(dir, name string, cfg Config, cache go_block_cache.IMap) (*Filter, error) {
	f := &Filter{
		name:     name,
		cfg:      cfg,
		dir:      dir,
		cache:    cache,
		cacheKey: murmur3.Sum64([]byte(name)),
	}

	if cfg.Proxied {
		db := go_cask.NewDB[struct{}](
			go_cask.WithDataRoot[struct{}](dir),
			go_cask.WithSyncPolicy[struct{}](toCaskSyncPolicy(cfg.SyncPolicy)),
		)
		if err := db.Open(context.Background()); err != nil {
			return nil, err
		}
		f.proxyDB = db
		return f, nil
	}

	if cfg.InMemory {
		f.storage = go_fs.NewInmemStorage()
	} else {
		storage, err := go_fs.NewLocalStorage(dir)
		if err != nil {
			return nil, err
		}
		f.storage = storage
	}

	bits, err := f.loadBitset()
	if go_fs.IsNotFound(err) {
		f.bits = newBitset(cfg.BitsPerKey, cfg.Capacity)
		return f, nil
	}
	if err != nil {
		return nil, err
	}
	f.bits = bits
	return f, nil
}

func toCaskSyncPolicy(p config.SyncPolicy) go_cask.SyncPolicy {
	if p == config.AlwaysSync {
		return go_cask.OSync
	}
	return go_cask.NoneSync
}

// loadBitset reads the persisted bitset object, preferring the shared
// block cache over a fresh disk read.
func (f *Filter) loadBitset() (*bitset, error) {
	if f.cache != nil {
		if lv, ok := f.cache.Get(f.cacheKey, 0); ok {
			defer lv.Release()
			return decode(lv.Load())
		}
	}

	r, _, err := f.storage.Open(go_fs.TypeTable, bitsetObjectNum, 0)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	buf := make([]byte, r.Size())
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, err
	}

	if f.cache != nil {
		f.cache.Set(f.cacheKey, 0, go_block_cache.Value(buf))
	}
	return decode(buf)
}

// Contains reports possible (bitset) or exact (proxied) membership.
func (f *Filter) Contains(key []byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deleted {
		return false, errFilterClosed
	}

	if f.proxyDB != nil {
		_, err := f.proxyDB.Get(context.Background(), go_cask.Key(key))
		if err != nil {
			return false, nil
		}
		return true, nil
	}

	if err := f.ensureLoadedLocked(); err != nil {
		return false, err
	}
	return f.bits.Contains(key), nil
}

// Add inserts key, returning true if it was not already a (possible)
// member.
func (f *Filter) Add(key []byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deleted {
		return false, errFilterClosed
	}

	if f.proxyDB != nil {
		_, err := f.proxyDB.Get(context.Background(), go_cask.Key(key))
		alreadyPresent := err == nil
		if err := f.proxyDB.Put(context.Background(), go_cask.Key(key), struct{}{}); err != nil {
			return false, err
		}
		return !alreadyPresent, nil
	}

	if err := f.ensureLoadedLocked(); err != nil {
		return false, err
	}
	return f.bits.Add(key), nil
}

// ensureLoadedLocked reopens the bitset from storage if it was dropped by
// a prior Close. Caller holds f.mu.
func (f *Filter) ensureLoadedLocked() error {
	if f.bits != nil {
		return nil
	}
	bits, err := f.loadBitset()
	if go_fs.IsNotFound(err) {
		f.bits = newBitset(f.cfg.BitsPerKey, f.cfg.Capacity)
		return nil
	}
	if err != nil {
		return err
	}
	f.bits = bits
	return nil
}

// Flush persists the live bitset through the filter's storage, whether
// that storage is backed by disk or, for an in-memory-only filter, by
// internal/objstore's in-process implementation. A no-op for proxied
// filters (proxied writes are already durable record-by-record) and for
// a filter whose bitset was never loaded.
func (f *Filter) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deleted || f.proxyDB != nil || f.bits == nil {
		return nil
	}

	w, _, err := f.storage.Create(go_fs.TypeTable, bitsetObjectNum)
	if err != nil {
		if !go_fs.IsExists(err) {
			return err
		}
		if err := f.storage.Remove(go_fs.TypeTable, bitsetObjectNum); err != nil {
			return err
		}
		w, _, err = f.storage.Create(go_fs.TypeTable, bitsetObjectNum)
		if err != nil {
			return err
		}
	}

	buf := go_bytesbufferpool.Get(len(f.bits.bits) + trailerSize)
	buf = f.bits.encode(buf)
	defer go_bytesbufferpool.Put(buf)

	if _, err := w.Write(buf); err != nil {
		w.Abort()
		return err
	}
	if err := w.Finish(); err != nil {
		return err
	}

	// Replace the cached bytes with the ones just persisted, so the cache
	// mirrors the stored object and a reload after Close can be served from
	// it. buf returns to the buffer pool, so the cache gets its own copy.
	if f.cache != nil {
		f.cache.Delete(f.cacheKey, 0)
		f.cache.Set(f.cacheKey, 0, append(go_block_cache.Value(nil), buf...))
	}
	return nil
}

// Close releases the in-memory bitset, keeping the persisted object (a
// later Contains/Add transparently reloads it via ensureLoadedLocked).
// Proxied filters have no in-memory bitset to release. The manager never
// calls this for an in-memory-only filter (spec.md's unmap explicitly
// skips those), but it is safe to call anyway: the bitset simply reloads
// from the in-process store on next access.
func (f *Filter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deleted || f.proxyDB != nil {
		return nil
	}
	f.bits = nil
	return nil
}

// Delete erases the filter's persistent backing outright: the whole
// filter directory (bitset object, or cask log for a proxied filter) is
// removed.
func (f *Filter) Delete() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deleted {
		return nil
	}
	f.deleted = true
	f.bits = nil

	if f.cache != nil {
		f.cache.Delete(f.cacheKey, 0)
	}

	var closeErr error
	if f.proxyDB != nil {
		closeErr = f.proxyDB.Close(context.Background())
	} else if f.storage != nil {
		closeErr = f.storage.Close()
	}
	if closeErr != nil {
		return closeErr
	}

	if f.cfg.InMemory {
		return nil
	}
	return os.RemoveAll(f.dir)
}

// Compact rewrites a proxied filter's backing log, dropping tombstones and
// superseded versions. Returns errNotProxied for a bitset-backed filter,
// which has no log to rewrite.
func (f *Filter) Compact(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deleted {
		return errFilterClosed
	}
	if f.proxyDB == nil {
		return errNotProxied
	}
	return f.proxyDB.Merge(ctx)
}

func (f *Filter) IsProxied() bool    { return f.cfg.Proxied }
func (f *Filter) InMemoryOnly() bool { return f.cfg.InMemory }
func (f *Filter) Name() string       { return f.name }
