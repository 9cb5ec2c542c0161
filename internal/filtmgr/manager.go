// Package filtmgr is the concurrent registry that owns a collection of
// named bloom filters: it mediates every operation against them and
// coordinates their lifecycle (create, query, mutate, flush, unmap,
// clear, drop) against concurrent readers, writers, and a background
// reclaimer.
package filtmgr

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	go_block_cache "github.com/datnguyenzzz/bloomd/internal/blockcache"
	"github.com/datnguyenzzz/bloomd/internal/bloomfilter"
	"github.com/datnguyenzzz/bloomd/internal/config"
	go_context_aware_lock "github.com/datnguyenzzz/bloomd/internal/ctxlock"
	"github.com/datnguyenzzz/bloomd/internal/metrics"
	"github.com/datnguyenzzz/bloomd/internal/nsmap"
	go_fs "github.com/datnguyenzzz/bloomd/internal/objstore"
	go_adaptive_rate_limiter "github.com/datnguyenzzz/bloomd/internal/ratelimit"
)

// Manager is the FilterManager of spec.md §4.1: the public API, owner of
// the snapshot chain, serializer of mutators.
type Manager struct {
	cfg config.Config

	writeLock  go_context_aware_lock.ICtxLock
	vacuumLock go_context_aware_lock.ICtxLock

	head atomic.Pointer[NameSpaceSnapshot]

	registry *ClientRegistry
	cache    go_block_cache.IMap
	metrics  *metrics.Collector
	limiter  *go_adaptive_rate_limiter.AdaptiveRateLimiter

	shuttingDown atomic.Bool
	vacuumStop   chan struct{}
	vacuumDone   chan struct{}
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithCache installs a shared block cache used to cache decoded bitsets
// across all filters the manager opens.
func WithCache(cache go_block_cache.IMap) Option {
	return func(m *Manager) { m.cache = cache }
}

// WithMetrics installs a Prometheus collector. Passing nil (or omitting
// this option) disables metrics entirely.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// WithRateLimiter overrides the default vacuum disposal rate limiter.
func WithRateLimiter(l *go_adaptive_rate_limiter.AdaptiveRateLimiter) Option {
	return func(m *Manager) { m.limiter = l }
}

// New constructs a Manager, running Discovery to materialize the genesis
// snapshot, and starts the background vacuum task.
func New(cfg config.Config, opts ...Option) (*Manager, error) {
	m := &Manager{
		cfg:        cfg,
		writeLock:  go_context_aware_lock.NewLocalLock(),
		vacuumLock: go_context_aware_lock.NewLocalLock(),
		registry:   newClientRegistry(),
		vacuumStop: make(chan struct{}),
		vacuumDone: make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	if m.limiter == nil {
		m.limiter = go_adaptive_rate_limiter.NewAdaptiveRateLimiter(
			go_adaptive_rate_limiter.WithLimit(1, cfg.VacuumDisposalsPerSec),
		)
	}

	genesis, err := discover(cfg, m.cache)
	if err != nil {
		return nil, fmt.Errorf("filtmgr: discovery: %w", err)
	}
	m.head.Store(genesis)

	go m.runVacuum()

	return m, nil
}

// Checkpoint registers clientID (if new) and records the head version it
// has now observed, returning that version.
func (m *Manager) Checkpoint(clientID string) uint64 {
	v := m.head.Load().version
	m.registry.checkpoint(clientID, v)
	m.metrics.Checkpoint()
	return v
}

// Leave removes clientID's registry record, if present.
func (m *Manager) Leave(clientID string) {
	m.registry.leave(clientID)
	m.metrics.Leave()
}

// CheckKeys reports, for each key, whether it is (possibly) a member of
// the named filter, under the entry's rwlock in shared mode.
func (m *Manager) CheckKeys(name string, keys [][]byte) ([]bool, error) {
	return m.probeKeys(name, keys, false)
}

// SetKeys adds each key to the named filter, under the entry's rwlock in
// exclusive mode, reporting for each whether it was newly added.
func (m *Manager) SetKeys(name string, keys [][]byte) ([]bool, error) {
	return m.probeKeys(name, keys, true)
}

func (m *Manager) probeKeys(name string, keys [][]byte, write bool) ([]bool, error) {
	entry, ok := m.head.Load().lookupActive(nsmap.Key(name))
	if !ok {
		m.metrics.Mutation(probeKind(write), "not_found")
		return nil, ErrNotFound
	}

	if write {
		entry.rwlock.Lock()
		defer entry.rwlock.Unlock()
	} else {
		entry.rwlock.RLock()
		defer entry.rwlock.RUnlock()
	}

	results := make([]bool, len(keys))
	for i, k := range keys {
		var present bool
		var err error
		if write {
			present, err = entry.payload.Add(k)
		} else {
			present, err = entry.payload.Contains(k)
		}
		if err != nil {
			m.metrics.Mutation(probeKind(write), "internal")
			return results, fmt.Errorf("filtmgr: probe key %d of %q: %w", i, name, ErrInternal)
		}
		results[i] = present
	}

	entry.isHot.Store(true)
	m.metrics.Mutation(probeKind(write), "ok")
	return results, nil
}

func probeKind(write bool) string {
	if write {
		return "set_keys"
	}
	return "check_keys"
}

// Flush invokes the named filter's payload flush with no additional
// locking: flush is payload-internal concurrent-safe.
func (m *Manager) Flush(name string) error {
	entry, ok := m.head.Load().lookupActive(nsmap.Key(name))
	if !ok {
		return ErrNotFound
	}
	if err := entry.payload.Flush(); err != nil {
		return fmt.Errorf("filtmgr: flush %q: %w", name, ErrInternal)
	}
	return nil
}

// Create installs a new active FilterEntry for name. customConfig, if
// non-nil, overrides the manager default for this filter only.
func (m *Manager) Create(name string, customConfig *bloomfilter.Config) error {
	return m.CreateCtx(context.Background(), name, customConfig)
}

func (m *Manager) CreateCtx(ctx context.Context, name string, customConfig *bloomfilter.Config) error {
	if m.shuttingDown.Load() {
		return ErrShuttingDown
	}
	if err := m.writeLock.AcquireCtx(ctx); err != nil {
		return err
	}
	// The lock is released with a context of its own rather than ctx: ctx
	// can expire or be cancelled at the exact instant ReleaseCtx's select
	// also finds the lock channel ready, which would otherwise leak the
	// lock and deadlock every later mutator (the lock is manager-wide).
	defer m.writeLock.ReleaseCtx(context.Background())

	head := m.head.Load()
	if _, err := head.m.Get(nsmap.Key(name)); err == nil {
		m.metrics.Mutation("create", "already_exists")
		return ErrAlreadyExists
	}

	if err := m.vacuumLock.AcquireCtx(ctx); err != nil {
		return err
	}
	pending := false
	for s := head; s != nil; s = s.predecessor {
		if s.deleted != nil && s.deleted.payload.Name() == name {
			pending = true
			break
		}
	}
	if err := m.vacuumLock.ReleaseCtx(context.Background()); err != nil {
		zap.L().Error("filtmgr: vacuum lock release failed", zap.Error(err))
	}
	if pending {
		m.metrics.Mutation("create", "pending_delete")
		return ErrPendingDelete
	}

	cfg := bloomfilter.FromManagerDefault(m.cfg)
	if customConfig != nil {
		cfg = *customConfig
	}

	dir := go_fs.FilterDir(m.cfg.DataDir, name)
	payload, err := bloomfilter.Open(dir, name, cfg, m.cache)
	if err != nil {
		m.metrics.Mutation("create", "internal")
		return fmt.Errorf("filtmgr: create %q: %w", name, ErrInternal)
	}

	next := head.copyForMutation()
	entry := newFilterEntry(payload, customConfig, true)
	next.m.Insert(nsmap.Key(name), entry)
	m.publish(next)

	m.metrics.Mutation("create", "ok")
	return nil
}

// Drop retires name: the entry stops being visible to lookups against the
// current head immediately, and is handed off to the current head's
// deleted slot for the vacuum to reclaim once unobservable.
func (m *Manager) Drop(name string) error {
	return m.DropCtx(context.Background(), name)
}

func (m *Manager) DropCtx(ctx context.Context, name string) error {
	if m.shuttingDown.Load() {
		return ErrShuttingDown
	}
	if err := m.writeLock.AcquireCtx(ctx); err != nil {
		return err
	}
	defer m.writeLock.ReleaseCtx(context.Background())

	head := m.head.Load()
	entry, ok := head.lookupActive(nsmap.Key(name))
	if !ok {
		m.metrics.Mutation("drop", "not_found")
		return ErrNotFound
	}

	entry.isActive.Store(false)
	entry.shouldDelete.Store(true)

	next := head.copyForMutation()
	next.m.Delete(nsmap.Key(name))

	if err := m.vacuumLock.AcquireCtx(ctx); err != nil {
		return err
	}
	head.deleted = entry
	// head.deleted is now set on the live head: it must be superseded by
	// next below no matter what, or the snapshot chain is left with a
	// retired entry that is neither reachable through head.m nor handed
	// to the vacuum. A release failure is logged, not treated as a reason
	// to stop short of publish.
	if err := m.vacuumLock.ReleaseCtx(context.Background()); err != nil {
		zap.L().Error("filtmgr: vacuum lock release failed", zap.Error(err))
	}

	m.publish(next)
	m.metrics.Mutation("drop", "ok")
	return nil
}

// Unmap releases the named filter's in-memory payload, keeping its
// on-disk backing, unless the payload reports it is in-memory-only.
func (m *Manager) Unmap(name string) error {
	head := m.head.Load()
	entry, ok := head.lookupActive(nsmap.Key(name))
	if !ok {
		return ErrNotFound
	}
	if entry.payload.InMemoryOnly() {
		return nil
	}

	entry.rwlock.Lock()
	defer entry.rwlock.Unlock()
	if err := entry.payload.Close(); err != nil {
		return fmt.Errorf("filtmgr: unmap %q: %w", name, ErrInternal)
	}
	return nil
}

// Clear behaves like Drop except the vacuum will close rather than
// delete the payload; refused unless the payload is currently proxied.
func (m *Manager) Clear(name string) error {
	return m.ClearCtx(context.Background(), name)
}

func (m *Manager) ClearCtx(ctx context.Context, name string) error {
	if m.shuttingDown.Load() {
		return ErrShuttingDown
	}
	if err := m.writeLock.AcquireCtx(ctx); err != nil {
		return err
	}
	defer m.writeLock.ReleaseCtx(context.Background())

	head := m.head.Load()
	entry, ok := head.lookupActive(nsmap.Key(name))
	if !ok {
		m.metrics.Mutation("clear", "not_found")
		return ErrNotFound
	}
	if !entry.payload.IsProxied() {
		m.metrics.Mutation("clear", "not_proxied")
		return ErrNotProxied
	}

	entry.isActive.Store(false)
	entry.shouldDelete.Store(false)

	next := head.copyForMutation()
	next.m.Delete(nsmap.Key(name))

	if err := m.vacuumLock.AcquireCtx(ctx); err != nil {
		return err
	}
	head.deleted = entry
	// See DropCtx: once head.deleted is set, next must be published
	// regardless of whether the release below reports an error.
	if err := m.vacuumLock.ReleaseCtx(context.Background()); err != nil {
		zap.L().Error("filtmgr: vacuum lock release failed", zap.Error(err))
	}

	m.publish(next)
	m.metrics.Mutation("clear", "ok")
	return nil
}

// List returns the names of active entries in the current head,
// restricted to prefix when non-empty.
func (m *Manager) List(prefix string) []string {
	head := m.head.Load()
	var names []string
	visit := func(k nsmap.Key, e *FilterEntry) bool {
		if e.isActive.Load() {
			names = append(names, string(k))
		}
		return false
	}
	if prefix == "" {
		head.m.Walk(visit)
	} else {
		head.m.WalkPrefix(nsmap.Key(prefix), visit)
	}
	return names
}

// ListCold reports non-proxied entries that were not hot, clearing
// hotness for every hot entry examined along the way.
func (m *Manager) ListCold() []string {
	head := m.head.Load()
	var names []string
	head.m.Walk(func(k nsmap.Key, e *FilterEntry) bool {
		if e.isHot.Load() {
			e.isHot.Store(false)
			return false
		}
		if e.payload.IsProxied() {
			return false
		}
		names = append(names, string(k))
		return false
	})
	return names
}

// WithEntry invokes cb with the named filter's payload for out-of-band
// reads; no rwlock is taken, so cb must not mutate filter state.
func (m *Manager) WithEntry(name string, cb func(name string, payload Payload)) error {
	entry, ok := m.head.Load().lookupActive(nsmap.Key(name))
	if !ok {
		return ErrNotFound
	}
	cb(name, entry.payload)
	return nil
}

func (m *Manager) publish(next *NameSpaceSnapshot) {
	m.head.Store(next)
	m.metrics.SetHeadVersion(next.version)
	m.metrics.SetLiveEntries(next.m.Len())
}
