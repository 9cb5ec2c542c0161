// Package config defines the value the filter manager reads its defaults
// from. Loading it from a file, flags, or the environment is left to the
// daemon entrypoint; this package only owns the value and its defaults, in
// the functional-options style the teacher's go-wal and go-cask use for
// their own options.go.
package config

import "time"

// Config is the manager-wide default. Per-filter custom configs override
// pieces of it on a filter-by-filter basis.
type Config struct {
	// DataDir is the root directory discovery scans at startup and every
	// filter's on-disk backing lives under.
	DataDir string

	// BitsPerKey is the default bloom filter density, in bits of bitset
	// per key added. Lower values give smaller filters at the cost of a
	// higher false-positive rate.
	BitsPerKey int

	// DefaultCapacity sizes a newly created filter's bitset when no
	// per-filter override is given.
	DefaultCapacity int

	// InMemory, when true, means newly created filters never persist
	// their bitset to disk: Flush writes it into an in-process
	// internal/objstore store instead, and Close drops the in-memory bitset,
	// which reloads from that store on next access.
	InMemory bool

	// Proxied, when true, means newly created filters proxy membership
	// through internal/cask instead of a probabilistic bitset.
	Proxied bool

	// VacuumInterval is the cadence at which the vacuum thread wakes up
	// to compute the minimum checkpointed version and reclaim retired
	// snapshots. spec.md §4.4 calls 1-second granularity sufficient.
	VacuumInterval time.Duration

	// VacuumWarnThreshold is the number of outstanding unreclaimed
	// versions that triggers a warning log (spec.md's WARN_THRESHOLD).
	VacuumWarnThreshold uint64

	// VacuumDisposalsPerSec caps the pace at which the vacuum thread
	// disposes of retired entries within a single pass, via
	// internal/ratelimit, so a large backlog cannot hold the
	// vacuum-exclusion lock indefinitely.
	VacuumDisposalsPerSec int64

	// SyncPolicy controls how aggressively internal/cask-backed proxied
	// filters flush writes to stable storage.
	SyncPolicy SyncPolicy

	// BlockCacheSizeBytes sizes the shared decoded-bitset cache every
	// filter reopen goes through. Zero disables the cache entirely (every
	// reopen re-decodes from storage).
	BlockCacheSizeBytes int64
}

// SyncPolicy mirrors the policy knob the teacher's go-cask options.go
// exposes, trimmed to the two strategies this repository actually
// implements (no interval-based background syncer).
type SyncPolicy int8

const (
	// NoneSync lets the operating system manage syncing writes.
	NoneSync SyncPolicy = iota
	// AlwaysSync forces a sync on every write.
	AlwaysSync
)

const (
	defaultBitsPerKey            = 10
	defaultCapacity              = 10000
	defaultVacuumInterval        = time.Second
	defaultVacuumWarnThreshold   = 32
	defaultVacuumDisposalsPerSec = 256
	defaultBlockCacheSizeBytes   = 64 * 1024 * 1024
)

// Option mutates a Config under construction.
type Option func(*Config)

// New builds a Config, applying defaults and then the given options.
func New(opts ...Option) Config {
	cfg := Config{
		DataDir:               "./data",
		BitsPerKey:            defaultBitsPerKey,
		DefaultCapacity:       defaultCapacity,
		VacuumInterval:        defaultVacuumInterval,
		VacuumWarnThreshold:   defaultVacuumWarnThreshold,
		VacuumDisposalsPerSec: defaultVacuumDisposalsPerSec,
		SyncPolicy:            NoneSync,
		BlockCacheSizeBytes:   defaultBlockCacheSizeBytes,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

func WithDataDir(dir string) Option {
	return func(c *Config) { c.DataDir = dir }
}

func WithBitsPerKey(bits int) Option {
	return func(c *Config) { c.BitsPerKey = bits }
}

func WithDefaultCapacity(n int) Option {
	return func(c *Config) { c.DefaultCapacity = n }
}

func WithInMemory(inMemory bool) Option {
	return func(c *Config) { c.InMemory = inMemory }
}

func WithProxied(proxied bool) Option {
	return func(c *Config) { c.Proxied = proxied }
}

func WithVacuumInterval(d time.Duration) Option {
	return func(c *Config) { c.VacuumInterval = d }
}

func WithVacuumWarnThreshold(n uint64) Option {
	return func(c *Config) { c.VacuumWarnThreshold = n }
}

func WithVacuumDisposalsPerSec(n int64) Option {
	return func(c *Config) { c.VacuumDisposalsPerSec = n }
}

func WithSyncPolicy(p SyncPolicy) Option {
	return func(c *Config) { c.SyncPolicy = p }
}

func WithBlockCacheSizeBytes(n int64) Option {
	return func(c *Config) { c.BlockCacheSizeBytes = n }
}
