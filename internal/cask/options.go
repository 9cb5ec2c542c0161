package go_cask

import "time"

type SyncPolicy int8

const (
	// NoneSync which will let the operating system manage syncing writes
	NoneSync SyncPolicy = iota
	// OSync which will uses the O_SYNC flag to force syncs on every write
	OSync
)

type EngineOpts[V any] func(engine *DB[V])

// generalOptions and syncOptions are the only two groups of the teacher's
// four options structs kept here: expiryOptions and compactionOptions
// governed background key expiry and scheduled window-merge compaction,
// neither of which a proxied bloomd filter needs — it never expires a
// member and its "merge" runs only when DB.Merge is called explicitly, not
// on a clock. See DESIGN.md for the full justification.
type generalOptions struct {
	// dataRoot The directory under which go-cask will store its data.
	dataRoot string

	// maxFileSize is the maximum permitted size for a single data file. DB
	// stores it but does not enforce it: all records go to one data file,
	// which is never rotated.
	maxFileSize uint64

	// openTimeout is the maximum time go-cask should block on startup while
	// creating or opening the data directory. DB stores it but Open does not
	// apply it.
	openTimeout time.Duration
}

var defaultGeneralOptions = generalOptions{
	dataRoot:    "./data/go-cask",
	maxFileSize: 1 * 1024 * 1024 * 1024, // 1GB
	openTimeout: 5 * time.Second,
}

type syncOptions struct {
	// strategy Changes the durability of writes by specifying when to synchronize data to disk.
	strategy SyncPolicy
}

var defaultSyncOptions = syncOptions{
	strategy: NoneSync,
}

type options struct {
	generalOptions
	syncOptions
}

func WithDataRoot[V any](dir string) EngineOpts[V] {
	return func(db *DB[V]) { db.opts.dataRoot = dir }
}

func WithMaxFileSize[V any](n uint64) EngineOpts[V] {
	return func(db *DB[V]) { db.opts.maxFileSize = n }
}

func WithSyncPolicy[V any](p SyncPolicy) EngineOpts[V] {
	return func(db *DB[V]) { db.opts.strategy = p }
}
