package go_cask

import (
	"context"
	"errors"
)

var errNotFound = errors.New("go_cask: key not found")

type Key []byte

type FoldFn[V any] = func(context.Context, Key, V) error

type IDB[V any] interface {
	// Open a new or existing go-cask datastore
	Open(ctx context.Context) error
	// Close a go-cask data store, closing its data file. DB does not fsync
	// on Close; writes are synced only under the OSync policy or by Sync.
	Close(context.Context) error
	// Get a value by key from a go-cask datastore.
	Get(ctx context.Context, k Key) (V, error)
	// Put a key and value in a go-cask datastore.
	Put(ctx context.Context, k Key, value V) error
	// Delete a key from a go-cask datastore.
	Delete(ctx context.Context, k Key) error
	// Sync any writes to sync to disk.
	Sync(ctx context.Context) error
	// ListKeys all keys in a go-cask datastore.
	ListKeys(ctx context.Context) ([]Key, error)
	// Fold over all keys in a go-cask datastore. DB ignores maxAge.
	Fold(ctx context.Context, fn FoldFn[V], maxAge int) error
	// Merge rewrites a go-cask datastore's data file into a more compact form.
	Merge(ctx context.Context) error
}
