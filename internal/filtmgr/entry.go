package filtmgr

import (
	"sync"
	"sync/atomic"
)

// FilterEntry is a single named filter plus its per-filter lock and
// lifecycle flags. is_active/is_hot/should_delete are plain atomics per
// spec.md §3 — is_hot races freely by design, is_active and should_delete
// are read outside the rwlock at lookup time and written under the
// manager's write-serialization lock, except that the shutdown drain
// clears should_delete on live entries without taking it.
type FilterEntry struct {
	payload      Payload
	customConfig interface{}

	rwlock sync.RWMutex

	isActive     atomic.Bool
	isHot        atomic.Bool
	shouldDelete atomic.Bool
}

func newFilterEntry(payload Payload, customConfig interface{}, hot bool) *FilterEntry {
	e := &FilterEntry{payload: payload, customConfig: customConfig}
	e.isActive.Store(true)
	e.isHot.Store(hot)
	return e
}

// dispose reclaims the entry's payload according to should_delete: delete
// erases persistent backing, close keeps it. Called only by the vacuum (or
// teardown), never while the entry is reachable from a live snapshot.
func (e *FilterEntry) dispose() error {
	if e.shouldDelete.Load() {
		return e.payload.Delete()
	}
	return e.payload.Close()
}
