package go_context_aware_lock

import (
	"github.com/datnguyenzzz/bloomd/internal/ctxlock/local_lock"
)

// NewLocalLock returns a context-aware mutex resolved entirely in-process.
// It is used for the manager-wide serialization locks where the holder
// needs to observe ctx cancellation while waiting to acquire.
func NewLocalLock() ICtxLock {
	return local_lock.NewLock()
}
