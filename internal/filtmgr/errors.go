package filtmgr

import "errors"

var (
	// ErrNotFound is returned when no active entry exists for the given name
	// on the current head snapshot.
	ErrNotFound = errors.New("filtmgr: no active entry for name")

	// ErrAlreadyExists is returned by Create when an entry — active or not —
	// for the given name is already present on the current head.
	ErrAlreadyExists = errors.New("filtmgr: entry already exists")

	// ErrPendingDelete is returned by Create when a retired snapshot still
	// carries a deletion for the name; the vacuum has not yet reclaimed it.
	ErrPendingDelete = errors.New("filtmgr: pending delete for name")

	// ErrNotProxied is returned by Clear when the payload is not proxied.
	ErrNotProxied = errors.New("filtmgr: payload is not proxied")

	// ErrInternal wraps a payload or name-map failure.
	ErrInternal = errors.New("filtmgr: internal error")

	// ErrShuttingDown is returned by mutators once Shutdown has been called.
	ErrShuttingDown = errors.New("filtmgr: manager is shutting down")
)
