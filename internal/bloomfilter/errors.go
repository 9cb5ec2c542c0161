package bloomfilter

import "errors"

var (
	// errCorruptBitset is returned by decode when the trailer of a
	// persisted bitset does not match its payload length.
	errCorruptBitset = errors.New("bloomfilter: corrupt bitset encoding")

	// errFilterClosed is returned by Contains, Add and Compact on a Filter
	// after Delete has been called on it. (Close does not cause it: a
	// closed filter reloads its bitset on next access.)
	errFilterClosed = errors.New("bloomfilter: filter is closed")

	// errNotProxied is returned when a caller asks a non-proxied Filter
	// to perform a proxied-only operation.
	errNotProxied = errors.New("bloomfilter: filter is not proxied")
)
