// Package nsmap is the ordered name map spec.md's §3 NameSpaceSnapshot and
// §6 "ordered name map" treat as an external collaborator: point lookup,
// insert, delete, iteration with an optional key prefix, and a "snapshot
// copy" that produces an independently mutable map sharing the same value
// handles.
//
// The public shape (Key, WalkFn, the Get/Insert/Delete/Walk/WalkPrefix
// verbs, the NonExist sentinel) follows the teacher's go-adaptive-radix-tree
// (itself compatible with hashicorp/go-immutable-radix's API). The teacher's
// engine underneath that API is a concurrent adaptive-node radix tree
// (node4/16/48/256) with a per-node optimistic latch, built so many
// goroutines can walk and mutate the same tree safely at once. Map does not
// need any of that: a NameSpaceSnapshot is only ever mutated by the single
// mutator holding the manager's write-serialization lock, and only after
// Copy has produced a private map no reader can observe — the isolation the
// teacher's per-node latches exist to provide is already guaranteed one
// level up. Map is therefore a plain sorted slice with no internal locking
// at all; see DESIGN.md for the fuller rationale.
package nsmap

import (
	"bytes"
	"errors"
	"sort"
)

// Key is a filter name, matched byte-for-byte; no NUL terminator is added
// or expected.
type Key []byte

// WalkFn is invoked for each entry visited by Walk/WalkPrefix. Returning
// true stops the walk early.
type WalkFn[V any] func(k Key, v V) bool

// NonExist is returned by Get/Delete when the key is absent.
var NonExist = errors.New("nsmap: key does not exist")

type item[V any] struct {
	key   Key
	value V
}

// Map is an ordered key -> value mapping. The zero value is an empty map
// ready to use.
type Map[V any] struct {
	items []item[V]
}

// New returns an empty Map.
func New[V any]() *Map[V] {
	return &Map[V]{}
}

func (m *Map[V]) search(key Key) (int, bool) {
	i := sort.Search(len(m.items), func(i int) bool {
		return bytes.Compare(m.items[i].key, key) >= 0
	})
	if i < len(m.items) && bytes.Equal(m.items[i].key, key) {
		return i, true
	}
	return i, false
}

// Get returns the value stored for key, or NonExist if absent.
func (m *Map[V]) Get(key Key) (V, error) {
	i, ok := m.search(key)
	if !ok {
		var zero V
		return zero, NonExist
	}
	return m.items[i].value, nil
}

// Insert adds or replaces the value for key, returning the previous value
// and whether one was present.
func (m *Map[V]) Insert(key Key, value V) (V, bool) {
	i, ok := m.search(key)
	if ok {
		prev := m.items[i].value
		m.items[i].value = value
		return prev, true
	}

	m.items = append(m.items, item[V]{})
	copy(m.items[i+1:], m.items[i:])
	m.items[i] = item[V]{key: append(Key{}, key...), value: value}

	var zero V
	return zero, false
}

// Delete removes key, returning the removed value and whether it was
// present.
func (m *Map[V]) Delete(key Key) (V, bool) {
	i, ok := m.search(key)
	if !ok {
		var zero V
		return zero, false
	}
	removed := m.items[i].value
	m.items = append(m.items[:i], m.items[i+1:]...)
	return removed, true
}

// Len reports the number of entries currently in the map.
func (m *Map[V]) Len() int {
	return len(m.items)
}

// Walk visits every entry in ascending key order.
func (m *Map[V]) Walk(fn WalkFn[V]) {
	for _, it := range m.items {
		if fn(it.key, it.value) {
			return
		}
	}
}

// WalkPrefix visits every entry whose key starts with prefix, in ascending
// key order. A nil or empty prefix visits every entry.
func (m *Map[V]) WalkPrefix(prefix Key, fn WalkFn[V]) {
	if len(prefix) == 0 {
		m.Walk(fn)
		return
	}
	i := sort.Search(len(m.items), func(i int) bool {
		return bytes.Compare(m.items[i].key, prefix) >= 0
	})
	for ; i < len(m.items); i++ {
		if !bytes.HasPrefix(m.items[i].key, prefix) {
			return
		}
		if fn(m.items[i].key, m.items[i].value) {
			return
		}
	}
}

// Copy returns an independent Map populated with the same value handles as
// m — mutating the copy never affects m and vice versa, but the values
// themselves (typically *FilterEntry pointers) are shared, matching
// spec.md §4.3's "snapshot copy" semantics exactly.
func (m *Map[V]) Copy() *Map[V] {
	cp := &Map[V]{items: make([]item[V], len(m.items))}
	copy(cp.items, m.items)
	return cp
}
