package filtmgr

import "github.com/datnguyenzzz/bloomd/internal/nsmap"

// NameSpaceSnapshot is an immutable-after-publish mapping from filter name
// to FilterEntry, tagged with a monotonic version and a back-pointer to
// its predecessor. At most one retired entry — handed off by the mutator
// that superseded it — is carried in deleted.
type NameSpaceSnapshot struct {
	version     uint64
	m           *nsmap.Map[*FilterEntry]
	deleted     *FilterEntry
	predecessor *NameSpaceSnapshot
}

func newGenesisSnapshot() *NameSpaceSnapshot {
	return &NameSpaceSnapshot{version: 0, m: nsmap.New[*FilterEntry]()}
}

// copyForMutation produces the next snapshot in the chain: a private copy
// of s's map, with version s.version+1 and predecessor s. The caller
// mutates the returned snapshot's map directly before publishing it.
func (s *NameSpaceSnapshot) copyForMutation() *NameSpaceSnapshot {
	return &NameSpaceSnapshot{
		version:     s.version + 1,
		m:           s.m.Copy(),
		predecessor: s,
	}
}

func (s *NameSpaceSnapshot) lookupActive(name nsmap.Key) (*FilterEntry, bool) {
	e, err := s.m.Get(name)
	if err != nil || !e.isActive.Load() {
		return nil, false
	}
	return e, true
}
