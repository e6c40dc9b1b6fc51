package journey

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// Locks serializes journey read-modify-write cycles per session.
// Cookies have no compare-and-swap, so without this two overlapping
// requests for the same session each read the same journey, both
// append, and the later write clobbers the earlier entry. Striped so
// the map never grows with session count.
type Locks struct {
	stripes [lockStripes]sync.Mutex
}

func NewLocks() *Locks {
	return &Locks{}
}

// Do runs fn while holding the stripe for sessionID. Distinct sessions
// may share a stripe; that only costs contention, never correctness.
func (l *Locks) Do(sessionID string, fn func()) {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	mu := &l.stripes[h.Sum32()%lockStripes]

	mu.Lock()
	defer mu.Unlock()
	fn()
}
