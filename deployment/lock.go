package deployment

import "sync"

// Locks guards each run spec against concurrent deployment plans:
// only one plan may hold a given run spec id's lock at a time, so two
// overlapping group-tree updates touching the same app never race
// (spec.md §4.5).
type Locks struct {
	mu    sync.Mutex
	owned map[string]string // run spec id -> owning plan id
}

// NewLocks returns an empty lock table.
func NewLocks() *Locks {
	return &Locks{owned: make(map[string]string)}
}

// Acquire locks every id in ids for planID, all-or-nothing: if any id
// is already held by a different plan, nothing is acquired and ok is
// false naming the first conflicting id.
func (l *Locks) Acquire(planID string, ids []string) (ok bool, conflict string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, id := range ids {
		if owner, held := l.owned[id]; held && owner != planID {
			return false, id
		}
	}
	for _, id := range ids {
		l.owned[id] = planID
	}
	return true, ""
}

// Release frees every id held by planID.
func (l *Locks) Release(planID string, ids []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		if l.owned[id] == planID {
			delete(l.owned, id)
		}
	}
}
