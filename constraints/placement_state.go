package constraints

import "sync"

// PlacementState accumulates, for one run spec, the field values its
// already-placed instances carry and the pins CLUSTER("") constraints
// have committed to. Matching against the next offer consults and
// then updates this state, so it must be threaded through the offer
// pool's matcher per run spec instead of recomputed from the instance
// tracker on every offer cycle (spec.md §4.2 Open Question on CLUSTER
// pin persistence).
type PlacementState struct {
	mu          sync.Mutex
	placed      map[string][]string // field -> values seen
	clusterPins map[string]string   // constraint field -> pinned value
}

// NewPlacementState returns empty per-run-spec placement memory.
func NewPlacementState() *PlacementState {
	return &PlacementState{
		placed:      make(map[string][]string),
		clusterPins: make(map[string]string),
	}
}

// Snapshot returns the placed values for field and the current cluster
// pin for it, safe to pass into Request without holding the lock.
func (s *PlacementState) Snapshot(field string) (placedValues []string, clusterPin string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.placed[field]...), s.clusterPins[field]
}

// Commit records the outcome of a successful placement: fieldValue is
// appended to the placed set, and if result pinned a new cluster
// value it is recorded.
func (s *PlacementState) Commit(field, fieldValue string, result Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fieldValue != "" {
		s.placed[field] = append(s.placed[field], fieldValue)
	}
	if result.NewPin != "" {
		s.clusterPins[field] = result.NewPin
	}
}
