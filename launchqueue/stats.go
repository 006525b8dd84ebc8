package launchqueue

import "time"

// Stats is a point-in-time summary of one run spec's launch backlog,
// exposed over the HTTP API's queue endpoint (spec.md §6).
type Stats struct {
	RunSpecID       string             `json:"run_spec_id"`
	Backlog         int                `json:"backlog"`
	InFlight        int                `json:"in_flight"`
	BackoffActive   bool               `json:"backoff_active"`
	LastMatchResult string             `json:"last_match_result,omitempty"`
	LastMatchAt     time.Time          `json:"last_match_at,omitempty"`
}

// Snapshot summarizes every tracked run spec's backlog.
func (q *Queue) Snapshot() []Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Stats, 0, len(q.entries))
	for id, e := range q.entries {
		s := Stats{
			RunSpecID:     string(id),
			Backlog:       e.Backlog,
			InFlight:      e.InFlight,
			BackoffActive: !e.backoffUntil.IsZero(),
		}
		if !e.LastMatchAt.IsZero() {
			s.LastMatchResult = e.LastMatchResult.String()
			s.LastMatchAt = e.LastMatchAt
		}
		out = append(out, s)
	}
	return out
}
