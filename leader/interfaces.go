package leader

// Nomination is the set of callbacks a scheduler process implements to
// react to leadership transitions (spec.md §4.6: only the elected
// leader accepts offers and launches tasks; standby schedulers sit
// idle and redirect).
type Nomination interface {
	// GainedLeadershipCallback runs when this process becomes the
	// leading scheduler: it should start accepting offers and driving
	// reconciliation.
	GainedLeadershipCallback() error
	// LostLeadershipCallback runs when this process is no longer the
	// leader: it should stop accepting offers and abandon in-flight
	// launches cleanly.
	LostLeadershipCallback() error
	// ShutDownCallback runs once during Stop, regardless of current
	// leadership state.
	ShutDownCallback() error
	// GetID returns the identity string this node campaigns under
	// (the JSON-encoded ID built by NewID).
	GetID() string
}

// Candidate campaigns for leadership of a role and reports whether it
// currently holds it.
type Candidate interface {
	IsLeader() bool
	Start() error
	Stop() error
	Resign()
}

// Observer watches a role's leadership without campaigning for it,
// used by standby schedulers to know where to forward API requests.
type Observer interface {
	CurrentLeader() (string, error)
	Start() error
	Stop()
}
