package instancetracker

import "github.com/marathon-mesos/marathon/model"

// EffectKind tags what, if anything, an applied op changed, telling
// the caller whether to persist and publish (spec.md §4.3).
type EffectKind int

const (
	EffectNoop EffectKind = iota
	EffectUpdate
	EffectExpunge
)

// Effect is the result of applying one op to the tracker's in-memory
// state.
type Effect struct {
	Kind     EffectKind
	Instance *model.Instance
	// NeedsRelaunch is set the moment a non-resident instance's goal
	// (still GoalRunning) becomes unsatisfiable because its condition
	// just turned terminal outside of any deployment step, e.g. an app
	// task crashing on its own. It is true for exactly one Effect per
	// crash, the transition into the terminal condition, so a caller
	// that requeues a replacement on it never double-requeues a
	// repeated broker status delivery for the same terminal task.
	NeedsRelaunch bool
}
