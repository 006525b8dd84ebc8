package instancetracker

import (
	"time"

	"github.com/marathon-mesos/marathon/mesosapi"
	"github.com/marathon-mesos/marathon/model"
	"github.com/marathon-mesos/marathon/reservation"
)

// op is the tagged-variant sum type of every operation the tracker's
// single goroutine serializes through its mailbox (spec.md §4.3).
// Each variant carries a reply channel so the caller can await the
// resulting Effect without a second round trip through the mailbox.
type op interface {
	apply(t *Tracker) Effect
	reply() chan Effect
}

type opBase struct {
	replyCh chan Effect
}

func (o *opBase) reply() chan Effect { return o.replyCh }

func newOpBase() opBase {
	return opBase{replyCh: make(chan Effect, 1)}
}

// scheduleOp creates a brand new instance in the Scheduled condition,
// issued by the launcher right after it decides to place a new
// instance but before an offer has been claimed for it.
type scheduleOp struct {
	opBase
	instance *model.Instance
}

func (o *scheduleOp) apply(t *Tracker) Effect {
	if _, exists := t.instances[o.instance.InstanceID]; exists {
		return Effect{Kind: EffectNoop}
	}
	t.instances[o.instance.InstanceID] = o.instance
	return Effect{Kind: EffectUpdate, Instance: o.instance}
}

// statusUpdateOp folds one broker task status into the owning
// instance, recomputing its Condition and, if the goal is no longer
// satisfied, leaving it for the launcher to relaunch.
type statusUpdateOp struct {
	opBase
	instanceID string
	taskID     string
	status     mesosapi.TaskStatus
	now        time.Time
}

func (o *statusUpdateOp) apply(t *Tracker) Effect {
	inst, ok := t.instances[o.instanceID]
	if !ok {
		return Effect{Kind: EffectNoop}
	}
	task, ok := inst.Tasks[o.taskID]
	if !ok {
		task = &model.Task{TaskID: o.taskID}
		if inst.Tasks == nil {
			inst.Tasks = make(map[string]*model.Task)
		}
		inst.Tasks[o.taskID] = task
	}

	wasTerminal := inst.State.Condition.Terminal()
	condition := conditionFor(o.status.State)
	task.Status = model.TaskStatus{
		Condition: condition,
		Message:   clampMessage(o.status.Message),
		Network: model.NetworkInfo{
			HostPorts:   o.status.HostPorts,
			IPAddresses: nonEmpty(o.status.IPAddress),
		},
	}
	if condition == model.Unreachable && task.Status.UnreachableSince.IsZero() {
		task.Status.UnreachableSince = o.now
	}

	inst.State.Condition = condition
	inst.State.Timestamp = o.now
	if condition == model.Running && inst.State.ActiveSince.IsZero() {
		inst.State.ActiveSince = o.now
	}

	if condition.Terminal() && goalSatisfiedBy(inst.State.Goal, condition) {
		switch inst.State.Goal {
		case model.GoalDecommissioned:
			delete(t.instances, o.instanceID)
			return Effect{Kind: EffectExpunge, Instance: inst}
		case model.GoalStopped:
			delete(inst.Tasks, o.taskID)
			inst.State.Condition = model.Scheduled
			inst.State.Timestamp = o.now
			suspendReservation(inst)
			return Effect{Kind: EffectUpdate, Instance: inst}
		}
	}

	needsRelaunch := condition.Terminal() && !wasTerminal &&
		inst.State.Goal == model.GoalRunning && !inst.IsResident()
	return Effect{Kind: EffectUpdate, Instance: inst, NeedsRelaunch: needsRelaunch}
}

// suspendReservation moves a resident instance's reservation from
// Launched to Suspended once its goal (Stopped) is satisfied, keeping
// the reserved resources and volumes until the instance is relaunched
// or decommissioned (spec.md §4.1, §4.4).
func suspendReservation(inst *model.Instance) {
	if inst.Reservation == nil {
		return
	}
	if next, err := reservation.Transition(inst.Reservation.State, model.ReservationSuspended); err == nil {
		inst.Reservation.State = next
	}
}

// relaunchReservation moves a resident instance's reservation from
// Suspended back to Launched when its goal returns to Running, e.g.
// an operator scaling a previously stopped resident instance back up
// onto the resources it still holds (spec.md §4.4).
func relaunchReservation(inst *model.Instance) {
	if inst.Reservation == nil {
		return
	}
	if next, err := reservation.Transition(inst.Reservation.State, model.ReservationLaunched); err == nil {
		inst.Reservation.State = next
	}
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

// goalUpdateOp changes an instance's desired end state, e.g. Stopped
// when an operator scales a run spec down or Decommissioned when the
// run spec is deleted.
type goalUpdateOp struct {
	opBase
	instanceID string
	goal       model.Goal
	now        time.Time
}

func (o *goalUpdateOp) apply(t *Tracker) Effect {
	inst, ok := t.instances[o.instanceID]
	if !ok {
		return Effect{Kind: EffectNoop}
	}
	wasStopped := inst.State.Goal != model.GoalRunning
	inst.State.Goal = o.goal

	if o.goal == model.GoalRunning && wasStopped {
		relaunchReservation(inst)
	}

	if goalSatisfiedBy(o.goal, inst.State.Condition) {
		switch o.goal {
		case model.GoalDecommissioned:
			delete(t.instances, o.instanceID)
			return Effect{Kind: EffectExpunge, Instance: inst}
		case model.GoalStopped:
			if inst.State.Condition.Terminal() {
				inst.Tasks = make(map[string]*model.Task)
				inst.State.Condition = model.Scheduled
				inst.State.Timestamp = o.now
			}
			suspendReservation(inst)
		}
	}
	return Effect{Kind: EffectUpdate, Instance: inst}
}

// provisionOp moves a Scheduled instance to Provisioned, recording the
// launcher's intent to send an ACCEPT before it actually sends one
// (spec.md §4.4 step 2).
type provisionOp struct {
	opBase
	instanceID string
	now        time.Time
}

func (o *provisionOp) apply(t *Tracker) Effect {
	inst, ok := t.instances[o.instanceID]
	if !ok {
		return Effect{Kind: EffectNoop}
	}
	inst.State.Condition = model.Provisioned
	inst.State.Timestamp = o.now
	return Effect{Kind: EffectUpdate, Instance: inst}
}

// revertToScheduledOp undoes a provisionOp after the accept failed to
// send: the instance goes back to Scheduled and the task's incarnation
// is bumped so the next attempt is distinguishable from the failed one
// (spec.md §4.4 step 2).
type revertToScheduledOp struct {
	opBase
	instanceID string
	taskID     string
	now        time.Time
}

func (o *revertToScheduledOp) apply(t *Tracker) Effect {
	inst, ok := t.instances[o.instanceID]
	if !ok {
		return Effect{Kind: EffectNoop}
	}
	inst.State.Condition = model.Scheduled
	inst.State.Timestamp = o.now
	if task, ok := inst.Tasks[o.taskID]; ok {
		task.Incarnation++
	} else {
		if inst.Tasks == nil {
			inst.Tasks = make(map[string]*model.Task)
		}
		inst.Tasks[o.taskID] = &model.Task{TaskID: o.taskID, Incarnation: 1}
	}
	return Effect{Kind: EffectUpdate, Instance: inst}
}

// expungeOp force-removes an instance, used by garbage collection and
// by reconciliation when the broker reports a task unknown to it with
// no corresponding tracker entry.
type expungeOp struct {
	opBase
	instanceID string
}

func (o *expungeOp) apply(t *Tracker) Effect {
	inst, ok := t.instances[o.instanceID]
	if !ok {
		return Effect{Kind: EffectNoop}
	}
	delete(t.instances, o.instanceID)
	return Effect{Kind: EffectExpunge, Instance: inst}
}
