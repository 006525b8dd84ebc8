package instancetracker

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marathon-mesos/marathon/deadlinequeue"
	"github.com/marathon-mesos/marathon/lifecycle"
	"github.com/marathon-mesos/marathon/model"
)

// unreachableItem is the deadlinequeue.QueueItem that Watch schedules
// for one instance, firing at the deadline Watch was given (spec.md
// §3, §4.3). Only Watch enqueues items; the tracker's status-update
// path does not call Watch when a task goes Unreachable.
type unreachableItem struct {
	instanceID string
	deadline   time.Time
	index      int
}

func (i *unreachableItem) Index() int                     { return i.index }
func (i *unreachableItem) SetIndex(v int)                 { i.index = v }
func (i *unreachableItem) Deadline() time.Time            { return i.deadline }
func (i *unreachableItem) SetDeadline(deadline time.Time) { i.deadline = deadline }

// UnreachableEscalator watches instances that have gone Unreachable
// and, once the deadline they were watched with elapses, transitions
// those still Unreachable to UnreachableInactive when their RunSpec's
// UnreachableStrategy is enabled. It does not expunge instances, and
// the strategy's ExpungeAfter is not read here.
type UnreachableEscalator struct {
	tracker *Tracker
	dq      deadlinequeue.DeadlineQueue
	lc      lifecycle.LifeCycle
	log     logrus.FieldLogger

	strategyFor func(runSpecID model.AbsolutePathId) model.UnreachableStrategy
}

// NewUnreachableEscalator builds an escalator driven by tracker's
// instance state, consulting strategyFor to learn each run spec's
// escalation timeouts.
func NewUnreachableEscalator(
	tracker *Tracker,
	strategyFor func(model.AbsolutePathId) model.UnreachableStrategy,
	dq deadlinequeue.DeadlineQueue,
	log logrus.FieldLogger,
) *UnreachableEscalator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &UnreachableEscalator{tracker: tracker, dq: dq, strategyFor: strategyFor, lc: lifecycle.New(), log: log}
}

// Watch schedules instanceID for escalation at now+inactiveAfter.
func (e *UnreachableEscalator) Watch(instanceID string, now time.Time, inactiveAfter time.Duration) {
	e.dq.Enqueue(&unreachableItem{instanceID: instanceID, index: -1}, now.Add(inactiveAfter))
}

// Start launches the background goroutine draining the deadline queue.
func (e *UnreachableEscalator) Start() {
	if !e.lc.Start() {
		return
	}
	go e.run()
}

// Stop signals the escalator to exit and waits for it.
func (e *UnreachableEscalator) Stop() {
	e.lc.Stop()
	e.lc.Wait()
}

func (e *UnreachableEscalator) run() {
	defer e.lc.StopComplete()
	stop := e.lc.StopCh()
	for {
		item := e.dq.Dequeue(stop)
		if item == nil {
			return
		}
		ui := item.(*unreachableItem)
		e.escalate(ui.instanceID)
	}
}

func (e *UnreachableEscalator) escalate(instanceID string) {
	inst := e.tracker.Get(instanceID)
	if inst == nil || inst.State.Condition != model.Unreachable {
		return
	}
	strategy := e.strategyFor(inst.RunSpecID)
	if strategy.Kind != model.UnreachableEnabled {
		return
	}
	e.tracker.submit(&markInactiveOp{opBase: newOpBase(), instanceID: instanceID})
	e.log.WithField("instance", instanceID).Info("instance escalated to unreachable-inactive")
}

// markInactiveOp transitions an instance still Unreachable into
// UnreachableInactive. Its Effect does not set NeedsRelaunch.
type markInactiveOp struct {
	opBase
	instanceID string
}

func (o *markInactiveOp) apply(t *Tracker) Effect {
	inst, ok := t.instances[o.instanceID]
	if !ok || inst.State.Condition != model.Unreachable {
		return Effect{Kind: EffectNoop}
	}
	inst.State.Condition = model.UnreachableInactive
	inst.State.Timestamp = time.Now()
	return Effect{Kind: EffectUpdate, Instance: inst}
}
