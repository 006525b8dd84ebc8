package deployment

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marathon-mesos/marathon/instancetracker"
	"github.com/marathon-mesos/marathon/launchqueue"
	"github.com/marathon-mesos/marathon/model"
)

// InstanceView is the subset of instancetracker.Tracker the
// LaunchQueueRunner needs to compare live instance counts and health
// against a run spec's desired state.
type InstanceView interface {
	List() []*model.Instance
	SetGoal(instanceID string, goal model.Goal) instancetracker.Effect
}

// LaunchQueueRunner is the StepRunner grounded on the launch queue and
// instance tracker: it turns a deployment step into backlog changes
// and goal transitions, and gates readiness on each run spec's
// configured minimum health capacity (spec.md §4.5).
type LaunchQueueRunner struct {
	queue               *launchqueue.Queue
	tracker             InstanceView
	minimumHealthCapacity func(model.AbsolutePathId) float64
	log                 logrus.FieldLogger
}

// NewLaunchQueueRunner builds a LaunchQueueRunner. minimumHealthCapacity
// resolves a run spec's UpgradeStrategy.MinimumHealthCapacity (falling
// back to the scheduler's configured default for run specs that don't
// override it).
func NewLaunchQueueRunner(queue *launchqueue.Queue, tracker InstanceView, minimumHealthCapacity func(model.AbsolutePathId) float64, log logrus.FieldLogger) *LaunchQueueRunner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LaunchQueueRunner{queue: queue, tracker: tracker, minimumHealthCapacity: minimumHealthCapacity, log: log}
}

// RunStep applies one deployment step.
func (r *LaunchQueueRunner) RunStep(_ context.Context, step model.DeploymentStep, runSpec model.RunSpec) error {
	switch step.Kind {
	case model.StepStartRunSpec, model.StepScaleRunSpec:
		return r.scaleTo(step.RunSpecID, runSpec, step.TargetScale)
	case model.StepStopRunSpec:
		return r.stopAll(step.RunSpecID)
	case model.StepLaunchBatch:
		return r.launchBatch(runSpec, step.BatchSize)
	case model.StepStopBatch:
		return r.stopBatch(step.RunSpecID, runSpec, step.BatchSize)
	case model.StepReadinessCheck:
		return nil
	}
	return nil
}

func (r *LaunchQueueRunner) scaleTo(id model.AbsolutePathId, runSpec model.RunSpec, target int) error {
	live := r.liveInstances(id)
	delta := target - len(live)
	switch {
	case delta > 0:
		r.queue.Add(runSpec, delta)
	case delta < 0:
		for _, inst := range live[:-delta] {
			r.tracker.SetGoal(inst.InstanceID, model.GoalStopped)
		}
	}
	return nil
}

// launchBatch grows id's live set by n new-version instances without
// touching any old-version instance, the first half of one rolling
// restart round (spec.md §4.5).
func (r *LaunchQueueRunner) launchBatch(runSpec model.RunSpec, n int) error {
	r.queue.Add(runSpec, n)
	return nil
}

// stopBatch retires the n oldest old-version (pre-restart) instances
// of id once the round's preceding StepReadinessCheck has confirmed
// the new batch is healthy, the second half of one rolling restart
// round (spec.md §4.5). Instances already on runSpec's target version
// are never touched here.
func (r *LaunchQueueRunner) stopBatch(id model.AbsolutePathId, runSpec model.RunSpec, n int) error {
	old := r.oldVersionInstances(id, runSpec.Version())
	if n > len(old) {
		n = len(old)
	}
	for _, inst := range old[:n] {
		r.tracker.SetGoal(inst.InstanceID, model.GoalStopped)
	}
	return nil
}

// oldVersionInstances returns id's live instances not already on
// targetVersion, oldest first, so stopBatch always retires the
// longest-running old instances before newer ones.
func (r *LaunchQueueRunner) oldVersionInstances(id model.AbsolutePathId, targetVersion time.Time) []*model.Instance {
	var old []*model.Instance
	for _, inst := range r.liveInstances(id) {
		if !inst.RunSpecVersion.Equal(targetVersion) {
			old = append(old, inst)
		}
	}
	sort.Slice(old, func(i, j int) bool { return old[i].ScheduledAt.Before(old[j].ScheduledAt) })
	return old
}

func (r *LaunchQueueRunner) stopAll(id model.AbsolutePathId) error {
	for _, inst := range r.liveInstances(id) {
		r.tracker.SetGoal(inst.InstanceID, model.GoalStopped)
	}
	r.queue.Remove(id)
	return nil
}

func (r *LaunchQueueRunner) liveInstances(id model.AbsolutePathId) []*model.Instance {
	var live []*model.Instance
	for _, inst := range r.tracker.List() {
		if inst.RunSpecID != id {
			continue
		}
		if inst.State.Condition.Terminal() || inst.State.Goal.Terminal() {
			continue
		}
		live = append(live, inst)
	}
	return live
}

// ReadinessSatisfied reports whether id's healthy, running instance
// count meets its configured minimum health capacity fraction of the
// live instance count.
func (r *LaunchQueueRunner) ReadinessSatisfied(id model.AbsolutePathId) bool {
	live := r.liveInstances(id)
	if len(live) == 0 {
		return true
	}
	healthy := 0
	for _, inst := range live {
		if inst.State.Condition != model.Running {
			continue
		}
		if inst.State.Healthy == nil || *inst.State.Healthy {
			healthy++
		}
	}
	min := r.minimumHealthCapacity(id)
	return float64(healthy) >= min*float64(len(live))
}
