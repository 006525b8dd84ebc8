package deployment

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marathon-mesos/marathon/eventbus"
	"github.com/marathon-mesos/marathon/model"
	"github.com/marathon-mesos/marathon/repository"
)

// StepRunner applies one deployment step's effect against the launch
// queue and instance tracker. Implementations are expected to be
// idempotent: running the same step twice (e.g. after a scheduler
// restart mid-plan) must not double-apply it.
type StepRunner interface {
	// RunStep applies step for runSpec (nil for StepStopRunSpec, where
	// the spec has already been removed from the target group).
	RunStep(ctx context.Context, step model.DeploymentStep, runSpec model.RunSpec) error
	// ReadinessSatisfied reports whether runSpecID's instances meet its
	// UpgradeStrategy's MinimumHealthCapacity, gating a
	// StepReadinessCheck from completing.
	ReadinessSatisfied(runSpecID model.AbsolutePathId) bool
}

// ErrNotReady is returned by Executor.Step when the current pending
// step is a StepReadinessCheck still waiting on instance health; the
// caller should retry later rather than treating it as a failure.
var ErrNotReady = errNotReady{}

type errNotReady struct{}

func (errNotReady) Error() string { return "deployment: readiness check not yet satisfied" }

// Executor advances one locked deployment plan step at a time,
// persisting progress after each step so a scheduler restart resumes
// exactly where it left off (spec.md §4.5).
type Executor struct {
	locks   *Locks
	repo    *repository.DeploymentRepository
	bus     *eventbus.Bus
	runner  StepRunner
	specsOf func(model.AbsolutePathId) model.RunSpec
	log     logrus.FieldLogger
}

// NewExecutor builds an Executor. specsOf resolves a run spec id
// against the plan's target group snapshot.
func NewExecutor(locks *Locks, repo *repository.DeploymentRepository, bus *eventbus.Bus, runner StepRunner, specsOf func(model.AbsolutePathId) model.RunSpec, log logrus.FieldLogger) *Executor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Executor{locks: locks, repo: repo, bus: bus, runner: runner, specsOf: specsOf, log: log}
}

// Start locks every affected run spec id for plan and persists it,
// returning false with the conflicting id if any lock is already held
// by a different in-flight plan.
func (e *Executor) Start(ctx context.Context, plan *model.DeploymentPlan) (ok bool, conflict string, err error) {
	ids := make([]string, 0, len(plan.AffectedIDs))
	for _, id := range plan.AffectedIDs {
		ids = append(ids, string(id))
	}
	ok, conflict = e.locks.Acquire(plan.ID, ids)
	if !ok {
		return false, conflict, nil
	}
	if _, err := e.repo.Store(ctx, plan); err != nil {
		e.locks.Release(plan.ID, ids)
		return false, "", err
	}
	e.bus.Publish(eventbus.Event{Name: eventbus.DeploymentStarted, Payload: eventbus.DeploymentEventPayload{PlanID: plan.ID, Timestamp: time.Now()}})
	return true, "", nil
}

// Step executes the next pending step, persists progress, and
// reports whether the whole plan is now Complete. Returns ErrNotReady
// without advancing if the pending step is a readiness check still
// waiting.
func (e *Executor) Step(ctx context.Context, plan *model.DeploymentPlan) (complete bool, err error) {
	idx := plan.NextPending()
	if idx == -1 {
		return plan.Complete(), nil
	}
	step := plan.Steps[idx]

	if step.Kind == model.StepReadinessCheck {
		if !e.runner.ReadinessSatisfied(step.RunSpecID) {
			return false, ErrNotReady
		}
	} else {
		runSpec := e.specsOf(step.RunSpecID)
		if err := e.runner.RunStep(ctx, step, runSpec); err != nil {
			return false, err
		}
		e.bus.Publish(eventbus.Event{
			Name: eventbus.DeploymentStepSuccess,
			Payload: eventbus.DeploymentEventPayload{PlanID: plan.ID, RunSpecID: string(step.RunSpecID), Timestamp: time.Now()},
		})
	}

	plan.Steps[idx].Done = true
	if _, err := e.repo.Store(ctx, plan); err != nil {
		return false, err
	}

	if plan.Complete() {
		e.finish(ctx, plan)
		return true, nil
	}
	return false, nil
}

func (e *Executor) finish(ctx context.Context, plan *model.DeploymentPlan) {
	ids := make([]string, 0, len(plan.AffectedIDs))
	for _, id := range plan.AffectedIDs {
		ids = append(ids, string(id))
	}
	e.locks.Release(plan.ID, ids)
	e.bus.Publish(eventbus.Event{
		Name:    eventbus.DeploymentSuccess,
		Payload: eventbus.DeploymentEventPayload{PlanID: plan.ID, Timestamp: time.Now()},
	})
	e.log.WithField("plan", plan.ID).Info("deployment: plan complete")
}

// Abort releases plan's locks and deletes its persisted state without
// marking it complete, used when an operator cancels an in-flight
// deployment.
func (e *Executor) Abort(ctx context.Context, plan *model.DeploymentPlan) error {
	ids := make([]string, 0, len(plan.AffectedIDs))
	for _, id := range plan.AffectedIDs {
		ids = append(ids, string(id))
	}
	e.locks.Release(plan.ID, ids)
	return e.repo.Delete(ctx, plan.ID)
}
