// Package scheduler adapts the plain mesosapi callback surface to the
// core: it persists the framework id across registrations, feeds
// offers and rescissions into the offer pool, folds status updates
// into the instance tracker, and implements leader.Nomination so only
// the elected scheduler replica talks to the broker (spec.md §4.6).
package scheduler

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/marathon-mesos/marathon/eventbus"
	"github.com/marathon-mesos/marathon/instancetracker"
	"github.com/marathon-mesos/marathon/mesosapi"
	"github.com/marathon-mesos/marathon/model"
	"github.com/marathon-mesos/marathon/offer"
	"github.com/marathon-mesos/marathon/repository"
)

// Adapter implements leader.Nomination and the Mesos scheduler event
// callbacks (registered, reregistered, disconnected, resourceOffers,
// offerRescinded, statusUpdate, frameworkMessage, slaveLost,
// executorLost, error). Its wire transport is out of scope
// (spec.md §1): callers invoke these methods directly from whatever
// HTTP/driver loop decodes broker events.
type Adapter struct {
	mu sync.RWMutex

	id           string
	driver       mesosapi.SchedulerDriver
	pool         offer.Pool
	launcher     launcherOnce
	tracker      trackerStatus
	frameworks   *repository.FrameworkRepository
	reservations reservationReleaser
	backlog      backlogAdder
	specFor      func(model.AbsolutePathId) model.RunSpec
	bus          *eventbus.Bus
	log          logrus.FieldLogger

	// crash implements the fail-stop strategy: it terminates this
	// process so it never runs on with diverging in-memory/durable
	// state. Overridable so tests can observe a crash without
	// actually exiting the test binary.
	crash func()

	master      mesosapi.MasterInfo
	frameworkID string
	leading     bool
}

// launcherOnce and trackerStatus are narrowed locally so this package
// only needs the slices of Launcher/Tracker it actually calls,
// keeping the adapter easy to unit test with fakes.
type launcherOnce interface {
	RunOnce(ctx context.Context)
}

type trackerStatus interface {
	StatusUpdate(instanceID, taskID string, status mesosapi.TaskStatus) instancetracker.Effect
}

// reservationReleaser is the subset of launcher.ReservationManager the
// adapter needs: marking a decommissioned resident instance's
// reservation for teardown, and reconciling pending releases (and
// orphans) against each incoming batch of offers.
type reservationReleaser interface {
	MarkForRelease(instanceID string)
	Reconcile(ctx context.Context, offers []*mesosapi.Offer)
}

// backlogAdder is the subset of launchqueue.Queue the adapter needs to
// requeue a replacement for an instance the instance tracker reports
// crashed outside of any active deployment step (spec.md §2: the
// launch queue is populated "by Deployment Executor and by Instance
// Tracker when instances need relaunch").
type backlogAdder interface {
	Add(runSpec model.RunSpec, delta int)
}

// New builds an Adapter. id is this node's advertised leader.ID
// string (leader.NewID). specFor resolves a run spec by id so a
// crashed instance can be requeued against its current spec; it may
// return nil if the spec is no longer known, in which case no
// replacement is queued.
func New(id string, driver mesosapi.SchedulerDriver, pool offer.Pool, launcher launcherOnce, tracker trackerStatus, frameworks *repository.FrameworkRepository, reservations reservationReleaser, backlog backlogAdder, specFor func(model.AbsolutePathId) model.RunSpec, bus *eventbus.Bus, log logrus.FieldLogger) *Adapter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Adapter{
		id:           id,
		driver:       driver,
		pool:         pool,
		launcher:     launcher,
		tracker:      tracker,
		frameworks:   frameworks,
		reservations: reservations,
		backlog:      backlog,
		specFor:      specFor,
		bus:          bus,
		log:          log,
		crash:        func() { os.Exit(1) },
	}
}

// GetID implements leader.Nomination.
func (a *Adapter) GetID() string { return a.id }

// GainedLeadershipCallback implements leader.Nomination: the broker
// connection is established by the caller's driver loop, which will
// invoke Registered/Reregistered once the SUBSCRIBE handshake
// completes. Nothing else needs to happen here since the pool and
// tracker are already running and idle.
func (a *Adapter) GainedLeadershipCallback() error {
	a.mu.Lock()
	a.leading = true
	a.mu.Unlock()
	a.log.Info("scheduler: gained leadership, awaiting broker registration")
	return nil
}

// LostLeadershipCallback implements leader.Nomination: it records that
// this replica no longer leads and drops every cached offer, since a
// new leader will re-register from scratch. ResourceOffers does not
// consult the leading flag, so offers delivered afterwards are still
// cached and matched.
func (a *Adapter) LostLeadershipCallback() error {
	a.mu.Lock()
	a.leading = false
	a.mu.Unlock()
	a.pool.Clear()
	a.bus.Publish(eventbus.Event{Name: eventbus.SchedulerDisconnectedEvent})
	a.log.Info("scheduler: lost leadership")
	return nil
}

// ShutDownCallback implements leader.Nomination.
func (a *Adapter) ShutDownCallback() error {
	a.pool.Clear()
	return nil
}

// Registered handles the broker's first successful SUBSCRIBE
// response, persisting the assigned framework id so a restart
// re-registers under the same one.
func (a *Adapter) Registered(ctx context.Context, frameworkID string, master mesosapi.MasterInfo) {
	a.mu.Lock()
	a.frameworkID = frameworkID
	a.master = master
	a.mu.Unlock()

	if err := a.frameworks.Store(ctx, frameworkID); err != nil {
		a.log.WithError(err).Error("scheduler: failed to persist framework id")
	}
	a.bus.Publish(eventbus.Event{Name: eventbus.SchedulerRegisteredEvent})
	a.log.WithField("framework_id", frameworkID).Info("scheduler: registered with broker")
}

// Reregistered handles a SUBSCRIBE response carrying a previously
// assigned framework id, e.g. after a scheduler failover.
func (a *Adapter) Reregistered(master mesosapi.MasterInfo) {
	a.mu.Lock()
	a.master = master
	a.mu.Unlock()
	a.bus.Publish(eventbus.Event{Name: eventbus.SchedulerReregisteredEvent})
	a.log.Info("scheduler: re-registered with broker")
}

// Disconnected handles the broker connection dropping. Cached offers
// are stale the moment this happens, since the master may reassign
// them to another framework.
func (a *Adapter) Disconnected() {
	a.pool.Clear()
	a.bus.Publish(eventbus.Event{Name: eventbus.SchedulerDisconnectedEvent})
	a.log.Warn("scheduler: disconnected from broker")
}

// ResourceOffers caches newly received offers, reconciles resident
// reservations against them, and immediately tries to drain the
// launch queue against them.
func (a *Adapter) ResourceOffers(ctx context.Context, offers []*mesosapi.Offer) {
	a.pool.AddOffers(offers)
	a.reservations.Reconcile(ctx, offers)
	a.launcher.RunOnce(ctx)
}

// OfferRescinded drops a single offer the master has withdrawn.
func (a *Adapter) OfferRescinded(offerID string) {
	a.pool.RescindOffer(offerID)
}

// StatusUpdate folds a task status update into the owning instance.
// taskID is expected in the launcher's instanceID.N form; the
// instance id is recovered by trimming the trailing incarnation
// segment.
func (a *Adapter) StatusUpdate(status mesosapi.TaskStatus) {
	instanceID := instanceIDFromTaskID(status.TaskID)
	if instanceID == "" {
		a.log.WithField("task_id", status.TaskID).Warn("scheduler: status update for unparseable task id")
		return
	}
	effect := a.tracker.StatusUpdate(instanceID, status.TaskID, status)
	if effect.Kind == instancetracker.EffectExpunge && effect.Instance != nil &&
		effect.Instance.IsResident() && effect.Instance.State.Goal == model.GoalDecommissioned {
		a.reservations.MarkForRelease(instanceID)
	}
	if effect.NeedsRelaunch && effect.Instance != nil {
		a.requeueReplacement(effect.Instance)
	}
	a.bus.Publish(eventbus.Event{
		Name: eventbus.StatusUpdateEvent,
		Payload: eventbus.StatusUpdateEventPayload{
			InstanceID: instanceID,
			TaskID:     status.TaskID,
			Message:    eventbus.ClampMessage(status.Message),
		},
	})
}

// requeueReplacement adds one instance of backlog for inst's run spec
// when a non-resident app instance crashes on its own, outside of any
// deployment step, so the run spec's desired count is restored (spec.md
// §2, §3: the launch queue is populated by the deployment executor
// *and* by the instance tracker noticing an instance needs relaunch).
func (a *Adapter) requeueReplacement(inst *model.Instance) {
	spec := a.specFor(inst.RunSpecID)
	if spec == nil {
		a.log.WithField("run_spec_id", string(inst.RunSpecID)).
			Warn("scheduler: crashed instance's run spec no longer exists, not requeuing a replacement")
		return
	}
	a.backlog.Add(spec, 1)
	a.log.WithField("instance_id", inst.InstanceID).WithField("run_spec_id", string(inst.RunSpecID)).
		Info("scheduler: instance crashed outside of a deployment, requeued a replacement")
}

// FrameworkMessage handles an executor-originated message. The core
// has no executor-side component of its own, so this is logged only.
func (a *Adapter) FrameworkMessage(executorID, agentID string, data []byte) {
	a.log.WithField("executor_id", executorID).WithField("agent_id", agentID).
		Debug("scheduler: received framework message")
}

// SlaveLost only logs the lost agent; it does not remove that agent's
// cached offers from the pool. Instances running there surface as
// Unreachable via subsequent status updates or reconciliation.
func (a *Adapter) SlaveLost(agentID string) {
	a.log.WithField("agent_id", agentID).Warn("scheduler: agent lost")
}

// ExecutorLost is logged only; the core tracks task-level state, not
// executor-level state.
func (a *Adapter) ExecutorLost(executorID, agentID string) {
	a.log.WithField("executor_id", executorID).WithField("agent_id", agentID).
		Warn("scheduler: executor lost")
}

// Error handles a fatal, non-retryable error reported by the broker
// (e.g. framework id rejected, framework removed). It distinguishes
// "framework has been removed" from every other error: only that one
// clears the persisted framework id, so the next registration starts
// fresh instead of being rejected under a dead id again. Either way
// the process fails fast (spec.md §4.6, §7): diverging in-memory and
// durable state after a broker-reported fatal error is worse than a
// clean restart under supervision.
func (a *Adapter) Error(message string) {
	log := a.log.WithField("message", message)
	if frameworkRemoved(message) {
		log.Error("scheduler: framework has been removed, clearing persisted framework id")
		if err := a.frameworks.Clear(context.Background()); err != nil {
			log.WithError(err).Error("scheduler: failed to clear persisted framework id")
		}
	} else {
		log.Error("scheduler: fatal broker error")
	}
	a.crash()
}

// frameworkRemoved reports whether message is the broker telling us
// our framework id no longer exists, the one Error case that must
// clear persisted state before the process restarts.
func frameworkRemoved(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "framework") && strings.Contains(lower, "removed")
}

// instanceIDFromTaskID trims a task id's trailing ".N" incarnation
// suffix to recover the owning instance id.
func instanceIDFromTaskID(taskID string) string {
	idx := strings.LastIndex(taskID, ".")
	if idx <= 0 {
		return ""
	}
	return taskID[:idx]
}
