package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"

	"github.com/marathon-mesos/marathon/eventbus"
	"github.com/marathon-mesos/marathon/instancetracker"
	"github.com/marathon-mesos/marathon/mesosapi"
	"github.com/marathon-mesos/marathon/model"
	"github.com/marathon-mesos/marathon/offer"
	"github.com/marathon-mesos/marathon/repository"
)

type fakeLauncher struct{ calls int }

func (f *fakeLauncher) RunOnce(ctx context.Context) { f.calls++ }

type fakeTracker struct {
	lastInstanceID string
	lastTaskID     string
	lastStatus     mesosapi.TaskStatus
	nextEffect     instancetracker.Effect
}

func (f *fakeTracker) StatusUpdate(instanceID, taskID string, status mesosapi.TaskStatus) instancetracker.Effect {
	f.lastInstanceID, f.lastTaskID, f.lastStatus = instanceID, taskID, status
	return f.nextEffect
}

type fakeReservations struct {
	reconciled  int
	markedForID string
}

func (f *fakeReservations) MarkForRelease(instanceID string) { f.markedForID = instanceID }
func (f *fakeReservations) Reconcile(ctx context.Context, offers []*mesosapi.Offer) {
	f.reconciled++
}

type fakeBacklog struct {
	added map[model.AbsolutePathId]int
}

func (f *fakeBacklog) Add(runSpec model.RunSpec, delta int) {
	if f.added == nil {
		f.added = make(map[model.AbsolutePathId]int)
	}
	f.added[runSpec.ID()] += delta
}

func newTestAdapter(t *testing.T) (*Adapter, *fakeLauncher, *fakeTracker, *fakeReservations, *fakeBacklog, offer.Pool) {
	pool := offer.NewPool(time.Minute, offer.NewMetrics(tally.NoopScope), nil)
	launcher := &fakeLauncher{}
	tracker := &fakeTracker{}
	reservations := &fakeReservations{}
	backlog := &fakeBacklog{}
	repo := repository.NewFrameworkRepository(repository.NewInMemoryStore())
	bus := eventbus.New(8, nil)
	specFor := func(id model.AbsolutePathId) model.RunSpec {
		return model.NewApp(id, time.Time{}, model.Resources{}, "*", model.Container{})
	}
	return New("node-1", nil, pool, launcher, tracker, repo, reservations, backlog, specFor, bus, nil),
		launcher, tracker, reservations, backlog, pool
}

func TestResourceOffersCachesAndDrainsLaunchQueue(t *testing.T) {
	a, launcher, _, reservations, _, pool := newTestAdapter(t)
	offers := []*mesosapi.Offer{{ID: "o1", Hostname: "host-1", Unreserved: mesosapi.Resources{CPUs: 4}}}
	a.ResourceOffers(context.Background(), offers)

	assert.Equal(t, 1, launcher.calls)
	assert.Equal(t, 1, reservations.reconciled)
	_ = pool
}

func TestStatusUpdateParsesInstanceIDFromTaskID(t *testing.T) {
	a, _, tracker, _, _, _ := newTestAdapter(t)
	a.StatusUpdate(mesosapi.TaskStatus{TaskID: "app.abc123.1", State: mesosapi.TaskRunning})
	assert.Equal(t, "app.abc123", tracker.lastInstanceID)
	assert.Equal(t, "app.abc123.1", tracker.lastTaskID)
}

func TestStatusUpdateMarksDecommissionedResidentForRelease(t *testing.T) {
	a, _, tracker, reservations, _, _ := newTestAdapter(t)
	tracker.nextEffect = instancetracker.Effect{
		Kind: instancetracker.EffectExpunge,
		Instance: &model.Instance{
			InstanceID:  "app.abc123",
			Reservation: &model.Reservation{State: model.ReservationLaunched},
			State:       model.InstanceState{Goal: model.GoalDecommissioned},
		},
	}
	a.StatusUpdate(mesosapi.TaskStatus{TaskID: "app.abc123.1", State: mesosapi.TaskKilled})
	assert.Equal(t, "app.abc123", reservations.markedForID)
}

func TestStatusUpdateRequeuesReplacementOnNeedsRelaunch(t *testing.T) {
	a, _, tracker, _, backlog, _ := newTestAdapter(t)
	tracker.nextEffect = instancetracker.Effect{
		Kind: instancetracker.EffectUpdate,
		Instance: &model.Instance{
			InstanceID: "app.abc123",
			RunSpecID:  "/app",
			State:      model.InstanceState{Condition: model.Failed, Goal: model.GoalRunning},
		},
		NeedsRelaunch: true,
	}
	a.StatusUpdate(mesosapi.TaskStatus{TaskID: "app.abc123.1", State: mesosapi.TaskFailed})
	assert.Equal(t, 1, backlog.added["/app"])
}

func TestStatusUpdateDoesNotRequeueWithoutNeedsRelaunch(t *testing.T) {
	a, _, tracker, _, backlog, _ := newTestAdapter(t)
	tracker.nextEffect = instancetracker.Effect{
		Kind: instancetracker.EffectUpdate,
		Instance: &model.Instance{
			InstanceID: "app.abc123",
			RunSpecID:  "/app",
			State:      model.InstanceState{Condition: model.Running, Goal: model.GoalRunning},
		},
	}
	a.StatusUpdate(mesosapi.TaskStatus{TaskID: "app.abc123.1", State: mesosapi.TaskRunning})
	assert.Empty(t, backlog.added)
}

func TestStatusUpdateSkipsRequeueWhenRunSpecGone(t *testing.T) {
	a, _, tracker, _, backlog, _ := newTestAdapter(t)
	a.specFor = func(model.AbsolutePathId) model.RunSpec { return nil }
	tracker.nextEffect = instancetracker.Effect{
		Kind: instancetracker.EffectUpdate,
		Instance: &model.Instance{
			InstanceID: "app.abc123",
			RunSpecID:  "/app",
			State:      model.InstanceState{Condition: model.Failed, Goal: model.GoalRunning},
		},
		NeedsRelaunch: true,
	}
	a.StatusUpdate(mesosapi.TaskStatus{TaskID: "app.abc123.1", State: mesosapi.TaskFailed})
	assert.Empty(t, backlog.added)
}

func TestRegisteredPersistsFrameworkID(t *testing.T) {
	a, _, _, _, _, _ := newTestAdapter(t)
	a.Registered(context.Background(), "fw-1", mesosapi.MasterInfo{Hostname: "master-1"})

	stored, err := a.frameworks.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fw-1", stored)
}

func TestLostLeadershipClearsPool(t *testing.T) {
	a, _, _, _, _, pool := newTestAdapter(t)
	pool.AddOffers([]*mesosapi.Offer{{ID: "o1", Hostname: "host-1"}})
	require.NoError(t, a.LostLeadershipCallback())
	_, _, err := pool.ClaimForPlace(offer.PlacementRequest{})
	assert.Error(t, err)
}

func TestErrorClearsFrameworkIDWhenFrameworkRemoved(t *testing.T) {
	a, _, _, _, _, _ := newTestAdapter(t)
	require.NoError(t, a.frameworks.Store(context.Background(), "fw-1"))

	crashed := false
	a.crash = func() { crashed = true }

	a.Error("Framework has been removed")

	assert.True(t, crashed)
	stored, err := a.frameworks.Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestErrorPreservesFrameworkIDOnOtherErrors(t *testing.T) {
	a, _, _, _, _, _ := newTestAdapter(t)
	require.NoError(t, a.frameworks.Store(context.Background(), "fw-1"))

	crashed := false
	a.crash = func() { crashed = true }

	a.Error("master disconnected unexpectedly")

	assert.True(t, crashed)
	stored, err := a.frameworks.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fw-1", stored)
}
