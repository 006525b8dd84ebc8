package instancetracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marathon-mesos/marathon/eventbus"
	"github.com/marathon-mesos/marathon/mesosapi"
	"github.com/marathon-mesos/marathon/model"
	"github.com/marathon-mesos/marathon/repository"
)

func newTestTracker(t *testing.T) *Tracker {
	repo := repository.NewInstanceRepository(repository.NewInMemoryStore())
	tr := New(repo, eventbus.New(8, nil), nil, 64, 2, time.Second)
	require.NoError(t, tr.Recover(context.Background()))
	tr.Start()
	t.Cleanup(tr.Stop)
	return tr
}

func TestScheduleThenStatusUpdateTransitionsToRunning(t *testing.T) {
	tr := newTestTracker(t)

	inst := &model.Instance{InstanceID: "i1", RunSpecID: "/app", State: model.InstanceState{Condition: model.Scheduled}}
	effect := tr.Schedule(inst)
	assert.Equal(t, EffectUpdate, effect.Kind)

	effect = tr.StatusUpdate("i1", "i1.1", mesosapi.TaskStatus{State: mesosapi.TaskRunning})
	assert.Equal(t, EffectUpdate, effect.Kind)

	got := tr.Get("i1")
	require.NotNil(t, got)
	assert.Equal(t, model.Running, got.State.Condition)
}

func TestStatusUpdateClampsLongMessage(t *testing.T) {
	tr := newTestTracker(t)
	tr.Schedule(&model.Instance{InstanceID: "i1", RunSpecID: "/app"})

	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	tr.StatusUpdate("i1", "i1.1", mesosapi.TaskStatus{State: mesosapi.TaskRunning, Message: string(long)})

	got := tr.Get("i1")
	require.NotNil(t, got)
	assert.Len(t, got.Tasks["i1.1"].Status.Message, 120)
}

func TestTerminalStatusWithStoppedGoalRetainsInstance(t *testing.T) {
	tr := newTestTracker(t)
	tr.Schedule(&model.Instance{
		InstanceID: "i1",
		RunSpecID:  "/app",
		State:      model.InstanceState{Goal: model.GoalStopped},
		Reservation: &model.Reservation{State: model.ReservationLaunched},
	})

	effect := tr.StatusUpdate("i1", "i1.1", mesosapi.TaskStatus{State: mesosapi.TaskFinished})
	assert.Equal(t, EffectUpdate, effect.Kind)

	got := tr.Get("i1")
	require.NotNil(t, got)
	assert.Equal(t, model.Scheduled, got.State.Condition)
	assert.Empty(t, got.Tasks)
	assert.Equal(t, model.ReservationSuspended, got.Reservation.State)
}

func TestTerminalStatusWithDecommissionedGoalExpunges(t *testing.T) {
	tr := newTestTracker(t)
	tr.Schedule(&model.Instance{InstanceID: "i1", RunSpecID: "/app", State: model.InstanceState{Goal: model.GoalDecommissioned}})

	effect := tr.StatusUpdate("i1", "i1.1", mesosapi.TaskStatus{State: mesosapi.TaskFinished})
	assert.Equal(t, EffectExpunge, effect.Kind)
	assert.Nil(t, tr.Get("i1"))
}

func TestTerminalStatusWithRunningGoalRequestsRelaunchOnce(t *testing.T) {
	tr := newTestTracker(t)
	tr.Schedule(&model.Instance{InstanceID: "i1", RunSpecID: "/app"})
	tr.StatusUpdate("i1", "i1.1", mesosapi.TaskStatus{State: mesosapi.TaskRunning})

	effect := tr.StatusUpdate("i1", "i1.1", mesosapi.TaskStatus{State: mesosapi.TaskFailed})
	assert.True(t, effect.NeedsRelaunch)

	got := tr.Get("i1")
	require.NotNil(t, got)
	assert.Equal(t, model.Failed, got.State.Condition)
	assert.Equal(t, model.GoalRunning, got.State.Goal)

	// A redelivered terminal status for the same crash must not ask
	// for a second replacement.
	effect = tr.StatusUpdate("i1", "i1.1", mesosapi.TaskStatus{State: mesosapi.TaskFailed})
	assert.False(t, effect.NeedsRelaunch)
}

func TestTerminalStatusWithResidentInstanceDoesNotRequestRelaunch(t *testing.T) {
	tr := newTestTracker(t)
	tr.Schedule(&model.Instance{
		InstanceID:  "i1",
		RunSpecID:   "/app",
		Reservation: &model.Reservation{State: model.ReservationLaunched},
	})
	tr.StatusUpdate("i1", "i1.1", mesosapi.TaskStatus{State: mesosapi.TaskRunning})

	effect := tr.StatusUpdate("i1", "i1.1", mesosapi.TaskStatus{State: mesosapi.TaskFailed})
	assert.False(t, effect.NeedsRelaunch)
}

func TestListReturnsAllTrackedInstances(t *testing.T) {
	tr := newTestTracker(t)
	tr.Schedule(&model.Instance{InstanceID: "i1", RunSpecID: "/app"})
	tr.Schedule(&model.Instance{InstanceID: "i2", RunSpecID: "/app"})

	list := tr.List()
	assert.Len(t, list, 2)
}

func TestUnreachableEscalatorPromotesToInactive(t *testing.T) {
	tr := newTestTracker(t)
	tr.Schedule(&model.Instance{InstanceID: "i1", RunSpecID: "/app"})
	tr.StatusUpdate("i1", "i1.1", mesosapi.TaskStatus{State: mesosapi.TaskUnreachable})

	dq := newTestDeadlineQueue()
	esc := NewUnreachableEscalator(tr, func(model.AbsolutePathId) model.UnreachableStrategy {
		return model.UnreachableStrategy{Kind: model.UnreachableEnabled, InactiveAfter: time.Millisecond}
	}, dq, nil)
	esc.Start()
	t.Cleanup(esc.Stop)

	esc.Watch("i1", time.Now(), time.Millisecond)

	assert.Eventually(t, func() bool {
		got := tr.Get("i1")
		return got != nil && got.State.Condition == model.UnreachableInactive
	}, time.Second, 10*time.Millisecond)
}
