package launcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"

	"github.com/marathon-mesos/marathon/backoff"
	"github.com/marathon-mesos/marathon/instancetracker"
	"github.com/marathon-mesos/marathon/launchqueue"
	"github.com/marathon-mesos/marathon/mesosapi"
	"github.com/marathon-mesos/marathon/model"
	"github.com/marathon-mesos/marathon/offer"
)

type fakeDriver struct {
	accepted [][]mesosapi.Operation
	failNext bool
}

func (f *fakeDriver) AcceptOffers(offerIDs []string, ops []mesosapi.Operation, _ float64) error {
	if f.failNext {
		return errAcceptFailed
	}
	f.accepted = append(f.accepted, ops)
	return nil
}

var errAcceptFailed = assert.AnError
func (f *fakeDriver) DeclineOffer(string, float64) error  { return nil }
func (f *fakeDriver) KillTask(string) error               { return nil }
func (f *fakeDriver) ReconcileTasks([]string) error        { return nil }
func (f *fakeDriver) ReviveOffers() error                  { return nil }
func (f *fakeDriver) SuppressOffers() error                { return nil }
func (f *fakeDriver) Stop(bool) error                      { return nil }

type fakeTracker struct {
	scheduled  []*model.Instance
	provisioned []string
	reverted    []string
}

func (f *fakeTracker) Schedule(inst *model.Instance) instancetracker.Effect {
	f.scheduled = append(f.scheduled, inst)
	return instancetracker.Effect{Kind: instancetracker.EffectUpdate, Instance: inst}
}

func (f *fakeTracker) Provision(instanceID string) instancetracker.Effect {
	f.provisioned = append(f.provisioned, instanceID)
	return instancetracker.Effect{Kind: instancetracker.EffectUpdate}
}

func (f *fakeTracker) RevertToScheduled(instanceID, taskID string) instancetracker.Effect {
	f.reverted = append(f.reverted, instanceID)
	return instancetracker.Effect{Kind: instancetracker.EffectUpdate}
}

func TestLauncherRunOncePlacesAndLaunches(t *testing.T) {
	pool := offer.NewPool(time.Minute, offer.NewMetrics(tally.NoopScope), nil)
	pool.AddOffers([]*mesosapi.Offer{{
		ID: "o1", Hostname: "host-a", Role: "*", ResourceRoles: []string{"*"},
		Unreserved: mesosapi.Resources{CPUs: 4, MemMB: 2048}, Expiry: time.Now().Add(time.Minute),
	}})

	q := launchqueue.New(backoff.NewFixedPolicy(3, time.Millisecond))
	app := model.NewApp(model.AbsolutePathId("/app"), time.Now(), model.Resources{CPUs: 1, MemMB: 128}, "*", model.Container{})
	q.Add(app, 1)

	tracker := &fakeTracker{}
	driver := &fakeDriver{}
	l := New(pool, q, tracker, driver, nil)

	l.RunOnce(context.Background())

	require.Len(t, tracker.scheduled, 1)
	require.Len(t, tracker.provisioned, 1)
	assert.Empty(t, tracker.reverted)
	require.Len(t, driver.accepted, 1)
	assert.Equal(t, mesosapi.OpLaunch, driver.accepted[0][len(driver.accepted[0])-1].Type)

	snap := q.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 0, snap[0].Backlog)
	assert.Equal(t, 1, snap[0].InFlight)
}

func TestLauncherPlacesConstrainedRunSpecWithoutPanicking(t *testing.T) {
	pool := offer.NewPool(time.Minute, offer.NewMetrics(tally.NoopScope), nil)
	pool.AddOffers([]*mesosapi.Offer{{
		ID: "o1", Hostname: "host-a", Role: "*", ResourceRoles: []string{"*"},
		Unreserved: mesosapi.Resources{CPUs: 4, MemMB: 2048}, Expiry: time.Now().Add(time.Minute),
	}})

	q := launchqueue.New(backoff.NewFixedPolicy(3, time.Millisecond))
	app := model.NewApp(model.AbsolutePathId("/app"), time.Now(), model.Resources{CPUs: 1, MemMB: 128}, "*", model.Container{})
	app.SetConstraints([]model.Constraint{{Field: model.FieldHostname, Operator: model.Unique}})
	q.Add(app, 2)

	tracker := &fakeTracker{}
	driver := &fakeDriver{}
	l := New(pool, q, tracker, driver, nil)

	assert.NotPanics(t, func() { l.RunOnce(context.Background()) })

	require.Len(t, tracker.scheduled, 1)
	require.Len(t, driver.accepted, 1)
}

func TestLauncherRevertsToScheduledOnAcceptFailure(t *testing.T) {
	pool := offer.NewPool(time.Minute, offer.NewMetrics(tally.NoopScope), nil)
	pool.AddOffers([]*mesosapi.Offer{{
		ID: "o1", Hostname: "host-a", Role: "*", ResourceRoles: []string{"*"},
		Unreserved: mesosapi.Resources{CPUs: 4, MemMB: 2048}, Expiry: time.Now().Add(time.Minute),
	}})

	q := launchqueue.New(backoff.NewFixedPolicy(3, time.Millisecond))
	app := model.NewApp(model.AbsolutePathId("/app"), time.Now(), model.Resources{CPUs: 1, MemMB: 128}, "*", model.Container{})
	q.Add(app, 1)

	tracker := &fakeTracker{}
	driver := &fakeDriver{failNext: true}
	l := New(pool, q, tracker, driver, nil)

	l.RunOnce(context.Background())

	require.Len(t, tracker.provisioned, 1)
	require.Len(t, tracker.reverted, 1)
	assert.Equal(t, tracker.provisioned[0], tracker.reverted[0])
	assert.Empty(t, driver.accepted)

	snap := q.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 1, snap[0].Backlog)
	assert.Equal(t, 0, snap[0].InFlight)
}
