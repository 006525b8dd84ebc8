package launchqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/marathon-mesos/marathon/backoff"
	"github.com/marathon-mesos/marathon/model"
	"github.com/marathon-mesos/marathon/offer"
)

func TestAddAndMarkLaunchedShrinksBacklog(t *testing.T) {
	q := New(backoff.NewFixedPolicy(3, time.Millisecond))
	app := model.NewApp(model.AbsolutePathId("/app"), time.Now(), model.Resources{CPUs: 1}, "*", model.Container{})
	app.SetInstances(2)

	q.Add(app, 2)
	ready := q.ReadyEntries(time.Now())
	assert.Len(t, ready, 1)
	assert.Equal(t, 2, ready[0].Backlog)

	q.MarkLaunched(app.ID())
	snap := q.Snapshot()
	assert.Equal(t, 1, snap[0].Backlog)
	assert.Equal(t, 1, snap[0].InFlight)
}

func TestMarkFailedAppliesBackoff(t *testing.T) {
	q := New(backoff.NewFixedPolicy(3, time.Hour))
	app := model.NewApp(model.AbsolutePathId("/app"), time.Now(), model.Resources{CPUs: 1}, "*", model.Container{})
	q.Add(app, 1)
	q.MarkLaunched(app.ID())

	now := time.Now()
	q.MarkFailed(app.ID(), now)
	q.Add(app, 1)

	ready := q.ReadyEntries(now)
	assert.Empty(t, ready)
}

func TestRecordMatchResultSurfacesInSnapshot(t *testing.T) {
	q := New(backoff.NewFixedPolicy(3, time.Millisecond))
	app := model.NewApp(model.AbsolutePathId("/app"), time.Now(), model.Resources{CPUs: 1}, "*", model.Container{})
	q.Add(app, 1)

	now := time.Now()
	q.RecordMatchResult(app.ID(), offer.InsufficientResources, now)

	snap := q.Snapshot()
	require := assert.New(t)
	require.Len(snap, 1)
	require.Equal("InsufficientResources", snap[0].LastMatchResult)
	require.Equal(now, snap[0].LastMatchAt)
}

func TestRemoveDropsEntry(t *testing.T) {
	q := New(backoff.NewFixedPolicy(3, time.Millisecond))
	app := model.NewApp(model.AbsolutePathId("/app"), time.Now(), model.Resources{CPUs: 1}, "*", model.Container{})
	q.Add(app, 1)
	q.Remove(app.ID())
	assert.Empty(t, q.Snapshot())
}
