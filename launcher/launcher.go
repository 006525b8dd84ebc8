// Package launcher turns launch-queue backlog into Mesos ACCEPT
// operations: it claims offers from the pool, builds instances and
// tasks for the instance tracker, and issues Launch/Reserve/
// CreateVolume operations through the SchedulerDriver (spec.md §4.4).
package launcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pborman/uuid"
	"github.com/sirupsen/logrus"

	"github.com/marathon-mesos/marathon/constraints"
	"github.com/marathon-mesos/marathon/instancetracker"
	"github.com/marathon-mesos/marathon/launchqueue"
	"github.com/marathon-mesos/marathon/mesosapi"
	"github.com/marathon-mesos/marathon/model"
	"github.com/marathon-mesos/marathon/offer"
	"github.com/marathon-mesos/marathon/reservation"
	"github.com/marathon-mesos/marathon/scalar"
)

// Launcher drains launchqueue.Queue entries against offer.Pool and
// drives the instance tracker and reservation manager accordingly.
type Launcher struct {
	pool    offer.Pool
	queue   *launchqueue.Queue
	tracker Tracker
	driver  mesosapi.SchedulerDriver
	log     logrus.FieldLogger

	filterRefuseSeconds float64

	placementMu     sync.Mutex
	placementStates map[model.AbsolutePathId]*constraints.PlacementState
}

// Tracker is the subset of instancetracker.Tracker the launcher needs,
// declared locally so this package does not need the concrete type
// for tests.
type Tracker interface {
	Schedule(instance *model.Instance) instancetracker.Effect
	Provision(instanceID string) instancetracker.Effect
	RevertToScheduled(instanceID, taskID string) instancetracker.Effect
}

// New builds a Launcher driving driver on behalf of pool and queue.
func New(pool offer.Pool, q *launchqueue.Queue, tracker Tracker, driver mesosapi.SchedulerDriver, log logrus.FieldLogger) *Launcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Launcher{
		pool: pool, queue: q, tracker: tracker, driver: driver, log: log,
		filterRefuseSeconds: 5,
		placementStates:     make(map[model.AbsolutePathId]*constraints.PlacementState),
	}
}

// placementStateFor returns the per-run-spec placement memory that
// accumulates CLUSTER pins and UNIQUE/GROUP_BY/MAX_PER counts across
// successive placements of the same run spec, creating it on first
// use.
func (l *Launcher) placementStateFor(runSpecID model.AbsolutePathId) *constraints.PlacementState {
	l.placementMu.Lock()
	defer l.placementMu.Unlock()
	state, ok := l.placementStates[runSpecID]
	if !ok {
		state = constraints.NewPlacementState()
		l.placementStates[runSpecID] = state
	}
	return state
}

// RunOnce drains every ready launch-queue entry once, attempting to
// place and launch one instance per entry per call. The scheduler
// adapter calls this on every ResourceOffers callback.
func (l *Launcher) RunOnce(ctx context.Context) {
	now := time.Now()
	for _, entry := range l.queue.ReadyEntries(now) {
		l.placeOne(ctx, entry)
	}
}

func (l *Launcher) placeOne(ctx context.Context, entry *launchqueue.Entry) {
	req := offer.PlacementRequest{
		Resources:   scalar.FromModel(entry.RunSpec.Resources()),
		Role:        entry.RunSpec.Role(),
		Constraints: entry.RunSpec.Constraints(),
		State:       l.placementStateFor(entry.RunSpecID),
	}
	hostname, offers, err := l.pool.ClaimForPlace(req)
	if err != nil {
		var noMatch *offer.NoMatchError
		reason := offer.OfferExhausted
		if errors.As(err, &noMatch) {
			reason = noMatch.Reason
		}
		l.queue.RecordMatchResult(entry.RunSpecID, reason, time.Now())
		l.log.WithField("run_spec", entry.RunSpecID).WithField("reason", reason).
			Debug("launcher: no matching offer this cycle")
		return
	}
	l.queue.RecordMatchResult(entry.RunSpecID, offer.MatchSuccess, time.Now())

	instanceID := fmt.Sprintf("%s.%s", sanitize(string(entry.RunSpecID)), uuid.NewUUID().String())
	taskID := instanceID + ".1"

	inst := &model.Instance{
		InstanceID:     instanceID,
		RunSpecID:      entry.RunSpecID,
		RunSpecVersion: entry.RunSpec.Version(),
		Agent:          model.AgentInfo{Host: hostname},
		State:          model.InstanceState{Condition: model.Scheduled, Goal: model.GoalRunning, Timestamp: time.Now()},
		Tasks:          map[string]*model.Task{taskID: {TaskID: taskID}},
		ScheduledAt:    time.Now(),
	}
	if entry.RunSpec.Residency() != nil {
		inst.Reservation = reservation.NewReservation(req.Resources, nil)
	}

	l.tracker.Schedule(inst)

	offerIDs := make([]string, 0, len(offers))
	for id := range offers {
		offerIDs = append(offerIDs, id)
	}
	ops := l.buildOperations(instanceID, taskID, entry.RunSpec, req.Resources)

	// Record Provisioned intent before sending the accept so a crash
	// between here and the broker's reply still leaves a durable trace
	// of what was about to be launched (spec.md §4.4 step 2).
	l.tracker.Provision(instanceID)

	if err := l.driver.AcceptOffers(offerIDs, ops, l.filterRefuseSeconds); err != nil {
		l.log.WithError(err).WithField("instance", instanceID).Error("launcher: accept offers failed")
		l.tracker.RevertToScheduled(instanceID, taskID)
		l.pool.ReturnUnusedOffers(hostname)
		l.queue.MarkFailed(entry.RunSpecID, time.Now())
		return
	}
	if _, err := l.pool.ClaimForLaunch(hostname); err != nil {
		l.log.WithError(err).Error("launcher: claim for launch failed after accept")
	}
	l.queue.MarkLaunched(entry.RunSpecID)
}

func (l *Launcher) buildOperations(instanceID, taskID string, runSpec model.RunSpec, res scalar.Resources) []mesosapi.Operation {
	resident := runSpec.Residency() != nil
	mesosRes := mesosapi.Resources{CPUs: res.CPUs, MemMB: res.MemMB, DiskMB: res.DiskMB, GPUs: res.GPUs}

	var ops []mesosapi.Operation
	if resident {
		ops = append(ops, mesosapi.Operation{Type: mesosapi.OpReserve, InstanceID: instanceID, Resources: mesosRes})
		for _, v := range runSpec.Volumes() {
			ops = append(ops, mesosapi.Operation{
				Type:       mesosapi.OpCreateVolume,
				InstanceID: instanceID,
				VolumeID:   instanceID + "-" + v.ContainerPath,
				VolumePath: v.ContainerPath,
			})
		}
	}
	ops = append(ops, mesosapi.Operation{Type: mesosapi.OpLaunch, InstanceID: instanceID, TaskID: taskID, Resources: mesosRes})
	return ops
}

func sanitize(id string) string {
	out := make([]byte, 0, len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c == '/' {
			if len(out) > 0 {
				out = append(out, '.')
			}
			continue
		}
		out = append(out, c)
	}
	return string(out)
}
