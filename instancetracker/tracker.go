// Package instancetracker is the single-writer actor that owns every
// instance's live state, serializing all mutation through a bounded
// mailbox so no lock is needed around the in-memory map (spec.md §3,
// §4.3).
package instancetracker

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marathon-mesos/marathon/eventbus"
	"github.com/marathon-mesos/marathon/lifecycle"
	"github.com/marathon-mesos/marathon/mesosapi"
	"github.com/marathon-mesos/marathon/model"
	"github.com/marathon-mesos/marathon/queue"
	"github.com/marathon-mesos/marathon/repository"
)

const defaultMailboxCapacity = 4096
const defaultNumParallelUpdates = 4
const defaultQueryTimeout = 5 * time.Second
const dequeueWait = 250 * time.Millisecond

// persistJob is one unit of asynchronous persistence work handed off
// by the run loop after applying an op, so that a slow store write
// for one instance never blocks the mailbox from processing the next
// op for a different instance (spec.md §5).
type persistJob struct {
	kind     EffectKind
	instance *model.Instance
}

// Tracker owns the authoritative in-memory view of every instance.
// All reads and writes to the in-memory map happen on its single
// run-loop goroutine; persistence is fanned out to a bounded pool of
// worker goroutines so it never holds that loop up.
type Tracker struct {
	mailbox   queue.Mailbox
	instances map[string]*model.Instance

	repo          *repository.InstanceRepository
	bus           *eventbus.Bus
	log           logrus.FieldLogger
	lc            lifecycle.LifeCycle
	queryTimeout  time.Duration

	persistCh []chan persistJob
	persistWG sync.WaitGroup
}

// New returns a Tracker with an empty cache. Call Recover before
// Start to reload persisted instances after a scheduler restart.
// updateQueueSize bounds the op mailbox (instanceTrackerUpdateQueueSize),
// numParallelUpdates sizes the asynchronous persistence worker pool
// (instanceTrackerNumParallelUpdates), and queryTimeout bounds how long
// Get/List/submit wait for the single writer to answer
// (instanceTrackerQueryTimeout). Zero values fall back to defaults.
func New(repo *repository.InstanceRepository, bus *eventbus.Bus, log logrus.FieldLogger, updateQueueSize, numParallelUpdates int, queryTimeout time.Duration) *Tracker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if updateQueueSize <= 0 {
		updateQueueSize = defaultMailboxCapacity
	}
	if numParallelUpdates <= 0 {
		numParallelUpdates = defaultNumParallelUpdates
	}
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	t := &Tracker{
		mailbox:      queue.New("instance-tracker", updateQueueSize),
		instances:    make(map[string]*model.Instance),
		repo:         repo,
		bus:          bus,
		log:          log,
		lc:           lifecycle.New(),
		queryTimeout: queryTimeout,
		persistCh:    make([]chan persistJob, numParallelUpdates),
	}
	for i := range t.persistCh {
		t.persistCh[i] = make(chan persistJob, updateQueueSize)
	}
	return t
}

// Recover reloads every persisted instance into the cache. Must be
// called before Start, from the goroutine constructing the Tracker.
func (t *Tracker) Recover(ctx context.Context) error {
	instances, err := t.repo.List(ctx)
	if err != nil {
		return err
	}
	for _, inst := range instances {
		t.instances[inst.InstanceID] = inst
	}
	t.log.WithField("count", len(instances)).Info("instance tracker: recovered instances")
	return nil
}

// Start launches the run-loop goroutine and the persistence worker
// pool.
func (t *Tracker) Start() {
	if !t.lc.Start() {
		t.log.Warn("instance tracker already running")
		return
	}
	for i, ch := range t.persistCh {
		t.persistWG.Add(1)
		go t.runPersistWorker(i, ch)
	}
	go t.run()
}

// Stop signals the run loop to exit, then drains and stops every
// persistence worker.
func (t *Tracker) Stop() {
	t.lc.Stop()
	t.lc.Wait()
	for _, ch := range t.persistCh {
		close(ch)
	}
	t.persistWG.Wait()
}

func (t *Tracker) run() {
	defer t.lc.StopComplete()
	for {
		select {
		case <-t.lc.StopCh():
			return
		default:
		}
		item, err := t.mailbox.Dequeue(dequeueWait)
		if err != nil {
			continue
		}
		o := item.(op)
		effect := o.apply(t)
		o.reply() <- effect
		t.handleEffect(effect)
	}
}

// handleEffect hands an applied effect off to its instance's
// persistence worker without waiting for the write to land, so the
// single writer above is free to dequeue the next op immediately
// (spec.md §5). Every instance id hashes to the same worker, so
// updates for one instance are still persisted in the order they were
// applied.
func (t *Tracker) handleEffect(effect Effect) {
	if effect.Kind == EffectNoop || effect.Instance == nil {
		return
	}
	worker := t.persistCh[workerIndex(effect.Instance.InstanceID, len(t.persistCh))]
	select {
	case worker <- persistJob{kind: effect.Kind, instance: effect.Instance}:
	case <-t.lc.StopCh():
	}
}

func (t *Tracker) runPersistWorker(id int, ch <-chan persistJob) {
	defer t.persistWG.Done()
	for job := range ch {
		t.persist(job)
	}
}

func (t *Tracker) persist(job persistJob) {
	ctx := context.Background()
	switch job.kind {
	case EffectUpdate:
		if _, err := t.repo.Store(ctx, job.instance); err != nil {
			t.log.WithError(err).WithField("instance", job.instance.InstanceID).
				Error("instance tracker: failed to persist instance")
		}
		t.bus.Publish(eventbus.Event{
			Name: eventbus.InstanceChangedEvent,
			Payload: eventbus.InstanceChangedEventPayload{
				InstanceID: job.instance.InstanceID,
				RunSpecID:  string(job.instance.RunSpecID),
				Timestamp:  time.Now(),
			},
		})
	case EffectExpunge:
		if err := t.repo.Delete(ctx, job.instance.InstanceID); err != nil {
			t.log.WithError(err).WithField("instance", job.instance.InstanceID).
				Error("instance tracker: failed to delete instance")
		}
		t.bus.Publish(eventbus.Event{
			Name: eventbus.InstanceChangedEvent,
			Payload: eventbus.InstanceChangedEventPayload{
				InstanceID: job.instance.InstanceID,
				RunSpecID:  string(job.instance.RunSpecID),
				Expunged:   true,
				Timestamp:  time.Now(),
			},
		})
	}
}

// workerIndex picks a stable persistence worker for instanceID so
// every update to the same instance serializes through one worker
// while different instances persist in parallel.
func workerIndex(instanceID string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(instanceID))
	return int(h.Sum32() % uint32(n))
}

// submit enqueues o and blocks for its Effect, bounded by the
// tracker's query timeout so a stalled writer surfaces as a logged
// timeout and an EffectNoop result instead of hanging its caller
// forever; the op itself still runs to completion in the run loop once
// dequeued. A full mailbox also yields EffectNoop.
func (t *Tracker) submit(o op) Effect {
	if err := t.mailbox.Enqueue(o); err != nil {
		return Effect{Kind: EffectNoop}
	}
	select {
	case effect := <-o.reply():
		return effect
	case <-time.After(t.queryTimeout):
		t.log.Warn("instance tracker: submit timed out waiting for reply")
		return Effect{Kind: EffectNoop}
	}
}

// Schedule registers a newly created instance.
func (t *Tracker) Schedule(instance *model.Instance) Effect {
	return t.submit(&scheduleOp{opBase: newOpBase(), instance: instance})
}

// StatusUpdate folds a broker task status update into its instance.
func (t *Tracker) StatusUpdate(instanceID, taskID string, status mesosapi.TaskStatus) Effect {
	return t.submit(&statusUpdateOp{opBase: newOpBase(), instanceID: instanceID, taskID: taskID, status: status, now: time.Now()})
}

// SetGoal changes an instance's desired end state.
func (t *Tracker) SetGoal(instanceID string, goal model.Goal) Effect {
	return t.submit(&goalUpdateOp{opBase: newOpBase(), instanceID: instanceID, goal: goal, now: time.Now()})
}

// Expunge force-removes an instance.
func (t *Tracker) Expunge(instanceID string) Effect {
	return t.submit(&expungeOp{opBase: newOpBase(), instanceID: instanceID})
}

// Provision records that the launcher is about to send an ACCEPT for
// this instance's offer, moving it from Scheduled to Provisioned
// before the accept is actually sent (spec.md §4.4 step 2).
func (t *Tracker) Provision(instanceID string) Effect {
	return t.submit(&provisionOp{opBase: newOpBase(), instanceID: instanceID, now: time.Now()})
}

// RevertToScheduled undoes a Provision after the accept failed to
// send, moving the instance back to Scheduled and bumping its task's
// incarnation so the next placement attempt is distinguishable from
// the failed one (spec.md §4.4 step 2).
func (t *Tracker) RevertToScheduled(instanceID, taskID string) Effect {
	return t.submit(&revertToScheduledOp{opBase: newOpBase(), instanceID: instanceID, taskID: taskID, now: time.Now()})
}

// listOp snapshots every tracked instance; like every other read it
// is serialized through the mailbox so it never races the run loop's
// map mutations.
type listOp struct {
	opBase
	result []*model.Instance
}

func (o *listOp) apply(t *Tracker) Effect {
	o.result = make([]*model.Instance, 0, len(t.instances))
	for _, inst := range t.instances {
		o.result = append(o.result, inst)
	}
	return Effect{Kind: EffectNoop}
}

// List returns a snapshot of every tracked instance, serialized
// through the mailbox like every other read and bounded by the
// tracker's query timeout.
func (t *Tracker) List() []*model.Instance {
	o := &listOp{opBase: newOpBase()}
	if err := t.mailbox.Enqueue(o); err != nil {
		return nil
	}
	select {
	case <-o.reply():
		return o.result
	case <-time.After(t.queryTimeout):
		t.log.Warn("instance tracker: List timed out waiting for reply")
		return nil
	}
}

// Get returns one instance by id, or nil if untracked or the query
// times out.
func (t *Tracker) Get(instanceID string) *model.Instance {
	o := &getInstanceOp{opBase: newOpBase(), instanceID: instanceID}
	if err := t.mailbox.Enqueue(o); err != nil {
		return nil
	}
	select {
	case <-o.reply():
		return o.result
	case <-time.After(t.queryTimeout):
		t.log.Warn("instance tracker: Get timed out waiting for reply")
		return nil
	}
}

type getInstanceOp struct {
	opBase
	instanceID string
	result     *model.Instance
}

func (o *getInstanceOp) apply(t *Tracker) Effect {
	o.result = t.instances[o.instanceID]
	return Effect{Kind: EffectNoop}
}
