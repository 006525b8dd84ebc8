// Package launchqueue tracks, per run spec, how many more instances
// need to be placed and the backoff delay to apply after a failure,
// feeding the offer matcher's placement loop (spec.md §4.1).
package launchqueue

import (
	"sync"
	"time"

	"github.com/marathon-mesos/marathon/backoff"
	"github.com/marathon-mesos/marathon/model"
	"github.com/marathon-mesos/marathon/offer"
)

// Entry is one run spec's outstanding launch backlog.
type Entry struct {
	RunSpecID model.AbsolutePathId
	RunSpec   model.RunSpec
	Backlog   int
	InFlight  int

	// LastMatchResult and LastMatchAt are the primary reason and
	// timestamp of the most recent placement attempt for this run
	// spec, success or failure, exposed as a statistic over the HTTP
	// API (spec.md §4.2, §4.3).
	LastMatchResult offer.MatchResult
	LastMatchAt     time.Time

	backoffUntil time.Time
	retrier      backoff.Retrier
}

// Ready reports whether this entry's backoff window has passed and it
// still has backlog to place.
func (e *Entry) Ready(now time.Time) bool {
	return e.Backlog > 0 && !now.Before(e.backoffUntil)
}

// Queue is the in-memory launch backlog for every run spec with
// pending instances, consulted by the placement loop on every offer
// cycle.
type Queue struct {
	mu      sync.Mutex
	entries map[model.AbsolutePathId]*Entry
	policy  backoff.RetryPolicy
}

// New returns an empty Queue applying policy's backoff after each
// reported failure.
func New(policy backoff.RetryPolicy) *Queue {
	return &Queue{entries: make(map[model.AbsolutePathId]*Entry), policy: policy}
}

// Add increases runSpec's backlog by delta (delta may be negative to
// shrink it on scale-down), creating the entry if necessary.
func (q *Queue) Add(runSpec model.RunSpec, delta int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[runSpec.ID()]
	if !ok {
		e = &Entry{RunSpecID: runSpec.ID(), RunSpec: runSpec, retrier: backoff.NewRetrier(q.policy)}
		q.entries[runSpec.ID()] = e
	}
	e.RunSpec = runSpec
	e.Backlog += delta
	if e.Backlog < 0 {
		e.Backlog = 0
	}
}

// MarkLaunched records one fewer pending instance and one more
// in-flight, called once the launcher has accepted an offer for it.
func (q *Queue) MarkLaunched(id model.AbsolutePathId) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.entries[id]; ok {
		if e.Backlog > 0 {
			e.Backlog--
		}
		e.InFlight++
		e.retrier.Reset()
	}
}

// MarkFailed records a launch or task failure for id, applying the
// next backoff delay before it becomes Ready again.
func (q *Queue) MarkFailed(id model.AbsolutePathId, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return
	}
	if e.InFlight > 0 {
		e.InFlight--
	}
	delay := e.retrier.NextBackOff()
	if delay > 0 {
		e.backoffUntil = now.Add(delay)
	}
}

// ReleaseInFlight decrements the in-flight counter without touching
// backoff, called when a launched instance reaches Running.
func (q *Queue) ReleaseInFlight(id model.AbsolutePathId) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.entries[id]; ok && e.InFlight > 0 {
		e.InFlight--
	}
}

// RecordMatchResult stores the primary match/no-match reason from the
// most recent placement attempt for id, so it's available as a live
// statistic without needing the offer pool to remember anything past
// its own claim (spec.md §4.3).
func (q *Queue) RecordMatchResult(id model.AbsolutePathId, result offer.MatchResult, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.entries[id]; ok {
		e.LastMatchResult = result
		e.LastMatchAt = now
	}
}

// Remove drops id entirely, e.g. when its run spec is deleted.
func (q *Queue) Remove(id model.AbsolutePathId) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, id)
}

// ReadyEntries returns a snapshot of every entry with backlog whose
// backoff window has passed, ordered by nothing in particular; the
// placement loop is responsible for its own prioritization.
func (q *Queue) ReadyEntries(now time.Time) []*Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*Entry, 0, len(q.entries))
	for _, e := range q.entries {
		if e.Ready(now) {
			snapshot := *e
			out = append(out, &snapshot)
		}
	}
	return out
}
