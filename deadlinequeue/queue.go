// Package deadlinequeue implements a heap-ordered queue of items
// keyed by an expiry deadline, used to drive the instance tracker's
// unreachable-instance escalation ticker (spec.md §4.3) without
// polling.
package deadlinequeue

import (
	"container/heap"
	"sync"
	"time"
)

// DeadlineQueue enqueues items with a deadline and dequeues them once
// that deadline passes.
type DeadlineQueue interface {
	// Enqueue schedules qi for deadline. If qi is already scheduled for
	// an earlier deadline, the call is a no-op.
	Enqueue(qi QueueItem, deadline time.Time)
	// Dequeue blocks until an item's deadline expires or stopChan is
	// closed, in which case it returns nil.
	Dequeue(stopChan <-chan struct{}) QueueItem
}

// NewDeadlineQueue builds an empty DeadlineQueue reporting to mtx.
func NewDeadlineQueue(mtx *QueueMetrics) DeadlineQueue {
	q := &deadlineQueue{
		pq:           &priorityQueue{},
		queueChanged: make(chan struct{}, 1),
		mtx:          mtx,
	}
	heap.Init(q.pq)
	return q
}

type deadlineQueue struct {
	sync.RWMutex

	pq           *priorityQueue
	queueChanged chan struct{}
	mtx          *QueueMetrics
}

func (q *deadlineQueue) nextDeadline() time.Time {
	if q.pq.Len() == 0 {
		return time.Time{}
	}
	return q.pq.NextDeadline()
}

func (q *deadlineQueue) popIfReady() QueueItem {
	if q.pq.Len() == 0 {
		return nil
	}
	qi := heap.Pop(q.pq).(QueueItem)
	q.mtx.queuePopDelay.Record(time.Since(qi.Deadline()))
	qi.SetDeadline(time.Time{})
	q.mtx.queueLength.Update(float64(q.pq.Len()))
	return qi
}

func (q *deadlineQueue) update(item QueueItem) {
	if item.Index() == -1 {
		if item.Deadline().IsZero() {
			return
		}
		heap.Push(q.pq, item)
		q.mtx.queueLength.Update(float64(q.pq.Len()))
		return
	}
	if item.Deadline().IsZero() {
		heap.Remove(q.pq, item.Index())
		q.mtx.queueLength.Update(float64(q.pq.Len()))
		return
	}
	heap.Fix(q.pq, item.Index())
}

func (q *deadlineQueue) Enqueue(qi QueueItem, deadline time.Time) {
	q.Lock()
	defer q.Unlock()

	if !qi.Deadline().IsZero() && !deadline.Before(qi.Deadline()) {
		return
	}
	qi.SetDeadline(deadline)
	q.update(qi)
	select {
	case q.queueChanged <- struct{}{}:
	default:
	}
}

func (q *deadlineQueue) Dequeue(stopChan <-chan struct{}) QueueItem {
	for {
		q.RLock()
		deadline := q.nextDeadline()
		q.RUnlock()

		var timer *time.Timer
		var timerChan <-chan time.Time
		if !deadline.IsZero() {
			timer = time.NewTimer(time.Until(deadline))
			timerChan = timer.C
		}

		select {
		case <-timerChan:
			q.Lock()
			r := q.popIfReady()
			q.Unlock()
			if r != nil {
				if timer != nil {
					timer.Stop()
				}
				return r
			}
		case <-q.queueChanged:
		case <-stopChan:
			if timer != nil {
				timer.Stop()
			}
			return nil
		}

		if timer != nil {
			timer.Stop()
		}
	}
}
