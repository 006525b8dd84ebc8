package deadlinequeue

import "time"

// QueueItem is anything that can be scheduled in a DeadlineQueue. The
// queue assigns and reads back Index for its own heap bookkeeping;
// callers should not interpret it.
type QueueItem interface {
	Index() int
	SetIndex(i int)
	Deadline() time.Time
	SetDeadline(deadline time.Time)
}

// priorityQueue is a container/heap.Interface ordering QueueItems by
// Deadline, earliest first.
type priorityQueue []QueueItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	return pq[i].Deadline().Before(pq[j].Deadline())
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].SetIndex(i)
	pq[j].SetIndex(j)
}

func (pq *priorityQueue) Push(x interface{}) {
	item := x.(QueueItem)
	item.SetIndex(len(*pq))
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.SetIndex(-1)
	*pq = old[:n-1]
	return item
}

// NextDeadline returns the earliest deadline in the queue. Callers
// must only invoke this when Len() > 0.
func (pq priorityQueue) NextDeadline() time.Time {
	return pq[0].Deadline()
}
