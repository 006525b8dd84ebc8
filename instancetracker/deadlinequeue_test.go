package instancetracker

import (
	"github.com/uber-go/tally"

	"github.com/marathon-mesos/marathon/deadlinequeue"
)

func newTestDeadlineQueue() deadlinequeue.DeadlineQueue {
	return deadlinequeue.NewDeadlineQueue(deadlinequeue.NewQueueMetrics(tally.NoopScope))
}
