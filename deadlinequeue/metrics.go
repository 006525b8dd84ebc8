package deadlinequeue

import "github.com/uber-go/tally"

// QueueMetrics contains the counters a DeadlineQueue reports.
type QueueMetrics struct {
	queueLength   tally.Gauge
	queuePopDelay tally.Timer
}

// NewQueueMetrics builds QueueMetrics under scope.
func NewQueueMetrics(scope tally.Scope) *QueueMetrics {
	queueScope := scope.SubScope("deadline_queue")
	return &QueueMetrics{
		queueLength:   queueScope.Gauge("length"),
		queuePopDelay: queueScope.Timer("pop_delay"),
	}
}
