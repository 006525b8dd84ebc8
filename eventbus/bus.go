// Package eventbus is the scheduler's in-process publish/subscribe
// hub: every state change the instance tracker and deployment
// executor produce is published here, and HTTP SSE/webhook listeners
// subscribe to the events they care about (spec.md §6). It is a
// plain, protobuf-free pub/sub hub scoped to what an in-process Go
// consumer needs.
package eventbus

import (
	"sync"

	"github.com/pborman/uuid"
	"github.com/sirupsen/logrus"
)

// Event is one published occurrence: Name identifies the kind (see
// the *Event constants), Payload is one of the typed *EventPayload
// structs.
type Event struct {
	Name    string
	Payload interface{}
}

// Subscription is a registered listener's bounded inbox. Consumers
// range over Events until Close is called.
type Subscription struct {
	ID     string
	Events <-chan Event
	bus    *Bus
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s.ID)
}

// Bus fans published events out to every current subscriber. Slow
// subscribers drop their oldest buffered event rather than block the
// publisher, since publishers run on the tracker/executor's hot path.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	bufferSize  int
	log         logrus.FieldLogger
}

// New returns an empty Bus whose per-subscriber buffers hold
// bufferSize events before dropping the oldest.
func New(bufferSize int, log logrus.FieldLogger) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Bus{subscribers: make(map[string]chan Event), bufferSize: bufferSize, log: log}
}

// Subscribe registers a new listener and returns its Subscription.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewUUID().String()
	ch := make(chan Event, b.bufferSize)
	b.subscribers[id] = ch
	return &Subscription{ID: id, Events: ch, bus: b}
}

func (b *Bus) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

// Publish fans out event to every current subscriber. A subscriber
// whose buffer is full has its oldest event dropped to make room,
// logged at Warn so persistent backpressure is visible.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
				b.log.WithFields(logrus.Fields{"subscriber": id, "event": event.Name}).
					Warn("eventbus: dropping event, subscriber buffer full")
			}
		}
	}
}

// SubscriberCount reports how many listeners are currently attached.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
