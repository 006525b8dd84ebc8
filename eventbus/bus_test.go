package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := New(4, nil)
	sub := bus.Subscribe()
	defer sub.Close()

	bus.Publish(Event{Name: InstanceChangedEvent, Payload: InstanceChangedEventPayload{InstanceID: "i1"}})

	select {
	case evt := <-sub.Events:
		assert.Equal(t, InstanceChangedEvent, evt.Name)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishDropsOldestWhenFull(t *testing.T) {
	bus := New(1, nil)
	sub := bus.Subscribe()
	defer sub.Close()

	bus.Publish(Event{Name: "first"})
	bus.Publish(Event{Name: "second"})

	evt := <-sub.Events
	assert.Equal(t, "second", evt.Name)
}

func TestCloseUnsubscribes(t *testing.T) {
	bus := New(1, nil)
	sub := bus.Subscribe()
	assert.Equal(t, 1, bus.SubscriberCount())
	sub.Close()
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestClampMessageTruncatesLongMessages(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, ClampMessage(string(long)), 120)
	assert.Equal(t, "short", ClampMessage("short"))
}
