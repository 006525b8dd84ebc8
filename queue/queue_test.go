package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMailboxEnqueueDequeueOrdered(t *testing.T) {
	m := New("test", 4)
	assert.NoError(t, m.Enqueue("a"))
	assert.NoError(t, m.Enqueue("b"))
	assert.Equal(t, 2, m.Len())

	item, err := m.Dequeue(time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, "a", item)
}

func TestMailboxFullReturnsError(t *testing.T) {
	m := New("test", 1)
	assert.NoError(t, m.Enqueue("a"))
	err := m.Enqueue("b")
	assert.ErrorAs(t, err, &FullError{})
}

func TestMailboxDequeueTimesOut(t *testing.T) {
	m := New("test", 1)
	_, err := m.Dequeue(time.Millisecond)
	assert.ErrorAs(t, err, &DequeueTimeoutError{})
}
