package scalar

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContains(t *testing.T) {
	big := Resources{CPUs: 4, MemMB: 4096, DiskMB: 10240, GPUs: 0}
	small := Resources{CPUs: 1, MemMB: 512, DiskMB: 1024}
	assert.True(t, big.Contains(small))
	assert.False(t, small.Contains(big))
}

func TestTrySubtractInsufficient(t *testing.T) {
	r := Resources{CPUs: 0.5}
	_, ok := r.TrySubtract(Resources{CPUs: 1})
	assert.False(t, ok)
}

func TestTrySubtractOK(t *testing.T) {
	r := Resources{CPUs: 1, MemMB: 100}
	got, ok := r.TrySubtract(Resources{CPUs: 0.4, MemMB: 20})
	assert.True(t, ok)
	assert.InDelta(t, 0.6, got.CPUs, 1e-9)
	assert.InDelta(t, 80, got.MemMB, 1e-9)
}

func TestAtomicAddSubtractConcurrentSafe(t *testing.T) {
	var a Atomic
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			a.Add(Resources{CPUs: 1})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	assert.InDelta(t, 10, a.Get().CPUs, 1e-9)
}
