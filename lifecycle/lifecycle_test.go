package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStartStopIdempotent(t *testing.T) {
	lc := New()
	assert.True(t, lc.Start())
	assert.False(t, lc.Start())
	assert.True(t, lc.Stop())
	assert.False(t, lc.Stop())
}

func TestWaitUnblocksOnStopComplete(t *testing.T) {
	lc := New()
	lc.Start()
	done := make(chan struct{})
	go func() {
		<-lc.StopCh()
		lc.StopComplete()
		close(done)
	}()
	lc.Stop()
	lc.Wait()
	<-done
}
