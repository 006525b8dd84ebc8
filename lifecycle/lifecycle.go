// Package lifecycle manages start/stop signaling for the scheduler's
// background loops (offer pruning, unreachable-instance escalation,
// task reconciliation, the instance tracker's run loop).
package lifecycle

import "sync"

// LifeCycle manages the start/stop lifecycle of a background
// goroutine:
//
//	lc := lifecycle.New()
//	lc.Start()
//	go func() {
//		defer lc.StopComplete()
//		select {
//		case <-lc.StopCh():
//			return
//		}
//	}()
//	lc.Stop() // returns immediately; call lc.Wait() to block for exit
type LifeCycle interface {
	// Start is idempotent; returns false if already started.
	Start() bool
	// Stop is idempotent; returns false if already stopped.
	Stop() bool
	// StopComplete is called by the owned goroutine once it has
	// finished tearing down, unblocking Wait.
	StopComplete()
	// StopCh closes when Stop is called.
	StopCh() <-chan struct{}
	// Wait blocks until StopComplete is called.
	Wait()
}

type lifeCycle struct {
	sync.RWMutex
	stopCh         chan struct{}
	stopCompleteCh chan struct{}
}

// New returns a LifeCycle that has not yet been started.
func New() LifeCycle {
	return &lifeCycle{stopCompleteCh: make(chan struct{}, 1)}
}

func (l *lifeCycle) Start() bool {
	l.Lock()
	defer l.Unlock()
	if l.stopCh != nil {
		return false
	}
	l.stopCh = make(chan struct{})
	return true
}

func (l *lifeCycle) Stop() bool {
	l.Lock()
	defer l.Unlock()
	if l.stopCh == nil {
		return false
	}
	close(l.stopCh)
	l.stopCh = nil
	return true
}

func (l *lifeCycle) StopCh() <-chan struct{} {
	l.RLock()
	defer l.RUnlock()
	if l.stopCh == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return l.stopCh
}

func (l *lifeCycle) StopComplete() {
	l.RLock()
	defer l.RUnlock()
	select {
	case l.stopCompleteCh <- struct{}{}:
	default:
	}
}

func (l *lifeCycle) Wait() {
	<-l.stopCompleteCh
}
