package offer

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marathon-mesos/marathon/lifecycle"
)

// Pruner periodically removes expired offers from a Pool so a stalled
// host doesn't hold offers indefinitely.
type Pruner interface {
	Start()
	Stop()
}

// NewPruner returns a Pruner that calls pool.RemoveExpiredOffers every
// period.
func NewPruner(pool Pool, period time.Duration, log logrus.FieldLogger) Pruner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &pruner{pool: pool, period: period, lc: lifecycle.New(), log: log}
}

type pruner struct {
	pool   Pool
	period time.Duration
	lc     lifecycle.LifeCycle
	log    logrus.FieldLogger
}

func (p *pruner) Start() {
	if !p.lc.Start() {
		p.log.Warn("offer pruner already running")
		return
	}
	go func() {
		defer p.lc.StopComplete()
		ticker := time.NewTicker(p.period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				expired := p.pool.RemoveExpiredOffers()
				if len(expired) > 0 {
					p.log.WithField("count", len(expired)).Debug("pruned expired offers")
				}
			case <-p.lc.StopCh():
				return
			}
		}
	}()
}

func (p *pruner) Stop() {
	p.lc.Stop()
	p.lc.Wait()
}
