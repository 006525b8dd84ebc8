package leader

import (
	"errors"
	"sync"
	"time"

	"github.com/docker/leadership"
	"github.com/docker/libkv/store"
	"github.com/docker/libkv/store/zookeeper"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
)

type observer struct {
	sync.Mutex
	metrics  observerMetrics
	follower *leadership.Follower
	role     string
	callback func(string) error
	leader   string
	running  bool
}

// NewObserver builds an Observer that watches role's leader node and
// invokes newLeaderCallback whenever it changes, without itself
// campaigning.
func NewObserver(cfg ElectionConfig, scope tally.Scope, role string, newLeaderCallback func(string) error) (Observer, error) {
	client, err := zookeeper.New(cfg.ZKServers, &store.Config{ConnectionTimeout: zkConnErrRetry})
	if err != nil {
		return nil, err
	}
	return &observer{
		role:     role,
		metrics:  newObserverMetrics(scope, role),
		callback: newLeaderCallback,
		follower: leadership.NewFollower(client, leaderZkPath(cfg.Root, role)),
	}, nil
}

func (o *observer) Start() error {
	o.Lock()
	defer o.Unlock()
	if o.running {
		return errors.New("leader: observer already running")
	}
	o.running = true
	o.metrics.Start.Inc(1)
	o.metrics.Running.Update(1)

	go func() {
		for o.running {
			if err := o.waitForEvent(); err != nil {
				log.WithField("role", o.role).WithError(err).Error("observer error, retrying")
			}
			time.Sleep(zkConnErrRetry)
		}
	}()
	return nil
}

func (o *observer) Stop() {
	o.Lock()
	defer o.Unlock()
	if o.running {
		o.follower.Stop()
		o.running = false
		o.metrics.Stop.Inc(1)
		o.metrics.Running.Update(0)
	}
}

func (o *observer) CurrentLeader() (string, error) {
	o.Lock()
	defer o.Unlock()
	if !o.running {
		return "", errors.New("leader: observer is not running")
	}
	return o.leader, nil
}

func (o *observer) waitForEvent() error {
	leaderCh, errCh := o.follower.FollowElection()
	for {
		select {
		case newLeader := <-leaderCh:
			o.Lock()
			log.WithField("role", o.role).WithField("leader", newLeader).Info("new leader observed")
			o.metrics.LeaderChanged.Inc(1)
			o.leader = newLeader
			err := o.callback(newLeader)
			o.Unlock()
			if err != nil {
				log.WithField("role", o.role).WithError(err).Error("new-leader callback failed")
			}
		case err := <-errCh:
			log.WithField("role", o.role).WithError(err).Error("error following election")
			o.metrics.Error.Inc(1)
			return err
		}
	}
}
