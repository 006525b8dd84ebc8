// Package leader implements ZooKeeper-backed leader election for the
// scheduler process: exactly one replica campaigns successfully and
// is allowed to register with Mesos, accept offers, and launch tasks;
// the rest sit as standbys and can observe who currently holds
// leadership (spec.md §4.6).
package leader

import (
	"errors"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/docker/leadership"
	"github.com/docker/libkv/store"
	"github.com/docker/libkv/store/zookeeper"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
)

const (
	ttl                = 15 * time.Second
	zkConnErrRetry     = 1 * time.Second
	metricsUpdateTick  = 10 * time.Second
)

// ElectionConfig configures the ZooKeeper ensemble and path root
// leader election runs under.
type ElectionConfig struct {
	ZKServers []string `yaml:"zk_servers"`
	Root      string   `yaml:"root"`
}

type election struct {
	sync.Mutex
	metrics    electionMetrics
	running    bool
	role       string
	candidate  *leadership.Candidate
	nomination Nomination
	stopChan   chan struct{}
}

// NewCandidate builds a Candidate that campaigns for role under cfg's
// ZooKeeper path, invoking nomination's callbacks on transitions.
func NewCandidate(cfg ElectionConfig, parent tally.Scope, role string, nomination Nomination) (Candidate, error) {
	if role == "" {
		return nil, errors.New("leader: role must not be empty")
	}

	client, err := zookeeper.New(cfg.ZKServers, &store.Config{ConnectionTimeout: zkConnErrRetry})
	if err != nil {
		return nil, err
	}
	candidate := leadership.NewCandidate(client, leaderZkPath(cfg.Root, role), nomination.GetID(), ttl)

	scope := parent.SubScope("election")
	hostname, err := os.Hostname()
	if err != nil {
		return nil, err
	}

	el := &election{
		metrics:    newElectionMetrics(scope, hostname),
		role:       role,
		nomination: nomination,
		candidate:  candidate,
		stopChan:   make(chan struct{}, 1),
	}
	return el, nil
}

func (el *election) updateLeaderElectionMetrics(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-el.stopChan:
			return
		case <-ticker.C:
			if el.IsLeader() {
				el.metrics.IsLeader.Update(1)
			} else {
				el.metrics.IsLeader.Update(0)
			}
		}
	}
}

// Start begins campaigning for leadership in the background. It
// handles ZK connection errors by retrying waitForEvent until Stop is
// called.
func (el *election) Start() error {
	el.Lock()
	defer el.Unlock()
	if el.running {
		return errors.New("leader: election already running")
	}
	el.running = true
	el.metrics.Start.Inc(1)
	el.metrics.Running.Update(1)

	log.WithField("role", el.role).Info("joining election")
	go func() {
		for el.running {
			if err := el.waitForEvent(); err != nil {
				log.WithField("role", el.role).WithError(err).Error("election error, retrying")
			}
			time.Sleep(zkConnErrRetry)
		}
	}()
	go el.updateLeaderElectionMetrics(metricsUpdateTick)

	return nil
}

func (el *election) waitForEvent() error {
	electionCh, errCh := el.candidate.RunForElection()

	for {
		select {
		case isElected := <-electionCh:
			if isElected {
				log.WithField("role", el.role).Info("leadership gained")
				el.metrics.GainedLeadership.Inc(1)
				el.metrics.IsLeader.Update(1)
				if err := el.nomination.GainedLeadershipCallback(); err != nil {
					log.WithField("role", el.role).WithError(err).Error("gained-leadership callback failed")
					return err
				}
			} else {
				log.WithField("role", el.role).Info("leadership lost")
				el.metrics.LostLeadership.Inc(1)
				el.metrics.IsLeader.Update(0)
				if err := el.nomination.LostLeadershipCallback(); err != nil {
					log.WithField("role", el.role).WithError(err).Error("lost-leadership callback failed")
					return err
				}
			}
		case err := <-errCh:
			if err != nil {
				log.WithField("role", el.role).WithError(err).Error("error participating in election")
				el.metrics.Error.Inc(1)
				return err
			}
			return nil
		}
	}
}

// Stop withdraws from the election and invokes the shutdown callback.
// Must not be called more than once.
func (el *election) Stop() error {
	el.Lock()
	defer el.Unlock()
	if el.running {
		el.stopChan <- struct{}{}
		el.running = false
		el.metrics.Stop.Inc(1)
		el.metrics.Running.Update(0)
		el.candidate.Stop()
		go el.Resign()
	}
	return el.nomination.ShutDownCallback()
}

func (el *election) Resign() {
	el.metrics.Resigned.Inc(1)
	el.candidate.Resign()
}

func (el *election) IsLeader() bool {
	el.Lock()
	defer el.Unlock()
	return el.running && el.candidate.IsLeader()
}

func leaderZkPath(rootPath, role string) string {
	return strings.TrimPrefix(path.Join(rootPath, role, "leader"), "/")
}
