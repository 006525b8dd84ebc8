// Package main is the scheduler process entrypoint: it parses flags
// and YAML configuration, wires storage, the instance tracker, offer
// matching, the launch queue, deployment execution, leader election,
// and the Mesos scheduler adapter together, then blocks until
// shutdown (spec.md §1, §6).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/marathon-mesos/marathon/backoff"
	"github.com/marathon-mesos/marathon/config"
	"github.com/marathon-mesos/marathon/deadlinequeue"
	"github.com/marathon-mesos/marathon/deployment"
	"github.com/marathon-mesos/marathon/eventbus"
	"github.com/marathon-mesos/marathon/instancetracker"
	"github.com/marathon-mesos/marathon/launcher"
	"github.com/marathon-mesos/marathon/launchqueue"
	"github.com/marathon-mesos/marathon/leader"
	"github.com/marathon-mesos/marathon/logging"
	"github.com/marathon-mesos/marathon/mesosapi"
	"github.com/marathon-mesos/marathon/metrics"
	"github.com/marathon-mesos/marathon/model"
	"github.com/marathon-mesos/marathon/offer"
	"github.com/marathon-mesos/marathon/repository"
	"github.com/marathon-mesos/marathon/scheduler"
)

var (
	version string

	app = kingpin.New("marathon-scheduler", "Marathon Mesos scheduler")

	debug          = app.Flag("debug", "enable debug logging").Short('d').Default("false").Bool()
	configs        = app.Flag("config", "YAML scheduler configuration (repeatable; later files override earlier ones)").Short('c').Required().ExistingFiles()
	logJSON        = app.Flag("log-json", "log in JSON format").Default("true").Bool()
	zkServers      = app.Flag("election-zk-server", "leader election ZooKeeper server (repeatable) (election.zk_servers override)").Envar("ELECTION_ZK_SERVERS").Strings()
	httpPort       = app.Flag("http-port", "port this process's metrics/health endpoint listens on (http_port override)").Envar("HTTP_PORT").Int()
	storageZKHosts = app.Flag("storage-zk-server", "persistent storage ZooKeeper server (repeatable) (storage.zookeeper.hosts override)").Envar("STORAGE_ZK_SERVERS").Strings()
)

// newSchedulerDriver is the seam between the core and the Mesos wire
// transport. Constructing a mesosapi.SchedulerDriver means speaking
// the Mesos HTTP scheduler API, which spec.md §1 places explicitly out
// of scope for this module; callers compile this binary against a
// driver implementation of their choosing and assign it here before
// dependencies that need it are built.
var newSchedulerDriver func(cfg *config.SchedulerConfig, log logrus.FieldLogger) (mesosapi.SchedulerDriver, error)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))
	logging.Init(*debug, *logJSON)
	log := logrus.StandardLogger()

	var cfg config.SchedulerConfig
	if err := config.Parse(&cfg, *configs...); err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	applyFlagOverrides(&cfg)

	if newSchedulerDriver == nil {
		log.Fatal("no mesosapi.SchedulerDriver constructor registered; link a driver implementation into this binary")
	}
	driver, err := newSchedulerDriver(&cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to construct scheduler driver")
	}

	rootScope, closer, mux := metrics.InitMetricScope(&cfg.Metrics, "marathon", time.Second)
	defer closer.Close()

	store, err := newStore(&cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize storage")
	}

	instances := repository.NewInstanceRepository(store)
	deployments := repository.NewDeploymentRepository(store)
	frameworks := repository.NewFrameworkRepository(store)
	groups := repository.NewGroupRepository(store)
	gc := repository.NewGC(instances, deployments, log)

	bus := eventbus.New(1024, log)

	tracker := instancetracker.New(instances, bus, log,
		cfg.InstanceTracker.UpdateQueueSize, cfg.InstanceTracker.NumParallelUpdates, cfg.InstanceTracker.QueryTimeout)
	ctx := context.Background()
	if err := tracker.Recover(ctx); err != nil {
		log.WithError(err).Fatal("failed to recover instance state")
	}
	tracker.Start()
	defer tracker.Stop()

	specFor := func(id model.AbsolutePathId) model.RunSpec {
		g, err := groups.Load(ctx)
		if err != nil || g == nil {
			return nil
		}
		return g.AllRunSpecs()[id]
	}

	dq := deadlinequeue.NewDeadlineQueue(deadlinequeue.NewQueueMetrics(rootScope.SubScope("unreachable")))
	defaultUnreachable := model.UnreachableStrategy{
		Kind:          model.UnreachableEnabled,
		InactiveAfter: time.Duration(cfg.Unreachable.InactiveAfterSeconds) * time.Second,
		ExpungeAfter:  time.Duration(cfg.Unreachable.ExpungeAfterSeconds) * time.Second,
	}
	unreachable := instancetracker.NewUnreachableEscalator(tracker, func(id model.AbsolutePathId) model.UnreachableStrategy {
		if spec := specFor(id); spec != nil {
			return spec.UnreachableStrategy()
		}
		return defaultUnreachable
	}, dq, log)
	unreachable.Start()
	defer unreachable.Stop()

	pool := offer.NewPool(cfg.Offer.OfferHoldTime, offer.NewMetrics(rootScope), log)
	pruner := offer.NewPruner(pool, cfg.Offer.OfferHoldTime, log)
	pruner.Start()
	defer pruner.Stop()

	policy := backoff.NewExponentialPolicy(
		time.Duration(cfg.Backoff.DefaultBackoffSeconds*float64(time.Second)),
		time.Duration(cfg.Backoff.MaxLaunchDelaySeconds*float64(time.Second)),
		cfg.Backoff.DefaultBackoffFactor,
	)
	queue := launchqueue.New(policy)

	launch := launcher.New(pool, queue, tracker, driver, log)
	// reservations releases a decommissioned resident instance's
	// reservation once its resources reappear in an offer; the
	// scheduler adapter marks an instance for release as soon as the
	// tracker reports its terminal status, and ResourceOffers below
	// drives Reconcile against every offer batch.
	reservations := launcher.NewReservationManager(tracker, driver, log)

	hostname, _ := os.Hostname()
	id, err := leader.NewID(hostname, *httpPort, version)
	if err != nil {
		log.WithError(err).Fatal("failed to build election id")
	}

	adapter := scheduler.New(id, driver, pool, launch, tracker, frameworks, reservations, queue, specFor, bus, log)
	reconciler := scheduler.NewReconciler(driver, tracker, cfg.Reconciliation.Interval, log)

	locks := deployment.NewLocks()
	minimumHealthCapacity := func(id model.AbsolutePathId) float64 {
		if spec := specFor(id); spec != nil {
			return spec.UpgradeStrategy().MinimumHealthCapacity
		}
		return cfg.Deployment.DefaultMinimumHealthCapacity
	}
	runner := deployment.NewLaunchQueueRunner(queue, tracker, minimumHealthCapacity, log)
	// executor is driven by the HTTP deployment-submission API (out of
	// scope here): it calls executor.Start with each new plan and
	// executor.Step as runSpec state changes come in over bus.
	executor := deployment.NewExecutor(locks, deployments, bus, runner, specFor, log)
	_ = executor

	candidate, err := leader.NewCandidate(cfg.Election, rootScope, "scheduler", adapter)
	if err != nil {
		log.WithError(err).Fatal("failed to build leader candidate")
	}
	if err := candidate.Start(); err != nil {
		log.WithError(err).Fatal("failed to start leader election")
	}
	defer candidate.Stop()
	reconciler.Start()
	defer reconciler.Stop()

	gcStop := make(chan struct{})
	go runGC(gc, groups, cfg.Storage.CompactionInterval, gcStop)
	defer close(gcStop)

	srv := &http.Server{Addr: fmt.Sprintf(":%d", *httpPort), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics/health server exited")
		}
	}()

	waitForShutdown(log)
	srv.Shutdown(context.Background())
}

func newStore(cfg *config.SchedulerConfig, log logrus.FieldLogger) (repository.Store, error) {
	if len(cfg.Storage.ZK.ZKServers) == 0 {
		log.Warn("no storage.zookeeper.zk_servers configured; using in-memory storage (state does not survive a restart)")
		return repository.NewInMemoryStore(), nil
	}
	return repository.NewZKStore(cfg.Storage.ZK)
}

func applyFlagOverrides(cfg *config.SchedulerConfig) {
	if len(*zkServers) > 0 {
		cfg.Election.ZKServers = *zkServers
	}
	if len(*storageZKHosts) > 0 {
		cfg.Storage.ZK.ZKServers = *storageZKHosts
	}
}

func runGC(gc *repository.GC, groups *repository.GroupRepository, interval time.Duration, stop chan struct{}) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			root, err := groups.Load(context.Background())
			if err != nil {
				gc.Log.WithError(err).Warn("gc: failed to load group root")
				continue
			}
			if _, err := gc.Run(context.Background(), root); err != nil {
				gc.Log.WithError(err).Warn("gc: run failed")
			}
		case <-stop:
			return
		}
	}
}

func waitForShutdown(log logrus.FieldLogger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.WithField("signal", sig).Info("shutting down")
}
