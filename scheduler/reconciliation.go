package scheduler

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marathon-mesos/marathon/lifecycle"
	"github.com/marathon-mesos/marathon/mesosapi"
	"github.com/marathon-mesos/marathon/model"
)

// instanceLister is the subset of instancetracker.Tracker
// Reconciler needs to enumerate live task ids.
type instanceLister interface {
	List() []*model.Instance
}

// Reconciler periodically asks the broker to resend the current state
// of every non-terminal task this scheduler is tracking, so a task
// whose terminal status update was lost in transit (broker restart,
// network partition) doesn't leave its instance stuck Running
// forever (spec.md §4.6).
type Reconciler struct {
	driver mesosapi.SchedulerDriver
	lister instanceLister
	period time.Duration
	lc     lifecycle.LifeCycle
	log    logrus.FieldLogger
}

// NewReconciler builds a Reconciler that runs ReconcileTasks every
// period while started.
func NewReconciler(driver mesosapi.SchedulerDriver, lister instanceLister, period time.Duration, log logrus.FieldLogger) *Reconciler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reconciler{driver: driver, lister: lister, period: period, lc: lifecycle.New(), log: log}
}

// Start launches the reconciliation ticker loop.
func (r *Reconciler) Start() {
	if !r.lc.Start() {
		return
	}
	go r.run()
}

// Stop halts the ticker loop and blocks until it has exited.
func (r *Reconciler) Stop() {
	r.lc.Stop()
	r.lc.Wait()
}

func (r *Reconciler) run() {
	defer r.lc.StopComplete()
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()
	for {
		select {
		case <-r.lc.StopCh():
			return
		case <-ticker.C:
			r.reconcileOnce()
		}
	}
}

func (r *Reconciler) reconcileOnce() {
	var taskIDs []string
	for _, inst := range r.lister.List() {
		if inst.State.Condition.Terminal() {
			continue
		}
		for _, task := range inst.Tasks {
			taskIDs = append(taskIDs, task.TaskID)
		}
	}
	if len(taskIDs) == 0 {
		return
	}
	if err := r.driver.ReconcileTasks(taskIDs); err != nil {
		r.log.WithError(err).Error("scheduler: reconciliation request failed")
		return
	}
	r.log.WithField("count", len(taskIDs)).Debug("scheduler: requested reconciliation")
}
