package repository

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/marathon-mesos/marathon/model"
)

// GC reaps instances and deployment plans no longer reachable from
// any live reference, keeping the store's size proportional to live
// state rather than all history (spec.md §3 invariants).
type GC struct {
	Instances   *InstanceRepository
	Deployments *DeploymentRepository
	Log         logrus.FieldLogger
}

// NewGC builds a GC over the given repositories. A nil logger installs
// logrus's standard logger.
func NewGC(instances *InstanceRepository, deployments *DeploymentRepository, log logrus.FieldLogger) *GC {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &GC{Instances: instances, Deployments: deployments, Log: log}
}

// Run reaps:
//   - instances whose RunSpecID is no longer present in root, unless
//     the instance still has a live (non-terminal) task or an active
//     reservation, in which case it is left for the launcher to drain
//     first;
//   - deployment plans whose affected run spec ids are all gone from
//     root and whose plan is marked Complete.
//
// It returns the number of keys deleted.
func (g *GC) Run(ctx context.Context, root *model.Group) (int, error) {
	live := map[model.AbsolutePathId]bool{}
	if root != nil {
		for id := range root.AllRunSpecs() {
			live[id] = true
		}
	}

	deleted := 0

	plans, err := g.Deployments.List(ctx)
	if err != nil {
		return deleted, err
	}

	// An in-flight plan holds its original and target roots live even
	// if the current root has since moved past either of them: the
	// executor may still need to diff against the original, and the
	// plan isn't done proving out the target (spec.md §3's GC-safety
	// invariant).
	for _, plan := range plans {
		if plan.Complete() {
			continue
		}
		for id := range model.FromGroupSnapshot(plan.OriginalGroup).AllRunSpecs() {
			live[id] = true
		}
		for id := range model.FromGroupSnapshot(plan.TargetGroup).AllRunSpecs() {
			live[id] = true
		}
	}

	instances, err := g.Instances.List(ctx)
	if err != nil {
		return deleted, err
	}
	for _, inst := range instances {
		if live[inst.RunSpecID] {
			continue
		}
		if g.instanceStillActive(inst) {
			continue
		}
		if err := g.Instances.Delete(ctx, inst.InstanceID); err != nil {
			return deleted, err
		}
		g.Log.WithField("instance", inst.InstanceID).Info("gc: reaped orphaned instance")
		deleted++
	}

	for _, plan := range plans {
		if !plan.Complete() {
			continue
		}
		stillAffects := false
		for _, id := range plan.AffectedIDs {
			if live[id] {
				stillAffects = true
				break
			}
		}
		if stillAffects {
			continue
		}
		if err := g.Deployments.Delete(ctx, plan.ID); err != nil {
			return deleted, err
		}
		g.Log.WithField("deployment", plan.ID).Info("gc: reaped completed plan")
		deleted++
	}

	return deleted, nil
}

func (g *GC) instanceStillActive(inst *model.Instance) bool {
	if !inst.State.Condition.Terminal() {
		return true
	}
	if inst.Reservation != nil && inst.Reservation.State != model.ReservationNew {
		return true
	}
	return false
}
