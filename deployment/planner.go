// Package deployment diffs a current group tree against a target one,
// builds a dependency-respecting plan of idempotent steps, and
// executes it with resumable, capacity-gated steps (spec.md §4.5).
package deployment

import (
	"fmt"
	"math"
	"sort"

	"github.com/marathon-mesos/marathon/model"
)

// Plan diffs current against target and returns the deployment plan
// needed to carry the group tree from one to the other, or nil if
// they are identical. id is the caller-supplied plan id (e.g. a uuid)
// used for locking and persistence.
func Plan(id string, current, target *model.Group) (*model.DeploymentPlan, error) {
	var currentSpecs map[model.AbsolutePathId]model.RunSpec
	if current != nil {
		currentSpecs = current.AllRunSpecs()
	}
	targetSpecs := target.AllRunSpecs()

	kinds := make(map[model.AbsolutePathId]model.DeploymentStepKind)
	for id, spec := range targetSpecs {
		cur, existed := currentSpecs[id]
		switch {
		case !existed:
			kinds[id] = model.StepStartRunSpec
		case cur.StableHash() != spec.StableHash():
			kinds[id] = model.StepRestartRunSpec
		case cur.Instances() != spec.Instances():
			kinds[id] = model.StepScaleRunSpec
		}
	}
	for id := range currentSpecs {
		if _, stillExists := targetSpecs[id]; !stillExists {
			kinds[id] = model.StepStopRunSpec
		}
	}
	if len(kinds) == 0 {
		return nil, nil
	}

	groupEdges := groupDependencyEdges(target)
	for dep, ids := range groupDependencyEdges(current) {
		groupEdges[dep] = append(groupEdges[dep], ids...)
	}

	order, err := topoSort(kinds, targetSpecs, currentSpecs, groupEdges)
	if err != nil {
		return nil, err
	}

	plan := &model.DeploymentPlan{
		ID:            id,
		TargetGroup:   model.ToGroupSnapshot(target),
		TargetVersion: target.Version,
	}
	if current != nil {
		plan.OriginalGroup = model.ToGroupSnapshot(current)
		plan.OriginalVersion = current.Version
	}
	primaryIndex := make(map[model.AbsolutePathId]int)

	for _, runSpecID := range order {
		kind := kinds[runSpecID]
		deps := dependenciesOf(runSpecID, targetSpecs, currentSpecs)
		deps = append(deps, groupEdges[runSpecID]...)
		var dependsOn []int
		for _, dep := range deps {
			if idx, ok := primaryIndex[dep]; ok {
				dependsOn = append(dependsOn, idx)
			}
		}

		if kind == model.StepRestartRunSpec {
			primaryIndex[runSpecID] = appendRollingRestart(plan, runSpecID, targetSpecs[runSpecID], dependsOn)
			plan.AffectedIDs = append(plan.AffectedIDs, runSpecID)
			continue
		}

		step := model.DeploymentStep{Kind: kind, RunSpecID: runSpecID, DependsOn: dependsOn}
		if spec, ok := targetSpecs[runSpecID]; ok && kind != model.StepStopRunSpec {
			step.TargetScale = spec.Instances()
		}
		plan.Steps = append(plan.Steps, step)
		primaryIndex[runSpecID] = len(plan.Steps) - 1
		plan.AffectedIDs = append(plan.AffectedIDs, runSpecID)

		if needsReadinessCheck(kind, targetSpecs[runSpecID]) {
			plan.Steps = append(plan.Steps, model.DeploymentStep{
				Kind:      model.StepReadinessCheck,
				RunSpecID: runSpecID,
				DependsOn: []int{len(plan.Steps) - 1},
			})
		}
	}
	return plan, nil
}

func needsReadinessCheck(kind model.DeploymentStepKind, spec model.RunSpec) bool {
	if kind != model.StepStartRunSpec {
		return false
	}
	return spec != nil && len(spec.HealthChecks()) > 0
}

// appendRollingRestart appends the batched launch/readiness-check/stop
// sequence spec.md §4.5 specifies for a restart: grow the live set by
// one over-capacity batch of new-version instances at a time, wait for
// minimumHealthCapacity before retiring the same number of old-version
// instances, and repeat until every old instance is replaced. Returns
// the index of the sequence's final step, for dependents to key off of.
func appendRollingRestart(plan *model.DeploymentPlan, runSpecID model.AbsolutePathId, spec model.RunSpec, dependsOn []int) int {
	target := spec.Instances()
	batch := restartBatchSize(spec.UpgradeStrategy().MaximumOverCapacity, target)

	lastIdx := -1
	for remaining := target; remaining > 0; remaining -= batch {
		n := batch
		if n > remaining {
			n = remaining
		}

		launchDeps := dependsOn
		if lastIdx >= 0 {
			launchDeps = []int{lastIdx}
		}
		plan.Steps = append(plan.Steps, model.DeploymentStep{
			Kind: model.StepLaunchBatch, RunSpecID: runSpecID, BatchSize: n, DependsOn: launchDeps,
		})
		launchIdx := len(plan.Steps) - 1

		plan.Steps = append(plan.Steps, model.DeploymentStep{
			Kind: model.StepReadinessCheck, RunSpecID: runSpecID, DependsOn: []int{launchIdx},
		})
		readyIdx := len(plan.Steps) - 1

		plan.Steps = append(plan.Steps, model.DeploymentStep{
			Kind: model.StepStopBatch, RunSpecID: runSpecID, BatchSize: n, DependsOn: []int{readyIdx},
		})
		lastIdx = len(plan.Steps) - 1
	}
	return lastIdx
}

// restartBatchSize converts a run spec's maximumOverCapacity fraction
// into a concrete per-round batch count, always at least 1 (so a spec
// with the zero-value UpgradeStrategy still makes progress, one
// instance at a time) and never more than target itself.
func restartBatchSize(maximumOverCapacity float64, target int) int {
	if target <= 0 {
		return 1
	}
	n := int(math.Ceil(maximumOverCapacity * float64(target)))
	if n < 1 {
		n = 1
	}
	if n > target {
		n = target
	}
	return n
}

func dependenciesOf(id model.AbsolutePathId, target, current map[model.AbsolutePathId]model.RunSpec) []model.AbsolutePathId {
	if spec, ok := target[id]; ok {
		return spec.Dependencies()
	}
	if spec, ok := current[id]; ok {
		return spec.Dependencies()
	}
	return nil
}

// groupDependencyEdges resolves root's group-level Dependencies (the
// sibling-group ordering edges model.ValidateTree also walks) into
// run-spec-to-run-spec edges: every run spec under a group depends on
// every run spec under each group it declares as a dependency. This is
// how a plan honors group-level ordering (e.g. group /db before group
// /api) when neither group's apps set an explicit app-to-app
// Dependencies field (spec.md §4.5).
func groupDependencyEdges(root *model.Group) map[model.AbsolutePathId][]model.AbsolutePathId {
	edges := make(map[model.AbsolutePathId][]model.AbsolutePathId)
	if root == nil {
		return edges
	}
	subtrees := make(map[model.AbsolutePathId]map[model.AbsolutePathId]bool)
	root.Walk(func(g *model.Group) {
		set := make(map[model.AbsolutePathId]bool)
		for id := range g.AllRunSpecs() {
			set[id] = true
		}
		subtrees[g.ID] = set
	})
	for id, g := range root.AllGroups() {
		if len(g.Dependencies) == 0 {
			continue
		}
		for rsID := range subtrees[id] {
			for _, depGroup := range g.Dependencies {
				for depID := range subtrees[depGroup] {
					edges[rsID] = append(edges[rsID], depID)
				}
			}
		}
	}
	return edges
}

// topoSort orders the affected run spec ids so that every id's
// dependencies (app-level as declared on the relevant spec, plus
// group-level via groupEdges) come first. A deterministic tie-break
// (lexical id order) keeps plan output stable across identical diffs.
func topoSort(affected map[model.AbsolutePathId]model.DeploymentStepKind, target, current map[model.AbsolutePathId]model.RunSpec, groupEdges map[model.AbsolutePathId][]model.AbsolutePathId) ([]model.AbsolutePathId, error) {
	ids := make([]model.AbsolutePathId, 0, len(affected))
	for id := range affected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[model.AbsolutePathId]int, len(ids))
	var order []model.AbsolutePathId

	var visit func(id model.AbsolutePathId) error
	visit = func(id model.AbsolutePathId) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("deployment: dependency cycle detected at %q", id)
		}
		color[id] = gray
		deps := dependenciesOf(id, target, current)
		deps = append(deps, groupEdges[id]...)
		for _, dep := range deps {
			if _, inScope := affected[dep]; !inScope {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[id] = black
		order = append(order, id)
		return nil
	}

	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}
