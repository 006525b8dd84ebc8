package model

import "time"

// DeploymentStepKind tags the kind of idempotent action a deployment
// step performs (spec.md §4.5). Tagged variants over one struct, in
// keeping with how Constraint and UnreachableStrategy are modeled,
// rather than a polymorphic Step interface.
type DeploymentStepKind int

const (
	StepStartRunSpec DeploymentStepKind = iota
	StepScaleRunSpec
	// StepRestartRunSpec is retained for DeploymentStepKind's String
	// table and any persisted plan that still carries it from before
	// restarts were batched, but the planner no longer emits it: a
	// restart is now a StepLaunchBatch/StepReadinessCheck/StepStopBatch
	// sequence (spec.md §4.5's rolling upgrade algorithm).
	StepRestartRunSpec
	StepStopRunSpec
	StepReadinessCheck
	// StepLaunchBatch launches BatchSize new-version instances without
	// touching any old-version instance, growing the live set toward
	// target + maximumOverCapacity*target.
	StepLaunchBatch
	// StepStopBatch stops BatchSize old-version instances once the
	// preceding StepReadinessCheck confirms the new instances already
	// launched meet minimumHealthCapacity.
	StepStopBatch
)

func (k DeploymentStepKind) String() string {
	switch k {
	case StepStartRunSpec:
		return "StartRunSpec"
	case StepScaleRunSpec:
		return "ScaleRunSpec"
	case StepRestartRunSpec:
		return "RestartRunSpec"
	case StepStopRunSpec:
		return "StopRunSpec"
	case StepReadinessCheck:
		return "ReadinessCheck"
	case StepLaunchBatch:
		return "LaunchBatch"
	case StepStopBatch:
		return "StopBatch"
	default:
		return "Unknown"
	}
}

// DeploymentStep is one node of a deployment plan's dependency DAG,
// flattened into topological order once computed.
type DeploymentStep struct {
	Kind          DeploymentStepKind `json:"kind"`
	RunSpecID     AbsolutePathId     `json:"run_spec_id"`
	TargetScale   int                `json:"target_scale,omitempty"`
	BatchSize     int                `json:"batch_size,omitempty"`
	DependsOn     []int              `json:"depends_on,omitempty"` // indices into Plan.Steps
	Done          bool               `json:"done"`
}

// DeploymentPlan is the resumable, topologically ordered sequence of
// steps that carries a group tree from its original state to a target
// state (spec.md §3, §4.5). Plans are locked per RunSpecID while
// executing so two plans never race on the same run spec.
//
// A plan holds references to both the original and target root
// versions for as long as it is in flight: the garbage collector must
// never reap anything either root still reaches, since the plan may
// still need to compare against or roll back to the original (spec.md
// §3's GC-safety invariant).
type DeploymentPlan struct {
	ID              string           `json:"id"`
	Version         time.Time        `json:"version"`
	OriginalGroup   GroupSnapshot    `json:"original_group"`
	OriginalVersion time.Time        `json:"original_version"`
	TargetGroup     GroupSnapshot    `json:"target_group"`
	TargetVersion   time.Time        `json:"target_version"`
	AffectedIDs     []AbsolutePathId `json:"affected_ids"`
	Steps           []DeploymentStep `json:"steps"`
	CreatedAt       time.Time        `json:"created_at"`
}

// NextPending returns the index of the first step that is not yet
// Done and whose dependencies are all Done, or -1 if the plan is
// either complete or blocked on an in-flight dependency.
func (p *DeploymentPlan) NextPending() int {
	for i, step := range p.Steps {
		if step.Done {
			continue
		}
		ready := true
		for _, dep := range step.DependsOn {
			if dep >= 0 && dep < len(p.Steps) && !p.Steps[dep].Done {
				ready = false
				break
			}
		}
		if ready {
			return i
		}
	}
	return -1
}

// Complete reports whether every step in the plan is Done.
func (p *DeploymentPlan) Complete() bool {
	for _, step := range p.Steps {
		if !step.Done {
			return false
		}
	}
	return true
}
