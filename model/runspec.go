// Package model defines the declarative group/app/pod tree: the
// types Marathon accepts from its caller and validates before a
// deployment plan is ever computed.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// RunSpec is the abstract declarative description of a workload. App
// and Pod are its two variants.
type RunSpec interface {
	// ID is the absolute, slash-delimited, case-preserving path of this
	// spec within the group tree, e.g. "/payments/api".
	ID() AbsolutePathId
	// Version is the timestamp at which this revision of the spec was
	// accepted.
	Version() time.Time
	// Resources is the per-instance resource request.
	Resources() Resources
	// Role is the Mesos role this spec launches under.
	Role() string
	// AcceptedResourceRoles lists the resource roles an offer must
	// intersect with for this spec to be eligible.
	AcceptedResourceRoles() []string
	// Constraints lists the placement constraints that must hold for
	// every instance of this spec.
	Constraints() []Constraint
	// Instances is the desired instance count.
	Instances() int
	// Dependencies lists sibling RunSpec ids that must be healthy
	// before this spec's instances are started during a deployment.
	Dependencies() []AbsolutePathId
	// UpgradeStrategy governs how many old/new instances may coexist
	// during a restart.
	UpgradeStrategy() UpgradeStrategy
	// UnreachableStrategy governs how long an unreachable instance is
	// tolerated before it is treated as gone.
	UnreachableStrategy() UnreachableStrategy
	// Residency is non-nil for resident (stateful) specs.
	Residency() *Residency
	// Volumes lists persistent/external/ephemeral/host volumes.
	Volumes() []Volume
	// HealthChecks lists the health checks run against instances.
	HealthChecks() []HealthCheck
	// StableHash is a content hash of the spec's normalized fields,
	// used by the deployment planner to distinguish "changed" specs
	// from specs whose only difference is instance count.
	StableHash() string
}

// AbsolutePathId is a slash-delimited, case-preserving group/app/pod
// identifier, always rooted at "/".
type AbsolutePathId string

// Resources is the scalar resource request of a RunSpec.
type Resources struct {
	CPUs float64
	MemMB float64
	DiskMB float64
	GPUs float64
}

// UpgradeStrategy bounds how many old/new instances may coexist during
// a restart.
type UpgradeStrategy struct {
	MinimumHealthCapacity float64
	MaximumOverCapacity   float64
}

// UnreachableStrategyKind distinguishes disabled unreachable handling
// from the timed escalation variant.
type UnreachableStrategyKind int

const (
	// UnreachableDisabled never escalates an unreachable instance; it
	// is the default for resident apps (see DESIGN.md Open Questions).
	UnreachableDisabled UnreachableStrategyKind = iota
	// UnreachableEnabled lets the unreachable escalator move a watched
	// instance from Unreachable to UnreachableInactive; it is the
	// default for non-resident apps. ExpungeAfter is carried on the
	// strategy but nothing expunges an instance when it elapses.
	UnreachableEnabled
)

// UnreachableStrategy governs the unreachable-instance escalation
// ticker described in spec.md §4.1.
type UnreachableStrategy struct {
	Kind          UnreachableStrategyKind
	InactiveAfter time.Duration
	ExpungeAfter  time.Duration
}

// DefaultUnreachableStrategy returns the strategy a RunSpec should use
// when it does not declare one explicitly, per the resident/non-resident
// split called out as an Open Question in spec.md §9.
func DefaultUnreachableStrategy(resident bool, inactiveAfter, expungeAfter time.Duration) UnreachableStrategy {
	if resident {
		return UnreachableStrategy{Kind: UnreachableDisabled}
	}
	return UnreachableStrategy{
		Kind:          UnreachableEnabled,
		InactiveAfter: inactiveAfter,
		ExpungeAfter:  expungeAfter,
	}
}

// Residency marks a RunSpec as resident: its instances carry a
// reservation and at least one persistent volume that must survive
// task restarts.
type Residency struct {
	// RelaunchEscalationTimeout bounds how long a lost resident task
	// waits before its reservation is escalated per
	// residencyTaskLostBehavior.
	RelaunchEscalationTimeout time.Duration
	TaskLostBehavior          TaskLostBehavior
}

// TaskLostBehavior controls what happens to a resident task's
// reservation when its task is reported lost.
type TaskLostBehavior int

const (
	// WaitForever never relaunches a lost resident task automatically.
	WaitForever TaskLostBehavior = iota
	// RelaunchAfterTimeout relaunches against the existing reservation
	// once RelaunchEscalationTimeout elapses.
	RelaunchAfterTimeout
)

// VolumeKind distinguishes the four volume flavors a RunSpec may
// declare.
type VolumeKind int

const (
	PersistentVolume VolumeKind = iota
	ExternalVolume
	EphemeralVolume
	HostVolume
)

// Volume is a single volume descriptor attached to a RunSpec.
type Volume struct {
	Kind          VolumeKind
	ContainerPath string
	SizeMB        int64
	// HostPath is set only for HostVolume.
	HostPath string
	// ExternalName/Provider are set only for ExternalVolume.
	ExternalName     string
	ExternalProvider string
}

// HealthCheck is a single health check a RunSpec's tasks must pass to
// be considered healthy.
type HealthCheck struct {
	Protocol           string
	Path               string
	Port               int
	IntervalSeconds    int
	TimeoutSeconds     int
	GracePeriodSeconds int
	MaxConsecutiveFailures int
}

// baseSpec holds the fields common to App and Pod.
type baseSpec struct {
	id                  AbsolutePathId
	version             time.Time
	resources           Resources
	role                string
	acceptedResourceRoles []string
	constraints         []Constraint
	instances           int
	dependencies        []AbsolutePathId
	upgradeStrategy     UpgradeStrategy
	unreachableStrategy UnreachableStrategy
	residency           *Residency
	volumes             []Volume
	healthChecks        []HealthCheck
}

func (b *baseSpec) ID() AbsolutePathId                    { return b.id }
func (b *baseSpec) Version() time.Time                    { return b.version }
func (b *baseSpec) Resources() Resources                  { return b.resources }
func (b *baseSpec) Role() string                          { return b.role }
func (b *baseSpec) AcceptedResourceRoles() []string       { return b.acceptedResourceRoles }
func (b *baseSpec) Constraints() []Constraint             { return b.constraints }
func (b *baseSpec) Instances() int                        { return b.instances }
func (b *baseSpec) Dependencies() []AbsolutePathId        { return b.dependencies }
func (b *baseSpec) UpgradeStrategy() UpgradeStrategy       { return b.upgradeStrategy }
func (b *baseSpec) UnreachableStrategy() UnreachableStrategy { return b.unreachableStrategy }
func (b *baseSpec) Residency() *Residency                 { return b.residency }
func (b *baseSpec) Volumes() []Volume                     { return b.volumes }
func (b *baseSpec) HealthChecks() []HealthCheck           { return b.healthChecks }

// SetInstances sets the desired instance count.
func (b *baseSpec) SetInstances(n int) { b.instances = n }

// SetConstraints replaces the placement constraints.
func (b *baseSpec) SetConstraints(c []Constraint) { b.constraints = c }

// SetDependencies replaces the run spec's dependency list.
func (b *baseSpec) SetDependencies(d []AbsolutePathId) { b.dependencies = d }

// SetHealthChecks replaces the run spec's health checks.
func (b *baseSpec) SetHealthChecks(h []HealthCheck) { b.healthChecks = h }

// SetUpgradeStrategy replaces the run spec's restart capacity/health
// bounds.
func (b *baseSpec) SetUpgradeStrategy(s UpgradeStrategy) { b.upgradeStrategy = s }

// Container describes the single task image/command of an App, or one
// member task of a Pod.
type Container struct {
	Name  string
	Image string
	Cmd   string
	Args  []string
	Fetch []string
}

// App is a RunSpec variant describing a single task per instance.
type App struct {
	baseSpec
	Container Container
}

// NewApp constructs an App. It performs no validation; ValidateTree
// checks a whole group tree.
func NewApp(id AbsolutePathId, version time.Time, resources Resources, role string, container Container) *App {
	return &App{
		baseSpec: baseSpec{
			id:                    id,
			version:               version,
			resources:             resources,
			role:                  role,
			acceptedResourceRoles: []string{role},
		},
		Container: container,
	}
}

// StableHash hashes the fields that, if changed, make this a
// "changed" spec rather than a merely "scaled" one for deployment
// diffing purposes (spec.md §4.5).
func (a *App) StableHash() string {
	h := sha256.New()
	fmt.Fprintf(h, "app|%s|%s|%s|%v|%v|%s",
		a.id, a.role, a.Container.Image, a.Container.Cmd, a.resources, constraintsKey(a.constraints))
	return hex.EncodeToString(h.Sum(nil))
}

// Pod is a RunSpec variant describing a coscheduled group of tasks
// sharing one instance's lifecycle.
type Pod struct {
	baseSpec
	Containers []Container
}

// NewPod constructs a Pod. It performs no validation.
func NewPod(id AbsolutePathId, version time.Time, resources Resources, role string, containers []Container) *Pod {
	return &Pod{
		baseSpec: baseSpec{
			id:                    id,
			version:               version,
			resources:             resources,
			role:                  role,
			acceptedResourceRoles: []string{role},
		},
		Containers: containers,
	}
}

// StableHash hashes the fields that, if changed, make this a
// "changed" spec rather than a merely "scaled" one.
func (p *Pod) StableHash() string {
	h := sha256.New()
	fmt.Fprintf(h, "pod|%s|%s|%v|%v", p.id, p.role, p.Containers, p.resources)
	return hex.EncodeToString(h.Sum(nil))
}

func constraintsKey(cs []Constraint) string {
	keys := make([]string, 0, len(cs))
	for _, c := range cs {
		keys = append(keys, fmt.Sprintf("%s:%s:%s", c.Field, c.Operator, c.Value))
	}
	sort.Strings(keys)
	return fmt.Sprintf("%v", keys)
}
