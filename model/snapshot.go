package model

import "time"

// RunSpecSnapshot is the JSON-serializable form of a RunSpec, flattened
// across the App/Pod variants so the repository layer can persist and
// reload a root group tree without depending on the RunSpec interface.
type RunSpecSnapshot struct {
	Kind                  string        `json:"kind"` // "app" or "pod"
	ID                    AbsolutePathId `json:"id"`
	Version               time.Time     `json:"version"`
	Resources             Resources     `json:"resources"`
	Role                  string        `json:"role"`
	AcceptedResourceRoles []string      `json:"accepted_resource_roles"`
	Constraints           []Constraint  `json:"constraints"`
	Instances             int           `json:"instances"`
	Dependencies          []AbsolutePathId `json:"dependencies"`
	UpgradeStrategy       UpgradeStrategy `json:"upgrade_strategy"`
	UnreachableStrategy   UnreachableStrategy `json:"unreachable_strategy"`
	Residency             *Residency    `json:"residency,omitempty"`
	Volumes               []Volume      `json:"volumes,omitempty"`
	HealthChecks          []HealthCheck `json:"health_checks,omitempty"`
	Container             *Container    `json:"container,omitempty"`
	Containers            []Container   `json:"containers,omitempty"`
}

// ToSnapshot converts a live RunSpec into its serializable form.
func ToSnapshot(rs RunSpec) RunSpecSnapshot {
	snap := RunSpecSnapshot{
		ID:                    rs.ID(),
		Version:               rs.Version(),
		Resources:             rs.Resources(),
		Role:                  rs.Role(),
		AcceptedResourceRoles: rs.AcceptedResourceRoles(),
		Constraints:           rs.Constraints(),
		Instances:             rs.Instances(),
		Dependencies:          rs.Dependencies(),
		UpgradeStrategy:       rs.UpgradeStrategy(),
		UnreachableStrategy:   rs.UnreachableStrategy(),
		Residency:             rs.Residency(),
		Volumes:               rs.Volumes(),
		HealthChecks:          rs.HealthChecks(),
	}
	switch v := rs.(type) {
	case *App:
		snap.Kind = "app"
		c := v.Container
		snap.Container = &c
	case *Pod:
		snap.Kind = "pod"
		snap.Containers = v.Containers
	}
	return snap
}

// FromSnapshot reconstructs a live RunSpec from its serialized form.
func FromSnapshot(snap RunSpecSnapshot) RunSpec {
	base := baseSpec{
		id:                    snap.ID,
		version:               snap.Version,
		resources:             snap.Resources,
		role:                  snap.Role,
		acceptedResourceRoles: snap.AcceptedResourceRoles,
		constraints:           snap.Constraints,
		instances:             snap.Instances,
		dependencies:          snap.Dependencies,
		upgradeStrategy:       snap.UpgradeStrategy,
		unreachableStrategy:   snap.UnreachableStrategy,
		residency:             snap.Residency,
		volumes:               snap.Volumes,
		healthChecks:          snap.HealthChecks,
	}
	switch snap.Kind {
	case "pod":
		return &Pod{baseSpec: base, Containers: snap.Containers}
	default:
		c := Container{}
		if snap.Container != nil {
			c = *snap.Container
		}
		return &App{baseSpec: base, Container: c}
	}
}

// GroupSnapshot is the JSON-serializable form of a Group tree.
type GroupSnapshot struct {
	ID           AbsolutePathId    `json:"id"`
	Version      time.Time         `json:"version"`
	Dependencies []AbsolutePathId  `json:"dependencies"`
	Groups       []GroupSnapshot   `json:"groups,omitempty"`
	RunSpecs     []RunSpecSnapshot `json:"runspecs,omitempty"`
}

// ToGroupSnapshot converts a live Group tree into its serializable form.
func ToGroupSnapshot(g *Group) GroupSnapshot {
	snap := GroupSnapshot{ID: g.ID, Version: g.Version, Dependencies: g.Dependencies}
	for _, child := range g.Groups {
		snap.Groups = append(snap.Groups, ToGroupSnapshot(child))
	}
	for _, rs := range g.RunSpecs {
		snap.RunSpecs = append(snap.RunSpecs, ToSnapshot(rs))
	}
	return snap
}

// FromGroupSnapshot reconstructs a live Group tree from its serialized
// form.
func FromGroupSnapshot(snap GroupSnapshot) *Group {
	g := &Group{ID: snap.ID, Version: snap.Version, Dependencies: snap.Dependencies}
	for _, child := range snap.Groups {
		g.Groups = append(g.Groups, FromGroupSnapshot(child))
	}
	for _, rsSnap := range snap.RunSpecs {
		g.RunSpecs = append(g.RunSpecs, FromSnapshot(rsSnap))
	}
	return g
}
