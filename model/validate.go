package model

import "fmt"

// ValidationError reports why a submitted group tree was rejected.
// It is never returned for transient causes — callers should treat it
// as "fix the input and resubmit".
type ValidationError struct {
	Path    AbsolutePathId
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidateTree checks the invariants spec.md §3 requires of a root
// group: every RunSpec id is unique, and dependencies (both
// group-level and app-level) form a DAG.
func ValidateTree(root *Group) error {
	seen := make(map[AbsolutePathId]bool)
	var dup *ValidationError
	root.Walk(func(g *Group) {
		if dup != nil {
			return
		}
		for _, rs := range g.RunSpecs {
			if seen[rs.ID()] {
				dup = &ValidationError{Path: rs.ID(), Message: "duplicate runspec id in tree"}
				return
			}
			seen[rs.ID()] = true
		}
	})
	if dup != nil {
		return dup
	}

	return detectCycles(root)
}

// detectCycles builds the dependency graph over both groups (via
// Group.Dependencies) and RunSpecs (via RunSpec.Dependencies) and
// rejects the tree if it contains a cycle.
func detectCycles(root *Group) error {
	edges := make(map[AbsolutePathId][]AbsolutePathId)
	groups := root.AllGroups()
	for id, g := range groups {
		edges[id] = append(edges[id], g.Dependencies...)
	}
	specs := root.AllRunSpecs()
	for id, rs := range specs {
		edges[id] = append(edges[id], rs.Dependencies()...)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[AbsolutePathId]int)

	var visit func(AbsolutePathId) *ValidationError
	visit = func(id AbsolutePathId) *ValidationError {
		color[id] = gray
		for _, dep := range edges[id] {
			switch color[dep] {
			case gray:
				return &ValidationError{Path: id, Message: fmt.Sprintf("dependency cycle through %s", dep)}
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for id := range edges {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}
