package model

import "time"

// Group is a node in the root group tree: a named aggregate of child
// groups and child RunSpecs, with ordering edges to sibling groups.
type Group struct {
	ID           AbsolutePathId
	Version      time.Time
	Dependencies []AbsolutePathId
	Groups       []*Group
	RunSpecs     []RunSpec
}

// Walk calls fn for this group and every descendant group, depth
// first, parent before children.
func (g *Group) Walk(fn func(*Group)) {
	fn(g)
	for _, child := range g.Groups {
		child.Walk(fn)
	}
}

// AllRunSpecs returns every RunSpec in the tree rooted at g, keyed by
// id.
func (g *Group) AllRunSpecs() map[AbsolutePathId]RunSpec {
	out := make(map[AbsolutePathId]RunSpec)
	g.Walk(func(node *Group) {
		for _, rs := range node.RunSpecs {
			out[rs.ID()] = rs
		}
	})
	return out
}

// AllGroups returns every group in the tree rooted at g, keyed by id,
// including g itself.
func (g *Group) AllGroups() map[AbsolutePathId]*Group {
	out := make(map[AbsolutePathId]*Group)
	g.Walk(func(node *Group) {
		out[node.ID] = node
	})
	return out
}
