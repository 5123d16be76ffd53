package directory

import (
	"iter"

	"github.com/google/uuid"
)

// Hierarchy is an arena over a flat list of groups. Children are indexed
// by parent id in provider order; no group holds a reference to another.
type Hierarchy struct {
	groups   []Group
	index    map[uuid.UUID]int
	children map[uuid.UUID][]int
	roots    []int

	// ordered holds the traversal with paths set; depth and pos index it.
	ordered []Group
	depth   []int
	pos     map[uuid.UUID]int
}

// NewHierarchy builds a Hierarchy. When an id occurs more than once the
// first record wins. Groups whose parent is unknown are roots.
func NewHierarchy(groups []Group) *Hierarchy {
	h := &Hierarchy{
		index:    make(map[uuid.UUID]int, len(groups)),
		children: make(map[uuid.UUID][]int),
	}

	for _, g := range groups {
		if _, dup := h.index[g.ID]; dup {
			continue
		}
		h.index[g.ID] = len(h.groups)
		h.groups = append(h.groups, g)
	}

	for i, g := range h.groups {
		if g.ParentID == nil {
			h.roots = append(h.roots, i)
			continue
		}
		if _, ok := h.index[*g.ParentID]; !ok {
			h.roots = append(h.roots, i)
			continue
		}
		h.children[*g.ParentID] = append(h.children[*g.ParentID], i)
	}

	h.pos = make(map[uuid.UUID]int, len(h.groups))
	visited := make([]bool, len(h.groups))
	for _, r := range h.roots {
		h.walk(r, "", 0, visited)
	}
	// Groups caught in a parent cycle are unreachable from any root.
	for i := range h.groups {
		h.walk(i, "", 0, visited)
	}

	return h
}

// walk appends group i and then its descendants depth-first. Visited
// groups are skipped, so cycles terminate.
func (h *Hierarchy) walk(i int, parentPath string, depth int, visited []bool) {
	if visited[i] {
		return
	}
	visited[i] = true

	g := h.groups[i]
	g.Path = parentPath + "/" + g.Name
	h.pos[g.ID] = len(h.ordered)
	h.ordered = append(h.ordered, g)
	h.depth = append(h.depth, depth)

	for _, c := range h.children[g.ID] {
		h.walk(c, g.Path, depth+1, visited)
	}
}

// All yields every group exactly once: each root followed by its
// descendants depth-first, siblings in provider order.
func (h *Hierarchy) All() iter.Seq[Group] {
	return func(yield func(Group) bool) {
		for _, g := range h.ordered {
			if !yield(g) {
				return
			}
		}
	}
}

// Len returns the number of distinct groups.
func (h *Hierarchy) Len() int {
	return len(h.groups)
}

// Get returns a group with its path.
func (h *Hierarchy) Get(id uuid.UUID) (Group, bool) {
	p, ok := h.pos[id]
	if !ok {
		return Group{}, false
	}
	return h.ordered[p], true
}

// Path returns the slash separated path of a group, e.g. "/A/B/D".
func (h *Hierarchy) Path(id uuid.UUID) (string, bool) {
	g, ok := h.Get(id)
	return g.Path, ok
}

// Descendants yields the descendants of id depth-first, excluding id.
// They are the groups following id in traversal order at a greater depth.
func (h *Hierarchy) Descendants(id uuid.UUID) iter.Seq[Group] {
	return func(yield func(Group) bool) {
		p, ok := h.pos[id]
		if !ok {
			return
		}
		for j := p + 1; j < len(h.ordered) && h.depth[j] > h.depth[p]; j++ {
			if !yield(h.ordered[j]) {
				return
			}
		}
	}
}
