package directory

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(groups []Group) []string {
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.Name)
	}
	return out
}

func tree() []Group {
	return []Group{
		{ID: groupA, Name: "A"},
		{ID: groupB, Name: "B", ParentID: groupRef(groupA)},
		{ID: groupC, Name: "C", ParentID: groupRef(groupA)},
		{ID: groupD, Name: "D", ParentID: groupRef(groupB)},
	}
}

func TestHierarchy_Order(t *testing.T) {
	tests := []struct {
		name   string
		groups []Group
		want   []string
	}{
		{
			name:   "depth first with sibling order",
			groups: tree(),
			want:   []string{"A", "B", "D", "C"},
		},
		{
			name:   "children listed before parents",
			groups: []Group{tree()[3], tree()[2], tree()[1], tree()[0]},
			want:   []string{"A", "C", "B", "D"},
		},
		{
			name:   "duplicate record pointing D at A",
			groups: append(tree(), Group{ID: groupD, Name: "D", ParentID: groupRef(groupA)}),
			want:   []string{"A", "B", "D", "C"},
		},
		{
			name: "parent cycle through the root",
			groups: func() []Group {
				g := tree()
				g[0].ParentID = groupRef(groupD)
				return g
			}(),
			want: []string{"A", "B", "D", "C"},
		},
		{
			name: "self parent",
			groups: []Group{
				{ID: groupA, Name: "A", ParentID: groupRef(groupA)},
				{ID: groupB, Name: "B"},
			},
			want: []string{"B", "A"},
		},
		{
			name:   "unknown parent is a root",
			groups: []Group{{ID: groupB, Name: "B", ParentID: groupRef(groupC)}},
			want:   []string{"B"},
		},
		{
			name: "empty",
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHierarchy(tt.groups)
			got := names(slices.Collect(h.All()))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("traversal mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, len(tt.want), h.Len())
		})
	}
}

func TestHierarchy_Paths(t *testing.T) {
	h := NewHierarchy(tree())

	paths := make([]string, 0, h.Len())
	for g := range h.All() {
		paths = append(paths, g.Path)
	}
	if diff := cmp.Diff([]string{"/A", "/A/B", "/A/B/D", "/A/C"}, paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}

	p, ok := h.Path(groupD)
	require.True(t, ok)
	assert.Equal(t, "/A/B/D", p)

	g, ok := h.Get(groupB)
	require.True(t, ok)
	assert.Equal(t, "/A/B", g.Path)
	assert.Equal(t, groupA, *g.ParentID)

	_, ok = h.Get(roleAdmin)
	assert.False(t, ok)
}

func TestHierarchy_Descendants(t *testing.T) {
	h := NewHierarchy(tree())

	assert.Equal(t, []string{"B", "D", "C"}, names(slices.Collect(h.Descendants(groupA))))
	assert.Equal(t, []string{"D"}, names(slices.Collect(h.Descendants(groupB))))
	assert.Empty(t, slices.Collect(h.Descendants(groupC)))
	assert.Empty(t, slices.Collect(h.Descendants(roleAdmin)))

	d := slices.Collect(h.Descendants(groupB))
	assert.Equal(t, "/A/B/D", d[0].Path)
}

func TestHierarchy_DescendantsStopOnCycle(t *testing.T) {
	groups := tree()
	groups[0].ParentID = groupRef(groupD)
	h := NewHierarchy(groups)

	assert.Equal(t, []string{"B", "D", "C"}, names(slices.Collect(h.Descendants(groupA))))
	assert.Equal(t, []string{"D"}, names(slices.Collect(h.Descendants(groupB))))
}

func TestHierarchy_EarlyStop(t *testing.T) {
	h := NewHierarchy(tree())

	var seen []string
	for g := range h.All() {
		seen = append(seen, g.Name)
		if g.Name == "B" {
			break
		}
	}
	assert.Equal(t, []string{"A", "B"}, seen)
}
