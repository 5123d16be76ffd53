package directory

import (
	"encoding/json"
	"iter"
	"slices"

	"github.com/google/uuid"
)

// List is an immutable, insertion-ordered collection deduplicated by id.
type List[E Entity] struct {
	items []E
}

// NewList builds a List. The first occurrence of an id wins.
func NewList[E Entity](items ...E) List[E] {
	seen := make(map[uuid.UUID]struct{}, len(items))
	out := make([]E, 0, len(items))
	for _, item := range items {
		if _, dup := seen[item.Key()]; dup {
			continue
		}
		seen[item.Key()] = struct{}{}
		out = append(out, item)
	}
	return List[E]{items: out}
}

// Len returns the number of entities.
func (l List[E]) Len() int {
	return len(l.items)
}

// All iterates the entities in order.
func (l List[E]) All() iter.Seq[E] {
	return slices.Values(l.items)
}

// Items returns a copy of the entities.
func (l List[E]) Items() []E {
	return slices.Clone(l.items)
}

// First returns the first entity.
func (l List[E]) First() (E, bool) {
	if len(l.items) == 0 {
		var zero E
		return zero, false
	}
	return l.items[0], true
}

// Contains reports whether any entity matches any of refs.
func (l List[E]) Contains(refs ...Reference) bool {
	for _, item := range l.items {
		for _, ref := range refs {
			if item.Matches(ref) {
				return true
			}
		}
	}
	return false
}

// MarshalJSON encodes the list as an array of records.
func (l List[E]) MarshalJSON() ([]byte, error) {
	if l.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.items)
}

// UnmarshalJSON decodes an array of records.
func (l *List[E]) UnmarshalJSON(data []byte) error {
	var items []E
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*l = NewList(items...)
	return nil
}
