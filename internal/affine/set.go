package affine

import (
	"slices"

	"lanevar/internal/ir"
)

// valueSet is an append-only set of IR values.
type valueSet struct {
	members map[*ir.Value]struct{}
}

func newValueSet() valueSet {
	return valueSet{members: make(map[*ir.Value]struct{})}
}

func (s valueSet) has(v *ir.Value) bool {
	_, ok := s.members[v]
	return ok
}

// add inserts v and reports whether it was new.
func (s valueSet) add(v *ir.Value) bool {
	if v == nil || s.has(v) {
		return false
	}
	s.members[v] = struct{}{}
	return true
}

func (s valueSet) len() int {
	return len(s.members)
}

// sorted returns the members ordered by value ID.
func (s valueSet) sorted() []*ir.Value {
	out := make([]*ir.Value, 0, len(s.members))
	for v := range s.members {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b *ir.Value) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}
