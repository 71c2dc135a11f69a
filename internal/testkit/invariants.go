// Package testkit holds consistency checks shared by tests of the
// classifier and its callers.
package testkit

import (
	"fmt"

	"lanevar/internal/affine"
	"lanevar/internal/ir"
)

// CheckClassifierInvariants verifies the memo sets of c:
//   - the invariant and affine sets are disjoint;
//   - no variant value or lane index is recorded invariant or affine;
//   - every affine value is a binary operator;
//   - no set holds nil.
func CheckClassifierInvariants(c *affine.Classifier) error {
	if c == nil {
		return fmt.Errorf("nil classifier")
	}
	inv := index(c.Invariants())
	aff := index(c.Affines())

	for v := range inv {
		if err := checkRecorded(v, "invariant"); err != nil {
			return err
		}
		if aff[v] {
			return fmt.Errorf("%s recorded both invariant and affine", v.Format())
		}
	}
	for v := range aff {
		if err := checkRecorded(v, "affine"); err != nil {
			return err
		}
		if v.Kind != ir.KindBinary {
			return fmt.Errorf("affine value %s is a %s, not a binary operator", v.Format(), v.Kind)
		}
	}
	for _, group := range []struct {
		name   string
		values []*ir.Value
	}{
		{"variant", c.Variants()},
		{"lane index", c.ThreadIDs()},
	} {
		for _, v := range group.values {
			if inv[v] || aff[v] {
				return fmt.Errorf("%s value %s also recorded invariant or affine", group.name, v.Format())
			}
		}
	}
	return nil
}

func checkRecorded(v *ir.Value, set string) error {
	if v == nil {
		return fmt.Errorf("nil value in %s set", set)
	}
	return nil
}

func index(values []*ir.Value) map[*ir.Value]bool {
	m := make(map[*ir.Value]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}
