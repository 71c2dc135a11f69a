// Package affine classifies the values of a kernel function by how they
// vary across the lanes that execute it in lockstep once vectorized.
//
// A value is invariant when every lane computes the same result, affine
// when it equals base + lane*stride for lane-invariant base and stride, and
// variant otherwise. Invariant values can be computed once per vector
// group; affine values can be materialized with lane-offset arithmetic.
//
// A Classifier is built for one function and answers point queries.
// Queries recurse into operands and memoize what they prove, so they both
// answer and mutate the classifier's state. The memo sets only grow: once
// a value is recorded invariant or affine it keeps that class for the
// lifetime of the Classifier.
//
// A Classifier is not safe for concurrent use. Analyze different functions
// with different classifiers.
package affine

import (
	"fmt"
	"io"

	"lanevar/internal/ir"
	"lanevar/internal/kernel"
	"lanevar/internal/trace"
)

// Class is the verdict for one value.
type Class uint8

const (
	ClassVariant Class = iota
	ClassAffine
	ClassInvariant
)

// String returns the string representation of Class.
func (c Class) String() string {
	switch c {
	case ClassInvariant:
		return "invariant"
	case ClassAffine:
		return "affine"
	default:
		return "variant"
	}
}

// Options configures a Classifier.
type Options struct {
	// Tracer receives one ScopeQuery event per decision. Nil disables tracing.
	Tracer trace.Tracer
	// Span is the parent span of emitted events.
	Span   uint64
}

// Classifier holds the classification state of one function.
type Classifier struct {
	fn     *ir.Func
	tracer trace.Tracer
	span   uint64
	depth  int

	invariant valueSet
	affine    valueSet
	variant   valueSet
	threadIDs valueSet
}

// Stats reports the size of each memo set.
type Stats struct {
	Invariant int
	Affine    int
	Variant   int
	ThreadIDs int
}

// New creates a Classifier for fn and seeds it:
//
//   - descriptor fields the variance map marks invariant go to the
//     invariant set; fields it marks variant are left for the queries;
//   - the x thread id becomes the only tracked lane index when args
//     reports exactly one thread id dimension in use; with more
//     dimensions no lane index is tracked and no scaled-index pattern
//     can match;
//   - every global of fn's module is invariant.
//
// Unbound descriptor fields are skipped.
func New(fn *ir.Func, args *kernel.ThreadLocalArgument, variance kernel.VarianceMap, opts Options) *Classifier {
	c := &Classifier{
		fn:        fn,
		tracer:    opts.Tracer,
		span:      opts.Span,
		invariant: newValueSet(),
		affine:    newValueSet(),
		variant:   newValueSet(),
		threadIDs: newValueSet(),
	}
	if c.tracer == nil {
		c.tracer = trace.Nop
	}

	variance.Each(func(fv kernel.FieldVariance) {
		if fv.Variant {
			return
		}
		if v := args.Value(fv.Field); v != nil {
			c.setInvariant(v)
		}
	})

	if tid := args.Value(kernel.FieldThreadIDX); tid != nil && args.ThreadIDUses == 1 {
		c.report("seed", "thread_id_x is the only thread id used")
		c.threadIDs.add(tid)
	} else {
		c.report("seed", "thread id usage too complex for affine recognition")
	}

	if fn != nil && fn.Module != nil {
		for _, g := range fn.Module.Globals {
			c.setInvariant(g)
		}
	}
	return c
}

// Func returns the function under analysis.
func (c *Classifier) Func() *ir.Func {
	return c.fn
}

// walk strips integer-width casts and pointer/integer conversions and
// returns the innermost source. It never memoizes.
func walk(v *ir.Value) *ir.Value {
	for v != nil && (v.IsIntegerCast() || v.IsPtrIntConversion()) {
		v = v.Operand(0)
	}
	return v
}

// IsThreadInvariant reports whether v is identical across all lanes.
//
// The query memoizes: constants, casts of invariant values and loads
// through invariant addresses are recorded invariant. For a binary
// operator both operands are always queried, even when the first one is
// already known to vary, so that everything provable gets recorded; when
// both are invariant the two operands and the operator are recorded.
// Affine values are not invariant. A load through a variant address and
// any kind without a rule return false without being recorded.
func (c *Classifier) IsThreadInvariant(v *ir.Value) bool {
	c.trace("isThreadInvariant", v)

	v = walk(v)
	if v == nil {
		return false
	}
	switch {
	case c.invariant.has(v):
		return true
	case c.affine.has(v), c.variant.has(v), c.threadIDs.has(v):
		return false
	}

	c.depth++
	defer func() { c.depth-- }()

	switch v.Kind {
	case ir.KindConst:
		return c.setInvariant(v)

	case ir.KindCast:
		if c.IsThreadInvariant(v.Operand(0)) {
			return c.setInvariant(v)
		}
		return false

	case ir.KindLoad:
		if c.IsThreadInvariant(v.Operand(0)) {
			return c.setInvariant(v)
		}

	case ir.KindBinary:
		lhs := c.IsThreadInvariant(v.Operand(0))
		rhs := c.IsThreadInvariant(v.Operand(1))
		if lhs && rhs {
			c.setInvariant(v.Operand(0))
			c.setInvariant(v.Operand(1))
			return c.setInvariant(v)
		}
		return false
	}

	return false
}

// IsAffine reports whether v is invariant or varies linearly with the
// lane index. Invariant values count as affine with stride zero.
//
// Only binary operators are examined beyond the memo sets and constants:
//
//   - idx << 2, idx * 4 and 4 * idx, where idx is the tracked lane index
//     (casts around idx are looked through), are affine;
//   - affine + invariant and invariant + affine are affine; if both sides
//     turn out invariant the sum is recorded invariant instead.
//
// Recognized values are memoized. A failed match records nothing.
func (c *Classifier) IsAffine(v *ir.Value) bool {
	c.trace("isAffine", v)

	v = walk(v)
	if v == nil {
		return false
	}
	switch {
	case c.invariant.has(v), c.affine.has(v):
		return true
	case c.variant.has(v):
		return false
	}

	c.depth++
	defer func() { c.depth-- }()

	switch v.Kind {
	case ir.KindConst:
		return c.setInvariant(v)
	case ir.KindBinary:
		return c.isBinaryOperatorAffine(v)
	}
	return false
}

func (c *Classifier) isBinaryOperatorAffine(v *ir.Value) bool {
	c.trace("isBinaryOperatorAffine", v)

	lhs, rhs := v.Operand(0), v.Operand(1)

	constIdx := -1
	if c.threadIDs.has(walk(lhs)) {
		constIdx = 1
	} else if c.threadIDs.has(walk(rhs)) {
		constIdx = 0
	}
	if constIdx >= 0 {
		if k, ok := walk(v.Operand(constIdx)).IntConst(); ok {
			// A 4-byte element stride is the only scaling recognized.
			switch {
			case v.Op == ir.OpShl && k == 2 && constIdx == 1:
				return c.setAffine(v)
			case v.Op == ir.OpMul && k == 4:
				return c.setAffine(v)
			}
		}
	}

	if v.Op == ir.OpAdd {
		c.report("match", "add: testing (affine, invariant)")
		if c.IsAffine(lhs) && c.IsThreadInvariant(rhs) {
			return c.setSum(v)
		}
		c.report("match", "add: testing (invariant, affine)")
		if c.IsAffine(rhs) && c.IsThreadInvariant(lhs) {
			return c.setSum(v)
		}
	}
	return false
}

// setSum records an add already proven affine + invariant.
func (c *Classifier) setSum(v *ir.Value) bool {
	if c.invariant.has(walk(v.Operand(0))) && c.invariant.has(walk(v.Operand(1))) {
		return c.setInvariant(v)
	}
	return c.setAffine(v)
}

// Classify asks IsThreadInvariant first and IsAffine second. The order
// matters for memoization: an invariant sum queried for invariance first
// is recorded invariant.
func (c *Classifier) Classify(v *ir.Value) Class {
	if c.IsThreadInvariant(v) {
		return ClassInvariant
	}
	if c.IsAffine(v) {
		if c.invariant.has(walk(v)) {
			return ClassInvariant
		}
		return ClassAffine
	}
	return ClassVariant
}

func (c *Classifier) setInvariant(v *ir.Value) bool {
	if c.invariant.add(v) && c.tracing() {
		c.report("mark", v.Format()+" as invariant")
	}
	return true
}

func (c *Classifier) setAffine(v *ir.Value) bool {
	if c.affine.add(v) && c.tracing() {
		c.report("mark", v.Format()+" as affine")
	}
	return true
}

// Invariants returns the values recorded invariant, ordered by ID.
func (c *Classifier) Invariants() []*ir.Value { return c.invariant.sorted() }

// Affines returns the values recorded affine, ordered by ID.
func (c *Classifier) Affines() []*ir.Value { return c.affine.sorted() }

// Variants returns the values recorded variant, ordered by ID. No rule
// records a failed match, so the set stays empty unless a rule is added.
func (c *Classifier) Variants() []*ir.Value { return c.variant.sorted() }

// ThreadIDs returns the tracked lane index values.
func (c *Classifier) ThreadIDs() []*ir.Value { return c.threadIDs.sorted() }

// Stats returns the current size of every memo set.
func (c *Classifier) Stats() Stats {
	return Stats{
		Invariant: c.invariant.len(),
		Affine:    c.affine.len(),
		Variant:   c.variant.len(),
		ThreadIDs: c.threadIDs.len(),
	}
}

// Dump writes the invariant and affine sets. It does not change state.
func (c *Classifier) Dump(w io.Writer) error {
	sections := []struct {
		title  string
		values []*ir.Value
	}{
		{"Thread-Invariant values:", c.invariant.sorted()},
		{"Affine values:", c.affine.sorted()},
	}
	for _, s := range sections {
		if _, err := fmt.Fprintln(w, s.title); err != nil {
			return err
		}
		for _, v := range s.values {
			if _, err := fmt.Fprintf(w, "  %s\n", v.Format()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Classifier) tracing() bool {
	return c.tracer.Enabled() && c.tracer.Level().ShouldEmit(trace.ScopeQuery)
}

func (c *Classifier) trace(query string, v *ir.Value) {
	if c.tracing() {
		trace.Point(c.tracer, trace.ScopeQuery, c.span, c.depth, query, v.Format())
	}
}

func (c *Classifier) report(name, detail string) {
	if c.tracing() {
		trace.Point(c.tracer, trace.ScopeQuery, c.span, c.depth, name, detail)
	}
}
