// Package report turns a classifier's verdicts into a per-kernel report
// and renders it as text or JSON.
package report

import (
	"lanevar/internal/affine"
	"lanevar/internal/ir"
)

// Entry is the verdict for one value.
type Entry struct {
	ID    uint32 `json:"id" msgpack:"id"`
	Ref   string `json:"ref" msgpack:"ref"`
	Text  string `json:"text" msgpack:"text"`
	Class string `json:"class" msgpack:"class"`
}

// Summary counts entries per class.
type Summary struct {
	Invariant int `json:"invariant" msgpack:"invariant"`
	Affine    int `json:"affine" msgpack:"affine"`
	Variant   int `json:"variant" msgpack:"variant"`
}

// Kernel is the report of one analyzed function.
type Kernel struct {
	Name         string   `json:"name" msgpack:"name"`
	ThreadIDUses int      `json:"thread_id_uses" msgpack:"thread_id_uses"`
	Entries      []Entry  `json:"entries" msgpack:"entries"`
	Summary      Summary  `json:"summary" msgpack:"summary"`
	Invariant    []string `json:"invariant_set" msgpack:"invariant_set"`
	Affine       []string `json:"affine_set" msgpack:"affine_set"`
}

// Build classifies every parameter and every non-void instruction of fn in
// program order, then snapshots the classifier's memo sets. Querying
// mutates c, so the sets include operands and constants discovered along
// the way.
func Build(fn *ir.Func, c *affine.Classifier, threadIDUses int) Kernel {
	k := Kernel{Name: fn.Name, ThreadIDUses: threadIDUses}
	for _, v := range fn.Values() {
		if v.Type.Kind == ir.TypeVoid {
			continue
		}
		class := c.Classify(v)
		switch class {
		case affine.ClassInvariant:
			k.Summary.Invariant++
		case affine.ClassAffine:
			k.Summary.Affine++
		default:
			k.Summary.Variant++
		}
		k.Entries = append(k.Entries, Entry{
			ID:    uint32(v.ID),
			Ref:   v.Ref(),
			Text:  v.Format(),
			Class: class.String(),
		})
	}
	k.Invariant = formatAll(c.Invariants())
	k.Affine = formatAll(c.Affines())
	return k
}

func formatAll(values []*ir.Value) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.Format()
	}
	return out
}
