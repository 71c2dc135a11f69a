package kernel

import (
	"testing"

	"lanevar/internal/ir"
)

func TestDefaultVarianceMapEndsWithSentinel(t *testing.T) {
	vm := DefaultVarianceMap()
	if len(vm) == 0 || vm[len(vm)-1].Field != FieldDescriptorArray {
		t.Fatalf("variance map must end with the sentinel, got %v", vm)
	}
	variant := map[Field]bool{}
	vm.Each(func(fv FieldVariance) { variant[fv.Field] = fv.Variant })
	if _, ok := variant[FieldDescriptorArray]; ok {
		t.Fatalf("Each must stop before the sentinel")
	}
	for _, f := range ThreadIDFields {
		if !variant[f] {
			t.Errorf("%s should be variant", f)
		}
	}
	for _, f := range []Field{FieldBlockDimX, FieldBlockIDY, FieldGridDimZ, FieldSharedMemory, FieldParamMemory} {
		if variant[f] {
			t.Errorf("%s should be invariant", f)
		}
	}
}

func TestVarianceMapWith(t *testing.T) {
	base := DefaultVarianceMap()
	over := base.With(FieldSharedMemory, true)
	if base[FieldSharedMemory].Variant {
		t.Fatalf("With must not mutate the receiver")
	}
	if !over[FieldSharedMemory].Variant {
		t.Fatalf("override not applied")
	}
}

func TestEachStopsAtSentinel(t *testing.T) {
	vm := VarianceMap{
		{Field: FieldBlockDimX},
		{Field: FieldDescriptorArray},
		{Field: FieldGridDimX},
	}
	var seen []Field
	vm.Each(func(fv FieldVariance) { seen = append(seen, fv.Field) })
	if len(seen) != 1 || seen[0] != FieldBlockDimX {
		t.Fatalf("got %v", seen)
	}
}

func TestParseField(t *testing.T) {
	for f := Field(0); f < numFields; f++ {
		got, err := ParseField(f.String())
		if err != nil {
			t.Fatalf("ParseField(%q): %v", f.String(), err)
		}
		if got != f {
			t.Fatalf("ParseField(%q) = %v", f.String(), got)
		}
	}
	if _, err := ParseField(" Thread_ID_Y "); err != nil {
		t.Fatalf("expected case and space insensitivity: %v", err)
	}
	if _, err := ParseField("warp_id"); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestCountThreadIDUses(t *testing.T) {
	m := ir.NewModule("m")
	f := m.NewFunc("k")
	x := f.NewParam("tx", ir.I32)
	y := f.NewParam("ty", ir.I32)
	z := f.NewParam("tz", ir.I32)
	b := f.NewBlock("entry")
	b.Binary("a", ir.OpAdd, x, m.ConstInt(ir.I32, 1))

	var args ThreadLocalArgument
	args.Bind(FieldThreadIDX, x)
	args.Bind(FieldThreadIDY, y)
	args.Bind(FieldThreadIDZ, z)
	if got := CountThreadIDUses(f, &args); got != 1 {
		t.Fatalf("got %d uses, want 1", got)
	}

	b.Binary("c", ir.OpMul, y, z)
	if got := CountThreadIDUses(f, &args); got != 3 {
		t.Fatalf("got %d uses, want 3", got)
	}
	if got := args.Fields(); len(got) != 3 || got[0] != FieldThreadIDX {
		t.Fatalf("Fields() = %v", got)
	}
}
