package llvmir_test

import (
	"os"
	"path/filepath"
	"testing"

	"lanevar/internal/affine"
	"lanevar/internal/ir"
	"lanevar/internal/kernel"
	"lanevar/internal/llvmir"
)

const vecScale = `
@scale = global i32 4

define void @vecScale(i32* %out, i32 %tid, i32 %ntid) {
entry:
  %idx = shl i32 %tid, 2
  %off = add i32 %idx, %ntid
  %wide = zext i32 %off to i64
  %p = getelementptr i32, i32* %out, i64 %wide
  %v = load i32, i32* %p
  %k = load i32, i32* @scale
  %0 = mul i32 %tid, 4
  %s = mul i32 %v, %k
  store i32 %s, i32* %p
  ret void
}
`

func importSample(t *testing.T) (*ir.Module, *ir.Func) {
	t.Helper()
	m, err := llvmir.ParseString("sample.ll", vecScale)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	f := m.Func("vecScale")
	if f == nil {
		t.Fatalf("function vecScale not imported")
	}
	return m, f
}

func TestImportStructure(t *testing.T) {
	m, f := importSample(t)
	if m.Global("scale") == nil {
		t.Fatalf("global @scale missing")
	}
	if len(f.Params) != 3 || f.Params[0].Type != ir.Ptr || f.Params[1].Type != ir.I32 {
		t.Fatalf("unexpected params: %v", f.Params)
	}

	idx := f.Lookup("idx")
	if idx == nil || idx.Kind != ir.KindBinary || idx.Op != ir.OpShl {
		t.Fatalf("idx: %v", idx)
	}
	if idx.Operand(0) != f.Lookup("tid") {
		t.Fatalf("idx operand 0 should be %%tid")
	}
	if k, ok := idx.Operand(1).IntConst(); !ok || k != 2 {
		t.Fatalf("idx operand 1: %v", idx.Operand(1))
	}

	wide := f.Lookup("wide")
	if wide.Kind != ir.KindCast || wide.Cast != ir.CastZExt || !wide.IsIntegerCast() || wide.Type != ir.I64 {
		t.Fatalf("wide: %v", wide)
	}
	if p := f.Lookup("p"); p.Kind != ir.KindOther || p.Mnemonic != "getelementptr" {
		t.Fatalf("p: %v", p)
	}
	if v := f.Lookup("v"); v.Kind != ir.KindLoad || v.Operand(0) != f.Lookup("p") {
		t.Fatalf("v: %v", v)
	}
	if k := f.Lookup("k"); k.Operand(0) != m.Global("scale") {
		t.Fatalf("k should load from @scale")
	}
	if unnamed := f.Lookup("0"); unnamed == nil || unnamed.Op != ir.OpMul {
		t.Fatalf("unnamed value %%0 not imported: %v", unnamed)
	}

	last := f.Blocks[0].Instrs
	if got := last[len(last)-1].Mnemonic; got != "ret" {
		t.Fatalf("terminator mnemonic = %q", got)
	}
	if got := last[len(last)-2].Mnemonic; got != "store" {
		t.Fatalf("store mnemonic = %q", got)
	}
	if got := f.UseCount(f.Lookup("tid")); got != 2 {
		t.Fatalf("UseCount(tid) = %d", got)
	}
}

func TestImportedKernelClassification(t *testing.T) {
	_, f := importSample(t)
	args := &kernel.ThreadLocalArgument{}
	args.Bind(kernel.FieldThreadIDX, f.Lookup("tid"))
	args.Bind(kernel.FieldBlockDimX, f.Lookup("ntid"))
	args.ThreadIDUses = kernel.CountThreadIDUses(f, args)
	if args.ThreadIDUses != 1 {
		t.Fatalf("ThreadIDUses = %d", args.ThreadIDUses)
	}

	c := affine.New(f, args, kernel.DefaultVarianceMap(), affine.Options{})
	want := map[string]affine.Class{
		"tid":  affine.ClassVariant,
		"ntid": affine.ClassInvariant,
		"out":  affine.ClassVariant,
		"idx":  affine.ClassAffine,
		"off":  affine.ClassAffine,
		"wide": affine.ClassAffine,
		"p":    affine.ClassVariant,
		"v":    affine.ClassVariant,
		"k":    affine.ClassInvariant,
		"0":    affine.ClassAffine,
		"s":    affine.ClassVariant,
	}
	for name, class := range want {
		if got := c.Classify(f.Lookup(name)); got != class {
			t.Errorf("%%%s = %s, want %s", name, got, class)
		}
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "k.ll")
	if err := os.WriteFile(path, []byte(vecScale), 0o600); err != nil {
		t.Fatal(err)
	}
	m, err := llvmir.ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if m.Func("vecScale") == nil {
		t.Fatalf("function missing")
	}
	if _, err := llvmir.ParseFile(filepath.Join(t.TempDir(), "missing.ll")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := llvmir.ParseString("bad.ll", "define nonsense"); err == nil {
		t.Fatalf("expected parse error")
	}
}
