package driver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"lanevar/internal/cache"
	"lanevar/internal/ir"
	"lanevar/internal/kernel"
	"lanevar/internal/manifest"
	"lanevar/internal/observ"
	"lanevar/internal/trace"
)

const kernelsLL = `
define void @scale(i32* %out, i32 %tid, i32 %ntid) {
entry:
  %idx = shl i32 %tid, 2
  %off = add i32 %idx, %ntid
  %p = getelementptr i32, i32* %out, i32 %off
  store i32 %off, i32* %p
  ret void
}

define void @grid(i32 %tx, i32 %ty) {
entry:
  %a = mul i32 %tx, 4
  %b = add i32 %a, %ty
  ret void
}

declare void @external(i32)
`

func testModule(t *testing.T) *ir.Module {
	t.Helper()
	m := ir.NewModule("t")
	f := m.NewFunc("k")
	tid := f.NewParam("tid", ir.I32)
	ntid := f.NewParam("ntid", ir.I32)
	b := f.NewBlock("entry")
	idx := b.Binary("idx", ir.OpMul, tid, m.ConstInt(ir.I32, 4))
	b.Binary("off", ir.OpAdd, idx, ntid)
	m.NewFunc("decl")
	return m
}

func mustKernel(t *testing.T, name string, bind map[string]string) manifest.Kernel {
	t.Helper()
	k, err := manifest.NewKernel(name, bind)
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func TestBind(t *testing.T) {
	m := testModule(t)
	fn, args, err := Bind(m, mustKernel(t, "k", map[string]string{"thread_id_x": "tid", "block_dim_x": "%ntid"}))
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if fn.Name != "k" || args.Value(kernel.FieldThreadIDX) != fn.Lookup("tid") {
		t.Fatalf("thread_id_x not bound")
	}
	if args.ThreadIDUses != 1 {
		t.Fatalf("ThreadIDUses = %d, want counted 1", args.ThreadIDUses)
	}

	explicit := mustKernel(t, "k", map[string]string{"thread_id_x": "tid"})
	explicit.ThreadIDUses = 3
	if _, args, _ := Bind(m, explicit); args.ThreadIDUses != 3 {
		t.Fatalf("explicit ThreadIDUses overridden: %d", args.ThreadIDUses)
	}
}

func TestBindErrors(t *testing.T) {
	m := testModule(t)
	tests := []struct {
		name string
		k    manifest.Kernel
		want error
	}{
		{"missing_func", mustKernel(t, "nope", nil), ErrUnknownFunc},
		{"declaration", mustKernel(t, "decl", nil), ErrUnknownFunc},
		{"missing_value", mustKernel(t, "k", map[string]string{"block_id_x": "ctaid"}), ErrUnknownValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Bind(m, tt.k)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAnalyzeKeepsRequestOrder(t *testing.T) {
	m := testModule(t)
	g := m.NewFunc("g")
	x := g.NewParam("x", ir.I32)
	g.NewBlock("entry").Binary("y", ir.OpAdd, x, m.ConstInt(ir.I32, 1))

	ring := trace.NewRingTracer(1024, trace.LevelDebug)
	ctx := trace.WithTracer(context.Background(), ring)
	timer := observ.NewTimer()
	got, err := Analyze(ctx, Request{
		Module: m,
		Kernels: []manifest.Kernel{
			mustKernel(t, "g", map[string]string{"block_dim_x": "x"}),
			mustKernel(t, "k", map[string]string{"thread_id_x": "tid", "block_dim_x": "ntid"}),
		},
		Jobs:  2,
		Timer: timer,
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(got) != 2 || got[0].Name != "g" || got[1].Name != "k" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[0].Summary.Invariant != 2 {
		t.Errorf("g: %+v", got[0].Summary)
	}
	if got[1].Summary.Affine != 2 || got[1].Summary.Invariant != 1 || got[1].Summary.Variant != 1 {
		t.Errorf("k: %+v", got[1].Summary)
	}

	kernelSpans := 0
	for _, ev := range ring.Snapshot() {
		if ev.Scope != trace.ScopeKernel || ev.Kind != trace.KindSpanBegin {
			continue
		}
		kernelSpans++
		queries := 0
		for _, sub := range ring.Under(ev.SpanID) {
			if sub.Scope == trace.ScopeQuery {
				queries++
			}
		}
		if queries == 0 {
			t.Errorf("kernel %s has no query events", ev.Name)
		}
	}
	if kernelSpans != 2 {
		t.Errorf("kernel spans = %d, want 2", kernelSpans)
	}
	if r := timer.Report(); len(r.Phases) != 1 || r.Phases[0].Name != "analyze" {
		t.Errorf("timer phases: %+v", r.Phases)
	}
}

func TestAnalyzeDefaultsToEveryDefinition(t *testing.T) {
	got, err := Analyze(context.Background(), Request{Module: testModule(t)})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "k" {
		t.Fatalf("expected only the defined function, got %+v", got)
	}
	if got[0].Summary.Invariant != 0 || got[0].Summary.Variant != 4 {
		t.Fatalf("unbound kernel: %+v", got[0].Summary)
	}
}

func TestAnalyzeFailsBeforeRunning(t *testing.T) {
	ring := trace.NewRingTracer(64, trace.LevelDetail)
	ctx := trace.WithTracer(context.Background(), ring)
	_, err := Analyze(ctx, Request{
		Module:  testModule(t),
		Kernels: []manifest.Kernel{mustKernel(t, "k", nil), mustKernel(t, "missing", nil)},
	})
	if !errors.Is(err, ErrUnknownFunc) {
		t.Fatalf("err = %v", err)
	}
	for _, ev := range ring.Snapshot() {
		if ev.Scope == trace.ScopeKernel {
			t.Fatalf("kernel ran despite binding error")
		}
	}
}

func TestClassifyFileUsesCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kernels.ll")
	if err := os.WriteFile(path, []byte(kernelsLL), 0o600); err != nil {
		t.Fatal(err)
	}
	dc, err := cache.OpenDir(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatal(err)
	}
	req := FileRequest{
		Path: path,
		Kernels: []manifest.Kernel{
			mustKernel(t, "scale", map[string]string{"thread_id_x": "tid", "block_dim_x": "ntid"}),
			mustKernel(t, "grid", map[string]string{"thread_id_x": "tx", "thread_id_y": "ty"}),
		},
		Cache: dc,
	}

	first, err := ClassifyFile(context.Background(), req)
	if err != nil {
		t.Fatalf("ClassifyFile: %v", err)
	}
	if first.Cached || first.Module == nil {
		t.Fatalf("first run should not be cached")
	}
	scale := first.Kernels[0]
	if scale.Summary.Affine != 2 {
		t.Errorf("scale: %+v", scale.Summary)
	}
	// Two thread id dimensions: the scaled index is not recognized.
	if grid := first.Kernels[1]; grid.ThreadIDUses != 2 || grid.Summary.Affine != 0 {
		t.Errorf("grid: uses=%d %+v", grid.ThreadIDUses, grid.Summary)
	}

	second, err := ClassifyFile(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached || second.Module != nil {
		t.Fatalf("second run should hit the cache")
	}
	if second.Kernels[0].Summary != scale.Summary {
		t.Fatalf("cached report differs")
	}

	req.Variance = kernel.DefaultVarianceMap().With(kernel.FieldBlockDimX, true)
	third, err := ClassifyFile(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if third.Cached {
		t.Fatalf("different variance map must miss the cache")
	}
	if third.Kernels[0].Summary.Affine != 1 {
		t.Fatalf("variant ntid: %+v", third.Kernels[0].Summary)
	}
}

func TestClassifyFileErrors(t *testing.T) {
	if _, err := ClassifyFile(context.Background(), FileRequest{Path: filepath.Join(t.TempDir(), "none.ll")}); err == nil {
		t.Fatalf("missing file accepted")
	}
	bad := filepath.Join(t.TempDir(), "bad.ll")
	if err := os.WriteFile(bad, []byte("define oops"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ClassifyFile(context.Background(), FileRequest{Path: bad}); err == nil {
		t.Fatalf("invalid IR accepted")
	}
}
