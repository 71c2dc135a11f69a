package report_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"lanevar/internal/affine"
	"lanevar/internal/ir"
	"lanevar/internal/kernel"
	"lanevar/internal/report"
)

func buildKernel(t *testing.T) report.Kernel {
	t.Helper()
	m := ir.NewModule("r")
	f := m.NewFunc("vecScale")
	tid := f.NewParam("tid", ir.I32)
	ntid := f.NewParam("ntid", ir.I32)
	b := f.NewBlock("entry")
	idx := b.Binary("idx", ir.OpShl, tid, m.ConstInt(ir.I32, 2))
	off := b.Binary("off", ir.OpAdd, idx, ntid)
	sq := b.Binary("sq", ir.OpMul, tid, tid)
	b.Other("", "store", ir.Void, sq, off)

	args := &kernel.ThreadLocalArgument{}
	args.Bind(kernel.FieldThreadIDX, tid)
	args.Bind(kernel.FieldBlockDimX, ntid)
	args.ThreadIDUses = kernel.CountThreadIDUses(f, args)
	c := affine.New(f, args, kernel.DefaultVarianceMap(), affine.Options{})
	return report.Build(f, c, args.ThreadIDUses)
}

func TestBuild(t *testing.T) {
	k := buildKernel(t)
	want := []struct{ ref, class string }{
		{"%tid", "variant"},
		{"%ntid", "invariant"},
		{"%idx", "affine"},
		{"%off", "affine"},
		{"%sq", "variant"},
	}
	if len(k.Entries) != len(want) {
		t.Fatalf("entries = %d, want %d (void store must be skipped)", len(k.Entries), len(want))
	}
	for i, w := range want {
		if e := k.Entries[i]; e.Ref != w.ref || e.Class != w.class {
			t.Errorf("entry %d = %s %s, want %s %s", i, e.Ref, e.Class, w.ref, w.class)
		}
	}
	if k.Summary != (report.Summary{Invariant: 1, Affine: 2, Variant: 2}) {
		t.Errorf("summary = %+v", k.Summary)
	}
	if k.ThreadIDUses != 1 {
		t.Errorf("ThreadIDUses = %d", k.ThreadIDUses)
	}
	if len(k.Affine) != 2 || k.Affine[0] != "%idx = shl i32 %tid, 2" {
		t.Errorf("affine set = %q", k.Affine)
	}
}

func TestWriteText(t *testing.T) {
	k := buildKernel(t)
	var buf bytes.Buffer
	if err := report.WriteText(&buf, []report.Kernel{k, k}, report.TextOptions{Sets: true}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"kernel vecScale (thread id dims: 1)\n",
		"  invariant  i32 %ntid\n",
		"  affine     %off = add i32 %idx, %ntid\n",
		"  1 invariant, 2 affine, 2 variant\n",
		"Thread-Invariant values:\n",
		"Affine values:\n  %idx = shl i32 %tid, 2\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("escape codes with color disabled")
	}
	if strings.Count(out, "kernel vecScale") != 2 {
		t.Errorf("expected two kernel blocks")
	}
}

func TestWriteTextTruncates(t *testing.T) {
	k := report.Kernel{Name: "k", Entries: []report.Entry{{Ref: "%x", Text: "%x = add i32 %averyveryverylongname, 1", Class: "variant"}}}
	var buf bytes.Buffer
	if err := report.WriteText(&buf, []report.Kernel{k}, report.TextOptions{Width: 12}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "%x = add ...\n") {
		t.Fatalf("not truncated:\n%s", buf.String())
	}
}

func TestWriteTextWidthIsExact(t *testing.T) {
	text := "%x = add i32 %averyveryverylongname, 1"
	k := report.Kernel{Name: "k", Entries: []report.Entry{{Ref: "%x", Text: text, Class: "variant"}}}
	tests := []struct {
		width int
		want  string
	}{
		{width: 0, want: text},
		{width: 3, want: "%x "},
		{width: 4, want: "%..."},
		{width: 12, want: "%x = add ..."},
		{width: 200, want: text},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		if err := report.WriteText(&buf, []report.Kernel{k}, report.TextOptions{Width: tt.width}); err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(buf.String(), "\n")
		got := strings.TrimPrefix(lines[1], "  variant    ")
		if got != tt.want {
			t.Errorf("width %d: got %q, want %q", tt.width, got, tt.want)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	k := buildKernel(t)
	var buf bytes.Buffer
	if err := report.WriteJSON(&buf, []report.Kernel{k}); err != nil {
		t.Fatal(err)
	}
	var got []report.Kernel
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(got) != 1 || got[0].Name != "vecScale" || got[0].Summary != k.Summary {
		t.Fatalf("decoded %+v", got)
	}

	buf.Reset()
	if err := report.WriteJSON(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Fatalf("nil kernels = %q", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]string{"": "text", "TEXT": "text", "json": "json"} {
		if got, err := report.ParseFormat(in); err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := report.ParseFormat("yaml"); err == nil {
		t.Errorf("yaml accepted")
	}
}
