// Package driver binds kernels to their descriptor values and runs one
// classifier per kernel, in parallel.
package driver

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"lanevar/internal/affine"
	"lanevar/internal/ir"
	"lanevar/internal/kernel"
	"lanevar/internal/manifest"
	"lanevar/internal/observ"
	"lanevar/internal/report"
	"lanevar/internal/trace"
)

var (
	// ErrUnknownFunc is returned when a kernel names a function the module
	// does not define.
	ErrUnknownFunc  = errors.New("unknown function")
	// ErrUnknownValue is returned when a binding names a value the kernel
	// does not have.
	ErrUnknownValue = errors.New("unknown value")
)

// Request describes one analysis of an imported module.
type Request struct {
	Module   *ir.Module
	// Kernels to classify. Empty means every defined function, unbound.
	Kernels  []manifest.Kernel
	// Variance defaults to kernel.DefaultVarianceMap.
	Variance kernel.VarianceMap
	// Jobs limits parallel kernels; zero or less uses GOMAXPROCS.
	Jobs     int
	Timer    *observ.Timer
}

type job struct {
	fn   *ir.Func
	args *kernel.ThreadLocalArgument
}

// Analyze classifies every requested kernel. Reports come back in request
// order. Binding errors are reported before any kernel runs.
func Analyze(ctx context.Context, req Request) ([]report.Kernel, error) {
	if req.Module == nil {
		return nil, errors.New("no module to analyze")
	}
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeDriver, "analyze", trace.CurrentSpan(ctx))

	kernels := req.Kernels
	if len(kernels) == 0 {
		kernels = allKernels(req.Module)
	}
	jobs := make([]job, len(kernels))
	for i, k := range kernels {
		fn, args, err := Bind(req.Module, k)
		if err != nil {
			span.End(err.Error())
			return nil, err
		}
		jobs[i] = job{fn: fn, args: args}
	}

	variance := req.Variance
	if variance == nil {
		variance = kernel.DefaultVarianceMap()
	}
	limit := req.Jobs
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	results := make([]report.Kernel, len(jobs))
	done := req.Timer.Track("analyze")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(limit, len(jobs))))
	for i, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			kspan := trace.Begin(tracer, trace.ScopeKernel, j.fn.Name, span.ID())
			c := affine.New(j.fn, j.args, variance, affine.Options{Tracer: tracer, Span: kspan.ID()})
			results[i] = report.Build(j.fn, c, j.args.ThreadIDUses)
			s := results[i].Summary
			kspan.Endf("%d invariant, %d affine, %d variant", s.Invariant, s.Affine, s.Variant)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		done("canceled")
		span.End(err.Error())
		return nil, err
	}
	done(fmt.Sprintf("%d kernels", len(results)))
	span.Set("kernels", fmt.Sprint(len(results)))
	span.End("")
	return results, nil
}

// Bind resolves k against m: the function by name, each bound field by
// value name. When k leaves ThreadIDUses to the driver it is counted from
// the IR.
func Bind(m *ir.Module, k manifest.Kernel) (*ir.Func, *kernel.ThreadLocalArgument, error) {
	fn := m.Func(k.Name)
	if fn == nil || len(fn.Blocks) == 0 {
		return nil, nil, fmt.Errorf("kernel %q: %w", k.Name, ErrUnknownFunc)
	}
	args := &kernel.ThreadLocalArgument{}

	fields := make([]kernel.Field, 0, len(k.Bind))
	for f := range k.Bind {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	for _, f := range fields {
		name := k.Bind[f]
		v := fn.Lookup(name)
		if v == nil {
			return nil, nil, fmt.Errorf("kernel %q: %s = %q: %w", k.Name, f, name, ErrUnknownValue)
		}
		args.Bind(f, v)
	}

	if k.ThreadIDUses == manifest.AutoThreadIDUses {
		args.ThreadIDUses = kernel.CountThreadIDUses(fn, args)
	} else {
		args.ThreadIDUses = k.ThreadIDUses
	}
	return fn, args, nil
}

func allKernels(m *ir.Module) []manifest.Kernel {
	var out []manifest.Kernel
	for _, f := range m.Funcs {
		if len(f.Blocks) == 0 {
			continue
		}
		out = append(out, manifest.Kernel{Name: f.Name, ThreadIDUses: manifest.AutoThreadIDUses})
	}
	return out
}

// fingerprint renders everything besides the module text that influences
// a report, for cache keys.
func fingerprint(kernels []manifest.Kernel, variance kernel.VarianceMap) []byte {
	var sb strings.Builder
	for _, k := range kernels {
		fmt.Fprintf(&sb, "kernel %s %d\n", k.Name, k.ThreadIDUses)
		fields := make([]kernel.Field, 0, len(k.Bind))
		for f := range k.Bind {
			fields = append(fields, f)
		}
		sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
		for _, f := range fields {
			fmt.Fprintf(&sb, "  %s=%s\n", f, k.Bind[f])
		}
	}
	variance.Each(func(fv kernel.FieldVariance) {
		fmt.Fprintf(&sb, "variance %s %t\n", fv.Field, fv.Variant)
	})
	return []byte(sb.String())
}
