package driver

import (
	"context"
	"fmt"
	"os"

	"lanevar/internal/cache"
	"lanevar/internal/ir"
	"lanevar/internal/kernel"
	"lanevar/internal/llvmir"
	"lanevar/internal/manifest"
	"lanevar/internal/observ"
	"lanevar/internal/report"
	"lanevar/internal/trace"
)

// FileRequest describes the analysis of one .ll file.
type FileRequest struct {
	Path     string
	Kernels  []manifest.Kernel
	Variance kernel.VarianceMap
	Jobs     int
	// Cache is consulted before importing and filled afterwards. Nil
	// disables caching.
	Cache    *cache.DiskCache
	Timer    *observ.Timer
}

// FileResult is the outcome of ClassifyFile.
type FileResult struct {
	Kernels []report.Kernel
	// Cached is set when the reports came from the cache.
	Cached  bool
	// Module is nil when Cached is set.
	Module  *ir.Module
}

// ClassifyFile imports path and classifies the requested kernels. A cache
// write failure is not fatal; it is reported on the trace.
func ClassifyFile(ctx context.Context, req FileRequest) (*FileResult, error) {
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeDriver, "classify "+req.Path, trace.CurrentSpan(ctx))
	defer span.End("")
	ctx = trace.WithSpan(ctx, span.ID())

	done := req.Timer.Track("read")
	data, err := os.ReadFile(req.Path)
	if err != nil {
		done("failed")
		return nil, fmt.Errorf("failed to read %s: %w", req.Path, err)
	}
	done(fmt.Sprintf("%d bytes", len(data)))

	variance := req.Variance
	if variance == nil {
		variance = kernel.DefaultVarianceMap()
	}
	key := cache.Key(data, fingerprint(req.Kernels, variance))
	if req.Cache != nil {
		kernels, ok, err := req.Cache.Get(key)
		if err != nil {
			trace.Point(tracer, trace.ScopeDriver, span.ID(), 0, "cache", err.Error())
		} else if ok {
			trace.Point(tracer, trace.ScopeDriver, span.ID(), 0, "cache", "hit "+key.String())
			return &FileResult{Kernels: kernels, Cached: true}, nil
		}
	}

	done = req.Timer.Track("import")
	mod, err := llvmir.ParseBytes(req.Path, data)
	if err != nil {
		done("failed")
		return nil, err
	}
	done(fmt.Sprintf("%d funcs", len(mod.Funcs)))

	kernels, err := Analyze(ctx, Request{
		Module:   mod,
		Kernels:  req.Kernels,
		Variance: variance,
		Jobs:     req.Jobs,
		Timer:    req.Timer,
	})
	if err != nil {
		return nil, err
	}

	if req.Cache != nil {
		if err := req.Cache.Put(key, kernels); err != nil {
			trace.Point(tracer, trace.ScopeDriver, span.ID(), 0, "cache", err.Error())
		}
	}
	return &FileResult{Kernels: kernels, Module: mod}, nil
}
