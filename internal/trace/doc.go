// Package trace records what lanevar does while it classifies kernels.
//
// Events are grouped by scope:
//
//   - ScopeDriver: CLI commands and whole-run phases (import, analyze, render)
//   - ScopeKernel: one kernel analysis, seeding included
//   - ScopeQuery: individual classifier decisions, nested by recursion depth
//
// and filtered by level (off, error, phase, detail, debug). Query events
// are only emitted at LevelDebug.
//
// Tracers travel through the pipeline in the context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopeKernel, "kernel:vecAdd", 0)
//	defer span.End("")
package trace
