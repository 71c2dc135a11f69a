package trace

import (
	"fmt"
	"sync/atomic"
	"time"
)

var (
	seqCounter  atomic.Uint64
	spanCounter atomic.Uint64
)

func nextSeq() uint64 { return seqCounter.Add(1) }

func nextSpanID() uint64 { return spanCounter.Add(1) }

// Span is an open begin/end pair. A span whose scope the tracer filters
// out is inert: it emits nothing and hands out its parent's ID.
type Span struct {
	tracer  Tracer
	id      uint64
	parent  uint64
	scope   Scope
	name    string
	started time.Time
	extra   map[string]string
}

// Begin emits a SpanBegin event under parent (0 for a root span).
func Begin(t Tracer, scope Scope, name string, parent uint64) *Span {
	s := &Span{tracer: Nop, parent: parent}
	if t == nil || !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return s
	}
	s.tracer, s.id, s.scope, s.name, s.started = t, nextSpanID(), scope, name, time.Now()
	t.Emit(&Event{
		Time:     s.started,
		Kind:     KindSpanBegin,
		Scope:    scope,
		SpanID:   s.id,
		ParentID: parent,
		Name:     name,
	})
	return s
}

func (s *Span) live() bool {
	return s != nil && s.id != 0
}

// Set attaches key=value to the end event.
func (s *Span) Set(key, value string) {
	if !s.live() {
		return
	}
	if s.extra == nil {
		s.extra = make(map[string]string, 2)
	}
	s.extra[key] = value
}

// End emits the SpanEnd event. The elapsed time is attached as "elapsed".
func (s *Span) End(detail string) {
	if !s.live() {
		return
	}
	s.Set("elapsed", time.Since(s.started).Round(time.Microsecond).String())
	s.tracer.Emit(&Event{
		Time:     time.Now(),
		Kind:     KindSpanEnd,
		Scope:    s.scope,
		SpanID:   s.id,
		ParentID: s.parent,
		Name:     s.name,
		Detail:   detail,
		Extra:    s.extra,
	})
}

// Endf is End with a formatted detail. Arguments are only formatted for a
// live span.
func (s *Span) Endf(format string, args ...any) {
	if s.live() {
		s.End(fmt.Sprintf(format, args...))
	}
}

// ID returns the span ID, or the parent's ID for an inert span so that
// children still attach to the nearest live ancestor.
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	if s.id == 0 {
		return s.parent
	}
	return s.id
}
