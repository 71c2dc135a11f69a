package trace

import (
	"fmt"
	"io"
	"sync"
)

// DefaultRingSize is the ring capacity used when none is configured.
const DefaultRingSize = 4096

// RingTracer keeps the most recent events in memory. With --trace-mode
// ring the CLI prints them on exit, so a debug-level run keeps the last
// classifier decisions without writing every one of them.
type RingTracer struct {
	mu    sync.Mutex
	buf   []Event
	total uint64 // events stored since creation
	level Level
}

// NewRingTracer creates a RingTracer holding up to capacity events.
func NewRingTracer(capacity int, level Level) *RingTracer {
	if capacity <= 0 {
		capacity = DefaultRingSize
	}
	return &RingTracer{buf: make([]Event, capacity), level: level}
}

// Emit stores a copy of ev, overwriting the oldest event when full.
func (t *RingTracer) Emit(ev *Event) {
	if !t.level.ShouldEmit(ev.Scope) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	ev.Seq = nextSeq()
	t.buf[t.total%uint64(len(t.buf))] = *ev
	t.total++
}

// Snapshot returns the stored events, oldest first.
func (t *RingTracer) Snapshot() []Event {
	events, _ := t.snapshot()
	return events
}

// Dropped returns how many events were overwritten.
func (t *RingTracer) Dropped() uint64 {
	_, dropped := t.snapshot()
	return dropped
}

func (t *RingTracer) snapshot() ([]Event, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	size := uint64(len(t.buf))
	kept := min(t.total, size)
	out := make([]Event, 0, kept)
	for seq := t.total - kept; seq < t.total; seq++ {
		out = append(out, t.buf[seq%size])
	}
	return out, t.total - kept
}

// Under returns the stored events of span id: its own begin and end and
// every event parented to it, such as the query decisions of one kernel.
func (t *RingTracer) Under(id uint64) []Event {
	var out []Event
	for _, ev := range t.Snapshot() {
		if ev.SpanID == id || ev.ParentID == id {
			out = append(out, ev)
		}
	}
	return out
}

// Dump writes the stored events to w. A text dump starts with a note when
// older events were overwritten.
func (t *RingTracer) Dump(w io.Writer, format Format) error {
	events, dropped := t.snapshot()
	if dropped > 0 && format != FormatNDJSON {
		if _, err := fmt.Fprintf(w, "(%d earlier events dropped)\n", dropped); err != nil {
			return err
		}
	}
	for i := range events {
		if _, err := w.Write(FormatEvent(&events[i], format)); err != nil {
			return err
		}
	}
	return nil
}

func (t *RingTracer) Flush() error  { return nil }
func (t *RingTracer) Close() error  { return nil }
func (t *RingTracer) Level() Level  { return t.level }
func (t *RingTracer) Enabled() bool { return t.level > LevelOff }
