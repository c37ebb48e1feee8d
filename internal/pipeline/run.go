package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Run is the caller's handle on an executing run.
type Run struct {
	id     string
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}

	seq     int64
	dropped atomic.Int64

	mu      sync.RWMutex
	state   PipelineRun
	summary Summary
	err     error
}

func newRun(id string, buffer int, cancel context.CancelFunc) *Run {
	return &Run{
		id:     id,
		events: make(chan Event, buffer),
		cancel: cancel,
		done:   make(chan struct{}),
		state: PipelineRun{
			RunID:     id,
			Segments:  make(map[int]SegmentStatus),
			StartedAt: time.Now().UTC(),
		},
	}
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Events returns the progress channel. It is closed after the terminal event.
func (r *Run) Events() <-chan Event { return r.events }

// Cancel stops the run. Segments already rendering are cancelled through
// their context and no further segment is dispatched.
func (r *Run) Cancel() { r.cancel() }

// Done is closed once the run reached a terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

// DroppedEvents counts events discarded because the consumer lagged.
func (r *Run) DroppedEvents() int64 { return r.dropped.Load() }

// Wait blocks until the run finishes or ctx ends. The error is nil only for
// completed runs.
func (r *Run) Wait(ctx context.Context) (Summary, error) {
	select {
	case <-r.done:
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.summary, r.err
}

// Snapshot returns a copy of the current run record.
func (r *Run) Snapshot() PipelineRun {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.clone()
}

// emit sends an event without blocking. Only the orchestrator goroutine calls it.
func (r *Run) emit(stage string, index int, state, message string) {
	r.seq++
	ev := Event{
		RunID:        r.id,
		Seq:          r.seq,
		Time:         time.Now().UTC(),
		Stage:        stage,
		SegmentIndex: index,
		State:        state,
		Message:      message,
	}
	select {
	case r.events <- ev:
	default:
		r.dropped.Add(1)
	}
}

func (r *Run) update(fn func(*PipelineRun)) {
	r.mu.Lock()
	fn(&r.state)
	r.mu.Unlock()
}

func (r *Run) setSegment(index int, fn func(*SegmentStatus)) {
	r.update(func(p *PipelineRun) {
		st, ok := p.Segments[index]
		if !ok {
			st = SegmentStatus{Index: index, State: SegmentPending}
		}
		fn(&st)
		p.Segments[index] = st
	})
}

func (r *Run) currentState() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.State
}

func (r *Run) finish(summary Summary, err error) {
	r.mu.Lock()
	r.summary = summary
	r.err = err
	r.mu.Unlock()
	close(r.events)
	close(r.done)
}
