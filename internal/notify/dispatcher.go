package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
	"go.uber.org/multierr"
)

// Notifier emits events. Emit never fails the caller; delivery is best effort.
type Notifier interface {
	Emit(ctx context.Context, events ...Event)
}

// Sink delivers events to one transport.
type Sink interface {
	Deliver(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Deliver(ctx context.Context, event Event) error { return f(ctx, event) }

// Dispatcher fans events out to every registered sink.
type Dispatcher struct {
	mu    sync.RWMutex
	sinks []Sink
	logg  *logger.Logger
}

// NewDispatcher builds a dispatcher over the provided sinks.
func NewDispatcher(logg *logger.Logger, sinks ...Sink) *Dispatcher {
	d := &Dispatcher{logg: logg}
	for _, s := range sinks {
		if s != nil {
			d.sinks = append(d.sinks, s)
		}
	}
	return d
}

// Register adds a sink after construction, e.g. the optional broker bridge.
func (d *Dispatcher) Register(sink Sink) {
	if sink == nil {
		return
	}
	d.mu.Lock()
	d.sinks = append(d.sinks, sink)
	d.mu.Unlock()
}

func (d *Dispatcher) Emit(ctx context.Context, events ...Event) {
	if d == nil {
		return
	}
	d.mu.RLock()
	sinks := append([]Sink(nil), d.sinks...)
	d.mu.RUnlock()

	for _, event := range events {
		var errs error
		for _, sink := range sinks {
			errs = multierr.Append(errs, deliver(ctx, sink, event))
		}
		if errs != nil && d.logg != nil {
			logCtx := d.logg.WithFields(ctx, map[string]any{
				"event":    event.Name,
				"audience": event.Audience.Room(),
			})
			d.logg.Warn(logCtx, fmt.Sprintf("notification delivery failed: %v", errs))
		}
	}
}

// deliver isolates a panicking sink so one transport cannot break the others.
func deliver(ctx context.Context, sink Sink, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return sink.Deliver(ctx, event)
}

// Recorder captures emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, events ...Event) {
	r.mu.Lock()
	r.events = append(r.events, events...)
	r.mu.Unlock()
}

func (r *Recorder) Deliver(ctx context.Context, event Event) error {
	r.Emit(ctx, event)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Named returns recorded events with the given name.
func (r *Recorder) Named(name string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Nop discards everything.
type Nop struct{}

func (Nop) Emit(context.Context, ...Event) {}
