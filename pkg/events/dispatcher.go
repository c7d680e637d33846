package events

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/small-frappuccino/eventcore/pkg/events"

// HandlerFailure reports a handler that returned an error or panicked.
type HandlerFailure struct {
	Event string
	Index int
	Err   error
	Panic any
}

func (f *HandlerFailure) Error() string {
	if f.Panic != nil {
		return fmt.Sprintf("event %s: handler %d panicked: %v", f.Event, f.Index, f.Panic)
	}
	return fmt.Sprintf("event %s: handler %d: %v", f.Event, f.Index, f.Err)
}

func (f *HandlerFailure) Unwrap() error { return f.Err }

// DispatchResult summarizes one dispatch.
type DispatchResult struct {
	Event    string
	Handlers int
	Failures []*HandlerFailure
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger failures are written to.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *Dispatcher) {
		if tp != nil {
			d.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// WithFailureHook registers fn to receive every HandlerFailure. fn runs on
// the dispatching goroutine.
func WithFailureHook(fn func(*HandlerFailure)) Option {
	return func(d *Dispatcher) { d.onFailure = fn }
}

// Dispatcher invokes a registry's handlers synchronously, in registration
// order, isolating failures.
type Dispatcher struct {
	registry  *Registry
	logger    *slog.Logger
	tracer    trace.Tracer
	onFailure func(*HandlerFailure)
}

// NewDispatcher creates a dispatcher over r.
func NewDispatcher(r *Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: r,
		logger:   slog.Default(),
		tracer:   otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry the dispatcher reads.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dispatch calls every handler registered for name when the call starts.
// Registrations made while it runs take effect on the next dispatch. ctx is
// passed to handlers and used for tracing only; it does not cancel dispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, payload any) DispatchResult {
	name = Normalize(name)
	list := d.registry.snapshot(name)
	res := DispatchResult{Event: name, Handlers: len(list)}
	if len(list) == 0 {
		return res
	}

	ctx, span := d.tracer.Start(ctx, "events.dispatch",
		trace.WithAttributes(
			attribute.String("event.name", name),
			attribute.Int("event.handlers", len(list)),
		),
	)
	defer span.End()

	for i, e := range list {
		if f := d.invoke(ctx, name, i, e.fn, payload); f != nil {
			res.Failures = append(res.Failures, f)
			d.logger.Error("Event handler failed", "event", name, "index", i, "err", f)
			if d.onFailure != nil {
				d.onFailure(f)
			}
		}
	}

	span.SetAttributes(attribute.Int("event.failures", len(res.Failures)))
	if len(res.Failures) > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d handler(s) failed", len(res.Failures)))
	}
	return res
}

func (d *Dispatcher) invoke(ctx context.Context, name string, idx int, fn Handler, payload any) (failure *HandlerFailure) {
	defer func() {
		if p := recover(); p != nil {
			failure = &HandlerFailure{Event: name, Index: idx, Panic: p}
		}
	}()
	if err := fn(ctx, payload); err != nil {
		return &HandlerFailure{Event: name, Index: idx, Err: err}
	}
	return nil
}
