package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Handler receives one event payload. A returned error is reported as a
// HandlerFailure and never stops the remaining handlers.
type Handler func(ctx context.Context, payload any) error

// Typed adapts a handler for a concrete payload type. A payload of any other
// type is reported as an error.
func Typed[T any](fn func(ctx context.Context, payload T) error) Handler {
	return func(ctx context.Context, payload any) error {
		v, ok := payload.(T)
		if !ok {
			var want T
			return fmt.Errorf("payload type %T, want %T", payload, want)
		}
		return fn(ctx, v)
	}
}

// Handle identifies one registration in the registry that issued it.
type Handle struct {
	owner *Registry
	name  string
	id    uint64
}

// Name returns the normalized event name the handle is registered under.
func (h Handle) Name() string { return h.name }

type entry struct {
	id uint64
	fn Handler
}

// Registry maps event names to ordered handler lists. Lists are copy-on-write:
// a slice returned to a dispatcher is never mutated afterwards.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]entry
	nextID   uint64
	logger   *slog.Logger
}

// NewRegistry creates an empty registry. A nil logger means slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{handlers: make(map[string][]entry), logger: logger}
}

// Register appends h to the handlers of name. Unknown names are accepted.
func (r *Registry) Register(name string, h Handler) Handle {
	name = Normalize(name)
	if hint, ok := Retired(name); ok {
		r.logger.Warn("Handler registered for a retired event name; it will never fire", "event", name, "hint", hint)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	cur := r.handlers[name]
	next := make([]entry, len(cur), len(cur)+1)
	copy(next, cur)
	r.handlers[name] = append(next, entry{id: id, fn: h})
	return Handle{owner: r, name: name, id: id}
}

// On registers h and returns the registry for chaining.
func (r *Registry) On(name string, h Handler) *Registry {
	r.Register(name, h)
	return r
}

// Unregister removes the registration behind h. It reports whether it existed;
// a handle issued by another registry is never found.
func (r *Registry) Unregister(h Handle) bool {
	if h.owner != r {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.handlers[h.name]
	for i, e := range cur {
		if e.id != h.id {
			continue
		}
		if len(cur) == 1 {
			delete(r.handlers, h.name)
			return true
		}
		next := make([]entry, 0, len(cur)-1)
		next = append(next, cur[:i]...)
		next = append(next, cur[i+1:]...)
		r.handlers[h.name] = next
		return true
	}
	return false
}

// HandlersFor returns a copy of the handlers registered for name, in
// registration order.
func (r *Registry) HandlersFor(name string) []Handler {
	list := r.snapshot(name)
	out := make([]Handler, len(list))
	for i, e := range list {
		out[i] = e.fn
	}
	return out
}

// Len returns the number of handlers registered for name.
func (r *Registry) Len(name string) int {
	return len(r.snapshot(name))
}

// Names returns the event names that currently have handlers.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	return out
}

// Reset drops every registration.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[string][]entry)
}

func (r *Registry) snapshot(name string) []entry {
	name = Normalize(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[name]
}
