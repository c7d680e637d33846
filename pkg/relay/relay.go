// Package relay forwards dispatched events to message brokers. It binds
// ordinary handlers on an events.Registry; publishing runs on task router
// workers so dispatch never waits on the network.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/small-frappuccino/eventcore/pkg/events"
	"github.com/small-frappuccino/eventcore/pkg/task"
)

// TaskPublish is the task type used for broker publishes.
const TaskPublish = "relay.publish"

// Envelope is the wire format of a relayed event.
type Envelope struct {
	ID      string    `json:"id"`
	Event   string    `json:"event"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// Dispatcher is the subset of *task.TaskRouter the relay needs.
type Dispatcher interface {
	RegisterHandler(taskType string, handler task.TaskHandler)
	Dispatch(t task.Task) error
}

type publishJob struct {
	publisher Publisher
	event     string
	data      []byte
}

// Relay fans events out to its publishers.
type Relay struct {
	publishers []Publisher
	router     Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

// New registers the publish task on router.
func New(router Dispatcher, logger *slog.Logger, publishers ...Publisher) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Relay{publishers: publishers, router: router, logger: logger, now: time.Now}
	router.RegisterHandler(TaskPublish, r.handle)
	return r
}

// Bind registers a relay handler for each name. No names means every event
// the pipeline fires.
func (r *Relay) Bind(reg *events.Registry, names ...string) []events.Handle {
	if len(names) == 0 {
		names = events.Names
	}
	handles := make([]events.Handle, 0, len(names))
	for _, name := range names {
		name := events.Normalize(name)
		if name == "" {
			continue
		}
		handles = append(handles, reg.Register(name, func(ctx context.Context, payload any) error {
			return r.Forward(name, payload)
		}))
	}
	return handles
}

// Forward encodes an envelope for payload and queues one publish per
// publisher. Publishes for one event name and publisher keep their order.
func (r *Relay) Forward(event string, payload any) error {
	if len(r.publishers) == 0 {
		return nil
	}
	data, err := json.Marshal(Envelope{
		ID:      uuid.NewString(),
		Event:   event,
		At:      r.now().UTC(),
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("relay %s: encode envelope: %w", event, err)
	}

	var errs []error
	for _, p := range r.publishers {
		err := r.router.Dispatch(task.Task{
			Type:    TaskPublish,
			Payload: publishJob{publisher: p, event: event, data: data},
			Options: task.TaskOptions{GroupKey: "relay:" + p.Name() + ":" + event, Ordered: true},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("relay %s via %s: %w", event, p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (r *Relay) handle(ctx context.Context, payload any) error {
	job, ok := payload.(publishJob)
	if !ok {
		return fmt.Errorf("relay: unexpected payload %T", payload)
	}
	if err := job.publisher.Publish(ctx, job.event, job.data); err != nil {
		return fmt.Errorf("publish %s via %s: %w", job.event, job.publisher.Name(), err)
	}
	r.logger.Debug("Event relayed", "event", job.event, "publisher", job.publisher.Name(), "bytes", len(job.data))
	return nil
}

// Close closes every publisher. Close the task router first so queued
// publishes drain.
func (r *Relay) Close() error {
	var errs []error
	for _, p := range r.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s publisher: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}
