// Package client ties one gateway connection to its own event registry,
// snapshot store and ingest pipeline.
package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/trace"

	"github.com/small-frappuccino/eventcore/pkg/discord/gateway"
	"github.com/small-frappuccino/eventcore/pkg/discord/session"
	"github.com/small-frappuccino/eventcore/pkg/events"
	"github.com/small-frappuccino/eventcore/pkg/ingest"
	"github.com/small-frappuccino/eventcore/pkg/snapshot"
)

var (
	ErrAlreadyOpen = errors.New("client already open")
	ErrClosed      = errors.New("client closed")
)

// Option configures a Client.
type Option func(*options)

type options struct {
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	failureHook    func(*events.HandlerFailure)
	ingestHook     func(ingest.Update)
	observer       snapshot.Observer
}

// WithLogger sets the logger used by every component of the client.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracerProvider sets the tracer provider for dispatch spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithFailureHook receives every handler failure after it is logged.
func WithFailureHook(fn func(*events.HandlerFailure)) Option {
	return func(o *options) { o.failureHook = fn }
}

// WithIngestHook runs after each successfully ingested update.
func WithIngestHook(fn func(ingest.Update)) Option {
	return func(o *options) { o.ingestHook = fn }
}

// WithObserver observes snapshot store writes, e.g. a checkpointer.
func WithObserver(obs snapshot.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// Client is one gateway connection's event core. The zero value is not
// usable; create one with New.
type Client struct {
	registry   *events.Registry
	dispatcher *events.Dispatcher
	store      *snapshot.Store
	pipeline   *ingest.Pipeline
	logger     *slog.Logger

	mu      sync.Mutex
	session *discordgo.Session
	detach  func()
	closed  bool
}

// New builds a client with an empty registry and store.
func New(opts ...Option) *Client {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	reg := events.NewRegistry(o.logger)
	dopts := []events.Option{events.WithLogger(o.logger)}
	if o.tracerProvider != nil {
		dopts = append(dopts, events.WithTracerProvider(o.tracerProvider))
	}
	if o.failureHook != nil {
		dopts = append(dopts, events.WithFailureHook(o.failureHook))
	}
	d := events.NewDispatcher(reg, dopts...)

	store := snapshot.NewStore()
	if o.observer != nil {
		store.SetObserver(o.observer)
	}

	popts := []ingest.Option{ingest.WithLogger(o.logger)}
	if o.ingestHook != nil {
		popts = append(popts, ingest.WithIngestHook(o.ingestHook))
	}

	return &Client{
		registry:   reg,
		dispatcher: d,
		store:      store,
		pipeline:   ingest.NewPipeline(store, d, popts...),
		logger:     o.logger,
	}
}

// On registers h for the named event and returns the client for chaining.
func (c *Client) On(name string, h events.Handler) *Client {
	c.registry.Register(name, h)
	return c
}

// Register registers h and returns a handle for Unregister.
func (c *Client) Register(name string, h events.Handler) events.Handle {
	return c.registry.Register(name, h)
}

// Unregister removes a registration. It reports whether it was present.
func (c *Client) Unregister(h events.Handle) bool {
	return c.registry.Unregister(h)
}

// Registry exposes the event registry, e.g. for relay binding.
func (c *Client) Registry() *events.Registry { return c.registry }

// Store exposes the snapshot store, e.g. for warmup.
func (c *Client) Store() *snapshot.Store { return c.store }

// Ingest feeds one raw update through the pipeline. Transports other than
// the discordgo session call this directly.
func (c *Client) Ingest(ctx context.Context, u ingest.Update) error {
	return c.pipeline.Ingest(ctx, u)
}

// Open connects to the gateway with token. Handlers registered before Open
// observe the initial READY and GUILD_CREATE events.
func (c *Client) Open(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.session != nil {
		return ErrAlreadyOpen
	}

	adapter := gateway.NewAdapter(ctx, c.pipeline, c.logger)
	var detach func()
	s, err := session.NewDiscordSession(token, func(s *discordgo.Session) {
		detach = adapter.Attach(s)
	})
	if err != nil {
		return err
	}
	c.session = s
	c.detach = detach
	return nil
}

// Session returns the open gateway session, or nil.
func (c *Client) Session() *discordgo.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Close disconnects and drops every registration. The client cannot be
// reopened. Snapshots stay in the store so a checkpointer keeps them.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	s, detach := c.session, c.detach
	c.session, c.detach = nil, nil
	c.mu.Unlock()

	if detach != nil {
		detach()
	}
	err := session.Close(s)
	c.registry.Reset()
	return err
}
