package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// Publisher delivers an encoded envelope for one event name.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, event string, data []byte) error
	Close() error
}

// NATSSubjectPrefix prefixes the event name to form the NATS subject.
const NATSSubjectPrefix = "eventcore."

// NATSPublisher publishes envelopes to eventcore.<EVENT> subjects.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to url with automatic reconnection. Extra options
// are appended to the defaults.
func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	defaults := []nats.Option{
		nats.Name("eventcore-relay"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Name() string { return "nats" }

func (p *NATSPublisher) Publish(ctx context.Context, event string, data []byte) error {
	return p.conn.Publish(NATSSubjectPrefix+event, data)
}

// Flush waits until the server has processed every published message.
func (p *NATSPublisher) Flush() error {
	return p.conn.Flush()
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// RedisChannelPrefix prefixes the event name to form the Redis channel.
const RedisChannelPrefix = "eventcore:"

// RedisPublisher publishes envelopes to eventcore:<EVENT> pub/sub channels.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher connects using a redis:// URL and pings the server.
func NewRedisPublisher(ctx context.Context, url string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}
	return &RedisPublisher{client: client}, nil
}

func (p *RedisPublisher) Name() string { return "redis" }

func (p *RedisPublisher) Publish(ctx context.Context, event string, data []byte) error {
	return p.client.Publish(ctx, RedisChannelPrefix+event, data).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// NoopPublisher drops everything.
type NoopPublisher struct{}

func (NoopPublisher) Name() string                                  { return "noop" }
func (NoopPublisher) Publish(context.Context, string, []byte) error { return nil }
func (NoopPublisher) Close() error                                  { return nil }
