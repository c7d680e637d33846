package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/small-frappuccino/eventcore/pkg/events"
	"github.com/small-frappuccino/eventcore/pkg/model"
	"github.com/small-frappuccino/eventcore/pkg/task"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func newTestRouter(t *testing.T) *task.TaskRouter {
	t.Helper()
	router := task.NewRouter(task.RouterConfig{
		InitialBackoff:  5 * time.Millisecond,
		MaxBackoff:      10 * time.Millisecond,
		CleanupInterval: 20 * time.Millisecond,
	})
	t.Cleanup(router.Close)
	return router
}

type memoryPublisher struct {
	mu     sync.Mutex
	fail   int
	events []string
	data   [][]byte
	closed bool
}

func (m *memoryPublisher) Name() string { return "memory" }

func (m *memoryPublisher) Publish(_ context.Context, event string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail > 0 {
		m.fail--
		return errors.New("broker unavailable")
	}
	m.events = append(m.events, event)
	m.data = append(m.data, data)
	return nil
}

func (m *memoryPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memoryPublisher) published() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestBindForwardsEnvelopesInOrder(t *testing.T) {
	mem := &memoryPublisher{}
	r := New(newTestRouter(t), nil, mem)
	reg := events.NewRegistry(nil)
	if got := len(r.Bind(reg, "user_join")); got != 1 {
		t.Fatalf("expected one handle, got %d", got)
	}
	d := events.NewDispatcher(reg)

	for _, id := range []string{"u1", "u2", "u3"} {
		m := model.Member{GuildID: "g1", User: model.User{ID: id}}
		d.Dispatch(context.Background(), events.UserJoin, events.MemberJoin{Member: m})
	}
	d.Dispatch(context.Background(), events.UserRemove, events.MemberRemove{})

	waitFor(t, func() bool { return len(mem.published()) == 3 })

	var ids []string
	mem.mu.Lock()
	for _, data := range mem.data {
		var env struct {
			ID      string `json:"id"`
			Event   string `json:"event"`
			Payload struct {
				Member model.Member `json:"member"`
			} `json:"payload"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if env.ID == "" || env.Event != events.UserJoin {
			t.Fatalf("unexpected envelope %+v", env)
		}
		ids = append(ids, env.Payload.Member.User.ID)
	}
	mem.mu.Unlock()
	if ids[0] != "u1" || ids[1] != "u2" || ids[2] != "u3" {
		t.Fatalf("relay reordered events: %v", ids)
	}
}

func TestPublishIsRetried(t *testing.T) {
	mem := &memoryPublisher{fail: 1}
	r := New(newTestRouter(t), nil, mem)
	if err := r.Forward(events.TypingStart, events.TypingStartPayload{}); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	waitFor(t, func() bool { return len(mem.published()) == 1 })
}

func TestCloseClosesPublishers(t *testing.T) {
	mem := &memoryPublisher{}
	r := New(newTestRouter(t), nil, mem, NoopPublisher{})
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !mem.closed {
		t.Fatalf("publisher not closed")
	}
}

func TestNATSPublisherDeliversToSubject(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 4)
	sub, err := nc.ChanSubscribe(NATSSubjectPrefix+">", ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	if err := nc.Flush(); err != nil {
		t.Fatalf("flush subscriber: %v", err)
	}

	r := New(newTestRouter(t), nil, pub)
	reg := events.NewRegistry(nil)
	r.Bind(reg, events.PresenceUpdateStatus)
	events.NewDispatcher(reg).Dispatch(context.Background(), events.PresenceUpdateStatus, events.StatusUpdate{
		Presence: model.Presence{GuildID: "g1", User: model.User{ID: "u1"}, Status: model.StatusIdle},
		Previous: model.StatusOnline,
	})

	select {
	case msg := <-ch:
		if msg.Subject != "eventcore.PRESENCE_UPDATE_STATUS" {
			t.Fatalf("unexpected subject %q", msg.Subject)
		}
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		payload, ok := env.Payload.(map[string]any)
		if !ok || payload["previous"] != "online" {
			t.Fatalf("unexpected payload %#v", env.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for NATS message")
	}
}

func TestRedisPublisherDeliversToChannel(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer m.Close()

	ctx := context.Background()
	pub, err := NewRedisPublisher(ctx, "redis://"+m.Addr())
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer rc.Close()
	sub := rc.Subscribe(ctx, RedisChannelPrefix+events.UserJoin)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	r := New(newTestRouter(t), nil, pub)
	if err := r.Forward(events.UserJoin, events.MemberJoin{Member: model.Member{GuildID: "g1", User: model.User{ID: "u1"}}}); err != nil {
		t.Fatalf("Forward: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var env Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Event != events.UserJoin || env.ID == "" {
			t.Fatalf("unexpected envelope %+v", env)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Redis message")
	}
}

func TestNewRedisPublisherRejectsBadURL(t *testing.T) {
	if _, err := NewRedisPublisher(context.Background(), "not-a-url"); err == nil {
		t.Fatalf("expected parse error")
	}
}
