package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/small-frappuccino/eventcore/pkg/model"
	"github.com/small-frappuccino/eventcore/pkg/storage"
	"github.com/small-frappuccino/eventcore/pkg/task"
)

// TaskCheckpoint is the task type used for persisted writes.
const TaskCheckpoint = "snapshot.checkpoint"

// Persister is the durable side of the checkpointer. *storage.Store implements it.
type Persister interface {
	UpsertSnapshot(ctx context.Context, rec storage.SnapshotRecord) error
	DeleteSnapshot(ctx context.Context, kind, id string) error
	LoadSnapshots(ctx context.Context, kind string, fn func(storage.SnapshotRecord) error) error
}

// Dispatcher is the subset of *task.TaskRouter the checkpointer needs.
type Dispatcher interface {
	RegisterHandler(taskType string, handler task.TaskHandler)
	Dispatch(t task.Task) error
}

type checkpointOp struct {
	kind    Kind
	id      string
	data    []byte
	at      time.Time
	deleted bool
}

// Checkpointer mirrors store writes into a Persister. It is a store Observer:
// writes are encoded on the caller's goroutine and handed to the task router,
// grouped per entity so a later write never lands before an earlier one.
type Checkpointer struct {
	persister Persister
	router    Dispatcher
	logger    *slog.Logger
}

// NewCheckpointer registers the checkpoint task handler on router.
func NewCheckpointer(p Persister, router Dispatcher, logger *slog.Logger) *Checkpointer {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Checkpointer{persister: p, router: router, logger: logger}
	router.RegisterHandler(TaskCheckpoint, c.handle)
	return c
}

// OnPut implements Observer.
func (c *Checkpointer) OnPut(kind Kind, id string, snap any) {
	data, err := json.Marshal(snap)
	if err != nil {
		c.logger.Error("Snapshot not checkpointed (encode failed)", "kind", kind, "id", id, "err", err)
		return
	}
	c.enqueue(checkpointOp{kind: kind, id: id, data: data, at: time.Now()})
}

// OnRemove implements Observer.
func (c *Checkpointer) OnRemove(kind Kind, id string) {
	c.enqueue(checkpointOp{kind: kind, id: id, at: time.Now(), deleted: true})
}

func (c *Checkpointer) enqueue(op checkpointOp) {
	err := c.router.Dispatch(task.Task{
		Type:    TaskCheckpoint,
		Payload: op,
		Options: task.TaskOptions{GroupKey: "snapshot:" + string(op.kind) + ":" + op.id, Ordered: true},
	})
	if err != nil && !errors.Is(err, task.ErrRouterClosed) {
		c.logger.Warn("Snapshot checkpoint dropped", "kind", op.kind, "id", op.id, "err", err)
	}
}

func (c *Checkpointer) handle(ctx context.Context, payload any) error {
	op, ok := payload.(checkpointOp)
	if !ok {
		return fmt.Errorf("checkpoint: unexpected payload %T", payload)
	}
	if op.deleted {
		return c.persister.DeleteSnapshot(ctx, string(op.kind), op.id)
	}
	return c.persister.UpsertSnapshot(ctx, storage.SnapshotRecord{
		Kind:      string(op.kind),
		ID:        op.id,
		Data:      op.data,
		UpdatedAt: op.at,
	})
}

// Restore loads every persisted snapshot into s without notifying its
// observer and returns how many were loaded. Records that fail to decode are
// skipped and logged.
func Restore(ctx context.Context, s *Store, p Persister, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	total := 0
	for _, kind := range Kinds {
		err := p.LoadSnapshots(ctx, string(kind), func(rec storage.SnapshotRecord) error {
			snap, err := decode(kind, rec.Data)
			if err != nil {
				logger.Warn("Skipping undecodable snapshot", "kind", kind, "id", rec.ID, "err", err)
				return nil
			}
			s.load(kind, rec.ID, snap)
			total++
			return nil
		})
		if err != nil {
			return total, fmt.Errorf("restore %s snapshots: %w", kind, err)
		}
	}
	return total, nil
}

func decode(kind Kind, data []byte) (any, error) {
	switch kind {
	case KindMember:
		var m model.Member
		err := json.Unmarshal(data, &m)
		return m, err
	case KindPresence:
		var p model.Presence
		err := json.Unmarshal(data, &p)
		return p, err
	case KindUser:
		var u model.User
		err := json.Unmarshal(data, &u)
		return u, err
	case KindChannel:
		var ch model.Channel
		err := json.Unmarshal(data, &ch)
		return ch, err
	}
	return nil, fmt.Errorf("unknown snapshot kind %q", kind)
}
