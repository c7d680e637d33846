package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store := NewStore(dbPath)
	if err := store.Init(); err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSchemaInitialized(t *testing.T) {
	store := newTempStore(t)
	rows, err := store.db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	if err != nil {
		t.Fatalf("query schema: %v", err)
	}
	defer rows.Close()

	required := map[string]bool{
		"snapshots":    false,
		"runtime_meta": false,
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if _, ok := required[name]; ok {
			required[name] = true
		}
	}
	for k, ok := range required {
		if !ok {
			t.Fatalf("expected table %s to exist", k)
		}
	}
}

func TestMethodsBeforeInit(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "never.db"))
	ctx := context.Background()
	if err := store.UpsertSnapshot(ctx, SnapshotRecord{Kind: "member", ID: "g:u"}); !errors.Is(err, ErrStoreNotInitialized) {
		t.Fatalf("UpsertSnapshot err = %v", err)
	}
	if _, _, err := store.GetHeartbeat(); !errors.Is(err, ErrStoreNotInitialized) {
		t.Fatalf("GetHeartbeat err = %v", err)
	}
}

func TestUpsertSnapshotReplaces(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()

	if err := store.UpsertSnapshot(ctx, SnapshotRecord{Kind: "member", ID: "g1:u1", Data: []byte(`{"nick":"a"}`)}); err != nil {
		t.Fatalf("upsert1: %v", err)
	}
	if err := store.UpsertSnapshot(ctx, SnapshotRecord{Kind: "member", ID: "g1:u1", Data: []byte(`{"nick":"b"}`)}); err != nil {
		t.Fatalf("upsert2: %v", err)
	}

	rec, ok, err := store.GetSnapshot(ctx, "member", "g1:u1")
	if err != nil || !ok {
		t.Fatalf("GetSnapshot ok=%v err=%v", ok, err)
	}
	if string(rec.Data) != `{"nick":"b"}` {
		t.Fatalf("expected latest data, got %s", rec.Data)
	}
	stats, err := store.SnapshotStats()
	if err != nil {
		t.Fatalf("SnapshotStats: %v", err)
	}
	if stats["member"] != 1 {
		t.Fatalf("expected one member row, got %v", stats)
	}
}

func TestUpsertSnapshotRequiresIdentity(t *testing.T) {
	store := newTempStore(t)
	if err := store.UpsertSnapshot(context.Background(), SnapshotRecord{Kind: "member"}); err == nil {
		t.Fatalf("expected error for missing id")
	}
}

func TestDeleteAndLoadSnapshots(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"c1", "c2", "c3"} {
		rec := SnapshotRecord{Kind: "channel", ID: id, Data: []byte(`{}`), UpdatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.UpsertSnapshot(ctx, rec); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}
	if err := store.UpsertSnapshot(ctx, SnapshotRecord{Kind: "user", ID: "u1", Data: []byte(`{}`)}); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	if err := store.DeleteSnapshot(ctx, "channel", "c2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeleteSnapshot(ctx, "channel", "absent"); err != nil {
		t.Fatalf("delete absent should not fail: %v", err)
	}

	var ids []string
	err := store.LoadSnapshots(ctx, "channel", func(rec SnapshotRecord) error {
		ids = append(ids, rec.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("LoadSnapshots: %v", err)
	}
	if len(ids) != 2 || ids[0] != "c1" || ids[1] != "c3" {
		t.Fatalf("unexpected ids %v", ids)
	}

	stop := errors.New("stop")
	calls := 0
	err = store.LoadSnapshots(ctx, "channel", func(SnapshotRecord) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("expected scan to stop on first error, err=%v calls=%d", err, calls)
	}
}

func TestPruneSnapshots(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	if err := store.UpsertSnapshot(ctx, SnapshotRecord{Kind: "presence", ID: "old", Data: []byte(`{}`), UpdatedAt: old}); err != nil {
		t.Fatalf("upsert old: %v", err)
	}
	if err := store.UpsertSnapshot(ctx, SnapshotRecord{Kind: "presence", ID: "new", Data: []byte(`{}`)}); err != nil {
		t.Fatalf("upsert new: %v", err)
	}

	n, err := store.PruneSnapshots(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneSnapshots: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one pruned row, got %d", n)
	}
	if _, ok, _ := store.GetSnapshot(ctx, "presence", "new"); !ok {
		t.Fatalf("fresh snapshot should survive pruning")
	}
}

func TestHeartbeatAndLastEvent(t *testing.T) {
	store := newTempStore(t)

	if _, ok, err := store.GetHeartbeat(); err != nil || ok {
		t.Fatalf("expected no heartbeat yet, ok=%v err=%v", ok, err)
	}
	hb := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := store.SetHeartbeat(hb); err != nil {
		t.Fatalf("SetHeartbeat: %v", err)
	}
	got, ok, err := store.GetHeartbeat()
	if err != nil || !ok || !got.Equal(hb) {
		t.Fatalf("GetHeartbeat = %v ok=%v err=%v", got, ok, err)
	}

	if err := store.SetLastEvent(time.Time{}); err != nil {
		t.Fatalf("SetLastEvent: %v", err)
	}
	if _, ok, err := store.GetLastEvent(); err != nil || !ok {
		t.Fatalf("expected last event to be recorded, ok=%v err=%v", ok, err)
	}
}
