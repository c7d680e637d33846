package errutil

import (
	"errors"
	"strings"
	"testing"
)

func TestHandleDiscordErrorPassesThrough(t *testing.T) {
	boom := errors.New("boom")
	if err := HandleDiscordError("open", func() error { return boom }); err != boom {
		t.Fatalf("expected the original error, got %v", err)
	}
	if err := HandleDiscordError("open", func() error { return nil }); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestHandleStoreErrorWraps(t *testing.T) {
	boom := errors.New("disk full")
	err := HandleStoreError("heartbeat", func() error { return boom })
	if !errors.Is(err, boom) || !strings.HasPrefix(err.Error(), "store heartbeat:") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestHandleConfigErrorWraps(t *testing.T) {
	boom := errors.New("bad value")
	err := HandleConfigError("parse", "env", func() error { return boom })
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "config parse env") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestNilFunc(t *testing.T) {
	if HandleDiscordError("x", nil) == nil || HandleStoreError("x", nil) == nil || HandleConfigError("x", "y", nil) == nil {
		t.Fatalf("nil fn should be rejected")
	}
}
