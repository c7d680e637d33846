package model

import "testing"

func TestUserTag(t *testing.T) {
	tests := []struct {
		user User
		want string
	}{
		{User{Username: "alice", Discriminator: "0001"}, "alice#0001"},
		{User{Username: "alice", Discriminator: "0"}, "alice"},
		{User{Username: "alice"}, "alice"},
	}
	for _, tt := range tests {
		if got := tt.user.Tag(); got != tt.want {
			t.Errorf("Tag() = %q, want %q", got, tt.want)
		}
	}
}

func TestMemberDisplayName(t *testing.T) {
	m := Member{User: User{Username: "alice"}}
	if got := m.DisplayName(); got != "alice" {
		t.Fatalf("DisplayName() = %q", got)
	}
	m.Nick = Some("ally")
	if got := m.DisplayName(); got != "ally" {
		t.Fatalf("DisplayName() = %q", got)
	}
	m.Nick = Some("")
	if got := m.DisplayName(); got != "alice" {
		t.Fatalf("empty nick should fall back to username, got %q", got)
	}
}

func TestOptional(t *testing.T) {
	absent := None[string]()
	if absent.OrElse("x") != "x" {
		t.Fatalf("absent OrElse should return the default")
	}
	if !absent.Equal(Optional[string]{}) {
		t.Fatalf("absent values should be equal")
	}
	if absent.Equal(Some("")) {
		t.Fatalf("absent should differ from a present empty value")
	}
	if Some("a").OrElse("x") != "a" || !Some("a").Equal(Some("a")) {
		t.Fatalf("present value mismatch")
	}
}

func TestStatusIsOffline(t *testing.T) {
	for _, s := range []Status{StatusOffline, StatusInvisible, ""} {
		if !s.IsOffline() {
			t.Errorf("%q should be offline", s)
		}
	}
	for _, s := range []Status{StatusOnline, StatusIdle, StatusDND} {
		if s.IsOffline() {
			t.Errorf("%q should not be offline", s)
		}
	}
}
