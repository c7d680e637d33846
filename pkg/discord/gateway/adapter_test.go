package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/eventcore/pkg/events"
	"github.com/small-frappuccino/eventcore/pkg/ingest"
	"github.com/small-frappuccino/eventcore/pkg/model"
	"github.com/small-frappuccino/eventcore/pkg/snapshot"
)

type recordingIngester struct {
	mu      sync.Mutex
	updates []ingest.Update
	err     error
}

func (r *recordingIngester) Ingest(ctx context.Context, u ingest.Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
	return r.err
}

func (r *recordingIngester) last(t *testing.T) ingest.Update {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		t.Fatalf("no update ingested")
	}
	return r.updates[len(r.updates)-1]
}

type fakeState struct {
	channels map[string]*discordgo.Channel
	members  map[string]*discordgo.Member
}

func (f fakeState) Channel(id string) (*discordgo.Channel, error) {
	if c, ok := f.channels[id]; ok {
		return c, nil
	}
	return nil, discordgo.ErrStateNotFound
}

func (f fakeState) Member(guildID, userID string) (*discordgo.Member, error) {
	if m, ok := f.members[guildID+":"+userID]; ok {
		return m, nil
	}
	return nil, discordgo.ErrStateNotFound
}

func TestAdapterConvertsEvents(t *testing.T) {
	sink := &recordingIngester{}
	a := NewAdapter(context.Background(), sink, nil)

	a.onMemberAdd(nil, &discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "u1"}}})
	if u, ok := sink.last(t).(ingest.MemberAdd); !ok || u.Member.Key() != "g1:u1" {
		t.Fatalf("unexpected update %#v", sink.last(t))
	}

	a.onPresenceUpdate(nil, &discordgo.PresenceUpdate{
		GuildID:  "g1",
		Presence: discordgo.Presence{User: &discordgo.User{ID: "u1"}, Status: discordgo.StatusOnline},
	})
	if u, ok := sink.last(t).(ingest.PresenceUpdate); !ok || u.Presence.GuildID != "g1" || u.Presence.Status != model.StatusOnline {
		t.Fatalf("unexpected update %#v", sink.last(t))
	}

	a.onChannelUpdate(nil, &discordgo.ChannelUpdate{Channel: &discordgo.Channel{ID: "c1", Name: "new"}})
	if u, ok := sink.last(t).(ingest.ChannelUpdate); !ok || u.Channel.Name != "new" {
		t.Fatalf("unexpected update %#v", sink.last(t))
	}

	a.onGuildDelete(nil, &discordgo.GuildDelete{Guild: &discordgo.Guild{ID: "g1"}})
	if u, ok := sink.last(t).(ingest.GuildDelete); !ok || u.Guild.ID != "g1" {
		t.Fatalf("unexpected update %#v", sink.last(t))
	}
}

func TestAdapterConvertsMessages(t *testing.T) {
	sink := &recordingIngester{}
	a := NewAdapter(context.Background(), sink, nil)
	author := &discordgo.User{ID: "u1", Username: "alice"}

	a.onMessageCreate(nil, &discordgo.MessageCreate{Message: &discordgo.Message{ID: "m1", ChannelID: "c1", Author: author, Content: "hi"}})
	if u, ok := sink.last(t).(ingest.MessageCreate); !ok || u.Message.ID != "m1" || u.Message.Author.Username != "alice" {
		t.Fatalf("unexpected update %#v", sink.last(t))
	}

	a.onMessageUpdate(nil, &discordgo.MessageUpdate{Message: &discordgo.Message{ID: "m1", ChannelID: "c1", Content: "hey"}})
	if u, ok := sink.last(t).(ingest.MessageUpdate); !ok || u.Message.Content != "hey" {
		t.Fatalf("unexpected update %#v", sink.last(t))
	}

	a.onMessageDelete(nil, &discordgo.MessageDelete{Message: &discordgo.Message{ID: "m1", ChannelID: "c1"}})
	if u, ok := sink.last(t).(ingest.MessageDelete); !ok || u.Message.ID != "m1" || u.Message.Content != "" {
		t.Fatalf("unexpected update %#v", sink.last(t))
	}

	a.onMessageDelete(nil, &discordgo.MessageDelete{
		Message:      &discordgo.Message{ID: "m1", ChannelID: "c1"},
		BeforeDelete: &discordgo.Message{ID: "m1", ChannelID: "c1", Author: author, Content: "hey"},
	})
	if u, ok := sink.last(t).(ingest.MessageDelete); !ok || u.Message.Content != "hey" {
		t.Fatalf("cached content should be delivered on delete, got %#v", sink.last(t))
	}
}

func TestAdapterResumedReusesSessionID(t *testing.T) {
	sink := &recordingIngester{}
	a := NewAdapter(context.Background(), sink, nil)

	a.onReady(nil, &discordgo.Ready{SessionID: "s1"})
	if u := sink.last(t).(ingest.Connected); u.SessionID != "s1" || u.Resumed {
		t.Fatalf("unexpected ready update %+v", u)
	}
	a.onResumed(nil, &discordgo.Resumed{})
	if u := sink.last(t).(ingest.Connected); u.SessionID != "s1" || !u.Resumed {
		t.Fatalf("unexpected resumed update %+v", u)
	}
}

func TestAdapterIgnoresIngestErrors(t *testing.T) {
	sink := &recordingIngester{err: errors.New("malformed")}
	a := NewAdapter(context.Background(), sink, nil)
	a.onMemberRemove(nil, &discordgo.GuildMemberRemove{Member: &discordgo.Member{}})
	if _, ok := sink.last(t).(ingest.MemberRemove); !ok {
		t.Fatalf("expected member remove update")
	}
}

func TestTypingResolvesUserByChannelType(t *testing.T) {
	state := fakeState{
		channels: map[string]*discordgo.Channel{
			"dm":    {ID: "dm", Type: discordgo.ChannelTypeDM, Recipients: []*discordgo.User{{ID: "u1", Username: "alice"}}},
			"group": {ID: "group", Type: discordgo.ChannelTypeGroupDM, Recipients: []*discordgo.User{{ID: "u2", Username: "bob"}, {ID: "u3", Username: "carol"}}},
			"text":  {ID: "text", GuildID: "g1", Type: discordgo.ChannelTypeGuildText, Name: "general"},
		},
		members: map[string]*discordgo.Member{
			"g1:u4": {GuildID: "g1", User: &discordgo.User{ID: "u4", Username: "dave"}},
		},
	}

	tests := []struct {
		name     string
		event    discordgo.TypingStart
		wantUser string
		wantType model.ChannelType
	}{
		{"dm recipient", discordgo.TypingStart{ChannelID: "dm", UserID: "u1"}, "alice", model.ChannelDM},
		{"group dm recipient", discordgo.TypingStart{ChannelID: "group", UserID: "u3"}, "carol", model.ChannelGroupDM},
		{"guild member", discordgo.TypingStart{ChannelID: "text", GuildID: "g1", UserID: "u4"}, "dave", model.ChannelGuildText},
		{"unknown member", discordgo.TypingStart{ChannelID: "text", GuildID: "g1", UserID: "u9"}, "", model.ChannelGuildText},
		{"uncached dm", discordgo.TypingStart{ChannelID: "other", UserID: "u1"}, "", model.ChannelDM},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := Typing(state, &tt.event)
			if u.User.ID != tt.event.UserID || u.User.Username != tt.wantUser {
				t.Fatalf("user = %+v, want username %q", u.User, tt.wantUser)
			}
			if u.Channel.ID != tt.event.ChannelID || u.Channel.Type != tt.wantType {
				t.Fatalf("channel = %+v", u.Channel)
			}
		})
	}
}

func TestTypingWithoutState(t *testing.T) {
	u := Typing(nil, &discordgo.TypingStart{ChannelID: "c1", GuildID: "g1", UserID: "u1"})
	if u.Channel.GuildID != "g1" || u.User.ID != "u1" {
		t.Fatalf("unexpected update %+v", u)
	}
}

func TestAttachRunsHandlersInGatewayOrder(t *testing.T) {
	s := &discordgo.Session{}
	a := NewAdapter(context.Background(), &recordingIngester{}, nil)
	detach := a.Attach(s)
	defer detach()

	if !s.SyncEvents {
		t.Fatalf("Attach should make discordgo deliver updates synchronously")
	}
}

func TestPresenceSequenceIsDiffedInOrder(t *testing.T) {
	store := snapshot.NewStore()
	reg := events.NewRegistry(nil)
	var seen []string
	reg.On(events.PresenceUpdateStatus, events.Typed(func(ctx context.Context, p events.StatusUpdate) error {
		seen = append(seen, string(p.Previous)+"->"+string(p.Presence.Status))
		return nil
	}))
	a := NewAdapter(context.Background(), ingest.NewPipeline(store, events.NewDispatcher(reg)), nil)

	for _, st := range []discordgo.Status{discordgo.StatusOnline, discordgo.StatusIdle, discordgo.StatusDoNotDisturb} {
		a.onPresenceUpdate(nil, &discordgo.PresenceUpdate{
			GuildID:  "g1",
			Presence: discordgo.Presence{User: &discordgo.User{ID: "u1"}, Status: st},
		})
	}

	if len(seen) != 2 || seen[0] != "online->idle" || seen[1] != "idle->dnd" {
		t.Fatalf("status updates = %v", seen)
	}
	p, ok := snapshot.Lookup[model.Presence](store, snapshot.KindPresence, "g1:u1")
	if !ok || p.Status != model.StatusDND {
		t.Fatalf("stored presence = %+v", p)
	}
}
