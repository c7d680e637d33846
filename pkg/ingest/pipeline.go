package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/small-frappuccino/eventcore/pkg/diff"
	"github.com/small-frappuccino/eventcore/pkg/events"
	"github.com/small-frappuccino/eventcore/pkg/model"
	"github.com/small-frappuccino/eventcore/pkg/snapshot"
)

// ErrMalformedSnapshot is returned for updates missing fields required by
// their kind. The prior snapshot is kept and nothing is dispatched.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

func malformed(u Update, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformedSnapshot, u.Kind(), reason)
}

// Dispatcher is the subset of *events.Dispatcher the pipeline needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, payload any) events.DispatchResult
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithIngestHook registers fn to run after every successfully applied update.
func WithIngestHook(fn func(Update)) Option {
	return func(p *Pipeline) { p.afterIngest = fn }
}

// Pipeline applies updates to a snapshot store and dispatches the events
// their diffs produce. Events are dispatched after the entity's store lock is
// released, so handlers may read the store.
type Pipeline struct {
	store       *snapshot.Store
	dispatcher  Dispatcher
	logger      *slog.Logger
	afterIngest func(Update)
}

// NewPipeline creates a pipeline over store and dispatcher.
func NewPipeline(store *snapshot.Store, d Dispatcher, opts ...Option) *Pipeline {
	p := &Pipeline{store: store, dispatcher: d, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Store returns the snapshot store the pipeline writes.
func (p *Pipeline) Store() *snapshot.Store { return p.store }

type pending struct {
	name    string
	payload any
}

// Ingest applies one update. It returns an error wrapping
// ErrMalformedSnapshot when the update cannot be applied; every other
// outcome, including handler failures, returns nil.
func (p *Pipeline) Ingest(ctx context.Context, u Update) error {
	if u == nil {
		return fmt.Errorf("%w: nil update", ErrMalformedSnapshot)
	}

	var out []pending
	var err error
	switch u := u.(type) {
	case MemberAdd:
		out, err = p.memberAdd(u)
	case MemberRemove:
		out, err = p.memberRemove(u)
	case MemberUpdate:
		out, err = p.memberUpdate(u)
	case PresenceUpdate:
		out, err = p.presenceUpdate(u)
	case TypingStart:
		out, err = p.typingStart(u)
	case ChannelCreate:
		out, err = p.channelCreate(u)
	case ChannelUpdate:
		out, err = p.channelUpdate(u)
	case ChannelDelete:
		out, err = p.channelDelete(u)
	case MessageCreate:
		out, err = p.messageCreate(u)
	case MessageUpdate:
		out, err = message(u, events.MessageUpdate, u.Message)
	case MessageDelete:
		out, err = message(u, events.MessageDelete, u.Message)
	case GuildCreate:
		out, err = p.guildCreate(u)
	case GuildDelete:
		out, err = p.guildDelete(u)
	case Connected:
		out = []pending{{events.Connected, events.ConnectedPayload{SessionID: u.SessionID, Resumed: u.Resumed}}}
	default:
		return fmt.Errorf("%w: unsupported update %T", ErrMalformedSnapshot, u)
	}
	if err != nil {
		p.logger.Warn("Update dropped", "update", u.Kind(), "err", err)
		return err
	}

	for _, ev := range out {
		p.dispatcher.Dispatch(ctx, ev.name, ev.payload)
	}
	if p.afterIngest != nil {
		p.afterIngest(u)
	}
	return nil
}

func validMember(m model.Member) bool {
	return m.GuildID != "" && m.User.ID != ""
}

func (p *Pipeline) memberAdd(u MemberAdd) ([]pending, error) {
	if !validMember(u.Member) {
		return nil, malformed(u, "missing guild or user id")
	}
	m := u.Member.Clone()
	p.store.Put(snapshot.KindMember, m.Key(), m)
	p.seedUser(m.User)
	return []pending{{events.UserJoin, events.MemberJoin{Member: m.Clone()}}}, nil
}

func (p *Pipeline) memberRemove(u MemberRemove) ([]pending, error) {
	if !validMember(u.Member) {
		return nil, malformed(u, "missing guild or user id")
	}
	key := u.Member.Key()
	last := u.Member.Clone()
	p.store.Update(snapshot.KindMember, key, func(old any, ok bool) (any, bool) {
		if ok {
			last = old.(model.Member).Clone()
		}
		return nil, false
	})
	p.store.Remove(snapshot.KindPresence, key)
	return []pending{{events.UserRemove, events.MemberRemove{Member: last}}}, nil
}

func (p *Pipeline) memberUpdate(u MemberUpdate) ([]pending, error) {
	if !validMember(u.Member) {
		return nil, malformed(u, "missing guild or user id")
	}
	cur := u.Member.Clone()
	var prev model.Member
	var changes []diff.Change
	p.store.Update(snapshot.KindMember, cur.Key(), func(old any, ok bool) (any, bool) {
		if ok {
			prev = old.(model.Member)
			changes = diff.Member.Diff(prev, cur)
		}
		return cur, true
	})

	var out []pending
	for _, c := range changes {
		switch c := c.(type) {
		case diff.NickChanged:
			out = append(out, pending{events.MemberUpdateNick, events.NickUpdate{Member: cur.Clone(), Previous: c.Old}})
		case diff.RolesChanged:
			out = append(out, pending{events.MemberUpdateRoles, events.RolesUpdate{
				Member:   cur.Clone(),
				Previous: prev.Roles.Clone(),
				Added:    c.Added,
				Removed:  c.Removed,
			}})
		}
	}
	return out, nil
}

func (p *Pipeline) presenceUpdate(u PresenceUpdate) ([]pending, error) {
	cur := u.Presence
	if cur.GuildID == "" || cur.User.ID == "" {
		return nil, malformed(u, "missing guild or user id")
	}
	if cur.Status == "" {
		return nil, malformed(u, "missing status")
	}

	var prevUser model.User
	var userChanged bool
	if cur.User.Username != "" {
		p.store.Update(snapshot.KindUser, cur.User.ID, func(old any, ok bool) (any, bool) {
			if ok {
				prevUser = old.(model.User)
				userChanged = len(diff.User.Diff(prevUser, cur.User)) > 0
			}
			return cur.User, true
		})
	} else if known, ok := snapshot.Lookup[model.User](p.store, snapshot.KindUser, cur.User.ID); ok {
		cur.User = known
	}

	var prev model.Presence
	var changes []diff.Change
	var seen bool
	p.store.Update(snapshot.KindPresence, cur.Key(), func(old any, ok bool) (any, bool) {
		if ok {
			seen = true
			prev = old.(model.Presence)
			changes = diff.Presence.Diff(prev, cur)
		}
		return cur, true
	})
	var out []pending
	if seen {
		out = presenceEvents(cur, prev, changes, p.memberRef(cur.Key()))
	}
	if userChanged {
		out = append(out, pending{events.PresenceUpdateUser, events.UserUpdate{Presence: cur, Previous: prevUser}})
	}
	return out, nil
}

func presenceEvents(cur, prev model.Presence, changes []diff.Change, member *model.Member) []pending {
	var out []pending
	for _, c := range changes {
		switch c := c.(type) {
		case diff.StatusChanged:
			out = append(out, pending{events.PresenceUpdateStatus, events.StatusUpdate{Presence: cur, Member: member, Previous: c.Old}})
		case diff.ActivityChanged:
			out = append(out, pending{events.PresenceUpdateGame, events.ActivityUpdate{Presence: cur, Member: member, Previous: c.Old}})
		}
	}
	switch {
	case prev.Status.IsOffline() && !cur.Status.IsOffline():
		out = append(out, pending{events.PresenceGoOnline, events.PresenceTransition{Presence: cur, Previous: prev.Status}})
	case !prev.Status.IsOffline() && cur.Status.IsOffline():
		out = append(out, pending{events.PresenceGoOffline, events.PresenceTransition{Presence: cur, Previous: prev.Status}})
	}
	return out
}

func (p *Pipeline) memberRef(key string) *model.Member {
	m, ok := snapshot.Lookup[model.Member](p.store, snapshot.KindMember, key)
	if !ok {
		return nil
	}
	m = m.Clone()
	return &m
}

func (p *Pipeline) typingStart(u TypingStart) ([]pending, error) {
	if u.Channel.ID == "" || u.User.ID == "" {
		return nil, malformed(u, "missing channel or user id")
	}
	return []pending{{events.TypingStart, events.TypingStartPayload{Channel: u.Channel, User: u.User}}}, nil
}

func (p *Pipeline) channelCreate(u ChannelCreate) ([]pending, error) {
	if u.Channel.ID == "" {
		return nil, malformed(u, "missing channel id")
	}
	p.store.Put(snapshot.KindChannel, u.Channel.ID, u.Channel.Clone())
	return nil, nil
}

func (p *Pipeline) channelUpdate(u ChannelUpdate) ([]pending, error) {
	cur := u.Channel.Clone()
	if cur.ID == "" {
		return nil, malformed(u, "missing channel id")
	}
	var prev model.Channel
	var changes []diff.Change
	p.store.Update(snapshot.KindChannel, cur.ID, func(old any, ok bool) (any, bool) {
		if ok {
			prev = old.(model.Channel)
			if !cur.Topic.Valid {
				cur.Topic = prev.Topic
			}
			if cur.Overwrites == nil {
				cur.Overwrites = prev.Overwrites
			}
			if cur.LastMessageID == "" {
				cur.LastMessageID = prev.LastMessageID
			}
			changes = diff.Channel.Diff(prev, cur)
		}
		return cur, true
	})

	var out []pending
	payload := events.ChannelUpdate{Channel: cur, Previous: prev}
	for _, c := range changes {
		switch c.(type) {
		case diff.ChannelNameChanged:
			out = append(out, pending{events.ChannelUpdateName, payload})
		case diff.ChannelTopicChanged:
			out = append(out, pending{events.ChannelUpdateTopic, payload})
		case diff.ChannelPositionChanged:
			out = append(out, pending{events.ChannelUpdatePos, payload})
		case diff.ChannelOverwritesChanged:
			out = append(out, pending{events.ChannelUpdateOverwrites, payload})
		}
	}
	return out, nil
}

func (p *Pipeline) channelDelete(u ChannelDelete) ([]pending, error) {
	if u.Channel.ID == "" {
		return nil, malformed(u, "missing channel id")
	}
	p.store.Remove(snapshot.KindChannel, u.Channel.ID)
	return nil, nil
}

// messageCreate records the message id on a tracked guild channel before
// dispatching.
func (p *Pipeline) messageCreate(u MessageCreate) ([]pending, error) {
	out, err := message(u, events.MessageCreate, u.Message)
	if err != nil {
		return nil, err
	}
	p.store.Update(snapshot.KindChannel, u.Message.ChannelID, func(old any, ok bool) (any, bool) {
		if !ok {
			return nil, false
		}
		ch := old.(model.Channel)
		ch.LastMessageID = u.Message.ID
		return ch, true
	})
	return out, nil
}

func message(u Update, name string, m model.Message) ([]pending, error) {
	if m.ID == "" || m.ChannelID == "" {
		return nil, malformed(u, "missing message or channel id")
	}
	return []pending{{name, events.MessageEvent{Message: m}}}, nil
}

// guildCreate seeds snapshots without dispatching change events. Members
// without a presence are recorded as offline so their next presence update
// is diffed against a known status.
func (p *Pipeline) guildCreate(u GuildCreate) ([]pending, error) {
	g := u.Guild
	if g.ID == "" {
		return nil, malformed(u, "missing guild id")
	}

	online := make(map[string]struct{}, len(g.Presences))
	for _, pr := range g.Presences {
		if pr.User.ID == "" || pr.Status == "" {
			continue
		}
		pr.GuildID = g.ID
		online[pr.User.ID] = struct{}{}
		p.store.Put(snapshot.KindPresence, pr.Key(), pr)
	}
	for _, m := range g.Members {
		if m.User.ID == "" {
			continue
		}
		m = m.Clone()
		m.GuildID = g.ID
		p.store.Put(snapshot.KindMember, m.Key(), m)
		p.seedUser(m.User)
		if _, ok := online[m.User.ID]; !ok {
			off := model.Presence{GuildID: g.ID, User: m.User, Status: model.StatusOffline}
			p.store.Put(snapshot.KindPresence, off.Key(), off)
		}
	}
	for _, ch := range g.Channels {
		if ch.ID == "" {
			continue
		}
		ch.GuildID = g.ID
		p.store.Put(snapshot.KindChannel, ch.ID, ch.Clone())
	}

	p.logger.Debug("Guild seeded", "guild", g.ID, "members", len(g.Members), "presences", len(g.Presences), "channels", len(g.Channels))
	return []pending{{events.GuildCreate, events.GuildEvent{Guild: g}}}, nil
}

func (p *Pipeline) guildDelete(u GuildDelete) ([]pending, error) {
	g := u.Guild
	if g.ID == "" {
		return nil, malformed(u, "missing guild id")
	}
	members := p.store.RemoveIf(snapshot.KindMember, func(_ string, snap any) bool {
		return snap.(model.Member).GuildID == g.ID
	})
	p.store.RemoveIf(snapshot.KindPresence, func(_ string, snap any) bool {
		return snap.(model.Presence).GuildID == g.ID
	})
	p.store.RemoveIf(snapshot.KindChannel, func(_ string, snap any) bool {
		return snap.(model.Channel).GuildID == g.ID
	})
	p.logger.Debug("Guild snapshots dropped", "guild", g.ID, "members", members)
	return []pending{{events.GuildDelete, events.GuildEvent{Guild: g}}}, nil
}

// seedUser stores the user identity when it is not tracked yet. Identity
// changes are only reported from presence updates.
func (p *Pipeline) seedUser(u model.User) {
	if u.ID == "" || u.Username == "" {
		return
	}
	p.store.PutIfAbsent(snapshot.KindUser, u.ID, u)
}
