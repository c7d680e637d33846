package gateway

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/eventcore/pkg/discord/perf"
	"github.com/small-frappuccino/eventcore/pkg/ingest"
	"github.com/small-frappuccino/eventcore/pkg/model"
)

// Ingester receives converted updates.
type Ingester interface {
	Ingest(ctx context.Context, u ingest.Update) error
}

// StateReader resolves channels and members from the gateway cache.
// *discordgo.State satisfies it.
type StateReader interface {
	Channel(channelID string) (*discordgo.Channel, error)
	Member(guildID, userID string) (*discordgo.Member, error)
}

// Adapter registers discordgo handlers that feed an Ingester.
type Adapter struct {
	ctx    context.Context
	sink   Ingester
	logger *slog.Logger

	mu        sync.Mutex
	sessionID string
}

// NewAdapter creates an adapter. ctx is passed to every Ingest call.
func NewAdapter(ctx context.Context, sink Ingester, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{ctx: ctx, sink: sink, logger: logger}
}

// Attach registers the handlers on s and returns a function removing them.
// It switches s to synchronous event handling: updates for one entity must be
// diffed in the order the gateway sent them.
func (a *Adapter) Attach(s *discordgo.Session) func() {
	s.SyncEvents = true
	removers := []func(){
		s.AddHandler(a.onReady),
		s.AddHandler(a.onResumed),
		s.AddHandler(a.onMemberAdd),
		s.AddHandler(a.onMemberUpdate),
		s.AddHandler(a.onMemberRemove),
		s.AddHandler(a.onPresenceUpdate),
		s.AddHandler(a.onTypingStart),
		s.AddHandler(a.onChannelCreate),
		s.AddHandler(a.onChannelUpdate),
		s.AddHandler(a.onChannelDelete),
		s.AddHandler(a.onMessageCreate),
		s.AddHandler(a.onMessageUpdate),
		s.AddHandler(a.onMessageDelete),
		s.AddHandler(a.onGuildCreate),
		s.AddHandler(a.onGuildDelete),
	}
	return func() {
		for _, remove := range removers {
			remove()
		}
	}
}

func (a *Adapter) ingest(u ingest.Update) {
	done := perf.StartGatewayEvent(u.Kind())
	defer done()
	if err := a.sink.Ingest(a.ctx, u); err != nil {
		a.logger.Debug("Gateway update dropped", "kind", u.Kind(), "err", err)
	}
}

func (a *Adapter) onReady(_ *discordgo.Session, e *discordgo.Ready) {
	a.mu.Lock()
	a.sessionID = e.SessionID
	a.mu.Unlock()
	a.ingest(ingest.Connected{SessionID: e.SessionID})
}

func (a *Adapter) onResumed(_ *discordgo.Session, _ *discordgo.Resumed) {
	a.mu.Lock()
	id := a.sessionID
	a.mu.Unlock()
	a.ingest(ingest.Connected{SessionID: id, Resumed: true})
}

func (a *Adapter) onMemberAdd(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
	a.ingest(ingest.MemberAdd{Member: Member(e.Member, "")})
}

func (a *Adapter) onMemberUpdate(_ *discordgo.Session, e *discordgo.GuildMemberUpdate) {
	a.ingest(ingest.MemberUpdate{Member: Member(e.Member, "")})
}

func (a *Adapter) onMemberRemove(_ *discordgo.Session, e *discordgo.GuildMemberRemove) {
	a.ingest(ingest.MemberRemove{Member: Member(e.Member, "")})
}

func (a *Adapter) onPresenceUpdate(_ *discordgo.Session, e *discordgo.PresenceUpdate) {
	a.ingest(ingest.PresenceUpdate{Presence: Presence(&e.Presence, e.GuildID)})
}

func (a *Adapter) onTypingStart(s *discordgo.Session, e *discordgo.TypingStart) {
	var state StateReader
	if s != nil && s.State != nil {
		state = s.State
	}
	a.ingest(Typing(state, e))
}

func (a *Adapter) onChannelCreate(_ *discordgo.Session, e *discordgo.ChannelCreate) {
	a.ingest(ingest.ChannelCreate{Channel: Channel(e.Channel)})
}

func (a *Adapter) onChannelUpdate(_ *discordgo.Session, e *discordgo.ChannelUpdate) {
	a.ingest(ingest.ChannelUpdate{Channel: Channel(e.Channel)})
}

func (a *Adapter) onChannelDelete(_ *discordgo.Session, e *discordgo.ChannelDelete) {
	a.ingest(ingest.ChannelDelete{Channel: Channel(e.Channel)})
}

func (a *Adapter) onMessageCreate(_ *discordgo.Session, e *discordgo.MessageCreate) {
	a.ingest(ingest.MessageCreate{Message: Message(e.Message)})
}

func (a *Adapter) onMessageUpdate(_ *discordgo.Session, e *discordgo.MessageUpdate) {
	a.ingest(ingest.MessageUpdate{Message: Message(e.Message)})
}

// Deletes carry only ids; the cached copy fills in the rest when state has it.
func (a *Adapter) onMessageDelete(_ *discordgo.Session, e *discordgo.MessageDelete) {
	msg := Message(e.Message)
	if e.BeforeDelete != nil {
		msg = Message(e.BeforeDelete)
	}
	a.ingest(ingest.MessageDelete{Message: msg})
}

func (a *Adapter) onGuildCreate(_ *discordgo.Session, e *discordgo.GuildCreate) {
	a.ingest(ingest.GuildCreate{Guild: Guild(e.Guild)})
}

func (a *Adapter) onGuildDelete(_ *discordgo.Session, e *discordgo.GuildDelete) {
	a.ingest(ingest.GuildDelete{Guild: Guild(e.Guild)})
}

// Typing builds a TypingStart update. The channel comes from state when
// cached. The user is resolved by channel type: a recipient of a DM or group
// DM, or the guild member for guild channels. Unresolved users carry only
// their id.
func Typing(state StateReader, e *discordgo.TypingStart) ingest.TypingStart {
	ch := model.Channel{ID: e.ChannelID, GuildID: e.GuildID}
	if e.GuildID == "" {
		ch.Type = model.ChannelDM
	}
	user := model.User{ID: e.UserID}

	var dc *discordgo.Channel
	if state != nil {
		if c, err := state.Channel(e.ChannelID); err == nil && c != nil {
			dc = c
			ch = Channel(c)
		}
	}

	switch {
	case ch.IsPrivate():
		if dc != nil {
			for _, r := range dc.Recipients {
				if r != nil && r.ID == e.UserID {
					user = User(r)
					break
				}
			}
		}
	case state != nil && e.GuildID != "":
		if m, err := state.Member(e.GuildID, e.UserID); err == nil && m != nil && m.User != nil {
			user = User(m.User)
		}
	}
	return ingest.TypingStart{Channel: ch, User: user}
}
