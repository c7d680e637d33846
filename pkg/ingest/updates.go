// Package ingest turns raw gateway updates into snapshot diffs and dispatches
// the resulting events.
package ingest

import "github.com/small-frappuccino/eventcore/pkg/model"

// Update is a raw update delivered by the transport.
type Update interface {
	Kind() string
}

// MemberAdd announces a member joining a guild.
type MemberAdd struct {
	Member model.Member
}

// MemberRemove announces a member leaving or being removed. Member may carry
// only the guild and user ids.
type MemberRemove struct {
	Member model.Member
}

// MemberUpdate carries the full current member.
type MemberUpdate struct {
	Member model.Member
}

// PresenceUpdate carries the current presence. User may carry only the id.
type PresenceUpdate struct {
	Presence model.Presence
}

// TypingStart is stateless: it is dispatched as received.
type TypingStart struct {
	Channel model.Channel
	User    model.User
}

// ChannelCreate seeds a channel snapshot.
type ChannelCreate struct {
	Channel model.Channel
}

// ChannelUpdate carries the current channel. An absent topic or a nil
// overwrite list keeps the stored value.
type ChannelUpdate struct {
	Channel model.Channel
}

// ChannelDelete discards a channel snapshot.
type ChannelDelete struct {
	Channel model.Channel
}

// MessageCreate is stateless apart from the channel's last message id.
type MessageCreate struct {
	Message model.Message
}

// MessageUpdate is dispatched as received.
type MessageUpdate struct {
	Message model.Message
}

// MessageDelete is dispatched as received. Message may carry only its ids.
type MessageDelete struct {
	Message model.Message
}

// GuildCreate announces an available guild with its initial state.
type GuildCreate struct {
	Guild model.Guild
}

// GuildDelete announces a guild that is gone or unavailable.
type GuildDelete struct {
	Guild model.Guild
}

// Connected announces a ready or resumed gateway session.
type Connected struct {
	SessionID string
	Resumed   bool
}

func (MemberAdd) Kind() string      { return "member_add" }
func (MemberRemove) Kind() string   { return "member_remove" }
func (MemberUpdate) Kind() string   { return "member_update" }
func (PresenceUpdate) Kind() string { return "presence_update" }
func (TypingStart) Kind() string    { return "typing_start" }
func (ChannelCreate) Kind() string  { return "channel_create" }
func (ChannelUpdate) Kind() string  { return "channel_update" }
func (ChannelDelete) Kind() string  { return "channel_delete" }
func (MessageCreate) Kind() string  { return "message_create" }
func (MessageUpdate) Kind() string  { return "message_update" }
func (MessageDelete) Kind() string  { return "message_delete" }
func (GuildCreate) Kind() string    { return "guild_create" }
func (GuildDelete) Kind() string    { return "guild_delete" }
func (Connected) Kind() string      { return "connected" }
