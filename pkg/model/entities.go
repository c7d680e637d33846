// Package model holds the subset of the chat platform's data model that the
// event core reads. Values are plain structs; Clone returns deep copies so a
// captured snapshot never shares mutable state with the gateway cache.
package model

import "time"

// Status is a presence status as reported by the gateway.
type Status string

const (
	StatusOnline    Status = "online"
	StatusIdle      Status = "idle"
	StatusDND       Status = "dnd"
	StatusInvisible Status = "invisible"
	StatusOffline   Status = "offline"
)

// IsOffline reports whether the status means the user is not visible.
func (s Status) IsOffline() bool {
	return s == StatusOffline || s == StatusInvisible || s == ""
}

// User is a platform account.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator,omitempty"`
	Avatar        string `json:"avatar,omitempty"`
	Bot           bool   `json:"bot,omitempty"`
}

// Tag renders username#discriminator, or the bare username for accounts
// migrated to unique usernames.
func (u User) Tag() string {
	if u.Discriminator == "" || u.Discriminator == "0" {
		return u.Username
	}
	return u.Username + "#" + u.Discriminator
}

// Member is a user inside one guild.
type Member struct {
	GuildID  string           `json:"guild_id"`
	User     User             `json:"user"`
	Nick     Optional[string] `json:"nick"`
	Roles    RoleSet          `json:"roles"`
	JoinedAt time.Time        `json:"joined_at,omitempty"`
}

// Key returns the member identity, unique within the member kind.
func (m Member) Key() string {
	return MemberKey(m.GuildID, m.User.ID)
}

// DisplayName returns the nick when set, otherwise the username.
func (m Member) DisplayName() string {
	if nick, ok := m.Nick.Get(); ok && nick != "" {
		return nick
	}
	return m.User.Username
}

// Clone returns a deep copy.
func (m Member) Clone() Member {
	m.Roles = m.Roles.Clone()
	return m
}

// Activity is the game/activity shown on a presence.
type Activity struct {
	Name string `json:"name"`
	Type int    `json:"type"`
}

// Presence is a user's status inside one guild.
type Presence struct {
	GuildID  string             `json:"guild_id"`
	User     User               `json:"user"`
	Status   Status             `json:"status"`
	Activity Optional[Activity] `json:"activity"`
}

// Key returns the presence identity, unique within the presence kind.
func (p Presence) Key() string {
	return MemberKey(p.GuildID, p.User.ID)
}

// ChannelType mirrors the gateway's channel type codes used by the core.
type ChannelType int

const (
	ChannelGuildText ChannelType = 0
	ChannelDM        ChannelType = 1
	ChannelGroupDM   ChannelType = 3
)

// Overwrite is a permission override for one role or member on a channel.
type Overwrite struct {
	ID    string `json:"id"`
	Type  int    `json:"type"`
	Allow int64  `json:"allow"`
	Deny  int64  `json:"deny"`
}

// Channel is a text/voice channel or a private conversation.
//
// Topic is absent when the update carried no topic. Overwrites is nil when
// the update carried no overwrite list; an empty non-nil list means every
// overwrite was removed.
type Channel struct {
	ID            string           `json:"id"`
	GuildID       string           `json:"guild_id,omitempty"`
	Type          ChannelType      `json:"type"`
	Name          string           `json:"name"`
	Topic         Optional[string] `json:"topic"`
	Position      int              `json:"position"`
	Overwrites    []Overwrite      `json:"overwrites"`
	LastMessageID string           `json:"last_message_id,omitempty"`
}

// Clone returns a deep copy, keeping a nil overwrite list nil.
func (c Channel) Clone() Channel {
	if c.Overwrites != nil {
		c.Overwrites = append(make([]Overwrite, 0, len(c.Overwrites)), c.Overwrites...)
	}
	return c
}

// SameOverwrites reports whether a and b hold the same overwrites, ignoring
// order. A nil list equals an empty one.
func SameOverwrites(a, b []Overwrite) bool {
	if len(a) != len(b) {
		return false
	}
	byID := make(map[string]Overwrite, len(a))
	for _, o := range a {
		byID[o.ID] = o
	}
	for _, o := range b {
		if prev, ok := byID[o.ID]; !ok || prev != o {
			return false
		}
	}
	return true
}

// IsPrivate reports whether the channel is a DM or group DM.
func (c Channel) IsPrivate() bool {
	return c.Type == ChannelDM || c.Type == ChannelGroupDM
}

// Message is a chat message. Messages are not snapshotted; they are
// delivered as received.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	GuildID   string    `json:"guild_id,omitempty"`
	Author    User      `json:"author"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	EditedAt  time.Time `json:"edited_at,omitempty"`
	Mentions  []string  `json:"mentions,omitempty"`
	Pinned    bool      `json:"pinned,omitempty"`
}

// Guild is the subset of a guild announced on GUILD_CREATE.
type Guild struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	OwnerID   string     `json:"owner_id,omitempty"`
	Members   []Member   `json:"members,omitempty"`
	Presences []Presence `json:"presences,omitempty"`
	Channels  []Channel  `json:"channels,omitempty"`
}

// MemberKey builds the guildID:userID identity shared by members and presences.
func MemberKey(guildID, userID string) string {
	return guildID + ":" + userID
}
