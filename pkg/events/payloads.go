package events

import "github.com/small-frappuccino/eventcore/pkg/model"

// MemberJoin is the USER_JOIN payload.
type MemberJoin struct {
	Member model.Member `json:"member"`
}

// MemberRemove is the USER_REMOVE payload. Member is the last known snapshot.
type MemberRemove struct {
	Member model.Member `json:"member"`
}

// StatusUpdate is the PRESENCE_UPDATE_STATUS payload. Member is nil when the
// member has not been observed yet.
type StatusUpdate struct {
	Presence model.Presence `json:"presence"`
	Member   *model.Member  `json:"member,omitempty"`
	Previous model.Status   `json:"previous"`
}

// ActivityUpdate is the PRESENCE_UPDATE_GAME payload.
type ActivityUpdate struct {
	Presence model.Presence                 `json:"presence"`
	Member   *model.Member                  `json:"member,omitempty"`
	Previous model.Optional[model.Activity] `json:"previous"`
}

// UserUpdate is the PRESENCE_UPDATE_USER payload.
type UserUpdate struct {
	Presence model.Presence `json:"presence"`
	Previous model.User     `json:"previous"`
}

// PresenceTransition is the PRESENCE_GO_ONLINE and PRESENCE_GO_OFFLINE payload.
type PresenceTransition struct {
	Presence model.Presence `json:"presence"`
	Previous model.Status   `json:"previous"`
}

// NickUpdate is the MEMBER_UPDATE_NICK payload.
type NickUpdate struct {
	Member   model.Member           `json:"member"`
	Previous model.Optional[string] `json:"previous"`
}

// RolesUpdate is the MEMBER_UPDATE_ROLES payload. Added and Removed are
// precomputed; consumers may also compare Member.Roles against Previous.
type RolesUpdate struct {
	Member   model.Member  `json:"member"`
	Previous model.RoleSet `json:"previous"`
	Added    model.RoleSet `json:"added"`
	Removed  model.RoleSet `json:"removed"`
}

// TypingStartPayload is the TYPING_START payload.
type TypingStartPayload struct {
	Channel model.Channel `json:"channel"`
	User    model.User    `json:"user"`
}

// ChannelUpdate is the CHANNEL_UPDATE_* payload.
type ChannelUpdate struct {
	Channel  model.Channel `json:"channel"`
	Previous model.Channel `json:"previous"`
}

// MessageEvent is the MESSAGE_CREATE, MESSAGE_UPDATE and MESSAGE_DELETE
// payload. A deleted message carries only its ids unless its content was
// still cached.
type MessageEvent struct {
	Message model.Message `json:"message"`
}

// GuildEvent is the GUILD_CREATE and GUILD_DELETE payload.
type GuildEvent struct {
	Guild model.Guild `json:"guild"`
}

// ConnectedPayload is the CONNECTED payload.
type ConnectedPayload struct {
	SessionID string `json:"session_id"`
	Resumed   bool   `json:"resumed"`
}
