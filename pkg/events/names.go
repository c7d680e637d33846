package events

import "strings"

// Event names delivered by the ingest pipeline.
const (
	UserJoin                = "USER_JOIN"
	UserRemove              = "USER_REMOVE"
	PresenceUpdateStatus    = "PRESENCE_UPDATE_STATUS"
	PresenceUpdateGame      = "PRESENCE_UPDATE_GAME"
	PresenceUpdateUser      = "PRESENCE_UPDATE_USER"
	PresenceGoOnline        = "PRESENCE_GO_ONLINE"
	PresenceGoOffline       = "PRESENCE_GO_OFFLINE"
	MemberUpdateNick        = "MEMBER_UPDATE_NICK"
	MemberUpdateRoles       = "MEMBER_UPDATE_ROLES"
	TypingStart             = "TYPING_START"
	ChannelUpdateName       = "CHANNEL_UPDATE_NAME"
	ChannelUpdateTopic      = "CHANNEL_UPDATE_TOPIC"
	ChannelUpdatePos        = "CHANNEL_UPDATE_POSITION"
	ChannelUpdateOverwrites = "CHANNEL_UPDATE_OVERWRITES"
	MessageCreate           = "MESSAGE_CREATE"
	MessageUpdate           = "MESSAGE_UPDATE"
	MessageDelete           = "MESSAGE_DELETE"
	GuildCreate             = "GUILD_CREATE"
	GuildDelete             = "GUILD_DELETE"
	Connected               = "CONNECTED"
)

// Names lists every event the pipeline can fire, in a stable order.
var Names = []string{
	UserJoin, UserRemove,
	PresenceUpdateStatus, PresenceUpdateGame, PresenceUpdateUser,
	PresenceGoOnline, PresenceGoOffline,
	MemberUpdateNick, MemberUpdateRoles,
	TypingStart,
	ChannelUpdateName, ChannelUpdateTopic, ChannelUpdatePos, ChannelUpdateOverwrites,
	MessageCreate, MessageUpdate, MessageDelete,
	GuildCreate, GuildDelete,
	Connected,
}

// retired names were split into finer events and are never fired.
var retired = map[string]string{
	"PRESENCE_UPDATE": "use PRESENCE_UPDATE_STATUS, PRESENCE_UPDATE_GAME or PRESENCE_UPDATE_USER",
	"USER_LEAVE":      "use USER_REMOVE",
}

// Normalize returns the canonical form of an event name.
func Normalize(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// IsKnown reports whether the pipeline ever fires name.
func IsKnown(name string) bool {
	n := Normalize(name)
	for _, known := range Names {
		if known == n {
			return true
		}
	}
	return false
}

// Retired returns the replacement hint for a name that is no longer fired.
func Retired(name string) (hint string, ok bool) {
	hint, ok = retired[Normalize(name)]
	return hint, ok
}
