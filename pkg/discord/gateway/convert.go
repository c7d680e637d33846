// Package gateway converts discordgo gateway events into ingest updates.
package gateway

import (
	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/eventcore/pkg/model"
)

// User converts a discordgo user. A nil user converts to the zero value.
func User(u *discordgo.User) model.User {
	if u == nil {
		return model.User{}
	}
	return model.User{
		ID:            u.ID,
		Username:      u.Username,
		Discriminator: u.Discriminator,
		Avatar:        u.Avatar,
		Bot:           u.Bot,
	}
}

// Member converts a discordgo member. guildID is used when the member does
// not carry one, as in GUILD_CREATE member lists.
func Member(m *discordgo.Member, guildID string) model.Member {
	if m == nil {
		return model.Member{GuildID: guildID}
	}
	out := model.Member{
		GuildID:  m.GuildID,
		User:     User(m.User),
		Roles:    model.NewRoleSet(m.Roles...),
		JoinedAt: m.JoinedAt,
	}
	if out.GuildID == "" {
		out.GuildID = guildID
	}
	if m.Nick != "" {
		out.Nick = model.Some(m.Nick)
	}
	return out
}

// Presence converts a discordgo presence inside guildID.
func Presence(p *discordgo.Presence, guildID string) model.Presence {
	if p == nil {
		return model.Presence{GuildID: guildID}
	}
	return model.Presence{
		GuildID:  guildID,
		User:     User(p.User),
		Status:   model.Status(p.Status),
		Activity: Activity(p.Activities),
	}
}

// Activity picks the game shown on a presence: the first activity that is
// not a custom status.
func Activity(acts []*discordgo.Activity) model.Optional[model.Activity] {
	for _, a := range acts {
		if a == nil || a.Type == discordgo.ActivityTypeCustom {
			continue
		}
		return model.Some(model.Activity{Name: a.Name, Type: int(a.Type)})
	}
	return model.None[model.Activity]()
}

// Channel converts a discordgo channel.
func Channel(c *discordgo.Channel) model.Channel {
	if c == nil {
		return model.Channel{}
	}
	out := model.Channel{
		ID:            c.ID,
		GuildID:       c.GuildID,
		Type:          model.ChannelType(c.Type),
		Name:          c.Name,
		Position:      c.Position,
		LastMessageID: c.LastMessageID,
	}
	// The gateway sends a null topic for channels without one.
	if c.Topic != "" {
		out.Topic = model.Some(c.Topic)
	}
	if c.PermissionOverwrites != nil {
		out.Overwrites = make([]model.Overwrite, 0, len(c.PermissionOverwrites))
		for _, o := range c.PermissionOverwrites {
			if o == nil {
				continue
			}
			out.Overwrites = append(out.Overwrites, model.Overwrite{ID: o.ID, Type: int(o.Type), Allow: o.Allow, Deny: o.Deny})
		}
	}
	return out
}

// Message converts a discordgo message. Mentions keep only user ids.
func Message(m *discordgo.Message) model.Message {
	if m == nil {
		return model.Message{}
	}
	out := model.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Author:    User(m.Author),
		Content:   m.Content,
		Timestamp: m.Timestamp,
		Pinned:    m.Pinned,
	}
	if m.EditedTimestamp != nil {
		out.EditedAt = *m.EditedTimestamp
	}
	for _, u := range m.Mentions {
		if u != nil {
			out.Mentions = append(out.Mentions, u.ID)
		}
	}
	return out
}

// Guild converts a discordgo guild, including its initial members,
// presences and channels.
func Guild(g *discordgo.Guild) model.Guild {
	if g == nil {
		return model.Guild{}
	}
	out := model.Guild{ID: g.ID, Name: g.Name, OwnerID: g.OwnerID}
	for _, m := range g.Members {
		if m != nil {
			out.Members = append(out.Members, Member(m, g.ID))
		}
	}
	for _, p := range g.Presences {
		if p != nil {
			out.Presences = append(out.Presences, Presence(p, g.ID))
		}
	}
	for _, c := range g.Channels {
		if c == nil {
			continue
		}
		ch := Channel(c)
		if ch.GuildID == "" {
			ch.GuildID = g.ID
		}
		out.Channels = append(out.Channels, ch)
	}
	return out
}
