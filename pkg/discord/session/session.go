// Package session creates and opens the discordgo gateway session.
package session

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/eventcore/pkg/errutil"
	"github.com/small-frappuccino/eventcore/pkg/log"
)

// Error messages
const (
	ErrSessionCreationFailed   = "failed to create Discord session: %w"
	ErrSessionConnectionFailed = "failed to connect to Discord: %w"
)

// ErrEmptyToken is returned when no bot token is supplied.
var ErrEmptyToken = errors.New("discord bot token is empty")

// Intents are the gateway intents needed to observe members, presences,
// channels, messages and typing. Message content stays empty unless the
// privileged message content intent is granted to the application.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildPresences |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsGuildMessageTyping |
	discordgo.IntentsDirectMessageTyping

// Replaced in tests.
var (
	newSession   = func(token string) (*discordgo.Session, error) { return discordgo.New("Bot " + token) }
	openSession  = func(s *discordgo.Session) error { return s.Open() }
	closeSession = func(s *discordgo.Session) error { return s.Close() }
)

// NewDiscordSession creates a session, runs setup (handler registration must
// happen before the gateway sends READY) and connects.
func NewDiscordSession(token string, setup ...func(*discordgo.Session)) (*discordgo.Session, error) {
	if token == "" {
		log.ErrorLoggerRaw().Error("Discord bot token is empty")
		return nil, ErrEmptyToken
	}

	var s *discordgo.Session
	if err := errutil.HandleDiscordError("create_session", func() error {
		var sessionErr error
		s, sessionErr = newSession(token)
		return sessionErr
	}); err != nil {
		return nil, fmt.Errorf(ErrSessionCreationFailed, err)
	}

	s.Identify.Intents = Intents
	s.StateEnabled = true
	// Handlers run on the gateway reader, one update at a time, in arrival order.
	s.SyncEvents = true
	for _, fn := range setup {
		if fn != nil {
			fn(s)
		}
	}

	log.DiscordLogger().Info("Connecting to Discord")
	if err := errutil.HandleDiscordError("connect", func() error { return openSession(s) }); err != nil {
		_ = closeSession(s)
		return nil, fmt.Errorf(ErrSessionConnectionFailed, err)
	}

	log.DiscordLogger().Info("Connected to Discord")
	return s, nil
}

// Close disconnects the session. A nil session is a no-op.
func Close(s *discordgo.Session) error {
	if s == nil {
		return nil
	}
	return errutil.HandleDiscordError("close", func() error { return closeSession(s) })
}
