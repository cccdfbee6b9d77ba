// Package discord wraps the gateway session and the REST moderation surface.
// Everything platform-specific stays behind this package; the rest of the
// program works with normalized events and the Moderator interface.
package discord

import (
	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
)

// NewSession builds a configured, unopened gateway session. The intent set
// is the minimum for raid detection: joins, messages with content, member
// updates and guild metadata.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, errors.Wrap(err, "create session")
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent
	s.StateEnabled = true
	return s, nil
}
