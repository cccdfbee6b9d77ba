// Package notifier posts localized audit notices about executed moderation
// actions to the guild's configured log channel.
package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/raidward/raidward/internal/action"
	"github.com/raidward/raidward/internal/i18n"
)

// Messenger is the outbound channel surface, satisfied by the moderator.
type Messenger interface {
	SendMessage(ctx context.Context, channelID, content string) error
}

type Notifier struct {
	msg     Messenger
	timeout time.Duration
}

func New(msg Messenger) *Notifier {
	return &Notifier{msg: msg, timeout: 10 * time.Second}
}

// Notify posts one audit line for a terminal ticket. Best effort: a guild
// without a log channel, or a failed send, only logs locally.
func (n *Notifier) Notify(locale, logChannelID string, t *action.Ticket, succeeded bool) {
	if n.msg == nil || logChannelID == "" || t == nil {
		return
	}

	line := n.line(locale, t, succeeded)
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	if err := n.msg.SendMessage(ctx, logChannelID, line); err != nil {
		log.WithField("context", "notifier").
			WithField("guild_id", t.GuildID).
			WithError(err).
			Warn("cant post audit notice")
	}
}

func (n *Notifier) line(locale string, t *action.Ticket, succeeded bool) string {
	var sb strings.Builder
	sb.WriteString("🛡 ")
	sb.WriteString(i18n.Get("Raid protection", locale))
	sb.WriteString(": ")

	switch t.Entry.Kind {
	case action.KindLockdownChannel:
		sb.WriteString(i18n.Get("channel has been locked", locale))
		sb.WriteString(fmt.Sprintf(" <#%s>", t.Entry.TargetChannelID))
	case action.KindDeleteMessage:
		sb.WriteString(i18n.Get("message has been deleted", locale))
	default:
		sb.WriteString(fmt.Sprintf("<@%s> ", t.Entry.TargetUserID))
		sb.WriteString(i18n.Get(verbKey(t.Entry.Kind), locale))
	}

	if !succeeded {
		sb.WriteString(" (")
		sb.WriteString(i18n.Get("action failed", locale))
		sb.WriteString(")")
	}
	if reasons := t.Reasons(); len(reasons) > 0 {
		sb.WriteString(" | ")
		sb.WriteString(strings.Join(reasons, "; "))
	}
	return sb.String()
}

func verbKey(k action.Kind) string {
	switch k {
	case action.KindMute:
		return "has been muted"
	case action.KindKick:
		return "has been kicked"
	case action.KindBan:
		return "has been banned"
	}
	return "has been warned"
}
