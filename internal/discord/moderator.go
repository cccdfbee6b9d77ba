package discord

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	rwerrors "github.com/raidward/raidward/internal/errors"
	"github.com/raidward/raidward/internal/i18n"
)

// moderator drives enforcement through the Discord REST API and maps every
// failure onto the transient/permanent sentinels the dispatcher retries on.
type moderator struct {
	s *discordgo.Session
}

func NewModerator(s *discordgo.Session) *moderator {
	return &moderator{s: s}
}

func (m *moderator) Warn(ctx context.Context, guildID, userID, locale, reason string) error {
	ch, err := m.s.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return mapErr(err)
	}
	_, err = m.s.ChannelMessageSend(ch.ID, warnMessage(locale, reason), discordgo.WithContext(ctx))
	return mapErr(err)
}

// warnMessage builds the DM text in the guild's language; the raw reason
// stays as a trailing audit detail, like the log channel notices.
func warnMessage(locale, reason string) string {
	msg := fmt.Sprintf("⚠️ %s: %s",
		i18n.Get("Raid protection", locale),
		i18n.Get("you have been warned", locale),
	)
	if reason != "" {
		msg += " | " + reason
	}
	return msg
}

func (m *moderator) Mute(ctx context.Context, guildID, userID string, duration time.Duration, reason string) error {
	if duration <= 0 {
		duration = time.Hour
	}
	// Discord caps communication timeouts at 28 days
	if duration > 28*24*time.Hour {
		duration = 28 * 24 * time.Hour
	}
	until := time.Now().Add(duration)
	return mapErr(m.s.GuildMemberTimeout(guildID, userID, &until, discordgo.WithContext(ctx)))
}

func (m *moderator) Kick(ctx context.Context, guildID, userID, reason string) error {
	return mapErr(m.s.GuildMemberDeleteWithReason(guildID, userID, reason, discordgo.WithContext(ctx)))
}

func (m *moderator) Ban(ctx context.Context, guildID, userID, reason string) error {
	return mapErr(m.s.GuildBanCreateWithReason(guildID, userID, reason, 0, discordgo.WithContext(ctx)))
}

// LockChannel denies send-messages for the @everyone role (whose ID equals
// the guild ID) and schedules the revert when a duration is given.
func (m *moderator) LockChannel(ctx context.Context, guildID, channelID string, duration time.Duration, reason string) error {
	err := m.s.ChannelPermissionSet(
		channelID, guildID, discordgo.PermissionOverwriteTypeRole,
		0, discordgo.PermissionSendMessages,
		discordgo.WithContext(ctx),
	)
	if err != nil {
		return mapErr(err)
	}
	if duration > 0 {
		time.AfterFunc(duration, func() {
			if err := m.s.ChannelPermissionDelete(channelID, guildID); err != nil {
				log.WithField("context", "discord").
					WithField("channel_id", channelID).
					WithError(err).
					Warn("cant unlock channel")
			}
		})
	}
	return nil
}

func (m *moderator) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return mapErr(m.s.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)))
}

func (m *moderator) SendMessage(ctx context.Context, channelID, content string) error {
	_, err := m.s.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	return mapErr(err)
}

// mapErr sorts REST failures into the retry taxonomy. Missing permissions
// and unknown entities will never succeed on retry; rate limits, server
// errors and network problems will.
func mapErr(err error) error {
	if err == nil {
		return nil
	}

	var rest *discordgo.RESTError
	if errors.As(err, &rest) {
		if rest.Message != nil {
			switch rest.Message.Code {
			case discordgo.ErrCodeMissingPermissions,
				discordgo.ErrCodeMissingAccess,
				discordgo.ErrCodeUnknownMember,
				discordgo.ErrCodeUnknownMessage,
				discordgo.ErrCodeUnknownChannel,
				discordgo.ErrCodeUnknownUser:
				return errors.Wrap(rwerrors.ErrPermanentExternal, err.Error())
			}
		}
		if rest.Response != nil {
			switch {
			case rest.Response.StatusCode == http.StatusTooManyRequests:
				return errors.Wrap(rwerrors.ErrTransientExternal, err.Error())
			case rest.Response.StatusCode >= 500:
				return errors.Wrap(rwerrors.ErrTransientExternal, err.Error())
			case rest.Response.StatusCode >= 400:
				return errors.Wrap(rwerrors.ErrPermanentExternal, err.Error())
			}
		}
	}

	// context deadlines, dropped connections and everything else unknown
	// are worth another attempt
	return errors.Wrap(rwerrors.ErrTransientExternal, err.Error())
}
