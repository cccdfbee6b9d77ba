package action

import (
	"fmt"
	"time"
)

// Kind is the closed set of enforcement actions. The dispatcher knows the
// retry and idempotency policy for every kind, so this must stay a closed
// enum rather than an open interface.
type Kind uint8

const (
	KindWarn Kind = iota
	KindMute
	KindKick
	KindBan
	KindLockdownChannel
	KindDeleteMessage
)

func (k Kind) String() string {
	switch k {
	case KindWarn:
		return "warn"
	case KindMute:
		return "mute"
	case KindKick:
		return "kick"
	case KindBan:
		return "ban"
	case KindLockdownChannel:
		return "lockdown_channel"
	case KindDeleteMessage:
		return "delete_message"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Severity orders the user-targeted sanctions for the escalation ladder.
// Warn < Mute < Kick < Ban.
type Severity uint8

const (
	SeverityWarn Severity = iota
	SeverityMute
	SeverityKick
	SeverityBan
)

func (s Severity) Kind() Kind {
	switch s {
	case SeverityWarn:
		return KindWarn
	case SeverityMute:
		return KindMute
	case SeverityKick:
		return KindKick
	}
	return KindBan
}

func (s Severity) String() string {
	return s.Kind().String()
}

// Entry is a single enforcement step against a user or channel.
type Entry struct {
	Kind            Kind
	TargetUserID    string
	TargetChannelID string
	// MessageID is set for delete-message entries.
	MessageID string
	// Duration applies to mutes and channel lockdowns.
	Duration time.Duration
	Reason   string
	// Key is the idempotency key; overlapping events producing the same
	// key must collapse into a single executed action.
	Key string
	// Hostile entries are never dropped by backpressure, only delayed.
	Hostile bool
}

// Plan is the ordered sequence of entries the decision engine emits for one
// verdict. Per-guild dispatch order follows entry order.
type Plan struct {
	GuildID string
	Locale  string
	Entries []Entry
}

// Key builds a deterministic idempotency key from the action coordinates and
// a time bucket, so duplicate enforcement from overlapping events collapses.
func Key(guildID, targetID string, kind Kind, at time.Time, bucket time.Duration) string {
	if bucket <= 0 {
		bucket = 30 * time.Second
	}
	return fmt.Sprintf("%s/%s/%s/%d", guildID, targetID, kind, at.UnixNano()/int64(bucket))
}
