package event

import (
	"time"
)

type Kind string

const (
	KindMemberJoin        Kind = "member_join"
	KindMessageCreate     Kind = "message_create"
	KindMemberUpdate      Kind = "member_update"
	KindGuildConfigUpdate Kind = "guild_config_update"
	KindMemberLeave       Kind = "member_leave"
)

// Event is the normalized form of a raw gateway payload. It is immutable
// once produced by the ingestion adapter; downstream stages only read it.
type Event struct {
	// ID is the gateway-provided identifier when one exists (message ID,
	// or a synthesized join marker). Used for at-least-once deduplication.
	ID string
	// Seq is a per-guild monotonic sequence number assigned by the
	// ingestion adapter in arrival order. The decision engine applies
	// verdicts strictly in Seq order per guild.
	Seq     uint64
	Kind    Kind
	GuildID string
	Time    time.Time

	Join    *MemberJoin
	Message *MessageCreate
	Member  *MemberUpdate
	Leave   *MemberLeave
}

type MemberJoin struct {
	UserID     string
	AccountAge time.Duration
}

type MessageCreate struct {
	MessageID string
	ChannelID string
	AuthorID  string
	Content   string
	// Mentions as reported by the gateway, including everyone/here pings.
	MentionCount    int
	MentionEveryone bool
}

type MemberUpdate struct {
	UserID    string
	TimedOut  bool
	RoleCount int
	Nickname  string
}

type MemberLeave struct {
	UserID string
}

// UserID returns the user the event concerns, or "" for guild-scoped events.
func (e *Event) UserID() string {
	switch {
	case e.Join != nil:
		return e.Join.UserID
	case e.Message != nil:
		return e.Message.AuthorID
	case e.Member != nil:
		return e.Member.UserID
	case e.Leave != nil:
		return e.Leave.UserID
	}
	return ""
}
