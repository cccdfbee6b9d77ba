// Package gateway normalizes raw Discord gateway payloads into the internal
// event form. Duplicate deliveries are dropped here, and every event gets a
// per-guild monotonic sequence number so downstream stages can restore
// arrival order after parallel processing.
package gateway

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hashicorp/golang-lru/v2/expirable"
	log "github.com/sirupsen/logrus"

	"github.com/raidward/raidward/internal/event"
)

// discordEpoch is the millisecond origin of snowflake timestamps.
const discordEpoch = 1420070400000

type Adapter struct {
	s   *discordgo.Session
	out chan<- *event.Event

	// dedupe remembers recently seen event IDs; the gateway redelivers on
	// reconnect, so ingestion is at-least-once.
	dedupe *expirable.LRU[string, struct{}]

	mu    sync.Mutex
	seqs  map[string]uint64
	botID string

	removeFns []func()
}

func NewAdapter(s *discordgo.Session, out chan<- *event.Event, dedupeCapacity int, dedupeTTL time.Duration) *Adapter {
	if dedupeCapacity < 1 {
		dedupeCapacity = 65536
	}
	if dedupeTTL <= 0 {
		dedupeTTL = 5 * time.Minute
	}
	return &Adapter{
		s:      s,
		out:    out,
		dedupe: expirable.NewLRU[string, struct{}](dedupeCapacity, nil, dedupeTTL),
		seqs:   make(map[string]uint64),
	}
}

// Start registers the gateway handlers and opens the websocket connection.
func (a *Adapter) Start(ctx context.Context) error {
	a.removeFns = append(a.removeFns,
		a.s.AddHandler(a.onReady),
		a.s.AddHandler(a.onMemberAdd),
		a.s.AddHandler(a.onMessageCreate),
		a.s.AddHandler(a.onMemberUpdate),
		a.s.AddHandler(a.onMemberRemove),
		a.s.AddHandler(a.onGuildUpdate),
	)
	if err := a.s.Open(); err != nil {
		return err
	}
	log.WithField("context", "gateway").Info("gateway connected")
	return nil
}

func (a *Adapter) Stop(_ context.Context) error {
	for _, remove := range a.removeFns {
		remove()
	}
	a.removeFns = nil
	return a.s.Close()
}

func (a *Adapter) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User != nil {
		a.mu.Lock()
		a.botID = r.User.ID
		a.mu.Unlock()
		log.WithField("context", "gateway").WithField("bot_id", r.User.ID).Info("ready")
	}
}

func (a *Adapter) onMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.User == nil || m.GuildID == "" {
		return
	}
	now := time.Now()
	a.emit(&event.Event{
		ID:      "join/" + m.GuildID + "/" + m.User.ID + "/" + strconv.FormatInt(m.JoinedAt.UnixNano(), 10),
		Kind:    event.KindMemberJoin,
		GuildID: m.GuildID,
		Time:    now,
		Join: &event.MemberJoin{
			UserID:     m.User.ID,
			AccountAge: now.Sub(SnowflakeTime(m.User.ID)),
		},
	})
}

func (a *Adapter) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.GuildID == "" || m.Author.Bot {
		return
	}
	a.mu.Lock()
	self := a.botID
	a.mu.Unlock()
	if m.Author.ID == self {
		return
	}
	a.emit(&event.Event{
		ID:      m.ID,
		Kind:    event.KindMessageCreate,
		GuildID: m.GuildID,
		Time:    time.Now(),
		Message: &event.MessageCreate{
			MessageID:       m.ID,
			ChannelID:       m.ChannelID,
			AuthorID:        m.Author.ID,
			Content:         m.Content,
			MentionCount:    len(m.Mentions),
			MentionEveryone: m.MentionEveryone,
		},
	})
}

func (a *Adapter) onMemberUpdate(_ *discordgo.Session, m *discordgo.GuildMemberUpdate) {
	if m.User == nil || m.GuildID == "" {
		return
	}
	now := time.Now()
	a.emit(&event.Event{
		ID:      "member/" + m.GuildID + "/" + m.User.ID + "/" + strconv.FormatInt(now.UnixNano(), 10),
		Kind:    event.KindMemberUpdate,
		GuildID: m.GuildID,
		Time:    now,
		Member: &event.MemberUpdate{
			UserID:    m.User.ID,
			TimedOut:  m.CommunicationDisabledUntil != nil && m.CommunicationDisabledUntil.After(now),
			RoleCount: len(m.Roles),
			Nickname:  m.Nick,
		},
	})
}

func (a *Adapter) onMemberRemove(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if m.User == nil || m.GuildID == "" {
		return
	}
	now := time.Now()
	a.emit(&event.Event{
		ID:      "leave/" + m.GuildID + "/" + m.User.ID + "/" + strconv.FormatInt(now.UnixNano(), 10),
		Kind:    event.KindMemberLeave,
		GuildID: m.GuildID,
		Time:    now,
		Leave:   &event.MemberLeave{UserID: m.User.ID},
	})
}

func (a *Adapter) onGuildUpdate(_ *discordgo.Session, g *discordgo.GuildUpdate) {
	if g.Guild == nil || g.ID == "" {
		return
	}
	now := time.Now()
	a.emit(&event.Event{
		ID:      "guild/" + g.ID + "/" + strconv.FormatInt(now.UnixNano(), 10),
		Kind:    event.KindGuildConfigUpdate,
		GuildID: g.ID,
		Time:    now,
	})
}

// emit assigns the per-guild sequence number and hands the event to the
// pipeline. A full ingest queue sheds the event rather than stalling the
// gateway read loop. The sequence number is committed only when the event
// is actually accepted; a shed event must not leave a gap that would make
// the downstream reorder buffer hold every later event for the guild.
func (a *Adapter) emit(ev *event.Event) {
	if _, seen := a.dedupe.Get(ev.ID); seen {
		log.WithField("context", "gateway").WithField("event_id", ev.ID).Debug("duplicate delivery dropped")
		return
	}

	a.mu.Lock()
	ev.Seq = a.seqs[ev.GuildID] + 1
	select {
	case a.out <- ev:
		a.seqs[ev.GuildID] = ev.Seq
		a.dedupe.Add(ev.ID, struct{}{})
		a.mu.Unlock()
	default:
		a.mu.Unlock()
		log.WithField("context", "gateway").
			WithField("guild_id", ev.GuildID).
			WithField("kind", string(ev.Kind)).
			Warn("ingest queue full, event shed")
	}
}

// SnowflakeTime extracts the creation time embedded in a snowflake ID.
// Malformed IDs yield the zero time, which reads as a very old account.
func SnowflakeTime(id string) time.Time {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return time.Time{}
	}
	ms := int64(n>>22) + discordEpoch
	return time.UnixMilli(ms)
}
