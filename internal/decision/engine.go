// Package decision tracks a per-(guild, user) moderation state machine and
// turns classifier verdicts into enforcement plans. One Apply call per event,
// in per-guild sequence order; the pipeline guarantees single-threaded access
// per guild, the engine's own lock covers cross-guild callers such as the
// dispatcher's resolution callback.
package decision

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/raidward/raidward/internal/action"
	"github.com/raidward/raidward/internal/classify"
	"github.com/raidward/raidward/internal/config"
	rwerrors "github.com/raidward/raidward/internal/errors"
	"github.com/raidward/raidward/internal/event"
	"github.com/raidward/raidward/internal/state"
)

// UserState is the moderation standing of one user in one guild.
type UserState uint8

const (
	Clear UserState = iota
	Watched
	Sanctioned
)

func (s UserState) String() string {
	switch s {
	case Clear:
		return "clear"
	case Watched:
		return "watched"
	case Sanctioned:
		return "sanctioned"
	}
	return "unknown"
}

// escalationWindow is the rolling window in which repeated sanctions climb
// the severity ladder. Outside it the ladder position resets.
const escalationWindow = 24 * time.Hour

// offenseDelta values feed the state store's decaying offense score, which
// the classifier reads back as the prior_offenses heuristic.
const (
	suspiciousOffenseDelta = 0.5
	hostileOffenseDelta    = 2.0
)

// TicketDirectory is the dispatcher surface the engine needs for coalescing:
// look up a live ticket by idempotency key to merge audit reasons into it.
type TicketDirectory interface {
	Lookup(key string) (*action.Ticket, bool)
}

type userKey struct {
	guildID string
	userID  string
}

type userRecord struct {
	state UserState

	// suspicious counts Suspicious verdicts inside the current cooldown
	// window; crossing the guild tolerance triggers a sanction.
	suspicious  int
	windowStart time.Time

	// ladder is the escalation position inside the rolling window.
	ladder      int
	ladderStart time.Time

	sanctionedAt time.Time
	sanctionOK   bool
	inflightKey  string
}

type Engine struct {
	mu      sync.Mutex
	records map[userKey]*userRecord
	lastSeq map[string]uint64

	store   *state.Store
	tickets TicketDirectory

	idempotencyStep time.Duration
}

func NewEngine(store *state.Store, idempotencyStep time.Duration) *Engine {
	if idempotencyStep <= 0 {
		idempotencyStep = 30 * time.Second
	}
	return &Engine{
		records:         make(map[userKey]*userRecord),
		lastSeq:         make(map[string]uint64),
		store:           store,
		idempotencyStep: idempotencyStep,
	}
}

// SetTicketDirectory wires the dispatcher in after construction; the two
// components reference each other, so one side has to be late-bound.
func (e *Engine) SetTicketDirectory(d TicketDirectory) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickets = d
}

// Apply advances the user's state machine with one verdict and returns the
// enforcement plan to dispatch, or nil when no action is due. Events must
// arrive in per-guild sequence order; stale sequence numbers are rejected.
func (e *Engine) Apply(ev *event.Event, snap state.Snapshot, verdict classify.Verdict, now time.Time) (*action.Plan, error) {
	if ev == nil || ev.UserID() == "" {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if last, ok := e.lastSeq[ev.GuildID]; ok && ev.Seq <= last {
		log.WithField("context", "decision").
			WithField("guild_id", ev.GuildID).
			WithField("seq", ev.Seq).
			Warn("stale event sequence rejected")
		return nil, rwerrors.ErrStateCorruption
	}
	e.lastSeq[ev.GuildID] = ev.Seq

	key := userKey{guildID: ev.GuildID, userID: ev.UserID()}
	rec := e.records[key]
	if rec == nil {
		rec = &userRecord{}
		e.records[key] = rec
	}
	e.tickLocked(rec, snap.Config.SanctionDuration, now)

	switch verdict.Level {
	case classify.Benign:
		return nil, nil

	case classify.Suspicious:
		if err := e.store.RecordOffense(ev.GuildID, key.userID, suspiciousOffenseDelta, now); err != nil {
			return nil, err
		}
		switch rec.state {
		case Clear:
			rec.state = Watched
			rec.windowStart = now
			rec.suspicious = 1
			return nil, nil
		case Watched:
			rec.suspicious++
			if rec.suspicious <= snap.Config.Tolerance {
				return nil, nil
			}
			return e.sanctionLocked(rec, ev, snap, verdict, now)
		case Sanctioned:
			// already being handled, fold the new evidence into the ticket
			e.coalesceLocked(rec, verdict)
			return nil, nil
		}
		return nil, nil

	case classify.Hostile:
		if err := e.store.RecordOffense(ev.GuildID, key.userID, hostileOffenseDelta, now); err != nil {
			return nil, err
		}
		if rec.state == Sanctioned && rec.inflightKey != "" {
			e.coalesceLocked(rec, verdict)
			return nil, nil
		}
		return e.sanctionLocked(rec, ev, snap, verdict, now)
	}
	return nil, nil
}

// tickLocked applies time-based transitions: cooldown expiry for watched
// users and sanction decay back to Clear once the action stuck and the
// sanction duration elapsed.
func (e *Engine) tickLocked(rec *userRecord, sanctionDuration time.Duration, now time.Time) {
	switch rec.state {
	case Watched:
		if now.Sub(rec.windowStart) >= sanctionDuration {
			rec.state = Clear
			rec.suspicious = 0
		}
	case Sanctioned:
		if rec.sanctionOK && rec.inflightKey == "" && now.Sub(rec.sanctionedAt) >= sanctionDuration {
			rec.state = Clear
			rec.suspicious = 0
		}
	}
	if rec.ladder > 0 && now.Sub(rec.ladderStart) >= escalationWindow {
		rec.ladder = 0
	}
}

// sanctionLocked moves the user to Sanctioned and builds the plan. Hostile
// verdicts jump straight to the guild's maximum severity; the ladder only
// paces escalation for accumulated Suspicious behavior.
func (e *Engine) sanctionLocked(rec *userRecord, ev *event.Event, snap state.Snapshot, verdict classify.Verdict, now time.Time) (*action.Plan, error) {
	cfg := snap.Config
	hostile := verdict.Level == classify.Hostile
	reason := reasonLine(verdict)

	entry := e.sanctionEntryLocked(rec, ev.GuildID, ev.UserID(), cfg, hostile, reason, now)
	if entry == nil {
		// duplicate inside the same idempotency bucket, merged into the
		// outstanding ticket
		e.coalesceLocked(rec, verdict)
		return nil, nil
	}

	plan := &action.Plan{
		GuildID: ev.GuildID,
		Locale:  cfg.Language,
		Entries: []action.Entry{},
	}
	if ev.Kind == event.KindMessageCreate && ev.Message != nil && entry.Kind != action.KindWarn {
		plan.Entries = append(plan.Entries, action.Entry{
			Kind:            action.KindDeleteMessage,
			TargetUserID:    ev.UserID(),
			TargetChannelID: ev.Message.ChannelID,
			MessageID:       ev.Message.MessageID,
			Reason:          reason,
			Key:             action.Key(ev.GuildID, ev.Message.MessageID, action.KindDeleteMessage, now, e.idempotencyStep),
			Hostile:         hostile,
		})
	}
	plan.Entries = append(plan.Entries, *entry)

	// A hostile message while a join burst is running means the raid reached
	// the channel; lock it down until the burst subsides.
	if hostile && ev.Kind == event.KindMessageCreate && ev.Message != nil && snap.BurstRatio >= 1 {
		plan.Entries = append(plan.Entries, action.Entry{
			Kind:            action.KindLockdownChannel,
			TargetChannelID: ev.Message.ChannelID,
			Duration:        cfg.SanctionDuration,
			Reason:          reason,
			Key:             action.Key(ev.GuildID, ev.Message.ChannelID, action.KindLockdownChannel, now, e.idempotencyStep),
			Hostile:         true,
		})
	}

	// A hostile join burst indicts the whole wave. The score only crosses
	// the hostile cutoff a few joins in, so the earlier joiners of the same
	// burst are swept up retroactively here.
	if hostile && ev.Kind == event.KindMemberJoin && snap.BurstRatio >= 1 {
		plan.Entries = append(plan.Entries, e.sweepBurstLocked(ev, snap, cfg, reason, now)...)
	}

	log.WithField("context", "decision").
		WithField("guild_id", ev.GuildID).
		WithField("user_id", ev.UserID()).
		WithField("action", entry.Kind.String()).
		WithField("entries", len(plan.Entries)).
		WithField("reason", reason).
		Info("sanction issued")
	return plan, nil
}

// sanctionEntryLocked mutates one user record into the Sanctioned state and
// returns the enforcement entry, or nil when the sanction collapses into the
// record's outstanding ticket.
func (e *Engine) sanctionEntryLocked(rec *userRecord, guildID, userID string, cfg config.Guild, hostile bool, reason string, now time.Time) *action.Entry {
	severity := cfg.MinSeverity + action.Severity(rec.ladder)
	if hostile {
		severity = cfg.MaxSeverity
	}
	if severity > cfg.MaxSeverity {
		severity = cfg.MaxSeverity
	}
	if severity < cfg.MinSeverity {
		severity = cfg.MinSeverity
	}

	idem := action.Key(guildID, userID, severity.Kind(), now, e.idempotencyStep)
	if rec.inflightKey == idem {
		return nil
	}

	if rec.ladder == 0 {
		rec.ladderStart = now
	}
	rec.ladder++
	rec.state = Sanctioned
	rec.suspicious = 0
	rec.sanctionOK = false
	rec.inflightKey = idem

	entry := &action.Entry{
		Kind:         severity.Kind(),
		TargetUserID: userID,
		Reason:       reason,
		Key:          idem,
		Hostile:      hostile,
	}
	if entry.Kind == action.KindMute {
		entry.Duration = cfg.SanctionDuration
	}
	return entry
}

// sweepBurstLocked sanctions every other member of the join burst at the
// hostile severity. Users already covered by an outstanding ticket in the
// same bucket coalesce instead of producing a second entry.
func (e *Engine) sweepBurstLocked(ev *event.Event, snap state.Snapshot, cfg config.Guild, reason string, now time.Time) []action.Entry {
	var entries []action.Entry
	for _, joiner := range snap.RecentJoiners {
		if joiner == ev.UserID() {
			continue
		}
		key := userKey{guildID: ev.GuildID, userID: joiner}
		rec := e.records[key]
		if rec == nil {
			rec = &userRecord{}
			e.records[key] = rec
		}
		e.tickLocked(rec, cfg.SanctionDuration, now)
		if entry := e.sanctionEntryLocked(rec, ev.GuildID, joiner, cfg, true, reason, now); entry != nil {
			entries = append(entries, *entry)
		}
	}
	return entries
}

// coalesceLocked merges the verdict's reasons into the outstanding ticket,
// if the dispatcher still tracks one.
func (e *Engine) coalesceLocked(rec *userRecord, verdict classify.Verdict) {
	if rec.inflightKey == "" || e.tickets == nil {
		return
	}
	t, ok := e.tickets.Lookup(rec.inflightKey)
	if !ok {
		return
	}
	t.MergeReason(reasonLine(verdict))
}

// ResolveSanction is the dispatcher's terminal-ticket callback. A successful
// sanction arms the decay timer back to Clear; a failed one drops the user
// to Watched so the next verdict can re-issue the action.
func (e *Engine) ResolveSanction(guildID, userID, key string, succeeded bool, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec := e.records[userKey{guildID: guildID, userID: userID}]
	if rec == nil || rec.inflightKey != key {
		return
	}
	rec.inflightKey = ""
	if succeeded {
		rec.sanctionOK = true
		rec.sanctionedAt = now
		return
	}
	rec.state = Watched
	rec.windowStart = now
	rec.suspicious = 0
	log.WithField("context", "decision").
		WithField("guild_id", guildID).
		WithField("user_id", userID).
		Warn("sanction failed, user back to watched")
}

// Forget drops the user's record, e.g. when the member leaves the guild.
func (e *Engine) Forget(guildID, userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.records, userKey{guildID: guildID, userID: userID})
}

// StateOf reports the user's current standing, for tests and diagnostics.
func (e *Engine) StateOf(guildID, userID string) UserState {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.records[userKey{guildID: guildID, userID: userID}]
	if rec == nil {
		return Clear
	}
	return rec.state
}

func reasonLine(verdict classify.Verdict) string {
	if len(verdict.Reasons) == 0 {
		return verdict.Level.String()
	}
	line := verdict.Reasons[0]
	for _, r := range verdict.Reasons[1:] {
		line += ", " + r
	}
	return line
}
