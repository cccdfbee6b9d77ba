// Package state holds the per-guild behavioral cache: join bursts, message
// rates, offense scores and the guild's effective moderation config.
// Mutations for one guild are serialized behind that guild's lock; reads
// produce copied snapshots and never block other guilds.
package state

import (
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/raidward/raidward/internal/config"
	rwerrors "github.com/raidward/raidward/internal/errors"
)

const (
	// joinWindowCapacity bounds the per-guild join ring.
	joinWindowCapacity = 200
	// messageWindowCapacity bounds each (channel, author) message ring.
	messageWindowCapacity = 64
	// maxMessageWindows bounds the number of (channel, author) rings per
	// guild; the stalest ring is evicted on overflow.
	maxMessageWindows = 4096
)

type offense struct {
	score   float64
	updated time.Time
}

type guildEntry struct {
	mu           sync.Mutex
	cfg          config.Guild
	joins        *JoinWindow
	messages     map[string]*Window // keyed by channelID + "/" + authorID
	offenses     map[string]offense
	lastMutation time.Time
	inflight     int
}

// Snapshot is a read-only view of one guild's state at classification time.
type Snapshot struct {
	GuildID string
	Config  config.Guild
	// JoinCount is the number of joins inside the configured burst window.
	JoinCount int
	// BurstRatio is JoinCount over the configured burst threshold; values
	// above 1 indicate an active burst.
	BurstRatio float64
	// MessageCount is the author's message count in the configured rate
	// window for the queried channel.
	MessageCount int
	// OffenseScore is the decayed offense score for the queried user.
	OffenseScore float64
	// RecentJoiners holds the distinct user IDs that joined inside the
	// burst window, oldest first, so burst enforcement can cover every
	// member of the wave.
	RecentJoiners []string
}

type Store struct {
	mu     sync.RWMutex
	guilds map[string]*guildEntry

	defaultLanguage string
	offenseHalfLife time.Duration
	idleEviction    time.Duration
}

func NewStore(defaultLanguage string, offenseHalfLife, idleEviction time.Duration) *Store {
	if offenseHalfLife <= 0 {
		offenseHalfLife = time.Hour
	}
	if idleEviction <= 0 {
		idleEviction = 24 * time.Hour
	}
	return &Store{
		guilds:          make(map[string]*guildEntry),
		defaultLanguage: defaultLanguage,
		offenseHalfLife: offenseHalfLife,
		idleEviction:    idleEviction,
	}
}

func (s *Store) entry(guildID string) *guildEntry {
	s.mu.RLock()
	e, ok := s.guilds[guildID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.guilds[guildID]; ok {
		return e
	}
	e = &guildEntry{
		cfg:      config.DefaultGuild(s.defaultLanguage),
		joins:    NewJoinWindow(joinWindowCapacity),
		messages: make(map[string]*Window),
		offenses: make(map[string]offense),
	}
	s.guilds[guildID] = e
	return e
}

// Configure replaces the guild's effective moderation config. Hot reload:
// behavioral windows and offense scores survive the swap.
func (s *Store) Configure(guildID string, cfg config.Guild) {
	e := s.entry(guildID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = config.NormalizeGuild(cfg)
	e.lastMutation = time.Now()
}

func (s *Store) ObserveJoin(guildID, userID string, at time.Time) {
	e := s.entry(guildID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.joins.Add(userID, at)
	e.lastMutation = time.Now()
}

func (s *Store) ObserveMessage(guildID, channelID, authorID string, at time.Time) {
	e := s.entry(guildID)
	e.mu.Lock()
	defer e.mu.Unlock()

	key := channelID + "/" + authorID
	w, ok := e.messages[key]
	if !ok {
		if len(e.messages) >= maxMessageWindows {
			evictStalest(e.messages)
		}
		w = NewWindow(messageWindowCapacity)
		e.messages[key] = w
	}
	w.Add(at)
	e.lastMutation = time.Now()
}

func evictStalest(windows map[string]*Window) {
	var stalestKey string
	var stalest time.Time
	first := true
	for k, w := range windows {
		if first || w.Last().Before(stalest) {
			stalestKey, stalest = k, w.Last()
			first = false
		}
	}
	if !first {
		delete(windows, stalestKey)
	}
}

// RecordOffense adds delta to the user's decayed offense score. Negative
// results reset to zero; a non-finite score trips the corruption guard and
// resets the whole guild entry.
func (s *Store) RecordOffense(guildID, userID string, delta float64, now time.Time) error {
	e := s.entry(guildID)
	e.mu.Lock()
	defer e.mu.Unlock()

	current := decayedScore(e.offenses[userID], s.offenseHalfLife, now)
	next := current + delta
	if math.IsNaN(next) || math.IsInf(next, 0) {
		s.resetLocked(guildID, e)
		return rwerrors.ErrStateCorruption
	}
	if next < 0 {
		next = 0
	}
	e.offenses[userID] = offense{score: next, updated: now}
	e.lastMutation = time.Now()
	return nil
}

// decayedScore recomputes the score lazily on read; no background timers.
func decayedScore(o offense, halfLife time.Duration, now time.Time) float64 {
	if o.score == 0 {
		return 0
	}
	elapsed := now.Sub(o.updated)
	if elapsed <= 0 {
		return o.score
	}
	return o.score * math.Exp2(-float64(elapsed)/float64(halfLife))
}

// Snapshot returns a copied view for classification. channelID and userID
// select which message window and offense score are reported; either may be
// empty for events without that context.
func (s *Store) Snapshot(guildID, channelID, userID string, now time.Time) Snapshot {
	e := s.entry(guildID)
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		GuildID: guildID,
		Config:  e.cfg,
	}
	cutoff := now.Add(-e.cfg.JoinBurstWindow)
	snap.JoinCount = e.joins.CountSince(cutoff)
	snap.BurstRatio = float64(snap.JoinCount) / float64(e.cfg.JoinBurstThreshold)
	if snap.JoinCount > 0 {
		snap.RecentJoiners = e.joins.JoinersSince(cutoff)
	}
	if channelID != "" && userID != "" {
		if w, ok := e.messages[channelID+"/"+userID]; ok {
			snap.MessageCount = w.CountSince(now.Add(-e.cfg.MessageRateWindow))
		}
	}
	if userID != "" {
		snap.OffenseScore = decayedScore(e.offenses[userID], s.offenseHalfLife, now)
	}
	return snap
}

// OffenseScore returns the user's decayed score without other snapshot work.
func (s *Store) OffenseScore(guildID, userID string, now time.Time) float64 {
	e := s.entry(guildID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return decayedScore(e.offenses[userID], s.offenseHalfLife, now)
}

// AddInFlight pins the guild entry while a dispatch ticket is outstanding;
// pinned entries are never evicted.
func (s *Store) AddInFlight(guildID string) {
	e := s.entry(guildID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inflight++
}

func (s *Store) ReleaseInFlight(guildID string) {
	e := s.entry(guildID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inflight--
	if e.inflight < 0 {
		// corruption guard: more releases than holds
		log.WithField("context", "state").WithField("guild_id", guildID).Error("in-flight underflow, resetting guild state")
		s.resetLocked(guildID, e)
	}
}

// resetLocked wipes a corrupted guild entry back to empty defaults. Caller
// holds e.mu.
func (s *Store) resetLocked(guildID string, e *guildEntry) {
	e.joins = NewJoinWindow(joinWindowCapacity)
	e.messages = make(map[string]*Window)
	e.offenses = make(map[string]offense)
	e.inflight = 0
	log.WithField("context", "state").WithField("guild_id", guildID).Warn("guild state reset")
}

// EvictIdle removes guild entries without mutations for the idle threshold.
// Entries with in-flight dispatch tickets are skipped. Returns the number
// of evicted guilds.
func (s *Store) EvictIdle(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for guildID, e := range s.guilds {
		e.mu.Lock()
		idle := !e.lastMutation.IsZero() && now.Sub(e.lastMutation) >= s.idleEviction
		pinned := e.inflight > 0
		e.mu.Unlock()
		if idle && !pinned {
			delete(s.guilds, guildID)
			evicted++
		}
	}
	return evicted
}

// Guilds returns the number of tracked guild entries.
func (s *Store) Guilds() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.guilds)
}
