// Package dispatch executes enforcement plans against the platform API.
// Every guild gets its own FIFO queue and worker goroutine, so one guild's
// retries never delay another guild. Duplicate submissions collapse onto the
// outstanding ticket via idempotency keys.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/RussellLuo/slidingwindow"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/raidward/raidward/internal/action"
	"github.com/raidward/raidward/internal/config"
	rwerrors "github.com/raidward/raidward/internal/errors"
)

// Moderator is the platform surface the dispatcher drives. Implementations
// classify their failures with the error sentinels from internal/errors so
// the retry loop can tell transient from permanent.
type Moderator interface {
	Warn(ctx context.Context, guildID, userID, locale, reason string) error
	Mute(ctx context.Context, guildID, userID string, duration time.Duration, reason string) error
	Kick(ctx context.Context, guildID, userID, reason string) error
	Ban(ctx context.Context, guildID, userID, reason string) error
	LockChannel(ctx context.Context, guildID, channelID string, duration time.Duration, reason string) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

// ResolveFunc is called exactly once per ticket when it reaches a terminal
// state. The decision engine uses it to settle the user's sanction.
type ResolveFunc func(guildID, userID, key string, succeeded bool, now time.Time)

// PinFunc pins and unpins guild state while tickets are outstanding.
type PinFunc func(guildID string)

// NotifyFunc observes every terminal ticket, for audit channels and
// persistence. Called after the resolve callback.
type NotifyFunc func(t *action.Ticket, succeeded bool)

type guildQueue struct {
	ch chan *action.Ticket
}

type Dispatcher struct {
	cfg config.Dispatch
	mod Moderator

	// global covers the platform-wide request budget; routes pace individual
	// (guild, action kind) routes inside it.
	global  *rate.Limiter
	routeMu sync.Mutex
	routes  map[string]*slidingwindow.Limiter

	mu      sync.Mutex
	queues  map[string]*guildQueue
	byKey   map[string]*action.Ticket
	resolve ResolveFunc
	notify  NotifyFunc
	pin     PinFunc
	unpin   PinFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDispatcher(cfg config.Dispatch, mod Moderator) *Dispatcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 5
	}
	if cfg.QueueBound < 1 {
		cfg.QueueBound = 256
	}
	if cfg.GlobalRate <= 0 {
		cfg.GlobalRate = 45
	}
	if cfg.GlobalBurst < 1 {
		cfg.GlobalBurst = int(cfg.GlobalRate)
	}
	return &Dispatcher{
		cfg:    cfg,
		mod:    mod,
		global: rate.NewLimiter(rate.Limit(cfg.GlobalRate), cfg.GlobalBurst),
		routes: make(map[string]*slidingwindow.Limiter),
		queues: make(map[string]*guildQueue),
		byKey:  make(map[string]*action.Ticket),
	}
}

// SetResolveFunc wires the decision engine's settlement callback.
func (d *Dispatcher) SetResolveFunc(f ResolveFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resolve = f
}

// SetNotifyFunc wires the terminal-ticket observer.
func (d *Dispatcher) SetNotifyFunc(f NotifyFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notify = f
}

// SetPinFuncs wires the guild state pinning hooks, so guild entries with
// outstanding tickets survive idle eviction.
func (d *Dispatcher) SetPinFuncs(pin, unpin PinFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pin = pin
	d.unpin = unpin
}

func (d *Dispatcher) Start(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)
	return nil
}

// Stop cancels the run context and waits for guild workers to drain their
// current attempt. Queued tickets that never ran stay non-terminal.
func (d *Dispatcher) Stop(_ context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	return nil
}

// Submit enqueues the plan's entries in order on the guild's FIFO queue and
// returns the tickets now tracking them, including pre-existing tickets that
// duplicate entries coalesced onto.
func (d *Dispatcher) Submit(plan *action.Plan) []*action.Ticket {
	if plan == nil || len(plan.Entries) == 0 {
		return nil
	}

	tickets := make([]*action.Ticket, 0, len(plan.Entries))
	for _, entry := range plan.Entries {
		if t := d.enqueue(plan.GuildID, plan.Locale, entry); t != nil {
			tickets = append(tickets, t)
		}
	}
	return tickets
}

func (d *Dispatcher) enqueue(guildID, locale string, entry action.Entry) *action.Ticket {
	d.mu.Lock()
	if existing, ok := d.byKey[entry.Key]; ok && !existing.State().Terminal() {
		existing.MergeReason(entry.Reason)
		d.mu.Unlock()
		return existing
	}

	t := action.NewTicket(guildID, locale, entry)
	q, ok := d.queues[guildID]
	if !ok {
		q = &guildQueue{ch: make(chan *action.Ticket, d.cfg.QueueBound)}
		d.queues[guildID] = q
		d.wg.Add(1)
		go d.runGuild(guildID, q)
	}

	select {
	case q.ch <- t:
		d.byKey[entry.Key] = t
		if d.pin != nil {
			d.pin(guildID)
		}
		d.mu.Unlock()
		return t
	default:
	}
	d.mu.Unlock()

	if !entry.Hostile {
		// backpressure: low-severity work is shed, hostile work only waits
		t.SetState(action.TicketFailedTerminal)
		t.RecordAttempt(rwerrors.ErrDropped, time.Time{})
		log.WithField("context", "dispatch").
			WithField("guild_id", guildID).
			WithField("action", entry.Kind.String()).
			Warn("queue full, dropping non-hostile action")
		d.settle(t, false, false)
		return t
	}

	d.mu.Lock()
	d.byKey[entry.Key] = t
	if d.pin != nil {
		d.pin(guildID)
	}
	d.mu.Unlock()
	select {
	case q.ch <- t:
	case <-d.ctx.Done():
		t.SetState(action.TicketCancelled)
		d.settle(t, false, true)
	}
	return t
}

// Lookup returns the live ticket tracked under the idempotency key, if any.
// Terminal tickets linger for the configured grace period so straggler
// duplicates still coalesce instead of re-executing.
func (d *Dispatcher) Lookup(key string) (*action.Ticket, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.byKey[key]
	return t, ok
}

// CancelUser marks all live tickets targeting the user moot, e.g. after the
// member left the guild on their own.
func (d *Dispatcher) CancelUser(guildID, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.byKey {
		if t.GuildID == guildID && t.Entry.TargetUserID == userID && !t.State().Terminal() {
			t.Cancel()
		}
	}
}

func (d *Dispatcher) runGuild(guildID string, q *guildQueue) {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case t := <-q.ch:
			d.execute(t)
		}
	}
}

// execute drives one ticket through its attempt loop until a terminal state.
func (d *Dispatcher) execute(t *action.Ticket) {
	l := log.WithField("context", "dispatch").
		WithField("guild_id", t.GuildID).
		WithField("action", t.Entry.Kind.String()).
		WithField("ticket_id", t.ID)

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		// cancellation can arrive between retries, re-check every pass
		if t.IsCancelled() {
			t.SetState(action.TicketCancelled)
			l.Info("ticket cancelled, action moot")
			d.settle(t, false, true)
			return
		}
		if err := d.pace(t); err != nil {
			t.SetState(action.TicketCancelled)
			d.settle(t, false, true)
			return
		}

		t.SetState(action.TicketInFlight)
		err := d.call(t)
		if err == nil {
			t.SetState(action.TicketSucceeded)
			t.RecordAttempt(nil, time.Time{})
			l.WithField("attempts", attempt).Info("action executed")
			d.settle(t, true, true)
			return
		}

		if !rwerrors.IsRetryable(err) {
			t.SetState(action.TicketFailedTerminal)
			t.RecordAttempt(err, time.Time{})
			l.WithError(err).Warn("action failed permanently")
			d.settle(t, false, true)
			return
		}

		pause := backoff(attempt, d.cfg.BaseBackoff, d.cfg.MaxBackoff)
		t.SetState(action.TicketFailedRetryable)
		t.RecordAttempt(err, time.Now().Add(pause))
		l.WithError(err).
			WithField("attempt", attempt).
			WithField("backoff", pause.String()).
			Debug("transient failure, retrying")

		select {
		case <-d.ctx.Done():
			return
		case <-time.After(pause):
		}
	}

	t.SetState(action.TicketFailedTerminal)
	l.WithField("attempts", d.cfg.MaxAttempts).Error("action failed, attempts exhausted")
	d.settle(t, false, true)
}

// pace waits for the global token bucket, then for the per-(guild, kind)
// sliding window route budget.
func (d *Dispatcher) pace(t *action.Ticket) error {
	if err := d.global.Wait(d.ctx); err != nil {
		return err
	}

	route := d.routeLimiter(t.GuildID + "/" + t.Entry.Kind.String())
	for !route.Allow() {
		select {
		case <-d.ctx.Done():
			return d.ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return nil
}

func (d *Dispatcher) routeLimiter(route string) *slidingwindow.Limiter {
	d.routeMu.Lock()
	defer d.routeMu.Unlock()
	if lim, ok := d.routes[route]; ok {
		return lim
	}
	window := d.cfg.RouteWindow
	if window <= 0 {
		window = 2 * time.Second
	}
	cap := int64(d.cfg.RouteWindowCap)
	if cap < 1 {
		cap = 5
	}
	lim, _ := slidingwindow.NewLimiter(window, cap, func() (slidingwindow.Window, slidingwindow.StopFunc) {
		return slidingwindow.NewLocalWindow()
	})
	d.routes[route] = lim
	return lim
}

func (d *Dispatcher) call(t *action.Ticket) error {
	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.CallTimeout)
	defer cancel()

	entry := t.Entry
	switch entry.Kind {
	case action.KindWarn:
		return d.mod.Warn(ctx, t.GuildID, entry.TargetUserID, t.Locale, entry.Reason)
	case action.KindMute:
		return d.mod.Mute(ctx, t.GuildID, entry.TargetUserID, entry.Duration, entry.Reason)
	case action.KindKick:
		return d.mod.Kick(ctx, t.GuildID, entry.TargetUserID, entry.Reason)
	case action.KindBan:
		return d.mod.Ban(ctx, t.GuildID, entry.TargetUserID, entry.Reason)
	case action.KindLockdownChannel:
		return d.mod.LockChannel(ctx, t.GuildID, entry.TargetChannelID, entry.Duration, entry.Reason)
	case action.KindDeleteMessage:
		return d.mod.DeleteMessage(ctx, entry.TargetChannelID, entry.MessageID)
	}
	return rwerrors.ErrPermanentExternal
}

// settle runs the terminal bookkeeping for a ticket: resolve callback, state
// unpin, and deferred removal from the key index after the grace period.
func (d *Dispatcher) settle(t *action.Ticket, succeeded, pinned bool) {
	d.mu.Lock()
	resolve := d.resolve
	notify := d.notify
	unpin := d.unpin
	d.mu.Unlock()

	if resolve != nil && t.Entry.TargetUserID != "" {
		resolve(t.GuildID, t.Entry.TargetUserID, t.Entry.Key, succeeded, time.Now())
	}
	if notify != nil {
		notify(t, succeeded)
	}
	if pinned && unpin != nil {
		unpin(t.GuildID)
	}

	grace := d.cfg.TicketGrace
	if grace <= 0 {
		grace = time.Minute
	}
	time.AfterFunc(grace, func() {
		d.mu.Lock()
		if cur, ok := d.byKey[t.Entry.Key]; ok && cur == t {
			delete(d.byKey, t.Entry.Key)
		}
		d.mu.Unlock()
	})
}
