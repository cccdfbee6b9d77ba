// Package pipeline runs the event flow: ingest queue, parallel signal
// extraction, then per-guild ordered application of classification and
// decisions. Extraction is the CPU-heavy stage and runs on a worker pool;
// everything that touches per-guild state happens in sequence order under
// that guild's apply lock.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/raidward/raidward/internal/action"
	"github.com/raidward/raidward/internal/classify"
	"github.com/raidward/raidward/internal/config"
	"github.com/raidward/raidward/internal/db"
	"github.com/raidward/raidward/internal/decision"
	"github.com/raidward/raidward/internal/dispatch"
	"github.com/raidward/raidward/internal/event"
	"github.com/raidward/raidward/internal/gateway"
	"github.com/raidward/raidward/internal/infra"
	"github.com/raidward/raidward/internal/notifier"
	"github.com/raidward/raidward/internal/observability"
	"github.com/raidward/raidward/internal/state"
	"github.com/raidward/raidward/internal/textsig"
)

const janitorInterval = 10 * time.Minute

type stage struct {
	ev     *event.Event
	sig    *textsig.Signals
	picked time.Time
}

type Pipeline struct {
	cfg        config.Config
	store      *state.Store
	classifier *classify.Classifier
	engine     *decision.Engine
	dispatcher *dispatch.Dispatcher
	notify     *notifier.Notifier
	dbc        db.Client

	in  chan *event.Event
	seq *gateway.Sequencer[stage]

	mu      sync.Mutex
	applyMu map[string]*sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	eg     *errgroup.Group
}

func New(cfg config.Config, store *state.Store, classifier *classify.Classifier, engine *decision.Engine, dispatcher *dispatch.Dispatcher, notify *notifier.Notifier, dbc db.Client) *Pipeline {
	queueSize := cfg.Pipeline.QueueSize
	if queueSize < 1 {
		queueSize = 4096
	}
	p := &Pipeline{
		cfg:        cfg,
		store:      store,
		classifier: classifier,
		engine:     engine,
		dispatcher: dispatcher,
		notify:     notify,
		dbc:        dbc,
		in:         make(chan *event.Event, queueSize),
		seq:        gateway.NewSequencer[stage](),
		applyMu:    make(map[string]*sync.Mutex),
	}

	// the engine and the dispatcher reference each other through the
	// pipeline, so the cross-wiring happens here
	engine.SetTicketDirectory(dispatcher)
	dispatcher.SetResolveFunc(engine.ResolveSanction)
	dispatcher.SetPinFuncs(store.AddInFlight, store.ReleaseInFlight)
	dispatcher.SetNotifyFunc(p.onTicketDone)
	return p
}

// In is the ingest queue the gateway adapter writes normalized events to.
func (p *Pipeline) In() chan<- *event.Event {
	return p.in
}

func (p *Pipeline) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.eg, _ = errgroup.WithContext(p.ctx)

	p.warmSettings(p.ctx)

	workers := p.cfg.Pipeline.Workers
	if workers < 1 {
		workers = 8
	}
	for i := 0; i < workers; i++ {
		p.eg.Go(func() error {
			p.worker(p.ctx)
			return nil
		})
	}

	go infra.GoRecoverable(-1, "state_janitor", func() {
		p.janitor(p.ctx)
	})
	return nil
}

func (p *Pipeline) Stop(_ context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	return p.eg.Wait()
}

// warmSettings loads every persisted guild config into the state store so
// the first event after startup already sees the right policy.
func (p *Pipeline) warmSettings(ctx context.Context) {
	if p.dbc == nil {
		return
	}
	all, err := p.dbc.ListSettings(ctx)
	if err != nil {
		log.WithField("context", "pipeline").WithError(err).Warn("cant warm load settings")
		return
	}
	for _, settings := range all {
		p.store.Configure(settings.GuildID, config.ResolveGuild(p.cfg.DefaultLanguage, settings))
	}
	log.WithField("context", "pipeline").WithField("guilds", len(all)).Info("settings warmed")
}

func (p *Pipeline) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.in:
			if ev == nil {
				continue
			}
			p.process(ctx, ev)
		}
	}
}

// process runs the parallel stage for one event, then releases whatever is
// now applicable in sequence order under the guild's apply lock.
func (p *Pipeline) process(ctx context.Context, ev *event.Event) {
	observability.RecordEvent(string(ev.Kind))

	st := stage{ev: ev, picked: time.Now()}
	if ev.Kind == event.KindMessageCreate && ev.Message != nil {
		sig := textsig.Extract(ev.Message.Content)
		st.sig = &sig
	}

	mu := p.guildApplyMu(ev.GuildID)
	mu.Lock()
	defer mu.Unlock()
	for _, released := range p.seq.Offer(ev.GuildID, ev.Seq, st) {
		p.apply(ctx, released)
	}
}

func (p *Pipeline) guildApplyMu(guildID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	mu, ok := p.applyMu[guildID]
	if !ok {
		mu = &sync.Mutex{}
		p.applyMu[guildID] = mu
	}
	return mu
}

func (p *Pipeline) apply(ctx context.Context, st stage) {
	ev := st.ev
	now := ev.Time

	switch ev.Kind {
	case event.KindMemberJoin:
		p.store.ObserveJoin(ev.GuildID, ev.Join.UserID, now)
	case event.KindMessageCreate:
		p.store.ObserveMessage(ev.GuildID, ev.Message.ChannelID, ev.Message.AuthorID, now)
	case event.KindGuildConfigUpdate:
		p.reloadSettings(ctx, ev.GuildID)
		return
	case event.KindMemberLeave:
		// outstanding sanctions against a user who already left are moot
		p.dispatcher.CancelUser(ev.GuildID, ev.Leave.UserID)
		p.engine.Forget(ev.GuildID, ev.Leave.UserID)
		return
	}

	var channelID string
	if ev.Message != nil {
		channelID = ev.Message.ChannelID
	}
	snap := p.store.Snapshot(ev.GuildID, channelID, ev.UserID(), now)
	verdict := p.classifier.Classify(ctx, ev, snap, st.sig)
	observability.RecordVerdict(verdict.Level.String())

	plan, err := p.engine.Apply(ev, snap, verdict, now)
	if err != nil {
		log.WithField("context", "pipeline").
			WithField("guild_id", ev.GuildID).
			WithError(err).
			Warn("verdict not applied")
		return
	}
	if plan != nil {
		p.dispatcher.Submit(plan)
	}
	observability.ObserveProcessing(time.Since(st.picked))
}

func (p *Pipeline) reloadSettings(ctx context.Context, guildID string) {
	if p.dbc == nil {
		return
	}
	settings, err := p.dbc.GetSettings(ctx, guildID)
	if err != nil && err != db.ErrNotFound {
		log.WithField("context", "pipeline").
			WithField("guild_id", guildID).
			WithError(err).
			Warn("cant reload settings")
		return
	}
	p.store.Configure(guildID, config.ResolveGuild(p.cfg.DefaultLanguage, settings))
}

// onTicketDone observes terminal dispatch tickets: metrics, the audit
// notice, and the persistent sanction record.
func (p *Pipeline) onTicketDone(t *action.Ticket, succeeded bool) {
	outcome := "failed"
	if succeeded {
		outcome = "succeeded"
	}
	observability.RecordAction(t.Entry.Kind.String(), outcome)

	now := time.Now()
	cfg := p.store.Snapshot(t.GuildID, "", "", now).Config
	if p.notify != nil {
		p.notify.Notify(cfg.Language, cfg.LogChannelID, t, succeeded)
	}

	if p.dbc == nil || t.Entry.TargetUserID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	record := &db.SanctionRecord{
		GuildID:   t.GuildID,
		UserID:    t.Entry.TargetUserID,
		Action:    t.Entry.Kind.String(),
		Reason:    strings.Join(t.Reasons(), "; "),
		Outcome:   outcome,
		Attempts:  t.Attempts(),
		CreatedAt: now,
	}
	if err := p.dbc.AddSanctionRecord(ctx, record); err != nil {
		log.WithField("context", "pipeline").
			WithField("guild_id", t.GuildID).
			WithError(err).
			Warn("cant persist sanction record")
	}
}

// janitor evicts idle guild state and refreshes the tracked-guilds gauge.
func (p *Pipeline) janitor(ctx context.Context) {
	interval := p.cfg.Pipeline.GuildIdleEviction / 10
	if interval <= 0 || interval > janitorInterval {
		interval = janitorInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			evicted := p.store.EvictIdle(now)
			observability.SetGuildsTracked(p.store.Guilds())
			if evicted > 0 {
				log.WithField("context", "pipeline").WithField("evicted", evicted).Debug("idle guild state evicted")
			}
		}
	}
}
