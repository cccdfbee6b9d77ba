package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/raidward/raidward/internal/classify"
	"github.com/raidward/raidward/internal/config"
	"github.com/raidward/raidward/internal/db/sqlite"
	"github.com/raidward/raidward/internal/decision"
	"github.com/raidward/raidward/internal/discord"
	"github.com/raidward/raidward/internal/dispatch"
	"github.com/raidward/raidward/internal/gateway"
	"github.com/raidward/raidward/internal/infra"
	"github.com/raidward/raidward/internal/intel"
	"github.com/raidward/raidward/internal/lifecycle"
	"github.com/raidward/raidward/internal/notifier"
	"github.com/raidward/raidward/internal/observability"
	"github.com/raidward/raidward/internal/pipeline"
	"github.com/raidward/raidward/internal/state"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatalln("cant load config")
	}
	log.SetFormatter(&config.RwFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.Level(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbc, err := sqlite.NewSQLiteClient(ctx, infra.GetWorkDir(), cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatalln("cant open database")
	}
	defer func() {
		if err := dbc.Close(); err != nil {
			log.WithError(err).Errorln("cant close database")
		}
	}()

	session, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		log.WithError(err).Fatalln("cant create session")
	}
	moderator := discord.NewModerator(session)

	store := state.NewStore(cfg.DefaultLanguage, cfg.Pipeline.OffenseHalfLife, cfg.Pipeline.GuildIdleEviction)
	feed := intel.NewFeed(cfg.Intel, dbc)
	classifier := classify.New(feed)
	engine := decision.NewEngine(store, cfg.Dispatch.IdempotencyStep)
	dispatcher := dispatch.NewDispatcher(cfg.Dispatch, moderator)
	pipe := pipeline.New(cfg, store, classifier, engine, dispatcher, notifier.New(moderator), dbc)
	adapter := gateway.NewAdapter(session, pipe.In(), cfg.Pipeline.DedupeCapacity, cfg.Pipeline.DedupeTTL)

	// gateway last: no events before the rest of the flow is up
	runtime := lifecycle.NewRuntime(
		observability.NewServer(cfg.MetricsAddr),
		feed,
		dispatcher,
		pipe,
		adapter,
	)
	if err := runtime.Start(ctx); err != nil {
		log.WithError(err).Fatalln("cant start")
	}
	log.Infoln("raidward up")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		log.WithField("signal", s.String()).Infoln("shutting down")
	case <-infra.MonitorExecutable(ctx):
		log.Errorln("executable file was modified, shutting down")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := runtime.Stop(stopCtx); err != nil {
		log.WithError(err).Errorln("unclean shutdown")
	}
}
