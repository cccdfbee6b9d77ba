package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

type (
	Config struct {
		DiscordToken    string `env:"TOKEN,required"`
		DefaultLanguage string `env:"LANG,default=en"`
		LogLevel        int    `env:"LOG_LEVEL,default=4"`
		DotPath         string `env:"DOT_PATH,default=~/.raidward"`
		DBPath          string `env:"DB_PATH,default=raidward.db"`
		MetricsAddr     string `env:"METRICS_ADDR,default=:9091"`

		Pipeline Pipeline
		Dispatch Dispatch
		Intel    Intel
	}

	Pipeline struct {
		Workers        int           `env:"PIPELINE_WORKERS,default=8"`
		QueueSize      int           `env:"PIPELINE_QUEUE_SIZE,default=4096"`
		DedupeTTL      time.Duration `env:"PIPELINE_DEDUPE_TTL,default=5m"`
		DedupeCapacity int           `env:"PIPELINE_DEDUPE_CAPACITY,default=65536"`
		// Guild state entries with no mutation for this long are evicted.
		GuildIdleEviction time.Duration `env:"PIPELINE_GUILD_IDLE_EVICTION,default=24h"`
		// Half-life of the per-user offense score decay.
		OffenseHalfLife time.Duration `env:"PIPELINE_OFFENSE_HALF_LIFE,default=1h"`
	}

	Dispatch struct {
		MaxAttempts     int           `env:"DISPATCH_MAX_ATTEMPTS,default=5"`
		BaseBackoff     time.Duration `env:"DISPATCH_BASE_BACKOFF,default=500ms"`
		MaxBackoff      time.Duration `env:"DISPATCH_MAX_BACKOFF,default=30s"`
		CallTimeout     time.Duration `env:"DISPATCH_CALL_TIMEOUT,default=10s"`
		QueueBound      int           `env:"DISPATCH_QUEUE_BOUND,default=256"`
		GlobalRate      float64       `env:"DISPATCH_GLOBAL_RATE,default=45"`
		GlobalBurst     int           `env:"DISPATCH_GLOBAL_BURST,default=45"`
		RouteWindowCap  int           `env:"DISPATCH_ROUTE_WINDOW_CAP,default=5"`
		RouteWindow     time.Duration `env:"DISPATCH_ROUTE_WINDOW,default=2s"`
		TicketGrace     time.Duration `env:"DISPATCH_TICKET_GRACE,default=1m"`
		IdempotencyStep time.Duration `env:"DISPATCH_IDEMPOTENCY_STEP,default=30s"`
	}

	Intel struct {
		FeedURLs      []string      `env:"INTEL_FEED_URLS"`
		FetchInterval time.Duration `env:"INTEL_FETCH_INTERVAL,default=1h"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg := &Config{}
		envcfg := envconfig.Config{
			Lookuper: envconfig.PrefixLookuper("RAIDWARD_", envconfig.OsLookuper()),
			Target:   cfg,
		}
		if err := envconfig.ProcessWith(context.Background(), &envcfg); err != nil {
			globalErr = fmt.Errorf("process env config: %w", err)
			return
		}
		home, err := os.UserHomeDir()
		if err != nil {
			globalErr = fmt.Errorf("get user home directory: %w", err)
			return
		}
		cfg.DotPath = strings.Replace(cfg.DotPath, "~", home, 1)
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithError(err).Error("cant load config")
	}
	return cfg
}
