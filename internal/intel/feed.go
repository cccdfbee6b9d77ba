// Package intel maintains the set of externally known raider accounts,
// refreshed from plain-text feeds (one user ID per line, # comments).
package intel

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"

	"github.com/raidward/raidward/internal/config"
	"github.com/raidward/raidward/internal/infra"
)

// Snapshots is the persistence surface for warm starts, satisfied by the
// db client's key-value store.
type Snapshots interface {
	GetKV(ctx context.Context, key string) (string, error)
	SetKV(ctx context.Context, key, value string) error
}

const snapshotKey = "intel_known"

type Feed struct {
	urls      []string
	interval  time.Duration
	client    *retryablehttp.Client
	snapshots Snapshots

	mu    sync.RWMutex
	known map[string]struct{}

	// lastGood caches the last successfully fetched IDs per feed URL; only
	// the refresh loop touches it.
	lastGood map[string][]string

	cancel context.CancelFunc
	done   chan struct{}
}

func NewFeed(cfg config.Intel, snapshots Snapshots) *Feed {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = time.Second
	client.RetryWaitMax = 30 * time.Second
	client.Logger = leveledLogrus{log.WithField("context", "intel")}

	interval := cfg.FetchInterval
	if interval <= 0 {
		interval = time.Hour
	}
	return &Feed{
		urls:      cfg.FeedURLs,
		interval:  interval,
		client:    client,
		snapshots: snapshots,
		known:     make(map[string]struct{}),
		lastGood:  make(map[string][]string),
		done:      make(chan struct{}),
	}
}

// Known reports whether the user appears on any configured feed. Always
// false when no feeds are configured.
func (f *Feed) Known(userID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.known[userID]
	return ok
}

func (f *Feed) Start(ctx context.Context) error {
	if len(f.urls) == 0 {
		close(f.done)
		return nil
	}
	ctx, f.cancel = context.WithCancel(ctx)
	f.restore(ctx)

	go infra.GoRecoverable(-1, "intel_feed", func() {
		defer close(f.done)
		f.refresh(ctx)

		t := time.NewTicker(f.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				f.refresh(ctx)
			}
		}
	})
	return nil
}

func (f *Feed) Stop(ctx context.Context) error {
	if f.cancel != nil {
		f.cancel()
	}
	select {
	case <-f.done:
	case <-ctx.Done():
	}
	return nil
}

// refresh fetches every feed and swaps the merged set in one step. A feed
// that fails to fetch contributes its last good result instead of being
// dropped from the merge, so one flaky feed never erases another's data.
func (f *Feed) refresh(ctx context.Context) {
	l := log.WithField("context", "intel")
	next := make(map[string]struct{})
	fetched := 0
	for _, url := range f.urls {
		ids, err := f.fetch(ctx, url)
		if err != nil {
			l.WithField("url", url).WithError(err).Warn("cant fetch feed, keeping last good data")
			ids = f.lastGood[url]
		} else {
			f.lastGood[url] = ids
			fetched++
		}
		for _, id := range ids {
			next[id] = struct{}{}
		}
	}
	if fetched == 0 {
		return
	}

	f.mu.Lock()
	f.known = next
	f.mu.Unlock()
	l.WithField("feeds", fetched).WithField("known", len(next)).Info("intel refreshed")
	f.persist(ctx, next)
}

// restore seeds the set from the last persisted snapshot so a restart has
// intel before the first fetch completes.
func (f *Feed) restore(ctx context.Context) {
	if f.snapshots == nil {
		return
	}
	raw, err := f.snapshots.GetKV(ctx, snapshotKey)
	if err != nil {
		log.WithField("context", "intel").WithError(err).Warn("cant restore snapshot")
		return
	}
	if raw == "" {
		return
	}
	restored := make(map[string]struct{})
	for _, id := range strings.Split(raw, "\n") {
		if isDigits(id) {
			restored[id] = struct{}{}
		}
	}
	f.mu.Lock()
	f.known = restored
	f.mu.Unlock()
}

func (f *Feed) persist(ctx context.Context, known map[string]struct{}) {
	if f.snapshots == nil {
		return
	}
	ids := make([]string, 0, len(known))
	for id := range known {
		ids = append(ids, id)
	}
	if err := f.snapshots.SetKV(ctx, snapshotKey, strings.Join(ids, "\n")); err != nil {
		log.WithField("context", "intel").WithError(err).Warn("cant persist snapshot")
	}
}

func (f *Feed) fetch(ctx context.Context, url string) ([]string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var ids []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !isDigits(line) {
			continue
		}
		ids = append(ids, line)
	}
	return ids, scanner.Err()
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// leveledLogrus adapts logrus to the retryable client's logger contract,
// demoting its retry errors to warnings.
type leveledLogrus struct {
	l *log.Entry
}

func (l leveledLogrus) Error(msg string, keysAndValues ...interface{}) {
	l.l.Warn(append([]interface{}{msg}, keysAndValues...)...)
}

func (l leveledLogrus) Warn(msg string, keysAndValues ...interface{}) {
	l.l.Warn(append([]interface{}{msg}, keysAndValues...)...)
}

func (l leveledLogrus) Info(msg string, keysAndValues ...interface{}) {
	l.l.Info(append([]interface{}{msg}, keysAndValues...)...)
}

func (l leveledLogrus) Debug(msg string, keysAndValues ...interface{}) {
	l.l.Debug(append([]interface{}{msg}, keysAndValues...)...)
}
