// Package classify turns a normalized event plus guild state and text
// signals into a three-level verdict. Classification is CPU-only and safe
// to run in parallel across guilds and messages.
package classify

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/raidward/raidward/internal/event"
	"github.com/raidward/raidward/internal/state"
	"github.com/raidward/raidward/internal/textsig"
)

// IntelSource answers whether a user appears on an external raider feed.
type IntelSource interface {
	Known(userID string) bool
}

type Classifier struct {
	intel IntelSource

	phraseMu     sync.RWMutex
	phraseFolded map[string]string
}

func New(intel IntelSource) *Classifier {
	return &Classifier{
		intel:        intel,
		phraseFolded: make(map[string]string),
	}
}

// Classify evaluates every enabled heuristic and maps the summed score to a
// verdict via the guild's two cutoffs. Malformed input fails open (Benign):
// moderation must not itself become an availability risk. Banned-phrase
// matching is the one fail-closed path and is handled inside its heuristic.
func (c *Classifier) Classify(ctx context.Context, ev *event.Event, snap state.Snapshot, sig *textsig.Signals) Verdict {
	_, span := otel.Tracer("classifier").Start(ctx, "classify")
	defer span.End()

	if ev == nil || !snap.Config.Enabled {
		return Verdict{Level: Benign}
	}
	if ev.Kind == event.KindMessageCreate && (ev.Message == nil || sig == nil) {
		log.WithField("context", "classifier").
			WithField("guild_id", ev.GuildID).
			Warn("malformed message event, failing open")
		return Verdict{Level: Benign}
	}

	in := input{ev: ev, snap: snap, sig: sig}
	var (
		total         float64
		reasons       []string
		authoritative bool
	)
	for _, h := range heuristics {
		if !snap.Config.HeuristicEnabled(h.name) {
			continue
		}
		contrib := h.eval(c, in)
		if contrib == nil {
			continue
		}
		total += contrib.score
		reasons = append(reasons, contrib.reason)
		if contrib.authoritative {
			authoritative = true
		}
	}

	verdict := Verdict{Score: total, Reasons: reasons}
	switch {
	case authoritative || total >= snap.Config.HostileCutoff:
		verdict.Level = Hostile
	case total >= snap.Config.SuspiciousCutoff:
		verdict.Level = Suspicious
	default:
		verdict.Level = Benign
	}
	return verdict
}

// foldedPhrases returns the folded forms of the guild's banned phrases,
// memoized per raw phrase since folding is the expensive step.
func (c *Classifier) foldedPhrases(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}

	folded := make([]string, len(raw))
	var misses []int
	c.phraseMu.RLock()
	for i, p := range raw {
		if f, ok := c.phraseFolded[p]; ok {
			folded[i] = f
		} else {
			misses = append(misses, i)
		}
	}
	c.phraseMu.RUnlock()
	if len(misses) == 0 {
		return folded
	}

	c.phraseMu.Lock()
	for _, i := range misses {
		f := textsig.FoldPhrase(raw[i])
		c.phraseFolded[raw[i]] = f
		folded[i] = f
	}
	c.phraseMu.Unlock()
	return folded
}
