package config

import (
	"testing"
	"time"

	"github.com/raidward/raidward/internal/action"
	"github.com/raidward/raidward/internal/db"
)

func TestResolveGuildDefaultsWithoutSettings(t *testing.T) {
	t.Parallel()

	g := ResolveGuild("en", nil)
	if !g.Enabled {
		t.Fatalf("defaults must be enabled")
	}
	if g.JoinBurstThreshold != 5 || g.JoinBurstWindow != 10*time.Second {
		t.Fatalf("join burst defaults: %+v", g)
	}
	if g.SuspiciousCutoff != 1.0 || g.HostileCutoff != 3.0 {
		t.Fatalf("cutoff defaults: %+v", g)
	}
}

func TestResolveGuildAppliesOverrides(t *testing.T) {
	t.Parallel()

	settings := db.DefaultSettings("g1")
	settings.Language = "fr"
	settings.LogChannelID = "c-log"
	settings.JoinBurstThresholdOverride = 3
	settings.SanctionDurationOverrideNS = (30 * time.Minute).Nanoseconds()
	settings.MinSeverityOverride = int(action.SeverityMute)
	settings.DisabledHeuristics = "invite_link, mass_mention"
	settings.BannedPhrases = "free nitro\n\n  spam link  "

	g := ResolveGuild("en", settings)
	if g.Language != "fr" {
		t.Fatalf("language: %q", g.Language)
	}
	if g.LogChannelID != "c-log" {
		t.Fatalf("log channel: %q", g.LogChannelID)
	}
	if g.JoinBurstThreshold != 3 {
		t.Fatalf("threshold: %d", g.JoinBurstThreshold)
	}
	// un-overridden fields keep the defaults
	if g.MessageRateThreshold != 8 {
		t.Fatalf("message rate threshold: %d", g.MessageRateThreshold)
	}
	if g.SanctionDuration != 30*time.Minute {
		t.Fatalf("sanction duration: %v", g.SanctionDuration)
	}
	if g.MinSeverity != action.SeverityMute {
		t.Fatalf("min severity: %v", g.MinSeverity)
	}
	if g.HeuristicEnabled("invite_link") || g.HeuristicEnabled("mass_mention") {
		t.Fatalf("disabled heuristics still enabled: %+v", g.DisabledHeuristics)
	}
	if !g.HeuristicEnabled("join_burst") {
		t.Fatalf("unlisted heuristic disabled")
	}
	if len(g.BannedPhrases) != 2 || g.BannedPhrases[1] != "spam link" {
		t.Fatalf("banned phrases: %v", g.BannedPhrases)
	}
}

func TestNormalizeGuildClampsBrokenValues(t *testing.T) {
	t.Parallel()

	g := DefaultGuild("en")
	g.JoinBurstThreshold = 0
	g.JoinBurstWindow = -time.Second
	g.SuspiciousCutoff = -5
	g.HostileCutoff = -10
	g.Tolerance = 0
	g.MinSeverity = action.SeverityBan
	g.MaxSeverity = action.Severity(99)

	n := NormalizeGuild(g)
	if n.JoinBurstThreshold != 5 || n.JoinBurstWindow != 10*time.Second {
		t.Fatalf("join burst: %+v", n)
	}
	if n.SuspiciousCutoff != 1.0 {
		t.Fatalf("suspicious cutoff: %f", n.SuspiciousCutoff)
	}
	// the hostile cutoff must always sit above the suspicious one
	if n.HostileCutoff <= n.SuspiciousCutoff {
		t.Fatalf("cutoff ordering: %f <= %f", n.HostileCutoff, n.SuspiciousCutoff)
	}
	if n.Tolerance != 2 {
		t.Fatalf("tolerance: %d", n.Tolerance)
	}
	if n.MaxSeverity != action.SeverityBan {
		t.Fatalf("max severity: %v", n.MaxSeverity)
	}
	if n.MinSeverity > n.MaxSeverity {
		t.Fatalf("severity ordering: %v > %v", n.MinSeverity, n.MaxSeverity)
	}
}
