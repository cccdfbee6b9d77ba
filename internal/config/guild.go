package config

import (
	"strings"
	"time"

	"github.com/raidward/raidward/internal/action"
	"github.com/raidward/raidward/internal/db"
)

// Guild is the effective moderation policy for one guild: process defaults
// merged with the guild's persisted overrides. Hot-reloadable; a new value
// replaces the old one atomically inside the guild state store without
// touching in-flight dispatch state.
type Guild struct {
	Enabled      bool
	Language     string
	LogChannelID string

	JoinBurstWindow    time.Duration
	JoinBurstThreshold int
	MinAccountAge      time.Duration

	MessageRateWindow    time.Duration
	MessageRateThreshold int
	MassMentionCap       int

	SuspiciousCutoff float64
	HostileCutoff    float64

	// Tolerance is how many Suspicious verdicts inside the cooldown window
	// a watched user gets before sanctioning.
	Tolerance        int
	SanctionDuration time.Duration
	MinSeverity      action.Severity
	MaxSeverity      action.Severity

	DisabledHeuristics map[string]bool
	BannedPhrases      []string
	// FailClosedPhrases makes an exact banned-phrase match Hostile on its
	// own; when off a match only raises the score like any other heuristic.
	FailClosedPhrases bool
}

func DefaultGuild(language string) Guild {
	return Guild{
		Enabled:  true,
		Language: language,

		JoinBurstWindow:    10 * time.Second,
		JoinBurstThreshold: 5,
		MinAccountAge:      7 * 24 * time.Hour,

		MessageRateWindow:    10 * time.Second,
		MessageRateThreshold: 8,
		MassMentionCap:       5,

		SuspiciousCutoff: 1.0,
		HostileCutoff:    3.0,

		Tolerance:        2,
		SanctionDuration: time.Hour,
		MinSeverity:      action.SeverityWarn,
		MaxSeverity:      action.SeverityBan,

		FailClosedPhrases: true,
	}
}

// HeuristicEnabled reports whether the named classifier heuristic is active
// for this guild. Unknown names are considered enabled.
func (g Guild) HeuristicEnabled(name string) bool {
	if g.DisabledHeuristics == nil {
		return true
	}
	return !g.DisabledHeuristics[name]
}

// ResolveGuild merges persisted per-guild overrides over the process
// defaults. A nil settings value yields the plain defaults.
func ResolveGuild(defaultLanguage string, settings *db.Settings) Guild {
	g := DefaultGuild(defaultLanguage)
	if settings == nil {
		return NormalizeGuild(g)
	}

	g.Enabled = settings.Enabled
	if settings.Language != "" {
		g.Language = settings.Language
	}
	g.LogChannelID = settings.LogChannelID

	if settings.JoinBurstThresholdOverride != db.SettingsOverrideInherit {
		g.JoinBurstThreshold = settings.JoinBurstThresholdOverride
	}
	if settings.JoinBurstWindowOverrideNS != db.SettingsOverrideInherit {
		g.JoinBurstWindow = time.Duration(settings.JoinBurstWindowOverrideNS)
	}
	if settings.MinAccountAgeOverrideNS != db.SettingsOverrideInherit {
		g.MinAccountAge = time.Duration(settings.MinAccountAgeOverrideNS)
	}
	if settings.MessageRateThresholdOverride != db.SettingsOverrideInherit {
		g.MessageRateThreshold = settings.MessageRateThresholdOverride
	}
	if settings.MessageRateWindowOverrideNS != db.SettingsOverrideInherit {
		g.MessageRateWindow = time.Duration(settings.MessageRateWindowOverrideNS)
	}
	if settings.MassMentionCapOverride != db.SettingsOverrideInherit {
		g.MassMentionCap = settings.MassMentionCapOverride
	}
	if settings.SuspiciousCutoffOverride != db.SettingsOverrideInherit {
		g.SuspiciousCutoff = settings.SuspiciousCutoffOverride
	}
	if settings.HostileCutoffOverride != db.SettingsOverrideInherit {
		g.HostileCutoff = settings.HostileCutoffOverride
	}
	if settings.ToleranceOverride != db.SettingsOverrideInherit {
		g.Tolerance = settings.ToleranceOverride
	}
	if settings.SanctionDurationOverrideNS != db.SettingsOverrideInherit {
		g.SanctionDuration = time.Duration(settings.SanctionDurationOverrideNS)
	}
	if settings.MinSeverityOverride != db.SettingsOverrideInherit {
		g.MinSeverity = action.Severity(settings.MinSeverityOverride)
	}
	if settings.MaxSeverityOverride != db.SettingsOverrideInherit {
		g.MaxSeverity = action.Severity(settings.MaxSeverityOverride)
	}

	if settings.DisabledHeuristics != "" {
		g.DisabledHeuristics = make(map[string]bool)
		for _, name := range strings.Split(settings.DisabledHeuristics, ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				g.DisabledHeuristics[name] = true
			}
		}
	}
	if settings.BannedPhrases != "" {
		for _, phrase := range strings.Split(settings.BannedPhrases, "\n") {
			phrase = strings.TrimSpace(phrase)
			if phrase != "" {
				g.BannedPhrases = append(g.BannedPhrases, phrase)
			}
		}
	}

	return NormalizeGuild(g)
}

// NormalizeGuild clamps nonsensical values back to safe defaults, so a bad
// persisted config degrades instead of disabling moderation semantics.
func NormalizeGuild(g Guild) Guild {
	def := DefaultGuild(g.Language)
	if g.JoinBurstWindow <= 0 {
		g.JoinBurstWindow = def.JoinBurstWindow
	}
	if g.JoinBurstThreshold < 1 {
		g.JoinBurstThreshold = def.JoinBurstThreshold
	}
	if g.MinAccountAge < 0 {
		g.MinAccountAge = def.MinAccountAge
	}
	if g.MessageRateWindow <= 0 {
		g.MessageRateWindow = def.MessageRateWindow
	}
	if g.MessageRateThreshold < 1 {
		g.MessageRateThreshold = def.MessageRateThreshold
	}
	if g.MassMentionCap < 1 {
		g.MassMentionCap = def.MassMentionCap
	}
	if g.SuspiciousCutoff <= 0 {
		g.SuspiciousCutoff = def.SuspiciousCutoff
	}
	if g.HostileCutoff <= g.SuspiciousCutoff {
		g.HostileCutoff = g.SuspiciousCutoff + (def.HostileCutoff - def.SuspiciousCutoff)
	}
	if g.Tolerance < 1 {
		g.Tolerance = def.Tolerance
	}
	if g.SanctionDuration <= 0 {
		g.SanctionDuration = def.SanctionDuration
	}
	if g.MaxSeverity > action.SeverityBan {
		g.MaxSeverity = action.SeverityBan
	}
	if g.MinSeverity > g.MaxSeverity {
		g.MinSeverity = g.MaxSeverity
	}
	return g
}
