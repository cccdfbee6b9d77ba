package db

import (
	"time"
)

// SettingsOverrideInherit marks a per-guild column as "use the process-wide
// default". Numeric override columns store this sentinel instead of NULL so
// sqlx scanning stays plain.
const SettingsOverrideInherit = -1

type (
	// Settings is the persisted per-guild moderation configuration.
	// Override columns inherit the process defaults unless set.
	Settings struct {
		GuildID      string `db:"guild_id"`
		Enabled      bool   `db:"enabled"`
		Language     string `db:"language"`
		LogChannelID string `db:"log_channel_id"`

		JoinBurstThresholdOverride   int     `db:"join_burst_threshold_override"`
		JoinBurstWindowOverrideNS    int64   `db:"join_burst_window_override_ns"`
		MinAccountAgeOverrideNS      int64   `db:"min_account_age_override_ns"`
		MessageRateThresholdOverride int     `db:"message_rate_threshold_override"`
		MessageRateWindowOverrideNS  int64   `db:"message_rate_window_override_ns"`
		MassMentionCapOverride       int     `db:"mass_mention_cap_override"`
		SuspiciousCutoffOverride     float64 `db:"suspicious_cutoff_override"`
		HostileCutoffOverride        float64 `db:"hostile_cutoff_override"`
		ToleranceOverride            int     `db:"tolerance_override"`
		SanctionDurationOverrideNS   int64   `db:"sanction_duration_override_ns"`
		MinSeverityOverride          int     `db:"min_severity_override"`
		MaxSeverityOverride          int     `db:"max_severity_override"`

		// DisabledHeuristics is a comma-separated list of heuristic names
		// the guild opted out of.
		DisabledHeuristics string `db:"disabled_heuristics"`
		// BannedPhrases is a newline-separated phrase list, matched after
		// confusable normalization.
		BannedPhrases string `db:"banned_phrases"`

		UpdatedAt time.Time `db:"updated_at"`
	}

	// SanctionRecord is the audit trail row written after a dispatch ticket
	// reaches a terminal state.
	SanctionRecord struct {
		ID        int64     `db:"id"`
		GuildID   string    `db:"guild_id"`
		UserID    string    `db:"user_id"`
		Action    string    `db:"action"`
		Reason    string    `db:"reason"`
		Outcome   string    `db:"outcome"`
		Attempts  int       `db:"attempts"`
		CreatedAt time.Time `db:"created_at"`
	}
)

func DefaultSettings(guildID string) *Settings {
	return &Settings{
		GuildID:  guildID,
		Enabled:  true,
		Language: "en",

		JoinBurstThresholdOverride:   SettingsOverrideInherit,
		JoinBurstWindowOverrideNS:    SettingsOverrideInherit,
		MinAccountAgeOverrideNS:      SettingsOverrideInherit,
		MessageRateThresholdOverride: SettingsOverrideInherit,
		MessageRateWindowOverrideNS:  SettingsOverrideInherit,
		MassMentionCapOverride:       SettingsOverrideInherit,
		SuspiciousCutoffOverride:     SettingsOverrideInherit,
		HostileCutoffOverride:        SettingsOverrideInherit,
		ToleranceOverride:            SettingsOverrideInherit,
		SanctionDurationOverrideNS:   SettingsOverrideInherit,
		MinSeverityOverride:          SettingsOverrideInherit,
		MaxSeverityOverride:          SettingsOverrideInherit,
	}
}
