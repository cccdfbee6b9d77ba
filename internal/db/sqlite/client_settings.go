package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iamwavecut/tool"

	"github.com/raidward/raidward/internal/db"
)

func (c *sqliteClient) GetSettings(ctx context.Context, guildID string) (*db.Settings, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	res := &db.Settings{}
	err := c.db.GetContext(ctx, res, `SELECT * FROM guilds WHERE guild_id = ?`, guildID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("get guild settings: %w", err)
	}
	return res, nil
}

func (c *sqliteClient) SetSettings(ctx context.Context, settings *db.Settings) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO guilds (
			guild_id, enabled, language, log_channel_id,
			join_burst_threshold_override, join_burst_window_override_ns,
			min_account_age_override_ns,
			message_rate_threshold_override, message_rate_window_override_ns,
			mass_mention_cap_override,
			suspicious_cutoff_override, hostile_cutoff_override,
			tolerance_override, sanction_duration_override_ns,
			min_severity_override, max_severity_override,
			disabled_heuristics, banned_phrases, updated_at
		) VALUES (
			:guild_id, :enabled, :language, :log_channel_id,
			:join_burst_threshold_override, :join_burst_window_override_ns,
			:min_account_age_override_ns,
			:message_rate_threshold_override, :message_rate_window_override_ns,
			:mass_mention_cap_override,
			:suspicious_cutoff_override, :hostile_cutoff_override,
			:tolerance_override, :sanction_duration_override_ns,
			:min_severity_override, :max_severity_override,
			:disabled_heuristics, :banned_phrases, datetime('now')
		)
		ON CONFLICT(guild_id) DO UPDATE SET
			enabled=excluded.enabled,
			language=excluded.language,
			log_channel_id=excluded.log_channel_id,
			join_burst_threshold_override=excluded.join_burst_threshold_override,
			join_burst_window_override_ns=excluded.join_burst_window_override_ns,
			min_account_age_override_ns=excluded.min_account_age_override_ns,
			message_rate_threshold_override=excluded.message_rate_threshold_override,
			message_rate_window_override_ns=excluded.message_rate_window_override_ns,
			mass_mention_cap_override=excluded.mass_mention_cap_override,
			suspicious_cutoff_override=excluded.suspicious_cutoff_override,
			hostile_cutoff_override=excluded.hostile_cutoff_override,
			tolerance_override=excluded.tolerance_override,
			sanction_duration_override_ns=excluded.sanction_duration_override_ns,
			min_severity_override=excluded.min_severity_override,
			max_severity_override=excluded.max_severity_override,
			disabled_heuristics=excluded.disabled_heuristics,
			banned_phrases=excluded.banned_phrases,
			updated_at=excluded.updated_at;
	`
	return tool.Err(c.db.NamedExecContext(ctx, query, settings))
}

func (c *sqliteClient) ListSettings(ctx context.Context) ([]*db.Settings, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var res []*db.Settings
	if err := c.db.SelectContext(ctx, &res, `SELECT * FROM guilds`); err != nil {
		return nil, fmt.Errorf("list guild settings: %w", err)
	}
	return res, nil
}
