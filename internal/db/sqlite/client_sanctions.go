package sqlite

import (
	"context"

	"github.com/iamwavecut/tool"

	"github.com/raidward/raidward/internal/db"
)

func (c *sqliteClient) AddSanctionRecord(ctx context.Context, rec *db.SanctionRecord) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO sanctions (guild_id, user_id, action, reason, outcome, attempts, created_at)
		VALUES (:guild_id, :user_id, :action, :reason, :outcome, :attempts, datetime('now'))
	`
	return tool.Err(c.db.NamedExecContext(ctx, query, rec))
}
