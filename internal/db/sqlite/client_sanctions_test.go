package sqlite

import (
	"context"
	"testing"

	"github.com/raidward/raidward/internal/db"
)

func TestAddSanctionRecordPersistsAuditRow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, err := NewSQLiteClient(ctx, t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("new sqlite client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	records := []*db.SanctionRecord{
		{GuildID: "g1", UserID: "u1", Action: "ban", Reason: "join burst", Outcome: "succeeded", Attempts: 1},
		{GuildID: "g1", UserID: "u1", Action: "mute", Reason: "message flood", Outcome: "failed", Attempts: 5},
		{GuildID: "g2", UserID: "u2", Action: "warn", Outcome: "succeeded", Attempts: 1},
	}
	for _, rec := range records {
		if err := client.AddSanctionRecord(ctx, rec); err != nil {
			t.Fatalf("add sanction record: %v", err)
		}
	}

	var count int
	if err := client.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM sanctions WHERE guild_id = ? AND user_id = ?`, "g1", "u1"); err != nil {
		t.Fatalf("count sanctions: %v", err)
	}
	if count != 2 {
		t.Fatalf("g1/u1 rows: %d", count)
	}

	var got db.SanctionRecord
	if err := client.db.GetContext(ctx, &got,
		`SELECT * FROM sanctions WHERE guild_id = ? AND action = ?`, "g1", "mute"); err != nil {
		t.Fatalf("get sanction: %v", err)
	}
	if got.Outcome != "failed" || got.Attempts != 5 || got.Reason != "message flood" {
		t.Fatalf("unexpected row: %#v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("created_at not populated")
	}
}
