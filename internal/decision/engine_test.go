package decision

import (
	"context"
	"testing"
	"time"

	"github.com/raidward/raidward/internal/action"
	"github.com/raidward/raidward/internal/classify"
	"github.com/raidward/raidward/internal/config"
	rwerrors "github.com/raidward/raidward/internal/errors"
	"github.com/raidward/raidward/internal/event"
	"github.com/raidward/raidward/internal/state"
)

func testSnap() state.Snapshot {
	return state.Snapshot{
		GuildID: "g1",
		Config:  config.NormalizeGuild(config.DefaultGuild("en")),
	}
}

func testEngine() *Engine {
	store := state.NewStore("en", time.Hour, 24*time.Hour)
	return NewEngine(store, 30*time.Second)
}

func joinAt(seq uint64, userID string, at time.Time) *event.Event {
	return &event.Event{
		ID:      "e",
		Seq:     seq,
		Kind:    event.KindMemberJoin,
		GuildID: "g1",
		Time:    at,
		Join:    &event.MemberJoin{UserID: userID, AccountAge: time.Hour},
	}
}

func messageAt(seq uint64, userID string, at time.Time) *event.Event {
	return &event.Event{
		ID:      "m",
		Seq:     seq,
		Kind:    event.KindMessageCreate,
		GuildID: "g1",
		Time:    at,
		Message: &event.MessageCreate{
			MessageID: "m1",
			ChannelID: "c1",
			AuthorID:  userID,
		},
	}
}

func suspicious() classify.Verdict {
	return classify.Verdict{Level: classify.Suspicious, Score: 1.5, Reasons: []string{"message_rate(count=9)"}}
}

func hostile() classify.Verdict {
	return classify.Verdict{Level: classify.Hostile, Score: 4.0, Reasons: []string{"join_burst(ratio=1.40)"}}
}

func TestSuspiciousWithinToleranceOnlyWatches(t *testing.T) {
	t.Parallel()

	e := testEngine()
	base := time.Now()

	// default tolerance is 2: first two suspicious verdicts only watch
	for i := uint64(1); i <= 2; i++ {
		plan, err := e.Apply(messageAt(i, "u1", base.Add(time.Duration(i)*time.Second)), testSnap(), suspicious(), base.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
		if plan != nil {
			t.Fatalf("apply %d: unexpected plan %+v", i, plan)
		}
	}
	if got := e.StateOf("g1", "u1"); got != Watched {
		t.Fatalf("state: got %s want watched", got)
	}
}

func TestSuspiciousOverToleranceSanctionsAtMinSeverity(t *testing.T) {
	t.Parallel()

	e := testEngine()
	base := time.Now()

	var plan *action.Plan
	var err error
	for i := uint64(1); i <= 3; i++ {
		plan, err = e.Apply(messageAt(i, "u1", base), testSnap(), suspicious(), base.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}
	if plan == nil {
		t.Fatalf("expected a plan on the third suspicious verdict")
	}
	if len(plan.Entries) != 1 || plan.Entries[0].Kind != action.KindWarn {
		t.Fatalf("entries: %+v", plan.Entries)
	}
	if got := e.StateOf("g1", "u1"); got != Sanctioned {
		t.Fatalf("state: got %s want sanctioned", got)
	}
}

func TestHostileJumpsToMaxSeverityAndDeletesMessage(t *testing.T) {
	t.Parallel()

	e := testEngine()
	base := time.Now()

	plan, err := e.Apply(messageAt(1, "u1", base), testSnap(), hostile(), base)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if plan == nil {
		t.Fatalf("expected a plan")
	}
	if len(plan.Entries) != 2 {
		t.Fatalf("entries: %+v", plan.Entries)
	}
	if plan.Entries[0].Kind != action.KindDeleteMessage {
		t.Fatalf("first entry: got %s want delete_message", plan.Entries[0].Kind)
	}
	if plan.Entries[1].Kind != action.KindBan {
		t.Fatalf("second entry: got %s want ban", plan.Entries[1].Kind)
	}
	if !plan.Entries[1].Hostile {
		t.Fatalf("hostile entry not flagged")
	}
}

func TestHostileMessageDuringBurstLocksTheChannel(t *testing.T) {
	t.Parallel()

	e := testEngine()
	base := time.Now()
	snap := testSnap()
	snap.JoinCount = 7
	snap.BurstRatio = 1.4

	plan, err := e.Apply(messageAt(1, "u1", base), snap, hostile(), base)
	if err != nil || plan == nil {
		t.Fatalf("apply: plan=%v err=%v", plan, err)
	}
	if len(plan.Entries) != 3 {
		t.Fatalf("entries: %+v", plan.Entries)
	}
	lock := plan.Entries[2]
	if lock.Kind != action.KindLockdownChannel || lock.TargetChannelID != "c1" {
		t.Fatalf("lockdown entry: %+v", lock)
	}
	if lock.Duration != snap.Config.SanctionDuration || !lock.Hostile {
		t.Fatalf("lockdown entry: %+v", lock)
	}
}

func TestHostileJoinBurstSweepsEarlierJoiners(t *testing.T) {
	t.Parallel()

	e := testEngine()
	base := time.Now()
	snap := testSnap()
	snap.JoinCount = 6
	snap.BurstRatio = 1.2
	snap.RecentJoiners = []string{"a", "b", "c", "d", "e", "f"}

	// the verdict only turned hostile on the sixth join; the plan still has
	// to cover the five joiners that slipped through as benign
	plan, err := e.Apply(joinAt(1, "f", base), snap, hostile(), base)
	if err != nil || plan == nil {
		t.Fatalf("apply: plan=%v err=%v", plan, err)
	}
	if len(plan.Entries) != 6 {
		t.Fatalf("entries: %+v", plan.Entries)
	}
	seen := make(map[string]bool)
	for _, entry := range plan.Entries {
		if entry.Kind != action.KindBan || !entry.Hostile {
			t.Fatalf("entry: %+v", entry)
		}
		seen[entry.TargetUserID] = true
	}
	for _, u := range snap.RecentJoiners {
		if !seen[u] {
			t.Fatalf("joiner %s not sanctioned: %+v", u, plan.Entries)
		}
		if got := e.StateOf("g1", u); got != Sanctioned {
			t.Fatalf("joiner %s state: got %s want sanctioned", u, got)
		}
	}

	// a straggler join in the same bucket coalesces everyone, no new entries
	again, err := e.Apply(joinAt(2, "f", base.Add(time.Second)), snap, hostile(), base.Add(time.Second))
	if err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	if again != nil {
		t.Fatalf("expected coalesce, got %+v", again)
	}
}

// The flagship raid shape: six day-old accounts joining within eight seconds
// against the default five-joins-per-ten-seconds threshold. The score only
// crosses the hostile cutoff a few joins in, so the ban of the whole wave
// depends on the retroactive sweep over the join window.
func TestJoinBurstOfYoungAccountsBansTheWholeWave(t *testing.T) {
	t.Parallel()

	store := state.NewStore("en", time.Hour, 24*time.Hour)
	e := NewEngine(store, 30*time.Second)
	cls := classify.New(nil)

	base := time.Unix(1750000020, 0) // aligned to an idempotency bucket
	banned := make(map[string]int)

	apply := func(seq uint64, userID string, at time.Time) {
		t.Helper()
		store.ObserveJoin("g1", userID, at)
		snap := store.Snapshot("g1", "", userID, at)
		ev := &event.Event{
			ID:      "join/g1/" + userID,
			Seq:     seq,
			Kind:    event.KindMemberJoin,
			GuildID: "g1",
			Time:    at,
			Join:    &event.MemberJoin{UserID: userID, AccountAge: 24 * time.Hour},
		}
		verdict := cls.Classify(context.Background(), ev, snap, nil)
		plan, err := e.Apply(ev, snap, verdict, at)
		if err != nil {
			t.Fatalf("apply %s: %v", userID, err)
		}
		if plan == nil {
			return
		}
		for _, entry := range plan.Entries {
			if entry.Kind == action.KindBan {
				banned[entry.TargetUserID]++
			}
		}
	}

	users := []string{"u1", "u2", "u3", "u4", "u5", "u6"}
	for i, u := range users {
		apply(uint64(i+1), u, base.Add(time.Duration(i)*1200*time.Millisecond))
	}

	for _, u := range users {
		if banned[u] != 1 {
			t.Fatalf("user %s: got %d bans want 1 (all: %v)", u, banned[u], banned)
		}
	}

	// a redelivered join from the same wave lands in the same idempotency
	// bucket and must not double any sanction
	apply(7, "u6", base.Add(7*time.Second))
	for _, u := range users {
		if banned[u] != 1 {
			t.Fatalf("after redelivery, user %s: got %d bans want 1", u, banned[u])
		}
	}
}

func TestDuplicateSanctionInSameBucketCoalesces(t *testing.T) {
	t.Parallel()

	e := testEngine()
	base := time.Now()

	plan, err := e.Apply(joinAt(1, "u1", base), testSnap(), hostile(), base)
	if err != nil || plan == nil {
		t.Fatalf("first apply: plan=%v err=%v", plan, err)
	}

	// same user, same idempotency bucket: no second plan
	again, err := e.Apply(joinAt(2, "u1", base.Add(time.Second)), testSnap(), hostile(), base.Add(time.Second))
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if again != nil {
		t.Fatalf("expected coalesce, got %+v", again)
	}
}

func TestResolveSuccessDecaysToClear(t *testing.T) {
	t.Parallel()

	e := testEngine()
	base := time.Now()
	snap := testSnap()

	plan, err := e.Apply(joinAt(1, "u1", base), snap, hostile(), base)
	if err != nil || plan == nil {
		t.Fatalf("apply: plan=%v err=%v", plan, err)
	}
	key := plan.Entries[0].Key
	e.ResolveSanction("g1", "u1", key, true, base)

	if got := e.StateOf("g1", "u1"); got != Sanctioned {
		t.Fatalf("state before decay: got %s want sanctioned", got)
	}

	// a benign event after the sanction duration triggers the decay
	later := base.Add(snap.Config.SanctionDuration + time.Minute)
	if _, err := e.Apply(joinAt(2, "u1", later), snap, classify.Verdict{Level: classify.Benign}, later); err != nil {
		t.Fatalf("benign apply: %v", err)
	}
	if got := e.StateOf("g1", "u1"); got != Clear {
		t.Fatalf("state after decay: got %s want clear", got)
	}
}

func TestResolveFailureDropsBackToWatched(t *testing.T) {
	t.Parallel()

	e := testEngine()
	base := time.Now()

	plan, err := e.Apply(joinAt(1, "u1", base), testSnap(), hostile(), base)
	if err != nil || plan == nil {
		t.Fatalf("apply: plan=%v err=%v", plan, err)
	}
	e.ResolveSanction("g1", "u1", plan.Entries[0].Key, false, base)

	if got := e.StateOf("g1", "u1"); got != Watched {
		t.Fatalf("state: got %s want watched", got)
	}

	// the next hostile verdict re-issues the sanction
	again, err := e.Apply(joinAt(2, "u1", base.Add(time.Minute)), testSnap(), hostile(), base.Add(time.Minute))
	if err != nil {
		t.Fatalf("re-apply: %v", err)
	}
	if again == nil {
		t.Fatalf("expected a new plan after failed sanction")
	}
}

func TestStaleSequenceRejected(t *testing.T) {
	t.Parallel()

	e := testEngine()
	base := time.Now()

	if _, err := e.Apply(joinAt(5, "u1", base), testSnap(), classify.Verdict{Level: classify.Benign}, base); err != nil {
		t.Fatalf("apply seq 5: %v", err)
	}
	_, err := e.Apply(joinAt(5, "u1", base), testSnap(), classify.Verdict{Level: classify.Benign}, base)
	if err != rwerrors.ErrStateCorruption {
		t.Fatalf("expected stale sequence rejection, got %v", err)
	}
}

func TestForgetDropsUserRecord(t *testing.T) {
	t.Parallel()

	e := testEngine()
	base := time.Now()

	if _, err := e.Apply(messageAt(1, "u1", base), testSnap(), suspicious(), base); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := e.StateOf("g1", "u1"); got != Watched {
		t.Fatalf("state: got %s want watched", got)
	}

	e.Forget("g1", "u1")
	if got := e.StateOf("g1", "u1"); got != Clear {
		t.Fatalf("state after forget: got %s want clear", got)
	}
}
