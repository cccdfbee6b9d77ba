package action

import (
	"testing"
	"time"
)

func TestKeyCollapsesWithinBucket(t *testing.T) {
	t.Parallel()

	bucket := 30 * time.Second
	base := time.Unix(1750000020, 0) // aligned to a bucket boundary

	k1 := Key("g1", "u1", KindBan, base, bucket)
	k2 := Key("g1", "u1", KindBan, base.Add(29*time.Second), bucket)
	if k1 != k2 {
		t.Fatalf("same bucket keys differ: %q vs %q", k1, k2)
	}

	k3 := Key("g1", "u1", KindBan, base.Add(31*time.Second), bucket)
	if k1 == k3 {
		t.Fatalf("next bucket key must differ")
	}
	if Key("g1", "u1", KindKick, base, bucket) == k1 {
		t.Fatalf("kind must be part of the key")
	}
	if Key("g2", "u1", KindBan, base, bucket) == k1 {
		t.Fatalf("guild must be part of the key")
	}
}

func TestSeverityLadderMapsToKinds(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		severity Severity
		kind     Kind
	}{
		{SeverityWarn, KindWarn},
		{SeverityMute, KindMute},
		{SeverityKick, KindKick},
		{SeverityBan, KindBan},
	} {
		if got := tc.severity.Kind(); got != tc.kind {
			t.Fatalf("severity %d: got %s want %s", tc.severity, got, tc.kind)
		}
	}
}

func TestTicketMergeReasonDeduplicates(t *testing.T) {
	t.Parallel()

	ticket := NewTicket("g1", "en", Entry{Kind: KindBan, TargetUserID: "u1", Reason: "a", Key: "k"})
	ticket.MergeReason("b")
	ticket.MergeReason("a")
	ticket.MergeReason("b")

	reasons := ticket.Reasons()
	if len(reasons) != 2 || reasons[0] != "a" || reasons[1] != "b" {
		t.Fatalf("reasons: %v", reasons)
	}
}

func TestTicketTerminalStates(t *testing.T) {
	t.Parallel()

	terminal := map[TicketState]bool{
		TicketSucceeded:      true,
		TicketFailedTerminal: true,
		TicketCancelled:      true,
	}
	for s := TicketQueued; s <= TicketCancelled; s++ {
		if s.Terminal() != terminal[s] {
			t.Fatalf("state %s: terminal %v", s, s.Terminal())
		}
	}
}
