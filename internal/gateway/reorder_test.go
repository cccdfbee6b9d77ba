package gateway

import (
	"math/rand"
	"testing"
	"time"
)

func TestSequencerReleasesInOrder(t *testing.T) {
	t.Parallel()

	s := NewSequencer[int]()

	if got := s.Offer("g1", 2, 2); got != nil {
		t.Fatalf("seq 2 released early: %v", got)
	}
	if got := s.Offer("g1", 3, 3); got != nil {
		t.Fatalf("seq 3 released early: %v", got)
	}

	released := s.Offer("g1", 1, 1)
	if len(released) != 3 {
		t.Fatalf("released: %v", released)
	}
	for i, v := range released {
		if v != i+1 {
			t.Fatalf("order broken: %v", released)
		}
	}
	if s.Pending("g1") != 0 {
		t.Fatalf("pending: %d", s.Pending("g1"))
	}
}

func TestSequencerShuffledDeliveryMatchesOrderedDelivery(t *testing.T) {
	t.Parallel()

	const n = 200
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	perm := rng.Perm(n)

	s := NewSequencer[uint64]()
	var out []uint64
	for _, i := range perm {
		seq := uint64(i + 1)
		out = append(out, s.Offer("g1", seq, seq)...)
	}

	if len(out) != n {
		t.Fatalf("released %d of %d", len(out), n)
	}
	for i, v := range out {
		if v != uint64(i+1) {
			t.Fatalf("out of order at %d: %d", i, v)
		}
	}
}

func TestSequencerDropsStaleAndDuplicate(t *testing.T) {
	t.Parallel()

	s := NewSequencer[int]()
	if got := s.Offer("g1", 1, 1); len(got) != 1 {
		t.Fatalf("seq 1: %v", got)
	}
	if got := s.Offer("g1", 1, 1); got != nil {
		t.Fatalf("stale seq released: %v", got)
	}
	if got := s.Offer("g1", 3, 3); got != nil {
		t.Fatalf("gap released: %v", got)
	}
	if got := s.Offer("g1", 3, 33); got != nil {
		t.Fatalf("duplicate pending released: %v", got)
	}
	if got := s.Offer("g1", 2, 2); len(got) != 2 {
		t.Fatalf("fill gap: %v", got)
	}
}

func TestSequencerGuildsAreIndependent(t *testing.T) {
	t.Parallel()

	s := NewSequencer[int]()
	if got := s.Offer("g1", 1, 10); len(got) != 1 || got[0] != 10 {
		t.Fatalf("g1: %v", got)
	}
	if got := s.Offer("g2", 1, 20); len(got) != 1 || got[0] != 20 {
		t.Fatalf("g2: %v", got)
	}
}

func TestSnowflakeTime(t *testing.T) {
	t.Parallel()

	// 175928847299117063 >> 22 = 41944705796 ms after the epoch
	got := SnowflakeTime("175928847299117063")
	want := time.UnixMilli(1420070400000 + 41944705796)
	if !got.Equal(want) {
		t.Fatalf("snowflake time: got %v want %v", got, want)
	}

	if !SnowflakeTime("not-a-snowflake").IsZero() {
		t.Fatalf("malformed snowflake must map to the zero time")
	}
}
