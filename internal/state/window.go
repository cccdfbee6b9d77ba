package state

import (
	"time"
)

// Window is a bounded, time-ordered ring of observation timestamps. Inserts
// are clamped to be monotonically non-decreasing; the oldest entry is
// evicted once capacity is reached.
type Window struct {
	times []time.Time
	head  int
	size  int
	last  time.Time
}

func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{times: make([]time.Time, capacity)}
}

func (w *Window) Add(t time.Time) {
	if t.Before(w.last) {
		t = w.last
	}
	w.last = t

	idx := (w.head + w.size) % len(w.times)
	w.times[idx] = t
	if w.size < len(w.times) {
		w.size++
		return
	}
	// full: slot reused, advance head past the evicted oldest entry
	w.head = (w.head + 1) % len(w.times)
}

// CountSince returns the number of entries at or after the cutoff.
func (w *Window) CountSince(cutoff time.Time) int {
	count := 0
	for i := 0; i < w.size; i++ {
		idx := (w.head + i) % len(w.times)
		if !w.times[idx].Before(cutoff) {
			count++
		}
	}
	return count
}

func (w *Window) Len() int {
	return w.size
}

// Last returns the most recent entry, or the zero time when empty.
func (w *Window) Last() time.Time {
	return w.last
}

type joinEntry struct {
	at     time.Time
	userID string
}

// JoinWindow is a bounded ring of recent joins that keeps the joiner's
// identity next to the timestamp, so a burst verdict can reach back to
// everyone who joined inside the window, not just the latest member.
// Same clamping and eviction rules as Window.
type JoinWindow struct {
	entries []joinEntry
	head    int
	size    int
	last    time.Time
}

func NewJoinWindow(capacity int) *JoinWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &JoinWindow{entries: make([]joinEntry, capacity)}
}

func (w *JoinWindow) Add(userID string, t time.Time) {
	if t.Before(w.last) {
		t = w.last
	}
	w.last = t

	idx := (w.head + w.size) % len(w.entries)
	w.entries[idx] = joinEntry{at: t, userID: userID}
	if w.size < len(w.entries) {
		w.size++
		return
	}
	w.head = (w.head + 1) % len(w.entries)
}

// CountSince returns the number of joins at or after the cutoff.
func (w *JoinWindow) CountSince(cutoff time.Time) int {
	count := 0
	for i := 0; i < w.size; i++ {
		idx := (w.head + i) % len(w.entries)
		if !w.entries[idx].at.Before(cutoff) {
			count++
		}
	}
	return count
}

// JoinersSince returns the distinct user IDs that joined at or after the
// cutoff, oldest first.
func (w *JoinWindow) JoinersSince(cutoff time.Time) []string {
	var ids []string
	seen := make(map[string]struct{})
	for i := 0; i < w.size; i++ {
		idx := (w.head + i) % len(w.entries)
		e := w.entries[idx]
		if e.at.Before(cutoff) || e.userID == "" {
			continue
		}
		if _, dup := seen[e.userID]; dup {
			continue
		}
		seen[e.userID] = struct{}{}
		ids = append(ids, e.userID)
	}
	return ids
}

func (w *JoinWindow) Len() int {
	return w.size
}

// Last returns the most recent join time, or the zero time when empty.
func (w *JoinWindow) Last() time.Time {
	return w.last
}
