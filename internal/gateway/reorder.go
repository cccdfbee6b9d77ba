package gateway

import (
	"sync"
)

// maxPending bounds the per-guild reorder buffer. When a gap never fills
// (the missing event was shed or lost), the buffer skips ahead instead of
// wedging the guild forever.
const maxPending = 1024

// Sequencer restores per-guild sequence order for items processed out of
// order by the parallel pipeline stages. Items are held until every lower
// sequence number has been released; stale sequence numbers are dropped.
type Sequencer[T any] struct {
	mu      sync.Mutex
	next    map[string]uint64
	pending map[string]map[uint64]T
}

func NewSequencer[T any]() *Sequencer[T] {
	return &Sequencer[T]{
		next:    make(map[string]uint64),
		pending: make(map[string]map[uint64]T),
	}
}

// Offer adds one item and returns the run of items now releasable in strict
// sequence order. Duplicates and already-released sequence numbers return
// nothing.
func (s *Sequencer[T]) Offer(guildID string, seq uint64, item T) []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := s.next[guildID]
	if !ok {
		next = 1
	}
	if seq < next {
		return nil
	}

	p, ok := s.pending[guildID]
	if !ok {
		p = make(map[uint64]T)
		s.pending[guildID] = p
	}
	if _, dup := p[seq]; dup {
		return nil
	}
	p[seq] = item

	if len(p) > maxPending {
		next = s.skipToLowestLocked(guildID, p)
	}

	var released []T
	for {
		item, ok := p[next]
		if !ok {
			break
		}
		released = append(released, item)
		delete(p, next)
		next++
	}
	s.next[guildID] = next
	if len(p) == 0 {
		delete(s.pending, guildID)
	}
	return released
}

// skipToLowestLocked advances past a permanent gap by jumping to the lowest
// buffered sequence number.
func (s *Sequencer[T]) skipToLowestLocked(guildID string, p map[uint64]T) uint64 {
	lowest := uint64(0)
	first := true
	for seq := range p {
		if first || seq < lowest {
			lowest = seq
			first = false
		}
	}
	return lowest
}

// Pending reports the number of buffered items for the guild.
func (s *Sequencer[T]) Pending(guildID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending[guildID])
}
