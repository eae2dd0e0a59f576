package sequence

import "sync/atomic"

// Sequencer hands out strictly increasing identifiers. Zero is never
// issued, so callers may use it as "none".
//
// It backs order ids, journal sequence numbers and outbox event numbers.
type Sequencer struct {
	last atomic.Uint64
}

// New creates a sequencer whose next value is start+1.
// On a fresh start pass 0; after a replay pass the last value seen.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(start)
	return s
}

// Next returns the next identifier.
func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current returns the last issued identifier.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}

// Reset sets the last issued identifier. Only used when restoring state.
func (s *Sequencer) Reset(v uint64) {
	s.last.Store(v)
}

// Observe moves the sequencer forward to v if v is ahead of it, so a
// value seen during replay is never handed out again.
func (s *Sequencer) Observe(v uint64) {
	for {
		cur := s.last.Load()
		if v <= cur || s.last.CompareAndSwap(cur, v) {
			return
		}
	}
}
