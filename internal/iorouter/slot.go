package iorouter

import (
	"sync"
	"sync/atomic"
)

// MaxPendingRequests bounds the completion ring (spec §3). The router's
// aliasing invariant (spec §4.6, §9) requires every hart's in-flight
// request budget to sum to less than this.
const MaxPendingRequests = 64

// CompletionSlot is one indexed cell of the completion ring (spec §3). The
// store/is_complete/take sequencing below is the spec's critical
// correctness property (§4.6): store writes the result before publishing
// completion with a release, take's acquire load must observe that write
// before it is safe to read the result.
type CompletionSlot struct {
	complete atomic.Bool
	mu       sync.Mutex
	result   *IoResult
}

// Store writes r into the slot then publishes completion (spec §4.6): the
// result write happens-before the completion flag's release store.
func (s *CompletionSlot) Store(r IoResult) {
	s.mu.Lock()
	s.result = &r
	s.mu.Unlock()
	s.complete.Store(true)
}

// IsComplete is an acquire load of the completion flag (spec §4.6).
func (s *CompletionSlot) IsComplete() bool {
	return s.complete.Load()
}

// Take steals the result under the lock and clears the flag exactly once,
// if the slot was observed complete (spec §4.6). It returns (result, true)
// on success, or (zero, false) if nothing was ready.
func (s *CompletionSlot) Take() (IoResult, bool) {
	if !s.complete.Load() {
		return IoResult{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return IoResult{}, false
	}
	r := *s.result
	s.result = nil
	s.complete.Store(false)
	return r, true
}

// Reset clears the flag and any stored result. The producer must call this
// before enqueueing a new request into this slot (spec §3 invariant 5,
// §4.6).
func (s *CompletionSlot) Reset() {
	s.mu.Lock()
	s.result = nil
	s.mu.Unlock()
	s.complete.Store(false)
}

// Ring is the fixed-size completion ring, indexed by request id modulo
// MaxPendingRequests (spec §3).
type Ring struct {
	slots [MaxPendingRequests]CompletionSlot
}

// Slot returns the completion slot for requestID.
func (r *Ring) Slot(requestID uint64) *CompletionSlot {
	return &r.slots[requestID%MaxPendingRequests]
}
