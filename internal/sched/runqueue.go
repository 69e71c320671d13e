// Package sched implements the per-hart run queues and scheduler of spec
// §4.4: priority-ordered FIFO enqueue, work stealing, daemon requeue, and
// the spawn/exit/kill API surface.
//
// The dispatch-by-key bookkeeping style (register once, look up by a small
// key on every operation) follows the teacher's internal/ipc.Mux, adapted
// here from "message type -> handler" to "hart id -> run queue".
package sched

import (
	"sync"

	"github.com/tinyrange/riscv-core/internal/process"
)

// RunQueue is a single hart's ordered sequence of ready processes, higher
// priority earlier, FIFO within a priority class (spec §3, §4.4).
type RunQueue struct {
	mu    sync.Mutex
	queue []*process.Process
}

// Enqueue inserts p in priority order: walk from the front, insert before
// the first element of strictly lower priority, otherwise append (spec
// §4.4). This is a stable insertion, preserving FIFO within a priority
// class.
func (q *RunQueue) Enqueue(p *process.Process) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueueLocked(p)
}

func (q *RunQueue) enqueueLocked(p *process.Process) {
	pr := p.Priority()
	for i, other := range q.queue {
		if other.Priority() < pr {
			q.queue = append(q.queue, nil)
			copy(q.queue[i+1:], q.queue[i:])
			q.queue[i] = p
			return
		}
	}
	q.queue = append(q.queue, p)
}

// Dequeue removes and returns the first Ready process in the queue,
// skipping (and dropping) any that are not — spec §4.4 step 1 notes
// invariant 3 keeps this near-zero, so a non-Ready head is treated as stale
// and discarded rather than requeued. Returns nil if no runnable process is
// found.
func (q *RunQueue) Dequeue() *process.Process {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.queue) > 0 {
		p := q.queue[0]
		q.queue = q.queue[1:]
		if p.State() == process.Ready {
			return p
		}
	}
	return nil
}

// Peek returns the first element without removing it, or nil.
func (q *RunQueue) Peek() *process.Process {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queue) == 0 {
		return nil
	}
	return q.queue[0]
}

// RemoveByPID removes pid from the queue if present, reporting whether it
// was found.
func (q *RunQueue) RemoveByPID(pid process.PID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, p := range q.queue {
		if p.PID == pid {
			q.queue = append(q.queue[:i], q.queue[i+1:]...)
			return true
		}
	}
	return false
}

// Steal pops from the back of the queue if it has more than one element
// (spec §3, §4.4), returning nil otherwise. Leaving at least one entry
// avoids starving the owning hart entirely on every steal attempt.
func (q *RunQueue) Steal() *process.Process {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queue) <= 1 {
		return nil
	}
	last := len(q.queue) - 1
	p := q.queue[last]
	q.queue = q.queue[:last]
	return p
}

// ContainsPID reports whether pid is currently queued.
func (q *RunQueue) ContainsPID(pid process.PID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range q.queue {
		if p.PID == pid {
			return true
		}
	}
	return false
}

// Len returns the number of queued processes.
func (q *RunQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}
