package process

import "sync"

// Table is the process table (spec §3): a PID -> *Process map protected by
// a single spinlock-shaped mutex. Per spec invariant 8 this lock is never
// held across a context switch — callers must copy out the *Process
// pointer they need and release before switching.
type Table struct {
	mu   sync.Mutex
	byID map[PID]*Process
}

// NewTable constructs an empty process table.
func NewTable() *Table {
	return &Table{byID: make(map[PID]*Process)}
}

// Register adds p to the table.
func (t *Table) Register(p *Process) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[p.PID] = p
}

// Unregister removes pid from the table.
func (t *Table) Unregister(pid PID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byID, pid)
}

// Get returns the process for pid, or nil if not present.
func (t *Table) Get(pid PID) *Process {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byID[pid]
}

// List returns a snapshot of all processes currently registered.
func (t *Table) List() []*Process {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Process, 0, len(t.byID))
	for _, p := range t.byID {
		out = append(out, p)
	}
	return out
}

// Find returns the first registered process for which pred returns true, or
// nil.
func (t *Table) Find(pred func(*Process) bool) *Process {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.byID {
		if pred(p) {
			return p
		}
	}
	return nil
}

// ReapZombies removes every Zombie process whose flags do not include
// RESTART_ON_EXIT (spec §4.3) and returns the PIDs it removed.
func (t *Table) ReapZombies() []PID {
	t.mu.Lock()
	defer t.mu.Unlock()
	var reaped []PID
	for pid, p := range t.byID {
		if p.State() == Zombie && !p.RestartOnExit() {
			delete(t.byID, pid)
			reaped = append(reaped, pid)
		}
	}
	return reaped
}

// Len returns the number of registered processes.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}
