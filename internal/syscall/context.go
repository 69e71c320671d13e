package syscall

import (
	"sync"

	"github.com/tinyrange/riscv-core/internal/process"
)

// callContext is the per-process syscall context (spec §4.8): the argv
// slice recorded before a binary is dispatched, its working directory,
// and a slot for its exit code.
type callContext struct {
	argv     []string
	cwd      string
	exitCode *int32
}

// contextTable maps running PIDs to their syscall context. The kernel's
// Rust ancestor kept this as a single thread-local slot, because only one
// user binary runs per hart at a time (spec §4.8: "re-entrancy across
// nested user programs is not required"); tracking it by PID instead lets
// every hart dispatch syscalls for its own current process without a
// shared mutable global.
type contextTable struct {
	mu sync.Mutex
	m  map[process.PID]*callContext
}

func newContextTable() *contextTable {
	return &contextTable{m: make(map[process.PID]*callContext)}
}

// InitContext records argv for pid before dispatching its binary.
func (t *contextTable) InitContext(pid process.PID, argv []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[pid] = &callContext{argv: argv, cwd: "/"}
}

// ClearContext drops pid's context and returns its recorded exit code, if
// any was set via SysExit.
func (t *contextTable) ClearContext(pid process.PID) (int32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.m[pid]
	delete(t.m, pid)
	if !ok || c.exitCode == nil {
		return 0, false
	}
	return *c.exitCode, true
}

func (t *contextTable) get(pid process.PID) (*callContext, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.m[pid]
	return c, ok
}

func (t *contextTable) setExitCode(pid process.PID, code int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.m[pid]; ok {
		c.exitCode = &code
	}
}

func (t *contextTable) setCwd(pid process.PID, cwd string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.m[pid]; ok {
		c.cwd = cwd
	}
}
