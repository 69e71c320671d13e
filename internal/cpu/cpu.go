// Package cpu implements the fixed-size per-hart CPU table (spec §3, §4.2):
// one cache-line-aligned descriptor per hart, tracking online/idle/running
// state, the PID currently executing, and utilization statistics.
//
// Grounded on the per-hart bookkeeping shape of the teacher's
// internal/hv/riscv/rv64 Machine struct (id, running state, stat counters),
// rewritten here as independently-atomic fields per spec §4.2 rather than a
// single mutex-guarded struct, since the spec requires each field
// independently accessed.
package cpu

import (
	"sync/atomic"

	"github.com/tinyrange/riscv-core/internal/platform"
)

// State is the lifecycle of a CPU entry (spec §3).
type State int32

const (
	Offline State = iota
	Online
	Idle
	Running
	Halted
)

func (s State) String() string {
	switch s {
	case Offline:
		return "offline"
	case Online:
		return "online"
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Halted:
		return "halted"
	default:
		return "unknown"
	}
}

// NoProcess is the sentinel stored in CurrentProcess when no process is
// scheduled on a CPU.
const NoProcess uint32 = 0

// CPU is a single hart's descriptor. It is padded to a cache line so that
// independent harts updating their own descriptor never false-share.
type CPU struct {
	ID    int
	IsBSP bool

	SchedulerContext SchedContext

	state          atomic.Int32
	currentProcess atomic.Uint32

	busyMS          atomic.Int64
	idleMS          atomic.Int64
	contextSwitches atomic.Uint64
	interrupts      atomic.Uint64
	idleStart       atomic.Int64

	_ [64]byte // pad to discourage false sharing between adjacent CPU entries
}

// SchedContext is the context saved when a process switches back to the
// scheduler on this hart (spec §4.2). It is written only by the hart that
// owns this CPU, and only during a switch into or out of its scheduler —
// an invariant enforced by the hartloop/sched protocol, not the type system
// (spec §9).
type SchedContext struct {
	ReturnPC uintptr
	StackPtr uintptr
	Saved    [12]uint64 // callee-saved register file, per ABI (ra, sp excluded)
}

// State returns the CPU's current lifecycle state.
func (c *CPU) State() State { return State(c.state.Load()) }

// SetState sets the CPU's lifecycle state.
func (c *CPU) SetState(s State) { c.state.Store(int32(s)) }

// CurrentProcess returns the PID currently running on this CPU, or
// NoProcess.
func (c *CPU) CurrentProcess() uint32 { return c.currentProcess.Load() }

// ContextSwitches returns the number of times a process has been assigned
// to this CPU.
func (c *CPU) ContextSwitches() uint64 { return c.contextSwitches.Load() }

// BusyMS and IdleMS return cumulative statistics in milliseconds.
func (c *CPU) BusyMS() int64 { return c.busyMS.Load() }
func (c *CPU) IdleMS() int64 { return c.idleMS.Load() }

// Interrupts returns the number of interrupts observed on this CPU.
func (c *CPU) Interrupts() uint64 { return c.interrupts.Load() }

// RecordInterrupt increments the interrupt counter.
func (c *CPU) RecordInterrupt() { c.interrupts.Add(1) }

// AssignProcess marks pid as running on this CPU at time now (ms). It closes
// any open idle span and bumps the context-switch counter (spec §4.2).
func (c *CPU) AssignProcess(pid uint32, now int64) {
	if start := c.idleStart.Load(); start != 0 {
		c.idleMS.Add(now - start)
		c.idleStart.Store(0)
	}
	c.currentProcess.Store(pid)
	c.SetState(Running)
	c.contextSwitches.Add(1)
}

// ClearProcess marks this CPU idle again at time now (ms), recording
// busyDuration spent running the just-finished process (spec §4.2).
func (c *CPU) ClearProcess(now int64, busyDuration int64) {
	c.currentProcess.Store(NoProcess)
	c.SetState(Idle)
	c.idleStart.Store(now)
	c.busyMS.Add(busyDuration)
}

// Table is the fixed array of per-hart CPU descriptors (spec §3).
type Table struct {
	cpus      [platform.MaxHarts]CPU
	numOnline atomic.Int32
}

// NewTable constructs a table with n harts online, hart 0 marked BSP.
func NewTable(n int) *Table {
	t := &Table{}
	if n < 1 {
		n = 1
	}
	if n > platform.MaxHarts {
		n = platform.MaxHarts
	}
	for i := 0; i < n; i++ {
		t.cpus[i].ID = i
		t.cpus[i].IsBSP = i == 0
		t.cpus[i].SetState(Online)
	}
	t.numOnline.Store(int32(n))
	return t
}

// NumOnline returns the number of harts brought online at boot.
func (t *Table) NumOnline() int { return int(t.numOnline.Load()) }

// CPU returns the descriptor for hart id, or nil if out of range.
func (t *Table) CPU(id int) *CPU {
	if id < 0 || id >= t.NumOnline() {
		return nil
	}
	return &t.cpus[id]
}

// FindIdleCPU returns the first idle non-BSP hart, falling back to the BSP
// if it is idle, or nil if none are idle (spec §4.2).
func (t *Table) FindIdleCPU() *CPU {
	n := t.NumOnline()
	for i := 1; i < n; i++ {
		if t.cpus[i].State() == Idle {
			return &t.cpus[i]
		}
	}
	if n > 0 && t.cpus[0].State() == Idle {
		return &t.cpus[0]
	}
	return nil
}

// FindLeastLoaded returns the hart best suited to receive new work: an idle
// CPU wins outright; otherwise the lowest-reported load wins, with the BSP
// losing ties against any other online hart (spec §4.2, §4.4).
func (t *Table) FindLeastLoaded(load func(id int) int) *CPU {
	if idle := t.FindIdleCPU(); idle != nil {
		return idle
	}
	n := t.NumOnline()
	if n == 0 {
		return nil
	}
	best := 0
	bestLoad := load(0)
	for i := 1; i < n; i++ {
		l := load(i)
		if l < bestLoad || (l == bestLoad && best == 0) {
			best = i
			bestLoad = l
		}
	}
	return &t.cpus[best]
}
