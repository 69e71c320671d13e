// Package process implements the process model of spec §3–§4.3: the PID
// space, process lifecycle state, priority, flags, the saved-register
// Context, and the process control block (PCB) itself.
//
// The PCB's saved Context plays the role of a real kernel's callee-saved
// register file. Register naming follows the RISC-V calling convention the
// teacher's internal/asm/riscv package encodes (X1 = ra, X2 = sp, X8-X9 and
// X18-X27 = s0-s11), even though this Context holds Go stack/closure state
// rather than raw machine registers — see Context's doc comment.
package process

import (
	"sync"
	"sync/atomic"
	"time"
)

// PID is a 32-bit monotonically increasing process identifier. 0 means
// "none"; 1 is reserved for init (spec §3).
type PID uint32

// NoPID is the reserved "none" PID.
const NoPID PID = 0

// InitPID is the reserved PID for the init process.
const InitPID PID = 1

var pidCounter atomic.Uint32

func init() {
	// PID 0 is "none" and PID 1 is reserved for init; the counter starts
	// past both so the first call to NextPID returns 2.
	pidCounter.Store(uint32(InitPID))
}

// NextPID allocates the next PID from the global counter.
func NextPID() PID {
	return PID(pidCounter.Add(1))
}

// State is a process's lifecycle state (spec §3). Only Ready is runnable.
type State int32

const (
	Created State = iota
	Ready
	Running
	Blocked
	Stopped
	Zombie
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case Stopped:
		return "stopped"
	case Zombie:
		return "zombie"
	default:
		return "unknown"
	}
}

// Priority orders runnable processes (spec §3): Idle < Low < Normal < High <
// Realtime.
type Priority int32

const (
	PriorityIdle Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityRealtime
)

func (p Priority) String() string {
	switch p {
	case PriorityIdle:
		return "idle"
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityRealtime:
		return "realtime"
	default:
		return "unknown"
	}
}

// Flags is the PCB's bit set (spec §3).
type Flags uint32

const (
	FlagKernel Flags = 1 << iota
	FlagDaemon
	FlagRestartOnExit
	FlagCPUAffinity
	FlagInit
	FlagInSyscall
)

// AnyCPU is the affinity sentinel meaning "no affinity constraint". Left
// untyped so it converts to both the int32 CPU-affinity field and the int
// hart ids spawn call sites pass around.
const AnyCPU = -1

// NotRunning is the current-CPU sentinel meaning "not scheduled anywhere".
const NotRunning int32 = -1

// KernelStackSize is the fixed size of each process's owned kernel stack
// (spec §3).
const KernelStackSize = 4096

// Context is the saved register state for a kernel-mode context switch
// (spec §3): a return address, a stack pointer, and the callee-saved
// register file. Because this core schedules Go closures rather than raw
// machine instructions (a process's "entry function pointer" is a Go func,
// per spec §4.3), ReturnPC/StackPtr are carried for ABI fidelity and
// testability (spec §8's Context round-trip law) but the actual
// suspend/resume mechanism is the entry closure returning from one tick and
// being re-invoked for the next, not a raw register-file swap. Only the hart
// that owns a process's CPU mutates its Context, and only while that
// process is Running on that hart (spec §3 invariant 1, §9).
type Context struct {
	ReturnPC uintptr
	StackPtr uintptr
	Saved    [12]uint64 // s0-s11 in RISC-V calling-convention order
}

// NewContext builds a Context whose return address is entry and whose stack
// pointer is the top of a fresh stack (spec §4.3, §8).
func NewContext(entry uintptr, stackTop uintptr) Context {
	return Context{ReturnPC: entry, StackPtr: stackTop}
}

// EntryFunc is one tick of a process's work. It is expected to perform a
// bounded amount of work and return (spec §4.5); daemons implement one
// iteration of their loop per call.
type EntryFunc func(p *Process)

// Process is the PCB (spec §3). Fields are grouped identity / scheduling /
// execution / statistics per the spec, with independently-atomic scheduling
// fields so the invariants in spec §3 hold without a PCB-wide lock.
type Process struct {
	PID  PID
	PPID PID
	Name string

	state       atomic.Int32
	priority    atomic.Int32
	cpuAffinity atomic.Int32
	currentCPU  atomic.Int32

	Entry    EntryFunc
	Flags    Flags
	exitCode atomic.Int32

	ctxMu   sync.Mutex // guards Context; held only by the hart switched into this process
	Context Context
	Stack   [KernelStackSize]byte

	CreatedAtMS uint64
	cpuTimeMS   atomic.Int64
	scheduled   atomic.Uint64

	_ [64]byte
}

// New constructs a plain process (spec §4.3: empty flags).
func New(name string, entry EntryFunc, priority Priority) *Process {
	return newProcess(name, entry, priority, 0)
}

// NewKernel constructs a kernel process: KERNEL|DAEMON flags, High priority
// (spec §4.3).
func NewKernel(name string, entry EntryFunc) *Process {
	return newProcess(name, entry, PriorityHigh, FlagKernel|FlagDaemon)
}

// NewDaemon constructs a daemon: DAEMON|RESTART_ON_EXIT flags, Normal
// priority (spec §4.3).
func NewDaemon(name string, entry EntryFunc) *Process {
	return newProcess(name, entry, PriorityNormal, FlagDaemon|FlagRestartOnExit)
}

func newProcess(name string, entry EntryFunc, priority Priority, flags Flags) *Process {
	p := &Process{
		PID:         NextPID(),
		Name:        name,
		Entry:       entry,
		Flags:       flags,
		CreatedAtMS: uint64(time.Now().UnixMilli()),
	}
	p.state.Store(int32(Created))
	p.priority.Store(int32(priority))
	p.cpuAffinity.Store(AnyCPU)
	p.currentCPU.Store(NotRunning)
	p.Context = NewContext(0, uintptr(len(p.Stack)))
	return p
}

// State returns the process's lifecycle state.
func (p *Process) State() State { return State(p.state.Load()) }

// SetState sets the process's lifecycle state.
func (p *Process) SetState(s State) { p.state.Store(int32(s)) }

// Priority returns the process's scheduling priority.
func (p *Process) Priority() Priority { return Priority(p.priority.Load()) }

// CurrentCPU returns the hart this process is running on, or NotRunning.
func (p *Process) CurrentCPU() int32 { return p.currentCPU.Load() }

// SetCurrentCPU records the hart this process is running on.
func (p *Process) SetCurrentCPU(cpu int32) { p.currentCPU.Store(cpu) }

// SetCPUAffinity narrows the process to a single CPU (spec §4.3).
func (p *Process) SetCPUAffinity(cpu int32) {
	p.cpuAffinity.Store(cpu)
	p.Flags |= FlagCPUAffinity
}

// ClearCPUAffinity widens the process back to "any CPU" (spec §4.3).
func (p *Process) ClearCPUAffinity() {
	p.cpuAffinity.Store(AnyCPU)
	p.Flags &^= FlagCPUAffinity
}

// CanRunOnCPU reports whether this process may run on cpu (spec §4.3).
func (p *Process) CanRunOnCPU(cpu int) bool {
	aff := p.cpuAffinity.Load()
	return aff == AnyCPU || int(aff) == cpu
}

// ExitCode returns the recorded exit code.
func (p *Process) ExitCode() int32 { return p.exitCode.Load() }

// SetExitCode records the process's exit code.
func (p *Process) SetExitCode(code int32) { p.exitCode.Store(code) }

// CPUTimeMS returns cumulative CPU time in milliseconds.
func (p *Process) CPUTimeMS() int64 { return p.cpuTimeMS.Load() }

// AddCPUTimeMS adds d milliseconds of CPU time (spec §4.5 step 4).
func (p *Process) AddCPUTimeMS(d int64) { p.cpuTimeMS.Add(d) }

// ScheduleCount returns the number of times this process has been picked.
func (p *Process) ScheduleCount() uint64 { return p.scheduled.Load() }

// RecordScheduled increments the schedule counter.
func (p *Process) RecordScheduled() { p.scheduled.Add(1) }

// IsDaemon reports whether the process has the DAEMON flag.
func (p *Process) IsDaemon() bool { return p.Flags&FlagDaemon != 0 }

// RestartOnExit reports whether the process has RESTART_ON_EXIT.
func (p *Process) RestartOnExit() bool { return p.Flags&FlagRestartOnExit != 0 }

// WithContext runs fn with exclusive access to the process's saved Context,
// per spec §9's interior-mutability protocol: the context cell is mutated
// only by the hart currently switched into this process.
func (p *Process) WithContext(fn func(*Context)) {
	p.ctxMu.Lock()
	defer p.ctxMu.Unlock()
	fn(&p.Context)
}
