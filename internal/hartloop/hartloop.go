// Package hartloop implements the universal per-hart run loop of spec
// §4.5: the single function every hart -- primary or secondary -- enters
// after boot and never leaves until shutdown.
package hartloop

import (
	"sync/atomic"
	"time"

	"github.com/tinyrange/riscv-core/internal/cpu"
	"github.com/tinyrange/riscv-core/internal/iorouter"
	"github.com/tinyrange/riscv-core/internal/platform"
	"github.com/tinyrange/riscv-core/internal/process"
	"github.com/tinyrange/riscv-core/internal/sched"
	"github.com/tinyrange/riscv-core/internal/services"
)

// Loop is one hart's run-loop state (spec §4.5).
type Loop struct {
	Hart   int
	CPUs   *cpu.Table
	Sched  *sched.Scheduler
	Router *iorouter.Router // only consulted when Hart == 0
	Ticker *services.Ticker // only ticked when Hart == 0

	stop atomic.Bool
}

// Stop requests the loop exit after its current iteration.
func (l *Loop) Stop() { l.stop.Store(true) }

// Stopped reports whether Stop has been called.
func (l *Loop) Stopped() bool { return l.stop.Load() }

// Run executes the loop until Stop is called (spec §4.5 steps 1-5). It is
// meant to be the entire body of the goroutine BindHart(hart) pins.
func (l *Loop) Run() {
	for !l.Stopped() {
		l.Tick()
	}
}

// Tick executes exactly one iteration of the run loop (spec §4.5), broken
// out from Run so tests can drive individual iterations deterministically.
func (l *Loop) Tick() {
	p := l.Sched.PickNext(l.Hart)
	if p == nil {
		if platform.SWIPending(l.Hart) {
			platform.ClearSWI(l.Hart)
		} else {
			platform.WFI(l.Hart)
		}
		l.tickPrimaryOnly()
		return
	}

	c := l.CPUs.CPU(l.Hart)
	now := int64(platform.GetTimeMS())
	if c != nil {
		c.AssignProcess(uint32(p.PID), now)
	}
	p.SetState(process.Running)
	p.SetCurrentCPU(int32(l.Hart))
	p.RecordScheduled()

	start := now
	p.Entry(p)
	end := int64(platform.GetTimeMS())
	busy := end - start

	p.AddCPUTimeMS(busy)
	if c != nil {
		c.ClearProcess(end, busy)
	}

	if p.IsDaemon() {
		l.Sched.Requeue(p, l.Hart)
	} else {
		l.Sched.Exit(p.PID, 0)
	}

	l.tickPrimaryOnly()
}

// tickPrimaryOnly runs the hart-0-only step of the loop: log flush, klogd,
// sysmond, sysinfo, and I/O router dispatch (spec §4.5 step 5).
func (l *Loop) tickPrimaryOnly() {
	if l.Hart != 0 {
		return
	}
	now := time.Now()
	if l.Ticker != nil {
		l.Ticker.KlogdTick()
		l.Ticker.SysmondTick()
		l.Ticker.SysinfoTick(now)
	}
	if l.Router != nil {
		l.Router.Dispatch()
	}
}
