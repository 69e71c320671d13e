// Package boot implements the SMP bring-up sequence of spec §4, §6: the
// primary hart records the boot parameters and initializes every
// subsystem; secondary harts park until released, then mark themselves
// ready and enter the run loop.
//
// Grounded on the teacher's internal/hv/riscv/rv64 machine bring-up
// (multiple vCPUs started by the host, each gated on a shared "run" signal
// before executing guest code) -- here reframed as goroutines gated on
// atomic readiness flags instead of host threads gated on a hypervisor
// ioctl.
package boot

import (
	"sync/atomic"

	"github.com/tinyrange/riscv-core/internal/platform"
)

// Sequencer tracks the boot-readiness flags spec §4, §6, and §8 invariant 6
// require: a single BootReady release/acquire gate, and one HART_READY flag
// per hart that is set at most once and never cleared.
type Sequencer struct {
	dtbAddr  atomic.Uint64
	bootRdy  atomic.Bool
	hartRdy  [platform.MaxHarts]atomic.Bool
	initDone atomic.Bool
}

// New constructs an unready Sequencer.
func New() *Sequencer { return &Sequencer{} }

// RecordDTB stores the device-tree-blob address captured on hart 0 (spec
// §6): "secondary harts must not re-parse the DTB concurrently" is
// satisfied by only hart 0 ever calling this.
func (s *Sequencer) RecordDTB(addr uint64) { s.dtbAddr.Store(addr) }

// DTBAddress returns the address hart 0 recorded.
func (s *Sequencer) DTBAddress() uint64 { return s.dtbAddr.Load() }

// ReleaseBoot is called once, by hart 0, after every subsystem is
// initialized: a Release store of BOOT_READY (spec §6, §8).
func (s *Sequencer) ReleaseBoot() { s.bootRdy.Store(true) }

// WaitBoot blocks the calling secondary hart (via WFI) until BOOT_READY is
// observed with Acquire semantics (spec §6), then returns.
func (s *Sequencer) WaitBoot(hart int) {
	for !s.bootRdy.Load() {
		platform.WFI(hart)
	}
}

// MarkInitComplete is called once by hart 0 after boot release, signaling
// secondary harts may proceed past any additional barrier before marking
// themselves ready.
func (s *Sequencer) MarkInitComplete() { s.initDone.Store(true) }

// WaitInitComplete blocks until MarkInitComplete has been called (spec
// §6's INIT_COMPLETE wait on the secondary entry path).
func (s *Sequencer) WaitInitComplete(hart int) {
	for !s.initDone.Load() {
		platform.WFI(hart)
	}
}

// MarkHartReady sets HART_READY[h] with Release semantics. Per spec
// invariant 6, only hart h itself may call this, and at most once per boot
// (subsequent calls are harmless no-ops since the flag never clears).
func (s *Sequencer) MarkHartReady(h int) {
	if h < 0 || h >= platform.MaxHarts {
		return
	}
	s.hartRdy[h].Store(true)
}

// HartReady reports HART_READY[h] with Acquire semantics (spec §6, §8):
// the scheduler must only target harts for which this returns true.
func (s *Sequencer) HartReady(h int) bool {
	if h < 0 || h >= platform.MaxHarts {
		return false
	}
	return s.hartRdy[h].Load()
}
