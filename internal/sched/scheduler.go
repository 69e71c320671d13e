package sched

import (
	"log/slog"
	"sync/atomic"

	"github.com/tinyrange/riscv-core/internal/platform"
	"github.com/tinyrange/riscv-core/internal/process"
)

// Scheduler holds one RunQueue per hart plus the spawn/exit/kill API of
// spec §4.4.
type Scheduler struct {
	queues  [platform.MaxHarts]RunQueue
	numCPUs atomic.Int32
	active  atomic.Bool
	spawns  atomic.Uint64

	table *process.Table
	log   *slog.Logger
}

// New constructs a Scheduler for n harts backed by table.
func New(n int, table *process.Table, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{table: table, log: log}
	s.numCPUs.Store(int32(n))
	s.active.Store(true)
	return s
}

// NumCPUs returns the number of harts this scheduler was built for.
func (s *Scheduler) NumCPUs() int { return int(s.numCPUs.Load()) }

// Queue returns the run queue owned by hart h.
func (s *Scheduler) Queue(h int) *RunQueue { return &s.queues[h] }

// Active reports whether the scheduler is accepting new work.
func (s *Scheduler) Active() bool { return s.active.Load() }

// SpawnCount returns the number of processes ever spawned.
func (s *Scheduler) SpawnCount() uint64 { return s.spawns.Load() }

// PickNext implements spec §4.4's pick_next(hart): first try the hart's own
// queue, then attempt to steal from other online harts, skipping (and
// returning) any stolen process whose affinity excludes hart.
func (s *Scheduler) PickNext(hart int) *process.Process {
	if p := s.queues[hart].Dequeue(); p != nil {
		return p
	}
	n := s.NumCPUs()
	for i := 0; i < n; i++ {
		if i == hart {
			continue
		}
		p := s.queues[i].Steal()
		if p == nil {
			continue
		}
		if !p.CanRunOnCPU(hart) {
			s.queues[i].Enqueue(p)
			continue
		}
		return p
	}
	return nil
}

// loadOf is the load metric FindLeastLoaded uses: queue length on a hart.
func (s *Scheduler) loadOf(h int) int { return s.queues[h].Len() }

// LeastLoadedCPU returns the hart id with the least work queued, per spec
// §4.4's tie-break policy (an idle hart, when isIdle is supplied, always
// wins; otherwise the lowest queue length wins, ties preferring non-BSP).
func (s *Scheduler) LeastLoadedCPU(isIdle func(h int) bool) int {
	n := s.NumCPUs()
	if n == 0 {
		return 0
	}
	if isIdle != nil {
		for h := 1; h < n; h++ {
			if isIdle(h) {
				return h
			}
		}
		if isIdle(0) {
			return 0
		}
	}
	best := 0
	bestLoad := s.loadOf(0)
	for h := 1; h < n; h++ {
		l := s.loadOf(h)
		if l < bestLoad || (l == bestLoad && best == 0) {
			best, bestLoad = h, l
		}
	}
	return best
}

// Spawn allocates and enqueues a new process on the hart affinity names, or
// on the least-loaded hart otherwise (spec §4.4). It returns the new
// process. If the target hart is not 0, an IPI wakes it.
func (s *Scheduler) Spawn(name string, entry process.EntryFunc, priority process.Priority, affinity int) *process.Process {
	p := process.New(name, entry, priority)
	return s.spawnOn(p, affinity)
}

// SpawnDaemon spawns p with DAEMON|RESTART_ON_EXIT flags (spec §4.4).
func (s *Scheduler) SpawnDaemon(name string, entry process.EntryFunc, affinity int) *process.Process {
	p := process.NewDaemon(name, entry)
	return s.spawnOn(p, affinity)
}

func (s *Scheduler) spawnOn(p *process.Process, affinity int) *process.Process {
	hart := affinity
	if hart < 0 {
		hart = s.LeastLoadedCPU(nil)
		p.ClearCPUAffinity()
	} else {
		p.SetCPUAffinity(int32(hart))
	}
	s.table.Register(p)
	p.SetState(process.Ready)
	s.queues[hart].Enqueue(p)
	s.spawns.Add(1)
	if hart != 0 {
		platform.SendIPI(hart)
	}
	s.log.Info("spawned process", "pid", p.PID, "name", p.Name, "hart", hart, "priority", p.Priority())
	return p
}

// Requeue sets p Ready and enqueues it on hart's queue (spec §4.4).
func (s *Scheduler) Requeue(p *process.Process, hart int) {
	p.SetState(process.Ready)
	p.SetCurrentCPU(process.NotRunning)
	s.queues[hart].Enqueue(p)
}

// Exit marks pid exited with code, respawning it if it carries
// RESTART_ON_EXIT, otherwise leaving it a zombie for reap (spec §4.4).
func (s *Scheduler) Exit(pid process.PID, code int32) {
	p := s.table.Get(pid)
	if p == nil {
		return
	}
	p.SetExitCode(code)
	p.SetCurrentCPU(process.NotRunning)
	p.SetState(process.Zombie)
	if p.RestartOnExit() {
		s.respawn(p)
	}
}

// Kill exits pid with code 137, removes it from every run queue, and —
// unless it is restartable — unregisters it immediately (spec §4.4, §6).
func (s *Scheduler) Kill(pid process.PID) {
	p := s.table.Get(pid)
	if p == nil {
		return
	}
	n := s.NumCPUs()
	for h := 0; h < n; h++ {
		s.queues[h].RemoveByPID(pid)
	}
	p.SetExitCode(137)
	p.SetCurrentCPU(process.NotRunning)
	p.SetState(process.Zombie)
	if p.RestartOnExit() {
		s.respawn(p)
	} else {
		s.table.Unregister(pid)
	}
}

// respawn registers a fresh process under the same name/entry/priority as p
// (spec §4.3, §4.4, scenario S3). The old PID remains a zombie in the table
// until reaped.
func (s *Scheduler) respawn(p *process.Process) {
	fresh := process.New(p.Name, p.Entry, p.Priority())
	fresh.Flags = p.Flags
	hart := s.LeastLoadedCPU(nil)
	s.table.Register(fresh)
	fresh.SetState(process.Ready)
	s.queues[hart].Enqueue(fresh)
	s.spawns.Add(1)
	if hart != 0 {
		platform.SendIPI(hart)
	}
	s.log.Info("respawned daemon", "name", p.Name, "old_pid", p.PID, "new_pid", fresh.PID, "hart", hart)
}
