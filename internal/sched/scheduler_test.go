package sched

import (
	"testing"

	"github.com/tinyrange/riscv-core/internal/process"
)

func TestRunQueueFIFOWithinPriority(t *testing.T) {
	var q RunQueue
	a := process.New("a", func(*process.Process) {}, process.PriorityNormal)
	b := process.New("b", func(*process.Process) {}, process.PriorityNormal)
	a.SetState(process.Ready)
	b.SetState(process.Ready)
	q.Enqueue(a)
	q.Enqueue(b)
	if got := q.Dequeue(); got != a {
		t.Fatalf("expected FIFO order, got %v want %v", got.Name, a.Name)
	}
	if got := q.Dequeue(); got != b {
		t.Fatalf("expected FIFO order, got %v want %v", got.Name, b.Name)
	}
}

func TestRunQueuePriorityInsertion(t *testing.T) {
	var q RunQueue
	a := process.New("A", func(*process.Process) {}, process.PriorityNormal)
	b := process.New("B", func(*process.Process) {}, process.PriorityNormal)
	c := process.New("C", func(*process.Process) {}, process.PriorityHigh)
	for _, p := range []*process.Process{a, b, c} {
		p.SetState(process.Ready)
	}
	q.Enqueue(a)
	q.Enqueue(b)
	q.Enqueue(c)
	// spec §4.5 S2: queue becomes [C, A, B] after C (High) is enqueued
	// behind A, B (Normal).
	if got := q.Dequeue(); got != c {
		t.Fatalf("expected C first, got %s", got.Name)
	}
	if got := q.Dequeue(); got != a {
		t.Fatalf("expected A second, got %s", got.Name)
	}
	if got := q.Dequeue(); got != b {
		t.Fatalf("expected B third, got %s", got.Name)
	}
}

func TestDequeueEmptyReturnsNil(t *testing.T) {
	var q RunQueue
	if q.Dequeue() != nil {
		t.Fatalf("expected nil from empty queue")
	}
}

func TestStealRequiresMoreThanOne(t *testing.T) {
	var q RunQueue
	a := process.New("a", func(*process.Process) {}, process.PriorityNormal)
	a.SetState(process.Ready)
	q.Enqueue(a)
	if q.Steal() != nil {
		t.Fatalf("must not steal from a single-element queue")
	}
	b := process.New("b", func(*process.Process) {}, process.PriorityNormal)
	b.SetState(process.Ready)
	q.Enqueue(b)
	stolen := q.Steal()
	if stolen != b {
		t.Fatalf("expected pop-back to steal b, got %v", stolen)
	}
}

func TestPickNextEmptyNoStealReturnsNil(t *testing.T) {
	tbl := process.NewTable()
	s := New(4, tbl, nil)
	if s.PickNext(0) != nil {
		t.Fatalf("expected nil when no work anywhere")
	}
}

func TestPickNextStealsAcrossHarts(t *testing.T) {
	tbl := process.NewTable()
	s := New(4, tbl, nil)
	// Hart 1 gets two ready processes so a steal is possible.
	a := process.New("a", func(*process.Process) {}, process.PriorityNormal)
	b := process.New("b", func(*process.Process) {}, process.PriorityNormal)
	a.SetState(process.Ready)
	b.SetState(process.Ready)
	s.Queue(1).Enqueue(a)
	s.Queue(1).Enqueue(b)

	stolen := s.PickNext(3)
	if stolen != b {
		t.Fatalf("expected hart 3 to steal b (back of hart 1's queue), got %v", stolen)
	}
}

func TestPickNextRefusesAffinityMismatch(t *testing.T) {
	tbl := process.NewTable()
	s := New(4, tbl, nil)
	// Hart 1 needs two entries so a steal actually happens; the pinned
	// process sits at the back, where Steal pops from.
	filler := process.New("filler", func(*process.Process) {}, process.PriorityNormal)
	filler.SetState(process.Ready)
	s.Queue(1).Enqueue(filler)
	a := process.New("a", func(*process.Process) {}, process.PriorityNormal)
	a.SetState(process.Ready)
	a.SetCPUAffinity(1)
	s.Queue(1).Enqueue(a)

	if got := s.PickNext(3); got != nil {
		t.Fatalf("hart 3 must refuse a process pinned to hart 1, got %v", got)
	}
	if !s.Queue(1).ContainsPID(a.PID) {
		t.Fatalf("refused steal must re-enqueue on the owner hart")
	}
}

func TestSpawnDaemonRespawnsOnExit(t *testing.T) {
	tbl := process.NewTable()
	s := New(2, tbl, nil)
	d := s.SpawnDaemon("D", func(*process.Process) {}, 1)

	s.Exit(d.PID, 0)

	old := tbl.Get(d.PID)
	if old.State() != process.Zombie {
		t.Fatalf("exited daemon must become zombie, got %v", old.State())
	}
	fresh := tbl.Find(func(p *process.Process) bool {
		return p.Name == "D" && p.PID != d.PID
	})
	if fresh == nil {
		t.Fatalf("expected a respawned process named D")
	}
	if fresh.State() != process.Ready {
		t.Fatalf("respawned process must be Ready, got %v", fresh.State())
	}
}

func TestKillRemovesFromQueuesAndSetsExitCode(t *testing.T) {
	tbl := process.NewTable()
	s := New(2, tbl, nil)
	p := s.Spawn("P", func(*process.Process) {}, process.PriorityNormal, 1)

	s.Kill(p.PID)

	if p.ExitCode() != 137 {
		t.Fatalf("expected exit code 137, got %d", p.ExitCode())
	}
	if s.Queue(1).ContainsPID(p.PID) {
		t.Fatalf("killed process must be removed from its run queue")
	}
	if tbl.Get(p.PID) != nil {
		t.Fatalf("non-restartable killed process must be unregistered")
	}
}

func TestReapNeverRemovesRestartable(t *testing.T) {
	tbl := process.NewTable()
	d := process.NewDaemon("D", func(*process.Process) {})
	tbl.Register(d)
	d.SetState(process.Zombie)
	reaped := tbl.ReapZombies()
	if len(reaped) != 0 {
		t.Fatalf("expected RESTART_ON_EXIT process to survive reap")
	}
}
