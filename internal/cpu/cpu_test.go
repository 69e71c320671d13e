package cpu

import "testing"

func TestNewTableMarksBSP(t *testing.T) {
	tbl := NewTable(4)
	if !tbl.CPU(0).IsBSP {
		t.Fatalf("hart 0 must be BSP")
	}
	for i := 1; i < 4; i++ {
		if tbl.CPU(i).IsBSP {
			t.Fatalf("hart %d must not be BSP", i)
		}
	}
	if tbl.NumOnline() != 4 {
		t.Fatalf("got %d online, want 4", tbl.NumOnline())
	}
}

func TestAssignAndClearProcess(t *testing.T) {
	tbl := NewTable(2)
	c := tbl.CPU(1)
	c.SetState(Idle)

	c.AssignProcess(42, 1000)
	if c.State() != Running {
		t.Fatalf("expected Running after assign")
	}
	if c.CurrentProcess() != 42 {
		t.Fatalf("expected pid 42, got %d", c.CurrentProcess())
	}
	if c.ContextSwitches() != 1 {
		t.Fatalf("expected 1 context switch, got %d", c.ContextSwitches())
	}

	c.ClearProcess(1500, 500)
	if c.State() != Idle {
		t.Fatalf("expected Idle after clear")
	}
	if c.CurrentProcess() != NoProcess {
		t.Fatalf("expected NoProcess after clear, got %d", c.CurrentProcess())
	}
	if c.BusyMS() != 500 {
		t.Fatalf("expected 500 busy ms, got %d", c.BusyMS())
	}
}

func TestFindIdleCPUPrefersNonBSP(t *testing.T) {
	tbl := NewTable(3)
	for i := 0; i < 3; i++ {
		tbl.CPU(i).SetState(Idle)
	}
	idle := tbl.FindIdleCPU()
	if idle.IsBSP {
		t.Fatalf("expected a non-BSP idle hart to be preferred")
	}
}

func TestFindIdleCPUFallsBackToBSP(t *testing.T) {
	tbl := NewTable(3)
	tbl.CPU(0).SetState(Idle)
	tbl.CPU(1).SetState(Running)
	tbl.CPU(2).SetState(Running)
	idle := tbl.FindIdleCPU()
	if idle == nil || !idle.IsBSP {
		t.Fatalf("expected BSP fallback when only BSP is idle")
	}
}

func TestFindLeastLoadedTieBreaksAgainstBSP(t *testing.T) {
	tbl := NewTable(3)
	for i := 0; i < 3; i++ {
		tbl.CPU(i).SetState(Running)
	}
	load := map[int]int{0: 1, 1: 1, 2: 2}
	best := tbl.FindLeastLoaded(func(id int) int { return load[id] })
	if best.IsBSP {
		t.Fatalf("expected tie between hart 0 and hart 1 to prefer non-BSP hart 1")
	}
	if best.ID != 1 {
		t.Fatalf("got hart %d, want hart 1", best.ID)
	}
}
