package services

import (
	"strings"
	"testing"

	"github.com/tinyrange/riscv-core/internal/process"
	"github.com/tinyrange/riscv-core/internal/sched"
)

func testScheduler() *sched.Scheduler {
	table := process.NewTable()
	return sched.New(4, table, nil)
}

func TestRegisterAndListService(t *testing.T) {
	r := NewRegistry(testScheduler(), nil)
	r.Register(Descriptor{Name: "netd", Description: "network daemon", Entry: func(p *process.Process) {}})

	out := string(r.List())
	if !strings.Contains(out, "netd:network daemon\n") {
		t.Fatalf("got %q", out)
	}
}

func TestStartStopTracksRunningPID(t *testing.T) {
	r := NewRegistry(testScheduler(), nil)
	r.Register(Descriptor{Name: "netd", Description: "d", Entry: func(p *process.Process) {}})

	if err := r.Start("netd"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !strings.Contains(string(r.Running()), "netd:") {
		t.Fatalf("expected netd listed as running, got %q", r.Running())
	}
	if err := r.Start("netd"); err == nil {
		t.Fatalf("expected error starting an already-running service")
	}
	if err := r.Stop("netd"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if strings.Contains(string(r.Running()), "netd:") {
		t.Fatalf("expected netd no longer running")
	}
}

func TestStartUnknownServiceErrors(t *testing.T) {
	r := NewRegistry(testScheduler(), nil)
	if err := r.Start("ghost"); err == nil {
		t.Fatalf("expected error for unknown service")
	}
}

func TestStopNotRunningErrors(t *testing.T) {
	r := NewRegistry(testScheduler(), nil)
	r.Register(Descriptor{Name: "netd", Description: "d", Entry: func(p *process.Process) {}})
	if err := r.Stop("netd"); err == nil {
		t.Fatalf("expected error stopping a service that isn't running")
	}
}
