// Package services implements the named daemon registry backing syscalls
// 70-73 (service_list/start/stop/running, spec §4.8) and the three
// always-on kernel daemons invoked once per hart-0 tick (spec §4.5):
// klogd (log-buffer flush), sysmond (CPU/process bookkeeping), and
// sysinfo (a periodic interval step that collects no data). This is grounded on the
// original kernel's services/shelld.rs, which runs the interactive shell
// itself as a schedulable daemon process rather than as trap-handler-only
// code -- the same pattern this registry generalizes to any named daemon.
package services

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/tinyrange/riscv-core/internal/process"
	"github.com/tinyrange/riscv-core/internal/sched"
)

// Descriptor is a registrable service: a human-readable description plus
// the daemon entry point Registry.Start spawns (spec §4.8's
// service_list "name:description" records). Services always run at
// process.NewDaemon's fixed Normal priority, matching every other
// DAEMON|RESTART_ON_EXIT process the scheduler manages (spec §4.3).
type Descriptor struct {
	Name        string
	Description string
	Entry       process.EntryFunc
}

// Registry tracks known service descriptors and which are currently
// running, by name (spec §4.8 syscalls 70-73).
type Registry struct {
	sched *sched.Scheduler
	log   *slog.Logger

	mu       sync.Mutex
	known    map[string]Descriptor
	order    []string
	runningPID map[string]process.PID
}

// NewRegistry constructs an empty registry bound to sched for start/stop.
func NewRegistry(s *sched.Scheduler, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		sched:      s,
		log:        log,
		known:      make(map[string]Descriptor),
		runningPID: make(map[string]process.PID),
	}
}

// Register adds d to the set of known, startable services.
func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.known[d.Name]; !exists {
		r.order = append(r.order, d.Name)
	}
	r.known[d.Name] = d
}

// List implements service_list: newline-terminated "name:description"
// records (spec §4.8).
func (r *Registry) List() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sb strings.Builder
	for _, name := range r.order {
		d := r.known[name]
		fmt.Fprintf(&sb, "%s:%s\n", d.Name, d.Description)
	}
	return []byte(sb.String())
}

// Start implements service_start: spawns name as a daemon if it is known
// and not already running (spec §4.8).
func (r *Registry) Start(name string) error {
	r.mu.Lock()
	d, known := r.known[name]
	_, running := r.runningPID[name]
	r.mu.Unlock()
	if !known {
		return fmt.Errorf("unknown service %q", name)
	}
	if running {
		return fmt.Errorf("service %q already running", name)
	}
	p := r.sched.SpawnDaemon(d.Name, d.Entry, process.AnyCPU)
	r.mu.Lock()
	r.runningPID[name] = p.PID
	r.mu.Unlock()
	r.log.Info("service started", "name", name, "pid", p.PID)
	return nil
}

// Stop implements service_stop: kills the named service's current PID, if
// running (spec §4.8).
func (r *Registry) Stop(name string) error {
	r.mu.Lock()
	pid, running := r.runningPID[name]
	r.mu.Unlock()
	if !running {
		return fmt.Errorf("service %q not running", name)
	}
	r.sched.Kill(pid)
	r.mu.Lock()
	delete(r.runningPID, name)
	r.mu.Unlock()
	r.log.Info("service stopped", "name", name, "pid", pid)
	return nil
}

// Running implements service_running: newline-terminated "name:pid"
// records for every currently running service (spec §4.8).
func (r *Registry) Running() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sb strings.Builder
	for _, name := range r.order {
		if pid, ok := r.runningPID[name]; ok {
			fmt.Fprintf(&sb, "%s:%d\n", name, pid)
		}
	}
	return []byte(sb.String())
}

// NotePIDRespawned updates the tracked PID for name after the scheduler
// transparently respawns a RESTART_ON_EXIT daemon under a fresh PID (spec
// §8 S3), so service_running keeps reporting the live PID rather than a
// zombie one.
func (r *Registry) NotePIDRespawned(name string, newPID process.PID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runningPID[name]; ok {
		r.runningPID[name] = newPID
	}
}
