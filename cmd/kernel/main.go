// Command kernel boots the cooperative RISC-V kernel core: it brings up the
// configured number of harts, wires every device handler into the I/O
// router, and runs each hart's run loop until shutdown.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tinyrange/riscv-core/internal/boot"
	"github.com/tinyrange/riscv-core/internal/config"
	"github.com/tinyrange/riscv-core/internal/console"
	"github.com/tinyrange/riscv-core/internal/cpu"
	"github.com/tinyrange/riscv-core/internal/devices"
	"github.com/tinyrange/riscv-core/internal/hartloop"
	"github.com/tinyrange/riscv-core/internal/iorouter"
	"github.com/tinyrange/riscv-core/internal/klog"
	"github.com/tinyrange/riscv-core/internal/platform"
	"github.com/tinyrange/riscv-core/internal/process"
	"github.com/tinyrange/riscv-core/internal/sched"
	"github.com/tinyrange/riscv-core/internal/services"
	"github.com/tinyrange/riscv-core/internal/syscall"
)

// exitError carries a specific process exit code out of run, the same
// shape cmd/cc/main.go's initx.ExitError gives main's top-level handler.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	if err := run(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			fmt.Fprintf(os.Stderr, "kernel: %v\n", ee.err)
			os.Exit(ee.code)
		}
		fmt.Fprintf(os.Stderr, "kernel: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	cfgFlags := config.RegisterFlags(fs)
	runMS := fs.Int64("run-ms", 0, "Stop after this many milliseconds (0 = run until shutdown syscall)")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return &exitError{code: 2, err: err}
	}

	cfg, err := cfgFlags.Resolve()
	if err != nil {
		return &exitError{code: 2, err: fmt.Errorf("resolve boot configuration: %w", err)}
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	klogBuf := klog.NewBuffer()
	bootConsole := console.NewRing(console.MaxLineLen)
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(fanoutHandler{primary: handler, klog: klogBuf}))

	slog.Info("booting kernel core", "harts", cfg.HartCount, "ring_size", cfg.RingSize, "stack_bytes", cfg.StackSizeBytes)

	procTable := process.NewTable()
	cpuTable := cpu.NewTable(cfg.HartCount)
	scheduler := sched.New(cfg.HartCount, procTable, slog.Default())
	router := iorouter.New(slog.Default())
	bootSeq := boot.New()

	mac := [6]byte{0x52, 0x54, 0x00, 0x00, 0x00, 0x01}
	devReg := devices.NewRegistry(mac, func(b []byte) { bootConsole.PushLine(string(b)) })
	devReg.RegisterAll(router)

	svcRegistry := services.NewRegistry(scheduler, slog.Default())
	ticker := services.NewTicker(klogBuf, devReg.UART, cpuTable, time.Duration(cfg.SysinfoIntervalMS)*time.Millisecond)

	dispatcher := syscall.New(procTable, cpuTable, scheduler, router,
		devReg.FS, devReg.Network, bootConsole, klogBuf, svcRegistry)

	loops := make([]*hartloop.Loop, cfg.HartCount)
	dispatcher.OnShutdown = func() {
		for _, l := range loops {
			l.Stop()
		}
	}

	for _, spec := range cfg.InitialServices {
		svcRegistry.Register(services.Descriptor{
			Name:        spec.Name,
			Description: spec.Description,
			Entry:       func(p *process.Process) {},
		})
		if err := svcRegistry.Start(spec.Name); err != nil {
			slog.Warn("failed to start boot-manifest service", "name", spec.Name, "error", err)
		}
	}
	scheduler.Spawn("init", initEntry(dispatcher), process.PriorityNormal, 0)

	for h := 0; h < cfg.HartCount; h++ {
		loops[h] = &hartloop.Loop{
			Hart:  h,
			CPUs:  cpuTable,
			Sched: scheduler,
		}
		if h == 0 {
			loops[h].Router = router
			loops[h].Ticker = ticker
		}
	}

	var wg sync.WaitGroup
	for h := 0; h < cfg.HartCount; h++ {
		h := h
		wg.Add(1)
		go func() {
			defer wg.Done()
			platform.BindHart(h)
			if h == 0 {
				bootSeq.RecordDTB(0)
				bootSeq.ReleaseBoot()
				bootSeq.MarkInitComplete()
			} else {
				bootSeq.WaitBoot(h)
				bootSeq.WaitInitComplete(h)
			}
			bootSeq.MarkHartReady(h)
			loops[h].Run()
		}()
	}

	if *runMS > 0 {
		time.Sleep(time.Duration(*runMS) * time.Millisecond)
		for _, l := range loops {
			l.Stop()
		}
	}

	wg.Wait()
	return nil
}

// initEntry builds the init process's entry point: it records its argv,
// prints a boot banner through the numbered syscall ABI (exercising the
// same path every user program's ecall would take), and exits cleanly.
// init is spawned through the scheduler like any other process, so it
// receives the next allocated PID, not process.InitPID.
func initEntry(d *syscall.Dispatcher) process.EntryFunc {
	return func(p *process.Process) {
		d.InitContext(p.PID, []string{"init"})
		defer d.ClearContext(p.PID)

		banner := []byte("kernel core ready\x00")
		mem := syscall.NewMemory(len(banner))
		mem.Write(0, banner)
		d.Dispatch(0, p.PID, syscall.SysPrint, 0, uint64(len(banner)-1), 0, 0, 0, 0, mem)
		d.Dispatch(0, p.PID, syscall.SysExit, 0, 0, 0, 0, 0, 0, mem)
	}
}

// fanoutHandler duplicates every log record to both the process's normal
// text handler and the in-memory kernel log buffer klog_get reads from, so
// operators watching stderr and user programs calling klog_get see the
// same stream.
type fanoutHandler struct {
	primary slog.Handler
	klog    slog.Handler
}

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return f.primary.Enabled(ctx, level) || f.klog.Enabled(ctx, level)
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := f.primary.Handle(ctx, r.Clone()); err != nil {
		return err
	}
	return f.klog.Handle(ctx, r.Clone())
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return fanoutHandler{primary: f.primary.WithAttrs(attrs), klog: f.klog.WithAttrs(attrs)}
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	return fanoutHandler{primary: f.primary.WithGroup(name), klog: f.klog.WithGroup(name)}
}
