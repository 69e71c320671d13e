// Package config assembles the kernel's boot configuration from flags and,
// optionally, a YAML boot manifest, the same two-layer shape
// cmd/cc/main.go's flags and internal/bundle's ccbundle.yaml form: flags set
// defaults, a manifest may override any flag the user left untouched.
package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/tinyrange/riscv-core/internal/iorouter"
	"github.com/tinyrange/riscv-core/internal/process"
	"gopkg.in/yaml.v3"
)

// DefaultHartCount matches the single-hart default cmd/cc/main.go uses for
// -cpus; this kernel's Non-goals do not require SMP to be on by default.
const DefaultHartCount = 1

// DefaultSysinfoIntervalMS is how often hart 0 is allowed to refresh its
// sysinfo snapshot during the hart-0-only run-loop step (spec §4.5).
const DefaultSysinfoIntervalMS = 1000

// Config is the fully-resolved boot configuration (spec §4, §6): how many
// harts to bring up, and the initial set of daemons the service registry
// should register before boot release.
type Config struct {
	HartCount         int
	RingSize          int
	StackSizeBytes    int
	SysinfoIntervalMS int64
	Debug             bool
	InitialServices   []ServiceSpec
}

// ServiceSpec names a daemon the boot manifest wants registered before
// INIT_COMPLETE (spec §4.8 syscalls 70-73). It carries no entry function,
// since a YAML file cannot name a Go function directly; cmd/kernel
// registers each manifest service with an entry that does nothing.
type ServiceSpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// manifest is the on-disk shape of an optional boot manifest file (spec
// expansion: "Supplemented features", klogd/sysmond/sysinfo + shelld-style
// registry). Absence of the file is not an error; every field is optional.
type manifest struct {
	HartCount         int           `yaml:"hartCount,omitempty"`
	SysinfoIntervalMS int64         `yaml:"sysinfoIntervalMS,omitempty"`
	Debug             bool          `yaml:"debug,omitempty"`
	Services          []ServiceSpec `yaml:"services,omitempty"`
}

// settableInt mirrors cmd/cc/main.go's intFlag: a flag.Value that records
// whether the user actually passed it, so a manifest value can be applied
// only when the flag was left at its default.
type settableInt struct {
	v   int
	set bool
}

func (f *settableInt) String() string { return fmt.Sprintf("%d", f.v) }
func (f *settableInt) Set(s string) error {
	var v int
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return err
	}
	f.v, f.set = v, true
	return nil
}

// FlagSet wires boot parameters onto fs the way cmd/cc/main.go wires -cpus,
// -memory, etc. Call Resolve on it after fs.Parse.
type FlagSet struct {
	hartCount   settableInt
	sysinfoMS   settableInt
	debug       *bool
	manifestPth *string
}

// RegisterFlags installs the kernel's boot flags onto fs and returns a
// FlagSet that Resolve later reads back.
func RegisterFlags(fs *flag.FlagSet) *FlagSet {
	f := &FlagSet{}
	f.hartCount.v = DefaultHartCount
	fs.Var(&f.hartCount, "harts", "Number of harts (vCPUs) to bring up")
	f.sysinfoMS.v = DefaultSysinfoIntervalMS
	fs.Var(&f.sysinfoMS, "sysinfo-interval", "Milliseconds between sysinfo daemon snapshots")
	f.debug = fs.Bool("debug", false, "Enable debug logging")
	f.manifestPth = fs.String("manifest", "", "Path to an optional YAML boot manifest")
	return f
}

// Resolve builds the final Config: flag values first, then a manifest file
// (if -manifest was given) overriding any flag the caller left at its
// default, exactly as internal/bundle's metadata overrides cc's unset
// flags.
func (f *FlagSet) Resolve() (Config, error) {
	cfg := Config{
		HartCount:         f.hartCount.v,
		RingSize:          iorouter.MaxPendingRequests,
		StackSizeBytes:    process.KernelStackSize,
		SysinfoIntervalMS: int64(f.sysinfoMS.v),
		Debug:             *f.debug,
	}

	if f.manifestPth == nil || *f.manifestPth == "" {
		return cfg, validate(cfg)
	}

	data, err := os.ReadFile(*f.manifestPth)
	if err != nil {
		return Config{}, fmt.Errorf("read boot manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse boot manifest: %w", err)
	}

	if !f.hartCount.set && m.HartCount != 0 {
		cfg.HartCount = m.HartCount
	}
	if !f.sysinfoMS.set && m.SysinfoIntervalMS != 0 {
		cfg.SysinfoIntervalMS = m.SysinfoIntervalMS
	}
	if m.Debug {
		cfg.Debug = true
	}
	cfg.InitialServices = m.Services

	return cfg, validate(cfg)
}

// validate rejects configurations that ask for something the Go model's
// fixed-size arrays cannot actually provide: iorouter's completion ring and
// process.Process's kernel stack are both compile-time fixed-size arrays, so a
// requested size can only be checked against them, never applied.
func validate(cfg Config) error {
	if cfg.HartCount < 1 {
		return fmt.Errorf("harts must be >= 1, got %d", cfg.HartCount)
	}
	if cfg.RingSize != iorouter.MaxPendingRequests {
		return fmt.Errorf("ring size is fixed at %d by internal/iorouter.MaxPendingRequests", iorouter.MaxPendingRequests)
	}
	if cfg.StackSizeBytes != process.KernelStackSize {
		return fmt.Errorf("kernel stack size is fixed at %d bytes by internal/process.KernelStackSize", process.KernelStackSize)
	}
	return nil
}
