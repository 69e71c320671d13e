package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveAppliesFlagDefaultsWithNoManifest(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f := RegisterFlags(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatal(err)
	}
	cfg, err := f.Resolve()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HartCount != DefaultHartCount {
		t.Fatalf("got %d", cfg.HartCount)
	}
	if len(cfg.InitialServices) != 0 {
		t.Fatalf("expected no services without a manifest")
	}
}

func TestResolveFlagOverridesManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "boot.yaml")
	if err := os.WriteFile(path, []byte("hartCount: 4\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f := RegisterFlags(fs)
	if err := fs.Parse([]string{"-harts", "2", "-manifest", path}); err != nil {
		t.Fatal(err)
	}
	cfg, err := f.Resolve()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HartCount != 2 {
		t.Fatalf("explicit -harts flag should win over manifest, got %d", cfg.HartCount)
	}
}

func TestResolveManifestFillsUnsetFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "boot.yaml")
	content := "hartCount: 3\nservices:\n  - name: klogd\n    description: kernel log drain\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f := RegisterFlags(fs)
	if err := fs.Parse([]string{"-manifest", path}); err != nil {
		t.Fatal(err)
	}
	cfg, err := f.Resolve()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HartCount != 3 {
		t.Fatalf("manifest should fill unset -harts, got %d", cfg.HartCount)
	}
	if len(cfg.InitialServices) != 1 || cfg.InitialServices[0].Name != "klogd" {
		t.Fatalf("got %+v", cfg.InitialServices)
	}
}

func TestResolveMissingManifestFileErrors(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f := RegisterFlags(fs)
	if err := fs.Parse([]string{"-manifest", "/nonexistent/boot.yaml"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Resolve(); err == nil {
		t.Fatalf("expected an error for a missing manifest file")
	}
}

func TestResolveRejectsZeroHarts(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f := RegisterFlags(fs)
	if err := fs.Parse([]string{"-harts", "0"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Resolve(); err == nil {
		t.Fatalf("expected an error for 0 harts")
	}
}
