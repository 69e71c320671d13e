package devices

import (
	"strings"
	"testing"

	"github.com/tinyrange/riscv-core/internal/iorouter"
)

func TestFSWriteReadRoundTrip(t *testing.T) {
	fs := NewFS()
	if err := fs.Write("/etc/hostname", []byte("core0")); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := fs.Read("/etc/hostname")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "core0" {
		t.Fatalf("got %q, want core0", data)
	}
}

func TestFSReadMissingIsError(t *testing.T) {
	fs := NewFS()
	if _, err := fs.Read("/nope"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestFSListEncodesNameSizeIsDir(t *testing.T) {
	fs := NewFS()
	fs.Write("/a/one.txt", []byte("hi"))
	fs.MkdirAll("/a/sub")

	out, err := fs.List("/a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(string(out), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 entries, got %d: %q", len(lines), out)
	}
	want := map[string]string{
		"one.txt": "one.txt:2:0",
		"sub":     "sub:0:1",
	}
	for _, line := range lines {
		name := strings.SplitN(line, ":", 2)[0]
		if line != want[name] {
			t.Fatalf("got %q, want %q", line, want[name])
		}
	}
}

func TestFSExistsReportsSingleByte(t *testing.T) {
	fs := NewFS()
	fs.Write("/x", []byte("y"))
	if got := fs.Exists("/x"); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected [1], got %v", got)
	}
	if got := fs.Exists("/missing"); len(got) != 1 || got[0] != 0 {
		t.Fatalf("expected [0], got %v", got)
	}
}

func TestFSMountRoutesUnderPrefix(t *testing.T) {
	root := NewFS()
	mnt := NewFS()
	mnt.Write("/readme", []byte("mounted"))
	root.Mount("/mnt", mnt)

	data, err := root.Read("/mnt/readme")
	if err != nil {
		t.Fatalf("read through mount: %v", err)
	}
	if string(data) != "mounted" {
		t.Fatalf("got %q, want mounted", data)
	}
	if root.IsDir("/mnt/readme") {
		t.Fatalf("a file must not report as a directory")
	}
}

func TestFSHandlerDispatchesFsOps(t *testing.T) {
	fs := NewFS()
	h := fs.Handler()

	wreq := iorouter.NewRequest(0, iorouter.DeviceMmc, iorouter.IoOp{Kind: iorouter.OpFsWrite, Path: "/f", Data: []byte("v")})
	if res := h(&wreq); !res.Ok() {
		t.Fatalf("write failed: %s", res.Err)
	}

	rreq := iorouter.NewRequest(0, iorouter.DeviceMmc, iorouter.IoOp{Kind: iorouter.OpFsRead, Path: "/f"})
	res := h(&rreq)
	if !res.Ok() || string(res.Bytes) != "v" {
		t.Fatalf("got %+v", res)
	}

	sreq := iorouter.NewRequest(0, iorouter.DeviceMmc, iorouter.IoOp{Kind: iorouter.OpStatus})
	if res := h(&sreq); string(res.Bytes) != "online" {
		t.Fatalf("got %q, want online", res.Bytes)
	}
}
