package syscall

import (
	"encoding/binary"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/tinyrange/riscv-core/internal/console"
	"github.com/tinyrange/riscv-core/internal/cpu"
	"github.com/tinyrange/riscv-core/internal/devices"
	"github.com/tinyrange/riscv-core/internal/iorouter"
	"github.com/tinyrange/riscv-core/internal/klog"
	"github.com/tinyrange/riscv-core/internal/process"
	"github.com/tinyrange/riscv-core/internal/sched"
	"github.com/tinyrange/riscv-core/internal/services"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *iorouter.Router) {
	t.Helper()
	table := process.NewTable()
	cpus := cpu.NewTable(4)
	s := sched.New(4, table, nil)
	router := iorouter.New(nil)
	reg := devices.NewRegistry([6]byte{1, 2, 3, 4, 5, 6}, nil)
	reg.RegisterAll(router)
	con := console.NewRing(40)
	kl := klog.NewBuffer()
	svc := services.NewRegistry(s, nil)

	d := New(table, cpus, s, router, reg.FS, reg.Network, con, kl, svc)
	return d, router
}

// dispatchSync issues a syscall whose handler blocks on the router and
// drains the router in parallel until it resolves.
func dispatchSync(t *testing.T, d *Dispatcher, router *iorouter.Router, hart int, pid process.PID, num int64, a0, a1, a2, a3, a4, a5 uint64, mem *Memory) int64 {
	t.Helper()
	done := make(chan int64, 1)
	go func() {
		done <- d.Dispatch(hart, pid, num, a0, a1, a2, a3, a4, a5, mem)
	}()
	for {
		select {
		case r := <-done:
			return r
		default:
			if router.QueueLen() > 0 {
				router.Dispatch()
			} else {
				time.Sleep(time.Millisecond)
			}
		}
	}
}

func TestSysPrintAndKlogGet(t *testing.T) {
	d, router := newTestDispatcher(t)
	mem := NewMemory(256)
	mem.Write(0, []byte("hello kernel"))

	if r := dispatchSync(t, d, router, 0, 1, SysPrint, 0, 12, 0, 0, 0, 0, mem); r != 0 {
		t.Fatalf("print returned %d", r)
	}

	outMem := NewMemory(256)
	n := dispatchSync(t, d, router, 0, 1, SysKlogGet, 1, 0, 256, 0, 0, 0, outMem)
	if n < 0 {
		t.Fatalf("klog_get returned %d", n)
	}
	got, _ := outMem.Read(0, uint64(n))
	if !strings.Contains(string(got), "hello kernel") {
		t.Fatalf("got %q", got)
	}
}

func TestSysTimeNonNegative(t *testing.T) {
	d, router := newTestDispatcher(t)
	mem := NewMemory(8)
	if r := dispatchSync(t, d, router, 0, 1, SysTime, 0, 0, 0, 0, 0, 0, mem); r < 0 {
		t.Fatalf("time returned %d", r)
	}
}

func TestArgGetBufferTooSmallReturnsNegativeOne(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.InitContext(1, []string{"hello"})
	mem := NewMemory(16)

	if r := d.Dispatch(0, 1, SysArgGet, 0, 0, 3, 0, 0, 0, mem); r != ErrGeneric {
		t.Fatalf("expected -1 for undersized buffer, got %d", r)
	}
	if r := d.Dispatch(0, 1, SysArgGet, 0, 0, 5, 0, 0, 0, mem); r != 5 {
		t.Fatalf("expected 5 bytes written, got %d", r)
	}
}

func TestArgCountReflectsInitContext(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.InitContext(1, []string{"a", "b", "c"})
	mem := NewMemory(8)
	if r := d.Dispatch(0, 1, SysArgCount, 0, 0, 0, 0, 0, 0, mem); r != 3 {
		t.Fatalf("got %d, want 3", r)
	}
}

func TestSysExitRecordsExitCodeIntoContext(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.InitContext(1, nil)
	mem := NewMemory(8)
	d.Dispatch(0, 1, SysExit, 7, 0, 0, 0, 0, 0, mem)

	code, ok := d.ClearContext(1)
	if !ok || code != 7 {
		t.Fatalf("got (%d, %v), want (7, true)", code, ok)
	}
}

func TestUnknownSyscallReturnsENOSYS(t *testing.T) {
	d, _ := newTestDispatcher(t)
	mem := NewMemory(8)
	if r := d.Dispatch(0, 1, 9999, 0, 0, 0, 0, 0, 0, mem); r != ErrGeneric {
		t.Fatalf("got %d, want -1", r)
	}
}

func TestFsWriteThenReadRoundTrip(t *testing.T) {
	d, router := newTestDispatcher(t)
	mem := NewMemory(256)
	path := "/greeting"
	copy(mem.buf[0:], path)
	copy(mem.buf[64:], "hi there")

	wr := dispatchSync(t, d, router, 1, 1, SysFsWrite, 0, uint64(len(path)), 64, 8, 0, 0, mem)
	if wr != 8 {
		t.Fatalf("write returned %d", wr)
	}

	rd := dispatchSync(t, d, router, 1, 1, SysFsRead, 0, uint64(len(path)), 128, 64, 0, 0, mem)
	if rd != 8 {
		t.Fatalf("read returned %d", rd)
	}
	got, _ := mem.Read(128, 8)
	if string(got) != "hi there" {
		t.Fatalf("got %q", got)
	}
}

func TestKillRejectsInitPID(t *testing.T) {
	d, _ := newTestDispatcher(t)
	mem := NewMemory(8)
	if r := d.Dispatch(0, 1, SysKill, uint64(process.InitPID), 0, 0, 0, 0, 0, mem); r != ErrReserved {
		t.Fatalf("got %d, want -2", r)
	}
}

func TestHeapStatsWritesSixteenBytes(t *testing.T) {
	d, _ := newTestDispatcher(t)
	mem := NewMemory(32)
	if r := d.Dispatch(0, 1, SysHeapStats, 0, 0, 0, 0, 0, 0, mem); r != 0 {
		t.Fatalf("got %d", r)
	}
	used := binary.LittleEndian.Uint64(mem.buf[0:8])
	total := binary.LittleEndian.Uint64(mem.buf[8:16])
	if total == 0 {
		t.Fatalf("expected nonzero total heap size")
	}
	_ = used
}

func TestCPUInfoEncodesSixBytes(t *testing.T) {
	d, _ := newTestDispatcher(t)
	mem := NewMemory(16)
	if r := d.Dispatch(0, 1, SysCPUInfo, 0, 8, 0, 0, 0, 0, mem); r != 0 {
		t.Fatalf("got %d", r)
	}
	// [u8 state][u8 utilization%][u32 current_pid LE] at offset 8.
	if mem.buf[8] != byte(cpu.Online) || mem.buf[9] != 0 || binary.LittleEndian.Uint32(mem.buf[10:14]) != 0 {
		t.Fatalf("got %v, want [online, 0%%, pid 0]", mem.buf[8:14])
	}
}

func TestSysDNSResolveRejectsSmallBuffer(t *testing.T) {
	d, _ := newTestDispatcher(t)
	mem := NewMemory(64)
	mem.Write(0, []byte("example.test"))
	if r := d.Dispatch(0, 1, SysDNSResolve, 0, 12, 32, 3, 0, 0, mem); r != ErrGeneric {
		t.Fatalf("got %d, want %d for an undersized ip buffer", r, ErrGeneric)
	}
}

func TestSysSendPingRejectsFaultyPointer(t *testing.T) {
	d, _ := newTestDispatcher(t)
	mem := NewMemory(8)
	if r := d.Dispatch(0, 1, SysSendPing, 1000, 1, 10, 0, 0, 0, mem); r != ErrReserved {
		t.Fatalf("got %d, want %d for an out-of-range ip pointer", r, ErrReserved)
	}
}

func TestSysTCPStatusDefaultsClosed(t *testing.T) {
	d, router := newTestDispatcher(t)
	mem := NewMemory(8)
	if r := dispatchSync(t, d, router, 0, 1, SysTCPStatus, 0, 0, 0, 0, 0, 0, mem); r != 0 {
		t.Fatalf("expected closed (0) before any connect, got %d", r)
	}
}

func TestSysTCPConnectSendRecvClose(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 64)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		conn.Write(buf[:n])
	}()

	addr := ln.Addr().(*net.TCPAddr)
	d, router := newTestDispatcher(t)
	mem := NewMemory(256)
	mem.Write(0, addr.IP.To4())
	mem.Write(4, []byte("ping"))

	if r := dispatchSync(t, d, router, 0, 1, SysTCPConnect, 0, uint64(addr.Port), 0, 0, 0, 0, mem); r != 0 {
		t.Fatalf("connect returned %d", r)
	}
	if r := dispatchSync(t, d, router, 0, 1, SysTCPStatus, 0, 0, 0, 0, 0, 0, mem); r != 2 {
		t.Fatalf("expected connected (2), got %d", r)
	}
	if r := dispatchSync(t, d, router, 0, 1, SysTCPSend, 4, 4, 0, 0, 0, 0, mem); r != 4 {
		t.Fatalf("send returned %d", r)
	}

	var received int64
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		received = dispatchSync(t, d, router, 0, 1, SysTCPRecv, 128, 64, 0, 0, 0, 0, mem)
		if received > 0 {
			break
		}
	}
	got, _ := mem.Read(128, uint64(received))
	if string(got) != "ping" {
		t.Fatalf("expected echoed payload, got %q (n=%d)", got, received)
	}
	if r := dispatchSync(t, d, router, 0, 1, SysTCPClose, 0, 0, 0, 0, 0, 0, mem); r != 0 {
		t.Fatalf("close returned %d", r)
	}
}

func TestSysHTTPGetRejectsEmptyURL(t *testing.T) {
	d, _ := newTestDispatcher(t)
	mem := NewMemory(8)
	if r := d.Dispatch(0, 1, SysHTTPGet, 0, 0, 16, 256, 0, 0, mem); r != ErrGeneric {
		t.Fatalf("got %d, want %d for an empty url", r, ErrGeneric)
	}
}
