package syscall

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/tinyrange/riscv-core/internal/console"
	"github.com/tinyrange/riscv-core/internal/cpu"
	"github.com/tinyrange/riscv-core/internal/devices"
	"github.com/tinyrange/riscv-core/internal/iorouter"
	"github.com/tinyrange/riscv-core/internal/klog"
	"github.com/tinyrange/riscv-core/internal/platform"
	"github.com/tinyrange/riscv-core/internal/process"
	"github.com/tinyrange/riscv-core/internal/sched"
	"github.com/tinyrange/riscv-core/internal/services"
)

// ioTimeoutMS bounds every router round trip a syscall makes on behalf of
// user code (spec §4.6's RequestIO with a nonzero timeout).
const ioTimeoutMS = 5000

// Dispatcher is the numbered syscall dispatch table of spec §4.8: it
// translates a7/a0..a5-shaped arguments into calls against the scheduler,
// process table, I/O router, and device handlers, exactly the collaborator
// set the original kernel's handle_syscall reaches into.
type Dispatcher struct {
	Table    *process.Table
	CPUs     *cpu.Table
	Sched    *sched.Scheduler
	Router   *iorouter.Router
	FS       *devices.FS
	Net      *devices.Network
	Console  *console.Ring
	KLog     *klog.Buffer
	Services *services.Registry
	Env      map[string]string

	// OnShutdown, if set, is invoked by the shutdown syscall after the
	// platform's finisher write (spec §4.8, §6) -- the hook cmd/kernel
	// wires to stop every hart's run loop.
	OnShutdown func()

	ctx *contextTable
}

// New constructs a Dispatcher over the given subsystem handles.
func New(table *process.Table, cpus *cpu.Table, s *sched.Scheduler, router *iorouter.Router, fs *devices.FS, net *devices.Network, con *console.Ring, kl *klog.Buffer, svc *services.Registry) *Dispatcher {
	return &Dispatcher{
		Table: table, CPUs: cpus, Sched: s, Router: router,
		FS: fs, Net: net, Console: con, KLog: kl, Services: svc,
		Env: map[string]string{
			"HOME": "/home", "PATH": "/usr/bin", "USER": "root",
			"SHELL": "/usr/bin/sh", "TERM": "xterm-256color",
		},
		ctx: newContextTable(),
	}
}

// InitContext records argv for pid before its binary runs (spec §4.8).
func (d *Dispatcher) InitContext(pid process.PID, argv []string) { d.ctx.InitContext(pid, argv) }

// ClearContext drops pid's syscall context, returning its exit code if one
// was recorded via SysExit (spec §4.8).
func (d *Dispatcher) ClearContext(pid process.PID) (int32, bool) { return d.ctx.ClearContext(pid) }

// Dispatch decodes and executes one syscall (spec §4.8): hart is the
// caller's hart id (used for I/O router round trips on ops that touch
// device state), pid identifies the calling process's syscall context, num
// is a7, and a0..a5 are the six argument registers. mem is the caller's
// simulated address space for pointer arguments.
func (d *Dispatcher) Dispatch(hart int, pid process.PID, num int64, a0, a1, a2, a3, a4, a5 uint64, mem *Memory) int64 {
	switch num {
	case SysPrint:
		return d.sysPrint(a0, a1, mem)
	case SysTime:
		return int64(platform.GetTimeMS())
	case SysExit:
		return d.sysExit(pid, int32(a0))

	case SysArgCount:
		return d.sysArgCount(pid)
	case SysArgGet:
		return d.sysArgGet(pid, int(a0), a1, a2, mem)
	case SysCwdGet:
		return d.sysCwdGet(pid, a0, a1, mem)
	case SysCwdSet:
		return d.sysCwdSet(pid, a0, a1, mem)

	case SysFsExists:
		return d.sysFsExists(hart, a0, a1, mem)
	case SysFsRead:
		return d.sysFsRead(hart, a0, a1, a2, a3, mem)
	case SysFsWrite:
		return d.sysFsWrite(hart, a0, a1, a2, a3, mem)
	case SysFsList:
		return d.sysFsList(hart, "/", a0, a1, mem)
	case SysFsListDir:
		path, err := mem.ReadString(a0, a1)
		if err != nil {
			return ErrGeneric
		}
		return d.sysFsList(hart, path, a2, a3, mem)
	case SysFsStat:
		return d.sysFsStat(hart, a0, a1, a2, mem)
	case SysFsRemove:
		return d.sysFsRemove(hart, a0, a1, mem)
	case SysFsMkdir:
		return d.sysFsMkdir(a0, a1, mem)
	case SysFsIsDir:
		return d.sysFsIsDir(a0, a1, mem)

	case SysNetAvailable:
		return d.sysNetAvailable(hart)
	case SysDNSResolve:
		return d.sysDNSResolve(hart, a0, a1, a2, a3, mem)
	case SysSendPing:
		return d.sysSendPing(hart, a0, int32(a1), int32(a2), a3, mem)
	case SysTCPConnect:
		return d.sysTCPConnect(hart, a0, uint16(a1), mem)
	case SysTCPSend:
		return d.sysTCPSend(hart, a0, a1, mem)
	case SysTCPRecv:
		return d.sysTCPRecv(hart, a0, a1, mem)
	case SysTCPClose:
		return d.sysTCPClose(hart)
	case SysTCPStatus:
		return d.sysTCPStatus(hart)
	case SysHTTPGet:
		return d.sysHTTPGet(hart, a0, a1, a2, a3, mem)
	case SysConsoleAvailable:
		return d.sysConsoleAvailable()
	case SysConsoleRead:
		return d.sysConsoleRead(a0, a1, mem)

	case SysPSList:
		return d.sysPSList(a0, a1, mem)
	case SysKill:
		return d.sysKill(uint32(a0))
	case SysCPUInfo:
		return d.sysCPUInfo(int(int32(a0)), a1, mem)

	case SysShutdown:
		return d.sysShutdown()
	case SysShouldCancel:
		return 0
	case SysRandom:
		return d.sysRandom(a0, a1, mem)
	case SysEnvGet:
		return d.sysEnvGet(pid, a0, a1, a2, a3, mem)
	case SysKlogGet:
		return d.sysKlogGet(int(a0), a1, a2, mem)

	case SysServiceList:
		return writeBytes(mem, a0, a1, d.Services.List())
	case SysServiceStart:
		return d.sysServiceStartStop(a0, a1, mem, d.Services.Start)
	case SysServiceStop:
		return d.sysServiceStartStop(a0, a1, mem, d.Services.Stop)
	case SysServiceRunning:
		return writeBytes(mem, a0, a1, d.Services.Running())

	case SysNetInfo:
		return d.sysNetInfo(hart, a0, a1, mem)
	case SysHeapStats:
		return d.sysHeapStats(a0, mem)
	case SysSleep:
		time.Sleep(time.Duration(a0) * time.Millisecond)
		return 0

	default:
		return ErrGeneric // ENOSYS
	}
}

// writeBytes copies data into mem at ptr, truncated to buflen, and returns
// the number of bytes written (the write_bytes helper's contract, spec
// §4.8).
func writeBytes(mem *Memory, ptr, buflen uint64, data []byte) int64 {
	if buflen < uint64(len(data)) {
		data = data[:buflen]
	}
	return int64(mem.Write(ptr, data))
}

func (d *Dispatcher) sysPrint(ptr, length uint64, mem *Memory) int64 {
	s, err := mem.ReadString(ptr, length)
	if err != nil {
		return ErrGeneric
	}
	if d.KLog != nil {
		d.KLog.Ring().PushLine(s)
	}
	return 0
}

func (d *Dispatcher) sysExit(pid process.PID, code int32) int64 {
	d.ctx.setExitCode(pid, code)
	return int64(code)
}

func (d *Dispatcher) sysArgCount(pid process.PID) int64 {
	c, ok := d.ctx.get(pid)
	if !ok {
		return 0
	}
	return int64(len(c.argv))
}

func (d *Dispatcher) sysArgGet(pid process.PID, index int, bufPtr, buflen uint64, mem *Memory) int64 {
	c, ok := d.ctx.get(pid)
	if !ok || index < 0 || index >= len(c.argv) {
		return ErrGeneric
	}
	bytes := []byte(c.argv[index])
	if uint64(len(bytes)) > buflen {
		return ErrGeneric
	}
	return int64(mem.Write(bufPtr, bytes))
}

func (d *Dispatcher) sysCwdGet(pid process.PID, bufPtr, buflen uint64, mem *Memory) int64 {
	c, ok := d.ctx.get(pid)
	cwd := "/"
	if ok {
		cwd = c.cwd
	}
	bytes := []byte(cwd)
	if uint64(len(bytes)) > buflen {
		return ErrGeneric
	}
	return int64(mem.Write(bufPtr, bytes))
}

func (d *Dispatcher) sysCwdSet(pid process.PID, ptr, length uint64, mem *Memory) int64 {
	path, err := mem.ReadString(ptr, length)
	if err != nil || path == "" {
		return ErrGeneric
	}
	if d.FS != nil {
		exists := d.FS.Exists(path)
		if len(exists) == 0 || exists[0] != 1 {
			return ErrGeneric
		}
	}
	d.ctx.setCwd(pid, path)
	return 0
}

func (d *Dispatcher) io(hart int, device iorouter.DeviceType, op iorouter.IoOp) (iorouter.IoResult, error) {
	req := iorouter.NewRequest(hart, device, op)
	return d.Router.RequestIO(req, ioTimeoutMS)
}

func (d *Dispatcher) sysFsExists(hart int, ptr, length uint64, mem *Memory) int64 {
	path, err := mem.ReadString(ptr, length)
	if err != nil {
		return 0
	}
	res, err := d.io(hart, iorouter.DeviceMmc, iorouter.IoOp{Kind: iorouter.OpFsExists, Path: path})
	if err != nil || !res.Ok() || len(res.Bytes) == 0 {
		return 0
	}
	return int64(res.Bytes[0])
}

func (d *Dispatcher) sysFsRead(hart int, pathPtr, pathLen, bufPtr, buflen uint64, mem *Memory) int64 {
	path, err := mem.ReadString(pathPtr, pathLen)
	if err != nil {
		return ErrGeneric
	}
	res, err := d.io(hart, iorouter.DeviceMmc, iorouter.IoOp{Kind: iorouter.OpFsRead, Path: path})
	if err != nil || !res.Ok() {
		return ErrGeneric
	}
	return writeBytes(mem, bufPtr, buflen, res.Bytes)
}

func (d *Dispatcher) sysFsWrite(hart int, pathPtr, pathLen, dataPtr, dataLen uint64, mem *Memory) int64 {
	path, err := mem.ReadString(pathPtr, pathLen)
	if err != nil {
		return ErrGeneric
	}
	data, err := mem.Read(dataPtr, dataLen)
	if err != nil {
		return ErrGeneric
	}
	res, err := d.io(hart, iorouter.DeviceMmc, iorouter.IoOp{Kind: iorouter.OpFsWrite, Path: path, Data: data})
	if err != nil || !res.Ok() {
		return ErrGeneric
	}
	return int64(dataLen)
}

func (d *Dispatcher) sysFsList(hart int, path string, bufPtr, buflen uint64, mem *Memory) int64 {
	res, err := d.io(hart, iorouter.DeviceMmc, iorouter.IoOp{Kind: iorouter.OpFsList, Path: path})
	if err != nil || !res.Ok() {
		return ErrGeneric
	}
	return writeBytes(mem, bufPtr, buflen, res.Bytes)
}

func (d *Dispatcher) sysFsStat(hart int, pathPtr, pathLen, outPtr uint64, mem *Memory) int64 {
	path, err := mem.ReadString(pathPtr, pathLen)
	if err != nil {
		return ErrGeneric
	}
	existsRes, err := d.io(hart, iorouter.DeviceMmc, iorouter.IoOp{Kind: iorouter.OpFsExists, Path: path})
	if err != nil || !existsRes.Ok() {
		return ErrGeneric
	}
	exists := len(existsRes.Bytes) > 0 && existsRes.Bytes[0] == 1

	var size uint32
	var isDir byte
	if exists {
		if d.FS != nil && d.FS.IsDir(path) {
			isDir = 1
		} else {
			readRes, err := d.io(hart, iorouter.DeviceMmc, iorouter.IoOp{Kind: iorouter.OpFsRead, Path: path})
			if err == nil && readRes.Ok() {
				size = uint32(len(readRes.Bytes))
			}
		}
	}

	out := make([]byte, 6)
	binary.LittleEndian.PutUint32(out[0:4], size)
	if exists {
		out[4] = 1
	}
	out[5] = isDir
	mem.Write(outPtr, out)
	return 0
}

func (d *Dispatcher) sysFsRemove(hart int, pathPtr, pathLen uint64, mem *Memory) int64 {
	path, err := mem.ReadString(pathPtr, pathLen)
	if err != nil || d.FS == nil {
		return ErrGeneric
	}
	if err := d.FS.Remove(path); err != nil {
		return ErrGeneric
	}
	return 0
}

func (d *Dispatcher) sysFsMkdir(pathPtr, pathLen uint64, mem *Memory) int64 {
	path, err := mem.ReadString(pathPtr, pathLen)
	if err != nil || d.FS == nil {
		return ErrGeneric
	}
	d.FS.MkdirAll(path)
	return 0
}

func (d *Dispatcher) sysFsIsDir(pathPtr, pathLen uint64, mem *Memory) int64 {
	path, err := mem.ReadString(pathPtr, pathLen)
	if err != nil || d.FS == nil {
		return 0
	}
	if d.FS.IsDir(path) {
		return 1
	}
	return 0
}

func (d *Dispatcher) sysNetAvailable(hart int) int64 {
	res, err := d.io(hart, iorouter.DeviceNetwork, iorouter.IoOp{Kind: iorouter.OpNetIsIPAssigned})
	if err != nil || !res.Ok() || len(res.Bytes) == 0 {
		return 0
	}
	return int64(res.Bytes[0])
}

// sysDNSResolve implements dns_resolve (spec §4.8 syscall 31): h,hl name
// the hostname, ip,ipl the output buffer for the 4 resolved octets.
// Grounded on original_source/kernel/src/syscall.rs's sys_dns_resolve.
func (d *Dispatcher) sysDNSResolve(hart int, hostPtr, hostLen, ipPtr, ipLen uint64, mem *Memory) int64 {
	if ipLen < 4 {
		return ErrGeneric
	}
	host, err := mem.ReadString(hostPtr, hostLen)
	if err != nil || host == "" {
		return ErrGeneric
	}
	res, err := d.io(hart, iorouter.DeviceNetwork, iorouter.IoOp{Kind: iorouter.OpDNSResolve, Host: host, TimeoutMS: 5000})
	if err != nil || !res.Ok() || len(res.Bytes) < 4 {
		return ErrGeneric
	}
	mem.Write(ipPtr, res.Bytes[:4])
	return 4
}

// sysSendPing implements send_ping (spec §4.8 syscall 32): ip points to 4
// raw octets, out to a 4-byte RTT-in-ms output. Grounded on
// original_source/kernel/src/syscall.rs's sys_send_ping. Returns -2 when ip
// points outside mem, -1 when the ping fails for any other reason (timeout
// and network errors alike), and 0 with the RTT written to out on success.
func (d *Dispatcher) sysSendPing(hart int, ipPtr uint64, seq, timeoutMS int32, outPtr uint64, mem *Memory) int64 {
	ipBytes, err := mem.Read(ipPtr, 4)
	if err != nil {
		return ErrReserved
	}
	var ip [4]byte
	copy(ip[:], ipBytes)
	res, err := d.io(hart, iorouter.DeviceNetwork, iorouter.IoOp{Kind: iorouter.OpSendPing, IP4: ip, Seq: seq, TimeoutMS: timeoutMS})
	if err != nil || !res.Ok() || len(res.Bytes) < 4 {
		return ErrGeneric
	}
	mem.Write(outPtr, res.Bytes[:4])
	return 0
}

// sysTCPConnect implements tcp_connect (spec §4.8 syscall 33): ip points to
// 4 raw octets, port is the destination port.
func (d *Dispatcher) sysTCPConnect(hart int, ipPtr uint64, port uint16, mem *Memory) int64 {
	ipBytes, err := mem.Read(ipPtr, 4)
	if err != nil {
		return ErrGeneric
	}
	var ip [4]byte
	copy(ip[:], ipBytes)
	res, err := d.io(hart, iorouter.DeviceNetwork, iorouter.IoOp{Kind: iorouter.OpTCPConnect, IP4: ip, Port: port})
	if err != nil || !res.Ok() {
		return ErrGeneric
	}
	return 0
}

// sysTCPSend implements tcp_send (spec §4.8 syscall 34): data,len name the
// payload to send over the connection opened by tcp_connect.
func (d *Dispatcher) sysTCPSend(hart int, dataPtr, dataLen uint64, mem *Memory) int64 {
	data, err := mem.Read(dataPtr, dataLen)
	if err != nil {
		return ErrGeneric
	}
	res, err := d.io(hart, iorouter.DeviceNetwork, iorouter.IoOp{Kind: iorouter.OpTCPSend, Data: data})
	if err != nil || !res.Ok() || len(res.Bytes) < 8 {
		return ErrGeneric
	}
	return int64(binary.LittleEndian.Uint64(res.Bytes))
}

// sysTCPRecv implements tcp_recv (spec §4.8 syscall 35): buf,len name the
// caller's receive buffer.
func (d *Dispatcher) sysTCPRecv(hart int, bufPtr, buflen uint64, mem *Memory) int64 {
	res, err := d.io(hart, iorouter.DeviceNetwork, iorouter.IoOp{Kind: iorouter.OpTCPRecv, BufLen: int(buflen)})
	if err != nil || !res.Ok() {
		return ErrGeneric
	}
	return writeBytes(mem, bufPtr, buflen, res.Bytes)
}

// sysTCPClose implements tcp_close (spec §4.8 syscall 36).
func (d *Dispatcher) sysTCPClose(hart int) int64 {
	res, err := d.io(hart, iorouter.DeviceNetwork, iorouter.IoOp{Kind: iorouter.OpTCPClose})
	if err != nil || !res.Ok() {
		return ErrGeneric
	}
	return 0
}

// sysTCPStatus implements tcp_status (spec §4.8 syscall 37): 0=closed,
// 1=connecting, 2=connected, 3=failed.
func (d *Dispatcher) sysTCPStatus(hart int) int64 {
	res, err := d.io(hart, iorouter.DeviceNetwork, iorouter.IoOp{Kind: iorouter.OpTCPStatus})
	if err != nil || !res.Ok() || len(res.Bytes) < 8 {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(res.Bytes))
}

// sysHTTPGet implements http_get (spec §4.8 syscall 38): url,ul name the
// request URL, buf,buflen the caller's response-body buffer.
func (d *Dispatcher) sysHTTPGet(hart int, urlPtr, urlLen, bufPtr, buflen uint64, mem *Memory) int64 {
	url, err := mem.ReadString(urlPtr, urlLen)
	if err != nil || url == "" {
		return ErrGeneric
	}
	res, err := d.io(hart, iorouter.DeviceNetwork, iorouter.IoOp{Kind: iorouter.OpHTTPGet, URL: url})
	if err != nil || !res.Ok() {
		return ErrGeneric
	}
	return writeBytes(mem, bufPtr, buflen, res.Bytes)
}

func (d *Dispatcher) sysConsoleAvailable() int64 {
	if d.Console == nil {
		return 0
	}
	return 1
}

func (d *Dispatcher) sysConsoleRead(bufPtr, buflen uint64, mem *Memory) int64 {
	if d.Console == nil || d.Console.LineCount() == 0 {
		return 0
	}
	line, ok := d.Console.GetLine(d.Console.LineCount() - 1)
	if !ok {
		return 0
	}
	writeBytes(mem, bufPtr, buflen, []byte(line))
	return 1
}

func (d *Dispatcher) sysPSList(bufPtr, buflen uint64, mem *Memory) int64 {
	if d.Table == nil {
		return writeBytes(mem, bufPtr, buflen, nil)
	}
	var sb strings.Builder
	now := int64(platform.GetTimeMS())
	for _, p := range d.Table.List() {
		state := "S"
		if p.State() == process.Running {
			state = "R"
		}
		uptime := now - int64(p.CreatedAtMS)
		fmt.Fprintf(&sb, "%d:%s:%s:%d:%d:%d\n", p.PID, p.Name, state, int(p.Priority()), p.CPUTimeMS(), uptime)
	}
	return writeBytes(mem, bufPtr, buflen, []byte(sb.String()))
}

func (d *Dispatcher) sysKill(pid uint32) int64 {
	if pid == uint32(process.NoPID) || pid == uint32(process.InitPID) {
		return ErrReserved
	}
	p := d.Table.Get(process.PID(pid))
	if p == nil {
		return ErrGeneric
	}
	d.Sched.Kill(process.PID(pid))
	return 0
}

func (d *Dispatcher) sysCPUInfo(id int, outPtr uint64, mem *Memory) int64 {
	c := d.CPUs.CPU(id)
	if c == nil || c.State() == cpu.Offline {
		return ErrGeneric
	}
	busy, idle := c.BusyMS(), c.IdleMS()
	util := byte(0)
	if total := busy + idle; total > 0 {
		util = byte((busy * 100) / total)
	}
	out := make([]byte, 6)
	out[0] = byte(c.State())
	out[1] = util
	binary.LittleEndian.PutUint32(out[2:6], c.CurrentProcess())
	mem.Write(outPtr, out)
	return 0
}

func (d *Dispatcher) sysShutdown() int64 {
	if d.Console != nil {
		d.Console.PushLine("System shutdown initiated")
	}
	platform.Shutdown(func(magic uint32) {
		if d.OnShutdown != nil {
			d.OnShutdown()
		}
	})
	return 0
}

func (d *Dispatcher) sysRandom(bufPtr, buflen uint64, mem *Memory) int64 {
	buf := make([]byte, buflen)
	n, err := rand.Read(buf)
	if err != nil {
		return ErrGeneric
	}
	return int64(mem.Write(bufPtr, buf[:n]))
}

func (d *Dispatcher) sysEnvGet(pid process.PID, keyPtr, keyLen, valPtr, valLen uint64, mem *Memory) int64 {
	key, err := mem.ReadString(keyPtr, keyLen)
	if err != nil {
		return ErrGeneric
	}
	if key == "PWD" {
		c, ok := d.ctx.get(pid)
		cwd := "/"
		if ok {
			cwd = c.cwd
		}
		return int64(mem.Write(valPtr, []byte(cwd)))
	}
	val, ok := d.Env[key]
	if !ok {
		return ErrGeneric
	}
	return int64(mem.Write(valPtr, []byte(val)))
}

func (d *Dispatcher) sysKlogGet(n int, bufPtr, buflen uint64, mem *Memory) int64 {
	if d.KLog == nil {
		return ErrGeneric
	}
	if n < 1 {
		n = 1
	}
	if n > 100 {
		n = 100
	}
	return writeBytes(mem, bufPtr, buflen, d.KLog.Get(n, int(buflen)))
}

func (d *Dispatcher) sysServiceStartStop(namePtr, nameLen uint64, mem *Memory, fn func(string) error) int64 {
	name, err := mem.ReadString(namePtr, nameLen)
	if err != nil {
		return ErrGeneric
	}
	if err := fn(name); err != nil {
		return ErrGeneric
	}
	return 0
}

func (d *Dispatcher) sysNetInfo(hart int, outPtr, outLen uint64, mem *Memory) int64 {
	if outLen < 19 {
		return ErrGeneric
	}
	res, err := d.io(hart, iorouter.DeviceNetwork, iorouter.IoOp{Kind: iorouter.OpNetIsIPAssigned})
	if err != nil || !res.Ok() || len(res.Bytes) == 0 || res.Bytes[0] == 0 {
		return -2
	}
	if d.Net == nil {
		return -2
	}
	info := d.Net.Info()
	mem.Write(outPtr, info[:])
	return 0
}

func (d *Dispatcher) sysHeapStats(outPtr uint64, mem *Memory) int64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	out := make([]byte, 16)
	binary.LittleEndian.PutUint64(out[0:8], ms.HeapAlloc)
	binary.LittleEndian.PutUint64(out[8:16], ms.HeapSys)
	mem.Write(outPtr, out)
	return 0
}
