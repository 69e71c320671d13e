// Package iorouter implements the I/O router of spec §4.6: the mechanism
// that funnels MMIO device access from every hart through hart 0, which
// alone touches device state (spec invariant 6).
//
// The request/response shape — a typed operation, an allocated id, a
// result delivered asynchronously and polled or awaited — follows the
// teacher's internal/ipc client/server framing (request header with a
// type and length, response correlated back to the caller), adapted from a
// Unix-socket RPC to an in-process completion ring since producer and
// consumer here are harts in the same process, not separate processes.
// Error reporting follows the same plain-string convention as
// internal/ipc's IPCError.Message, per spec §4.6/§7: device handlers return
// bounded strings, and the router does not translate them.
package iorouter

import "sync/atomic"

// DeviceType names the class of device an IoRequest targets (spec §3).
type DeviceType int

const (
	DeviceMmc DeviceType = iota
	DeviceVirtioBlock
	DeviceNetwork
	DeviceVirtioNet
	DeviceDisplay
	DeviceUART
	DeviceAudio
)

func (d DeviceType) String() string {
	switch d {
	case DeviceMmc:
		return "mmc"
	case DeviceVirtioBlock:
		return "virtio-block"
	case DeviceNetwork:
		return "network"
	case DeviceVirtioNet:
		return "virtio-net"
	case DeviceDisplay:
		return "display"
	case DeviceUART:
		return "uart"
	case DeviceAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// OpKind discriminates the IoOp tagged variant (spec §3).
type OpKind int

const (
	OpRead OpKind = iota
	OpWrite
	OpIoctl
	OpFlush
	OpStatus
	OpFsRead
	OpFsWrite
	OpFsList
	OpFsExists
	OpFsSync
	OpDisplayFlush
	OpDisplayClear
	OpDisplayMarkAllDirty
	OpDisplayIsAvailable
	OpTouchPoll
	OpTouchNextEvent
	OpTouchHasEvents
	OpNetPoll
	OpNetIsIPAssigned
	OpNetGetIP
	OpDNSResolve
	OpSendPing
	OpTCPConnect
	OpTCPSend
	OpTCPRecv
	OpTCPClose
	OpTCPStatus
	OpHTTPGet
	OpAudioWriteSample
	OpAudioSetEnabled
	OpAudioSetSampleRate
	OpAudioGetBufferLevel
	OpAudioIsBufferFull
	OpAudioIsBufferEmpty
)

// IoOp is the device-independent operation contract (spec §3). Every
// variant is represented by Kind plus whichever fields it needs; unused
// fields are zero.
type IoOp struct {
	Kind OpKind

	Offset uint64
	Len    uint32
	Cmd    uint32
	Arg    uint64
	Data   []byte

	Path string

	TimestampMS uint64
	Sample      uint32
	Enabled     bool
	SampleRate  uint32

	// Fields used by the network device's DNS/ping/TCP/HTTP ops (spec §4.8
	// syscalls 31-38). IP4 carries a raw IPv4 address for ops that target
	// one; Data doubles as the TCP send payload.
	Host      string
	URL       string
	IP4       [4]byte
	Port      uint16
	Seq       int32
	TimeoutMS int32
	BufLen    int
}

// IoRequest is a single router request (spec §3).
type IoRequest struct {
	RequestID  uint64
	SourceHart int
	Device     DeviceType
	Op         IoOp
}

var requestCounter atomic.Uint64

// NextRequestID allocates the next monotonically increasing, never-zero
// request id (spec §3).
func NextRequestID() uint64 {
	return requestCounter.Add(1)
}

// NewRequest constructs an IoRequest, allocating its id from the global
// counter (spec §4.6).
func NewRequest(sourceHart int, device DeviceType, op IoOp) IoRequest {
	return IoRequest{
		RequestID:  NextRequestID(),
		SourceHart: sourceHart,
		Device:     device,
		Op:         op,
	}
}

// IoResult is the tagged Ok/Err result of a request (spec §3). Err holds a
// bounded, device-handler-authored string; the router never translates it
// (spec §7).
type IoResult struct {
	Bytes []byte
	Err   string
}

// Ok reports whether the result is the Ok variant.
func (r IoResult) Ok() bool { return r.Err == "" }

// OkResult constructs a successful result.
func OkResult(b []byte) IoResult { return IoResult{Bytes: b} }

// ErrResult constructs a failed result.
func ErrResult(msg string) IoResult { return IoResult{Err: msg} }
