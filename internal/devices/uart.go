package devices

import (
	"sync"

	"github.com/tinyrange/riscv-core/internal/iorouter"
)

// UART is the serial-output device handler state (spec §4.6, §7): a single
// shared output buffer, writes to which are atomic at the buffer boundary
// regardless of which hart submits them -- the router serializes all
// writes onto hart 0 already, so a plain mutex-guarded buffer is
// sufficient.
type UART struct {
	mu     sync.Mutex
	out    []byte
	online bool
	sink   func([]byte)
}

// NewUART constructs an online UART. sink, if non-nil, is called with every
// written chunk in addition to buffering it (wiring point for the boot
// console, spec §7).
func NewUART(sink func([]byte)) *UART {
	return &UART{online: true, sink: sink}
}

// Write implements UART Write{data}: appends to the shared output buffer
// (spec §4.6).
func (u *UART) Write(data []byte) {
	u.mu.Lock()
	u.out = append(u.out, data...)
	u.mu.Unlock()
	if u.sink != nil {
		u.sink(data)
	}
}

// Drain removes and returns everything buffered so far.
func (u *UART) Drain() []byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := u.out
	u.out = nil
	return out
}

// Status implements Status: b"online" (spec §4.6).
func (u *UART) Status() []byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.online {
		return []byte("online")
	}
	return []byte("offline")
}

// Handler returns the iorouter.Handler for the UART device.
func (u *UART) Handler() iorouter.Handler {
	return func(req *iorouter.IoRequest) iorouter.IoResult {
		switch req.Op.Kind {
		case iorouter.OpWrite:
			u.Write(req.Op.Data)
			return iorouter.OkResult(nil)
		case iorouter.OpStatus:
			return iorouter.OkResult(u.Status())
		default:
			return iorouter.ErrResult(req.Device.String() + ": not implemented via I/O router")
		}
	}
}
