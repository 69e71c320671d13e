package devices

import (
	"encoding/binary"
	"sync"

	"github.com/tinyrange/riscv-core/internal/iorouter"
)

// TouchEvent is one queued touch-input sample (spec §4.6): a type/code pair
// plus a signed value, the same shape a Linux evdev input_event reduces to
// once timestamp and padding are stripped.
type TouchEvent struct {
	Type  uint16
	Code  uint16
	Value int32
}

// Encode serializes e as the 8-byte little-endian record TouchNextEvent
// returns (spec §4.6).
func (e TouchEvent) Encode() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint16(buf[0:2], e.Type)
	binary.LittleEndian.PutUint16(buf[2:4], e.Code)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(e.Value))
	return buf
}

// Display is the framebuffer + touch-input device handler state (spec
// §4.6). The framebuffer itself is not exposed through the router contract
// -- only flush/clear/dirty-tracking and availability -- so this holds just
// enough state to answer those queries truthfully.
type Display struct {
	mu        sync.Mutex
	available bool
	dirty     bool
	touch     []TouchEvent
}

// NewDisplay constructs an available display with no queued touch events.
func NewDisplay() *Display {
	return &Display{available: true}
}

// SetAvailable toggles whether a display is attached.
func (d *Display) SetAvailable(available bool) {
	d.mu.Lock()
	d.available = available
	d.mu.Unlock()
}

// PushTouch enqueues a touch-input event to be drained by TouchNextEvent.
func (d *Display) PushTouch(e TouchEvent) {
	d.mu.Lock()
	d.touch = append(d.touch, e)
	d.mu.Unlock()
}

// Flush implements DisplayFlush: presents dirty regions, clearing the dirty
// flag (spec §4.6).
func (d *Display) Flush() {
	d.mu.Lock()
	d.dirty = false
	d.mu.Unlock()
}

// Clear implements DisplayClear.
func (d *Display) Clear() {
	d.mu.Lock()
	d.dirty = false
	d.mu.Unlock()
}

// MarkAllDirty implements DisplayMarkAllDirty.
func (d *Display) MarkAllDirty() {
	d.mu.Lock()
	d.dirty = true
	d.mu.Unlock()
}

// IsAvailable implements DisplayIsAvailable: a single byte (spec §4.6).
func (d *Display) IsAvailable() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.available {
		return []byte{1}
	}
	return []byte{0}
}

// TouchPoll implements TouchPoll: runs input processing, returns empty
// (spec §4.6). This simulation has nothing to poll, so it is a no-op.
func (d *Display) TouchPoll() {}

// TouchNextEvent implements TouchNextEvent: the oldest queued event encoded
// as 8 little-endian bytes, or empty bytes if none are queued (spec §4.6).
func (d *Display) TouchNextEvent() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.touch) == 0 {
		return nil
	}
	e := d.touch[0]
	d.touch = d.touch[1:]
	return e.Encode()
}

// TouchHasEvents implements TouchHasEvents: a single byte (spec §4.6).
func (d *Display) TouchHasEvents() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.touch) > 0 {
		return []byte{1}
	}
	return []byte{0}
}

// Handler returns the iorouter.Handler for the display/touch device.
func (d *Display) Handler() iorouter.Handler {
	return func(req *iorouter.IoRequest) iorouter.IoResult {
		switch req.Op.Kind {
		case iorouter.OpDisplayFlush:
			d.Flush()
			return iorouter.OkResult(nil)
		case iorouter.OpDisplayClear:
			d.Clear()
			return iorouter.OkResult(nil)
		case iorouter.OpDisplayMarkAllDirty:
			d.MarkAllDirty()
			return iorouter.OkResult(nil)
		case iorouter.OpDisplayIsAvailable:
			return iorouter.OkResult(d.IsAvailable())
		case iorouter.OpTouchPoll:
			d.TouchPoll()
			return iorouter.OkResult(nil)
		case iorouter.OpTouchNextEvent:
			return iorouter.OkResult(d.TouchNextEvent())
		case iorouter.OpTouchHasEvents:
			return iorouter.OkResult(d.TouchHasEvents())
		default:
			return iorouter.ErrResult(req.Device.String() + ": not implemented via I/O router")
		}
	}
}
