package devices

import (
	"encoding/binary"
	"sync"

	"github.com/tinyrange/riscv-core/internal/iorouter"
)

// AudioBufferCapacity bounds the simulated sample ring (spec §4.6's
// "buffer-full" semantics need some finite capacity to saturate against).
const AudioBufferCapacity = 4096

// Audio is the audio-output device handler state (spec §4.6): a bounded
// sample ring plus an enable switch and sample rate, the parts of the
// contract that are actually observable through the router (the samples
// themselves are write-only and never played back in this simulation).
type Audio struct {
	mu         sync.Mutex
	enabled    bool
	sampleRate uint32
	buffered   int
}

// NewAudio constructs a disabled audio device at the given default sample
// rate.
func NewAudio(sampleRate uint32) *Audio {
	return &Audio{sampleRate: sampleRate}
}

// WriteSample implements AudioWriteSample{sample}: accepts the sample into
// the buffer unless the device is disabled or the buffer is full, returning
// whether it was accepted (spec §4.6).
func (a *Audio) WriteSample(sample uint32) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.enabled || a.buffered >= AudioBufferCapacity {
		return false
	}
	a.buffered++
	return true
}

// SetEnabled implements AudioSetEnabled{bool}.
func (a *Audio) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.enabled = enabled
	if !enabled {
		a.buffered = 0
	}
	a.mu.Unlock()
}

// SetSampleRate implements AudioSetSampleRate{u32}.
func (a *Audio) SetSampleRate(rate uint32) {
	a.mu.Lock()
	a.sampleRate = rate
	a.mu.Unlock()
}

// drain simulates playback consuming n buffered samples. No handler
// operation calls it, so the buffer level only falls when SetEnabled(false)
// empties it.
func (a *Audio) drain(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buffered -= n
	if a.buffered < 0 {
		a.buffered = 0
	}
}

// GetBufferLevel implements AudioGetBufferLevel: a 4-byte little-endian u32
// sample count (spec §4.6).
func (a *Audio) GetBufferLevel() []byte {
	a.mu.Lock()
	level := uint32(a.buffered)
	a.mu.Unlock()
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, level)
	return buf
}

// IsBufferFull implements AudioIsBufferFull: a single byte (spec §4.6).
func (a *Audio) IsBufferFull() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.buffered >= AudioBufferCapacity {
		return []byte{1}
	}
	return []byte{0}
}

// IsBufferEmpty implements AudioIsBufferEmpty: a single byte (spec §4.6).
func (a *Audio) IsBufferEmpty() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.buffered == 0 {
		return []byte{1}
	}
	return []byte{0}
}

// Handler returns the iorouter.Handler for the audio device.
func (a *Audio) Handler() iorouter.Handler {
	return func(req *iorouter.IoRequest) iorouter.IoResult {
		switch req.Op.Kind {
		case iorouter.OpAudioWriteSample:
			if a.WriteSample(req.Op.Sample) {
				return iorouter.OkResult([]byte{1})
			}
			return iorouter.OkResult([]byte{0})
		case iorouter.OpAudioSetEnabled:
			a.SetEnabled(req.Op.Enabled)
			return iorouter.OkResult(nil)
		case iorouter.OpAudioSetSampleRate:
			a.SetSampleRate(req.Op.SampleRate)
			return iorouter.OkResult(nil)
		case iorouter.OpAudioGetBufferLevel:
			return iorouter.OkResult(a.GetBufferLevel())
		case iorouter.OpAudioIsBufferFull:
			return iorouter.OkResult(a.IsBufferFull())
		case iorouter.OpAudioIsBufferEmpty:
			return iorouter.OkResult(a.IsBufferEmpty())
		default:
			return iorouter.ErrResult(req.Device.String() + ": not implemented via I/O router")
		}
	}
}
