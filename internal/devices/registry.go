package devices

import "github.com/tinyrange/riscv-core/internal/iorouter"

// Registry bundles the concrete device handler instances a booted kernel
// wires into the I/O router (spec §4.6): one filesystem backed by two
// block device types (Mmc, VirtioBlock), one network interface backed by
// two device types (Network, VirtioNet), a display, an audio sink, and a
// UART.
type Registry struct {
	FS      *FS
	Network *Network
	Display *Display
	Audio   *Audio
	UART    *UART
}

// NewRegistry constructs a registry of default device instances.
func NewRegistry(mac [6]byte, uartSink func([]byte)) *Registry {
	return &Registry{
		FS:      NewFS(),
		Network: NewNetwork(mac),
		Display: NewDisplay(),
		Audio:   NewAudio(44100),
		UART:    NewUART(uartSink),
	}
}

// RegisterAll installs every device's handler into r under every
// DeviceType it serves (spec §3's Mmc/VirtioBlock and Network/VirtioNet
// aliasing).
func (reg *Registry) RegisterAll(r *iorouter.Router) {
	r.RegisterHandler(iorouter.DeviceMmc, reg.FS.Handler())
	r.RegisterHandler(iorouter.DeviceVirtioBlock, reg.FS.Handler())
	r.RegisterHandler(iorouter.DeviceNetwork, reg.Network.Handler())
	r.RegisterHandler(iorouter.DeviceVirtioNet, reg.Network.Handler())
	r.RegisterHandler(iorouter.DeviceDisplay, reg.Display.Handler())
	r.RegisterHandler(iorouter.DeviceAudio, reg.Audio.Handler())
	r.RegisterHandler(iorouter.DeviceUART, reg.UART.Handler())
}
