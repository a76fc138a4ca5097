package hal

// PortIO is the x86 I/O port space.
type PortIO interface {
	In8(port uint16) uint8
	Out8(port uint16, value uint8)
}

// Port is a handle to a single 8-bit I/O port.
type Port struct {
	bus  PortIO
	addr uint16
}

// NewPort binds addr on bus.
func NewPort(bus PortIO, addr uint16) Port {
	return Port{bus: bus, addr: addr}
}

// Read executes in al, dx.
func (p Port) Read() uint8 { return p.bus.In8(p.addr) }

// Write executes out dx, al.
func (p Port) Write(v uint8) { p.bus.Out8(p.addr, v) }
