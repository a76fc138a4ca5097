package console

import (
	"runtime"

	"github.com/sirreidlos/amarui/internal/runtime/hal"
)

// COM1 is the I/O base of the first serial port.
const COM1 uint16 = 0x3F8

const lineStatusOutputEmpty = 0x20

// SerialPort drives a 16550 UART through port I/O.
type SerialPort struct {
	data        hal.Port
	intEnable   hal.Port
	fifoCtrl    hal.Port
	lineCtrl    hal.Port
	modemCtrl   hal.Port
	lineStatus  hal.Port
	translateLF bool
}

// NewSerialPort returns a port at base. It must be initialized with Init
// before use.
func NewSerialPort(bus hal.PortIO, base uint16) *SerialPort {
	return &SerialPort{
		data:        hal.NewPort(bus, base),
		intEnable:   hal.NewPort(bus, base+1),
		fifoCtrl:    hal.NewPort(bus, base+2),
		lineCtrl:    hal.NewPort(bus, base+3),
		modemCtrl:   hal.NewPort(bus, base+4),
		lineStatus:  hal.NewPort(bus, base+5),
		translateLF: true,
	}
}

// Init programs 38400 baud, 8N1, FIFOs enabled and the receive interrupt.
func (s *SerialPort) Init() {
	s.intEnable.Write(0x00)
	s.lineCtrl.Write(0x80)
	s.data.Write(0x03)
	s.intEnable.Write(0x00)
	s.lineCtrl.Write(0x03)
	s.fifoCtrl.Write(0xC7)
	s.modemCtrl.Write(0x0B)
	s.intEnable.Write(0x01)
}

// SetTranslateNewlines controls whether '\n' is sent as "\r\n".
func (s *SerialPort) SetTranslateNewlines(on bool) { s.translateLF = on }

func (s *SerialPort) waitTransmitEmpty() {
	for s.lineStatus.Read()&lineStatusOutputEmpty == 0 {
		runtime.Gosched()
	}
}

func (s *SerialPort) sendRaw(b byte) {
	s.waitTransmitEmpty()
	s.data.Write(b)
}

// Send transmits one byte. Backspace and DEL erase the previous character
// on the remote terminal.
func (s *SerialPort) Send(b byte) {
	switch b {
	case 0x08, 0x7F:
		s.sendRaw(0x08)
		s.sendRaw(' ')
		s.sendRaw(0x08)
	case '\n':
		if s.translateLF {
			s.sendRaw('\r')
		}
		s.sendRaw('\n')
	default:
		s.sendRaw(b)
	}
}

// Write sends every byte of p.
func (s *SerialPort) Write(p []byte) (int, error) {
	for _, b := range p {
		s.Send(b)
	}
	return len(p), nil
}
