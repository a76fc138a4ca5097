package sim

import (
	"io"
	"sync"
)

// COM1 is the base port of the first serial port.
const COM1 uint16 = 0x3F8

const (
	lcrDLAB uint8 = 0x80

	lsrTHRE uint8 = 0x20
	lsrTEMT uint8 = 0x40
)

// UART emulates a 16550 transmitter. Bytes written to the transmit holding
// register go to out; the line is always ready.
type UART struct {
	base uint16

	mu      sync.Mutex
	out     io.Writer
	ier     uint8
	lcr     uint8
	mcr     uint8
	fcr     uint8
	dll     uint8
	dlm     uint8
	scratch uint8
	sent    int
}

// NewUART attaches a UART at base..base+7 that transmits to out.
func NewUART(m *Machine, base uint16, out io.Writer) *UART {
	u := &UART{base: base, out: out}
	for off := uint16(0); off < 8; off++ {
		m.Attach(u, base+off)
	}
	return u
}

// Divisor returns the programmed baud rate divisor.
func (u *UART) Divisor() uint16 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return uint16(u.dlm)<<8 | uint16(u.dll)
}

// LineControl returns the line control register.
func (u *UART) LineControl() uint8 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lcr
}

// FIFOControl returns the last value written to the FIFO control register.
func (u *UART) FIFOControl() uint8 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.fcr
}

// ModemControl returns the modem control register.
func (u *UART) ModemControl() uint8 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.mcr
}

// Sent returns the number of bytes transmitted.
func (u *UART) Sent() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.sent
}

func (u *UART) In8(port uint16) uint8 {
	u.mu.Lock()
	defer u.mu.Unlock()
	dlab := u.lcr&lcrDLAB != 0
	switch port - u.base {
	case 0:
		if dlab {
			return u.dll
		}
		return 0
	case 1:
		if dlab {
			return u.dlm
		}
		return u.ier
	case 2:
		iir := uint8(0x01)
		if u.fcr&0x01 != 0 {
			iir |= 0xC0
		}
		return iir
	case 3:
		return u.lcr
	case 4:
		return u.mcr
	case 5:
		return lsrTHRE | lsrTEMT
	case 6:
		return 0xB0
	default:
		return u.scratch
	}
}

func (u *UART) Out8(port uint16, v uint8) {
	u.mu.Lock()
	defer u.mu.Unlock()
	dlab := u.lcr&lcrDLAB != 0
	switch port - u.base {
	case 0:
		if dlab {
			u.dll = v
			return
		}
		u.sent++
		if u.out != nil {
			_, _ = u.out.Write([]byte{v})
		}
	case 1:
		if dlab {
			u.dlm = v
			return
		}
		u.ier = v
	case 2:
		u.fcr = v
	case 3:
		u.lcr = v
	case 4:
		u.mcr = v
	case 7:
		u.scratch = v
	}
}
