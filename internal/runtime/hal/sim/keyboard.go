package sim

import "sync"

// PS/2 controller ports.
const (
	PS2DataPort   uint16 = 0x60
	PS2StatusPort uint16 = 0x64

	keyboardLine = 1

	statusOutputFull uint8 = 0x01
	statusSystemFlag uint8 = 0x04
)

// PS2Keyboard emulates the keyboard half of an 8042 controller. Every byte
// placed in its output buffer asserts IRQ 1; the next byte is raised once
// the previous one has been read from the data port.
type PS2Keyboard struct {
	m *Machine

	mu     sync.Mutex
	buf    []byte
	last   byte
	reads  int
	writes []byte
}

// NewPS2Keyboard attaches a keyboard controller to m.
func NewPS2Keyboard(m *Machine) *PS2Keyboard {
	k := &PS2Keyboard{m: m}
	m.Attach(k, PS2DataPort, PS2StatusPort)
	return k
}

// Press queues raw set 1 scancodes as if typed.
func (k *PS2Keyboard) Press(codes ...byte) {
	if len(codes) == 0 {
		return
	}
	k.mu.Lock()
	idle := len(k.buf) == 0
	k.buf = append(k.buf, codes...)
	k.mu.Unlock()
	if idle {
		k.m.RaiseIRQ(keyboardLine)
	}
}

// Pending returns the number of bytes not yet read by the CPU.
func (k *PS2Keyboard) Pending() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buf)
}

// Reads returns how many times the data port was read.
func (k *PS2Keyboard) Reads() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.reads
}

// Writes returns the bytes written to the data port.
func (k *PS2Keyboard) Writes() []byte {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]byte(nil), k.writes...)
}

func (k *PS2Keyboard) In8(port uint16) uint8 {
	k.mu.Lock()
	if port == PS2StatusPort {
		s := statusSystemFlag
		if len(k.buf) > 0 {
			s |= statusOutputFull
		}
		k.mu.Unlock()
		return s
	}
	k.reads++
	if len(k.buf) == 0 {
		v := k.last
		k.mu.Unlock()
		return v
	}
	v := k.buf[0]
	k.buf = k.buf[1:]
	k.last = v
	more := len(k.buf) > 0
	k.mu.Unlock()
	if more {
		k.m.RaiseIRQ(keyboardLine)
	}
	return v
}

func (k *PS2Keyboard) Out8(port uint16, v uint8) {
	if port != PS2DataPort {
		return
	}
	k.mu.Lock()
	k.writes = append(k.writes, v)
	k.mu.Unlock()
}
