package sim

import "sync"

// Legacy 8259 ports.
const (
	PIC1Command uint16 = 0x20
	PIC1Data    uint16 = 0x21
	PIC2Command uint16 = 0xA0
	PIC2Data    uint16 = 0xA1
)

// Power-on vector bases programmed by the BIOS.
const (
	biosMasterOffset = 0x08
	biosSlaveOffset  = 0x70
	cascadeLine      = 2
)

// pic8259 is one controller of the pair.
type pic8259 struct {
	offset uint8
	imr    uint8
	irr    uint8
	isr    uint8

	// initialization word expected next on the data port; 0 means operational
	icw     int
	single  bool
	needIC4 bool
	autoEOI bool
	readISR bool
	inits   int
}

// pick returns the highest priority requested line, or false when nothing
// is deliverable under fully nested mode.
func (c *pic8259) pick() (uint8, bool) {
	for line := uint8(0); line < 8; line++ {
		bit := uint8(1) << line
		if c.isr&bit != 0 {
			return 0, false
		}
		if c.imr&bit != 0 {
			continue
		}
		if c.irr&bit != 0 {
			return line, true
		}
	}
	return 0, false
}

// eoi clears the highest priority in-service bit and returns its line.
func (c *pic8259) eoi() (uint8, bool) {
	for line := uint8(0); line < 8; line++ {
		if c.isr&(1<<line) != 0 {
			c.isr &^= 1 << line
			return line, true
		}
	}
	return 0, false
}

func (c *pic8259) command(v uint8) (eoiLine uint8, eoi bool) {
	switch {
	case v&0x10 != 0: // ICW1
		c.icw = 2
		c.single = v&0x02 != 0
		c.needIC4 = v&0x01 != 0
		c.imr, c.irr, c.isr = 0, 0, 0
		c.readISR = false
	case v&0x18 == 0x08: // OCW3
		if v&0x02 != 0 {
			c.readISR = v&0x01 != 0
		}
	default: // OCW2
		switch v & 0xE0 {
		case 0x20:
			return c.eoi()
		case 0x60:
			line := v & 0x07
			if c.isr&(1<<line) != 0 {
				c.isr &^= 1 << line
				return line, true
			}
		}
	}
	return 0, false
}

func (c *pic8259) data(v uint8) {
	switch c.icw {
	case 2:
		c.offset = v &^ 0x07
		switch {
		case !c.single:
			c.icw = 3
		case c.needIC4:
			c.icw = 4
		default:
			c.finishInit()
		}
	case 3:
		if c.needIC4 {
			c.icw = 4
		} else {
			c.finishInit()
		}
	case 4:
		c.autoEOI = v&0x02 != 0
		c.finishInit()
	default:
		c.imr = v
	}
}

func (c *pic8259) finishInit() {
	c.icw = 0
	c.inits++
}

// PIC is an emulated master/slave 8259 pair cascaded on master line 2.
type PIC struct {
	mu     sync.Mutex
	master pic8259
	slave  pic8259
	eoi    [16]uint64
	raised [16]uint64
}

func newPIC() *PIC {
	return &PIC{
		master: pic8259{offset: biosMasterOffset, imr: 0xFF},
		slave:  pic8259{offset: biosSlaveOffset, imr: 0xFF},
	}
}

func (p *PIC) raise(line uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	line &= 0x0F
	p.raised[line]++
	if line < 8 {
		p.master.irr |= 1 << line
	} else {
		p.slave.irr |= 1 << (line - 8)
	}
}

// acknowledge is the INTA cycle: the highest priority pending line moves
// from IRR to ISR and its vector is returned.
func (p *PIC) acknowledge() (uint8, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for line := uint8(0); line < 8; line++ {
		bit := uint8(1) << line
		if p.master.isr&bit != 0 {
			return 0, false
		}
		if p.master.imr&bit != 0 {
			continue
		}
		if line == cascadeLine {
			if sl, ok := p.slave.pick(); ok {
				p.slave.irr &^= 1 << sl
				if !p.slave.autoEOI {
					p.slave.isr |= 1 << sl
				}
				if !p.master.autoEOI {
					p.master.isr |= bit
				}
				return p.slave.offset + sl, true
			}
			continue
		}
		if p.master.irr&bit != 0 {
			p.master.irr &^= bit
			if !p.master.autoEOI {
				p.master.isr |= bit
			}
			return p.master.offset + line, true
		}
	}
	return 0, false
}

func (p *PIC) In8(port uint16) uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.chip(port)
	if port&1 == 1 {
		return c.imr
	}
	if c.readISR {
		return c.isr
	}
	return c.irr
}

func (p *PIC) Out8(port uint16, v uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.chip(port)
	if port&1 == 1 {
		c.data(v)
		return
	}
	line, ok := c.command(v)
	if !ok {
		return
	}
	if c == &p.slave {
		line += 8
	}
	p.eoi[line]++
}

func (p *PIC) chip(port uint16) *pic8259 {
	if port >= PIC2Command {
		return &p.slave
	}
	return &p.master
}

// Offsets returns the vector bases currently programmed.
func (p *PIC) Offsets() (master, slave uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.master.offset, p.slave.offset
}

// Masks returns both interrupt mask registers.
func (p *PIC) Masks() (master, slave uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.master.imr, p.slave.imr
}

// Initialized reports whether both chips completed an ICW sequence.
func (p *PIC) Initialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.master.inits > 0 && p.slave.inits > 0
}

// EOICount returns how many end-of-interrupt commands retired a line.
// Lines 8-15 are on the slave.
func (p *PIC) EOICount(line uint8) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eoi[line&0x0F]
}

// RaisedCount returns how many times a line was asserted.
func (p *PIC) RaisedCount(line uint8) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.raised[line&0x0F]
}

// InService reports whether line is awaiting an EOI.
func (p *PIC) InService(line uint8) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if line < 8 {
		return p.master.isr&(1<<line) != 0
	}
	return p.slave.isr&(1<<(line-8)) != 0
}

// Pending reports whether line is latched in IRR.
func (p *PIC) Pending(line uint8) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if line < 8 {
		return p.master.irr&(1<<line) != 0
	}
	return p.slave.irr&(1<<(line-8)) != 0
}
