package kernel

import (
	"sync/atomic"

	kerrors "github.com/sirreidlos/amarui/internal/errors"
	"github.com/sirreidlos/amarui/internal/runtime/hal"
)

// ============================================================================
// PIC (Programmable Interrupt Controller) Driver
// ============================================================================

const (
	PIC1Command uint16 = 0x20
	PIC1Data    uint16 = 0x21
	PIC2Command uint16 = 0xA0
	PIC2Data    uint16 = 0xA1

	// unused POST diagnostics port; writing it takes long enough for the
	// PICs to settle between initialization words
	waitPort uint16 = 0x80

	ICW1Init  = 0x11
	ICW4_8086 = 0x01
	PIC_EOI   = 0x20

	// master line the slave is cascaded on
	cascadeLine = 2
)

// Vector bases of the two controllers, directly above the CPU exceptions.
const (
	PIC1Offset uint8 = 32
	PIC2Offset uint8 = PIC1Offset + 8
)

// InterruptIndex names the hardware interrupt vectors the kernel handles.
type InterruptIndex uint8

const (
	InterruptTimer    InterruptIndex = InterruptIndex(PIC1Offset)
	InterruptKeyboard InterruptIndex = InterruptTimer + 1
)

func (i InterruptIndex) Vector() uint8 { return uint8(i) }

// Line returns the PIC input line the interrupt arrives on.
func (i InterruptIndex) Line() uint8 { return uint8(i) - PIC1Offset }

// ChainedPICs drives the master/slave 8259 pair.
type ChainedPICs struct {
	bus      hal.PortIO
	offset1  uint8
	offset2  uint8
	remapped bool
	acks     [16]atomic.Uint64
}

// NewChainedPICs describes a PIC pair whose lines will surface at
// [offset1, offset1+8) and [offset2, offset2+8). The hardware is not touched
// until Remap.
func NewChainedPICs(bus hal.PortIO, offset1, offset2 uint8) (*ChainedPICs, error) {
	if int(offset2) != int(offset1)+8 || offset1 < 32 || offset1&0x07 != 0 {
		return nil, kerrors.InvalidOffsets(offset1, offset2)
	}
	return &ChainedPICs{bus: bus, offset1: offset1, offset2: offset2}, nil
}

// Offsets returns the master and slave vector bases.
func (p *ChainedPICs) Offsets() (uint8, uint8) { return p.offset1, p.offset2 }

// HandlesInterrupt reports whether vector belongs to either controller.
func (p *ChainedPICs) HandlesInterrupt(vector uint8) bool {
	return p.handlesMaster(vector) || p.handlesSlave(vector)
}

func (p *ChainedPICs) handlesMaster(vector uint8) bool {
	return vector >= p.offset1 && vector < p.offset1+8
}

func (p *ChainedPICs) handlesSlave(vector uint8) bool {
	return vector >= p.offset2 && vector < p.offset2+8
}

// Vector returns the vector a PIC line surfaces at.
func (p *ChainedPICs) Vector(line uint8) uint8 {
	if line >= 8 {
		return p.offset2 + line - 8
	}
	return p.offset1 + line
}

func (p *ChainedPICs) ioWait() {
	p.bus.Out8(waitPort, 0)
}

// Remap reprograms both controllers to the configured offsets, keeping the
// current interrupt masks. It runs once, with interrupts disabled.
func (p *ChainedPICs) Remap() error {
	if p.remapped {
		return kerrors.AlreadyInitialized("PIC remap")
	}
	mask1, mask2 := p.Masks()

	p.bus.Out8(PIC1Command, ICW1Init)
	p.ioWait()
	p.bus.Out8(PIC2Command, ICW1Init)
	p.ioWait()

	p.bus.Out8(PIC1Data, p.offset1)
	p.ioWait()
	p.bus.Out8(PIC2Data, p.offset2)
	p.ioWait()

	// Tell master about slave
	p.bus.Out8(PIC1Data, 1<<cascadeLine)
	p.ioWait()
	p.bus.Out8(PIC2Data, cascadeLine)
	p.ioWait()

	p.bus.Out8(PIC1Data, ICW4_8086)
	p.ioWait()
	p.bus.Out8(PIC2Data, ICW4_8086)
	p.ioWait()

	p.SetMasks(mask1, mask2)
	p.remapped = true
	return nil
}

// Remapped reports whether Remap has run.
func (p *ChainedPICs) Remapped() bool { return p.remapped }

// NotifyEndOfInterrupt re-arms the controllers for vector. It must be the
// last thing a hardware interrupt handler does. Vectors outside both
// controllers are ignored.
func (p *ChainedPICs) NotifyEndOfInterrupt(vector uint8) {
	if !p.HandlesInterrupt(vector) {
		return
	}
	if p.handlesSlave(vector) {
		p.bus.Out8(PIC2Command, PIC_EOI)
		p.acks[8+vector-p.offset2].Add(1)
	} else {
		p.acks[vector-p.offset1].Add(1)
	}
	p.bus.Out8(PIC1Command, PIC_EOI)
}

// Acknowledged returns how many end-of-interrupt notifications vector has
// received.
func (p *ChainedPICs) Acknowledged(vector uint8) uint64 {
	switch {
	case p.handlesMaster(vector):
		return p.acks[vector-p.offset1].Load()
	case p.handlesSlave(vector):
		return p.acks[8+vector-p.offset2].Load()
	}
	return 0
}

// Masks reads both interrupt mask registers.
func (p *ChainedPICs) Masks() (uint8, uint8) {
	return p.bus.In8(PIC1Data), p.bus.In8(PIC2Data)
}

// SetMasks writes both interrupt mask registers. A set bit masks the line.
func (p *ChainedPICs) SetMasks(mask1, mask2 uint8) {
	p.bus.Out8(PIC1Data, mask1)
	p.bus.Out8(PIC2Data, mask2)
}

// EnableOnly masks every line except the given ones. Enabling a slave line
// also enables the cascade line on the master.
func (p *ChainedPICs) EnableOnly(lines ...uint8) {
	mask1, mask2 := uint8(0xFF), uint8(0xFF)
	for _, l := range lines {
		if l >= 8 {
			mask2 &^= 1 << (l - 8)
			mask1 &^= 1 << cascadeLine
		} else {
			mask1 &^= 1 << l
		}
	}
	p.SetMasks(mask1, mask2)
}

// Disable masks every line on both controllers.
func (p *ChainedPICs) Disable() {
	p.SetMasks(0xFF, 0xFF)
}
