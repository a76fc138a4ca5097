// Package sim emulates the parts of a single-core PC the interrupt core talks
// to: the CPU interrupt machinery, the chained 8259 PICs, a PS/2 keyboard
// controller, a 16550 UART and a periodic timer.
//
// Handlers always run on the goroutine executing Machine.Run, never
// concurrently with the code they interrupt. Devices raise lines from any
// goroutine; the PIC latches them until the CPU reaches an interrupt window
// (sti, sti;hlt, hlt) with the interrupt flag set.
package sim

import (
	"sync"
	"sync/atomic"

	"github.com/sirreidlos/amarui/internal/runtime/hal"
)

// Architectural vectors the emulated CPU itself cares about.
const (
	vecDivideError       = 0
	vecDoubleFault       = 8
	vecInvalidTSS        = 10
	vecSegmentNotPresent = 11
	vecStackSegment      = 12
	vecGeneralProtection = 13
	vecPageFault         = 14
)

// Device is something mapped into the I/O port space.
type Device interface {
	In8(port uint16) uint8
	Out8(port uint16, value uint8)
}

// Registers is the architectural state visible across an interrupt.
type Registers struct {
	RAX, RBX, RCX, RDX uint64
	RSI, RDI, RBP, RSP uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64
	RIP, RFLAGS        uint64
	CS, SS             uint64
}

// Machine is an emulated single-core PC. It implements hal.CPU and
// hal.PortIO.
type Machine struct {
	mu      sync.Mutex
	ifFlag  bool
	regs    Registers
	cr2     uint64
	idt     hal.Dispatcher
	tss     *hal.TaskStateSegment
	devices map[uint16]Device

	// vectors whose handlers are currently on the stack, innermost last
	inFlight      []uint8
	lastHandlerSP uint64

	pic *PIC

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	halted   atomic.Bool
	running  atomic.Bool
}

var (
	_ hal.CPU    = (*Machine)(nil)
	_ hal.PortIO = (*Machine)(nil)
)

// NewMachine returns a powered-on machine with interrupts disabled and the
// PICs wired at their legacy ports.
func NewMachine() *Machine {
	m := &Machine{
		devices: make(map[uint16]Device),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		regs: Registers{
			RIP:    0x20_0000,
			RSP:    0x7_0000,
			RFLAGS: hal.FlagReserved1,
			CS:     0x08,
			SS:     0x10,
		},
	}
	m.pic = newPIC()
	m.Attach(m.pic, PIC1Command, PIC1Data, PIC2Command, PIC2Data)
	return m
}

// Attach maps dev at the given ports.
func (m *Machine) Attach(dev Device, ports ...uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range ports {
		m.devices[p] = dev
	}
}

// PIC returns the emulated interrupt controller pair.
func (m *Machine) PIC() *PIC { return m.pic }

// Run executes fn as the CPU's instruction stream. It returns nil when fn
// returns, or the reason the CPU stopped executing (hal.ErrHalted,
// hal.ErrTripleFault, hal.ErrStopped).
func (m *Machine) Run(fn func()) (err error) {
	if !m.running.CompareAndSwap(false, true) {
		panic("sim: Run called while the CPU is already running")
	}
	defer m.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			u, ok := r.(hal.Unwind)
			if !ok {
				panic(r)
			}
			err = u.Reason
		}
	}()
	fn()
	return nil
}

// Stop powers the machine off. The CPU leaves Run at its next interrupt
// window or halt.
func (m *Machine) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Halted reports whether the CPU executed hlt with interrupts disabled.
func (m *Machine) Halted() bool { return m.halted.Load() }

// Registers returns a copy of the register file.
func (m *Machine) Registers() Registers {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.regs
	if m.ifFlag {
		r.RFLAGS |= hal.FlagInterruptEnable
	} else {
		r.RFLAGS &^= hal.FlagInterruptEnable
	}
	return r
}

// SetRegisters replaces the register file, except for the interrupt flag.
func (m *Machine) SetRegisters(r Registers) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs = r
}

// LastHandlerStack returns the stack pointer the most recent handler was
// entered with.
func (m *Machine) LastHandlerStack() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHandlerSP
}

// RaiseIRQ asserts an interrupt line. Safe from any goroutine.
func (m *Machine) RaiseIRQ(line uint8) {
	m.pic.raise(line)
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// hal.CPU

func (m *Machine) InterruptsEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ifFlag
}

func (m *Machine) EnableInterrupts() {
	m.setIF(true)
	m.serviceInterrupts()
}

func (m *Machine) DisableInterrupts() { m.setIF(false) }

func (m *Machine) EnableAndHalt() {
	m.setIF(true)
	m.haltUntilInterrupt()
}

func (m *Machine) Halt() {
	if !m.InterruptsEnabled() {
		m.halted.Store(true)
		m.unwind(hal.ErrHalted)
	}
	m.haltUntilInterrupt()
}

func (m *Machine) InterruptWindow() { m.serviceInterrupts() }

func (m *Machine) FaultAddress() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cr2
}

func (m *Machine) LoadIDT(d hal.Dispatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idt = d
}

func (m *Machine) LoadTSS(tss *hal.TaskStateSegment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tss = tss
}

// hal.PortIO

func (m *Machine) In8(port uint16) uint8 {
	m.mu.Lock()
	dev := m.devices[port]
	m.mu.Unlock()
	if dev == nil {
		return 0xFF
	}
	return dev.In8(port)
}

func (m *Machine) Out8(port uint16, value uint8) {
	m.mu.Lock()
	dev := m.devices[port]
	m.mu.Unlock()
	if dev != nil {
		dev.Out8(port, value)
	}
}

// Exceptions raised by the instruction stream. These must be called from
// inside Run.

// Int3 executes a breakpoint instruction.
func (m *Machine) Int3() {
	m.mu.Lock()
	m.regs.RIP++
	m.mu.Unlock()
	m.deliver(3, 0)
}

// PageFault faults on addr with the given page fault error code.
func (m *Machine) PageFault(addr uint64, code uint64) {
	m.mu.Lock()
	m.cr2 = addr
	m.mu.Unlock()
	m.deliver(vecPageFault, code)
}

// Raise delivers an exception for vector as if the current instruction
// faulted with the given error code.
func (m *Machine) Raise(vector uint8, errorCode uint64) {
	m.deliver(vector, errorCode)
}

func (m *Machine) setIF(v bool) {
	m.mu.Lock()
	m.ifFlag = v
	m.mu.Unlock()
}

func (m *Machine) unwind(reason error) {
	panic(hal.Unwind{Reason: reason})
}

func (m *Machine) checkStopped() {
	select {
	case <-m.stop:
		m.unwind(hal.ErrStopped)
	default:
	}
}

// serviceInterrupts takes every deliverable IRQ while IF is set and returns
// how many were handled.
func (m *Machine) serviceInterrupts() int {
	n := 0
	for {
		m.checkStopped()
		if !m.InterruptsEnabled() {
			return n
		}
		vector, ok := m.pic.acknowledge()
		if !ok {
			return n
		}
		m.deliver(vector, 0)
		n++
	}
}

// haltUntilInterrupt returns after at least one interrupt was handled.
func (m *Machine) haltUntilInterrupt() {
	for m.serviceInterrupts() == 0 {
		select {
		case <-m.wake:
		case <-m.stop:
			m.unwind(hal.ErrStopped)
		}
	}
}

func isContributory(v uint8) bool {
	switch v {
	case vecDivideError, vecInvalidTSS, vecSegmentNotPresent, vecStackSegment, vecGeneralProtection:
		return true
	}
	return false
}

// escalate applies the double fault rules for an exception raised while the
// handler for prev is running.
func escalate(prev, next uint8) bool {
	switch {
	case isContributory(prev) && isContributory(next):
		return true
	case prev == vecPageFault && (next == vecPageFault || isContributory(next)):
		return true
	}
	return false
}

func (m *Machine) deliver(vector uint8, errorCode uint64) {
	m.mu.Lock()
	idt, tss := m.idt, m.tss
	if n := len(m.inFlight); n > 0 && vector < 32 {
		prev := m.inFlight[n-1]
		if prev == vecDoubleFault {
			m.mu.Unlock()
			m.unwind(hal.ErrTripleFault)
		}
		if escalate(prev, vector) {
			vector, errorCode = vecDoubleFault, 0
		}
	}
	m.mu.Unlock()

	if idt == nil {
		m.unwind(hal.ErrTripleFault)
	}
	gate := idt.Gate(vector)
	if !gate.Present {
		switch vector {
		case vecDoubleFault:
			m.unwind(hal.ErrTripleFault)
		case vecGeneralProtection:
			m.deliver(vecDoubleFault, 0)
		default:
			// #GP with the IDT flag and the offending vector as selector
			m.deliver(vecGeneralProtection, uint64(vector)<<3|2)
		}
		return
	}

	m.mu.Lock()
	sp := m.regs.RSP
	if gate.StackIndex >= 0 {
		if tss == nil || gate.StackIndex >= hal.InterruptStackTableSize || tss.InterruptStackTable[gate.StackIndex] == 0 {
			m.mu.Unlock()
			m.unwind(hal.ErrTripleFault)
		}
		sp = tss.InterruptStackTable[gate.StackIndex]
	}
	flags := m.regs.RFLAGS &^ hal.FlagInterruptEnable
	if m.ifFlag {
		flags |= hal.FlagInterruptEnable
	}
	frame := hal.InterruptStackFrame{
		InstructionPointer: m.regs.RIP,
		CodeSegment:        m.regs.CS,
		CPUFlags:           flags,
		StackPointer:       m.regs.RSP,
		StackSegment:       m.regs.SS,
	}
	m.lastHandlerSP = sp
	m.regs.RSP = sp
	m.ifFlag = false
	m.inFlight = append(m.inFlight, vector)
	m.mu.Unlock()

	idt.Dispatch(vector, &frame, errorCode)

	// iretq
	m.mu.Lock()
	m.inFlight = m.inFlight[:len(m.inFlight)-1]
	m.regs.RIP = frame.InstructionPointer
	m.regs.CS = frame.CodeSegment
	m.regs.RSP = frame.StackPointer
	m.regs.SS = frame.StackSegment
	m.regs.RFLAGS = frame.CPUFlags &^ hal.FlagInterruptEnable
	m.ifFlag = frame.CPUFlags&hal.FlagInterruptEnable != 0
	m.mu.Unlock()
}
