// Package kernel provides the interrupt core: the chained PIC driver, the
// interrupt descriptor table and its handlers, and the boot sequence that
// brings them up in order.
package kernel

import (
	"fmt"

	kerrors "github.com/sirreidlos/amarui/internal/errors"
	"github.com/sirreidlos/amarui/internal/runtime/hal"
)

// ============================================================================
// Interrupt descriptor table
// ============================================================================

// HandlerFunc handles a vector on which the CPU pushes no error code.
type HandlerFunc func(frame *hal.InterruptStackFrame)

// HandlerWithCodeFunc handles a vector on which the CPU pushes an error code.
type HandlerWithCodeFunc func(frame *hal.InterruptStackFrame, errorCode uint64)

// EntryKind is the handler signature installed for a vector.
type EntryKind uint8

const (
	KindNone EntryKind = iota
	KindPlain
	KindWithCode
)

func (k EntryKind) String() string {
	switch k {
	case KindPlain:
		return "handler"
	case KindWithCode:
		return "handler with error code"
	}
	return "none"
}

// Architectural exception vectors.
const (
	VectorDivideError            uint8 = 0
	VectorDebug                  uint8 = 1
	VectorNonMaskableInterrupt   uint8 = 2
	VectorBreakpoint             uint8 = 3
	VectorOverflow               uint8 = 4
	VectorBoundRangeExceeded     uint8 = 5
	VectorInvalidOpcode          uint8 = 6
	VectorDeviceNotAvailable     uint8 = 7
	VectorDoubleFault            uint8 = 8
	VectorInvalidTSS             uint8 = 10
	VectorSegmentNotPresent      uint8 = 11
	VectorStackSegmentFault      uint8 = 12
	VectorGeneralProtectionFault uint8 = 13
	VectorPageFault              uint8 = 14
	VectorX87FloatingPoint       uint8 = 16
	VectorAlignmentCheck         uint8 = 17
	VectorMachineCheck           uint8 = 18
	VectorSIMDFloatingPoint      uint8 = 19
	VectorVirtualization         uint8 = 20
	VectorControlProtection      uint8 = 21
	VectorHypervisorInjection    uint8 = 28
	VectorVMMCommunication       uint8 = 29
	VectorSecurityException      uint8 = 30
)

const (
	firstUserVector      uint8 = 32
	exceptionVectorCount       = int(firstUserVector)
	noStack                    = -1
)

var exceptionNames = [exceptionVectorCount]string{
	VectorDivideError:            "DIVIDE ERROR",
	VectorDebug:                  "DEBUG",
	VectorNonMaskableInterrupt:   "NON MASKABLE INTERRUPT",
	VectorBreakpoint:             "BREAKPOINT",
	VectorOverflow:               "OVERFLOW",
	VectorBoundRangeExceeded:     "BOUND RANGE EXCEEDED",
	VectorInvalidOpcode:          "INVALID OPCODE",
	VectorDeviceNotAvailable:     "DEVICE NOT AVAILABLE",
	VectorDoubleFault:            "DOUBLE FAULT",
	VectorInvalidTSS:             "INVALID TSS",
	VectorSegmentNotPresent:      "SEGMENT NOT PRESENT",
	VectorStackSegmentFault:      "STACK SEGMENT FAULT",
	VectorGeneralProtectionFault: "GENERAL PROTECTION FAULT",
	VectorPageFault:              "PAGE FAULT",
	VectorX87FloatingPoint:       "X87 FLOATING POINT",
	VectorAlignmentCheck:         "ALIGNMENT CHECK",
	VectorMachineCheck:           "MACHINE CHECK",
	VectorSIMDFloatingPoint:      "SIMD FLOATING POINT",
	VectorVirtualization:         "VIRTUALIZATION",
	VectorControlProtection:      "CONTROL PROTECTION",
	VectorHypervisorInjection:    "HYPERVISOR INJECTION",
	VectorVMMCommunication:       "VMM COMMUNICATION",
	VectorSecurityException:      "SECURITY EXCEPTION",
}

// ExceptionName returns the upper-case name of an exception vector, or
// "VECTOR n" for anything else.
func ExceptionName(vector uint8) string {
	if int(vector) < exceptionVectorCount && exceptionNames[vector] != "" {
		return exceptionNames[vector]
	}
	return fmt.Sprintf("VECTOR %d", vector)
}

// PushesErrorCode reports whether the CPU pushes an error code for vector.
func PushesErrorCode(vector uint8) bool {
	switch vector {
	case VectorDoubleFault, VectorInvalidTSS, VectorSegmentNotPresent,
		VectorStackSegmentFault, VectorGeneralProtectionFault, VectorPageFault,
		VectorAlignmentCheck, VectorControlProtection, VectorVMMCommunication,
		VectorSecurityException:
		return true
	}
	return false
}

// IsReserved reports whether vector is an architecturally reserved
// exception slot that must never get a handler.
func IsReserved(vector uint8) bool {
	switch {
	case vector == 9, vector == 15, vector == 31:
		return true
	case vector >= 22 && vector <= 27:
		return true
	}
	return false
}

// ExceptionVectors returns every non-reserved exception vector.
func ExceptionVectors() []uint8 {
	var vs []uint8
	for v := uint8(0); v < firstUserVector; v++ {
		if !IsReserved(v) {
			vs = append(vs, v)
		}
	}
	return vs
}

// Entry is one slot of the table.
type Entry struct {
	Vector          uint8
	Kind            EntryKind
	Handler         HandlerFunc
	HandlerWithCode HandlerWithCodeFunc
	// StackIndex is the interrupt stack table slot, or -1
	StackIndex int
	Present    bool
}

// IDT is a fixed table of 256 entries. Once loaded it is sealed and every
// further mutation panics.
type IDT struct {
	entries [256]Entry
	sealed  bool
}

var _ hal.Dispatcher = (*IDT)(nil)

// NewIDT returns a table with no entries present.
func NewIDT() *IDT {
	idt := &IDT{}
	for i := range idt.entries {
		idt.entries[i] = Entry{Vector: uint8(i), StackIndex: noStack}
	}
	return idt
}

func (idt *IDT) checkSettable(vector uint8) {
	if idt.sealed {
		panic(fmt.Sprintf("IDT: vector %d modified after load", vector))
	}
	if IsReserved(vector) {
		panic(fmt.Sprintf("IDT: vector %d is reserved", vector))
	}
}

// SetHandler installs a handler for a vector without an error code. It
// panics on an error-code vector, a reserved vector, or a sealed table.
func (idt *IDT) SetHandler(vector uint8, h HandlerFunc) {
	idt.checkSettable(vector)
	if PushesErrorCode(vector) {
		panic(fmt.Sprintf("IDT: vector %d (%s) pushes an error code", vector, ExceptionName(vector)))
	}
	e := &idt.entries[vector]
	e.Kind, e.Handler, e.HandlerWithCode, e.Present = KindPlain, h, nil, h != nil
}

// SetHandlerWithCode installs a handler for a vector with an error code. It
// panics on any other vector or on a sealed table.
func (idt *IDT) SetHandlerWithCode(vector uint8, h HandlerWithCodeFunc) {
	idt.checkSettable(vector)
	if !PushesErrorCode(vector) {
		panic(fmt.Sprintf("IDT: vector %d (%s) pushes no error code", vector, ExceptionName(vector)))
	}
	e := &idt.entries[vector]
	e.Kind, e.Handler, e.HandlerWithCode, e.Present = KindWithCode, nil, h, h != nil
}

// SetStackIndex makes the CPU switch to interrupt stack table slot index
// before running the handler for vector.
func (idt *IDT) SetStackIndex(vector uint8, index int) {
	idt.checkSettable(vector)
	if !idt.entries[vector].Present {
		panic(fmt.Sprintf("IDT: vector %d has no handler", vector))
	}
	if index < 0 || index >= hal.InterruptStackTableSize {
		panic(fmt.Sprintf("IDT: stack index %d out of range", index))
	}
	idt.entries[vector].StackIndex = index
}

// Entry returns a copy of the slot for vector.
func (idt *IDT) Entry(vector uint8) Entry { return idt.entries[vector] }

// Validate checks the table before it is loaded: every vector in required
// has a handler, every handler matches its vector's error code convention,
// and every stack index refers to a populated slot of tss.
func (idt *IDT) Validate(tss *hal.TaskStateSegment, required ...uint8) error {
	for _, v := range required {
		if !idt.entries[v].Present {
			return kerrors.InvalidVector(v, "no handler installed")
		}
	}
	for i := range idt.entries {
		e := &idt.entries[i]
		if !e.Present {
			continue
		}
		switch {
		case IsReserved(e.Vector):
			return kerrors.InvalidVector(e.Vector, "reserved vector has a handler")
		case PushesErrorCode(e.Vector) && e.Kind != KindWithCode:
			return kerrors.InvalidVector(e.Vector, "handler must accept an error code")
		case !PushesErrorCode(e.Vector) && e.Kind != KindPlain:
			return kerrors.InvalidVector(e.Vector, "handler must not accept an error code")
		}
		if e.StackIndex == noStack {
			continue
		}
		if tss == nil || tss.InterruptStackTable[e.StackIndex] == 0 {
			return kerrors.InvalidVector(e.Vector, fmt.Sprintf("interrupt stack %d is not allocated", e.StackIndex))
		}
	}
	return nil
}

// Load activates the table on cpu and seals it.
func (idt *IDT) Load(cpu hal.CPU) {
	idt.sealed = true
	cpu.LoadIDT(idt)
}

// Loaded reports whether Load has run.
func (idt *IDT) Loaded() bool { return idt.sealed }

// Gate implements hal.Dispatcher.
func (idt *IDT) Gate(vector uint8) hal.Gate {
	e := &idt.entries[vector]
	return hal.Gate{Present: e.Present, StackIndex: e.StackIndex}
}

// Dispatch implements hal.Dispatcher.
func (idt *IDT) Dispatch(vector uint8, frame *hal.InterruptStackFrame, errorCode uint64) {
	e := &idt.entries[vector]
	switch e.Kind {
	case KindPlain:
		e.Handler(frame)
	case KindWithCode:
		e.HandlerWithCode(frame, errorCode)
	}
}
