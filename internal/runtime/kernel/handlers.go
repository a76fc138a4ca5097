package kernel

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/sirreidlos/amarui/internal/runtime/concurrency"
	"github.com/sirreidlos/amarui/internal/runtime/hal"
)

// PS2DataPort is the keyboard controller's output buffer.
const PS2DataPort uint16 = 0x60

// PageFaultErrorCode is the error code the CPU pushes for a page fault.
type PageFaultErrorCode uint64

const (
	ProtectionViolation PageFaultErrorCode = 1 << 0
	CausedByWrite       PageFaultErrorCode = 1 << 1
	UserMode            PageFaultErrorCode = 1 << 2
	MalformedTable      PageFaultErrorCode = 1 << 3
	InstructionFetch    PageFaultErrorCode = 1 << 4
	ProtectionKey       PageFaultErrorCode = 1 << 5
	ShadowStack         PageFaultErrorCode = 1 << 6
	SGX                 PageFaultErrorCode = 1 << 15
)

var pageFaultFlagNames = []struct {
	flag PageFaultErrorCode
	name string
}{
	{ProtectionViolation, "PROTECTION_VIOLATION"},
	{CausedByWrite, "CAUSED_BY_WRITE"},
	{UserMode, "USER_MODE"},
	{MalformedTable, "MALFORMED_TABLE"},
	{InstructionFetch, "INSTRUCTION_FETCH"},
	{ProtectionKey, "PROTECTION_KEY"},
	{ShadowStack, "SHADOW_STACK"},
	{SGX, "SGX"},
}

// Has reports whether every bit of flag is set.
func (c PageFaultErrorCode) Has(flag PageFaultErrorCode) bool { return c&flag == flag }

func (c PageFaultErrorCode) String() string {
	var parts []string
	rest := c
	for _, f := range pageFaultFlagNames {
		if c&f.flag != 0 {
			parts = append(parts, f.name)
			rest &^= f.flag
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("%#x", uint64(rest)))
	}
	if len(parts) == 0 {
		return "PageFaultErrorCode(0x0)"
	}
	return "PageFaultErrorCode(" + strings.Join(parts, " | ") + ")"
}

// Deps is what the handlers reach outside the table.
type Deps struct {
	CPU  hal.CPU
	Bus  hal.PortIO
	PICs *concurrency.SpinMutex[*ChainedPICs]
	// DoubleFaultStack is the interrupt stack table slot of the double
	// fault handler.
	DoubleFaultStack int
	// Logger is resolved on every record so handlers follow the global
	// logger once it is installed.
	Logger func() *zerolog.Logger
	// Allow rate limits hot-path records per category.
	Allow func(category string) bool
	// Scancodes receives every byte read from the keyboard controller.
	Scancodes func(b byte)
	Ticks     *atomic.Uint64
}

type handlers struct {
	Deps
}

// Build returns a table with every exception handler, the timer handler at
// InterruptTimer and the keyboard handler at InterruptKeyboard.
func Build(deps Deps) *IDT {
	h := &handlers{Deps: deps}
	if h.Allow == nil {
		h.Allow = func(string) bool { return true }
	}
	if h.Scancodes == nil {
		h.Scancodes = func(byte) {}
	}
	if h.Ticks == nil {
		h.Ticks = new(atomic.Uint64)
	}

	idt := NewIDT()
	for _, v := range ExceptionVectors() {
		v := v // per-iteration copy; go.mod targets go1.21 loop semantics
		switch v {
		case VectorDoubleFault, VectorMachineCheck, VectorPageFault:
			continue
		}
		if PushesErrorCode(v) {
			idt.SetHandlerWithCode(v, func(frame *hal.InterruptStackFrame, code uint64) {
				h.diagnosticWithCode(v, frame, code)
			})
		} else {
			idt.SetHandler(v, func(frame *hal.InterruptStackFrame) {
				h.diagnostic(v, frame)
			})
		}
	}
	idt.SetHandlerWithCode(VectorDoubleFault, h.doubleFault)
	idt.SetStackIndex(VectorDoubleFault, deps.DoubleFaultStack)
	idt.SetHandler(VectorMachineCheck, h.machineCheck)
	idt.SetHandlerWithCode(VectorPageFault, h.pageFault)

	idt.SetHandler(InterruptTimer.Vector(), h.timer)
	idt.SetHandler(InterruptKeyboard.Vector(), h.keyboard)
	return idt
}

func (h *handlers) log() *zerolog.Logger {
	if h.Logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return h.Logger()
}

func (h *handlers) diagnostic(vector uint8, frame *hal.InterruptStackFrame) {
	if vector == VectorBreakpoint {
		h.log().Trace().Msgf("EXCEPTION: BREAKPOINT\n%v", frame)
		return
	}
	h.log().Trace().Msgf("INTERRUPT: %s\n%v", ExceptionName(vector), frame)
}

func (h *handlers) diagnosticWithCode(vector uint8, frame *hal.InterruptStackFrame, code uint64) {
	h.log().Trace().Msgf("INTERRUPT: %s\nError Code: %#x\n%v", ExceptionName(vector), code, frame)
}

func (h *handlers) doubleFault(frame *hal.InterruptStackFrame, code uint64) {
	Fatal(h.CPU, h.log(), fmt.Sprintf("EXCEPTION: DOUBLE FAULT\n%v", frame))
}

func (h *handlers) machineCheck(frame *hal.InterruptStackFrame) {
	Fatal(h.CPU, h.log(), fmt.Sprintf("EXCEPTION: MACHINE CHECK\n%v", frame))
}

func (h *handlers) pageFault(frame *hal.InterruptStackFrame, code uint64) {
	l := h.log()
	l.Error().Msg("EXCEPTION: PAGE FAULT")
	l.Error().Msgf("Accessed Address: %#x", h.CPU.FaultAddress())
	l.Error().Msgf("Error Code: %v", PageFaultErrorCode(code))
	l.Error().Msgf("%v", frame)
	HaltLoop(h.CPU)
}

func (h *handlers) timer(*hal.InterruptStackFrame) {
	h.Ticks.Add(1)
	if h.Allow("timer") {
		h.log().Info().Msg(".")
	}
	h.endOfInterrupt(InterruptTimer.Vector())
}

func (h *handlers) keyboard(*hal.InterruptStackFrame) {
	scancode := h.Bus.In8(PS2DataPort)
	if h.Allow("keyboard") {
		h.log().Trace().Msgf("scancode %#02x", scancode)
	}
	h.Scancodes(scancode)
	h.endOfInterrupt(InterruptKeyboard.Vector())
}

// endOfInterrupt runs in interrupt context, so the PIC lock is taken
// without touching the interrupt flag.
func (h *handlers) endOfInterrupt(vector uint8) {
	if h.PICs == nil {
		return
	}
	g := h.PICs.Lock()
	(*g.Value()).NotifyEndOfInterrupt(vector)
	g.Unlock()
}
