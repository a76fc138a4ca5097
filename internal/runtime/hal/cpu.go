//go:generate mockgen -destination=mock_hal/port_mock.go -package=mock_hal . PortIO

// Package hal is the hardware boundary of the interrupt core.
//
// Kernel code reaches the processor and the I/O port space only through the
// CPU and PortIO interfaces; package sim provides an emulated PC behind them.
package hal

import "errors"

// CPU is the processor state the interrupt core manipulates.
type CPU interface {
	// InterruptsEnabled reports the interrupt flag (RFLAGS.IF).
	InterruptsEnabled() bool
	// EnableInterrupts executes sti. Pending interrupts may be taken
	// immediately afterwards.
	EnableInterrupts()
	// DisableInterrupts executes cli.
	DisableInterrupts()
	// EnableAndHalt executes sti; hlt as one step, so an interrupt that
	// became pending while IF was clear wakes the halt instead of being
	// missed.
	EnableAndHalt()
	// Halt executes hlt. With interrupts disabled it never returns.
	Halt()
	// InterruptWindow takes pending interrupts when IF is set and leaves IF
	// unchanged. Hardware can be interrupted between any two instructions;
	// long-running code calls this where an emulated CPU may do the same.
	InterruptWindow()
	// FaultAddress reads CR2, the linear address of the last page fault.
	FaultAddress() uint64
	// LoadIDT executes lidt for the given table.
	LoadIDT(d Dispatcher)
	// LoadTSS executes ltr for the given task state segment.
	LoadTSS(tss *TaskStateSegment)
}

// Gate describes how the CPU enters the handler for a vector.
type Gate struct {
	Present bool
	// StackIndex selects an interrupt stack table slot; negative means the
	// handler runs on the interrupted stack.
	StackIndex int
}

// Dispatcher is a loaded interrupt descriptor table as seen by the CPU.
type Dispatcher interface {
	Gate(vector uint8) Gate
	// Dispatch runs the handler for vector. errorCode is only meaningful
	// for vectors on which the CPU pushes one.
	Dispatch(vector uint8, frame *InterruptStackFrame, errorCode uint64)
}

// InterruptStackTableSize is the number of IST slots in a 64-bit TSS.
const InterruptStackTableSize = 7

// TaskStateSegment holds the stack pointers the CPU switches to on gate
// entry. Only the interrupt stack table is used by this kernel.
type TaskStateSegment struct {
	InterruptStackTable [InterruptStackTableSize]uint64
}

// WithoutInterrupts runs fn with interrupts disabled and restores the
// previous interrupt flag afterwards. Code outside interrupt context must use
// it around any lock that a handler may also take.
func WithoutInterrupts(cpu CPU, fn func()) {
	if !cpu.InterruptsEnabled() {
		fn()
		return
	}
	cpu.DisableInterrupts()
	defer cpu.EnableInterrupts()
	fn()
}

var (
	// ErrHalted is reported when the CPU halts with interrupts disabled.
	ErrHalted = errors.New("cpu halted with interrupts disabled")
	// ErrTripleFault is reported when a fault occurs while delivering a
	// double fault.
	ErrTripleFault = errors.New("triple fault")
	// ErrStopped is reported when the machine is powered off externally.
	ErrStopped = errors.New("machine stopped")
)

// Unwind is the panic value an emulated CPU uses to leave a code path that
// would never return on hardware (hlt with IF=0, triple fault, power off).
// Code that recovers panics must re-panic an Unwind.
type Unwind struct {
	Reason error
}

func (u Unwind) Error() string { return u.Reason.Error() }

func (u Unwind) Unwrap() error { return u.Reason }

// IsUnwind reports whether a recovered panic value is an Unwind.
func IsUnwind(r any) bool {
	_, ok := r.(Unwind)
	return ok
}
