package kernel

import (
	"unsafe"

	"github.com/sirreidlos/amarui/internal/runtime/hal"
)

// DoubleFaultISTIndex is the interrupt stack table slot the double fault
// handler runs on, so a kernel stack overflow still reaches a handler.
const DoubleFaultISTIndex = 0

const doubleFaultStackSize = 4096 * 5

// TaskState is the task state segment together with the memory behind its
// interrupt stacks.
type TaskState struct {
	hal.TaskStateSegment
	doubleFaultStack [doubleFaultStackSize]byte
}

// NewTaskState allocates the double fault stack and points its interrupt
// stack table slot at the top, since stacks grow down.
func NewTaskState() *TaskState {
	ts := &TaskState{}
	start := uint64(uintptr(unsafe.Pointer(&ts.doubleFaultStack[0])))
	ts.InterruptStackTable[DoubleFaultISTIndex] = start + doubleFaultStackSize
	return ts
}

// DoubleFaultStackTop returns the initial stack pointer of the double fault
// handler.
func (ts *TaskState) DoubleFaultStackTop() uint64 {
	return ts.InterruptStackTable[DoubleFaultISTIndex]
}

// Load executes ltr for the segment.
func (ts *TaskState) Load(cpu hal.CPU) {
	cpu.LoadTSS(&ts.TaskStateSegment)
}
