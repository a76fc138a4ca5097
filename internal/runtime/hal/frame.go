package hal

import (
	"fmt"
	"io"
	"strings"
)

// InterruptStackFrame is what the CPU pushes on gate entry and pops on
// iretq.
type InterruptStackFrame struct {
	InstructionPointer uint64
	CodeSegment        uint64
	CPUFlags           uint64
	StackPointer       uint64
	StackSegment       uint64
}

// DumpTo outputs the frame contents to w.
func (f *InterruptStackFrame) DumpTo(w io.Writer) {
	fmt.Fprintf(w, "InterruptStackFrame {\n")
	fmt.Fprintf(w, "    instruction_pointer: %#x,\n", f.InstructionPointer)
	fmt.Fprintf(w, "    code_segment: %#x,\n", f.CodeSegment)
	fmt.Fprintf(w, "    cpu_flags: %#x,\n", f.CPUFlags)
	fmt.Fprintf(w, "    stack_pointer: %#x,\n", f.StackPointer)
	fmt.Fprintf(w, "    stack_segment: %#x,\n", f.StackSegment)
	fmt.Fprintf(w, "}")
}

func (f *InterruptStackFrame) String() string {
	var sb strings.Builder
	f.DumpTo(&sb)
	return sb.String()
}

// RFLAGS bits referenced by the core.
const (
	FlagInterruptEnable uint64 = 1 << 9
	FlagReserved1       uint64 = 1 << 1
)
