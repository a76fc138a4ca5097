package kernel

import (
	"github.com/rs/zerolog"

	"github.com/sirreidlos/amarui/internal/console"
	"github.com/sirreidlos/amarui/internal/runtime/hal"
)

// HaltLoop disables interrupts and halts the CPU for good.
func HaltLoop(cpu hal.CPU) {
	for {
		cpu.DisableInterrupts()
		cpu.Halt()
	}
}

// Fatal is the terminal path for unrecoverable faults and task panics. The
// console lock is forced open first because the failing code may have been
// holding it.
func Fatal(cpu hal.CPU, logger *zerolog.Logger, msg string) {
	console.ForceUnlock()
	if logger == nil {
		logger = console.Log()
	}
	logger.Error().Msg(msg)
	HaltLoop(cpu)
}
