package sim

import (
	"context"
	"time"
)

const timerLine = 0

// Timer stands in for the PIT channel 0 output wired to IRQ 0.
type Timer struct {
	m *Machine
}

// NewTimer connects a timer to m.
func NewTimer(m *Machine) *Timer {
	return &Timer{m: m}
}

// Tick asserts IRQ 0 once.
func (t *Timer) Tick() { t.m.RaiseIRQ(timerLine) }

// Run ticks at hz until ctx is done.
func (t *Timer) Run(ctx context.Context, hz int) error {
	if hz <= 0 {
		hz = 18
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.Tick()
		}
	}
}
