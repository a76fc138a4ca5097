package kernel

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/sirreidlos/amarui/internal/console"
	kerrors "github.com/sirreidlos/amarui/internal/errors"
	"github.com/sirreidlos/amarui/internal/runtime/concurrency"
	"github.com/sirreidlos/amarui/internal/runtime/hal"
	"github.com/sirreidlos/amarui/internal/runtime/keyboard"
	"github.com/sirreidlos/amarui/internal/runtime/task"
)

// ============================================================================
// Interrupt core bring-up
// ============================================================================

// Config represents the interrupt core configuration
type Config struct {
	PIC1Offset uint8
	PIC2Offset uint8
	// EnabledLines are the PIC lines left unmasked after the remap.
	EnabledLines []uint8

	// Logger defaults to the global console logger.
	Logger *zerolog.Logger
	// Allow defaults to the console hot-path limiter.
	Allow func(category string) bool
	// Scancodes defaults to keyboard.AddScancode.
	Scancodes func(b byte)
}

// DefaultConfig returns the configuration of the boot kernel: PICs right
// above the exceptions, timer and keyboard enabled.
func DefaultConfig() Config {
	return Config{
		PIC1Offset:   PIC1Offset,
		PIC2Offset:   PIC2Offset,
		EnabledLines: []uint8{InterruptTimer.Line(), InterruptKeyboard.Line()},
	}
}

type stage int

const (
	stageNone stage = iota
	stageGDT
	stagePIC
	stageIDT
	stageEnabled
)

// Kernel owns the interrupt state of one CPU.
type Kernel struct {
	cpu    hal.CPU
	bus    hal.PortIO
	config Config

	pics  *concurrency.SpinMutex[*ChainedPICs]
	tss   *TaskState
	idt   *IDT
	ticks atomic.Uint64
	stage stage
}

// New validates config and prepares a kernel. Nothing touches the hardware
// until Init.
func New(cpu hal.CPU, bus hal.PortIO, config Config) (*Kernel, error) {
	pics, err := NewChainedPICs(bus, config.PIC1Offset, config.PIC2Offset)
	if err != nil {
		return nil, err
	}
	for _, l := range config.EnabledLines {
		if l >= 16 {
			return nil, kerrors.InvalidConfig("enabled_lines", fmt.Sprintf("PIC line %d does not exist", l))
		}
	}
	if config.Allow == nil {
		config.Allow = console.Allow
	}
	if config.Scancodes == nil {
		config.Scancodes = keyboard.AddScancode
	}
	return &Kernel{
		cpu:    cpu,
		bus:    bus,
		config: config,
		pics:   concurrency.NewSpinMutex(pics),
		tss:    NewTaskState(),
	}, nil
}

func (k *Kernel) logger() *zerolog.Logger {
	if k.config.Logger != nil {
		return k.config.Logger
	}
	return console.Log()
}

// Init brings the interrupt core up with interrupts disabled throughout:
// task state segment, PIC remap, descriptor table, and finally sti.
func (k *Kernel) Init() error {
	k.cpu.DisableInterrupts()

	steps := []struct {
		name string
		fn   func() error
	}{
		{"Loading task state segment", k.InitGDT},
		{"Remapping PICs", k.InitPICs},
		{"Loading interrupt descriptor table", k.InitIDT},
		{"Enabling interrupts", k.EnableInterrupts},
	}
	for i, s := range steps {
		k.logger().Debug().Msgf("[%d/%d] %s...", i+1, len(steps), s.name)
		if err := s.fn(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// InitGDT loads the task state segment carrying the interrupt stacks.
func (k *Kernel) InitGDT() error {
	if k.stage >= stageGDT {
		return kerrors.AlreadyInitialized("TSS")
	}
	k.tss.Load(k.cpu)
	k.stage = stageGDT
	return nil
}

// InitPICs remaps the controllers and unmasks the configured lines.
func (k *Kernel) InitPICs() error {
	if k.cpu.InterruptsEnabled() {
		return kerrors.Ordering("PIC remap", "interrupts disabled")
	}
	var err error
	hal.WithoutInterrupts(k.cpu, func() {
		k.pics.With(func(p **ChainedPICs) {
			if err = (*p).Remap(); err != nil {
				return
			}
			(*p).EnableOnly(k.config.EnabledLines...)
		})
	})
	if err != nil {
		return err
	}
	if k.stage < stagePIC {
		k.stage = stagePIC
	}
	return nil
}

// requiredVectors lists every vector the CPU or the enabled PIC lines can
// raise.
func (k *Kernel) requiredVectors() []uint8 {
	vs := ExceptionVectors()
	g := k.pics.Lock()
	pics := *g.Value()
	g.Unlock()
	for _, l := range k.config.EnabledLines {
		if l == cascadeLine {
			continue
		}
		vs = append(vs, pics.Vector(l))
	}
	return vs
}

// InitIDT builds, validates and loads the descriptor table. The PICs must
// already be remapped and the task state segment loaded.
func (k *Kernel) InitIDT() error {
	switch {
	case k.stage < stageGDT:
		return kerrors.Ordering("IDT load", "TSS load")
	case k.stage < stagePIC:
		return kerrors.Ordering("IDT load", "PIC remap")
	case k.stage >= stageIDT:
		return kerrors.AlreadyInitialized("IDT")
	}
	idt := Build(Deps{
		CPU:              k.cpu,
		Bus:              k.bus,
		PICs:             k.pics,
		DoubleFaultStack: DoubleFaultISTIndex,
		Logger:           k.logger,
		Allow:            k.config.Allow,
		Scancodes:        k.config.Scancodes,
		Ticks:            &k.ticks,
	})
	if err := idt.Validate(&k.tss.TaskStateSegment, k.requiredVectors()...); err != nil {
		return err
	}
	idt.Load(k.cpu)
	k.idt = idt
	k.stage = stageIDT
	return nil
}

// EnableInterrupts executes sti once the descriptor table is live.
func (k *Kernel) EnableInterrupts() error {
	if k.stage < stageIDT {
		return kerrors.Ordering("enable interrupts", "IDT load")
	}
	k.stage = stageEnabled
	k.cpu.EnableInterrupts()
	return nil
}

// Ticks returns the number of timer interrupts handled.
func (k *Kernel) Ticks() uint64 { return k.ticks.Load() }

// PICs returns the lock around the controller pair. Normal context must
// take it inside hal.WithoutInterrupts.
func (k *Kernel) PICs() *concurrency.SpinMutex[*ChainedPICs] { return k.pics }

// IDT returns the loaded descriptor table, or nil before InitIDT.
func (k *Kernel) IDT() *IDT { return k.idt }

// TaskState returns the task state segment.
func (k *Kernel) TaskState() *TaskState { return k.tss }

// Fatal logs msg at error level and halts the CPU.
func (k *Kernel) Fatal(msg string) { Fatal(k.cpu, k.logger(), msg) }

// TaskPanicHandler routes a panicking task to the fatal path. It is meant
// for task.WithPanicHandler.
func (k *Kernel) TaskPanicHandler() func(id task.TaskID, r any) {
	return func(id task.TaskID, r any) {
		k.Fatal(fmt.Sprintf("task %d panicked: %v", id, r))
	}
}

var (
	bootMu   sync.Mutex
	instance atomic.Pointer[Kernel]
)

// Boot creates and initializes the global kernel. It fails if one is
// already running.
func Boot(cpu hal.CPU, bus hal.PortIO, config Config) (*Kernel, error) {
	bootMu.Lock()
	defer bootMu.Unlock()
	if instance.Load() != nil {
		return nil, kerrors.AlreadyInitialized("kernel")
	}
	k, err := New(cpu, bus, config)
	if err != nil {
		return nil, err
	}
	if err := k.Init(); err != nil {
		return nil, err
	}
	instance.Store(k)
	return k, nil
}

// Instance returns the global kernel, or nil before Boot.
func Instance() *Kernel { return instance.Load() }

// PICS returns the global PIC lock, or nil before Boot.
func PICS() *concurrency.SpinMutex[*ChainedPICs] {
	if k := instance.Load(); k != nil {
		return k.pics
	}
	return nil
}
