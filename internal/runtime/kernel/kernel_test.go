package kernel

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirreidlos/amarui/internal/console"
	kerrors "github.com/sirreidlos/amarui/internal/errors"
	"github.com/sirreidlos/amarui/internal/runtime/hal"
	"github.com/sirreidlos/amarui/internal/runtime/hal/sim"
	"github.com/sirreidlos/amarui/internal/runtime/keyboard"
	"github.com/sirreidlos/amarui/internal/runtime/task"
)

// syncBuffer is written from the CPU goroutine and read from the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	m      *sim.Machine
	kb     *sim.PS2Keyboard
	queue  *keyboard.ScancodeQueue
	out    *syncBuffer
	kernel *Kernel
}

func newFixture(t *testing.T, edit ...func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		m:     sim.NewMachine(),
		queue: keyboard.NewScancodeQueue(8, nil),
		out:   &syncBuffer{},
	}
	f.kb = sim.NewPS2Keyboard(f.m)
	logger := console.NewLogger(f.out, zerolog.TraceLevel)

	config := DefaultConfig()
	config.Logger = &logger
	config.Allow = func(string) bool { return true }
	config.Scancodes = func(b byte) { f.queue.Push(b) }
	for _, fn := range edit {
		fn(&config)
	}
	k, err := New(f.m, f.m, config)
	require.NoError(t, err)
	f.kernel = k
	return f
}

func (f *fixture) acknowledged(vector uint8) uint64 {
	g := f.kernel.PICs().Lock()
	defer g.Unlock()
	return (*g.Value()).Acknowledged(vector)
}

func TestInitBringsUpInterrupts(t *testing.T) {
	f := newFixture(t)

	err := f.m.Run(func() {
		require.NoError(t, f.kernel.Init())
		assert.True(t, f.m.InterruptsEnabled())
	})
	require.NoError(t, err)

	master, slave := f.m.PIC().Offsets()
	assert.Equal(t, PIC1Offset, master)
	assert.Equal(t, PIC2Offset, slave)
	m1, m2 := f.m.PIC().Masks()
	assert.Equal(t, uint8(0xFC), m1)
	assert.Equal(t, uint8(0xFF), m2)
	require.NotNil(t, f.kernel.IDT())
	assert.True(t, f.kernel.IDT().Loaded())
}

func TestKeypressReachesQueueOnce(t *testing.T) {
	f := newFixture(t)
	stream, err := f.queue.Stream()
	require.NoError(t, err)

	err = f.m.Run(func() {
		require.NoError(t, f.kernel.Init())
		f.kb.Press(0x1E)
		f.m.EnableInterrupts()
	})
	require.NoError(t, err)

	require.Equal(t, 1, f.queue.Len())
	cx := task.NewContext(task.NewWaker(0, nil))
	b, p := stream.PollNext(cx)
	require.Equal(t, task.Ready, p)
	assert.Equal(t, byte(0x1E), b)
	_, p = stream.PollNext(cx)
	assert.Equal(t, task.Pending, p)

	assert.Equal(t, uint64(1), f.m.PIC().EOICount(InterruptKeyboard.Line()))
	assert.Equal(t, uint64(1), f.acknowledged(InterruptKeyboard.Vector()))
	assert.False(t, f.m.PIC().InService(InterruptKeyboard.Line()))
	assert.Equal(t, 0, f.kb.Pending())
	assert.Contains(t, f.out.String(), "TRACE: scancode 0x1e")
}

func TestKeystrokesDeliveredInOrder(t *testing.T) {
	f := newFixture(t)
	stream, err := f.queue.Stream()
	require.NoError(t, err)

	err = f.m.Run(func() {
		require.NoError(t, f.kernel.Init())
		f.kb.Press(0x23, 0xA3, 0x17)
		f.m.EnableInterrupts()
	})
	require.NoError(t, err)

	cx := task.NewContext(task.NewWaker(0, nil))
	var got []byte
	for {
		b, p := stream.PollNext(cx)
		if p == task.Pending {
			break
		}
		got = append(got, b)
	}
	assert.Equal(t, []byte{0x23, 0xA3, 0x17}, got)
	assert.Equal(t, uint64(3), f.acknowledged(InterruptKeyboard.Vector()))
}

func TestKeypressWakesTaskWithinPass(t *testing.T) {
	f := newFixture(t)
	stream, err := f.queue.Stream()
	require.NoError(t, err)

	var got []byte
	reader := task.FutureFunc(func(cx *task.Context) task.Poll {
		for {
			b, p := stream.PollNext(cx)
			if p == task.Pending {
				return task.Pending
			}
			got = append(got, b)
			if len(got) == 2 {
				return task.Ready
			}
		}
	})
	typist := task.FutureFunc(func(*task.Context) task.Poll {
		f.kb.Press(0x1E, 0x9E)
		return task.Ready
	})
	busy := task.NewNumberLoop("busy", zerolog.Nop()).WithLimit(100)

	err = f.m.Run(func() {
		require.NoError(t, f.kernel.Init())
		ex := task.NewExecutor(f.m)
		ex.Spawn(task.New(reader))
		ex.Spawn(task.New(typist))
		ex.Spawn(task.New(busy))

		ex.RunReadyTasks()
		assert.Equal(t, 0, ex.Len())
		assert.Equal(t, 0, ex.ReadyLen())
	})
	require.NoError(t, err)

	assert.Equal(t, []byte{0x1E, 0x9E}, got)
	assert.Equal(t, uint64(100), busy.Results())
	assert.Equal(t, uint64(2), f.acknowledged(InterruptKeyboard.Vector()))
}

func TestTimerTicks(t *testing.T) {
	f := newFixture(t)
	timer := sim.NewTimer(f.m)

	err := f.m.Run(func() {
		require.NoError(t, f.kernel.Init())
		timer.Tick()
		f.m.Halt()
		timer.Tick()
		f.m.Halt()
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(2), f.kernel.Ticks())
	assert.Equal(t, uint64(2), f.m.PIC().EOICount(InterruptTimer.Line()))
	assert.Contains(t, f.out.String(), "INFO : .")
}

func TestBreakpointResumes(t *testing.T) {
	f := newFixture(t)
	var before, after sim.Registers

	err := f.m.Run(func() {
		require.NoError(t, f.kernel.Init())
		f.m.SetRegisters(sim.Registers{
			RAX: 0x1111, RBX: 0x2222, RCX: 0x3333, RDX: 0x4444,
			RSI: 0x5555, RDI: 0x6666, RBP: 0x7000, RSP: 0x7ff0,
			R8: 8, R9: 9, R10: 10, R11: 11, R12: 12, R13: 13, R14: 14, R15: 15,
			RIP: 0x20_0000, RFLAGS: 0x202, CS: 0x08, SS: 0x10,
		})
		before = f.m.Registers()
		f.m.Int3()
		after = f.m.Registers()
	})
	require.NoError(t, err)

	want := before
	want.RIP++
	if diff := cmp.Diff(want, after); diff != "" {
		t.Fatalf("registers changed across int3 (-want +got):\n%s", diff)
	}
	assert.NotZero(t, after.RFLAGS&hal.FlagInterruptEnable)
	assert.Contains(t, f.out.String(), "TRACE: EXCEPTION: BREAKPOINT\nInterruptStackFrame {")
}

func TestGeneralProtectionFaultIsDiagnostic(t *testing.T) {
	f := newFixture(t)

	err := f.m.Run(func() {
		require.NoError(t, f.kernel.Init())
		f.m.Raise(VectorGeneralProtectionFault, 0x18)
	})
	require.NoError(t, err)
	assert.Contains(t, f.out.String(), "INTERRUPT: GENERAL PROTECTION FAULT\nError Code: 0x18")
}

func TestPageFaultHalts(t *testing.T) {
	f := newFixture(t)

	err := f.m.Run(func() {
		require.NoError(t, f.kernel.Init())
		f.m.PageFault(0xdeadbeef, uint64(CausedByWrite))
		t.Error("page fault handler returned")
	})
	require.ErrorIs(t, err, hal.ErrHalted)
	assert.True(t, f.m.Halted())
	assert.False(t, f.m.InterruptsEnabled())

	out := f.out.String()
	assert.Contains(t, out, "ERROR: EXCEPTION: PAGE FAULT")
	assert.Contains(t, out, "Accessed Address: 0xdeadbeef")
	assert.Contains(t, out, "Error Code: PageFaultErrorCode(CAUSED_BY_WRITE)")
}

func TestDoubleFaultRunsOnDedicatedStack(t *testing.T) {
	f := newFixture(t)

	err := f.m.Run(func() {
		require.NoError(t, f.kernel.Init())
		f.m.Raise(VectorDoubleFault, 0)
	})
	require.ErrorIs(t, err, hal.ErrHalted)
	assert.Equal(t, f.kernel.TaskState().DoubleFaultStackTop(), f.m.LastHandlerStack())
	assert.Contains(t, f.out.String(), "ERROR: EXCEPTION: DOUBLE FAULT")
}

func TestInitOrdering(t *testing.T) {
	f := newFixture(t)
	k := f.kernel

	err := k.EnableInterrupts()
	assert.True(t, kerrors.HasCode(err, kerrors.CodeOrdering), "%v", err)

	err = k.InitIDT()
	assert.True(t, kerrors.HasCode(err, kerrors.CodeOrdering), "%v", err)
	assert.Contains(t, err.Error(), "TSS load")

	require.NoError(t, k.InitGDT())
	err = k.InitIDT()
	assert.True(t, kerrors.HasCode(err, kerrors.CodeOrdering), "%v", err)
	assert.Contains(t, err.Error(), "PIC remap")

	require.NoError(t, k.InitPICs())
	err = k.InitPICs()
	assert.True(t, kerrors.HasCode(err, kerrors.CodeAlreadyInitialized), "%v", err)

	require.NoError(t, k.InitIDT())
	assert.False(t, f.m.InterruptsEnabled())
}

func TestInitRejectsUnhandledLine(t *testing.T) {
	f := newFixture(t, func(c *Config) {
		c.EnabledLines = []uint8{0, 1, 4}
	})

	err := f.m.Run(func() {
		err := f.kernel.Init()
		require.Error(t, err)
		assert.True(t, kerrors.HasCode(err, kerrors.CodeInvalidVector), "%v", err)
		assert.False(t, f.m.InterruptsEnabled())
	})
	require.NoError(t, err)
}

func TestNewRejectsConfig(t *testing.T) {
	m := sim.NewMachine()

	config := DefaultConfig()
	config.PIC1Offset = 0x08
	_, err := New(m, m, config)
	assert.True(t, kerrors.HasCode(err, kerrors.CodeInvalidOffsets), "%v", err)

	config = DefaultConfig()
	config.EnabledLines = []uint8{16}
	_, err = New(m, m, config)
	assert.True(t, kerrors.HasCode(err, kerrors.CodeInvalidConfig), "%v", err)
}

func TestTaskPanicGoesToFatalPath(t *testing.T) {
	f := newFixture(t)

	err := f.m.Run(func() {
		require.NoError(t, f.kernel.Init())
		ex := task.NewExecutor(f.m, task.WithPanicHandler(f.kernel.TaskPanicHandler()))
		ex.Spawn(task.New(task.FutureFunc(func(*task.Context) task.Poll {
			panic("boom")
		})))
		ex.RunReadyTasks()
		t.Error("executor survived a task panic")
	})
	require.ErrorIs(t, err, hal.ErrHalted)

	lines := strings.Split(strings.TrimSpace(f.out.String()), "\n")
	last := lines[len(lines)-1]
	assert.True(t, strings.HasPrefix(last, "ERROR: task "), last)
	assert.True(t, strings.HasSuffix(last, "panicked: boom"), last)
}

func TestBootOnce(t *testing.T) {
	m := sim.NewMachine()
	config := DefaultConfig()
	nop := zerolog.Nop()
	config.Logger = &nop

	err := m.Run(func() {
		k, err := Boot(m, m, config)
		require.NoError(t, err)
		assert.Same(t, k, Instance())
		assert.Same(t, k.PICs(), PICS())

		_, err = Boot(m, m, config)
		assert.True(t, kerrors.HasCode(err, kerrors.CodeAlreadyInitialized), "%v", err)
	})
	require.NoError(t, err)
}
