package task

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirreidlos/amarui/internal/runtime/hal"
	"github.com/sirreidlos/amarui/internal/runtime/hal/sim"
)

// yielder yields n times, then completes.
type yielder struct {
	n     int
	polls int
	waker *Waker
}

func (y *yielder) Poll(cx *Context) Poll {
	y.polls++
	y.waker = cx.Waker()
	if y.n == 0 {
		return Ready
	}
	y.n--
	cx.Waker().Wake()
	return Pending
}

// parked stays pending until its waker is called from outside.
type parked struct {
	waker *Waker
	done  bool
	polls int
}

func (p *parked) Poll(cx *Context) Poll {
	p.polls++
	if p.done {
		return Ready
	}
	p.waker = cx.Waker()
	return Pending
}

func newTestExecutor(t *testing.T, opts ...ExecutorOption) *Executor {
	t.Helper()
	return NewExecutor(sim.NewMachine(), opts...)
}

func TestExecutorRunsYieldingTasksToCompletion(t *testing.T) {
	const tasks, rounds = 8, 5
	e := newTestExecutor(t)
	ys := make([]*yielder, tasks)
	for i := range ys {
		ys[i] = &yielder{n: rounds}
		e.Spawn(New(ys[i]))
	}

	polls := e.RunUntilIdle()

	assert.Equal(t, tasks*(rounds+1), polls)
	for i, y := range ys {
		assert.Equal(t, rounds+1, y.polls, "task %d", i)
	}
	assert.Equal(t, 0, e.Len())
	assert.Equal(t, 0, e.ReadyLen())
	passes, completed := e.Stats()
	assert.Equal(t, uint64(1), passes)
	assert.Equal(t, uint64(tasks), completed)
}

func TestYieldOnceCompletesInOnePass(t *testing.T) {
	e := newTestExecutor(t)
	var got uint32
	n := AsyncNumber()
	tk := New(FutureFunc(func(cx *Context) Poll {
		if n.Poll(cx) == Pending {
			return Pending
		}
		got = n.Value()
		return Ready
	}))
	e.Spawn(tk)

	assert.Equal(t, 2, e.RunReadyTasks())
	assert.Equal(t, uint32(42), got)
	assert.Equal(t, uint64(2), tk.Polls())
	assert.Equal(t, StateCompleted, tk.State())
	assert.False(t, e.Has(tk.ID()))
	assert.Equal(t, 0, e.Len())
	assert.Equal(t, 0, e.ReadyLen())
}

func TestYieldingTasksFinishWithinBound(t *testing.T) {
	for _, tc := range []struct{ tasks, yields int }{
		{1, 1}, {1, 7}, {4, 1}, {8, 5}, {20, 3},
	} {
		e := newTestExecutor(t)
		ys := make([]*yielder, tc.tasks)
		for i := range ys {
			ys[i] = &yielder{n: tc.yields}
			e.Spawn(New(ys[i]))
		}

		passes := 0
		for e.Len() > 0 && passes <= tc.tasks*tc.yields {
			e.RunReadyTasks()
			passes++
		}
		assert.Equal(t, 0, e.Len(), "N=%d K=%d", tc.tasks, tc.yields)
		assert.LessOrEqual(t, passes, tc.tasks*tc.yields, "N=%d K=%d", tc.tasks, tc.yields)
		for i, y := range ys {
			assert.Equal(t, tc.yields+1, y.polls, "N=%d K=%d task %d", tc.tasks, tc.yields, i)
		}
		require.NoError(t, e.CheckInvariants())
	}
}

func TestYieldingTasksInterleave(t *testing.T) {
	e := newTestExecutor(t)
	var order []string
	step := func(name string, yields int) Future {
		return FutureFunc(func(cx *Context) Poll {
			order = append(order, name)
			if yields == 0 {
				return Ready
			}
			yields--
			cx.Waker().Wake()
			return Pending
		})
	}
	e.Spawn(New(step("a", 2)))
	e.Spawn(New(step("b", 1)))

	e.RunReadyTasks()
	assert.Equal(t, []string{"a", "b", "a", "b", "a"}, order)
}

func TestCompletedTaskLeavesNoResidualWake(t *testing.T) {
	e := newTestExecutor(t)
	y := &yielder{n: 1}
	tk := New(y)
	e.Spawn(tk)
	e.RunUntilIdle()

	require.False(t, e.Has(tk.ID()))
	y.waker.Wake()
	assert.Equal(t, 0, e.ReadyLen())
	assert.Equal(t, 0, e.RunReadyTasks())
}

func TestDuplicateWakesCoalesce(t *testing.T) {
	e := newTestExecutor(t)
	p := &parked{}
	e.Spawn(New(p))
	e.RunReadyTasks()
	require.Equal(t, 0, e.ReadyLen())

	for i := 0; i < 5; i++ {
		p.waker.Wake()
	}
	assert.Equal(t, 1, e.ReadyLen())
	require.NoError(t, e.CheckInvariants())

	e.RunReadyTasks()
	assert.Equal(t, 2, p.polls)
}

func TestCompletedWhileQueuedIsDropped(t *testing.T) {
	e := newTestExecutor(t)
	tk := New(FutureFunc(func(cx *Context) Poll {
		cx.Waker().Wake()
		return Ready
	}))
	e.Spawn(tk)

	assert.Equal(t, 1, e.RunReadyTasks(), "the stale id is dropped, not polled")
	assert.False(t, e.Has(tk.ID()))
	assert.Equal(t, 0, e.Len())
	assert.Equal(t, 0, e.ReadyLen())
	require.NoError(t, e.CheckInvariants())
}

func TestSpawnDuplicateIDPanics(t *testing.T) {
	e := newTestExecutor(t)
	tk := New(&parked{})
	e.Spawn(tk)
	assert.Panics(t, func() { e.Spawn(tk) })
}

func TestSpawnBeyondCapacityPanics(t *testing.T) {
	e := newTestExecutor(t, WithQueueCapacity(2))
	e.Spawn(New(&parked{}))
	e.Spawn(New(&parked{}))
	assert.PanicsWithValue(t, "task queue full", func() { e.Spawn(New(&parked{})) })
}

func TestTaskPanicEscalates(t *testing.T) {
	var gotID TaskID
	var gotValue any
	e := newTestExecutor(t, WithPanicHandler(func(id TaskID, r any) {
		gotID, gotValue = id, r
	}))
	tk := New(FutureFunc(func(*Context) Poll { panic("boom") }))
	e.Spawn(tk)
	e.RunUntilIdle()

	assert.Equal(t, tk.ID(), gotID)
	assert.Equal(t, "boom", gotValue)
	assert.Equal(t, 0, e.Len())

	def := newTestExecutor(t)
	def.Spawn(New(FutureFunc(func(*Context) Poll { panic("boom") })))
	assert.Panics(t, func() { def.RunUntilIdle() })
}

func TestUnwindIsNotTreatedAsTaskPanic(t *testing.T) {
	called := false
	e := newTestExecutor(t, WithPanicHandler(func(TaskID, any) { called = true }))
	unwind := hal.Unwind{Reason: hal.ErrHalted}
	e.Spawn(New(FutureFunc(func(*Context) Poll { panic(unwind) })))
	assert.PanicsWithValue(t, unwind, func() { e.RunReadyTasks() })
	assert.False(t, called)
}

func TestNumberLoopStopsAtLimit(t *testing.T) {
	e := newTestExecutor(t)
	loop := NewNumberLoop("task 1", zerolog.Nop()).WithLimit(10)
	tk := NewNamed("numbers", loop)
	e.Spawn(tk)

	e.RunReadyTasks()
	assert.Equal(t, uint64(10), loop.Results())
	assert.Equal(t, uint32(42), loop.Last())
	assert.Equal(t, uint64(11), tk.Polls())
	assert.Equal(t, 0, e.Len())
	require.NoError(t, e.CheckInvariants())
}

func TestNumberLoopsShareThePass(t *testing.T) {
	e := newTestExecutor(t)
	a := NewNumberLoop("task 1", zerolog.Nop()).WithLimit(3)
	b := NewNumberLoop("task 2", zerolog.Nop()).WithLimit(5)
	e.Spawn(New(a))
	e.Spawn(New(b))

	assert.Equal(t, 4+6, e.RunReadyTasks())
	assert.Equal(t, uint64(3), a.Results())
	assert.Equal(t, uint64(5), b.Results())
	assert.Equal(t, 0, e.Len())
}

func TestSleepIfIdleSkipsHaltWhenReady(t *testing.T) {
	m := sim.NewMachine()
	e := NewExecutor(m)
	e.Spawn(New(&parked{}))

	require.NoError(t, m.Run(e.SleepIfIdle))
	assert.True(t, m.InterruptsEnabled())
	assert.False(t, m.Halted())
}

func TestSleepIfIdleHaltsWhenEmpty(t *testing.T) {
	m := sim.NewMachine()
	e := NewExecutor(m)
	done := make(chan error, 1)
	go func() { done <- m.Run(e.SleepIfIdle) }()

	select {
	case err := <-done:
		t.Fatalf("idle executor returned without an interrupt: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	m.Stop()
	assert.ErrorIs(t, <-done, hal.ErrStopped)
}
