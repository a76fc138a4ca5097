package task

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/sirreidlos/amarui/internal/runtime/concurrency"
	"github.com/sirreidlos/amarui/internal/runtime/hal"
)

// DefaultQueueCapacity bounds the ready queue and therefore the number of
// live tasks.
const DefaultQueueCapacity = 100

// Wake states of an owned task. A task id is in the ready queue exactly when
// its state is wakeQueued.
const (
	wakeIdle uint32 = iota
	wakeQueued
	wakeDone
)

// slot is the executor's bookkeeping for one owned task. Wakers hold a
// pointer to it; only the wake state is touched outside the executor.
type slot struct {
	task  *Task
	wake  atomic.Uint32
	waker *Waker
	cx    *Context
}

// Executor is a single-threaded cooperative scheduler. Only the goroutine
// running the executor touches its task table; interrupt handlers reach it
// solely through Waker.Wake.
type Executor struct {
	cpu      hal.CPU
	tasks    map[TaskID]*slot
	queue    *concurrency.RingQueue[TaskID]
	capacity int
	logger   zerolog.Logger
	onPanic  func(id TaskID, r any)

	passes    uint64
	completed uint64
}

// ExecutorOption configures an executor
type ExecutorOption func(*Executor)

// WithQueueCapacity sets the ready queue capacity
func WithQueueCapacity(n int) ExecutorOption {
	return func(e *Executor) { e.capacity = n }
}

// WithLogger sets the logger used for task lifecycle records
func WithLogger(l zerolog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// WithPanicHandler sets the function called when a task panics. The handler
// normally does not return; if it does, the task is treated as completed.
func WithPanicHandler(fn func(id TaskID, r any)) ExecutorOption {
	return func(e *Executor) { e.onPanic = fn }
}

// NewExecutor creates an executor that idles cpu when no task is ready.
func NewExecutor(cpu hal.CPU, options ...ExecutorOption) *Executor {
	e := &Executor{
		cpu:      cpu,
		tasks:    make(map[TaskID]*slot),
		capacity: DefaultQueueCapacity,
		logger:   zerolog.Nop(),
		onPanic: func(id TaskID, r any) {
			panic(fmt.Sprintf("task %d panicked: %v", id, r))
		},
	}
	for _, opt := range options {
		opt(e)
	}
	if e.capacity < 1 {
		e.capacity = DefaultQueueCapacity
	}
	e.queue = concurrency.NewRingQueue[TaskID](e.capacity)
	return e
}

// Spawn takes ownership of t and queues it for its first poll. Spawning an
// id that is already owned, or more tasks than the queue holds, panics.
func (e *Executor) Spawn(t *Task) {
	if _, exists := e.tasks[t.id]; exists {
		panic(fmt.Sprintf("task with same ID already in tasks: %d", t.id))
	}
	if len(e.tasks) >= e.capacity {
		panic("task queue full")
	}
	s := &slot{task: t}
	s.waker = &Waker{id: t.id, wake: func() { e.wake(s) }}
	s.cx = NewContext(s.waker)
	e.tasks[t.id] = s
	e.wake(s)
	e.logger.Debug().Uint64("task", uint64(t.id)).Str("name", t.name).Msg("spawned")
}

func (e *Executor) wake(s *slot) {
	if !s.wake.CompareAndSwap(wakeIdle, wakeQueued) {
		return
	}
	if !e.queue.Push(s.task.id) {
		// unreachable while owned tasks never exceed the queue capacity
		panic("task queue full")
	}
}

// RunReadyTasks performs one scheduling pass: it pops and polls task ids
// until the ready queue is empty, so a task woken during the pass, including
// one that yields, is polled again in the same pass. The CPU gets an
// interrupt window after every poll. It returns the number of polls.
func (e *Executor) RunReadyTasks() int {
	e.passes++
	polled := 0
	for {
		id, ok := e.queue.Pop()
		if !ok {
			return polled
		}
		s, ok := e.tasks[id]
		if !ok {
			continue
		}
		if s.task.state == StateCompleted {
			// completed while queued; drop the stale id
			s.wake.Store(wakeDone)
			delete(e.tasks, id)
			continue
		}
		s.wake.Store(wakeIdle)
		s.task.state = StateRunning
		s.task.polls++
		polled++
		if e.poll(s) == Ready {
			e.complete(s)
		} else {
			s.task.state = StateSuspended
		}
		e.cpu.InterruptWindow()
	}
}

func (e *Executor) poll(s *slot) (p Poll) {
	defer func() {
		if r := recover(); r != nil {
			if hal.IsUnwind(r) {
				panic(r)
			}
			e.logger.Error().Uint64("task", uint64(s.task.id)).Interface("panic", r).Msg("task panicked")
			e.onPanic(s.task.id, r)
			p = Ready
		}
	}()
	return s.task.future.Poll(s.cx)
}

func (e *Executor) complete(s *slot) {
	s.task.state = StateCompleted
	s.waker, s.cx = nil, nil
	e.completed++
	if s.wake.CompareAndSwap(wakeIdle, wakeDone) {
		delete(e.tasks, s.task.id)
	}
	e.logger.Debug().Uint64("task", uint64(s.task.id)).Str("name", s.task.name).Uint64("polls", s.task.Polls()).Msg("completed")
}

// SleepIfIdle halts the CPU until the next interrupt when no task is ready.
// The ready queue is checked with interrupts disabled and the halt is
// entered with sti; hlt, so a wake from a handler cannot slip in between.
func (e *Executor) SleepIfIdle() {
	e.cpu.DisableInterrupts()
	if e.queue.IsEmpty() {
		e.cpu.EnableAndHalt()
	} else {
		e.cpu.EnableInterrupts()
	}
}

// Run polls tasks forever, idling the CPU between bursts of work.
func (e *Executor) Run() {
	for {
		e.RunReadyTasks()
		e.SleepIfIdle()
	}
}

// RunUntilIdle runs passes until the ready queue is empty and returns the
// total number of polls. It never halts the CPU.
func (e *Executor) RunUntilIdle() int {
	total := 0
	for !e.queue.IsEmpty() {
		total += e.RunReadyTasks()
	}
	return total
}

// Len returns the number of owned tasks, including completed tasks whose id
// is still queued.
func (e *Executor) Len() int { return len(e.tasks) }

// ReadyLen returns the number of queued task ids.
func (e *Executor) ReadyLen() int { return e.queue.Len() }

// Has reports whether id is owned and not completed.
func (e *Executor) Has(id TaskID) bool {
	s, ok := e.tasks[id]
	return ok && s.task.state != StateCompleted
}

// Stats returns the number of passes run and tasks completed.
func (e *Executor) Stats() (passes, completed uint64) {
	return e.passes, e.completed
}

// CheckInvariants verifies that every queued id is owned, appears once, and
// matches its task's wake state. It drains and refills the ready queue with
// interrupts disabled, so it must run on the executor's goroutine.
func (e *Executor) CheckInvariants() error {
	var err error
	hal.WithoutInterrupts(e.cpu, func() {
		var ids []TaskID
		for {
			id, ok := e.queue.Pop()
			if !ok {
				break
			}
			ids = append(ids, id)
		}
		for _, id := range ids {
			e.queue.Push(id)
		}

		seen := make(map[TaskID]bool, len(ids))
		for _, id := range ids {
			if seen[id] {
				err = fmt.Errorf("task %d queued twice", id)
				return
			}
			seen[id] = true
			s, ok := e.tasks[id]
			if !ok {
				err = fmt.Errorf("queued task %d is not owned", id)
				return
			}
			if s.wake.Load() != wakeQueued {
				err = fmt.Errorf("queued task %d has wake state %d", id, s.wake.Load())
				return
			}
		}
		for id, s := range e.tasks {
			if s.wake.Load() == wakeQueued && !seen[id] {
				err = fmt.Errorf("task %d marked queued but missing from the ready queue", id)
				return
			}
			if s.task.state == StateCompleted && !seen[id] {
				err = fmt.Errorf("completed task %d still owned", id)
				return
			}
		}
	})
	return err
}
