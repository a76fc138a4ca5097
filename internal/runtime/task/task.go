// Package task implements cooperative tasks and the executor that polls them.
package task

import (
	"fmt"
	"sync/atomic"
)

// TaskID identifies a task for the lifetime of the kernel.
type TaskID uint64

var nextTaskID atomic.Uint64

func newTaskID() TaskID {
	return TaskID(nextTaskID.Add(1) - 1)
}

// Poll is the result of polling a future once.
type Poll int

const (
	Pending Poll = iota
	Ready
)

func (p Poll) String() string {
	if p == Ready {
		return "Ready"
	}
	return "Pending"
}

// Future is a resumable computation. Poll must not block: when it cannot
// make progress it arranges for cx.Waker() to be woken and returns Pending.
type Future interface {
	Poll(cx *Context) Poll
}

// FutureFunc adapts a function to the Future interface.
type FutureFunc func(cx *Context) Poll

// Poll calls f(cx).
func (f FutureFunc) Poll(cx *Context) Poll { return f(cx) }

// State is the lifecycle of a task as seen by the executor.
type State int

const (
	StatePending State = iota
	StateRunning
	StateSuspended
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Task is a future with an identity. Once spawned it is owned by the
// executor.
type Task struct {
	id     TaskID
	name   string
	future Future
	state  State
	polls  uint64
}

// New wraps f in a task with a fresh id.
func New(f Future) *Task {
	return NewNamed("", f)
}

// NewNamed is New with a name used in log records.
func NewNamed(name string, f Future) *Task {
	id := newTaskID()
	if name == "" {
		name = fmt.Sprintf("task-%d", id)
	}
	return &Task{id: id, name: name, future: f, state: StatePending}
}

func (t *Task) ID() TaskID { return t.id }

func (t *Task) Name() string { return t.name }

func (t *Task) State() State { return t.state }

// Polls returns how many times the task has been polled.
func (t *Task) Polls() uint64 { return t.polls }
