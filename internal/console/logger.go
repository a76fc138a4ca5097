// Package console is the kernel's text output: a framebuffer text renderer,
// a serial port driver and the locked logger that fans records out to both.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	kerrors "github.com/sirreidlos/amarui/internal/errors"
	"github.com/sirreidlos/amarui/internal/runtime/concurrency"
	"github.com/sirreidlos/amarui/internal/runtime/hal"
)

// LockedLogger serializes output to the framebuffer and serial sinks. Every
// sink access runs with interrupts disabled so a handler that logs can never
// spin on a lock held by the code it interrupted.
type LockedLogger struct {
	cpu         hal.CPU
	framebuffer *concurrency.SpinMutex[*FrameBufferWriter]
	serial      *concurrency.SpinMutex[*SerialPort]
}

// NewLockedLogger wraps the given sinks. Either may be nil here; Init
// requires both.
func NewLockedLogger(cpu hal.CPU, fb *FrameBufferWriter, serial *SerialPort) *LockedLogger {
	l := &LockedLogger{cpu: cpu}
	if fb != nil {
		l.framebuffer = concurrency.NewSpinMutex(fb)
	}
	if serial != nil {
		l.serial = concurrency.NewSpinMutex(serial)
	}
	return l
}

// Write sends p to every sink.
func (l *LockedLogger) Write(p []byte) (int, error) {
	hal.WithoutInterrupts(l.cpu, func() {
		if l.framebuffer != nil {
			g := l.framebuffer.Lock()
			(*g.Value()).Write(p)
			g.Unlock()
		}
		if l.serial != nil {
			g := l.serial.Lock()
			(*g.Value()).Write(p)
			g.Unlock()
		}
	})
	return len(p), nil
}

// WithFrameBuffer runs fn with the framebuffer locked. fn is not called
// when there is no framebuffer sink.
func (l *LockedLogger) WithFrameBuffer(fn func(fb *FrameBufferWriter)) {
	if l.framebuffer == nil {
		return
	}
	hal.WithoutInterrupts(l.cpu, func() {
		l.framebuffer.With(func(fb **FrameBufferWriter) { fn(*fb) })
	})
}

// ForceUnlock releases both sink locks regardless of the holder.
//
// This is not memory safe. It is only for the panic path, where the
// interrupted holder will never run again.
func (l *LockedLogger) ForceUnlock() {
	if l.framebuffer != nil {
		l.framebuffer.ForceUnlock()
	}
	if l.serial != nil {
		l.serial.ForceUnlock()
	}
}

// NewLogger builds a zerolog logger that writes "LEVEL: message" lines to
// out.
func NewLogger(out io.Writer, level zerolog.Level) zerolog.Logger {
	cw := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    true,
		PartsOrder: []string{zerolog.LevelFieldName, zerolog.MessageFieldName},
		FormatLevel: func(i interface{}) string {
			s, _ := i.(string)
			return fmt.Sprintf("%-5s:", strings.ToUpper(s))
		},
	}
	return zerolog.New(cw).Level(level)
}

// ParseLevel accepts zerolog level names plus "off".
func ParseLevel(s string) (zerolog.Level, error) {
	if strings.EqualFold(s, "off") {
		return zerolog.Disabled, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.NoLevel, kerrors.InvalidConfig("log_level", err.Error())
	}
	return lvl, nil
}

var (
	initMu       sync.Mutex
	globalLocked atomic.Pointer[LockedLogger]
	globalLog    atomic.Pointer[zerolog.Logger]
	nopLogger    = zerolog.Nop()
)

// Init installs the global logger over a framebuffer and a serial port, then
// logs the framebuffer geometry. Both sinks are required. It fails if a
// logger is already installed or a sink cannot be used.
func Init(cpu hal.CPU, buf []byte, info FrameBufferInfo, serial *SerialPort, level zerolog.Level) (*LockedLogger, error) {
	initMu.Lock()
	defer initMu.Unlock()
	if globalLocked.Load() != nil {
		return nil, fmt.Errorf("logger already set: %w", kerrors.AlreadyInitialized("logger"))
	}
	if serial == nil {
		return nil, kerrors.InvalidConfig("serial", "serial port is required")
	}
	fb, err := NewFrameBufferWriter(buf, info)
	if err != nil {
		return nil, fmt.Errorf("framebuffer: %w", err)
	}
	locked := NewLockedLogger(cpu, fb, serial)
	logger := NewLogger(locked, level)
	globalLocked.Store(locked)
	globalLog.Store(&logger)

	logger.Info().Msgf("Framebuffer info: %v", info)
	return locked, nil
}

// Log returns the global logger, or a disabled logger before Init.
func Log() *zerolog.Logger {
	if l := globalLog.Load(); l != nil {
		return l
	}
	return &nopLogger
}

// Writer returns the global sinks for unformatted output, or io.Discard
// before Init.
func Writer() io.Writer {
	if l := globalLocked.Load(); l != nil {
		return l
	}
	return io.Discard
}

// Locked returns the global LockedLogger, or nil before Init.
func Locked() *LockedLogger { return globalLocked.Load() }

// ForceUnlock force-unlocks the global logger if there is one.
func ForceUnlock() {
	if l := globalLocked.Load(); l != nil {
		l.ForceUnlock()
	}
}
