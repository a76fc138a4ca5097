package console

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/sirreidlos/amarui/internal/errors"
	"github.com/sirreidlos/amarui/internal/runtime/hal/sim"
)

func newSerialSink(t *testing.T, m *sim.Machine) (*SerialPort, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	sim.NewUART(m, sim.COM1, &out)
	port := NewSerialPort(m, COM1)
	port.Init()
	port.SetTranslateNewlines(false)
	return port, &out
}

func TestLoggerLineFormat(t *testing.T) {
	var out bytes.Buffer
	l := NewLogger(&out, zerolog.TraceLevel)
	l.Info().Msg("Hello World!")
	l.Warn().Msg("careful")
	l.Trace().Msg("fine grained")
	assert.Equal(t, "INFO : Hello World!\nWARN : careful\nTRACE: fine grained\n", out.String())
}

func TestLoggerLevelFilter(t *testing.T) {
	var out bytes.Buffer
	l := NewLogger(&out, zerolog.WarnLevel)
	l.Info().Msg("dropped")
	l.Error().Msg("kept")
	assert.Equal(t, "ERROR: kept\n", out.String())
}

func TestLockedLoggerFansOut(t *testing.T) {
	m := sim.NewMachine()
	port, out := newSerialSink(t, m)
	info := testInfo(PixelFormatRGB, 4, 128, 64)
	buf := make([]byte, info.ByteLen)
	fb, err := NewFrameBufferWriter(buf, info)
	require.NoError(t, err)

	locked := NewLockedLogger(m, fb, port)
	_, err = locked.Write([]byte("ok\n"))
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out.String())
	assert.NotZero(t, litPixels(buf))
	assert.False(t, m.InterruptsEnabled())
}

func TestLockedLoggerRestoresInterruptFlag(t *testing.T) {
	m := sim.NewMachine()
	info := testInfo(PixelFormatRGB, 4, 32, 32)
	fb, err := NewFrameBufferWriter(make([]byte, info.ByteLen), info)
	require.NoError(t, err)
	locked := NewLockedLogger(m, fb, nil)

	var during, after bool
	err = m.Run(func() {
		m.EnableInterrupts()
		locked.WithFrameBuffer(func(*FrameBufferWriter) { during = m.InterruptsEnabled() })
		after = m.InterruptsEnabled()
	})
	require.NoError(t, err)
	assert.False(t, during, "sinks are locked with interrupts disabled")
	assert.True(t, after)

	NewLockedLogger(m, nil, nil).WithFrameBuffer(func(*FrameBufferWriter) { t.Fatal("no framebuffer sink") })
}

func TestForceUnlockReleasesWedgedSink(t *testing.T) {
	m := sim.NewMachine()
	port, out := newSerialSink(t, m)
	locked := NewLockedLogger(m, nil, port)

	locked.serial.Lock() // holder never unlocks
	locked.ForceUnlock()
	locked.Write([]byte("panic"))
	assert.Equal(t, "panic", out.String())
}

func TestInitOnlyOnce(t *testing.T) {
	resetGlobalLogger()
	t.Cleanup(resetGlobalLogger)

	assert.Equal(t, zerolog.Disabled, Log().GetLevel())

	m := sim.NewMachine()
	port, out := newSerialSink(t, m)
	info := testInfo(PixelFormatBGR, 4, 320, 200)

	locked, err := Init(m, make([]byte, info.ByteLen), info, port, zerolog.InfoLevel)
	require.NoError(t, err)
	assert.Same(t, locked, Locked())
	assert.True(t, strings.HasPrefix(out.String(), "INFO : Framebuffer info: FrameBufferInfo { byte_len: 256000"))

	_, err = Init(m, make([]byte, info.ByteLen), info, port, zerolog.InfoLevel)
	require.Error(t, err)
	assert.True(t, kerrors.HasCode(err, kerrors.CodeAlreadyInitialized))
	assert.Contains(t, err.Error(), "logger already set")

	out.Reset()
	Log().Debug().Msg("filtered")
	Log().Info().Msg("shown")
	assert.Equal(t, "INFO : shown\n", out.String())
}

func TestInitRequiresSerial(t *testing.T) {
	resetGlobalLogger()
	t.Cleanup(resetGlobalLogger)

	m := sim.NewMachine()
	info := testInfo(PixelFormatBGR, 4, 320, 200)
	_, err := Init(m, make([]byte, info.ByteLen), info, nil, zerolog.InfoLevel)
	require.Error(t, err)
	assert.True(t, kerrors.HasCode(err, kerrors.CodeInvalidConfig), "%v", err)
	assert.Nil(t, Locked())
	assert.Equal(t, zerolog.Disabled, Log().GetLevel())
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("TRACE")
	require.NoError(t, err)
	assert.Equal(t, zerolog.TraceLevel, lvl)
	lvl, err = ParseLevel("off")
	require.NoError(t, err)
	assert.Equal(t, zerolog.Disabled, lvl)
	_, err = ParseLevel("loud")
	assert.True(t, kerrors.HasCode(err, kerrors.CodeInvalidConfig))
}

func TestAllowThrottlesPerCategory(t *testing.T) {
	category := t.Name()
	allowed := 0
	for i := 0; i < 50; i++ {
		if Allow(category) {
			allowed++
		}
	}
	assert.Equal(t, hotPathRates[time.Second], allowed)
	assert.True(t, Allow(category+"-other"))
}
