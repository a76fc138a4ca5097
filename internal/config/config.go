// Package config loads the boot configuration of the emulated machine: the
// information a bootloader would hand over (framebuffer, physical memory
// offset, API version) plus the interrupt core settings.
package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	semver "github.com/Masterminds/semver/v3"

	"github.com/sirreidlos/amarui/internal/console"
	kerrors "github.com/sirreidlos/amarui/internal/errors"
)

// SupportedBootloader is the bootloader API range the kernel understands.
const SupportedBootloader = "^0.11"

// FrameBuffer is the framebuffer geometry.
type FrameBuffer struct {
	Width         int    `toml:"width"`
	Height        int    `toml:"height"`
	Stride        int    `toml:"stride"`
	BytesPerPixel int    `toml:"bytes_per_pixel"`
	PixelFormat   string `toml:"pixel_format"`
}

// Boot is what the bootloader reports.
type Boot struct {
	BootloaderVersion    string       `toml:"bootloader_version"`
	PhysicalMemoryOffset *uint64      `toml:"physical_memory_offset"`
	FrameBuffer          *FrameBuffer `toml:"framebuffer"`
}

// Interrupts configures the PICs and the timer.
type Interrupts struct {
	PIC1Offset   uint8   `toml:"pic1_offset"`
	PIC2Offset   uint8   `toml:"pic2_offset"`
	EnabledLines []uint8 `toml:"enabled_lines"`
	TimerHz      int     `toml:"timer_hz"`
}

// Keyboard configures the scancode path.
type Keyboard struct {
	QueueCapacity int `toml:"queue_capacity"`
}

// Executor configures the task executor.
type Executor struct {
	QueueCapacity int `toml:"queue_capacity"`
}

// Log configures the console sinks. The kernel always writes both sinks;
// Serial only decides whether the emulated UART is echoed to the host.
type Log struct {
	Level  string `toml:"level"`
	Serial bool   `toml:"serial"`
}

// Config is the whole boot configuration file.
type Config struct {
	Boot       Boot       `toml:"boot"`
	Interrupts Interrupts `toml:"interrupts"`
	Keyboard   Keyboard   `toml:"keyboard"`
	Executor   Executor   `toml:"executor"`
	Log        Log        `toml:"log"`
}

// Default returns the configuration of a 640x480 BGR framebuffer machine
// with the timer and keyboard enabled.
func Default() *Config {
	offset := uint64(0x0000_1000_0000_0000)
	return &Config{
		Boot: Boot{
			BootloaderVersion:    "0.11.10",
			PhysicalMemoryOffset: &offset,
			FrameBuffer: &FrameBuffer{
				Width:         640,
				Height:        480,
				Stride:        640,
				BytesPerPixel: 4,
				PixelFormat:   "bgr",
			},
		},
		Interrupts: Interrupts{
			PIC1Offset:   32,
			PIC2Offset:   40,
			EnabledLines: []uint8{0, 1},
			TimerHz:      18,
		},
		Keyboard: Keyboard{QueueCapacity: 100},
		Executor: Executor{QueueCapacity: 100},
		Log: Log{
			Level:  "info",
			Serial: true,
		},
	}
}

// Load reads a TOML file over the defaults. The boot section has no
// defaults: it stands for the bootloader handoff and comes from the file
// alone. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.Boot = Boot{}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return nil, kerrors.InvalidConfig("keys", "unknown keys: "+strings.Join(keys, ", "))
	}
	return cfg, nil
}

// Validate checks the configuration before boot. A missing framebuffer or
// physical memory offset and an unsupported bootloader abort the boot.
func (c *Config) Validate() error {
	if _, err := c.BootInfo(); err != nil {
		return err
	}
	in := c.Interrupts
	if int(in.PIC2Offset) != int(in.PIC1Offset)+8 || in.PIC1Offset < 32 || in.PIC1Offset&0x07 != 0 {
		return kerrors.InvalidOffsets(in.PIC1Offset, in.PIC2Offset)
	}
	for _, l := range in.EnabledLines {
		if l >= 16 {
			return kerrors.InvalidConfig("interrupts.enabled_lines", fmt.Sprintf("PIC line %d does not exist", l))
		}
	}
	if in.TimerHz < 0 {
		return kerrors.InvalidConfig("interrupts.timer_hz", "must not be negative")
	}
	if c.Keyboard.QueueCapacity < 1 {
		return kerrors.InvalidConfig("keyboard.queue_capacity", "must be positive")
	}
	if c.Executor.QueueCapacity < 1 {
		return kerrors.InvalidConfig("executor.queue_capacity", "must be positive")
	}
	if _, err := console.ParseLevel(c.Log.Level); err != nil {
		return kerrors.InvalidConfig("log.level", err.Error())
	}
	return nil
}

// BootInfo is the validated bootloader handoff.
type BootInfo struct {
	APIVersion           *semver.Version
	FrameBuffer          console.FrameBufferInfo
	PhysicalMemoryOffset uint64
}

// BootInfo converts the boot section into the kernel handoff.
func (c *Config) BootInfo() (*BootInfo, error) {
	b := c.Boot
	if b.BootloaderVersion == "" {
		return nil, kerrors.MissingBootInfo("bootloader version")
	}
	version, err := semver.NewVersion(b.BootloaderVersion)
	if err != nil {
		return nil, kerrors.InvalidConfig("boot.bootloader_version", err.Error())
	}
	constraint, err := semver.NewConstraint(SupportedBootloader)
	if err != nil {
		return nil, err
	}
	if !constraint.Check(version) {
		return nil, kerrors.InvalidConfig("boot.bootloader_version",
			fmt.Sprintf("bootloader %s does not satisfy %s", version, SupportedBootloader))
	}
	if b.FrameBuffer == nil {
		return nil, kerrors.MissingBootInfo("framebuffer")
	}
	if b.PhysicalMemoryOffset == nil {
		return nil, kerrors.MissingBootInfo("physical memory offset")
	}

	fb := b.FrameBuffer
	format, err := console.ParsePixelFormat(fb.PixelFormat)
	if err != nil {
		return nil, err
	}
	if fb.Width <= 0 || fb.Height <= 0 || fb.BytesPerPixel <= 0 {
		return nil, kerrors.InvalidConfig("boot.framebuffer", "framebuffer geometry must be positive")
	}
	stride := fb.Stride
	if stride == 0 {
		stride = fb.Width
	}
	return &BootInfo{
		APIVersion: version,
		FrameBuffer: console.FrameBufferInfo{
			ByteLen:       stride * fb.Height * fb.BytesPerPixel,
			Width:         fb.Width,
			Height:        fb.Height,
			PixelFormat:   format,
			BytesPerPixel: fb.BytesPerPixel,
			Stride:        stride,
		},
		PhysicalMemoryOffset: *b.PhysicalMemoryOffset,
	}, nil
}
