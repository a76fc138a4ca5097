// amarui boots the interrupt core on an emulated PC: chained PICs, a PS/2
// keyboard, a 16550 serial port and a periodic timer. Kernel log output goes
// to the serial port, which is wired to stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/sirreidlos/amarui/internal/cli"
	"github.com/sirreidlos/amarui/internal/config"
	"github.com/sirreidlos/amarui/internal/console"
	"github.com/sirreidlos/amarui/internal/runtime/hal"
	"github.com/sirreidlos/amarui/internal/runtime/hal/sim"
	"github.com/sirreidlos/amarui/internal/runtime/kernel"
	"github.com/sirreidlos/amarui/internal/runtime/keyboard"
	"github.com/sirreidlos/amarui/internal/runtime/task"
)

const toolName = "amarui"

type options struct {
	screenshot string
	inputFile  string
}

func main() {
	var (
		showVersion bool
		showHelp    bool
		jsonOutput  bool
		configFile  string
		logLevel    string
		opts        options
	)

	flag.BoolVar(&showVersion, "version", false, "show version information")
	flag.BoolVar(&showHelp, "help", false, "show help information")
	flag.BoolVar(&jsonOutput, "json", false, "output version in JSON format")
	flag.StringVar(&configFile, "config", "", "boot configuration file (TOML)")
	flag.StringVar(&logLevel, "log-level", "", "override the console log level")
	flag.StringVar(&opts.screenshot, "screenshot", "", "write the framebuffer to this PNG file on exit")
	flag.StringVar(&opts.inputFile, "input-file", "", "type the contents of this file, following appends")

	flag.Usage = func() {
		cli.PrintUsage(os.Stderr, toolName, "interrupt core on an emulated PC", []cli.FlagInfo{
			{Name: "config", Usage: "boot configuration file (TOML)"},
			{Name: "log-level", Usage: "override the console log level", Default: "info"},
			{Name: "screenshot", Usage: "write the framebuffer to this PNG file on exit"},
			{Name: "input-file", Usage: "type the contents of this file, following appends"},
			{Name: "version", Usage: "show version information"},
			{Name: "json", Usage: "output version in JSON format"},
		})
	}
	flag.Parse()

	if showHelp {
		flag.Usage()
		return
	}
	if showVersion {
		cli.PrintVersion(os.Stdout, toolName, jsonOutput)
		return
	}

	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			cli.ExitWithError("%v", err)
		}
		cfg = loaded
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		cli.ExitWithError("invalid boot configuration: %v", err)
	}

	cli.ExitWithCode(run(cfg, opts, cli.Status(os.Stderr)), "")
}

func run(cfg *config.Config, opts options, status *cli.StatusWriter) int {
	info, err := cfg.BootInfo()
	if err != nil {
		status.Error("%v", err)
		return 1
	}

	m := sim.NewMachine()
	kb := sim.NewPS2Keyboard(m)
	var serialOut io.Writer = io.Discard
	if cfg.Log.Serial {
		serialOut = os.Stdout
	}
	sim.NewUART(m, sim.COM1, serialOut)
	timer := sim.NewTimer(m)
	fb := make([]byte, info.FrameBuffer.ByteLen)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	status.Info("booting %s v%s (bootloader API %s)", toolName, cli.Version, info.APIVersion)

	var runErr error
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		runErr = m.Run(func() { kernelMain(m, cfg, info, fb) })
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		m.Stop()
		return nil
	})
	if hz := cfg.Interrupts.TimerHz; hz > 0 {
		g.Go(func() error {
			if err := timer.Run(ctx, hz); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	switch {
	case opts.inputFile != "":
		g.Go(func() error { return replayInputFile(ctx, opts.inputFile, kb) })
	case isTerminal(int(os.Stdin.Fd())):
		restore, err := makeRaw(int(os.Stdin.Fd()))
		if err != nil {
			status.Warn("keyboard input disabled: %v", err)
			break
		}
		defer restore()
		// stdin reads cannot be interrupted; the reader dies with the process
		go readKeys(os.Stdin, kb)
	}

	code := 0
	if err := g.Wait(); err != nil {
		status.Error("device failure: %v", err)
		code = 1
	}

	switch {
	case runErr == nil, errors.Is(runErr, hal.ErrStopped):
		status.Success("machine powered off")
	case errors.Is(runErr, hal.ErrHalted):
		status.Error("kernel halted")
		code = 1
	default:
		status.Error("machine failure: %v", runErr)
		code = 2
	}

	if opts.screenshot != "" {
		if err := saveScreenshot(opts.screenshot, fb, info.FrameBuffer); err != nil {
			status.Error("screenshot: %v", err)
			code = 1
		} else {
			status.Info("framebuffer written to %s", opts.screenshot)
		}
	}
	return code
}

// kernelMain is the kernel entry point the bootloader would jump to.
func kernelMain(m *sim.Machine, cfg *config.Config, info *config.BootInfo, fb []byte) {
	level, err := console.ParseLevel(cfg.Log.Level)
	if err != nil {
		kernel.Fatal(m, nil, err.Error())
	}
	serial := console.NewSerialPort(m, console.COM1)
	serial.Init()
	if _, err := console.Init(m, fb, info.FrameBuffer, serial, level); err != nil {
		kernel.Fatal(m, nil, err.Error())
	}
	log := console.Log()
	log.Info().Msg("Hello World!")

	// the keyboard handler starts delivering as soon as Boot executes sti
	queue := keyboard.InitQueue(cfg.Keyboard.QueueCapacity, log)
	stream, err := queue.Stream()
	if err != nil {
		kernel.Fatal(m, log, err.Error())
	}

	kcfg := kernel.DefaultConfig()
	kcfg.PIC1Offset = cfg.Interrupts.PIC1Offset
	kcfg.PIC2Offset = cfg.Interrupts.PIC2Offset
	kcfg.EnabledLines = cfg.Interrupts.EnabledLines
	k, err := kernel.Boot(m, m, kcfg)
	if err != nil {
		kernel.Fatal(m, log, fmt.Sprintf("interrupt core: %v", err))
	}
	log.Debug().Msgf("physical memory offset: %#x", info.PhysicalMemoryOffset)

	m.Int3()
	log.Info().Msg("It did not crash!")

	executor := task.NewExecutor(m,
		task.WithQueueCapacity(cfg.Executor.QueueCapacity),
		task.WithLogger(*log),
		task.WithPanicHandler(k.TaskPanicHandler()),
	)
	executor.Spawn(task.NewNamed("example_task", task.NewNumberLoop("task 1", *log)))
	executor.Spawn(task.NewNamed("example_task2", task.NewNumberLoop("task 2", *log)))
	executor.Spawn(task.NewNamed("print_keypresses", keyboard.PrintKeypresses(stream, console.Writer())))
	executor.Run()
}
