// Command animatron runs animatronic motion scripts and related bus
// utilities from the command line.
//
// The built-in "mock" driver executes against a simulated bus, which is
// enough to validate and dry-run scripts. Driving real hardware means
// embedding the sequencer package and supplying a wire-protocol driver
// over drivers.SerialFactory.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Mezrus/animatronic-control/drivers"
	"github.com/Mezrus/animatronic-control/sequencer"
)

var (
	runFile     = flag.String("run", "", "animation script (.toml) or position file (.json) to run")
	validate    = flag.String("validate", "", "script to parse and cycle-check without hardware")
	torque      = flag.String("torque", "", "set motion-enable on all actuators: on or off")
	driverName  = flag.String("driver", "mock", "bus driver to use")
	root        = flag.String("root", "", "directory holding config/, position/ and animation/ (default $ANIMATRON_ROOT or .)")
	moveTimeout = flag.Duration("move-timeout", 0, "per-move completion timeout (0 = 60s default, -1ns = none)")
	verbose     = flag.Bool("verbose", false, "log at debug level")
)

func main() {
	godotenv.Load()
	flag.Parse()

	if *root == "" {
		*root = os.Getenv("ANIMATRON_ROOT")
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(logger); err != nil {
		fmt.Fprintf(os.Stderr, "animatron: %v\n", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	factory, err := selectDriver(*driverName)
	if err != nil {
		return err
	}

	runner, err := sequencer.NewRunner(sequencer.RunnerConfig{
		Factory:     factory,
		Root:        *root,
		Logger:      logger,
		Sink:        func(line string) { fmt.Println(line) },
		MoveTimeout: *moveTimeout,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *validate != "":
		if err := runner.ValidateScript(*validate); err != nil {
			return err
		}
		fmt.Printf("%s: OK\n", *validate)
		return nil

	case *torque != "":
		switch *torque {
		case "on":
			return runner.SetTorqueAll(ctx, true)
		case "off":
			return runner.SetTorqueAll(ctx, false)
		default:
			return fmt.Errorf("invalid -torque value %q (want on or off)", *torque)
		}

	case *runFile != "":
		return runner.Run(ctx, *runFile)

	default:
		flag.Usage()
		return fmt.Errorf("one of -run, -validate or -torque is required")
	}
}

func selectDriver(name string) (sequencer.DriverFactory, error) {
	switch name {
	case "mock":
		mock := drivers.NewMockDriver(sequencer.Registers{
			MotionEnable:    sequencer.Register{Offset: 64, Width: sequencer.Width1},
			PresentPosition: sequencer.Register{Offset: 132, Width: sequencer.Width4},
			GoalPosition:    sequencer.Register{Offset: 116, Width: sequencer.Width4},
			ProfileVelocity: sequencer.Register{Offset: 112, Width: sequencer.Width4},
			Moving:          sequencer.Register{Offset: 122, Width: sequencer.Width1},
		})
		mock.MovingReads = 3
		return drivers.MockFactory(mock), nil
	default:
		return nil, fmt.Errorf("unknown driver %q (built in: mock; hardware drivers wrap drivers.SerialFactory)", name)
	}
}
