// Package sequencer coordinates networked servo actuators across shared
// half-duplex buses to perform choreographed, synchronized motions from
// declarative, possibly nested motion scripts.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// Default layout under the runner root, matching the session files the
// scanning and capture tools produce.
const (
	configDirName    = "config"
	positionDirName  = "position"
	animationDirName = "animation"
	manifestFileName = "session_servos.json"
	addressFileName  = "address.json"
)

// defaultMoveTimeout bounds a single move's completion poll.
const defaultMoveTimeout = 60 * time.Second

// RunnerConfig holds configuration for creating a Runner.
type RunnerConfig struct {
	// Factory opens the driver for each bus. Required.
	Factory DriverFactory

	// Root is the directory holding config/, position/ and animation/.
	// Defaults to the current directory.
	Root string

	// Logger receives structured log records. Defaults to slog.Default().
	Logger *slog.Logger

	// Sink receives the human-readable progress stream, one line per
	// event. Optional.
	Sink Sink

	// PollInterval is the pause between completion-poll cycles.
	// Default 20ms.
	PollInterval time.Duration

	// MoveTimeout bounds the completion poll for one move. Zero means
	// the 60s default; negative disables the timeout.
	MoveTimeout time.Duration
}

// Runner executes animation runs against the buses described by the
// session manifest. Configuration is re-read at the start of every run
// and connections never outlive a run.
type Runner struct {
	cfg RunnerConfig
	rep *Reporter

	// Per-run state, valid only inside Run/SetTorqueAll.
	manifest *Manifest
	addr     *AddressMap
	conns    map[string]*Conn
}

// NewRunner creates a runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Factory == nil {
		return nil, errors.New("a DriverFactory is required")
	}
	return &Runner{
		cfg: cfg,
		rep: NewReporter(cfg.Logger, cfg.Sink),
	}, nil
}

func (r *Runner) configDir() string    { return filepath.Join(r.cfg.Root, configDirName) }
func (r *Runner) positionDir() string  { return filepath.Join(r.cfg.Root, positionDirName) }
func (r *Runner) animationDir() string { return filepath.Join(r.cfg.Root, animationDirName) }

func (r *Runner) moveTimeout() time.Duration {
	switch {
	case r.cfg.MoveTimeout < 0:
		return 0
	case r.cfg.MoveTimeout == 0:
		return defaultMoveTimeout
	default:
		return r.cfg.MoveTimeout
	}
}

// Run executes one animation: a script file is interpreted recursively,
// a bare position file is a single synchronized move at the default base
// velocity. Buses are opened at run start and always torn down before
// return, on success, abort and error alike.
func (r *Runner) Run(ctx context.Context, filename string) error {
	mgr, err := r.setup()
	if err != nil {
		return err
	}
	defer mgr.CloseAll()
	defer r.teardown()

	if err := CheckMotionEnabled(ctx, r.manifest, r.conns, r.addr, r.rep); err != nil {
		r.rep.Statusf("--- Animation aborted. ---")
		return err
	}

	switch {
	case strings.HasSuffix(strings.ToLower(filename), scriptExt):
		err = r.runScript(ctx, filepath.Join(r.animationDir(), filename), 1.0, map[string]bool{})

	case strings.HasSuffix(strings.ToLower(filename), goalSetExt):
		var goals GoalSet
		if goals, err = LoadGoalSet(filepath.Join(r.positionDir(), filename)); err == nil {
			if err = ExecuteSyncMove(ctx, goals, DefaultBaseVelocity, r.manifest, r.conns, r.addr, r.rep); err == nil {
				err = WaitForStop(ctx, goals, r.manifest, r.conns, r.addr, r.rep, r.cfg.PollInterval, r.moveTimeout())
			}
		}

	default:
		err = &ConfigError{Path: filename, Err: errors.New("not a script or position file")}
	}

	if err != nil {
		r.rep.Errorf("[ERROR] Run of '%s' failed: %v", filename, err)
		return err
	}
	r.rep.Statusf("--- Finished '%s' ---", filename)
	return nil
}

// SetTorqueAll sets the motion-enable flag on every actuator in the
// manifest, one grouped write per bus. Unlike a move, per-bus failures
// are reported and aggregated rather than aborting the others: restoring
// torque on reachable buses is always worth doing.
func (r *Runner) SetTorqueAll(ctx context.Context, enabled bool) error {
	mgr, err := r.setup()
	if err != nil {
		return err
	}
	defer mgr.CloseAll()
	defer r.teardown()

	action := "Disabling"
	var value uint32
	if enabled {
		action = "Enabling"
		value = motionEnabledValue
	}
	r.rep.Statusf("--- %s torque for all actuators ---", action)

	var errs []error
	for bus, conn := range r.conns {
		actuators := r.manifest.OnBus(bus)
		reqs := make([]WriteRequest, 0, len(actuators))
		for _, a := range actuators {
			regs, err := r.addr.ForType(a.DeviceType)
			if err != nil {
				return &ActuatorError{ID: a.ID, Op: "resolve registers", Err: err}
			}
			reqs = append(reqs, WriteRequest{
				ID:   a.ID,
				Reg:  regs.MotionEnable,
				Data: EncodeValue(value, regs.MotionEnable.Width),
			})
		}

		if err := conn.BulkWrite(ctx, reqs); err != nil {
			r.rep.Errorf("[FAILURE] Torque command failed on bus %s.", bus)
			errs = append(errs, err)
			continue
		}
		r.rep.Statusf("[SUCCESS] Torque command sent on bus %s.", bus)
	}

	return errors.Join(errs...)
}

// ValidateScript parses a script tree without touching hardware: every
// nested script must parse and be cycle-free, and every referenced
// position file must parse.
func (r *Runner) ValidateScript(filename string) error {
	return r.validateScript(filepath.Join(r.animationDir(), filename), map[string]bool{})
}

func (r *Runner) validateScript(path string, visited map[string]bool) error {
	clean := filepath.Clean(path)
	if visited[clean] {
		return fmt.Errorf("%w: %s", ErrScriptCycle, clean)
	}

	script, err := LoadScript(path)
	if err != nil {
		return err
	}

	visited[clean] = true
	defer delete(visited, clean)

	for i, step := range script.Sequence {
		if step.PositionFile == "" {
			continue
		}
		switch {
		case step.IsScript():
			if err := r.validateScript(filepath.Join(r.animationDir(), step.PositionFile), visited); err != nil {
				return fmt.Errorf("step %d of %s: %w", i+1, filepath.Base(path), err)
			}
		case step.IsGoalSet():
			if _, err := LoadGoalSet(filepath.Join(r.positionDir(), step.PositionFile)); err != nil {
				return fmt.Errorf("step %d of %s: %w", i+1, filepath.Base(path), err)
			}
		default:
			return fmt.Errorf("step %d of %s: unrecognized file type %q", i+1, filepath.Base(path), step.PositionFile)
		}
	}
	return nil
}

// setup loads the configuration model fresh and opens every bus,
// leaving per-run state on the runner for the helpers.
func (r *Runner) setup() (*Manager, error) {
	manifest, err := LoadManifest(filepath.Join(r.configDir(), manifestFileName))
	if err != nil {
		return nil, err
	}
	addr, err := LoadAddressMap(filepath.Join(r.configDir(), addressFileName))
	if err != nil {
		return nil, err
	}
	if err := addr.Validate(manifest); err != nil {
		return nil, err
	}

	mgr := NewManager(r.cfg.Factory)
	conns, err := mgr.OpenAll(manifest)
	if err != nil {
		r.rep.Errorf("[ERROR] Failed to open bus connections: %v", err)
		return nil, err
	}
	for bus, conn := range conns {
		r.rep.Statusf("Opened bus %s at %d baud.", bus, conn.LinkSpeed())
	}

	r.manifest = manifest
	r.addr = addr
	r.conns = conns
	return mgr, nil
}

func (r *Runner) teardown() {
	r.manifest = nil
	r.addr = nil
	r.conns = nil
}
