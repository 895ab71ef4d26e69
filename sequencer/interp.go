package sequencer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"
)

// runScript recursively interprets a motion script. Steps execute
// strictly in order; a leaf step's poll completes before the next step
// starts. Nested scripts compose their speed percentages multiplicatively
// onto the accumulated multiplier.
//
// A parse failure or cycle in a nested script aborts only that subtree;
// the siblings continue. Cancellation and move timeouts abort the whole
// run.
func (r *Runner) runScript(ctx context.Context, path string, multiplier float64, visited map[string]bool) error {
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

	name := filepath.Base(path)
	r.rep.Statusf("--- Processing Sequence: %s at %.0f%% speed ---", name, multiplier*100)

	for i, step := range script.Sequence {
		if err := ctx.Err(); err != nil {
			return err
		}
		if step.PositionFile == "" {
			continue
		}
		r.rep.Statusf("-- Step %d/%d: '%s' --", i+1, len(script.Sequence), step.PositionFile)

		switch {
		case step.IsScript():
			nested := filepath.Join(r.animationDir(), step.PositionFile)
			if err := r.runScript(ctx, nested, multiplier*step.SpeedFactor(), visited); err != nil {
				if !recoverableStepError(err) {
					return err
				}
				r.rep.Errorf("[ERROR] Could not process script '%s': %v", step.PositionFile, err)
			}

		case step.IsGoalSet():
			if err := r.runLeafStep(ctx, step, script.BaseVelocity, multiplier); err != nil {
				if !recoverableStepError(err) {
					return err
				}
				r.rep.Errorf("[ERROR] Could not process position file '%s': %v", step.PositionFile, err)
			}

		default:
			r.rep.Warnf("[WARN] Step %d: unrecognized file type '%s'; skipping.", i+1, step.PositionFile)
		}

		if step.DelayMS > 0 {
			delay := time.Duration(step.DelayMS) * time.Millisecond
			r.rep.Statusf("Waiting for %.2f seconds...", delay.Seconds())
			if err := sleepCtx(ctx, delay); err != nil {
				return err
			}
		}
	}

	r.rep.Statusf("--- Sequence '%s' Complete ---", name)
	return nil
}

// runLeafStep executes one synchronized move and waits for completion.
func (r *Runner) runLeafStep(ctx context.Context, step Step, baseVelocity int, multiplier float64) error {
	goals, err := LoadGoalSet(filepath.Join(r.positionDir(), step.PositionFile))
	if err != nil {
		return err
	}

	stepVelocity := step.Velocity
	if stepVelocity == 0 {
		stepVelocity = baseVelocity
	}
	finalVelocity := int(math.Round(float64(stepVelocity) * multiplier))

	if err := ExecuteSyncMove(ctx, goals, finalVelocity, r.manifest, r.conns, r.addr, r.rep); err != nil {
		return err
	}
	return WaitForStop(ctx, goals, r.manifest, r.conns, r.addr, r.rep, r.cfg.PollInterval, r.moveTimeout())
}

// recoverableStepError reports whether a step failure should be logged
// and skipped rather than abort the run: bad or cyclic script data is
// contained, everything else unwinds.
func recoverableStepError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr) || errors.Is(err, ErrScriptCycle)
}

// sleepCtx pauses for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
