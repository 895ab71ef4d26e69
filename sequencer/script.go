package sequencer

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultBaseVelocity is used when a script does not declare one, and for
// a position file run directly without a script.
const DefaultBaseVelocity = 150

// Script is a motion script: a base velocity and an ordered sequence of
// steps, each a leaf goal-set move or a reference to a nested script.
type Script struct {
	BaseVelocity int    `toml:"base_velocity"`
	Sequence     []Step `toml:"sequence"`
}

// Step is one entry in a script.
type Step struct {
	PositionFile string `toml:"position_file"`
	Velocity     int    `toml:"velocity"` // Leaf only; 0 means use the script's base velocity
	DelayMS      int    `toml:"delay_ms"` // Post-move delay
	Speed        int    `toml:"speed"`    // Nested only; percentage, 0 means 100
}

// IsScript reports whether the step references a nested script rather
// than a leaf goal set.
func (s Step) IsScript() bool {
	return strings.HasSuffix(strings.ToLower(s.PositionFile), scriptExt)
}

// IsGoalSet reports whether the step references a leaf goal set.
func (s Step) IsGoalSet() bool {
	return strings.HasSuffix(strings.ToLower(s.PositionFile), goalSetExt)
}

// SpeedFactor returns the step's nested-script speed multiplier.
func (s Step) SpeedFactor() float64 {
	if s.Speed == 0 {
		return 1.0
	}
	return float64(s.Speed) / 100.0
}

// File extensions that classify a step.
const (
	scriptExt  = ".toml"
	goalSetExt = ".json"
)

// LoadScript parses a motion script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	var script Script
	if err := toml.Unmarshal(data, &script); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	if script.BaseVelocity == 0 {
		script.BaseVelocity = DefaultBaseVelocity
	}
	return &script, nil
}
