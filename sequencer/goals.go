package sequencer

import (
	"encoding/json"
	"os"
)

// GoalSet maps actuator IDs to target positions for one synchronized move.
type GoalSet map[int]int

// LoadGoalSet reads a position file: an ordered array of
// {"ID": n, "position": p} records as written by the capture tool.
func LoadGoalSet(path string) (GoalSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	var records []struct {
		ID       int `json:"ID"`
		Position int `json:"position"`
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	goals := make(GoalSet, len(records))
	for _, r := range records {
		goals[r.ID] = r.Position
	}
	return goals, nil
}
