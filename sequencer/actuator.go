package sequencer

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Actuator is one addressable servo device on a bus. Records come from the
// session manifest written by the scanning tool and are immutable for the
// lifetime of a run.
type Actuator struct {
	ID         int    `json:"id"`
	Bus        string `json:"com_port"`
	LinkSpeed  int    `json:"baud_rate"`
	DeviceType int    `json:"motor_type"`
}

// Manifest is the set of actuators taking part in a run, indexed by ID.
type Manifest struct {
	byID map[int]Actuator
}

// NewManifest builds a manifest from actuator records. Duplicate IDs and
// conflicting link speeds on one bus are configuration errors.
func NewManifest(records []Actuator) (*Manifest, error) {
	m := &Manifest{byID: make(map[int]Actuator, len(records))}
	busSpeeds := make(map[string]int)
	for _, a := range records {
		if _, ok := m.byID[a.ID]; ok {
			return nil, fmt.Errorf("duplicate actuator id %d", a.ID)
		}
		if speed, ok := busSpeeds[a.Bus]; ok && speed != a.LinkSpeed {
			return nil, fmt.Errorf("bus %s declared at both %d and %d baud", a.Bus, speed, a.LinkSpeed)
		}
		busSpeeds[a.Bus] = a.LinkSpeed
		m.byID[a.ID] = a
	}
	return m, nil
}

// LoadManifest reads a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	var records []Actuator
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	m, err := NewManifest(records)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return m, nil
}

// Get returns the actuator with the given ID.
func (m *Manifest) Get(id int) (Actuator, bool) {
	a, ok := m.byID[id]
	return a, ok
}

// Len returns the number of actuators in the manifest.
func (m *Manifest) Len() int {
	return len(m.byID)
}

// Actuators returns all actuators ordered by ID.
func (m *Manifest) Actuators() []Actuator {
	out := make([]Actuator, 0, len(m.byID))
	for _, a := range m.byID {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Buses returns the distinct bus identifiers with their declared link
// speeds.
func (m *Manifest) Buses() map[string]int {
	buses := make(map[string]int)
	for _, a := range m.byID {
		buses[a.Bus] = a.LinkSpeed
	}
	return buses
}

// OnBus returns the actuators attached to one bus, ordered by ID.
func (m *Manifest) OnBus(bus string) []Actuator {
	var out []Actuator
	for _, a := range m.byID {
		if a.Bus == bus {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
