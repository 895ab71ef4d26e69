package sequencer

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Width is a register data width in bytes. Valid values are 1, 2 and 4.
type Width int

const (
	Width1 Width = 1
	Width2 Width = 2
	Width4 Width = 4
)

// Valid reports whether w is a supported register width.
func (w Width) Valid() bool {
	return w == Width1 || w == Width2 || w == Width4
}

// Register describes one entry in an actuator's control table.
type Register struct {
	Offset int   // Byte address within the control table
	Width  Width // Data width in bytes
}

// Registers holds the control table layout required by the sequencing
// engine for one device type.
type Registers struct {
	MotionEnable    Register
	PresentPosition Register
	GoalPosition    Register
	ProfileVelocity Register
	Moving          Register
}

// Register names as they appear in the address map file.
const (
	regMotionEnable    = "torque_enable"
	regPresentPosition = "present_position"
	regGoalPosition    = "goal_position"
	regProfileVelocity = "profile_velocity"
	regMoving          = "moving"
)

// DefaultTypeKey is the address map entry used for device types without
// their own entry.
const DefaultTypeKey = "default"

// AddressMap resolves a device type to its control table layout, falling
// back to the "default" entry for unknown types.
type AddressMap struct {
	byType map[string]Registers
}

// NewAddressMap builds an address map from control table layouts keyed by
// device-type string or DefaultTypeKey.
func NewAddressMap(byType map[string]Registers) *AddressMap {
	m := &AddressMap{byType: make(map[string]Registers, len(byType))}
	for k, v := range byType {
		m.byType[k] = v
	}
	return m
}

// LoadAddressMap reads an address map file. Every entry must define all
// five required registers with a valid width; a missing register or a
// width outside {1,2,4} is a configuration error, not a silent skip.
func LoadAddressMap(path string) (*AddressMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	var raw map[string]map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	m := &AddressMap{byType: make(map[string]Registers, len(raw))}
	for typeKey, entry := range raw {
		regs, err := parseRegisters(entry)
		if err != nil {
			return nil, &ConfigError{Path: path, Err: fmt.Errorf("type %q: %w", typeKey, err)}
		}
		m.byType[typeKey] = regs
	}

	return m, nil
}

// ForType returns the control table layout for a device type, falling back
// to the default entry. A type with neither its own entry nor a default is
// an ErrUnknownRegister configuration failure.
func (m *AddressMap) ForType(deviceType int) (Registers, error) {
	if regs, ok := m.byType[strconv.Itoa(deviceType)]; ok {
		return regs, nil
	}
	if regs, ok := m.byType[DefaultTypeKey]; ok {
		return regs, nil
	}
	return Registers{}, fmt.Errorf("%w: device type %d and no %q entry", ErrUnknownRegister, deviceType, DefaultTypeKey)
}

// Validate checks that every actuator in the manifest resolves to a
// control table layout. Called once at run start so later lookups cannot
// fail mid-move.
func (m *AddressMap) Validate(manifest *Manifest) error {
	for _, a := range manifest.Actuators() {
		if _, err := m.ForType(a.DeviceType); err != nil {
			return &ActuatorError{ID: a.ID, Op: "resolve registers", Err: err}
		}
	}
	return nil
}

func parseRegisters(entry map[string]int) (Registers, error) {
	regs := Registers{}
	for _, field := range []struct {
		name string
		dst  *Register
	}{
		{regMotionEnable, &regs.MotionEnable},
		{regPresentPosition, &regs.PresentPosition},
		{regGoalPosition, &regs.GoalPosition},
		{regProfileVelocity, &regs.ProfileVelocity},
		{regMoving, &regs.Moving},
	} {
		offset, ok := entry[field.name]
		if !ok {
			return Registers{}, fmt.Errorf("missing register %q", field.name)
		}
		width, ok := entry["len_"+field.name]
		if !ok {
			return Registers{}, fmt.Errorf("missing width for register %q", field.name)
		}
		if !Width(width).Valid() {
			return Registers{}, fmt.Errorf("register %q: unsupported width %d", field.name, width)
		}
		*field.dst = Register{Offset: offset, Width: Width(width)}
	}
	return regs, nil
}

// EncodeValue encodes a register value as little-endian bytes of the
// given width. Values wider than the register are truncated, matching
// device behavior for ignored high bytes.
func EncodeValue(value uint32, width Width) []byte {
	data := make([]byte, width)
	for i := range data {
		data[i] = byte(value >> (8 * i))
	}
	return data
}

// DecodeValue decodes little-endian register bytes into a value.
func DecodeValue(data []byte) uint32 {
	var value uint32
	for i, b := range data {
		value |= uint32(b) << (8 * i)
	}
	return value
}
