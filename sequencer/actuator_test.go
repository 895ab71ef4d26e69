package sequencer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifestJSON = `[
	{"com_port": "COM3", "baud_rate": 57600, "id": 1, "motor_type": 1020},
	{"com_port": "COM3", "baud_rate": 57600, "id": 2, "motor_type": 1020},
	{"com_port": "COM4", "baud_rate": 1000000, "id": 7, "motor_type": 1120}
]`

func TestLoadManifest(t *testing.T) {
	m, err := LoadManifest(writeTempFile(t, "session_servos.json", manifestJSON))
	require.NoError(t, err)

	assert.Equal(t, 3, m.Len())

	a, ok := m.Get(7)
	require.True(t, ok)
	assert.Equal(t, "COM4", a.Bus)
	assert.Equal(t, 1000000, a.LinkSpeed)
	assert.Equal(t, 1120, a.DeviceType)

	_, ok = m.Get(99)
	assert.False(t, ok)

	assert.Equal(t, map[string]int{"COM3": 57600, "COM4": 1000000}, m.Buses())

	onBus := m.OnBus("COM3")
	require.Len(t, onBus, 2)
	assert.Equal(t, 1, onBus[0].ID)
	assert.Equal(t, 2, onBus[1].ID)
}

func TestNewManifestRejectsDuplicateIDs(t *testing.T) {
	_, err := NewManifest([]Actuator{
		{ID: 1, Bus: "COM3", LinkSpeed: 57600},
		{ID: 1, Bus: "COM4", LinkSpeed: 57600},
	})
	assert.ErrorContains(t, err, "duplicate actuator id 1")
}

func TestNewManifestRejectsConflictingLinkSpeeds(t *testing.T) {
	_, err := NewManifest([]Actuator{
		{ID: 1, Bus: "COM3", LinkSpeed: 57600},
		{ID: 2, Bus: "COM3", LinkSpeed: 1000000},
	})
	assert.ErrorContains(t, err, "bus COM3")
}

func TestLoadManifestMalformed(t *testing.T) {
	_, err := LoadManifest(writeTempFile(t, "session_servos.json", "not json"))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}
