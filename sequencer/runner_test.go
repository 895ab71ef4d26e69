package sequencer_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mezrus/animatronic-control/drivers"
	"github.com/Mezrus/animatronic-control/sequencer"
)

const runnerManifestJSON = `[
  {"com_port": "bus0", "baud_rate": 57600, "id": 1, "motor_type": 1020},
  {"com_port": "bus0", "baud_rate": 57600, "id": 2, "motor_type": 1020}
]`

const runnerAddressJSON = `{
  "default": {
    "torque_enable": 64, "len_torque_enable": 1,
    "present_position": 132, "len_present_position": 4,
    "goal_position": 116, "len_goal_position": 4,
    "profile_velocity": 112, "len_profile_velocity": 4,
    "moving": 122, "len_moving": 1
  }
}`

// newTestRoot lays out a session directory with the standard config,
// position and animation subdirectories.
func newTestRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{"config", "position", "animation"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, dir), 0o755))
	}
	writeRootFile(t, root, filepath.Join("config", "session_servos.json"), runnerManifestJSON)
	writeRootFile(t, root, filepath.Join("config", "address.json"), runnerAddressJSON)
	return root
}

func writeRootFile(t *testing.T, root, rel, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, rel), []byte(content), 0o644))
}

func newTestRunner(t *testing.T, root string, mock *drivers.MockDriver) (*sequencer.Runner, *[]string) {
	t.Helper()
	var lines []string
	r, err := sequencer.NewRunner(sequencer.RunnerConfig{
		Factory:      drivers.MockFactory(mock),
		Root:         root,
		Sink:         func(line string) { lines = append(lines, line) },
		PollInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return r, &lines
}

func TestRunScriptComposesNestedSpeeds(t *testing.T) {
	root := newTestRoot(t)
	writeRootFile(t, root, filepath.Join("position", "a.json"), `[{"ID": 1, "position": 1000}]`)
	writeRootFile(t, root, filepath.Join("position", "b.json"), `[{"ID": 1, "position": 0}]`)
	writeRootFile(t, root, filepath.Join("position", "c.json"), `[{"ID": 1, "position": 500}]`)
	writeRootFile(t, root, filepath.Join("animation", "half.toml"), `base_velocity = 80

[[sequence]]
position_file = "b.json"
`)
	writeRootFile(t, root, filepath.Join("animation", "double.toml"), `base_velocity = 80

[[sequence]]
position_file = "c.json"
`)
	writeRootFile(t, root, filepath.Join("animation", "show.toml"), `base_velocity = 100

[[sequence]]
position_file = "a.json"

[[sequence]]
position_file = "half.toml"
speed = 50

[[sequence]]
position_file = "double.toml"
speed = 200
`)

	mock := drivers.NewMockDriver(testRegs)
	r, _ := newTestRunner(t, root, mock)

	require.NoError(t, r.Run(context.Background(), "show.toml"))

	// Three leaf moves, each a velocity then a goal transaction.
	require.Len(t, mock.Writes, 6)

	wantVels := []int{100, 40, 160} // base, base*50%, nested-base*200%
	wantGoals := []uint32{1000, 0, 500}
	for i := 0; i < 3; i++ {
		vels := velocityWrites(t, mock.Writes[2*i])
		assert.Equal(t, map[int]int{1: wantVels[i]}, vels, "move %d velocity", i+1)

		goalReqs := mock.Writes[2*i+1]
		require.Len(t, goalReqs, 1)
		assert.Equal(t, testRegs.GoalPosition.Offset, goalReqs[0].Reg.Offset)
		assert.Equal(t, wantGoals[i], sequencer.DecodeValue(goalReqs[0].Data), "move %d goal", i+1)
	}
}

func TestRunGateFailureBlocksAllMoves(t *testing.T) {
	root := newTestRoot(t)
	writeRootFile(t, root, filepath.Join("position", "a.json"), `[{"ID": 1, "position": 1000}]`)

	mock := drivers.NewMockDriver(testRegs)
	mock.SetValue(2, testRegs.MotionEnable.Offset, 0)
	r, lines := newTestRunner(t, root, mock)

	err := r.Run(context.Background(), "a.json")
	require.Error(t, err)
	assert.ErrorIs(t, err, sequencer.ErrMotionDisabled)
	assert.Empty(t, mock.Writes, "no command may reach the bus after a failed gate")
	assert.True(t, containsLine(*lines, "aborted"), "abort must be reported: %v", *lines)
}

func TestRunBarePositionFile(t *testing.T) {
	root := newTestRoot(t)
	writeRootFile(t, root, filepath.Join("position", "a.json"), `[{"ID": 1, "position": 1000}]`)

	mock := drivers.NewMockDriver(testRegs)
	r, _ := newTestRunner(t, root, mock)

	require.NoError(t, r.Run(context.Background(), "a.json"))

	require.Len(t, mock.Writes, 2)
	vels := velocityWrites(t, mock.Writes[0])
	assert.Equal(t, map[int]int{1: sequencer.DefaultBaseVelocity}, vels)
	assert.Equal(t, uint32(1000), mock.Value(1, testRegs.GoalPosition.Offset))
}

func TestRunContainsNestedCycle(t *testing.T) {
	root := newTestRoot(t)
	writeRootFile(t, root, filepath.Join("position", "a.json"), `[{"ID": 1, "position": 1000}]`)
	writeRootFile(t, root, filepath.Join("animation", "loop.toml"), `base_velocity = 100

[[sequence]]
position_file = "loop.toml"

[[sequence]]
position_file = "a.json"
`)

	mock := drivers.NewMockDriver(testRegs)
	r, lines := newTestRunner(t, root, mock)

	// The self-reference is logged and skipped; the sibling step still runs.
	require.NoError(t, r.Run(context.Background(), "loop.toml"))
	assert.Len(t, mock.Writes, 2)
	assert.True(t, containsLine(*lines, "[ERROR]"), "cycle must be reported: %v", *lines)
}

func TestRunScriptHonorsStepDelay(t *testing.T) {
	root := newTestRoot(t)
	writeRootFile(t, root, filepath.Join("position", "a.json"), `[{"ID": 1, "position": 1000}]`)
	writeRootFile(t, root, filepath.Join("position", "b.json"), `[{"ID": 1, "position": 0}]`)
	writeRootFile(t, root, filepath.Join("animation", "paced.toml"), `base_velocity = 100

[[sequence]]
position_file = "a.json"
delay_ms = 200

[[sequence]]
position_file = "b.json"
`)

	mock := drivers.NewMockDriver(testRegs)
	r, _ := newTestRunner(t, root, mock)

	start := time.Now()
	require.NoError(t, r.Run(context.Background(), "paced.toml"))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond, "inter-step delay must pause the run")
	assert.Len(t, mock.Writes, 4, "both moves execute after the delay")
}

func TestRunScriptDelayCancellable(t *testing.T) {
	root := newTestRoot(t)
	writeRootFile(t, root, filepath.Join("position", "a.json"), `[{"ID": 1, "position": 1000}]`)
	writeRootFile(t, root, filepath.Join("animation", "slow.toml"), `base_velocity = 100

[[sequence]]
position_file = "a.json"
delay_ms = 5000
`)

	mock := drivers.NewMockDriver(testRegs)
	r, _ := newTestRunner(t, root, mock)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := r.Run(ctx, "slow.toml")
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, time.Second, "cancellation must cut the delay short")
}

func TestRunUnrecognizedExtension(t *testing.T) {
	root := newTestRoot(t)
	mock := drivers.NewMockDriver(testRegs)
	r, _ := newTestRunner(t, root, mock)

	err := r.Run(context.Background(), "show.yaml")
	var cfgErr *sequencer.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestValidateScript(t *testing.T) {
	root := newTestRoot(t)
	writeRootFile(t, root, filepath.Join("position", "a.json"), `[{"ID": 1, "position": 1000}]`)
	writeRootFile(t, root, filepath.Join("animation", "good.toml"), `base_velocity = 100

[[sequence]]
position_file = "a.json"
`)
	writeRootFile(t, root, filepath.Join("animation", "loop.toml"), `[[sequence]]
position_file = "loop.toml"
`)
	writeRootFile(t, root, filepath.Join("animation", "broken.toml"), `[[sequence]]
position_file = "missing.json"
`)

	mock := drivers.NewMockDriver(testRegs)
	r, _ := newTestRunner(t, root, mock)

	assert.NoError(t, r.ValidateScript("good.toml"))
	assert.ErrorIs(t, r.ValidateScript("loop.toml"), sequencer.ErrScriptCycle)
	assert.Error(t, r.ValidateScript("broken.toml"))
	assert.Empty(t, mock.Writes, "validation never touches the bus")
}

func TestSetTorqueAll(t *testing.T) {
	root := newTestRoot(t)
	mock := drivers.NewMockDriver(testRegs)
	r, _ := newTestRunner(t, root, mock)

	require.NoError(t, r.SetTorqueAll(context.Background(), false))
	assert.Equal(t, uint32(0), mock.Value(1, testRegs.MotionEnable.Offset))
	assert.Equal(t, uint32(0), mock.Value(2, testRegs.MotionEnable.Offset))

	require.NoError(t, r.SetTorqueAll(context.Background(), true))
	assert.Equal(t, uint32(1), mock.Value(1, testRegs.MotionEnable.Offset))
	assert.Equal(t, uint32(1), mock.Value(2, testRegs.MotionEnable.Offset))
}

func TestSetTorqueAllReportsBusFailure(t *testing.T) {
	root := newTestRoot(t)
	mock := drivers.NewMockDriver(testRegs)
	mock.FailWrites = 1
	r, _ := newTestRunner(t, root, mock)

	assert.Error(t, r.SetTorqueAll(context.Background(), true))
}

func TestNewRunnerRequiresFactory(t *testing.T) {
	_, err := sequencer.NewRunner(sequencer.RunnerConfig{})
	assert.Error(t, err)
}

func containsLine(lines []string, substr string) bool {
	for _, l := range lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}
