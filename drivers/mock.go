package drivers

import (
	"context"
	"fmt"
	"sync"

	"github.com/Mezrus/animatronic-control/sequencer"
)

// MockDriver implements sequencer.Driver against an in-memory control
// table, for tests and dry runs. Actuators spring into existence on
// first access with motion enabled and position zero; tests override
// with SetValue or suppress responses with Omit.
type MockDriver struct {
	mu sync.Mutex

	// Regs gives the mock the semantic register layout so it can
	// simulate movement: a goal write snaps the present position to the
	// goal and holds the moving flag up for MovingReads poll cycles.
	Regs sequencer.Registers

	// Types maps actuator ID to the device type reported by Ping.
	// IDs not present report DefaultDeviceType.
	Types map[int]int

	// MovingReads is how many reads of the moving flag report 1 after a
	// goal write before the actuator settles.
	MovingReads int

	// FailReads / FailWrites make the next N transactions fail.
	FailReads  int
	FailWrites int

	// Omit suppresses an actuator's entry in read results without
	// failing the transaction, like a device that missed its slot.
	Omit map[int]bool

	// Writes records every grouped write transaction in order.
	Writes [][]sequencer.WriteRequest

	Closed bool

	mem    map[int]map[int]uint32
	moving map[int]int
}

// DefaultDeviceType is reported by Ping for IDs without a Types entry.
const DefaultDeviceType = 1020

// NewMockDriver creates a mock driver simulating actuators with the
// given control table layout.
func NewMockDriver(regs sequencer.Registers) *MockDriver {
	return &MockDriver{
		Regs:   regs,
		mem:    make(map[int]map[int]uint32),
		moving: make(map[int]int),
	}
}

// SetValue sets a register value for an actuator.
func (d *MockDriver) SetValue(id, offset int, value uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.table(id)[offset] = value
}

// Value returns a register value for an actuator.
func (d *MockDriver) Value(id, offset int) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.table(id)[offset]
}

// table returns the control table for id, creating a default-enabled one
// on first access. Callers hold d.mu.
func (d *MockDriver) table(id int) map[int]uint32 {
	t, ok := d.mem[id]
	if !ok {
		t = map[int]uint32{d.Regs.MotionEnable.Offset: 1}
		d.mem[id] = t
	}
	return t
}

func (d *MockDriver) Ping(ctx context.Context, id int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Omit[id] {
		return 0, fmt.Errorf("no response from id %d", id)
	}
	if t, ok := d.Types[id]; ok {
		return t, nil
	}
	return DefaultDeviceType, nil
}

func (d *MockDriver) BulkRead(ctx context.Context, reqs []sequencer.ReadRequest) (map[int][]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailReads > 0 {
		d.FailReads--
		return nil, fmt.Errorf("injected read failure")
	}

	result := make(map[int][]byte, len(reqs))
	for _, req := range reqs {
		if d.Omit[req.ID] {
			continue
		}
		value := d.table(req.ID)[req.Reg.Offset]
		if req.Reg.Offset == d.Regs.Moving.Offset && d.moving[req.ID] > 0 {
			d.moving[req.ID]--
			value = 1
		}
		result[req.ID] = sequencer.EncodeValue(value, req.Reg.Width)
	}
	return result, nil
}

func (d *MockDriver) BulkWrite(ctx context.Context, reqs []sequencer.WriteRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailWrites > 0 {
		d.FailWrites--
		return fmt.Errorf("injected write failure")
	}

	d.Writes = append(d.Writes, reqs)
	for _, req := range reqs {
		value := sequencer.DecodeValue(req.Data)
		d.table(req.ID)[req.Reg.Offset] = value
		if req.Reg.Offset == d.Regs.GoalPosition.Offset {
			d.table(req.ID)[d.Regs.PresentPosition.Offset] = value
			d.moving[req.ID] = d.MovingReads
		}
	}
	return nil
}

func (d *MockDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closed = true
	return nil
}

// MockFactory returns a DriverFactory handing out one shared mock driver
// for every bus, which is what a dry run wants: a single inspectable
// world regardless of bus layout.
func MockFactory(d *MockDriver) sequencer.DriverFactory {
	return func(bus string, linkSpeed int) (sequencer.Driver, error) {
		return d, nil
	}
}
