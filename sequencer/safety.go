package sequencer

import (
	"context"
	"fmt"
)

// motionEnabledValue is the sentinel a healthy actuator reports in its
// motion-enable register.
const motionEnabledValue = 1

// CheckMotionEnabled is the pre-flight safety gate: one grouped read per
// bus of the motion-enable register across every actuator on that bus.
// Any actuator that is unreadable or not enabled fails the whole check.
// Moving a subset while disabled actuators stay put is unsafe for a
// rigid mechanism, so this is a hard stop, not a per-actuator skip.
func CheckMotionEnabled(ctx context.Context, manifest *Manifest, conns map[string]*Conn, addr *AddressMap, rep *Reporter) error {
	rep.Statusf("Performing pre-flight motion-enable check...")

	for bus, conn := range conns {
		actuators := manifest.OnBus(bus)
		if len(actuators) == 0 {
			continue
		}

		reqs := make([]ReadRequest, 0, len(actuators))
		for _, a := range actuators {
			regs, err := addr.ForType(a.DeviceType)
			if err != nil {
				return &ActuatorError{ID: a.ID, Op: "resolve registers", Err: err}
			}
			reqs = append(reqs, ReadRequest{ID: a.ID, Reg: regs.MotionEnable})
		}

		data, err := conn.BulkRead(ctx, reqs)
		if err != nil {
			return fmt.Errorf("motion-enable check: %w", err)
		}

		for _, a := range actuators {
			raw, ok := data[a.ID]
			if !ok {
				rep.Errorf("[CRITICAL] No response from actuator ID %d.", a.ID)
				return &ActuatorError{ID: a.ID, Op: "motion-enable check", Err: ErrNoData}
			}
			if DecodeValue(raw) != motionEnabledValue {
				rep.Errorf("[CRITICAL] Motion is disabled on actuator ID %d.", a.ID)
				return &ActuatorError{ID: a.ID, Op: "motion-enable check", Err: ErrMotionDisabled}
			}
		}
	}

	rep.Statusf("[SUCCESS] Motion-enable check passed.")
	return nil
}
