package sequencer

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// defaultPollInterval is the pause between completion-poll cycles.
const defaultPollInterval = 20 * time.Millisecond

// WaitForStop polls the moving flag of every commanded actuator until all
// report stopped. The pending set shrinks monotonically; an actuator is
// never re-added once confirmed stopped. A bus-level read failure leaves
// its actuators pending for the next cycle, so transient faults are
// absorbed by reattempt rather than backoff.
//
// A zero timeout waits forever. On expiry the error names the actuators
// still pending, since a stalled or disconnected device is exactly what
// the operator needs to see.
func WaitForStop(ctx context.Context, goals GoalSet, manifest *Manifest, conns map[string]*Conn, addr *AddressMap, rep *Reporter, interval, timeout time.Duration) error {
	pending := make(map[int]bool)
	byBus := make(map[string][]Actuator)
	for id := range goals {
		a, ok := manifest.Get(id)
		if !ok {
			continue
		}
		if _, ok := conns[a.Bus]; !ok {
			continue
		}
		pending[id] = true
		byBus[a.Bus] = append(byBus[a.Bus], a)
	}

	if len(pending) == 0 {
		return nil
	}
	rep.Statusf("Waiting for movement to complete...")

	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		for bus, actuators := range byBus {
			var reqs []ReadRequest
			for _, a := range actuators {
				if !pending[a.ID] {
					continue
				}
				regs, err := addr.ForType(a.DeviceType)
				if err != nil {
					return &ActuatorError{ID: a.ID, Op: "resolve registers", Err: err}
				}
				reqs = append(reqs, ReadRequest{ID: a.ID, Reg: regs.Moving})
			}
			if len(reqs) == 0 {
				continue
			}

			data, err := conns[bus].BulkRead(ctx, reqs)
			if err != nil {
				// Transient bus fault; retry the same actuators next cycle.
				continue
			}
			for _, req := range reqs {
				raw, ok := data[req.ID]
				if ok && DecodeValue(raw) == 0 {
					delete(pending, req.ID)
				}
			}
		}

		if len(pending) == 0 {
			rep.Statusf("Movement complete.")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-expired:
			ids := pendingIDs(pending)
			rep.Errorf("[ERROR] Move timed out; still moving: %v", ids)
			return fmt.Errorf("%w after %s: actuators %v still pending", ErrMoveTimeout, timeout, ids)
		case <-ticker.C:
		}
	}
}

func pendingIDs(pending map[int]bool) []int {
	ids := make([]int, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
