package sequencer

import (
	"context"
	"math"
)

// busMove is the portion of a goal set that lives on one bus.
type busMove struct {
	conn      *Conn
	actuators []Actuator // Manifest entries for the goals on this bus
	goals     GoalSet
}

// partitionByBus splits a goal set by bus, dropping actuator IDs that are
// not in the manifest. Unknown IDs are reported but tolerated so stale
// position files referencing retired actuators do not abort a show.
func partitionByBus(goals GoalSet, manifest *Manifest, conns map[string]*Conn, rep *Reporter) map[string]*busMove {
	moves := make(map[string]*busMove)
	for id, goal := range goals {
		a, ok := manifest.Get(id)
		if !ok {
			rep.Warnf("[WARN] Position file references unknown actuator ID %d; skipping.", id)
			continue
		}
		conn, ok := conns[a.Bus]
		if !ok {
			continue
		}
		move := moves[a.Bus]
		if move == nil {
			move = &busMove{conn: conn, goals: make(GoalSet)}
			moves[a.Bus] = move
		}
		move.actuators = append(move.actuators, a)
		move.goals[id] = goal
	}
	return moves
}

// syncVelocity computes the velocity for one actuator so that all
// actuators in a move arrive together: the actuator with the largest
// travel runs at the base velocity and every other is slowed in
// proportion. Always at least 1 so no actuator is commanded to a dead
// stop. Rounding is half-up.
func syncVelocity(travel, maxTravel, baseVelocity int) int {
	v := int(math.Round(float64(travel) / float64(maxTravel) * float64(baseVelocity)))
	return max(1, v)
}

// ExecuteSyncMove issues one synchronized move: per bus, read present
// positions, derive proportional velocities, then write velocity and goal
// registers as two ordered grouped transactions. It only issues commands
// and never waits for motion to finish.
//
// Buses are independent hardware, so a failed transaction skips that bus
// and the rest continue. If the velocity write fails the goal write for
// that bus is withheld, so no actuator is commanded at a stale velocity.
func ExecuteSyncMove(ctx context.Context, goals GoalSet, baseVelocity int, manifest *Manifest, conns map[string]*Conn, addr *AddressMap, rep *Reporter) error {
	for bus, move := range partitionByBus(goals, manifest, conns, rep) {
		readReqs := make([]ReadRequest, 0, len(move.actuators))
		regsByID := make(map[int]Registers, len(move.actuators))
		for _, a := range move.actuators {
			regs, err := addr.ForType(a.DeviceType)
			if err != nil {
				return &ActuatorError{ID: a.ID, Op: "resolve registers", Err: err}
			}
			regsByID[a.ID] = regs
			readReqs = append(readReqs, ReadRequest{ID: a.ID, Reg: regs.PresentPosition})
		}

		present, err := move.conn.BulkRead(ctx, readReqs)
		if err != nil {
			rep.Warnf("[WARN] Position read failed on bus %s; skipping its actuators for this move.", bus)
			continue
		}

		travel := make(map[int]int, len(move.goals))
		maxTravel := 0
		for id, goal := range move.goals {
			raw, ok := present[id]
			if !ok {
				rep.Warnf("[WARN] No position data for actuator ID %d; skipping.", id)
				continue
			}
			t := goal - int(DecodeValue(raw))
			if t < 0 {
				t = -t
			}
			travel[id] = t
			if t > maxTravel {
				maxTravel = t
			}
		}

		// Every actuator already at its goal: nothing to write.
		if maxTravel == 0 {
			continue
		}

		velReqs := make([]WriteRequest, 0, len(travel))
		goalReqs := make([]WriteRequest, 0, len(travel))
		for id, t := range travel {
			regs := regsByID[id]
			velocity := syncVelocity(t, maxTravel, baseVelocity)
			velReqs = append(velReqs, WriteRequest{
				ID:   id,
				Reg:  regs.ProfileVelocity,
				Data: EncodeValue(uint32(velocity), regs.ProfileVelocity.Width),
			})
			goalReqs = append(goalReqs, WriteRequest{
				ID:   id,
				Reg:  regs.GoalPosition,
				Data: EncodeValue(uint32(move.goals[id]), regs.GoalPosition.Width),
			})
		}

		// Velocity first so the goal command uses the fresh profile.
		if err := move.conn.BulkWrite(ctx, velReqs); err != nil {
			rep.Warnf("[WARN] Velocity write failed on bus %s; goal write withheld.", bus)
			continue
		}
		if err := move.conn.BulkWrite(ctx, goalReqs); err != nil {
			rep.Warnf("[WARN] Goal write failed on bus %s.", bus)
		}
	}

	return nil
}
