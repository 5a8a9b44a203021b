// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flatcap

import (
	"context"
	"fmt"

	"github.com/Thermoquad/flatcap/pkg/gastro"
)

// OpState is the lifecycle of a long-running operation.
type OpState uint8

const (
	OpIdle OpState = iota
	OpBusy
	OpOk
	OpAlert
)

func (s OpState) String() string {
	switch s {
	case OpIdle:
		return "Idle"
	case OpBusy:
		return "Busy"
	case OpOk:
		return "Ok"
	case OpAlert:
		return "Alert"
	default:
		return "Unknown"
	}
}

// MarshalText renders the state name in JSON.
func (s OpState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Direction is the direction of a cover motion.
type Direction uint8

const (
	DirectionNone Direction = iota
	DirectionPark
	DirectionUnpark
)

func (d Direction) String() string {
	switch d {
	case DirectionPark:
		return "park"
	case DirectionUnpark:
		return "unpark"
	default:
		return "none"
	}
}

// MarshalText renders the direction name in JSON.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d Direction) command(dialect gastro.Dialect) gastro.Command {
	if d == DirectionPark {
		return gastro.NewPark(dialect)
	}
	return gastro.NewUnpark(dialect)
}

func (d Direction) opcode() byte {
	if d == DirectionPark {
		return gastro.OpPark
	}
	return gastro.OpUnpark
}

// target is the cover code that completes a motion in this direction.
func (d Direction) target() gastro.CoverState {
	if d == DirectionPark {
		return gastro.CoverClosed
	}
	return gastro.CoverOpen
}

func (d Direction) parkSwitch() ParkSwitch {
	switch d {
	case DirectionPark:
		return SwitchParked
	case DirectionUnpark:
		return SwitchUnparked
	default:
		return SwitchUnknown
	}
}

// ParkSwitch is the externally visible parked/unparked selection.
type ParkSwitch uint8

const (
	SwitchUnknown ParkSwitch = iota
	SwitchParked
	SwitchUnparked
)

func (s ParkSwitch) String() string {
	switch s {
	case SwitchParked:
		return "parked"
	case SwitchUnparked:
		return "unparked"
	default:
		return "unknown"
	}
}

// MarshalText renders the switch name in JSON.
func (s ParkSwitch) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// simulationWork is the number of polls a simulated motion takes.
const simulationWork = 3

// motion is the park operation state. Guarded by Device.mu.
type motion struct {
	state     OpState
	direction Direction
	sw        ParkSwitch

	// watchdog is the pending timeout handle. generation invalidates a
	// callback that was already queued when the handle was cancelled.
	watchdog   Timer
	generation uint64

	simWork int
}

// Park closes the cover. The returned state is Busy when the device
// acknowledged the command and Alert otherwise.
func (d *Device) Park(ctx context.Context) (OpState, error) {
	return d.startMotion(ctx, DirectionPark)
}

// Unpark opens the cover.
func (d *Device) Unpark(ctx context.Context) (OpState, error) {
	return d.startMotion(ctx, DirectionUnpark)
}

func (d *Device) startMotion(ctx context.Context, dir Direction) (OpState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return OpAlert, ErrNotConnected
	}

	d.cancelWatchdog()
	prevDir, prevSw := d.motion.direction, d.motion.sw
	d.motion.direction = dir
	d.motion.sw = dir.parkSwitch()

	state, err := d.issueMotion(ctx, dir)
	if state == OpAlert {
		// The cover never moved, so the switch keeps its last position.
		d.motion.direction, d.motion.sw = prevDir, prevSw
	}
	d.setMotionState(state)
	return state, err
}

// issueMotion sends the motion command and arms the watchdog. Caller holds d.mu.
func (d *Device) issueMotion(ctx context.Context, dir Direction) (OpState, error) {
	if d.cfg.Simulate {
		d.motion.simWork = simulationWork
		d.cells.forceRefresh(ComponentCover)
		return OpBusy, nil
	}

	resp, err := d.transport.Exchange(ctx, dir.command(d.dialect))
	if err != nil {
		d.log.Error("Failed to move cover", "direction", dir, "err", err)
		return OpAlert, err
	}
	if err := gastro.CheckAck(d.dialect, dir.opcode(), d.productID, resp); err != nil {
		d.stats.recordMismatch()
		d.metrics.decodeError("mismatch")
		d.log.Error("Unexpected acknowledgement", "direction", dir, "err", err)
		return OpAlert, err
	}

	d.cells.forceRefresh(ComponentCover)
	d.armWatchdog(dir)
	return OpBusy, nil
}

// retryMotion re-issues an outstanding motion. A failed retry stays Busy
// and re-arms the watchdog. Caller holds d.mu.
func (d *Device) retryMotion(ctx context.Context, reason string) {
	dir := d.motion.direction
	d.metrics.motionRetry(dir, reason)
	if _, err := d.issueMotion(ctx, dir); err != nil {
		d.log.Warn("Motion retry failed", "direction", dir, "reason", reason, "err", err)
		d.armWatchdog(dir)
		return
	}
	d.setMotionState(OpBusy)
}

func (d *Device) armWatchdog(dir Direction) {
	d.cancelWatchdog()
	gen := d.motion.generation
	d.motion.watchdog = d.scheduler.AfterFunc(d.cfg.ParkTimeout, func() {
		d.onWatchdog(dir, gen)
	})
}

// cancelWatchdog stops the pending watchdog. Caller holds d.mu.
func (d *Device) cancelWatchdog() {
	d.motion.generation++
	if d.motion.watchdog != nil {
		d.motion.watchdog.Stop()
		d.motion.watchdog = nil
	}
}

func (d *Device) onWatchdog(dir Direction, gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if gen != d.motion.generation || !d.connected {
		return
	}
	d.motion.watchdog = nil
	if d.motion.state != OpBusy || d.motion.direction != dir {
		return
	}

	if dir == DirectionPark {
		d.log.Warn("Parking cap timed out. Retrying...")
	} else {
		d.log.Warn("Unparking cap timed out. Retrying...")
	}
	d.retryMotion(context.Background(), "watchdog")
}

// setMotionState publishes the motion state. Leaving Busy clears the
// watchdog. Caller holds d.mu.
func (d *Device) setMotionState(state OpState) {
	d.motion.state = state
	if state != OpBusy {
		d.cancelWatchdog()
	}
	d.publish(Event{
		Kind:      EventPark,
		State:     state,
		Direction: d.motion.direction,
		Switch:    d.motion.sw,
	})
}

// resolveCover reacts to a changed cover code. A terminal code completes a
// motion in the matching direction, or syncs the switch when no motion is
// outstanding. Caller holds d.mu.
func (d *Device) resolveCover(cover gastro.CoverState) {
	if !cover.Terminal() {
		return
	}

	dir := DirectionPark
	if cover == gastro.CoverOpen {
		dir = DirectionUnpark
	}

	switch d.motion.state {
	case OpBusy:
		if d.motion.direction != dir {
			return
		}
	case OpIdle:
		d.motion.direction = dir
	default:
		return
	}

	d.motion.sw = dir.parkSwitch()
	if dir == DirectionPark {
		d.log.Info("Cover closed.")
	} else {
		d.log.Info("Cover open.")
	}
	d.setMotionState(OpOk)
}

// checkCoverTimeout re-issues an outstanding motion when the firmware
// reports that the cover gave up. Caller holds d.mu.
func (d *Device) checkCoverTimeout(ctx context.Context) {
	if d.motion.state != OpBusy || d.status.Cover != gastro.CoverTimedOut {
		return
	}
	if d.motion.direction == DirectionPark {
		d.log.Warn("Cover reports timeout while parking. Retrying...")
	} else {
		d.log.Warn("Cover reports timeout while unparking. Retrying...")
	}
	d.retryMotion(ctx, "cover_timeout")
}

// simulatedStatus synthesizes the status codes of a simulated device and
// advances the simulated motion. Caller holds d.mu.
func (d *Device) simulatedStatus() gastro.StatusCodes {
	if d.motion.state == OpBusy {
		d.motion.simWork--
		if d.motion.simWork <= 0 {
			d.motion.simWork = 0
			d.setMotionState(OpOk)
		}
	}

	codes := gastro.StatusCodes{}
	if d.motion.state == OpBusy {
		codes.Motor = uint8(gastro.MotorRunning)
		codes.Cover = uint8(gastro.CoverNotOpenOrClosed)
	} else {
		codes.Motor = uint8(gastro.MotorStopped)
		codes.Cover = uint8(gastro.CoverOpen)
		if d.motion.sw == SwitchParked {
			codes.Cover = uint8(gastro.CoverClosed)
		}
	}
	if d.lightOn {
		codes.Light = uint8(gastro.LightOn)
	}
	return codes
}

// EnableLight switches the flat panel. It is refused while the cap is
// unparked, without any I/O.
func (d *Device) EnableLight(ctx context.Context, on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return ErrNotConnected
	}
	if d.motion.sw == SwitchUnparked {
		d.log.Error("Cannot control light while cap is unparked.")
		return fmt.Errorf("%w: cannot control light while cap is unparked", ErrPolicy)
	}

	if !d.cfg.Simulate {
		cmd := gastro.NewLight(d.dialect, on)
		resp, err := d.transport.Exchange(ctx, cmd)
		if err != nil {
			d.log.Error("Failed to switch light", "err", err)
			return err
		}
		if err := gastro.CheckAck(d.dialect, cmd.Frame[1], d.productID, resp); err != nil {
			d.stats.recordMismatch()
			d.metrics.decodeError("mismatch")
			return err
		}
	}

	d.syncLightSwitch(on)
	return nil
}

// syncLightSwitch updates the light switch and publishes when it changed.
// Caller holds d.mu.
func (d *Device) syncLightSwitch(on bool) {
	if d.lightOn == on && d.lightKnown {
		return
	}
	d.lightOn = on
	d.lightKnown = true
	d.metrics.light(on)
	d.publish(Event{Kind: EventLight, On: on})
}
