// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flatcap

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/Thermoquad/flatcap/pkg/gastro"
)

// FocuserState is the focap focuser view.
type FocuserState struct {
	Firmware     string  `json:"firmware"`
	Position     int32   `json:"position"`
	Target       uint32  `json:"target"`
	Temperature  float64 `json:"temperature"`
	Coefficient  float64 `json:"coefficient"`
	Calibration  float64 `json:"calibration"`
	Compensation bool    `json:"compensation"`
	Move         OpState `json:"move"`
}

// focuser adds the last published values used for change thresholds.
type focuser struct {
	FocuserState

	lastPosition    int32
	lastTemperature float64
}

// FocusDirection is the direction of a relative focuser move.
type FocusDirection int

const (
	FocusInward FocusDirection = iota
	FocusOutward
)

func (d *Device) requireFocuser() error {
	if !d.connected {
		return ErrNotConnected
	}
	if !d.dialect.HasFocuser() {
		return fmt.Errorf("%w: %s has no focuser", ErrUnsupported, d.dialect)
	}
	return nil
}

// MoveFocuser starts an absolute move. The move stays Busy until a poll
// sees the focuser stop.
func (d *Device) MoveFocuser(ctx context.Context, target uint32) (OpState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.requireFocuser(); err != nil {
		return OpAlert, err
	}
	return d.moveFocuser(ctx, target)
}

// MoveFocuserRelative moves by ticks, clamped to [0, MaxPosition].
func (d *Device) MoveFocuserRelative(ctx context.Context, dir FocusDirection, ticks uint32) (OpState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.requireFocuser(); err != nil {
		return OpAlert, err
	}

	target := int64(d.focuser.Position)
	if dir == FocusInward {
		target -= int64(ticks)
	} else {
		target += int64(ticks)
	}
	target = max(0, min(target, int64(d.cfg.MaxPosition)))
	return d.moveFocuser(ctx, uint32(target))
}

func (d *Device) moveFocuser(ctx context.Context, target uint32) (OpState, error) {
	if target > d.cfg.MaxPosition {
		return OpAlert, fmt.Errorf("%w: target %d above %d", ErrOutOfRange, target, d.cfg.MaxPosition)
	}

	d.focuser.Target = target
	if d.cfg.Simulate {
		d.focuser.Position = int32(target)
	} else {
		for _, cmd := range []gastro.Command{gastro.NewSetTarget(target), gastro.NewGoToTarget()} {
			if _, err := d.transport.Exchange(ctx, cmd); err != nil {
				d.log.Error("Failed to move focuser", "target", target, "err", err)
				d.setFocusMove(OpAlert)
				return OpAlert, err
			}
		}
	}

	d.setFocusMove(OpBusy)
	return OpBusy, nil
}

// SyncFocuser redefines the current position without moving.
func (d *Device) SyncFocuser(ctx context.Context, ticks uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.requireFocuser(); err != nil {
		return err
	}
	if ticks > d.cfg.MaxPosition {
		return fmt.Errorf("%w: position %d above %d", ErrOutOfRange, ticks, d.cfg.MaxPosition)
	}
	if !d.cfg.Simulate {
		if _, err := d.transport.Exchange(ctx, gastro.NewSyncPosition(ticks)); err != nil {
			return err
		}
	}
	d.focuser.Position = int32(ticks)
	d.focuser.lastPosition = int32(ticks)
	d.publish(Event{Kind: EventNumber, Property: PropPosition, Value: float64(ticks)})
	return nil
}

// AbortFocuser stops a focuser move.
func (d *Device) AbortFocuser(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.requireFocuser(); err != nil {
		return err
	}
	if !d.cfg.Simulate {
		if _, err := d.transport.Exchange(ctx, gastro.NewAbort()); err != nil {
			return err
		}
	}
	d.setFocusMove(OpIdle)
	return nil
}

// SetTemperatureCalibration sets the temperature sensor offset in degrees.
func (d *Device) SetTemperatureCalibration(ctx context.Context, offset float64) error {
	cmd, err := gastro.NewSetTemperatureCalibration(offset)
	if err != nil {
		return err
	}
	return d.focuserSetting(ctx, cmd, func() {
		d.focuser.Calibration = offset
		d.publish(Event{Kind: EventNumber, Property: PropTempCalibrated, Value: offset})
	})
}

// SetTemperatureCoefficient sets the compensation coefficient in steps per degree.
func (d *Device) SetTemperatureCoefficient(ctx context.Context, coefficient float64) error {
	cmd, err := gastro.NewSetTemperatureCoefficient(coefficient)
	if err != nil {
		return err
	}
	return d.focuserSetting(ctx, cmd, func() {
		d.focuser.Coefficient = coefficient
		d.publish(Event{Kind: EventNumber, Property: PropTempCoeff, Value: coefficient})
	})
}

// SetTemperatureCompensation enables or disables temperature compensation.
func (d *Device) SetTemperatureCompensation(ctx context.Context, enable bool) error {
	return d.focuserSetting(ctx, gastro.NewTemperatureCompensation(enable), func() {
		d.focuser.Compensation = enable
		d.publish(Event{Kind: EventCompensation, On: enable})
	})
}

func (d *Device) focuserSetting(ctx context.Context, cmd gastro.Command, apply func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.requireFocuser(); err != nil {
		return err
	}
	if !d.cfg.Simulate {
		if _, err := d.transport.Exchange(ctx, cmd); err != nil {
			d.log.Error("Focuser setting failed", "cmd", cmd.String(), "err", err)
			return err
		}
	}
	apply()
	return nil
}

func (d *Device) setFocusMove(state OpState) {
	d.focuser.Move = state
	d.publish(Event{Kind: EventFocusMove, State: state})
}

func (d *Device) loadFocuserData(ctx context.Context) error {
	var errs []error

	resp, err := d.transport.Exchange(ctx, gastro.NewFocuserFirmwareQuery())
	if err == nil {
		var fw string
		if fw, err = gastro.ParseFocuserFirmware(resp); err == nil {
			d.focuser.Firmware = fw
			d.log.Info("Detected focuser firmware", "version", fw)
		}
	}
	if err != nil {
		errs = append(errs, err)
	}

	if pos, err := d.queryPosition(ctx); err == nil {
		d.focuser.Position = pos
		d.focuser.Target = uint32(max(pos, 0))
	} else {
		errs = append(errs, err)
	}
	if temp, err := d.queryTemperature(ctx); err == nil {
		d.focuser.Temperature = temp
	} else {
		errs = append(errs, err)
	}
	if coeff, err := d.queryCoefficient(ctx); err == nil {
		d.focuser.Coefficient = coeff
	} else {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// pollFocuser publishes position and temperature past their thresholds and
// completes a move once the focuser stops. moving is the flag read with the
// status in the same tick, or nil. Caller holds d.mu.
func (d *Device) pollFocuser(ctx context.Context, moving *bool) {
	if pos, err := d.queryPosition(ctx); err == nil {
		d.focuser.Position = pos
		if math.Abs(float64(pos)-float64(d.focuser.lastPosition)) > d.cfg.PositionThreshold {
			d.focuser.lastPosition = pos
			d.publish(Event{Kind: EventNumber, Property: PropPosition, Value: float64(pos)})
		}
	}

	if temp, err := d.queryTemperature(ctx); err == nil {
		d.focuser.Temperature = temp
		if math.Abs(temp-d.focuser.lastTemperature) >= d.cfg.TemperatureThreshold {
			d.focuser.lastTemperature = temp
			d.publish(Event{Kind: EventNumber, Property: PropTemperature, Value: temp})
		}
	}
	d.metrics.focuser(d.focuser.Position, d.focuser.Temperature)

	if d.focuser.Move != OpBusy {
		return
	}
	if moving == nil {
		m, err := d.queryMoving(ctx)
		if err != nil {
			return
		}
		moving = &m
	}
	if !*moving {
		d.log.Info("Focuser reached requested position.")
		d.focuser.lastPosition = d.focuser.Position
		d.publish(Event{Kind: EventNumber, Property: PropPosition, Value: float64(d.focuser.Position)})
		d.setFocusMove(OpOk)
	}
}

func (d *Device) queryPosition(ctx context.Context) (int32, error) {
	if d.cfg.Simulate {
		return d.focuser.Position, nil
	}
	resp, err := d.transport.Exchange(ctx, gastro.NewGetPosition())
	if err != nil {
		return 0, err
	}
	pos, err := gastro.ParsePosition(resp)
	if err != nil {
		d.parseFailed(err)
	}
	return pos, err
}

func (d *Device) queryTemperature(ctx context.Context) (float64, error) {
	if d.cfg.Simulate {
		return d.focuser.Temperature, nil
	}
	resp, err := d.transport.Exchange(ctx, gastro.NewGetTemperature())
	if err != nil {
		return 0, err
	}
	temp, err := gastro.ParseTemperature(resp)
	if err != nil {
		d.parseFailed(err)
	}
	return temp, err
}

func (d *Device) queryCoefficient(ctx context.Context) (float64, error) {
	resp, err := d.transport.Exchange(ctx, gastro.NewGetTemperatureCoefficient())
	if err != nil {
		return 0, err
	}
	coeff, err := gastro.ParseTemperatureCoefficient(resp)
	if err != nil {
		d.parseFailed(err)
	}
	return coeff, err
}

func (d *Device) queryMoving(ctx context.Context) (bool, error) {
	if d.cfg.Simulate {
		return false, nil
	}
	resp, err := d.transport.Exchange(ctx, gastro.NewIsMoving())
	if err != nil {
		return false, err
	}
	moving, err := gastro.ParseMoving(resp)
	if err != nil {
		d.parseFailed(err)
	}
	return moving, err
}
