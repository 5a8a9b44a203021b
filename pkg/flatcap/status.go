// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flatcap

import (
	"fmt"

	"github.com/Thermoquad/flatcap/pkg/gastro"
)

// Component is one field of the device status.
type Component int

const (
	ComponentCover Component = iota
	ComponentLight
	ComponentMotor
	ComponentFocuser
	componentCount
)

func (c Component) String() string {
	switch c {
	case ComponentCover:
		return "cover"
	case ComponentLight:
		return "light"
	case ComponentMotor:
		return "motor"
	case ComponentFocuser:
		return "focuser"
	default:
		return "unknown"
	}
}

// MarshalText renders the component name in JSON.
func (c Component) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Status is the decoded device status.
type Status struct {
	Cover      gastro.CoverState   `cbor:"0,keyasint" json:"cover"`
	Light      gastro.LightState   `cbor:"1,keyasint" json:"light"`
	Motor      gastro.MotorState   `cbor:"2,keyasint" json:"motor"`
	Focuser    gastro.FocuserState `cbor:"3,keyasint" json:"focuser"`
	HasFocuser bool                `cbor:"4,keyasint" json:"has_focuser"`
}

func (s Status) String() string {
	str := fmt.Sprintf("cover=%s light=%s motor=%s", s.Cover, s.Light, s.Motor)
	if s.HasFocuser {
		str += fmt.Sprintf(" focuser=%s", s.Focuser)
	}
	return str
}

const (
	// codeUnknown is the initial previous-code value. No device reports it,
	// so the first status is always published.
	codeUnknown uint8 = 0xFF

	// codeForceRefresh is out of range for every status field. Writing it
	// after a motion command makes the next status publish unconditionally.
	codeForceRefresh uint8 = 10
)

// statusCells remembers the last code seen for each component.
type statusCells [componentCount]uint8

func newStatusCells() statusCells {
	var c statusCells
	for i := range c {
		c[i] = codeUnknown
	}
	return c
}

// observe stores code and reports whether it differs from the previous one.
func (c *statusCells) observe(comp Component, code uint8) bool {
	if c[comp] == code {
		return false
	}
	c[comp] = code
	return true
}

func (c *statusCells) forceRefresh(comp Component) {
	c[comp] = codeForceRefresh
}

// applyStatus runs codes through the change detector, updates the decoded
// status and emits one aggregated event when anything changed. moving is
// nil when the dialect has no focuser or the query failed. Returns the
// components that changed. Caller holds d.mu.
func (d *Device) applyStatus(codes gastro.StatusCodes, moving *bool) []Component {
	var changed []Component

	if moving != nil {
		fs := gastro.FocuserStopped
		if *moving {
			fs = gastro.FocuserMoving
		}
		if d.cells.observe(ComponentFocuser, uint8(fs)) {
			d.status.Focuser = fs
			changed = append(changed, ComponentFocuser)
		}
	}

	if d.cells.observe(ComponentCover, codes.Cover) {
		d.status.Cover = gastro.CoverState(codes.Cover)
		changed = append(changed, ComponentCover)
		d.metrics.cover(codes.Cover)
		d.resolveCover(d.status.Cover)
	}

	if d.cells.observe(ComponentLight, codes.Light) {
		d.status.Light = gastro.LightState(codes.Light)
		changed = append(changed, ComponentLight)
		d.syncLightSwitch(d.status.Light == gastro.LightOn)
	}

	if d.cells.observe(ComponentMotor, codes.Motor) {
		d.status.Motor = gastro.MotorState(codes.Motor)
		changed = append(changed, ComponentMotor)
	}

	if len(changed) > 0 {
		snap := d.status
		d.publish(Event{Kind: EventStatus, Status: &snap, Changed: changed})
	}
	return changed
}
