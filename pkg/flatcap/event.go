// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flatcap

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// EventKind identifies what changed.
type EventKind uint8

const (
	EventStatus EventKind = iota + 1
	EventPark
	EventLight
	EventNumber
	EventFirmware
	EventFocusMove
	EventConnection
	EventCompensation
)

func (k EventKind) String() string {
	switch k {
	case EventStatus:
		return "status"
	case EventPark:
		return "park"
	case EventLight:
		return "light"
	case EventNumber:
		return "number"
	case EventFirmware:
		return "firmware"
	case EventFocusMove:
		return "focus_move"
	case EventConnection:
		return "connection"
	case EventCompensation:
		return "compensation"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind name in JSON. CBOR keeps the integer.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Property names a numeric value carried by an EventNumber.
type Property string

const (
	PropBrightness     Property = "brightness"
	PropOpenAngle      Property = "open_angle"
	PropClosedAngle    Property = "closed_angle"
	PropPosition       Property = "position"
	PropTemperature    Property = "temperature"
	PropTempCoeff      Property = "temperature_coefficient"
	PropTempCalibrated Property = "temperature_calibration"
)

// Event is a state change notification. Only the fields relevant to Kind
// are set.
type Event struct {
	Kind EventKind `cbor:"0,keyasint" json:"kind"`
	At   time.Time `cbor:"1,keyasint" json:"at"`

	// EventStatus
	Status  *Status     `cbor:"2,keyasint,omitempty" json:"status,omitempty"`
	Changed []Component `cbor:"3,keyasint,omitempty" json:"changed,omitempty"`

	// EventNumber
	Property Property `cbor:"4,keyasint,omitempty" json:"property,omitempty"`
	Value    float64  `cbor:"5,keyasint,omitempty" json:"value"`

	// EventPark, EventFocusMove
	State     OpState    `cbor:"6,keyasint,omitempty" json:"state"`
	Direction Direction  `cbor:"7,keyasint,omitempty" json:"direction,omitempty"`
	Switch    ParkSwitch `cbor:"8,keyasint,omitempty" json:"switch,omitempty"`

	// EventLight, EventConnection, EventCompensation
	On bool `cbor:"9,keyasint,omitempty" json:"on,omitempty"`

	// EventFirmware and free text
	Text string `cbor:"10,keyasint,omitempty" json:"text,omitempty"`
}

func (e Event) String() string {
	switch e.Kind {
	case EventStatus:
		if e.Status != nil {
			return fmt.Sprintf("status: %s", e.Status)
		}
	case EventNumber:
		return fmt.Sprintf("%s = %g", e.Property, e.Value)
	case EventPark:
		return fmt.Sprintf("park %s: %s (%s)", e.Direction, e.State, e.Switch)
	case EventFocusMove:
		return fmt.Sprintf("focus move: %s", e.State)
	case EventLight, EventConnection, EventCompensation:
		return fmt.Sprintf("%s: %t", e.Kind, e.On)
	case EventFirmware:
		return fmt.Sprintf("firmware: %s", e.Text)
	}
	return e.Kind.String()
}

// Sink receives events. Publish is called with the device lock held and
// must not call back into the Device.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Publish calls f(e).
func (f SinkFunc) Publish(e Event) { f(e) }

// MultiSink fans an event out to several sinks in order.
type MultiSink []Sink

// Publish forwards e to every sink.
func (m MultiSink) Publish(e Event) {
	for _, s := range m {
		s.Publish(e)
	}
}

var eventEncMode cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	eventEncMode = mode
}

// EncodeEvent serializes an event as CBOR.
func EncodeEvent(e Event) ([]byte, error) {
	data, err := eventEncMode.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return data, nil
}

// DecodeEvent parses a CBOR event.
func DecodeEvent(data []byte) (Event, error) {
	var e Event
	if err := cbor.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return e, nil
}
