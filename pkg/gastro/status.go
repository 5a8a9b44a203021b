// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gastro

// CoverState is the cover code reported in a status frame.
type CoverState uint8

const (
	CoverNotOpenOrClosed CoverState = 0
	CoverClosed          CoverState = 1
	CoverOpen            CoverState = 2
	CoverTimedOut        CoverState = 3
)

func (s CoverState) String() string {
	switch s {
	case CoverNotOpenOrClosed:
		return "Not Open/Closed"
	case CoverClosed:
		return "Closed"
	case CoverOpen:
		return "Open"
	case CoverTimedOut:
		return "Timed out"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the cover has finished a motion.
func (s CoverState) Terminal() bool {
	return s == CoverClosed || s == CoverOpen
}

// LightState is the light code reported in a status frame.
type LightState uint8

const (
	LightOff LightState = 0
	LightOn  LightState = 1
)

func (s LightState) String() string {
	switch s {
	case LightOff:
		return "Off"
	case LightOn:
		return "On"
	default:
		return "Unknown"
	}
}

// MotorState is the cover motor code reported in a status frame.
type MotorState uint8

const (
	MotorStopped MotorState = 0
	MotorRunning MotorState = 1
)

func (s MotorState) String() string {
	switch s {
	case MotorStopped:
		return "Stopped"
	case MotorRunning:
		return "Running"
	default:
		return "Unknown"
	}
}

// FocuserState comes from the focuser is-moving query, not the status frame.
type FocuserState uint8

const (
	FocuserStopped FocuserState = 0
	FocuserMoving  FocuserState = 1
)

func (s FocuserState) String() string {
	switch s {
	case FocuserStopped:
		return "Stopped"
	case FocuserMoving:
		return "Moving"
	default:
		return "Unknown"
	}
}

// StatusCodes holds the raw single-digit codes of one status frame.
type StatusCodes struct {
	Motor uint8
	Light uint8
	Cover uint8
}

// Frame renders codes back into a status response for the given product id.
// Used by the simulator to feed synthesized frames through the same decoder.
func (c StatusCodes) Frame(productID uint16) string {
	return string([]byte{
		AckSentinel, OpStatus,
		byte('0' + productID/10%10), byte('0' + productID%10),
		'0' + c.Motor, '0' + c.Light, '0' + c.Cover,
	})
}
