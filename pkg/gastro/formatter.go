// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gastro

import (
	"fmt"
	"strings"
)

// FormatOpcode returns the human-readable name for an opcode
func FormatOpcode(op string) string {
	switch op {
	// Cap
	case string(OpPing):
		return "PING"
	case string(OpPark):
		return "PARK"
	case string(OpUnpark):
		return "UNPARK"
	case string(OpSetOpenAngle):
		return "SET_OPEN_ANGLE"
	case string(OpSetCloseAngle):
		return "SET_CLOSED_ANGLE"
	case string(OpGetOpenAngle):
		return "GET_OPEN_ANGLE"
	case string(OpGetCloseAngle):
		return "GET_CLOSED_ANGLE"
	case string(OpSetBrightness):
		return "SET_BRIGHTNESS"
	case string(OpGetBrightness):
		return "GET_BRIGHTNESS"
	case string(OpLightOn):
		return "LIGHT_ON"
	case string(OpLightOff):
		return "LIGHT_OFF"
	case string(OpFirmware):
		return "FIRMWARE"
	case string(OpStatus):
		return "STATUS"

	// Focuser
	case OpGetPosition:
		return "GET_POSITION"
	case OpGetTemperature:
		return "GET_TEMPERATURE"
	case OpGetTempCoefficient:
		return "GET_TEMP_COEFFICIENT"
	case OpIsMoving:
		return "IS_MOVING"
	case OpFocuserFirmware:
		return "FOCUSER_FIRMWARE"
	case OpSetTempCalibration:
		return "SET_TEMP_CALIBRATION"
	case OpSetTempCoefficient:
		return "SET_TEMP_COEFFICIENT"
	case OpCompensationOn:
		return "COMPENSATION_ON"
	case OpCompensationOff:
		return "COMPENSATION_OFF"
	case OpSyncPosition:
		return "SYNC_POSITION"
	case OpSetTarget:
		return "SET_TARGET"
	case OpGoToTarget:
		return "GO_TO_TARGET"
	case OpAbort:
		return "ABORT"

	default:
		return "UNKNOWN"
	}
}

// FormatExchange formats a command and its response on one line.
func FormatExchange(cmd Command, resp string) string {
	return fmt.Sprintf("%s (%s) -> %q", FormatOpcode(cmd.Op), cmd, resp)
}

// ParseFrame turns a user-typed frame such as ">S000" or ":GP#" into a
// Command for the given dialect. A missing terminator is appended.
func ParseFrame(d Dialect, text string) (Command, error) {
	text = strings.TrimSpace(text)
	if len(text) < 2 {
		return Command{}, fmt.Errorf("frame too short: %q", text)
	}
	switch text[0] {
	case CapSentinel:
		text = strings.TrimRight(text, "\n#")
		if len(text) != CapCommandSize-1 {
			return Command{}, fmt.Errorf("cap frame must be %d characters, got %q", CapCommandSize-1, text)
		}
		arg, ok := leadingDecimal(text[2:])
		if !ok || arg < 0 {
			return Command{}, fmt.Errorf("cap frame argument is not numeric: %q", text)
		}
		return newCapCommand(d, text[1], arg), nil
	case FocuserSentinel:
		if !d.HasFocuser() {
			return Command{}, fmt.Errorf("dialect %s has no focuser commands", d)
		}
		body := strings.TrimSuffix(text[1:], string(TerminatorHash))
		op, arg := body, ""
		if len(body) > 2 {
			op, arg = body[:2], body[2:]
		}
		switch op {
		case OpFocuserFirmware:
			return NewFocuserFirmwareQuery(), nil
		case OpGetPosition, OpGetTemperature, OpGetTempCoefficient, OpIsMoving:
			return newFocuserCommand(op, arg, ReplyDelimited), nil
		default:
			return newFocuserCommand(op, arg, ReplyNone), nil
		}
	default:
		return Command{}, fmt.Errorf("frame must start with %q or %q: %q", CapSentinel, FocuserSentinel, text)
	}
}
