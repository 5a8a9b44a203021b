// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gastro

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ReplyKind says how a response to a command is delimited.
type ReplyKind int

const (
	// ReplyDelimited responses end with the terminator.
	ReplyDelimited ReplyKind = iota
	// ReplyFixed responses are a fixed number of bytes with no terminator.
	ReplyFixed
	// ReplyNone commands are write-only.
	ReplyNone
)

// Command is one encoded request frame plus what the transport needs to
// read its response.
type Command struct {
	Op         string        // opcode, e.g. "S" or "GP"
	Frame      string        // wire bytes including the terminator
	Reply      ReplyKind     // how the response is delimited
	Terminator byte          // response terminator for ReplyDelimited
	ReplyLen   int           // maximum (delimited) or exact (fixed) response length
	Timeout    time.Duration // read timeout
}

// IsMotion reports whether the command moves the cover.
func (c Command) IsMotion() bool {
	return c.Op == string(OpPark) || c.Op == string(OpUnpark)
}

// String returns the frame for logs, without the cap terminator.
func (c Command) String() string {
	if len(c.Frame) > 0 && c.Frame[0] == CapSentinel {
		return strings.TrimRight(c.Frame, "\n#")
	}
	return c.Frame
}

// newCapCommand formats '>' + op + %03d + terminator.
func newCapCommand(d Dialect, op byte, arg int) Command {
	return Command{
		Op:         string(op),
		Frame:      fmt.Sprintf("%c%c%03d%c", CapSentinel, op, arg, d.Terminator()),
		Reply:      ReplyDelimited,
		Terminator: d.Terminator(),
		ReplyLen:   d.ResponseSize(),
		Timeout:    d.Timeout(op),
	}
}

func newCapCommandChecked(d Dialect, op byte, arg, lo, hi int) (Command, error) {
	if arg < lo || arg > hi {
		return Command{}, fmt.Errorf("%w: %c%03d (valid %d-%d)", ErrOutOfRange, op, arg, lo, hi)
	}
	return newCapCommand(d, op, arg), nil
}

// newFocuserCommand formats ':' + op + arg + '#'.
func newFocuserCommand(op, arg string, reply ReplyKind) Command {
	cmd := Command{
		Op:         op,
		Frame:      fmt.Sprintf("%c%s%s%c", FocuserSentinel, op, arg, TerminatorHash),
		Reply:      reply,
		Terminator: TerminatorHash,
		ReplyLen:   FocuserResponseMax,
		Timeout:    FocuserTimeout,
	}
	if reply == ReplyNone {
		cmd.ReplyLen = 0
	}
	return cmd
}

// NewPing creates a ping; the response carries the product id.
func NewPing(d Dialect) Command { return newCapCommand(d, OpPing, 0) }

// NewPark closes the cover.
func NewPark(d Dialect) Command { return newCapCommand(d, OpPark, 0) }

// NewUnpark opens the cover.
func NewUnpark(d Dialect) Command { return newCapCommand(d, OpUnpark, 0) }

// NewStatusQuery requests the motor, light and cover codes.
func NewStatusQuery(d Dialect) Command { return newCapCommand(d, OpStatus, 0) }

// NewFirmwareQuery requests the cap firmware version.
func NewFirmwareQuery(d Dialect) Command { return newCapCommand(d, OpFirmware, 0) }

// NewGetOpenAngle requests the configured open angle.
func NewGetOpenAngle(d Dialect) Command { return newCapCommand(d, OpGetOpenAngle, 0) }

// NewGetClosedAngle requests the configured closed angle.
func NewGetClosedAngle(d Dialect) Command { return newCapCommand(d, OpGetCloseAngle, 0) }

// NewGetBrightness requests the light brightness.
func NewGetBrightness(d Dialect) Command { return newCapCommand(d, OpGetBrightness, 0) }

// NewLight switches the light on or off.
func NewLight(d Dialect, on bool) Command {
	if on {
		return newCapCommand(d, OpLightOn, 0)
	}
	return newCapCommand(d, OpLightOff, 0)
}

// NewSetOpenAngle sets the angle the cover opens to.
func NewSetOpenAngle(d Dialect, angle int) (Command, error) {
	return newCapCommandChecked(d, OpSetOpenAngle, angle, 0, d.MaxAngle())
}

// NewSetClosedAngle sets the angle the cover closes to.
func NewSetClosedAngle(d Dialect, angle int) (Command, error) {
	return newCapCommandChecked(d, OpSetCloseAngle, angle, 0, d.MaxAngle())
}

// NewSetBrightness sets the light brightness.
func NewSetBrightness(d Dialect, value int) (Command, error) {
	return newCapCommandChecked(d, OpSetBrightness, value, d.MinBrightness(), MaxBrightness)
}

// NewGetPosition requests the focuser position.
func NewGetPosition() Command { return newFocuserCommand(OpGetPosition, "", ReplyDelimited) }

// NewGetTemperature requests the focuser temperature.
func NewGetTemperature() Command { return newFocuserCommand(OpGetTemperature, "", ReplyDelimited) }

// NewGetTemperatureCoefficient requests the temperature compensation coefficient.
func NewGetTemperatureCoefficient() Command {
	return newFocuserCommand(OpGetTempCoefficient, "", ReplyDelimited)
}

// NewIsMoving asks whether the focuser motor is running.
func NewIsMoving() Command { return newFocuserCommand(OpIsMoving, "", ReplyDelimited) }

// NewFocuserFirmwareQuery requests the focuser firmware. The firmware
// replies with two digits and omits the terminator.
func NewFocuserFirmwareQuery() Command {
	cmd := newFocuserCommand(OpFocuserFirmware, "", ReplyFixed)
	cmd.ReplyLen = FocuserFirmwareLen
	return cmd
}

// NewSetTemperatureCalibration sets the temperature sensor offset in degrees.
func NewSetTemperatureCalibration(offset float64) (Command, error) {
	arg, err := encodeHalfSteps(offset)
	if err != nil {
		return Command{}, err
	}
	return newFocuserCommand(OpSetTempCalibration, arg, ReplyNone), nil
}

// NewSetTemperatureCoefficient sets the compensation coefficient in steps per degree.
func NewSetTemperatureCoefficient(coefficient float64) (Command, error) {
	arg, err := encodeHalfSteps(coefficient)
	if err != nil {
		return Command{}, err
	}
	return newFocuserCommand(OpSetTempCoefficient, arg, ReplyNone), nil
}

// NewTemperatureCompensation enables or disables temperature compensation.
func NewTemperatureCompensation(enable bool) Command {
	if enable {
		return newFocuserCommand(OpCompensationOn, "", ReplyNone)
	}
	return newFocuserCommand(OpCompensationOff, "", ReplyNone)
}

// NewSyncPosition redefines the current focuser position.
func NewSyncPosition(ticks uint32) Command {
	return newFocuserCommand(OpSyncPosition, fmt.Sprintf("%04X", ticks), ReplyNone)
}

// NewSetTarget stores the target position; NewGoToTarget starts the move.
func NewSetTarget(ticks uint32) Command {
	return newFocuserCommand(OpSetTarget, fmt.Sprintf("%04X", ticks), ReplyNone)
}

// NewGoToTarget starts motion toward the stored target.
func NewGoToTarget() Command { return newFocuserCommand(OpGoToTarget, "", ReplyNone) }

// NewAbort stops the focuser.
func NewAbort() Command { return newFocuserCommand(OpAbort, "", ReplyNone) }

// encodeHalfSteps encodes a value as a two's complement byte counting half units.
func encodeHalfSteps(v float64) (string, error) {
	steps := v * 2
	if math.IsNaN(steps) || steps < math.MinInt8 || steps > math.MaxInt8 {
		return "", fmt.Errorf("%w: %.1f (valid %.1f to %.1f)", ErrOutOfRange, v, float64(math.MinInt8)/2, float64(math.MaxInt8)/2)
	}
	return fmt.Sprintf("%02X", uint8(int8(steps))), nil
}
