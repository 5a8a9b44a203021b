// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gastro

import (
	"fmt"
	"strconv"
	"strings"
)

// Decoders take a response with the terminator already stripped.

// ParseProductID extracts the two-digit product id from a ping response.
func ParseProductID(resp string) (uint16, error) {
	v, ok := leadingDecimal(field(resp, OffsetProductID, 2))
	if !ok || v < 0 {
		return 0, parseError("product id", resp)
	}
	return uint16(v), nil
}

// ParseValue extracts the three-digit value (angle or brightness) at offset 4.
func ParseValue(resp string) (int, error) {
	v, ok := leadingDecimal(field(resp, OffsetValue, 3))
	if !ok {
		return 0, parseError("value", resp)
	}
	return v, nil
}

// ParseFirmware extracts the firmware version text at offset 4.
func ParseFirmware(resp string) (string, error) {
	v := strings.TrimSpace(field(resp, OffsetValue, 3))
	if v == "" {
		return "", parseError("firmware version", resp)
	}
	return v, nil
}

// ParseStatus extracts the motor, light and cover codes of a status response.
func ParseStatus(resp string) (StatusCodes, error) {
	if len(resp) <= OffsetCover {
		return StatusCodes{}, parseError("status", resp)
	}
	var codes [3]uint8
	for i, off := range []int{OffsetMotor, OffsetLight, OffsetCover} {
		c := resp[off]
		if c < '0' || c > '9' {
			return StatusCodes{}, parseError("status", resp)
		}
		codes[i] = c - '0'
	}
	return StatusCodes{Motor: codes[0], Light: codes[1], Cover: codes[2]}, nil
}

// ExpectedAck returns the acknowledgement a device with the given product id
// sends for a cap opcode. The focap echoes the argument of light commands.
func ExpectedAck(d Dialect, op byte, productID uint16) string {
	ack := fmt.Sprintf("%c%c%02d", AckSentinel, op, productID)
	if d == DialectFocap && (op == OpLightOn || op == OpLightOff) {
		ack += "000"
	}
	return ack
}

// CheckAck verifies that resp acknowledges op from the expected device.
func CheckAck(d Dialect, op byte, productID uint16, resp string) error {
	want := ExpectedAck(d, op, productID)
	if !strings.Contains(resp, want) {
		return fmt.Errorf("%w: want %q, got %q", ErrProtocolMismatch, want, resp)
	}
	return nil
}

// ParsePosition decodes a hex focuser position.
func ParsePosition(resp string) (int32, error) {
	v, ok := leadingHex(resp)
	if !ok {
		return 0, parseError("focuser position", resp)
	}
	return int32(uint32(v)), nil
}

// ParseTemperature decodes a signed 16-bit hex temperature in half degrees.
func ParseTemperature(resp string) (float64, error) {
	v, ok := leadingHex(resp)
	if !ok {
		return 0, parseError("focuser temperature", resp)
	}
	return float64(int16(uint16(v))) / 2, nil
}

// ParseTemperatureCoefficient decodes a signed 8-bit hex coefficient in half steps.
func ParseTemperatureCoefficient(resp string) (float64, error) {
	v, ok := leadingHex(resp)
	if !ok {
		return 0, parseError("temperature coefficient", resp)
	}
	return float64(int8(uint8(v))) / 2, nil
}

// ParseMoving decodes the is-moving reply. Firmware sends "1#" or "01#".
func ParseMoving(resp string) (bool, error) {
	s := strings.TrimSuffix(strings.TrimSpace(resp), string(TerminatorHash))
	switch s {
	case "1", "01":
		return true, nil
	case "0", "00":
		return false, nil
	default:
		return false, parseError("moving flag", resp)
	}
}

// ParseFocuserFirmware decodes the two-digit focuser firmware as "major.minor".
func ParseFocuserFirmware(resp string) (string, error) {
	if len(resp) < FocuserFirmwareLen {
		return "", parseError("focuser firmware", resp)
	}
	return fmt.Sprintf("%c.%c", resp[0], resp[1]), nil
}

// field returns up to n bytes of resp starting at offset.
func field(resp string, offset, n int) string {
	if offset >= len(resp) {
		return ""
	}
	end := offset + n
	if end > len(resp) {
		end = len(resp)
	}
	return resp[offset:end]
}

// leadingDecimal parses an optionally signed decimal prefix, ignoring trailing bytes.
func leadingDecimal(s string) (int, bool) {
	s = strings.TrimLeft(s, " \t")
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	j := i
	for j < len(s) && s[j] >= '0' && s[j] <= '9' {
		j++
	}
	if j == i {
		return 0, false
	}
	v, err := strconv.Atoi(s[:j])
	if err != nil {
		return 0, false
	}
	return v, true
}

// leadingHex parses a hex prefix of at most eight digits.
func leadingHex(s string) (uint64, bool) {
	s = strings.TrimLeft(s, " \t")
	j := 0
	for j < len(s) && j < 8 && isHexDigit(s[j]) {
		j++
	}
	if j == 0 {
		return 0, false
	}
	v, err := strconv.ParseUint(s[:j], 16, 32)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
