// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gastro

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProductID(t *testing.T) {
	id, err := ParseProductID("*P99000")
	require.NoError(t, err)
	assert.Equal(t, uint16(99), id)

	id, err = ParseProductID("*P01000")
	require.NoError(t, err)
	assert.Equal(t, uint16(1), id)

	_, err = ParseProductID("*P")
	require.ErrorIs(t, err, ErrParse)

	_, err = ParseProductID("*Pxx000")
	require.ErrorIs(t, err, ErrParse)
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue("*J01128")
	require.NoError(t, err)
	assert.Equal(t, 128, v)

	v, err = ParseValue("*Z99007")
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	// Non-numeric payload is a parse error, not a transport error
	_, err = ParseValue("*Z01abc")
	require.ErrorIs(t, err, ErrParse)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "value", perr.Field)
	assert.Equal(t, "*Z01abc", perr.Response)

	_, err = ParseValue("*Z01")
	require.ErrorIs(t, err, ErrParse)
}

func TestParseFirmware(t *testing.T) {
	v, err := ParseFirmware("*V99123")
	require.NoError(t, err)
	assert.Equal(t, "123", v)

	_, err = ParseFirmware("*V99")
	require.ErrorIs(t, err, ErrParse)
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name string
		resp string
		want StatusCodes
	}{
		{"closed light on", "*S99011", StatusCodes{Motor: 0, Light: 1, Cover: 1}},
		{"opening", "*S99100", StatusCodes{Motor: 1, Light: 0, Cover: 0}},
		{"open", "*S99002", StatusCodes{Motor: 0, Light: 0, Cover: 2}},
		{"timed out", "*S99003", StatusCodes{Motor: 0, Light: 0, Cover: 3}},
		{"trailing byte ignored", "*S990020", StatusCodes{Motor: 0, Light: 0, Cover: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStatus(tt.resp)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseStatus("*S9901")
	require.ErrorIs(t, err, ErrParse)
	_, err = ParseStatus("*S990x1")
	require.ErrorIs(t, err, ErrParse)
}

func TestStatusCodesFrame(t *testing.T) {
	codes := StatusCodes{Motor: 1, Light: 0, Cover: 2}
	frame := codes.Frame(42)
	assert.Equal(t, "*S42102", frame)

	got, err := ParseStatus(frame)
	require.NoError(t, err)
	assert.Equal(t, codes, got)
}

func TestCheckAck(t *testing.T) {
	require.NoError(t, CheckAck(DialectFlatcap, OpPark, 99, "*C99000"))
	require.NoError(t, CheckAck(DialectFlatcap, OpUnpark, 1, "*O01000"))
	require.NoError(t, CheckAck(DialectFocap, OpLightOn, 19, "*L19000"))

	err := CheckAck(DialectFlatcap, OpPark, 99, "*C98000")
	require.ErrorIs(t, err, ErrProtocolMismatch)

	err = CheckAck(DialectFlatcap, OpPark, 99, "*O99000")
	require.ErrorIs(t, err, ErrProtocolMismatch)

	// Focap light acks echo the argument
	err = CheckAck(DialectFocap, OpLightOff, 19, "*D19")
	require.ErrorIs(t, err, ErrProtocolMismatch)

	assert.Equal(t, "*C07", ExpectedAck(DialectFocap, OpPark, 7))
	assert.Equal(t, "*D07000", ExpectedAck(DialectFocap, OpLightOff, 7))
}

func TestParseFocuserValues(t *testing.T) {
	pos, err := ParsePosition("0A3F")
	require.NoError(t, err)
	assert.Equal(t, int32(0x0A3F), pos)

	_, err = ParsePosition("")
	require.ErrorIs(t, err, ErrParse)

	temp, err := ParseTemperature("0029")
	require.NoError(t, err)
	assert.InDelta(t, 20.5, temp, 1e-9)

	temp, err = ParseTemperature("FFE2")
	require.NoError(t, err)
	assert.InDelta(t, -15.0, temp, 1e-9)

	_, err = ParseTemperature("zz")
	require.ErrorIs(t, err, ErrParse)

	coeff, err := ParseTemperatureCoefficient("FB")
	require.NoError(t, err)
	assert.InDelta(t, -2.5, coeff, 1e-9)

	coeff, err = ParseTemperatureCoefficient("04")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, coeff, 1e-9)
}

func TestParseMoving(t *testing.T) {
	for _, resp := range []string{"1", "01", "01#"} {
		moving, err := ParseMoving(resp)
		require.NoError(t, err, resp)
		assert.True(t, moving, resp)
	}
	for _, resp := range []string{"0", "00", "0#"} {
		moving, err := ParseMoving(resp)
		require.NoError(t, err, resp)
		assert.False(t, moving, resp)
	}
	_, err := ParseMoving("?")
	require.ErrorIs(t, err, ErrParse)
}

func TestParseFocuserFirmware(t *testing.T) {
	v, err := ParseFocuserFirmware("12")
	require.NoError(t, err)
	assert.Equal(t, "1.2", v)

	_, err = ParseFocuserFirmware("1")
	require.ErrorIs(t, err, ErrParse)
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "Not Open/Closed", CoverNotOpenOrClosed.String())
	assert.Equal(t, "Closed", CoverClosed.String())
	assert.Equal(t, "Open", CoverOpen.String())
	assert.Equal(t, "Timed out", CoverTimedOut.String())
	assert.Equal(t, "Unknown", CoverState(7).String())
	assert.True(t, CoverClosed.Terminal())
	assert.False(t, CoverTimedOut.Terminal())
	assert.Equal(t, "On", LightOn.String())
	assert.Equal(t, "Running", MotorRunning.String())
	assert.Equal(t, "Moving", FocuserMoving.String())
}
