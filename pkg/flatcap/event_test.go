// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flatcap

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/flatcap/pkg/gastro"
)

func TestEventCBOR(t *testing.T) {
	status := Status{Cover: gastro.CoverClosed, Light: gastro.LightOn, HasFocuser: true}
	in := Event{
		Kind:    EventStatus,
		At:      time.Date(2025, 3, 1, 12, 0, 0, 500, time.UTC),
		Status:  &status,
		Changed: []Component{ComponentCover, ComponentLight},
	}

	data, err := EncodeEvent(in)
	require.NoError(t, err)

	out, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, EventStatus, out.Kind)
	assert.True(t, in.At.Equal(out.At))
	require.NotNil(t, out.Status)
	assert.Equal(t, status, *out.Status)
	assert.Equal(t, in.Changed, out.Changed)

	_, err = DecodeEvent([]byte{0xff})
	require.Error(t, err)
}

func TestEventJSONUsesNames(t *testing.T) {
	data, err := json.Marshal(Event{Kind: EventPark, State: OpBusy, Direction: DirectionPark, Switch: SwitchParked})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"Busy"`)
	assert.Contains(t, string(data), `"direction":"park"`)
	assert.Contains(t, string(data), `"switch":"parked"`)
	assert.Contains(t, string(data), `"kind":"park"`)
}

func TestEventJSON_ZeroValuesKept(t *testing.T) {
	data, err := json.Marshal(Event{Kind: EventNumber, Property: PropClosedAngle, Value: 0})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"number"`)
	assert.Contains(t, string(data), `"value":0`)

	data, err = json.Marshal(Event{Kind: EventPark, State: OpIdle})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"Idle"`)
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "brightness = 128", Event{Kind: EventNumber, Property: PropBrightness, Value: 128}.String())
	assert.Equal(t, "light: true", Event{Kind: EventLight, On: true}.String())
	assert.Equal(t, "park park: Busy (parked)", Event{Kind: EventPark, State: OpBusy, Direction: DirectionPark, Switch: SwitchParked}.String())
}

func TestMultiSink(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	var n int
	MultiSink{a, b, SinkFunc(func(Event) { n++ })}.Publish(Event{Kind: EventLight})
	assert.Equal(t, 1, a.len())
	assert.Equal(t, 1, b.len())
	assert.Equal(t, 1, n)
}
