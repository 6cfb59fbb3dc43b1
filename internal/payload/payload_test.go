package payload_test

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/linesights/powermon/internal/payload"
	"github.com/linesights/powermon/internal/power"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMeta() payload.Meta {
	return payload.Meta{
		DeviceID: "powermon_test",
		Location: "Rockhill",
		Timezone: "America/New_York",
		Voltage:  120.0,
	}
}

func TestBuildRendersAllSixSlots(t *testing.T) {
	readings := map[int]*power.Reading{
		1: {PowerW: 120.04, CurrentA: 1.2004, PowerFactor: 0.9},
		2: {PowerW: 45.0, CurrentA: 0.4, PowerFactor: 0.9},
		3: {PowerW: 0.0, CurrentA: 0.0, PowerFactor: 0.0},
		// Slots 4-6 absent: sensors disconnected.
	}

	p := payload.Build(readings, testMeta(), time.Now())

	require.Len(t, p.Readings.CTs, 6)
	assert.Equal(t, payload.CTEntry{RealPowerW: 120.0, Amps: 1.2, PF: 0.9}, p.Readings.CTs["ct_1"])
	assert.Equal(t, payload.CTEntry{RealPowerW: 45.0, Amps: 0.4, PF: 0.9}, p.Readings.CTs["ct_2"])
	assert.Equal(t, payload.CTEntry{}, p.Readings.CTs["ct_3"])
	for _, slot := range []string{"ct_4", "ct_5", "ct_6"} {
		assert.Equal(t, payload.CTEntry{RealPowerW: 0.0, Amps: 0.0, PF: 0.0}, p.Readings.CTs[slot])
	}
	assert.Equal(t, 120.0, p.Readings.VoltageRMS)
}

func TestBuildTimestampFormat(t *testing.T) {
	at := time.Date(2025, 7, 24, 13, 30, 15, 123_456_789, time.UTC)
	p := payload.Build(nil, testMeta(), at)

	assert.Equal(t, "2025-07-24T13:30:15.123Z", p.Timestamp)

	// Non-UTC inputs are normalized before formatting.
	est := time.FixedZone("EST", -5*3600)
	p = payload.Build(nil, testMeta(), at.In(est))
	assert.Equal(t, "2025-07-24T13:30:15.123Z", p.Timestamp)

	assert.Regexp(t, regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`), p.Timestamp)
}

func TestBuildWireFormat(t *testing.T) {
	readings := map[int]*power.Reading{
		1: {PowerW: 120.0, CurrentA: 1.2, PowerFactor: 0.9},
	}

	body, err := json.Marshal(payload.Build(readings, testMeta(), time.Now()))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))

	assert.Equal(t, "powermon_test", decoded["device_id"])
	assert.Equal(t, "Rockhill", decoded["location"])
	assert.Equal(t, "America/New_York", decoded["timezone"])

	rdgs, ok := decoded["readings"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 120.0, rdgs["voltage_rms"])

	cts, ok := rdgs["cts"].(map[string]any)
	require.True(t, ok)
	require.Len(t, cts, 6)

	ct1, ok := cts["ct_1"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 120.0, ct1["real_power_w"])
	assert.Equal(t, 1.2, ct1["amps"])
	assert.Equal(t, 0.9, ct1["pf"])
}

func TestRoundIdempotent(t *testing.T) {
	for _, tc := range []struct {
		value    float64
		decimals int
	}{
		{120.04, 1},
		{1.2004, 3},
		{0.8999, 3},
		{45.55, 1},
		{0.0, 1},
	} {
		once := payload.Round(tc.value, tc.decimals)
		twice := payload.Round(once, tc.decimals)
		assert.Equal(t, once, twice, "rounding %v to %d decimals must be idempotent", tc.value, tc.decimals)
	}
}

func TestRoundPrecision(t *testing.T) {
	assert.Equal(t, 120.1, payload.Round(120.06, 1))
	assert.Equal(t, 1.235, payload.Round(1.2346, 3))
	assert.Equal(t, 0.9, payload.Round(0.9, 3))
}
