// Package payload assembles the wire-ready telemetry record uploaded each
// cycle. Rounding to the wire precision happens here, exactly once.
package payload

import (
	"fmt"
	"math"
	"time"

	"github.com/linesights/powermon/internal/config"
	"github.com/linesights/powermon/internal/power"
)

// timestampLayout is ISO-8601 UTC with millisecond precision and an
// explicit Zulu suffix.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// CTEntry is the rounded public view of one channel's reading.
type CTEntry struct {
	RealPowerW float64 `json:"real_power_w"`
	Amps       float64 `json:"amps"`
	PF         float64 `json:"pf"`
}

// Readings holds all channel entries plus the assumed grid voltage.
type Readings struct {
	CTs        map[string]CTEntry `json:"cts"`
	VoltageRMS float64            `json:"voltage_rms"`
}

// Payload is one upload unit.
type Payload struct {
	DeviceID  string   `json:"device_id"`
	Timestamp string   `json:"timestamp"`
	Location  string   `json:"location"`
	Timezone  string   `json:"timezone,omitempty"`
	Readings  Readings `json:"readings"`
}

// Meta carries the per-deployment identity attached to every payload.
type Meta struct {
	DeviceID string
	Location string
	Timezone string
	Voltage  float64
}

// Build produces one payload from the per-slot readings (keyed 1..6). Every
// slot is always present in the output: absent readings render as all-zero
// entries, never as missing keys.
func Build(readings map[int]*power.Reading, meta Meta, now time.Time) Payload {
	cts := make(map[string]CTEntry, config.MaxChannels)
	for slot := 1; slot <= config.MaxChannels; slot++ {
		entry := CTEntry{}
		if r := readings[slot]; r != nil {
			entry = CTEntry{
				RealPowerW: Round(r.PowerW, 1),
				Amps:       Round(r.CurrentA, 3),
				PF:         Round(r.PowerFactor, 3),
			}
		}
		cts[fmt.Sprintf("ct_%d", slot)] = entry
	}

	return Payload{
		DeviceID:  meta.DeviceID,
		Timestamp: now.UTC().Format(timestampLayout),
		Location:  meta.Location,
		Timezone:  meta.Timezone,
		Readings: Readings{
			CTs:        cts,
			VoltageRMS: Round(meta.Voltage, 1),
		},
	}
}

// Round rounds half away from zero to the given number of decimals.
// Rounding an already-rounded value is a no-op.
func Round(x float64, decimals int) float64 {
	shift := math.Pow(10, float64(decimals))
	return math.Round(x*shift) / shift
}
