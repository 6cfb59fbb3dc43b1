// Package power derives real power, RMS current and power factor for one CT
// channel from a raw ADC sample sequence.
package power

import (
	"math"

	"github.com/linesights/powermon/internal/adc"
)

const (
	// MinSamples is the shortest raw sequence a reading may be computed
	// from. Anything shorter yields no reading at all.
	MinSamples = 100

	// defaultCalibration is the factory correction applied on top of the
	// per-channel calibration multiplier.
	defaultCalibration = 0.88

	// assumedPowerFactor is a modeling assumption, not a measurement:
	// no phase information exists in this design.
	assumedPowerFactor = 0.90

	// noiseFloorWatts is the threshold below which power reports as
	// exactly zero.
	noiseFloorWatts = 1.0

	// apparentThreshold is the apparent power (VA) below which the
	// reported power factor is forced to zero.
	apparentThreshold = 0.1
)

// ChannelConfig describes one CT channel's sensor and correction constants.
// Immutable for the process lifetime.
type ChannelConfig struct {
	Channel     int     // hardware converter channel
	Rating      int     // CT rated current in amps
	Calibration float64 // per-channel calibration multiplier
	Reversed    bool    // sensor installed in reverse orientation
}

// Reading is one channel's derived result. PowerW and CurrentA are reported
// as non-negative magnitudes; Variation (max-min of the raw codes) is a
// health diagnostic and is never transmitted.
type Reading struct {
	PowerW      float64
	CurrentA    float64
	VoltageV    float64
	PowerFactor float64
	Variation   int
}

// voltsPerAmp returns the CT output sensitivity for a rated current, from
// the published tables for common sensors. The 100 A entry is the SCT-T16,
// which outputs 0.9 V at rated current; unrecognized ratings fall back to
// the generic 1 V convention.
func voltsPerAmp(rating int) float64 {
	switch rating {
	case 30:
		return 1.0 / 30
	case 50:
		return 1.0 / 50
	case 100:
		return 0.9 / 100
	case 200:
		return 1.0 / 200
	default:
		return 1.0 / float64(rating)
	}
}

// Calculate derives a Reading from one raw sample sequence. It returns
// ok=false when the sequence is too short to compute from; it never panics
// and has no other failure path.
func Calculate(samples []int, cfg ChannelConfig, gridVoltage float64) (Reading, bool) {
	if len(samples) < MinSamples {
		return Reading{}, false
	}

	vref := adc.ReferenceVoltage / adc.Resolution
	currentScaling := (vref * cfg.Calibration * defaultCalibration) / voltsPerAmp(cfg.Rating)

	var sumValues, sumSquares float64
	minCode, maxCode := samples[0], samples[0]
	for _, sample := range samples {
		v := float64(sample)
		sumValues += v
		sumSquares += v * v
		if sample < minCode {
			minCode = sample
		}
		if sample > maxCode {
			maxCode = sample
		}
	}

	n := float64(len(samples))
	mean := sumValues / n
	meanSquare := sumSquares / n

	// Remove the DC offset before taking the AC magnitude. The max guards
	// against a negative difference from floating-point cancellation.
	currentRMS := math.Sqrt(math.Max(0, meanSquare-mean*mean)) * currentScaling

	powerCalculated := gridVoltage * math.Abs(currentRMS) * assumedPowerFactor

	finalPower, finalCurrent := applyPolarity(powerCalculated, currentRMS, cfg.Reversed)
	finalPower = applyNoiseFloor(finalPower)

	apparent := gridVoltage * math.Abs(finalCurrent)
	pf := 0.0
	if apparent > apparentThreshold {
		pf = assumedPowerFactor
	}

	return Reading{
		PowerW:      math.Abs(finalPower),
		CurrentA:    math.Abs(finalCurrent),
		VoltageV:    gridVoltage,
		PowerFactor: pf,
		Variation:   maxCode - minCode,
	}, true
}

// applyPolarity corrects for a reversed sensor orientation. A negative naive
// power keeps the current's sign and reports the power magnitude; a positive
// naive power instead flips the current's sign. This keeps the reporting
// convention consistent regardless of physical orientation, at the cost of
// losing true load direction if the flag is set wrongly.
func applyPolarity(powerW, currentA float64, reversed bool) (float64, float64) {
	if !reversed {
		return powerW, currentA
	}

	if powerW < 0 {
		return math.Abs(powerW), currentA
	}

	return powerW, -math.Abs(currentA)
}

// applyNoiseFloor forces sub-threshold power to exactly zero so idle
// channels never report a small residual.
func applyNoiseFloor(powerW float64) float64 {
	if math.Abs(powerW) < noiseFloorWatts {
		return 0.0
	}

	return powerW
}
