// Package sampler collects lock-step raw sample sequences across all
// configured CT channels. Channels are interleaved within each slot so the
// i-th sample of every channel lands at (approximately) the same instant,
// which keeps cross-channel comparisons phase-aligned.
package sampler

import (
	"time"

	"github.com/linesights/powermon/internal/adc"
	"github.com/linesights/powermon/internal/logger"
)

// lineCycles is the number of whole AC mains cycles one sampling window
// spans (8 cycles at 60 Hz is ~133 ms).
const lineCycles = 8

// Sampler drives a Reader across a fixed set of hardware channels.
type Sampler struct {
	reader     adc.Reader
	channels   []int
	numSamples int
	window     time.Duration
}

// New returns a sampler reading numSamples per channel within a window of
// lineCycles/lineFrequency seconds. The channels slice fixes both the
// channel set and the within-slot read order.
func New(reader adc.Reader, channels []int, numSamples, lineFrequency int) *Sampler {
	return &Sampler{
		reader:     reader,
		channels:   channels,
		numSamples: numSamples,
		window:     time.Duration(float64(lineCycles) / float64(lineFrequency) * float64(time.Second)),
	}
}

// Window reports the total sampling window duration.
func (s *Sampler) Window() time.Duration {
	return s.window
}

// Collect runs one sampling pass. The returned slice holds one raw sequence
// per configured channel, in the same order as the channel set; sequences are
// at most numSamples long, shorter when individual reads fault (faulted reads
// are dropped, never zero-filled, so they cannot bias the RMS downstream).
// The second return value is the total number of dropped reads.
func (s *Sampler) Collect() ([][]int, int) {
	sequences := make([][]int, len(s.channels))
	for i := range sequences {
		sequences[i] = make([]int, 0, s.numSamples)
	}

	slotInterval := s.window / time.Duration(s.numSamples)
	dropped := 0

	start := time.Now()
	for slot := 0; slot < s.numSamples; slot++ {
		for i, channel := range s.channels {
			code, err := s.reader.Read(channel)
			if err != nil {
				dropped++
				continue
			}
			sequences[i] = append(sequences[i], code)
		}

		// Pace to the slot boundary. If acquisition overran the slot
		// budget, move straight on; the overrun is never "corrected"
		// by sleeping a negative duration.
		expected := time.Duration(slot+1) * slotInterval
		if elapsed := time.Since(start); expected > elapsed {
			time.Sleep(expected - elapsed)
		}
	}

	if dropped > 0 {
		logger.Debug().Int("dropped", dropped).Msg("sampling pass had faulted reads")
	}

	return sequences, dropped
}
