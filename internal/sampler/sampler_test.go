package sampler_test

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/linesights/powermon/internal/sampler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader returns a fixed code per channel, optionally failing selected
// reads and adding artificial per-read latency.
type fakeReader struct {
	latency  time.Duration
	jitter   time.Duration
	failWhen func(channel, call int) bool
	calls    int
	order    []int
}

func (r *fakeReader) Read(channel int) (int, error) {
	call := r.calls
	r.calls++
	r.order = append(r.order, channel)

	if r.latency > 0 {
		d := r.latency
		if r.jitter > 0 {
			d += time.Duration(rand.Int63n(int64(r.jitter)))
		}
		// Busy-wait: emulates hardware transaction latency without the
		// scheduler overhead of sub-millisecond sleeps.
		deadline := time.Now().Add(d)
		for time.Now().Before(deadline) {
		}
	}

	if r.failWhen != nil && r.failWhen(channel, call) {
		return 0, errors.New("transfer failed")
	}

	return 512 + channel, nil
}

func TestCollectFullSequences(t *testing.T) {
	reader := &fakeReader{}
	s := sampler.New(reader, []int{0, 1, 2}, 50, 60)

	sequences, dropped := s.Collect()

	assert.Zero(t, dropped)
	require.Len(t, sequences, 3)
	for i, seq := range sequences {
		require.Len(t, seq, 50)
		for _, code := range seq {
			assert.Equal(t, 512+i, code)
		}
	}
}

func TestCollectDropsFaultedReads(t *testing.T) {
	// Channel 1 faults on every other read; faults are dropped,
	// never zero-filled.
	reader := &fakeReader{
		failWhen: func(channel, call int) bool {
			return channel == 1 && call%2 == 0
		},
	}
	s := sampler.New(reader, []int{0, 1}, 40, 60)

	sequences, dropped := s.Collect()

	assert.Len(t, sequences[0], 40)
	assert.Less(t, len(sequences[1]), 40)
	assert.Equal(t, 40, len(sequences[1])+dropped)
	for _, code := range sequences[1] {
		assert.Equal(t, 513, code)
	}
}

func TestCollectInterleavesChannelsPerSlot(t *testing.T) {
	reader := &fakeReader{}
	channels := []int{0, 1, 2}
	s := sampler.New(reader, channels, 10, 60)

	s.Collect()

	// Within every slot, channel i is read before channel i+1, and
	// slots never overlap.
	require.Len(t, reader.order, 30)
	for slot := 0; slot < 10; slot++ {
		for i, want := range channels {
			assert.Equal(t, want, reader.order[slot*len(channels)+i])
		}
	}
}

func TestCollectPacingWithJitter(t *testing.T) {
	reader := &fakeReader{
		latency: 10 * time.Microsecond,
		jitter:  30 * time.Microsecond,
	}
	s := sampler.New(reader, []int{0, 1, 2, 3, 4, 5}, 500, 60)

	window := s.Window()
	require.InDelta(t, 8.0/60.0, window.Seconds(), 1e-9)

	start := time.Now()
	sequences, _ := s.Collect()
	elapsed := time.Since(start)

	require.Len(t, sequences[0], 500)

	// The pass must neither finish early nor accumulate runaway drift
	// beyond per-slot overruns and sleep granularity.
	assert.GreaterOrEqual(t, elapsed, window-10*time.Millisecond)
	assert.InDelta(t, window.Seconds(), elapsed.Seconds(), 0.12)
}
