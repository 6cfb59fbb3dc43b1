// Package monitor runs the supervisor loop: sample, derive, assemble,
// upload, repeat. The loop favors staying alive over crashing; every
// per-cycle failure is counted, logged and survived.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/linesights/powermon/internal/adc"
	"github.com/linesights/powermon/internal/config"
	"github.com/linesights/powermon/internal/errors"
	"github.com/linesights/powermon/internal/logger"
	"github.com/linesights/powermon/internal/metrics"
	"github.com/linesights/powermon/internal/payload"
	"github.com/linesights/powermon/internal/power"
	"github.com/linesights/powermon/internal/sampler"
	"github.com/linesights/powermon/internal/store"
	"github.com/linesights/powermon/internal/upload"
)

const (
	// faultBackoff is the shortened sleep after an unclassified cycle
	// fault, distinct from the regular inter-cycle interval.
	faultBackoff = 5 * time.Second

	// lowVariationCodes flags a raw swing small enough to suggest a
	// disconnected or miswired CT.
	lowVariationCodes = 5
)

// Monitor owns one acquisition device and drives the full per-cycle
// pipeline. Single-threaded by design: there is no shared mutable state to
// protect, only the interleaving discipline inside the sampler.
type Monitor struct {
	cfg      *config.Config
	sampler  *sampler.Sampler
	channels []power.ChannelConfig
	uploader Uploader
	archive  store.Archive
	metrics  *metrics.Metrics
	meta     payload.Meta

	counters Counters
}

// New wires a monitor from its collaborators. Channel slot n (1-based) maps
// to hardware channel n-1; all channels share the configured CT rating,
// calibration and polarity, which is the fixed sensor topology this device
// ships with.
func New(cfg *config.Config, reader adc.Reader, uploader Uploader, archive store.Archive, m *metrics.Metrics) *Monitor {
	channels := make([]power.ChannelConfig, cfg.CTChannels)
	hwChannels := make([]int, cfg.CTChannels)
	for i := range channels {
		channels[i] = power.ChannelConfig{
			Channel:     i,
			Rating:      cfg.CTRating,
			Calibration: cfg.CTCalibration,
			Reversed:    cfg.CTReversed,
		}
		hwChannels[i] = i
	}

	return &Monitor{
		cfg:      cfg,
		sampler:  sampler.New(reader, hwChannels, cfg.NumSamples, cfg.LineFrequency),
		channels: channels,
		uploader: uploader,
		archive:  archive,
		metrics:  m,
		meta: payload.Meta{
			DeviceID: cfg.DeviceID,
			Location: cfg.Location,
			Timezone: cfg.Timezone,
			Voltage:  cfg.Voltage,
		},
	}
}

// Counters returns the current success/failure tallies.
func (m *Monitor) Counters() Counters {
	return m.counters
}

// Run drives cycles until the context is cancelled. Cancellation is honored
// at cycle boundaries only: an in-flight sampling pass or upload always
// completes. Network failures are deliberately not retried within a cycle;
// the next cycle's upload is an independent attempt.
func (m *Monitor) Run(ctx context.Context) error {
	interval := time.Duration(m.cfg.SendInterval) * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		sleep := interval
		if err := m.cycle(ctx); err != nil {
			m.counters.FailedReadings++
			m.metrics.ObserveCycle(false)
			logger.Error().Err(err).Msg("cycle failed")
			sleep = faultBackoff
		}

		if !sleepCtx(ctx, sleep) {
			return nil
		}
	}
}

// cycle runs one pass of the pipeline. Unexpected panics anywhere in the
// cycle are converted to errors at this boundary so the loop survives them.
func (m *Monitor) cycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New().WithData(ErrCyclePanic, r)
		}
	}()

	sequences, dropped := m.sampler.Collect()
	if dropped > 0 {
		m.metrics.AddDroppedSamples(dropped)
	}

	readings := make(map[int]*power.Reading, len(m.channels))
	anyReading := false
	for i, cc := range m.channels {
		slot := i + 1
		if r, ok := power.Calculate(sequences[i], cc, m.cfg.Voltage); ok {
			readings[slot] = &r
			anyReading = true
			if r.Variation < lowVariationCodes {
				logger.Debug().
					Int("channel", slot).
					Int("variation", r.Variation).
					Msg("low raw variation, check CT connection")
			}
		}
		m.metrics.ObserveReading(slot, readings[slot])
	}

	if !anyReading {
		m.counters.FailedReadings++
		m.metrics.ObserveCycle(false)
		logger.Warn().Msg("no valid readings from any CT sensor")
		return nil
	}

	m.counters.SuccessfulReadings++
	p := payload.Build(readings, m.meta, time.Now())

	if m.cfg.Monitor {
		logger.Info().Str("readings", summarize(readings)).Msg("monitor mode, skipping upload")
		m.metrics.ObserveCycle(true)
		return nil
	}

	outcome := m.uploader.Send(ctx, p)
	if outcome.OK() {
		m.counters.SuccessfulUploads++
	} else {
		m.counters.FailedUploads++
	}
	m.metrics.ObserveUpload(outcomeLabel(outcome))
	m.metrics.ObserveCycle(true)

	logger.Info().
		Str("readings", summarize(readings)).
		Str("upload", outcome.String()).
		Msg("cycle complete")
	logger.Debug().
		Int("readings_ok", m.counters.SuccessfulReadings).
		Int("readings_failed", m.counters.FailedReadings).
		Int("uploads_ok", m.counters.SuccessfulUploads).
		Int("uploads_failed", m.counters.FailedUploads).
		Msg("counters")

	m.archiveCycle(ctx, p, readings, dropped, outcome)

	return nil
}

// archiveCycle persists the cycle locally. Archive failures are logged and
// swallowed: local history is best-effort and never blocks the loop.
func (m *Monitor) archiveCycle(ctx context.Context, p payload.Payload, readings map[int]*power.Reading, dropped int, outcome upload.Outcome) {
	body, err := json.Marshal(p)
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode cycle record")
		return
	}

	total := 0.0
	active := 0
	for _, r := range readings {
		if r != nil && r.PowerW > 0 {
			total += r.PowerW
			active++
		}
	}

	rec := &store.CycleRecord{
		Timestamp:      time.Now(),
		DeviceID:       m.cfg.DeviceID,
		TotalPowerW:    total,
		ActiveChannels: active,
		DroppedSamples: dropped,
		Payload:        string(body),
		UploadStatus:   outcome.String(),
		HTTPStatus:     outcome.HTTPStatus,
	}
	if err := m.archive.Record(ctx, rec); err != nil {
		logger.Error().Err(err).Msg("failed to archive cycle")
	}
}

// summarize renders the compact active-load line: channels with power plus
// the total, or a fixed marker when everything is idle.
func summarize(readings map[int]*power.Reading) string {
	var parts []string
	total := 0.0
	for slot := 1; slot <= config.MaxChannels; slot++ {
		r := readings[slot]
		if r == nil || r.PowerW <= 0 {
			continue
		}
		total += r.PowerW
		parts = append(parts, fmt.Sprintf("CT%d:%.1fW/%.3fA", slot, r.PowerW, r.CurrentA))
	}

	if len(parts) == 0 {
		return "no active loads"
	}

	return fmt.Sprintf("Total:%.1fW | %s", total, strings.Join(parts, " | "))
}

func outcomeLabel(o upload.Outcome) string {
	switch o.Status {
	case upload.StatusSuccess:
		return "success"
	case upload.StatusTimeout:
		return "timeout"
	case upload.StatusConnectionFailed:
		return "connection_failed"
	case upload.StatusHTTPError:
		return "http_error"
	default:
		return "error"
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
