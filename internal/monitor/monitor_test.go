package monitor_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/linesights/powermon/internal/config"
	"github.com/linesights/powermon/internal/metrics"
	"github.com/linesights/powermon/internal/monitor"
	"github.com/linesights/powermon/internal/payload"
	"github.com/linesights/powermon/internal/store"
	"github.com/linesights/powermon/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sineReader synthesizes a plausible CT waveform per channel.
type sineReader struct {
	calls map[int]int
	fail  bool
}

func newSineReader() *sineReader {
	return &sineReader{calls: make(map[int]int)}
}

func (r *sineReader) Read(channel int) (int, error) {
	if r.fail {
		return 0, errors.New("transfer failed")
	}
	i := r.calls[channel]
	r.calls[channel]++
	return 512 + int(math.Round(80*math.Sin(2*math.Pi*float64(i)/50))), nil
}

type fakeUploader struct {
	outcome  upload.Outcome
	payloads []payload.Payload
	panics   bool
}

func (u *fakeUploader) Send(_ context.Context, p payload.Payload) upload.Outcome {
	if u.panics {
		panic("uploader exploded")
	}
	u.payloads = append(u.payloads, p)
	return u.outcome
}

func testConfig() *config.Config {
	return &config.Config{
		DeviceID:      "powermon_test",
		Location:      "Test Lab",
		Timezone:      "UTC",
		Voltage:       120.0,
		CTRating:      30,
		CTChannels:    3,
		CTReversed:    true,
		CTCalibration: 1.0,
		ServerURL:     "https://collector.example.com/api/data",
		SendInterval:  1,
		NumSamples:    120,
		LineFrequency: 60,
		LogLevel:      "error",
	}
}

func noopArchive(t *testing.T) store.Archive {
	t.Helper()
	archive, err := store.NewArchive("")
	require.NoError(t, err)
	return archive
}

// runOneCycle runs the loop long enough for exactly one cycle plus part of
// the inter-cycle sleep.
func runOneCycle(t *testing.T, m *monitor.Monitor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 600*time.Millisecond)
	defer cancel()
	require.NoError(t, m.Run(ctx))
}

func TestRunSuccessfulCycle(t *testing.T) {
	uploader := &fakeUploader{outcome: upload.Outcome{Status: upload.StatusSuccess}}
	m := monitor.New(testConfig(), newSineReader(), uploader, noopArchive(t), metrics.New())

	runOneCycle(t, m)

	counters := m.Counters()
	assert.Equal(t, 1, counters.SuccessfulReadings)
	assert.Equal(t, 1, counters.SuccessfulUploads)
	assert.Zero(t, counters.FailedReadings)
	assert.Zero(t, counters.FailedUploads)

	require.Len(t, uploader.payloads, 1)
	p := uploader.payloads[0]
	assert.Equal(t, "powermon_test", p.DeviceID)
	assert.Len(t, p.Readings.CTs, 6)

	// Configured channels carry real readings; unwired slots are zero.
	assert.Greater(t, p.Readings.CTs["ct_1"].RealPowerW, 0.0)
	assert.Equal(t, payload.CTEntry{}, p.Readings.CTs["ct_4"])
}

func TestRunUploadFailureCounts(t *testing.T) {
	uploader := &fakeUploader{outcome: upload.Outcome{Status: upload.StatusHTTPError, HTTPStatus: 500}}
	m := monitor.New(testConfig(), newSineReader(), uploader, noopArchive(t), metrics.New())

	runOneCycle(t, m)

	counters := m.Counters()
	assert.Equal(t, 1, counters.SuccessfulReadings)
	assert.Equal(t, 1, counters.FailedUploads)
	assert.Zero(t, counters.SuccessfulUploads)
}

func TestRunNoReadingsSkipsUpload(t *testing.T) {
	reader := newSineReader()
	reader.fail = true
	uploader := &fakeUploader{outcome: upload.Outcome{Status: upload.StatusSuccess}}
	m := monitor.New(testConfig(), reader, uploader, noopArchive(t), metrics.New())

	runOneCycle(t, m)

	counters := m.Counters()
	assert.GreaterOrEqual(t, counters.FailedReadings, 1)
	assert.Zero(t, counters.SuccessfulReadings)
	assert.Empty(t, uploader.payloads)
}

func TestRunSurvivesCyclePanic(t *testing.T) {
	uploader := &fakeUploader{panics: true}
	m := monitor.New(testConfig(), newSineReader(), uploader, noopArchive(t), metrics.New())

	// Must not panic out of Run; the fault is absorbed and counted.
	runOneCycle(t, m)

	counters := m.Counters()
	assert.Equal(t, 1, counters.FailedReadings)
}

func TestRunMonitorModeSkipsUpload(t *testing.T) {
	cfg := testConfig()
	cfg.Monitor = true
	uploader := &fakeUploader{outcome: upload.Outcome{Status: upload.StatusSuccess}}
	m := monitor.New(cfg, newSineReader(), uploader, noopArchive(t), metrics.New())

	runOneCycle(t, m)

	counters := m.Counters()
	assert.Equal(t, 1, counters.SuccessfulReadings)
	assert.Empty(t, uploader.payloads)
	assert.Zero(t, counters.SuccessfulUploads)
}

func TestRunStopsOnCancel(t *testing.T) {
	uploader := &fakeUploader{outcome: upload.Outcome{Status: upload.StatusSuccess}}
	m := monitor.New(testConfig(), newSineReader(), uploader, noopArchive(t), metrics.New())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		assert.NoError(t, m.Run(ctx))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
