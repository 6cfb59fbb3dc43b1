// Package metrics exposes the agent's counters and per-channel gauges over
// an optional prometheus endpoint. Observability is additive here: the
// sampling and upload paths never depend on it.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/linesights/powermon/internal/logger"
	"github.com/linesights/powermon/internal/power"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "powermon"

// Metrics holds the agent's prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	channelPower   *prometheus.GaugeVec
	channelCurrent *prometheus.GaugeVec
	channelPF      *prometheus.GaugeVec
	cyclesTotal    *prometheus.CounterVec
	uploadsTotal   *prometheus.CounterVec
	droppedSamples prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		channelPower: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_real_power_watts",
			Help:      "Real power per CT channel [W]",
		}, []string{"channel"}),
		channelCurrent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_current_amps",
			Help:      "RMS current per CT channel [A]",
		}, []string{"channel"}),
		channelPF: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_power_factor",
			Help:      "Power factor per CT channel",
		}, []string{"channel"}),
		cyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Monitoring cycles by result",
		}, []string{"result"}),
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Upload attempts by classified outcome",
		}, []string{"outcome"}),
		droppedSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_samples_total",
			Help:      "Raw ADC reads dropped due to transfer faults",
		}),
	}

	m.registry.MustRegister(
		m.channelPower,
		m.channelCurrent,
		m.channelPF,
		m.cyclesTotal,
		m.uploadsTotal,
		m.droppedSamples,
	)

	return m
}

// ObserveReading updates the per-channel gauges for one slot. A nil reading
// zeroes the slot so stale values never linger on a disconnected sensor.
func (m *Metrics) ObserveReading(slot int, r *power.Reading) {
	label := fmt.Sprintf("ct_%d", slot)
	if r == nil {
		m.channelPower.WithLabelValues(label).Set(0)
		m.channelCurrent.WithLabelValues(label).Set(0)
		m.channelPF.WithLabelValues(label).Set(0)
		return
	}
	m.channelPower.WithLabelValues(label).Set(r.PowerW)
	m.channelCurrent.WithLabelValues(label).Set(r.CurrentA)
	m.channelPF.WithLabelValues(label).Set(r.PowerFactor)
}

// ObserveCycle counts one completed cycle.
func (m *Metrics) ObserveCycle(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.cyclesTotal.WithLabelValues(result).Inc()
}

// ObserveUpload counts one upload attempt by classified outcome.
func (m *Metrics) ObserveUpload(outcome string) {
	m.uploadsTotal.WithLabelValues(outcome).Inc()
}

// AddDroppedSamples counts raw reads dropped during a sampling pass.
func (m *Metrics) AddDroppedSamples(n int) {
	m.droppedSamples.Add(float64(n))
}

// Handler serves the registry in prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts the metrics listener in the background. Listener failures are
// logged, not fatal: the agent keeps monitoring without its metrics endpoint.
func (m *Metrics) Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics endpoint failed")
		}
	}()
}
