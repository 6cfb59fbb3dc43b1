package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linesights/powermon/internal/adc"
	"github.com/linesights/powermon/internal/config"
	"github.com/linesights/powermon/internal/logger"
	"github.com/linesights/powermon/internal/metrics"
	"github.com/linesights/powermon/internal/monitor"
	"github.com/linesights/powermon/internal/store"
	"github.com/linesights/powermon/internal/upload"
)

var (
	cfg     *config.Config
	device  *adc.ADC
	archive store.Archive
)

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	if err := logger.SetLevelFromString(cfg.LogLevel); err != nil {
		logger.Fatal().Err(err).Msg("invalid log level")
	}
	logger.Debug().Msg("Config loaded")

	// A dead acquisition path means there is nothing to monitor;
	// startup hardware failure is fatal by design.
	device, err = adc.New(cfg.SPIDevice)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize ADC")
	}

	archive, err = store.NewArchive(cfg.HistoryDB)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open cycle history archive")
	}
}

func main() {
	defer cleanup()

	logStartup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	agentMetrics := metrics.New()
	if cfg.MetricsListen != "" {
		agentMetrics.Serve(cfg.MetricsListen)
	}

	uploader := upload.New(cfg.ServerURL)
	m := monitor.New(cfg, device, uploader, archive, agentMetrics)

	if err := m.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("error in main loop")
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func cleanup() {
	if err := device.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close ADC")
	}
	if err := archive.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close archive")
	}
	logger.Info().Msg("Exiting...")
}

func logStartup() {
	now := time.Now()
	localTime := now.Format("15:04:05 MST")
	if loc, err := time.LoadLocation(cfg.Timezone); err == nil && cfg.Timezone != "" {
		localTime = now.In(loc).Format("15:04:05 MST")
	}

	logger.Info().
		Str("device_id", cfg.DeviceID).
		Str("location", cfg.Location).
		Str("timezone", cfg.Timezone).
		Str("local_time", localTime).
		Str("utc_time", now.UTC().Format("15:04:05")+" UTC").
		Float64("voltage", cfg.Voltage).
		Int("ct_rating", cfg.CTRating).
		Int("channels", cfg.CTChannels).
		Str("server", cfg.ServerURL).
		Msg("Power monitor starting")
}
