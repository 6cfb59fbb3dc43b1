package config

import (
	"net/url"
	"os"

	"github.com/linesights/powermon/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "/etc/powermonitor/config.conf"

	// MaxChannels is the number of CT slots the acquisition board exposes.
	MaxChannels = 6
)

// Config holds all per-deployment values. It is loaded once at startup and
// never mutated afterwards; the setup wizard owns writes to the backing file.
type Config struct {
	DeviceID      string  `mapstructure:"device_id"`
	Location      string  `mapstructure:"location_name"`
	Timezone      string  `mapstructure:"timezone"`
	Voltage       float64 `mapstructure:"voltage"`
	CTRating      int     `mapstructure:"ct_rating"`
	CTChannels    int     `mapstructure:"ct_channels"`
	CTReversed    bool    `mapstructure:"ct_reversed"`
	CTCalibration float64 `mapstructure:"ct_calibration"`
	ServerURL     string  `mapstructure:"server_url"`
	SendInterval  int     `mapstructure:"send_interval"`
	NumSamples    int     `mapstructure:"num_samples"`
	LineFrequency int     `mapstructure:"line_frequency"`
	SPIDevice     string  `mapstructure:"spi_device"`
	HistoryDB     string  `mapstructure:"history_db"`
	MetricsListen string  `mapstructure:"metrics_listen"`
	LogLevel      string  `mapstructure:"log_level"`

	Debug   bool `mapstructure:"debug"`
	Verbose bool `mapstructure:"verbose"`
	Monitor bool `mapstructure:"monitor"`
}

// Load reads the flat KEY=VALUE deployment config, applies command-line
// overrides and validates the result. The config file path can be overridden
// with the POWERMON_CONFIG environment variable or the --config flag.
func Load() (*Config, error) {
	errFactory := errors.New()

	flags := pflag.NewFlagSet("powermon", pflag.ContinueOnError)
	configPath := flags.String("config", "", "Path to config file")
	debugFlag := flags.Bool("debug", false, "Enable debugging mode")
	verboseFlag := flags.Bool("verbose", false, "Enable verbose logging")
	monitorFlag := flags.Bool("monitor", false, "Log readings without uploading")
	logLevelFlag := flags.String("log-level", "", "Log level (debug, info, warning, error)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	v := viper.New()
	setDefaults(v)

	// The deployment store is a flat KEY=VALUE file, which viper's "env"
	// format reads directly.
	v.SetConfigType("env")
	switch {
	case *configPath != "":
		v.SetConfigFile(*configPath)
	case os.Getenv("POWERMON_CONFIG") != "":
		v.SetConfigFile(os.Getenv("POWERMON_CONFIG"))
	default:
		v.SetConfigFile(defaultConfigPath)
	}

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
		// Missing file falls back to defaults; an unconfigured device
		// still fails validation below on the empty device id.
	}

	if *debugFlag {
		v.Set("debug", true)
	}
	if *verboseFlag {
		v.Set("verbose", true)
	}
	if *monitorFlag {
		v.Set("monitor", true)
	}
	if *logLevelFlag != "" {
		v.Set("log_level", *logLevelFlag)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.Debug {
		config.LogLevel = "debug"
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device_id", "")
	v.SetDefault("location_name", "")
	v.SetDefault("timezone", "")
	v.SetDefault("voltage", 120.0)
	v.SetDefault("ct_rating", 30)
	v.SetDefault("ct_channels", MaxChannels)
	v.SetDefault("ct_reversed", true)
	v.SetDefault("ct_calibration", 1.0)
	v.SetDefault("server_url", "")
	v.SetDefault("send_interval", 10)
	v.SetDefault("num_samples", 500)
	v.SetDefault("line_frequency", 60)
	v.SetDefault("spi_device", "/dev/spidev0.0")
	v.SetDefault("history_db", "")
	v.SetDefault("metrics_listen", "")
	v.SetDefault("log_level", "info")
}

// Validate checks the loaded configuration. Any violation is fatal at
// startup; the daemon never runs on a partially valid config.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.DeviceID == "" {
		return errFactory.WithMessage(errors.ErrMissingConfig, "DEVICE_ID is not set")
	}
	if c.ServerURL == "" {
		return errFactory.WithMessage(errors.ErrMissingConfig, "SERVER_URL is not set")
	}
	if _, err := url.ParseRequestURI(c.ServerURL); err != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	if c.Voltage <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "VOLTAGE must be positive")
	}
	if c.CTRating <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "CT_RATING must be positive")
	}
	if c.CTChannels < 1 || c.CTChannels > MaxChannels {
		return errFactory.WithData(errors.ErrInvalidConfig, "CT_CHANNELS must be between 1 and 6")
	}
	if c.CTCalibration <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "CT_CALIBRATION must be positive")
	}
	if c.SendInterval <= 0 {
		return errFactory.New(errors.ErrInvalidInterval)
	}
	if c.NumSamples <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "NUM_SAMPLES must be positive")
	}
	if c.LineFrequency <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "LINE_FREQUENCY must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warning", "warn", "error":
	default:
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	return nil
}
