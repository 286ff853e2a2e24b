// Package config provides configuration loading and validation for gstats.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidMaxTasks   = errors.New("max total tasks must be positive")
	ErrInvalidThreshold  = errors.New("unknown pressure threshold")
	ErrInvalidBackoff    = errors.New("backoff duration must not be negative")
	ErrInvalidUnit       = errors.New("unknown scan unit")
	ErrInvalidExport     = errors.New("unknown export format")
	ErrInvalidMaxCommits = errors.New("max commits must not be negative")
)

// Default configuration values.
const (
	defaultMaxTotalTasks = 8
	defaultThreshold     = "high"
	defaultExportFormat  = "none"
)

// Known enum values.
var (
	knownThresholds    = []string{"normal", "moderate", "high", "critical"}
	knownUnits         = []string{"file-history", "contributors"}
	knownExportFormats = []string{"none", "json", "gob"}
)

// Config holds all configuration for a gstats run.
type Config struct {
	Scan      ScanConfig      `mapstructure:"scan"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Export    ExportConfig    `mapstructure:"export"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ScanConfig holds history walk configuration.
type ScanConfig struct {
	Units        []string `mapstructure:"units"`
	MaxCommits   int      `mapstructure:"max_commits"`
	FirstParent  bool     `mapstructure:"first_parent"`
	SeedFromHead bool     `mapstructure:"seed_from_head"`
}

// SchedulerConfig holds task scheduler configuration.
type SchedulerConfig struct {
	PressureThreshold string `mapstructure:"pressure_threshold"`
	Backoff           string `mapstructure:"backoff"`
	MaxTotalTasks     int    `mapstructure:"max_total_tasks"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ExportConfig holds result snapshot export configuration.
type ExportConfig struct {
	Format   string `mapstructure:"format"`
	Path     string `mapstructure:"path"`
	Compress bool   `mapstructure:"compress"`
}

// TelemetryConfig holds OpenTelemetry export configuration.
type TelemetryConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Enabled     bool   `mapstructure:"enabled"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("gstats")
		viperCfg.SetConfigType("toml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("/etc/gstats")
	}

	viperCfg.SetEnvPrefix("GSTATS")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	// Scan defaults.
	viperCfg.SetDefault("scan.units", knownUnits)
	viperCfg.SetDefault("scan.max_commits", 0)
	viperCfg.SetDefault("scan.first_parent", false)
	viperCfg.SetDefault("scan.seed_from_head", true)

	// Scheduler defaults.
	viperCfg.SetDefault("scheduler.max_total_tasks", defaultMaxTotalTasks)
	viperCfg.SetDefault("scheduler.pressure_threshold", defaultThreshold)
	viperCfg.SetDefault("scheduler.backoff", "100ms")

	// Logging defaults.
	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", "text")
	viperCfg.SetDefault("logging.output", "stderr")

	// Export defaults.
	viperCfg.SetDefault("export.format", defaultExportFormat)
	viperCfg.SetDefault("export.path", "gstats-snapshot")
	viperCfg.SetDefault("export.compress", false)

	// Telemetry defaults.
	viperCfg.SetDefault("telemetry.enabled", false)
	viperCfg.SetDefault("telemetry.endpoint", "localhost:4317")
	viperCfg.SetDefault("telemetry.service_name", "gstats")
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	if config.Scheduler.MaxTotalTasks <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxTasks, config.Scheduler.MaxTotalTasks)
	}

	if !knownValue(knownThresholds, config.Scheduler.PressureThreshold) {
		return fmt.Errorf("%w: %q", ErrInvalidThreshold, config.Scheduler.PressureThreshold)
	}

	if config.Scan.MaxCommits < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxCommits, config.Scan.MaxCommits)
	}

	for _, unit := range config.Scan.Units {
		if !knownValue(knownUnits, unit) {
			return fmt.Errorf("%w: %q", ErrInvalidUnit, unit)
		}
	}

	if !knownValue(knownExportFormats, config.Export.Format) {
		return fmt.Errorf("%w: %q", ErrInvalidExport, config.Export.Format)
	}

	backoff, err := time.ParseDuration(config.Scheduler.Backoff)
	if err != nil || backoff < 0 {
		return fmt.Errorf("%w: %q", ErrInvalidBackoff, config.Scheduler.Backoff)
	}

	return nil
}

// knownValue reports whether v is one of the allowed values, ignoring case.
func knownValue(allowed []string, v string) bool {
	for _, a := range allowed {
		if strings.EqualFold(a, v) {
			return true
		}
	}

	return false
}
