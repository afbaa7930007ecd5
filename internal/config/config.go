// Package config loads the cmdemu CLI configuration from a YAML file, the
// environment and defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. CMDEMU_DEVICE_QUEUES.
const EnvPrefix = "CMDEMU"

// Config is the CLI configuration.
type Config struct {
	Device  DeviceConfig  `mapstructure:"device"`
	Replay  ReplayConfig  `mapstructure:"replay"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// DeviceConfig configures the emulated device.
type DeviceConfig struct {
	Backend          string `mapstructure:"backend"`
	Queues           int    `mapstructure:"queues"`
	DeferredContexts int    `mapstructure:"deferred_contexts"`
	MaxInFlight      int    `mapstructure:"max_in_flight"`
	MemoryBudgetMB   int    `mapstructure:"memory_budget_mb"`
}

// ReplayConfig configures scenario replay.
type ReplayConfig struct {
	Scenario string        `mapstructure:"scenario"`
	Repeat   int           `mapstructure:"repeat"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Trace    bool          `mapstructure:"trace"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Backend:        "trace",
			Queues:         1,
			MemoryBudgetMB: 256,
		},
		Replay: ReplayConfig{
			Scenario: "triangle",
			Repeat:   1,
			Timeout:  5 * time.Second,
			Trace:    true,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Load loads configuration from cfgFile, or from config.yaml in
// $HOME/.cmdemu or the working directory, then applies CMDEMU_*
// environment overrides.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".cmdemu"))
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error
	if c.Device.Backend == "" {
		errs = append(errs, errors.New("device.backend must be set"))
	}
	if c.Device.Queues < 1 || c.Device.Queues > 255 {
		errs = append(errs, errors.New("device.queues must be between 1 and 255"))
	}
	if c.Device.DeferredContexts < 0 || c.Device.MaxInFlight < 0 {
		errs = append(errs, errors.New("device.deferred_contexts and device.max_in_flight must not be negative"))
	}
	if c.Device.MemoryBudgetMB < 1 {
		errs = append(errs, errors.New("device.memory_budget_mb must be positive"))
	}
	if c.Replay.Repeat < 1 {
		errs = append(errs, errors.New("replay.repeat must be positive"))
	}
	if c.Replay.Timeout <= 0 {
		errs = append(errs, errors.New("replay.timeout must be positive"))
	}
	if levels := []string{"debug", "info", "warn", "error"}; !slices.Contains(levels, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level must be one of: %v", levels))
	}
	if formats := []string{"text", "json"}; !slices.Contains(formats, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be one of: %v", formats))
	}
	return errors.Join(errs...)
}

// SlogLevel returns the configured level.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	}
	return slog.LevelWarn
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("device.backend", cfg.Device.Backend)
	v.SetDefault("device.queues", cfg.Device.Queues)
	v.SetDefault("device.deferred_contexts", cfg.Device.DeferredContexts)
	v.SetDefault("device.max_in_flight", cfg.Device.MaxInFlight)
	v.SetDefault("device.memory_budget_mb", cfg.Device.MemoryBudgetMB)

	v.SetDefault("replay.scenario", cfg.Replay.Scenario)
	v.SetDefault("replay.repeat", cfg.Replay.Repeat)
	v.SetDefault("replay.timeout", cfg.Replay.Timeout)
	v.SetDefault("replay.trace", cfg.Replay.Trace)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
}
