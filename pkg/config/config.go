// Package config loads and validates the SDK configuration.
//
// Configuration sources, highest precedence first:
//  1. Environment variables (PULSEKIT_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/pulsekit/pulsekit/internal/bytesize"
)

// Config is the static SDK configuration a host application provides.
type Config struct {
	// Site is the intake region identifier (e.g. "us1", "eu1").
	Site string `mapstructure:"site" validate:"required" yaml:"site"`

	// ClientToken authenticates the host application against the intake.
	ClientToken string `mapstructure:"client_token" validate:"required" yaml:"client_token"`

	// Service, Env and Version tag every event with the host identity.
	Service string `mapstructure:"service" validate:"required" yaml:"service"`
	Env     string `mapstructure:"env" yaml:"env"`
	Version string `mapstructure:"version" yaml:"version"`

	// Source names the emitting platform ("android", "ios", "roku", ...).
	Source string `mapstructure:"source" yaml:"source"`

	// RootDir is where batch files live. Defaults to the user cache
	// directory.
	RootDir string `mapstructure:"root_dir" validate:"required" yaml:"root_dir"`

	// Logging controls the SDK's internal logger.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Preset selects the named performance preset.
	// Valid values: balanced, low_power, aggressive.
	Preset string `mapstructure:"preset" validate:"omitempty,oneof=balanced low_power aggressive" yaml:"preset"`

	// Performance sparsely overrides the selected preset.
	Performance PresetOverride `mapstructure:"performance" yaml:"performance,omitempty"`

	// Upload holds transport-level settings shared by all features.
	Upload UploadConfig `mapstructure:"upload" yaml:"upload"`
}

// LoggingConfig controls the SDK-internal logger.
type LoggingConfig struct {
	// Level: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format: text or json.
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json" yaml:"format"`

	// Output: stderr, stdout, or a file path.
	Output string `mapstructure:"output" yaml:"output"`
}

// UploadConfig holds transport-level upload settings.
type UploadConfig struct {
	// RequestTimeout bounds one intake submission.
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"required,gt=0" yaml:"request_timeout"`

	// BackgroundTasks wraps in-flight requests in OS background-task
	// leases while the app is suspended.
	BackgroundTasks bool `mapstructure:"background_tasks" yaml:"background_tasks"`
}

// EffectivePreset resolves the named preset with the sparse overrides
// applied.
func (c *Config) EffectivePreset() PerformancePreset {
	preset, _ := PresetByName(c.Preset)
	return preset.Apply(&c.Performance)
}

// Load reads configuration from the given file (optional), the
// environment and defaults, then validates it.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PULSEKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values that have sensible defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.RootDir == "" {
		cfg.RootDir = defaultRootDir()
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "WARN"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}
	if cfg.Preset == "" {
		cfg.Preset = PresetBalanced
	}
	if cfg.Upload.RequestTimeout == 0 {
		cfg.Upload.RequestTimeout = 30 * time.Second
	}
	if cfg.Source == "" {
		cfg.Source = "go"
	}
}

// Validate checks the configuration, including cross-field preset
// coherence.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	preset := cfg.EffectivePreset()
	if preset.MinFileAgeForRead <= preset.MaxFileAgeForWrite {
		return fmt.Errorf("configuration validation failed: min_file_age_for_read (%v) must exceed max_file_age_for_write (%v)",
			preset.MinFileAgeForRead, preset.MaxFileAgeForWrite)
	}
	if preset.MinUploadDelay > preset.MaxUploadDelay {
		return fmt.Errorf("configuration validation failed: min_upload_delay (%v) must not exceed max_upload_delay (%v)",
			preset.MinUploadDelay, preset.MaxUploadDelay)
	}
	if preset.UploadDelayChangeRate <= 0 || preset.UploadDelayChangeRate >= 1 {
		return fmt.Errorf("configuration validation failed: upload_delay_change_rate (%v) must be in (0, 1)",
			preset.UploadDelayChangeRate)
	}
	return nil
}

// Save writes the configuration as YAML with owner-only permissions; the
// client token is sensitive.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// decodeHooks converts strings to durations and byte sizes so config
// files can say "30s" and "512KB".
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func defaultRootDir() string {
	if cache, err := os.UserCacheDir(); err == nil {
		return filepath.Join(cache, "pulsekit")
	}
	return "pulsekit-data"
}
