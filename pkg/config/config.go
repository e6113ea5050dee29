// Package config holds the typed configuration for a dispatcher process: pool
// sizing, buffer tiers, and the ambient logging/telemetry/metrics sub-configs.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (CORERPC_*), for keys the configuration file sets
//  2. Configuration file (YAML)
//  3. Defaults (see Defaults)
//
// When no configuration file is found, Load returns Defaults() unchanged and
// environment variables are not consulted.
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
)

// Config is the top-level configuration for a dispatcher process.
type Config struct {
	// PoolSize is the number of permanent worker endpoints (P).
	PoolSize int `mapstructure:"pool_size" validate:"required,gt=0" yaml:"pool_size"`

	// ExtraEndpoints is the number of lazily-attached endpoints available to
	// callers outside the permanent pool (E).
	ExtraEndpoints int `mapstructure:"extra_endpoints" validate:"gte=0" yaml:"extra_endpoints"`

	// EventAckEnabled turns on the event-acknowledgement backpressure
	// discipline for SendEvt.
	EventAckEnabled bool `mapstructure:"event_ack_enabled" yaml:"event_ack_enabled"`

	// RemotePoolSize is validated but not read anywhere in this module: the
	// remote endpoint pool is sized from the peer's worker addresses, which
	// xrpcdemo derives from PoolSize.
	RemotePoolSize int64 `mapstructure:"remote_pool_size" validate:"required,gt=0" yaml:"remote_pool_size"`

	// CallbackSlots sizes the callee-side trampoline table. Zero disables
	// inbound callback binding.
	CallbackSlots int `mapstructure:"callback_slots" validate:"gte=0" yaml:"callback_slots"`

	// BufferPool configures the transmit buffer pool's size tiers.
	BufferPool BufferPoolConfig `mapstructure:"buffer_pool" yaml:"buffer_pool"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics controls the Prometheus metrics HTTP endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout is validated but not read anywhere in this module;
	// Dispatcher.Shutdown takes no timeout and does not wait for in-flight
	// transactions to drain.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// BufferPoolConfig configures the tiered transmit buffer pool.
type BufferPoolConfig struct {
	// SmallSize is the capacity of the small buffer tier.
	SmallSize int `mapstructure:"small_size" yaml:"small_size"`
	// LargeSize is the capacity of the large buffer tier.
	LargeSize int `mapstructure:"large_size" yaml:"large_size"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	// Format is the output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	// Output is stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint       string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure       bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate     float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
	ServiceName    string  `mapstructure:"service_name" yaml:"service_name"`
	ServiceVersion string  `mapstructure:"service_version" yaml:"service_version"`
}

// MetricsConfig controls the Prometheus metrics HTTP server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from a file (if present) over Defaults, lets
// CORERPC_* environment variables override the keys that file sets, and
// validates the result. If no file is found it returns Defaults() as is.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return Defaults(), nil
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

// Validate checks cfg against its struct-tag validation rules.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

// Write saves cfg as YAML to path.
func Write(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("CORERPC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(".")
	v.SetConfigName("corerpc")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read file: %w", err)
	}
	return true, nil
}

// durationDecodeHook lets config files express durations as human-readable
// strings ("30s", "5m") instead of raw nanosecond integers.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}
