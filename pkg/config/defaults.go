package config

import "time"

// Defaults returns a fully populated, independently valid Config.
func Defaults() *Config {
	cfg := &Config{
		PoolSize:        4,
		ExtraEndpoints:  8,
		EventAckEnabled: true,
		RemotePoolSize:  64,
		CallbackSlots:   64,
		ShutdownTimeout: 10 * time.Second,
	}
	applyBufferPoolDefaults(&cfg.BufferPool)
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	return cfg
}

func applyBufferPoolDefaults(cfg *BufferPoolConfig) {
	if cfg.SmallSize == 0 {
		cfg.SmallSize = 256
	}
	if cfg.LargeSize == 0 {
		cfg.LargeSize = 16 << 10
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "corerpc"
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "dev"
	}
	// Enabled and Insecure default to their zero values (false, false):
	// tracing is opt-in, and a caller enabling it must also opt into an
	// insecure collector connection explicitly.
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}
