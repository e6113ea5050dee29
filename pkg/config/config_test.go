package config

import "testing"

func TestDefaults_Valid(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Defaults() produced an invalid config: %v", err)
	}
}

func TestValidate_RejectsZeroPoolSize(t *testing.T) {
	cfg := Defaults()
	cfg.PoolSize = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for pool_size=0, got nil")
	}
}

func TestValidate_RejectsBadLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.Logging.Level = "TRACE"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for an unknown log level, got nil")
	}
}

func TestValidate_RejectsSampleRateOutOfRange(t *testing.T) {
	cfg := Defaults()
	cfg.Telemetry.SampleRate = 1.5
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for sample_rate > 1, got nil")
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") returned error: %v", err)
	}
	if cfg.PoolSize != Defaults().PoolSize {
		t.Errorf("expected default pool size, got %d", cfg.PoolSize)
	}
}
