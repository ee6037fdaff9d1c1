package config

import (
	"strings"
	"testing"
)

func TestValidateMasterKey(t *testing.T) {
	valid := strings.Repeat("ab", 32)
	if err := ValidateMasterKey(valid); err != nil {
		t.Fatalf("valid key rejected: %v", err)
	}

	cases := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"short", "abcd"},
		{"long", valid + "ab"},
		{"not hex", strings.Repeat("zz", 32)},
	}
	for _, tc := range cases {
		if err := ValidateMasterKey(tc.key); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestLoadRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("KILO_CREDENTIAL_KEY", strings.Repeat("00", 32))
	if _, err := Load(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/kilo")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("KILO_CREDENTIAL_KEY", strings.Repeat("00", 32))
	t.Setenv("KILO_HTTP_ADDR", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("KILO_TRACE_SAMPLE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Database.MaxConnections != 20 {
		t.Errorf("MaxConnections = %d, want 20", cfg.Database.MaxConnections)
	}
	if cfg.Tracing.Endpoint != "" || cfg.Tracing.SamplingRate != 1.0 {
		t.Errorf("Tracing = %+v, want disabled with full sampling", cfg.Tracing)
	}
}

func TestLoadTracing(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/kilo")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("KILO_CREDENTIAL_KEY", strings.Repeat("00", 32))
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	t.Setenv("KILO_TRACE_SAMPLE", "0.25")
	t.Setenv("KILO_TRACE_INSECURE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tracing.Endpoint != "localhost:4317" {
		t.Errorf("Endpoint = %q", cfg.Tracing.Endpoint)
	}
	if cfg.Tracing.SamplingRate != 0.25 {
		t.Errorf("SamplingRate = %v", cfg.Tracing.SamplingRate)
	}
	if !cfg.Tracing.Insecure {
		t.Error("Insecure not set")
	}
	t.Setenv("KILO_TRACE_SAMPLE", "not a number")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tracing.SamplingRate != 1.0 {
		t.Errorf("bad sample rate fell back to %v, want 1.0", cfg.Tracing.SamplingRate)
	}
}
