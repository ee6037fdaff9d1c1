// Package config loads runtime configuration from environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the main configuration structure for the Kilo runtime.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	LLM      LLMConfig
	Search   SearchConfig
	Vault    VaultConfig
	Logging  LoggingConfig
	Tracing  TracingConfig
}

type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
}

type CacheConfig struct {
	URL string
}

type LLMConfig struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
}

type SearchConfig struct {
	BraveAPIKey string
}

type VaultConfig struct {
	// MasterKeyHex is the 64-character hex encoding of the 32-byte AES key.
	MasterKeyHex string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type TracingConfig struct {
	// Endpoint is the OTLP gRPC collector address; empty disables tracing.
	Endpoint     string
	SamplingRate float64
	Insecure     bool
}

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            envOr("KILO_HTTP_ADDR", ":8080"),
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			URL:            os.Getenv("DATABASE_URL"),
			MaxConnections: 20,
		},
		Cache: CacheConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		LLM: LLMConfig{
			AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
			OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		},
		Search: SearchConfig{
			BraveAPIKey: os.Getenv("BRAVE_API_KEY"),
		},
		Vault: VaultConfig{
			MasterKeyHex: os.Getenv("KILO_CREDENTIAL_KEY"),
		},
		Logging: LoggingConfig{
			Level:  envOr("LOG_LEVEL", "info"),
			Format: envOr("LOG_FORMAT", "json"),
		},
		Tracing: TracingConfig{
			Endpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			SamplingRate: envFloat("KILO_TRACE_SAMPLE", 1.0),
			Insecure:     os.Getenv("KILO_TRACE_INSECURE") == "true",
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.LLM.AnthropicAPIKey == "" && c.LLM.OpenAIAPIKey == "" {
		return fmt.Errorf("at least one of ANTHROPIC_API_KEY or OPENAI_API_KEY is required")
	}
	if err := ValidateMasterKey(c.Vault.MasterKeyHex); err != nil {
		return err
	}
	return nil
}

// ValidateMasterKey checks that key is 64 hex characters (32 bytes).
func ValidateMasterKey(key string) error {
	if len(key) != 64 {
		return fmt.Errorf("KILO_CREDENTIAL_KEY must be 64 hex characters, got %d", len(key))
	}
	if _, err := hex.DecodeString(key); err != nil {
		return fmt.Errorf("KILO_CREDENTIAL_KEY is not valid hex: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
