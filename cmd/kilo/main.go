// Package main provides the CLI entry point for the Kilo agent runtime.
//
// Kilo serves a conversational personal-assistant API: per-bot skills with
// dedicated Postgres data tables, a task-routed LLM gateway (Anthropic
// primary, OpenAI fallback), conversational skill learning backed by web
// research, and encrypted external API bindings.
//
// # Basic Usage
//
// Start the server:
//
//	kilo serve
//
// Generate a credential master key:
//
//	kilo keygen
//
// # Environment Variables
//
//   - KILO_HTTP_ADDR: HTTP listen address (default :8080)
//   - DATABASE_URL: Postgres connection string (required)
//   - REDIS_URL: Redis URL for the read-through cache (optional)
//   - ANTHROPIC_API_KEY: Anthropic API key
//   - OPENAI_API_KEY: OpenAI API key
//   - BRAVE_API_KEY: Brave Search key for the learning flow
//   - KILO_CREDENTIAL_KEY: 64-char hex AES-256 key for the credential vault
//   - LOG_LEVEL, LOG_FORMAT: logging controls (info/json by default)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP gRPC collector for traces (optional)
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kilohq/kilo/internal/cache"
	"github.com/kilohq/kilo/internal/config"
	"github.com/kilohq/kilo/internal/httptool"
	"github.com/kilohq/kilo/internal/learning"
	"github.com/kilohq/kilo/internal/llm"
	"github.com/kilohq/kilo/internal/observability"
	"github.com/kilohq/kilo/internal/orchestrator"
	"github.com/kilohq/kilo/internal/scheduler"
	"github.com/kilohq/kilo/internal/schemagen"
	"github.com/kilohq/kilo/internal/sqlguard"
	"github.com/kilohq/kilo/internal/storage"
	"github.com/kilohq/kilo/internal/usage"
	"github.com/kilohq/kilo/internal/vault"
	"github.com/kilohq/kilo/internal/web"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "kilo",
		Short:        "Kilo - conversational agent runtime",
		Long:         "Kilo runs personal assistant bots that learn skills from conversation.",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd(), buildVersionCmd(), buildKeygenCmd())
	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kilo %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func buildServeCmd() *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Kilo API server",
		Long: `Start the Kilo API server.

The server connects to Postgres and Redis, initializes the credential
vault and LLM providers, and serves the chat and management API.
Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), debug)
		},
	}
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func buildKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a credential vault master key",
		RunE: func(cmd *cobra.Command, args []string) error {
			key := make([]byte, 32)
			if _, err := rand.Read(key); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(key))
			return nil
		},
	}
}

func runServe(ctx context.Context, debug bool) error {
	// A local .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	tracer, flushTraces, err := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "kilo",
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Insecure:       cfg.Tracing.Insecure,
	})
	if err != nil {
		return err
	}
	defer flushTraces(context.Background())

	v, err := vault.Init(cfg.Vault.MasterKeyHex)
	if err != nil {
		return err
	}
	defer vault.Shutdown()

	db, err := storage.OpenDB(cfg.Database.URL, cfg.Database.MaxConnections)
	if err != nil {
		return err
	}
	stores := storage.NewStoresFromDB(db)
	defer stores.Close()

	c, err := cache.New(cfg.Cache.URL, logger, metrics)
	if err != nil {
		return err
	}
	defer c.Close()

	var providers []llm.Provider
	if cfg.LLM.AnthropicAPIKey != "" {
		providers = append(providers, llm.NewAnthropicProvider(cfg.LLM.AnthropicAPIKey))
	}
	if cfg.LLM.OpenAIAPIKey != "" {
		providers = append(providers, llm.NewOpenAIProvider(cfg.LLM.OpenAIAPIKey))
	}
	gateway := llm.NewGateway(llm.DefaultRoutes(), providers, logger, metrics)

	tracker := usage.NewTracker(stores.Usage, stores.Pricing, logger)
	defer tracker.Flush()
	tracked := llm.NewTrackedGateway(gateway, tracker)

	researcher := learning.NewResearcher(
		learning.NewSearcher(cfg.Search.BraveAPIKey),
		learning.NewFetcher(),
		tracked, logger)

	guard := sqlguard.NewExecutor(db)
	generator := schemagen.NewGenerator(db)
	loader := orchestrator.NewStoreLoader(stores, c, guard, db)
	orch := orchestrator.New(loader, tracked, researcher, httptool.NewExecutor(), v, logger).
		WithMetrics(metrics).
		WithTracer(tracer)

	sched := scheduler.New(func(ctx context.Context, n scheduler.Notification) {
		// Delivery channels (push, email) hang off this hook; for now the
		// fired notification is only logged.
		logger.Info(ctx, "notification due", "user", n.UserID, "message", n.Message)
	}, logger)
	sched.Start()
	defer sched.Stop()

	effects := web.NewEffectApplier(stores, guard, sched, logger)
	handler := web.NewHandler(stores, c, orch, generator, effects, v, logger, metrics)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
