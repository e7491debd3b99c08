// Package main is the entry point for the audio gateway observability
// service.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/voxlane/audio-gateway/internal/alerting"
	"github.com/voxlane/audio-gateway/internal/config"
	"github.com/voxlane/audio-gateway/internal/gateway"
	"github.com/voxlane/audio-gateway/internal/metrics"
	"github.com/voxlane/audio-gateway/internal/monitoring"
	"github.com/voxlane/audio-gateway/internal/tracing"
)

// loadEnvFiles loads .env from standard locations.
func loadEnvFiles() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		_ = godotenv.Load()
		return
	}

	configEnv := filepath.Join(homeDir, ".config", "audio-gateway", ".env")
	if _, err := os.Stat(configEnv); err == nil {
		_ = godotenv.Load(configEnv)
	}

	// Local .env can override.
	_ = godotenv.Load()
}

func main() {
	loadEnvFiles()

	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	if *debug {
		cfg.Monitoring.LogLevel = "debug"
	}
	monitoring.Global(cfg.Monitoring)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("gateway exited")
	}
}

func run(cfg *config.Config) error {
	collector := metrics.NewCollector(cfg.Metrics)
	defer collector.Close()

	var rules alerting.RuleSource
	if cfg.Alerting.RulesPath != "" {
		store, err := alerting.OpenRuleStore(cfg.Alerting.RulesPath)
		if err != nil {
			return fmt.Errorf("failed to open rule store: %w", err)
		}
		defer store.Close()
		rules = store
	} else {
		rules = alerting.NewStaticRuleSource()
		log.Warn().Msg("no rules_path configured, alerting runs with an empty rule set")
	}

	engine := alerting.NewEngine(rules, alerting.LogNotifier{}, cfg.Alerting.HistoryLimit)
	defer engine.Close()
	collector.SetEvaluator(engine)
	engine.Start(collector, cfg.Alerting.EvaluationInterval)

	var tp *sdktrace.TracerProvider
	if cfg.Tracing.Enabled {
		tp = sdktrace.NewTracerProvider()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(ctx)
		}()
	}
	var tracer *tracing.Service
	if tp != nil {
		tracer = tracing.NewService(cfg.Tracing, tp)
	} else {
		tracer = tracing.NewService(cfg.Tracing, nil)
	}
	defer tracer.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      gateway.NewServer(collector, engine, tracer).Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("audio gateway observability listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
