package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sakib25800/framer-salesforce-api/config"
	"github.com/Sakib25800/framer-salesforce-api/internal/metrics"
	"github.com/Sakib25800/framer-salesforce-api/internal/server"
	"github.com/Sakib25800/framer-salesforce-api/internal/telemetry"
	"github.com/Sakib25800/framer-salesforce-api/log"
	"github.com/Sakib25800/framer-salesforce-api/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

func main() {
	// Load configuration first
	cfg, err := config.LoadConfig()
	if err != nil {
		stdLog := zerolog.New(os.Stdout).With().Timestamp().Logger()
		stdLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	appLogger, err := log.Setup(cfg.LogLevel, cfg.LogPretty)
	if err != nil {
		zerolog.New(os.Stdout).With().Timestamp().Logger().Warn().
			Str("configured_log_level", cfg.LogLevel).
			Err(err).
			Msg("Invalid LOG_LEVEL configured, defaulting to 'info'")
		appLogger, _ = log.Setup("info", cfg.LogPretty)
	}

	ctx := log.WithContext(context.Background(), appLogger)

	if err := cfg.Validate(); err != nil {
		appLogger.Fatal(ctx, "Invalid configuration", err)
	}

	appLogger.Info(ctx, "Configuration loaded successfully", map[string]interface{}{
		"http_port":       cfg.HTTPPort,
		"public_url":      cfg.PublicURL,
		"ephemeral_store": cfg.EphemeralStore,
		"durable_store":   cfg.DurableStore,
		"api_version":     cfg.APIVersion,
		"log_level":       cfg.LogLevel,
		"otel_service":    cfg.OtelServiceName,
	})

	tracerProvider, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize TracerProvider", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.InitCustomMetrics(registry)

	meterProvider, err := telemetry.InitMeterProvider(registry)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize MeterProvider", err)
	}

	backends, err := server.OpenBackends(ctx, cfg)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to open store backends", err)
	}

	services, err := server.NewServices(cfg, server.NewStores(cfg, backends), server.NewOutboundClient(cfg))
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize services", err)
	}
	services.Health = backends.Ping

	router := server.NewRouter(cfg, appLogger, services, registry)
	httpServer := server.NewHTTPServer(cfg, router)

	go func() {
		appLogger.Info(ctx, fmt.Sprintf("HTTP server listening on port %s", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal(ctx, "Failed to start HTTP server", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-quit

	appLogger.Info(ctx, fmt.Sprintf("Received signal: %v. Shutting down server...", receivedSignal))

	shutdownCtx, cancelShutdown := context.WithTimeout(ctx, 30*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown error", err)
	}

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "TracerProvider shutdown error", err)
	}

	telemetry.Shutdown(shutdownCtx, meterProvider)
	backends.Close(shutdownCtx)

	appLogger.Info(shutdownCtx, "Server gracefully stopped.")
}
