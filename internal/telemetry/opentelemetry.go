// Package telemetry exports OpenTelemetry metrics, such as the otelhttp
// request durations of the server and its upstream client, through the
// Prometheus registry served on /metrics.
package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	prometheusexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
)

// InitMeterProvider registers a MeterProvider whose instruments are
// collected by reg, and installs it globally.
func InitMeterProvider(reg prometheus.Registerer) (*metric.MeterProvider, error) {
	exporter, err := prometheusexporter.New(prometheusexporter.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}

	mp := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(mp)
	log.Info().Msg("OpenTelemetry MeterProvider initialized with Prometheus exporter")

	return mp, nil
}

// Shutdown flushes and stops mp.
func Shutdown(ctx context.Context, mp *metric.MeterProvider) {
	if mp == nil {
		return
	}

	if err := mp.Shutdown(ctx); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Error shutting down OpenTelemetry MeterProvider")
		return
	}

	log.Ctx(ctx).Info().Msg("OpenTelemetry MeterProvider shut down successfully")
}
