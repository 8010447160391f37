package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	// HandoffsTotal counts hand-off steps by stage (authorize, redirect, poll)
	// and outcome.
	HandoffsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sfapi_handoffs_total",
		Help: "Total number of authorization hand-off steps.",
	}, []string{"stage", "outcome"})

	TokensMintedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sfapi_tokens_minted_total",
		Help: "Total number of access tokens minted from stored refresh tokens.",
	}, []string{"outcome"})

	LogoutsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sfapi_logouts_total",
		Help: "Total number of logouts, including forced ones.",
	}, []string{"reason"})

	// UpsertsTotal counts object upserts by result (created, updated, failed).
	UpsertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sfapi_upserts_total",
		Help: "Total number of object upserts.",
	}, []string{"object", "result"})

	WebFormsRegisteredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sfapi_web_forms_registered_total",
		Help: "Total number of web form webhooks registered.",
	})
)

// InitCustomMetrics registers the application metrics.
// It should be called once at application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics.")
		return
	}

	collectors := map[string]prometheus.Collector{
		"HandoffsTotal":           HandoffsTotal,
		"TokensMintedTotal":       TokensMintedTotal,
		"LogoutsTotal":            LogoutsTotal,
		"UpsertsTotal":            UpsertsTotal,
		"WebFormsRegisteredTotal": WebFormsRegisteredTotal,
	}

	for name, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to register metric")
		}
	}

	log.Info().Msg("Custom Prometheus metrics registered.")
}
