package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for mapwarden.
// Pass to components that need to record metrics.
type Metrics struct {
	LoginAttempts   *prometheus.CounterVec
	Validations     *prometheus.CounterVec
	Classifications *prometheus.CounterVec
	SyncBatches     *prometheus.CounterVec
	SyncRecords     *prometheus.CounterVec
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		LoginAttempts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mapwarden",
				Name:      "login_attempts_total",
				Help:      "Total login attempts by outcome",
			},
			[]string{"outcome"}, // admin/active/invalid_credentials/no_session/upcoming/expired/error
		),
		Validations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mapwarden",
				Name:      "credential_validations_total",
				Help:      "Total credential validations by outcome",
			},
			[]string{"outcome"}, // ok/expired/rejected/forbidden
		),
		Classifications: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mapwarden",
				Name:      "window_classifications_total",
				Help:      "Total live window classifications by status",
			},
			[]string{"status"}, // waiting/active/expired
		),
		SyncBatches: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mapwarden",
				Name:      "sync_batches_total",
				Help:      "Total sync batches by result",
			},
			[]string{"result"}, // applied/skipped/failed
		),
		SyncRecords: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mapwarden",
				Name:      "sync_records_total",
				Help:      "Total reconciled records by outcome",
			},
			[]string{"outcome"}, // inserted/updated/unchanged/deactivated
		),
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mapwarden",
				Name:      "requests_total",
				Help:      "Total HTTP requests by method and status",
			},
			[]string{"method", "status"}, // status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mapwarden",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}
}
