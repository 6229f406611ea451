package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Extraction
	Extractions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "product_scraper_extractions_total",
			Help: "Total number of extraction requests by site and outcome",
		},
		[]string{"site", "outcome"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "product_scraper_fetch_duration_seconds",
			Help:    "Time taken to download a product page",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15},
		},
		[]string{"site"},
	)

	MissingFields = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "product_scraper_missing_fields_total",
			Help: "Fields left empty on an otherwise successful extraction",
		},
		[]string{"site", "field"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "product_scraper_cache_lookups_total",
			Help: "Result cache lookups by result",
		},
		[]string{"result"},
	)

	// Jobs
	JobURLs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "product_scraper_job_urls_total",
			Help: "URLs processed by import jobs",
		},
		[]string{"status"},
	)

	JobsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "product_scraper_jobs_running",
			Help: "Import jobs currently being processed",
		},
	)

	// Outbox relay
	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "product_scraper_outbox_events_total",
			Help: "Outbox events relayed to Redis by status",
		},
		[]string{"status"},
	)
)

// Outcome labels for Extractions.
const (
	OutcomeSuccess    = "success"
	OutcomeInvalidURL = "invalid_url"
	OutcomeFetchError = "fetch_error"
	OutcomeTimeout    = "timeout"
	OutcomeInternal   = "internal"
)

func Handler() http.Handler {
	return promhttp.Handler()
}
