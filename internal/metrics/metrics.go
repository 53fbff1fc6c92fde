package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "eventmap"

// Registry is the process-wide registry served on /metrics.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Feed metrics

// FeedRefreshTotal counts refresh attempts by result (success|transport|parse).
var FeedRefreshTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_refresh_total",
		Help:      "Total number of spreadsheet feed refreshes",
	},
	[]string{"result"},
)

// FeedRefreshDuration tracks end-to-end refresh time including geocoding.
var FeedRefreshDuration = promauto.With(Registry).NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "feed_refresh_duration_seconds",
		Help:      "Duration of a full feed refresh in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	},
)

// FeedRowsSkippedTotal counts rows dropped during ingestion.
var FeedRowsSkippedTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_rows_skipped_total",
		Help:      "Total number of spreadsheet rows skipped during ingestion",
	},
	[]string{"reason"}, // reason: missing_column|bad_payload
)

// EventsLoaded is the size of the current snapshot per partition.
var EventsLoaded = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "events_loaded",
		Help:      "Number of events in the current snapshot",
	},
	[]string{"state"}, // state: active|archived
)

// Date metrics

// DateParseTotal counts which parsing strategy resolved a date string.
var DateParseTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "date_parse_total",
		Help:      "Total number of date strings parsed, by winning strategy",
	},
	[]string{"strategy"}, // strategy: numeric|english|range|time_only|fallback
)

// Geocoding metrics

// GeocodingRequestsTotal counts resolutions by where the coordinate came from.
var GeocodingRequestsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "geocoding_requests_total",
		Help:      "Total number of location resolutions",
	},
	[]string{"source"}, // source: known|memo|nominatim|default
)

// GeocodingNominatimRequestsTotal counts outbound requests by status.
var GeocodingNominatimRequestsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "geocoding_nominatim_requests_total",
		Help:      "Total number of geocoding API requests",
	},
	[]string{"status"}, // status: success|empty|error
)

// GeocodingNominatimLatency tracks geocoding API latency.
var GeocodingNominatimLatency = promauto.With(Registry).NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "geocoding_nominatim_latency_seconds",
		Help:      "Geocoding API request latency in seconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
)

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
