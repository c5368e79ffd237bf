package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "ga_enrich"

var (
	ExtractionCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "extractions_total", Help: "Review extractions by final state."},
		[]string{"state"}, // state: parsed|failed
	)
	ExtractionRetries = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "extraction_retries_total", Help: "Extraction attempts beyond the first."},
	)
	TagRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "tag_rejections_total", Help: "Extracted tags dropped during validation."},
		[]string{"reason"},
	)
	AirportsBuilt = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "airports_built_total", Help: "Airports processed by the builder."},
		[]string{"result"}, // result: written|skipped|error
	)
	SourceReviews = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "source_reviews_total", Help: "Reviews accepted per source."},
		[]string{"source"},
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "external_requests_total", Help: "Outbound requests."},
		[]string{"service", "endpoint", "status"},
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace, Name: "external_request_duration_seconds",
			Help:    "Outbound request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|set|del
	)
)

// Serve exposes /metrics on addr in the background. Empty addr disables it.
func Serve(addr string, reg *prometheus.Registry) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(reg))

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(ExtractionCalls, ExtractionRetries, TagRejections, AirportsBuilt,
		SourceReviews, ExternalRequests, ExternalLatency, CacheEvents)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveExtraction(state string, retries int) {
	ExtractionCalls.WithLabelValues(state).Inc()
	if retries > 0 {
		ExtractionRetries.Add(float64(retries))
	}
}

func ObserveRejection(reason string) { TagRejections.WithLabelValues(reason).Inc() }

func ObserveAirport(result string) { AirportsBuilt.WithLabelValues(result).Inc() }

func ObserveSourceReviews(source string, n int) {
	SourceReviews.WithLabelValues(source).Add(float64(n))
}

func ObserveExternal(service, endpoint string, status int, dur time.Duration) {
	ExternalRequests.WithLabelValues(service, endpoint, strconv.Itoa(status)).Inc()
	ExternalLatency.WithLabelValues(service, endpoint).Observe(dur.Seconds())
}

func ObserveCache(cache, event string) { // event: hit|miss|set|del
	CacheEvents.WithLabelValues(cache, event).Inc()
}

func LabelErr(err error) string {
	if err == nil {
		return "none"
	}
	return fmt.Sprintf("%T", err)
}
