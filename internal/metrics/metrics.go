// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bills"

var (
	storageOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "storage_operations_total",
		Help:      "Storage operations by operation and result.",
	}, []string{"op", "result"})

	storageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "storage_operation_seconds",
		Help:      "Storage operation latency.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"op"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route pattern and status code.",
	}, []string{"method", "route", "code"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_seconds",
		Help:      "HTTP request latency by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Day view cache lookups by result.",
	}, []string{"result"})

	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Bill change events handed to publishers, by sink and result.",
	}, []string{"sink", "result"})
)

// ObserveStorage records one storage operation that started at start.
func ObserveStorage(op string, start time.Time, err error) {
	storageLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	storageOps.WithLabelValues(op, result(err)).Inc()
}

// ObserveHTTP records a served request and how long it took.
func ObserveHTTP(method, route string, code int, d time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpLatency.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveCache records a cache hit or miss.
func ObserveCache(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}

// ObservePublish records an event publish attempt on sink.
func ObservePublish(sink string, err error) {
	eventsPublished.WithLabelValues(sink, result(err)).Inc()
}

// MiddlewareStats reads the counters kept by the rate limiter and the security
// detector of one server.
type MiddlewareStats struct {
	RateLimited        func() int64
	RateLimitedClients func() int64
	Suspicious         func() int64
	InvalidClientIPs   func() int64
}

// NewMiddlewareRegistry exposes s in a registry of its own. Every server owns
// its limiter and detector, so they cannot live in the default registry.
func NewMiddlewareRegistry(s MiddlewareStats) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_rejected_total",
			Help:      "Mutating requests rejected by the rate limiter.",
		}, asFloat(s.RateLimited)),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ratelimit_clients",
			Help:      "Clients currently tracked by the rate limiter.",
		}, asFloat(s.RateLimitedClients)),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suspicious_requests_total",
			Help:      "Requests flagged as suspicious.",
		}, asFloat(s.Suspicious)),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_client_ip_total",
			Help:      "Forwarded client addresses that failed to parse.",
		}, asFloat(s.InvalidClientIPs)),
	)
	return reg
}

func asFloat(f func() int64) func() float64 {
	return func() float64 { return float64(f()) }
}

// Handler serves the default registry merged with extra.
func Handler(extra ...prometheus.Gatherer) http.Handler {
	if len(extra) == 0 {
		return promhttp.Handler()
	}
	gatherers := append(prometheus.Gatherers{prometheus.DefaultGatherer}, extra...)
	return promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
