// Package metrics holds the Prometheus collectors of the auth service.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "listarr"

var (
	AuthEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_events_total",
			Help:      "Session operations by outcome.",
		},
		[]string{"operation", "result"},
	)

	APIKeyVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_key_verifications_total",
			Help:      "API key verification attempts by outcome.",
		},
		[]string{"result"},
	)

	RateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by the fixed-window limiter.",
		},
		[]string{"class"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

var registerOnce sync.Once

// Init registers the collectors in the default registry.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(AuthEvents, APIKeyVerifications, RateLimitRejections, HTTPRequestDuration)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// Result maps an error to the "result" label.
func Result(err error) string {
	if err == nil {
		return "success"
	}
	return "failure"
}
