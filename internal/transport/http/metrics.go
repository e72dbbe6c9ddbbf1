package httptransport

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "codingcam",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "Latency of HTTP requests, labeled by route, method and status class.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route", "method", "status"})

func init() {
	prometheus.MustRegister(requestDuration)
}

func observeRequest(route, method string, status int, elapsed time.Duration) {
	requestDuration.WithLabelValues(route, method, statusClass(status)).Observe(elapsed.Seconds())
}
