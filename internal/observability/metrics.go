// Package observability holds the engine-level Prometheus metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	recordedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codingcam",
		Subsystem: "engine",
		Name:      "records_total",
		Help:      "Number of heartbeats and sessions recorded, labeled by kind and outcome.",
	}, []string{"kind", "outcome"})

	creditedSeconds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codingcam",
		Subsystem: "engine",
		Name:      "credited_seconds_total",
		Help:      "Coding seconds folded into daily summaries, labeled by source kind.",
	}, []string{"kind"})

	lastRecordedGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "codingcam",
		Subsystem: "engine",
		Name:      "last_recorded_timestamp_seconds",
		Help:      "Unix timestamp of the most recent record committed, labeled by kind.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(recordedCounter, creditedSeconds, lastRecordedGauge)
}

// RecordActivity counts a committed heartbeat.
func RecordActivity(seconds int64, ts time.Time) {
	recordedCounter.WithLabelValues("activity", "created").Inc()
	creditedSeconds.WithLabelValues("activity").Add(float64(seconds))
	setWatermark("activity", ts)
}

// RecordSession counts a newly created session.
func RecordSession(seconds int64, ts time.Time) {
	recordedCounter.WithLabelValues("session", "created").Inc()
	creditedSeconds.WithLabelValues("session").Add(float64(seconds))
	setWatermark("session", ts)
}

// RecordSessionDuplicate counts a replayed session id.
func RecordSessionDuplicate() {
	recordedCounter.WithLabelValues("session", "duplicate").Inc()
}

// RecordSessionProgress counts a periodic update applied in place.
func RecordSessionProgress() {
	recordedCounter.WithLabelValues("session", "progressed").Inc()
}

func setWatermark(kind string, ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastRecordedGauge.WithLabelValues(kind).Set(float64(ts.Unix()))
}
