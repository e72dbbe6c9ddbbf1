package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes of one consumed record.
const (
	outcomeProcessed    = "processed"
	outcomeRejected     = "rejected"
	outcomeHandlerError = "handler_error"
	outcomeUndecodable  = "undecodable"
)

var (
	messagesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codingcam",
		Subsystem: "ingest",
		Name:      "messages_total",
		Help:      "Ingest records consumed, labeled by topic, event type and outcome.",
	}, []string{"topic", "event_type", "outcome"})

	lagGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "codingcam",
		Subsystem: "ingest",
		Name:      "record_age_seconds",
		Help:      "Age of the most recently recorded message when it was committed, per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(messagesCounter, lagGauge)
}

func recordProcessed(msg Message) {
	messagesCounter.WithLabelValues(msg.Topic, msg.EventType, outcomeProcessed).Inc()
	if !msg.Timestamp.IsZero() {
		lagGauge.WithLabelValues(msg.Topic).Set(time.Since(msg.Timestamp).Seconds())
	}
}

func recordHandlerError(msg Message) {
	messagesCounter.WithLabelValues(msg.Topic, msg.EventType, outcomeHandlerError).Inc()
}

func recordRejected(msg Message) {
	messagesCounter.WithLabelValues(msg.Topic, msg.EventType, outcomeRejected).Inc()
}

func recordDecodeError(topic string) {
	messagesCounter.WithLabelValues(topic, "", outcomeUndecodable).Inc()
}
