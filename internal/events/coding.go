// Package events defines the payloads written to the outbox and published to Kafka.
package events

import "time"

// Event types written to the outbox.
const (
	TypeActivityRecorded  = "activity.recorded"
	TypeSessionRecorded   = "session.recorded"
	TypeSessionProgressed = "session.progressed"
)

// ActivityRecorded is emitted once a heartbeat has been folded into its daily summary.
type ActivityRecorded struct {
	ActivityID      string    `json:"activity_id"`
	UserID          string    `json:"user_id"`
	ProjectName     string    `json:"project_name,omitempty"`
	LanguageName    string    `json:"language_name,omitempty"`
	Editor          string    `json:"editor"`
	Platform        string    `json:"platform"`
	DurationSeconds int64     `json:"duration_seconds"`
	StartedAt       time.Time `json:"started_at"`
	Day             string    `json:"day"`
	DayTotalSeconds int64     `json:"day_total_seconds"`
}

// SessionRecorded is emitted when a coding session is created.
type SessionRecorded struct {
	SessionID       string           `json:"session_id"`
	UserID          string           `json:"user_id"`
	StartTime       time.Time        `json:"start_time"`
	EndTime         time.Time        `json:"end_time"`
	DurationSeconds int64            `json:"duration_seconds"`
	Languages       map[string]int64 `json:"languages"`
	IsOfflineSync   bool             `json:"is_offline_sync"`
	Day             string           `json:"day"`
	DayTotalSeconds int64            `json:"day_total_seconds"`
}

// SessionProgressed is emitted for every periodic update applied in place.
type SessionProgressed struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	EndTime         time.Time `json:"end_time"`
	DurationSeconds int64     `json:"duration_seconds"`
	FilesCount      int       `json:"files_count"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Event types carried on the ingest topics, where an edge gateway forwards extension
// payloads unchanged with the authenticated user in the user_id header.
const (
	TypeHeartbeatReceived = "heartbeat.received"
	TypeSessionReceived   = "session.received"
)

// Ingest topics consumed by the aggregation worker.
const (
	TopicHeartbeatIngest = "heartbeat_ingest"
	TopicSessionIngest   = "session_ingest"
)

// Topics the outbox publishes to.
const (
	TopicCodingActivity = "coding_activity_events"
	TopicCodingSessions = "coding_session_events"
)

// Route describes where an outbox event is published.
type Route struct {
	Topic         string
	SchemaSubject string
}

var routes = map[string]Route{
	TypeActivityRecorded:  {Topic: TopicCodingActivity, SchemaSubject: TopicCodingActivity + "-value"},
	TypeSessionRecorded:   {Topic: TopicCodingSessions, SchemaSubject: TopicCodingSessions + "-value"},
	TypeSessionProgressed: {Topic: TopicCodingSessions, SchemaSubject: "coding_session_progressed-value"},
}

// RouteFor returns the route of a known event type.
func RouteFor(eventType string) (Route, bool) {
	r, ok := routes[eventType]
	return r, ok
}
