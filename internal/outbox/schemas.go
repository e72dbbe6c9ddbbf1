package outbox

import "github.com/Haseeb-Arshad/codingcam-backend/internal/events"

const activityRecordedSchema = `{
  "type": "object",
  "title": "ActivityRecorded",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "project_name": {"type": "string"},
    "language_name": {"type": "string"},
    "editor": {"type": "string"},
    "platform": {"type": "string"},
    "duration_seconds": {"type": "integer", "minimum": 0},
    "started_at": {"type": "string", "format": "date-time"},
    "day": {"type": "string", "format": "date"},
    "day_total_seconds": {"type": "integer", "minimum": 0}
  },
  "required": ["activity_id", "user_id", "editor", "platform", "duration_seconds", "started_at", "day", "day_total_seconds"],
  "additionalProperties": false
}`

const sessionRecordedSchema = `{
  "type": "object",
  "title": "SessionRecorded",
  "properties": {
    "session_id": {"type": "string"},
    "user_id": {"type": "string"},
    "start_time": {"type": "string", "format": "date-time"},
    "end_time": {"type": "string", "format": "date-time"},
    "duration_seconds": {"type": "integer", "minimum": 0},
    "languages": {"type": "object", "additionalProperties": {"type": "integer"}},
    "is_offline_sync": {"type": "boolean"},
    "day": {"type": "string", "format": "date"},
    "day_total_seconds": {"type": "integer", "minimum": 0}
  },
  "required": ["session_id", "user_id", "start_time", "end_time", "duration_seconds", "languages", "day", "day_total_seconds"],
  "additionalProperties": false
}`

const sessionProgressedSchema = `{
  "type": "object",
  "title": "SessionProgressed",
  "properties": {
    "session_id": {"type": "string"},
    "user_id": {"type": "string"},
    "end_time": {"type": "string", "format": "date-time"},
    "duration_seconds": {"type": "integer", "minimum": 0},
    "files_count": {"type": "integer", "minimum": 0},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["session_id", "user_id", "end_time", "duration_seconds", "occurred_at"],
  "additionalProperties": false
}`

var schemaCatalog = map[string]string{
	events.TypeActivityRecorded:  activityRecordedSchema,
	events.TypeSessionRecorded:   sessionRecordedSchema,
	events.TypeSessionProgressed: sessionProgressedSchema,
}
