// Package wire defines the JSON payloads sent by the editor extension, over HTTP or
// through the ingest topics, and converts them to engine inputs.
package wire

import (
	"math"
	"time"

	"github.com/Haseeb-Arshad/codingcam-backend/internal/domain"
)

// Heartbeat is a single activity ping.
type Heartbeat struct {
	ProjectName     string    `json:"project_name"`
	LanguageName    string    `json:"language_name"`
	Editor          string    `json:"editor"`
	Platform        string    `json:"platform"`
	FilePath        string    `json:"file_path"`
	LineCount       *float64  `json:"line_count"`
	CursorPosition  *float64  `json:"cursor_position"`
	DurationSeconds float64   `json:"duration_seconds"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
}

// Validate rejects numbers that cannot be represented as whole counters.
func (h Heartbeat) Validate() error {
	if !finite(h.DurationSeconds) {
		return &domain.ValidationError{Field: "duration_seconds", Reason: "must be a finite number"}
	}
	if h.LineCount != nil && !finite(*h.LineCount) {
		return &domain.ValidationError{Field: "line_count", Reason: "must be a finite number"}
	}
	if h.CursorPosition != nil && !finite(*h.CursorPosition) {
		return &domain.ValidationError{Field: "cursor_position", Reason: "must be a finite number"}
	}
	return nil
}

// ActivityInput converts the payload for the given caller.
func (h Heartbeat) ActivityInput(userID string) domain.ActivityInput {
	return domain.ActivityInput{
		UserID:          userID,
		ProjectName:     h.ProjectName,
		LanguageName:    h.LanguageName,
		Editor:          h.Editor,
		Platform:        h.Platform,
		FilePath:        h.FilePath,
		LineCount:       int(round(deref(h.LineCount))),
		CursorPosition:  int(round(deref(h.CursorPosition))),
		DurationSeconds: round(h.DurationSeconds),
		StartedAt:       h.StartedAt,
		EndedAt:         h.EndedAt,
	}
}

// File is the per-file bucket of a session report.
type File struct {
	Edits      float64 `json:"edits"`
	Duration   float64 `json:"duration"`
	Language   string  `json:"language"`
	Lines      float64 `json:"lines"`
	Keystrokes float64 `json:"keystrokes"`
}

// Session is a final session report or, with IsPeriodicUpdate set, an in-progress one.
type Session struct {
	SessionID        string             `json:"session_id"`
	StartTime        time.Time          `json:"start_time"`
	EndTime          time.Time          `json:"end_time"`
	DurationSeconds  float64            `json:"duration_seconds"`
	FilesCount       float64            `json:"files_count"`
	Languages        map[string]float64 `json:"languages"`
	Files            map[string]File    `json:"files"`
	Platform         string             `json:"platform"`
	Editor           string             `json:"editor"`
	IsOfflineSync    bool               `json:"is_offline_sync"`
	IsPeriodicUpdate bool               `json:"is_periodic_update"`
}

// Validate rejects non-finite numbers anywhere in the report.
func (s Session) Validate() error {
	if !finite(s.DurationSeconds) {
		return &domain.ValidationError{Field: "duration_seconds", Reason: "must be a finite number"}
	}
	if !finite(s.FilesCount) {
		return &domain.ValidationError{Field: "files_count", Reason: "must be a finite number"}
	}
	for name, seconds := range s.Languages {
		if !finite(seconds) {
			return &domain.ValidationError{Field: "languages." + name, Reason: "must be a finite number"}
		}
	}
	for path, f := range s.Files {
		for _, v := range []float64{f.Edits, f.Duration, f.Lines, f.Keystrokes} {
			if !finite(v) {
				return &domain.ValidationError{Field: "files." + path, Reason: "must contain finite numbers"}
			}
		}
	}
	return nil
}

// SessionInput converts the payload for the given caller.
func (s Session) SessionInput(userID string) domain.SessionInput {
	in := domain.SessionInput{
		UserID:          userID,
		SessionID:       s.SessionID,
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		DurationSeconds: round(s.DurationSeconds),
		FilesCount:      int(round(s.FilesCount)),
		Languages:       make(map[string]int64, len(s.Languages)),
		Files:           make(map[string]domain.FileActivity, len(s.Files)),
		Platform:        s.Platform,
		Editor:          s.Editor,
		IsOfflineSync:   s.IsOfflineSync,
	}
	for name, seconds := range s.Languages {
		in.Languages[name] = round(seconds)
	}
	for path, f := range s.Files {
		in.Files[path] = domain.FileActivity{
			Edits:      round(f.Edits),
			Duration:   round(f.Duration),
			Language:   f.Language,
			Lines:      round(f.Lines),
			Keystrokes: round(f.Keystrokes),
		}
	}
	return in
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func round(v float64) int64 {
	return int64(math.Round(v))
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
