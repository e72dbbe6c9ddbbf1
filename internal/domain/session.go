package domain

import (
	"math"
	"path"
	"sort"
	"strings"
	"time"
)

// UnknownValue replaces missing language, platform and editor strings.
const UnknownValue = "unknown"

// FileActivity is the per-file bucket inside a coding session.
type FileActivity struct {
	Edits      int64  `json:"edits"`
	Duration   int64  `json:"duration"`
	Language   string `json:"language"`
	Lines      int64  `json:"lines"`
	Keystrokes int64  `json:"keystrokes"`
}

// SessionMetrics are derived from the session state on every persist.
type SessionMetrics struct {
	TotalKeystrokes            int64
	AverageKeystrokesPerMinute int64
	MaxKeystrokesPerMinute     int64
	MostUsedLanguage           string
	MostEditedFile             string
}

// CodingSession is one continuous coding interval reported by the extension.
type CodingSession struct {
	ID              string
	SessionID       string
	UserID          string
	StartTime       time.Time
	EndTime         time.Time
	DurationSeconds int64
	FilesCount      int
	Languages       map[string]int64
	Files           map[string]FileActivity
	Platform        string
	Editor          string
	IsOfflineSync   bool
	Metrics         SessionMetrics
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Clone returns a deep copy so callers can mutate maps without aliasing stored state.
func (s CodingSession) Clone() CodingSession {
	out := s
	out.Languages = make(map[string]int64, len(s.Languages))
	for k, v := range s.Languages {
		out.Languages[k] = v
	}
	out.Files = make(map[string]FileActivity, len(s.Files))
	for k, v := range s.Files {
		out.Files[k] = v
	}
	return out
}

// SessionInput is the payload of both a final session report and a periodic update.
type SessionInput struct {
	UserID          string
	SessionID       string
	StartTime       time.Time
	EndTime         time.Time
	DurationSeconds int64
	FilesCount      int
	Languages       map[string]int64
	Files           map[string]FileActivity
	Platform        string
	Editor          string
	IsOfflineSync   bool
}

// Validate checks the fields without which a session cannot be stored.
func (in SessionInput) Validate() error {
	switch {
	case blank(in.UserID):
		return invalid("user_id", "is required")
	case blank(in.SessionID):
		return invalid("session_id", "is required")
	case in.StartTime.IsZero():
		return invalid("start_time", "is required")
	case in.EndTime.IsZero():
		return invalid("end_time", "is required")
	case in.EndTime.Before(in.StartTime):
		return invalid("end_time", "must not be before start_time")
	}
	return nil
}

// normalized returns a copy with defaults applied, negative numbers clamped to zero,
// file paths canonicalised and the duration reconciled with the timestamps.
func (in SessionInput) normalized() SessionInput {
	out := in
	out.UserID = strings.TrimSpace(in.UserID)
	out.SessionID = strings.TrimSpace(in.SessionID)
	out.StartTime = in.StartTime.UTC()
	out.EndTime = in.EndTime.UTC()
	out.Platform = orUnknown(in.Platform)
	out.Editor = orUnknown(in.Editor)

	span := int64(out.EndTime.Sub(out.StartTime) / time.Second)
	if out.DurationSeconds <= 0 || out.DurationSeconds > span {
		out.DurationSeconds = span
	}

	out.Languages = make(map[string]int64, len(in.Languages))
	for name, seconds := range in.Languages {
		out.Languages[orUnknown(name)] += max(seconds, 0)
	}

	out.Files = make(map[string]FileActivity, len(in.Files))
	for _, raw := range sortedKeys(in.Files) {
		key := NormalizePath(raw)
		if key == "" {
			continue
		}
		file := clampFile(in.Files[raw])
		if existing, ok := out.Files[key]; ok {
			file = mergeFile(existing, file)
		}
		out.Files[key] = file
	}
	out.FilesCount = max(in.FilesCount, 0)
	return out
}

// NormalizePath canonicalises separators so the same logical file maps to one bucket
// regardless of the client OS. It is idempotent.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = strings.ReplaceAll(p, `\`, "/")
	cleaned := path.Clean(p)
	if cleaned == "." {
		return ""
	}
	return cleaned
}

// applyPeriodicUpdate folds cumulative-to-date values from an in-progress report into
// the stored session. Languages are overwritten, files merge field by field and a zero
// or empty field in the update keeps the stored value.
func applyPeriodicUpdate(stored CodingSession, update SessionInput) CodingSession {
	out := stored.Clone()
	out.EndTime = update.EndTime
	out.DurationSeconds = update.DurationSeconds

	for name, seconds := range update.Languages {
		out.Languages[name] = seconds
	}
	for _, key := range sortedKeys(update.Files) {
		incoming := update.Files[key]
		if existing, ok := out.Files[key]; ok {
			out.Files[key] = mergeFile(existing, incoming)
			continue
		}
		out.Files[key] = incoming
	}

	out.FilesCount = update.FilesCount
	if out.FilesCount <= 0 {
		out.FilesCount = len(out.Files)
	}
	return out
}

// mergeFile overwrites only the sub-fields present (non-zero) in next.
func mergeFile(prev, next FileActivity) FileActivity {
	out := prev
	if next.Edits != 0 {
		out.Edits = next.Edits
	}
	if next.Duration != 0 {
		out.Duration = next.Duration
	}
	if next.Lines != 0 {
		out.Lines = next.Lines
	}
	if next.Keystrokes != 0 {
		out.Keystrokes = next.Keystrokes
	}
	if next.Language != "" && next.Language != UnknownValue {
		out.Language = next.Language
	}
	if out.Language == "" {
		out.Language = UnknownValue
	}
	return out
}

func clampFile(f FileActivity) FileActivity {
	return FileActivity{
		Edits:      max(f.Edits, 0),
		Duration:   max(f.Duration, 0),
		Lines:      max(f.Lines, 0),
		Keystrokes: max(f.Keystrokes, 0),
		Language:   orUnknown(f.Language),
	}
}

// ComputeMetrics derives the session metrics from its current state. Ties are broken by
// the lexicographically smallest key so the result is deterministic.
func ComputeMetrics(s CodingSession) SessionMetrics {
	var m SessionMetrics

	var maxEdits int64
	for _, p := range sortedKeys(s.Files) {
		f := s.Files[p]
		m.TotalKeystrokes += f.Keystrokes
		if f.Edits > maxEdits {
			maxEdits = f.Edits
			m.MostEditedFile = p
		}
	}

	if s.DurationSeconds > 0 {
		minutes := float64(s.DurationSeconds) / 60
		m.AverageKeystrokesPerMinute = int64(math.Round(float64(m.TotalKeystrokes) / minutes))
		// Peak rate is not sampled by the extension; it is estimated as twice the average.
		m.MaxKeystrokesPerMinute = m.AverageKeystrokesPerMinute * 2
	}

	var maxSeconds int64
	for _, name := range sortedKeys(s.Languages) {
		if seconds := s.Languages[name]; seconds > maxSeconds {
			maxSeconds = seconds
			m.MostUsedLanguage = name
		}
	}
	return m
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return UnknownValue
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
