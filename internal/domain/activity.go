package domain

import (
	"strings"
	"time"
)

// Activity is one immutable heartbeat from the editor extension.
type Activity struct {
	ID              string
	UserID          string
	ProjectID       string
	ProjectName     string
	LanguageID      string
	LanguageName    string
	Editor          string
	Platform        string
	FilePath        string
	LineCount       int
	CursorPosition  int
	DurationSeconds int64
	StartedAt       time.Time
	EndedAt         time.Time
	CreatedAt       time.Time
}

// Project is a per-user dimension row, unique by (name, user).
type Project struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
}

// Language is a shared dimension row, unique by name.
type Language struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// User carries the public display fields joined into leaderboards and profiles.
type User struct {
	ID             string
	Username       string
	FullName       string
	Email          string
	Country        string
	Timezone       string
	ProfilePicture string
	CreatedAt      time.Time
}

// DisplayName falls back to the username when no full name is set.
func (u User) DisplayName() string {
	if strings.TrimSpace(u.FullName) != "" {
		return u.FullName
	}
	return u.Username
}

// ActivityInput is the already-typed heartbeat handed over by the boundary layer.
type ActivityInput struct {
	UserID          string
	ProjectName     string
	LanguageName    string
	Editor          string
	Platform        string
	FilePath        string
	LineCount       int
	CursorPosition  int
	DurationSeconds int64
	StartedAt       time.Time
	EndedAt         time.Time
}

// Validate checks the scalar preconditions of a heartbeat.
func (in ActivityInput) Validate() error {
	switch {
	case blank(in.UserID):
		return invalid("user_id", "is required")
	case blank(in.Editor):
		return invalid("editor", "is required")
	case blank(in.Platform):
		return invalid("platform", "is required")
	case blank(in.FilePath):
		return invalid("file_path", "is required")
	case in.StartedAt.IsZero():
		return invalid("started_at", "is required")
	case in.EndedAt.IsZero():
		return invalid("ended_at", "is required")
	case in.EndedAt.Before(in.StartedAt):
		return invalid("ended_at", "must not be before started_at")
	case in.DurationSeconds < 0:
		return invalid("duration_seconds", "must be >= 0")
	case in.LineCount < 0:
		return invalid("line_count", "must be >= 0")
	case in.CursorPosition < 0:
		return invalid("cursor_position", "must be >= 0")
	}
	return nil
}
