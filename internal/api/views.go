package api

import (
	"time"

	"github.com/Haseeb-Arshad/codingcam-backend/internal/domain"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/reporting"
)

// ActivityView is a stored heartbeat.
type ActivityView struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id,omitempty"`
	ProjectName     string    `json:"project_name,omitempty"`
	LanguageID      string    `json:"language_id,omitempty"`
	LanguageName    string    `json:"language_name,omitempty"`
	Editor          string    `json:"editor"`
	Platform        string    `json:"platform"`
	FilePath        string    `json:"file_path"`
	LineCount       int       `json:"line_count"`
	CursorPosition  int       `json:"cursor_position"`
	DurationSeconds int64     `json:"duration_seconds"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// ListActivitiesResponse packages one page of activities.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// SessionMetricsView holds the derived session metrics.
type SessionMetricsView struct {
	TotalKeystrokes            int64  `json:"total_keystrokes"`
	AverageKeystrokesPerMinute int64  `json:"average_keystrokes_per_minute"`
	MaxKeystrokesPerMinute     int64  `json:"max_keystrokes_per_minute"`
	MostUsedLanguage           string `json:"most_used_language,omitempty"`
	MostEditedFile             string `json:"most_edited_file,omitempty"`
}

// SessionView is a stored coding session.
type SessionView struct {
	ID              string                         `json:"id"`
	SessionID       string                         `json:"session_id"`
	StartTime       time.Time                      `json:"start_time"`
	EndTime         time.Time                      `json:"end_time"`
	DurationSeconds int64                          `json:"duration_seconds"`
	FilesCount      int                            `json:"files_count"`
	Languages       map[string]int64               `json:"languages"`
	Files           map[string]domain.FileActivity `json:"files"`
	Platform        string                         `json:"platform"`
	Editor          string                         `json:"editor"`
	IsOfflineSync   bool                           `json:"is_offline_sync"`
	Metrics         SessionMetricsView             `json:"metrics"`
	CreatedAt       time.Time                      `json:"created_at"`
	UpdatedAt       time.Time                      `json:"updated_at"`
}

// ListSessionsResponse packages session listings.
type ListSessionsResponse struct {
	Items []SessionView `json:"items"`
}

// SessionAckResponse acknowledges a periodic update.
type SessionAckResponse struct {
	SessionID string `json:"session_id"`
	Created   bool   `json:"created"`
}

// StatusUser identifies the caller in the status response.
type StatusUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// StatusResponse confirms the extension's credentials.
type StatusResponse struct {
	Status  string     `json:"status"`
	Message string     `json:"message"`
	User    StatusUser `json:"user"`
}

// DailyView is one day of a user's summary.
type DailyView struct {
	Date         string                    `json:"date"`
	TotalSeconds int64                     `json:"total_seconds"`
	Languages    []domain.DimensionSeconds `json:"languages"`
	Projects     []domain.DimensionSeconds `json:"projects"`
}

// DailyStatsResponse lists daily summaries oldest first.
type DailyStatsResponse struct {
	Items []DailyView `json:"items"`
}

// DimensionView is the summed time of one language or project.
type DimensionView struct {
	Name         string    `json:"name"`
	TotalSeconds int64     `json:"total_seconds"`
	Percentage   int       `json:"percentage"`
	LastActive   time.Time `json:"last_active"`
}

// DimensionStatsResponse lists dimension totals largest first.
type DimensionStatsResponse struct {
	Items []DimensionView `json:"items"`
}

// LeaderboardResponse is one ranked page.
type LeaderboardResponse struct {
	StartDate string                    `json:"start_date"`
	EndDate   string                    `json:"end_date"`
	Items     []domain.LeaderboardEntry `json:"items"`
}

// ActivitySummaryView carries the headline numbers of a profile or report.
type ActivitySummaryView struct {
	TotalCodingSeconds   int64       `json:"total_coding_seconds"`
	AverageSecondsPerDay int64       `json:"average_seconds_per_day"`
	KeystrokeCount       int64       `json:"keystroke_count"`
	SessionCount         int64       `json:"session_count"`
	CurrentStreak        int         `json:"current_streak"`
	DailyStats           []DailyView `json:"daily_stats"`
}

// ProfileUserView is the public part of the user record.
type ProfileUserView struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	FullName       string    `json:"full_name"`
	Email          string    `json:"email,omitempty"`
	ProfilePicture string    `json:"profile_picture,omitempty"`
	Country        string    `json:"country,omitempty"`
	Timezone       string    `json:"timezone,omitempty"`
	JoinDate       time.Time `json:"join_date"`
}

// ToolView is the share of time spent in one editor.
type ToolView struct {
	Name         string `json:"name"`
	Platform     string `json:"platform"`
	TotalSeconds int64  `json:"total_seconds"`
	Percentage   int    `json:"percentage"`
}

// ProfileResponse is the signed-in user's overview.
type ProfileResponse struct {
	User       ProfileUserView     `json:"user"`
	Activity   ActivitySummaryView `json:"activity"`
	Languages  []DimensionView     `json:"languages"`
	Tools      []ToolView          `json:"tools"`
	LastActive *time.Time          `json:"last_active"`
}

// ReportResponse covers a caller-chosen range.
type ReportResponse struct {
	StartDate string              `json:"start_date"`
	EndDate   string              `json:"end_date"`
	Activity  ActivitySummaryView `json:"activity"`
	Languages []DimensionView     `json:"languages"`
	Projects  []DimensionView     `json:"projects"`
}

func toActivityView(a domain.Activity) ActivityView {
	return ActivityView{
		ID:              a.ID,
		ProjectID:       a.ProjectID,
		ProjectName:     a.ProjectName,
		LanguageID:      a.LanguageID,
		LanguageName:    a.LanguageName,
		Editor:          a.Editor,
		Platform:        a.Platform,
		FilePath:        a.FilePath,
		LineCount:       a.LineCount,
		CursorPosition:  a.CursorPosition,
		DurationSeconds: a.DurationSeconds,
		StartedAt:       a.StartedAt,
		EndedAt:         a.EndedAt,
		CreatedAt:       a.CreatedAt,
	}
}

func toSessionView(s domain.CodingSession) SessionView {
	return SessionView{
		ID:              s.ID,
		SessionID:       s.SessionID,
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		DurationSeconds: s.DurationSeconds,
		FilesCount:      s.FilesCount,
		Languages:       s.Languages,
		Files:           s.Files,
		Platform:        s.Platform,
		Editor:          s.Editor,
		IsOfflineSync:   s.IsOfflineSync,
		Metrics: SessionMetricsView{
			TotalKeystrokes:            s.Metrics.TotalKeystrokes,
			AverageKeystrokesPerMinute: s.Metrics.AverageKeystrokesPerMinute,
			MaxKeystrokesPerMinute:     s.Metrics.MaxKeystrokesPerMinute,
			MostUsedLanguage:           s.Metrics.MostUsedLanguage,
			MostEditedFile:             s.Metrics.MostEditedFile,
		},
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func toDailyViews(summaries []domain.DailySummary) []DailyView {
	out := make([]DailyView, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, DailyView{
			Date:         s.Day.Format(dateLayout),
			TotalSeconds: s.TotalSeconds,
			Languages:    orEmpty(s.Languages),
			Projects:     orEmpty(s.Projects),
		})
	}
	return out
}

func toDimensionViews(totals []domain.DimensionTotal) []DimensionView {
	out := make([]DimensionView, 0, len(totals))
	for _, t := range totals {
		out = append(out, DimensionView{
			Name:         t.Name,
			TotalSeconds: t.Seconds,
			Percentage:   t.Percentage,
			LastActive:   t.LastActive,
		})
	}
	return out
}

func toActivitySummaryView(a reporting.Activity) ActivitySummaryView {
	return ActivitySummaryView{
		TotalCodingSeconds:   a.TotalSeconds,
		AverageSecondsPerDay: a.AverageSecondsPerDay,
		KeystrokeCount:       a.Keystrokes,
		SessionCount:         a.Sessions,
		CurrentStreak:        a.CurrentStreak,
		DailyStats:           toDailyViews(a.Daily),
	}
}

func toProfileView(p reporting.Profile) ProfileResponse {
	tools := make([]ToolView, 0, len(p.Tools))
	for _, t := range p.Tools {
		tools = append(tools, ToolView(t))
	}
	return ProfileResponse{
		User: ProfileUserView{
			ID:             p.User.ID,
			Username:       p.User.Username,
			FullName:       p.User.DisplayName(),
			Email:          p.User.Email,
			ProfilePicture: p.User.ProfilePicture,
			Country:        p.User.Country,
			Timezone:       p.User.Timezone,
			JoinDate:       p.User.CreatedAt,
		},
		Activity:   toActivitySummaryView(p.Activity),
		Languages:  toDimensionViews(p.Languages),
		Tools:      tools,
		LastActive: p.LastActive,
	}
}

func toReportView(r reporting.Report) ReportResponse {
	return ReportResponse{
		StartDate: r.Start.Format(dateLayout),
		EndDate:   r.End.Format(dateLayout),
		Activity:  toActivitySummaryView(r.Activity),
		Languages: toDimensionViews(r.Languages),
		Projects:  toDimensionViews(r.Projects),
	}
}

func orEmpty(d []domain.DimensionSeconds) []domain.DimensionSeconds {
	if d == nil {
		return []domain.DimensionSeconds{}
	}
	return d
}
