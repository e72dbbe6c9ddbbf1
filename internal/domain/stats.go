package domain

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultLeaderboardLimit applies when the caller does not pass a positive limit.
	DefaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// DimensionTotal is the summed time of one language or project over a range.
type DimensionTotal struct {
	Name       string
	Seconds    int64
	Percentage int
	LastActive time.Time
}

// LeaderboardEntry is one ranked user with public display fields.
type LeaderboardEntry struct {
	Rank           int    `json:"rank"`
	UserID         string `json:"user_id"`
	Username       string `json:"username"`
	FullName       string `json:"full_name,omitempty"`
	Country        string `json:"country,omitempty"`
	ProfilePicture string `json:"profile_picture,omitempty"`
	TotalSeconds   int64  `json:"total_seconds"`
}

// DailyStats returns the user's summaries between start and end, oldest first.
func (e *Engine) DailyStats(ctx context.Context, userID string, start, end time.Time) ([]DailySummary, error) {
	if err := validateRange(userID, start, end); err != nil {
		return nil, err
	}
	summaries, err := e.store.DailySummaries(ctx, userID, DayOf(start), DayOf(end))
	if err != nil {
		return nil, classify("daily stats", err)
	}
	return summaries, nil
}

// LanguageStats sums language seconds over the range, largest first.
func (e *Engine) LanguageStats(ctx context.Context, userID string, start, end time.Time) ([]DimensionTotal, error) {
	summaries, err := e.DailyStats(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	return groupDimensions(summaries, func(s DailySummary) []DimensionSeconds { return s.Languages }), nil
}

// ProjectStats sums project seconds over the range, largest first.
func (e *Engine) ProjectStats(ctx context.Context, userID string, start, end time.Time) ([]DimensionTotal, error) {
	summaries, err := e.DailyStats(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	return groupDimensions(summaries, func(s DailySummary) []DimensionSeconds { return s.Projects }), nil
}

// Leaderboard ranks all users by their summed daily totals in the range. Users with
// equal totals keep the store's ordering, which is stable but not specified.
func (e *Engine) Leaderboard(ctx context.Context, start, end time.Time, limit int) ([]LeaderboardEntry, error) {
	if end.Before(start) {
		return nil, invalid("end_date", "must not be before start_date")
	}
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	limit = min(limit, maxLeaderboardLimit)

	totals, err := e.store.UserTotals(ctx, DayOf(start), DayOf(end), limit)
	if err != nil {
		return nil, classify("leaderboard", err)
	}
	ids := make([]string, 0, len(totals))
	for _, t := range totals {
		ids = append(ids, t.UserID)
	}
	users, err := e.store.Users(ctx, ids)
	if err != nil {
		return nil, classify("leaderboard", err)
	}

	entries := make([]LeaderboardEntry, 0, len(totals))
	for _, t := range totals {
		user, ok := users[t.UserID]
		if !ok {
			continue
		}
		entries = append(entries, LeaderboardEntry{
			Rank:           len(entries) + 1,
			UserID:         t.UserID,
			Username:       user.Username,
			FullName:       user.FullName,
			Country:        user.Country,
			ProfilePicture: user.ProfilePicture,
			TotalSeconds:   t.TotalSeconds,
		})
	}
	return entries, nil
}

// ListActivities pages through a user's heartbeats, newest first.
func (e *Engine) ListActivities(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error) {
	if blank(userID) {
		return nil, nil, invalid("user_id", "is required")
	}
	if limit <= 0 {
		limit = 100
	}
	items, next, err := e.store.ListActivities(ctx, userID, cursor, limit)
	if err != nil {
		return nil, nil, classify("list activities", err)
	}
	return items, next, nil
}

// ListSessions returns a user's sessions, newest first.
func (e *Engine) ListSessions(ctx context.Context, userID string, filter SessionFilter) ([]CodingSession, error) {
	if blank(userID) {
		return nil, invalid("user_id", "is required")
	}
	if !filter.Start.IsZero() && !filter.End.IsZero() && filter.End.Before(filter.Start) {
		return nil, invalid("end_date", "must not be before start_date")
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	filter.Offset = max(filter.Offset, 0)
	sessions, err := e.store.ListSessions(ctx, userID, filter)
	if err != nil {
		return nil, classify("list sessions", err)
	}
	return sessions, nil
}

func validateRange(userID string, start, end time.Time) error {
	switch {
	case blank(userID):
		return invalid("user_id", "is required")
	case start.IsZero():
		return invalid("start_date", "is required")
	case end.IsZero():
		return invalid("end_date", "is required")
	case end.Before(start):
		return invalid("end_date", "must not be before start_date")
	}
	return nil
}

func groupDimensions(summaries []DailySummary, pick func(DailySummary) []DimensionSeconds) []DimensionTotal {
	index := make(map[string]int)
	grouped := make([]DimensionSeconds, 0)
	lastActive := make(map[string]time.Time)
	var total int64

	for _, s := range summaries {
		for _, d := range pick(s) {
			total += d.Seconds
			if i, ok := index[d.Name]; ok {
				grouped[i].Seconds += d.Seconds
			} else {
				index[d.Name] = len(grouped)
				grouped = append(grouped, DimensionSeconds{Name: d.Name, Seconds: d.Seconds})
			}
			if s.Day.After(lastActive[d.Name]) {
				lastActive[d.Name] = s.Day
			}
		}
	}
	sortBySeconds(grouped)

	out := make([]DimensionTotal, 0, len(grouped))
	for _, g := range grouped {
		out = append(out, DimensionTotal{
			Name:       g.Name,
			Seconds:    g.Seconds,
			Percentage: Percent(g.Seconds, total),
			LastActive: lastActive[g.Name],
		})
	}
	return out
}

// Percent returns part as a rounded percentage of whole, or 0 when whole is zero.
func Percent(part, whole int64) int {
	if whole <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(whole) * 100))
}
