package domain

import (
	"sort"
	"time"
)

// DimensionSeconds is one (language or project, seconds) entry of a daily summary.
type DimensionSeconds struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Seconds int64  `json:"seconds"`
}

// DailySummary is the per-user-per-day rollup. Exactly one exists per (UserID, Day).
type DailySummary struct {
	UserID       string
	Day          time.Time
	TotalSeconds int64
	Languages    []DimensionSeconds
	Projects     []DimensionSeconds
	UpdatedAt    time.Time
}

// DayOf truncates t to midnight UTC, the bucket boundary for daily summaries.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Fold adds one contribution to the summary. Each dimension entry is matched by
// identity and incremented, or appended when absent.
func (s *DailySummary) Fold(seconds int64, languages, projects []DimensionSeconds) {
	s.TotalSeconds += seconds
	s.Languages = foldDimensions(s.Languages, languages)
	s.Projects = foldDimensions(s.Projects, projects)
}

// Clone returns a copy whose slices do not alias s.
func (s DailySummary) Clone() DailySummary {
	out := s
	out.Languages = append([]DimensionSeconds(nil), s.Languages...)
	out.Projects = append([]DimensionSeconds(nil), s.Projects...)
	return out
}

func foldDimensions(current, additions []DimensionSeconds) []DimensionSeconds {
	for _, add := range additions {
		idx := -1
		for i, existing := range current {
			if sameDimension(existing, add) {
				idx = i
				break
			}
		}
		if idx >= 0 {
			current[idx].Seconds += add.Seconds
			continue
		}
		current = append(current, add)
	}
	return current
}

func sameDimension(a, b DimensionSeconds) bool {
	if a.ID != "" && b.ID != "" {
		return a.ID == b.ID
	}
	return a.Name == b.Name
}

// sortBySeconds orders entries descending by seconds, then by name.
func sortBySeconds(entries []DimensionSeconds) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Seconds != entries[j].Seconds {
			return entries[i].Seconds > entries[j].Seconds
		}
		return entries[i].Name < entries[j].Name
	})
}
