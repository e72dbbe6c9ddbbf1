package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDayOfTruncatesToUTCMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	local := time.Date(2025, time.May, 2, 3, 30, 0, 0, loc)

	require.Equal(t, time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC), DayOf(local))
}

func TestFoldMatchesByIdentity(t *testing.T) {
	var s DailySummary
	s.Fold(100, []DimensionSeconds{{ID: "l-go", Name: "Go", Seconds: 100}}, []DimensionSeconds{{ID: "p-1", Name: "api", Seconds: 100}})
	s.Fold(50, []DimensionSeconds{{ID: "l-go", Name: "Go", Seconds: 50}}, nil)
	s.Fold(30, []DimensionSeconds{{ID: "l-rs", Name: "Rust", Seconds: 30}}, []DimensionSeconds{{ID: "p-2", Name: "api", Seconds: 30}})

	require.Equal(t, int64(180), s.TotalSeconds)
	require.Equal(t, []DimensionSeconds{
		{ID: "l-go", Name: "Go", Seconds: 150},
		{ID: "l-rs", Name: "Rust", Seconds: 30},
	}, s.Languages)
	// Same name under different ids stays two entries.
	require.Len(t, s.Projects, 2)
}

func TestFoldFallsBackToNameWithoutID(t *testing.T) {
	s := DailySummary{Languages: []DimensionSeconds{{Name: "Go", Seconds: 10}}}
	s.Fold(5, []DimensionSeconds{{ID: "l-go", Name: "Go", Seconds: 5}}, nil)

	require.Equal(t, []DimensionSeconds{{Name: "Go", Seconds: 15}}, s.Languages)
}

func TestCloneDoesNotAlias(t *testing.T) {
	s := DailySummary{Languages: []DimensionSeconds{{Name: "Go", Seconds: 10}}}
	c := s.Clone()
	c.Languages[0].Seconds = 99

	require.Equal(t, int64(10), s.Languages[0].Seconds)
}

func TestPercentRounds(t *testing.T) {
	require.Equal(t, 33, Percent(1, 3))
	require.Equal(t, 67, Percent(2, 3))
	require.Equal(t, 0, Percent(5, 0))
}
