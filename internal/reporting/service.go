// Package reporting builds the read models shown on profile pages, range reports and
// the public leaderboard on top of the aggregation engine.
package reporting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Haseeb-Arshad/codingcam-backend/internal/cache"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/domain"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/logger"
)

// ProfileWindow is how far back profile statistics reach.
const ProfileWindow = 30 * 24 * time.Hour

// Service composes engine queries into reports.
type Service struct {
	engine *domain.Engine
	reader domain.Reader
	cache  cache.Leaderboard
	log    *logger.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables leaderboard caching.
func WithCache(c cache.Leaderboard) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(log *logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log.With("component", "reporting")
		}
	}
}

// WithClock overrides the time source that anchors the profile window and streaks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a reporting Service.
func NewService(engine *domain.Engine, reader domain.Reader, opts ...Option) *Service {
	s := &Service{
		engine: engine,
		reader: reader,
		cache:  cache.NoopLeaderboard{},
		log:    logger.Nop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tool is the share of session time spent in one editor.
type Tool struct {
	Name         string
	Platform     string
	TotalSeconds int64
	Percentage   int
}

// Activity is the headline numbers over a window.
type Activity struct {
	TotalSeconds         int64
	AverageSecondsPerDay int64
	Keystrokes           int64
	Sessions             int64
	CurrentStreak        int
	Daily                []domain.DailySummary
}

// Profile is the signed-in user's overview of the last thirty days.
type Profile struct {
	User       domain.User
	Activity   Activity
	Languages  []domain.DimensionTotal
	Tools      []Tool
	LastActive *time.Time
}

// Report is the activity over a caller-chosen range.
type Report struct {
	Start     time.Time
	End       time.Time
	Activity  Activity
	Languages []domain.DimensionTotal
	Projects  []domain.DimensionTotal
}

// User returns the user's display record, or ErrNotFound.
func (s *Service) User(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.reader.FindUser(ctx, userID)
	if err != nil {
		return nil, readErr("find user", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	return user, nil
}

// Profile loads the user and fans out the window queries in parallel.
func (s *Service) Profile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.User(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	start := domain.DayOf(now.Add(-ProfileWindow))

	var (
		daily     []domain.DailySummary
		languages []domain.DimensionTotal
		tools     []domain.ToolUsage
		totals    domain.SessionTotals
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		daily, err = s.engine.DailyStats(gctx, userID, start, now)
		return err
	})
	g.Go(func() error {
		var err error
		languages, err = s.engine.LanguageStats(gctx, userID, start, now)
		return err
	})
	g.Go(func() error {
		var err error
		tools, err = s.reader.ToolUsage(gctx, userID, start)
		return readErr("tool usage", err)
	})
	g.Go(func() error {
		var err error
		totals, err = s.reader.SessionTotals(gctx, userID, start, now)
		return readErr("session totals", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	activity := summarize(daily, totals, start, now)
	activity.CurrentStreak = Streak(daily, now)

	return &Profile{
		User:       *user,
		Activity:   activity,
		Languages:  languages,
		Tools:      groupTools(tools),
		LastActive: lastActive(daily),
	}, nil
}

// Report summarises the user's activity between start and end inclusive.
func (s *Service) Report(ctx context.Context, userID string, start, end time.Time) (*Report, error) {
	var (
		daily     []domain.DailySummary
		languages []domain.DimensionTotal
		projects  []domain.DimensionTotal
		totals    domain.SessionTotals
	)
	// DailyStats validates the range before the fan-out starts.
	daily, err := s.engine.DailyStats(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		languages, err = s.engine.LanguageStats(gctx, userID, start, end)
		return err
	})
	g.Go(func() error {
		var err error
		projects, err = s.engine.ProjectStats(gctx, userID, start, end)
		return err
	})
	g.Go(func() error {
		var err error
		totals, err = s.reader.SessionTotals(gctx, userID, domain.DayOf(start), domain.DayOf(end).Add(24*time.Hour-time.Microsecond))
		return readErr("session totals", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	activity := summarize(daily, totals, start, end)
	activity.CurrentStreak = Streak(daily, s.now())
	return &Report{
		Start:     domain.DayOf(start),
		End:       domain.DayOf(end),
		Activity:  activity,
		Languages: languages,
		Projects:  projects,
	}, nil
}

// Leaderboard serves ranked users from the cache when possible. Cache failures are
// logged and fall through to the store.
func (s *Service) Leaderboard(ctx context.Context, start, end time.Time, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = domain.DefaultLeaderboardLimit
	}
	entries, hit, err := s.cache.Get(ctx, start, end, limit)
	if err != nil {
		s.log.Warn("leaderboard cache read failed", "error", err)
	} else if hit {
		return entries, nil
	}

	entries, err = s.engine.Leaderboard(ctx, start, end, limit)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, start, end, limit, entries); err != nil {
		s.log.Warn("leaderboard cache write failed", "error", err)
	}
	return entries, nil
}

// Streak counts consecutive days with recorded time, ending yesterday. Today never
// breaks a streak since it is still in progress.
func Streak(daily []domain.DailySummary, now time.Time) int {
	active := make(map[time.Time]bool, len(daily))
	for _, d := range daily {
		if d.TotalSeconds > 0 {
			active[domain.DayOf(d.Day)] = true
		}
	}
	streak := 0
	for day := domain.DayOf(now).AddDate(0, 0, -1); active[day]; day = day.AddDate(0, 0, -1) {
		streak++
	}
	return streak
}

func summarize(daily []domain.DailySummary, totals domain.SessionTotals, start, end time.Time) Activity {
	var total int64
	for _, d := range daily {
		total += d.TotalSeconds
	}
	days := int64(domain.DayOf(end).Sub(domain.DayOf(start))/(24*time.Hour)) + 1
	return Activity{
		TotalSeconds:         total,
		AverageSecondsPerDay: total / max(days, 1),
		Keystrokes:           totals.Keystrokes,
		Sessions:             totals.Sessions,
		Daily:                daily,
	}
}

// groupTools folds (editor, platform) rows into one row per editor. The platform shown
// is the one with the most time, which is the first row seen for that editor.
func groupTools(usage []domain.ToolUsage) []Tool {
	index := make(map[string]int)
	tools := make([]Tool, 0)
	var total int64
	for _, u := range usage {
		total += u.TotalSeconds
		if i, ok := index[u.Editor]; ok {
			tools[i].TotalSeconds += u.TotalSeconds
			continue
		}
		index[u.Editor] = len(tools)
		tools = append(tools, Tool{Name: u.Editor, Platform: u.Platform, TotalSeconds: u.TotalSeconds})
	}
	sort.SliceStable(tools, func(i, j int) bool {
		if tools[i].TotalSeconds != tools[j].TotalSeconds {
			return tools[i].TotalSeconds > tools[j].TotalSeconds
		}
		return tools[i].Name < tools[j].Name
	})
	for i := range tools {
		tools[i].Percentage = domain.Percent(tools[i].TotalSeconds, total)
	}
	return tools
}

func lastActive(daily []domain.DailySummary) *time.Time {
	var last time.Time
	for _, d := range daily {
		if d.TotalSeconds > 0 && d.Day.After(last) {
			last = d.Day
		}
	}
	if last.IsZero() {
		return nil
	}
	return &last
}

func readErr(op string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	return &domain.PersistenceError{Op: op, Err: err}
}
