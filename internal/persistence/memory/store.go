// Package memory provides an in-process Store for local development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Haseeb-Arshad/codingcam-backend/internal/domain"
)

type projectKey struct {
	userID string
	name   string
}

type summaryKey struct {
	userID string
	day    time.Time
}

type state struct {
	users      map[string]domain.User
	apiKeys    map[string]string
	projects   map[projectKey]domain.Project
	languages  map[string]domain.Language
	activities []domain.Activity
	sessions   map[string]domain.CodingSession
	summaries  map[summaryKey]domain.DailySummary
	events     []domain.Event
}

func newState() *state {
	return &state{
		users:     make(map[string]domain.User),
		apiKeys:   make(map[string]string),
		projects:  make(map[projectKey]domain.Project),
		languages: make(map[string]domain.Language),
		sessions:  make(map[string]domain.CodingSession),
		summaries: make(map[summaryKey]domain.DailySummary),
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.apiKeys {
		out.apiKeys[k] = v
	}
	for k, v := range s.projects {
		out.projects[k] = v
	}
	for k, v := range s.languages {
		out.languages[k] = v
	}
	out.activities = append([]domain.Activity(nil), s.activities...)
	for k, v := range s.sessions {
		out.sessions[k] = v.Clone()
	}
	for k, v := range s.summaries {
		out.summaries[k] = v.Clone()
	}
	out.events = append([]domain.Event(nil), s.events...)
	return out
}

// Store keeps all records in memory. Transactions are serialised and work on a copy
// of the state that replaces the original only on success.
type Store struct {
	mu    sync.RWMutex
	state *state
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// PutUser registers a user and, when apiKey is not empty, the key that resolves to it.
func (s *Store) PutUser(user domain.User, apiKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.state.users[user.ID] = user
	if apiKey != "" {
		s.state.apiKeys[apiKey] = user.ID
	}
}

// UserIDForAPIKey resolves an extension API key.
func (s *Store) UserIDForAPIKey(ctx context.Context, apiKey string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.state.apiKeys[apiKey]
	if !ok {
		return "", domain.ErrNotFound
	}
	return id, nil
}

// Events returns the outbox events committed so far.
func (s *Store) Events() []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Event(nil), s.state.events...)
}

// ProjectCount returns the number of project rows, for tests.
func (s *Store) ProjectCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.projects)
}

// SessionCount returns the number of stored sessions, for tests.
func (s *Store) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.sessions)
}

// WithinTx implements domain.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(ctx, &txn{state: working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

type txn struct {
	state *state
}

func (t *txn) ResolveProject(ctx context.Context, userID, name string) (domain.Project, error) {
	key := projectKey{userID: userID, name: name}
	if p, ok := t.state.projects[key]; ok {
		return p, nil
	}
	p := domain.Project{ID: uuid.NewString(), UserID: userID, Name: name, CreatedAt: time.Now().UTC()}
	t.state.projects[key] = p
	return p, nil
}

func (t *txn) ResolveLanguage(ctx context.Context, name string) (domain.Language, error) {
	if l, ok := t.state.languages[name]; ok {
		return l, nil
	}
	l := domain.Language{ID: uuid.NewString(), Name: name, CreatedAt: time.Now().UTC()}
	t.state.languages[name] = l
	return l, nil
}

func (t *txn) InsertActivity(ctx context.Context, activity domain.Activity) error {
	t.state.activities = append(t.state.activities, activity)
	return nil
}

func (t *txn) FindSession(ctx context.Context, sessionID string) (*domain.CodingSession, error) {
	session, ok := t.state.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	out := session.Clone()
	return &out, nil
}

func (t *txn) LockSession(ctx context.Context, sessionID, userID string) (*domain.CodingSession, error) {
	session, ok := t.state.sessions[sessionID]
	if !ok || session.UserID != userID {
		return nil, nil
	}
	out := session.Clone()
	return &out, nil
}

func (t *txn) InsertSession(ctx context.Context, session domain.CodingSession) error {
	if _, ok := t.state.sessions[session.SessionID]; ok {
		return domain.ErrConflict
	}
	t.state.sessions[session.SessionID] = session.Clone()
	return nil
}

func (t *txn) UpdateSession(ctx context.Context, session domain.CodingSession) error {
	if _, ok := t.state.sessions[session.SessionID]; !ok {
		return domain.ErrNotFound
	}
	t.state.sessions[session.SessionID] = session.Clone()
	return nil
}

func (t *txn) LockDailySummary(ctx context.Context, userID string, day time.Time) (domain.DailySummary, error) {
	key := summaryKey{userID: userID, day: domain.DayOf(day)}
	if summary, ok := t.state.summaries[key]; ok {
		return summary.Clone(), nil
	}
	return domain.DailySummary{UserID: userID, Day: key.day}, nil
}

func (t *txn) SaveDailySummary(ctx context.Context, summary domain.DailySummary) error {
	key := summaryKey{userID: summary.UserID, day: domain.DayOf(summary.Day)}
	t.state.summaries[key] = summary.Clone()
	return nil
}

func (t *txn) Enqueue(ctx context.Context, event domain.Event) error {
	t.state.events = append(t.state.events, event)
	return nil
}

// DailySummaries implements domain.Reader.
func (s *Store) DailySummaries(ctx context.Context, userID string, start, end time.Time) ([]domain.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.DailySummary, 0)
	for key, summary := range s.state.summaries {
		if key.userID != userID || key.day.Before(start) || key.day.After(end) {
			continue
		}
		out = append(out, summary.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

// UserTotals implements domain.Reader.
func (s *Store) UserTotals(ctx context.Context, start, end time.Time, limit int) ([]domain.UserTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sums := make(map[string]int64)
	for key, summary := range s.state.summaries {
		if key.day.Before(start) || key.day.After(end) {
			continue
		}
		sums[key.userID] += summary.TotalSeconds
	}

	out := make([]domain.UserTotal, 0, len(sums))
	for id, total := range sums {
		out = append(out, domain.UserTotal{UserID: id, TotalSeconds: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalSeconds != out[j].TotalSeconds {
			return out[i].TotalSeconds > out[j].TotalSeconds
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Users implements domain.Reader.
func (s *Store) Users(ctx context.Context, ids []string) (map[string]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.User, len(ids))
	for _, id := range ids {
		if user, ok := s.state.users[id]; ok {
			out[id] = user
		}
	}
	return out, nil
}

// FindUser implements domain.Reader.
func (s *Store) FindUser(ctx context.Context, userID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.state.users[userID]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

// ListActivities implements domain.Reader.
func (s *Store) ListActivities(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]domain.Activity, 0)
	for _, a := range s.state.activities {
		if a.UserID != userID {
			continue
		}
		if cursor != nil && !before(a, *cursor) {
			continue
		}
		matches = append(matches, a)
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].StartedAt.Equal(matches[j].StartedAt) {
			return matches[i].StartedAt.After(matches[j].StartedAt)
		}
		return matches[i].ID > matches[j].ID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	var next *domain.Cursor
	if len(matches) == limit {
		last := matches[len(matches)-1]
		next = &domain.Cursor{StartedAt: last.StartedAt, ID: last.ID}
	}
	return matches, next, nil
}

// before reports whether a sorts after the cursor position in newest-first order.
func before(a domain.Activity, c domain.Cursor) bool {
	if a.StartedAt.Equal(c.StartedAt) {
		return strings.Compare(a.ID, c.ID) < 0
	}
	return a.StartedAt.Before(c.StartedAt)
}

// ListSessions implements domain.Reader.
func (s *Store) ListSessions(ctx context.Context, userID string, filter domain.SessionFilter) ([]domain.CodingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]domain.CodingSession, 0)
	for _, session := range s.state.sessions {
		if session.UserID != userID {
			continue
		}
		if !filter.Start.IsZero() && session.StartTime.Before(filter.Start) {
			continue
		}
		if !filter.End.IsZero() && session.StartTime.After(filter.End) {
			continue
		}
		matches = append(matches, session.Clone())
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].StartTime.After(matches[j].StartTime) })

	if filter.Offset >= len(matches) {
		return []domain.CodingSession{}, nil
	}
	matches = matches[filter.Offset:]
	if filter.Limit > 0 && len(matches) > filter.Limit {
		matches = matches[:filter.Limit]
	}
	return matches, nil
}

// ToolUsage implements domain.Reader.
func (s *Store) ToolUsage(ctx context.Context, userID string, since time.Time) ([]domain.ToolUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type toolKey struct{ editor, platform string }
	sums := make(map[toolKey]int64)
	for _, session := range s.state.sessions {
		if session.UserID != userID || session.StartTime.Before(since) {
			continue
		}
		sums[toolKey{session.Editor, session.Platform}] += session.DurationSeconds
	}

	out := make([]domain.ToolUsage, 0, len(sums))
	for k, total := range sums {
		out = append(out, domain.ToolUsage{Editor: k.editor, Platform: k.platform, TotalSeconds: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalSeconds != out[j].TotalSeconds {
			return out[i].TotalSeconds > out[j].TotalSeconds
		}
		if out[i].Editor != out[j].Editor {
			return out[i].Editor < out[j].Editor
		}
		return out[i].Platform < out[j].Platform
	})
	return out, nil
}

// SessionTotals implements domain.Reader.
func (s *Store) SessionTotals(ctx context.Context, userID string, start, end time.Time) (domain.SessionTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var totals domain.SessionTotals
	for _, session := range s.state.sessions {
		if session.UserID != userID || session.StartTime.Before(start) || session.StartTime.After(end) {
			continue
		}
		totals.Sessions++
		totals.Keystrokes += session.Metrics.TotalKeystrokes
		totals.Seconds += session.DurationSeconds
	}
	return totals, nil
}
