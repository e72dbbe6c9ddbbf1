package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Haseeb-Arshad/codingcam-backend/internal/domain"
)

// DailySummaries implements domain.Reader.
func (s *Store) DailySummaries(ctx context.Context, userID string, start, end time.Time) ([]domain.DailySummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT day, total_seconds, languages, projects, updated_at
           FROM daily_summaries
          WHERE user_id=$1 AND day BETWEEN $2 AND $3
          ORDER BY day`,
		userID, domain.DayOf(start), domain.DayOf(end),
	)
	if err != nil {
		return nil, fmt.Errorf("query daily summaries: %w", err)
	}
	defer rows.Close()

	out := make([]domain.DailySummary, 0)
	for rows.Next() {
		summary := domain.DailySummary{UserID: userID}
		var languages, projects []byte
		if err := rows.Scan(&summary.Day, &summary.TotalSeconds, &languages, &projects, &summary.UpdatedAt); err != nil {
			return nil, err
		}
		summary.Day = domain.DayOf(summary.Day)
		if err := decodeDimensions(languages, projects, &summary); err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

// UserTotals implements domain.Reader.
func (s *Store) UserTotals(ctx context.Context, start, end time.Time, limit int) ([]domain.UserTotal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, SUM(total_seconds)::BIGINT AS total
           FROM daily_summaries
          WHERE day BETWEEN $1 AND $2
          GROUP BY user_id
          ORDER BY total DESC
          LIMIT $3`,
		domain.DayOf(start), domain.DayOf(end), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query user totals: %w", err)
	}
	defer rows.Close()

	out := make([]domain.UserTotal, 0, limit)
	for rows.Next() {
		var t domain.UserTotal
		if err := rows.Scan(&t.UserID, &t.TotalSeconds); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const userColumns = `user_id, username, full_name, email, country, timezone, profile_picture, created_at`

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.Email, &u.Country, &u.Timezone, &u.ProfilePicture, &u.CreatedAt)
	return u, err
}

// Users implements domain.Reader.
func (s *Store) Users(ctx context.Context, ids []string) (map[string]domain.User, error) {
	out := make(map[string]domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

// FindUser implements domain.Reader.
func (s *Store) FindUser(ctx context.Context, userID string) (*domain.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id=$1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &u, nil
}

// ListActivities implements domain.Reader with keyset pagination on (started_at, id).
func (s *Store) ListActivities(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	args := []interface{}{userID, limit}
	query := `SELECT a.activity_id, a.user_id, COALESCE(a.project_id, ''), COALESCE(p.name, ''), COALESCE(a.language_id, ''), COALESCE(l.name, ''),
                     a.editor, a.platform, a.file_path, a.line_count, a.cursor_position, a.duration_seconds, a.started_at, a.ended_at, a.created_at
                FROM activities a
                LEFT JOIN projects p ON p.project_id = a.project_id
                LEFT JOIN languages l ON l.language_id = a.language_id
               WHERE a.user_id=$1`

	if cursor != nil {
		query += ` AND (a.started_at, a.activity_id) < ($3, $4)`
		args = append(args, cursor.StartedAt, cursor.ID)
	}
	query += ` ORDER BY a.started_at DESC, a.activity_id DESC LIMIT $2`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	results := make([]domain.Activity, 0, limit)
	for rows.Next() {
		var a domain.Activity
		if err := rows.Scan(&a.ID, &a.UserID, &a.ProjectID, &a.ProjectName, &a.LanguageID, &a.LanguageName,
			&a.Editor, &a.Platform, &a.FilePath, &a.LineCount, &a.CursorPosition, &a.DurationSeconds,
			&a.StartedAt, &a.EndedAt, &a.CreatedAt); err != nil {
			return nil, nil, err
		}
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{StartedAt: last.StartedAt, ID: last.ID}
	}
	return results, next, nil
}

// ListSessions implements domain.Reader.
func (s *Store) ListSessions(ctx context.Context, userID string, filter domain.SessionFilter) ([]domain.CodingSession, error) {
	args := []interface{}{userID}
	query := `SELECT ` + sessionColumns + ` FROM coding_sessions WHERE user_id=$1`
	if !filter.Start.IsZero() {
		args = append(args, filter.Start)
		query += fmt.Sprintf(` AND start_time >= $%d`, len(args))
	}
	if !filter.End.IsZero() {
		args = append(args, filter.End)
		query += fmt.Sprintf(` AND start_time <= $%d`, len(args))
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(` ORDER BY start_time DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CodingSession, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

// ToolUsage implements domain.Reader.
func (s *Store) ToolUsage(ctx context.Context, userID string, since time.Time) ([]domain.ToolUsage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT editor, platform, SUM(duration_seconds)::BIGINT AS total
           FROM coding_sessions
          WHERE user_id=$1 AND start_time >= $2
          GROUP BY editor, platform
          ORDER BY total DESC, editor, platform`,
		userID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("query tool usage: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ToolUsage, 0)
	for rows.Next() {
		var u domain.ToolUsage
		if err := rows.Scan(&u.Editor, &u.Platform, &u.TotalSeconds); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SessionTotals implements domain.Reader.
func (s *Store) SessionTotals(ctx context.Context, userID string, start, end time.Time) (domain.SessionTotals, error) {
	var totals domain.SessionTotals
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(total_keystrokes), 0)::BIGINT, COALESCE(SUM(duration_seconds), 0)::BIGINT
           FROM coding_sessions
          WHERE user_id=$1 AND start_time BETWEEN $2 AND $3`,
		userID, start, end,
	).Scan(&totals.Sessions, &totals.Keystrokes, &totals.Seconds)
	if err != nil {
		return domain.SessionTotals{}, fmt.Errorf("query session totals: %w", err)
	}
	return totals, nil
}
