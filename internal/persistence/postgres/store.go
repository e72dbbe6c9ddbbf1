// Package postgres implements the engine store on Postgres with pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Haseeb-Arshad/codingcam-backend/internal/domain"
)

const uniqueViolation = "23505"

// Store provides Postgres-backed persistence for activities, sessions, summaries and
// outbox events.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithinTx runs fn inside a READ COMMITTED transaction. Summary and session rows are
// locked explicitly, so a stronger isolation level is not needed.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(ctx, &txn{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type txn struct {
	tx pgx.Tx
}

func (t *txn) ResolveProject(ctx context.Context, userID, name string) (domain.Project, error) {
	p := domain.Project{UserID: userID, Name: name}
	err := t.tx.QueryRow(ctx,
		`INSERT INTO projects (project_id, user_id, name) VALUES ($1,$2,$3)
         ON CONFLICT (user_id, name) DO NOTHING
         RETURNING project_id, created_at`,
		uuid.NewString(), userID, name,
	).Scan(&p.ID, &p.CreatedAt)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}

	// Another writer created it; the conflicting row is committed and visible now.
	err = t.tx.QueryRow(ctx,
		`SELECT project_id, created_at FROM projects WHERE user_id=$1 AND name=$2`,
		userID, name,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return domain.Project{}, fmt.Errorf("select project: %w", err)
	}
	return p, nil
}

func (t *txn) ResolveLanguage(ctx context.Context, name string) (domain.Language, error) {
	l := domain.Language{Name: name}
	err := t.tx.QueryRow(ctx,
		`INSERT INTO languages (language_id, name) VALUES ($1,$2)
         ON CONFLICT (name) DO NOTHING
         RETURNING language_id, created_at`,
		uuid.NewString(), name,
	).Scan(&l.ID, &l.CreatedAt)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Language{}, fmt.Errorf("insert language: %w", err)
	}

	err = t.tx.QueryRow(ctx, `SELECT language_id, created_at FROM languages WHERE name=$1`, name).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return domain.Language{}, fmt.Errorf("select language: %w", err)
	}
	return l, nil
}

func (t *txn) InsertActivity(ctx context.Context, a domain.Activity) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO activities (activity_id, user_id, project_id, language_id, editor, platform, file_path, line_count, cursor_position, duration_seconds, started_at, ended_at, created_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		a.ID, a.UserID, nullIfEmpty(a.ProjectID), nullIfEmpty(a.LanguageID), a.Editor, a.Platform, a.FilePath,
		a.LineCount, a.CursorPosition, a.DurationSeconds, a.StartedAt, a.EndedAt, a.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

const sessionColumns = `id, session_id, user_id, start_time, end_time, duration_seconds, files_count, languages, files,
        platform, editor, is_offline_sync, total_keystrokes, avg_kpm, max_kpm, most_used_language, most_edited_file, created_at, updated_at`

func (t *txn) FindSession(ctx context.Context, sessionID string) (*domain.CodingSession, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM coding_sessions WHERE session_id=$1`, sessionID)
	return scanOptionalSession(row)
}

func (t *txn) LockSession(ctx context.Context, sessionID, userID string) (*domain.CodingSession, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM coding_sessions WHERE session_id=$1 AND user_id=$2 FOR UPDATE`, sessionID, userID)
	return scanOptionalSession(row)
}

func (t *txn) InsertSession(ctx context.Context, s domain.CodingSession) error {
	languages, files, err := encodeSessionMaps(s)
	if err != nil {
		return err
	}

	var id string
	err = t.tx.QueryRow(ctx,
		`INSERT INTO coding_sessions (`+sessionColumns+`)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
         ON CONFLICT (session_id) DO NOTHING
         RETURNING id`,
		s.ID, s.SessionID, s.UserID, s.StartTime, s.EndTime, s.DurationSeconds, s.FilesCount, languages, files,
		s.Platform, s.Editor, s.IsOfflineSync, s.Metrics.TotalKeystrokes, s.Metrics.AverageKeystrokesPerMinute,
		s.Metrics.MaxKeystrokesPerMinute, s.Metrics.MostUsedLanguage, s.Metrics.MostEditedFile, s.CreatedAt, s.UpdatedAt,
	).Scan(&id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return domain.ErrConflict
	case isUniqueViolation(err):
		return domain.ErrConflict
	case err != nil:
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (t *txn) UpdateSession(ctx context.Context, s domain.CodingSession) error {
	languages, files, err := encodeSessionMaps(s)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE coding_sessions
            SET end_time=$2, duration_seconds=$3, files_count=$4, languages=$5, files=$6,
                total_keystrokes=$7, avg_kpm=$8, max_kpm=$9, most_used_language=$10, most_edited_file=$11, updated_at=$12
          WHERE session_id=$1`,
		s.SessionID, s.EndTime, s.DurationSeconds, s.FilesCount, languages, files,
		s.Metrics.TotalKeystrokes, s.Metrics.AverageKeystrokesPerMinute, s.Metrics.MaxKeystrokesPerMinute,
		s.Metrics.MostUsedLanguage, s.Metrics.MostEditedFile, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *txn) LockDailySummary(ctx context.Context, userID string, day time.Time) (domain.DailySummary, error) {
	day = domain.DayOf(day)
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO daily_summaries (user_id, day) VALUES ($1,$2) ON CONFLICT (user_id, day) DO NOTHING`,
		userID, day,
	); err != nil {
		return domain.DailySummary{}, fmt.Errorf("seed daily summary: %w", err)
	}

	summary := domain.DailySummary{UserID: userID, Day: day}
	var languages, projects []byte
	err := t.tx.QueryRow(ctx,
		`SELECT total_seconds, languages, projects, updated_at FROM daily_summaries WHERE user_id=$1 AND day=$2 FOR UPDATE`,
		userID, day,
	).Scan(&summary.TotalSeconds, &languages, &projects, &summary.UpdatedAt)
	if err != nil {
		return domain.DailySummary{}, fmt.Errorf("lock daily summary: %w", err)
	}
	if err := decodeDimensions(languages, projects, &summary); err != nil {
		return domain.DailySummary{}, err
	}
	return summary, nil
}

func (t *txn) SaveDailySummary(ctx context.Context, summary domain.DailySummary) error {
	languages, err := json.Marshal(orEmpty(summary.Languages))
	if err != nil {
		return err
	}
	projects, err := json.Marshal(orEmpty(summary.Projects))
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx,
		`UPDATE daily_summaries SET total_seconds=$3, languages=$4, projects=$5, updated_at=$6 WHERE user_id=$1 AND day=$2`,
		summary.UserID, domain.DayOf(summary.Day), summary.TotalSeconds, languages, projects, summary.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save daily summary: %w", err)
	}
	return nil
}

func (t *txn) Enqueue(ctx context.Context, event domain.Event) error {
	return insertOutbox(ctx, t.tx, event)
}

// UserIDForAPIKey resolves an extension API key.
func (s *Store) UserIDForAPIKey(ctx context.Context, apiKey string) (string, error) {
	var userID string
	err := s.pool.QueryRow(ctx, `SELECT user_id FROM users WHERE api_key=$1`, apiKey).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup api key: %w", err)
	}
	return userID, nil
}

// Ping checks that the pool can reach the database.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.CodingSession, error) {
	var (
		s                domain.CodingSession
		languages, files []byte
	)
	err := row.Scan(&s.ID, &s.SessionID, &s.UserID, &s.StartTime, &s.EndTime, &s.DurationSeconds, &s.FilesCount,
		&languages, &files, &s.Platform, &s.Editor, &s.IsOfflineSync, &s.Metrics.TotalKeystrokes,
		&s.Metrics.AverageKeystrokesPerMinute, &s.Metrics.MaxKeystrokesPerMinute, &s.Metrics.MostUsedLanguage,
		&s.Metrics.MostEditedFile, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return domain.CodingSession{}, err
	}
	s.Languages = make(map[string]int64)
	s.Files = make(map[string]domain.FileActivity)
	if err := json.Unmarshal(languages, &s.Languages); err != nil {
		return domain.CodingSession{}, fmt.Errorf("decode session languages: %w", err)
	}
	if err := json.Unmarshal(files, &s.Files); err != nil {
		return domain.CodingSession{}, fmt.Errorf("decode session files: %w", err)
	}
	return s, nil
}

func scanOptionalSession(row rowScanner) (*domain.CodingSession, error) {
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	return &s, nil
}

func encodeSessionMaps(s domain.CodingSession) ([]byte, []byte, error) {
	languages := s.Languages
	if languages == nil {
		languages = map[string]int64{}
	}
	files := s.Files
	if files == nil {
		files = map[string]domain.FileActivity{}
	}
	rawLanguages, err := json.Marshal(languages)
	if err != nil {
		return nil, nil, err
	}
	rawFiles, err := json.Marshal(files)
	if err != nil {
		return nil, nil, err
	}
	return rawLanguages, rawFiles, nil
}

func decodeDimensions(languages, projects []byte, summary *domain.DailySummary) error {
	if err := json.Unmarshal(languages, &summary.Languages); err != nil {
		return fmt.Errorf("decode summary languages: %w", err)
	}
	if err := json.Unmarshal(projects, &summary.Projects); err != nil {
		return fmt.Errorf("decode summary projects: %w", err)
	}
	return nil
}

func orEmpty(entries []domain.DimensionSeconds) []domain.DimensionSeconds {
	if entries == nil {
		return []domain.DimensionSeconds{}
	}
	return entries
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
