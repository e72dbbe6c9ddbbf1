package domain

import (
	"context"
	"time"
)

// Event is an outbox record written in the same transaction as the change it describes.
type Event struct {
	ID          string
	Type        string
	AggregateID string
	UserID      string
	OccurredAt  time.Time
	Payload     any
}

// Tx exposes the store operations available inside one atomic transaction.
type Tx interface {
	// ResolveProject returns the project for (userID, name), creating it if needed.
	// Concurrent creators of the same name observe a single row.
	ResolveProject(ctx context.Context, userID, name string) (Project, error)
	// ResolveLanguage returns the language named name, creating it if needed.
	ResolveLanguage(ctx context.Context, name string) (Language, error)
	InsertActivity(ctx context.Context, activity Activity) error

	// FindSession returns the session with the given client id, or nil.
	FindSession(ctx context.Context, sessionID string) (*CodingSession, error)
	// LockSession returns the session owned by userID and holds it until commit, or nil.
	LockSession(ctx context.Context, sessionID, userID string) (*CodingSession, error)
	// InsertSession stores a new session. It returns ErrConflict when the session id is taken.
	InsertSession(ctx context.Context, session CodingSession) error
	UpdateSession(ctx context.Context, session CodingSession) error

	// LockDailySummary returns the (userID, day) summary, seeding an empty one if absent,
	// and holds it until commit so concurrent read-modify-writes serialise.
	LockDailySummary(ctx context.Context, userID string, day time.Time) (DailySummary, error)
	SaveDailySummary(ctx context.Context, summary DailySummary) error

	Enqueue(ctx context.Context, event Event) error
}

// Cursor marks the position of the last activity returned by a page.
type Cursor struct {
	StartedAt time.Time
	ID        string
}

// SessionFilter narrows session listings. Zero times are open bounds.
type SessionFilter struct {
	Start  time.Time
	End    time.Time
	Limit  int
	Offset int
}

// UserTotal is one user's summed seconds over a range.
type UserTotal struct {
	UserID       string
	TotalSeconds int64
}

// ToolUsage is the session time for one (editor, platform) pair.
type ToolUsage struct {
	Editor       string
	Platform     string
	TotalSeconds int64
}

// SessionTotals summarises the sessions of a user over a range.
type SessionTotals struct {
	Sessions   int64
	Keystrokes int64
	Seconds    int64
}

// Reader exposes the read-only queries. Implementations need no locking beyond the
// store's default isolation.
type Reader interface {
	// DailySummaries returns the summaries with start <= day <= end, ordered by day.
	DailySummaries(ctx context.Context, userID string, start, end time.Time) ([]DailySummary, error)
	// UserTotals groups every user's summaries in the range and returns the largest
	// totals first, at most limit rows. Ties keep the store's ordering.
	UserTotals(ctx context.Context, start, end time.Time, limit int) ([]UserTotal, error)
	// Users returns the users with the given ids; unknown ids are skipped.
	Users(ctx context.Context, ids []string) (map[string]User, error)
	FindUser(ctx context.Context, userID string) (*User, error)
	ListActivities(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
	ListSessions(ctx context.Context, userID string, filter SessionFilter) ([]CodingSession, error)
	// ToolUsage groups the sessions started since the given time by (editor, platform),
	// largest first.
	ToolUsage(ctx context.Context, userID string, since time.Time) ([]ToolUsage, error)
	SessionTotals(ctx context.Context, userID string, start, end time.Time) (SessionTotals, error)
}

// Store is the persistence boundary of the engine.
type Store interface {
	Reader
	// WithinTx runs fn in a single transaction; any error rolls back every effect.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
