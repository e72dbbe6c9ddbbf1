// Package domain holds the session-merge and daily-aggregation engine.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Haseeb-Arshad/codingcam-backend/internal/events"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/logger"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/observability"
)

const dayLayout = "2006-01-02"

// Engine owns every invariant-preserving write and the transaction boundaries around
// them. It never retries; callers retry PersistenceError with a bounded budget.
type Engine struct {
	store Store
	log   *logger.Logger
	now   func() time.Time
}

// Option configures optional Engine behaviour.
type Option func(*Engine)

// WithLogger overrides the engine logger.
func WithLogger(log *logger.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log.With("component", "engine")
		}
	}
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine constructs an Engine backed by store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		log:   logger.Nop(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SessionAck acknowledges a periodic update.
type SessionAck struct {
	SessionID string
	// Created is true when the update arrived for an unknown session and created it.
	Created bool
}

// RecordActivity stores one heartbeat and folds its duration into the user-day summary.
// Dimension lookups, the activity insert and the summary update commit together.
func (e *Engine) RecordActivity(ctx context.Context, in ActivityInput) (*Activity, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := e.now()
	activity := Activity{
		ID:              uuid.NewString(),
		UserID:          strings.TrimSpace(in.UserID),
		ProjectName:     strings.TrimSpace(in.ProjectName),
		LanguageName:    strings.TrimSpace(in.LanguageName),
		Editor:          strings.TrimSpace(in.Editor),
		Platform:        strings.TrimSpace(in.Platform),
		FilePath:        NormalizePath(in.FilePath),
		LineCount:       in.LineCount,
		CursorPosition:  in.CursorPosition,
		DurationSeconds: in.DurationSeconds,
		StartedAt:       in.StartedAt.UTC(),
		EndedAt:         in.EndedAt.UTC(),
		CreatedAt:       now,
	}

	var summary DailySummary
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var languages, projects []DimensionSeconds
		if activity.ProjectName != "" {
			project, err := tx.ResolveProject(ctx, activity.UserID, activity.ProjectName)
			if err != nil {
				return err
			}
			activity.ProjectID = project.ID
			projects = []DimensionSeconds{{ID: project.ID, Name: project.Name, Seconds: activity.DurationSeconds}}
		}
		if activity.LanguageName != "" {
			language, err := tx.ResolveLanguage(ctx, activity.LanguageName)
			if err != nil {
				return err
			}
			activity.LanguageID = language.ID
			languages = []DimensionSeconds{{ID: language.ID, Name: language.Name, Seconds: activity.DurationSeconds}}
		}

		if err := tx.InsertActivity(ctx, activity); err != nil {
			return err
		}

		var err error
		summary, err = e.fold(ctx, tx, activity.UserID, DayOf(activity.StartedAt), activity.DurationSeconds, languages, projects)
		if err != nil {
			return err
		}

		return tx.Enqueue(ctx, Event{
			ID:          uuid.NewString(),
			Type:        events.TypeActivityRecorded,
			AggregateID: activity.ID,
			UserID:      activity.UserID,
			OccurredAt:  now,
			Payload: events.ActivityRecorded{
				ActivityID:      activity.ID,
				UserID:          activity.UserID,
				ProjectName:     activity.ProjectName,
				LanguageName:    activity.LanguageName,
				Editor:          activity.Editor,
				Platform:        activity.Platform,
				DurationSeconds: activity.DurationSeconds,
				StartedAt:       activity.StartedAt,
				Day:             summary.Day.Format(dayLayout),
				DayTotalSeconds: summary.TotalSeconds,
			},
		})
	})
	if err != nil {
		return nil, classify("record activity", err)
	}

	observability.RecordActivity(activity.DurationSeconds, now)
	e.log.Debug("activity recorded",
		"user_id", activity.UserID,
		"activity_id", activity.ID,
		"day", summary.Day.Format(dayLayout),
		"day_total_seconds", summary.TotalSeconds,
	)
	return &activity, nil
}

// RecordSession creates a coding session and credits its per-language seconds to the
// user-day summary. A session id that already exists returns the stored session
// unchanged, so client retransmissions have no further effect.
func (e *Engine) RecordSession(ctx context.Context, in SessionInput) (*CodingSession, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	normalized := in.normalized()

	var (
		session *CodingSession
		created bool
	)
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		session, created, err = e.createSession(ctx, tx, normalized)
		return err
	})
	if err != nil {
		return nil, classify("record session", err)
	}

	e.observeSession(session, created)
	return session, nil
}

// ApplyPeriodicSessionUpdate merges an in-progress report into the stored session.
// Reported values are cumulative for the session, so languages are overwritten rather
// than added. The daily summary is credited only when the session is created; an update
// for an unknown session degrades to RecordSession.
func (e *Engine) ApplyPeriodicSessionUpdate(ctx context.Context, in SessionInput) (*SessionAck, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	normalized := in.normalized()

	var (
		ack     SessionAck
		created *CodingSession
	)
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		stored, err := tx.LockSession(ctx, normalized.SessionID, normalized.UserID)
		if err != nil {
			return err
		}
		if stored == nil {
			session, isNew, err := e.createSession(ctx, tx, normalized)
			if err != nil {
				return err
			}
			ack = SessionAck{SessionID: session.SessionID, Created: isNew}
			if isNew {
				created = session
			}
			return nil
		}

		updated := applyPeriodicUpdate(*stored, normalized)
		updated.Metrics = ComputeMetrics(updated)
		updated.UpdatedAt = e.now()
		if err := tx.UpdateSession(ctx, updated); err != nil {
			return err
		}
		ack = SessionAck{SessionID: updated.SessionID}

		return tx.Enqueue(ctx, Event{
			ID:          uuid.NewString(),
			Type:        events.TypeSessionProgressed,
			AggregateID: updated.SessionID,
			UserID:      updated.UserID,
			OccurredAt:  updated.UpdatedAt,
			Payload: events.SessionProgressed{
				SessionID:       updated.SessionID,
				UserID:          updated.UserID,
				EndTime:         updated.EndTime,
				DurationSeconds: updated.DurationSeconds,
				FilesCount:      updated.FilesCount,
				OccurredAt:      updated.UpdatedAt,
			},
		})
	})
	if err != nil {
		return nil, classify("apply periodic session update", err)
	}

	if created != nil {
		e.observeSession(created, true)
	} else {
		observability.RecordSessionProgress()
	}
	return &ack, nil
}

// createSession runs inside a transaction. It reports whether a new session was stored;
// false means an existing session with the same id was returned instead.
func (e *Engine) createSession(ctx context.Context, tx Tx, in SessionInput) (*CodingSession, bool, error) {
	existing, err := tx.FindSession(ctx, in.SessionID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return replay(existing, in.UserID)
	}

	now := e.now()
	session := CodingSession{
		ID:              uuid.NewString(),
		SessionID:       in.SessionID,
		UserID:          in.UserID,
		StartTime:       in.StartTime,
		EndTime:         in.EndTime,
		DurationSeconds: in.DurationSeconds,
		FilesCount:      in.FilesCount,
		Languages:       in.Languages,
		Files:           in.Files,
		Platform:        in.Platform,
		Editor:          in.Editor,
		IsOfflineSync:   in.IsOfflineSync,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if session.FilesCount <= 0 {
		session.FilesCount = len(session.Files)
	}
	session.Metrics = ComputeMetrics(session)

	if err := tx.InsertSession(ctx, session); err != nil {
		if !errors.Is(err, ErrConflict) {
			return nil, false, err
		}
		// Lost a creation race: the winner has committed and is visible now.
		winner, findErr := tx.FindSession(ctx, in.SessionID)
		if findErr != nil {
			return nil, false, findErr
		}
		if winner == nil {
			return nil, false, err
		}
		return replay(winner, in.UserID)
	}

	languages := make([]DimensionSeconds, 0, len(session.Languages))
	for _, name := range sortedKeys(session.Languages) {
		language, err := tx.ResolveLanguage(ctx, name)
		if err != nil {
			return nil, false, err
		}
		languages = append(languages, DimensionSeconds{ID: language.ID, Name: language.Name, Seconds: session.Languages[name]})
	}

	summary, err := e.fold(ctx, tx, session.UserID, DayOf(session.StartTime), session.DurationSeconds, languages, nil)
	if err != nil {
		return nil, false, err
	}

	err = tx.Enqueue(ctx, Event{
		ID:          uuid.NewString(),
		Type:        events.TypeSessionRecorded,
		AggregateID: session.SessionID,
		UserID:      session.UserID,
		OccurredAt:  now,
		Payload: events.SessionRecorded{
			SessionID:       session.SessionID,
			UserID:          session.UserID,
			StartTime:       session.StartTime,
			EndTime:         session.EndTime,
			DurationSeconds: session.DurationSeconds,
			Languages:       session.Languages,
			IsOfflineSync:   session.IsOfflineSync,
			Day:             summary.Day.Format(dayLayout),
			DayTotalSeconds: summary.TotalSeconds,
		},
	})
	if err != nil {
		return nil, false, err
	}
	return &session, true, nil
}

// replay returns an already stored session to its owner. A session id owned by another
// user is a client error rather than a duplicate.
func replay(existing *CodingSession, userID string) (*CodingSession, bool, error) {
	if existing.UserID != userID {
		return nil, false, invalid("session_id", "is already used by another user")
	}
	return existing, false, nil
}

// fold applies one contribution to the locked user-day summary and saves it.
func (e *Engine) fold(ctx context.Context, tx Tx, userID string, day time.Time, seconds int64, languages, projects []DimensionSeconds) (DailySummary, error) {
	summary, err := tx.LockDailySummary(ctx, userID, day)
	if err != nil {
		return DailySummary{}, err
	}
	summary.Fold(seconds, languages, projects)
	summary.UpdatedAt = e.now()
	if err := tx.SaveDailySummary(ctx, summary); err != nil {
		return DailySummary{}, err
	}
	return summary, nil
}

func (e *Engine) observeSession(session *CodingSession, created bool) {
	if !created {
		observability.RecordSessionDuplicate()
		e.log.Info("session already recorded, skipping", "session_id", session.SessionID)
		return
	}
	observability.RecordSession(session.DurationSeconds, session.CreatedAt)
	e.log.Debug("session recorded",
		"user_id", session.UserID,
		"session_id", session.SessionID,
		"duration_seconds", session.DurationSeconds,
		"offline_sync", session.IsOfflineSync,
	)
}
