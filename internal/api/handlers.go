// Package api exposes the extension ingest endpoints and the dashboard read endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Haseeb-Arshad/codingcam-backend/internal/auth"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/domain"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/logger"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/persistence"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/reporting"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/retry"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/wire"
)

const (
	maxBodyBytes       = 1 << 20
	defaultStatsWindow = 7 * 24 * time.Hour
	dateLayout         = "2006-01-02"
)

// PublicPaths are served without credentials.
var PublicPaths = []string{"/healthz", "/v1/leaderboard"}

// Handler coordinates HTTP requests with the engine and the reporting service.
type Handler struct {
	engine  *domain.Engine
	reports *reporting.Service
	log     *logger.Logger
	retries int
	now     func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(log *logger.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log.With("component", "api")
		}
	}
}

// WithPersistenceRetries sets how many times a failed write is retried before 503.
func WithPersistenceRetries(n int) Option {
	return func(h *Handler) { h.retries = n }
}

// WithClock overrides the time source used for default date ranges.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler builds a Handler.
func NewHandler(engine *domain.Engine, reports *reporting.Service, opts ...Option) *Handler {
	h := &Handler{
		engine:  engine,
		reports: reports,
		log:     logger.Nop(),
		retries: 3,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", healthz)

	mux.HandleFunc("/v1/extension/heartbeat", h.heartbeat)
	mux.HandleFunc("/v1/extension/sessions", h.extensionSession)
	mux.HandleFunc("/v1/extension/status", h.extensionStatus)

	mux.HandleFunc("/v1/activities", h.listActivities)
	mux.HandleFunc("/v1/sessions", h.listSessions)
	mux.HandleFunc("/v1/stats/daily", h.dailyStats)
	mux.HandleFunc("/v1/stats/languages", h.languageStats)
	mux.HandleFunc("/v1/stats/projects", h.projectStats)
	mux.HandleFunc("/v1/leaderboard", h.leaderboard)
	mux.HandleFunc("/v1/profile", h.profile)
	mux.HandleFunc("/v1/report", h.report)
}

// IngestPaths are the endpoints the extension calls on every heartbeat and session flush.
func IngestPaths() []string {
	return []string{"/v1/extension/heartbeat", "/v1/extension/sessions"}
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) heartbeat(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	var req wire.Heartbeat
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(w, r, err)
		return
	}

	var activity *domain.Activity
	err := retry.Persistence(r.Context(), h.retries, func(ctx context.Context) error {
		var err error
		activity, err = h.engine.RecordActivity(ctx, req.ActivityInput(caller.UserID))
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toActivityView(*activity))
}

func (h *Handler) extensionSession(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	var req wire.Session
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(w, r, err)
		return
	}
	in := req.SessionInput(caller.UserID)

	if req.IsPeriodicUpdate {
		var ack *domain.SessionAck
		err := retry.Persistence(r.Context(), h.retries, func(ctx context.Context) error {
			var err error
			ack, err = h.engine.ApplyPeriodicSessionUpdate(ctx, in)
			return err
		})
		if err != nil {
			h.fail(w, r, err)
			return
		}
		status := http.StatusOK
		if ack.Created {
			status = http.StatusCreated
		}
		writeJSON(w, status, SessionAckResponse{SessionID: ack.SessionID, Created: ack.Created})
		return
	}

	var session *domain.CodingSession
	err := retry.Persistence(r.Context(), h.retries, func(ctx context.Context) error {
		var err error
		session, err = h.engine.RecordSession(ctx, in)
		return err
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionView(*session))
}

func (h *Handler) extensionStatus(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	resp := StatusResponse{
		Status:  "ok",
		Message: "Extension API is working correctly",
		User:    StatusUser{ID: caller.UserID},
	}
	user, err := h.reports.User(r.Context(), caller.UserID)
	switch {
	case err == nil:
		resp.User.Username = user.Username
	case !errors.Is(err, domain.ErrNotFound):
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), 20, 500)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	cursor, err := persistence.DecodeCursor(q.Get("cursor"))
	if err != nil {
		h.fail(w, r, &domain.ValidationError{Field: "cursor", Reason: "is invalid"})
		return
	}

	activities, next, err := h.engine.ListActivities(r.Context(), caller.UserID, cursor, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items := make([]ActivityView, 0, len(activities))
	for _, a := range activities {
		items = append(items, toActivityView(a))
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: items, NextCursor: persistence.EncodeCursor(next)})
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var filter domain.SessionFilter
	var err error
	if filter.Start, err = dateParam("start_date", q.Get("start_date")); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.End, err = dateParam("end_date", q.Get("end_date")); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.Limit, err = intParam(q.Get("limit"), 100, 500); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.Offset, err = intParam(q.Get("offset"), 0, 0); err != nil {
		h.fail(w, r, err)
		return
	}

	sessions, err := h.engine.ListSessions(r.Context(), caller.UserID, filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, toSessionView(s))
	}
	writeJSON(w, http.StatusOK, ListSessionsResponse{Items: items})
}

func (h *Handler) dailyStats(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	start, end, err := h.rangeParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	summaries, err := h.engine.DailyStats(r.Context(), caller.UserID, start, end)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DailyStatsResponse{Items: toDailyViews(summaries)})
}

func (h *Handler) languageStats(w http.ResponseWriter, r *http.Request) {
	h.dimensionStats(w, r, h.engine.LanguageStats)
}

func (h *Handler) projectStats(w http.ResponseWriter, r *http.Request) {
	h.dimensionStats(w, r, h.engine.ProjectStats)
}

type dimensionQuery func(ctx context.Context, userID string, start, end time.Time) ([]domain.DimensionTotal, error)

func (h *Handler) dimensionStats(w http.ResponseWriter, r *http.Request, query dimensionQuery) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	start, end, err := h.rangeParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	totals, err := query(r.Context(), caller.UserID, start, end)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DimensionStatsResponse{Items: toDimensionViews(totals)})
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	start, end, err := h.rangeParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit, err := intParam(r.URL.Query().Get("limit"), domain.DefaultLeaderboardLimit, 100)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	entries, err := h.reports.Leaderboard(r.Context(), start, end, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LeaderboardResponse{
		StartDate: domain.DayOf(start).Format(dateLayout),
		EndDate:   domain.DayOf(end).Format(dateLayout),
		Items:     entries,
	})
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	profile, err := h.reports.Profile(r.Context(), caller.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileView(*profile))
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	caller, ok := identity(w, r)
	if !ok {
		return
	}
	start, end, err := h.rangeParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	report, err := h.reports.Report(r.Context(), caller.UserID, start, end)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportView(*report))
}

// rangeParams reads start_date and end_date. A missing end defaults to now and a
// missing start to seven days before the end.
func (h *Handler) rangeParams(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	start, err := dateParam("start_date", q.Get("start_date"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := dateParam("end_date", q.Get("end_date"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.IsZero() {
		end = h.now()
	}
	if start.IsZero() {
		start = end.Add(-defaultStatsWindow)
	}
	return start, end, nil
}

// fail maps an error to its status code. Only unexpected failures are logged.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "validation_failed", verr.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case domain.IsRetryable(err):
		h.log.Warn("persistence unavailable", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusServiceUnavailable, "unavailable", "storage temporarily unavailable, retry later")
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "cancelled", "request cancelled")
	default:
		h.log.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok || strings.TrimSpace(id.UserID) == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing credentials")
		return auth.Identity{}, false
	}
	return id, true
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	return false
}

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	return true
}

// dateParam accepts RFC 3339 timestamps and plain YYYY-MM-DD dates. Empty is zero.
func dateParam(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	return time.Time{}, &domain.ValidationError{Field: field, Reason: "must be RFC 3339 or YYYY-MM-DD"}
}

// intParam parses a non-negative integer, capped at ceiling when ceiling is positive.
func intParam(raw string, fallback, ceiling int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &domain.ValidationError{Field: "query", Reason: "numeric parameters must be non-negative integers"}
	}
	if ceiling > 0 && n > ceiling {
		n = ceiling
	}
	return n, nil
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{
		"type":   code,
		"detail": detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
