package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Haseeb-Arshad/codingcam-backend/internal/auth"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/domain"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/persistence/memory"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/reporting"
)

var testNow = time.Date(2025, time.June, 12, 15, 0, 0, 0, time.UTC)

type fixture struct {
	store *memory.Store
	mux   *http.ServeMux
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	store.PutUser(domain.User{ID: "user-1", Username: "ada", FullName: "Ada Lovelace", Country: "UK"}, "")

	clock := func() time.Time { return testNow }
	engine := domain.NewEngine(store)
	reports := reporting.NewService(engine, store, reporting.WithClock(clock))

	mux := http.NewServeMux()
	NewHandler(engine, reports, WithClock(clock)).RegisterRoutes(mux)
	return &fixture{store: store, mux: mux}
}

func (f *fixture) do(t *testing.T, method, target, body, userID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if userID != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: userID, Method: "api_key"}))
	}
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, req)
	return rr
}

func heartbeatBody(startedAt string, seconds int) string {
	start, _ := time.Parse(time.RFC3339, startedAt)
	end := start.Add(time.Duration(seconds) * time.Second)
	return fmt.Sprintf(`{"project_name":"codingcam","language_name":"Go","editor":"vscode","platform":"linux",
		"file_path":"cmd/api/main.go","line_count":120,"cursor_position":14.6,"duration_seconds":%d,
		"started_at":%q,"ended_at":%q}`, seconds, start.Format(time.RFC3339), end.Format(time.RFC3339))
}

func decodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestHeartbeatCreatesActivityAndSummary(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/v1/extension/heartbeat", heartbeatBody("2025-06-10T09:00:00Z", 30), "user-1")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	activity := decodeJSON[ActivityView](t, rr)
	require.NotEmpty(t, activity.ID)
	require.Equal(t, "Go", activity.LanguageName)
	require.Equal(t, "codingcam", activity.ProjectName)
	require.Equal(t, 15, activity.CursorPosition)

	rr = f.do(t, http.MethodGet, "/v1/stats/daily?start_date=2025-06-10&end_date=2025-06-10", "", "user-1")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	daily := decodeJSON[DailyStatsResponse](t, rr)
	require.Len(t, daily.Items, 1)
	require.Equal(t, "2025-06-10", daily.Items[0].Date)
	require.Equal(t, int64(30), daily.Items[0].TotalSeconds)
	require.Equal(t, "Go", daily.Items[0].Languages[0].Name)

	rr = f.do(t, http.MethodGet, "/v1/stats/languages?start_date=2025-06-10&end_date=2025-06-10", "", "user-1")
	require.Equal(t, http.StatusOK, rr.Code)
	languages := decodeJSON[DimensionStatsResponse](t, rr)
	require.Len(t, languages.Items, 1)
	require.Equal(t, 100, languages.Items[0].Percentage)
}

func TestHeartbeatRejectsBadRequests(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodPost, "/v1/extension/heartbeat", `{"editor":"vscode"}`, "user-1")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "validation_failed", decodeJSON[map[string]string](t, rr)["type"])

	rr = f.do(t, http.MethodPost, "/v1/extension/heartbeat", `{not json`, "user-1")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "invalid_request", decodeJSON[map[string]string](t, rr)["type"])

	rr = f.do(t, http.MethodGet, "/v1/extension/heartbeat", "", "user-1")
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	require.Equal(t, http.MethodPost, rr.Header().Get("Allow"))

	rr = f.do(t, http.MethodPost, "/v1/extension/heartbeat", heartbeatBody("2025-06-10T09:00:00Z", 30), "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestExtensionSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	base := `"session_id":"s-1","start_time":"2025-06-10T09:00:00Z","editor":"vscode","platform":"darwin"`

	rr := f.do(t, http.MethodPost, "/v1/extension/sessions",
		`{`+base+`,"end_time":"2025-06-10T09:10:00Z","duration_seconds":600,"languages":{"Go":600},
		"files":{"main.go":{"edits":4,"duration":600,"language":"Go","lines":80,"keystrokes":300}}}`, "user-1")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	session := decodeJSON[SessionView](t, rr)
	require.Equal(t, "s-1", session.SessionID)
	require.Equal(t, int64(300), session.Metrics.TotalKeystrokes)

	rr = f.do(t, http.MethodPost, "/v1/extension/sessions",
		`{`+base+`,"end_time":"2025-06-10T09:20:00Z","duration_seconds":1200,"languages":{"Go":1100},"is_periodic_update":true}`, "user-1")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	ack := decodeJSON[SessionAckResponse](t, rr)
	require.Equal(t, "s-1", ack.SessionID)
	require.False(t, ack.Created)

	rr = f.do(t, http.MethodPost, "/v1/extension/sessions",
		`{"session_id":"s-2","start_time":"2025-06-11T09:00:00Z","end_time":"2025-06-11T09:05:00Z",
		"duration_seconds":300,"editor":"vscode","platform":"darwin","is_periodic_update":true}`, "user-1")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.True(t, decodeJSON[SessionAckResponse](t, rr).Created)

	rr = f.do(t, http.MethodGet, "/v1/sessions?start_date=2025-06-10", "", "user-1")
	require.Equal(t, http.StatusOK, rr.Code)
	sessions := decodeJSON[ListSessionsResponse](t, rr)
	require.Len(t, sessions.Items, 2)
	require.Equal(t, 2, f.store.SessionCount())
}

func TestExtensionStatus(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/v1/extension/status", "", "user-1")
	require.Equal(t, http.StatusOK, rr.Code)
	status := decodeJSON[StatusResponse](t, rr)
	require.Equal(t, "ok", status.Status)
	require.Equal(t, "ada", status.User.Username)

	rr = f.do(t, http.MethodGet, "/v1/extension/status", "", "user-unknown")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, decodeJSON[StatusResponse](t, rr).User.Username)
}

func TestLeaderboardIsPublic(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated,
		f.do(t, http.MethodPost, "/v1/extension/heartbeat", heartbeatBody("2025-06-10T09:00:00Z", 90), "user-1").Code)

	rr := f.do(t, http.MethodGet, "/v1/leaderboard?start_date=2025-06-10&end_date=2025-06-10&limit=5", "", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	board := decodeJSON[LeaderboardResponse](t, rr)
	require.Equal(t, "2025-06-10", board.StartDate)
	require.Len(t, board.Items, 1)
	require.Equal(t, 1, board.Items[0].Rank)
	require.Equal(t, "ada", board.Items[0].Username)
	require.Equal(t, int64(90), board.Items[0].TotalSeconds)

	rr = f.do(t, http.MethodGet, "/v1/leaderboard?limit=-1", "", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestProfile(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated,
		f.do(t, http.MethodPost, "/v1/extension/heartbeat", heartbeatBody("2025-06-11T09:00:00Z", 120), "user-1").Code)

	rr := f.do(t, http.MethodGet, "/v1/profile", "", "user-1")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	profile := decodeJSON[ProfileResponse](t, rr)
	require.Equal(t, "Ada Lovelace", profile.User.FullName)
	require.Equal(t, int64(120), profile.Activity.TotalCodingSeconds)
	require.Equal(t, 1, profile.Activity.CurrentStreak)
	require.Len(t, profile.Languages, 1)
	require.NotNil(t, profile.LastActive)

	rr = f.do(t, http.MethodGet, "/v1/profile", "", "user-unknown")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestReport(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusCreated,
		f.do(t, http.MethodPost, "/v1/extension/heartbeat", heartbeatBody("2025-06-10T09:00:00Z", 300), "user-1").Code)

	rr := f.do(t, http.MethodGet, "/v1/report?start_date=2025-06-09&end_date=2025-06-11", "", "user-1")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	report := decodeJSON[ReportResponse](t, rr)
	require.Equal(t, "2025-06-09", report.StartDate)
	require.Equal(t, int64(300), report.Activity.TotalCodingSeconds)
	require.Equal(t, int64(100), report.Activity.AverageSecondsPerDay)
	require.Len(t, report.Projects, 1)

	rr = f.do(t, http.MethodGet, "/v1/report?start_date=2025-06-11&end_date=2025-06-09", "", "user-1")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodGet, "/v1/report?start_date=yesterday", "", "user-1")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListActivitiesPages(t *testing.T) {
	f := newFixture(t)
	for _, started := range []string{"2025-06-10T09:00:00Z", "2025-06-10T10:00:00Z", "2025-06-10T11:00:00Z"} {
		require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/v1/extension/heartbeat", heartbeatBody(started, 10), "user-1").Code)
	}

	rr := f.do(t, http.MethodGet, "/v1/activities?limit=2", "", "user-1")
	require.Equal(t, http.StatusOK, rr.Code)
	first := decodeJSON[ListActivitiesResponse](t, rr)
	require.Len(t, first.Items, 2)
	require.Equal(t, 11, first.Items[0].StartedAt.Hour())
	require.NotEmpty(t, first.NextCursor)

	rr = f.do(t, http.MethodGet, "/v1/activities?limit=2&cursor="+first.NextCursor, "", "user-1")
	require.Equal(t, http.StatusOK, rr.Code)
	second := decodeJSON[ListActivitiesResponse](t, rr)
	require.Len(t, second.Items, 1)
	require.Equal(t, 9, second.Items[0].StartedAt.Hour())
	require.Empty(t, second.NextCursor)

	rr = f.do(t, http.MethodGet, "/v1/activities?cursor=bm90LWEtY3Vyc29y", "", "user-1")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}
