package wire

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Haseeb-Arshad/codingcam-backend/internal/domain"
)

func TestHeartbeatDecodesExtensionPayload(t *testing.T) {
	body := `{
		"project_name": "codingcam",
		"language_name": "Go",
		"editor": "vscode",
		"platform": "darwin",
		"file_path": "cmd/api/main.go",
		"line_count": 120,
		"cursor_position": null,
		"duration_seconds": 29.6,
		"started_at": "2025-06-10T09:00:00.000Z",
		"ended_at": "2025-06-10T09:00:30.000Z"
	}`

	var hb Heartbeat
	require.NoError(t, json.Unmarshal([]byte(body), &hb))
	require.NoError(t, hb.Validate())

	in := hb.ActivityInput("user-1")
	require.Equal(t, "user-1", in.UserID)
	require.Equal(t, int64(30), in.DurationSeconds)
	require.Equal(t, 120, in.LineCount)
	require.Equal(t, 0, in.CursorPosition)
	require.Equal(t, 30*time.Second, in.EndedAt.Sub(in.StartedAt))
	require.NoError(t, in.Validate())
}

func TestSessionConversion(t *testing.T) {
	body := `{
		"session_id": "abc",
		"start_time": "2025-06-10T09:00:00Z",
		"end_time": "2025-06-10T09:30:00Z",
		"duration_seconds": 1800,
		"files_count": 2,
		"languages": {"Go": 1200.4, "Markdown": 599.6},
		"files": {"main.go": {"edits": 3, "duration": 1200, "language": "Go", "lines": 80, "keystrokes": 450}},
		"platform": "linux",
		"editor": "vscode",
		"is_offline_sync": true,
		"is_periodic_update": true
	}`

	var s Session
	require.NoError(t, json.Unmarshal([]byte(body), &s))
	require.NoError(t, s.Validate())
	require.True(t, s.IsPeriodicUpdate)

	in := s.SessionInput("user-1")
	require.Equal(t, map[string]int64{"Go": 1200, "Markdown": 600}, in.Languages)
	require.Equal(t, domain.FileActivity{Edits: 3, Duration: 1200, Language: "Go", Lines: 80, Keystrokes: 450}, in.Files["main.go"])
	require.Equal(t, 2, in.FilesCount)
	require.True(t, in.IsOfflineSync)
}

func TestValidateRejectsNonFinite(t *testing.T) {
	hb := Heartbeat{DurationSeconds: math.Inf(1)}
	require.True(t, domain.IsValidation(hb.Validate()))

	s := Session{Languages: map[string]float64{"Go": math.NaN()}}
	require.True(t, domain.IsValidation(s.Validate()))
}
