//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/Haseeb-Arshad/codingcam-backend/db/postgres/migrations"
	"github.com/Haseeb-Arshad/codingcam-backend/internal/domain"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("codingcam"),
		postgrescontainer.WithUsername("codingcam"),
		postgrescontainer.WithPassword("codingcam"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))
	require.NoError(t, migrations.Up(connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}

func TestStoreAggregatesConcurrentHeartbeats(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t)
	store := NewStore(pool)
	engine := domain.NewEngine(store)

	day := time.Date(2025, time.June, 10, 9, 0, 0, 0, time.UTC)
	const workers = 12

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started := day.Add(time.Duration(i) * time.Minute)
			_, err := engine.RecordActivity(ctx, domain.ActivityInput{
				UserID:          "user-1",
				ProjectName:     "fresh-project",
				LanguageName:    "Go",
				Editor:          "vscode",
				Platform:        "linux",
				FilePath:        "main.go",
				DurationSeconds: 30,
				StartedAt:       started,
				EndedAt:         started.Add(30 * time.Second),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var projects int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM projects WHERE user_id='user-1' AND name='fresh-project'`).Scan(&projects))
	require.Equal(t, 1, projects)

	summaries, err := store.DailySummaries(ctx, "user-1", day, day)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, int64(workers*30), summaries[0].TotalSeconds)
	require.Len(t, summaries[0].Projects, 1)
	require.Equal(t, int64(workers*30), summaries[0].Projects[0].Seconds)

	var outboxRows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE event_type='activity.recorded'`).Scan(&outboxRows))
	require.Equal(t, workers, outboxRows)

	page, next, err := store.ListActivities(ctx, "user-1", nil, 5)
	require.NoError(t, err)
	require.Len(t, page, 5)
	require.NotNil(t, next)
	require.Equal(t, "fresh-project", page[0].ProjectName)
}

func TestStoreSessionRaceResolvesToWinner(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t)
	engine := domain.NewEngine(NewStore(pool))

	start := time.Date(2025, time.June, 10, 14, 0, 0, 0, time.UTC)
	input := domain.SessionInput{
		UserID:          "user-1",
		SessionID:       "race-session",
		StartTime:       start,
		EndTime:         start.Add(20 * time.Minute),
		DurationSeconds: 1200,
		Languages:       map[string]int64{"Go": 1000, "SQL": 200},
		Files:           map[string]domain.FileActivity{"store.go": {Edits: 4, Keystrokes: 600, Language: "Go"}},
	}

	const racers = 6
	var wg sync.WaitGroup
	ids := make(chan string, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session, err := engine.RecordSession(ctx, input)
			if err == nil {
				ids <- session.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	var first string
	count := 0
	for id := range ids {
		if first == "" {
			first = id
		}
		require.Equal(t, first, id)
		count++
	}
	require.Equal(t, racers, count)

	var total int64
	require.NoError(t, pool.QueryRow(ctx, `SELECT total_seconds FROM daily_summaries WHERE user_id='user-1' AND day=$1`, domain.DayOf(start)).Scan(&total))
	require.Equal(t, int64(1200), total)

	update := input
	update.EndTime = start.Add(40 * time.Minute)
	update.DurationSeconds = 2400
	update.Languages = map[string]int64{"Go": 2000}
	update.Files = map[string]domain.FileActivity{"store.go": {Edits: 0, Keystrokes: 900}}
	ack, err := engine.ApplyPeriodicSessionUpdate(ctx, update)
	require.NoError(t, err)
	require.False(t, ack.Created)

	sessions, err := engine.ListSessions(ctx, "user-1", domain.SessionFilter{})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, int64(2000), sessions[0].Languages["Go"])
	require.Equal(t, int64(200), sessions[0].Languages["SQL"])
	require.Equal(t, int64(4), sessions[0].Files["store.go"].Edits)
	require.Equal(t, int64(900), sessions[0].Metrics.TotalKeystrokes)
}

func TestStoreLeaderboardAndAPIKeys(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t)
	store := NewStore(pool)
	engine := domain.NewEngine(store)

	_, err := pool.Exec(ctx, `INSERT INTO users (user_id, username, country, api_key) VALUES ('a','alice','PK','key-a'), ('b','bob','DE',NULL)`)
	require.NoError(t, err)

	day := time.Date(2025, time.June, 10, 9, 0, 0, 0, time.UTC)
	for _, hb := range []struct {
		user    string
		seconds int64
	}{{"a", 150}, {"b", 100}, {"a", 50}} {
		_, err := engine.RecordActivity(ctx, domain.ActivityInput{
			UserID: hb.user, Editor: "vscode", Platform: "linux", FilePath: "x.go",
			DurationSeconds: hb.seconds, StartedAt: day, EndedAt: day.Add(time.Duration(hb.seconds) * time.Second),
		})
		require.NoError(t, err)
	}

	entries, err := engine.Leaderboard(ctx, day, day, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "alice", entries[0].Username)
	require.Equal(t, int64(200), entries[0].TotalSeconds)
	require.Equal(t, int64(100), entries[1].TotalSeconds)

	userID, err := store.UserIDForAPIKey(ctx, "key-a")
	require.NoError(t, err)
	require.Equal(t, "a", userID)

	_, err = store.UserIDForAPIKey(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
