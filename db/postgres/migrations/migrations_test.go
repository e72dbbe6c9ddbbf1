package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDriverURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@db:5432/codingcam?sslmode=disable", driverURL("postgres://u:p@db:5432/codingcam?sslmode=disable"))
	require.Equal(t, "pgx5://db/codingcam", driverURL("postgresql://db/codingcam"))
	require.Equal(t, "pgx5://db/codingcam", driverURL("pgx5://db/codingcam"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(FS(), "*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(FS(), "*.down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, ups)
	require.Len(t, downs, len(ups))
}
