package database

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/restaurant-reservations/internal/config"
)

func TestDSN(t *testing.T) {
	t.Parallel()

	dsn := DSN(config.DBConfig{User: "app", Pass: "pw", Host: "db", Port: "3306", Name: "reservations"})
	require.True(t, strings.HasPrefix(dsn, "app:pw@tcp(db:3306)/reservations?"), dsn)
	require.Contains(t, dsn, "parseTime=true")
	require.Contains(t, dsn, "charset=utf8mb4")
}

func TestMigrationsArePaired(t *testing.T) {
	t.Parallel()

	ups, err := fs.Glob(migrationFiles, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationFiles, "migrations/*.down.sql")
	require.NoError(t, err)
	require.Len(t, ups, 3)
	require.Len(t, downs, len(ups))
	for _, up := range ups {
		require.Contains(t, downs, strings.TrimSuffix(up, ".up.sql")+".down.sql")
	}
}
