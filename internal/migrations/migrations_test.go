package migrations

import (
	"context"
	"database/sql"
	"testing"

	"github.com/MrEthical07/goRenew/internal/dbx"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestUpIsRepeatable(t *testing.T) {
	db, err := sql.Open("sqlite", "file:migrations_test?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	require.NoError(t, Up(ctx, db, dbx.SQLite))
	require.NoError(t, Up(ctx, db, dbx.SQLite))

	v, err := Version(ctx, db, dbx.SQLite)
	require.NoError(t, err)
	require.Equal(t, int64(2), v)

	for _, table := range []string{"sessions", "refresh_tokens", "principals", "federated_links"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}
