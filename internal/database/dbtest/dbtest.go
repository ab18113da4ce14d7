// Package dbtest opens throwaway SQLite databases with the production schema.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fkhayef/splitledger/internal/database"
)

// Open returns a migrated SQLite database in a temp dir, closed on cleanup.
func Open(t testing.TB) *sql.DB {
	t.Helper()

	db, err := database.NewSQLiteConnection(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// CreateUser inserts a user row and returns its id.
func CreateUser(t testing.TB, db database.DBTX, username string) int64 {
	t.Helper()

	var id int64
	err := db.QueryRowContext(context.Background(),
		`INSERT INTO users (username, email, created_at) VALUES ($1, $2, $3) RETURNING id`,
		username, username+"@example.com", time.Now().UTC(),
	).Scan(&id)
	require.NoError(t, err)
	return id
}

// CreateGroup inserts a group with the given users as JOINED members.
func CreateGroup(t testing.TB, db database.DBTX, name string, memberIDs ...int64) int64 {
	t.Helper()

	ctx := context.Background()
	now := time.Now().UTC()

	var id int64
	err := db.QueryRowContext(ctx,
		`INSERT INTO groups (name, created_at, updated_at) VALUES ($1, $2, $2) RETURNING id`,
		name, now,
	).Scan(&id)
	require.NoError(t, err)

	for _, userID := range memberIDs {
		_, err := db.ExecContext(ctx,
			`INSERT INTO group_members (group_id, user_id, status, role, joined_at) VALUES ($1, $2, 'JOINED', 'MEMBER', $3)`,
			id, userID, now,
		)
		require.NoError(t, err)
	}
	return id
}
