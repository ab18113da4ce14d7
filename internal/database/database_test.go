package database_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkhayef/splitledger/internal/database"
	"github.com/fkhayef/splitledger/internal/database/dbtest"
)

func TestWithTxCommitsOnSuccess(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()

	err := database.WithTx(ctx, db, func(tx *sql.Tx) error {
		dbtest.CreateUser(t, tx, "alice")
		return nil
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := database.WithTx(ctx, db, func(tx *sql.Tx) error {
		dbtest.CreateUser(t, tx, "alice")
		dbtest.CreateUser(t, tx, "bob")
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count))
	assert.Zero(t, count)
}

func TestWithTxHonoursCancelledContext(t *testing.T) {
	db := dbtest.Open(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := database.WithTx(ctx, db, func(tx *sql.Tx) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called)
}

func TestIsConflict(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pq.Error{Code: "40001"}, true},
		{"deadlock", fmt.Errorf("wrapped: %w", &pq.Error{Code: "40P01"}), true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"plain error", errors.New("nope"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, database.IsConflict(tc.err))
		})
	}
}

func TestUniqueViolationOnSQLite(t *testing.T) {
	db := dbtest.Open(t)
	dbtest.CreateUser(t, db, "alice")

	_, err := db.ExecContext(context.Background(),
		`INSERT INTO users (username, email, created_at) VALUES ('again', 'alice@example.com', CURRENT_TIMESTAMP)`)
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))
}

func TestOpenRejectsUnknownScheme(t *testing.T) {
	_, _, err := database.Open("mysql://localhost/ledger")
	assert.Error(t, err)
}
