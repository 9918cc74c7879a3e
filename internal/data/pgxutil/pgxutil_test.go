package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-dataport/internal/testutil"
)

func TestTransactions_Integration(t *testing.T) {
	db := testutil.SetupEphemeralSchemaDB(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `CREATE TABLE tracks (id integer PRIMARY KEY)`)
	require.NoError(t, err)

	count := func() int {
		var n int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM tracks`).Scan(&n))
		return n
	}

	t.Run("error rolls back", func(t *testing.T) {
		boom := errors.New("boom")
		err := InTx(ctx, db, nil, func(tx *sql.Tx) error {
			if _, execErr := tx.ExecContext(ctx, `INSERT INTO tracks VALUES (1)`); execErr != nil {
				return execErr
			}
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.Zero(t, count())
	})

	t.Run("failed savepoint keeps transaction usable", func(t *testing.T) {
		err := InTx(ctx, db, nil, func(tx *sql.Tx) error {
			if spErr := WithSavepoint(ctx, tx, "row", func() error {
				_, execErr := tx.ExecContext(ctx, `INSERT INTO tracks VALUES (2)`)
				return execErr
			}); spErr != nil {
				return spErr
			}
			dup := WithSavepoint(ctx, tx, "row", func() error {
				_, execErr := tx.ExecContext(ctx, `INSERT INTO tracks VALUES (2)`)
				return execErr
			})
			require.Error(t, dup)
			_, execErr := tx.ExecContext(ctx, `INSERT INTO tracks VALUES (3)`)
			return execErr
		})
		require.NoError(t, err)
		assert.Equal(t, 2, count())
	})

	t.Run("pgx tx commits and rolls back", func(t *testing.T) {
		require.NoError(t, WithPgxTx(ctx, db, nil, func(tx pgx.Tx) error {
			_, execErr := tx.Exec(ctx, `INSERT INTO tracks VALUES (10)`)
			return execErr
		}))
		assert.Equal(t, 3, count())

		boom := errors.New("boom")
		err := WithPgxTx(ctx, db, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(tx pgx.Tx) error {
			if _, execErr := tx.Exec(ctx, `INSERT INTO tracks VALUES (11)`); execErr != nil {
				return execErr
			}
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 3, count())
	})

	t.Run("read only pgx tx rejects writes", func(t *testing.T) {
		err := WithPgxTx(ctx, db, &sql.TxOptions{ReadOnly: true}, func(tx pgx.Tx) error {
			_, execErr := tx.Exec(ctx, `INSERT INTO tracks VALUES (12)`)
			return execErr
		})
		require.Error(t, err)
		assert.Equal(t, 3, count())
	})

	t.Run("pgx conn", func(t *testing.T) {
		var n int
		require.NoError(t, WithPgxConn(ctx, db, func(conn *pgx.Conn) error {
			return conn.QueryRow(ctx, `SELECT count(*) FROM tracks`).Scan(&n)
		}))
		assert.Equal(t, 3, n)
	})
}

func TestPgxTxOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts *sql.TxOptions
		want pgx.TxOptions
	}{
		{name: "nil", opts: nil, want: pgx.TxOptions{}},
		{name: "default", opts: &sql.TxOptions{}, want: pgx.TxOptions{}},
		{name: "serializable", opts: &sql.TxOptions{Isolation: sql.LevelSerializable}, want: pgx.TxOptions{IsoLevel: pgx.Serializable}},
		{name: "snapshot", opts: &sql.TxOptions{Isolation: sql.LevelSnapshot}, want: pgx.TxOptions{IsoLevel: pgx.RepeatableRead}},
		{
			name: "read only read committed",
			opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted, ReadOnly: true},
			want: pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, pgxTxOptions(tt.opts))
		})
	}
}
