package migrate_test

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-dataport/internal/migrate"
	"github.com/target/mmk-dataport/internal/testutil"
)

func TestMigrator_Integration(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithEphemeralDB(t, func(db *sql.DB) {
		ctx := context.Background()
		require.NoError(t, migrate.Run(ctx, db))

		pending, err := migrate.Pending(ctx, db)
		require.NoError(t, err)
		assert.Empty(t, pending)

		var n int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM transfer_jobs`).Scan(&n))
		assert.Zero(t, n)

		extra := fstest.MapFS{
			"migrations/0001_transfer_jobs.sql": {Data: []byte("SELECT 1")},
			"migrations/9999_probe.sql":         {Data: []byte("CREATE TABLE migrate_probe (id int)")},
		}
		m, err := migrate.New(db, extra, nil)
		require.NoError(t, err)

		pending, err = m.Pending(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"9999_probe"}, pending)

		applied, err := m.Apply(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"9999_probe"}, applied)

		applied, err = m.Apply(ctx)
		require.NoError(t, err)
		assert.Empty(t, applied)
	})
}
