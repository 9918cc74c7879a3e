package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-dataport/internal/core"
	"github.com/target/mmk-dataport/internal/domain/model"
	"github.com/target/mmk-dataport/internal/testutil"
)

func TestJobRepo_ReaperParamValidation(t *testing.T) {
	repo := NewJobRepo(nil, RepoConfig{})

	_, err := repo.FailExpiredLeases(context.Background(), 0)
	require.Error(t, err)

	_, err = repo.RedispatchStale(context.Background(), core.RedispatchStaleParams{OlderThan: time.Minute})
	require.Error(t, err)

	_, err = repo.RedispatchStale(context.Background(), core.RedispatchStaleParams{BatchSize: 10})
	require.Error(t, err)
}

func TestJobRepo_Integration_FailExpiredLeases(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo, clock := newIntegrationRepo(db)

		expired, err := repo.Create(ctx, testutil.NewExportRequest().Build())
		require.NoError(t, err)
		fresh, err := repo.Create(ctx, testutil.NewImportRequest("file:///tmp/in.csv").Build())
		require.NoError(t, err)

		ok, err := repo.Start(ctx, core.StartJobParams{ID: expired.ID, Direction: model.DirectionExport, Lease: time.Minute})
		require.NoError(t, err)
		require.True(t, ok)
		clock.Advance(50 * time.Second)
		ok, err = repo.Start(ctx, core.StartJobParams{ID: fresh.ID, Direction: model.DirectionImport, Lease: time.Minute})
		require.NoError(t, err)
		require.True(t, ok)

		clock.Advance(20 * time.Second)
		n, err := repo.FailExpiredLeases(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		got, err := repo.GetByID(ctx, expired.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusExportError, got.Status)
		require.NotNil(t, got.Result.Traceback)
		assert.Equal(t, LeaseExpiredTraceback, *got.Result.Traceback)
		assert.Nil(t, got.LeaseExpiresAt)

		got, err = repo.GetByID(ctx, fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusImporting, got.Status)
	})
}

func TestJobRepo_Integration_RedispatchStale(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo, clock := newIntegrationRepo(db)

		stale, err := repo.Create(ctx, testutil.NewExportRequest().Build())
		require.NoError(t, err)
		undispatched, err := repo.Create(ctx, testutil.NewExportRequest().Build())
		require.NoError(t, err)
		_, err = repo.MarkDispatched(ctx, stale.ID)
		require.NoError(t, err)

		clock.Advance(10 * time.Minute)
		ids, err := repo.RedispatchStale(ctx, core.RedispatchStaleParams{OlderThan: 5 * time.Minute, BatchSize: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{stale.ID}, ids)
		assert.NotContains(t, ids, undispatched.ID)

		// marker refreshed, so an immediate second pass finds nothing
		ids, err = repo.RedispatchStale(ctx, core.RedispatchStaleParams{OlderThan: 5 * time.Minute, BatchSize: 10})
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}
