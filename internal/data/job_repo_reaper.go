package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/target/mmk-dataport/internal/core"
	"github.com/target/mmk-dataport/internal/data/pgxutil"
)

// Advisory lock namespace for reaper operations.
// Using two-arg pg_try_advisory_xact_lock(major, minor) for proper namespacing.
// Major key 1000 is reserved for dataport reaper operations.
const (
	advisoryLockReaperMajor      = 1000
	advisoryLockReaperLeases     = 1 // minor key for FailExpiredLeases
	advisoryLockReaperRedispatch = 2 // minor key for RedispatchStale
)

// LeaseExpiredTraceback is stored in result.traceback for jobs abandoned by their worker.
const LeaseExpiredTraceback = "worker lease expired"

func tryReaperLock(ctx context.Context, tx *sql.Tx, minor int) (bool, error) {
	var locked bool
	if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, minor).Scan(&locked); err != nil {
		return false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	return locked, nil
}

// FailExpiredLeases moves running jobs whose lease has passed to their error status.
// Processes up to batchSize jobs per call to prevent long locks and I/O spikes.
// Uses advisory locks to prevent concurrent reaper instances from conflicting.
// Returns the number of jobs failed.
func (r *JobRepo) FailExpiredLeases(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}

	var rowsAffected int64
	err := pgxutil.InTx(ctx, r.DB, nil, func(tx *sql.Tx) error {
		locked, err := tryReaperLock(ctx, tx, advisoryLockReaperLeases)
		if err != nil || !locked {
			return err
		}

		now := r.clock.Now()
		res, err := tx.ExecContext(ctx, `
			UPDATE transfer_jobs
			SET status = CASE direction WHEN 'export' THEN 'EXPORT_ERROR' ELSE 'IMPORT_ERROR' END,
			    result = jsonb_set(COALESCE(result, '{}'::jsonb), '{traceback}', to_jsonb($2::text)),
			    finished_at = $1,
			    lease_expires_at = NULL,
			    updated_at = $1
			WHERE id IN (
				SELECT id FROM transfer_jobs
				WHERE status IN ('EXPORTING', 'IMPORTING')
				  AND lease_expires_at < $1
				ORDER BY lease_expires_at
				LIMIT $3
				FOR UPDATE SKIP LOCKED
			)
			  AND status IN ('EXPORTING', 'IMPORTING')
		`, now, LeaseExpiredTraceback, batchSize)
		if err != nil {
			return fmt.Errorf("fail expired leases: %w", err)
		}

		ra, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		rowsAffected = ra
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// RedispatchStale refreshes the dispatch marker of jobs that were dispatched but never started
// and returns their ids so they can be enqueued again.
func (r *JobRepo) RedispatchStale(ctx context.Context, params core.RedispatchStaleParams) ([]string, error) {
	if params.BatchSize <= 0 {
		return nil, errors.New("batch size must be greater than zero")
	}
	if params.OlderThan <= 0 {
		return nil, errors.New("older than must be greater than zero")
	}

	var ids []string
	err := pgxutil.InTx(ctx, r.DB, nil, func(tx *sql.Tx) error {
		locked, err := tryReaperLock(ctx, tx, advisoryLockReaperRedispatch)
		if err != nil || !locked {
			return err
		}

		now := r.clock.Now()
		rows, err := tx.QueryContext(ctx, `
			UPDATE transfer_jobs
			SET dispatched_at = $1, updated_at = $1
			WHERE id IN (
				SELECT id FROM transfer_jobs
				WHERE status = 'CREATED'
				  AND dispatched_at < $2
				ORDER BY dispatched_at
				LIMIT $3
				FOR UPDATE SKIP LOCKED
			)
			  AND status = 'CREATED'
			RETURNING id
		`, now, now.Add(-params.OlderThan), params.BatchSize)
		if err != nil {
			return fmt.Errorf("redispatch stale: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var id string
			if scanErr := rows.Scan(&id); scanErr != nil {
				return fmt.Errorf("scan id: %w", scanErr)
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
