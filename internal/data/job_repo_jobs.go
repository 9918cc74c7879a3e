package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/target/mmk-dataport/internal/core"
	"github.com/target/mmk-dataport/internal/data/database"
	"github.com/target/mmk-dataport/internal/data/pgxutil"
	"github.com/target/mmk-dataport/internal/domain/model"
)

// DispatchChannel is the LISTEN/NOTIFY channel carrying dispatched job ids.
const DispatchChannel = "transfer_job_dispatched"

const defaultListLimit = 50

// Create persists a new job in the CREATED status. It never dispatches.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.TransferJob, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	args := req.Resource.Args
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	query, err := json.Marshal(req.Query.Normalize())
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}
	result, err := json.Marshal(model.NewJobResult())
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}

	now := r.clock.Now()
	var job *model.TransferJob
	txErr := pgxutil.WithPgxTx(ctx, r.DB, nil, func(tx pgx.Tx) error {
		rows, qerr := tx.Query(ctx, `
			INSERT INTO transfer_jobs
			  (direction, status, resource_key, resource_args, query, file_format, source_file, result, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
			RETURNING `+jobColumns,
			req.Direction, model.StatusCreated, req.Resource.Key, []byte(args), query,
			req.FileFormat, req.SourceFile, result, req.CreatedBy, now,
		)
		if qerr != nil {
			return fmt.Errorf("insert job: %w", qerr)
		}
		defer rows.Close()
		j, cerr := collectJob(rows)
		if cerr != nil {
			return fmt.Errorf("collect job: %w", cerr)
		}
		job = j
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return job, nil
}

// collectJob reads exactly one job from pgx rows.
func collectJob(rows pgx.Rows) (*model.TransferJob, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}
	job, err := scanJob(rows)
	if err != nil {
		return nil, err
	}
	return job, rows.Err()
}

// GetByID retrieves a job by its ID. Malformed ids are reported as not found.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.TransferJob, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrJobNotFound
	}

	var job *model.TransferJob
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, `SELECT `+jobColumns+` FROM transfer_jobs WHERE id = $1`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		job, err = collectJob(rows)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// execAffected runs a conditional update and reports whether any row matched.
func (r *JobRepo) execAffected(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// MarkDispatched records that the job was handed to the queue. Only the first caller for a
// CREATED job wins.
func (r *JobRepo) MarkDispatched(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	now := r.clock.Now()
	ok, err := r.execAffected(ctx, `
		UPDATE transfer_jobs
		SET dispatched_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'CREATED' AND dispatched_at IS NULL
	`, id, now)
	if err != nil {
		return false, fmt.Errorf("mark dispatched: %w", err)
	}
	return ok, nil
}

// ClearDispatched resets the dispatch marker of a job that is still CREATED.
func (r *JobRepo) ClearDispatched(ctx context.Context, id string) error {
	if _, err := r.execAffected(ctx, `
		UPDATE transfer_jobs
		SET dispatched_at = NULL, updated_at = $2
		WHERE id = $1 AND status = 'CREATED'
	`, id, r.clock.Now()); err != nil {
		return fmt.Errorf("clear dispatched: %w", err)
	}
	return nil
}

// Start moves a job from CREATED to its running status and takes the execution lease.
func (r *JobRepo) Start(ctx context.Context, params core.StartJobParams) (bool, error) {
	now := r.clock.Now()
	ok, err := r.execAffected(ctx, `
		UPDATE transfer_jobs
		SET status = $3,
		    started_at = $4,
		    lease_expires_at = $5,
		    updated_at = $4
		WHERE id = $1 AND direction = $2 AND status = 'CREATED'
	`, params.ID, params.Direction, params.Direction.RunningStatus(), now, now.Add(params.Lease))
	if err != nil {
		return false, fmt.Errorf("start job: %w", err)
	}
	return ok, nil
}

// Checkpoint persists progress and extends the lease while the job is still running.
// It returns false once the job has left the running status, e.g. after a cancellation.
func (r *JobRepo) Checkpoint(ctx context.Context, params core.CheckpointParams) (bool, error) {
	result, err := json.Marshal(params.Result)
	if err != nil {
		return false, fmt.Errorf("marshal result: %w", err)
	}
	now := r.clock.Now()
	ok, err := r.execAffected(ctx, `
		UPDATE transfer_jobs
		SET result = $3,
		    lease_expires_at = $4,
		    updated_at = $5
		WHERE id = $1 AND status = $2
	`, params.ID, params.Direction.RunningStatus(), result, now.Add(params.Lease), now)
	if err != nil {
		return false, fmt.Errorf("checkpoint job: %w", err)
	}
	return ok, nil
}

// Heartbeat extends the lease of a running job and leaves its result alone. Like Checkpoint it
// returns false once the job has left the running status.
func (r *JobRepo) Heartbeat(ctx context.Context, params core.HeartbeatParams) (bool, error) {
	ok, err := r.execAffected(ctx, `
		UPDATE transfer_jobs
		SET lease_expires_at = $3
		WHERE id = $1 AND status = $2
	`, params.ID, params.Direction.RunningStatus(), r.clock.Now().Add(params.Lease))
	if err != nil {
		return false, fmt.Errorf("heartbeat job: %w", err)
	}
	return ok, nil
}

// Complete moves a running job to its success status and records the artifact.
func (r *JobRepo) Complete(ctx context.Context, params core.CompleteJobParams) (bool, error) {
	if params.ResultFile == "" {
		return false, errors.New("result file is required")
	}
	result, err := json.Marshal(params.Result)
	if err != nil {
		return false, fmt.Errorf("marshal result: %w", err)
	}
	now := r.clock.Now()
	ok, err := r.execAffected(ctx, `
		UPDATE transfer_jobs
		SET status = $3,
		    result_file = $4,
		    result = $5,
		    finished_at = $6,
		    lease_expires_at = NULL,
		    updated_at = $6
		WHERE id = $1 AND status = $2
	`, params.ID, params.Direction.RunningStatus(), params.Direction.DoneStatus(), params.ResultFile, result, now)
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}
	return ok, nil
}

// Fail moves a running job to its error status.
func (r *JobRepo) Fail(ctx context.Context, params core.FailJobParams) (bool, error) {
	result, err := json.Marshal(params.Result)
	if err != nil {
		return false, fmt.Errorf("marshal result: %w", err)
	}
	now := r.clock.Now()
	ok, err := r.execAffected(ctx, `
		UPDATE transfer_jobs
		SET status = $3,
		    result = $4,
		    finished_at = $5,
		    lease_expires_at = NULL,
		    updated_at = $5
		WHERE id = $1 AND status = $2
	`, params.ID, params.Direction.RunningStatus(), params.Direction.ErrorStatus(), result, now)
	if err != nil {
		return false, fmt.Errorf("fail job: %w", err)
	}
	return ok, nil
}

// Cancel atomically moves a CREATED or running job to CANCELLED. When the job was in any other
// status it returns false and leaves the row untouched.
func (r *JobRepo) Cancel(ctx context.Context, params core.CancelJobParams) (*model.TransferJob, bool, error) {
	now := r.clock.Now()
	row := r.DB.QueryRowContext(ctx, `
		UPDATE transfer_jobs
		SET status = 'CANCELLED',
		    finished_at = $3,
		    lease_expires_at = NULL,
		    updated_at = $3
		WHERE id = $1 AND status = ANY($2)
		RETURNING `+jobColumns,
		params.ID, statusStrings(params.Direction.CancellableStatuses()), now,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cancel job: %w", err)
	}
	return job, true, nil
}

// List returns jobs newest first.
func (r *JobRepo) List(ctx context.Context, params core.ListJobsParams) ([]*model.TransferJob, error) {
	sel := database.Select{
		From:    "transfer_jobs",
		Columns: jobColumnNames,
		OrderBy: []database.OrderTerm{{Column: "created_at", Desc: true}},
		Limit:   params.Limit,
		Offset:  params.Offset,
	}
	if sel.Limit <= 0 {
		sel.Limit = defaultListLimit
	}
	if params.CreatedBy != nil {
		sel.Where = append(sel.Where, database.Compare("created_by", database.OpEq, *params.CreatedBy))
	}
	if params.Direction != "" {
		sel.Where = append(sel.Where, database.Compare("direction", database.OpEq, string(params.Direction)))
	}
	if params.Status != "" {
		sel.Where = append(sel.Where, database.Compare("status", database.OpEq, string(params.Status)))
	}
	if params.Resource != "" {
		sel.Where = append(sel.Where, database.Compare("resource_key", database.OpEq, params.Resource))
	}

	query, args := sel.SQL()
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.TransferJob
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan job: %w", scanErr)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Stats counts jobs per status.
func (r *JobRepo) Stats(ctx context.Context) (model.JobStats, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM transfer_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := model.JobStats{}
	for rows.Next() {
		var status model.JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan job stats: %w", err)
		}
		stats[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return stats, nil
}

// ListDispatched returns ids of dispatched jobs that have not started, oldest dispatch first.
func (r *JobRepo) ListDispatched(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id FROM transfer_jobs
		WHERE status = 'CREATED' AND dispatched_at IS NOT NULL
		ORDER BY dispatched_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dispatched: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan dispatched: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// NotifyDispatched wakes runners blocked in WaitForDispatch.
func (r *JobRepo) NotifyDispatched(ctx context.Context, id string) error {
	if _, err := r.DB.ExecContext(ctx, `SELECT pg_notify($1::text, $2::text)`, DispatchChannel, id); err != nil {
		return fmt.Errorf("notify dispatched: %w", err)
	}
	return nil
}

// WaitForDispatch blocks until a dispatch notification arrives or ctx ends.
func (r *JobRepo) WaitForDispatch(ctx context.Context) error {
	return pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		quoted := pgx.Identifier{DispatchChannel}.Sanitize()
		if _, err := conn.Exec(ctx, "LISTEN "+quoted); err != nil {
			return fmt.Errorf("listen %s: %w", DispatchChannel, err)
		}
		defer func() { _, _ = conn.Exec(context.Background(), "UNLISTEN "+quoted) }()

		_, err := conn.WaitForNotification(ctx)
		return err
	})
}
