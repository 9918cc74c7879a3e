package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/target/mmk-dataport/internal/core"
	"github.com/target/mmk-dataport/internal/domain/model"
	"github.com/target/mmk-dataport/internal/observability/metrics"
)

// jobRun is the state of one claimed job while the executor drives it.
type jobRun struct {
	exec      *Executor
	job       *model.TransferJob
	result    model.JobResult
	startedAt time.Time
}

// runOutput is what a successful run hands to finish: the artifact to store on success.
type runOutput struct {
	key     string
	payload []byte
}

func (r *jobRun) runSafely(ctx context.Context) (out runOutput, err error) {
	defer recoverPanic(&err)

	resource, err := r.exec.resources.Open(r.job.Resource)
	if err != nil {
		return runOutput{}, err
	}
	codec, err := r.exec.codecs.Get(r.job.FileFormat)
	if err != nil {
		return runOutput{}, err
	}

	if r.job.Direction == model.DirectionImport {
		return r.runImport(ctx, resource, codec)
	}
	return r.runExport(ctx, resource, codec)
}

func (r *jobRun) runExport(ctx context.Context, resource core.Resource, codec core.Codec) (runOutput, error) {
	total, err := resource.Count(ctx, r.job.Query)
	if err != nil {
		return runOutput{}, fmt.Errorf("count records: %w", err)
	}
	if total >= 0 {
		r.result.TotalRows = total
	}
	if err := r.checkpoint(ctx); err != nil {
		return runOutput{}, err
	}

	cursor, err := resource.Export(ctx, r.job.Query)
	if err != nil {
		return runOutput{}, fmt.Errorf("export records: %w", err)
	}
	defer cursor.Close()

	var buf bytes.Buffer
	enc, err := codec.NewEncoder(&buf, resource.Columns())
	if err != nil {
		return runOutput{}, fmt.Errorf("create %s encoder: %w", codec.Format(), err)
	}

	pending := 0
	for cursor.Next() {
		if err := enc.Encode(cursor.Record()); err != nil {
			return runOutput{}, fmt.Errorf("encode record %d: %w", r.result.Totals.Processed+1, err)
		}
		r.result.RecordSuccess(1)
		pending++
		if pending == r.exec.batchSize {
			r.emitRows(pending, 0, 0)
			pending = 0
			if err := r.checkpoint(ctx); err != nil {
				return runOutput{}, err
			}
		}
	}
	if err := cursor.Err(); err != nil {
		return runOutput{}, fmt.Errorf("read records: %w", err)
	}
	if err := enc.Close(); err != nil {
		return runOutput{}, fmt.Errorf("flush %s encoder: %w", codec.Format(), err)
	}
	r.emitRows(pending, 0, 0)
	if total < 0 || r.result.TotalRows < r.result.Totals.Processed {
		r.result.TotalRows = r.result.Totals.Processed
	}

	return runOutput{
		key:     fmt.Sprintf("exports/%s/%s.%s", r.job.Resource.Key, r.job.ID, codec.Extension()),
		payload: buf.Bytes(),
	}, nil
}

func (r *jobRun) runImport(ctx context.Context, resource core.Resource, codec core.Codec) (runOutput, error) {
	if r.job.SourceFile == nil {
		return runOutput{}, errors.New("import job has no source file")
	}
	rows, err := r.readSource(ctx, codec, *r.job.SourceFile)
	if err != nil {
		return runOutput{}, err
	}
	r.result.TotalRows = len(rows)
	if err := r.checkpoint(ctx); err != nil {
		return runOutput{}, err
	}

	for start := 0; start < len(rows); start += r.exec.batchSize {
		batch := rows[start:min(start+r.exec.batchSize, len(rows))]
		outcomes, err := resource.ImportBatch(ctx, batch)
		if err != nil {
			return runOutput{}, fmt.Errorf("import rows %d-%d: %w", batch[0].Index, batch[len(batch)-1].Index, err)
		}
		if len(outcomes) != len(batch) {
			return runOutput{}, fmt.Errorf("resource reported %d outcomes for %d rows", len(outcomes), len(batch))
		}

		before := r.result.Totals
		r.result.Apply(outcomes)
		r.emitRows(
			r.result.Totals.Succeeded-before.Succeeded,
			r.result.Totals.Failed-before.Failed,
			r.result.Totals.Skipped-before.Skipped,
		)
		if err := r.checkpoint(ctx); err != nil {
			return runOutput{}, err
		}
	}

	report, err := json.Marshal(importReport{JobID: r.job.ID, SourceFile: *r.job.SourceFile, Result: r.result})
	if err != nil {
		return runOutput{}, fmt.Errorf("render import report: %w", err)
	}
	return runOutput{
		key:     fmt.Sprintf("imports/%s/%s.report.json", r.job.Resource.Key, r.job.ID),
		payload: report,
	}, nil
}

// importReport is the artifact stored as result_file of a successful import.
type importReport struct {
	JobID      string          `json:"job_id"`
	SourceFile string          `json:"source_file"`
	Result     model.JobResult `json:"result"`
}

// readSource decodes the whole source file up front so decode errors fail the job before any
// row is written.
func (r *jobRun) readSource(ctx context.Context, codec core.Codec, uri string) ([]model.ImportRow, error) {
	rc, err := r.exec.artifacts.Open(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("open source file: %w", err)
	}
	defer rc.Close()

	dec, err := codec.NewDecoder(rc)
	if err != nil {
		return nil, fmt.Errorf("create %s decoder: %w", codec.Format(), err)
	}

	var rows []model.ImportRow
	for {
		rec, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, model.ImportRow{Index: len(rows) + 1, Values: rec})
	}
}

// checkpoint persists progress and renews the lease. It returns errJobLeftRunning when the job
// is no longer RUNNING, which is how cancellation reaches a running job.
func (r *jobRun) checkpoint(ctx context.Context) error {
	ok, err := r.exec.repo.Checkpoint(ctx, core.CheckpointParams{
		ID:        r.job.ID,
		Direction: r.job.Direction,
		Result:    r.result,
		Lease:     r.exec.leasePolicy.Lease(),
	})
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if !ok {
		return errJobLeftRunning
	}
	r.publishProgress(ctx)
	return nil
}

// startHeartbeat renews the lease in the background so long blocking steps keep the job alive.
// A renewal that no longer matches a running job cancels the run with errJobLeftRunning. The
// returned function stops the heartbeat and waits for it to exit.
func (r *jobRun) startHeartbeat(ctx context.Context, cancelRun context.CancelCauseFunc) func() {
	ticker := time.NewTicker(r.exec.heartbeat)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ok, err := r.renewLease(ctx)
				if err != nil {
					r.exec.logger.WarnContext(ctx, "lease renewal failed", "id", r.job.ID, "error", err)
					continue
				}
				if !ok {
					r.exec.logger.DebugContext(ctx, "lease not renewed, job left running status", "id", r.job.ID)
					cancelRun(errJobLeftRunning)
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		wg.Wait()
	}
}

func (r *jobRun) renewLease(ctx context.Context) (bool, error) {
	return r.exec.repo.Heartbeat(ctx, core.HeartbeatParams{
		ID:        r.job.ID,
		Direction: r.job.Direction,
		Lease:     r.exec.leasePolicy.Lease(),
	})
}

func (r *jobRun) publishProgress(ctx context.Context) {
	if r.exec.progress == nil {
		return
	}
	p := model.Progress{Current: r.result.Totals.Processed, Total: r.result.TotalRows}
	if err := r.exec.progress.Set(ctx, r.job.ID, p); err != nil {
		r.exec.logger.WarnContext(ctx, "failed to publish progress", "id", r.job.ID, "error", err)
	}
}

func (r *jobRun) clearProgress(ctx context.Context) {
	if r.exec.progress == nil {
		return
	}
	if err := r.exec.progress.Delete(ctx, r.job.ID); err != nil {
		r.exec.logger.WarnContext(ctx, "failed to clear progress", "id", r.job.ID, "error", err)
	}
}

func (r *jobRun) emitRows(succeeded, failed, skipped int) {
	metrics.EmitRows(r.exec.metrics, metrics.RowsMetric{
		Direction: string(r.job.Direction),
		Resource:  r.job.Resource.Key,
		Succeeded: succeeded,
		Failed:    failed,
		Skipped:   skipped,
	})
}

// finish writes the terminal status. Final writes use a context detached from cancellation so a
// worker shutdown still records the outcome.
func (r *jobRun) finish(ctx context.Context, out runOutput, runErr error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
	defer cancel()
	defer r.clearProgress(wctx)

	switch {
	case errors.Is(runErr, errJobLeftRunning):
		r.stopped(wctx)
	case runErr != nil:
		r.fail(wctx, runErr)
	case r.exec.rowErrors.Fatal(r.result):
		r.fail(wctx, nil)
	default:
		r.complete(wctx, out)
	}
}

func (r *jobRun) complete(ctx context.Context, out runOutput) {
	// Confirm the job is still running right before the write-once artifact is stored.
	running, err := r.renewLease(ctx)
	if err != nil {
		r.exec.logger.WarnContext(ctx, "lease renewal before storing result failed", "id", r.job.ID, "error", err)
	} else if !running {
		r.stopped(ctx)
		return
	}

	uri, err := r.exec.artifacts.Put(ctx, out.key, bytes.NewReader(out.payload))
	if err != nil {
		r.fail(ctx, fmt.Errorf("store result file: %w", err))
		return
	}

	ok, err := r.exec.repo.Complete(ctx, core.CompleteJobParams{
		ID:         r.job.ID,
		Direction:  r.job.Direction,
		ResultFile: uri,
		Result:     r.result,
	})
	if err != nil {
		r.exec.logger.ErrorContext(ctx, "failed to complete job", "id", r.job.ID, "error", err)
		r.exec.emit(r.job, metrics.TransitionComplete, metrics.ResultError, time.Since(r.startedAt), err)
		return
	}
	if !ok {
		r.discardArtifact(ctx, uri)
		r.stopped(ctx)
		return
	}

	r.exec.emit(r.job, metrics.TransitionComplete, metrics.ResultSuccess, time.Since(r.startedAt), nil)
	r.exec.logger.InfoContext(ctx, "job finished",
		"id", r.job.ID,
		"status", r.job.Direction.DoneStatus(),
		"result_file", uri,
		"processed", r.result.Totals.Processed,
		"failed", r.result.Totals.Failed,
	)
}

// discardArtifact removes a result file that no job row will reference.
func (r *jobRun) discardArtifact(ctx context.Context, uri string) {
	if err := r.exec.artifacts.Delete(ctx, uri); err != nil {
		r.exec.logger.WarnContext(ctx, "failed to remove unreferenced result file", "id", r.job.ID, "uri", uri, "error", err)
	}
}

// fail moves the job to its error status. A nil cause means the row-error policy rejected the result.
func (r *jobRun) fail(ctx context.Context, cause error) {
	if cause != nil {
		r.result.SetTraceback(traceback(cause))
	}

	ok, err := r.exec.repo.Fail(ctx, core.FailJobParams{
		ID:        r.job.ID,
		Direction: r.job.Direction,
		Result:    r.result,
	})
	if err != nil {
		r.exec.logger.ErrorContext(ctx, "failed to record job failure", "id", r.job.ID, "error", err, "cause", cause)
		return
	}
	if !ok {
		r.stopped(ctx)
		return
	}

	metricErr := cause
	if metricErr == nil {
		metricErr = fmt.Errorf("%d row errors", r.result.Totals.Failed)
	}
	r.exec.emit(r.job, metrics.TransitionFail, metrics.ResultError, time.Since(r.startedAt), metricErr)
	r.exec.logger.WarnContext(ctx, "job failed",
		"id", r.job.ID,
		"status", r.job.Direction.ErrorStatus(),
		"row_errors", r.result.Totals.Failed,
		"error", cause,
	)
}

// stopped handles a job that left RUNNING under the executor, normally through cancellation.
// Progress persisted by earlier checkpoints is left untouched.
func (r *jobRun) stopped(ctx context.Context) {
	status := model.JobStatus("unknown")
	if current, err := r.exec.repo.GetByID(ctx, r.job.ID); err == nil {
		status = current.Status
	}
	if status == model.StatusCancelled {
		r.exec.emit(r.job, metrics.TransitionCancel, metrics.ResultSuccess, time.Since(r.startedAt), nil)
	}
	r.exec.logger.InfoContext(ctx, "job stopped before finishing",
		"id", r.job.ID,
		"status", status,
		"processed", r.result.Totals.Processed,
	)
}
