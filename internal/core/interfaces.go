// Package core defines the ports between the transfer job engine and its adapters.
package core

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/target/mmk-dataport/internal/domain/model"
	"github.com/target/mmk-dataport/internal/filterspec"
)

// This file contains the ports between the job engine and its collaborators.
// Service implementations depend on these interfaces, not on concrete adapters.

// JobRepository defines persistence for transfer jobs. Methods returning bool report whether the
// conditional update matched; false means the job was not in the expected status.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.TransferJob, error)
	GetByID(ctx context.Context, id string) (*model.TransferJob, error)
	MarkDispatched(ctx context.Context, id string) (bool, error)
	ClearDispatched(ctx context.Context, id string) error
	Start(ctx context.Context, params StartJobParams) (bool, error)
	Checkpoint(ctx context.Context, params CheckpointParams) (bool, error)
	Heartbeat(ctx context.Context, params HeartbeatParams) (bool, error)
	Complete(ctx context.Context, params CompleteJobParams) (bool, error)
	Fail(ctx context.Context, params FailJobParams) (bool, error)
	Cancel(ctx context.Context, params CancelJobParams) (*model.TransferJob, bool, error)
	List(ctx context.Context, params ListJobsParams) ([]*model.TransferJob, error)
	Stats(ctx context.Context) (model.JobStats, error)
}

// DispatchFeed is implemented by repositories that can act as a work queue for dispatched jobs.
type DispatchFeed interface {
	ListDispatched(ctx context.Context, limit int) ([]string, error)
	NotifyDispatched(ctx context.Context, id string) error
	WaitForDispatch(ctx context.Context) error
}

// ReaperRepository defines maintenance operations run by the reaper.
type ReaperRepository interface {
	FailExpiredLeases(ctx context.Context, batchSize int) (int64, error)
	RedispatchStale(ctx context.Context, params RedispatchStaleParams) ([]string, error)
}

// StartJobParams groups parameters for JobRepository.Start.
type StartJobParams struct {
	ID        string
	Direction model.Direction
	Lease     time.Duration
}

// CheckpointParams groups parameters for JobRepository.Checkpoint.
type CheckpointParams struct {
	ID        string
	Direction model.Direction
	Result    model.JobResult
	Lease     time.Duration
}

// HeartbeatParams groups parameters for JobRepository.Heartbeat.
type HeartbeatParams struct {
	ID        string
	Direction model.Direction
	Lease     time.Duration
}

// CompleteJobParams groups parameters for JobRepository.Complete.
type CompleteJobParams struct {
	ID         string
	Direction  model.Direction
	ResultFile string
	Result     model.JobResult
}

// FailJobParams groups parameters for JobRepository.Fail.
type FailJobParams struct {
	ID        string
	Direction model.Direction
	Result    model.JobResult
}

// CancelJobParams groups parameters for JobRepository.Cancel.
type CancelJobParams struct {
	ID        string
	Direction model.Direction
}

// ListJobsParams filters JobRepository.List.
type ListJobsParams struct {
	CreatedBy *string
	Direction model.Direction
	Status    model.JobStatus
	Resource  string
	Limit     int
	Offset    int
}

// RedispatchStaleParams groups parameters for ReaperRepository.RedispatchStale.
type RedispatchStaleParams struct {
	OlderThan time.Duration
	BatchSize int
}

// Queue hands dispatched job ids to the background executor. Delivery is at-least-once.
type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
}

// RecordCursor is a single-pass sequence of records.
type RecordCursor interface {
	Next() bool
	Record() model.Record
	Err() error
	Close() error
}

// Resource reads and writes the records of one dataset.
type Resource interface {
	// Columns lists the exported columns in order.
	Columns() []string
	// Count returns how many records Export will yield for query, or -1 if unknown.
	Count(ctx context.Context, query model.QueryKwargs) (int, error)
	Export(ctx context.Context, query model.QueryKwargs) (RecordCursor, error)
	// ImportBatch applies rows and reports one outcome per row. A returned error is fatal for the job.
	ImportBatch(ctx context.Context, rows []model.ImportRow) ([]model.RowOutcome, error)
}

// ResourceFactory builds a Resource from descriptor arguments.
type ResourceFactory func(args json.RawMessage) (Resource, error)

// ResourceRegistry resolves resource keys.
type ResourceRegistry interface {
	Open(desc model.ResourceDescriptor) (Resource, error)
	Resolver(key string) (*filterspec.Resolver, error)
	Has(key string) bool
}

// RecordEncoder writes records in a file format.
type RecordEncoder interface {
	Encode(rec model.Record) error
	Close() error
}

// RecordDecoder reads records from a file format. Next returns io.EOF after the last record.
type RecordDecoder interface {
	Next() (model.Record, error)
}

// Codec converts between records and a serialized file format.
type Codec interface {
	Format() string
	Extension() string
	ContentType() string
	NewEncoder(w io.Writer, columns []string) (RecordEncoder, error)
	NewDecoder(r io.Reader) (RecordDecoder, error)
}

// CodecRegistry resolves file format ids.
type CodecRegistry interface {
	Get(format string) (Codec, error)
	Has(format string) bool
}

// ArtifactStore persists job artifacts. Put is write-once per key. Delete of a missing artifact
// is not an error.
type ArtifactStore interface {
	Put(ctx context.Context, key string, r io.Reader) (string, error)
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
	Delete(ctx context.Context, uri string) error
}

// ProgressStore keeps live progress for running jobs.
type ProgressStore interface {
	Set(ctx context.Context, jobID string, p model.Progress) error
	// Get returns nil without error when no progress is recorded.
	Get(ctx context.Context, jobID string) (*model.Progress, error)
	Delete(ctx context.Context, jobID string) error
}
