package data

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/target/mmk-dataport/internal/domain/model"
	apperrors "github.com/target/mmk-dataport/internal/errors"
)

var (
	// ErrJobNotFound is returned when a job is not found. It carries the not_found code so callers
	// can use apperrors.IsNotFound.
	ErrJobNotFound = apperrors.NotFound("job not found")
)

// RepoConfig configures NewJobRepo. Zero values fall back to slog.Default and the system clock.
type RepoConfig struct {
	Logger *slog.Logger
	Clock  Clock
}

// JobRepo provides database operations for transfer jobs. Every status write is a conditional
// update keyed on the expected current status.
type JobRepo struct {
	DB     *sql.DB
	clock  Clock
	logger *slog.Logger
}

// NewJobRepo returns a repository over the transfer_jobs table in db.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JobRepo{
		DB:     db,
		clock:  clock,
		logger: logger.With("component", "job_repo"),
	}
}

var jobColumnNames = []string{
	"id",
	"direction",
	"status",
	"resource_key",
	"resource_args",
	"query",
	"file_format",
	"source_file",
	"result_file",
	"result",
	"created_by",
	"dispatched_at",
	"started_at",
	"finished_at",
	"lease_expires_at",
	"created_at",
	"updated_at",
}

var jobColumns = strings.Join(jobColumnNames, ", ")

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	resourceArgs, query, result                         []byte
	sourceFile, resultFile, createdBy                   sql.NullString
	dispatchedAt, startedAt, finishedAt, leaseExpiresAt sql.NullTime
}

func (d *jobRowData) scanInto(scanner jobRowScanner, job *model.TransferJob) error {
	return scanner.Scan(
		&job.ID,
		&job.Direction,
		&job.Status,
		&job.Resource.Key,
		&d.resourceArgs,
		&d.query,
		&job.FileFormat,
		&d.sourceFile,
		&d.resultFile,
		&d.result,
		&d.createdBy,
		&d.dispatchedAt,
		&d.startedAt,
		&d.finishedAt,
		&d.leaseExpiresAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
}

func (d *jobRowData) apply(job *model.TransferJob) error {
	job.Resource.Args = cloneJSON(d.resourceArgs)

	var q model.QueryKwargs
	if len(d.query) > 0 {
		if err := json.Unmarshal(d.query, &q); err != nil {
			return fmt.Errorf("decode query: %w", err)
		}
	}
	job.Query = q.Normalize()

	res, err := model.DecodeJobResult(d.result)
	if err != nil {
		return err
	}
	job.Result = res

	job.SourceFile = cloneNullableString(d.sourceFile)
	job.ResultFile = cloneNullableString(d.resultFile)
	job.CreatedBy = cloneNullableString(d.createdBy)
	job.DispatchedAt = cloneNullableTime(d.dispatchedAt)
	job.StartedAt = cloneNullableTime(d.startedAt)
	job.FinishedAt = cloneNullableTime(d.finishedAt)
	job.LeaseExpiresAt = cloneNullableTime(d.leaseExpiresAt)
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return nil
}

func scanJob(scanner jobRowScanner) (*model.TransferJob, error) {
	job := &model.TransferJob{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}
	if err := data.apply(job); err != nil {
		return nil, fmt.Errorf("job %s: %w", job.ID, err)
	}
	return job, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func statusStrings(statuses []model.JobStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
