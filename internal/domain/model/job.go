// Package model defines the core data types shared by the dataport job engine.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Direction distinguishes export jobs from import jobs.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type Direction string

// JobStatus is the persisted, direction-specific status of a transfer job.
type JobStatus string

// Phase is the direction-independent position of a status in the job state machine.
type Phase string

const (
	// DirectionExport reads records from a resource and writes an artifact.
	DirectionExport Direction = "export"
	// DirectionImport reads an artifact and writes records into a resource.
	DirectionImport Direction = "import"

	StatusCreated     JobStatus = "CREATED"
	StatusExporting   JobStatus = "EXPORTING"
	StatusExported    JobStatus = "EXPORTED"
	StatusExportError JobStatus = "EXPORT_ERROR"
	StatusImporting   JobStatus = "IMPORTING"
	StatusImported    JobStatus = "IMPORTED"
	StatusImportError JobStatus = "IMPORT_ERROR"
	StatusCancelled   JobStatus = "CANCELLED"

	PhaseCreated   Phase = "created"
	PhaseRunning   Phase = "running"
	PhaseDone      Phase = "done"
	PhaseError     Phase = "error"
	PhaseCancelled Phase = "cancelled"
)

// Valid returns true if the Direction is known.
func (d Direction) Valid() bool {
	return d == DirectionExport || d == DirectionImport
}

// UnmarshalText implements encoding.TextUnmarshaler so directions can come from paths and flags.
func (d *Direction) UnmarshalText(text []byte) error {
	v := Direction(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid direction: %q", v)
	}
	*d = v
	return nil
}

// RunningStatus returns the in-progress status for the direction.
func (d Direction) RunningStatus() JobStatus {
	if d == DirectionImport {
		return StatusImporting
	}
	return StatusExporting
}

// DoneStatus returns the success terminal status for the direction.
func (d Direction) DoneStatus() JobStatus {
	if d == DirectionImport {
		return StatusImported
	}
	return StatusExported
}

// ErrorStatus returns the error terminal status for the direction.
func (d Direction) ErrorStatus() JobStatus {
	if d == DirectionImport {
		return StatusImportError
	}
	return StatusExportError
}

// JobName is the human readable entity name used in user-facing messages.
func (d Direction) JobName() string {
	if d == DirectionImport {
		return "ImportJob"
	}
	return "ExportJob"
}

// CancellableStatuses lists the statuses from which a job of this direction may be cancelled.
func (d Direction) CancellableStatuses() []JobStatus {
	var out []JobStatus
	for _, s := range d.Statuses() {
		if CanTransition(d, s, StatusCancelled) {
			out = append(out, s)
		}
	}
	return out
}

// Statuses lists every status a job of this direction can hold.
func (d Direction) Statuses() []JobStatus {
	return []JobStatus{StatusCreated, d.RunningStatus(), d.DoneStatus(), d.ErrorStatus(), StatusCancelled}
}

// Allows reports whether s is a status that a job of this direction can hold.
func (d Direction) Allows(s JobStatus) bool {
	return slices.Contains(d.Statuses(), s)
}

// Phase maps a status onto the direction-independent state machine.
func (s JobStatus) Phase() Phase {
	switch s {
	case StatusCreated:
		return PhaseCreated
	case StatusExporting, StatusImporting:
		return PhaseRunning
	case StatusExported, StatusImported:
		return PhaseDone
	case StatusExportError, StatusImportError:
		return PhaseError
	case StatusCancelled:
		return PhaseCancelled
	default:
		return ""
	}
}

// Valid returns true if the JobStatus is known.
func (s JobStatus) Valid() bool {
	return s.Phase() != ""
}

// IsTerminal reports whether no further transition can leave s.
func (s JobStatus) IsTerminal() bool {
	switch s.Phase() {
	case PhaseDone, PhaseError, PhaseCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether from→to is an edge of the state machine for direction d.
// Edges: CREATED→RUNNING, CREATED→CANCELLED, RUNNING→{DONE, ERROR, CANCELLED}.
func CanTransition(d Direction, from, to JobStatus) bool {
	if !d.Allows(from) || !d.Allows(to) {
		return false
	}
	switch from.Phase() {
	case PhaseCreated:
		return to == d.RunningStatus() || to == StatusCancelled
	case PhaseRunning:
		return to == d.DoneStatus() || to == d.ErrorStatus() || to == StatusCancelled
	default:
		return false
	}
}

// TransferJob is one export or import attempt and its accumulated result.
type TransferJob struct {
	ID             string             `json:"id"                         db:"id"`
	Direction      Direction          `json:"direction"                  db:"direction"`
	Status         JobStatus          `json:"status"                     db:"status"`
	Resource       ResourceDescriptor `json:"resource"                   db:"resource"`
	Query          QueryKwargs        `json:"query"                      db:"query"`
	FileFormat     string             `json:"file_format"                db:"file_format"`
	SourceFile     *string            `json:"source_file,omitempty"      db:"source_file"`
	ResultFile     *string            `json:"result_file,omitempty"      db:"result_file"`
	Result         JobResult          `json:"result"                     db:"result"`
	CreatedBy      *string            `json:"created_by,omitempty"       db:"created_by"`
	DispatchedAt   *time.Time         `json:"dispatched_at,omitempty"    db:"dispatched_at"`
	StartedAt      *time.Time         `json:"started_at,omitempty"       db:"started_at"`
	FinishedAt     *time.Time         `json:"finished_at,omitempty"      db:"finished_at"`
	LeaseExpiresAt *time.Time         `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt      time.Time          `json:"created_at"                 db:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"                 db:"updated_at"`
}

// VisibleTo reports whether requester may read the job. Jobs without an owner are visible to everyone.
func (j *TransferJob) VisibleTo(requester string) bool {
	return j.CreatedBy == nil || *j.CreatedBy == requester
}

// CreateJobRequest is the input to the job factory.
type CreateJobRequest struct {
	Direction  Direction          `json:"direction"`
	Resource   ResourceDescriptor `json:"resource"`
	Query      QueryKwargs        `json:"query"`
	FileFormat string             `json:"file_format"`
	SourceFile *string            `json:"source_file,omitempty"`
	CreatedBy  *string            `json:"created_by,omitempty"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if !r.Direction.Valid() {
		return errors.New("invalid direction")
	}
	if strings.TrimSpace(r.Resource.Key) == "" {
		return errors.New("resource is required")
	}
	if len(r.Resource.Args) > 0 && !json.Valid(r.Resource.Args) {
		return errors.New("resource args must be valid JSON")
	}
	if strings.TrimSpace(r.FileFormat) == "" {
		return errors.New("file format is required")
	}
	if r.Direction == DirectionImport && (r.SourceFile == nil || *r.SourceFile == "") {
		return errors.New("source file is required for imports")
	}
	if r.Direction == DirectionExport && r.SourceFile != nil {
		return errors.New("source file is only accepted for imports")
	}
	return nil
}

// JobStats counts jobs per status.
type JobStats map[JobStatus]int
