package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ResultSchemaVersion is the version written into every persisted JobResult.
const ResultSchemaVersion = 1

// MaxRecordedRowErrors bounds the number of row errors kept on a job; Totals.Failed still counts all of them.
const MaxRecordedRowErrors = 1000

// RowError describes a single failed record.
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ResultTotals holds per-row outcome counters.
type ResultTotals struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// JobResult is the accumulated execution result of a job, persisted as versioned JSON.
type JobResult struct {
	Version   int          `json:"version"`
	Totals    ResultTotals `json:"totals"`
	TotalRows int          `json:"total_rows"`
	Errors    []RowError   `json:"errors"`
	Traceback *string      `json:"traceback,omitempty"`
}

// NewJobResult returns an empty result at the current schema version.
func NewJobResult() JobResult {
	return JobResult{Version: ResultSchemaVersion, Errors: []RowError{}}
}

// DecodeJobResult parses a persisted result. Empty input yields an empty result; versions newer
// than ResultSchemaVersion are rejected.
func DecodeJobResult(raw []byte) (JobResult, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return NewJobResult(), nil
	}
	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return JobResult{}, fmt.Errorf("decode job result: %w", err)
	}
	if probe.Version > ResultSchemaVersion {
		return JobResult{}, fmt.Errorf("unsupported job result version %d", probe.Version)
	}
	res := NewJobResult()
	if err := json.Unmarshal(raw, &res); err != nil {
		return JobResult{}, fmt.Errorf("decode job result: %w", err)
	}
	res.Version = ResultSchemaVersion
	if res.Errors == nil {
		res.Errors = []RowError{}
	}
	return res, nil
}

// RecordSuccess counts n successfully processed rows.
func (r *JobResult) RecordSuccess(n int) {
	r.Totals.Processed += n
	r.Totals.Succeeded += n
}

// RecordSkipped counts n rows that were processed without changes.
func (r *JobResult) RecordSkipped(n int) {
	r.Totals.Processed += n
	r.Totals.Skipped += n
}

// RecordRowError counts a failed row and keeps its descriptor up to MaxRecordedRowErrors.
func (r *JobResult) RecordRowError(e RowError) {
	r.Totals.Processed++
	r.Totals.Failed++
	if len(r.Errors) < MaxRecordedRowErrors {
		r.Errors = append(r.Errors, e)
	}
}

// SetTraceback records a fatal failure.
func (r *JobResult) SetTraceback(tb string) {
	r.Traceback = &tb
}

// HasRowErrors reports whether any row failed.
func (r JobResult) HasRowErrors() bool {
	return r.Totals.Failed > 0
}

// FailureRatio is failed/processed, zero when nothing was processed.
func (r JobResult) FailureRatio() float64 {
	if r.Totals.Processed == 0 {
		return 0
	}
	return float64(r.Totals.Failed) / float64(r.Totals.Processed)
}

// RowErrorMode selects how row-level failures affect the terminal status.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type RowErrorMode string

const (
	// RowErrorFail sends the job to the error terminal state on any row error.
	RowErrorFail RowErrorMode = "fail"
	// RowErrorTolerate completes the job successfully and keeps row errors in the result.
	RowErrorTolerate RowErrorMode = "tolerate"
	// RowErrorRatio fails the job only when the failure ratio exceeds RowErrorPolicy.MaxRatio.
	RowErrorRatio RowErrorMode = "ratio"
)

// Valid returns true if the mode is known.
func (m RowErrorMode) Valid() bool {
	return m == RowErrorFail || m == RowErrorTolerate || m == RowErrorRatio
}

// UnmarshalText implements encoding.TextUnmarshaler for env parsing.
func (m *RowErrorMode) UnmarshalText(text []byte) error {
	v := RowErrorMode(strings.ToLower(strings.TrimSpace(string(text))))
	if v == "" {
		*m = RowErrorFail
		return nil
	}
	if !v.Valid() {
		return fmt.Errorf("invalid row error mode: %q", v)
	}
	*m = v
	return nil
}

// RowErrorPolicy decides whether accumulated row errors are fatal for a job.
type RowErrorPolicy struct {
	Mode     RowErrorMode
	MaxRatio float64
}

// DefaultRowErrorPolicy fails a job on any row error.
func DefaultRowErrorPolicy() RowErrorPolicy {
	return RowErrorPolicy{Mode: RowErrorFail}
}

// Fatal reports whether res must end in the error terminal state.
func (p RowErrorPolicy) Fatal(res JobResult) bool {
	if !res.HasRowErrors() {
		return false
	}
	switch p.Mode {
	case RowErrorTolerate:
		return false
	case RowErrorRatio:
		return res.FailureRatio() > p.MaxRatio
	default:
		return true
	}
}

// String renders the policy for logs.
func (p RowErrorPolicy) String() string {
	if p.Mode == RowErrorRatio {
		return string(p.Mode) + ":" + strconv.FormatFloat(p.MaxRatio, 'f', -1, 64)
	}
	if p.Mode == "" {
		return string(RowErrorFail)
	}
	return string(p.Mode)
}
