package model

import "time"

// Progress reports how far a running job has come.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Percent returns completion in whole percent, 0 when the total is unknown.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	pct := p.Current * 100 / p.Total
	return min(pct, 100)
}

// JobView is the read model returned to pollers.
type JobView struct {
	ID         string       `json:"id"`
	Direction  Direction    `json:"direction"`
	Resource   string       `json:"resource"`
	FileFormat string       `json:"file_format"`
	Status     JobStatus    `json:"status"`
	Phase      Phase        `json:"phase"`
	Finished   bool         `json:"finished"`
	Progress   Progress     `json:"progress"`
	Percent    int          `json:"percent"`
	Totals     ResultTotals `json:"totals"`
	ResultFile *string      `json:"result_file,omitempty"`
	Errors     []RowError   `json:"errors,omitempty"`
	Traceback  *string      `json:"traceback,omitempty"`
	CreatedBy  *string      `json:"created_by,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

// NewJobView builds the poller view of j. A nil live progress falls back to the persisted totals.
func NewJobView(j *TransferJob, live *Progress) JobView {
	progress := Progress{Current: j.Result.Totals.Processed, Total: j.Result.TotalRows}
	if live != nil && live.Current >= progress.Current {
		progress = *live
	}
	v := JobView{
		ID:         j.ID,
		Direction:  j.Direction,
		Resource:   j.Resource.Key,
		FileFormat: j.FileFormat,
		Status:     j.Status,
		Phase:      j.Status.Phase(),
		Finished:   j.Status.IsTerminal(),
		Progress:   progress,
		Percent:    progress.Percent(),
		Totals:     j.Result.Totals,
		ResultFile: j.ResultFile,
		Traceback:  j.Result.Traceback,
		CreatedBy:  j.CreatedBy,
		CreatedAt:  j.CreatedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
	}
	if len(j.Result.Errors) > 0 {
		v.Errors = j.Result.Errors
	}
	return v
}
