package model

// Record is one row exchanged between a resource and a codec, keyed by column name.
type Record map[string]any

// ImportRow is a decoded record together with its 1-based position in the source file.
type ImportRow struct {
	Index  int
	Values Record
}

// RowOutcomeStatus is the per-row result of an import.
type RowOutcomeStatus string

const (
	RowApplied RowOutcomeStatus = "applied"
	RowSkipped RowOutcomeStatus = "skipped"
	RowFailed  RowOutcomeStatus = "failed"
)

// RowOutcome reports what happened to one ImportRow.
type RowOutcome struct {
	Index   int
	Status  RowOutcomeStatus
	Field   string
	Message string
}

// Apply folds outcomes into r.
func (r *JobResult) Apply(outcomes []RowOutcome) {
	for _, o := range outcomes {
		switch o.Status {
		case RowApplied:
			r.RecordSuccess(1)
		case RowSkipped:
			r.RecordSkipped(1)
		default:
			r.RecordRowError(RowError{Row: o.Index, Field: o.Field, Message: o.Message})
		}
	}
}
