package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestDirection_UnmarshalText(t *testing.T) {
	var d Direction
	require.NoError(t, d.UnmarshalText([]byte(" Export ")))
	assert.Equal(t, DirectionExport, d)

	require.Error(t, d.UnmarshalText([]byte("sideways")))
	assert.Equal(t, DirectionExport, d, "failed unmarshal must not overwrite")
}

func TestDirection_Statuses(t *testing.T) {
	assert.Equal(t, StatusExporting, DirectionExport.RunningStatus())
	assert.Equal(t, StatusExported, DirectionExport.DoneStatus())
	assert.Equal(t, StatusExportError, DirectionExport.ErrorStatus())
	assert.Equal(t, StatusImporting, DirectionImport.RunningStatus())
	assert.Equal(t, StatusImported, DirectionImport.DoneStatus())
	assert.Equal(t, StatusImportError, DirectionImport.ErrorStatus())

	assert.Equal(t, []JobStatus{StatusCreated, StatusExporting}, DirectionExport.CancellableStatuses())
	assert.Equal(t, []JobStatus{StatusCreated, StatusImporting}, DirectionImport.CancellableStatuses())

	assert.True(t, DirectionExport.Allows(StatusCancelled))
	assert.False(t, DirectionExport.Allows(StatusImporting))
	assert.Equal(t, "ExportJob", DirectionExport.JobName())
	assert.Equal(t, "ImportJob", DirectionImport.JobName())
}

func TestJobStatus_PhaseAndTerminal(t *testing.T) {
	tests := []struct {
		status   JobStatus
		phase    Phase
		terminal bool
	}{
		{StatusCreated, PhaseCreated, false},
		{StatusExporting, PhaseRunning, false},
		{StatusImporting, PhaseRunning, false},
		{StatusExported, PhaseDone, true},
		{StatusImported, PhaseDone, true},
		{StatusExportError, PhaseError, true},
		{StatusImportError, PhaseError, true},
		{StatusCancelled, PhaseCancelled, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.phase, tt.status.Phase())
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.True(t, tt.status.Valid())
		})
	}
	assert.False(t, JobStatus("PARSING").Valid())
	assert.False(t, JobStatus("PARSING").IsTerminal())
}

func TestCanTransition(t *testing.T) {
	for _, d := range []Direction{DirectionExport, DirectionImport} {
		t.Run(string(d), func(t *testing.T) {
			running, done, failed := d.RunningStatus(), d.DoneStatus(), d.ErrorStatus()

			assert.True(t, CanTransition(d, StatusCreated, running))
			assert.True(t, CanTransition(d, StatusCreated, StatusCancelled))
			assert.True(t, CanTransition(d, running, done))
			assert.True(t, CanTransition(d, running, failed))
			assert.True(t, CanTransition(d, running, StatusCancelled))

			// skipping RUNNING is not allowed
			assert.False(t, CanTransition(d, StatusCreated, done))
			assert.False(t, CanTransition(d, StatusCreated, failed))
			// terminal states never leave
			for _, from := range []JobStatus{done, failed, StatusCancelled} {
				for _, to := range d.Statuses() {
					assert.False(t, CanTransition(d, from, to), "%s -> %s", from, to)
				}
			}
			// no reversal
			assert.False(t, CanTransition(d, running, StatusCreated))
		})
	}
	assert.False(t, CanTransition(DirectionExport, StatusCreated, StatusImporting))
}

func TestTransferJob_VisibleTo(t *testing.T) {
	anon := &TransferJob{}
	assert.True(t, anon.VisibleTo("alice"))
	assert.True(t, anon.VisibleTo(""))

	owned := &TransferJob{CreatedBy: strPtr("alice")}
	assert.True(t, owned.VisibleTo("alice"))
	assert.False(t, owned.VisibleTo("bob"))
	assert.False(t, owned.VisibleTo(""))
}

func TestCreateJobRequest_Validate(t *testing.T) {
	valid := func() CreateJobRequest {
		return CreateJobRequest{
			Direction:  DirectionExport,
			Resource:   ResourceDescriptor{Key: "artists"},
			FileFormat: "csv",
		}
	}

	tests := []struct {
		name    string
		mutate  func(r *CreateJobRequest)
		wantErr string
	}{
		{name: "valid export", mutate: func(*CreateJobRequest) {}},
		{name: "bad direction", mutate: func(r *CreateJobRequest) { r.Direction = "x" }, wantErr: "invalid direction"},
		{name: "missing resource", mutate: func(r *CreateJobRequest) { r.Resource.Key = " " }, wantErr: "resource is required"},
		{
			name:    "invalid args",
			mutate:  func(r *CreateJobRequest) { r.Resource.Args = []byte("{") },
			wantErr: "resource args must be valid JSON",
		},
		{name: "missing format", mutate: func(r *CreateJobRequest) { r.FileFormat = "" }, wantErr: "file format is required"},
		{
			name:    "import without source",
			mutate:  func(r *CreateJobRequest) { r.Direction = DirectionImport },
			wantErr: "source file is required for imports",
		},
		{
			name: "import with source",
			mutate: func(r *CreateJobRequest) {
				r.Direction = DirectionImport
				r.SourceFile = strPtr("file:///tmp/in.csv")
			},
		},
		{
			name:    "export with source",
			mutate:  func(r *CreateJobRequest) { r.SourceFile = strPtr("file:///tmp/in.csv") },
			wantErr: "source file is only accepted for imports",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestQueryKwargs_Normalize(t *testing.T) {
	q := QueryKwargs{FilterKwargs: map[string]string{"name": "Artist"}}.Normalize()
	assert.NotNil(t, q.Search)
	assert.NotNil(t, q.Ordering)
	assert.Equal(t, "Artist", q.FilterKwargs["name"])
	assert.True(t, q.Equal(QueryKwargs{FilterKwargs: map[string]string{"name": "Artist"}}))
	assert.False(t, q.Equal(EmptyQuery()))
}

func TestNewJobView(t *testing.T) {
	now := time.Date(2024, 5, 16, 9, 21, 0, 0, time.UTC)
	res := NewJobResult()
	res.TotalRows = 10
	res.RecordSuccess(4)
	job := &TransferJob{
		ID:         "j1",
		Direction:  DirectionExport,
		Status:     StatusExporting,
		Resource:   ResourceDescriptor{Key: "artists"},
		FileFormat: "csv",
		Result:     res,
		CreatedAt:  now,
	}

	v := NewJobView(job, nil)
	assert.Equal(t, PhaseRunning, v.Phase)
	assert.False(t, v.Finished)
	assert.Equal(t, Progress{Current: 4, Total: 10}, v.Progress)
	assert.Equal(t, 40, v.Percent)
	assert.Nil(t, v.Errors)

	v = NewJobView(job, &Progress{Current: 7, Total: 10})
	assert.Equal(t, 7, v.Progress.Current)

	// stale live progress never moves backwards
	v = NewJobView(job, &Progress{Current: 2, Total: 10})
	assert.Equal(t, 4, v.Progress.Current)

	job.Status = StatusExportError
	job.Result.RecordRowError(RowError{Row: 5, Field: "name", Message: "bad"})
	v = NewJobView(job, nil)
	assert.True(t, v.Finished)
	require.Len(t, v.Errors, 1)
	assert.Equal(t, 5, v.Errors[0].Row)
}

func TestProgress_Percent(t *testing.T) {
	assert.Equal(t, 0, Progress{Current: 3}.Percent())
	assert.Equal(t, 50, Progress{Current: 1, Total: 2}.Percent())
	assert.Equal(t, 100, Progress{Current: 12, Total: 10}.Percent())
}
