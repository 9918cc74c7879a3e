package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/mmk-dataport/config"
	"github.com/target/mmk-dataport/internal/codec"
	"github.com/target/mmk-dataport/internal/domain/model"
	apperrors "github.com/target/mmk-dataport/internal/errors"
	"github.com/target/mmk-dataport/internal/filterspec"
	"github.com/target/mmk-dataport/internal/mocks"
	"github.com/target/mmk-dataport/internal/resource"
	"github.com/target/mmk-dataport/internal/resource/memory"
	"github.com/target/mmk-dataport/internal/service"
)

const testJobID = "5d3f0b9e-8a61-4c1e-b2f4-7e9a0c3d1b52"

type adminFixture struct {
	repo   *mocks.MockJobRepository
	queue  *mocks.MockQueue
	out    *bytes.Buffer
	app    *app
	reaped int
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &adminFixture{
		repo:  mocks.NewMockJobRepository(ctrl),
		queue: mocks.NewMockQueue(ctrl),
		out:   &bytes.Buffer{},
	}

	artists := memory.New(memory.Options{Columns: []string{"id", "name"}, KeyColumn: "id"})
	resources, err := resource.NewRegistry(resource.Definition{
		Key: "artists",
		Schema: filterspec.Schema{
			Filters: []filterspec.Field{
				{Name: "id", Type: filterspec.TypeInteger},
				{Name: "name", Type: filterspec.TypeString, Lookups: []string{"icontains"}},
			},
			SearchFields: []string{"name"},
		},
		Factory: artists.Factory(),
	})
	require.NoError(t, err)

	jobs := service.MustNewJobService(service.JobServiceOptions{
		Repo:      f.repo,
		Resources: resources,
		Codecs:    codec.NewDefaultRegistry(),
		Queue:     f.queue,
	})

	f.app = newApp(&config.AppConfig{}, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), f.out)
	f.app.openSession = func(context.Context) (*session, error) {
		return &session{
			Jobs:      jobs,
			Lookup:    f.repo,
			Resolvers: resources,
			ReapOnce: func(context.Context) (service.SweepReport, error) {
				f.reaped++
				return service.SweepReport{Expired: 2, Redispatched: 1}, nil
			},
		}, nil
	}
	return f
}

func (f *adminFixture) run(args ...string) error {
	cmd := newRootCmd(f.app)
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return cmd.ExecuteContext(context.Background())
}

func (f *adminFixture) view(t *testing.T) model.JobView {
	t.Helper()
	var v model.JobView
	require.NoError(t, json.Unmarshal(f.out.Bytes(), &v))
	return v
}

func adminJob(status model.JobStatus, createdBy *string) *model.TransferJob {
	return &model.TransferJob{
		ID:         testJobID,
		Direction:  model.DirectionExport,
		Status:     status,
		Resource:   model.ResourceDescriptor{Key: "artists"},
		Query:      model.EmptyQuery(),
		FileFormat: "csv",
		Result:     model.NewJobResult(),
		CreatedBy:  createdBy,
		CreatedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCreate_ResolvesFiltersAndDispatches(t *testing.T) {
	f := newAdminFixture(t)

	var created *model.CreateJobRequest
	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *model.CreateJobRequest) (*model.TransferJob, error) {
			created = req
			job := adminJob(model.StatusCreated, req.CreatedBy)
			job.Query = req.Query
			return job, nil
		})
	f.repo.EXPECT().MarkDispatched(gomock.Any(), testJobID).Return(true, nil)
	f.queue.EXPECT().Enqueue(gomock.Any(), testJobID).Return(nil)

	err := f.run("create", "--resource", "artists", "--filter", "name__icontains=rin",
		"--search", "ringo", "--ordering", "-id", "--created-by", "ops")
	require.NoError(t, err)

	require.NotNil(t, created)
	assert.Equal(t, model.DirectionExport, created.Direction)
	assert.Equal(t, map[string]string{"name__icontains": "rin"}, created.Query.FilterKwargs)
	assert.Equal(t, []string{"-id"}, created.Query.Ordering)
	assert.NotEmpty(t, created.Query.Search)
	require.NotNil(t, created.CreatedBy)
	assert.Equal(t, "ops", *created.CreatedBy)

	v := f.view(t)
	assert.Equal(t, testJobID, v.ID)
	assert.Equal(t, model.StatusCreated, v.Status)
}

func TestCreate_NoDispatch(t *testing.T) {
	f := newAdminFixture(t)
	f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(adminJob(model.StatusCreated, nil), nil)

	require.NoError(t, f.run("create", "--resource", "artists", "--dispatch=false"))
	assert.Equal(t, model.StatusCreated, f.view(t).Status)
}

func TestCreate_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"filter without value", []string{"--resource", "artists", "--filter", "name"}, "Invalid filter"},
		{"bad filter value", []string{"--resource", "artists", "--filter", "id=abc"}, "Enter a number."},
		{"unknown resource", []string{"--resource", "albums"}, "albums"},
		{"bad args json", []string{"--resource", "artists", "--args", "{"}, "valid JSON"},
		{"unsupported format", []string{"--resource", "artists", "--format", "xml"}, "Unsupported file format"},
		{"import without source", []string{"--resource", "artists", "--direction", "import"}, "This field is required."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAdminFixture(t)
			err := f.run(append([]string{"create"}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCreate_RequiresResource(t *testing.T) {
	f := newAdminFixture(t)
	require.Error(t, f.run("create"))
}

func TestStatus_ReadsAsOwner(t *testing.T) {
	f := newAdminFixture(t)
	owner := "alice"
	f.repo.EXPECT().GetByID(gomock.Any(), testJobID).Return(adminJob(model.StatusExported, &owner), nil).Times(2)

	require.NoError(t, f.run("status", testJobID))

	v := f.view(t)
	assert.Equal(t, model.StatusExported, v.Status)
	assert.True(t, v.Finished)
}

func TestStatus_NotFound(t *testing.T) {
	f := newAdminFixture(t)
	f.repo.EXPECT().GetByID(gomock.Any(), testJobID).Return(nil, apperrors.NotFound("job not found"))

	err := f.run("status", testJobID)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Contains(t, err.Error(), testJobID)
}

func TestDispatch_NoopForDispatchedJob(t *testing.T) {
	f := newAdminFixture(t)
	f.repo.EXPECT().MarkDispatched(gomock.Any(), testJobID).Return(false, nil)
	f.repo.EXPECT().GetByID(gomock.Any(), testJobID).Return(adminJob(model.StatusExporting, nil), nil).Times(2)

	require.NoError(t, f.run("dispatch", testJobID))
	assert.Equal(t, model.StatusExporting, f.view(t).Status)
}

func TestDispatch_EnqueueFailure(t *testing.T) {
	f := newAdminFixture(t)
	f.repo.EXPECT().MarkDispatched(gomock.Any(), testJobID).Return(true, nil)
	f.queue.EXPECT().Enqueue(gomock.Any(), testJobID).Return(errors.New("redis down"))
	f.repo.EXPECT().ClearDispatched(gomock.Any(), testJobID).Return(nil)

	err := f.run("dispatch", testJobID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}

func TestCancel_FinishedJob(t *testing.T) {
	f := newAdminFixture(t)
	owner := "alice"
	f.repo.EXPECT().GetByID(gomock.Any(), testJobID).Return(adminJob(model.StatusExported, &owner), nil).Times(3)
	f.repo.EXPECT().Cancel(gomock.Any(), gomock.Any()).Return(nil, false, nil)

	err := f.run("cancel", testJobID)
	require.Error(t, err)
	assert.Equal(t,
		"ExportJob with id "+testJobID+" has incorrect status: `EXPORTED`. Expected statuses: ['CREATED', 'EXPORTING']",
		err.Error())
}

func TestCancel_RunningJob(t *testing.T) {
	f := newAdminFixture(t)
	f.repo.EXPECT().GetByID(gomock.Any(), testJobID).Return(adminJob(model.StatusExporting, nil), nil).Times(2)
	f.repo.EXPECT().Cancel(gomock.Any(), gomock.Any()).Return(adminJob(model.StatusCancelled, nil), true, nil)

	require.NoError(t, f.run("cancel", testJobID))
	assert.Equal(t, model.StatusCancelled, f.view(t).Status)
}

func TestReapOnce(t *testing.T) {
	f := newAdminFixture(t)
	require.NoError(t, f.run("reap-once"))
	assert.Equal(t, 1, f.reaped)
	assert.JSONEq(t, `{"expired":2,"redispatched":1}`, f.out.String())
}

func TestSessionOpenFailure(t *testing.T) {
	f := newAdminFixture(t)
	f.app.openSession = func(context.Context) (*session, error) { return nil, errors.New("connect db: refused") }

	err := f.run("status", testJobID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
}
