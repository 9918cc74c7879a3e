package httpx

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-dataport/internal/adapters/queue"
	"github.com/target/mmk-dataport/internal/codec"
	"github.com/target/mmk-dataport/internal/data"
	"github.com/target/mmk-dataport/internal/domain/model"
	"github.com/target/mmk-dataport/internal/filterspec"
	"github.com/target/mmk-dataport/internal/resource"
	"github.com/target/mmk-dataport/internal/resource/memory"
	"github.com/target/mmk-dataport/internal/service"
	"github.com/target/mmk-dataport/internal/testutil"
)

func newIntegrationRouter(t *testing.T, db *sql.DB) http.Handler {
	t.Helper()
	repo := data.NewJobRepo(db, data.RepoConfig{})
	q, err := queue.NewPostgresQueue(repo)
	require.NoError(t, err)

	artists := memory.New(memory.Options{Columns: []string{"id", "name"}, KeyColumn: "id"})
	resources, err := resource.NewRegistry(resource.Definition{
		Key:     "artists",
		Schema:  filterspec.Schema{Filters: []filterspec.Field{{Name: "id", Type: filterspec.TypeInteger}}},
		Factory: artists.Factory(),
	})
	require.NoError(t, err)

	svc := service.MustNewJobService(service.JobServiceOptions{
		Repo:      repo,
		Resources: resources,
		Codecs:    codec.NewDefaultRegistry(),
		Queue:     q,
	})
	return NewRouter(RouterServices{Jobs: svc})
}

func call(t *testing.T, h http.Handler, method, target, body, requester string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	if requester != "" {
		r.Header.Set("X-Requested-By", requester)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestJobAPI_Lifecycle_Integration(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		h := newIntegrationRouter(t, db)

		w := call(t, h, http.MethodPost, "/api/export/artists/start?id=3", `{"file_format":"jsonl"}`, "alice")
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var started model.JobView
		require.NoError(t, json.NewDecoder(w.Body).Decode(&started))
		assert.Equal(t, model.StatusCreated, started.Status)
		assert.Equal(t, "jsonl", started.FileFormat)

		jobURL := "/api/export/artists/" + started.ID

		w = call(t, h, http.MethodGet, jobURL, "", "alice")
		require.Equal(t, http.StatusOK, w.Code)

		w = call(t, h, http.MethodGet, jobURL, "", "bob")
		require.Equal(t, http.StatusNotFound, w.Code)

		w = call(t, h, http.MethodGet, "/api/import/artists/"+started.ID, "", "alice")
		require.Equal(t, http.StatusNotFound, w.Code)

		w = call(t, h, http.MethodPost, jobURL+"/cancel", "", "alice")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var cancelled model.JobView
		require.NoError(t, json.NewDecoder(w.Body).Decode(&cancelled))
		assert.Equal(t, model.StatusCancelled, cancelled.Status)
		assert.True(t, cancelled.Finished)

		w = call(t, h, http.MethodPost, jobURL+"/cancel", "", "alice")
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "has incorrect status: `CANCELLED`")

		w = call(t, h, http.MethodGet, "/api/export/artists?status=cancelled", "", "alice")
		require.Equal(t, http.StatusOK, w.Code)
		var listed struct {
			Results []model.JobView `json:"results"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&listed))
		require.Len(t, listed.Results, 1)
		assert.Equal(t, started.ID, listed.Results[0].ID)

		w = call(t, h, http.MethodGet, "/api/export/artists", "", "bob")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"results":[],"limit":50,"offset":0}`, w.Body.String())
	})
}

func TestJobAPI_UnknownID_Integration(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		h := newIntegrationRouter(t, db)

		w := call(t, h, http.MethodGet, "/api/export/artists/not-a-uuid", "", "")
		require.Equal(t, http.StatusNotFound, w.Code)

		w = call(t, h, http.MethodGet, "/api/export/artists/00000000-0000-0000-0000-000000000000", "", "")
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}
