// Package httpx provides HTTP handlers and utilities for the dataport job API.
package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/target/mmk-dataport/internal/core"
	"github.com/target/mmk-dataport/internal/domain/model"
	apperrors "github.com/target/mmk-dataport/internal/errors"
	"github.com/target/mmk-dataport/internal/service"
)

// JobHandlers provides HTTP handlers for transfer job operations.
type JobHandlers struct {
	Svc    *service.JobService
	Logger *slog.Logger
}

// startJobBody is the JSON body of a start request. Filters travel in the query string.
type startJobBody struct {
	FileFormat   string          `json:"file_format"`
	SourceFile   *string         `json:"source_file,omitempty"`
	ResourceArgs json.RawMessage `json:"resource_args,omitempty"`
}

// pathDirection parses the {direction} path segment. Unknown directions are reported as not found
// since no such collection exists.
func pathDirection(r *http.Request) (model.Direction, error) {
	d := model.Direction(strings.ToLower(r.PathValue("direction")))
	if !d.Valid() {
		return "", apperrors.NotFoundf("Unknown job type %q.", r.PathValue("direction"))
	}
	return d, nil
}

func requesterPtr(r *http.Request) *string {
	if v, ok := RequesterFromContext(r.Context()); ok {
		return &v
	}
	return nil
}

func requester(r *http.Request) string {
	v, _ := RequesterFromContext(r.Context())
	return v
}

// Start creates a job from the query-string filters and dispatches it.
func (h *JobHandlers) Start(w http.ResponseWriter, r *http.Request) {
	direction, err := pathDirection(r)
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}

	var body startJobBody
	if !DecodeJSON(w, r, &body) {
		return
	}

	job, err := h.Svc.Start(r.Context(), service.StartJobRequest{
		Direction: direction,
		Resource: model.ResourceDescriptor{
			Key:  r.PathValue("resource"),
			Args: body.ResourceArgs,
		},
		Params:     r.URL.Query(),
		FileFormat: body.FileFormat,
		SourceFile: body.SourceFile,
		CreatedBy:  requesterPtr(r),
	})
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}

	WriteJSON(w, http.StatusCreated, model.NewJobView(job, nil))
}

// GetStatus returns the poller view of one job.
func (h *JobHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.scopedView(r)
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// Cancel cancels a created or running job.
func (h *JobHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	view, err := h.scopedView(r)
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}

	view, err = h.Svc.Cancel(r.Context(), view.ID, requester(r))
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// scopedView loads the job named by {id} and checks that it belongs to the {direction} and
// {resource} of the path, so one collection never exposes jobs of another.
func (h *JobHandlers) scopedView(r *http.Request) (*model.JobView, error) {
	direction, err := pathDirection(r)
	if err != nil {
		return nil, err
	}
	id := r.PathValue("id")
	view, err := h.Svc.GetStatus(r.Context(), id, requester(r))
	if err != nil {
		return nil, err
	}
	if view.Direction != direction || view.Resource != r.PathValue("resource") {
		return nil, apperrors.NotFoundf("Job %s not found.", id)
	}
	return view, nil
}

// List returns the jobs of one resource, newest first. Requests carrying a requester only see
// that requester's jobs.
func (h *JobHandlers) List(w http.ResponseWriter, r *http.Request) {
	direction, err := pathDirection(r)
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	pg, err := parsePage(r.URL.Query())
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}

	jobs, err := h.Svc.List(r.Context(), core.ListJobsParams{
		CreatedBy: requesterPtr(r),
		Direction: direction,
		Status:    model.JobStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))),
		Resource:  r.PathValue("resource"),
		Limit:     pg.Limit,
		Offset:    pg.Offset,
	})
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}

	views := make([]model.JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, model.NewJobView(job, nil))
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"results": views,
		"limit":   pg.Limit,
		"offset":  pg.Offset,
	})
}

// Stats returns job counts per status.
func (h *JobHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context())
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
