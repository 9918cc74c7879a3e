package testutil

import (
	"encoding/json"

	"github.com/target/mmk-dataport/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building CreateJobRequest objects for testing.
type JobRequestBuilder struct {
	req *model.CreateJobRequest
}

// NewExportRequest creates a builder for an export of the "artists" resource as CSV.
func NewExportRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.CreateJobRequest{
			Direction:  model.DirectionExport,
			Resource:   model.ResourceDescriptor{Key: "artists", Args: json.RawMessage(`{}`)},
			Query:      model.EmptyQuery(),
			FileFormat: "csv",
		},
	}
}

// NewImportRequest creates a builder for an import of the "artists" resource from sourceFile.
func NewImportRequest(sourceFile string) *JobRequestBuilder {
	b := NewExportRequest()
	b.req.Direction = model.DirectionImport
	b.req.SourceFile = &sourceFile
	return b
}

// WithResource sets the resource key.
func (b *JobRequestBuilder) WithResource(key string) *JobRequestBuilder {
	b.req.Resource.Key = key
	return b
}

// WithFormat sets the file format.
func (b *JobRequestBuilder) WithFormat(format string) *JobRequestBuilder {
	b.req.FileFormat = format
	return b
}

// WithFilter adds a filter kwarg.
func (b *JobRequestBuilder) WithFilter(key, value string) *JobRequestBuilder {
	b.req.Query.FilterKwargs[key] = value
	return b
}

// WithOrdering sets the ordering.
func (b *JobRequestBuilder) WithOrdering(fields ...string) *JobRequestBuilder {
	b.req.Query.Ordering = fields
	return b
}

// WithCreatedBy sets the requester.
func (b *JobRequestBuilder) WithCreatedBy(principal string) *JobRequestBuilder {
	b.req.CreatedBy = &principal
	return b
}

// Build returns the built CreateJobRequest.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	out := *b.req
	out.Query = b.req.Query.Normalize()
	return &out
}
