package model

import (
	"encoding/json"
	"maps"
	"slices"
)

// ResourceDescriptor references the registered logic that reads or writes records for a job,
// together with its construction arguments.
type ResourceDescriptor struct {
	Key  string          `json:"key"`
	Args json.RawMessage `json:"args,omitempty"`
}

// QueryKwargs is the validated filter/search/ordering specification stored on a job.
// It is produced by the filterspec resolver and interpreted by the resource layer.
type QueryKwargs struct {
	FilterKwargs map[string]string `json:"filter_kwargs"`
	Search       map[string]string `json:"search"`
	Ordering     []string          `json:"ordering"`
}

// EmptyQuery returns a QueryKwargs with non-nil members so it serializes as empty objects.
func EmptyQuery() QueryKwargs {
	return QueryKwargs{
		FilterKwargs: map[string]string{},
		Search:       map[string]string{},
		Ordering:     []string{},
	}
}

// Normalize replaces nil members with empty ones.
func (q QueryKwargs) Normalize() QueryKwargs {
	out := EmptyQuery()
	maps.Copy(out.FilterKwargs, q.FilterKwargs)
	maps.Copy(out.Search, q.Search)
	out.Ordering = append(out.Ordering, q.Ordering...)
	return out
}

// Equal reports whether two specifications are identical.
func (q QueryKwargs) Equal(o QueryKwargs) bool {
	return maps.Equal(q.FilterKwargs, o.FilterKwargs) &&
		maps.Equal(q.Search, o.Search) &&
		slices.Equal(q.Ordering, o.Ordering)
}
