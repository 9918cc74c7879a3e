// Package memory provides an in-process resource holding its records in a slice. It backs the
// demo dataset and unit tests that need a real Resource without a database.
package memory

import (
	"cmp"
	"context"
	"encoding/json"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/target/mmk-dataport/internal/codec"
	"github.com/target/mmk-dataport/internal/core"
	"github.com/target/mmk-dataport/internal/domain/model"
	"github.com/target/mmk-dataport/internal/filterspec"
)

// ValidateFunc inspects an import row and returns a field and message when it must be rejected.
type ValidateFunc func(rec model.Record) (field, message string)

// Options configure a Resource.
type Options struct {
	Columns   []string
	KeyColumn string
	Records   []model.Record
	// Validate rejects rows before they are stored.
	Validate ValidateFunc
	// ImportErr, when set, is returned by every ImportBatch call.
	ImportErr error
}

// Resource is a concurrency-safe in-memory dataset. Filters match on the text form of values:
// bare and __iexact keys compare for equality, __icontains does a case-insensitive substring match.
type Resource struct {
	mu      sync.RWMutex
	columns []string
	key     string
	records []model.Record
	opts    Options
}

var _ core.Resource = (*Resource)(nil)

// New copies opts.Records into a new Resource.
func New(opts Options) *Resource {
	r := &Resource{
		columns: slices.Clone(opts.Columns),
		key:     cmp.Or(opts.KeyColumn, "id"),
		opts:    opts,
	}
	for _, rec := range opts.Records {
		r.records = append(r.records, maps.Clone(rec))
	}
	return r
}

// Factory returns a core.ResourceFactory that always yields r.
func (r *Resource) Factory() core.ResourceFactory {
	return func(json.RawMessage) (core.Resource, error) { return r, nil }
}

// Columns lists the exported columns.
func (r *Resource) Columns() []string { return slices.Clone(r.columns) }

// Records returns a copy of the stored records.
func (r *Resource) Records() []model.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Record, len(r.records))
	for i, rec := range r.records {
		out[i] = maps.Clone(rec)
	}
	return out
}

// Count returns the number of matching records.
func (r *Resource) Count(_ context.Context, query model.QueryKwargs) (int, error) {
	return len(r.match(query)), nil
}

// Export yields matching records in the requested ordering.
func (r *Resource) Export(ctx context.Context, query model.QueryKwargs) (core.RecordCursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &sliceCursor{records: r.match(query), pos: -1}, nil
}

// ImportBatch upserts rows by key column.
func (r *Resource) ImportBatch(ctx context.Context, rows []model.ImportRow) ([]model.RowOutcome, error) {
	if r.opts.ImportErr != nil {
		return nil, r.opts.ImportErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	outcomes := make([]model.RowOutcome, 0, len(rows))
	for _, row := range rows {
		keyVal := codec.FormatValue(row.Values[r.key])
		if keyVal == "" {
			outcomes = append(outcomes, model.RowOutcome{
				Index: row.Index, Status: model.RowFailed, Field: r.key, Message: "This field is required.",
			})
			continue
		}
		if r.opts.Validate != nil {
			if field, msg := r.opts.Validate(row.Values); msg != "" {
				outcomes = append(outcomes, model.RowOutcome{
					Index: row.Index, Status: model.RowFailed, Field: field, Message: msg,
				})
				continue
			}
		}
		outcomes = append(outcomes, model.RowOutcome{Index: row.Index, Status: r.upsert(keyVal, row.Values)})
	}
	return outcomes, nil
}

func (r *Resource) upsert(keyVal string, values model.Record) model.RowOutcomeStatus {
	rec := make(model.Record, len(r.columns))
	for _, c := range r.columns {
		if v, ok := values[c]; ok {
			rec[c] = v
		}
	}
	for i, existing := range r.records {
		if codec.FormatValue(existing[r.key]) != keyVal {
			continue
		}
		if sameText(existing, rec) {
			return model.RowSkipped
		}
		maps.Copy(existing, rec)
		r.records[i] = existing
		return model.RowApplied
	}
	r.records = append(r.records, rec)
	return model.RowApplied
}

func sameText(existing, incoming model.Record) bool {
	for k, v := range incoming {
		if codec.FormatValue(existing[k]) != codec.FormatValue(v) {
			return false
		}
	}
	return true
}

func (r *Resource) match(query model.QueryKwargs) []model.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Record
	for _, rec := range r.records {
		if matchesFilters(rec, query.FilterKwargs) && matchesSearch(rec, query.Search) {
			out = append(out, maps.Clone(rec))
		}
	}
	ordering := query.Ordering
	if len(ordering) == 0 {
		ordering = []string{r.key}
	}
	slices.SortStableFunc(out, func(a, b model.Record) int {
		for _, tok := range ordering {
			field := strings.TrimPrefix(tok, "-")
			c := compareValues(a[field], b[field])
			if strings.HasPrefix(tok, "-") {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
	return out
}

func matchesFilters(rec model.Record, filters map[string]string) bool {
	for key, want := range filters {
		field, lookup := filterspec.SplitFilterKey(key)
		got := codec.FormatValue(rec[field])
		switch lookup {
		case filterspec.LookupIContains:
			if !strings.Contains(strings.ToLower(got), strings.ToLower(want)) {
				return false
			}
		case filterspec.LookupIExact:
			if !strings.EqualFold(got, want) {
				return false
			}
		default:
			if got != want {
				return false
			}
		}
	}
	return true
}

func matchesSearch(rec model.Record, search map[string]string) bool {
	term := ""
	fields := make([]string, 0, len(search))
	for key, v := range search {
		field, _ := filterspec.SplitFilterKey(key)
		fields = append(fields, field)
		if v != "" {
			term = v
		}
	}
	for word := range strings.FieldsSeq(strings.ToLower(term)) {
		found := false
		for _, f := range fields {
			if strings.Contains(strings.ToLower(codec.FormatValue(rec[f])), word) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func compareValues(a, b any) int {
	switch x := a.(type) {
	case int:
		if y, ok := b.(int); ok {
			return cmp.Compare(x, y)
		}
	case int64:
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmp.Compare(x, y)
		}
	}
	return strings.Compare(codec.FormatValue(a), codec.FormatValue(b))
}

type sliceCursor struct {
	records []model.Record
	pos     int
}

func (c *sliceCursor) Next() bool {
	if c.pos+1 >= len(c.records) {
		c.pos = len(c.records)
		return false
	}
	c.pos++
	return true
}

func (c *sliceCursor) Record() model.Record {
	if c.pos < 0 || c.pos >= len(c.records) {
		return nil
	}
	return c.records[c.pos]
}

func (c *sliceCursor) Err() error   { return nil }
func (c *sliceCursor) Close() error { return nil }
