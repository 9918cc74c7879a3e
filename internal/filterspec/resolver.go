package filterspec

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/target/mmk-dataport/internal/domain/model"
	apperrors "github.com/target/mmk-dataport/internal/errors"
)

const (
	// SearchParam carries the free-text search term.
	SearchParam = "q"
	// OrderingParam carries comma separated ordering fields, "-" prefixed for descending.
	OrderingParam = "ordering"
)

type filterTarget struct {
	field  Field
	lookup string
}

type searchLookup struct {
	field  string
	lookup string
}

// Resolver validates query parameters against a Schema. It is safe for concurrent use.
type Resolver struct {
	filters   map[string]filterTarget
	search    []searchLookup
	orderable map[string]struct{}
}

// NewResolver validates schema and precomputes the permitted parameter keys.
func NewResolver(schema Schema) (*Resolver, error) {
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("filter schema: %w", err)
	}

	r := &Resolver{
		filters:   make(map[string]filterTarget),
		orderable: schema.orderable(),
	}
	for _, f := range schema.Filters {
		r.filters[f.Name] = filterTarget{field: f, lookup: LookupExact}
		for _, l := range f.Lookups {
			if l == LookupExact {
				continue
			}
			r.filters[f.Name+LookupSep+l] = filterTarget{field: f, lookup: l}
		}
	}

	seen := make(map[string]struct{}, len(schema.SearchFields))
	for _, sf := range schema.SearchFields {
		name, lookup := splitSearchField(sf)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		r.search = append(r.search, searchLookup{field: name, lookup: lookup})
	}
	return r, nil
}

// MustNewResolver is like NewResolver but panics on an invalid schema.
func MustNewResolver(schema Schema) *Resolver {
	r, err := NewResolver(schema)
	if err != nil {
		//nolint:forbidigo // invalid static schemas are programmer errors
		panic(err)
	}
	return r
}

// Resolve produces the filter, search and ordering specification for params.
// Unknown keys are dropped. Values are kept verbatim once they pass type coercion.
func (r *Resolver) Resolve(params url.Values) (model.QueryKwargs, error) {
	out := model.EmptyQuery()

	if err := r.resolveFilters(params, out.FilterKwargs); err != nil {
		return model.QueryKwargs{}, err
	}

	term := ""
	if vals := params[SearchParam]; len(vals) > 0 {
		term = vals[0]
	}
	for _, s := range r.search {
		out.Search[s.field+LookupSep+s.lookup] = term
	}

	ordering, err := r.resolveOrdering(params[OrderingParam])
	if err != nil {
		return model.QueryKwargs{}, err
	}
	out.Ordering = ordering
	return out, nil
}

func (r *Resolver) resolveFilters(params url.Values, dst map[string]string) error {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	// deterministic first error
	slices.Sort(keys)

	for _, key := range keys {
		if key == SearchParam || key == OrderingParam {
			continue
		}
		target, ok := r.filters[key]
		if !ok {
			continue
		}
		vals := params[key]
		if len(vals) == 0 {
			continue
		}
		v := vals[len(vals)-1]
		if msg := coerceLookup(target.field, target.lookup, v); msg != "" {
			return apperrors.ValidationField(key, msg)
		}
		dst[key] = v
	}
	return nil
}

func (r *Resolver) resolveOrdering(raw []string) ([]string, error) {
	ordering := []string{}
	for _, param := range raw {
		for token := range strings.SplitSeq(param, ",") {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			name := strings.TrimPrefix(token, "-")
			if _, ok := r.orderable[name]; !ok {
				return nil, apperrors.ValidationField(
					OrderingParam,
					fmt.Sprintf("Cannot resolve keyword '%s' into field.", name),
				)
			}
			ordering = append(ordering, token)
		}
	}
	return ordering, nil
}

// Permitted reports whether key is an accepted filter key.
func (r *Resolver) Permitted(key string) bool {
	_, ok := r.filters[key]
	return ok
}
