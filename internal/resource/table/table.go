package table

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/target/mmk-dataport/internal/core"
	"github.com/target/mmk-dataport/internal/data/database"
	"github.com/target/mmk-dataport/internal/domain/model"
	apperrors "github.com/target/mmk-dataport/internal/errors"
	"github.com/target/mmk-dataport/internal/filterspec"
	"github.com/target/mmk-dataport/internal/resource"
)

// Args are the descriptor arguments accepted by a table resource.
type Args struct {
	// Columns restricts and orders the exported columns. Empty means every declared column.
	Columns []string `json:"columns,omitempty"`
}

// Resource reads and upserts the rows of one table.
type Resource struct {
	db      *sql.DB
	cfg     Config
	columns []string
}

var _ core.Resource = (*Resource)(nil)

// Definitions turns declarations into registry definitions bound to db.
func Definitions(db *sql.DB, cfgs []Config) []resource.Definition {
	defs := make([]resource.Definition, 0, len(cfgs))
	for _, cfg := range cfgs {
		defs = append(defs, resource.Definition{
			Key:    cfg.Key,
			Schema: cfg.Schema(),
			Factory: func(args json.RawMessage) (core.Resource, error) {
				return New(db, cfg, args)
			},
		})
	}
	return defs
}

// New builds a Resource for cfg using descriptor args.
func New(db *sql.DB, cfg Config, raw json.RawMessage) (*Resource, error) {
	var args Args
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, apperrors.ValidationField("resource", "Invalid resource arguments.")
		}
	}

	columns := cfg.columnNames()
	if len(args.Columns) > 0 {
		for _, c := range args.Columns {
			if _, ok := cfg.column(c); !ok {
				return nil, apperrors.ValidationField("resource", fmt.Sprintf("Unknown column %q.", c))
			}
		}
		columns = slices.Clone(args.Columns)
	}
	return &Resource{db: db, cfg: cfg, columns: columns}, nil
}

// Columns lists the exported columns in order.
func (r *Resource) Columns() []string {
	return slices.Clone(r.columns)
}

// Count returns the number of rows matching query.
func (r *Resource) Count(ctx context.Context, query model.QueryKwargs) (int, error) {
	sel, err := r.selectRows(query)
	if err != nil {
		return 0, err
	}
	stmt, args := sel.CountSQL()

	var n int
	if err := r.db.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", r.cfg.Key, apperrors.MapDBError(err))
	}
	return n, nil
}

// Export streams the rows matching query in the resolved ordering.
func (r *Resource) Export(ctx context.Context, query model.QueryKwargs) (core.RecordCursor, error) {
	sel, err := r.selectRows(query)
	if err != nil {
		return nil, err
	}
	stmt, args := sel.SQL()

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", r.cfg.Key, apperrors.MapDBError(err))
	}
	return &rowCursor{rows: rows, columns: r.columns}, nil
}

// selectRows translates query into a select over the exported columns.
func (r *Resource) selectRows(query model.QueryKwargs) (database.Select, error) {
	where, err := r.filterConditions(query.FilterKwargs)
	if err != nil {
		return database.Select{}, err
	}
	return database.Select{
		From:    r.cfg.Table,
		Columns: r.columns,
		Where:   append(where, r.searchConditions(query.Search)...),
		OrderBy: r.ordering(query.Ordering),
	}, nil
}

func (r *Resource) filterConditions(filters map[string]string) ([]database.Predicate, error) {
	keys := slices.Sorted(maps.Keys(filters))
	conds := make([]database.Predicate, 0, len(keys))
	for _, key := range keys {
		cond, err := r.filterCondition(key, filters[key])
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	return conds, nil
}

func (r *Resource) filterCondition(key, raw string) (database.Predicate, error) {
	name, lookup := filterspec.SplitFilterKey(key)
	col, ok := r.cfg.column(name)
	if !ok {
		return nil, apperrors.ValidationField(key, "Unknown filter field.")
	}
	quoted := database.QuoteIdentifier(name)

	switch lookup {
	case filterspec.LookupIsNull:
		return database.Null(name, filterspec.ParseBool(raw)), nil
	case filterspec.LookupIExact:
		return database.Raw(fmt.Sprintf("lower(%s) = lower($1)", quoted), raw), nil
	case filterspec.LookupContains:
		return database.Compare(name, database.OpLike, "%"+database.EscapeLike(raw)+"%"), nil
	case filterspec.LookupIContains:
		return database.Compare(name, database.OpILike, "%"+database.EscapeLike(raw)+"%"), nil
	case filterspec.LookupStartsWith:
		return database.Compare(name, database.OpLike, database.EscapeLike(raw)+"%"), nil
	case filterspec.LookupIStartsWith:
		return database.Compare(name, database.OpILike, database.EscapeLike(raw)+"%"), nil
	case filterspec.LookupIn:
		var values []any
		for part := range strings.SplitSeq(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			v, err := filterspec.ParseValue(col.Type, part)
			if err != nil {
				return nil, apperrors.ValidationField(key, err.Error())
			}
			values = append(values, v)
		}
		return database.In(name, values), nil
	}

	v, err := filterspec.ParseValue(col.Type, raw)
	if err != nil {
		return nil, apperrors.ValidationField(key, err.Error())
	}
	switch lookup {
	case filterspec.LookupGT:
		return database.Compare(name, database.OpGT, v), nil
	case filterspec.LookupGTE:
		return database.Compare(name, database.OpGTE, v), nil
	case filterspec.LookupLT:
		return database.Compare(name, database.OpLT, v), nil
	case filterspec.LookupLTE:
		return database.Compare(name, database.OpLTE, v), nil
	case filterspec.LookupExact:
		return database.Compare(name, database.OpEq, v), nil
	default:
		return nil, apperrors.ValidationField(key, fmt.Sprintf("Unsupported lookup %q.", lookup))
	}
}

// searchConditions requires every whitespace separated term to match at least one search field.
func (r *Resource) searchConditions(search map[string]string) []database.Predicate {
	if len(search) == 0 {
		return nil
	}
	keys := slices.Sorted(maps.Keys(search))
	term := ""
	for _, k := range keys {
		if search[k] != "" {
			term = search[k]
			break
		}
	}

	var conds []database.Predicate
	for word := range strings.FieldsSeq(term) {
		alts := make([]database.Predicate, 0, len(keys))
		for _, k := range keys {
			name, lookup := filterspec.SplitFilterKey(k)
			alts = append(alts, searchCondition(name, lookup, word))
		}
		conds = append(conds, database.AnyOf(alts...))
	}
	return conds
}

func searchCondition(name, lookup, word string) database.Predicate {
	col := database.QuoteIdentifier(name) + "::text"
	switch lookup {
	case filterspec.LookupIStartsWith:
		return database.Raw(col+" ILIKE $1", database.EscapeLike(word)+"%")
	case filterspec.LookupIExact:
		return database.Raw("lower("+col+") = lower($1)", word)
	case filterspec.LookupSearch:
		return database.Raw(
			"to_tsvector('simple', "+col+") @@ plainto_tsquery('simple', $1)", word)
	default:
		return database.Raw(col+" ILIKE $1", "%"+database.EscapeLike(word)+"%")
	}
}

// ordering applies the requested ordering, falling back to the declared default, and always ends
// with the key column so exports are deterministic.
func (r *Resource) ordering(requested []string) []database.OrderTerm {
	tokens := requested
	if len(tokens) == 0 {
		tokens = r.cfg.DefaultOrdering
	}
	terms := make([]database.OrderTerm, 0, len(tokens)+1)
	hasKey := false
	for _, tok := range tokens {
		t := database.ParseOrderTerm(tok)
		if t.Column == r.cfg.KeyColumn {
			hasKey = true
		}
		terms = append(terms, t)
	}
	if !hasKey {
		terms = append(terms, database.OrderTerm{Column: r.cfg.KeyColumn})
	}
	return terms
}

type rowCursor struct {
	rows    *sql.Rows
	columns []string
	current model.Record
	err     error
}

func (c *rowCursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	values := make([]any, len(c.columns))
	ptrs := make([]any, len(c.columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		c.err = fmt.Errorf("scan row: %w", err)
		return false
	}
	rec := make(model.Record, len(c.columns))
	for i, col := range c.columns {
		if b, ok := values[i].([]byte); ok {
			rec[col] = string(b)
			continue
		}
		rec[col] = values[i]
	}
	c.current = rec
	return true
}

func (c *rowCursor) Record() model.Record { return c.current }

func (c *rowCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *rowCursor) Close() error { return c.rows.Close() }
