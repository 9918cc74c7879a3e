// Package database renders parameterized SELECT statements for job listings and table resources.
// Identifiers are always quoted; values are always bound.
package database

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Op is a binary comparison operator.
type Op string

const (
	OpEq    Op = "="
	OpGT    Op = ">"
	OpGTE   Op = ">="
	OpLT    Op = "<"
	OpLTE   Op = "<="
	OpLike  Op = "LIKE"
	OpILike Op = "ILIKE"
)

// Predicate is one WHERE term. Predicates that render to "" are dropped.
type Predicate interface {
	render(b *binder) string
}

// binder accumulates positional arguments.
type binder struct {
	args []any
}

func (b *binder) bind(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

type comparison struct {
	column string
	op     Op
	value  any
}

// Compare matches column op value.
func Compare(column string, op Op, value any) Predicate {
	return comparison{column: column, op: op, value: value}
}

func (c comparison) render(b *binder) string {
	if c.column == "" {
		return ""
	}
	return QuoteIdentifier(c.column) + " " + string(c.op) + " " + b.bind(c.value)
}

type nullCheck struct {
	column string
	isNull bool
}

// Null matches rows where column IS NULL, or IS NOT NULL when isNull is false.
func Null(column string, isNull bool) Predicate {
	return nullCheck{column: column, isNull: isNull}
}

func (n nullCheck) render(*binder) string {
	if n.isNull {
		return QuoteIdentifier(n.column) + " IS NULL"
	}
	return QuoteIdentifier(n.column) + " IS NOT NULL"
}

type membership struct {
	column string
	values []any
}

// In matches any of values, one placeholder each. An empty list matches nothing.
func In(column string, values []any) Predicate {
	return membership{column: column, values: values}
}

func (m membership) render(b *binder) string {
	if len(m.values) == 0 {
		return "false"
	}
	marks := make([]string, len(m.values))
	for i, v := range m.values {
		marks[i] = b.bind(v)
	}
	return QuoteIdentifier(m.column) + " IN (" + strings.Join(marks, ", ") + ")"
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

type raw struct {
	sql    string
	params []any
}

// Raw embeds a hand written predicate. Its placeholders count from $1 over params and are
// renumbered on render; a repeated placeholder binds its argument once. The SQL is not sanitized.
func Raw(sql string, params ...any) Predicate {
	return raw{sql: sql, params: params}
}

func (r raw) render(b *binder) string {
	if len(r.params) == 0 {
		return r.sql
	}
	seen := make(map[int]string, len(r.params))
	return placeholderRe.ReplaceAllStringFunc(r.sql, func(m string) string {
		n, err := strconv.Atoi(m[1:])
		if err != nil || n < 1 || n > len(r.params) {
			return m
		}
		if mark, ok := seen[n]; ok {
			return mark
		}
		seen[n] = b.bind(r.params[n-1])
		return seen[n]
	})
}

type anyOf []Predicate

// AnyOf joins preds with OR.
func AnyOf(preds ...Predicate) Predicate {
	return anyOf(preds)
}

func (a anyOf) render(b *binder) string {
	parts := renderAll(b, a)
	if len(parts) > 1 {
		return "(" + strings.Join(parts, " OR ") + ")"
	}
	return strings.Join(parts, "")
}

func renderAll(b *binder, preds []Predicate) []string {
	parts := make([]string, 0, len(preds))
	for _, p := range preds {
		if s := p.render(b); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

// OrderTerm is one ORDER BY column.
type OrderTerm struct {
	Column string
	Desc   bool
}

// ParseOrderTerm reads "-field" as descending and "field" as ascending.
func ParseOrderTerm(token string) OrderTerm {
	if name, ok := strings.CutPrefix(token, "-"); ok {
		return OrderTerm{Column: name, Desc: true}
	}
	return OrderTerm{Column: token}
}

// Select describes a single-table query. A zero Limit or Offset is omitted.
type Select struct {
	From    string
	Columns []string
	Where   []Predicate
	OrderBy []OrderTerm
	Limit   int
	Offset  int
}

// SQL renders the row query.
func (s Select) SQL() (string, []any) {
	var (
		b   binder
		sb  strings.Builder
		col = "*"
	)
	if len(s.Columns) > 0 {
		quoted := make([]string, len(s.Columns))
		for i, c := range s.Columns {
			quoted[i] = QuoteIdentifier(c)
		}
		col = strings.Join(quoted, ", ")
	}
	sb.WriteString("SELECT " + col + " FROM " + QuoteIdentifier(s.From))
	s.writeWhere(&sb, &b)

	var order []string
	for _, t := range s.OrderBy {
		if t.Column == "" {
			continue
		}
		term := QuoteIdentifier(t.Column)
		if t.Desc {
			term += " DESC"
		}
		order = append(order, term)
	}
	if len(order) > 0 {
		sb.WriteString(" ORDER BY " + strings.Join(order, ", "))
	}
	if s.Limit > 0 {
		sb.WriteString(" LIMIT " + b.bind(s.Limit))
	}
	if s.Offset > 0 {
		sb.WriteString(" OFFSET " + b.bind(s.Offset))
	}
	return sb.String(), b.args
}

// CountSQL renders COUNT(*) over the same filter, ignoring columns, ordering and paging.
func (s Select) CountSQL() (string, []any) {
	var (
		b  binder
		sb strings.Builder
	)
	sb.WriteString("SELECT COUNT(*) FROM " + QuoteIdentifier(s.From))
	s.writeWhere(&sb, &b)
	return sb.String(), b.args
}

func (s Select) writeWhere(sb *strings.Builder, b *binder) {
	if parts := renderAll(b, s.Where); len(parts) > 0 {
		sb.WriteString(" WHERE " + strings.Join(parts, " AND "))
	}
}

// QuoteIdentifier quotes a possibly qualified identifier such as "schema.table".
func QuoteIdentifier(ident string) string {
	return pgx.Identifier(strings.Split(ident, ".")).Sanitize()
}

// EscapeLike escapes LIKE wildcards so value matches literally.
func EscapeLike(value string) string {
	return likeEscaper.Replace(value)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
