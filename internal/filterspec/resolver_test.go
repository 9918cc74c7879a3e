package filterspec

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/target/mmk-dataport/internal/errors"
)

func artistSchema() Schema {
	return Schema{
		Filters: []Field{
			{Name: "id", Type: TypeInteger, Lookups: []string{LookupIn, LookupGTE}},
			{Name: "name", Type: TypeString, Lookups: []string{LookupIn, LookupIContains}},
			{Name: "active", Type: TypeBoolean},
			{Name: "debut", Type: TypeDate, Lookups: []string{LookupGT, LookupIsNull}},
			{Name: "external_id", Type: TypeUUID},
		},
		SearchFields: []string{"^name", "=name", "@bio", "instrument"},
	}
}

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver(artistSchema())
	require.NoError(t, err)
	return r
}

func mustParse(t *testing.T, raw string) url.Values {
	t.Helper()
	v, err := url.ParseQuery(raw)
	require.NoError(t, err)
	return v
}

func TestResolver_Filters(t *testing.T) {
	r := newTestResolver(t)

	tests := []struct {
		name  string
		query string
		want  map[string]string
	}{
		{name: "simple str filter", query: "name=Artist", want: map[string]string{"name": "Artist"}},
		{name: "simple int filter", query: "id=1", want: map[string]string{"id": "1"}},
		{name: "in filter verbatim", query: "name__in=Some,Artist", want: map[string]string{"name__in": "Some,Artist"}},
		{name: "int in filter", query: "id__in=1,2,3", want: map[string]string{"id__in": "1,2,3"}},
		{name: "unknown keys dropped", query: "nickname=x&page=2&format=csv", want: map[string]string{}},
		{name: "keys are case sensitive", query: "Name=Artist", want: map[string]string{}},
		{name: "undeclared lookup dropped", query: "name__startswith=A", want: map[string]string{}},
		{name: "last value wins", query: "name=A&name=B", want: map[string]string{"name": "B"}},
		{name: "isnull", query: "debut__isnull=true", want: map[string]string{"debut__isnull": "true"}},
		{
			name:  "mixed",
			query: "id__gte=10&active=false&debut__gt=2020-01-31",
			want:  map[string]string{"id__gte": "10", "active": "false", "debut__gt": "2020-01-31"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(mustParse(t, tt.query))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.FilterKwargs)
		})
	}
}

func TestResolver_FilterCoercionErrors(t *testing.T) {
	r := newTestResolver(t)

	tests := []struct {
		name      string
		query     string
		wantField string
		wantMsg   string
	}{
		{name: "non numeric id", query: "id=invalid_id", wantField: "id", wantMsg: "Enter a number."},
		{name: "bad item in int list", query: "id__in=1,x", wantField: "id__in", wantMsg: "Enter a number."},
		{name: "bad boolean", query: "active=maybe", wantField: "active", wantMsg: "Enter a valid boolean."},
		{name: "bad date", query: "debut__gt=31/01/2020", wantField: "debut__gt", wantMsg: "Enter a valid date."},
		{name: "bad uuid", query: "external_id=nope", wantField: "external_id", wantMsg: "Enter a valid UUID."},
		{name: "first key in order reported", query: "id=x&active=maybe", wantField: "active", wantMsg: "Enter a valid boolean."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(mustParse(t, tt.query))
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			assert.Equal(t, tt.wantField, apperrors.GetField(err))

			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantMsg, appErr.Message)
		})
	}
}

func TestResolver_Search(t *testing.T) {
	r := newTestResolver(t)

	got, err := r.Resolve(mustParse(t, "q=beat&q=ignored"))
	require.NoError(t, err)
	// "=name" dedupes onto the first "^name" declaration
	assert.Equal(t, map[string]string{
		"name__istartswith":     "beat",
		"bio__search":           "beat",
		"instrument__icontains": "beat",
	}, got.Search)

	got, err = r.Resolve(url.Values{})
	require.NoError(t, err)
	assert.Equal(t, "", got.Search["name__istartswith"])
	assert.Len(t, got.Search, 3)
}

func TestResolver_SearchPrefixes(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{"^title", "title__istartswith"},
		{"=title", "title__iexact"},
		{"@title", "title__search"},
		{"title", "title__icontains"},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			r, err := NewResolver(Schema{SearchFields: []string{tt.field}})
			require.NoError(t, err)
			got, err := r.Resolve(mustParse(t, "q=x"))
			require.NoError(t, err)
			assert.Equal(t, map[string]string{tt.want: "x"}, got.Search)
		})
	}
}

func TestResolver_Ordering(t *testing.T) {
	r := newTestResolver(t)

	t.Run("single", func(t *testing.T) {
		got, err := r.Resolve(mustParse(t, "ordering=name"))
		require.NoError(t, err)
		assert.Equal(t, []string{"name"}, got.Ordering)
	})

	t.Run("many with descending", func(t *testing.T) {
		got, err := r.Resolve(mustParse(t, "ordering=name%2C-id"))
		require.NoError(t, err)
		assert.Equal(t, []string{"name", "-id"}, got.Ordering)
	})

	t.Run("empty tokens ignored", func(t *testing.T) {
		got, err := r.Resolve(mustParse(t, "ordering=,name,"))
		require.NoError(t, err)
		assert.Equal(t, []string{"name"}, got.Ordering)
	})

	t.Run("absent", func(t *testing.T) {
		got, err := r.Resolve(url.Values{})
		require.NoError(t, err)
		assert.Empty(t, got.Ordering)
		assert.NotNil(t, got.Ordering)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := r.Resolve(mustParse(t, "ordering=bogus_field"))
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
		assert.Equal(t, OrderingParam, apperrors.GetField(err))
		assert.Contains(t, err.Error(), "bogus_field")
	})

	t.Run("unknown descending field", func(t *testing.T) {
		_, err := r.Resolve(mustParse(t, "ordering=name,-invalid_id"))
		require.Error(t, err)
		assert.Equal(t, "Cannot resolve keyword 'invalid_id' into field.", err.Error())
	})

	t.Run("explicit orderable list", func(t *testing.T) {
		rr, err := NewResolver(Schema{
			Filters:  []Field{{Name: "id", Type: TypeInteger}},
			Ordering: []string{"created_at"},
		})
		require.NoError(t, err)
		_, err = rr.Resolve(mustParse(t, "ordering=id"))
		require.Error(t, err)
		got, err := rr.Resolve(mustParse(t, "ordering=-created_at"))
		require.NoError(t, err)
		assert.Equal(t, []string{"-created_at"}, got.Ordering)
	})
}

func TestSchema_Validate(t *testing.T) {
	tests := []struct {
		name    string
		schema  Schema
		wantErr string
	}{
		{name: "bad name", schema: Schema{Filters: []Field{{Name: "na me"}}}, wantErr: "invalid filter field name"},
		{name: "lookup sep in name", schema: Schema{Filters: []Field{{Name: "a__b"}}}, wantErr: "invalid filter field name"},
		{
			name:    "duplicate",
			schema:  Schema{Filters: []Field{{Name: "id", Type: TypeInteger}, {Name: "id"}}},
			wantErr: "duplicate filter field",
		},
		{name: "unknown type", schema: Schema{Filters: []Field{{Name: "id", Type: "money"}}}, wantErr: "unknown type"},
		{
			name:    "unknown lookup",
			schema:  Schema{Filters: []Field{{Name: "id", Type: TypeInteger, Lookups: []string{"regex"}}}},
			wantErr: "unknown lookup",
		},
		{
			name:    "text lookup on integer",
			schema:  Schema{Filters: []Field{{Name: "id", Type: TypeInteger, Lookups: []string{LookupIContains}}}},
			wantErr: "needs a string field",
		},
		{name: "bad search field", schema: Schema{SearchFields: []string{"^"}}, wantErr: "invalid search field"},
		{name: "bad ordering", schema: Schema{Ordering: []string{"a;drop"}}, wantErr: "invalid ordering field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResolver(tt.schema)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.Panics(t, func() { MustNewResolver(Schema{Filters: []Field{{Name: ""}}}) })
}

func TestResolver_Permitted(t *testing.T) {
	r := newTestResolver(t)
	assert.True(t, r.Permitted("name"))
	assert.True(t, r.Permitted("name__in"))
	assert.False(t, r.Permitted("name__gt"))
	assert.False(t, r.Permitted(OrderingParam))
}

func TestParseBool(t *testing.T) {
	assert.True(t, ParseBool("TRUE"))
	assert.True(t, ParseBool("1"))
	assert.False(t, ParseBool("no"))
}

func TestSplitFilterKey(t *testing.T) {
	tests := []struct {
		key, field, lookup string
	}{
		{"name", "name", LookupExact},
		{"name__icontains", "name", LookupIContains},
		{"first_name__in", "first_name", LookupIn},
		{"__gt", "__gt", LookupExact},
	}
	for _, tt := range tests {
		field, lookup := SplitFilterKey(tt.key)
		assert.Equal(t, tt.field, field, tt.key)
		assert.Equal(t, tt.lookup, lookup, tt.key)
	}
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue(TypeInteger, " 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = ParseValue(TypeFloat, "1.5")
	require.NoError(t, err)
	assert.InDelta(t, 1.5, v, 0)

	v, err = ParseValue(TypeBoolean, "yes")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = ParseValue(TypeDate, "2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), v)

	v, err = ParseValue(TypeUUID, "6BA7B810-9DAD-11D1-80B4-00C04FD430C8")
	require.NoError(t, err)
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", v)

	v, err = ParseValue(TypeString, " kept ")
	require.NoError(t, err)
	assert.Equal(t, " kept ", v, "text keeps its whitespace")

	for _, bad := range []struct {
		t FieldType
		v string
	}{{TypeInteger, "x"}, {TypeFloat, "x"}, {TypeBoolean, "maybe"}, {TypeDate, "2024-13-01"}, {TypeUUID, "nope"}} {
		_, err := ParseValue(bad.t, bad.v)
		assert.Error(t, err, "%s %q", bad.t, bad.v)
	}
}
