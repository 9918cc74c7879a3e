// Package filterspec turns untrusted query parameters into a validated filter, search and
// ordering specification for a transfer job.
package filterspec

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FieldType is the type a filter value must coerce to.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeFloat   FieldType = "float"
	TypeBoolean FieldType = "boolean"
	TypeDate    FieldType = "date"
	TypeUUID    FieldType = "uuid"
)

// Lookups accepted after a "__" separator. "exact" is implied by the bare field name.
const (
	LookupExact       = "exact"
	LookupIExact      = "iexact"
	LookupIn          = "in"
	LookupContains    = "contains"
	LookupIContains   = "icontains"
	LookupStartsWith  = "startswith"
	LookupIStartsWith = "istartswith"
	LookupGT          = "gt"
	LookupGTE         = "gte"
	LookupLT          = "lt"
	LookupLTE         = "lte"
	LookupIsNull      = "isnull"
	LookupSearch      = "search"
)

// LookupSep separates a field name from its lookup.
const LookupSep = "__"

var (
	knownLookups = []string{
		LookupExact, LookupIExact, LookupIn, LookupContains, LookupIContains,
		LookupStartsWith, LookupIStartsWith, LookupGT, LookupGTE, LookupLT, LookupLTE, LookupIsNull,
	}
	textLookups = []string{LookupIExact, LookupContains, LookupIContains, LookupStartsWith, LookupIStartsWith}

	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Field declares a filterable field.
type Field struct {
	Name    string    `yaml:"name"    json:"name"`
	Type    FieldType `yaml:"type"    json:"type"`
	Lookups []string  `yaml:"lookups" json:"lookups,omitempty"`
}

// Schema declares what a resource lets callers filter, search and order by.
type Schema struct {
	Filters []Field `yaml:"filters" json:"filters"`
	// SearchFields use a one character prefix to pick the lookup: ^ starts-with, = exact, @ full-text,
	// none contains.
	SearchFields []string `yaml:"search_fields" json:"search_fields"`
	// Ordering lists orderable fields; empty means every filter field.
	Ordering []string `yaml:"ordering" json:"ordering,omitempty"`
}

// Validate checks field names, types and lookups.
func (s Schema) Validate() error {
	seen := make(map[string]struct{}, len(s.Filters))
	for _, f := range s.Filters {
		if !identRe.MatchString(f.Name) || strings.Contains(f.Name, LookupSep) {
			return fmt.Errorf("invalid filter field name %q", f.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("duplicate filter field %q", f.Name)
		}
		seen[f.Name] = struct{}{}
		if coercerFor(f.Type) == nil {
			return fmt.Errorf("filter field %q: unknown type %q", f.Name, f.Type)
		}
		for _, l := range f.Lookups {
			if !slices.Contains(knownLookups, l) {
				return fmt.Errorf("filter field %q: unknown lookup %q", f.Name, l)
			}
			if slices.Contains(textLookups, l) && f.Type != TypeString {
				return fmt.Errorf("filter field %q: lookup %q needs a string field", f.Name, l)
			}
		}
	}
	for _, sf := range s.SearchFields {
		name, _ := splitSearchField(sf)
		if !identRe.MatchString(name) {
			return fmt.Errorf("invalid search field %q", sf)
		}
	}
	for _, o := range s.Ordering {
		if !identRe.MatchString(o) {
			return fmt.Errorf("invalid ordering field %q", o)
		}
	}
	return nil
}

// orderable returns the set of fields accepted by the ordering parameter.
func (s Schema) orderable() map[string]struct{} {
	out := make(map[string]struct{})
	if len(s.Ordering) > 0 {
		for _, o := range s.Ordering {
			out[o] = struct{}{}
		}
		return out
	}
	for _, f := range s.Filters {
		out[f.Name] = struct{}{}
	}
	return out
}

// splitSearchField strips the lookup prefix from a declared search field.
func splitSearchField(sf string) (string, string) {
	switch {
	case strings.HasPrefix(sf, "^"):
		return sf[1:], LookupIStartsWith
	case strings.HasPrefix(sf, "="):
		return sf[1:], LookupIExact
	case strings.HasPrefix(sf, "@"):
		return sf[1:], LookupSearch
	default:
		return sf, LookupIContains
	}
}

// SplitFilterKey splits a resolved filter key into its field and lookup. Bare field names use
// LookupExact.
func SplitFilterKey(key string) (string, string) {
	if i := strings.LastIndex(key, LookupSep); i > 0 {
		return key[:i], key[i+len(LookupSep):]
	}
	return key, LookupExact
}

// ParseValue converts a validated filter value into a Go value of type t. Typed values ignore
// surrounding whitespace; text is returned exactly as given.
func ParseValue(t FieldType, v string) (any, error) {
	s := strings.TrimSpace(v)
	switch t {
	case TypeInteger:
		return strconv.ParseInt(s, 10, 64)
	case TypeFloat:
		return strconv.ParseFloat(s, 64)
	case TypeBoolean:
		if msg := boolCoercer(s); msg != "" {
			return nil, errors.New(msg)
		}
		return ParseBool(s), nil
	case TypeDate:
		return time.Parse(dateLayout, s)
	case TypeUUID:
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		return id.String(), nil
	default:
		return v, nil
	}
}
