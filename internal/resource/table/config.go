// Package table implements resources backed by a Postgres table or view declared in YAML.
package table

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/target/mmk-dataport/internal/filterspec"
)

// Column declares one exported and importable column.
type Column struct {
	Name string               `yaml:"name"`
	Type filterspec.FieldType `yaml:"type"`
}

// Filter exposes a column to query-string filtering.
type Filter struct {
	Name    string   `yaml:"name"`
	Lookups []string `yaml:"lookups"`
}

// ImportConfig controls how rows are written back.
type ImportConfig struct {
	// Disabled makes ImportBatch fail every row.
	Disabled bool `yaml:"disabled"`
	// SkipUnchanged reports rows whose stored values already match as skipped.
	SkipUnchanged bool `yaml:"skip_unchanged"`
}

// Config declares one table resource.
type Config struct {
	Key             string       `yaml:"key"`
	Table           string       `yaml:"table"`
	KeyColumn       string       `yaml:"key_column"`
	Columns         []Column     `yaml:"columns"`
	Filters         []Filter     `yaml:"filters"`
	SearchFields    []string     `yaml:"search_fields"`
	Ordering        []string     `yaml:"ordering"`
	DefaultOrdering []string     `yaml:"default_ordering"`
	Import          ImportConfig `yaml:"import"`
}

type file struct {
	Resources []Config `yaml:"resources"`
}

// LoadFile reads resource declarations from a YAML file.
func LoadFile(path string) ([]Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read resources file: %w", err)
	}
	cfgs, err := Parse(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfgs, nil
}

// Parse decodes and validates resource declarations. Unknown YAML keys are rejected.
func Parse(r io.Reader) ([]Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f file
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode resources: %w", err)
	}
	for i := range f.Resources {
		if err := f.Resources[i].normalize(); err != nil {
			return nil, err
		}
	}
	return f.Resources, nil
}

func (c *Config) normalize() error {
	c.Key = strings.TrimSpace(c.Key)
	if c.Key == "" {
		return errors.New("resource key is required")
	}
	if c.Table == "" {
		c.Table = c.Key
	}
	if c.KeyColumn == "" {
		c.KeyColumn = "id"
	}
	if len(c.Columns) == 0 {
		return fmt.Errorf("resource %s: columns are required", c.Key)
	}
	for i := range c.Columns {
		if c.Columns[i].Type == "" {
			c.Columns[i].Type = filterspec.TypeString
		}
	}
	if _, ok := c.column(c.KeyColumn); !ok {
		return fmt.Errorf("resource %s: key column %q is not a declared column", c.Key, c.KeyColumn)
	}
	for _, f := range c.Filters {
		if _, ok := c.column(f.Name); !ok {
			return fmt.Errorf("resource %s: filter %q is not a declared column", c.Key, f.Name)
		}
	}
	for _, o := range append(slices.Clone(c.Ordering), c.DefaultOrdering...) {
		if _, ok := c.column(strings.TrimPrefix(o, "-")); !ok {
			return fmt.Errorf("resource %s: ordering %q is not a declared column", c.Key, o)
		}
	}
	return nil
}

func (c *Config) column(name string) (Column, bool) {
	for _, col := range c.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// Schema derives the filter schema from the declared filters, search fields and ordering.
func (c *Config) Schema() filterspec.Schema {
	s := filterspec.Schema{
		SearchFields: c.SearchFields,
		Ordering:     c.Ordering,
	}
	for _, f := range c.Filters {
		col, _ := c.column(f.Name)
		s.Filters = append(s.Filters, filterspec.Field{Name: f.Name, Type: col.Type, Lookups: f.Lookups})
	}
	return s
}

func (c *Config) columnNames() []string {
	out := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		out[i] = col.Name
	}
	return out
}
