package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/target/mmk-dataport/internal/core"
	"github.com/target/mmk-dataport/internal/domain/model"
)

// YAML writes a sequence of mappings whose keys follow the column order.
type YAML struct{}

func (YAML) Format() string      { return "yaml" }
func (YAML) Extension() string   { return "yaml" }
func (YAML) ContentType() string { return "application/yaml" }

func (YAML) NewEncoder(w io.Writer, columns []string) (core.RecordEncoder, error) {
	if len(columns) == 0 {
		return nil, errors.New("yaml: columns are required")
	}
	return &yamlEncoder{w: w, columns: columns}, nil
}

// NewDecoder reads the whole document; YAML sequences cannot be decoded item by item.
func (YAML) NewDecoder(r io.Reader) (core.RecordDecoder, error) {
	var rows []map[string]any
	if err := yaml.NewDecoder(r).Decode(&rows); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	return &yamlDecoder{rows: rows}, nil
}

type yamlEncoder struct {
	w       io.Writer
	columns []string
	n       int
}

// Encode writes rec as a one-item sequence so consecutive items form a single list.
func (e *yamlEncoder) Encode(rec model.Record) error {
	mapping := &yaml.Node{Kind: yaml.MappingNode}
	for _, col := range e.columns {
		var val yaml.Node
		if err := val.Encode(normalizeValue(rec[col])); err != nil {
			return fmt.Errorf("yaml: encode %s: %w", col, err)
		}
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: col},
			&val,
		)
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&yaml.Node{Kind: yaml.SequenceNode, Content: []*yaml.Node{mapping}}); err != nil {
		return fmt.Errorf("yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("yaml: %w", err)
	}
	if _, err := e.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("yaml: %w", err)
	}
	e.n++
	return nil
}

func (e *yamlEncoder) Close() error {
	if e.n == 0 {
		_, err := io.WriteString(e.w, "[]\n")
		return err
	}
	return nil
}

type yamlDecoder struct {
	rows []map[string]any
	pos  int
}

func (d *yamlDecoder) Next() (model.Record, error) {
	if d.pos >= len(d.rows) {
		return nil, io.EOF
	}
	row := d.rows[d.pos]
	d.pos++
	if row == nil {
		row = map[string]any{}
	}
	return model.Record(row), nil
}
