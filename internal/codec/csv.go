package codec

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/target/mmk-dataport/internal/core"
	"github.com/target/mmk-dataport/internal/domain/model"
)

// CSV writes a header row followed by one row per record. Decoded values are strings.
type CSV struct{}

func (CSV) Format() string      { return "csv" }
func (CSV) Extension() string   { return "csv" }
func (CSV) ContentType() string { return "text/csv" }

func (CSV) NewEncoder(w io.Writer, columns []string) (core.RecordEncoder, error) {
	if len(columns) == 0 {
		return nil, errors.New("csv: columns are required")
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	return &csvEncoder{w: cw, columns: columns, row: make([]string, len(columns))}, nil
}

func (CSV) NewDecoder(r io.Reader) (core.RecordDecoder, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &csvDecoder{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	return &csvDecoder{r: cr, header: header}, nil
}

type csvEncoder struct {
	w       *csv.Writer
	columns []string
	row     []string
}

func (e *csvEncoder) Encode(rec model.Record) error {
	for i, col := range e.columns {
		e.row[i] = FormatValue(rec[col])
	}
	if err := e.w.Write(e.row); err != nil {
		return fmt.Errorf("csv: write row: %w", err)
	}
	return nil
}

func (e *csvEncoder) Close() error {
	e.w.Flush()
	return e.w.Error()
}

type csvDecoder struct {
	r      *csv.Reader
	header []string
}

func (d *csvDecoder) Next() (model.Record, error) {
	if d.r == nil {
		return nil, io.EOF
	}
	for {
		row, err := d.r.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				err = fmt.Errorf("csv: %w", err)
			}
			return nil, err
		}
		if isBlankRow(row) {
			continue
		}
		rec := make(model.Record, len(d.header))
		for i, col := range d.header {
			if col == "" {
				continue
			}
			if i < len(row) {
				rec[col] = row[i]
			} else {
				rec[col] = ""
			}
		}
		return rec, nil
	}
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
