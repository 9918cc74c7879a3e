package codec

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/target/mmk-dataport/internal/core"
	"github.com/target/mmk-dataport/internal/domain/model"
)

// JSON writes a single array of objects whose keys follow the column order.
type JSON struct{}

func (JSON) Format() string      { return "json" }
func (JSON) Extension() string   { return "json" }
func (JSON) ContentType() string { return "application/json" }

func (JSON) NewEncoder(w io.Writer, columns []string) (core.RecordEncoder, error) {
	bw := bufio.NewWriter(w)
	if err := bw.WriteByte('['); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	return &jsonEncoder{w: bw, columns: columns}, nil
}

func (JSON) NewDecoder(r io.Reader) (core.RecordDecoder, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return &jsonDecoder{done: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, errors.New("json: expected an array of objects")
	}
	return &jsonDecoder{dec: dec}, nil
}

type jsonEncoder struct {
	w       *bufio.Writer
	columns []string
	n       int
}

func (e *jsonEncoder) Encode(rec model.Record) error {
	if e.n > 0 {
		if err := e.w.WriteByte(','); err != nil {
			return fmt.Errorf("json: %w", err)
		}
	}
	e.n++
	return writeObject(e.w, e.columns, rec)
}

func (e *jsonEncoder) Close() error {
	if err := e.w.WriteByte(']'); err != nil {
		return fmt.Errorf("json: %w", err)
	}
	return e.w.Flush()
}

type jsonDecoder struct {
	dec  *json.Decoder
	done bool
}

func (d *jsonDecoder) Next() (model.Record, error) {
	if d.done || !d.dec.More() {
		d.done = true
		return nil, io.EOF
	}
	var rec model.Record
	if err := d.dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	if rec == nil {
		rec = model.Record{}
	}
	return rec, nil
}

// JSONLines writes one object per line.
type JSONLines struct{}

func (JSONLines) Format() string      { return "jsonl" }
func (JSONLines) Extension() string   { return "jsonl" }
func (JSONLines) ContentType() string { return "application/x-ndjson" }

func (JSONLines) NewEncoder(w io.Writer, columns []string) (core.RecordEncoder, error) {
	return &jsonLinesEncoder{w: bufio.NewWriter(w), columns: columns}, nil
}

func (JSONLines) NewDecoder(r io.Reader) (core.RecordDecoder, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &jsonLinesDecoder{dec: dec}, nil
}

type jsonLinesEncoder struct {
	w       *bufio.Writer
	columns []string
}

func (e *jsonLinesEncoder) Encode(rec model.Record) error {
	if err := writeObject(e.w, e.columns, rec); err != nil {
		return err
	}
	return e.w.WriteByte('\n')
}

func (e *jsonLinesEncoder) Close() error {
	return e.w.Flush()
}

type jsonLinesDecoder struct {
	dec *json.Decoder
}

func (d *jsonLinesDecoder) Next() (model.Record, error) {
	var rec model.Record
	if err := d.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("jsonl: %w", err)
	}
	if rec == nil {
		rec = model.Record{}
	}
	return rec, nil
}

// writeObject writes rec as a JSON object with keys in column order. Without columns the keys are
// written in encoding/json map order.
func writeObject(w *bufio.Writer, columns []string, rec model.Record) error {
	if len(columns) == 0 {
		b, err := json.Marshal(normalizeRecord(rec))
		if err != nil {
			return fmt.Errorf("json: %w", err)
		}
		_, err = w.Write(b)
		return err
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(col)
		if err != nil {
			return fmt.Errorf("json: %w", err)
		}
		v, err := json.Marshal(normalizeValue(rec[col]))
		if err != nil {
			return fmt.Errorf("json: encode %s: %w", col, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	_, err := w.Write(buf.Bytes())
	return err
}

func normalizeRecord(rec model.Record) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		out[k] = normalizeValue(v)
	}
	return out
}
