package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-dataport/internal/core"
	"github.com/target/mmk-dataport/internal/domain/model"
	apperrors "github.com/target/mmk-dataport/internal/errors"
)

var testColumns = []string{"id", "name", "active"}

func testRecords() []model.Record {
	return []model.Record{
		{"id": int64(1), "name": "Some, Artist", "active": true},
		{"id": int64(2), "name": "Other", "active": false, "ignored": "x"},
	}
}

func encodeAll(t *testing.T, c core.Codec, columns []string, recs []model.Record) string {
	t.Helper()
	var buf bytes.Buffer
	enc, err := c.NewEncoder(&buf, columns)
	require.NoError(t, err)
	for _, r := range recs {
		require.NoError(t, enc.Encode(r))
	}
	require.NoError(t, enc.Close())
	return buf.String()
}

func decodeAll(t *testing.T, c core.Codec, in string) []model.Record {
	t.Helper()
	dec, err := c.NewDecoder(strings.NewReader(in))
	require.NoError(t, err)
	var out []model.Record
	for {
		rec, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestCSV(t *testing.T) {
	out := encodeAll(t, CSV{}, testColumns, testRecords())
	assert.Equal(t, "id,name,active\n1,\"Some, Artist\",true\n2,Other,false\n", out)

	recs := decodeAll(t, CSV{}, out)
	require.Len(t, recs, 2)
	assert.Equal(t, model.Record{"id": "1", "name": "Some, Artist", "active": "true"}, recs[0])
}

func TestCSV_DecodeEdgeCases(t *testing.T) {
	recs := decodeAll(t, CSV{}, "\ufeffid, name\n1\n\n2,B,extra\n")
	require.Len(t, recs, 2)
	assert.Equal(t, model.Record{"id": "1", "name": ""}, recs[0])
	assert.Equal(t, model.Record{"id": "2", "name": "B"}, recs[1])

	assert.Empty(t, decodeAll(t, CSV{}, ""))

	_, err := CSV{}.NewEncoder(io.Discard, nil)
	require.Error(t, err)
}

func TestJSON(t *testing.T) {
	out := encodeAll(t, JSON{}, testColumns, testRecords())
	assert.Equal(t, `[{"id":1,"name":"Some, Artist","active":true},{"id":2,"name":"Other","active":false}]`, out)

	recs := decodeAll(t, JSON{}, out)
	require.Len(t, recs, 2)
	assert.Equal(t, json.Number("1"), recs[0]["id"])
	assert.Equal(t, true, recs[0]["active"])

	assert.Equal(t, "[]", encodeAll(t, JSON{}, testColumns, nil))
	assert.Empty(t, decodeAll(t, JSON{}, "[]"))
	assert.Empty(t, decodeAll(t, JSON{}, ""))

	_, err := JSON{}.NewDecoder(strings.NewReader(`{"id":1}`))
	require.Error(t, err)
}

func TestJSONLines(t *testing.T) {
	out := encodeAll(t, JSONLines{}, testColumns, testRecords())
	assert.Equal(t, "{\"id\":1,\"name\":\"Some, Artist\",\"active\":true}\n{\"id\":2,\"name\":\"Other\",\"active\":false}\n", out)

	recs := decodeAll(t, JSONLines{}, out+"\n")
	require.Len(t, recs, 2)
	assert.Equal(t, "Other", recs[1]["name"])

	dec, err := JSONLines{}.NewDecoder(strings.NewReader("{\"id\":1}\nnot json\n"))
	require.NoError(t, err)
	_, err = dec.Next()
	require.NoError(t, err)
	_, err = dec.Next()
	require.Error(t, err)
	assert.False(t, errors.Is(err, io.EOF))
}

func TestYAML(t *testing.T) {
	out := encodeAll(t, YAML{}, testColumns, testRecords())
	assert.Equal(t, "- id: 1\n  name: Some, Artist\n  active: true\n- id: 2\n  name: Other\n  active: false\n", out)

	recs := decodeAll(t, YAML{}, out)
	require.Len(t, recs, 2)
	assert.Equal(t, 1, recs[0]["id"])
	assert.Equal(t, "Some, Artist", recs[0]["name"])

	assert.Equal(t, "[]\n", encodeAll(t, YAML{}, testColumns, nil))
	assert.Empty(t, decodeAll(t, YAML{}, "[]\n"))
	assert.Empty(t, decodeAll(t, YAML{}, ""))
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{[]byte("b"), "b"},
		{true, "true"},
		{42, "42"},
		{int64(-7), "-7"},
		{1.25, "1.25"},
		{json.Number("3.5"), "3.5"},
		{ts, "2024-05-01T12:00:00Z"},
		{[]int{1}, "[1]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatValue(tt.in))
	}
}

func TestRegistry(t *testing.T) {
	r := NewDefaultRegistry()
	assert.Equal(t, []string{"csv", "json", "jsonl", "yaml"}, r.Formats())
	assert.True(t, r.Has(" CSV "))
	assert.False(t, r.Has("xlsx"))

	c, err := r.Get("json")
	require.NoError(t, err)
	assert.Equal(t, "application/json", c.ContentType())

	_, err = r.Get("xlsx")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "file_format", appErr.Field)

	require.ErrorIs(t, r.Register(CSV{}), ErrDuplicateFormat)
	require.ErrorIs(t, r.Register(nil), ErrInvalidCodec)
	require.ErrorIs(t, r.Register(blankCodec{}), ErrInvalidCodec)

	_, err = NewRegistry(CSV{}, CSV{})
	require.ErrorIs(t, err, ErrDuplicateFormat)
}

type blankCodec struct{ CSV }

func (blankCodec) Format() string { return " " }
