package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// maxBodyBytes caps request bodies. Start requests only name a format and a source file.
const maxBodyBytes = 64 << 10

// ErrorBody is the JSON document of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// DecodeJSON reads a single JSON object from the request into dst, rejecting unknown fields.
// An empty body leaves dst as is. On failure it answers 400 invalid_json and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	switch {
	case errors.Is(err, io.EOF):
		return true
	case err == nil && dec.More():
		err = errors.New("body must hold a single JSON object")
	case err == nil:
		return true
	}
	WriteError(w, http.StatusBadRequest, ErrorBody{Error: "invalid_json", Message: err.Error()})
	return false
}

// WriteJSON encodes v as the response body. Encoding happens before the status is sent so a
// failure can still become a plain 500.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(b, '\n'))
}

// WriteError writes body with status.
func WriteError(w http.ResponseWriter, status int, body ErrorBody) {
	WriteJSON(w, status, body)
}
