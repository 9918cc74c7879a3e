// Package codec converts records to and from the supported file formats.
package codec

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/target/mmk-dataport/internal/core"
	apperrors "github.com/target/mmk-dataport/internal/errors"
)

var (
	// ErrDuplicateFormat is returned when a format id is registered twice.
	ErrDuplicateFormat = errors.New("codec format already registered")
	// ErrInvalidCodec is returned for nil codecs or codecs with an empty format id.
	ErrInvalidCodec = errors.New("invalid codec")
)

// Registry maps stable format ids to codecs. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]core.Codec
}

var _ core.CodecRegistry = (*Registry)(nil)

// NewRegistry registers codecs in order and fails on the first invalid or duplicate one.
func NewRegistry(codecs ...core.Codec) (*Registry, error) {
	r := &Registry{codecs: make(map[string]core.Codec, len(codecs))}
	for _, c := range codecs {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewDefaultRegistry returns a registry with csv, json, jsonl and yaml.
func NewDefaultRegistry() *Registry {
	r, err := NewRegistry(CSV{}, JSON{}, JSONLines{}, YAML{})
	if err != nil {
		//nolint:forbidigo // built-in codecs are statically valid
		panic(fmt.Sprintf("register default codecs: %v", err))
	}
	return r
}

// Register adds c under c.Format().
func (r *Registry) Register(c core.Codec) error {
	if c == nil {
		return fmt.Errorf("%w: nil codec", ErrInvalidCodec)
	}
	format := normalize(c.Format())
	if format == "" {
		return fmt.Errorf("%w: empty format", ErrInvalidCodec)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.codecs[format]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateFormat, format)
	}
	r.codecs[format] = c
	return nil
}

// Get returns the codec for format or a validation error naming the file_format field.
func (r *Registry) Get(format string) (core.Codec, error) {
	r.mu.RLock()
	c, ok := r.codecs[normalize(format)]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.ValidationField("file_format",
			fmt.Sprintf("Unsupported file format %q. Expected one of: %s.", format, strings.Join(r.Formats(), ", ")))
	}
	return c, nil
}

// Has reports whether format is registered.
func (r *Registry) Has(format string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.codecs[normalize(format)]
	return ok
}

// Formats lists the registered format ids in sorted order.
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.codecs))
	for f := range r.codecs {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

func normalize(format string) string {
	return strings.ToLower(strings.TrimSpace(format))
}
