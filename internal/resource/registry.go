// Package resource registers the datasets that jobs export from and import into.
package resource

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/target/mmk-dataport/internal/core"
	"github.com/target/mmk-dataport/internal/domain/model"
	apperrors "github.com/target/mmk-dataport/internal/errors"
	"github.com/target/mmk-dataport/internal/filterspec"
)

var (
	// ErrDuplicateKey is returned when a resource key is registered twice.
	ErrDuplicateKey = errors.New("resource key already registered")
	// ErrInvalidDefinition is returned for definitions with an empty key or nil factory.
	ErrInvalidDefinition = errors.New("invalid resource definition")
)

// Definition describes a registrable resource.
type Definition struct {
	Key     string
	Schema  filterspec.Schema
	Factory core.ResourceFactory
}

type entry struct {
	factory  core.ResourceFactory
	resolver *filterspec.Resolver
}

// Registry maps stable resource keys to factories and their filter resolvers.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

var _ core.ResourceRegistry = (*Registry)(nil)

// NewRegistry registers defs in order and fails on the first invalid one.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{entries: make(map[string]entry, len(defs))}
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register validates def and its filter schema.
func (r *Registry) Register(def Definition) error {
	key := strings.TrimSpace(def.Key)
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidDefinition)
	}
	if def.Factory == nil {
		return fmt.Errorf("%w: %s has no factory", ErrInvalidDefinition, key)
	}
	resolver, err := filterspec.NewResolver(def.Schema)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidDefinition, key, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}
	r.entries[key] = entry{factory: def.Factory, resolver: resolver}
	return nil
}

// Has reports whether key is registered.
func (r *Registry) Has(key string) bool {
	_, ok := r.lookup(key)
	return ok
}

// Keys lists registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for k := range r.entries {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Open builds the resource named by desc.
func (r *Registry) Open(desc model.ResourceDescriptor) (core.Resource, error) {
	e, ok := r.lookup(desc.Key)
	if !ok {
		return nil, unknownResource(desc.Key)
	}
	res, err := e.factory(desc.Args)
	if err != nil {
		return nil, fmt.Errorf("open resource %s: %w", desc.Key, err)
	}
	return res, nil
}

// Resolver returns the filter resolver for key.
func (r *Registry) Resolver(key string) (*filterspec.Resolver, error) {
	e, ok := r.lookup(key)
	if !ok {
		return nil, unknownResource(key)
	}
	return e.resolver, nil
}

func (r *Registry) lookup(key string) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	return e, ok
}

func unknownResource(key string) error {
	return apperrors.ValidationField("resource", fmt.Sprintf("Unknown resource %q.", key))
}
