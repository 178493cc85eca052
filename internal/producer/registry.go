package producer

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Registry routes a request to the producer registered for its provider
// label, falling back to a default.
type Registry struct {
	mu        sync.RWMutex
	producers map[string]Producer
	fallback  Producer
}

var _ Producer = (*Registry)(nil)

// NewRegistry creates a registry that uses fallback for unknown labels.
func NewRegistry(fallback Producer) *Registry {
	return &Registry{producers: make(map[string]Producer), fallback: fallback}
}

// Register binds label to p. Labels are case-insensitive.
func (r *Registry) Register(label string, p Producer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.producers[normalizeLabel(label)] = p
}

// Lookup returns the producer for label.
func (r *Registry) Lookup(label string) Producer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.producers[normalizeLabel(label)]; ok {
		return p
	}
	return r.fallback
}

// Produce implements Producer.
func (r *Registry) Produce(ctx context.Context, req Request) (Result, error) {
	p := r.Lookup(req.Provider)
	if p == nil {
		return Result{}, fmt.Errorf("no producer registered for provider %q", req.Provider)
	}
	return p.Produce(ctx, req)
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
