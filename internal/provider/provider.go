// Package provider is the model-provider boundary. The core treats a
// provider as a plain call: prompt in, content out. Retries, streaming, and
// HTTP details belong to provider client implementations, not here.
package provider

import (
	"context"
	"sync"

	"github.com/switchboardhq/switchboard/internal/cherr"
)

// Invoker is one model provider client.
type Invoker interface {
	// Invoke produces a completion for prompt. It must honor ctx
	// cancellation; the coordinator applies the per-call timeout.
	Invoke(ctx context.Context, model, prompt string) (string, error)
}

// Registry maps model ids to invokers.
type Registry struct {
	mu           sync.RWMutex
	invokers     map[string]Invoker
	defaultModel string
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{invokers: make(map[string]Invoker)}
}

// Register binds a model id to an invoker. The first registered model
// becomes the default unless SetDefault overrides it.
func (r *Registry) Register(model string, inv Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.invokers) == 0 && r.defaultModel == "" {
		r.defaultModel = model
	}
	r.invokers[model] = inv
}

// SetDefault sets the model used when a prompt names none.
func (r *Registry) SetDefault(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultModel = model
}

// Default returns the default model id, if any.
func (r *Registry) Default() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultModel, r.defaultModel != ""
}

// For returns the invoker for a model id.
func (r *Registry) For(model string) (Invoker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.invokers[model]
	if !ok {
		return nil, cherr.New(cherr.ProviderFailure, "no provider for model %q", model)
	}
	return inv, nil
}
