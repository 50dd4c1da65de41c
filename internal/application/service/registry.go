package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"optexity/internal/application/port/output"
	"optexity/internal/domain/entity"
)

// LLMFactory builds a client for one provider and model.
type LLMFactory func(ctx context.Context, model string) (output.LLMPort, error)

type provider struct {
	factory      LLMFactory
	defaultModel string
	models       map[string]bool
}

// ModelRegistry maps provider names to client factories and the models they
// accept.
type ModelRegistry struct {
	mu        sync.RWMutex
	providers map[string]*provider
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{providers: make(map[string]*provider)}
}

// Register adds a provider. The first model is its default; an empty model
// list accepts any model name.
func (r *ModelRegistry) Register(name string, factory LLMFactory, models ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := &provider{factory: factory, models: make(map[string]bool, len(models))}
	for i, m := range models {
		if i == 0 {
			p.defaultModel = m
		}
		p.models[m] = true
	}
	r.providers[name] = p
}

func (r *ModelRegistry) Resolve(ctx context.Context, name, model string) (output.LLMPort, error) {
	r.mu.RLock()
	p, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, entity.ConfigErrorf("unknown llm provider %q (known: %v)", name, r.Providers())
	}

	if model == "" {
		model = p.defaultModel
	}
	if model == "" {
		return nil, entity.ConfigErrorf("llm provider %q needs a model name", name)
	}
	if len(p.models) > 0 && !p.models[model] {
		return nil, entity.ConfigErrorf("model %q is not registered for provider %q", model, name)
	}

	llm, err := p.factory(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", name, err)
	}
	return llm, nil
}

func (r *ModelRegistry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
