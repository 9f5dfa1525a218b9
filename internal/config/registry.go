package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mvanwyck/reverie/pkg/provider/embeddings"
	"github.com/mvanwyck/reverie/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// exists under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// factoryTable maps provider names to constructors for one provider kind.
type factoryTable[T any] struct {
	mu        sync.RWMutex
	kind      string
	factories map[string]func(ProviderEntry) (T, error)
}

func newFactoryTable[T any](kind string) factoryTable[T] {
	return factoryTable[T]{kind: kind, factories: map[string]func(ProviderEntry) (T, error){}}
}

func (t *factoryTable[T]) register(name string, factory func(ProviderEntry) (T, error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.factories[name] = factory
}

func (t *factoryTable[T]) create(entry ProviderEntry) (T, error) {
	t.mu.RLock()
	factory, ok := t.factories[entry.Name]
	t.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, t.kind, entry.Name)
	}
	return factory(entry)
}

// Registry holds the provider factories the composition root registers at
// startup: technical LLM backends and embedding backends. Registering the
// same name twice overwrites the earlier factory. Safe for concurrent use.
type Registry struct {
	llm        factoryTable[llm.Provider]
	embeddings factoryTable[embeddings.Provider]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:        newFactoryTable[llm.Provider]("llm"),
		embeddings: newFactoryTable[embeddings.Provider]("embeddings"),
	}
}

// RegisterLLM adds a technical LLM factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.llm.register(name, factory)
}

// RegisterEmbeddings adds an embeddings factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory func(ProviderEntry) (embeddings.Provider, error)) {
	r.embeddings.register(name, factory)
}

// CreateLLM instantiates the technical LLM provider named by entry.Name. The
// error wraps [ErrProviderNotRegistered] when the name is unknown.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return r.llm.create(entry)
}

// CreateEmbeddings instantiates the embeddings provider named by entry.Name.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	return r.embeddings.create(entry)
}
