// Package provider adapts streaming chat backends to one fragment iterator.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/petasbytes/recagent/internal/model"
)

// FragmentType classifies a streamed fragment.
type FragmentType string

const (
	FragmentContent   FragmentType = "content"
	FragmentReasoning FragmentType = "reasoning"
	FragmentError     FragmentType = "error"
)

// Valid reports whether t is one of the three known fragment types.
func (t FragmentType) Valid() bool {
	switch t {
	case FragmentContent, FragmentReasoning, FragmentError:
		return true
	}
	return false
}

// Fragment is one unit of streamed model output.
type Fragment struct {
	Type    FragmentType `json:"type"`
	Content string       `json:"content"`
}

// Credentials authenticate against one provider. Empty fields fall back to
// the SDK's own environment lookup.
type Credentials struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`
}

// Request is a single streaming completion call.
type Request struct {
	Model     string
	System    string
	Messages  []model.Message
	MaxTokens int64
}

// Stream follows the SDK iterator shape.
type Stream interface {
	Next() bool
	Current() Fragment
	Err() error
	Close() error
}

// Backend opens streams against one provider.
type Backend interface {
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Factory builds a Backend from credentials.
type Factory func(ctx context.Context, creds Credentials) (Backend, error)

// ErrUnknownProvider is returned by Registry.Open for unregistered names.
var ErrUnknownProvider = errors.New("unknown provider")

// Registry maps provider names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry registers anthropic, openai, gemini and the offline demo backend.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("anthropic", NewAnthropic)
	r.Register("openai", NewOpenAI)
	r.Register("gemini", NewGemini)
	r.Register("demo", func(context.Context, Credentials) (Backend, error) { return NewDemo(0), nil })
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Open builds the named backend.
func (r *Registry) Open(ctx context.Context, name string, creds Credentials) (Backend, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return f(ctx, creds)
}

// Names lists registered providers, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// sdkStream is the iterator shape shared by the anthropic and openai SSE streams.
type sdkStream[T any] interface {
	Next() bool
	Current() T
	Err() error
	Close() error
}
