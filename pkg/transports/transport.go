// Package transports defines how a built request reaches the bot service.
// Implementations live in subpackages and are constructed through a Registry.
package transports

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/harunnryd/lexturn/pkg/lex"
	"github.com/harunnryd/lexturn/pkg/metrics"
	"github.com/harunnryd/lexturn/pkg/request"
)

// Transport sends one turn and returns the bot's response. Implementations
// must stop reading an audio body when ctx is cancelled.
type Transport interface {
	Name() string
	PostContent(ctx context.Context, req *request.Request) (*lex.Response, error)
}

// Closer is implemented by transports that hold connections.
type Closer interface {
	Close() error
}

// ReadyReporter exposes readiness metadata for startup logs.
type ReadyReporter interface {
	ReadyFields() map[string]any
}

// Options carries the collaborators shared by every transport.
type Options struct {
	Logger      *slog.Logger
	Observer    metrics.Observer
	Credentials request.CredentialsProvider
}

// Factory builds a transport from its free-form settings.
type Factory func(settings map[string]any, opts Options) (Transport, error)

// Registry maps provider names to factories. Names are case-insensitive.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[normalize(name)] = factory
}

func (r *Registry) Build(name string, settings map[string]any, opts Options) (Transport, error) {
	r.mu.RLock()
	fn := r.factories[normalize(name)]
	r.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("transport provider not registered: %s", name)
	}
	return fn(settings, opts)
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
