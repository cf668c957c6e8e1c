package transport

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"

	errpkg "github.com/drblury/runtimeclient/internal/runtime/errors"
)

type registration struct {
	build Builder
	caps  Capabilities
}

// Registry maps RuntimeTransport names to pub/sub backends. Names are
// case-insensitive and surrounding whitespace is ignored.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
}

// DefaultRegistry holds every backend registered by the packages under
// transport/.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds or replaces a backend without declared capabilities.
func (r *Registry) Register(name string, builder Builder) {
	r.RegisterWithCapabilities(name, builder, Capabilities{Name: normalize(name)})
}

// RegisterWithCapabilities adds or replaces a backend.
func (r *Registry) RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	r.mu.Lock()
	r.entries[normalize(name)] = registration{build: builder, caps: caps}
	r.mu.Unlock()
}

// Lookup returns the builder and capabilities registered under name.
func (r *Registry) Lookup(name string) (Builder, Capabilities, bool) {
	r.mu.RLock()
	e, ok := r.entries[normalize(name)]
	r.mu.RUnlock()
	return e.build, e.caps, ok
}

// GetCapabilities returns what the named backend supports. Unknown names
// yield capabilities carrying only the name.
func (r *Registry) GetCapabilities(name string) Capabilities {
	if _, caps, ok := r.Lookup(name); ok {
		return caps
	}
	return Capabilities{Name: name}
}

// Build opens the backend named by cfg.GetRuntimeTransport. A nil logger
// discards backend logs.
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	if cfg == nil {
		return Transport{}, errpkg.ErrConfigRequired
	}
	name := normalize(cfg.GetRuntimeTransport())
	build, _, ok := r.Lookup(name)
	if !ok {
		return Transport{}, fmt.Errorf("%w: %q (registered: %s)", errpkg.ErrUnknownTransport, name, strings.Join(r.Names(), ", "))
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	t, err := build(ctx, cfg, logger.With(watermill.LogFields{"transport": name}))
	if err != nil {
		return Transport{}, fmt.Errorf("build %s transport: %w", name, err)
	}
	return t, nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.entries))
}

func (r *Registry) Has(name string) bool {
	_, _, ok := r.Lookup(name)
	return ok
}

func Register(name string, builder Builder) {
	DefaultRegistry.Register(name, builder)
}

func RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	DefaultRegistry.RegisterWithCapabilities(name, builder, caps)
}

// Build opens a backend from DefaultRegistry.
func Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}
