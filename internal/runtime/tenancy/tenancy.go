// Package tenancy resolves services scoped to the tenant a request runs for.
package tenancy

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ServiceProvider resolves named services for one tenant.
type ServiceProvider interface {
	Get(name string) (any, bool)
}

// TenantScopedProviders hands out the ServiceProvider for a tenant.
type TenantScopedProviders interface {
	ForTenant(tenant uuid.UUID) ServiceProvider
}

// Services is a static ServiceProvider.
type Services map[string]any

func (s Services) Get(name string) (any, bool) {
	v, ok := s[name]
	return v, ok
}

// ProviderFactory builds the provider for a tenant the first time it is seen.
type ProviderFactory func(tenant uuid.UUID) ServiceProvider

// Providers caches one ServiceProvider per tenant.
type Providers struct {
	factory ProviderFactory

	mu        sync.RWMutex
	providers map[uuid.UUID]ServiceProvider
}

// NewProviders returns TenantScopedProviders backed by factory. A nil factory
// yields empty providers.
func NewProviders(factory ProviderFactory) *Providers {
	if factory == nil {
		factory = func(uuid.UUID) ServiceProvider { return Services{} }
	}
	return &Providers{factory: factory, providers: make(map[uuid.UUID]ServiceProvider)}
}

// Shared returns providers that give every tenant the same services.
func Shared(services Services) *Providers {
	return NewProviders(func(uuid.UUID) ServiceProvider { return services })
}

func (p *Providers) ForTenant(tenant uuid.UUID) ServiceProvider {
	p.mu.RLock()
	provider, ok := p.providers[tenant]
	p.mu.RUnlock()
	if ok {
		return provider
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if provider, ok := p.providers[tenant]; ok {
		return provider
	}
	provider = p.factory(tenant)
	if provider == nil {
		provider = Services{}
	}
	p.providers[tenant] = provider
	return provider
}

// Resolve fetches a typed service from provider.
func Resolve[T any](provider ServiceProvider, name string) (T, error) {
	var zero T
	if provider == nil {
		return zero, fmt.Errorf("tenancy: no service provider for %q", name)
	}
	raw, ok := provider.Get(name)
	if !ok {
		return zero, fmt.Errorf("tenancy: service %q is not registered", name)
	}
	typed, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("tenancy: service %q has type %T, want %T", name, raw, zero)
	}
	return typed, nil
}
