package provider

import (
	"fmt"
	"strings"
	"sync"
)

// Registry holds all registered provider adapters. Provider selection happens
// exactly once per dispatch, through this lookup; nothing else branches on
// provider strings.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Provider]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: map[Provider]Adapter{},
	}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("adapter is nil")
	}
	name := normalizeProvider(adapter.Name().String())
	if name == "" {
		return fmt.Errorf("provider name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("provider already registered: %s", name)
	}
	r.adapters[name] = adapter
	return nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(adapter Adapter) {
	if err := r.Register(adapter); err != nil {
		panic(err)
	}
}

// Get returns the adapter for the given provider.
func (r *Registry) Get(p Provider) (Adapter, bool) {
	name := normalizeProvider(p.String())
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[name]
	return adapter, ok
}

// ParseProvider validates and normalizes a raw string into a registered Provider.
func (r *Registry) ParseProvider(raw string) (Provider, error) {
	name := normalizeProvider(raw)
	if name == "" {
		return "", fmt.Errorf("unsupported provider: %s", raw)
	}
	if _, ok := r.Get(name); !ok {
		return "", fmt.Errorf("unsupported provider: %s", raw)
	}
	return name, nil
}

// Names returns all registered provider names.
func (r *Registry) Names() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]Provider, 0, len(r.adapters))
	for name := range r.adapters {
		items = append(items, name)
	}
	return items
}

// GetVerifier returns the Verifier for the provider, or false if the adapter
// does not support authenticity checks.
func (r *Registry) GetVerifier(p Provider) (Verifier, bool) {
	adapter, ok := r.Get(p)
	if !ok {
		return nil, false
	}
	verifier, ok := adapter.(Verifier)
	return verifier, ok
}

// GetSender returns the Sender for the provider, or false if unsupported.
func (r *Registry) GetSender(p Provider) (Sender, bool) {
	adapter, ok := r.Get(p)
	if !ok {
		return nil, false
	}
	sender, ok := adapter.(Sender)
	return sender, ok
}

// GetWebhookRegistrar returns the WebhookRegistrar for the provider, or false
// if unsupported.
func (r *Registry) GetWebhookRegistrar(p Provider) (WebhookRegistrar, bool) {
	adapter, ok := r.Get(p)
	if !ok {
		return nil, false
	}
	registrar, ok := adapter.(WebhookRegistrar)
	return registrar, ok
}

// GetStatusChecker returns the StatusChecker for the provider, or false if
// unsupported.
func (r *Registry) GetStatusChecker(p Provider) (StatusChecker, bool) {
	adapter, ok := r.Get(p)
	if !ok {
		return nil, false
	}
	checker, ok := adapter.(StatusChecker)
	return checker, ok
}

func normalizeProvider(raw string) Provider {
	normalized := strings.TrimSpace(strings.ToLower(raw))
	if normalized == "" {
		return ""
	}
	return Provider(normalized)
}
