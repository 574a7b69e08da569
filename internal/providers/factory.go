// Package providers provides a factory for creating provider descriptors.
package providers

import (
	"fmt"
	"sort"
)

// Builder creates a descriptor from resolved configuration.
type Builder func(cfg ProviderConfig) Descriptor

// Registration is exported by each provider package.
type Registration struct {
	Type string
	New  Builder
}

// ProviderFactory holds the registered provider builders.
type ProviderFactory struct {
	builders map[string]Builder
}

// NewProviderFactory creates an empty factory.
func NewProviderFactory() *ProviderFactory {
	return &ProviderFactory{builders: make(map[string]Builder)}
}

// Add registers a provider type. A later registration of the same type wins.
func (f *ProviderFactory) Add(reg Registration) {
	f.builders[reg.Type] = reg.New
}

// Create builds and validates the descriptor for cfg.
func (f *ProviderFactory) Create(cfg ProviderConfig) (Descriptor, error) {
	builder, ok := f.builders[cfg.Type]
	if !ok {
		return Descriptor{}, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
	desc := builder(cfg)
	if cfg.BaseURL != "" {
		desc.BaseURL = cfg.BaseURL
	}
	if err := desc.Validate(); err != nil {
		return Descriptor{}, err
	}
	return desc, nil
}

// ListRegistered returns all registered provider types, sorted.
func (f *ProviderFactory) ListRegistered() []string {
	types := make([]string, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Build creates a Registry from every configured provider.
func (f *ProviderFactory) Build(configs map[string]ProviderConfig) (*Registry, error) {
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	descs := make([]Descriptor, 0, len(names))
	for _, name := range names {
		desc, err := f.Create(configs[name])
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		descs = append(descs, desc)
	}
	return NewRegistry(descs...)
}
