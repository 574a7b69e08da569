package providers

import (
	"fmt"
	"strings"
)

// Registry resolves route segments to descriptors.
// It is immutable after construction and safe for concurrent use.
type Registry struct {
	byRoute     map[string]Descriptor
	descriptors []Descriptor
}

// NewRegistry indexes descriptors by name and alias. Route segments are
// case-insensitive and must be unique.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{
		byRoute:     make(map[string]Descriptor),
		descriptors: make([]Descriptor, 0, len(descs)),
	}
	for _, d := range descs {
		for _, route := range d.Routes() {
			key := strings.ToLower(route)
			if existing, ok := r.byRoute[key]; ok {
				return nil, fmt.Errorf("route %q is claimed by both %s and %s", route, existing.Name, d.Name)
			}
			r.byRoute[key] = d
		}
		r.descriptors = append(r.descriptors, d)
	}
	return r, nil
}

// Lookup returns the descriptor serving route.
func (r *Registry) Lookup(route string) (Descriptor, bool) {
	d, ok := r.byRoute[strings.ToLower(route)]
	return d, ok
}

// Descriptors returns the registered descriptors in registration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Len returns the number of descriptors.
func (r *Registry) Len() int {
	return len(r.descriptors)
}
