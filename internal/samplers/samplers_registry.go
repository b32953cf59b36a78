package samplers

import (
	"fmt"
	"sort"
)

// SamplersRegistry holds the available samplers by name.
type SamplersRegistry struct {
	samplers map[string]Sampler
}

// NewSamplersRegistry creates a new SamplersRegistry instance.
func NewSamplersRegistry() *SamplersRegistry {
	return &SamplersRegistry{
		samplers: make(map[string]Sampler),
	}
}

// Register adds a sampler to the registry, replacing one with the same name.
func (r *SamplersRegistry) Register(sampler Sampler) {
	r.samplers[sampler.Name()] = sampler
}

// Get returns the sampler registered under name.
func (r *SamplersRegistry) Get(name string) (Sampler, error) {
	sampler, ok := r.samplers[name]
	if !ok {
		return nil, fmt.Errorf("unknown sampler %q (available: %v)", name, r.Names())
	}
	return sampler, nil
}

// Names returns the registered sampler names in sorted order.
func (r *SamplersRegistry) Names() []string {
	names := make([]string, 0, len(r.samplers))
	for name := range r.samplers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
