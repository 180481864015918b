package provider

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/ak7sky/asn-service/internal/core"
	"github.com/ak7sky/asn-service/internal/logger"
)

type Factory func(cfg Config, log logger.Logger) (core.Provider, error)

// Registry maps provider names to factories.
type Registry struct {
	mtx       sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in providers.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{
		"bgpview": func(cfg Config, log logger.Logger) (core.Provider, error) {
			return NewBGPView(cfg, log), nil
		},
		"ripestat": func(cfg Config, log logger.Logger) (core.Provider, error) {
			return NewRIPEstat(cfg, log), nil
		},
		"ipinfo": func(cfg Config, log logger.Logger) (core.Provider, error) {
			return NewIPinfo(cfg, log), nil
		},
		"geolite": func(cfg Config, log logger.Logger) (core.Provider, error) {
			return NewGeoLite(cfg, log)
		},
	}}
}

// Register adds or replaces a provider factory.
func (r *Registry) Register(name string, factory Factory) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.factories[strings.ToLower(name)] = factory
}

func (r *Registry) New(name string, cfg Config, log logger.Logger) (core.Provider, error) {
	r.mtx.RLock()
	factory, found := r.factories[strings.ToLower(name)]
	r.mtx.RUnlock()
	if !found {
		return nil, fmt.Errorf("%w: %s, known providers: %s", ErrUnknownProvider, name, strings.Join(r.Names(), ", "))
	}
	return factory(cfg, log)
}

func (r *Registry) Names() []string {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// New builds one of the built-in providers.
func New(name string, cfg Config, log logger.Logger) (core.Provider, error) {
	return NewRegistry().New(name, cfg, log)
}
