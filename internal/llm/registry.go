package llm

import "fmt"

// Factory constructs a Backend from a JSON-decoded configuration map.
// Registered under a provider name so backends can be created from
// on-disk config without the caller importing every provider package.
type Factory func(cfg map[string]any) (Backend, error)

// BackendRegistry holds constructed backends and the factories that can
// build more of them, and routes model names to a configured backend.
type BackendRegistry struct {
	factories map[string]Factory
	backends  map[string]Backend // provider name -> constructed backend
	models    map[string]string  // model name -> provider name
	fallback  Backend
}

// NewBackendRegistry creates an empty registry. fallback, if non-nil,
// is used for models with no explicit mapping.
func NewBackendRegistry(fallback Backend) *BackendRegistry {
	return &BackendRegistry{
		factories: make(map[string]Factory),
		backends:  make(map[string]Backend),
		models:    make(map[string]string),
		fallback:  fallback,
	}
}

// RegisterFactory makes a provider buildable via Create.
func (r *BackendRegistry) RegisterFactory(provider string, factory Factory) {
	r.factories[provider] = factory
}

// Create builds a backend via its registered factory and stores it
// under provider for later routing.
func (r *BackendRegistry) Create(provider string, cfg map[string]any) (Backend, error) {
	factory, ok := r.factories[provider]
	if !ok {
		return nil, fmt.Errorf("llm: no factory registered for provider %q", provider)
	}
	backend, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("llm: create backend %q: %w", provider, err)
	}
	r.backends[provider] = backend
	return backend, nil
}

// AddBackend registers an already-constructed backend directly.
func (r *BackendRegistry) AddBackend(provider string, backend Backend) {
	r.backends[provider] = backend
}

// MapModel routes a model name to a provider registered via Create or
// AddBackend.
func (r *BackendRegistry) MapModel(modelName, provider string) {
	r.models[modelName] = provider
}

// BackendFor returns the backend mapped to model, falling back to the
// registry's default fallback backend.
func (r *BackendRegistry) BackendFor(model string) (Backend, error) {
	if provider, ok := r.models[model]; ok {
		if backend, ok := r.backends[provider]; ok {
			return backend, nil
		}
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("llm: no backend configured for model %q", model)
}

// FindBestBackend returns a registered backend whose Capabilities
// satisfy every true field of want (MaxContext is satisfied when the
// backend's is >= want.MaxContext). Backends are scanned in map order,
// not registration order, so when several qualify which one is
// returned is not defined.
func (r *BackendRegistry) FindBestBackend(want Capabilities) (Backend, error) {
	for _, backend := range r.backends {
		caps := backend.Capabilities()
		if want.Streaming && !caps.Streaming {
			continue
		}
		if want.Multimodal && !caps.Multimodal {
			continue
		}
		if want.FunctionCalling && !caps.FunctionCalling {
			continue
		}
		if want.ThinkingDisplay && !caps.ThinkingDisplay {
			continue
		}
		if want.MaxContext > 0 && caps.MaxContext < want.MaxContext {
			continue
		}
		return backend, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("llm: no backend satisfies requested capabilities")
}
