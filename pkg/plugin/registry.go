// Package plugin is a registry of speech and language providers. Provider
// packages register a factory per kind from init(), and the application
// builds instances by kind and name from configuration.
package plugin

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Provider kinds.
const (
	KindSTT = "stt"
	KindTTS = "tts"
	KindLLM = "llm"
)

// ErrNotRegistered is returned when no factory exists for a kind and name.
var ErrNotRegistered = errors.New("plugin not registered")

// Factory creates a new provider instance from configuration. The returned
// value is an stt.Transcriber, tts.TTS or llm.LLM depending on the kind.
type Factory func(cfg map[string]any) (any, error)

// Plugin represents a registered plugin with its metadata.
type Plugin struct {
	Kind        string         // "stt", "tts", "llm"
	Name        string         // e.g. "openai", "elevenlabs"
	Factory     Factory        // Factory function to create instances
	Description string         // Human-readable description
	Version     string         // Plugin version
	Config      map[string]any // Configuration keys and their meaning
}

// Registry manages plugin registration and lookup.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]map[string]*Plugin // [kind][name]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]map[string]*Plugin)}
}

var globalRegistry = NewRegistry()

// Default returns the process-wide registry that provider packages register
// into.
func Default() *Registry { return globalRegistry }

// Register adds a plugin to the global registry. It is meant to be called
// from init() and panics on invalid or duplicate registrations.
func Register(kind, name string, factory Factory) {
	globalRegistry.Register(kind, name, factory)
}

// RegisterWithMetadata adds a plugin with metadata to the global registry.
func RegisterWithMetadata(p *Plugin) {
	globalRegistry.RegisterWithMetadata(p)
}

// Get retrieves a plugin factory from the global registry.
func Get(kind, name string) (Factory, bool) {
	return globalRegistry.Get(kind, name)
}

// List returns registered plugins of kind, or all plugins if kind is empty.
func List(kind string) []*Plugin {
	return globalRegistry.List(kind)
}

func (r *Registry) Register(kind, name string, factory Factory) {
	r.RegisterWithMetadata(&Plugin{Kind: kind, Name: name, Factory: factory})
}

func (r *Registry) RegisterWithMetadata(p *Plugin) {
	switch {
	case p.Kind == "":
		panic("plugin kind cannot be empty")
	case p.Name == "":
		panic("plugin name cannot be empty")
	case p.Factory == nil:
		panic("plugin factory cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.plugins[p.Kind] == nil {
		r.plugins[p.Kind] = make(map[string]*Plugin)
	}
	if existing, ok := r.plugins[p.Kind][p.Name]; ok {
		panic(fmt.Sprintf("plugin %s/%s already registered (existing version: %s, new version: %s)",
			p.Kind, p.Name, existing.Version, p.Version))
	}
	r.plugins[p.Kind][p.Name] = p
}

func (r *Registry) Get(kind, name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plugins[kind][name]
	if !ok {
		return nil, false
	}
	return p.Factory, true
}

// List returns plugins sorted by kind then name.
func (r *Registry) List(kind string) []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Plugin
	for k, byName := range r.plugins {
		if kind != "" && k != kind {
			continue
		}
		for _, p := range byName {
			out = append(out, p)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Create runs the factory registered for kind and name.
func (r *Registry) Create(kind, name string, cfg map[string]any) (any, error) {
	factory, ok := r.Get(kind, name)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotRegistered, kind, name)
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	v, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s/%s: %w", kind, name, err)
	}
	return v, nil
}
