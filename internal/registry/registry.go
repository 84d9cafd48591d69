// Package registry implements the capability/plugin registry (§4.10): a
// thread-safe name -> {provider, manifest} map the planner reads to learn
// what actions a capability supports and the negotiator/worker pool read
// to dispatch to registered plugin providers.
package registry

import (
	"fmt"
	"sort"
	"sync"
)

// ArgSpec describes one argument a capability action accepts.
type ArgSpec struct {
	Type     string
	Required bool
	Default  interface{}
}

// ActionManifest documents one action a capability exposes to the planner.
type ActionManifest struct {
	Description string
	Args        map[string]ArgSpec
	Effects     []string
}

// Manifest is the full set of actions a capability supports.
type Manifest struct {
	Actions map[string]ActionManifest
}

// Plugin is anything registrable as a provider: it executes a named action
// synchronously and, if it implements AsyncPlugin too, asynchronously.
type Plugin interface {
	Execute(action string, args map[string]interface{}) (interface{}, error)
}

// AsyncPlugin is the optional async entry a Plugin may additionally offer;
// the worker pool prefers it when present.
type AsyncPlugin interface {
	ExecuteAsync(action string, args map[string]interface{}) (interface{}, error)
}

type entry struct {
	plugin   Plugin
	manifest Manifest
}

// Registry is a thread-safe capability/plugin registry.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func New() *Registry {
	return &Registry{entries: map[string]entry{}}
}

// Register adds name -> (plugin, manifest). overwrite controls whether an
// existing registration under the same name may be replaced.
func (r *Registry) Register(name string, plugin Plugin, manifest Manifest, overwrite bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists && !overwrite {
		return fmt.Errorf("registry: %q already registered", name)
	}
	r.entries[name] = entry{plugin: plugin, manifest: manifest}
	return nil
}

// Unregister removes name, if present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// Lookup returns the plugin registered under name.
func (r *Registry) Lookup(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.plugin, true
}

// Manifest returns the manifest registered under name.
func (r *Registry) Manifest(name string) (Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Manifest{}, false
	}
	return e.manifest, true
}

// List returns every registered capability name, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExportedManifest is one capability's manifest plus the metadata the DSL
// generator and negotiator need to rank providers (§6.2): whether the
// capability currently has a live plugin bound, and whether that plugin
// offers the async execution path.
type ExportedManifest struct {
	Name     string   `json:"name"`
	Manifest Manifest `json:"manifest"`
	Metadata ExportedMetadata `json:"metadata"`
}

// ExportedMetadata describes a capability entry without exposing the
// plugin value itself.
type ExportedMetadata struct {
	Bound bool `json:"bound"`
	Async bool `json:"async"`
}

// ExportManifests renders the full name -> {manifest, metadata} mapping
// described in §6.2, sorted by name for deterministic serialization (e.g.
// handing a stable capability catalog to an LLM-style planner prompt).
func (r *Registry) ExportManifests() []ExportedManifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ExportedManifest, 0, len(names))
	for _, name := range names {
		e := r.entries[name]
		_, async := e.plugin.(AsyncPlugin)
		out = append(out, ExportedManifest{
			Name:     name,
			Manifest: e.manifest,
			Metadata: ExportedMetadata{Bound: e.plugin != nil, Async: async},
		})
	}
	return out
}
