// Package framework generates the framework-specific entry sources for the
// server-render, client-hydrate and island bundles.
//
// Each UI framework is an Adapter looked up by tag in a Registry. Adapters
// that exist but cannot produce an entry yet return an error wrapping
// errors.ErrNotImplemented instead of falling back silently; only unknown
// tags fall back to the framework-agnostic default adapter.
package framework

import (
	"sort"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
)

// Target is the environment a bundle is built for.
type Target int

const (
	TargetBrowser Target = iota
	TargetSSR
)

// String returns the compiler flag value for the target.
func (t Target) String() string {
	if t == TargetSSR {
		return "ssr"
	}
	return "dom"
}

// IslandCode is the framework-specific part of an island loader.
type IslandCode struct {
	// Import brings the component (and any runtime) into scope as
	// Component.
	Import string
	// Mount is an expression that hydrates Component into el with props.
	Mount string
}

// Adapter produces entry sources and bundler plugins for one framework.
type Adapter interface {
	Name() string
	// Extension is the component file extension, including the dot.
	Extension() string
	ServerEntry(appComponent, routesID string) (string, error)
	ClientEntry(appComponent, routesID string) (string, error)
	Island(componentFile string) (IslandCode, error)
	Plugins(target Target) []api.Plugin
	Loaders() map[string]api.Loader
}

// DefaultTag names the framework-agnostic adapter.
const DefaultTag = "default"

// Registry maps framework tags to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry returns a registry holding the built-in adapters. compiler is
// used by adapters whose components need an external compiler; it may be
// nil when no such framework is used.
func NewRegistry(compiler Compiler) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	r.Register(defaultAdapter{})
	r.Register(&svelteAdapter{compiler: compiler})
	r.Register(reactAdapter{})
	r.Register(vueAdapter{version: "vue2"})
	r.Register(vueAdapter{version: "vue3"})
	return r
}

// Register adds or replaces the adapter for its tag.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Lookup returns the adapter for tag, or the default adapter when no adapter
// is registered for it.
func (r *Registry) Lookup(tag string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.adapters[tag]; ok {
		return a
	}
	return r.adapters[DefaultTag]
}

// Has reports whether an adapter is registered for tag.
func (r *Registry) Has(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.adapters[tag]
	return ok
}

// Tags lists the registered framework tags, sorted.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.adapters))
	for tag := range r.adapters {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// ExtensionFor returns the component extension for a framework tag.
func ExtensionFor(tag string) string {
	switch tag {
	case "react":
		return ".jsx"
	case "vue2", "vue3":
		return ".vue"
	case "svelte":
		return ".svelte"
	default:
		return ".js"
	}
}
