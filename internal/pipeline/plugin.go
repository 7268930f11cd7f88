// Package pipeline defines the hook contract sub-pipelines implement and the
// merge that turns an ordered list of them into the single plugin handed to
// the host bundler.
//
// A Plugin is a struct with optional hook slots; a nil slot means the
// sub-pipeline does not take part in that stage. Merge iterates the declared
// order and never inspects hooks by name.
package pipeline

import (
	"context"

	"github.com/evanw/esbuild/pkg/api"
)

// Output is one bundle the host bundler produces.
type Output struct {
	// Name identifies the output in logs, usually the owning plugin.
	Name string
	// Input is the entry module id, often a virtual id.
	Input         string
	OutDir        string
	EntryFileName string
	Format        api.Format
	SSR           bool
	Minify        bool
	EmptyOutDir   bool
	// Alias entries apply to this output only and win over Config.Alias.
	Alias   map[string]string
	Plugins []api.Plugin
	Loaders map[string]api.Loader
}

// Config is the bundler configuration threaded through every Config hook.
type Config struct {
	Outputs []Output
	// Alias maps import prefixes to directories.
	Alias    map[string]string
	LogLevel api.LogLevel
}

// Clone returns a copy that can be modified without touching c.
func (c Config) Clone() Config {
	out := Config{LogLevel: c.LogLevel}
	out.Outputs = append(out.Outputs, c.Outputs...)
	if c.Alias != nil {
		out.Alias = make(map[string]string, len(c.Alias))
		for k, v := range c.Alias {
			out.Alias[k] = v
		}
	}
	return out
}

// Plugin is one sub-pipeline.
type Plugin struct {
	Name string
	// VirtualModules lists the ids this plugin resolves and loads.
	VirtualModules []string

	Config     func(cfg Config) (Config, error)
	BuildStart func(ctx context.Context) error
	// ResolveID returns the resolved id and true when the plugin owns id.
	ResolveID func(id, importer string) (string, bool)
	// Load returns the module source and true when the plugin owns id.
	Load        func(ctx context.Context, id string) (string, bool, error)
	CloseBundle func(ctx context.Context) error
}

// Owns reports whether id is one of the plugin's virtual modules.
func (p *Plugin) Owns(id string) bool {
	for _, v := range p.VirtualModules {
		if v == id {
			return true
		}
	}
	return false
}

// Hooks lists the names of the hook slots the plugin fills.
func (p *Plugin) Hooks() []string {
	var hooks []string
	if p.Config != nil {
		hooks = append(hooks, "config")
	}
	if p.BuildStart != nil {
		hooks = append(hooks, "buildStart")
	}
	if p.ResolveID != nil {
		hooks = append(hooks, "resolveId")
	}
	if p.Load != nil {
		hooks = append(hooks, "load")
	}
	if p.CloseBundle != nil {
		hooks = append(hooks, "closeBundle")
	}
	return hooks
}

// EmptyName is the name of the plugin returned when nothing is enabled.
const EmptyName = "ssrkit-empty"

// Empty returns a plugin whose every hook is a no-op.
func Empty() *Plugin {
	return &Plugin{
		Name:        EmptyName,
		Config:      func(cfg Config) (Config, error) { return cfg, nil },
		BuildStart:  func(context.Context) error { return nil },
		ResolveID:   func(string, string) (string, bool) { return "", false },
		Load:        func(context.Context, string) (string, bool, error) { return "", false, nil },
		CloseBundle: func(context.Context) error { return nil },
	}
}
