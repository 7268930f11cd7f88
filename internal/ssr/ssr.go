// Package ssr implements the server-render and client-hydrate
// sub-pipelines. Both compile the routes directory into a route table at
// build-start and serve two virtual modules: the framework entry and the
// routes module it imports. The server and client variants differ only in
// their virtual ids, output and bundler target, so they can run side by
// side in one composed pipeline.
package ssr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"golang.org/x/sync/singleflight"

	ssrerrors "github.com/conneroisu/ssrkit/internal/errors"
	"github.com/conneroisu/ssrkit/internal/framework"
	"github.com/conneroisu/ssrkit/internal/logging"
	"github.com/conneroisu/ssrkit/internal/metrics"
	"github.com/conneroisu/ssrkit/internal/pipeline"
	"github.com/conneroisu/ssrkit/internal/routes"
)

// Kind selects the server or client variant.
type Kind int

const (
	Server Kind = iota
	Client
)

// Virtual module ids and plugin names.
const (
	ServerName     = "ssrkit-server"
	ServerEntryID  = "virtual:ssrkit-entry"
	ServerRoutesID = "virtual:routes"
	ServerOutput   = "server.js"

	ClientName     = "ssrkit-client"
	ClientEntryID  = "virtual:ssrkit-client-entry"
	ClientRoutesID = "virtual:client-routes"
	ClientOutput   = "client.js"

	// RoutesAlias is the import prefix the routes module uses.
	RoutesAlias = "/routes"
)

func (k Kind) String() string {
	if k == Client {
		return "client"
	}
	return "server"
}

// Name returns the sub-pipeline name.
func (k Kind) Name() string {
	if k == Client {
		return ClientName
	}
	return ServerName
}

// EntryID returns the virtual id of the framework entry.
func (k Kind) EntryID() string {
	if k == Client {
		return ClientEntryID
	}
	return ServerEntryID
}

// RoutesID returns the virtual id of the routes module.
func (k Kind) RoutesID() string {
	if k == Client {
		return ClientRoutesID
	}
	return ServerRoutesID
}

// Output returns the entry file name of the bundle.
func (k Kind) Output() string {
	if k == Client {
		return ClientOutput
	}
	return ServerOutput
}

func (k Kind) target() framework.Target {
	if k == Client {
		return framework.TargetBrowser
	}
	return framework.TargetSSR
}

// Options configures one variant.
type Options struct {
	OutDir       string
	RoutesDir    string
	AppComponent string
	Framework    string
	// Props are declared props per route pattern.
	Props map[string]map[string]any
}

// DefaultOptions returns the documented defaults for kind.
func DefaultOptions(kind Kind) Options {
	opts := Options{
		OutDir:       "./dist/server",
		RoutesDir:    "./src/routes",
		AppComponent: "./src/App.svelte",
		Framework:    "svelte",
	}
	if kind == Client {
		opts.OutDir = "./dist/client"
	}
	return opts
}

func (o Options) withDefaults(kind Kind) Options {
	d := DefaultOptions(kind)
	if o.OutDir == "" {
		o.OutDir = d.OutDir
	}
	if o.RoutesDir == "" {
		o.RoutesDir = d.RoutesDir
	}
	if o.AppComponent == "" {
		o.AppComponent = d.AppComponent
	}
	if o.Framework == "" {
		o.Framework = d.Framework
	}
	return o
}

// Deps are the collaborators of a variant.
type Deps struct {
	Frameworks *framework.Registry
	// Walker defaults to routes.Walk.
	Walker  routes.Walker
	Logger  logging.Logger
	Metrics *metrics.Recorder
}

// snapshot is everything one build-start produces.
type snapshot struct {
	compiled *routes.Compiled
	entry    string
}

// Pipeline is one server or client sub-pipeline.
type Pipeline struct {
	kind    Kind
	opts    Options
	adapter framework.Adapter
	walk    routes.Walker
	logger  logging.Logger
	metrics *metrics.Recorder

	group singleflight.Group

	mu   sync.RWMutex
	snap *snapshot
}

// New returns the sub-pipeline of the given kind.
func New(kind Kind, opts Options, deps Deps) *Pipeline {
	opts = opts.withDefaults(kind)
	if deps.Walker == nil {
		deps.Walker = routes.Walk
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	return &Pipeline{
		kind:    kind,
		opts:    opts,
		adapter: deps.Frameworks.Lookup(opts.Framework),
		walk:    deps.Walker,
		logger:  deps.Logger.WithComponent(kind.Name()),
		metrics: deps.Metrics,
	}
}

// NewServer returns the server-render sub-pipeline.
func NewServer(opts Options, deps Deps) *Pipeline { return New(Server, opts, deps) }

// NewClient returns the client-hydrate sub-pipeline.
func NewClient(opts Options, deps Deps) *Pipeline { return New(Client, opts, deps) }

// Kind returns the variant.
func (p *Pipeline) Kind() Kind { return p.kind }

// Options returns the effective options.
func (p *Pipeline) Options() Options { return p.opts }

// Plugin exposes the sub-pipeline hooks.
func (p *Pipeline) Plugin() *pipeline.Plugin {
	return &pipeline.Plugin{
		Name:           p.kind.Name(),
		VirtualModules: []string{p.kind.EntryID(), p.kind.RoutesID()},
		Config:         p.Config,
		BuildStart:     p.BuildStart,
		ResolveID:      p.ResolveID,
		Load:           p.Load,
		CloseBundle:    p.CloseBundle,
	}
}

// Config adds this variant's output to cfg.
func (p *Pipeline) Config(cfg pipeline.Config) (pipeline.Config, error) {
	cfg.Outputs = append(cfg.Outputs, pipeline.Output{
		Name:          p.kind.Name(),
		Input:         p.kind.EntryID(),
		OutDir:        p.opts.OutDir,
		EntryFileName: p.kind.Output(),
		Format:        api.FormatESModule,
		SSR:           p.kind == Server,
		Minify:        false,
		EmptyOutDir:   true,
		Alias:         map[string]string{RoutesAlias: p.opts.RoutesDir},
		Plugins:       p.adapter.Plugins(p.kind.target()),
		Loaders:       p.adapter.Loaders(),
	})
	return cfg, nil
}

// BuildStart recompiles the route table and entry. Concurrent calls share
// one compilation; the result replaces the previous one wholesale.
func (p *Pipeline) BuildStart(ctx context.Context) error {
	_, err, _ := p.group.Do("buildStart", func() (interface{}, error) {
		return nil, p.buildStart(ctx)
	})
	return err
}

func (p *Pipeline) buildStart(ctx context.Context) error {
	compiled, err := routes.Build(p.opts.RoutesDir, p.adapter.Extension(), p.walk, routes.Options{
		ImportPrefix: RoutesAlias + "/",
		Props:        p.opts.Props,
	})
	if err != nil {
		p.logger.Error(ctx, err, "compiling routes failed", "dir", p.opts.RoutesDir)
		return err
	}

	var entry string
	if p.kind == Server {
		entry, err = p.adapter.ServerEntry(p.opts.AppComponent, p.kind.RoutesID())
	} else {
		entry, err = p.adapter.ClientEntry(p.opts.AppComponent, p.kind.RoutesID())
	}
	if err != nil {
		p.logger.Error(ctx, err, "generating entry failed", "framework", p.adapter.Name())
		return err
	}

	p.mu.Lock()
	p.snap = &snapshot{compiled: compiled, entry: entry}
	p.mu.Unlock()

	p.metrics.RoutesCompiled(len(compiled.Table))
	p.logger.Info(ctx, "resolved routes", "kind", p.kind.String(), "count", len(compiled.Table))
	for _, r := range compiled.Table {
		p.logger.Debug(ctx, fmt.Sprintf("     ./%s => %s", r.Pattern, r.File))
	}
	return nil
}

// ResolveID claims this variant's virtual ids.
func (p *Pipeline) ResolveID(id, _ string) (string, bool) {
	if id == p.kind.EntryID() || id == p.kind.RoutesID() {
		return id, true
	}
	return "", false
}

// ErrNotBuilt is returned by Load before the first build-start.
var ErrNotBuilt = errors.New("build-start has not run")

// Load returns the source of a virtual module owned by this variant.
func (p *Pipeline) Load(_ context.Context, id string) (string, bool, error) {
	if id != p.kind.EntryID() && id != p.kind.RoutesID() {
		return "", false, nil
	}
	snap := p.current()
	if snap == nil {
		return "", false, fmt.Errorf("%s: loading %s: %w", p.kind.Name(), id, ErrNotBuilt)
	}
	if id == p.kind.EntryID() {
		return snap.entry, true, nil
	}
	return snap.compiled.Source, true, nil
}

// CloseBundle reports the written bundle. A missing output directory is
// only a warning.
func (p *Pipeline) CloseBundle(ctx context.Context) error {
	if _, err := os.Stat(p.opts.OutDir); err != nil {
		if os.IsNotExist(err) {
			p.logger.Warn(ctx, nil, "output directory does not exist, skipping finalize", "dir", p.opts.OutDir)
			return nil
		}
		return ssrerrors.NewIOError(ssrerrors.ErrCodeBundleFailed, "checking output directory", err).WithFile(p.opts.OutDir)
	}
	p.logger.Info(ctx, "built "+p.kind.String()+" bundle", "file", filepath.Join(p.opts.OutDir, p.kind.Output()))
	return nil
}

// Table returns the route table of the last build-start.
func (p *Pipeline) Table() routes.Table {
	snap := p.current()
	if snap == nil {
		return nil
	}
	return snap.compiled.Table
}

// Resolve matches url against the current route table.
func (p *Pipeline) Resolve(url string, params map[string]any) (*routes.Match, error) {
	snap := p.current()
	if snap == nil {
		return nil, ErrNotBuilt
	}
	return snap.compiled.Table.Resolve(url, params)
}

func (p *Pipeline) current() *snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}
