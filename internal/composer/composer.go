// Package composer builds the single plugin handed to the host bundler from
// the enabled capabilities. Capabilities are always registered in the order
// islands, server, client: islands must finish writing their entries before
// the server and client builds may reference them.
package composer

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/conneroisu/ssrkit/internal/bundler"
	"github.com/conneroisu/ssrkit/internal/framework"
	"github.com/conneroisu/ssrkit/internal/islands"
	"github.com/conneroisu/ssrkit/internal/logging"
	"github.com/conneroisu/ssrkit/internal/metrics"
	"github.com/conneroisu/ssrkit/internal/pipeline"
	"github.com/conneroisu/ssrkit/internal/routes"
	"github.com/conneroisu/ssrkit/internal/ssr"
)

// Options selects the capabilities. A nil field disables that capability.
type Options struct {
	Islands *islands.Options
	Server  *ssr.Options
	Client  *ssr.Options
}

// Enabled lists the enabled capabilities in registration order.
func (o Options) Enabled() []string {
	var names []string
	if o.Islands != nil {
		names = append(names, "islands")
	}
	if o.Server != nil {
		names = append(names, "server")
	}
	if o.Client != nil {
		names = append(names, "client")
	}
	return names
}

// Deps are shared by every sub-pipeline.
type Deps struct {
	Frameworks *framework.Registry
	Driver     *bundler.Driver
	Walker     routes.Walker
	Logger     logging.Logger
	Metrics    *metrics.Recorder
	Tracer     trace.Tracer
}

// Composed is the merged plugin plus handles on its sub-pipelines.
type Composed struct {
	Plugin  *pipeline.Plugin
	Islands *islands.Islands
	Server  *ssr.Pipeline
	Client  *ssr.Pipeline
}

// Empty reports whether no capability is enabled.
func (c *Composed) Empty() bool {
	return c.Islands == nil && c.Server == nil && c.Client == nil
}

// Compose instantiates the enabled capabilities and merges them. With none
// enabled the result is the no-op plugin and a warning is logged. Virtual
// module collisions are reported here, before any build runs.
func Compose(ctx context.Context, opts Options, deps Deps) (*Composed, error) {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if deps.Frameworks == nil {
		deps.Frameworks = framework.NewRegistry(nil)
	}

	c := &Composed{}
	var plugins []*pipeline.Plugin

	if opts.Islands != nil {
		logger.Info(ctx, "initializing islands plugin")
		if deps.Driver == nil {
			d, err := bundler.New("", logger, deps.Metrics)
			if err != nil {
				return nil, err
			}
			deps.Driver = d
		}
		c.Islands = islands.New(*opts.Islands, islands.Deps{
			Frameworks: deps.Frameworks,
			Driver:     deps.Driver,
			Walker:     deps.Walker,
			Logger:     logger,
			Metrics:    deps.Metrics,
		})
		plugins = append(plugins, c.Islands.Plugin())
	}

	ssrDeps := ssr.Deps{
		Frameworks: deps.Frameworks,
		Walker:     deps.Walker,
		Logger:     logger,
		Metrics:    deps.Metrics,
	}
	if opts.Server != nil {
		logger.Info(ctx, "initializing server plugin")
		c.Server = ssr.NewServer(*opts.Server, ssrDeps)
		plugins = append(plugins, c.Server.Plugin())
	}
	if opts.Client != nil {
		logger.Info(ctx, "initializing client plugin")
		c.Client = ssr.NewClient(*opts.Client, ssrDeps)
		plugins = append(plugins, c.Client.Plugin())
	}

	if len(plugins) == 0 {
		logger.Warn(ctx, nil, "no islands, server or client configuration given, nothing will be built")
		c.Plugin = pipeline.Empty()
		return c, nil
	}

	merged, err := pipeline.Merge(plugins, pipeline.MergeOptions{
		Logger:  logger,
		Metrics: deps.Metrics,
		Tracer:  deps.Tracer,
	})
	if err != nil {
		return nil, err
	}
	c.Plugin = merged
	return c, nil
}
