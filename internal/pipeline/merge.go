package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	ssrerrors "github.com/conneroisu/ssrkit/internal/errors"
	"github.com/conneroisu/ssrkit/internal/logging"
	"github.com/conneroisu/ssrkit/internal/metrics"
)

// MergedName is the name of the plugin Merge returns.
const MergedName = "ssrkit"

const tracerName = "github.com/conneroisu/ssrkit/internal/pipeline"

// MergeOptions carries the collaborators of a merged plugin.
type MergeOptions struct {
	Logger  logging.Logger
	Metrics *metrics.Recorder
	// Tracer defaults to the global OpenTelemetry provider.
	Tracer trace.Tracer
}

type merged struct {
	plugins []*Plugin
	logger  logging.Logger
	metrics *metrics.Recorder
	tracer  trace.Tracer
}

// Merge combines plugins, in the given order, into one plugin. Virtual ids
// must be unique across plugins. With no plugins the result is Empty.
func Merge(plugins []*Plugin, opts MergeOptions) (*Plugin, error) {
	if len(plugins) == 0 {
		return Empty(), nil
	}

	reg := NewRegistry()
	for _, p := range plugins {
		if err := reg.Claim(p); err != nil {
			return nil, err
		}
	}

	m := &merged{
		plugins: plugins,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
	}
	if m.logger == nil {
		m.logger = logging.NewNopLogger()
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer(tracerName)
	}

	return &Plugin{
		Name:           MergedName,
		VirtualModules: reg.IDs(),
		Config:         m.config,
		BuildStart:     m.buildStart,
		ResolveID:      m.resolveID,
		Load:           m.load,
		CloseBundle:    m.closeBundle,
	}, nil
}

// config folds cfg through every Config hook in order.
func (m *merged) config(cfg Config) (Config, error) {
	for _, p := range m.plugins {
		if p.Config == nil {
			continue
		}
		next, err := p.Config(cfg.Clone())
		if err != nil {
			return cfg, fmt.Errorf("%s config: %w", p.Name, err)
		}
		cfg = next
	}
	return cfg, nil
}

// buildStart runs every BuildStart hook strictly in order, each completing
// before the next begins. The first error aborts the remaining hooks.
func (m *merged) buildStart(ctx context.Context) error {
	for _, p := range m.plugins {
		if p.BuildStart == nil {
			continue
		}
		m.logger.Info(ctx, "buildStart begin", "plugin", p.Name)
		if err := m.run(ctx, p, "buildStart", p.BuildStart); err != nil {
			return err
		}
		m.logger.Info(ctx, "buildStart done", "plugin", p.Name)
	}
	return nil
}

func (m *merged) resolveID(id, importer string) (string, bool) {
	for _, p := range m.plugins {
		if p.ResolveID == nil {
			continue
		}
		if resolved, ok := p.ResolveID(id, importer); ok {
			return resolved, true
		}
	}
	return "", false
}

func (m *merged) load(ctx context.Context, id string) (string, bool, error) {
	for _, p := range m.plugins {
		if p.Load == nil {
			continue
		}
		source, ok, err := p.Load(ctx, id)
		if err != nil {
			return "", false, fmt.Errorf("%s load %s: %w", p.Name, id, err)
		}
		if ok {
			return source, true, nil
		}
	}
	return "", false, nil
}

// closeBundle runs every CloseBundle hook in order. A failing hook does not
// stop the ones after it; all errors are returned together.
func (m *merged) closeBundle(ctx context.Context) error {
	var errs []error
	for _, p := range m.plugins {
		if p.CloseBundle == nil {
			continue
		}
		if err := m.run(ctx, p, "closeBundle", p.CloseBundle); err != nil {
			m.logger.Error(ctx, err, "closeBundle failed", "plugin", p.Name)
			errs = append(errs, err)
		}
	}
	return ssrerrors.CombineErrors(errs...)
}

func (m *merged) run(ctx context.Context, p *Plugin, hook string, fn func(context.Context) error) error {
	ctx, span := m.tracer.Start(ctx, "ssrkit."+hook,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("ssrkit.plugin", p.Name),
			attribute.String("ssrkit.hook", hook),
		),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	m.metrics.ObserveHook(p.Name, hook, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}
