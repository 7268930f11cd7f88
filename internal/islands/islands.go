// Package islands implements the islands sub-pipeline: at build-start it
// writes one loader entry per island component, and at close-bundle it
// bundles those entries into per-island artifacts (or one chunked
// multi-entry output) and removes the entries again.
package islands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/ssrkit/internal/bundler"
	ssrerrors "github.com/conneroisu/ssrkit/internal/errors"
	"github.com/conneroisu/ssrkit/internal/framework"
	"github.com/conneroisu/ssrkit/internal/logging"
	"github.com/conneroisu/ssrkit/internal/metrics"
	"github.com/conneroisu/ssrkit/internal/pipeline"
	"github.com/conneroisu/ssrkit/internal/routes"
)

// Name is the sub-pipeline name.
const Name = "ssrkit-islands"

const entrySuffix = "-entry.js"

// Options configures the islands sub-pipeline.
type Options struct {
	Framework       string
	IslandsDir      string
	OutDir          string
	ChunkCommonCode bool
	// Concurrency bounds parallel per-island builds. Zero means four.
	Concurrency int
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		Framework:   framework.DefaultTag,
		IslandsDir:  "./frontend/components/islands",
		OutDir:      "./dist/client/islands",
		Concurrency: 4,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Framework == "" {
		o.Framework = d.Framework
	}
	if o.IslandsDir == "" {
		o.IslandsDir = d.IslandsDir
	}
	if o.OutDir == "" {
		o.OutDir = d.OutDir
	}
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	return o
}

// Island is one discovered island component.
type Island struct {
	// Name is the component base name, matched against data-island.
	Name string
	// Artifact is the lower-cased name used for output files.
	Artifact string
	// File is the component path.
	File string
	// Entry is the path of the generated loader entry.
	Entry string
}

// Report summarizes the last close-bundle.
type Report struct {
	Built  []string
	Failed map[string]error
	Chunks []bundler.Chunk
}

// Islands is the islands sub-pipeline.
type Islands struct {
	opts    Options
	adapter framework.Adapter
	driver  *bundler.Driver
	walk    routes.Walker
	logger  logging.Logger
	metrics *metrics.Recorder

	group singleflight.Group

	mu      sync.Mutex
	islands []Island
	report  Report
}

// Deps are the collaborators of the islands sub-pipeline.
type Deps struct {
	Frameworks *framework.Registry
	Driver     *bundler.Driver
	// Walker defaults to routes.Walk.
	Walker  routes.Walker
	Logger  logging.Logger
	Metrics *metrics.Recorder
}

// New returns the islands sub-pipeline.
func New(opts Options, deps Deps) *Islands {
	opts = opts.withDefaults()
	if deps.Walker == nil {
		deps.Walker = routes.Walk
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	return &Islands{
		opts:    opts,
		adapter: deps.Frameworks.Lookup(opts.Framework),
		driver:  deps.Driver,
		walk:    deps.Walker,
		logger:  deps.Logger.WithComponent(Name),
		metrics: deps.Metrics,
	}
}

// Plugin exposes the sub-pipeline hooks.
func (s *Islands) Plugin() *pipeline.Plugin {
	return &pipeline.Plugin{
		Name:        Name,
		BuildStart:  s.BuildStart,
		CloseBundle: s.CloseBundle,
	}
}

// Islands returns the islands found by the last build-start.
func (s *Islands) Islands() []Island {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Island(nil), s.islands...)
}

// Options returns the effective options.
func (s *Islands) Options() Options { return s.opts }

// Report returns the outcome of the last close-bundle.
func (s *Islands) Report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// BuildStart discovers the island components and writes their loader
// entries. Concurrent calls share one discovery.
func (s *Islands) BuildStart(ctx context.Context) error {
	_, err, _ := s.group.Do("buildStart", func() (interface{}, error) {
		return nil, s.buildStart(ctx)
	})
	return err
}

func (s *Islands) buildStart(ctx context.Context) error {
	found, err := Discover(s.opts.IslandsDir, s.adapter.Extension(), s.walk)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.islands = found
	s.mu.Unlock()

	if len(found) == 0 {
		s.logger.Warn(ctx, nil, "no island files found", "dir", s.opts.IslandsDir)
		return nil
	}
	s.logger.Info(ctx, "found island files", "count", len(found))

	for _, isl := range found {
		rel, err := filepath.Rel(filepath.Dir(isl.Entry), isl.File)
		if err != nil {
			return err
		}
		src, err := GenerateEntry(s.adapter, "./"+filepath.ToSlash(rel), isl.Name)
		if err != nil {
			return err
		}
		if err := os.WriteFile(isl.Entry, []byte(src), 0o644); err != nil {
			return ssrerrors.NewIOError(ssrerrors.ErrCodeGenerateFailed, "writing island entry", err).WithFile(isl.Entry)
		}
		s.logger.Debug(ctx, "generated island entry", "island", isl.Name, "entry", isl.Entry)
	}
	return nil
}

// CloseBundle bundles every island. A failing island is logged and skipped;
// the generated entries are always removed.
func (s *Islands) CloseBundle(ctx context.Context) error {
	found := s.Islands()
	if len(found) == 0 {
		s.logger.Info(ctx, "no island files, skipping islands build")
		return nil
	}
	defer s.cleanup(ctx, found)

	var report Report
	if s.opts.ChunkCommonCode {
		report = s.buildChunked(ctx, found)
	} else {
		report = s.buildEach(ctx, found)
	}

	s.mu.Lock()
	s.report = report
	s.mu.Unlock()

	s.logger.Info(ctx, "islands build finished", "built", len(report.Built), "failed", len(report.Failed))
	return nil
}

func (s *Islands) job(name string) bundler.Job {
	return bundler.Job{
		Name:    name,
		Minify:  true,
		Format:  api.FormatESModule,
		Target:  api.ES2015,
		Plugins: s.adapter.Plugins(framework.TargetBrowser),
		Loaders: s.adapter.Loaders(),
	}
}

func (s *Islands) buildEach(ctx context.Context, found []Island) Report {
	report := Report{Failed: make(map[string]error)}
	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(s.opts.Concurrency)
	for _, isl := range found {
		p.Go(func() {
			job := s.job(isl.Artifact)
			job.Entries = map[string]string{isl.Artifact: isl.Entry}
			job.Outfile = filepath.Join(s.opts.OutDir, isl.Artifact+".js")

			_, err := s.driver.Bundle(ctx, job)
			s.metrics.IslandBuilt(err)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				err = ssrerrors.ErrIslandBuildFailed(isl.Name, err).WithFile(isl.File)
				s.logger.Error(ctx, err, "island build failed, skipping", "island", isl.Name)
				report.Failed[isl.Name] = err
				return
			}
			s.logger.Info(ctx, "built island", "island", isl.Name, "outfile", job.Outfile)
			report.Built = append(report.Built, isl.Name)
		})
	}
	p.Wait()
	sort.Strings(report.Built)
	return report
}

func (s *Islands) buildChunked(ctx context.Context, found []Island) Report {
	report := Report{Failed: make(map[string]error)}

	job := s.job("islands")
	job.Splitting = true
	job.OutDir = s.opts.OutDir
	job.ChunkNames = "chunks/[name]-[hash]"
	job.Entries = make(map[string]string, len(found))
	for _, isl := range found {
		job.Entries[isl.Artifact] = isl.Entry
	}

	res, err := s.driver.Bundle(ctx, job)
	if err != nil {
		// One multi-entry build: its failure is the failure of every island.
		for _, isl := range found {
			s.metrics.IslandBuilt(err)
			report.Failed[isl.Name] = ssrerrors.ErrIslandBuildFailed(isl.Name, err)
		}
		s.logger.Error(ctx, err, "chunked islands build failed")
		return report
	}

	for _, isl := range found {
		s.metrics.IslandBuilt(nil)
		report.Built = append(report.Built, isl.Name)
	}
	report.Chunks = res.Chunks
	for _, c := range res.Chunks {
		s.logger.Info(ctx, "shared chunk", "file", c.Path, "size", fmt.Sprintf("%.2f KB", float64(c.Bytes)/1024))
	}
	return report
}

func (s *Islands) cleanup(ctx context.Context, found []Island) {
	for _, isl := range found {
		if err := os.Remove(isl.Entry); err != nil && !os.IsNotExist(err) {
			s.logger.Error(ctx, err, "removing island entry", "entry", isl.Entry)
			continue
		}
		s.logger.Debug(ctx, "removed island entry", "entry", isl.Entry)
	}
}

// Discover lists the island components under dir. Entries are written to
// the root of dir, named after the lower-cased component name, so two
// components sharing that name are rejected.
func Discover(dir, ext string, walk routes.Walker) ([]Island, error) {
	files, err := walk(dir, ext)
	if err != nil {
		return nil, err
	}

	lower := cases.Lower(language.Und)
	found := make([]Island, 0, len(files))
	owners := make(map[string]string, len(files))
	for _, file := range files {
		base := filepath.Base(file)
		if strings.HasSuffix(base, entrySuffix) {
			continue
		}
		name := strings.TrimSuffix(base, ext)
		artifact := lower.String(name)
		if prev, ok := owners[artifact]; ok {
			return nil, ssrerrors.NewConfigError(ssrerrors.ErrCodeConfigInvalid,
				fmt.Sprintf("islands %s and %s both build to %s", prev, file, artifact)).
				WithFile(file).
				WithContext("artifact", artifact)
		}
		owners[artifact] = file
		found = append(found, Island{
			Name:     name,
			Artifact: artifact,
			File:     file,
			Entry:    filepath.Join(dir, artifact+entrySuffix),
		})
	}
	return found, nil
}
