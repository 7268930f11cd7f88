// Package bundler drives esbuild as the host bundler of a composed pipeline.
//
// The pipeline's virtual modules live in the "ssrkit" namespace: ids matching
// ^virtual: are offered to the pipeline's ResolveID hook and, when claimed,
// loaded through its Load hook. Alias prefixes such as /routes are mapped to
// directories by an OnResolve callback, since esbuild's own alias option only
// accepts package-style names.
package bundler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"

	ssrerrors "github.com/conneroisu/ssrkit/internal/errors"
	"github.com/conneroisu/ssrkit/internal/logging"
	"github.com/conneroisu/ssrkit/internal/metrics"
	"github.com/conneroisu/ssrkit/internal/pipeline"
)

// Namespace holds every module the pipeline loads.
const Namespace = "ssrkit"

// Driver runs pipelines through esbuild.
type Driver struct {
	workDir string
	logger  logging.Logger
	metrics *metrics.Recorder
}

// New returns a driver resolving relative paths against workDir. An empty
// workDir means the current directory.
func New(workDir string, logger logging.Logger, rec *metrics.Recorder) (*Driver, error) {
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		workDir = wd
	}
	abs, err := filepath.Abs(workDir)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Driver{workDir: abs, logger: logger.WithComponent("bundler"), metrics: rec}, nil
}

// WorkDir returns the absolute working directory.
func (d *Driver) WorkDir() string { return d.workDir }

// OutputResult describes one produced bundle.
type OutputResult struct {
	Name  string
	Files []string
}

// Result is the outcome of Run.
type Result struct {
	Outputs  []OutputResult
	Duration time.Duration
}

// Run executes one full build: Config, BuildStart, one esbuild build per
// output, then CloseBundle. CloseBundle runs whenever BuildStart succeeded,
// so sub-pipelines can clean up after a failed output.
func (d *Driver) Run(ctx context.Context, p *pipeline.Plugin, base pipeline.Config) (*Result, error) {
	start := time.Now()
	res, err := d.run(ctx, p, base)
	d.metrics.BuildFinished(time.Since(start), err)
	if res != nil {
		res.Duration = time.Since(start)
	}
	return res, err
}

func (d *Driver) run(ctx context.Context, p *pipeline.Plugin, base pipeline.Config) (*Result, error) {
	cfg := base
	if p.Config != nil {
		var err error
		if cfg, err = p.Config(base.Clone()); err != nil {
			return nil, err
		}
	}

	if p.BuildStart != nil {
		if err := p.BuildStart(ctx); err != nil {
			return nil, err
		}
	}

	res := &Result{}
	var errs []error
	for _, out := range cfg.Outputs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		files, err := d.buildOutput(ctx, p, cfg, out)
		if err != nil {
			d.logger.Error(ctx, err, "output build failed", "output", out.Name)
			errs = append(errs, err)
			continue
		}
		res.Outputs = append(res.Outputs, OutputResult{Name: out.Name, Files: files})
	}

	if p.CloseBundle != nil {
		errs = append(errs, p.CloseBundle(ctx))
	}

	return res, ssrerrors.CombineErrors(errs...)
}

func (d *Driver) buildOutput(ctx context.Context, p *pipeline.Plugin, cfg pipeline.Config, out pipeline.Output) ([]string, error) {
	outDir := d.abs(out.OutDir)
	if out.EmptyOutDir {
		if err := os.RemoveAll(outDir); err != nil {
			return nil, ssrerrors.NewIOError(ssrerrors.ErrCodeBundleFailed, "emptying output directory", err).WithFile(outDir)
		}
	}

	opts := api.BuildOptions{
		EntryPoints:       []string{out.Input},
		Outfile:           filepath.Join(outDir, out.EntryFileName),
		Bundle:            true,
		Write:             true,
		Format:            out.Format,
		Platform:          api.PlatformBrowser,
		MinifyWhitespace:  out.Minify,
		MinifyIdentifiers: out.Minify,
		MinifySyntax:      out.Minify,
		Loader:            out.Loaders,
		LogLevel:          cfg.LogLevel,
		AbsWorkingDir:     d.workDir,
		Plugins:           append([]api.Plugin{d.AsPlugin(ctx, p, mergeAlias(cfg.Alias, out.Alias))}, out.Plugins...),
	}
	if out.SSR {
		opts.Platform = api.PlatformNode
		opts.Packages = api.PackagesExternal
	}

	d.logger.Debug(ctx, "building output", "output", out.Name, "input", out.Input, "outfile", opts.Outfile)
	result := api.Build(opts)
	if len(result.Errors) > 0 {
		return nil, messagesError(out.Name, result.Errors)
	}

	files := make([]string, 0, len(result.OutputFiles))
	for _, f := range result.OutputFiles {
		files = append(files, f.Path)
	}
	return files, nil
}

// AsPlugin exposes p to esbuild.
func (d *Driver) AsPlugin(ctx context.Context, p *pipeline.Plugin, alias map[string]string) api.Plugin {
	prefixes := make([]string, 0, len(alias))
	for prefix := range alias {
		prefixes = append(prefixes, prefix)
	}
	// Longest prefix first so /routes/admin beats /routes.
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })

	return api.Plugin{
		Name: p.Name,
		Setup: func(build api.PluginBuild) {
			for _, key := range prefixes {
				prefix := strings.TrimSuffix(key, "/")
				target := d.abs(alias[key])
				build.OnResolve(api.OnResolveOptions{Filter: "^" + regexp.QuoteMeta(prefix) + "/"},
					func(args api.OnResolveArgs) (api.OnResolveResult, error) {
						rest := strings.TrimPrefix(args.Path, prefix+"/")
						return api.OnResolveResult{Path: filepath.Join(target, filepath.FromSlash(rest))}, nil
					})
			}

			if p.ResolveID != nil {
				build.OnResolve(api.OnResolveOptions{Filter: `^virtual:`},
					func(args api.OnResolveArgs) (api.OnResolveResult, error) {
						id, ok := p.ResolveID(args.Path, args.Importer)
						if !ok {
							return api.OnResolveResult{}, nil
						}
						return api.OnResolveResult{Path: id, Namespace: Namespace}, nil
					})
			}

			if p.Load != nil {
				build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: Namespace},
					func(args api.OnLoadArgs) (api.OnLoadResult, error) {
						source, ok, err := p.Load(ctx, args.Path)
						if err != nil {
							return api.OnLoadResult{}, err
						}
						if !ok {
							return api.OnLoadResult{}, fmt.Errorf("virtual module %q has no source", args.Path)
						}
						return api.OnLoadResult{
							Contents:   &source,
							ResolveDir: d.workDir,
							Loader:     api.LoaderJS,
						}, nil
					})
			}
		},
	}
}

func mergeAlias(global, local map[string]string) map[string]string {
	merged := make(map[string]string, len(global)+len(local))
	for k, v := range global {
		merged[k] = v
	}
	for k, v := range local {
		merged[k] = v
	}
	return merged
}

func (d *Driver) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(d.workDir, path)
}

// messagesError turns esbuild diagnostics into one build error.
func messagesError(output string, msgs []api.Message) error {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			lines = append(lines, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		lines = append(lines, m.Text)
	}
	return ssrerrors.NewBuildError(ssrerrors.ErrCodeBundleFailed,
		fmt.Sprintf("%s: %d bundling error(s):\n%s", output, len(msgs), strings.Join(lines, "\n")), nil).
		WithComponent(output)
}
