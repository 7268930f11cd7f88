package bundler

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/tidwall/gjson"
)

// Job is a standalone esbuild invocation outside the composed pipeline,
// used for island bundles.
type Job struct {
	Name string
	// Entries maps output names to entry files. With Splitting the whole map
	// is one multi-entry build; otherwise it must hold a single entry.
	Entries map[string]string
	// Outfile is used for single-entry builds.
	Outfile string
	// OutDir is used for multi-entry builds.
	OutDir     string
	Splitting  bool
	ChunkNames string
	Minify     bool
	Format     api.Format
	Target     api.Target
	Plugins    []api.Plugin
	Loaders    map[string]api.Loader
}

// Chunk is a shared chunk written by a splitting build.
type Chunk struct {
	Path  string
	Bytes int64
}

// JobResult is the outcome of Bundle.
type JobResult struct {
	Files  []string
	Chunks []Chunk
}

// Bundle runs job and reports the files it wrote.
func (d *Driver) Bundle(ctx context.Context, job Job) (*JobResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := api.BuildOptions{
		Bundle:            true,
		Write:             true,
		Format:            job.Format,
		Target:            job.Target,
		Platform:          api.PlatformBrowser,
		MinifyWhitespace:  job.Minify,
		MinifyIdentifiers: job.Minify,
		MinifySyntax:      job.Minify,
		Plugins:           job.Plugins,
		Loader:            job.Loaders,
		AbsWorkingDir:     d.workDir,
		LogLevel:          api.LogLevelSilent,
	}

	names := make([]string, 0, len(job.Entries))
	for name := range job.Entries {
		names = append(names, name)
	}
	sort.Strings(names)

	if job.Splitting {
		opts.Splitting = true
		opts.Outdir = d.abs(job.OutDir)
		opts.ChunkNames = job.ChunkNames
		opts.Metafile = true
		for _, name := range names {
			opts.EntryPointsAdvanced = append(opts.EntryPointsAdvanced, api.EntryPoint{
				InputPath:  d.abs(job.Entries[name]),
				OutputPath: name,
			})
		}
	} else {
		for _, name := range names {
			opts.EntryPoints = append(opts.EntryPoints, d.abs(job.Entries[name]))
		}
		opts.Outfile = d.abs(job.Outfile)
	}

	result := api.Build(opts)
	if len(result.Errors) > 0 {
		return nil, messagesError(job.Name, result.Errors)
	}

	res := &JobResult{}
	for _, f := range result.OutputFiles {
		res.Files = append(res.Files, f.Path)
	}
	if result.Metafile != "" {
		res.Chunks = SharedChunks(result.Metafile)
	}
	return res, nil
}

// SharedChunks reads the outputs of an esbuild metafile and returns those
// written under a chunks/ directory, in metafile order.
func SharedChunks(metafile string) []Chunk {
	var chunks []Chunk
	gjson.Get(metafile, "outputs").ForEach(func(key, value gjson.Result) bool {
		path := key.String()
		if strings.Contains(filepath.ToSlash(path), "chunks/") {
			chunks = append(chunks, Chunk{Path: path, Bytes: value.Get("bytes").Int()})
		}
		return true
	})
	return chunks
}
