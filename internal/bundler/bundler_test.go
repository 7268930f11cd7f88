package bundler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ssrerrors "github.com/conneroisu/ssrkit/internal/errors"
	"github.com/conneroisu/ssrkit/internal/metrics"
	"github.com/conneroisu/ssrkit/internal/pipeline"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func virtualPlugin(modules map[string]string) *pipeline.Plugin {
	ids := make([]string, 0, len(modules))
	for id := range modules {
		ids = append(ids, id)
	}
	return &pipeline.Plugin{
		Name:           "test",
		VirtualModules: ids,
		ResolveID: func(id, _ string) (string, bool) {
			_, ok := modules[id]
			return id, ok
		},
		Load: func(_ context.Context, id string) (string, bool, error) {
			src, ok := modules[id]
			return src, ok, nil
		},
	}
}

func TestRunResolvesVirtualModulesAndAlias(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "src", "routes", "about.js"), `export default "about-page-marker";`)

	p := virtualPlugin(map[string]string{
		"virtual:entry":  "import { routes } from 'virtual:routes';\nconsole.log(routes);",
		"virtual:routes": "import About from '/routes/about.js';\nexport const routes = [About];",
	})

	rec := metrics.New(metrics.Config{})
	d, err := New(dir, nil, rec)
	require.NoError(t, err)

	res, err := d.Run(context.Background(), p, pipeline.Config{
		Alias: map[string]string{"/routes": "./src/routes"},
		Outputs: []pipeline.Output{{
			Name:          "client",
			Input:         "virtual:entry",
			OutDir:        "dist",
			EntryFileName: "client.js",
			Format:        api.FormatESModule,
		}},
	})
	require.NoError(t, err)
	require.Len(t, res.Outputs, 1)

	out, err := os.ReadFile(filepath.Join(dir, "dist", "client.js"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "about-page-marker")
	assert.Equal(t, int64(1), rec.Snapshot().SuccessfulBuilds)
}

func TestRunRunsHooksInOrder(t *testing.T) {
	dir := t.TempDir()
	var calls []string
	p := virtualPlugin(map[string]string{"virtual:entry": "export const x = 1;"})
	p.Config = func(cfg pipeline.Config) (pipeline.Config, error) {
		calls = append(calls, "config")
		cfg.Outputs = append(cfg.Outputs, pipeline.Output{
			Name: "only", Input: "virtual:entry", OutDir: "out", EntryFileName: "x.js", Format: api.FormatESModule,
		})
		return cfg, nil
	}
	p.BuildStart = func(context.Context) error {
		calls = append(calls, "buildStart")
		return nil
	}
	p.CloseBundle = func(context.Context) error {
		calls = append(calls, "closeBundle")
		return nil
	}

	d, err := New(dir, nil, nil)
	require.NoError(t, err)
	_, err = d.Run(context.Background(), p, pipeline.Config{})
	require.NoError(t, err)
	assert.Equal(t, []string{"config", "buildStart", "closeBundle"}, calls)
	assert.FileExists(t, filepath.Join(dir, "out", "x.js"))
}

func TestRunBuildStartErrorPropagates(t *testing.T) {
	boom := errors.New("bad routes dir")
	closed := false
	p := &pipeline.Plugin{
		Name:        "failing",
		BuildStart:  func(context.Context) error { return boom },
		CloseBundle: func(context.Context) error { closed = true; return nil },
	}

	d, err := New(t.TempDir(), nil, nil)
	require.NoError(t, err)
	_, err = d.Run(context.Background(), p, pipeline.Config{})
	assert.Same(t, boom, err)
	assert.False(t, closed)
}

func TestRunReportsBundleErrors(t *testing.T) {
	dir := t.TempDir()
	closed := false
	p := virtualPlugin(map[string]string{"virtual:entry": "import x from './missing.js';"})
	p.CloseBundle = func(context.Context) error { closed = true; return nil }

	d, err := New(dir, nil, nil)
	require.NoError(t, err)
	_, err = d.Run(context.Background(), p, pipeline.Config{
		Outputs: []pipeline.Output{{Name: "client", Input: "virtual:entry", OutDir: "dist", EntryFileName: "c.js"}},
	})
	require.Error(t, err)
	assert.True(t, ssrerrors.IsBuildError(err))
	assert.Contains(t, err.Error(), "missing.js")
	assert.True(t, closed, "closeBundle still runs after a failed output")
}

func TestBundleSplitting(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "shared.js"), `export const shared = () => "shared-marker";`)
	writeFile(t, filepath.Join(dir, "a-entry.js"), `import { shared } from './shared.js'; console.log("a", shared());`)
	writeFile(t, filepath.Join(dir, "b-entry.js"), `import { shared } from './shared.js'; console.log("b", shared());`)

	d, err := New(dir, nil, nil)
	require.NoError(t, err)

	res, err := d.Bundle(context.Background(), Job{
		Name:       "islands",
		Entries:    map[string]string{"a": "a-entry.js", "b": "b-entry.js"},
		OutDir:     "out",
		Splitting:  true,
		ChunkNames: "chunks/[name]-[hash]",
		Format:     api.FormatESModule,
	})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "out", "a.js"))
	assert.FileExists(t, filepath.Join(dir, "out", "b.js"))
	require.NotEmpty(t, res.Chunks)
	assert.Contains(t, filepath.ToSlash(res.Chunks[0].Path), "chunks/")
	assert.Positive(t, res.Chunks[0].Bytes)
}

func TestBundleSingleEntry(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "counter-entry.js"), `console.log("counter-marker");`)

	d, err := New(dir, nil, nil)
	require.NoError(t, err)

	res, err := d.Bundle(context.Background(), Job{
		Name:    "counter",
		Entries: map[string]string{"counter": "counter-entry.js"},
		Outfile: "out/counter.js",
		Minify:  true,
		Format:  api.FormatESModule,
	})
	require.NoError(t, err)
	assert.Len(t, res.Files, 1)
	assert.Empty(t, res.Chunks)
	out, err := os.ReadFile(filepath.Join(dir, "out", "counter.js"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "counter-marker")
}

func TestSharedChunks(t *testing.T) {
	meta := `{"outputs":{
		"out/a.js":{"bytes":120},
		"out/chunks/chunk-ABC.js":{"bytes":2048},
		"out/b.js":{"bytes":90}
	}}`
	chunks := SharedChunks(meta)
	require.Len(t, chunks, 1)
	assert.Equal(t, Chunk{Path: "out/chunks/chunk-ABC.js", Bytes: 2048}, chunks[0])
	assert.Empty(t, SharedChunks(`{}`))
}
