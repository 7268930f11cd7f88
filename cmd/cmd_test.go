package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/ssrkit/internal/config"
)

// chdir moves into a fresh directory for the rest of the test.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.Execute()
	return out.String(), err
}

// project writes a scaffolded project into the working directory.
func project(t *testing.T) {
	t.Helper()
	chdir(t)
	_, err := run(t, "", "init", "--scaffold")
	require.NoError(t, err)
}

func TestInitWritesStarter(t *testing.T) {
	dir := chdir(t)
	out, err := run(t, "", "init", "--scaffold")
	require.NoError(t, err)
	assert.Contains(t, out, config.DefaultFileName)

	raw, err := os.ReadFile(filepath.Join(dir, config.DefaultFileName))
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, yaml.Unmarshal(raw, &cfg))
	require.NotNil(t, cfg.Server)
	assert.Equal(t, "./src/routes", cfg.Server.RoutesDir)

	for rel := range scaffold {
		assert.FileExists(t, filepath.Join(dir, filepath.FromSlash(rel)))
	}

	_, err = run(t, "", "init")
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, "", "init", "--force", "--framework", "react")
	require.NoError(t, err)
	raw, err = os.ReadFile(filepath.Join(dir, config.DefaultFileName))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "framework: react")
}

func TestInitRejectsUnknownFramework(t *testing.T) {
	dir := chdir(t)
	_, err := run(t, "", "init", "--framework", "../evil")
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, config.DefaultFileName))
}

func TestRoutesCommand(t *testing.T) {
	project(t)

	out, err := run(t, "", "routes")
	require.NoError(t, err)
	assert.Contains(t, out, "/posts/:id")
	assert.Contains(t, out, "dynamic")
	assert.Contains(t, out, "2 routes")

	out, err = run(t, "", "routes", "--format", "json")
	require.NoError(t, err)
	var table []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &table))
	require.Len(t, table, 2)
	assert.Equal(t, "", table[0]["path"])
	assert.Equal(t, true, table[0]["exact"])
	assert.Equal(t, "posts/:id", table[1]["path"])

	out, err = run(t, "", "routes", "--client", "-f", "yaml")
	require.NoError(t, err)
	var fromYAML []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &fromYAML))
	assert.Len(t, fromYAML, 2)

	_, err = run(t, "", "routes", "--format", "xml")
	assert.ErrorContains(t, err, "unsupported format")
}

func TestRoutesWithoutCapabilities(t *testing.T) {
	chdir(t)
	_, err := run(t, "", "routes")
	assert.ErrorIs(t, err, errNoRoutes)

	_, err = run(t, "", "routes", "--client")
	assert.Error(t, err)
}

func TestResolveCommand(t *testing.T) {
	project(t)

	out, err := run(t, "", "resolve", "/posts/7", "--param", "lang=en", "-p", "id=ignored")
	require.NoError(t, err)
	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "/posts/:id", res["pattern"])
	params := res["params"].(map[string]any)
	assert.Equal(t, "7", params["id"])
	assert.Equal(t, "en", params["lang"])

	_, err = run(t, "", "resolve", "/a/b/c")
	assert.Error(t, err)

	_, err = run(t, "", "resolve", "/posts/7", "--param", "novalue")
	assert.ErrorContains(t, err, "key=value")
}

const goodPage = `<!doctype html><html><body>
<div data-island="Counter" data-client="visible" data-props='{"start":1}'><div placeholder>0</div></div>
<script id="__SSRKIT_DATA__" type="application/json">{"url":"/","params":{}}</script>
</body></html>`

const badPage = `<!doctype html><html><body>
<div data-island="Counter" data-client="hover" data-props='{nope'></div>
</body></html>`

func TestInspectCommand(t *testing.T) {
	dir := chdir(t)
	pagePath := filepath.Join(dir, "index.html")
	require.NoError(t, os.WriteFile(pagePath, []byte(goodPage), 0o644))

	out, err := run(t, "", "inspect", pagePath)
	require.NoError(t, err)
	assert.Contains(t, out, "Counter")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "start")

	out, err = run(t, goodPage, "inspect", "-", "--format", "json")
	require.NoError(t, err)
	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Len(t, report["placements"], 1)

	out, err = run(t, badPage, "inspect", "-")
	assert.ErrorIs(t, err, errPageProblems)
	assert.Contains(t, out, "✘")

	_, err = run(t, "", "inspect", filepath.Join(dir, "missing.html"))
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	chdir(t)

	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ssrkit "))
	assert.Contains(t, out, "Go: ")

	out, err = run(t, "", "version", "--format", "json")
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "go_version")

	_, err = run(t, "", "version", "--format", "xml")
	assert.Error(t, err)
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"a=1", "b=x=y"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "1", "b": "x=y"}, params)

	_, err = parseParams([]string{"=1"})
	assert.Error(t, err)
}
