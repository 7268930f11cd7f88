package routes

import (
	"errors"
	"testing"

	ssrerrors "github.com/conneroisu/ssrkit/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioTable(t *testing.T) Table {
	t.Helper()
	compiled, err := Compile("/r", []string{
		"/r/index.svelte",
		"/r/about.svelte",
		"/r/posts/[id].svelte",
	}, ".svelte", Options{})
	require.NoError(t, err)
	return compiled.Table
}

func TestResolveScenarioA(t *testing.T) {
	table := scenarioTable(t)

	t.Run("about", func(t *testing.T) {
		m, err := table.Resolve("/about", nil)
		require.NoError(t, err)
		assert.Equal(t, "about.svelte", m.Component())
		assert.Empty(t, m.Params)
	})

	t.Run("posts", func(t *testing.T) {
		m, err := table.Resolve("/posts/7", nil)
		require.NoError(t, err)
		assert.Equal(t, "posts/[id].svelte", m.Component())
		assert.Equal(t, map[string]any{"id": "7"}, m.Params)
	})

	t.Run("root", func(t *testing.T) {
		m, err := table.Resolve("/", nil)
		require.NoError(t, err)
		assert.Equal(t, "index.svelte", m.Component())
	})

	t.Run("index alias", func(t *testing.T) {
		m, err := table.Resolve("/index", nil)
		require.NoError(t, err)
		assert.Equal(t, "index.svelte", m.Component())
	})

	t.Run("without leading slash", func(t *testing.T) {
		m, err := table.Resolve("posts/42", nil)
		require.NoError(t, err)
		assert.Equal(t, "42", m.Params["id"])
	})
}

func TestResolveScenarioBNotFound(t *testing.T) {
	table := scenarioTable(t)

	_, err := table.Resolve("/missing", nil)
	require.Error(t, err)

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "/missing", nf.URL)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(err, ssrerrors.ErrRouteNotFound))

	_, err = table.Resolve("/posts/7/comments", nil)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestResolveExactBeatsDynamic(t *testing.T) {
	table := Table{
		{Pattern: "posts/:id", Exact: false, Component: "posts/[id].js"},
		{Pattern: "posts/new", Exact: true, Component: "posts/new.js"},
	}

	m, err := table.Resolve("/posts/new", nil)
	require.NoError(t, err)
	assert.Equal(t, "posts/new.js", m.Component())

	m, err = table.Resolve("/posts/12", nil)
	require.NoError(t, err)
	assert.Equal(t, "posts/[id].js", m.Component())
}

func TestResolveFirstDynamicMatchWins(t *testing.T) {
	table := Table{
		{Pattern: ":section/:id", Component: "[section]/[id].js"},
		{Pattern: "posts/:id", Component: "posts/[id].js"},
	}

	m, err := table.Resolve("/posts/3", nil)
	require.NoError(t, err)
	assert.Equal(t, "[section]/[id].js", m.Component(), "table order decides, not specificity")
	assert.Equal(t, map[string]any{"section": "posts", "id": "3"}, m.Params)
}

func TestResolveIndexFallback(t *testing.T) {
	table := Table{
		{Pattern: "index", Exact: true, Component: "legacy.js"},
	}

	m, err := table.Resolve("/", nil)
	require.NoError(t, err)
	assert.Equal(t, "legacy.js", m.Component())
}

func TestResolveParamMerge(t *testing.T) {
	table := Table{
		{
			Pattern:   "posts/:id",
			Component: "posts/[id].js",
			Props:     map[string]any{"id": "declared", "layout": "wide", "lang": "en"},
		},
	}
	extra := map[string]any{"lang": "fr", "id": "extra"}

	m, err := table.Resolve("/posts/9", extra)
	require.NoError(t, err)

	assert.Equal(t, "9", m.Params["id"], "path params override extra params")
	assert.Equal(t, "fr", m.Params["lang"], "declared props never override request params")
	assert.Equal(t, "wide", m.Params["layout"], "declared props fill absent keys")
	assert.Equal(t, "extra", extra["id"], "extra params are not mutated")
}

func TestResolveIdempotent(t *testing.T) {
	table := scenarioTable(t)
	extra := map[string]any{"q": "x"}

	first, err := table.Resolve("/posts/5", extra)
	require.NoError(t, err)
	second, err := table.Resolve("/posts/5", extra)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotSame(t, first, second)
}
