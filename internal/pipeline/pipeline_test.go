package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ssrerrors "github.com/conneroisu/ssrkit/internal/errors"
)

type orderLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *orderLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, s)
}

func recording(name string, log *orderLog, ids ...string) *Plugin {
	return &Plugin{
		Name:           name,
		VirtualModules: ids,
		BuildStart: func(context.Context) error {
			log.add(name + ":buildStart")
			return nil
		},
		CloseBundle: func(context.Context) error {
			log.add(name + ":closeBundle")
			return nil
		},
	}
}

func TestMergeOrdersHooks(t *testing.T) {
	log := &orderLog{}
	p, err := Merge([]*Plugin{
		recording("a", log, "virtual:a"),
		recording("b", log, "virtual:b"),
		recording("c", log, "virtual:c"),
	}, MergeOptions{})
	require.NoError(t, err)
	assert.Equal(t, MergedName, p.Name)
	assert.Equal(t, []string{"virtual:a", "virtual:b", "virtual:c"}, p.VirtualModules)

	require.NoError(t, p.BuildStart(context.Background()))
	require.NoError(t, p.CloseBundle(context.Background()))

	assert.Equal(t, []string{
		"a:buildStart", "b:buildStart", "c:buildStart",
		"a:closeBundle", "b:closeBundle", "c:closeBundle",
	}, log.entries)
}

func TestMergeCollision(t *testing.T) {
	log := &orderLog{}
	_, err := Merge([]*Plugin{
		recording("server", log, "virtual:routes"),
		recording("other", log, "virtual:routes"),
	}, MergeOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ssrerrors.ErrVirtualCollision))
	assert.Contains(t, err.Error(), `"virtual:routes"`)
}

func TestMergeEmpty(t *testing.T) {
	p, err := Merge(nil, MergeOptions{})
	require.NoError(t, err)
	assert.Equal(t, EmptyName, p.Name)

	ctx := context.Background()
	cfg, err := p.Config(Config{Alias: map[string]string{"x": "y"}})
	require.NoError(t, err)
	assert.Equal(t, "y", cfg.Alias["x"])
	assert.NoError(t, p.BuildStart(ctx))
	_, ok := p.ResolveID("virtual:routes", "")
	assert.False(t, ok)
	_, ok, err = p.Load(ctx, "virtual:routes")
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.NoError(t, p.CloseBundle(ctx))
}

func TestBuildStartAbortsOnError(t *testing.T) {
	log := &orderLog{}
	boom := errors.New("boom")
	failing := &Plugin{
		Name:       "failing",
		BuildStart: func(context.Context) error { return boom },
	}
	p, err := Merge([]*Plugin{recording("a", log), failing, recording("c", log)}, MergeOptions{})
	require.NoError(t, err)

	err = p.BuildStart(context.Background())
	assert.Same(t, boom, err)
	assert.Equal(t, []string{"a:buildStart"}, log.entries)
}

func TestCloseBundleContinuesAfterError(t *testing.T) {
	log := &orderLog{}
	failing := &Plugin{
		Name:        "failing",
		CloseBundle: func(context.Context) error { return errors.New("close failed") },
	}
	p, err := Merge([]*Plugin{failing, recording("b", log)}, MergeOptions{})
	require.NoError(t, err)

	err = p.CloseBundle(context.Background())
	assert.EqualError(t, err, "close failed")
	assert.Equal(t, []string{"b:closeBundle"}, log.entries)
}

func TestResolveAndLoadFirstWins(t *testing.T) {
	first := &Plugin{
		Name:           "first",
		VirtualModules: []string{"virtual:one"},
		ResolveID: func(id, _ string) (string, bool) {
			return id, id == "virtual:one"
		},
		Load: func(_ context.Context, id string) (string, bool, error) {
			if id != "virtual:one" {
				return "", false, nil
			}
			return "export default 1;", true, nil
		},
	}
	second := &Plugin{
		Name:           "second",
		VirtualModules: []string{"virtual:two"},
		ResolveID: func(id, _ string) (string, bool) {
			return id, true
		},
		Load: func(_ context.Context, id string) (string, bool, error) {
			return "export default 2;", true, nil
		},
	}
	p, err := Merge([]*Plugin{first, second}, MergeOptions{})
	require.NoError(t, err)

	ctx := context.Background()
	src, ok, err := p.Load(ctx, "virtual:one")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "export default 1;", src)

	src, ok, err = p.Load(ctx, "virtual:two")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "export default 2;", src)

	id, ok := p.ResolveID("virtual:two", "")
	assert.True(t, ok)
	assert.Equal(t, "virtual:two", id)
}

func TestConfigFoldsInOrder(t *testing.T) {
	add := func(name string) *Plugin {
		return &Plugin{
			Name: name,
			Config: func(cfg Config) (Config, error) {
				cfg.Outputs = append(cfg.Outputs, Output{Name: name})
				return cfg, nil
			},
		}
	}
	p, err := Merge([]*Plugin{add("server"), {Name: "islands"}, add("client")}, MergeOptions{})
	require.NoError(t, err)

	base := Config{}
	cfg, err := p.Config(base)
	require.NoError(t, err)
	require.Len(t, cfg.Outputs, 2)
	assert.Equal(t, "server", cfg.Outputs[0].Name)
	assert.Equal(t, "client", cfg.Outputs[1].Name)
	assert.Empty(t, base.Outputs)
}

func TestHooks(t *testing.T) {
	assert.Empty(t, (&Plugin{Name: "bare"}).Hooks())
	assert.Equal(t, []string{"config", "buildStart", "resolveId", "load", "closeBundle"}, Empty().Hooks())
	assert.True(t, (&Plugin{VirtualModules: []string{"virtual:x"}}).Owns("virtual:x"))
}
