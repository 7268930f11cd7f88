package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/ssrkit/internal/routes"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func load(t *testing.T, content string) (*Config, error) {
	t.Helper()
	v := viper.New()
	_, err := Init(v, writeConfig(t, content))
	require.NoError(t, err)
	return Load(v)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(t, "")
	require.NoError(t, err)

	assert.Nil(t, cfg.Islands)
	assert.Nil(t, cfg.Server)
	assert.Nil(t, cfg.Client)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "pretty", cfg.Log.Format)
	assert.Equal(t, "localhost", cfg.Dev.Host)
	assert.Equal(t, 5173, cfg.Dev.Port)
	assert.Equal(t, 150*time.Millisecond, cfg.Dev.Debounce)
	assert.Equal(t, 30*time.Second, cfg.Framework.CompilerTimeout)
	assert.Empty(t, cfg.ComposerOptions().Enabled())
}

func TestLoadCapabilities(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected []string
	}{
		{
			name:     "empty sections enable",
			content:  "islands: {}\nserver: {}\n",
			expected: []string{"islands", "server"},
		},
		{
			name:     "enabled false disables",
			content:  "server:\n  routes_dir: ./pages\nclient:\n  enabled: false\n",
			expected: []string{"server"},
		},
		{
			name:     "all three",
			content:  "islands:\n  islands_dir: ./islands\nserver:\n  enabled: true\nclient:\n  out_dir: ./public\n",
			expected: []string{"islands", "server", "client"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := load(t, tt.content)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, cfg.ComposerOptions().Enabled())
		})
	}
}

func TestComposerOptionsCarriesValues(t *testing.T) {
	cfg, err := load(t, `
islands:
  framework: svelte
  islands_dir: ./web/islands
  out_dir: ./public/islands
  chunk_common_code: true
  concurrency: 2
server:
  routes_dir: ./pages
  app_component: ./pages/App.svelte
  props:
    about:
      title: About
      client: idle
`)
	require.NoError(t, err)

	opts := cfg.ComposerOptions()
	require.NotNil(t, opts.Islands)
	assert.Equal(t, "./web/islands", opts.Islands.IslandsDir)
	assert.Equal(t, "./public/islands", opts.Islands.OutDir)
	assert.True(t, opts.Islands.ChunkCommonCode)
	assert.Equal(t, 2, opts.Islands.Concurrency)

	require.NotNil(t, opts.Server)
	assert.Equal(t, "./pages", opts.Server.RoutesDir)
	assert.Equal(t, "About", opts.Server.Props["about"]["title"])
	assert.Nil(t, opts.Client)
}

func TestDeclaredPropsReachMixedCaseRoutes(t *testing.T) {
	cfg, err := load(t, `
server:
  routes_dir: ./pages
  props:
    About:
      title: Hi
    posts/:postId:
      layout: wide
`)
	require.NoError(t, err)

	opts := cfg.ComposerOptions()
	require.NotNil(t, opts.Server)
	compiled, err := routes.Compile("/pages", []string{
		"/pages/About.svelte",
		"/pages/posts/[postId].svelte",
	}, ".svelte", routes.Options{Props: opts.Server.Props})
	require.NoError(t, err)

	m, err := compiled.Table.Resolve("/About", nil)
	require.NoError(t, err)
	assert.Equal(t, "About", m.Route.Pattern)
	assert.Equal(t, "Hi", m.Params["title"])

	m, err = compiled.Table.Resolve("/posts/7", nil)
	require.NoError(t, err)
	assert.Equal(t, "7", m.Params["postId"])
	assert.Equal(t, "wide", m.Params["layout"])
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"routes dir traversal", "server:\n  routes_dir: ../../etc\n"},
		{"islands dir metacharacter", "islands:\n  islands_dir: ./islands;rm\n"},
		{"unknown strategy", "client:\n  props:\n    about:\n      client: hover\n"},
		{"bad port", "dev:\n  port: 70000\n"},
		{"bad log format", "log:\n  format: xml\n"},
		{"negative concurrency", "islands:\n  concurrency: -1\n"},
		{"undecodable port", "dev:\n  port: lots\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := load(t, tt.content)
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SSRKIT_DEV_PORT", "9000")
	t.Setenv("SSRKIT_LOG_LEVEL", "debug")

	cfg, err := load(t, "dev:\n  port: 8000\n")
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Dev.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestInitPrecedence(t *testing.T) {
	fromEnv := writeConfig(t, "dev:\n  port: 1111\n")
	fromFlag := writeConfig(t, "dev:\n  port: 2222\n")
	t.Setenv(EnvConfigFile, fromEnv)

	v := viper.New()
	used, err := Init(v, "")
	require.NoError(t, err)
	assert.Equal(t, fromEnv, used)

	v = viper.New()
	used, err = Init(v, fromFlag)
	require.NoError(t, err)
	assert.Equal(t, fromFlag, used)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 2222, cfg.Dev.Port)
}

func TestInitMissingFiles(t *testing.T) {
	_, err := Init(viper.New(), filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err, "an explicit file must exist")

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	used, err := Init(viper.New(), "")
	require.NoError(t, err)
	assert.Empty(t, used)
}

func TestStarterRoundTrips(t *testing.T) {
	out, err := yaml.Marshal(Starter())
	require.NoError(t, err)

	cfg, err := load(t, string(out))
	require.NoError(t, err)
	assert.Equal(t, []string{"islands", "server", "client"}, cfg.ComposerOptions().Enabled())
	assert.Equal(t, "./src/routes", cfg.Server.RoutesDir)
	assert.Equal(t, "./dist/client", cfg.Client.OutDir)
	assert.Equal(t, "./frontend/components/islands", cfg.Islands.IslandsDir)
}

func TestFrameworks(t *testing.T) {
	cfg := &Config{}
	reg, err := cfg.Frameworks()
	require.NoError(t, err)
	assert.True(t, reg.Has("svelte"))

	cfg.Framework.Compiler = "node compile.mjs"
	_, err = cfg.Frameworks()
	assert.NoError(t, err)

	cfg.Framework.Compiler = "node compile.mjs | tee"
	_, err = cfg.Frameworks()
	assert.Error(t, err)
}

func TestBaseConfigLogLevel(t *testing.T) {
	tests := map[string]api.LogLevel{
		"debug": api.LogLevelInfo,
		"info":  api.LogLevelWarning,
		"warn":  api.LogLevelWarning,
		"error": api.LogLevelError,
	}
	for level, expected := range tests {
		t.Run(level, func(t *testing.T) {
			cfg := &Config{Log: LogConfig{Level: level}}
			assert.Equal(t, expected, cfg.BaseConfig().LogLevel)
		})
	}
}
