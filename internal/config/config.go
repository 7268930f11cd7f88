// Package config loads the ssrkit configuration using Viper, from a YAML
// file, SSRKIT_ environment variables and command-line flags.
//
// Each capability section (islands, server, client) enables its capability
// by being present. A present section can still be switched off with
// enabled: false. Absent sections leave the capability disabled.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/viper"

	"github.com/conneroisu/ssrkit/internal/composer"
	"github.com/conneroisu/ssrkit/internal/framework"
	"github.com/conneroisu/ssrkit/internal/hydration"
	"github.com/conneroisu/ssrkit/internal/islands"
	"github.com/conneroisu/ssrkit/internal/pipeline"
	"github.com/conneroisu/ssrkit/internal/ssr"
)

// EnvPrefix prefixes every environment override, e.g. SSRKIT_DEV_PORT.
const EnvPrefix = "SSRKIT"

// EnvConfigFile names the environment variable holding a config file path.
const EnvConfigFile = "SSRKIT_CONFIG_FILE"

// DefaultFileName is the config file searched for in the working directory.
const DefaultFileName = ".ssrkit.yml"

type Config struct {
	Islands   *IslandsConfig  `mapstructure:"islands" yaml:"islands,omitempty"`
	Server    *SSRConfig      `mapstructure:"server" yaml:"server,omitempty"`
	Client    *SSRConfig      `mapstructure:"client" yaml:"client,omitempty"`
	Framework FrameworkConfig `mapstructure:"framework" yaml:"framework"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Dev       DevConfig       `mapstructure:"dev" yaml:"dev"`
}

type IslandsConfig struct {
	Enabled         *bool  `mapstructure:"enabled" yaml:"enabled,omitempty"`
	Framework       string `mapstructure:"framework" yaml:"framework,omitempty"`
	IslandsDir      string `mapstructure:"islands_dir" yaml:"islands_dir,omitempty"`
	OutDir          string `mapstructure:"out_dir" yaml:"out_dir,omitempty"`
	ChunkCommonCode bool   `mapstructure:"chunk_common_code" yaml:"chunk_common_code,omitempty"`
	Concurrency     int    `mapstructure:"concurrency" yaml:"concurrency,omitempty"`
}

type SSRConfig struct {
	Enabled      *bool  `mapstructure:"enabled" yaml:"enabled,omitempty"`
	OutDir       string `mapstructure:"out_dir" yaml:"out_dir,omitempty"`
	RoutesDir    string `mapstructure:"routes_dir" yaml:"routes_dir,omitempty"`
	AppComponent string `mapstructure:"app_component" yaml:"app_component,omitempty"`
	Framework    string `mapstructure:"framework" yaml:"framework,omitempty"`
	// Props are declared props per route pattern. Viper lowercases map
	// keys; routes.Compile matches patterns case-insensitively.
	Props map[string]map[string]any `mapstructure:"props" yaml:"props,omitempty"`
}

type FrameworkConfig struct {
	// Compiler is the command line of the external component compiler.
	Compiler        string        `mapstructure:"compiler" yaml:"compiler,omitempty"`
	CompilerTimeout time.Duration `mapstructure:"compiler_timeout" yaml:"compiler_timeout,omitempty"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type DevConfig struct {
	Host     string        `mapstructure:"host" yaml:"host"`
	Port     int           `mapstructure:"port" yaml:"port"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
	Metrics  bool          `mapstructure:"metrics" yaml:"metrics"`
}

// SetDefaults registers the defaults of the non-capability sections.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("framework.compiler_timeout", framework.DefaultCompileTimeout)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "pretty")
	v.SetDefault("dev.host", "localhost")
	v.SetDefault("dev.port", 5173)
	v.SetDefault("dev.debounce", 150*time.Millisecond)
	v.SetDefault("dev.metrics", true)
}

// Init points v at the config file and enables environment overrides.
// Precedence: cfgFile, then $SSRKIT_CONFIG_FILE, then ./.ssrkit.yml. A
// missing default file is not an error; a missing explicit file is. The
// returned path is the file read, empty when none was.
func Init(v *viper.Viper, cfgFile string) (string, error) {
	explicit := true
	switch {
	case cfgFile != "":
		v.SetConfigFile(cfgFile)
	case os.Getenv(EnvConfigFile) != "":
		v.SetConfigFile(os.Getenv(EnvConfigFile))
	default:
		explicit = false
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(strings.TrimSuffix(DefaultFileName, filepath.Ext(DefaultFileName)))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !explicit && errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("reading config: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

// Load decodes and validates the configuration held by v. A nil v means the
// global Viper instance.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	// Sections given as empty maps decode to nil; their presence still
	// enables the capability.
	if cfg.Islands == nil && v.InConfig("islands") {
		cfg.Islands = &IslandsConfig{}
	}
	if cfg.Server == nil && v.InConfig("server") {
		cfg.Server = &SSRConfig{}
	}
	if cfg.Client == nil && v.InConfig("client") {
		cfg.Client = &SSRConfig{}
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func enabled(flag *bool) bool { return flag == nil || *flag }

// ComposerOptions converts the capability sections. Disabled sections are
// nil.
func (c *Config) ComposerOptions() composer.Options {
	var opts composer.Options
	if c.Islands != nil && enabled(c.Islands.Enabled) {
		opts.Islands = &islands.Options{
			Framework:       c.Islands.Framework,
			IslandsDir:      c.Islands.IslandsDir,
			OutDir:          c.Islands.OutDir,
			ChunkCommonCode: c.Islands.ChunkCommonCode,
			Concurrency:     c.Islands.Concurrency,
		}
	}
	if c.Server != nil && enabled(c.Server.Enabled) {
		o := c.Server.options()
		opts.Server = &o
	}
	if c.Client != nil && enabled(c.Client.Enabled) {
		o := c.Client.options()
		opts.Client = &o
	}
	return opts
}

func (s *SSRConfig) options() ssr.Options {
	return ssr.Options{
		OutDir:       s.OutDir,
		RoutesDir:    s.RoutesDir,
		AppComponent: s.AppComponent,
		Framework:    s.Framework,
		Props:        s.Props,
	}
}

// BaseConfig is the bundler configuration the capabilities extend. esbuild
// diagnostics follow the log level, one step quieter.
func (c *Config) BaseConfig() pipeline.Config {
	level := api.LogLevelWarning
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		level = api.LogLevelInfo
	case "error":
		level = api.LogLevelError
	}
	return pipeline.Config{LogLevel: level}
}

// Frameworks returns the adapter registry, with the external compiler when
// one is configured.
func (c *Config) Frameworks() (*framework.Registry, error) {
	if c.Framework.Compiler == "" {
		return framework.NewRegistry(nil), nil
	}
	compiler, err := framework.NewCommandCompiler(c.Framework.Compiler, c.Framework.CompilerTimeout)
	if err != nil {
		return nil, err
	}
	return framework.NewRegistry(compiler), nil
}

// Starter returns the configuration `ssrkit init` writes: every capability
// enabled with its documented defaults spelled out.
func Starter() *Config {
	isl := islands.DefaultOptions()
	server := ssr.DefaultOptions(ssr.Server)
	client := ssr.DefaultOptions(ssr.Client)
	return &Config{
		Islands: &IslandsConfig{
			Framework:  isl.Framework,
			IslandsDir: isl.IslandsDir,
			OutDir:     isl.OutDir,
		},
		Server: &SSRConfig{
			OutDir:       server.OutDir,
			RoutesDir:    server.RoutesDir,
			AppComponent: server.AppComponent,
			Framework:    server.Framework,
		},
		Client: &SSRConfig{
			OutDir:       client.OutDir,
			RoutesDir:    client.RoutesDir,
			AppComponent: client.AppComponent,
			Framework:    client.Framework,
		},
		Log: LogConfig{Level: "info", Format: "pretty"},
		Dev: DevConfig{Host: "localhost", Port: 5173, Debounce: 150 * time.Millisecond, Metrics: true},
	}
}

// Validate checks paths, ports and declared strategies.
func Validate(cfg *Config) error {
	if cfg.Islands != nil {
		for name, path := range map[string]string{"islands_dir": cfg.Islands.IslandsDir, "out_dir": cfg.Islands.OutDir} {
			if err := validateOptionalPath(path); err != nil {
				return fmt.Errorf("islands.%s: %w", name, err)
			}
		}
		if cfg.Islands.Concurrency < 0 {
			return fmt.Errorf("islands.concurrency must not be negative, got %d", cfg.Islands.Concurrency)
		}
	}
	for section, s := range map[string]*SSRConfig{"server": cfg.Server, "client": cfg.Client} {
		if s == nil {
			continue
		}
		if err := validateSSR(s); err != nil {
			return fmt.Errorf("%s: %w", section, err)
		}
	}
	if cfg.Dev.Port < 0 || cfg.Dev.Port > 65535 {
		return fmt.Errorf("dev.port %d is not in valid range 0-65535", cfg.Dev.Port)
	}
	if strings.ContainsAny(cfg.Dev.Host, dangerousChars) {
		return fmt.Errorf("dev.host contains a dangerous character: %q", cfg.Dev.Host)
	}
	switch cfg.Log.Format {
	case "", "text", "json", "pretty":
	default:
		return fmt.Errorf("log.format %q is not one of text, json, pretty", cfg.Log.Format)
	}
	return nil
}

func validateSSR(s *SSRConfig) error {
	for name, path := range map[string]string{"out_dir": s.OutDir, "routes_dir": s.RoutesDir, "app_component": s.AppComponent} {
		if err := validateOptionalPath(path); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	for pattern, props := range s.Props {
		raw, ok := props["client"]
		if !ok {
			continue
		}
		strategy, ok := raw.(string)
		if !ok || !hydration.KnownStrategy(strategy) {
			return fmt.Errorf("props.%s.client: unknown strategy %v, expected load, idle or visible", pattern, raw)
		}
	}
	return nil
}

const dangerousChars = ";&|$`()<>\"'"

func validateOptionalPath(path string) error {
	if path == "" {
		return nil
	}
	return validatePath(path)
}

// validatePath rejects traversal out of the project and shell
// metacharacters.
func validatePath(path string) error {
	clean := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(clean), "/") {
		if part == ".." {
			return fmt.Errorf("path contains traversal: %s", path)
		}
	}
	if strings.ContainsAny(clean, dangerousChars) {
		return fmt.Errorf("path contains a dangerous character: %s", path)
	}
	return nil
}
