// Package cmd provides the ssrkit command-line interface.
//
// Configuration is read from, in increasing priority:
//  1. .ssrkit.yml in the working directory
//  2. the file named by SSRKIT_CONFIG_FILE
//  3. the file named by --config
//
// and every key can be overridden with SSRKIT_<SECTION>_<KEY>, for example
// SSRKIT_DEV_PORT=8080 or SSRKIT_LOG_LEVEL=debug.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/ssrkit/internal/bundler"
	"github.com/conneroisu/ssrkit/internal/composer"
	"github.com/conneroisu/ssrkit/internal/config"
	"github.com/conneroisu/ssrkit/internal/logging"
	"github.com/conneroisu/ssrkit/internal/metrics"
)

// cli holds the state shared by every subcommand of one invocation.
type cli struct {
	v       *viper.Viper
	cfgFile string
}

// NewRootCommand returns the ssrkit command tree.
func NewRootCommand() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "ssrkit",
		Short: "Server-side rendering build orchestrator",
		Long: `ssrkit compiles a routes directory into a route table, generates the
framework entries for server rendering and client hydration, bundles
interactive islands, and runs it all through esbuild as one build.

Quick Start:
  ssrkit init                 Write a starter .ssrkit.yml
  ssrkit build                Build server, client and island bundles
  ssrkit routes               Print the compiled route table
  ssrkit resolve /posts/7     Show which route a URL selects
  ssrkit dev                  Build, watch and serve with live reload`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			used, err := config.Init(c.v, c.cfgFile)
			if err != nil {
				return err
			}
			if used != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "Using config file:", used)
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default is .ssrkit.yml, can also use "+config.EnvConfigFile+")")
	flags.StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "pretty", "log format (pretty, text, json)")
	_ = c.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = c.v.BindPFlag("log.format", flags.Lookup("log-format"))

	root.AddCommand(
		c.newBuildCommand(),
		c.newRoutesCommand(),
		c.newResolveCommand(),
		c.newInspectCommand(),
		c.newDevCommand(),
		newInitCommand(),
		newVersionCommand(),
	)
	return root
}

// Execute runs the command tree.
func Execute() error {
	return NewRootCommand().Execute()
}

func (c *cli) load() (*config.Config, error) {
	cfg, err := config.Load(c.v)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
}

// app is a fully wired composed pipeline.
type app struct {
	cfg      *config.Config
	logger   logging.Logger
	registry *prometheus.Registry
	metrics  *metrics.Recorder
	driver   *bundler.Driver
	composed *composer.Composed
}

func (c *cli) newApp(ctx context.Context) (*app, error) {
	cfg, err := c.load()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	frameworks, err := cfg.Frameworks()
	if err != nil {
		return nil, err
	}
	registry := prometheus.NewRegistry()
	rec := metrics.New(metrics.Config{Registry: registry})

	driver, err := bundler.New("", logger, rec)
	if err != nil {
		return nil, err
	}

	composed, err := composer.Compose(ctx, cfg.ComposerOptions(), composer.Deps{
		Frameworks: frameworks,
		Driver:     driver,
		Logger:     logger,
		Metrics:    rec,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  rec,
		driver:   driver,
		composed: composed,
	}, nil
}
