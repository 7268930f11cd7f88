package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/ssrkit/internal/devserver"
	"github.com/conneroisu/ssrkit/internal/watcher"
)

func (c *cli) newDevCommand() *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:     "dev",
		Aliases: []string{"serve", "s"},
		Short:   "Build, watch and serve with live reload",
		Long: `Run a build, serve the result, and rebuild whenever a route, island or the
app component changes. Pages reload once the rebuild finishes; a failed
rebuild is shown in the browser console and the last good bundle stays
served.

Endpoints:
  /__ssrkit/ws               live reload socket
  /__ssrkit/routes           current client route table (JSON)
  /__ssrkit/islands/{name}   single-island preview (?client=, ?props=)
  /metrics                   Prometheus metrics

Examples:
  ssrkit dev
  ssrkit dev --port 8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := c.newApp(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				a.cfg.Dev.Host = host
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Dev.Port = port
			}
			return a.dev(ctx)
		},
	}
	cmd.Flags().StringVar(&host, "host", "localhost", "host to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 5173, "port to serve on")
	return cmd
}

func (a *app) dev(ctx context.Context) error {
	build := func(ctx context.Context) error {
		_, err := a.driver.Run(ctx, a.composed.Plugin, a.cfg.BaseConfig())
		return err
	}
	if err := build(ctx); err != nil {
		a.logger.Error(ctx, err, "initial build failed, serving anyway")
	}

	opts := devserver.Options{Host: a.cfg.Dev.Host, Port: a.cfg.Dev.Port}
	if a.cfg.Dev.Metrics {
		opts.Gatherer = a.registry
	}
	var resolver devserver.Resolver
	if a.composed.Client != nil {
		opts.ClientDir = a.abs(a.composed.Client.Options().OutDir)
		resolver = a.composed.Client
	}
	var lister devserver.IslandLister
	if a.composed.Islands != nil {
		opts.IslandsDir = a.abs(a.composed.Islands.Options().OutDir)
		lister = a.composed.Islands
	}

	server := devserver.New(opts, resolver, lister, a.logger)
	if _, err := server.Start(ctx); err != nil {
		return err
	}

	fw, err := watcher.NewFileWatcher(a.cfg.Dev.Debounce, a.logger)
	if err != nil {
		return err
	}
	defer fw.Stop()
	fw.AddFilter(watcher.NoHiddenFilter)
	fw.AddFilter(watcher.NoEntryFilter)
	for _, dir := range a.watchDirs() {
		if err := fw.AddRecursive(dir); err != nil {
			a.logger.Warn(ctx, err, "not watching directory", "dir", dir)
		}
	}
	rebuilder := &watcher.Rebuilder{
		Build:  build,
		After:  func(_ context.Context, err error) { server.Hub().Reload(err) },
		Logger: a.logger,
	}
	fw.AddHandler(rebuilder.Handle)
	if err := fw.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	a.logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// watchDirs lists the source directories of the enabled capabilities.
func (a *app) watchDirs() []string {
	seen := make(map[string]bool)
	add := func(dir string) {
		if dir != "" {
			seen[a.abs(dir)] = true
		}
	}
	if a.composed.Islands != nil {
		add(a.composed.Islands.Options().IslandsDir)
	}
	if s := a.composed.Server; s != nil {
		add(s.Options().RoutesDir)
		add(filepath.Dir(s.Options().AppComponent))
	}
	if cl := a.composed.Client; cl != nil {
		add(cl.Options().RoutesDir)
		add(filepath.Dir(cl.Options().AppComponent))
	}

	dirs := make([]string, 0, len(seen))
	for dir := range seen {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

func (a *app) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(a.driver.WorkDir(), path)
}
