// Package devserver serves a built project for local development: the client
// bundle and island bundles as static files, a live-reload socket, Prometheus
// metrics, and a page shell for every URL the client route table resolves.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conneroisu/ssrkit/internal/hydration"
	"github.com/conneroisu/ssrkit/internal/islands"
	"github.com/conneroisu/ssrkit/internal/logging"
	"github.com/conneroisu/ssrkit/internal/page"
	"github.com/conneroisu/ssrkit/internal/routes"
	"github.com/conneroisu/ssrkit/internal/ssr"
)

// Paths served by the dev server itself.
const (
	LiveReloadPath = "/__ssrkit/ws"
	RoutesPath     = "/__ssrkit/routes"
	PreviewPath    = "/__ssrkit/islands"
	MetricsPath    = "/metrics"
	IslandsURL     = "/islands"
)

// Resolver is the part of the client pipeline the server needs.
type Resolver interface {
	Resolve(url string, params map[string]any) (*routes.Match, error)
	Table() routes.Table
}

// IslandLister lists the islands of the last build.
type IslandLister interface {
	Islands() []islands.Island
}

// Options configures the server.
type Options struct {
	Host string
	Port int
	// ClientDir holds the client bundle and other static files.
	ClientDir string
	// ClientScript is the URL of the client entry, "/client.js" by default.
	ClientScript string
	// IslandsDir holds the island bundles, served under /islands.
	IslandsDir string
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// Server is the development server.
type Server struct {
	opts     Options
	client   Resolver
	islands  IslandLister
	hub      *Hub
	logger   logging.Logger
	router   chi.Router
	http     *http.Server
	listener net.Listener
}

// New returns a server. client and islandList may be nil when the
// corresponding capability is disabled.
func New(opts Options, client Resolver, islandList IslandLister, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if opts.ClientScript == "" {
		opts.ClientScript = "/" + ssr.ClientOutput
	}
	logger = logger.WithComponent("devserver")
	s := &Server{
		opts:    opts,
		client:  client,
		islands: islandList,
		logger:  logger,
		hub:     NewHub(logger, net.JoinHostPort(opts.Host, fmt.Sprint(opts.Port))),
	}
	s.router = s.routes()
	return s
}

// Hub returns the live-reload hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get(LiveReloadPath, s.hub.ServeHTTP)
	r.Get(RoutesPath, s.handleRoutes)
	r.Get(PreviewPath+"/{name}", s.handlePreview)
	if s.opts.Gatherer != nil {
		r.Method(http.MethodGet, MetricsPath, promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	if s.opts.IslandsDir != "" {
		r.Handle(IslandsURL+"/*", http.StripPrefix(IslandsURL, http.FileServer(http.Dir(s.opts.IslandsDir))))
	}
	r.Get("/*", s.handlePage)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		)
	})
}

// handlePage serves a static file when one exists, and otherwise renders the
// document shell for the matched route.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if s.serveStatic(w, r) {
		return
	}
	if s.client == nil {
		http.NotFound(w, r)
		return
	}

	params := make(map[string]any)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	match, err := s.client.Resolve(r.URL.Path, params)
	var notFound *routes.NotFoundError
	switch {
	case errors.As(err, &notFound):
		http.NotFound(w, r)
		return
	case errors.Is(err, ssr.ErrNotBuilt):
		http.Error(w, "build in progress", http.StatusServiceUnavailable)
		return
	case err != nil:
		s.logger.Error(r.Context(), err, "resolving route failed", "url", r.URL.Path)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.render(w, r, page.DocumentProps{
		Title:      routeTitle(match.Route.Pattern),
		URL:        r.URL.Path,
		Params:     match.Params,
		Scripts:    []string{s.opts.ClientScript},
		LiveReload: LiveReloadPath,
	})
}

func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) bool {
	if s.opts.ClientDir == "" || r.URL.Path == "/" {
		return false
	}
	rel := path.Clean("/" + r.URL.Path)
	file := filepath.Join(s.opts.ClientDir, filepath.FromSlash(rel))
	info, err := os.Stat(file)
	if err != nil || info.IsDir() {
		return false
	}
	http.ServeFile(w, r, file)
	return true
}

// handlePreview renders a page holding a single island. The strategy comes
// from ?client= and the props from ?props= as a JSON object.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	island, ok := s.findIsland(name)
	if !ok {
		http.NotFound(w, r)
		return
	}

	strategy := r.URL.Query().Get("client")
	if strategy != "" && !hydration.KnownStrategy(strategy) {
		http.Error(w, fmt.Sprintf("unknown strategy %q", strategy), http.StatusBadRequest)
		return
	}
	var props map[string]any
	if raw := r.URL.Query().Get("props"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &props); err != nil {
			http.Error(w, "props must be a JSON object: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	s.render(w, r, page.DocumentProps{
		Title:      island.Name,
		URL:        r.URL.Path,
		Scripts:    []string{IslandsURL + "/" + island.Artifact + ".js"},
		Body:       page.Island(island.Name, strategy, props, page.Text("loading "+island.Name)),
		LiveReload: LiveReloadPath,
	})
}

func (s *Server) findIsland(name string) (islands.Island, bool) {
	if s.islands == nil {
		return islands.Island{}, false
	}
	for _, isl := range s.islands.Islands() {
		if isl.Name == name || isl.Artifact == name {
			return isl, true
		}
	}
	return islands.Island{}, false
}

// handleRoutes returns the current client route table as JSON.
func (s *Server) handleRoutes(w http.ResponseWriter, _ *http.Request) {
	table := routes.Table{}
	if s.client != nil && s.client.Table() != nil {
		table = s.client.Table()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(table)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, props page.DocumentProps) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Document(props).Render(r.Context(), w); err != nil {
		s.logger.Error(r.Context(), err, "rendering page failed", "url", r.URL.Path)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func routeTitle(pattern string) string {
	if pattern == "" {
		return "/"
	}
	return "/" + strings.TrimPrefix(pattern, "/")
}

// Start listens and serves in the background. The returned address is the
// bound one, so a zero port is resolved.
func (s *Server) Start(ctx context.Context) (string, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.opts.Host, fmt.Sprint(s.opts.Port)))
	if err != nil {
		return "", fmt.Errorf("listening: %w", err)
	}
	s.listener = ln
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(ctx, err, "dev server stopped")
		}
	}()
	addr := ln.Addr().String()
	s.logger.Info(ctx, "dev server listening", "url", "http://"+addr)
	return addr, nil
}

// Shutdown closes live-reload sockets and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Shutdown()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
