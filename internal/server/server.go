package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/netdash/internal/plugin"
	"github.com/HerbHall/netdash/internal/version"
)

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves h at GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithRoutes lets a core handler register its own routes on the mux.
func WithRoutes(register func(mux *http.ServeMux)) Option {
	return func(s *Server) { s.extra = append(s.extra, register) }
}

// Server is the main NetDash server.
type Server struct {
	httpServer *http.Server
	registry   *plugin.Registry
	logger     *zap.Logger
	mux        *http.ServeMux
	metrics    http.Handler
	extra      []func(*http.ServeMux)
}

// New creates a new Server instance. Routes are mounted immediately, so
// plugins must be initialized before New is called.
func New(addr string, reg *plugin.Registry, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()

	s := &Server{
		// The live feed holds connections open, so only headers and idle
		// connections are bounded.
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		registry: reg,
		logger:   logger,
		mux:      mux,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerCoreRoutes()
	s.mountPluginRoutes()

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// registerCoreRoutes sets up routes that are always available.
func (s *Server) registerCoreRoutes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/plugins", s.handlePlugins)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}
	for _, register := range s.extra {
		register(s.mux)
	}
}

// mountPluginRoutes registers all plugin routes under /api/v1/{plugin}/.
func (s *Server) mountPluginRoutes() {
	allRoutes := s.registry.AllRoutes()
	for pluginName, routes := range allRoutes {
		for _, route := range routes {
			pattern := fmt.Sprintf("%s /api/v1/%s%s", route.Method, pluginName, route.Path)
			s.mux.HandleFunc(pattern, route.Handler)
			s.logger.Debug("mounted route",
				zap.String("plugin", pluginName),
				zap.String("pattern", pattern),
			)
		}
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// handleHealth reports the server and per-plugin health. The overall status
// is degraded when any plugin is not ok.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	plugins := s.registry.Health(r.Context())
	status := plugin.HealthOK
	for _, h := range plugins {
		if h.Status != plugin.HealthOK {
			status = plugin.HealthDegraded
			break
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-NetDash-Version", version.Short())
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  status,
		"service": "netdash",
		"version": version.Map(),
		"plugins": plugins,
	})
}

// handlePlugins returns the list of registered plugins.
func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	plugins := s.registry.All()
	type pluginResponse struct {
		Name         string   `json:"name"`
		Version      string   `json:"version"`
		Enabled      bool     `json:"enabled"`
		Dependencies []string `json:"dependencies,omitempty"`
	}
	info := make([]pluginResponse, 0, len(plugins))
	for _, p := range plugins {
		pr := pluginResponse{
			Name:    p.Name(),
			Version: p.Version(),
			Enabled: !s.registry.IsDisabled(p.Name()),
		}
		if d, ok := p.(plugin.Dependent); ok {
			pr.Dependencies = d.Dependencies()
		}
		info = append(info, pr)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-NetDash-Version", version.Short())
	json.NewEncoder(w).Encode(info)
}
