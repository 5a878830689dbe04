package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Sternrassler/subgraph-dashboard-client/pkg/dashboard"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/diagnostics"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/logging"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/metrics"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/overview"
	"github.com/Sternrassler/subgraph-dashboard-client/pkg/status"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Server bundles the HTTP routes of the overview server.
type Server struct {
	router      *chi.Mux
	overview    *overview.Service
	checker     *status.Checker
	redis       *redis.Client
	baseURL     string
	hostedRoot  string
	loadTimeout time.Duration
	purger      Purger
	logger      zerolog.Logger
}

// Purger drops cached responses of an endpoint.
type Purger interface {
	Purge(ctx context.Context, endpoint string) (int64, error)
}

// ServerOptions configures NewServer.
type ServerOptions struct {
	// Redis is pinged by /ready; nil means Redis is disabled
	Redis *redis.Client
	// BaseURL prefixes subgraph names in the endpoint parameter
	BaseURL string
	// HostedRoot serves pending deployments by id
	HostedRoot string
	// LoadTimeout bounds one request
	LoadTimeout time.Duration
	// Purger serves refresh=true on /api/overview; nil ignores the flag
	Purger Purger
}

// NewServer registers the routes.
func NewServer(svc *overview.Service, checker *status.Checker, opts ServerOptions) *Server {
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 60 * time.Second
	}

	s := &Server{
		router:      chi.NewRouter(),
		overview:    svc,
		checker:     checker,
		redis:       opts.Redis,
		baseURL:     opts.BaseURL,
		hostedRoot:  opts.HostedRoot,
		loadTimeout: opts.LoadTimeout,
		purger:      opts.Purger,
		logger:      logging.NewLogger(logging.ComponentServer),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)

	s.router.Get("/health", healthHandler)
	s.router.Get("/ready", s.readyHandler)
	s.router.Handle("/metrics", metrics.Handler())
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/overview", s.overviewHandler)
		r.Get("/status", s.statusHandler)
		r.Get("/tabs", s.tabsHandler)
	})

	return s
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Report    *status.Report            `json:"report"`
	Endpoints dashboard.Endpoints       `json:"endpoints"`
	Versions  map[status.Version]string `json:"versions"`
	Banner    *diagnostics.Banner       `json:"banner,omitempty"`
}

type tabsResponse struct {
	Tab   dashboard.Tab            `json:"tab"`
	Index string                   `json:"index"`
	Links map[dashboard.Tab]string `json:"links"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("Redis not ready")
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) parseView(w http.ResponseWriter, r *http.Request) (dashboard.View, bool) {
	view := dashboard.ParseView(r.URL.Query(), s.baseURL)
	if view.Endpoint == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "endpoint parameter is required"})
		return view, false
	}
	return view, true
}

func (s *Server) overviewHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := s.parseView(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.loadTimeout)
	defer cancel()

	if s.purger != nil && r.URL.Query().Get("refresh") == "true" {
		n, err := s.purger.Purge(ctx, view.QueryURL)
		if err != nil {
			s.logger.Warn().Err(err).Str("endpoint", view.QueryURL).Msg("Cache purge failed")
		} else {
			s.logger.Info().Int64("entries", n).Str("endpoint", view.QueryURL).Msg("Cache purged")
		}
	}

	ov, err := s.overview.Load(ctx, view)
	if err != nil {
		code := http.StatusServiceUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			code = http.StatusGatewayTimeout
		}
		writeJSON(w, code, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, ov)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := s.parseView(w, r)
	if !ok {
		return
	}
	if view.SubgraphName == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: status.ErrNoSubgraphName.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.loadTimeout)
	defer cancel()

	report, err := s.checker.Check(ctx, view.SubgraphName)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}

	endpoints := view.Endpoints().WithPending(report, s.hostedRoot)
	resp := statusResponse{
		Report:    report,
		Endpoints: endpoints,
		Versions:  make(map[status.Version]string, 2),
	}
	if endpoints.Current != "" {
		resp.Versions[status.Current] = view.VersionURL(status.Current, endpoints.Current)
	}
	if endpoints.Pending != "" {
		resp.Versions[status.Pending] = view.VersionURL(status.Pending, endpoints.Pending)
	}
	if fatal := report.FatalMessage(view.Version); fatal != "" {
		resp.Banner = &diagnostics.Banner{
			Kind:    diagnostics.KindIndexingFailure,
			Message: diagnostics.IndexingMessage(view.Target(endpoints), fatal),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) tabsHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := s.parseView(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, tabsResponse{
		Tab:   view.Tab,
		Index: view.Tab.Index(),
		Links: view.TabLinks(),
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status_code", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
