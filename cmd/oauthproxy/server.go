package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"cookiecrypt/internal/httputil"
	"cookiecrypt/internal/middleware"
	"cookiecrypt/internal/models"
	"cookiecrypt/internal/proxy"
)

type Server struct {
	router   *mux.Router
	logger   *logrus.Logger
	cfg      *models.Config
	proxy    *proxy.Handler
	upstream http.Handler
	server   *http.Server
}

func NewServer(cfg *models.Config, proxyHandler *proxy.Handler, upstream http.Handler, logger *logrus.Logger, verbose bool) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		logger:   logger,
		cfg:      cfg,
		proxy:    proxyHandler,
		upstream: upstream,
	}

	s.setupRoutes(verbose)
	return s
}

func (s *Server) setupRoutes(verbose bool) {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger, verbose))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet, http.MethodHead)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	// Everything else is an API call for the upstream
	s.router.PathPrefix("/").Handler(s.proxy.Middleware(s.upstream))
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	addr := ":" + strconv.Itoa(s.cfg.Server.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
	}

	s.logger.WithFields(logrus.Fields{
		"addr":     addr,
		"upstream": s.cfg.Server.UpstreamURL,
	}).Info("Starting server")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type healthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	ProxyEnabled bool   `json:"proxy_enabled"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.SetNoCacheHeaders(w)
		_ = httputil.WriteJSON(w, r, http.StatusOK, healthResponse{
			Status:       "ok",
			Version:      Version,
			ProxyEnabled: s.proxy.Config().Enabled,
		})
	}
}
