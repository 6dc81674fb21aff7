// Package httpapi serves tint lookups and cache management over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ironsheep/poster-tint/internal/tint"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	Addr string

	// Gatherer backs GET /metrics; nil uses prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Store, when set, is pinged by GET /healthz.
	Store Pinger

	// RequestTimeout bounds each request. Batch lookups still answer 200
	// with the colors resolved before it expires; extractions already running
	// finish first, so a response can trail the deadline by up to one load.
	RequestTimeout time.Duration

	Logger *zap.Logger
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	svc        *tint.Service
	gatherer   prometheus.Gatherer
	store      Pinger
	timeout    time.Duration
	logger     *zap.Logger
	router     http.Handler
	httpServer *http.Server
}

func NewServer(svc *tint.Service, opts Options) *Server {
	s := &Server{
		svc:      svc,
		gatherer: opts.Gatherer,
		store:    opts.Store,
		timeout:  opts.RequestTimeout,
		logger:   opts.Logger,
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.timeout <= 0 {
		s.timeout = 60 * time.Second
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.router = s.setupRouter()
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      s.timeout + 10*time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until Shutdown; it returns http.ErrServerClosed after a
// clean shutdown.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
