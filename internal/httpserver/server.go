// Package httpserver is the HTTP control surface. Handlers read parameter
// state, announce changes through the shared params.Mirror, report capture
// levels and export capture snapshots as WAV files.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/rtsync/internal/audiocore"
	"github.com/tphakala/rtsync/internal/capture"
	"github.com/tphakala/rtsync/internal/errors"
	"github.com/tphakala/rtsync/internal/logger"
	"github.com/tphakala/rtsync/internal/observability"
	"github.com/tphakala/rtsync/internal/params"
)

const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 30 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 5 * time.Second
	bodyLimit       = "64K"
)

// Server serves the control API.
type Server struct {
	echo   *echo.Echo
	listen string
	log    logger.Logger

	mirror     *params.Mirror
	store      *params.Store
	captures   map[string]*capture.Publisher
	exportPath string
	sampleRate func() int
	stats      func() audiocore.Stats
	metrics    *observability.Metrics

	startTime time.Time

	mu       sync.Mutex
	listener net.Listener
	serveErr chan error
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(log logger.Logger) ServerOption {
	return func(s *Server) { s.log = log }
}

// WithCaptures exposes capture publishers under /api/v1/captures.
func WithCaptures(pubs ...*capture.Publisher) ServerOption {
	return func(s *Server) {
		for _, p := range pubs {
			s.captures[p.Name()] = p
		}
	}
}

// WithExport enables WAV export into dir at the rate returned by sampleRate.
func WithExport(dir string, sampleRate func() int) ServerOption {
	return func(s *Server) {
		s.exportPath = dir
		s.sampleRate = sampleRate
	}
}

// WithStats adds driver counters to the health response.
func WithStats(stats func() audiocore.Stats) ServerOption {
	return func(s *Server) { s.stats = stats }
}

// WithMetrics serves /metrics and records request metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// New creates a server for listen. Routes are registered immediately so the
// handler can be tested without a listener.
func New(listen string, mirror *params.Mirror, store *params.Store, opts ...ServerOption) (*Server, error) {
	if mirror == nil || store == nil {
		return nil, errors.Newf("http server needs a mirror and a store").
			Component("httpserver").
			Category(errors.CategoryValidation).
			Build()
	}

	s := &Server{
		listen:    listen,
		mirror:    mirror,
		store:     store,
		captures:  make(map[string]*capture.Publisher),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Global().Module("http")
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = readTimeout
	s.echo.Server.WriteTimeout = writeTimeout
	s.echo.Server.IdleTimeout = idleTimeout

	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(newRequestLogger(s.log))
	if s.metrics != nil {
		s.echo.Use(newMetricsMiddleware(s.metrics.HTTP))
	}
	s.echo.Use(echomw.BodyLimit(bodyLimit))
}

func (s *Server) setupRoutes() {
	v1 := s.echo.Group("/api/v1")
	v1.GET("/health", s.healthCheck)

	v1.GET("/params", s.listParams)
	v1.GET("/params/:id", s.getParam)
	v1.PUT("/params/:id", s.setParam)
	v1.POST("/params/:id/reset", s.resetParam)
	v1.POST("/params/:id/toggle", s.toggleParam)

	v1.GET("/captures", s.listCaptures)
	v1.GET("/captures/:name", s.getCapture)
	v1.POST("/captures/:name/export", s.exportCapture)

	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler(s.log)))
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Start binds the listener and serves in a background goroutine.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return errors.New(fmt.Errorf("failed to listen on %s: %w", s.listen, err)).
			Component("httpserver").
			Category(errors.CategoryNetwork).
			Build()
	}
	s.listener = ln
	s.echo.Listener = ln
	s.serveErr = make(chan error, 1)

	go func() {
		err := s.echo.Start("")
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.serveErr <- err
	}()
	s.log.Info("HTTP server started", logger.String("address", ln.Addr().String()))
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	serveErr := s.serveErr
	s.mu.Unlock()
	if serveErr == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return errors.New(fmt.Errorf("shutdown error: %w", err)).
			Component("httpserver").
			Category(errors.CategoryNetwork).
			Build()
	}
	err := <-serveErr
	s.log.Info("HTTP server stopped")
	return err
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Shutdown()
}
