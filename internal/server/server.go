// Package server serves the content store over HTTP.
//
// Requests run through an ordered list of stages. Each stage either
// writes the response, enriches the per-request state and continues, or
// fails into the error page:
//
//	admin -> static -> live reload -> response cache -> normalise ->
//	context -> post -> list -> master render   (error page on failure)
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/conneroisu/ideamark/internal/cache"
	"github.com/conneroisu/ideamark/internal/config"
	"github.com/conneroisu/ideamark/internal/content"
	"github.com/conneroisu/ideamark/internal/errors"
	"github.com/conneroisu/ideamark/internal/ingest"
	"github.com/conneroisu/ideamark/internal/livereload"
	"github.com/conneroisu/ideamark/internal/logging"
	"github.com/conneroisu/ideamark/internal/middleware"
	"github.com/conneroisu/ideamark/internal/render"
)

// Template names inside the templates directory.
const (
	MasterTemplate = "master.html"
	ErrorTemplate  = "error.html"
)

// Deps are the collaborators a Server needs.
type Deps struct {
	Settings *config.Settings
	Store    *content.Store
	Cache    *cache.ResponseCache
	Ingester *ingest.Ingester
	Renderer render.Renderer
	// Hub is optional and only used when live reload is enabled.
	Hub    *livereload.Hub
	Logger logging.Logger
}

// Server serves the site.
type Server struct {
	settings *config.Settings
	store    *content.Store
	cache    *cache.ResponseCache
	ingester *ingest.Ingester
	renderer render.Renderer
	hub      *livereload.Hub
	logger   logging.Logger
	errors   *errors.ErrorHandler

	pipeline *Pipeline
	handler  http.Handler

	httpServer   *http.Server
	closed       bool
	serverMutex  sync.Mutex
	shutdownOnce sync.Once
}

// New creates a Server and assembles its pipeline.
func New(deps Deps) *Server {
	logger := deps.Logger.WithComponent("server")

	s := &Server{
		settings: deps.Settings,
		store:    deps.Store,
		cache:    deps.Cache,
		ingester: deps.Ingester,
		renderer: deps.Renderer,
		hub:      deps.Hub,
		logger:   logger,
		errors:   errors.NewErrorHandler(logger),
	}

	stages := []Stage{
		{Name: "admin", Run: s.adminStage()},
		{Name: "static", Run: s.staticStage},
	}
	if s.settings.LiveReload && s.hub != nil {
		stages = append(stages, Stage{Name: "livereload", Run: s.liveReloadStage})
	}
	stages = append(stages,
		Stage{Name: "cache", Run: s.cacheStage},
		Stage{Name: "normalize", Run: s.normalizeStage},
		Stage{Name: "context", Run: s.contextStage},
		Stage{Name: "post", Run: s.postStage},
		Stage{Name: "list", Run: s.listStage},
		Stage{Name: "master", Run: s.masterStage},
	)

	s.pipeline = NewPipeline(s.errorStage, stages...)
	s.handler = middleware.NewDefaultChain(deps.Logger).Apply(s.pipeline)

	return s
}

// Handler returns the complete HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Pipeline returns the stage pipeline without middleware.
func (s *Server) Pipeline() *Pipeline {
	return s.pipeline
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.settings.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.settings.Addr(), err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until Shutdown. Serving after Shutdown closes
// the listener and returns immediately.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.serverMutex.Lock()
	if s.closed {
		s.serverMutex.Unlock()
		return listener.Close()
	}
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "Server listening", "addr", listener.Addr().String())

	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server and disconnects live reload
// clients.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")

		if s.hub != nil {
			s.hub.Close()
		}

		s.serverMutex.Lock()
		s.closed = true
		server := s.httpServer
		s.serverMutex.Unlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}

		stats := s.cache.Stats()
		s.logger.Info(ctx, "Response cache stats",
			"entries", stats.Entries,
			"size", stats.Size,
			"hits", stats.Hits,
			"misses", stats.Misses,
			"evictions", stats.Evictions,
			"clears", stats.Clears)
	})

	return shutdownErr
}
