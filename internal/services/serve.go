package services

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/conneroisu/ideamark/internal/ingest"
	"github.com/conneroisu/ideamark/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// ServeService handles serve mode: startup ingestion, file watching and
// the HTTP server.
type ServeService struct {
	site   *Site
	logger logging.Logger
}

// NewServeService creates a new serve service
func NewServeService(site *Site, logger logging.Logger) *ServeService {
	return &ServeService{
		site:   site,
		logger: logger.WithComponent("serve"),
	}
}

// ServeOptions contains options for the serve process
type ServeOptions struct {
	// Listener replaces listening on the configured address.
	Listener net.Listener
	// Ready is called once ingestion finished and the server accepts
	// connections.
	Ready func(*ServeResult)
}

// ServeResult contains the result of a serve operation
type ServeResult struct {
	ServerURL string
	Ingested  *ingest.Result
	Watched   []string
}

// Serve ingests the site and serves it until ctx is cancelled or the
// process receives SIGINT or SIGTERM.
func (s *ServeService) Serve(ctx context.Context, opts ServeOptions) (*ServeResult, error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings := s.site.Settings
	result := &ServeResult{}

	ingested, err := s.site.Bootstrap(ctx)
	if err != nil {
		return result, fmt.Errorf("startup ingestion failed: %w", err)
	}
	result.Ingested = ingested

	if settings.WatchFiles {
		registry := s.site.Watch(ctx)
		defer func() {
			if err := registry.RemoveAllWatches(); err != nil {
				s.logger.Warn(context.Background(), err, "Error removing watches")
			}
		}()
		result.Watched = registry.Dirs()

		go func() {
			if err := registry.Run(ctx, s.site.HandleChanges); err != nil {
				s.logger.Error(ctx, err, "Watch worker stopped")
			}
		}()
	}

	listener := opts.Listener
	if listener == nil {
		listener, err = net.Listen("tcp", settings.Addr())
		if err != nil {
			return result, fmt.Errorf("failed to listen on %s: %w", settings.Addr(), err)
		}
	}
	result.ServerURL = "http://" + listener.Addr().String()

	srv := s.site.Server()

	go func() {
		<-ctx.Done()
		s.logger.Info(context.Background(), "Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, err, "Error during server shutdown")
		}
	}()

	s.logger.Info(ctx, "Serving site",
		"url", result.ServerURL,
		"posts", s.site.Store.Count(),
		"watched", len(result.Watched))
	if opts.Ready != nil {
		opts.Ready(result)
	}

	if err := srv.Serve(ctx, listener); err != nil {
		return result, err
	}
	return result, nil
}
