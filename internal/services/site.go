// Package services wires the content store, ingestion, file watching and
// the HTTP server together for the serve and publish commands.
package services

import (
	"context"
	"html/template"
	"os"
	"strings"
	"time"

	"github.com/conneroisu/ideamark/internal/cache"
	"github.com/conneroisu/ideamark/internal/config"
	"github.com/conneroisu/ideamark/internal/content"
	"github.com/conneroisu/ideamark/internal/errors"
	"github.com/conneroisu/ideamark/internal/ingest"
	"github.com/conneroisu/ideamark/internal/livereload"
	"github.com/conneroisu/ideamark/internal/logging"
	"github.com/conneroisu/ideamark/internal/parser"
	"github.com/conneroisu/ideamark/internal/render"
	"github.com/conneroisu/ideamark/internal/server"
	"github.com/conneroisu/ideamark/internal/watcher"
)

// Site holds the process wide state of one served site.
type Site struct {
	Settings *config.Settings
	Store    *content.Store
	Cache    *cache.ResponseCache
	Ingester *ingest.Ingester
	Renderer *render.TemplateRenderer
	// Hub is nil unless live reload is enabled.
	Hub *livereload.Hub

	logger  logging.Logger
	handler *errors.ErrorHandler
}

// NewSite creates the collaborators for settings. Every store mutation
// clears the response cache and notifies live reload clients.
func NewSite(settings *config.Settings, logger logging.Logger) *Site {
	store := content.NewStore()
	responses := cache.New(settings.CacheMaxBytes)
	p := parser.New(parser.Options{Sanitize: settings.SanitizeHTML})

	site := &Site{
		Settings: settings,
		Store:    store,
		Cache:    responses,
		Ingester: ingest.New(store, p, settings, logger),
		Renderer: render.NewTemplateRenderer(settings.ResolvePath(settings.TemplatesDir), templateFuncs()),
		logger:   logger.WithComponent("site"),
	}
	site.handler = errors.NewErrorHandler(site.logger)

	if settings.LiveReload {
		site.Hub = livereload.NewHub(logger)
	}

	store.OnChange(func(event content.Event) {
		responses.Clear()
		if site.Hub != nil && event.Type != content.EventChecksumRecorded {
			site.Hub.Reload(event.Path)
		}
	})

	return site
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"year":           func() int { return time.Now().Year() },
		"livereloadPath": func() string { return livereload.Path },
		"lower":          strings.ToLower,
	}
}

// Server creates the HTTP server for the site.
func (s *Site) Server() *server.Server {
	return server.New(server.Deps{
		Settings: s.Settings,
		Store:    s.Store,
		Cache:    s.Cache,
		Ingester: s.Ingester,
		Renderer: s.Renderer,
		Hub:      s.Hub,
		Logger:   s.logger,
	})
}

// Bootstrap records the settings file checksum, loads the menus and
// ingests every content directory. It returns once all files are done.
func (s *Site) Bootstrap(ctx context.Context) (*ingest.Result, error) {
	if s.Settings.File != "" {
		data, err := os.ReadFile(s.Settings.File)
		if err != nil {
			return nil, errors.NewIOError(errors.CodeReadFailed, "reading settings file", err).WithPath(s.Settings.File)
		}
		if _, err := s.Ingester.UpdateFile(ctx, data, s.Settings.File); err != nil {
			return nil, err
		}
	}

	s.Store.SetMenus(s.Settings.Menus)

	s.logger.Info(ctx, "Updating local files cache", "dirs", s.Settings.ContentPaths())
	return s.Ingester.IngestDirs(ctx, s.Settings.ContentPaths())
}

// Watch registers a watch for every content directory. Missing
// directories are logged and skipped. The caller runs the returned
// registry with HandleChanges and tears it down with RemoveAllWatches.
func (s *Site) Watch(ctx context.Context) *watcher.Registry {
	registry := watcher.NewRegistry(watcher.Options{
		Recursive: s.Settings.WatchRecursive,
		Creates:   s.Settings.WatchCreates,
		Debounce:  s.Settings.WatchDebounce,
	}, s.logger)
	registry.AddFilter(ingest.IsPost)
	registry.AddFilter(watcher.NoHiddenFilter)
	registry.AddFilter(watcher.NoTempFilter)

	for _, dir := range s.Settings.ContentPaths() {
		if err := registry.AddDirectoryWatch(dir); err != nil {
			s.logger.Warn(ctx, err, "Content directory not watched", "dir", dir)
		}
	}
	return registry
}

// HandleChanges re-ingests every changed file. Failures are logged per
// file and do not stop the rest of the batch.
func (s *Site) HandleChanges(ctx context.Context, events []watcher.ChangeEvent) error {
	for _, event := range events {
		s.logger.Info(ctx, "Updating changed file", "event", event.Type.String(), "file", event.Path)
		if err := s.Ingester.IngestPath(ctx, event.Path); err != nil {
			s.handler.Handle(ctx, err)
		}
	}
	return nil
}
