package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/conneroisu/ideamark/internal/errors"
	"github.com/conneroisu/ideamark/internal/livereload"
)

// Cache lifetimes of static responses, in seconds.
const (
	faviconMaxAge = 84600 * 365
	robotsMaxAge  = 84600
	staticMaxAge  = 365 * 24 * 60 * 60
)

// StaticPrefix is the URL prefix of files served from Settings.StaticDir.
const StaticPrefix = "/static/"

// staticStage serves the favicon, robots.txt and everything under
// StaticPrefix from the static directory.
func (s *Server) staticStage(w http.ResponseWriter, req *Request) Result {
	var name string
	var maxAge int

	path := req.URL.Path
	switch {
	case path == "/favicon.ico":
		name, maxAge = "favicon.ico", faviconMaxAge
	case path == "/robots.txt":
		name, maxAge = "robots.txt", robotsMaxAge
	case strings.HasPrefix(path, StaticPrefix):
		name, maxAge = strings.TrimPrefix(path, StaticPrefix), staticMaxAge
	default:
		return next()
	}

	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return notFound("static files only answer GET and HEAD")
	}

	root := http.Dir(s.settings.ResolvePath(s.settings.StaticDir))
	f, err := root.Open("/" + name)
	if err != nil {
		return fail(errors.NotFound(errors.CodeRouteNotFound, fmt.Sprintf("static file %s not found", name)))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fail(errors.NewIOError(errors.CodeReadFailed, "reading static file", err).WithPath(name))
	}
	if info.IsDir() {
		return notFound(fmt.Sprintf("%s is a directory", name))
	}

	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAge))
	http.ServeContent(w, req.Request, info.Name(), info.ModTime(), f)
	return handled()
}

// liveReloadStage upgrades livereload.Path to the reload websocket.
func (s *Server) liveReloadStage(w http.ResponseWriter, req *Request) Result {
	if req.URL.Path != livereload.Path {
		return next()
	}
	s.hub.ServeHTTP(w, req.Request)
	return handled()
}

// cacheStage replays a stored response for the exact original URL. The
// cache generation is captured here, before any later stage reads the
// store, so a render that raced with a mutation is never stored.
func (s *Server) cacheStage(w http.ResponseWriter, req *Request) Result {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return next()
	}

	req.Generation = s.cache.Generation()

	resp, ok := s.cache.Get(req.OriginalURL)
	if !ok {
		return next()
	}

	header := w.Header()
	for key, values := range resp.Header {
		header[key] = append([]string(nil), values...)
	}
	w.WriteHeader(http.StatusOK)
	if req.Method == http.MethodGet {
		_, _ = w.Write(resp.Body)
	}
	return handled()
}

// normalizeStage strips trailing slashes and resolves the language
// segment. Requests without a served language are redirected to the same
// path under the default language.
func (s *Server) normalizeStage(w http.ResponseWriter, req *Request) Result {
	path := req.URL.Path

	if req.Method == http.MethodGet && len(path) > 1 && strings.HasSuffix(path, "/") {
		trimmed := strings.TrimRight(path, "/")
		if trimmed == "" {
			trimmed = "/"
		}
		return redirect(w, req, trimmed)
	}

	segment, rest, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if !s.settings.HasLanguage(segment) {
		target := "/" + s.settings.DefaultLanguage()
		if path != "/" {
			target += path
		}
		return redirect(w, req, target)
	}

	req.Language = segment
	req.Path = "/" + rest
	return next()
}

// redirect answers with a permanent redirect to path, keeping the query.
// A leading run of slashes or backslashes is collapsed so the target
// always stays on this host.
func redirect(w http.ResponseWriter, req *Request, path string) Result {
	path = "/" + strings.TrimLeft(path, `/\`)
	if req.URL.RawQuery != "" {
		path += "?" + req.URL.RawQuery
	}
	w.Header().Set("Location", path)
	w.WriteHeader(http.StatusMovedPermanently)
	return handled()
}
