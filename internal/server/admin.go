package server

import (
	"crypto/subtle"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/conneroisu/ideamark/internal/checksum"
	"github.com/conneroisu/ideamark/internal/errors"
	"github.com/conneroisu/ideamark/internal/ingest"
	"github.com/conneroisu/ideamark/internal/logging"
	"github.com/conneroisu/ideamark/internal/validation"
)

// Admin request headers.
const (
	PasswordHeader = "password"
	FilenameHeader = "filename"
	MarkdownType   = "text/markdown"
)

// adminStage answers the sync protocol under Settings.AdminURL. A wrong
// password is reported as a plain not found so the endpoint stays hidden.
func (s *Server) adminStage() func(w http.ResponseWriter, req *Request) Result {
	prefix := s.settings.AdminURL
	if prefix == "" {
		return func(http.ResponseWriter, *Request) Result { return next() }
	}

	router := chi.NewRouter()
	router.Route(prefix, func(r chi.Router) {
		for _, pattern := range []string{"/", "/*"} {
			r.Get(pattern, s.adminHandler(s.adminChecksums))
			r.Put(pattern, s.adminHandler(s.adminPut))
			r.Delete(pattern, s.adminHandler(s.adminDelete))
		}
	})

	return func(w http.ResponseWriter, req *Request) Result {
		path := req.URL.Path
		if path != prefix && !strings.HasPrefix(path, prefix+"/") {
			return next()
		}

		if !s.authorized(req.Request) {
			logging.LogSecurityEvent(req.Context(), s.logger, "admin_auth_failed", map[string]interface{}{
				"method":      req.Method,
				"path":        path,
				"remote_addr": req.RemoteAddr,
			})
			return fail(errors.NotFound(errors.CodeAdminDenied, "admin request rejected"))
		}

		switch req.Method {
		case http.MethodGet, http.MethodPut, http.MethodDelete:
		default:
			return fail(errors.NotFound(errors.CodeRouteNotFound,
				fmt.Sprintf("no admin route for %s %s", req.Method, path)))
		}

		router.ServeHTTP(w, req.Request)
		return handled()
	}
}

func (s *Server) authorized(r *http.Request) bool {
	given := r.Header.Get(PasswordHeader)
	if given == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(s.settings.Password)) == 1
}

// adminHandler adapts an error returning handler. Failures are answered
// in plain text since the caller is a program, not a browser.
func (s *Server) adminHandler(fn func(w http.ResponseWriter, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		status := errors.StatusCode(err)
		var tooLarge *http.MaxBytesError
		switch {
		case stderrors.As(err, &tooLarge):
			status = http.StatusRequestEntityTooLarge
		case errors.IsParseFailure(err):
			status = http.StatusUnprocessableEntity
		}

		s.errors.Handle(r.Context(), err)
		http.Error(w, err.Error(), status)
	}
}

// adminChecksums writes the checksum table keyed by root relative paths.
func (s *Server) adminChecksums(w http.ResponseWriter, r *http.Request) error {
	table := checksum.RelativeTable(s.settings.Root, s.store.SnapshotChecksums())

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(table); err != nil {
		return errors.NewInternalError("encoding checksum table", err)
	}
	return nil
}

// adminPut stores the uploaded file under the root and ingests it before
// answering.
func (s *Server) adminPut(w http.ResponseWriter, r *http.Request) error {
	filename := r.Header.Get(FilenameHeader)
	contentType := r.Header.Get("Content-Type")
	if filename == "" || contentType == "" {
		return errors.NewInputError(errors.CodeMissingHeader, "filename and content-type headers are required")
	}
	path, err := s.uploadPath(filename)
	if err != nil {
		return err
	}

	body := io.Reader(r.Body)
	if s.settings.MaxUploadBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.settings.MaxUploadBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("reading upload %s: %w", filename, err)
	}

	if err := writeAtomic(path, data); err != nil {
		return errors.NewIOError(errors.CodeWriteFailed, "storing upload", err).WithPath(path)
	}

	if mediaType(contentType) == MarkdownType {
		_, err = s.ingester.UpdatePost(r.Context(), data, path, ingest.Options{UseCaching: s.settings.UseCaching})
	} else {
		_, err = s.ingester.UpdateFile(r.Context(), data, path)
	}
	if err != nil {
		return err
	}
	s.cache.Clear()

	s.logger.Info(r.Context(), "Admin upload stored", "file", filename, "bytes", len(data))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "Received file: '%s'", filename)
	return nil
}

// adminDelete removes a file from disk and from the store.
func (s *Server) adminDelete(w http.ResponseWriter, r *http.Request) error {
	filename := r.Header.Get(FilenameHeader)
	if filename == "" {
		return errors.NewInputError(errors.CodeMissingHeader, "filename header is required")
	}
	path, err := s.uploadPath(filename)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.NewIOError(errors.CodeWriteFailed, "removing file", err).WithPath(path)
	}
	removed := s.ingester.DeleteFile(r.Context(), path)
	s.cache.Clear()

	s.logger.Info(r.Context(), "Admin delete applied", "file", filename, "indexed", removed)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "Deleted file: '%s'", filename)
	return nil
}

// uploadPath resolves a client supplied filename below the root.
func (s *Server) uploadPath(filename string) (string, error) {
	local, err := validation.ValidatePath(filename)
	if err != nil {
		return "", errors.NewInputError(errors.CodeInvalidPath, fmt.Sprintf("filename %q: %v", filename, err))
	}
	return filepath.Join(s.settings.Root, local), nil
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.TrimSpace(strings.ToLower(contentType))
	}
	return mt
}

// writeAtomic replaces path with data through a hidden temporary file so
// watchers and readers never see a partial upload.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
