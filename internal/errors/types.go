// Package errors defines the error taxonomy shared by ingestion, the
// admin sync surface and the request pipeline, and maps it onto HTTP
// status codes.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind represents different categories of errors.
type Kind string

const (
	KindNotFound Kind = "not_found"
	KindParse    Kind = "parse"
	KindRender   Kind = "render"
	KindIO       Kind = "io"
	KindConfig   Kind = "config"
	KindInput    Kind = "input"
	KindInternal Kind = "internal"
)

// Common error codes.
const (
	CodeRouteNotFound    = "ERR_ROUTE_NOT_FOUND"
	CodePostNotFound     = "ERR_POST_NOT_FOUND"
	CodeAdminDenied      = "ERR_ADMIN_DENIED"
	CodeParseFailed      = "ERR_PARSE_FAILED"
	CodeTemplateMissing  = "ERR_TEMPLATE_MISSING"
	CodeRenderFailed     = "ERR_RENDER_FAILED"
	CodeReadFailed       = "ERR_READ_FAILED"
	CodeWriteFailed      = "ERR_WRITE_FAILED"
	CodeConfigInvalid    = "ERR_CONFIG_INVALID"
	CodeInvalidPath      = "ERR_INVALID_PATH"
	CodeMissingHeader    = "ERR_MISSING_HEADER"
	CodeInternal         = "ERR_INTERNAL"
	CodeRemoteRejected   = "ERR_REMOTE_REJECTED"
	CodeIngestionAborted = "ERR_INGESTION_ABORTED"
)

// Error is a structured error carrying its kind, a stable code and the
// file it concerns.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Path    string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.Path != "" {
		parts = append(parts, e.Path)
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same kind and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind && e.Code == t.Code
	}

	return false
}

// WithPath records the file the error concerns.
func (e *Error) WithPath(path string) *Error {
	e.Path = path

	return e
}

// NotFound creates a not-found error.
func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

// NewParseError creates a parse failure for a single content file.
func NewParseError(path string, cause error) *Error {
	return &Error{
		Kind:    KindParse,
		Code:    CodeParseFailed,
		Message: "content file could not be parsed",
		Path:    path,
		Cause:   cause,
	}
}

// NewTemplateMissing creates the render failure variant that maps to 404.
func NewTemplateMissing(path string, cause error) *Error {
	return &Error{
		Kind:    KindRender,
		Code:    CodeTemplateMissing,
		Message: "template file missing",
		Path:    path,
		Cause:   cause,
	}
}

// NewRenderError creates a generic render failure.
func NewRenderError(path string, cause error) *Error {
	return &Error{
		Kind:    KindRender,
		Code:    CodeRenderFailed,
		Message: "template rendering failed",
		Path:    path,
		Cause:   cause,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *Error {
	return &Error{Kind: KindIO, Code: code, Message: message, Cause: cause}
}

// NewConfigError creates a configuration error.
func NewConfigError(message string) *Error {
	return &Error{Kind: KindConfig, Code: CodeConfigInvalid, Message: message}
}

// NewInputError creates an error for malformed client input.
func NewInputError(code, message string) *Error {
	return &Error{Kind: KindInput, Code: code, Message: message}
}

// NewInternalError creates an internal error.
func NewInternalError(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: message, Cause: cause}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindInternal
}

// IsNotFound checks whether err should be answered with 404.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindNotFound || e.Code == CodeTemplateMissing
	}

	return false
}

// IsParseFailure checks if err is a content parse failure.
func IsParseFailure(err error) bool {
	return KindOf(err) == KindParse
}

// IsIOFailure checks if err is an I/O failure.
func IsIOFailure(err error) bool {
	return KindOf(err) == KindIO
}

// StatusCode maps err onto the HTTP status the error page is served with.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsNotFound(err):
		return http.StatusNotFound
	case KindOf(err) == KindInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// ErrorHandler provides centralized error logging.
type ErrorHandler struct {
	logger Logger
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err at a level chosen by its kind. File-level failures are
// warnings because the batch they belong to carries on.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var e *Error
	if !errors.As(err, &e) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch e.Kind {
	case KindParse, KindIO:
		h.logger.Warn(ctx, err, "File skipped",
			"kind", e.Kind,
			"code", e.Code,
			"file", e.Path)
	case KindNotFound, KindInput:
		h.logger.Warn(ctx, err, "Request rejected",
			"kind", e.Kind,
			"code", e.Code)
	default:
		h.logger.Error(ctx, err, "Error occurred",
			"kind", e.Kind,
			"code", e.Code,
			"file", e.Path)
	}
}
