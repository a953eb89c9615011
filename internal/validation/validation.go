// Package validation checks client supplied URLs and paths before they
// reach the network or the filesystem.
package validation

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ValidateURL checks that rawURL is an absolute http or https URL with a
// host and without whitespace or control characters.
func ValidateURL(rawURL string) error {
	if strings.ContainsAny(rawURL, " \t\r\n") {
		return fmt.Errorf("URL %q contains whitespace", rawURL)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	// Only allow http/https schemes
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %q (only http/https allowed)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must have a valid hostname")
	}
	if parsed.User != nil {
		return fmt.Errorf("URL must not carry credentials")
	}

	return nil
}

// ValidatePath checks a slash separated path relative to a root. It
// rejects absolute paths, traversal outside the root and NUL bytes, and
// returns the path in the host's separator form.
func ValidatePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("path contains a NUL byte")
	}
	if strings.HasPrefix(path, "/") || strings.Contains(path, "\\") {
		return "", fmt.Errorf("path %q must be relative with forward slashes", path)
	}

	local := filepath.FromSlash(path)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("path traversal detected: %s", path)
	}
	clean := filepath.Clean(local)
	if clean == "." {
		return "", fmt.Errorf("path %q names the root itself", path)
	}
	return clean, nil
}
