// Package publish pushes a local site to a remote ideamark server through
// the admin sync protocol. The remote checksum table is fetched first and
// only files whose digest differs are uploaded.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/conneroisu/ideamark/internal/errors"
	"github.com/conneroisu/ideamark/internal/ingest"
	"github.com/conneroisu/ideamark/internal/logging"
	"github.com/conneroisu/ideamark/internal/validation"
)

// Protocol headers, shared with the admin endpoint.
const (
	PasswordHeader = "password"
	FilenameHeader = "filename"
	MarkdownType   = "text/markdown"
)

// Options configures a Client.
type Options struct {
	// Remote is the base URL of the remote server.
	Remote string
	// AdminURL is the admin path prefix on the remote.
	AdminURL string
	Password string
	// Root is the local directory relative paths are read from.
	Root string
	// Prune deletes remote files that no longer exist locally.
	Prune bool
	// HTTPClient defaults to a client with a 30 second timeout.
	HTTPClient *http.Client
}

// Report summarises a publish run.
type Report struct {
	Uploaded  []string
	Deleted   []string
	Unchanged int
}

// Client talks to the admin endpoint of a remote server.
type Client struct {
	endpoint string
	password string
	root     string
	prune    bool
	http     *http.Client
	logger   logging.Logger
}

// New creates a Client.
func New(opts Options, logger logging.Logger) (*Client, error) {
	if opts.Remote == "" {
		return nil, errors.NewConfigError("remote is not configured")
	}
	if opts.AdminURL == "" {
		return nil, errors.NewConfigError("admin_url is not configured")
	}

	if err := validation.ValidateURL(opts.Remote); err != nil {
		return nil, errors.NewConfigError(fmt.Sprintf("remote: %v", err))
	}
	base, _ := url.Parse(opts.Remote)
	base.Path = strings.TrimRight(base.Path, "/") + opts.AdminURL

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		endpoint: base.String(),
		password: opts.Password,
		root:     opts.Root,
		prune:    opts.Prune,
		http:     client,
		logger:   logger.WithComponent("publish"),
	}, nil
}

// Plan compares local and remote tables. It returns the paths to upload,
// the remote-only paths to delete when prune is set, and the number of
// identical files. Both path lists are sorted.
func Plan(local, remote map[string]string, prune bool) (upload, remove []string, unchanged int) {
	for rel, sum := range local {
		if remoteSum, ok := remote[rel]; ok && remoteSum == sum {
			unchanged++
			continue
		}
		upload = append(upload, rel)
	}
	if prune {
		for rel := range remote {
			if _, ok := local[rel]; !ok {
				remove = append(remove, rel)
			}
		}
	}
	sort.Strings(upload)
	sort.Strings(remove)
	return upload, remove, unchanged
}

// Publish uploads every local file whose checksum differs from the remote
// table. local maps root relative slash paths to digests.
func (c *Client) Publish(ctx context.Context, local map[string]string) (*Report, error) {
	perf := logging.StartOperation(c.logger, "publish")

	remote, err := c.Remote(ctx)
	if err != nil {
		perf.EndWithError(ctx, err)
		return nil, err
	}

	upload, remove, unchanged := Plan(local, remote, c.prune)
	report := &Report{Unchanged: unchanged}

	for _, rel := range upload {
		if !filepath.IsLocal(filepath.FromSlash(rel)) {
			c.logger.Warn(ctx, nil, "Skipping file outside the site root", "file", rel)
			continue
		}
		if err := c.Upload(ctx, rel); err != nil {
			perf.EndWithError(ctx, err)
			return report, err
		}
		report.Uploaded = append(report.Uploaded, rel)
	}

	for _, rel := range remove {
		if err := c.Delete(ctx, rel); err != nil {
			perf.EndWithError(ctx, err)
			return report, err
		}
		report.Deleted = append(report.Deleted, rel)
	}

	perf.End(ctx,
		"uploaded", len(report.Uploaded),
		"deleted", len(report.Deleted),
		"unchanged", report.Unchanged)
	return report, nil
}

// Remote fetches the remote checksum table.
func (c *Client) Remote(ctx context.Context) (map[string]string, error) {
	resp, err := c.do(ctx, http.MethodGet, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	table := make(map[string]string)
	if err := json.NewDecoder(resp.Body).Decode(&table); err != nil {
		return nil, fmt.Errorf("decoding remote checksums: %w", err)
	}
	return table, nil
}

// Upload sends the local file rel to the remote.
func (c *Client) Upload(ctx context.Context, rel string) error {
	data, err := os.ReadFile(filepath.Join(c.root, filepath.FromSlash(rel)))
	if err != nil {
		return errors.NewIOError(errors.CodeReadFailed, "reading file to publish", err).WithPath(rel)
	}

	header := make(http.Header)
	header.Set(FilenameHeader, rel)
	header.Set("Content-Type", ContentType(rel))

	resp, err := c.do(ctx, http.MethodPut, bytes.NewReader(data), header)
	if err != nil {
		return err
	}
	resp.Body.Close()

	c.logger.Info(ctx, "Uploaded file", "file", rel, "bytes", len(data))
	return nil
}

// Delete removes rel on the remote.
func (c *Client) Delete(ctx context.Context, rel string) error {
	header := make(http.Header)
	header.Set(FilenameHeader, rel)

	resp, err := c.do(ctx, http.MethodDelete, nil, header)
	if err != nil {
		return err
	}
	resp.Body.Close()

	c.logger.Info(ctx, "Deleted remote file", "file", rel)
	return nil
}

// ContentType picks the content-type header for rel. Posts are sent as
// text/markdown so the remote parses them.
func ContentType(rel string) string {
	if ingest.IsPost(rel) {
		return MarkdownType
	}
	if ct := mime.TypeByExtension(path.Ext(rel)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (c *Client) do(ctx context.Context, method string, body io.Reader, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", method, err)
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set(PasswordHeader, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, c.endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &errors.Error{
			Kind:    errors.KindIO,
			Code:    errors.CodeRemoteRejected,
			Message: fmt.Sprintf("remote answered %s %s with %d: %s", method, header.Get(FilenameHeader), resp.StatusCode, strings.TrimSpace(string(msg))),
		}
	}
	return resp, nil
}
