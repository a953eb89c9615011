package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/conneroisu/ideamark/internal/checksum"
	"github.com/conneroisu/ideamark/internal/logging"
	"github.com/conneroisu/ideamark/internal/publish"
)

// PublishService pushes the local site to its remote server.
type PublishService struct {
	site   *Site
	logger logging.Logger
}

// NewPublishService creates a new publish service
func NewPublishService(site *Site, logger logging.Logger) *PublishService {
	return &PublishService{
		site:   site,
		logger: logger.WithComponent("publish"),
	}
}

// PublishOptions contains options for a publish run
type PublishOptions struct {
	// Remote overrides Settings.Remote.
	Remote string
	Prune  bool
	// HTTPClient is used for the admin requests when set.
	HTTPClient *http.Client
}

// Publish ingests the local site and uploads every file whose checksum
// differs on the remote.
func (p *PublishService) Publish(ctx context.Context, opts PublishOptions) (*publish.Report, error) {
	settings := p.site.Settings

	remote := opts.Remote
	if remote == "" {
		remote = settings.Remote
	}

	client, err := publish.New(publish.Options{
		Remote:     remote,
		AdminURL:   settings.AdminURL,
		Password:   settings.Password,
		Root:       settings.Root,
		Prune:      opts.Prune,
		HTTPClient: opts.HTTPClient,
	}, p.logger)
	if err != nil {
		return nil, err
	}

	if _, err := p.site.Bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("local ingestion failed: %w", err)
	}

	local := checksum.RelativeTable(settings.Root, p.site.Store.SnapshotChecksums())
	p.logger.Info(ctx, "Publishing site", "remote", remote, "files", len(local))

	return client.Publish(ctx, local)
}
