// Package ingest reads content files into the content store.
//
// Startup ingestion collects every file below the configured content
// directories first, then hands the whole batch to a fixed pool of
// workers. The batch barrier is sized to the number of collected files
// before any worker starts, so completion fires exactly once, also for
// an empty batch. Failures are isolated per file.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"

	"github.com/conneroisu/ideamark/internal/checksum"
	"github.com/conneroisu/ideamark/internal/config"
	"github.com/conneroisu/ideamark/internal/content"
	"github.com/conneroisu/ideamark/internal/errors"
	"github.com/conneroisu/ideamark/internal/logging"
	"github.com/conneroisu/ideamark/internal/parser"
)

// Options controls a single post update.
type Options struct {
	// UseCaching skips re-parsing when the checksum is unchanged.
	UseCaching bool
}

// Result summarises an ingestion batch.
type Result struct {
	Files    int
	Posts    int
	Assets   int
	Skipped  int
	Failed   int
	Duration time.Duration
}

// Ingester parses content files and records them in a content.Store.
type Ingester struct {
	store    *content.Store
	parser   parser.Parser
	settings *config.Settings
	logger   logging.Logger
	handler  *errors.ErrorHandler
	workers  int
}

// New creates an Ingester.
func New(store *content.Store, p parser.Parser, settings *config.Settings, logger logging.Logger) *Ingester {
	logger = logger.WithComponent("ingest")

	workers := settings.MaxConcurrency
	if workers <= 0 {
		workers = 1
	}

	return &Ingester{
		store:    store,
		parser:   p,
		settings: settings,
		logger:   logger,
		handler:  errors.NewErrorHandler(logger),
		workers:  workers,
	}
}

// Store returns the store the ingester writes to.
func (in *Ingester) Store() *content.Store {
	return in.store
}

// IsPost reports whether path has a post extension.
func IsPost(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	default:
		return false
	}
}

// Slug derives the slug of a post from its file name.
func Slug(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// UpdatePost checksums data, parses it unless the checksum is unchanged
// and caching is enabled, and replaces the post ingested from path.
func (in *Ingester) UpdatePost(ctx context.Context, data []byte, path string, opts Options) (*content.Post, error) {
	path, err := absPath(path)
	if err != nil {
		return nil, err
	}

	sum := checksum.Sum(data)
	if opts.UseCaching {
		if prev, ok := in.store.Checksum(path); ok && prev == sum {
			if post, ok := in.store.PostByPath(path); ok {
				in.logger.Debug(ctx, "Post unchanged, skipping parse", "file", path)
				return post, nil
			}
		}
	}

	doc, err := in.parser.Parse(data)
	if err != nil {
		return nil, errors.NewParseError(path, err)
	}

	post := &content.Post{
		Slug:     Slug(path),
		Language: in.language(doc.Meta.Lang, path),
		Path:     path,
		Content:  doc.Content,
		Excerpt:  doc.Excerpt,
		Checksum: sum,
		Meta: content.Meta{
			Title:       doc.Meta.Title,
			Author:      doc.Meta.Author,
			Description: doc.Meta.Description,
			Template:    doc.Meta.Template,
			Date:        doc.Meta.Date.Time,
			Tags:        doc.Meta.Tags,
		},
	}
	if !post.Meta.Date.IsZero() {
		post.Meta.FormattedDate = post.Meta.Date.Format(in.settings.DateFormat)
	}
	post.Meta.Link = "/" + post.Language + in.settings.PostsURL + "/" + post.Slug

	in.store.UpsertPost(post)
	in.store.RecordChecksum(path, sum)

	in.logger.Debug(ctx, "Post ingested",
		"file", path,
		"slug", post.Slug,
		"lang", post.Language)

	return post, nil
}

// UpdateFile records the checksum of a file that is not a post.
func (in *Ingester) UpdateFile(ctx context.Context, data []byte, path string) (string, error) {
	path, err := absPath(path)
	if err != nil {
		return "", err
	}

	sum := checksum.Sum(data)
	in.store.RecordChecksum(path, sum)
	in.logger.Debug(ctx, "File checksum recorded", "file", path)

	return sum, nil
}

// DeleteFile removes the post ingested from path, if any, and its checksum.
func (in *Ingester) DeleteFile(ctx context.Context, path string) bool {
	path, err := absPath(path)
	if err != nil {
		return false
	}

	_, removedPost := in.store.RemovePath(path)
	removedSum := in.store.RemoveChecksum(path)

	in.logger.Debug(ctx, "File deleted", "file", path, "post", removedPost)
	return removedPost || removedSum
}

// Ingest dispatches data to UpdatePost or UpdateFile by extension.
func (in *Ingester) Ingest(ctx context.Context, data []byte, path string) error {
	if IsPost(path) {
		_, err := in.UpdatePost(ctx, data, path, Options{UseCaching: in.settings.UseCaching})
		return err
	}
	_, err := in.UpdateFile(ctx, data, path)
	return err
}

// IngestPath reads path from disk and ingests it.
func (in *Ingester) IngestPath(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.NewIOError(errors.CodeReadFailed, "reading content file", err).WithPath(path)
	}
	return in.Ingest(ctx, data, path)
}

// IngestDirs crawls every directory and ingests all discovered files on
// the worker pool. It returns once every file has been processed.
func (in *Ingester) IngestDirs(ctx context.Context, dirs []string) (*Result, error) {
	perf := logging.StartOperation(in.logger, "ingest_dirs")
	start := time.Now()
	result := &Result{}

	var files []string
	for _, dir := range dirs {
		for path, err := range Crawl(dir) {
			if err != nil {
				result.Failed++
				in.handler.Handle(ctx, errors.NewIOError(errors.CodeReadFailed, "crawling content directory", err).WithPath(path))
				continue
			}
			files = append(files, path)
		}
	}
	result.Files = len(files)

	outcomes := in.processBatch(ctx, files)
	for _, outcome := range outcomes {
		switch {
		case outcome.err == context.Canceled || outcome.err == context.DeadlineExceeded:
			result.Skipped++
		case outcome.err != nil:
			result.Failed++
			in.handler.Handle(ctx, outcome.err)
		case IsPost(outcome.path):
			result.Posts++
		default:
			result.Assets++
		}
	}
	result.Duration = time.Since(start)

	if err := ctx.Err(); err != nil {
		perf.EndWithError(ctx, err)
		return result, errors.NewIOError(errors.CodeIngestionAborted, "ingestion cancelled", err)
	}

	perf.End(ctx,
		"files", result.Files,
		"posts", result.Posts,
		"assets", result.Assets,
		"failed", result.Failed)

	return result, nil
}

type job struct {
	index int
	path  string
}

type outcome struct {
	path string
	err  error
}

// processBatch runs IngestPath for every file with at most in.workers in
// flight and returns one outcome per file, in input order.
func (in *Ingester) processBatch(ctx context.Context, files []string) []outcome {
	outcomes := make([]outcome, len(files))
	if len(files) == 0 {
		return outcomes
	}

	workers := in.workers
	if workers > len(files) {
		workers = len(files)
	}

	jobs := make(chan job, len(files))
	for i, path := range files {
		jobs <- job{index: i, path: path}
	}
	close(jobs)

	var wg sync.WaitGroup
	wg.Add(len(files))

	for w := 0; w < workers; w++ {
		go func() {
			for j := range jobs {
				var err error
				if ctxErr := ctx.Err(); ctxErr != nil {
					err = ctxErr
				} else {
					err = in.IngestPath(ctx, j.path)
				}
				outcomes[j.index] = outcome{path: j.path, err: err}
				wg.Done()
			}
		}()
	}

	wg.Wait()
	return outcomes
}

// language picks the post language from front matter, then from the
// nearest parent directory named after a served language, then falls
// back to the default language. Directories above the owning content
// directory are never consulted.
func (in *Ingester) language(declared, path string) string {
	if lang, ok := in.match(declared); ok {
		return lang
	}

	dir := filepath.Dir(path)
	boundary := in.languageBoundary(dir)
	for {
		if lang, ok := in.match(filepath.Base(dir)); ok {
			return lang
		}
		if dir == boundary {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return in.settings.DefaultLanguage()
}

// languageBoundary is the deepest content directory holding dir, else the
// root when dir lies below it, else dir itself.
func (in *Ingester) languageBoundary(dir string) string {
	boundary := ""
	for _, contentDir := range in.settings.ContentPaths() {
		if within(contentDir, dir) && len(contentDir) > len(boundary) {
			boundary = contentDir
		}
	}
	if boundary != "" {
		return boundary
	}
	if within(in.settings.Root, dir) {
		return in.settings.Root
	}
	return dir
}

func within(base, dir string) bool {
	rel, err := filepath.Rel(base, dir)
	return err == nil && (rel == "." || filepath.IsLocal(rel))
}

func (in *Ingester) match(candidate string) (string, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return "", false
	}
	if in.settings.HasLanguage(candidate) {
		return candidate, true
	}
	tag, err := language.Parse(candidate)
	if err != nil {
		return "", false
	}
	if canonical := tag.String(); in.settings.HasLanguage(canonical) {
		return canonical, true
	}
	return "", false
}

func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.NewInputError(errors.CodeInvalidPath, fmt.Sprintf("resolving %s", path))
	}
	return abs, nil
}
