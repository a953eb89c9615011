package server

import (
	"html/template"
	"net/http"

	"github.com/conneroisu/ideamark/internal/config"
	"github.com/conneroisu/ideamark/internal/errors"
)

// Outcome is what a stage decided about the request.
type Outcome int

const (
	// Continue passes the request to the next stage.
	Continue Outcome = iota
	// Handled means the stage wrote the response.
	Handled
	// Fail jumps to the error page.
	Fail
)

// Result is returned by every stage.
type Result struct {
	Outcome Outcome
	Err     error
}

func next() Result          { return Result{Outcome: Continue} }
func handled() Result       { return Result{Outcome: Handled} }
func fail(err error) Result { return Result{Outcome: Fail, Err: err} }
func notFound(msg string) Result {
	return fail(errors.NotFound(errors.CodeRouteNotFound, msg))
}

// Stage is one step of the request pipeline.
type Stage struct {
	Name string
	Run  func(w http.ResponseWriter, req *Request) Result
}

// Request carries the per-request state shared by the stages.
type Request struct {
	*http.Request

	// OriginalURL is the raw request URI before normalisation. Responses
	// are cached under it.
	OriginalURL string
	// Path is the request path with the language segment removed.
	Path string
	// Language is the negotiated language.
	Language string
	// Generation is the response cache generation observed before the
	// content store was read.
	Generation uint64

	Page Page
}

// Page is the data handed to the master template.
type Page struct {
	Language    string
	Settings    *config.Settings
	Strings     map[string]string
	Menus       template.HTML
	Tags        template.HTML
	Languages   template.HTML
	Content     template.HTML
	Title       string
	Author      string
	Description string
	LiveReload  bool

	populated bool
}

// SetContent fills the content area of the page.
func (p *Page) SetContent(content string) {
	p.Content = template.HTML(content)
	p.populated = true
}

// Populated reports whether a post or list stage produced content.
func (p *Page) Populated() bool {
	return p.populated
}

// Pipeline runs the stages in order and falls back to the error page.
type Pipeline struct {
	stages []Stage
	errors func(w http.ResponseWriter, req *Request, err error)
}

// NewPipeline creates a pipeline. onError is the terminal error stage.
func NewPipeline(onError func(w http.ResponseWriter, req *Request, err error), stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages, errors: onError}
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, 0, len(p.stages))
	for _, stage := range p.stages {
		names = append(names, stage.Name)
	}
	return names
}

// ServeHTTP implements http.Handler.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := &Request{
		Request:     r,
		OriginalURL: r.RequestURI,
		Path:        r.URL.Path,
	}
	if req.OriginalURL == "" {
		req.OriginalURL = r.URL.RequestURI()
	}

	for _, stage := range p.stages {
		result := stage.Run(w, req)
		switch result.Outcome {
		case Handled:
			return
		case Fail:
			p.errors(w, req, result.Err)
			return
		}
	}

	p.errors(w, req, errors.NotFound(errors.CodeRouteNotFound, "no stage handled the request"))
}
