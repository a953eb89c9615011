package server

import (
	"fmt"
	"html"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/ideamark/internal/cache"
	"github.com/conneroisu/ideamark/internal/content"
	"github.com/conneroisu/ideamark/internal/errors"
)

// contextStage fills the parts of the page shared by every view.
func (s *Server) contextStage(w http.ResponseWriter, req *Request) Result {
	lang := req.Language

	req.Page.Language = lang
	req.Page.Settings = s.settings
	req.Page.Strings = s.settings.LangStrings(lang)
	req.Page.LiveReload = s.settings.LiveReload && s.hub != nil
	req.Page.Menus = rawHTML(s.menusHTML(lang))
	req.Page.Tags = rawHTML(s.tagsHTML(lang))

	return next()
}

// menusHTML renders every configured menu. Menu entries without a post
// in lang are left out, and so are menus left empty by that.
func (s *Server) menusHTML(lang string) string {
	var b strings.Builder
	for _, menu := range s.settings.SiteMenus {
		var items strings.Builder
		for _, slug := range s.store.Menu(menu) {
			post, ok := s.store.Post(slug, lang)
			if !ok {
				continue
			}
			fmt.Fprintf(&items, "<li><a href='%s'>%s</a></li>",
				html.EscapeString(post.Meta.Link), html.EscapeString(post.Meta.Title))
		}
		if items.Len() == 0 {
			continue
		}
		b.WriteString("<h3>")
		b.WriteString(html.EscapeString(s.settings.String(lang, menu)))
		b.WriteString("</h3><ul class='unstyled'>")
		b.WriteString(items.String())
		b.WriteString("</ul>")
	}
	return b.String()
}

// tagsHTML renders the tag cloud.
func (s *Server) tagsHTML(lang string) string {
	caser := cases.Title(language.Make(lang))

	var b strings.Builder
	b.WriteString("<h3>")
	b.WriteString(html.EscapeString(s.settings.String(lang, "tags")))
	b.WriteString("</h3><ul class='unstyled'>")
	for _, tag := range s.store.Tags() {
		fmt.Fprintf(&b, "<li><a href='/%s%s/%s'>%s</a></li>",
			lang, s.settings.TagsURL, html.EscapeString(tag), html.EscapeString(caser.String(tag)))
	}
	b.WriteString("</ul>")
	return b.String()
}

// postStage resolves <posts_url>/<slug>. A post with its own template is
// rendered standalone and answered right away.
func (s *Server) postStage(w http.ResponseWriter, req *Request) Result {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return next()
	}
	slug, ok := strings.CutPrefix(req.Path, s.settings.PostsURL+"/")
	if !ok {
		return next()
	}
	if slug == "" || strings.Contains(slug, "/") {
		return notFound(fmt.Sprintf("no post route for %s", req.Path))
	}

	post, ok := s.store.Post(slug, req.Language)
	if !ok {
		return fail(errors.NotFound(errors.CodePostNotFound,
			fmt.Sprintf("post %s has no %s version", slug, req.Language)))
	}

	page := &req.Page
	page.SetContent(fmt.Sprintf("<span class='label date'>%s</span><h1>%s</h1>",
		html.EscapeString(post.Meta.FormattedDate), html.EscapeString(post.Meta.Title)) + post.Content)
	page.Title = post.Meta.Title
	page.Author = post.Meta.Author
	if page.Author == "" {
		page.Author = s.settings.String(req.Language, "author")
	}
	page.Description = post.Meta.Description
	page.Languages = rawHTML(s.translationsHTML(post))

	if post.Meta.Template == "" {
		return next()
	}

	body, err := s.renderer.Render(post.Meta.Template, page)
	if err != nil {
		return fail(err)
	}
	writeHTML(w, req, http.StatusOK, body)
	return handled()
}

// translationsHTML links the other languages post is available in.
func (s *Server) translationsHTML(post *content.Post) string {
	var b strings.Builder
	b.WriteString("<ul class='unstyled'>")
	for _, lang := range s.store.Languages(post.Slug) {
		if lang == post.Language {
			continue
		}
		fmt.Fprintf(&b, "<li><a href='/%s%s/%s' class='lang %s'>%s</a></li>",
			lang, s.settings.PostsURL, html.EscapeString(post.Slug), lang,
			html.EscapeString(s.settings.LangInfo[lang]))
	}
	b.WriteString("</ul>")
	return b.String()
}

// listStage renders the homepage and the tag pages. Unknown tags fall
// through and end as not found.
func (s *Server) listStage(w http.ResponseWriter, req *Request) Result {
	if req.Page.Populated() {
		return next()
	}
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return next()
	}

	var tag string
	if req.Path != "/" {
		t, ok := strings.CutPrefix(req.Path, s.settings.TagsURL+"/")
		if !ok || t == "" || strings.Contains(t, "/") {
			return next()
		}
		tag = strings.ToLower(t)
		if !s.store.HasTag(tag) {
			return next()
		}
	}

	lang := req.Language
	page := &req.Page
	page.SetContent(s.listHTML(lang, tag))
	page.Title = s.settings.String(lang, "homepage")
	page.Author = s.settings.String(lang, "author")
	page.Description = s.settings.String(lang, "description")
	page.Languages = rawHTML(s.languagesHTML())

	return next()
}

// listHTML walks the order front to back and renders at most
// Settings.MaxHomepage excerpts of posts available in lang. An empty tag
// selects every post.
func (s *Server) listHTML(lang, tag string) string {
	var b strings.Builder
	count := 0
	for _, slug := range s.store.Order() {
		if count >= s.settings.MaxHomepage {
			break
		}
		if tag != "" && !s.store.Tagged(tag, slug) {
			continue
		}
		post, ok := s.store.Post(slug, lang)
		if !ok {
			continue
		}

		link := html.EscapeString(post.Meta.Link)
		fmt.Fprintf(&b, `<div class="chapter-options clearfix"><span class="label date">%s</span></div>`,
			html.EscapeString(post.Meta.FormattedDate))
		fmt.Fprintf(&b, `<h2><a href="%s">%s</a></h2>`, link, html.EscapeString(post.Meta.Title))
		fmt.Fprintf(&b, `<div class="chapter-excerpt">%s</div>`, post.Excerpt)
		fmt.Fprintf(&b, `<div class="chapter-footer"><a href="%s">%s &raquo;</a></div>`,
			link, html.EscapeString(s.settings.String(lang, "entire_post")))
		count++
	}

	if count == 0 {
		return "<h2>" + html.EscapeString(s.settings.String(lang, "empty_list")) + "</h2>"
	}
	return b.String()
}

// languagesHTML links the homepage of every served language.
func (s *Server) languagesHTML() string {
	var b strings.Builder
	b.WriteString("<ul class='unstyled'>")
	for _, lang := range s.settings.Languages {
		fmt.Fprintf(&b, "<li><a href='/%s' class='lang %s'>%s</a></li>",
			lang, lang, html.EscapeString(s.settings.LangInfo[lang]))
	}
	b.WriteString("</ul>")
	return b.String()
}

// masterStage renders the page through the shared layout and stores GET
// responses in the response cache.
func (s *Server) masterStage(w http.ResponseWriter, req *Request) Result {
	if !req.Page.Populated() {
		return notFound(fmt.Sprintf("nothing to render for %s", req.URL.Path))
	}

	body, err := s.renderer.Render(MasterTemplate, &req.Page)
	if err != nil {
		return fail(err)
	}

	writeHTML(w, req, http.StatusOK, body)

	if req.Method == http.MethodGet {
		s.cache.Set(req.OriginalURL, &cache.Response{
			Header: htmlHeader(len(body)),
			Body:   body,
		}, req.Generation)
	}
	return handled()
}

// errorStage answers every failure with the localized error page, or a
// plaintext 500 when the page itself cannot be rendered.
func (s *Server) errorStage(w http.ResponseWriter, req *Request, err error) {
	s.errors.Handle(req.Context(), err)

	status := errors.StatusCode(err)
	lang := req.Language
	if lang == "" {
		lang = s.settings.DefaultLanguage()
	}

	title := http.StatusText(status)
	switch status {
	case http.StatusNotFound:
		title = localized(s.settings.String(lang, "not_found"), title)
	case http.StatusInternalServerError:
		title = localized(s.settings.String(lang, "internal_error"), title)
	}

	body, renderErr := s.renderer.Render(ErrorTemplate, &ErrorPage{
		Language: lang,
		Strings:  s.settings.LangStrings(lang),
		Content:  status,
		Title:    title,
	})
	if renderErr != nil {
		s.logger.Error(req.Context(), renderErr, "Error page could not be rendered", "status", status)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("500 Internal Server Error"))
		return
	}

	writeHTML(w, req, status, body)
}

// ErrorPage is the data handed to the error template.
type ErrorPage struct {
	Language string
	Strings  map[string]string
	// Content is the HTTP status code.
	Content int
	Title   string
}

func rawHTML(s string) template.HTML {
	return template.HTML(s)
}

func localized(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func htmlHeader(length int) http.Header {
	return http.Header{
		"Content-Type":   {"text/html; charset=utf-8"},
		"Content-Length": {strconv.Itoa(length)},
	}
}

func writeHTML(w http.ResponseWriter, req *Request, status int, body []byte) {
	header := w.Header()
	for key, values := range htmlHeader(len(body)) {
		header[key] = values
	}
	w.WriteHeader(status)
	if req.Method != http.MethodHead {
		_, _ = w.Write(body)
	}
}
