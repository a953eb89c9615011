// Package render executes html/template files from the templates
// directory. A missing template file is reported distinctly from every
// other failure so the request pipeline can answer it with 404.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/ideamark/internal/errors"
)

// Renderer renders a named template with data.
type Renderer interface {
	Render(templatePath string, data any) ([]byte, error)
}

// TemplateRenderer loads templates from a directory and caches parsed
// templates until the file's modification time changes.
type TemplateRenderer struct {
	dir   string
	funcs template.FuncMap
	cache map[string]cachedTemplate
	mutex sync.RWMutex
}

type cachedTemplate struct {
	modTime  time.Time
	template *template.Template
}

// NewTemplateRenderer creates a renderer rooted at dir.
func NewTemplateRenderer(dir string, funcs template.FuncMap) *TemplateRenderer {
	return &TemplateRenderer{
		dir:   dir,
		funcs: funcs,
		cache: make(map[string]cachedTemplate),
	}
}

// Dir returns the templates directory.
func (r *TemplateRenderer) Dir() string {
	return r.dir
}

// Render implements Renderer.
func (r *TemplateRenderer) Render(templatePath string, data any) ([]byte, error) {
	path, err := r.resolve(templatePath)
	if err != nil {
		return nil, errors.NewTemplateMissing(templatePath, err)
	}

	tmpl, err := r.load(path)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, errors.NewRenderError(templatePath, err)
	}
	return buf.Bytes(), nil
}

func (r *TemplateRenderer) resolve(templatePath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(templatePath))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("template path escapes templates directory: %s", templatePath)
	}
	return filepath.Join(r.dir, clean), nil
}

func (r *TemplateRenderer) load(path string) (*template.Template, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewTemplateMissing(path, err)
		}
		return nil, errors.NewRenderError(path, err)
	}

	r.mutex.RLock()
	cached, ok := r.cache[path]
	r.mutex.RUnlock()
	if ok && cached.modTime.Equal(info.ModTime()) {
		return cached.template, nil
	}

	source, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewTemplateMissing(path, err)
		}
		return nil, errors.NewRenderError(path, err)
	}

	tmpl, err := template.New(filepath.Base(path)).Funcs(r.funcs).Parse(string(source))
	if err != nil {
		return nil, errors.NewRenderError(path, err)
	}

	r.mutex.Lock()
	r.cache[path] = cachedTemplate{modTime: info.ModTime(), template: tmpl}
	r.mutex.Unlock()

	return tmpl, nil
}
