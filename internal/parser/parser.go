// Package parser turns a content file into front matter metadata plus
// rendered HTML body and excerpt.
//
// A content file starts with a YAML front matter block delimited by "---"
// lines, followed by markdown:
//
//	---
//	title: Hello
//	date: 2024-01-05
//	tags: [go, web]
//	---
//	Intro paragraph.
//
//	<!--more-->
//
//	Rest of the post.
//
// The excerpt is the markdown before the <!--more--> marker when present,
// otherwise the first paragraph of the rendered body.
package parser

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmparser "github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"gopkg.in/yaml.v3"
)

// MoreMarker separates the excerpt from the rest of a post.
const MoreMarker = "<!--more-->"

var frontMatterDelimiter = []byte("---")

// Parser converts raw file bytes into a Document.
type Parser interface {
	Parse(data []byte) (*Document, error)
}

// Document is the parsed form of a content file.
type Document struct {
	Meta    FrontMatter
	Content string
	Excerpt string
}

// FrontMatter holds the recognised front matter keys.
type FrontMatter struct {
	Title       string   `yaml:"title"`
	Author      string   `yaml:"author"`
	Description string   `yaml:"description"`
	Template    string   `yaml:"template"`
	Date        Date     `yaml:"date"`
	Tags        []string `yaml:"tags"`
	Lang        string   `yaml:"lang"`
}

// Date accepts the date spellings found in front matter.
type Date struct {
	time.Time
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Date) UnmarshalYAML(value *yaml.Node) error {
	raw := strings.TrimSpace(value.Value)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("unrecognised date %q", raw)
}

// Options configures a MarkdownParser.
type Options struct {
	// Sanitize runs rendered HTML through a user generated content policy.
	Sanitize bool
}

// MarkdownParser parses YAML front matter and GitHub flavoured markdown.
type MarkdownParser struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

// getMarkdown returns the shared goldmark instance. Its configuration never
// changes and Convert keeps per-call state, so it is safe to share.
func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(
				gmparser.WithAutoHeadingID(),
			),
			goldmark.WithRendererOptions(
				gmhtml.WithUnsafe(),
			),
		)
	})
	return markdownInstance
}

// New creates a MarkdownParser.
func New(opts Options) *MarkdownParser {
	p := &MarkdownParser{md: getMarkdown()}
	if opts.Sanitize {
		p.policy = bluemonday.UGCPolicy()
	}
	return p
}

// Parse implements Parser.
func (p *MarkdownParser) Parse(data []byte) (*Document, error) {
	header, body, err := SplitFrontMatter(data)
	if err != nil {
		return nil, err
	}

	var meta FrontMatter
	if err := yaml.Unmarshal(header, &meta); err != nil {
		return nil, fmt.Errorf("decoding front matter: %w", err)
	}
	if strings.TrimSpace(meta.Title) == "" {
		return nil, fmt.Errorf("front matter has no title")
	}
	meta.Tags = cleanTags(meta.Tags)

	content, err := p.render(body)
	if err != nil {
		return nil, err
	}

	var excerpt string
	if idx := bytes.Index(body, []byte(MoreMarker)); idx >= 0 {
		excerpt, err = p.render(body[:idx])
		if err != nil {
			return nil, err
		}
	} else {
		excerpt = FirstParagraph(content)
	}

	return &Document{Meta: meta, Content: content, Excerpt: excerpt}, nil
}

func (p *MarkdownParser) render(source []byte) (string, error) {
	var buf bytes.Buffer
	if err := p.md.Convert(source, &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	if p.policy != nil {
		return p.policy.Sanitize(buf.String()), nil
	}
	return buf.String(), nil
}

// SplitFrontMatter separates the front matter block from the markdown body.
func SplitFrontMatter(data []byte) (header, body []byte, err error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))

	first, rest, found := bytes.Cut(data, []byte("\n"))
	if !found || !bytes.Equal(bytes.TrimSpace(first), frontMatterDelimiter) {
		return nil, nil, fmt.Errorf("missing front matter")
	}

	offset := 0
	for offset <= len(rest) {
		line, _, _ := bytes.Cut(rest[offset:], []byte("\n"))
		if bytes.Equal(bytes.TrimSpace(line), frontMatterDelimiter) {
			header = rest[:offset]
			end := offset + len(line)
			if end < len(rest) {
				end++
			}
			return header, rest[end:], nil
		}
		offset += len(line) + 1
	}

	return nil, nil, fmt.Errorf("unterminated front matter")
}

func cleanTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		cleaned = append(cleaned, tag)
	}
	return cleaned
}

// FirstParagraph returns the outer HTML of the first <p> element in
// fragment, or "" when there is none.
func FirstParagraph(fragment string) string {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return ""
	}

	for _, n := range nodes {
		if p := findParagraph(n); p != nil {
			var buf bytes.Buffer
			if err := html.Render(&buf, p); err != nil {
				return ""
			}
			return buf.String()
		}
	}
	return ""
}

func findParagraph(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.P {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if p := findParagraph(c); p != nil {
			return p
		}
	}
	return nil
}
