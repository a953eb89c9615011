package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePost = `---
title: Hello
author: Jane
description: A greeting
date: 2024-01-05
tags: [Go, web, go]
---
First paragraph with **bold**.

Second paragraph.
`

func TestParse(t *testing.T) {
	doc, err := New(Options{}).Parse([]byte(samplePost))
	require.NoError(t, err)

	assert.Equal(t, "Hello", doc.Meta.Title)
	assert.Equal(t, "Jane", doc.Meta.Author)
	assert.Equal(t, "A greeting", doc.Meta.Description)
	assert.Equal(t, time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC), doc.Meta.Date.Time)
	assert.Equal(t, []string{"go", "web"}, doc.Meta.Tags, "tags are lower-cased and deduplicated")
	assert.Contains(t, doc.Content, "<strong>bold</strong>")
	assert.Contains(t, doc.Content, "Second paragraph.")
	assert.Equal(t, "<p>First paragraph with <strong>bold</strong>.</p>", doc.Excerpt)
}

func TestParseMoreMarker(t *testing.T) {
	source := "---\ntitle: More\n---\nTeaser one.\n\nTeaser two.\n\n<!--more-->\n\nHidden.\n"

	doc, err := New(Options{}).Parse([]byte(source))
	require.NoError(t, err)

	assert.Contains(t, doc.Excerpt, "Teaser one.")
	assert.Contains(t, doc.Excerpt, "Teaser two.")
	assert.NotContains(t, doc.Excerpt, "Hidden.")
	assert.Contains(t, doc.Content, "Hidden.")
}

func TestParseCRLFAndBOM(t *testing.T) {
	source := "\xef\xbb\xbf---\r\ntitle: Windows\r\ntemplate: landing.html\r\n---\r\nBody\r\n"

	doc, err := New(Options{}).Parse([]byte(source))
	require.NoError(t, err)
	assert.Equal(t, "Windows", doc.Meta.Title)
	assert.Equal(t, "landing.html", doc.Meta.Template)
	assert.Equal(t, "<p>Body</p>", doc.Excerpt)
}

func TestParseFailures(t *testing.T) {
	testCases := []struct {
		name   string
		source string
	}{
		{"no front matter", "# Just markdown\n"},
		{"unterminated front matter", "---\ntitle: x\nbody\n"},
		{"invalid yaml", "---\ntitle: [unclosed\n---\nbody\n"},
		{"missing title", "---\nauthor: x\n---\nbody\n"},
		{"bad date", "---\ntitle: x\ndate: someday\n---\nbody\n"},
	}

	p := New(Options{})
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Parse([]byte(tc.source))
			assert.Error(t, err)
		})
	}
}

func TestParseSanitize(t *testing.T) {
	source := "---\ntitle: x\n---\nHi <script>alert(1)</script> there\n"

	raw, err := New(Options{}).Parse([]byte(source))
	require.NoError(t, err)
	assert.Contains(t, raw.Content, "<script>")

	clean, err := New(Options{Sanitize: true}).Parse([]byte(source))
	require.NoError(t, err)
	assert.NotContains(t, clean.Content, "<script>")
	assert.Contains(t, clean.Content, "Hi")
}

func TestDateLayouts(t *testing.T) {
	testCases := []struct {
		value string
		want  time.Time
	}{
		{"2024-03-01T10:30:00Z", time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)},
		{"2024-03-01 10:30", time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)},
		{"2024/03/01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"March 1, 2024", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tc := range testCases {
		t.Run(tc.value, func(t *testing.T) {
			doc, err := New(Options{}).Parse([]byte("---\ntitle: x\ndate: \"" + tc.value + "\"\n---\n"))
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(doc.Meta.Date.Time))
		})
	}
}

func TestFirstParagraph(t *testing.T) {
	assert.Equal(t, "<p>one</p>", FirstParagraph("<h1>t</h1><p>one</p><p>two</p>"))
	assert.Equal(t, "<p>nested</p>", FirstParagraph("<div><p>nested</p></div>"))
	assert.Equal(t, "", FirstParagraph("<h1>only heading</h1>"))
}

func TestSplitFrontMatter(t *testing.T) {
	header, body, err := SplitFrontMatter([]byte("---\na: 1\n---\nbody"))
	require.NoError(t, err)
	assert.Equal(t, "a: 1\n", string(header))
	assert.Equal(t, "body", string(body))

	header, body, err = SplitFrontMatter([]byte("---\n---"))
	require.NoError(t, err)
	assert.Empty(t, header)
	assert.Empty(t, body)
}
