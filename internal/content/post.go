package content

import "time"

// Meta is the front matter derived metadata of a post.
type Meta struct {
	Title       string
	Author      string
	Description string
	// Template names a standalone template that replaces the shared layout.
	Template      string
	Date          time.Time
	FormattedDate string
	// Link is the canonical URL path of the post.
	Link string
	Tags []string
}

// Post is one language variant of a logical document. Posts are never
// modified after they are handed to the Store; updates replace them.
type Post struct {
	Slug     string
	Language string
	// Path is the absolute source file the post was ingested from.
	Path     string
	Meta     Meta
	Content  string
	Excerpt  string
	Checksum string
}

// Key identifies a post within the Store.
type Key struct {
	Slug     string
	Language string
}

// Key returns the (slug, language) identity of p.
func (p *Post) Key() Key {
	return Key{Slug: p.Slug, Language: p.Language}
}
