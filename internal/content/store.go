// Package content holds the in-memory index of everything ingested from
// the content directories: posts per slug and language, the display
// order, the tag and menu indexes, and the checksum table.
package content

import (
	"sort"
	"sync"
	"time"
)

// Store is the process-wide content index. Posts are replaced as whole
// objects so a reader holding a *Post never observes a partial update.
type Store struct {
	posts     map[string]map[string]*Post
	order     []string
	tags      map[string]map[string]struct{}
	menus     map[string][]string
	paths     map[string]Key
	checksums map[string]string
	mutex     sync.RWMutex

	listeners      []func(Event)
	listenersMutex sync.RWMutex
}

// Event describes a mutation of the Store.
type Event struct {
	Type      EventType
	Slug      string
	Language  string
	Path      string
	Timestamp time.Time
}

// EventType represents the type of store mutation
type EventType int

const (
	EventPostUpserted EventType = iota
	EventPostRemoved
	EventChecksumRecorded
	EventChecksumRemoved
	EventMenusReplaced
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventPostUpserted:
		return "post_upserted"
	case EventPostRemoved:
		return "post_removed"
	case EventChecksumRecorded:
		return "checksum_recorded"
	case EventChecksumRemoved:
		return "checksum_removed"
	case EventMenusReplaced:
		return "menus_replaced"
	default:
		return "unknown"
	}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		posts:     make(map[string]map[string]*Post),
		order:     make([]string, 0),
		tags:      make(map[string]map[string]struct{}),
		menus:     make(map[string][]string),
		paths:     make(map[string]Key),
		checksums: make(map[string]string),
	}
}

// OnChange registers fn to be called synchronously after every mutation.
// Listeners run outside the store lock and must not block for long.
func (s *Store) OnChange(fn func(Event)) {
	s.listenersMutex.Lock()
	defer s.listenersMutex.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) notify(event Event) {
	event.Timestamp = time.Now()

	s.listenersMutex.RLock()
	listeners := s.listeners
	s.listenersMutex.RUnlock()

	for _, fn := range listeners {
		fn(event)
	}
}

// UpsertPost replaces any existing entry for (post.Slug, post.Language).
// The slug is inserted into the display order only when absent, and its
// tag membership is recomputed from all of its translations.
func (s *Store) UpsertPost(post *Post) {
	s.mutex.Lock()

	if post.Path != "" {
		if prev, ok := s.paths[post.Path]; ok && prev != post.Key() {
			s.removeLocked(prev.Slug, prev.Language)
		}
	}

	translations, exists := s.posts[post.Slug]
	if !exists {
		translations = make(map[string]*Post)
		s.posts[post.Slug] = translations
	}
	if old, ok := translations[post.Language]; ok && old.Path != "" && old.Path != post.Path {
		delete(s.paths, old.Path)
	}
	translations[post.Language] = post
	if post.Path != "" {
		s.paths[post.Path] = post.Key()
	}

	if !s.inOrderLocked(post.Slug) {
		s.insertOrderLocked(post.Slug)
	}
	s.reindexTagsLocked(post.Slug)

	s.mutex.Unlock()

	s.notify(Event{Type: EventPostUpserted, Slug: post.Slug, Language: post.Language, Path: post.Path})
}

// RemovePost deletes the (slug, lang) entry. When no language remains for
// slug, the slug leaves the display order and every tag set.
func (s *Store) RemovePost(slug, lang string) bool {
	s.mutex.Lock()
	post := s.removeLocked(slug, lang)
	s.mutex.Unlock()

	if post == nil {
		return false
	}
	s.notify(Event{Type: EventPostRemoved, Slug: slug, Language: lang, Path: post.Path})
	return true
}

// RemovePath deletes the post ingested from path, if any.
func (s *Store) RemovePath(path string) (*Post, bool) {
	s.mutex.Lock()
	key, ok := s.paths[path]
	var post *Post
	if ok {
		post = s.removeLocked(key.Slug, key.Language)
	}
	s.mutex.Unlock()

	if post == nil {
		return nil, false
	}
	s.notify(Event{Type: EventPostRemoved, Slug: post.Slug, Language: post.Language, Path: path})
	return post, true
}

func (s *Store) removeLocked(slug, lang string) *Post {
	translations, ok := s.posts[slug]
	if !ok {
		return nil
	}
	post, ok := translations[lang]
	if !ok {
		return nil
	}

	delete(translations, lang)
	if post.Path != "" && s.paths[post.Path] == post.Key() {
		delete(s.paths, post.Path)
	}

	if len(translations) == 0 {
		delete(s.posts, slug)
		s.removeOrderLocked(slug)
	}
	s.reindexTagsLocked(slug)

	return post
}

func (s *Store) inOrderLocked(slug string) bool {
	for _, existing := range s.order {
		if existing == slug {
			return true
		}
	}
	return false
}

// insertOrderLocked keeps the order most-recent-first by placing slug in
// front of the first slug with an older date.
func (s *Store) insertOrderLocked(slug string) {
	date := s.slugDateLocked(slug)

	pos := len(s.order)
	for i, existing := range s.order {
		if s.slugDateLocked(existing).Before(date) {
			pos = i
			break
		}
	}

	order := make([]string, 0, len(s.order)+1)
	order = append(order, s.order[:pos]...)
	order = append(order, slug)
	order = append(order, s.order[pos:]...)
	s.order = order
}

func (s *Store) removeOrderLocked(slug string) {
	order := make([]string, 0, len(s.order))
	for _, existing := range s.order {
		if existing != slug {
			order = append(order, existing)
		}
	}
	s.order = order
}

// slugDateLocked is the newest date across the translations of slug.
func (s *Store) slugDateLocked(slug string) time.Time {
	var newest time.Time
	for _, post := range s.posts[slug] {
		if post.Meta.Date.After(newest) {
			newest = post.Meta.Date
		}
	}
	return newest
}

func (s *Store) reindexTagsLocked(slug string) {
	wanted := make(map[string]struct{})
	for _, post := range s.posts[slug] {
		for _, tag := range post.Meta.Tags {
			wanted[tag] = struct{}{}
		}
	}

	for tag, slugs := range s.tags {
		if _, keep := wanted[tag]; keep {
			continue
		}
		delete(slugs, slug)
		if len(slugs) == 0 {
			delete(s.tags, tag)
		}
	}

	for tag := range wanted {
		slugs, ok := s.tags[tag]
		if !ok {
			slugs = make(map[string]struct{})
			s.tags[tag] = slugs
		}
		slugs[slug] = struct{}{}
	}
}

// Post looks up the (slug, lang) variant.
func (s *Store) Post(slug, lang string) (*Post, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	post, ok := s.posts[slug][lang]
	return post, ok
}

// PostByPath returns the post ingested from path.
func (s *Store) PostByPath(path string) (*Post, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	key, ok := s.paths[path]
	if !ok {
		return nil, false
	}
	post, ok := s.posts[key.Slug][key.Language]
	return post, ok
}

// Languages returns the sorted languages slug is available in.
func (s *Store) Languages(slug string) []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	langs := make([]string, 0, len(s.posts[slug]))
	for lang := range s.posts[slug] {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// Order returns a copy of the display order.
func (s *Store) Order() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	order := make([]string, len(s.order))
	copy(order, s.order)
	return order
}

// Tags returns the sorted names of every known tag.
func (s *Store) Tags() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	names := make([]string, 0, len(s.tags))
	for tag := range s.tags {
		names = append(names, tag)
	}
	sort.Strings(names)
	return names
}

// HasTag reports whether tag has at least one member.
func (s *Store) HasTag(tag string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	_, ok := s.tags[tag]
	return ok
}

// Tagged reports whether slug is a member of tag.
func (s *Store) Tagged(tag, slug string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	_, ok := s.tags[tag][slug]
	return ok
}

// TagSlugs returns the sorted members of tag.
func (s *Store) TagSlugs(tag string) []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	slugs := make([]string, 0, len(s.tags[tag]))
	for slug := range s.tags[tag] {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

// SetMenus replaces the menu index.
func (s *Store) SetMenus(menus map[string][]string) {
	replacement := make(map[string][]string, len(menus))
	for name, slugs := range menus {
		replacement[name] = append([]string(nil), slugs...)
	}

	s.mutex.Lock()
	s.menus = replacement
	s.mutex.Unlock()

	s.notify(Event{Type: EventMenusReplaced})
}

// Menu returns the configured slugs of a menu. Slugs are resolved against
// the posts by the caller.
func (s *Store) Menu(name string) []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return append([]string(nil), s.menus[name]...)
}

// Count returns the number of slugs with at least one post.
func (s *Store) Count() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.posts)
}

// RecordChecksum upserts the checksum of path, independent of whether a
// post was ingested from it.
func (s *Store) RecordChecksum(path, hash string) {
	s.mutex.Lock()
	s.checksums[path] = hash
	s.mutex.Unlock()

	s.notify(Event{Type: EventChecksumRecorded, Path: path})
}

// RemoveChecksum forgets the checksum of path.
func (s *Store) RemoveChecksum(path string) bool {
	s.mutex.Lock()
	_, ok := s.checksums[path]
	delete(s.checksums, path)
	s.mutex.Unlock()

	if ok {
		s.notify(Event{Type: EventChecksumRemoved, Path: path})
	}
	return ok
}

// Checksum returns the recorded checksum of path.
func (s *Store) Checksum(path string) (string, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	hash, ok := s.checksums[path]
	return hash, ok
}

// SnapshotChecksums returns a copy of the checksum table.
func (s *Store) SnapshotChecksums() map[string]string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	snapshot := make(map[string]string, len(s.checksums))
	for path, hash := range s.checksums {
		snapshot[path] = hash
	}
	return snapshot
}
