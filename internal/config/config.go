// Package config provides the ideamark settings, loaded once at startup
// through Viper from a settings file, IDEAMARK_ environment variables and
// command-line flags, and treated as read-only afterwards.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings is the complete site configuration.
type Settings struct {
	// Root is the directory content paths and uploads are resolved against.
	Root string `mapstructure:"root"`
	// File is the settings file that was loaded, if any.
	File string `mapstructure:"-"`

	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	Server string `mapstructure:"server"`

	ContentDirs []string `mapstructure:"content_dirs"`
	// Languages lists the served languages; the first one is the default.
	Languages []string                     `mapstructure:"languages"`
	LangInfo  map[string]string            `mapstructure:"langinfo"`
	Strings   map[string]map[string]string `mapstructure:"strings"`
	SiteMenus []string                     `mapstructure:"sitemenus"`
	Menus     map[string][]string          `mapstructure:"menus"`

	PostsURL string `mapstructure:"posts_url"`
	TagsURL  string `mapstructure:"tags_url"`
	AdminURL string `mapstructure:"admin_url"`
	Password string `mapstructure:"password"`

	MaxHomepage int    `mapstructure:"maxhomepage"`
	DateFormat  string `mapstructure:"date_format"`

	WatchFiles     bool          `mapstructure:"watch_files"`
	WatchRecursive bool          `mapstructure:"watch_recursive"`
	WatchCreates   bool          `mapstructure:"watch_creates"`
	WatchDebounce  time.Duration `mapstructure:"watch_debounce"`
	UseCaching     bool          `mapstructure:"use_caching"`

	StaticDir    string `mapstructure:"static_dir"`
	TemplatesDir string `mapstructure:"templates_dir"`
	ErrorLog     string `mapstructure:"error_log"`

	MaxConcurrency int   `mapstructure:"max_concurrency"`
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
	CacheMaxBytes  int64 `mapstructure:"cache_max_bytes"`
	SanitizeHTML   bool  `mapstructure:"sanitize_html"`
	LiveReload     bool  `mapstructure:"live_reload"`

	// Remote is the base URL of the server the publish command pushes to.
	Remote string `mapstructure:"remote"`
}

// SetDefaults registers every default on v so that IsSet and the
// environment overrides behave consistently.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("root", ".")
	v.SetDefault("host", "localhost")
	v.SetDefault("port", 8080)
	v.SetDefault("content_dirs", []string{"content"})
	v.SetDefault("languages", []string{"en"})
	v.SetDefault("posts_url", "/posts")
	v.SetDefault("tags_url", "/tags")
	v.SetDefault("admin_url", "/admin")
	v.SetDefault("maxhomepage", 10)
	v.SetDefault("date_format", "January 2, 2006")
	v.SetDefault("watch_files", false)
	v.SetDefault("watch_recursive", false)
	v.SetDefault("watch_creates", false)
	v.SetDefault("watch_debounce", 100*time.Millisecond)
	v.SetDefault("use_caching", true)
	v.SetDefault("static_dir", "static")
	v.SetDefault("templates_dir", "templates")
	v.SetDefault("max_concurrency", 8)
	v.SetDefault("max_upload_bytes", int64(10<<20))
	v.SetDefault("cache_max_bytes", int64(64<<20))
	v.SetDefault("sanitize_html", false)
	v.SetDefault("live_reload", false)
}

// Load decodes the settings held by v, applies derived values and
// validates the result.
func Load(v *viper.Viper) (*Settings, error) {
	SetDefaults(v)

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}
	s.File = v.ConfigFileUsed()

	// Viper hands back comma separated env values as a single element.
	if v.IsSet("languages") && len(s.Languages) == 1 && strings.Contains(s.Languages[0], ",") {
		s.Languages = v.GetStringSlice("languages")
	}
	if v.IsSet("content_dirs") && len(s.ContentDirs) == 1 && strings.Contains(s.ContentDirs[0], ",") {
		s.ContentDirs = v.GetStringSlice("content_dirs")
	}

	if err := s.normalize(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &s, nil
}

func (s *Settings) normalize() error {
	root, err := filepath.Abs(s.Root)
	if err != nil {
		return fmt.Errorf("resolving root %q: %w", s.Root, err)
	}
	s.Root = root

	// Change events re-parse on every write, so cached posts would only
	// hide edits.
	if s.WatchFiles {
		s.UseCaching = false
	}

	s.PostsURL = trimPrefix(s.PostsURL)
	s.TagsURL = trimPrefix(s.TagsURL)
	s.AdminURL = trimPrefix(s.AdminURL)

	if s.LangInfo == nil {
		s.LangInfo = make(map[string]string)
	}
	for _, lang := range s.Languages {
		if _, ok := s.LangInfo[lang]; !ok {
			s.LangInfo[lang] = lang
		}
	}
	if s.Strings == nil {
		s.Strings = make(map[string]map[string]string)
	}
	if s.Menus == nil {
		s.Menus = make(map[string][]string)
	}

	return nil
}

func trimPrefix(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return p
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/")
}

// Validate checks the settings for values the server cannot run with.
func (s *Settings) Validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", s.Port)
	}
	if len(s.Languages) == 0 {
		return fmt.Errorf("at least one language must be configured")
	}
	seen := make(map[string]bool, len(s.Languages))
	for _, lang := range s.Languages {
		if lang == "" || strings.ContainsAny(lang, "/ ") {
			return fmt.Errorf("invalid language code %q", lang)
		}
		if seen[lang] {
			return fmt.Errorf("duplicate language %q", lang)
		}
		seen[lang] = true
	}
	for name, prefix := range map[string]string{"posts_url": s.PostsURL, "tags_url": s.TagsURL} {
		if prefix == "" {
			return fmt.Errorf("%s cannot be empty", name)
		}
	}
	if s.PostsURL == s.TagsURL {
		return fmt.Errorf("posts_url and tags_url must differ")
	}
	if s.AdminURL != "" && s.Password == "" {
		return fmt.Errorf("admin_url %s requires a password", s.AdminURL)
	}
	for _, dir := range s.ContentDirs {
		if strings.Contains(filepath.Clean(dir), "..") {
			return fmt.Errorf("content dir contains path traversal: %s", dir)
		}
	}
	if s.MaxHomepage <= 0 {
		return fmt.Errorf("maxhomepage must be positive, got %d", s.MaxHomepage)
	}
	if s.MaxConcurrency <= 0 {
		return fmt.Errorf("max_concurrency must be positive, got %d", s.MaxConcurrency)
	}

	return nil
}

// DefaultLanguage returns the language unprefixed requests are sent to.
func (s *Settings) DefaultLanguage() string {
	return s.Languages[0]
}

// HasLanguage reports whether lang is one of the served languages.
func (s *Settings) HasLanguage(lang string) bool {
	for _, l := range s.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// String returns the localized UI string key for lang, or "" when absent.
func (s *Settings) String(lang, key string) string {
	return s.Strings[lang][key]
}

// LangStrings returns the full UI string table for lang.
func (s *Settings) LangStrings(lang string) map[string]string {
	if strs, ok := s.Strings[lang]; ok {
		return strs
	}
	return map[string]string{}
}

// ContentPaths resolves ContentDirs against Root.
func (s *Settings) ContentPaths() []string {
	paths := make([]string, 0, len(s.ContentDirs))
	for _, dir := range s.ContentDirs {
		if filepath.IsAbs(dir) {
			paths = append(paths, filepath.Clean(dir))
			continue
		}
		paths = append(paths, filepath.Join(s.Root, dir))
	}
	return paths
}

// ResolvePath resolves a path relative to Root.
func (s *Settings) ResolvePath(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(s.Root, p)
}

// Addr returns the listen address.
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
