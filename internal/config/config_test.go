package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSettings = `
root: /srv/blog
port: 9000
content_dirs: [posts, pages]
languages: [en, de]
langinfo:
  en: English
  de: Deutsch
strings:
  en:
    author: The Team
    empty_list: Nothing here yet
sitemenus: [projects]
menus:
  projects: [alpha, beta]
posts_url: posts/
admin_url: /admin
password: s3cret
maxhomepage: 5
watch_files: true
use_caching: true
watch_debounce: 250ms
`

func loadFromString(t *testing.T, content string) (*Settings, error) {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(content)))
	return Load(v)
}

func TestLoad(t *testing.T) {
	s, err := loadFromString(t, sampleSettings)
	require.NoError(t, err)

	assert.Equal(t, "/srv/blog", s.Root)
	assert.Equal(t, 9000, s.Port)
	assert.Equal(t, []string{"en", "de"}, s.Languages)
	assert.Equal(t, "en", s.DefaultLanguage())
	assert.Equal(t, "Deutsch", s.LangInfo["de"])
	assert.Equal(t, "/posts", s.PostsURL, "prefix is normalised to a leading slash without trailing slash")
	assert.Equal(t, "/tags", s.TagsURL)
	assert.Equal(t, 5, s.MaxHomepage)
	assert.Equal(t, []string{"alpha", "beta"}, s.Menus["projects"])
	assert.Equal(t, 250*time.Millisecond, s.WatchDebounce)
	assert.Equal(t, []string{"/srv/blog/posts", "/srv/blog/pages"}, s.ContentPaths())
}

func TestLoadWatchDisablesCaching(t *testing.T) {
	s, err := loadFromString(t, sampleSettings)
	require.NoError(t, err)

	assert.True(t, s.WatchFiles)
	assert.False(t, s.UseCaching)
}

func TestLoadDefaults(t *testing.T) {
	s, err := loadFromString(t, "password: x\n")
	require.NoError(t, err)

	assert.Equal(t, []string{"en"}, s.Languages)
	assert.Equal(t, "/posts", s.PostsURL)
	assert.Equal(t, "/admin", s.AdminURL)
	assert.Equal(t, 10, s.MaxHomepage)
	assert.Equal(t, 8, s.MaxConcurrency)
	assert.True(t, s.UseCaching)
	assert.Equal(t, "en", s.LangInfo["en"], "missing language names fall back to the code")
	assert.True(t, filepath.IsAbs(s.Root))
}

func TestLoadRejectsInvalid(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{"port out of range", "password: x\nport: 70000\n"},
		{"admin without password", "admin_url: /admin\n"},
		{"duplicate language", "password: x\nlanguages: [en, en]\n"},
		{"same prefixes", "password: x\nposts_url: /p\ntags_url: /p\n"},
		{"traversal in content dir", "password: x\ncontent_dirs: [../outside]\n"},
		{"zero homepage", "password: x\nmaxhomepage: 0\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadFromString(t, tc.content)
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFileRecordsPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("password: x\n"), 0o644))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	s, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, path, s.File)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("IDEAMARK_PORT", "9999")

	v := viper.New()
	v.SetEnvPrefix("IDEAMARK")
	v.AutomaticEnv()
	v.Set("password", "x")

	s, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 9999, s.Port)
}

func TestHelpers(t *testing.T) {
	s, err := loadFromString(t, sampleSettings)
	require.NoError(t, err)

	assert.True(t, s.HasLanguage("de"))
	assert.False(t, s.HasLanguage("fr"))
	assert.Equal(t, "The Team", s.String("en", "author"))
	assert.Equal(t, "", s.String("de", "author"))
	assert.Empty(t, s.LangStrings("fr"))
	assert.Equal(t, "/srv/blog/x.md", s.ResolvePath("x.md"))
	assert.Equal(t, "/abs/x.md", s.ResolvePath("/abs/x.md"))
	assert.Equal(t, "localhost:9000", s.Addr())
}
