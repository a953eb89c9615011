package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer func() {
		versionFormat = "text"
		versionShort = false
	}()

	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}

	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "publish")
	assert.Contains(t, names, "version")
}

func TestFlagNamesAcceptUnderscores(t *testing.T) {
	flag := serveCmd.Flags().Lookup("live_reload")
	require.NotNil(t, flag)
	assert.Equal(t, "live-reload", flag.Name)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ideamark ")
	assert.Contains(t, out, "Go: ")

	out, err = execute(t, "version", "--format", "json")
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Contains(t, decoded, "version")
	assert.Contains(t, decoded, "is_release")

	_, err = execute(t, "version", "--format", "xml")
	assert.Error(t, err)
}

func TestPublishCommand(t *testing.T) {
	var mu sync.Mutex
	uploaded := map[string]string{}
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("password") != "pw" {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			fmt.Fprint(w, "{}")
		case http.MethodPut:
			uploaded[r.Header.Get("filename")] = r.Header.Get("Content-Type")
		}
	}))
	defer remote.Close()

	root := t.TempDir()
	post := filepath.Join(root, "content", "en", "a.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(post), 0o755))
	require.NoError(t, os.WriteFile(post, []byte("---\ntitle: A\n---\nbody\n"), 0o644))

	settings := filepath.Join(root, "settings.yaml")
	require.NoError(t, os.WriteFile(settings, []byte(fmt.Sprintf(
		"root: %q\nremote: %q\npassword: pw\ncontent_dirs: [content]\n", root, remote.URL)), 0o644))

	out, err := execute(t, "publish", "--config", settings)
	require.NoError(t, err)

	assert.Contains(t, out, "uploaded content/en/a.md")
	assert.Contains(t, out, "2 uploaded, 0 deleted, 0 unchanged")
	assert.Equal(t, "text/markdown", uploaded["content/en/a.md"])
	assert.Contains(t, uploaded, "settings.yaml")
}

func TestLoadSettingsRejectsMissingExplicitFile(t *testing.T) {
	_, err := execute(t, "publish", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
