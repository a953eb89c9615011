package checksum

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSumIsStable(t *testing.T) {
	a := Sum([]byte("# Hello"))
	b := Sum([]byte("# Hello"))
	c := Sum([]byte("# Hello!"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestRelative(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "site")

	assert.Equal(t, "content/en/a.md", Relative(root, filepath.Join(root, "content", "en", "a.md")))
	outside := filepath.Join(string(filepath.Separator), "etc", "settings.yaml")
	assert.Equal(t, outside, Relative(root, outside))

	table := RelativeTable(root, map[string]string{filepath.Join(root, "settings.yaml"): "abc"})
	assert.Equal(t, map[string]string{"settings.yaml": "abc"}, table)
}
