// Package checksum computes the content digests stored in the checksum
// table and exchanged with remote publishers.
package checksum

import (
	"encoding/hex"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// Sum returns the lowercase hex BLAKE3 digest of data.
func Sum(data []byte) string {
	digest := blake3.Sum256(data)
	return hex.EncodeToString(digest[:])
}

// Relative maps an absolute path onto the slash separated root relative
// form used on the wire. Paths outside root are returned unchanged.
func Relative(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || !filepath.IsLocal(rel) {
		return path
	}
	return filepath.ToSlash(rel)
}

// RelativeTable converts a checksum table keyed by absolute paths into its
// wire form.
func RelativeTable(root string, table map[string]string) map[string]string {
	out := make(map[string]string, len(table))
	for path, sum := range table {
		out[Relative(root, path)] = sum
	}
	return out
}
