package ingest

import (
	"io/fs"
	"iter"
	"path/filepath"
	"strings"
)

// Crawl lazily yields every regular file below root. Hidden files and
// directories are skipped. Walk errors are yielded with the offending
// path and the crawl continues with the next entry.
func Crawl(root string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if !yield(path, err) {
					return filepath.SkipAll
				}
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if path != root && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}

			abs, err := filepath.Abs(path)
			if err != nil {
				abs = path
			}
			if !yield(abs, nil) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}
