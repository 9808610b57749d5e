package workspace

import (
	"io/fs"
	"path/filepath"
)

// Walk visits every file and directory under root except ignored
// directories and their contents. rel is slash-separated.
func Walk(root string, fn func(rel string, d fs.DirEntry) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if d.IsDir() && IsIgnoredDir(d.Name()) {
			return filepath.SkipDir
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel), d)
	})
}
