package cleaner

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"sloth/internal/logger"
	"sloth/internal/workspace"
)

// DefaultTag marks debug lines the model is asked to add while chasing a
// bug, so they can be removed in one sweep afterwards.
const DefaultTag = "[SLOTHLOG]"

type Options struct {
	Tag    string
	Backup bool
}

type FileReport struct {
	Path    string
	Removed int
}

type Report struct {
	Processed int
	Changed   int
	Removed   int
	Files     []FileReport
}

// Clean removes every line containing the tag from the text files under
// root. Ignored directories such as .git and node_modules are skipped.
func Clean(root string, opts Options) (Report, error) {
	if opts.Tag == "" {
		opts.Tag = DefaultTag
	}
	var rep Report
	err := workspace.Walk(root, func(rel string, d fs.DirEntry) error {
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rep.Processed++
		path := filepath.Join(root, filepath.FromSlash(rel))
		removed, err := CleanFile(path, opts.Tag, opts.Backup)
		if err != nil {
			logger.Log.Warn("clean file", "path", rel, "err", err)
			return nil
		}
		if removed > 0 {
			rep.Changed++
			rep.Removed += removed
			rep.Files = append(rep.Files, FileReport{Path: rel, Removed: removed})
		}
		return nil
	})
	if err != nil {
		return rep, fmt.Errorf("clean %s: %w", root, err)
	}
	return rep, nil
}

// CleanFile drops tagged lines from one file and returns how many went.
// Binary files and files without the tag are left untouched.
func CleanFile(path, tag string, backup bool) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if !isText(data) || !bytes.Contains(data, []byte(tag)) {
		return 0, nil
	}

	lines := strings.SplitAfter(string(data), "\n")
	kept := lines[:0:0]
	for _, ln := range lines {
		if !strings.Contains(ln, tag) {
			kept = append(kept, ln)
		}
	}
	removed := len(lines) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if backup {
		if err := os.WriteFile(path+".bak", data, info.Mode().Perm()); err != nil {
			return 0, fmt.Errorf("write backup: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(strings.Join(kept, "")), info.Mode().Perm()); err != nil {
		return 0, err
	}
	return removed, nil
}

func isText(data []byte) bool {
	probe := data
	if len(probe) > 8000 {
		probe = probe[:8000]
	}
	return bytes.IndexByte(probe, 0) < 0 && utf8.Valid(data)
}
