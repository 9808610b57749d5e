package workspace

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Entry is the fingerprint of one path in a Snapshot. Directories carry an
// empty Sum unless they are opaque (ignored dirs are summarised, not walked).
type Entry struct {
	Dir bool
	Sum string
}

// Snapshot maps slash-separated project-relative paths to fingerprints.
type Snapshot map[string]Entry

type Options struct {
	// Files above this size are fingerprinted by size and mtime.
	MaxFileBytes int64
	Workers      int
}

func DefaultOptions() Options {
	return Options{
		MaxFileBytes: 4 << 20,
		Workers:      8,
	}
}

type hashJob struct {
	rel  string
	path string
	info fs.FileInfo
}

// Take fingerprints the whole project tree. Regular files are hashed in
// parallel; ignored directories are recorded with a fingerprint of their
// top-level listing so installs and commits still register as changes.
func Take(ctx context.Context, root string, opts Options) (Snapshot, error) {
	if opts.Workers <= 0 {
		opts.Workers = DefaultOptions().Workers
	}
	snap := Snapshot{}
	var jobs []hashJob

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		switch {
		case d.IsDir():
			if d.Name() == StateDir {
				return filepath.SkipDir
			}
			if IsIgnoredDir(d.Name()) {
				snap[rel] = Entry{Dir: true, Sum: listingSum(path)}
				return filepath.SkipDir
			}
			snap[rel] = Entry{Dir: true}
		case d.Type()&fs.ModeSymlink != 0:
			target, _ := os.Readlink(path)
			snap[rel] = Entry{Sum: "link:" + target}
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return nil
			}
			if info.Size() > opts.MaxFileBytes {
				snap[rel] = Entry{Sum: statSum(info)}
				return nil
			}
			jobs = append(jobs, hashJob{rel: rel, path: path, info: info})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", root, err)
	}

	sums := make([]string, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sum, err := fileHash(job.path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			sums[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", root, err)
	}
	for i, job := range jobs {
		if sums[i] != "" {
			snap[job.rel] = Entry{Sum: sums[i]}
		}
	}
	return snap, nil
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func statSum(info fs.FileInfo) string {
	return fmt.Sprintf("stat:%d:%d", info.Size(), info.ModTime().UnixNano())
}

func listingSum(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	h := sha256.New()
	for _, e := range entries {
		fmt.Fprintf(h, "%s\x00", e.Name())
		if info, err := e.Info(); err == nil {
			fmt.Fprintf(h, "%d\x00%d\x00", info.Size(), info.ModTime().UnixNano())
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Changes is the difference between two snapshots.
type Changes struct {
	Changed []string
	Created []string
	Deleted []string
}

func (c Changes) Empty() bool {
	return len(c.Changed) == 0 && len(c.Created) == 0 && len(c.Deleted) == 0
}

func Diff(before, after Snapshot) Changes {
	var c Changes
	for rel, a := range after {
		b, ok := before[rel]
		switch {
		case !ok:
			c.Created = append(c.Created, rel)
		case a.Dir != b.Dir || a.Sum != b.Sum:
			c.Changed = append(c.Changed, rel)
		}
	}
	for rel := range before {
		if _, ok := after[rel]; !ok {
			c.Deleted = append(c.Deleted, rel)
		}
	}
	sort.Strings(c.Changed)
	sort.Strings(c.Created)
	sort.Strings(c.Deleted)
	return c
}
