package collector

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"sloth/internal/logger"
	"sloth/internal/workspace"
)

// Mode selects how much of each file goes into the context.
type Mode int

const (
	// ModeFull includes every text file verbatim.
	ModeFull Mode = iota
	// ModeSummary includes the head of each file, an outline of HTML
	// documents and the full text only of explicitly requested files.
	ModeSummary
)

func (m Mode) String() string {
	if m == ModeSummary {
		return "summary"
	}
	return "full"
}

const largestMarked = 3

type Collector struct {
	Root         string
	SummaryLines int
	MaxFileBytes int64
	Workers      int
}

func New(root string, summaryLines int, maxFileBytes int64) *Collector {
	return &Collector{
		Root:         filepath.Clean(root),
		SummaryLines: summaryLines,
		MaxFileBytes: maxFileBytes,
		Workers:      8,
	}
}

type fileInfo struct {
	rel  string
	size int64
}

// Gather renders the project tree and file contents as prompt text.
// fullPaths are project-relative paths shown in full in ModeSummary.
func (c *Collector) Gather(ctx context.Context, mode Mode, fullPaths []string) (string, error) {
	var files []fileInfo
	err := workspace.Walk(c.Root, func(rel string, d fs.DirEntry) error {
		if d.IsDir() || !d.Type().IsRegular() || workspace.IsIgnoredFile(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, fileInfo{rel: rel, size: info.Size()})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("collect context: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })

	full := map[string]bool{}
	for _, p := range fullPaths {
		full[strings.TrimPrefix(filepath.ToSlash(strings.TrimSpace(p)), "./")] = true
	}

	bodies := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers())
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			bodies[i] = c.render(f, mode == ModeFull || full[f.rel])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Project root: %s (context mode: %s)\n\n", filepath.Base(c.Root), mode)
	sb.WriteString(renderTree(files))
	for i, f := range files {
		fmt.Fprintf(&sb, "\nFile: %s\n", f.rel)
		sb.WriteString(bodies[i])
		if !strings.HasSuffix(bodies[i], "\n") {
			sb.WriteString("\n")
		}
	}
	logger.Log.Debug("context gathered", "mode", mode.String(), "files", len(files), "chars", sb.Len())
	return sb.String(), nil
}

func (c *Collector) workers() int {
	if c.Workers <= 0 {
		return 8
	}
	return c.Workers
}

func (c *Collector) render(f fileInfo, full bool) string {
	if c.MaxFileBytes > 0 && f.size > c.MaxFileBytes {
		return fmt.Sprintf("(skipped: %d bytes)", f.size)
	}
	data, err := os.ReadFile(filepath.Join(c.Root, filepath.FromSlash(f.rel)))
	if err != nil {
		return fmt.Sprintf("(unreadable: %v)", err)
	}
	if isBinary(data) {
		return "(binary file)"
	}
	text := string(data)
	if full {
		return text
	}

	ext := strings.ToLower(filepath.Ext(f.rel))
	if ext == ".html" || ext == ".htm" {
		if outline, err := htmlOutline(text); err == nil {
			return "(outline)\n" + outline
		}
	}
	return head(text, c.SummaryLines)
}

func head(text string, n int) string {
	if n <= 0 {
		return "(content omitted)"
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) <= n {
		return text
	}
	return strings.Join(lines[:n], "") + fmt.Sprintf("... (%d more lines)\n", len(lines)-n)
}

func isBinary(data []byte) bool {
	probe := data
	if len(probe) > 8000 {
		probe = probe[:8000]
	}
	return bytes.IndexByte(probe, 0) >= 0
}

// renderTree lists files grouped by directory; the largest files are
// flagged so the model knows where the bulk of the code lives.
func renderTree(files []fileInfo) string {
	bySize := make([]fileInfo, len(files))
	copy(bySize, files)
	sort.SliceStable(bySize, func(i, j int) bool { return bySize[i].size > bySize[j].size })
	marked := map[string]bool{}
	for i := 0; i < len(bySize) && i < largestMarked; i++ {
		if bySize[i].size > 0 {
			marked[bySize[i].rel] = true
		}
	}

	var sb strings.Builder
	sb.WriteString("Directory tree (!!! marks the largest files):\n")
	printed := map[string]bool{}
	for _, f := range files {
		parts := strings.Split(f.rel, "/")
		for d := 1; d < len(parts); d++ {
			dir := strings.Join(parts[:d], "/")
			if !printed[dir] {
				printed[dir] = true
				fmt.Fprintf(&sb, "%s%s/\n", strings.Repeat("  ", d-1), parts[d-1])
			}
		}
		flag := ""
		if marked[f.rel] {
			flag = " !!!"
		}
		fmt.Fprintf(&sb, "%s%s (%s)%s\n", strings.Repeat("  ", len(parts)-1), parts[len(parts)-1], humanSize(f.size), flag)
	}
	return sb.String()
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
