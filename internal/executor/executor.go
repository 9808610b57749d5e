package executor

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"sloth/internal/logger"
	"sloth/internal/sandbox"
	"sloth/internal/workspace"
)

const defaultBatchTimeout = 10 * time.Minute

const noOpMessage = "ran successfully but did not change, create or delete any file or folder; the pattern was likely not found or the path is wrong"

// FileWrite is one full-file replacement requested by the model.
type FileWrite struct {
	Path    string
	Content string
}

type Executor struct {
	Root     string
	Gate     *sandbox.Gate
	Snapshot workspace.Options
	GOOS     string
	// Timeout bounds one shell batch.
	Timeout time.Duration
	// MaxOutput bounds captured stdout/stderr per stream, in bytes.
	MaxOutput int
}

func New(root string, gate *sandbox.Gate) *Executor {
	if gate == nil {
		gate = sandbox.NewGate()
	}
	return &Executor{
		Root:      filepath.Clean(root),
		Gate:      gate,
		Snapshot:  workspace.DefaultOptions(),
		GOOS:      runtime.GOOS,
		Timeout:   defaultBatchTimeout,
		MaxOutput: 64 << 10,
	}
}

// WriteFiles applies full-content replacements in order. The first rejected
// path or I/O error aborts the rest of the batch; writes already applied
// stay applied and are reported.
func (e *Executor) WriteFiles(files []FileWrite) Outcome {
	var out Outcome
	for _, f := range files {
		abs, err := sandbox.ValidatePath(f.Path, e.Root)
		if err != nil {
			return e.abort(out, FailurePathRejected, f.Path, err)
		}
		rel := sandbox.Rel(abs, e.Root)

		old, readErr := os.ReadFile(abs)
		exists := readErr == nil
		if readErr != nil && !errors.Is(readErr, fs.ErrNotExist) {
			return e.abort(out, FailureIO, rel, readErr)
		}

		if exists && f.Content == "" {
			msg := fmt.Sprintf("refused to empty existing file %s", rel)
			logger.Log.Warn("write skipped", "path", rel, "reason", "empty content for existing file")
			out.Warnings = append(out.Warnings, msg)
			continue
		}
		if exists && bytes.Equal(old, []byte(f.Content)) {
			logger.Log.Debug("write unchanged", "path", rel)
			continue
		}

		if err := atomicWrite(abs, []byte(f.Content)); err != nil {
			return e.abort(out, FailureIO, rel, err)
		}
		logger.Log.Info("file written", "path", rel, "bytes", len(f.Content), "created", !exists)
		if exists {
			out.ChangedFiles = append(out.ChangedFiles, rel)
		} else {
			out.CreatedPaths = append(out.CreatedPaths, rel)
		}
	}

	if len(out.ChangedFiles) == 0 && len(out.CreatedPaths) == 0 {
		id := ""
		if len(files) > 0 {
			id = files[0].Path
		}
		return e.abort(out, FailureNoOp, id, errors.New("file writes "+noOpMessage))
	}
	out.Success = true
	return out
}

func (e *Executor) abort(partial Outcome, kind FailureKind, id string, err error) Outcome {
	logger.Log.Warn("action failed", "kind", string(kind), "target", id, "err", err)
	o := failure(kind, id, err.Error())
	o.ChangedFiles = partial.ChangedFiles
	o.CreatedPaths = partial.CreatedPaths
	o.DeletedPaths = partial.DeletedPaths
	o.Warnings = partial.Warnings
	return o
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create folder: %w", err)
	}

	mode := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".sloth-*")
	if err != nil {
		return fmt.Errorf("could not create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("could not write to file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not write to file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("could not set file mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("could not replace file: %w", err)
	}
	return nil
}
