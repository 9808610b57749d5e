package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"sloth/internal/logger"
	"sloth/internal/sandbox"
	"sloth/internal/utils"
	"sloth/internal/workspace"
)

var sedInPlace = regexp.MustCompile(`(?m)(^|[\s;&|(])sed\s+-i\s+`)

// RunBatch runs one bash block as a single script in the project root,
// after the command gate accepts every line of the script as it will be
// executed. Success requires a zero exit status and at least one
// observable change in the project tree.
func (e *Executor) RunBatch(ctx context.Context, batch string) Outcome {
	id := batchIdentifier(batch)

	script := RewriteRootPrefix(batch, e.Root)
	adapted := false
	if e.GOOS == "darwin" {
		script, adapted = AdaptSedInPlace(script)
	}

	if err := e.Gate.CheckBatch(script); err != nil {
		var rejected *sandbox.CommandRejectedError
		if errors.As(err, &rejected) {
			id = rejected.Line
		}
		return e.abort(Outcome{}, FailureCommandRejected, id, err)
	}

	before, err := workspace.Take(ctx, e.Root, e.Snapshot)
	if err != nil {
		return e.abort(Outcome{}, FailureIO, id, err)
	}

	stdout, stderr, runErr := e.runScript(ctx, script)

	after, err := workspace.Take(context.WithoutCancel(ctx), e.Root, e.Snapshot)
	if err != nil {
		return e.abort(Outcome{}, FailureIO, id, err)
	}
	changes := workspace.Diff(before, after)
	if adapted {
		changes.Created = e.removeBackups(changes.Created)
	}

	partial := Outcome{
		ChangedFiles: changes.Changed,
		CreatedPaths: changes.Created,
		DeletedPaths: changes.Deleted,
	}

	if runErr != nil {
		msg := strings.TrimSpace(stderr)
		if msg == "" {
			msg = strings.TrimSpace(stdout)
		}
		if msg == "" {
			msg = runErr.Error()
		} else {
			msg = runErr.Error() + ": " + msg
		}
		return e.abort(partial, FailureCommand, id, errors.New(msg))
	}

	if changes.Empty() {
		msg := "command " + noOpMessage
		if s := strings.TrimSpace(stderr); s != "" {
			msg += "\nstderr: " + s
		}
		return e.abort(partial, FailureNoOp, id, errors.New(msg))
	}

	logger.Log.Info("batch executed",
		"changed", len(changes.Changed), "created", len(changes.Created), "deleted", len(changes.Deleted))
	partial.Success = true
	return partial
}

func (e *Executor) runScript(ctx context.Context, script string) (string, string, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = defaultBatchTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	shell := "bash"
	if _, err := exec.LookPath(shell); err != nil {
		shell = "sh"
	}

	cmd := exec.CommandContext(runCtx, shell, "-c", "set -e\n"+script)
	cmd.Dir = e.Root
	cmd.WaitDelay = 5 * time.Second

	stdout := &utils.TailBuffer{Max: e.MaxOutput}
	stderr := &utils.TailBuffer{Max: e.MaxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	logger.Log.Debug("running batch", "shell", shell, "script", script)
	err := cmd.Run()
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("timed out after %s", timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			err = fmt.Errorf("exit status %d", exitErr.ExitCode())
		}
	}
	return withDropNote(stdout), withDropNote(stderr), err
}

func withDropNote(b *utils.TailBuffer) string {
	if n := b.Dropped(); n > 0 {
		return fmt.Sprintf("...[%d bytes dropped]...\n%s", n, b.String())
	}
	return b.String()
}

// removeBackups deletes *.bak files that the sed adaptation created and
// drops them from the created list.
func (e *Executor) removeBackups(created []string) []string {
	kept := created[:0]
	for _, rel := range created {
		if strings.HasSuffix(rel, ".bak") {
			if err := os.Remove(filepath.Join(e.Root, filepath.FromSlash(rel))); err == nil {
				continue
			}
		}
		kept = append(kept, rel)
	}
	return kept
}

// AdaptSedInPlace rewrites GNU style `sed -i ` into the BSD form that
// takes a mandatory backup suffix. Calls that already pass a suffix are
// left alone.
func AdaptSedInPlace(script string) (string, bool) {
	changed := false
	var sb strings.Builder
	last := 0
	for _, m := range sedInPlace.FindAllStringIndex(script, -1) {
		rest := script[m[1]:]
		if strings.HasPrefix(rest, "''") || strings.HasPrefix(rest, `""`) || strings.HasPrefix(rest, "'.") || strings.HasPrefix(rest, `".`) {
			continue
		}
		sb.WriteString(script[last:m[1]])
		sb.WriteString("'.bak' ")
		last = m[1]
		changed = true
	}
	sb.WriteString(script[last:])
	return sb.String(), changed
}

// RewriteRootPrefix strips the absolute project root and a leading
// project-name directory from paths in a script, since it already runs
// inside the project root.
func RewriteRootPrefix(script, root string) string {
	root = filepath.Clean(root)
	script = strings.ReplaceAll(script, root+"/", "")
	name := filepath.Base(root)
	if name == "" || name == "." || name == "/" {
		return script
	}
	pattern := regexp.MustCompile(`(?m)(^|[\s'"=])(?:\./)?` + regexp.QuoteMeta(name) + `/`)
	return pattern.ReplaceAllString(script, "$1")
}

func batchIdentifier(batch string) string {
	for _, line := range strings.Split(batch, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			return utils.TruncateHead(line, 120)
		}
	}
	return "(empty bash block)"
}
