package verify

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"sloth/internal/logger"
	"sloth/internal/utils"
)

const (
	DefaultTimeout  = 60 * time.Second
	DefaultMaxChars = 20000
	DefaultGrace    = 3 * time.Second

	captureLimit = 1 << 20
)

// Result is what one verification command produced. Hitting the timeout is
// a fact about the run, not a failure: servers are expected to keep running.
type Result struct {
	Command     string
	ExitCode    int
	Stdout      string
	Stderr      string
	TimedOut    bool
	Interrupted bool
	Duration    time.Duration
}

func (r Result) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "$ %s\n", r.Command)
	switch {
	case r.TimedOut:
		fmt.Fprintf(&sb, "still running after %s; process group stopped (exit code %d)\n", r.Duration.Round(time.Second), r.ExitCode)
	case r.Interrupted:
		fmt.Fprintf(&sb, "interrupted by user (exit code %d)\n", r.ExitCode)
	default:
		fmt.Fprintf(&sb, "exit code %d after %s\n", r.ExitCode, r.Duration.Round(time.Millisecond))
	}
	sb.WriteString("--- stdout ---\n")
	sb.WriteString(orNone(r.Stdout))
	sb.WriteString("\n--- stderr ---\n")
	sb.WriteString(orNone(r.Stderr))
	return sb.String()
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(empty)"
	}
	return s
}

type Runner struct {
	Dir      string
	Timeout  time.Duration
	MaxChars int
	// Grace is how long each stop signal gets before escalating.
	Grace time.Duration
}

func NewRunner(dir string, timeout time.Duration, maxChars int) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Runner{Dir: dir, Timeout: timeout, MaxChars: maxChars, Grace: DefaultGrace}
}

// Run executes command through the shell in its own process group. When
// the timeout elapses or ctx is cancelled the whole group is stopped with
// an interrupt, then terminate, then kill ladder. The returned error is
// non-nil only when the command could not be started or ctx was cancelled.
func (r *Runner) Run(ctx context.Context, command string) (Result, error) {
	res := Result{Command: command}

	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = r.Dir
	cmd.WaitDelay = r.grace()
	newProcessGroup(cmd)

	stdout := &utils.TailBuffer{Max: captureLimit}
	stderr := &utils.TailBuffer{Max: captureLimit}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return res, fmt.Errorf("start verification %q: %w", command, err)
	}
	logger.Log.Info("verification started", "command", command, "pid", cmd.Process.Pid, "timeout", r.Timeout)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(r.Timeout)
	defer timer.Stop()

	var waitErr error
	var ctxErr error
	select {
	case waitErr = <-done:
	case <-timer.C:
		res.TimedOut = true
		waitErr = r.stop(cmd, done)
	case <-ctx.Done():
		res.Interrupted = true
		ctxErr = ctx.Err()
		waitErr = r.stop(cmd, done)
	}
	// Background jobs can outlive the shell; sweep whatever is left.
	_ = signalGroup(cmd.Process, stopKill)

	res.Duration = time.Since(start)
	res.ExitCode = exitCode(cmd, waitErr)
	res.Stdout = utils.TruncateTail(stdout.String(), r.MaxChars)
	res.Stderr = utils.TruncateTail(stderr.String(), r.MaxChars)

	logger.Log.Info("verification finished",
		"command", command, "exit_code", res.ExitCode, "timed_out", res.TimedOut, "duration", res.Duration)
	return res, ctxErr
}

func (r *Runner) stop(cmd *exec.Cmd, done <-chan error) error {
	for _, sig := range []stopSignal{stopInterrupt, stopTerminate} {
		if err := signalGroup(cmd.Process, sig); err != nil {
			logger.Log.Debug("signal process group", "signal", sig, "err", err)
		}
		select {
		case err := <-done:
			return err
		case <-time.After(r.grace()):
		}
	}
	if err := signalGroup(cmd.Process, stopKill); err != nil {
		logger.Log.Debug("kill process group", "err", err)
	}
	return <-done
}

func (r *Runner) grace() time.Duration {
	if r.Grace <= 0 {
		return DefaultGrace
	}
	return r.Grace
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return stateExitCode(cmd.ProcessState)
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

type stopSignal int

const (
	stopInterrupt stopSignal = iota
	stopTerminate
	stopKill
)

func (s stopSignal) String() string {
	switch s {
	case stopInterrupt:
		return "interrupt"
	case stopTerminate:
		return "terminate"
	default:
		return "kill"
	}
}
