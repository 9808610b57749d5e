package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sloth/internal/collector"
	"sloth/internal/display"
	"sloth/internal/executor"
	"sloth/internal/history"
	"sloth/internal/llm_client"
	"sloth/internal/logger"
	"sloth/internal/metrics"
	"sloth/internal/parser"
	"sloth/internal/sandbox"
	"sloth/internal/verify"
	"sloth/internal/workspace"
)

// ErrAborted is returned by a handler when the operator refused to go on,
// for example by interrupting a clarification prompt.
var ErrAborted = errors.New("aborted by operator")

// Querier sends one prompt to the model service.
type Querier interface {
	Query(ctx context.Context, prompt string) (llm_client.Reply, error)
}

// Gatherer renders project context for prompts.
type Gatherer interface {
	Gather(ctx context.Context, mode collector.Mode, fullPaths []string) (string, error)
}

// Asker collects an answer from the operator.
type Asker interface {
	Ask(question string) (string, error)
}

// Actions applies parsed actions to the project.
type Actions interface {
	WriteFiles(files []executor.FileWrite) executor.Outcome
	RunBatch(ctx context.Context, batch string) executor.Outcome
}

// Verifier runs the configured verification command.
type Verifier interface {
	Run(ctx context.Context, command string) (verify.Result, error)
}

type Options struct {
	Root             string
	RunID            string
	Boundary         string
	Fast             bool
	VerifyCommand    string
	MaxIterations    int
	RepeatWarnAfter  int
	RepeatForceAfter int
	RetryDelay       time.Duration
	AllowedCommands  []string
	// PreviousAttempt is the last finished run, offered as a wrong
	// solution in fix mode.
	PreviousAttempt *history.Attempt
}

type Deps struct {
	Model    Querier
	Context  Gatherer
	Asker    Asker
	Actions  Actions
	Verifier Verifier
	Printer  *display.Printer
}

const maxHistoryInPrompt = 10

type Supervisor struct {
	opts Options
	deps Deps
	out  *display.Printer

	task      *Task
	state     State
	iteration int
	attempts  []Attempt
	fullFiles []string
	plan      string
	summary   string
	manual    []string

	failure    *executor.Outcome
	note       string
	lastVerify *verify.Result
	verdict    verify.Verdict
	verifyNote string

	guard   *repeatGuard
	metrics *metrics.RunMetrics
	table   map[State]stateHandler
	sleep   func(ctx context.Context, d time.Duration) error
}

func New(task *Task, opts Options, deps Deps) *Supervisor {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 15
	}
	out := deps.Printer
	if out == nil {
		out = display.NewPrinter(io.Discard)
	}
	s := &Supervisor{
		opts:    opts,
		deps:    deps,
		out:     out,
		task:    task,
		state:   StateContextPrep,
		guard:   newRepeatGuard(opts.RepeatWarnAfter, opts.RepeatForceAfter),
		metrics: &metrics.RunMetrics{RunID: opts.RunID},
		sleep:   sleepCtx,
	}
	if opts.Fast {
		s.state = StateInitialCoding
	}
	s.table = s.dispatchTable()
	return s
}

// Run drives the loop until the goal is done, the iteration budget is
// spent, the model service is gone or ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) Result {
	s.metrics.Start = time.Now()
	logger.Log.Info("run started", "run_id", s.opts.RunID, "root", s.opts.Root, "state", s.state.String(),
		"fast", s.opts.Fast, "max_iterations", s.opts.MaxIterations)

	for {
		if err := ctx.Err(); err != nil {
			return s.finish(ExitInterrupted, err)
		}
		if s.state == StateDone {
			return s.finish(ExitDone, nil)
		}
		if s.iteration >= s.opts.MaxIterations {
			return s.finish(ExitBudgetExhausted, nil)
		}

		s.iteration++
		state := s.state
		h, ok := s.table[state]
		if !ok {
			return s.finish(ExitCrash, fmt.Errorf("no handler for state %s", state))
		}

		im := metrics.IterationMetrics{Iteration: s.iteration, State: state.String(), Start: time.Now()}
		next, reason, err := s.step(ctx, h, &im)
		im.End = time.Now()
		im.Finalize()
		if err != nil {
			im.Err = err.Error()
		}
		s.metrics.Add(im)

		if reason != nil {
			return s.finish(*reason, err)
		}
		if next != state {
			logger.Log.Info("state transition", "iteration", s.iteration, "from", state.String(), "to", next.String())
		}
		s.state = next
	}
}

// step runs one iteration. A non-nil exit reason ends the run.
func (s *Supervisor) step(ctx context.Context, h stateHandler, im *metrics.IterationMetrics) (State, *ExitReason, error) {
	state := s.state
	prompt, err := h.prompt(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return state, exitPtr(ExitInterrupted), ctx.Err()
		}
		return state, exitPtr(ExitCrash), fmt.Errorf("build %s prompt: %w", state, err)
	}

	s.out.Step(s.iteration, state.String(), "asking the model (%d chars of prompt)", len(prompt))
	logger.Log.Debug("model request", "iteration", s.iteration, "state", state.String(), "prompt", prompt)

	reply, err := s.deps.Model.Query(ctx, prompt)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return state, exitPtr(ExitInterrupted), ctx.Err()
		case errors.Is(err, llm_client.ErrNoService), errors.Is(err, llm_client.ErrNotInitialized):
			return state, exitPtr(ExitServiceUnavailable), err
		}
		s.out.Warn("model query failed: %v (retrying in %s)", err, s.opts.RetryDelay)
		logger.Log.Warn("model query failed", "iteration", s.iteration, "err", err)
		if err := s.sleep(ctx, s.opts.RetryDelay); err != nil {
			return state, exitPtr(ExitInterrupted), err
		}
		return state, nil, err
	}

	im.Provider = reply.Provider
	im.InputTokens = reply.InputTokens
	im.OutputTokens = reply.OutputTokens
	logger.Log.Debug("model reply", "iteration", s.iteration, "provider", reply.Provider,
		"input_tokens", reply.InputTokens, "output_tokens", reply.OutputTokens, "reply", reply.Text)
	s.out.Step(s.iteration, state.String(), "%s replied in %s (%d in / %d out tokens)",
		orDash(reply.Provider), reply.Duration.Round(time.Millisecond), reply.InputTokens, reply.OutputTokens)

	next, err := h.handle(ctx, reply.Text, im)
	if err != nil {
		if errors.Is(err, ErrAborted) || ctx.Err() != nil {
			return state, exitPtr(ExitInterrupted), err
		}
		return state, exitPtr(ExitCrash), err
	}
	return next, nil, nil
}

func exitPtr(r ExitReason) *ExitReason { return &r }

func (s *Supervisor) finish(reason ExitReason, err error) Result {
	s.metrics.Finalize(reason.String())
	attrs := []any{"run_id", s.opts.RunID, "exit", reason.String(), "iterations", s.iteration}
	if err != nil {
		attrs = append(attrs, "err", err)
	}
	logger.Log.Info("run finished", attrs...)
	return Result{
		Reason:     reason,
		Iterations: s.iteration,
		Summary:    s.summary,
		Manual:     s.manual,
		Attempts:   s.attempts,
		Metrics:    s.metrics,
		Err:        err,
	}
}

func (s *Supervisor) handleContextPrep(ctx context.Context, reply string, im *metrics.IterationMetrics) (State, error) {
	blocks := parser.ParseBlocks(reply, s.opts.Boundary)
	im.Action = "context"
	if b, ok := blocks.First(parser.TypeFiles); ok {
		s.setFullFiles(b.Content)
		im.Success = true
	}
	s.out.Info("files requested in full: %d", len(s.fullFiles))
	return StatePlanning, nil
}

func (s *Supervisor) handlePlanning(ctx context.Context, reply string, im *metrics.IterationMetrics) (State, error) {
	blocks := parser.ParseBlocks(reply, s.opts.Boundary)

	if b, ok := blocks.First(parser.TypeClarification); ok {
		im.Action = "clarification"
		if s.deps.Asker == nil {
			return StatePlanning, fmt.Errorf("%w: clarification requested but no operator is attached", ErrAborted)
		}
		s.out.Block("The model needs clarification", b.Content)
		answer, err := s.deps.Asker.Ask("Your answer:")
		if err != nil {
			return StatePlanning, fmt.Errorf("%w: %w", ErrAborted, err)
		}
		s.task.AddClarification(b.Content, answer)
		im.Success = true
		return StatePlanning, nil
	}

	if b, ok := blocks.First(parser.TypeFiles); ok {
		s.setFullFiles(b.Content)
	}
	if b, ok := blocks.First(parser.TypePlan); ok {
		im.Action = "plan"
		im.Success = true
		s.plan = b.Content
		s.out.Block("Plan", b.Content)
		if err := s.savePlan(); err != nil {
			logger.Log.Warn("could not save plan", "err", err)
		}
		return StateInitialCoding, nil
	}

	im.Action = "none"
	s.out.Warn("no plan or clarification in the reply; asking again")
	if err := s.sleep(ctx, s.opts.RetryDelay); err != nil {
		return StatePlanning, err
	}
	return StatePlanning, nil
}

// handleAction serves every coding state: it applies the reply's actions
// and picks the next state from the outcome.
func (s *Supervisor) handleAction(ctx context.Context, reply string, im *metrics.IterationMetrics) (State, error) {
	blocks := parser.ParseBlocks(reply, s.opts.Boundary)
	s.note = ""

	attempt := Attempt{Iteration: s.iteration, State: s.state.String()}
	if b, ok := blocks.First(parser.TypeSummary); ok {
		attempt.Strategy = strings.TrimSpace(b.Content)
		s.out.Info("strategy: %s", attempt.Strategy)
	}
	for _, b := range blocks.All(parser.TypeManual) {
		if step := strings.TrimSpace(b.Content); step != "" {
			s.manual = append(s.manual, step)
		}
	}

	doneBlock, done := blocks.First(parser.TypeDoneSummary)
	done = done || parser.HasCompletionMarker(reply)

	var outcome executor.Outcome
	writes := blocks.All(parser.TypeWriteFile)
	bash, hasBash := blocks.First(parser.TypeBash)
	switch {
	case len(writes) > 0:
		if hasBash {
			logger.Log.Warn("bash block ignored, write_file blocks take precedence", "iteration", s.iteration)
		}
		attempt.Action = string(parser.TypeWriteFile)
		files := make([]executor.FileWrite, 0, len(writes))
		for _, w := range writes {
			files = append(files, executor.FileWrite{Path: w.Path(), Content: w.Content})
		}
		outcome = s.deps.Actions.WriteFiles(files)
	case hasBash:
		attempt.Action = string(parser.TypeBash)
		s.out.Info("running commands:\n%s", bash.Content)
		outcome = s.deps.Actions.RunBatch(ctx, bash.Content)
	case done:
		im.Action, im.Success = "done", true
		attempt.Action, attempt.Success = "done", true
		return s.markDone(doneBlock, attempt), nil
	default:
		im.Action = "none"
		attempt.Action = "none"
		attempt.Error = "no action block in the reply"
		s.attempts = append(s.attempts, attempt)
		s.note = "Your previous reply contained no write_file, bash or done_summary block, so nothing was changed."
		s.out.Warn("no action in the reply")
		return StateReviewing, nil
	}

	im.Action = attempt.Action
	attempt.Success = outcome.Success
	attempt.ChangedFiles = outcome.ChangedFiles
	attempt.CreatedPaths = outcome.CreatedPaths
	attempt.DeletedPaths = outcome.DeletedPaths
	for _, w := range outcome.Warnings {
		s.out.Warn("%s", w)
	}

	if !outcome.Success {
		attempt.Error = outcome.ErrorMessage
		s.attempts = append(s.attempts, attempt)
		s.failure = &outcome
		s.guard.Reset()
		s.out.Error("action failed (%s): %s", outcome.Kind, outcome.ErrorMessage)
		logger.Log.Warn("action failed", "iteration", s.iteration, "kind", string(outcome.Kind),
			"identifier", outcome.FailedIdentifier, "err", outcome.ErrorMessage)
		return StateFixingError, nil
	}

	im.Success = true
	s.failure = nil
	s.out.Success("%s", outcome.String())
	if done {
		return s.markDone(doneBlock, attempt), nil
	}

	level := s.guard.Observe(outcome.Touched())
	wantsVerify := blocks.Has(parser.TypeVerifyRun)
	if level == repeatForce || (wantsVerify && s.opts.VerifyCommand != "") {
		if level == repeatForce {
			s.out.Warn("the same files changed %d times in a row; forcing verification", s.guard.Streak())
			s.guard.Reset()
		}
		if err := s.verifyProject(ctx); err != nil {
			return StateAnalyzingLogs, err
		}
		attempt.Verification = s.verdict.Reason
		s.attempts = append(s.attempts, attempt)
		return StateAnalyzingLogs, nil
	}
	if wantsVerify {
		s.note = "Verification was requested but no verification command is configured."
	}
	if level == repeatWarn {
		s.out.Warn("the same files changed %d times in a row", s.guard.Streak())
	}
	s.attempts = append(s.attempts, attempt)
	return StateReviewing, nil
}

// markDone records the final attempt. Actions in the same reply have
// already been applied successfully.
func (s *Supervisor) markDone(b parser.Block, attempt Attempt) State {
	s.summary = strings.TrimSpace(b.Content)
	if s.summary == "" {
		s.summary = attempt.Strategy
	}
	s.attempts = append(s.attempts, attempt)
	s.out.Success("the model reports the goal is done")
	return StateDone
}

// verifyProject runs the verification command, or records a synthetic
// log when none is configured. The error is non-nil only on cancellation.
func (s *Supervisor) verifyProject(ctx context.Context) error {
	s.lastVerify = nil
	s.verifyNote = ""
	if s.opts.VerifyCommand == "" || s.deps.Verifier == nil {
		s.verifyNote = "No verification command is configured, so nothing was run. Judge the current state of the files against the goal instead."
		s.verdict = verify.Verdict{Reason: "no verification configured"}
		return nil
	}

	s.out.Info("verifying: %s", s.opts.VerifyCommand)
	res, err := s.deps.Verifier.Run(ctx, s.opts.VerifyCommand)
	if err != nil && ctx.Err() != nil {
		return err
	}
	if err != nil {
		s.verifyNote = fmt.Sprintf("The verification command could not be started: %v", err)
		s.verdict = verify.Verdict{Reason: "verification did not start"}
		return nil
	}
	s.lastVerify = &res
	s.verdict = verify.Analyze(res)
	s.out.Info("%s", display.StatusLine(s.verdict.Healthy, "VERIFY", s.verdict.Reason))
	return nil
}

func (s *Supervisor) setFullFiles(body string) {
	seen := map[string]bool{}
	var out []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*"))
		if line == "" {
			continue
		}
		abs, err := sandbox.ValidatePath(line, s.opts.Root)
		if err != nil {
			logger.Log.Warn("requested file ignored", "path", line, "err", err)
			continue
		}
		rel := sandbox.Rel(abs, s.opts.Root)
		if !seen[rel] {
			seen[rel] = true
			out = append(out, rel)
		}
	}
	s.fullFiles = out
}

func (s *Supervisor) savePlan() error {
	dir := filepath.Join(s.opts.Root, workspace.StateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "plan.md"), []byte(s.plan+"\n"), 0o644)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
