package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"sloth/internal/collector"
	"sloth/internal/config"
	"sloth/internal/display"
	"sloth/internal/executor"
	"sloth/internal/history"
	"sloth/internal/listener"
	"sloth/internal/llm_client"
	"sloth/internal/logger"
	"sloth/internal/notify"
	"sloth/internal/sandbox"
	"sloth/internal/supervisor"
	"sloth/internal/verify"
	"sloth/internal/workspace"
)

// session is what a run needs before the config is loaded.
type session struct {
	root     string
	fast     bool
	verify   string
	previous *history.Attempt
}

func runSloth(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	out := display.NewPrinter(cmd.OutOrStdout())

	console, err := listener.New()
	if err != nil {
		return fmt.Errorf("init terminal input: %w", err)
	}
	defer console.Close()

	store, err := history.DefaultStore()
	if err != nil {
		return err
	}

	sess, err := openSession(console, store, cmd.Flags().Changed)
	if err != nil {
		return interrupted(out, err)
	}

	cfg, err := buildConfig(sess.root, flags, cmd.Flags().Changed, os.LookupEnv)
	if err != nil {
		return err
	}
	if sess.verify == "" {
		sess.verify = cfg.Verify.Command
	}

	if err := logger.Init(filepath.Join(sess.root, workspace.StateDir, "run.log"), logger.ParseLevel(flags.logLevel)); err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer logger.Close()

	goal, errorLog, err := readTask(console, sess)
	if err != nil {
		return interrupted(out, err)
	}
	if goal == "" {
		out.Warn("No goal given. Nothing to do.")
		return nil
	}

	if sess.verify == "" && !sess.fast && flags.goal == "" {
		want, err := console.AskYesNo("Should sloth run a command to verify the project after changes?")
		if err != nil {
			return interrupted(out, err)
		}
		if want {
			answer, err := console.Ask("Verification command, e.g. \"npm run dev\":")
			if err != nil {
				return interrupted(out, err)
			}
			sess.verify = answer
		}
	}

	svc, err := llm_client.Init(llmConfig(cfg))
	if err != nil {
		reason := supervisor.ExitServiceUnavailable
		out.Info("%s", display.StatusLine(false, reason.String(), err.Error()))
		return &ExitError{Code: exitCode(reason), Reason: err.Error()}
	}

	if err := store.SaveRunConfig(history.RunConfig{ProjectRoot: sess.root, Fast: sess.fast, VerifyCommand: sess.verify}); err != nil {
		logger.Log.Warn("could not save run config", "err", err)
	}

	gate := sandbox.NewGate(cfg.Commands.Allowed...)
	actions := executor.New(sess.root, gate)
	actions.Timeout = cfg.Limits.BatchTimeout()

	runID := uuid.NewString()
	opts := supervisor.Options{
		Root:             sess.root,
		RunID:            runID,
		Boundary:         newBoundary(),
		Fast:             sess.fast,
		VerifyCommand:    sess.verify,
		MaxIterations:    cfg.Limits.MaxIterations,
		RepeatWarnAfter:  cfg.Limits.RepeatWarnAfter,
		RepeatForceAfter: cfg.Limits.RepeatForceAfter,
		RetryDelay:       cfg.Limits.RetryDelay(),
		AllowedCommands:  gate.Allowed(),
		PreviousAttempt:  sess.previous,
	}
	deps := supervisor.Deps{
		Model:    svc,
		Context:  collector.New(sess.root, cfg.Context.SummaryLines, cfg.Context.MaxFileBytes),
		Asker:    console,
		Actions:  actions,
		Verifier: verify.NewRunner(sess.root, cfg.Verify.Timeout(), cfg.Verify.LogChars),
		Printer:  out,
	}

	out.Info("Project: %s (%s mode, backend %s, run %s)", sess.root, modeName(sess.fast), svc.Active(), runID)
	res := supervisor.New(supervisor.NewTask(goal, errorLog), opts, deps).Run(ctx)

	printReport(out, res)
	if res.Reason == supervisor.ExitDone {
		summary := res.Summary
		if summary == "" {
			summary = "(no summary given)"
		}
		if err := store.AddAttempt(history.Attempt{ProjectRoot: sess.root, InitialGoal: goal, SolutionSummary: summary}); err != nil {
			logger.Log.Warn("could not save history", "err", err)
		}
	}
	if flags.notify {
		if err := notify.New().Send(context.Background(), notificationText(res)); err != nil {
			out.Warn("notification failed: %v", err)
		}
	}
	if res.Reason != supervisor.ExitDone {
		return &ExitError{Code: exitCode(res.Reason), Reason: res.Reason.String()}
	}
	return nil
}

// openSession picks the project root, from the saved run config in fix
// mode or from the flags and the console otherwise.
func openSession(console *listener.Console, store *history.Store, changed func(string) bool) (session, error) {
	if flags.fix {
		h, err := store.Load()
		if err != nil {
			return session{}, err
		}
		if h.RunConfig == nil || h.RunConfig.ProjectRoot == "" {
			return session{}, errors.New("nothing to fix: no previous run is recorded")
		}
		sess := session{root: h.RunConfig.ProjectRoot, fast: h.RunConfig.Fast, verify: h.RunConfig.VerifyCommand}
		if changed("fast") {
			sess.fast = flags.fast
		}
		if changed("verify") {
			sess.verify = flags.verify
		}
		sess.previous = h.LastAttemptFor(sess.root)
		return sess, checkDir(sess.root)
	}

	dir := flags.dir
	if !flags.here && dir == "" {
		answer, err := console.Ask("Project directory (empty for the current directory):")
		if err != nil {
			return session{}, err
		}
		dir = answer
	}
	root, err := resolveRoot(dir)
	if err != nil {
		return session{}, err
	}
	return session{root: root, fast: flags.fast}, nil
}

func resolveRoot(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	if strings.HasPrefix(dir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, dir[2:])
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return abs, checkDir(abs)
}

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("project directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("project directory: %s is not a directory", dir)
	}
	return nil
}

func readTask(console *listener.Console, sess session) (goal, errorLog string, err error) {
	if flags.goal != "" {
		return strings.TrimSpace(flags.goal), "", nil
	}
	title := "Describe your goal as precisely as you can"
	if sess.previous != nil {
		title = "Describe what is still wrong with the last solution"
	}
	goal, err = console.ReadMultiline(title)
	if err != nil || goal == "" {
		return goal, "", err
	}
	errorLog, err = console.ReadMultiline("Paste an error log if you have one, or just finish the input")
	return goal, errorLog, err
}

// buildConfig layers the config file, then SLOTH_* variables, then flags
// the user set explicitly.
func buildConfig(root string, f runFlags, changed func(string) bool, lookup func(string) (string, bool)) (*config.Config, error) {
	cfg, err := config.LoadConfig(root)
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if changed("verify") {
		cfg.Verify.Command = f.verify
	}
	if changed("verify-timeout") {
		cfg.Verify.TimeoutSeconds = f.verifyTimeout
	}
	if changed("log-chars") {
		cfg.Verify.LogChars = f.logChars
	}
	if changed("max-iterations") {
		cfg.Limits.MaxIterations = f.maxIterations
	}
	if changed("backend") {
		cfg.LLM.Backend = f.backend
	}
	if changed("model") {
		cfg.LLM.Model = f.model
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func llmConfig(cfg *config.Config) llm_client.Config {
	return llm_client.Config{
		Backend:        cfg.LLM.Backend,
		Fallbacks:      cfg.LLM.Fallbacks,
		Model:          cfg.LLM.Model,
		OllamaModel:    cfg.LLM.OllamaModel,
		OllamaHost:     cfg.LLM.OllamaHost,
		Project:        cfg.LLM.Project,
		Location:       cfg.LLM.Location,
		Timeout:        cfg.LLM.Timeout(),
		Temperature:    cfg.LLM.Temperature,
		TopP:           cfg.LLM.TopP,
		TopK:           cfg.LLM.TopK,
		ThinkingBudget: cfg.LLM.ThinkingBudget,
	}
}

func newBoundary() string {
	return "SLOTH_BOUNDARY_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func modeName(fast bool) string {
	if fast {
		return "fast"
	}
	return "planned"
}

// interrupted turns an aborted prompt into the interrupted exit status.
func interrupted(out *display.Printer, err error) error {
	if !errors.Is(err, listener.ErrInterrupted) {
		return err
	}
	reason := supervisor.ExitInterrupted
	out.Info("%s", display.StatusLine(false, reason.String(), "interrupted by user"))
	return &ExitError{Code: exitCode(reason), Reason: reason.String()}
}
