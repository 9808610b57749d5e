package cli

import (
	"github.com/spf13/cobra"

	"sloth/internal/supervisor"
)

// Version is set at build time via ldflags.
var Version = "dev"

type runFlags struct {
	here          bool
	dir           string
	fix           bool
	fast          bool
	goal          string
	verify        string
	verifyTimeout int
	logChars      int
	maxIterations int
	backend       string
	model         string
	notify        bool
	logLevel      string
}

var flags runFlags

var rootCmd = &cobra.Command{
	Use:   "sloth",
	Short: "A coding assistant loop that edits your project until the goal is met",
	Long: `Sloth sends your goal and a snapshot of the project to an LLM, applies the
files and shell commands it answers with, and repeats until the model reports
the goal is done or the iteration budget runs out.

Shell commands are checked against a whitelist and file paths must stay inside
the project. This is a guard against careless replies, not a sandbox.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSloth,
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("sloth version {{.Version}}\n")

	f := rootCmd.Flags()
	f.BoolVar(&flags.here, "here", false, "work on the current directory")
	f.StringVar(&flags.dir, "dir", "", "work on this project directory")
	f.BoolVar(&flags.fix, "fix", false, "resume the last project and treat its last solution as wrong")
	f.BoolVar(&flags.fast, "fast", false, "skip planning and send full file contents")
	f.StringVar(&flags.goal, "goal", "", "goal text (skips the interactive prompts)")
	f.StringVar(&flags.verify, "verify", "", "command that verifies the project, e.g. \"npm test\"")
	f.IntVar(&flags.verifyTimeout, "verify-timeout", 0, "seconds the verify command may run (env SLOTH_VERIFY_TIMEOUT)")
	f.IntVar(&flags.logChars, "log-chars", 0, "characters of verify output kept per stream (env SLOTH_LOG_CHARS)")
	f.IntVar(&flags.maxIterations, "max-iterations", 0, "iteration budget (env SLOTH_MAX_ITERATIONS)")
	f.StringVar(&flags.backend, "backend", "", "first model backend: gemini, vertex or ollama (env SLOTH_BACKEND)")
	f.StringVar(&flags.model, "model", "", "model name (env SLOTH_MODEL_NAME)")
	f.BoolVar(&flags.notify, "notify", false, "show a desktop notification when the run ends")
	f.StringVar(&flags.logLevel, "log-level", "warn", "console log level: debug, info, warn or error")
	rootCmd.MarkFlagsMutuallyExclusive("here", "dir")

	rootCmd.AddCommand(cleanCmd)
}

// ExitError carries the process exit code for a run that did not succeed.
type ExitError struct {
	Code   int
	Reason string
}

func (e *ExitError) Error() string {
	return e.Reason
}

func exitCode(r supervisor.ExitReason) int {
	switch r {
	case supervisor.ExitDone:
		return 0
	case supervisor.ExitBudgetExhausted:
		return 2
	case supervisor.ExitServiceUnavailable:
		return 3
	case supervisor.ExitInterrupted:
		return 130
	default:
		return 1
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
