package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sloth/internal/config"
	"sloth/internal/supervisor"
)

func changedSet(names ...string) func(string) bool {
	set := map[string]bool{}
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestBuildConfigPrecedence(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".sloth"), 0o755))
	require.NoError(t, os.WriteFile(config.Path(root), []byte(`
verify:
  command: from-file
  timeout_seconds: 10
limits:
  max_iterations: 7
`), 0o644))

	env := envMap(map[string]string{
		"SLOTH_VERIFY_CMD":     "from-env",
		"SLOTH_VERIFY_TIMEOUT": "20",
	})

	testCases := []struct {
		name        string
		flags       runFlags
		changed     []string
		wantCommand string
		wantTimeout int
		wantMax     int
	}{
		{
			name:        "Environment beats file",
			wantCommand: "from-env",
			wantTimeout: 20,
			wantMax:     7,
		},
		{
			name:        "Explicit flags beat environment",
			flags:       runFlags{verify: "from-flag", verifyTimeout: 30, maxIterations: 3},
			changed:     []string{"verify", "verify-timeout", "max-iterations"},
			wantCommand: "from-flag",
			wantTimeout: 30,
			wantMax:     3,
		},
		{
			name:        "Unset flags are ignored",
			flags:       runFlags{verify: "ignored", verifyTimeout: 99},
			wantCommand: "from-env",
			wantTimeout: 20,
			wantMax:     7,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := buildConfig(root, tc.flags, changedSet(tc.changed...), env)
			require.NoError(t, err)
			assert.Equal(t, tc.wantCommand, cfg.Verify.Command)
			assert.Equal(t, tc.wantTimeout, cfg.Verify.TimeoutSeconds)
			assert.Equal(t, tc.wantMax, cfg.Limits.MaxIterations)
		})
	}
}

func TestBuildConfigRejectsInvalidFlag(t *testing.T) {
	_, err := buildConfig(t.TempDir(), runFlags{logChars: -1}, changedSet("log-chars"), envMap(nil))
	var verr config.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "verify.log_chars", verr.Field)
}

func TestLLMConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.Backend = "ollama"
	cfg.LLM.OllamaModel = "llama3"
	got := llmConfig(&cfg)
	assert.Equal(t, "ollama", got.Backend)
	assert.Equal(t, "llama3", got.OllamaModel)
	assert.Equal(t, cfg.LLM.Timeout(), got.Timeout)
	assert.Equal(t, []string{"vertex"}, got.Fallbacks)
}

func TestResolveRoot(t *testing.T) {
	dir := t.TempDir()
	got, err := resolveRoot(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = resolveRoot(file)
	assert.Error(t, err)

	_, err = resolveRoot(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, 0, exitCode(supervisor.ExitDone))
	assert.Equal(t, 2, exitCode(supervisor.ExitBudgetExhausted))
	assert.Equal(t, 3, exitCode(supervisor.ExitServiceUnavailable))
	assert.Equal(t, 130, exitCode(supervisor.ExitInterrupted))
	assert.Equal(t, 1, exitCode(supervisor.ExitCrash))
}

func TestStatusDetail(t *testing.T) {
	assert.Equal(t, "goal reached in 2 iteration(s)",
		statusDetail(supervisor.Result{Reason: supervisor.ExitDone, Iterations: 2}))
	assert.Equal(t, "stopped after 15 iteration(s) without reaching the goal",
		statusDetail(supervisor.Result{Reason: supervisor.ExitBudgetExhausted, Iterations: 15}))
	assert.Equal(t, "run crashed: boom",
		statusDetail(supervisor.Result{Reason: supervisor.ExitCrash, Err: errors.New("boom")}))
	assert.Equal(t, "run crashed: read x.go: permission denied",
		statusDetail(supervisor.Result{Reason: supervisor.ExitCrash, Err: errors.New("read x.go:\n  permission denied\n")}))
	assert.Equal(t, "no model service could be reached: unknown error",
		statusDetail(supervisor.Result{Reason: supervisor.ExitServiceUnavailable}))
	assert.Equal(t, "INTERRUPTED: interrupted by user",
		notificationText(supervisor.Result{Reason: supervisor.ExitInterrupted}))
}

func TestNewBoundaryIsUnique(t *testing.T) {
	a, b := newBoundary(), newBoundary()
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^SLOTH_BOUNDARY_[0-9a-f]{32}$`, a)
}
