package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".sloth"), 0o755))
	require.NoError(t, os.WriteFile(Path(dir), []byte(content), 0o644))
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxIterations, cfg.Limits.MaxIterations)
	assert.Equal(t, 5*time.Second, cfg.Limits.RetryDelay())
	assert.Equal(t, time.Minute, cfg.Verify.Timeout())
	assert.Equal(t, "gemini", cfg.LLM.Backend)
	require.NotNil(t, cfg.LLM.ThinkingBudget)
	assert.EqualValues(t, DefaultThinkingBudget, *cfg.LLM.ThinkingBudget)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
limits:
  max_iterations: 20
  repeat_warn_after: 2
verify:
  command: npm run dev
llm:
  backend: ollama
  temperature: 0.2
commands:
  allowed: [make, python3]
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Limits.MaxIterations)
	assert.Equal(t, 2, cfg.Limits.RepeatWarnAfter)
	assert.Equal(t, DefaultRepeatForceAfter, cfg.Limits.RepeatForceAfter)
	assert.Equal(t, "npm run dev", cfg.Verify.Command)
	assert.Equal(t, DefaultLogChars, cfg.Verify.LogChars)
	assert.Equal(t, "ollama", cfg.LLM.Backend)
	require.NotNil(t, cfg.LLM.Temperature)
	assert.InDelta(t, 0.2, *cfg.LLM.Temperature, 1e-6)
	assert.Equal(t, []string{"make", "python3"}, cfg.Commands.Allowed)
}

func TestLoadConfigInvalid(t *testing.T) {
	testCases := []struct {
		name  string
		yaml  string
		field string
	}{
		{name: "Zero iterations", yaml: "limits:\n  max_iterations: 0\n", field: "limits.max_iterations"},
		{name: "Force below warn", yaml: "limits:\n  repeat_warn_after: 5\n  repeat_force_after: 4\n", field: "limits.repeat_force_after"},
		{name: "Negative verify timeout", yaml: "verify:\n  timeout_seconds: -1\n", field: "verify.timeout_seconds"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tc.yaml)
			_, err := LoadConfig(dir)
			require.Error(t, err)
			var ve ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestLoadConfigBadYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "limits: [not a map")
	_, err := LoadConfig(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SLOTH_MODEL_NAME":      "gemini-2.5-flash",
		"SLOTH_MAX_ITERATIONS":  "20",
		"SLOTH_VERIFY_TIMEOUT":  "90",
		"SLOTH_TEMPERATURE":     "0.7",
		"SLOTH_THINKING_BUDGET": "1024",
		"SLOTH_VERIFY_CMD":      "  go test ./...  ",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	require.NoError(t, ApplyEnv(&cfg, lookup))
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
	assert.Equal(t, 20, cfg.Limits.MaxIterations)
	assert.Equal(t, 90, cfg.Verify.TimeoutSeconds)
	assert.Equal(t, "go test ./...", cfg.Verify.Command)
	require.NotNil(t, cfg.LLM.Temperature)
	assert.InDelta(t, 0.7, *cfg.LLM.Temperature, 1e-6)
	assert.EqualValues(t, 1024, *cfg.LLM.ThinkingBudget)
	assert.Nil(t, cfg.LLM.TopP)
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	cfg := DefaultConfig()
	err := ApplyEnv(&cfg, func(k string) (string, bool) {
		if k == "SLOTH_LOG_CHARS" {
			return "lots", true
		}
		return "", false
	})
	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "SLOTH_LOG_CHARS", ve.Field)
}
