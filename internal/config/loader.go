package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultMaxIterations     = 15
	DefaultRepeatWarnAfter   = 3
	DefaultRepeatForceAfter  = 4
	DefaultRetryDelaySeconds = 5
	DefaultBatchTimeout      = 600
	DefaultVerifyTimeout     = 60
	DefaultLogChars          = 20000
	DefaultAPITimeout        = 600
	DefaultThinkingBudget    = 24576
	DefaultSummaryLines      = 40
	DefaultMaxFileBytes      = 200_000
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	budget := int32(DefaultThinkingBudget)
	return Config{
		Limits: Limits{
			MaxIterations:       DefaultMaxIterations,
			RepeatWarnAfter:     DefaultRepeatWarnAfter,
			RepeatForceAfter:    DefaultRepeatForceAfter,
			RetryDelaySeconds:   DefaultRetryDelaySeconds,
			BatchTimeoutSeconds: DefaultBatchTimeout,
		},
		Verify: Verify{
			TimeoutSeconds: DefaultVerifyTimeout,
			LogChars:       DefaultLogChars,
		},
		LLM: LLM{
			Backend:        "gemini",
			Fallbacks:      []string{"vertex"},
			TimeoutSeconds: DefaultAPITimeout,
			ThinkingBudget: &budget,
		},
		Context: Context{
			SummaryLines: DefaultSummaryLines,
			MaxFileBytes: DefaultMaxFileBytes,
		},
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

func Path(basePath string) string {
	return filepath.Join(basePath, ".sloth", "config.yaml")
}

// LoadConfig reads .sloth/config.yaml under basePath on top of the
// defaults. A missing file yields the defaults.
func LoadConfig(basePath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(Path(basePath))
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateConfig checks that all config values are valid.
func ValidateConfig(cfg *Config) error {
	if cfg.Limits.MaxIterations <= 0 {
		return ValidationError{Field: "limits.max_iterations", Message: "must be positive"}
	}
	if cfg.Limits.RepeatWarnAfter <= 0 {
		return ValidationError{Field: "limits.repeat_warn_after", Message: "must be positive"}
	}
	if cfg.Limits.RepeatForceAfter < cfg.Limits.RepeatWarnAfter {
		return ValidationError{Field: "limits.repeat_force_after", Message: "must not be below repeat_warn_after"}
	}
	if cfg.Limits.RetryDelaySeconds < 0 {
		return ValidationError{Field: "limits.retry_delay_seconds", Message: "must not be negative"}
	}
	if cfg.Limits.BatchTimeoutSeconds <= 0 {
		return ValidationError{Field: "limits.batch_timeout_seconds", Message: "must be positive"}
	}
	if cfg.Verify.TimeoutSeconds <= 0 {
		return ValidationError{Field: "verify.timeout_seconds", Message: "must be positive"}
	}
	if cfg.Verify.LogChars <= 0 {
		return ValidationError{Field: "verify.log_chars", Message: "must be positive"}
	}
	if cfg.LLM.TimeoutSeconds <= 0 {
		return ValidationError{Field: "llm.timeout_seconds", Message: "must be positive"}
	}
	if cfg.Context.SummaryLines < 0 {
		return ValidationError{Field: "context.summary_lines", Message: "must not be negative"}
	}
	return nil
}

// ApplyEnv overrides cfg from SLOTH_* environment variables.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return ValidationError{Field: key, Message: "must be an integer"}
		}
		*dst = n
		return nil
	}
	float := func(key string) (*float32, error) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 32)
		if err != nil {
			return nil, ValidationError{Field: key, Message: "must be a number"}
		}
		f32 := float32(f)
		return &f32, nil
	}

	str("SLOTH_BACKEND", &cfg.LLM.Backend)
	str("SLOTH_MODEL_NAME", &cfg.LLM.Model)
	str("SLOTH_OLLAMA_MODEL", &cfg.LLM.OllamaModel)
	str("SLOTH_VERIFY_CMD", &cfg.Verify.Command)

	for key, dst := range map[string]*int{
		"SLOTH_MAX_ITERATIONS": &cfg.Limits.MaxIterations,
		"SLOTH_VERIFY_TIMEOUT": &cfg.Verify.TimeoutSeconds,
		"SLOTH_LOG_CHARS":      &cfg.Verify.LogChars,
		"SLOTH_API_TIMEOUT":    &cfg.LLM.TimeoutSeconds,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	for key, dst := range map[string]**float32{
		"SLOTH_TEMPERATURE": &cfg.LLM.Temperature,
		"SLOTH_TOP_P":       &cfg.LLM.TopP,
		"SLOTH_TOP_K":       &cfg.LLM.TopK,
	} {
		f, err := float(key)
		if err != nil {
			return err
		}
		if f != nil {
			*dst = f
		}
	}

	var budget int
	if v, ok := lookup("SLOTH_THINKING_BUDGET"); ok && strings.TrimSpace(v) != "" {
		if err := num("SLOTH_THINKING_BUDGET", &budget); err != nil {
			return err
		}
		b := int32(budget)
		cfg.LLM.ThinkingBudget = &b
	}
	return nil
}
