package config

import "time"

// Config is the contents of .sloth/config.yaml after defaults,
// environment overrides and command-line flags are applied.
type Config struct {
	Limits   Limits   `yaml:"limits"`
	Verify   Verify   `yaml:"verify"`
	LLM      LLM      `yaml:"llm"`
	Commands Commands `yaml:"commands"`
	Context  Context  `yaml:"context"`
}

type Limits struct {
	MaxIterations       int     `yaml:"max_iterations"`
	RepeatWarnAfter     int     `yaml:"repeat_warn_after"`
	RepeatForceAfter    int     `yaml:"repeat_force_after"`
	RetryDelaySeconds   float64 `yaml:"retry_delay_seconds"`
	BatchTimeoutSeconds int     `yaml:"batch_timeout_seconds"`
}

func (l Limits) RetryDelay() time.Duration {
	return time.Duration(l.RetryDelaySeconds * float64(time.Second))
}

func (l Limits) BatchTimeout() time.Duration {
	return time.Duration(l.BatchTimeoutSeconds) * time.Second
}

type Verify struct {
	Command        string `yaml:"command"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	LogChars       int    `yaml:"log_chars"`
}

func (v Verify) Timeout() time.Duration {
	return time.Duration(v.TimeoutSeconds) * time.Second
}

type LLM struct {
	Backend        string   `yaml:"backend"`
	Fallbacks      []string `yaml:"fallbacks"`
	Model          string   `yaml:"model"`
	OllamaModel    string   `yaml:"ollama_model"`
	OllamaHost     string   `yaml:"ollama_host"`
	Project        string   `yaml:"project"`
	Location       string   `yaml:"location"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Temperature    *float32 `yaml:"temperature"`
	TopP           *float32 `yaml:"top_p"`
	TopK           *float32 `yaml:"top_k"`
	ThinkingBudget *int32   `yaml:"thinking_budget"`
}

func (l LLM) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

type Commands struct {
	// Allowed extends the built-in shell whitelist.
	Allowed []string `yaml:"allowed"`
}

type Context struct {
	SummaryLines int   `yaml:"summary_lines"`
	MaxFileBytes int64 `yaml:"max_file_bytes"`
}
