package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MaxAttempts bounds how many finished runs are remembered.
const MaxAttempts = 10

// Attempt is a finished run as it is offered back to the model in fix mode.
type Attempt struct {
	ProjectRoot     string    `json:"project_root,omitempty"`
	InitialGoal     string    `json:"initial_goal"`
	SolutionSummary string    `json:"solution_summary"`
	FinishedAt      time.Time `json:"finished_at,omitzero"`
}

// RunConfig is what a fix run needs to resume where the last run left off.
type RunConfig struct {
	ProjectRoot   string `json:"project_root"`
	Fast          bool   `json:"fast"`
	VerifyCommand string `json:"verify_command,omitempty"`
}

type History struct {
	RunConfig        *RunConfig `json:"run_config,omitempty"`
	PreviousAttempts []Attempt  `json:"previous_attempts"`
}

// Store persists History as JSON under a base directory.
type Store struct {
	basePath string
}

// NewStore creates a Store rooted at basePath.
func NewStore(basePath string) *Store {
	return &Store{basePath: basePath}
}

// DefaultStore keeps history in the user's config directory, so fix runs
// can find the last project without being told where it is.
func DefaultStore() (*Store, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate config directory: %w", err)
	}
	return NewStore(filepath.Join(dir, "sloth")), nil
}

func (s *Store) Path() string {
	return filepath.Join(s.basePath, "history.json")
}

// Load returns the stored history, or an empty one if nothing is stored.
func (s *Store) Load() (*History, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &History{}, nil
		}
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to parse history file: %w", err)
	}
	return &h, nil
}

func (s *Store) Save(h *History) error {
	if err := os.MkdirAll(s.basePath, 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	tmp := s.Path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	if err := os.Rename(tmp, s.Path()); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	return nil
}

func (s *Store) SaveRunConfig(rc RunConfig) error {
	h, err := s.Load()
	if err != nil {
		return err
	}
	h.RunConfig = &rc
	return s.Save(h)
}

// AddAttempt records a finished run, newest first.
func (s *Store) AddAttempt(a Attempt) error {
	h, err := s.Load()
	if err != nil {
		return err
	}
	if a.FinishedAt.IsZero() {
		a.FinishedAt = time.Now()
	}
	h.PreviousAttempts = append([]Attempt{a}, h.PreviousAttempts...)
	if len(h.PreviousAttempts) > MaxAttempts {
		h.PreviousAttempts = h.PreviousAttempts[:MaxAttempts]
	}
	return s.Save(h)
}

// LastAttemptFor returns the newest attempt made in projectRoot, or nil.
func (h *History) LastAttemptFor(projectRoot string) *Attempt {
	root := filepath.Clean(projectRoot)
	for _, a := range h.PreviousAttempts {
		if a.ProjectRoot != "" && filepath.Clean(a.ProjectRoot) == root {
			found := a
			return &found
		}
	}
	return nil
}
