package supervisor

import (
	"fmt"
	"strings"
)

// Task is the operator's request. Only clarification answers are added
// after the run starts.
type Task struct {
	Goal           string
	ErrorLog       string
	clarifications []clarification
}

type clarification struct {
	question string
	answer   string
}

func NewTask(goal, errorLog string) *Task {
	return &Task{Goal: strings.TrimSpace(goal), ErrorLog: strings.TrimSpace(errorLog)}
}

func (t *Task) AddClarification(question, answer string) {
	t.clarifications = append(t.clarifications, clarification{
		question: strings.TrimSpace(question),
		answer:   strings.TrimSpace(answer),
	})
}

func (t *Task) String() string {
	var sb strings.Builder
	sb.WriteString("GOAL:\n")
	sb.WriteString(t.Goal)
	sb.WriteString("\n")
	if t.ErrorLog != "" {
		sb.WriteString("\n--- ERROR LOG ---\n")
		sb.WriteString(t.ErrorLog)
		sb.WriteString("\n--- END ERROR LOG ---\n")
	}
	for i, c := range t.clarifications {
		fmt.Fprintf(&sb, "\nCLARIFICATION %d\nQ: %s\nA: %s\n", i+1, c.question, c.answer)
	}
	return sb.String()
}

// Attempt records what one iteration tried and what came of it.
type Attempt struct {
	Iteration    int
	State        string
	Strategy     string
	Action       string
	Success      bool
	ChangedFiles []string
	CreatedPaths []string
	DeletedPaths []string
	Error        string
	Verification string
}

func (a Attempt) String() string {
	var sb strings.Builder
	status := "success"
	if !a.Success {
		status = "FAILED"
	}
	fmt.Fprintf(&sb, "Iteration %d (%s, %s): %s\n", a.Iteration, a.State, orDash(a.Action), status)
	if a.Strategy != "" {
		fmt.Fprintf(&sb, "  strategy: %s\n", a.Strategy)
	}
	if len(a.ChangedFiles) > 0 {
		fmt.Fprintf(&sb, "  changed: %s\n", strings.Join(a.ChangedFiles, ", "))
	}
	if len(a.CreatedPaths) > 0 {
		fmt.Fprintf(&sb, "  created: %s\n", strings.Join(a.CreatedPaths, ", "))
	}
	if len(a.DeletedPaths) > 0 {
		fmt.Fprintf(&sb, "  deleted: %s\n", strings.Join(a.DeletedPaths, ", "))
	}
	if a.Error != "" {
		fmt.Fprintf(&sb, "  error: %s\n", a.Error)
	}
	if a.Verification != "" {
		fmt.Fprintf(&sb, "  verification: %s\n", a.Verification)
	}
	return sb.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
