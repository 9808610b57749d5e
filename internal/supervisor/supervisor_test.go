package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sloth/internal/cleaner"
	"sloth/internal/collector"
	"sloth/internal/executor"
	"sloth/internal/history"
	"sloth/internal/llm_client"
	"sloth/internal/sandbox"
	"sloth/internal/verify"
)

const testBoundary = "SLOTH_BOUNDARY_test"

type scriptedModel struct {
	replies []string
	errs    []error
	prompts []string
}

func (m *scriptedModel) Query(ctx context.Context, prompt string) (llm_client.Reply, error) {
	i := len(m.prompts)
	m.prompts = append(m.prompts, prompt)
	if err := ctx.Err(); err != nil {
		return llm_client.Reply{}, err
	}
	if i < len(m.errs) && m.errs[i] != nil {
		return llm_client.Reply{}, m.errs[i]
	}
	text := "Let me think about this some more."
	if i < len(m.replies) {
		text = m.replies[i]
	}
	return llm_client.Reply{Text: text, Provider: "fake", InputTokens: 100, OutputTokens: 20}, nil
}

type scriptedAsker struct {
	answers   []string
	err       error
	questions []string
}

func (a *scriptedAsker) Ask(question string) (string, error) {
	a.questions = append(a.questions, question)
	if a.err != nil {
		return "", a.err
	}
	if len(a.answers) == 0 {
		return "", nil
	}
	ans := a.answers[0]
	a.answers = a.answers[1:]
	return ans, nil
}

func newProject(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "proj")
	require.NoError(t, os.MkdirAll(root, 0o755))
	return root
}

func newTestSupervisor(t *testing.T, root string, model Querier, opts Options, deps Deps) *Supervisor {
	t.Helper()
	opts.Root = root
	opts.Boundary = testBoundary
	if opts.MaxIterations == 0 {
		opts.MaxIterations = 10
	}
	if opts.RepeatWarnAfter == 0 {
		opts.RepeatWarnAfter = 3
	}
	if opts.RepeatForceAfter == 0 {
		opts.RepeatForceAfter = 4
	}
	deps.Model = model
	if deps.Context == nil {
		deps.Context = collector.New(root, 40, 200000)
	}
	if deps.Actions == nil {
		deps.Actions = executor.New(root, sandbox.NewGate())
	}
	return New(NewTask("test goal", ""), opts, deps)
}

func writeFileBlock(path, content string) string {
	return fmt.Sprintf("```write_file path=%q boundary=%q\n%s\n%s\n```\n", path, testBoundary, content, testBoundary)
}

func block(kind, body string) string {
	return fmt.Sprintf("```%s\n%s\n```\n", kind, body)
}

func readProjectFile(t *testing.T, root, rel string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(b)
}

func TestRunWritesFileAndFinishes(t *testing.T) {
	root := newProject(t)
	model := &scriptedModel{replies: []string{
		"Creating the file.\n" + writeFileBlock("src/hello.txt", "hi") + block("done_summary", "created src/hello.txt"),
	}}
	s := newTestSupervisor(t, root, model, Options{Fast: true}, Deps{})

	res := s.Run(context.Background())

	require.Equal(t, ExitDone, res.Reason, res.Err)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, "hi", readProjectFile(t, root, "src/hello.txt"))
	assert.Equal(t, "created src/hello.txt", res.Summary)
	require.Len(t, res.Attempts, 1)
	assert.True(t, res.Attempts[0].Success)
	assert.Equal(t, []string{"src/hello.txt"}, res.Attempts[0].CreatedPaths)
}

func TestRunRejectsPathOutsideRoot(t *testing.T) {
	root := newProject(t)
	model := &scriptedModel{replies: []string{writeFileBlock("../../etc/passwd", "owned")}}
	s := newTestSupervisor(t, root, model, Options{Fast: true, MaxIterations: 2}, Deps{})

	res := s.Run(context.Background())

	assert.Equal(t, ExitBudgetExhausted, res.Reason)
	assert.Equal(t, StateFixingError.String(), res.Metrics.Iterations[1].State)
	require.NotEmpty(t, res.Attempts)
	assert.False(t, res.Attempts[0].Success)
	assert.Contains(t, res.Attempts[0].Error, "parent directory segment")

	_, err := os.Stat(filepath.Join(filepath.Dir(filepath.Dir(root)), "etc", "passwd"))
	assert.True(t, os.IsNotExist(err))

	require.Len(t, model.prompts, 2)
	assert.Contains(t, model.prompts[1], "YOUR LAST ACTION FAILED")
	assert.Contains(t, model.prompts[1], "../../etc/passwd")
}

func TestRunRejectsCommandOutsideWhitelist(t *testing.T) {
	root := newProject(t)
	model := &scriptedModel{replies: []string{block("bash", "touch ok.txt\ncurl http://evil.example")}}
	s := newTestSupervisor(t, root, model, Options{Fast: true, MaxIterations: 1}, Deps{})

	res := s.Run(context.Background())

	assert.Equal(t, ExitBudgetExhausted, res.Reason)
	assert.Equal(t, StateFixingError, s.state)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, "bash", res.Attempts[0].Action)
	assert.Contains(t, res.Attempts[0].Error, "curl")
	require.NotNil(t, s.failure)
	assert.Equal(t, executor.FailureCommandRejected, s.failure.Kind)

	_, err := os.Stat(filepath.Join(root, "ok.txt"))
	assert.True(t, os.IsNotExist(err), "no line of a rejected batch runs")
}

func TestRunReportsNoOpAsFailure(t *testing.T) {
	root := newProject(t)
	model := &scriptedModel{replies: []string{
		writeFileBlock("a.txt", "same"),
		writeFileBlock("a.txt", "same"),
	}}
	s := newTestSupervisor(t, root, model, Options{Fast: true, MaxIterations: 2}, Deps{})

	res := s.Run(context.Background())

	require.Len(t, res.Attempts, 2)
	assert.True(t, res.Attempts[0].Success)
	assert.False(t, res.Attempts[1].Success)
	assert.Equal(t, StateFixingError, s.state)
	assert.Equal(t, executor.FailureNoOp, s.failure.Kind)
}

func TestRunWarnsThenForcesVerificationOnRepeatedEdits(t *testing.T) {
	root := newProject(t)
	model := &scriptedModel{replies: []string{
		writeFileBlock("a.txt", "v1"),
		writeFileBlock("a.txt", "v2"),
		writeFileBlock("a.txt", "v3"),
		writeFileBlock("a.txt", "v4"),
		"DONE\n" + block("done_summary", "settled on v4"),
	}}
	s := newTestSupervisor(t, root, model, Options{Fast: true}, Deps{})

	res := s.Run(context.Background())

	require.Equal(t, ExitDone, res.Reason, res.Err)
	require.Len(t, model.prompts, 5)
	assert.NotContains(t, model.prompts[2], RepeatWarningHeader)
	assert.Contains(t, model.prompts[3], RepeatWarningHeader)
	assert.Contains(t, model.prompts[3], "a.txt")

	assert.Equal(t, StateAnalyzingLogs.String(), res.Metrics.Iterations[4].State)
	assert.Contains(t, model.prompts[4], "No verification command is configured")
	assert.NotContains(t, model.prompts[4], RepeatWarningHeader)
	assert.Equal(t, "v4", readProjectFile(t, root, "a.txt"))
}

func TestRunStalledReplyGoesToReview(t *testing.T) {
	root := newProject(t)
	model := &scriptedModel{}
	s := newTestSupervisor(t, root, model, Options{Fast: true, MaxIterations: 3}, Deps{})

	res := s.Run(context.Background())

	assert.Equal(t, ExitBudgetExhausted, res.Reason)
	assert.Equal(t, 3, res.Iterations)
	assert.Len(t, model.prompts, 3)
	assert.Contains(t, model.prompts[1], "contained no write_file")
	for _, it := range res.Metrics.Iterations[1:] {
		assert.Equal(t, StateReviewing.String(), it.State)
	}
}

func TestRunWriteFileTakesPrecedenceOverBash(t *testing.T) {
	root := newProject(t)
	model := &scriptedModel{replies: []string{
		writeFileBlock("a.txt", "a") + block("bash", "touch b.txt") + "DONE",
	}}
	s := newTestSupervisor(t, root, model, Options{Fast: true, MaxIterations: 2}, Deps{})

	s.Run(context.Background())

	assert.Equal(t, "a", readProjectFile(t, root, "a.txt"))
	_, err := os.Stat(filepath.Join(root, "b.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunFailedActionIsNotDone(t *testing.T) {
	root := newProject(t)
	model := &scriptedModel{replies: []string{
		block("bash", "mv missing.txt b.txt") + block("done_summary", "moved"),
	}}
	s := newTestSupervisor(t, root, model, Options{Fast: true, MaxIterations: 1}, Deps{})

	res := s.Run(context.Background())

	assert.Equal(t, ExitBudgetExhausted, res.Reason)
	assert.Equal(t, StateFixingError, s.state)
	assert.Empty(t, res.Summary)
}

func TestRunCollectsManualSteps(t *testing.T) {
	root := newProject(t)
	model := &scriptedModel{replies: []string{
		writeFileBlock(".env.example", "KEY=") + block("manual", "Put your API key in .env") + block("done_summary", "ok"),
	}}
	s := newTestSupervisor(t, root, model, Options{Fast: true}, Deps{})

	res := s.Run(context.Background())

	require.Equal(t, ExitDone, res.Reason)
	assert.Equal(t, []string{"Put your API key in .env"}, res.Manual)
}

func TestRunPlannedModeWithClarification(t *testing.T) {
	root := newProject(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("package main\n"), 0o644))

	model := &scriptedModel{replies: []string{
		block("files", "src/main.go\n../secret\n- src/main.go"),
		block("clarification", "Which colour should the button be?"),
		block("plan", "1. change the colour") + block("files", "src/main.go"),
		writeFileBlock("src/main.go", "package main\n\n// blue\n") + block("done_summary", "button is blue"),
	}}
	asker := &scriptedAsker{answers: []string{"blue"}}
	s := newTestSupervisor(t, root, model, Options{}, Deps{Asker: asker})

	res := s.Run(context.Background())

	require.Equal(t, ExitDone, res.Reason, res.Err)
	assert.Equal(t, 4, res.Iterations)
	assert.Equal(t, []string{"src/main.go"}, s.fullFiles)
	assert.Len(t, asker.questions, 1)

	var states []string
	for _, it := range res.Metrics.Iterations {
		states = append(states, it.State)
	}
	assert.Equal(t, []string{"CONTEXT_PREP", "PLANNING", "PLANNING", "INITIAL_CODING"}, states)

	assert.Contains(t, model.prompts[2], "Which colour should the button be?")
	assert.Contains(t, model.prompts[2], "A: blue")
	assert.Contains(t, model.prompts[3], "1. change the colour")

	plan, err := os.ReadFile(filepath.Join(root, ".sloth", "plan.md"))
	require.NoError(t, err)
	assert.Equal(t, "1. change the colour\n", string(plan))
}

func TestRunPlanningWithoutPlanRetries(t *testing.T) {
	root := newProject(t)
	model := &scriptedModel{replies: []string{"", "I would start by reading the code."}}
	s := newTestSupervisor(t, root, model, Options{MaxIterations: 3}, Deps{})

	res := s.Run(context.Background())

	assert.Equal(t, ExitBudgetExhausted, res.Reason)
	assert.Equal(t, StatePlanning, s.state)
}

func TestRunClarificationAbortedByOperator(t *testing.T) {
	root := newProject(t)
	model := &scriptedModel{replies: []string{"", block("clarification", "Which file?")}}
	asker := &scriptedAsker{err: errors.New("input interrupted")}
	s := newTestSupervisor(t, root, model, Options{}, Deps{Asker: asker})

	res := s.Run(context.Background())

	assert.Equal(t, ExitInterrupted, res.Reason)
	assert.ErrorIs(t, res.Err, ErrAborted)
}

func TestRunRetriesAfterQueryFailure(t *testing.T) {
	root := newProject(t)
	model := &scriptedModel{
		errs:    []error{fmt.Errorf("%w: quota exceeded", llm_client.ErrQueryFailed)},
		replies: []string{"", "DONE"},
	}
	s := newTestSupervisor(t, root, model, Options{Fast: true}, Deps{})

	res := s.Run(context.Background())

	require.Equal(t, ExitDone, res.Reason)
	assert.Equal(t, 2, res.Iterations)
	assert.Contains(t, res.Metrics.Iterations[0].Err, "quota exceeded")
	assert.Equal(t, StateInitialCoding.String(), res.Metrics.Iterations[1].State)
}

func TestRunStopsWhenNoServiceIsLeft(t *testing.T) {
	root := newProject(t)
	model := &scriptedModel{errs: []error{llm_client.ErrNoService}}
	s := newTestSupervisor(t, root, model, Options{Fast: true}, Deps{})

	res := s.Run(context.Background())

	assert.Equal(t, ExitServiceUnavailable, res.Reason)
	assert.ErrorIs(t, res.Err, llm_client.ErrNoService)
	assert.Equal(t, 1, res.Iterations)
}

func TestRunInterrupted(t *testing.T) {
	root := newProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	model := &scriptedModel{}
	s := newTestSupervisor(t, root, model, Options{Fast: true}, Deps{})

	res := s.Run(ctx)

	assert.Equal(t, ExitInterrupted, res.Reason)
	assert.Equal(t, 0, res.Iterations)
	assert.Empty(t, model.prompts)
}

func TestRunMissingDispatchEntryCrashes(t *testing.T) {
	root := newProject(t)
	model := &scriptedModel{replies: []string{writeFileBlock("a.txt", "a")}}
	s := newTestSupervisor(t, root, model, Options{Fast: true}, Deps{})
	delete(s.table, StateReviewing)

	res := s.Run(context.Background())

	assert.Equal(t, ExitCrash, res.Reason)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "REVIEWING")
}

func TestRunIterationCounterAlwaysAdvances(t *testing.T) {
	root := newProject(t)
	errs := make([]error, 5)
	for i := range errs {
		errs[i] = llm_client.ErrQueryFailed
	}
	model := &scriptedModel{errs: errs}
	s := newTestSupervisor(t, root, model, Options{Fast: true, MaxIterations: 5}, Deps{})

	res := s.Run(context.Background())

	assert.Equal(t, ExitBudgetExhausted, res.Reason)
	require.Len(t, res.Metrics.Iterations, 5)
	for i, it := range res.Metrics.Iterations {
		assert.Equal(t, i+1, it.Iteration)
	}
}

func TestPromptsCarryPreviousAttemptAndDeepAnalysisNote(t *testing.T) {
	root := newProject(t)
	model := &scriptedModel{}
	prev := &history.Attempt{InitialGoal: "add login", SolutionSummary: "added a login form"}
	s := newTestSupervisor(t, root, model, Options{Fast: true, MaxIterations: 4, PreviousAttempt: prev}, Deps{})

	s.Run(context.Background())

	require.Len(t, model.prompts, 4)
	assert.Contains(t, model.prompts[0], "PREVIOUS ATTEMPT")
	assert.Contains(t, model.prompts[0], "added a login form")
	assert.NotContains(t, model.prompts[2], "This is iteration")
	assert.Contains(t, model.prompts[3], "This is iteration 4")
	assert.Contains(t, model.prompts[0], testBoundary)
	assert.Contains(t, model.prompts[0], cleaner.DefaultTag+" on the same line")
}

type stubVerifier struct {
	result verify.Result
	calls  []string
}

func (v *stubVerifier) Run(ctx context.Context, command string) (verify.Result, error) {
	v.calls = append(v.calls, command)
	r := v.result
	r.Command = command
	return r, nil
}

func TestRunVerifyRunRequest(t *testing.T) {
	testCases := []struct {
		name       string
		command    string
		result     verify.Result
		wantState  State
		wantCalls  int
		wantPrompt string
	}{
		{
			name:       "Configured command with errors in the logs",
			command:    "npm test",
			result:     verify.Result{ExitCode: 1, Stderr: "Error: cannot find module 'x'"},
			wantState:  StateAnalyzingLogs,
			wantCalls:  1,
			wantPrompt: "problems found",
		},
		{
			name:       "Configured command that passes",
			command:    "npm test",
			result:     verify.Result{ExitCode: 0, Stdout: "all good"},
			wantState:  StateAnalyzingLogs,
			wantCalls:  1,
			wantPrompt: "looks healthy",
		},
		{
			name:       "No command configured",
			wantState:  StateReviewing,
			wantPrompt: "no verification command is configured",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			root := newProject(t)
			model := &scriptedModel{replies: []string{writeFileBlock("a.txt", "a") + block("verify_run", "")}}
			v := &stubVerifier{result: tc.result}
			s := newTestSupervisor(t, root, model, Options{Fast: true, MaxIterations: 2, VerifyCommand: tc.command}, Deps{Verifier: v})

			res := s.Run(context.Background())

			assert.Equal(t, tc.wantState.String(), res.Metrics.Iterations[1].State)
			assert.Len(t, v.calls, tc.wantCalls)
			require.Len(t, model.prompts, 2)
			assert.Contains(t, model.prompts[1], tc.wantPrompt)
		})
	}
}

func TestRunHonoursRetryDelayCancellation(t *testing.T) {
	root := newProject(t)
	model := &scriptedModel{errs: []error{llm_client.ErrQueryFailed}}
	s := newTestSupervisor(t, root, model, Options{Fast: true, RetryDelay: time.Hour}, Deps{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	res := s.Run(ctx)

	assert.Equal(t, ExitInterrupted, res.Reason)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestTaskString(t *testing.T) {
	task := NewTask("  make it blue  ", "TypeError: x is undefined\n")
	task.AddClarification("Which shade?", " navy ")
	got := task.String()
	assert.True(t, strings.HasPrefix(got, "GOAL:\nmake it blue\n"))
	assert.Contains(t, got, "--- ERROR LOG ---\nTypeError: x is undefined\n--- END ERROR LOG ---")
	assert.Contains(t, got, "Q: Which shade?\nA: navy")
}
