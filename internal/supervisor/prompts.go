package supervisor

import (
	"context"
	"fmt"
	"strings"

	"sloth/internal/cleaner"
	"sloth/internal/collector"
	"sloth/internal/parser"
)

const fence = "```"

// RepeatWarningHeader opens the note added when the same files keep
// changing without progress.
const RepeatWarningHeader = "WARNING: REPEATED EDITS"

// deepAnalysisFrom is the iteration from which prompts ask the model to
// step back instead of patching again.
const deepAnalysisFrom = 4

func (s *Supervisor) contextPrepPrompt(ctx context.Context) (string, error) {
	project, err := s.deps.Context.Gather(ctx, collector.ModeSummary, nil)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	s.writeIntro(&sb)
	s.writeTask(&sb)
	section(&sb, "PROJECT (summarised)", project)
	sb.WriteString("YOUR JOB NOW:\n")
	sb.WriteString("Do not change anything yet. Pick the files whose full content you need to plan this change ")
	fmt.Fprintf(&sb, "and list them, one relative path per line, in a %sfiles block.\n", fence)
	return sb.String(), nil
}

func (s *Supervisor) planningPrompt(ctx context.Context) (string, error) {
	project, err := s.gather(ctx)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	s.writeIntro(&sb)
	s.writeTask(&sb)
	s.writePreviousAttempt(&sb)
	section(&sb, "PROJECT", project)
	sb.WriteString("YOUR JOB NOW:\n")
	fmt.Fprintf(&sb, "If the goal is ambiguous, ask one focused question in a %sclarification block and nothing else.\n", fence)
	fmt.Fprintf(&sb, "Otherwise write a short numbered plan in a %splan block. ", fence)
	fmt.Fprintf(&sb, "You may add a %sfiles block listing files you need in full for the coding steps.\n", fence)
	sb.WriteString("Do not write code in this step.\n")
	return sb.String(), nil
}

func (s *Supervisor) initialCodingPrompt(ctx context.Context) (string, error) {
	project, err := s.gather(ctx)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	s.writeIntro(&sb)
	s.writeRules(&sb)
	s.writeTask(&sb)
	s.writePreviousAttempt(&sb)
	if s.plan != "" {
		section(&sb, "AGREED PLAN", s.plan)
	}
	section(&sb, "PROJECT", project)
	sb.WriteString("YOUR JOB NOW:\n")
	sb.WriteString("Start implementing the goal. Make the first concrete change with write_file blocks or one bash block.\n")
	return sb.String(), nil
}

func (s *Supervisor) reviewPrompt(ctx context.Context) (string, error) {
	project, err := s.gather(ctx)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	s.writeIntro(&sb)
	s.writeRules(&sb)
	s.writeTask(&sb)
	s.writeHistory(&sb)
	s.writeNotes(&sb)
	section(&sb, "PROJECT (current state)", project)
	sb.WriteString("YOUR JOB NOW:\n")
	sb.WriteString("Review the project against the goal. If the goal is fully achieved, reply DONE with a done_summary block. ")
	sb.WriteString("Otherwise make the next change. ")
	fmt.Fprintf(&sb, "Add an empty %sverify_run block when the change should be verified by running the project.\n", fence)
	return sb.String(), nil
}

func (s *Supervisor) fixPrompt(ctx context.Context) (string, error) {
	project, err := s.gather(ctx)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	s.writeIntro(&sb)
	s.writeRules(&sb)
	s.writeTask(&sb)
	s.writeHistory(&sb)
	if s.failure != nil {
		var fb strings.Builder
		fmt.Fprintf(&fb, "Kind: %s\n", s.failure.Kind)
		if s.failure.FailedIdentifier != "" {
			fmt.Fprintf(&fb, "Failed at: %s\n", s.failure.FailedIdentifier)
		}
		fmt.Fprintf(&fb, "Error: %s\n", s.failure.ErrorMessage)
		if len(s.failure.Touched()) > 0 {
			fmt.Fprintf(&fb, "Already applied before the failure: %s\n", strings.Join(s.failure.Touched(), ", "))
		}
		section(&sb, "YOUR LAST ACTION FAILED", fb.String())
	}
	s.writeNotes(&sb)
	section(&sb, "PROJECT (current state)", project)
	sb.WriteString("YOUR JOB NOW:\n")
	sb.WriteString("Find the cause of the failure above and fix it. Do not repeat the exact action that failed.\n")
	return sb.String(), nil
}

func (s *Supervisor) logAnalysisPrompt(ctx context.Context) (string, error) {
	project, err := s.gather(ctx)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	s.writeIntro(&sb)
	s.writeRules(&sb)
	s.writeTask(&sb)
	s.writeHistory(&sb)

	var vb strings.Builder
	if s.lastVerify != nil {
		vb.WriteString(s.lastVerify.String())
		vb.WriteString("\n")
	}
	if s.verifyNote != "" {
		vb.WriteString(s.verifyNote)
		vb.WriteString("\n")
	}
	if s.verdict.Reason != "" {
		status := "problems found"
		if s.verdict.Healthy {
			status = "looks healthy"
		}
		fmt.Fprintf(&vb, "Automatic check: %s (%s)\n", status, s.verdict.Reason)
		for _, e := range s.verdict.Evidence {
			fmt.Fprintf(&vb, "  %s\n", e)
		}
	}
	section(&sb, "VERIFICATION", vb.String())
	s.writeNotes(&sb)
	section(&sb, "PROJECT (current state)", project)
	sb.WriteString("YOUR JOB NOW:\n")
	sb.WriteString("Analyse the verification logs. A command still running at the timeout is normal for servers. ")
	sb.WriteString("If the logs show the goal is achieved, reply DONE with a done_summary block; otherwise fix what the logs point at.\n")
	return sb.String(), nil
}

func (s *Supervisor) gather(ctx context.Context) (string, error) {
	if s.opts.Fast {
		return s.deps.Context.Gather(ctx, collector.ModeFull, nil)
	}
	return s.deps.Context.Gather(ctx, collector.ModeSummary, s.fullFiles)
}

func (s *Supervisor) writeIntro(sb *strings.Builder) {
	sb.WriteString("You are a senior software engineer working directly inside the user's project. ")
	sb.WriteString("Everything you write in the blocks below is applied to the files on disk.\n\n")
}

func (s *Supervisor) writeRules(sb *strings.Builder) {
	b := s.opts.Boundary
	var rb strings.Builder
	rb.WriteString("Write a full file (the whole new content, never a diff):\n")
	fmt.Fprintf(&rb, "%swrite_file path=\"relative/path.ext\" boundary=\"%s\"\n<file content>\n%s\n%s\n", fence, b, b, fence)
	fmt.Fprintf(&rb, "The line with exactly %s ends the file content, so the content may contain fences.\n\n", b)
	fmt.Fprintf(&rb, "Run commands (one %sbash block per reply, run from the project root, stops at the first error):\n", fence)
	fmt.Fprintf(&rb, "%sbash\nmkdir -p src\n%s\n", fence, fence)
	rb.WriteString("write_file blocks take precedence: if a reply has both, the bash block is ignored.\n\n")
	rb.WriteString(parser.DefaultRegistry().GeneratePromptPart())
	rb.WriteString("\n")
	rb.WriteString("Paths are relative to the project root and may only use letters, digits, _ - . and /. ")
	rb.WriteString("Absolute paths, ~ and .. are rejected.\n")
	if len(s.opts.AllowedCommands) > 0 {
		fmt.Fprintf(&rb, "Commands must start with one of: %s. ", strings.Join(s.opts.AllowedCommands, ", "))
		rb.WriteString("A line may begin with \"cd <subdir> && \". Command substitution is rejected and the whole batch is refused.\n")
	}
	fmt.Fprintf(&rb, "Temporary debug output you add to the code must carry %s on the same line, so it can be removed later.\n", cleaner.DefaultTag)
	fmt.Fprintf(&rb, "When the goal is achieved reply with %s on the first line and a done_summary block.\n", parser.CompletionMarker)
	section(sb, "RESPONSE FORMAT", rb.String())
}

func (s *Supervisor) writeTask(sb *strings.Builder) {
	section(sb, "TASK", s.task.String())
}

func (s *Supervisor) writePreviousAttempt(sb *strings.Builder) {
	prev := s.opts.PreviousAttempt
	if prev == nil {
		return
	}
	var pb strings.Builder
	pb.WriteString("A previous run tried this and the user reports it is still wrong.\n")
	fmt.Fprintf(&pb, "Previous goal: %s\n", prev.InitialGoal)
	fmt.Fprintf(&pb, "What it claimed to have done: %s\n", orDash(prev.SolutionSummary))
	pb.WriteString("Do not assume that solution works; find what it got wrong.\n")
	section(sb, "PREVIOUS ATTEMPT", pb.String())
}

func (s *Supervisor) writeHistory(sb *strings.Builder) {
	if len(s.attempts) == 0 {
		return
	}
	recent := s.attempts
	if len(recent) > maxHistoryInPrompt {
		recent = recent[len(recent)-maxHistoryInPrompt:]
	}
	var hb strings.Builder
	for _, a := range recent {
		hb.WriteString(a.String())
	}
	section(sb, "WHAT HAS BEEN TRIED", hb.String())
}

// writeNotes adds the one-shot notes: the missing-action note, the deep
// analysis nudge and the repeat-edit warning.
func (s *Supervisor) writeNotes(sb *strings.Builder) {
	var notes []string
	if s.note != "" {
		notes = append(notes, s.note)
	}
	if s.iteration >= deepAnalysisFrom {
		notes = append(notes, fmt.Sprintf(
			"This is iteration %d and the goal is still open. Step back and analyse the root cause more deeply before changing anything.",
			s.iteration))
	}
	if s.guard.Warning() {
		notes = append(notes, fmt.Sprintf(
			"%s: the last %d iterations all changed the same files (%s) without finishing the goal. "+
				"Another small edit to them is unlikely to help. Rethink the approach or request verification with a verify_run block.",
			RepeatWarningHeader, s.guard.Streak(), strings.Join(s.guard.Files(), ", ")))
	}
	if len(notes) == 0 {
		return
	}
	section(sb, "NOTES", strings.Join(notes, "\n"))
}

func section(sb *strings.Builder, title, body string) {
	fmt.Fprintf(sb, "=== %s ===\n", title)
	sb.WriteString(strings.TrimRight(body, "\n"))
	sb.WriteString("\n\n")
}
