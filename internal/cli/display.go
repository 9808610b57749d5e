package cli

import (
	"fmt"
	"strings"

	"sloth/internal/display"
	"sloth/internal/supervisor"
	"sloth/internal/utils"
)

// printReport prints the summary, manual steps and metrics, and last of
// all the single status line.
func printReport(out *display.Printer, res supervisor.Result) {
	if res.Summary != "" {
		out.Block("Summary", res.Summary)
	}
	if len(res.Manual) > 0 {
		out.Block("Manual steps required", strings.Join(res.Manual, "\n\n"))
	}
	out.Info("%s", display.FormatRunMetrics(res.Metrics))
	out.Info("%s", display.StatusLine(res.Reason == supervisor.ExitDone, res.Reason.String(), statusDetail(res)))
}

func statusDetail(res supervisor.Result) string {
	switch res.Reason {
	case supervisor.ExitDone:
		return fmt.Sprintf("goal reached in %d iteration(s)", res.Iterations)
	case supervisor.ExitBudgetExhausted:
		return fmt.Sprintf("stopped after %d iteration(s) without reaching the goal", res.Iterations)
	case supervisor.ExitInterrupted:
		return "interrupted by user"
	case supervisor.ExitServiceUnavailable:
		return "no model service could be reached: " + errText(res.Err)
	default:
		return "run crashed: " + errText(res.Err)
	}
}

// errText keeps the final status on one line.
func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return utils.OneLine(err.Error())
}

func notificationText(res supervisor.Result) string {
	return res.Reason.String() + ": " + statusDetail(res)
}
