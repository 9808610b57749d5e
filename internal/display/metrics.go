package display

import (
	"fmt"
	"strings"

	"sloth/internal/metrics"
)

func FormatRunMetrics(rm *metrics.RunMetrics) string {
	if rm == nil {
		return "No metrics available."
	}
	in, out := rm.Tokens()
	var sb strings.Builder
	sb.WriteString("Run metrics:\n")
	sb.WriteString(fmt.Sprintf("- Run %s: %d ms, %d iteration(s), exit=%s\n", rm.RunID, rm.DurationMs, len(rm.Iterations), rm.Exit))
	sb.WriteString(fmt.Sprintf("- Tokens: %d in / %d out\n", in, out))
	for _, m := range rm.Iterations {
		status := "ok"
		if !m.Success {
			status = "err"
		}
		sb.WriteString(fmt.Sprintf("  #%-3d %-16s %-12s %7d ms %7d/%-6d tok  [%s]\n",
			m.Iteration, m.State, m.Action, m.DurationMs, m.InputTokens, m.OutputTokens, status))
	}
	return sb.String()
}
