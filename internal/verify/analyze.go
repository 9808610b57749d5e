package verify

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	errorPattern = regexp.MustCompile(`(?i)(\berror\b|\bexception\b|traceback \(most recent call last\)|\bpanic:|\bfatal\b|\bfailed\b|\bunhandled\b|segmentation fault|cannot find module)`)
	benignCount  = regexp.MustCompile(`(?i)\b(0|no) (errors?|failures?|failed)\b`)
)

const maxEvidence = 5

// Verdict is the simple-mode judgement of a verification run.
type Verdict struct {
	Healthy  bool
	Reason   string
	Evidence []string
}

// Analyze treats a run as healthy when its logs carry no error patterns
// and it either exited 0 or was still running when the timeout hit.
func Analyze(r Result) Verdict {
	var evidence []string
	for _, stream := range []string{r.Stderr, r.Stdout} {
		for _, line := range strings.Split(stream, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || benignCount.MatchString(line) {
				continue
			}
			if errorPattern.MatchString(line) {
				evidence = append(evidence, line)
				if len(evidence) == maxEvidence {
					break
				}
			}
		}
		if len(evidence) == maxEvidence {
			break
		}
	}

	switch {
	case len(evidence) > 0:
		return Verdict{Reason: fmt.Sprintf("%d error line(s) in the logs", len(evidence)), Evidence: evidence}
	case r.Interrupted:
		return Verdict{Reason: "verification was interrupted"}
	case r.TimedOut:
		return Verdict{Healthy: true, Reason: "still running at timeout with no errors in the logs"}
	case r.ExitCode == 0:
		return Verdict{Healthy: true, Reason: "exited 0 with no errors in the logs"}
	default:
		return Verdict{Reason: fmt.Sprintf("exited with code %d", r.ExitCode)}
	}
}
