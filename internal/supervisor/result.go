package supervisor

import "sloth/internal/metrics"

// ExitReason is why the loop stopped.
type ExitReason int

const (
	ExitDone ExitReason = iota
	ExitBudgetExhausted
	ExitInterrupted
	ExitServiceUnavailable
	ExitCrash
)

func (r ExitReason) String() string {
	switch r {
	case ExitDone:
		return "DONE"
	case ExitBudgetExhausted:
		return "BUDGET EXHAUSTED"
	case ExitInterrupted:
		return "INTERRUPTED"
	case ExitServiceUnavailable:
		return "MODEL UNAVAILABLE"
	case ExitCrash:
		return "CRASHED"
	default:
		return "UNKNOWN"
	}
}

type Result struct {
	Reason     ExitReason
	Iterations int
	Summary    string
	Manual     []string
	Attempts   []Attempt
	Metrics    *metrics.RunMetrics
	Err        error
}
