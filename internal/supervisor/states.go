package supervisor

import (
	"context"

	"sloth/internal/metrics"
)

// State is one step of the iteration loop.
type State int

const (
	StateContextPrep State = iota
	StatePlanning
	StateInitialCoding
	StateReviewing
	StateFixingError
	StateAnalyzingLogs
	StateDone
)

func (s State) String() string {
	switch s {
	case StateContextPrep:
		return "CONTEXT_PREP"
	case StatePlanning:
		return "PLANNING"
	case StateInitialCoding:
		return "INITIAL_CODING"
	case StateReviewing:
		return "REVIEWING"
	case StateFixingError:
		return "FIXING_ERROR"
	case StateAnalyzingLogs:
		return "ANALYZING_LOGS"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

type stateHandler struct {
	prompt func(ctx context.Context) (string, error)
	handle func(ctx context.Context, reply string, im *metrics.IterationMetrics) (State, error)
}

// dispatchTable maps every non-terminal state to its prompt builder and
// reply handler. Run treats a state without an entry as a crash.
func (s *Supervisor) dispatchTable() map[State]stateHandler {
	return map[State]stateHandler{
		StateContextPrep:   {prompt: s.contextPrepPrompt, handle: s.handleContextPrep},
		StatePlanning:      {prompt: s.planningPrompt, handle: s.handlePlanning},
		StateInitialCoding: {prompt: s.initialCodingPrompt, handle: s.handleAction},
		StateReviewing:     {prompt: s.reviewPrompt, handle: s.handleAction},
		StateFixingError:   {prompt: s.fixPrompt, handle: s.handleAction},
		StateAnalyzingLogs: {prompt: s.logAnalysisPrompt, handle: s.handleAction},
	}
}
