package metrics

import "time"

type IterationMetrics struct {
	Iteration    int       `json:"iteration"`
	State        string    `json:"state"`
	Provider     string    `json:"provider,omitempty"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	DurationMs   int64     `json:"duration_ms"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Action       string    `json:"action,omitempty"`
	Success      bool      `json:"success"`
	Err          string    `json:"err,omitempty"`
}

type RunMetrics struct {
	RunID      string             `json:"run_id"`
	Start      time.Time          `json:"start"`
	End        time.Time          `json:"end"`
	DurationMs int64              `json:"duration_ms"`
	Exit       string             `json:"exit"`
	Iterations []IterationMetrics `json:"iterations"`
}

// Compute derived fields for an iteration.
func (m *IterationMetrics) Finalize() {
	m.DurationMs = m.End.Sub(m.Start).Milliseconds()
}

func (r *RunMetrics) Add(m IterationMetrics) {
	r.Iterations = append(r.Iterations, m)
}

func (r *RunMetrics) Finalize(exit string) {
	r.End = time.Now()
	r.DurationMs = r.End.Sub(r.Start).Milliseconds()
	r.Exit = exit
}

// Tokens sums input and output tokens over all iterations.
func (r *RunMetrics) Tokens() (in, out int) {
	for _, m := range r.Iterations {
		in += m.InputTokens
		out += m.OutputTokens
	}
	return in, out
}
