//go:build !windows

package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sloth/internal/verify"
)

func TestRunTimedOutServerCountsAsHealthy(t *testing.T) {
	root := newProject(t)
	runner := verify.NewRunner(root, 2*time.Second, 1000)
	runner.Grace = 200 * time.Millisecond

	model := &scriptedModel{replies: []string{
		writeFileBlock("server.sh", "#!/bin/sh\nsleep 30\n") + block("verify_run", ""),
		"DONE\n" + block("done_summary", "server starts and keeps running"),
	}}
	s := newTestSupervisor(t, root, model, Options{Fast: true, VerifyCommand: "sleep 30"}, Deps{Verifier: runner})

	start := time.Now()
	res := s.Run(context.Background())

	require.Equal(t, ExitDone, res.Reason, res.Err)
	assert.Less(t, time.Since(start), 15*time.Second)
	require.NotNil(t, s.lastVerify)
	assert.True(t, s.lastVerify.TimedOut)
	assert.NotEqual(t, 0, s.lastVerify.ExitCode)
	assert.True(t, s.verdict.Healthy, s.verdict.Reason)

	assert.Equal(t, StateAnalyzingLogs.String(), res.Metrics.Iterations[1].State)
	require.Len(t, model.prompts, 2)
	assert.Contains(t, model.prompts[1], "looks healthy")
	assert.Contains(t, model.prompts[1], "still running after")
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, s.verdict.Reason, res.Attempts[0].Verification)
}
