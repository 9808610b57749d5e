package history

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmpty(t *testing.T) {
	s := NewStore(t.TempDir())
	h, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, h.RunConfig)
	assert.Empty(t, h.PreviousAttempts)
	assert.Nil(t, h.LastAttemptFor("/work/app"))
}

func TestAttemptsNewestFirstAndCapped(t *testing.T) {
	s := NewStore(t.TempDir())
	for i := 0; i < MaxAttempts+3; i++ {
		require.NoError(t, s.AddAttempt(Attempt{
			InitialGoal:     fmt.Sprintf("goal %d", i),
			SolutionSummary: fmt.Sprintf("summary %d", i),
		}))
	}

	h, err := s.Load()
	require.NoError(t, err)
	require.Len(t, h.PreviousAttempts, MaxAttempts)
	assert.Equal(t, fmt.Sprintf("goal %d", MaxAttempts+2), h.PreviousAttempts[0].InitialGoal)
	assert.False(t, h.PreviousAttempts[0].FinishedAt.IsZero())
}

func TestRunConfigSurvivesAttempts(t *testing.T) {
	s := NewStore(t.TempDir())
	rc := RunConfig{ProjectRoot: "/work/app", Fast: true, VerifyCommand: "npm test"}
	require.NoError(t, s.SaveRunConfig(rc))
	require.NoError(t, s.AddAttempt(Attempt{ProjectRoot: "/work/app", InitialGoal: "g"}))

	h, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, h.RunConfig)
	assert.Equal(t, rc, *h.RunConfig)
	assert.Len(t, h.PreviousAttempts, 1)
}

func TestLastAttemptForMatchesProject(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.AddAttempt(Attempt{ProjectRoot: "/work/a", InitialGoal: "old goal in a"}))
	require.NoError(t, s.AddAttempt(Attempt{ProjectRoot: "/work/a", InitialGoal: "newest goal in a"}))
	require.NoError(t, s.AddAttempt(Attempt{InitialGoal: "legacy entry without a project"}))
	require.NoError(t, s.SaveRunConfig(RunConfig{ProjectRoot: "/work/b"}))

	h, err := s.Load()
	require.NoError(t, err)

	testCases := []struct {
		name string
		root string
		want string
	}{
		{name: "Project with attempts", root: "/work/a", want: "newest goal in a"},
		{name: "Unclean root", root: "/work/a/", want: "newest goal in a"},
		{name: "Project without attempts", root: h.RunConfig.ProjectRoot, want: ""},
		{name: "Empty root", root: "", want: ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := h.LastAttemptFor(tc.root)
			if tc.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got.InitialGoal)
		})
	}
}

func TestLoadCorruptFile(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o644))
	_, err := s.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse history file")
}
