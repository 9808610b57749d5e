//go:build windows

package verify

import (
	"os"
	"os/exec"
)

func newProcessGroup(cmd *exec.Cmd) {}

func signalGroup(p *os.Process, s stopSignal) error {
	if s != stopKill {
		return nil
	}
	return p.Kill()
}

func stateExitCode(state *os.ProcessState) int {
	return state.ExitCode()
}
