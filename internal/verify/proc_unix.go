//go:build !windows

package verify

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func newProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup signals every process in the child's group, so servers
// started by the verify command go down with it.
func signalGroup(p *os.Process, s stopSignal) error {
	sig := unix.SIGKILL
	switch s {
	case stopInterrupt:
		sig = unix.SIGINT
	case stopTerminate:
		sig = unix.SIGTERM
	}
	return unix.Kill(-p.Pid, sig)
}

// stateExitCode reports 128+signal for signalled processes, as shells do.
func stateExitCode(state *os.ProcessState) int {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}
