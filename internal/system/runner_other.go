//go:build !unix

package system

import (
	"os"
	"os/exec"
)

func killProcessGroup(cmd *exec.Cmd) {}

func exitCode(ps *os.ProcessState) int {
	if ps == nil {
		return UnexpectedExitCode
	}
	return ps.ExitCode()
}
