//go:build windows

package procsup

import (
	"os/exec"
	"syscall"
)

const createNoWindow = 0x08000000

// setDetached prevents a visible console window from appearing for each
// spawned ping/tracert invocation.
func setDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: createNoWindow}
}

// killProcessGroup kills the process directly; Windows has no POSIX process
// group to target, so descendants of tracert are expected to exit when
// their parent's pipes close.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
