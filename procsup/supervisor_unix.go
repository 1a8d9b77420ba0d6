//go:build !windows

package procsup

import (
	"os/exec"
	"syscall"
)

// setDetached puts the child in its own process group so killProcessGroup
// can reap descendants (e.g. traceroute forking helper processes) without
// also signalling netwatch itself.
func setDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends SIGKILL to the entire process group.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
