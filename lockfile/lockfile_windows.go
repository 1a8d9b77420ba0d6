//go:build windows

package lockfile

import "os"

// processAlive on Windows opens the process handle; os.FindProcess itself
// fails if the PID no longer exists.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}
