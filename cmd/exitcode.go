package cmd

import "fmt"

// ExitCodeError lets any subcommand return a specific process exit code
// through the normal error-return path instead of calling os.Exit directly,
// so the dispatch itself stays testable (spec §6 exit codes: 0 graceful,
// 1 unrecoverable startup error, 2 misconfiguration).
type ExitCodeError struct {
	Code int
}

func (e ExitCodeError) Error() string { return fmt.Sprintf("exit %d", e.Code) }
