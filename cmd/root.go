// Package cmd wires netwatch's cobra command tree: the root command runs
// the monitor itself (config → lockfile → repository → every probe worker
// → classifier → smart-alert pipeline → metrics/health servers → terminal
// dashboard), with version and config-check as side commands. Grounded on
// dnstc's cmd/root.go (cobra.Command{RunE}, Execute()) generalized from a
// DNS-tunneling CLI to this module's monitor-daemon surface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "netwatch",
	Short: "Continuous network path monitor",
	Long: "netwatch probes a target endpoint and the routers en route, " +
		"maintaining real-time connection health and raising smart alerts " +
		"when it degrades.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMonitor(cmd.Context(), configPath)
	},
}

// Execute runs the command tree, returning any error for main to map to an
// exit code (spec §6).
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config YAML (optional)")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCheckCmd)
}

func exitf(code int, format string, args ...any) error {
	fmt.Printf(format+"\n", args...)
	return ExitCodeError{Code: code}
}
