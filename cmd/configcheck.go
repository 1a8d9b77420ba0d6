package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/netwatch/netwatch/config"
)

var configCheckCmd = &cobra.Command{
	Use:   "config-check",
	Short: "Load and validate the configuration without starting the monitor",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return exitf(2, "config invalid: %v", err)
		}
		fmt.Printf("config OK: target=%s interval=%s data_dir=%s\n", cfg.Target, cfg.Interval, cfg.DataDir)
		return nil
	},
}
