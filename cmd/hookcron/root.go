package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hookcron",
		Short: "Scheduler for HTTP-invoked recurring jobs",
		Long: `hookcron fires recurring cron jobs against HTTP endpoints, records every
execution, and automatically backs off schedules that keep failing.

Examples:
  hookcron serve
  hookcron serve --config /etc/hookcron/config.yaml
  hookcron validate "*/5 * * * *"
  hookcron migrate --dsn postgres://localhost/hookcron`,
		Version: version,
	}

	cmd.PersistentFlags().StringP("config", "c", defaultConfigPath(), "path to the config file")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newServeCmd(),
		newValidateCmd(),
		newMigrateCmd(),
	)
	return cmd
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".hookcron", "config.yaml")
}
