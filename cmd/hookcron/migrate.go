package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/hookcron/internal/config"
	"github.com/nextlevelbuilder/hookcron/internal/store/pg"
)

func newMigrateCmd() *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres schema migrations",
		Long: `Apply schema migrations to the managed-mode Postgres database.
The DSN comes from --dsn or the databaseDsn config key. Standalone-mode
SQLite bootstraps its own schema and needs no migration step.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dsn == "" {
				configPath, _ := cmd.Root().PersistentFlags().GetString("config")
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				dsn = cfg.DatabaseDSN
			}
			if dsn == "" {
				return fmt.Errorf("no DSN: pass --dsn or set databaseDsn in the config")
			}

			db, err := pg.OpenDB(dsn, 2)
			if err != nil {
				return fmt.Errorf("open postgres: %w", err)
			}
			defer db.Close()

			return pg.Migrate(db)
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "Postgres DSN (overrides config)")
	return cmd
}
