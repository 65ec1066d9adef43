package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OptimCE/crm-backend-sub001/internal/config"
	pgInfra "github.com/OptimCE/crm-backend-sub001/internal/infrastructure/postgres"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back the database schema",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(pgInfra.MigrateUp), string(pgInfra.MigrateDown)},
	RunE:      runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	if err := pgInfra.Migrate(cfg, pgInfra.Direction(args[0]), log); err != nil {
		return fmt.Errorf("migrate %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema migrated %s\n", args[0])
	return nil
}
