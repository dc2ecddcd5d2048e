/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tasktrack/apiserver/config"
	"github.com/tasktrack/apiserver/internal/db"
)

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return migrateWith(cmd.Context(), config.LoadConfig(), db.MigrateUp)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert all migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return migrateWith(cmd.Context(), config.LoadConfig(), db.MigrateDown)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
}

func migrateWith(ctx context.Context, cfg config.Config, run func(*sql.DB, string) error) error {
	conn, err := db.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()

	if err := run(conn, cfg.Database.Driver); err != nil {
		return err
	}
	return nil
}
