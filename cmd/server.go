/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tasktrack/apiserver/config"
	"github.com/tasktrack/apiserver/internal/db"
	"github.com/tasktrack/apiserver/internal/server"
)

const shutdownTimeout = 15 * time.Second

var serverMigrate bool

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the tasktrack API server",
	Long: `Starts the tasktrack API server. Usage:

	tasktrack server [--migrate]
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if serverMigrate {
			if err := migrateWith(ctx, cfg, db.MigrateUp); err != nil {
				return err
			}
		}

		srv, err := server.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			_ = srv.Shutdown(context.Background())
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().BoolVar(&serverMigrate, "migrate", false, "apply pending migrations before serving")
}
