/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tasktrack/apiserver/config"
	"github.com/tasktrack/apiserver/internal/logging"
	"github.com/tasktrack/apiserver/internal/mq"
	"github.com/tasktrack/apiserver/types"
)

var eventsChannel string

// eventsCmd represents the events command.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect task events published by the server",
}

var eventsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print task events as they arrive",
	Long: `Subscribes to the task event channel on the configured MQ_BACKEND and
prints one line per event until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg)

		channel := cfg.MQ.Channel
		if eventsChannel != "" {
			channel = eventsChannel
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		defer queue.Close()

		logger.Info("watching task events", "backend", cfg.MQ.Backend, "channel", channel)
		err = queue.Subscribe(ctx, channel, printEvent(cmd.OutOrStdout()))
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsWatchCmd)

	eventsWatchCmd.Flags().StringVar(&eventsChannel, "channel", "", "channel to watch (default MQ_TASK_CHANNEL)")
}

// printEvent writes one line per event. Undecodable payloads are logged and
// acked.
func printEvent(w io.Writer) mq.Handler {
	return func(ctx context.Context, msg mq.Message) error {
		var event types.TaskEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			logging.FromContext(ctx).Warn("undecodable task event", "id", msg.ID, "err", err)
			return nil
		}
		line := fmt.Sprintf("%s %-12s task=%s owner=%s",
			event.OccurredAt.Format("2006-01-02T15:04:05.000Z07:00"), event.Type, event.TaskID, event.OwnerID)
		if event.Status != "" {
			line += " status=" + string(event.Status)
		}
		_, err := fmt.Fprintln(w, line)
		return err
	}
}
