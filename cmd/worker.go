/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/connectify/apiserver/config"
	"github.com/connectify/apiserver/internal/directory"
	"github.com/connectify/apiserver/internal/logging"
	"github.com/connectify/apiserver/internal/mq"
	"github.com/connectify/apiserver/internal/stream"
	"github.com/spf13/cobra"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Drains queued directory updates into the chat provider",
	Long: `Consumes user upserts published when DIRECTORY_SYNC_MODE=queue and
forwards them to the chat provider. Usage:

	connectify worker
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		log := logging.New(cfg.Log)

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		chat, err := stream.NewClient(cfg.Stream)
		if err != nil {
			return fmt.Errorf("stream client: %w", err)
		}

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		defer queue.Close()

		worker := directory.NewWorker(queue, chat, cfg.Directory.Channel, cfg.Directory.Timeout, log)
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		log.Info("directory worker stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
