package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/fitlink/realtime-gateway/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the websocket gateway",
	Run: func(cmd *cobra.Command, args []string) {
		s, err := server.New(context.Background())
		if err != nil {
			slog.Error("failed to start gateway", "error", err)
			os.Exit(1)
		}
		s.Start()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
