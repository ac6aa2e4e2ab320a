package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "wabridge",
	Short: "HTTP/WebSocket bridge to a single WhatsApp session",
	Long:  "wabridge exposes one operator-controlled WhatsApp account over a JSON HTTP API and streams session-setup progress to WebSocket observers.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
