package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wabridge/pkg/broadcast"
	"wabridge/pkg/config"
	"wabridge/pkg/dispatch"
	"wabridge/pkg/events"
	"wabridge/pkg/logger"
	"wabridge/pkg/resolver"
	"wabridge/pkg/server"
	"wabridge/pkg/session"
	"wabridge/pkg/supervisor"
	"wabridge/pkg/transport/whatsapp"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge",
	Long:  "Connects the WhatsApp session and serves the HTTP API and WebSocket observer channel.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.serve")

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sess, err := whatsapp.NewSession(runCtx, cfg.WhatsApp, appLogger)
		if err != nil {
			log.Error("Failed to initialize WhatsApp session", "error", err)
			return
		}

		tracker := session.NewTracker()
		bus := events.NewBus()
		defer bus.Close()

		hub := broadcast.NewHub(tracker, appLogger)
		res := resolver.New(sess, cfg.WhatsApp.CountryCode, appLogger)
		fetcher := dispatch.NewFetcher(time.Duration(cfg.Media.FetchTimeoutSeconds)*time.Second, cfg.Media.MaxBytes)
		dispatcher := dispatch.New(tracker, res, sess, fetcher, appLogger)
		sup := supervisor.New(sess, tracker, bus, cfg.Reconnect, appLogger)
		srv := server.New(cfg.Server, tracker, dispatcher, hub, appLogger)

		go hub.Run(runCtx, bus)

		errCh := make(chan error, 2)
		go func() { errCh <- sup.Run(runCtx) }()
		go func() { errCh <- srv.Run(runCtx) }()

		log.Info("Bridge started", "host", cfg.Server.Host, "port", cfg.Server.Port)

		select {
		case <-runCtx.Done():
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Bridge runtime failed", "error", err)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
