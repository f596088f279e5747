package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/townsquare/townsquare/internal/history"
	"github.com/townsquare/townsquare/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "townsquare",
	Short: "Room-scoped real-time chat relay",
	RunE:  runServer,
}

var (
	flagPort      string
	flagDataPath  string
	flagRetention int
	flagDebug     bool
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagPort, "port", "", "listen address (overrides SERVER_PORT)")
	flags.StringVar(&flagDataPath, "data-path", "", "history store directory (overrides DATA_PATH)")
	flags.IntVar(&flagRetention, "retention-hours", -1, "history retention in hours, 0 disables persistence (overrides RETENTION_HOURS)")
	flags.BoolVar(&flagDebug, "debug", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute server command")
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if flagDebug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := server.NewConfigFromEnv()
	if flagPort != "" {
		cfg.Port = flagPort
	}
	if flagDataPath != "" {
		cfg.DataPath = flagDataPath
	}
	if flagRetention >= 0 {
		cfg.RetentionHours = flagRetention
	}
	server.SetConfig(cfg)

	store, err := history.Open(cfg.DataPath, cfg.RetentionHours)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("close history store")
		}
	}()
	if cfg.RetentionHours > 0 {
		log.Info().Int("retention_hours", cfg.RetentionHours).Str("path", cfg.DataPath).
			Msg("history retention enabled")
	} else {
		log.Info().Msg("history retention disabled")
	}

	hub := server.NewHub(store)
	handlers := server.NewHandlers(hub, store)
	httpServer := server.CreateServer(cfg.Port, handlers.Routes())

	errCh := make(chan error, 1)
	go func() {
		if err := server.StartServer(httpServer); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		return err
	}

	if err := server.ShutdownServer(httpServer, 5*time.Second); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	if err := hub.Shutdown(5 * time.Second); err != nil {
		log.Warn().Err(err).Msg("hub shutdown incomplete")
	}
	return nil
}
