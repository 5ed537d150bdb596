package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	warden "github.com/wardenproc/warden"
	"github.com/wardenproc/warden/internal/logger"
)

func newServeCmd(gf *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the supervisor until interrupted",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig(gf)
			if err != nil {
				return err
			}
			logger.Setup(cfg.Log.Level, cfg.Log.Format)

			w, err := warden.New(cfg)
			if err != nil {
				return err
			}
			slog.Info("warden running", "version", warden.Version)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigCh
			slog.Info("shutting down", "signal", sig.String())

			w.Shutdown()
			return nil
		},
	}
}
