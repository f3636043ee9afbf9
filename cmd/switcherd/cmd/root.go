// Package cmd implements the switcherd command tree.
package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/swicore/switcher/internal/api"
	"github.com/swicore/switcher/internal/config"
	"github.com/swicore/switcher/internal/core"
	"github.com/swicore/switcher/internal/logging"
	"github.com/swicore/switcher/internal/metrics"
)

var (
	configPath string
	jsonLogs   bool
)

var rootCmd = &cobra.Command{
	Use:   "switcherd",
	Short: "Minecraft server fleet supervisor daemon",
	Long: `switcherd supervises a fleet of Minecraft servers: PTY-backed process
lifecycle, file and archive management, versioned backups, jar catalog and
the REST/WebSocket control plane.`,
	SilenceUsage: true,
	RunE:         runDaemon,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "path to the global config file")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit JSON logs instead of console output")
}

func defaultConfigPath() string {
	if v := os.Getenv("SWITCHER_CONFIG"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "switcher.yml"
	}
	return filepath.Join(home, ".switcher", "switcher.yml")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, JSONOutput: jsonLogs})
	return cfg, nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.WithComponent("daemon")

	ctx := context.Background()
	sw, err := core.New(ctx, cfg)
	if err != nil {
		return err
	}

	collector := metrics.New(sw.Bus())
	srv := api.New(sw, collector.Handler())

	errc := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errc:
		log.Error().Err(err).Msg("control plane failed")
		sw.Shutdown(ctx)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("control plane shutdown failed")
	}
	if err := sw.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("core shutdown failed")
		return err
	}
	log.Info().Msg("bye")
	return nil
}
