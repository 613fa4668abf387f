package serve

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"homeprov/internal/config"
	"homeprov/internal/httpapi"
	"homeprov/internal/logging"
	"homeprov/internal/provision"
	"homeprov/internal/runner"
)

func NewServeCommand(verbose *bool, configPath *string) *cobra.Command {
	var (
		listenAddr    string
		metricsAddr   string
		logPath       string
		logJSON       bool
		dryRun        bool
		drainDuration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the home directory API over HTTP",
		Long: `Serve /api/v1/homedir/check and /api/v1/homedir/create, plus health and
drain endpoints. Callers authenticate with the configured shared secret in the
Authorization header.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*verbose, *configPath, map[string]interface{}{
				"listenAddr":  listenAddr,
				"metricsAddr": metricsAddr,
				"logPath":     logPath,
				"logJson":     logJSON,
				"dryRun":      dryRun,
			}, drainDuration)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen-addr", "", "Address for the API listener (default 127.0.0.1:8080)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address for the Prometheus listener (disabled when empty)")
	cmd.Flags().StringVar(&logPath, "log-path", "", "Also write logs to this file")
	cmd.Flags().BoolVar(&logJSON, "json-logs", false, "Log in JSON")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log mutating commands but don't execute them")
	cmd.Flags().DurationVar(&drainDuration, "drain-duration", 0, "Time to report not-ready before shutting down")

	return cmd
}

func runServe(verbose bool, configPath string, flagOverrides map[string]interface{}, drainDuration time.Duration) error {
	cfg, err := config.LoadWithOverrides(configPath, flagOverrides)
	if err != nil {
		logging.Fallback(verbose).WithError(err).Error("Failed to load configuration")
		return err
	}

	logger := logging.SetupLoggerFromConfig(verbose, cfg.LogJSON, cfg)

	orchestrator := provision.NewFromConfig(cfg, runner.NewExecRunner(cfg.GetCommandTimeout(), logger), logger)

	srv := httpapi.New(httpapi.Config{
		ListenAddr:    cfg.ListenAddr,
		MetricsAddr:   cfg.MetricsAddr,
		DrainDuration: drainDuration,
	}, httpapi.NewHandler(orchestrator, logger), logger)

	logger.WithFields(logrus.Fields{
		"version":        cfg.Version,
		"listen_addr":    cfg.ListenAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"mgm_url":        cfg.MgmURL,
		"storage_prefix": cfg.StoragePrefix,
		"dry_run":        cfg.DryRun,
	}).Info("Starting homeprov")

	srv.RunInBackground()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.WithField("signal", sig.String()).Info("Received shutdown signal, shutting down gracefully...")
	srv.Shutdown()
	logger.Info("homeprov stopped")
	return nil
}
