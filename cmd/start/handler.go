package start

import (
	"context"
	"errors"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"homeprov/internal/client"
	"homeprov/internal/config"
	"homeprov/internal/logging"
	"homeprov/internal/provision"
	"homeprov/internal/runner"
)

// NewStartCommand creates the start command
func NewStartCommand(verbose *bool, configPath *string) *cobra.Command {
	var (
		orgID           string
		hostID          string
		tunnelHost      string
		keyPath         string
		logPath         string
		labels          []string
		environment     string
		tunnelTimeoutMs int
		dryRun          bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Serve the home directory API through the WebSocket tunnel",
		Long: `Connect out to the tunnel backend and answer forwarded checkHomeDir and
createHomeDir requests. The connection authenticates with an ES384 JWT signed
by the key generated with "homeprov keygen".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(*verbose, *configPath, map[string]interface{}{
				"orgId":           orgID,
				"hostId":          hostID,
				"tunnelHost":      tunnelHost,
				"keyPath":         keyPath,
				"logPath":         logPath,
				"labels":          labels,
				"environment":     environment,
				"tunnelTimeoutMs": tunnelTimeoutMs,
				"dryRun":          dryRun,
			})
		},
	}

	cmd.Flags().StringVar(&orgID, "org-id", "", "Organization identifier (required)")
	cmd.Flags().StringVar(&hostID, "host-id", "", "Host identifier (required)")
	cmd.Flags().StringVar(&tunnelHost, "tunnel-host", "", "WebSocket URL (e.g., ws://localhost:8079 or wss://tunnel.example.org)")
	cmd.Flags().StringVar(&keyPath, "key-path", "", "Directory holding the tunnel key files")
	cmd.Flags().StringVar(&logPath, "log-path", "", "Also write logs to this file")
	cmd.Flags().StringSliceVar(&labels, "labels", []string{}, "Labels sent in the tunnel token (can be used multiple times)")
	cmd.Flags().StringVar(&environment, "environment", "", "Environment name")
	cmd.Flags().IntVar(&tunnelTimeoutMs, "tunnel-timeout", 0, "Default per-request timeout in milliseconds")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log mutating commands but don't execute them")

	return cmd
}

func runStart(verbose bool, configPath string, flagOverrides map[string]interface{}) error {
	cfg, err := config.LoadWithOverrides(configPath, flagOverrides)
	if err != nil {
		logging.Fallback(verbose).WithError(err).Error("Failed to load configuration")
		return err
	}

	logger := logging.SetupLoggerFromConfig(verbose, cfg.LogJSON, cfg)

	if err := config.ValidateTunnel(cfg); err != nil {
		logger.WithError(err).Error("Tunnel configuration is incomplete")
		return err
	}

	orchestrator := provision.NewFromConfig(cfg, runner.NewExecRunner(cfg.GetCommandTimeout(), logger), logger)

	tunnel, err := client.New(cfg, orchestrator, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to create tunnel client")
		if strings.Contains(err.Error(), "failed to load JWT key") {
			logger.Error("🔑 Keys not found or invalid! Generate them first:")
			logger.Errorf("   1. Generate keys: homeprov keygen --key-path %s", cfg.KeyPath)
			logger.Error("   2. Register the public key with the tunnel backend")
			logger.Error("   3. Run homeprov start again")
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"version":        cfg.Version,
		"client_id":      cfg.GetClientID(),
		"tunnel_host":    cfg.TunnelHost,
		"key_path":       cfg.KeyPath,
		"labels":         cfg.Labels,
		"environment":    cfg.Environment,
		"tunnel_timeout": cfg.TunnelTimeoutMs,
		"dry_run":        cfg.DryRun,
	}).Info("Starting homeprov tunnel client")

	if err := tunnel.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("homeprov stopped with error")
		return err
	}

	logger.Info("homeprov stopped")
	return nil
}
