package command

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"homeprov/internal/config"
	"homeprov/internal/logging"
	"homeprov/internal/provision"
	"homeprov/internal/runner"
)

func NewCommandCommand(verbose *bool, configPath *string) *cobra.Command {
	var (
		operation string
		userName  string
		dirs      []string
		requestID string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "command",
		Short: "Run one check or create locally",
		Long: `Run a single check or create operation against EOS from the command line,
using the configured secret. Useful for testing a node without a caller.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(*verbose, *configPath, operation, userName, dirs, requestID, dryRun)
		},
	}

	cmd.Flags().StringVar(&operation, "operation", "", "Operation to run (check or create)")
	cmd.Flags().StringVar(&userName, "username", "", "Username for the operation")
	cmd.Flags().StringSliceVar(&dirs, "dir", []string{}, "Directory to create (can be used multiple times)")
	cmd.Flags().StringVar(&requestID, "request-id", "", "Request ID for tracking (auto-generated if empty)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log mutating commands but don't execute them")

	cmd.MarkFlagRequired("operation")
	cmd.MarkFlagRequired("username")

	return cmd
}

func runCommand(verbose bool, configPath, operation, userName string, dirs []string, requestID string, dryRun bool) error {
	cfg, err := config.LoadWithOverrides(configPath, map[string]interface{}{"dryRun": dryRun})
	if err != nil {
		logging.Fallback(verbose).WithError(err).Error("Failed to load configuration")
		return err
	}

	if requestID == "" {
		requestID = uuid.New().String()
	}

	logger := logging.SetupLoggerFromConfig(verbose, cfg.LogJSON, cfg).WithField("request_id", requestID)
	logger.WithFields(logrus.Fields{
		"operation": operation,
		"username":  userName,
		"dirs":      dirs,
		"dry_run":   cfg.DryRun,
	}).Info("🧪 Executing provisioning command")

	orchestrator := provision.NewFromConfig(cfg, runner.NewExecRunner(cfg.GetCommandTimeout(), logger), logger)

	var resp provision.Response
	switch operation {
	case provision.OperationCheck:
		resp = orchestrator.CheckHomeDir(context.Background(), cfg.Secret, userName)
	case provision.OperationCreate:
		resp = orchestrator.CreateHomeDir(context.Background(), cfg.Secret, userName, dirs)
	default:
		return fmt.Errorf("unknown operation %q (want check or create)", operation)
	}

	fmt.Println("\n📊 Result:")
	fmt.Println(strings.Repeat("=", 25))
	out, _ := json.MarshalIndent(map[string]interface{}{
		"status": resp.Status,
		"body":   resp.Body,
	}, "", "  ")
	fmt.Println(string(out))

	if resp.Status >= 400 {
		fmt.Println("\n❌ Operation failed!")
		return fmt.Errorf("%s returned status %d", operation, resp.Status)
	}

	fmt.Println("\n✅ Operation succeeded!")
	if cfg.DryRun {
		fmt.Println("🔍 DRY-RUN: No actual changes were made to EOS")
	}
	return nil
}
