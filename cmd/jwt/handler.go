package jwt

import (
	"fmt"

	"github.com/spf13/cobra"

	"homeprov/internal/config"
	"homeprov/internal/jwt"
	"homeprov/internal/logging"
)

func NewJWTCommand(verbose *bool, configPath *string) *cobra.Command {
	var (
		keyPath string
		orgID   string
		hostID  string
	)

	cmd := &cobra.Command{
		Use:   "jwt",
		Short: "Print a signed tunnel token",
		Long: `Print the token the tunnel client would present, signed with the local key.
Useful for checking a registration against the tunnel backend by hand.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJWT(*verbose, *configPath, map[string]interface{}{
				"keyPath": keyPath,
				"orgId":   orgID,
				"hostId":  hostID,
			})
		},
	}

	cmd.Flags().StringVar(&keyPath, "key-path", "", "Directory containing key files")
	cmd.Flags().StringVar(&orgID, "org-id", "", "Organization ID")
	cmd.Flags().StringVar(&hostID, "host-id", "", "Host ID")

	return cmd
}

func runJWT(verbose bool, configPath string, flagOverrides map[string]interface{}) error {
	cfg, err := config.LoadWithOverrides(configPath, flagOverrides)
	if err != nil {
		logging.Fallback(verbose).WithError(err).Error("Failed to load configuration")
		return err
	}

	logger := logging.Fallback(verbose)
	manager := jwt.NewManager(logger)
	if err := manager.LoadKey(cfg.KeyPath); err != nil {
		return err
	}

	token, err := manager.CreateJWT(cfg.GetClientID(), cfg.Labels)
	if err != nil {
		return err
	}

	logger.WithField("client_id", cfg.GetClientID()).Debug("Signed tunnel token")
	fmt.Println(token)
	return nil
}
