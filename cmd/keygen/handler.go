package keygen

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"homeprov/internal/config"
	"homeprov/internal/jwt"
	"homeprov/internal/logging"
)

// NewKeygenCommand creates the keygen command
func NewKeygenCommand(verbose *bool, configPath *string) *cobra.Command {
	var (
		keyPath string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the ES384 key pair used by the tunnel client",
		Long: `Generate the ES384 JWK pair the tunnel client signs its connection token with.
Run it once per node and register the printed public key with the tunnel backend.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeygen(*verbose, *configPath, keyPath, force)
		},
	}

	cmd.Flags().StringVar(&keyPath, "key-path", "", "Directory to store key files")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing keys")

	return cmd
}

func runKeygen(verbose bool, configPath, keyPath string, force bool) error {
	logger := logging.Fallback(verbose)

	if keyPath == "" {
		cfg, err := config.LoadWithOverrides(configPath, nil)
		if err != nil {
			logger.WithError(err).Error("Failed to load configuration")
			return err
		}
		keyPath = cfg.KeyPath
	}

	manager := jwt.NewManager(logger)
	if err := manager.GenerateKeyPair(keyPath, force); err != nil {
		logger.WithError(err).Error("Failed to generate keypair")
		if !force {
			logger.Error("⚠️  Overwriting keys with --force will break the existing registration")
		}
		return err
	}

	publicKey, err := manager.PublicKeyJSON()
	if err != nil {
		return err
	}

	fmt.Println("\n🔑 Keypair Generated Successfully!")
	fmt.Printf("🔒 Private Key: %s\n", filepath.Join(keyPath, jwt.PrivateKeyFile))
	fmt.Printf("🔓 Public Key: %s\n", filepath.Join(keyPath, jwt.PublicKeyFile))
	fmt.Println("\n📋 Public Key for Registration:")
	fmt.Println("=================================")
	fmt.Println(string(publicKey))
	fmt.Println("=================================")
	fmt.Printf("\n💡 Next: homeprov start --org-id YOUR_ORG --host-id YOUR_HOST --key-path %s\n", keyPath)

	return nil
}
