package main

import (
	"os"

	"github.com/spf13/cobra"

	"homeprov/cmd/command"
	"homeprov/cmd/jwt"
	"homeprov/cmd/keygen"
	"homeprov/cmd/serve"
	"homeprov/cmd/start"
	"homeprov/cmd/status"
	"homeprov/cmd/version"
)

var (
	verbose    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "homeprov",
	Short: "homeprov - checks and creates EOS home directories",
	Long: `homeprov answers two questions for a storage front-end: which of a user's
well-known folders exist, and "make sure this user's home and these folders exist".
It serves them over HTTP (serve) or through an outbound WebSocket tunnel (start).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")

	rootCmd.AddCommand(serve.NewServeCommand(&verbose, &configPath))
	rootCmd.AddCommand(start.NewStartCommand(&verbose, &configPath))
	rootCmd.AddCommand(command.NewCommandCommand(&verbose, &configPath))
	rootCmd.AddCommand(keygen.NewKeygenCommand(&verbose, &configPath))
	rootCmd.AddCommand(jwt.NewJWTCommand(&verbose, &configPath))
	rootCmd.AddCommand(status.NewStatusCommand(&verbose, &configPath))
	rootCmd.AddCommand(version.NewVersionCommand())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
