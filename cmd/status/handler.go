package status

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"homeprov/internal/config"
	"homeprov/internal/jwt"
	"homeprov/internal/logging"
	"homeprov/types"
)

func NewStatusCommand(verbose *bool, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check configuration and required binaries",
		Long: `Validate a homeprov node:
- configuration loads and validates
- the shared secret and every home creation parameter are set
- the eos, id and home creation binaries can be found
- tunnel keys are present when tunnel mode is configured`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatusCheck(*verbose, *configPath)
		},
	}
}

type check struct {
	name   string
	ok     bool
	detail string
}

func runStatusCheck(verbose bool, configPath string) error {
	logger := logging.Fallback(verbose)

	fmt.Println("🔍 homeprov Status Check")
	fmt.Println(strings.Repeat("=", 40))

	cfg, err := config.LoadWithOverrides(configPath, nil)
	if err != nil {
		fmt.Printf("❌ %-28s %v\n", "Configuration", err)
		return err
	}

	checks := runChecks(cfg, exec.LookPath, logger)

	failed := 0
	for _, c := range checks {
		mark := "✅"
		if !c.ok {
			mark = "❌"
			failed++
		}
		fmt.Printf("%s %-28s %s\n", mark, c.name, c.detail)
	}

	fmt.Println(strings.Repeat("=", 40))
	if failed > 0 {
		fmt.Printf("❌ %d check(s) failed\n", failed)
		return fmt.Errorf("%d status checks failed", failed)
	}
	fmt.Println("✅ All checks passed")
	return nil
}

func runChecks(cfg *types.Config, lookPath func(string) (string, error), logger logrus.FieldLogger) []check {
	checks := []check{{name: "Configuration", ok: true, detail: "valid"}}

	checks = append(checks, check{
		name:   "Secret",
		ok:     cfg.Secret != "",
		detail: setOrMissing(cfg.Secret != ""),
	})

	missing := cfg.MissingProvisioningKeys()
	for _, key := range []string{"scriptPath", "mgmUrl", "storagePrefix", "recycleDir"} {
		isSet := !contains(missing, key)
		checks = append(checks, check{name: key, ok: isSet, detail: setOrMissing(isSet)})
	}

	binaries := []struct{ name, path string }{
		{"eos binary", cfg.EOSBinary},
		{"id binary", cfg.IDBinary},
	}
	if cfg.ScriptPath != "" {
		binaries = append(binaries, struct{ name, path string }{"Home creation script", cfg.ScriptPath})
	}
	for _, b := range binaries {
		resolved, err := lookPath(b.path)
		if err != nil {
			logger.WithError(err).WithField("binary", b.path).Debug("Binary not found")
			checks = append(checks, check{name: b.name, ok: false, detail: fmt.Sprintf("%s not found", b.path)})
			continue
		}
		checks = append(checks, check{name: b.name, ok: true, detail: resolved})
	}

	if cfg.OrgID != "" || cfg.HostID != "" {
		if err := config.ValidateTunnel(cfg); err != nil {
			checks = append(checks, check{name: "Tunnel configuration", ok: false, detail: err.Error()})
		} else {
			checks = append(checks, check{name: "Tunnel configuration", ok: true, detail: cfg.GetClientID()})
		}
		_, err := os.Stat(filepath.Join(cfg.KeyPath, jwt.PrivateKeyFile))
		checks = append(checks, check{name: "Tunnel keys", ok: err == nil, detail: cfg.KeyPath})
	}

	return checks
}

func setOrMissing(ok bool) string {
	if ok {
		return "set"
	}
	return "missing"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
