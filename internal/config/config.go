package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"homeprov/types"
)

// LoadWithOverrides loads configuration from various sources with command-line flag overrides
func LoadWithOverrides(configPath string, flagOverrides map[string]interface{}) (*types.Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("homeprov")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.homeprov")
		v.AddConfigPath("/etc/homeprov")
	}

	// HOMEPROV_SECRET, HOMEPROV_MGMURL, ...
	v.SetEnvPrefix("HOMEPROV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional; everything can come from the environment
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Apply flag overrides (only set non-empty/non-zero values)
	for key, value := range flagOverrides {
		switch val := value.(type) {
		case string:
			if val != "" {
				v.Set(key, value)
			}
		case int:
			if val != 0 {
				v.Set(key, value)
			}
		case bool:
			if val {
				v.Set(key, value)
			}
		case []string:
			if len(val) > 0 {
				v.Set(key, value)
			}
		default:
			if value != nil {
				v.Set(key, value)
			}
		}
	}

	config := &types.Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("version", "1.0")
	v.SetDefault("environment", "default")
	v.SetDefault("logPath", "")
	v.SetDefault("logJson", false)
	v.SetDefault("dryRun", false)
	// Empty defaults so Unmarshal sees values that only exist in the environment
	v.SetDefault("secret", "")
	v.SetDefault("scriptPath", "")
	v.SetDefault("mgmUrl", "")
	v.SetDefault("storagePrefix", "")
	v.SetDefault("recycleDir", "")
	v.SetDefault("orgId", "")
	v.SetDefault("hostId", "")
	v.SetDefault("eosBinary", "eos")
	v.SetDefault("idBinary", "id")
	v.SetDefault("commandTimeoutMs", 30000)
	v.SetDefault("probeIntervalMs", 500)
	v.SetDefault("probeMaxAttempts", 20)
	v.SetDefault("dirWorkers", 4)
	v.SetDefault("listenAddr", "127.0.0.1:8080")
	v.SetDefault("metricsAddr", "")
	v.SetDefault("keyPath", ".")
	v.SetDefault("tunnelHost", "ws://localhost:8080/ws")
	v.SetDefault("tunnelTimeoutMs", 30000)
	v.SetDefault("heartbeatIntervalMs", 60000)
	v.SetDefault("labels", []string{})
}

// Validate checks the settings every mode depends on. The secret and the
// home script parameters are deliberately not required here: their absence is
// reported per request as an internal error.
func Validate(config *types.Config) error {
	if config.EOSBinary == "" {
		return fmt.Errorf("eosBinary is required")
	}
	if config.IDBinary == "" {
		return fmt.Errorf("idBinary is required")
	}
	if config.CommandTimeoutMs <= 0 {
		return fmt.Errorf("commandTimeoutMs must be positive")
	}
	if config.ProbeIntervalMs <= 0 {
		return fmt.Errorf("probeIntervalMs must be positive")
	}
	if config.ProbeMaxAttempts <= 0 {
		return fmt.Errorf("probeMaxAttempts must be positive")
	}
	if config.DirWorkers <= 0 {
		return fmt.Errorf("dirWorkers must be positive")
	}

	if config.MgmURL != "" {
		u, err := url.Parse(config.MgmURL)
		if err != nil {
			return fmt.Errorf("invalid mgmUrl: %w", err)
		}
		if u.Scheme != "root" && u.Scheme != "roots" {
			return fmt.Errorf("mgmUrl must use root:// or roots:// scheme, got %q", u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("mgmUrl must include a host")
		}
	}

	if config.StoragePrefix != "" && !strings.HasPrefix(config.StoragePrefix, "/") {
		return fmt.Errorf("storagePrefix must be an absolute path, got %q", config.StoragePrefix)
	}

	return nil
}

// ValidateTunnel validates the settings needed by the tunnel client
func ValidateTunnel(config *types.Config) error {
	if config.TunnelHost == "" {
		return fmt.Errorf("tunnelHost is required")
	}

	u, err := url.Parse(config.TunnelHost)
	if err != nil {
		return fmt.Errorf("invalid tunnelHost URL: %w", err)
	}

	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("tunnelHost URL must use ws:// or wss:// scheme, got %q", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("tunnelHost URL must include a host")
	}

	if config.KeyPath == "" {
		return fmt.Errorf("keyPath is required")
	}

	if config.TunnelTimeoutMs < 0 {
		return fmt.Errorf("tunnelTimeoutMs must be non-negative")
	}

	if config.HeartbeatIntervalMs <= 0 {
		return fmt.Errorf("heartbeatIntervalMs must be positive")
	}

	if config.OrgID == "" {
		return fmt.Errorf("orgId is required")
	}

	if config.HostID == "" {
		return fmt.Errorf("hostId is required")
	}

	return nil
}
