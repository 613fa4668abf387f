package types

import "time"

// ForwardedRequest represents a request relayed to the agent over the tunnel
type ForwardedRequest struct {
	Headers map[string]interface{}   `json:"headers"`
	Method  string                   `json:"method"`
	Path    string                   `json:"path"`
	Params  map[string]interface{}   `json:"params"`
	Data    interface{}              `json:"data"`
	Options *ForwardedRequestOptions `json:"options,omitempty"`
}

// ForwardedRequestOptions contains options for forwarded requests
type ForwardedRequestOptions struct {
	TimeoutMillis *int `json:"timeoutMillis,omitempty"`
}

// ForwardedResponse is sent back to the tunnel backend for every forwarded request
type ForwardedResponse struct {
	Headers    map[string]interface{} `json:"headers"`
	Status     int                    `json:"status"`
	StatusText string                 `json:"statusText"`
	Data       interface{}            `json:"data"`
}

// Config holds the agent configuration
type Config struct {
	Version     string `json:"version" yaml:"version"`
	Environment string `json:"environment" yaml:"environment"`
	LogPath     string `json:"logPath" yaml:"logPath"`
	LogJSON     bool   `json:"logJson" yaml:"logJson"`
	DryRun      bool   `json:"dryRun" yaml:"dryRun"` // If true, log mutating commands but don't execute them

	// Shared secret callers must present. Empty means every request is refused with 500.
	Secret string `json:"secret" yaml:"secret"`

	// Home creation script and the EOS parameters it is invoked with
	ScriptPath    string `json:"scriptPath" yaml:"scriptPath"`
	MgmURL        string `json:"mgmUrl" yaml:"mgmUrl"` // e.g. root://eosuser.cern.ch
	StoragePrefix string `json:"storagePrefix" yaml:"storagePrefix"`
	RecycleDir    string `json:"recycleDir" yaml:"recycleDir"`

	EOSBinary        string `json:"eosBinary" yaml:"eosBinary"`
	IDBinary         string `json:"idBinary" yaml:"idBinary"`
	CommandTimeoutMs int    `json:"commandTimeoutMs" yaml:"commandTimeoutMs"`
	ProbeIntervalMs  int    `json:"probeIntervalMs" yaml:"probeIntervalMs"`
	ProbeMaxAttempts int    `json:"probeMaxAttempts" yaml:"probeMaxAttempts"`
	DirWorkers       int    `json:"dirWorkers" yaml:"dirWorkers"`

	ListenAddr  string `json:"listenAddr" yaml:"listenAddr"`
	MetricsAddr string `json:"metricsAddr" yaml:"metricsAddr"`

	// Tunnel mode
	OrgID               string   `json:"orgId" yaml:"orgId"`
	HostID              string   `json:"hostId" yaml:"hostId"`
	KeyPath             string   `json:"keyPath" yaml:"keyPath"`
	TunnelHost          string   `json:"tunnelHost" yaml:"tunnelHost"` // WebSocket URL like ws://localhost:8079 or wss://example.ngrok.app
	Labels              []string `json:"labels" yaml:"labels"`
	TunnelTimeoutMs     int      `json:"tunnelTimeoutMs" yaml:"tunnelTimeoutMs"`
	HeartbeatIntervalMs int      `json:"heartbeatIntervalMs" yaml:"heartbeatIntervalMs"`
}

// GetClientID returns the computed client ID in the format ${orgId}:${hostId}:homeprov
func (c *Config) GetClientID() string {
	return c.OrgID + ":" + c.HostID + ":homeprov"
}

func (c *Config) GetLogPath() string {
	return c.LogPath
}

func (c *Config) GetHeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMs) * time.Millisecond
}

func (c *Config) GetCommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutMs) * time.Millisecond
}

func (c *Config) GetProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalMs) * time.Millisecond
}

// MissingProvisioningKeys lists the script parameters that are not configured,
// in the order the script expects them.
func (c *Config) MissingProvisioningKeys() []string {
	var missing []string
	for _, kv := range []struct{ key, value string }{
		{"scriptPath", c.ScriptPath},
		{"mgmUrl", c.MgmURL},
		{"storagePrefix", c.StoragePrefix},
		{"recycleDir", c.RecycleDir},
	} {
		if kv.value == "" {
			missing = append(missing, kv.key)
		}
	}
	return missing
}

// SetClientIDRequest is used for the setClientId RPC call
type SetClientIDRequest struct {
	ClientID string `json:"clientId"`
}
