package scripts

import "fmt"

// ConfigError reports a script parameter missing from the agent config.
// It is a deployment problem, not something the caller can fix.
type ConfigError struct {
	Key string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s has not been defined in the configuration", e.Key)
}

// ScriptError reports a script that ran and exited non-zero. It is not
// retried within a request.
type ScriptError struct {
	Username string
	ExitCode int
	Output   string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("home creation script failed for %s with exit code %d: %s", e.Username, e.ExitCode, e.Output)
}

// Params are the values the home creation script is invoked with, in
// positional order before the username.
type Params struct {
	ScriptPath    string
	MgmURL        string
	StoragePrefix string
	RecycleDir    string
}
