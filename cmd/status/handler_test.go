package status

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"homeprov/types"
)

func byName(checks []check) map[string]check {
	m := make(map[string]check, len(checks))
	for _, c := range checks {
		m[c.name] = c
	}
	return m
}

func TestRunChecks(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := &types.Config{
		Secret:     "s3cret",
		ScriptPath: "/usr/local/bin/eos-create-home",
		MgmURL:     "root://eos.example.org",
		EOSBinary:  "eos",
		IDBinary:   "id",
	}
	lookPath := func(name string) (string, error) {
		if name == "eos" {
			return "", errors.New("not found")
		}
		return "/usr/bin/" + name, nil
	}

	checks := byName(runChecks(cfg, lookPath, logger))

	assert.True(t, checks["Secret"].ok)
	assert.True(t, checks["scriptPath"].ok)
	assert.False(t, checks["storagePrefix"].ok)
	assert.False(t, checks["recycleDir"].ok)
	assert.False(t, checks["eos binary"].ok)
	assert.Equal(t, "/usr/bin/id", checks["id binary"].detail)
	assert.True(t, checks["Home creation script"].ok)
	assert.NotContains(t, checks, "Tunnel keys")
}

func TestRunChecks_Tunnel(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := &types.Config{
		EOSBinary:           "eos",
		IDBinary:            "id",
		OrgID:               "cern",
		HostID:              "eoshome01",
		KeyPath:             t.TempDir(),
		TunnelHost:          "wss://tunnel.example.org/ws",
		HeartbeatIntervalMs: 60000,
	}
	lookPath := func(name string) (string, error) { return name, nil }

	checks := byName(runChecks(cfg, lookPath, logger))

	assert.True(t, checks["Tunnel configuration"].ok)
	assert.False(t, checks["Tunnel keys"].ok)
}
