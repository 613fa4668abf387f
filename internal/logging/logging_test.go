package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLogger_Levels(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, SetupLogger(true, "", false).GetLevel())
	assert.Equal(t, logrus.InfoLevel, SetupLogger(false, "", false).GetLevel())
}

func TestSetupLogger_JSONFormatter(t *testing.T) {
	logger := SetupLogger(false, "", true)
	_, ok := logger.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)
}

func TestSetupLogger_WritesToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "homeprov.log")

	logger := SetupLogger(false, logPath, true)
	logger.WithField("username", "alice").Info("home created")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"username":"alice"`)
	assert.Contains(t, string(data), "home created")
}
