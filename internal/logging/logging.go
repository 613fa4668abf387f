package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// SetupLogger configures a logger with the given verbosity, log path and format.
// If logPath is empty or the file cannot be opened, it falls back to stdout.
func SetupLogger(verbose bool, logPath string, jsonFormat bool) *logrus.Logger {
	logger := logrus.New()

	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	if jsonFormat {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	logger.SetOutput(os.Stdout)
	if logPath != "" {
		if logFile, err := openLogFile(logPath); err == nil {
			logger.SetOutput(io.MultiWriter(os.Stdout, logFile))
			logger.WithField("log_file", logPath).Debug("Logging to file and stdout")
		} else {
			logger.WithError(err).WithField("log_path", logPath).Warn("Failed to open log file, using stdout only")
		}
	}

	return logger
}

// openLogFile opens a log file for appending, creating parent directories if needed
func openLogFile(logPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, err
	}

	return os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

// LogConfig is the subset of the agent config the logger cares about
type LogConfig interface {
	GetLogPath() string
}

// SetupLoggerFromConfig creates a logger using configuration from the config struct
func SetupLoggerFromConfig(verbose, jsonFormat bool, config LogConfig) *logrus.Logger {
	logPath := ""
	if config != nil {
		logPath = config.GetLogPath()
	}
	return SetupLogger(verbose, logPath, jsonFormat)
}

// Fallback returns a bare stdout logger for use before configuration is loaded
func Fallback(verbose bool) *logrus.Logger {
	return SetupLogger(verbose, "", false)
}
