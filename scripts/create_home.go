package scripts

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"homeprov/internal/runner"
)

type HomeProvisioner interface {
	CreateHome(ctx context.Context, username string) error
}

// HomeScript creates EOS homes by running the site's pre-installed script:
//
//	<script> <mgm url> <storage prefix> <recycle dir> <username>
type HomeScript struct {
	runner runner.Runner
	params Params
	dryRun bool
	logger logrus.FieldLogger
}

func NewHomeScript(r runner.Runner, params Params, dryRun bool, logger logrus.FieldLogger) *HomeScript {
	return &HomeScript{runner: r, params: params, dryRun: dryRun, logger: logger}
}

func (h *HomeScript) CreateHome(ctx context.Context, username string) error {
	if err := h.checkParams(); err != nil {
		h.logger.WithError(err).WithField("username", username).Error("Cannot create home directory")
		return err
	}

	args := []string{h.params.MgmURL, h.params.StoragePrefix, h.params.RecycleDir, username}

	h.logger.WithFields(logrus.Fields{
		"username": username,
		"script":   h.params.ScriptPath,
		"args":     args,
		"dry_run":  h.dryRun,
	}).Info("🏠 Creating home directory")

	if h.dryRun {
		h.logger.WithField("username", username).Info("🔍 DRY-RUN: Would execute home creation script (no actual changes made)")
		return nil
	}

	res, err := h.runner.Run(ctx, h.params.ScriptPath, args...)
	if err != nil {
		return fmt.Errorf("failed to run home creation script: %w", err)
	}

	if res.ExitCode != 0 {
		scriptErr := &ScriptError{Username: username, ExitCode: res.ExitCode, Output: res.Output}
		h.logger.WithFields(logrus.Fields{
			"username":  username,
			"exit_code": res.ExitCode,
			"output":    res.Output,
		}).Error("❌ Home creation script failed")
		return scriptErr
	}

	h.logger.WithField("username", username).Info("✅ Home directory created")
	return nil
}

func (h *HomeScript) checkParams() error {
	for _, kv := range []struct{ key, value string }{
		{"scriptPath", h.params.ScriptPath},
		{"mgmUrl", h.params.MgmURL},
		{"storagePrefix", h.params.StoragePrefix},
		{"recycleDir", h.params.RecycleDir},
	} {
		if kv.value == "" {
			return &ConfigError{Key: kv.key}
		}
	}
	return nil
}
