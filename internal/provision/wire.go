package provision

import (
	"github.com/sirupsen/logrus"

	"homeprov/internal/eos"
	"homeprov/internal/identity"
	"homeprov/internal/runner"
	"homeprov/scripts"
	"homeprov/types"
)

// NewFromConfig builds an Orchestrator backed by the id, eos and home
// creation commands, all run through r.
func NewFromConfig(cfg *types.Config, r runner.Runner, logger logrus.FieldLogger) *Orchestrator {
	if missing := cfg.MissingProvisioningKeys(); len(missing) > 0 {
		logger.WithField("missing", missing).Warn("⚠️ Home creation is not fully configured; new homes will fail with 500")
	}
	if cfg.Secret == "" {
		logger.Warn("⚠️ No secret configured; every request will be refused")
	}

	eosClient := eos.NewClient(r, eos.Options{
		Binary: cfg.EOSBinary,
		MgmURL: cfg.MgmURL,
		Layout: eos.Layout{Prefix: cfg.StoragePrefix},
		DryRun: cfg.DryRun,
	}, logger)

	homes := scripts.NewHomeScript(r, scripts.Params{
		ScriptPath:    cfg.ScriptPath,
		MgmURL:        cfg.MgmURL,
		StoragePrefix: cfg.StoragePrefix,
		RecycleDir:    cfg.RecycleDir,
	}, cfg.DryRun, logger)

	return New(Config{
		Secret:           cfg.Secret,
		ProbeInterval:    cfg.GetProbeInterval(),
		ProbeMaxAttempts: cfg.ProbeMaxAttempts,
		DirWorkers:       cfg.DirWorkers,
	},
		identity.NewCommandResolver(r, cfg.IDBinary, logger),
		eosClient,
		homes,
		eosClient,
		logger,
	)
}
