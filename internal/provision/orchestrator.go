// Package provision implements the two home directory operations: checking
// which well-known folders a user's EOS home has, and creating the home plus
// a requested set of folders.
package provision

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"homeprov/internal/backoff"
	"homeprov/internal/eos"
	"homeprov/internal/identity"
	"homeprov/internal/metrics"
	"homeprov/scripts"
)

const (
	DefaultProbeInterval    = 500 * time.Millisecond
	DefaultProbeMaxAttempts = 20
	DefaultDirWorkers       = 4
)

type Config struct {
	Secret           string
	ProbeInterval    time.Duration
	ProbeMaxAttempts int
	DirWorkers       int
}

// Orchestrator holds no per-request state; one instance serves all requests.
type Orchestrator struct {
	cfg      Config
	resolver identity.Resolver
	prober   eos.Prober
	homes    scripts.HomeProvisioner
	dirs     eos.DirCreator
	logger   logrus.FieldLogger
}

func New(cfg Config, resolver identity.Resolver, prober eos.Prober, homes scripts.HomeProvisioner, dirs eos.DirCreator, logger logrus.FieldLogger) *Orchestrator {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}
	if cfg.ProbeMaxAttempts <= 0 {
		cfg.ProbeMaxAttempts = DefaultProbeMaxAttempts
	}
	if cfg.DirWorkers <= 0 {
		cfg.DirWorkers = DefaultDirWorkers
	}
	return &Orchestrator{
		cfg:      cfg,
		resolver: resolver,
		prober:   prober,
		homes:    homes,
		dirs:     dirs,
		logger:   logger,
	}
}

// gate runs the checks shared by both operations. A nil result means the
// request may proceed.
func (o *Orchestrator) gate(log logrus.FieldLogger, credential, username string) *Response {
	if o.cfg.Secret == "" {
		log.Error("secret has not been defined in the configuration")
		return &internalError
	}
	if subtle.ConstantTimeCompare([]byte(o.cfg.Secret), []byte(credential)) != 1 {
		log.Error("access denied because secrets do not match")
		return &unauthorized
	}
	if username == "" {
		log.Error("username cannot be empty")
		resp := errorResponse(http.StatusBadRequest, CodeEmptyUsername, "username cannot be empty")
		return &resp
	}
	return nil
}

func (o *Orchestrator) resolve(ctx context.Context, log logrus.FieldLogger, username string) (identity.Identity, *Response) {
	id, err := o.resolver.Resolve(ctx, username)
	if errors.Is(err, identity.ErrNotFound) {
		log.Error("user has no valid uid/gid")
		resp := errorResponse(http.StatusBadRequest, CodeNoIdentity, noIdentityMessage(username))
		return id, &resp
	}
	if err != nil {
		log.WithError(err).Error("identity lookup failed")
		return id, &internalError
	}
	return id, nil
}

func (o *Orchestrator) finish(log logrus.FieldLogger, operation string, resp Response) Response {
	metrics.ObserveResponse(operation, resp.Status)
	log.WithField("status", resp.Status).Info("📤 Request finished")
	return resp
}

// CheckHomeDir reports which well-known folders exist in the user's home.
// It is a best-effort snapshot: nothing is polled or retried.
func (o *Orchestrator) CheckHomeDir(ctx context.Context, credential, username string) Response {
	log := o.logger.WithFields(logrus.Fields{
		"operation": OperationCheck,
		"username":  username,
	})

	if resp := o.gate(log, credential, username); resp != nil {
		return o.finish(log, OperationCheck, *resp)
	}

	id, resp := o.resolve(ctx, log, username)
	if resp != nil {
		return o.finish(log, OperationCheck, *resp)
	}

	if status := o.prober.Probe(ctx, id, username, eos.HomeRoot); status != eos.Exists {
		log.WithField("home_status", status.String()).Info("Home directory not found")
		return o.finish(log, OperationCheck, notFound)
	}

	dirs := make(map[string]bool, len(WellKnownDirs))
	for _, dir := range WellKnownDirs {
		dirs[dir] = o.prober.Probe(ctx, id, username, eos.HomeRoot+"/"+dir) == eos.Exists
	}

	log.WithField("dirs", dirs).Debug("Checked well-known directories")
	return o.finish(log, OperationCheck, Response{Status: http.StatusOK, Body: CheckBody{Dirs: dirs}})
}

// CreateHomeDir makes sure the user's home exists, creating it with the
// provisioning script if needed, then creates each requested folder. Folder
// failures are collected and reported together.
func (o *Orchestrator) CreateHomeDir(ctx context.Context, credential, username string, rawDirs interface{}) Response {
	log := o.logger.WithFields(logrus.Fields{
		"operation": OperationCreate,
		"username":  username,
	})

	if resp := o.gate(log, credential, username); resp != nil {
		return o.finish(log, OperationCreate, *resp)
	}

	dirs := SanitizeDirs(rawDirs)

	id, resp := o.resolve(ctx, log, username)
	if resp != nil {
		return o.finish(log, OperationCreate, *resp)
	}

	status, attempts, err := o.pollHome(ctx, log, id, username)
	metrics.ObserveProbeAttempts(attempts)
	if err != nil {
		log.WithError(err).WithField("attempts", attempts).Error("Gave up waiting for home directory status")
		return o.finish(log, OperationCreate, errorResponse(http.StatusGatewayTimeout, CodeStorageTimeout, ErrProbeTimeout.Error()))
	}

	outcome := Outcome{}
	if status == eos.NotExists {
		if resp := o.createHome(ctx, log, username); resp != nil {
			return o.finish(log, OperationCreate, *resp)
		}
		outcome.Created = true
	}

	outcome.FailedDirs = o.createDirs(ctx, log, id, username, dirs)

	log = log.WithFields(logrus.Fields{
		"home_created": outcome.Created,
		"requested":    len(dirs),
		"failed_dirs":  outcome.FailedDirs,
	})

	if len(outcome.FailedDirs) > 0 {
		metrics.AddDirFailures(len(outcome.FailedDirs))
		log.Error("Some directories could not be created")
		return o.finish(log, OperationCreate, errorResponse(http.StatusBadRequest, CodeFailedDirs, outcome.FailedDirs))
	}

	return o.finish(log, OperationCreate, created)
}

// pollHome stats the home until EOS gives a definite answer. Only Unknown is
// retried; NotExists is a valid final answer. Bounded by ProbeMaxAttempts
// and ctx.
func (o *Orchestrator) pollHome(ctx context.Context, log logrus.FieldLogger, id identity.Identity, username string) (eos.PathStatus, int, error) {
	wait, err := backoff.Constant(o.cfg.ProbeInterval)
	if err != nil {
		return eos.Unknown, 0, err
	}

	for attempt := 1; ; attempt++ {
		status := o.prober.Probe(ctx, id, username, eos.HomeRoot)
		if status != eos.Unknown {
			log.WithFields(logrus.Fields{
				"home_status": status.String(),
				"attempts":    attempt,
			}).Debug("Home directory status")
			return status, attempt, nil
		}

		if attempt >= o.cfg.ProbeMaxAttempts {
			return eos.Unknown, attempt, fmt.Errorf("%w after %d attempts", ErrProbeTimeout, attempt)
		}

		log.WithField("attempt", attempt).Warn("Home directory status unknown, retrying")
		if err := wait.Wait(ctx); err != nil {
			return eos.Unknown, attempt, fmt.Errorf("%w: %v", ErrProbeTimeout, err)
		}
	}
}

func (o *Orchestrator) createHome(ctx context.Context, log logrus.FieldLogger, username string) *Response {
	err := o.homes.CreateHome(ctx, username)
	metrics.ObserveHomeCreation(err == nil)
	if err == nil {
		return nil
	}

	var cfgErr *scripts.ConfigError
	var scriptErr *scripts.ScriptError
	switch {
	case errors.As(err, &cfgErr):
		log.WithField("missing_key", cfgErr.Key).Error("cannot create homedir: missing configuration")
		return &internalError
	case errors.As(err, &scriptErr):
		log.WithError(err).Error("cannot create homedir")
		resp := errorResponse(http.StatusBadRequest, CodeHomeCreation, fmt.Sprintf("home directory could not be created for %s", username))
		return &resp
	default:
		log.WithError(err).Error("cannot create homedir")
		return &internalError
	}
}

// createDirs creates the requested folders on a bounded worker pool and
// returns the ones that failed, in request order.
func (o *Orchestrator) createDirs(ctx context.Context, log logrus.FieldLogger, id identity.Identity, username string, dirs []string) []string {
	failed := make([]bool, len(dirs))

	var g errgroup.Group
	g.SetLimit(o.cfg.DirWorkers)
	for i, dir := range dirs {
		i, dir := i, dir
		g.Go(func() error {
			if err := o.ensureDir(ctx, id, username, dir); err != nil {
				log.WithError(err).WithField("dir", dir).Warn("Failed to create directory")
				failed[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	failedDirs := []string{}
	for i, dir := range dirs {
		if failed[i] {
			failedDirs = append(failedDirs, dir)
		}
	}
	return failedDirs
}

func (o *Orchestrator) ensureDir(ctx context.Context, id identity.Identity, username, dir string) error {
	logical, err := eos.LogicalPath(dir)
	if err != nil {
		return err
	}
	if o.prober.Probe(ctx, id, username, logical) == eos.Exists {
		return nil
	}
	return o.dirs.CreateDir(ctx, id, username, logical)
}
