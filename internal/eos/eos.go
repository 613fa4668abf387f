// Package eos talks to an EOS storage instance through the eos CLI. All
// commands run under the user's uid/gid ("-r uid gid") so ownership of
// created directories is right from the start.
package eos

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/sirupsen/logrus"

	"homeprov/internal/identity"
	"homeprov/internal/runner"
)

// PathStatus is the classified result of one stat call.
type PathStatus int

const (
	// Unknown covers transient MGM, network and auth glitches.
	Unknown PathStatus = iota
	Exists
	NotExists
)

func (s PathStatus) String() string {
	switch s {
	case Exists:
		return "exists"
	case NotExists:
		return "not_exists"
	default:
		return "unknown"
	}
}

const (
	codeOK     = 0
	codeENOENT = 2
	codeEEXIST = 17
)

// In monitoring mode eos reports the server-side return code as retc=<n>.
var retcPattern = regexp.MustCompile(`\bretc=(\d+)`)

// Prober checks whether a logical path exists for a user.
type Prober interface {
	Probe(ctx context.Context, id identity.Identity, username, logical string) PathStatus
}

// DirCreator creates a logical directory for a user.
type DirCreator interface {
	CreateDir(ctx context.Context, id identity.Identity, username, logical string) error
}

type Client struct {
	runner runner.Runner
	binary string
	mgmURL string
	layout Layout
	dryRun bool
	logger logrus.FieldLogger
}

type Options struct {
	Binary string
	MgmURL string
	Layout Layout
	DryRun bool
}

func NewClient(r runner.Runner, opts Options, logger logrus.FieldLogger) *Client {
	binary := opts.Binary
	if binary == "" {
		binary = "eos"
	}
	return &Client{
		runner: r,
		binary: binary,
		mgmURL: opts.MgmURL,
		layout: opts.Layout,
		dryRun: opts.DryRun,
		logger: logger,
	}
}

func (c *Client) args(id identity.Identity, sub ...string) []string {
	args := []string{"-b", "-r", strconv.Itoa(id.UID), strconv.Itoa(id.GID)}
	if c.mgmURL != "" {
		args = append(args, c.mgmURL)
	}
	return append(args, sub...)
}

// Probe runs a single stat. It never retries; callers that need a definite
// answer poll on Unknown.
func (c *Client) Probe(ctx context.Context, id identity.Identity, username, logical string) PathStatus {
	objectPath, err := c.layout.ObjectPath(username, logical)
	if err != nil {
		c.logger.WithError(err).WithField("username", username).Warn("Refusing to stat path")
		return Unknown
	}

	res, err := c.runner.Run(ctx, c.binary, c.args(id, "stat", objectPath)...)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"username": username,
			"path":     objectPath,
		}).Warn("eos stat did not complete")
		return Unknown
	}

	status := Classify(res)
	c.logger.WithFields(logrus.Fields{
		"username":  username,
		"path":      objectPath,
		"exit_code": res.ExitCode,
		"status":    status.String(),
	}).Debug("eos stat")

	return status
}

// Classify maps a stat result to a PathStatus. A retc token in the output
// takes precedence over the process exit code.
func Classify(res runner.Result) PathStatus {
	code := res.ExitCode
	if m := retcPattern.FindStringSubmatch(res.Output); m != nil {
		if retc, err := strconv.Atoi(m[1]); err == nil {
			code = retc
		}
	}

	switch code {
	case codeOK:
		return Exists
	case codeENOENT:
		return NotExists
	default:
		return Unknown
	}
}

// CreateDir runs mkdir -p, so an existing directory is a success.
func (c *Client) CreateDir(ctx context.Context, id identity.Identity, username, logical string) error {
	objectPath, err := c.layout.ObjectPath(username, logical)
	if err != nil {
		return err
	}

	fields := logrus.Fields{
		"username": username,
		"path":     objectPath,
		"uid":      id.UID,
		"gid":      id.GID,
	}

	if c.dryRun {
		c.logger.WithFields(fields).Info("DRY-RUN: would create directory")
		return nil
	}

	res, err := c.runner.Run(ctx, c.binary, c.args(id, "mkdir", "-p", objectPath)...)
	if err != nil {
		return fmt.Errorf("eos mkdir %s: %w", objectPath, err)
	}
	if res.ExitCode != codeOK && res.ExitCode != codeEEXIST {
		c.logger.WithFields(fields).WithFields(logrus.Fields{
			"exit_code": res.ExitCode,
			"output":    res.Output,
		}).Error("eos mkdir failed")
		return fmt.Errorf("eos mkdir %s: exit code %d: %s", objectPath, res.ExitCode, res.Output)
	}

	c.logger.WithFields(fields).Info("Directory created")
	return nil
}
