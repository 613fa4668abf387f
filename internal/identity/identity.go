// Package identity maps usernames to the uid/gid pair EOS commands run under.
package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"homeprov/internal/runner"
)

// ErrNotFound means the account has no uid/gid (no computing group). It is a
// stable fact about the account, so lookups are never retried.
var ErrNotFound = errors.New("no storage identity for user")

// Identity is the storage identity a request runs under.
type Identity struct {
	UID int
	GID int
}

type Resolver interface {
	Resolve(ctx context.Context, username string) (Identity, error)
}

var idPattern = regexp.MustCompile(`uid=(\d+)(?:\([^)]*\))?\s+gid=(\d+)`)

// CommandResolver asks the system account database via `id -- <username>`,
// which also covers LDAP/SSSD-backed accounts.
type CommandResolver struct {
	runner runner.Runner
	binary string
	logger logrus.FieldLogger
}

func NewCommandResolver(r runner.Runner, binary string, logger logrus.FieldLogger) *CommandResolver {
	if binary == "" {
		binary = "id"
	}
	return &CommandResolver{runner: r, binary: binary, logger: logger}
}

// Resolve never hands id a name it could read as an option: "-a" or "--"
// would otherwise report the agent's own identity.
func (c *CommandResolver) Resolve(ctx context.Context, username string) (Identity, error) {
	if username == "" || strings.HasPrefix(username, "-") {
		c.logger.WithField("username", username).Warn("Refusing option-like username")
		return Identity{}, ErrNotFound
	}

	res, err := c.runner.Run(ctx, c.binary, "--", username)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to look up %s: %w", username, err)
	}

	if res.ExitCode != 0 {
		c.logger.WithFields(logrus.Fields{
			"username":  username,
			"exit_code": res.ExitCode,
			"output":    res.Output,
		}).Debug("id lookup failed")
		return Identity{}, ErrNotFound
	}

	id, ok := ParseID(res.Output)
	if !ok {
		c.logger.WithFields(logrus.Fields{
			"username": username,
			"output":   res.Output,
		}).Warn("Unparsable id output")
		return Identity{}, ErrNotFound
	}

	return id, nil
}

// ParseID extracts uid and gid from `id` output such as
// "uid=1000(alice) gid=1000(alice) groups=1000(alice)".
func ParseID(output string) (Identity, bool) {
	m := idPattern.FindStringSubmatch(output)
	if m == nil {
		return Identity{}, false
	}

	uid, err := strconv.Atoi(m[1])
	if err != nil {
		return Identity{}, false
	}
	gid, err := strconv.Atoi(m[2])
	if err != nil {
		return Identity{}, false
	}

	return Identity{UID: uid, GID: gid}, true
}
