// Package runner executes external programs (the eos CLI, id, the home
// creation script) behind a small interface so callers can be tested with
// scripted fakes.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Result is the outcome of a process that ran to completion.
type Result struct {
	Output   string
	ExitCode int
}

// Runner runs a program and reports its exit code. A non-zero exit is not an
// error; err is reserved for processes that could not be started or were
// killed because ctx ended.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

type ExecRunner struct {
	Timeout time.Duration
	logger  logrus.FieldLogger
}

func NewExecRunner(timeout time.Duration, logger logrus.FieldLogger) *ExecRunner {
	return &ExecRunner{Timeout: timeout, logger: logger}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	output := strings.TrimSpace(out.String())

	r.logger.WithFields(logrus.Fields{
		"command":  name,
		"args":     args,
		"duration": time.Since(start),
	}).Debug("Command finished")

	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{Output: output, ExitCode: -1}, fmt.Errorf("%s: %w", name, ctxErr)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{Output: output, ExitCode: exitErr.ExitCode()}, nil
		}
		return Result{Output: output, ExitCode: -1}, fmt.Errorf("failed to run %s: %w", name, err)
	}

	return Result{Output: output, ExitCode: 0}, nil
}
