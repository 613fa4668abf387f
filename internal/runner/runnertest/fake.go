// Package runnertest provides a scripted runner.Runner for tests.
package runnertest

import (
	"context"
	"strings"
	"sync"

	"homeprov/internal/runner"
)

type response struct {
	result runner.Result
	err    error
}

// Fake answers commands from a table keyed by the full command line
// ("name arg1 arg2 ..."). Unknown commands get Default.
type Fake struct {
	mu        sync.Mutex
	responses map[string][]response
	calls     []string

	Default runner.Result
}

func New() *Fake {
	return &Fake{responses: make(map[string][]response)}
}

func Key(name string, args ...string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

// On queues a result for a command line. Queued results are consumed in
// order; the last one sticks.
func (f *Fake) On(cmdline string, result runner.Result) *Fake {
	return f.OnErr(cmdline, result, nil)
}

func (f *Fake) OnErr(cmdline string, result runner.Result, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[cmdline] = append(f.responses[cmdline], response{result: result, err: err})
	return f
}

func (f *Fake) Run(ctx context.Context, name string, args ...string) (runner.Result, error) {
	key := Key(name, args...)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)

	if err := ctx.Err(); err != nil {
		return runner.Result{ExitCode: -1}, err
	}

	queue := f.responses[key]
	if len(queue) == 0 {
		return f.Default, nil
	}
	r := queue[0]
	if len(queue) > 1 {
		f.responses[key] = queue[1:]
	}
	return r.result, r.err
}

// Calls returns every command line run so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount counts runs of one command line.
func (f *Fake) CallCount(cmdline string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == cmdline {
			n++
		}
	}
	return n
}
