// Package testutil provides test doubles and sample data shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/ahoge-moe/Shiden/internal/process"
)

// Call is one recorded invocation.
type Call struct {
	Name string
	Args []string
}

// String renders the call as a command line.
func (c Call) String() string {
	return c.Name + " " + strings.Join(c.Args, " ")
}

// HasArgs reports whether want appears as a contiguous run in the call's args.
func (c Call) HasArgs(want ...string) bool {
	if len(want) == 0 {
		return true
	}
	for i := 0; i+len(want) <= len(c.Args); i++ {
		if slices.Equal(c.Args[i:i+len(want)], want) {
			return true
		}
	}
	return false
}

// Handler produces the result of a call.
type Handler func(ctx context.Context, call Call) ([]byte, error)

// FakeRunner is a process.Runner that records calls and answers them with
// handlers matched by binary name and argument substring.
type FakeRunner struct {
	mu       sync.Mutex
	calls    []Call
	rules    []rule
	fallback Handler
}

type rule struct {
	name     string
	contains string
	handler  Handler
}

var _ process.Runner = (*FakeRunner)(nil)

// NewFakeRunner creates a runner where unmatched calls succeed with no output.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		fallback: func(context.Context, Call) ([]byte, error) { return nil, nil },
	}
}

// On registers a handler for calls to name whose joined args contain contains.
// Rules are matched in registration order.
func (f *FakeRunner) On(name, contains string, h Handler) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{name: name, contains: contains, handler: h})
	return f
}

// OnOutput registers a rule that returns out.
func (f *FakeRunner) OnOutput(name, contains, out string) *FakeRunner {
	return f.On(name, contains, func(context.Context, Call) ([]byte, error) { return []byte(out), nil })
}

// OnFail registers a rule that fails with an exit error.
func (f *FakeRunner) OnFail(name, contains string) *FakeRunner {
	return f.On(name, contains, func(_ context.Context, c Call) ([]byte, error) {
		return nil, &process.ExitError{Name: c.Name, Args: c.Args, Err: fmt.Errorf("exit status 1")}
	})
}

// Run implements process.Runner.
func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	call := Call{Name: name, Args: slices.Clone(args)}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	handler := f.fallback
	joined := strings.Join(args, " ")
	for _, r := range f.rules {
		if r.name == name && strings.Contains(joined, r.contains) {
			handler = r.handler
			break
		}
	}
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, &process.KilledError{Name: name, Err: err}
	}
	return handler(ctx, call)
}

// Calls returns a copy of the recorded calls.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallsTo returns the recorded calls to name.
func (f *FakeRunner) CallsTo(name string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}
