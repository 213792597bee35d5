// Package testutil provides shared test doubles.
package testutil

import (
	"context"
	"strings"

	"github.com/schaermu/gerritsync/internal/shell"
)

// Call records one command issued through a FakeRunner.
type Call struct {
	Name string
	Args []string
	Env  map[string]string
}

// Line renders the call as a single command line for assertions.
func (c Call) Line() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// FakeRunner is a scripted shell.Runner: it records every call and answers
// via the Stub, defaulting to success with empty output.
type FakeRunner struct {
	Calls []Call
	Stub  func(call Call) (shell.Result, error)
}

var _ shell.Runner = (*FakeRunner)(nil)

// Run records the call and returns the scripted result.
func (f *FakeRunner) Run(_ context.Context, env map[string]string, name string, args ...string) (shell.Result, error) {
	call := Call{Name: name, Args: args, Env: env}
	f.Calls = append(f.Calls, call)
	if f.Stub != nil {
		return f.Stub(call)
	}
	return shell.Result{}, nil
}

// Lines returns every recorded call as a command line.
func (f *FakeRunner) Lines() []string {
	lines := make([]string, 0, len(f.Calls))
	for _, c := range f.Calls {
		lines = append(lines, c.Line())
	}
	return lines
}

// LinesContaining returns the recorded command lines that contain substr.
func (f *FakeRunner) LinesContaining(substr string) []string {
	var lines []string
	for _, c := range f.Calls {
		if strings.Contains(c.Line(), substr) {
			lines = append(lines, c.Line())
		}
	}
	return lines
}
