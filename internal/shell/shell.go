package shell

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Result holds the outcome of an executed command. Status carries the
// process exit code; a non-zero status is not an error at this layer,
// callers decide what a failed command means.
type Result struct {
	Status int
	Output string
}

// Runner executes external commands with an optional environment overlay
// and captures combined output.
type Runner interface {
	Run(ctx context.Context, env map[string]string, name string, args ...string) (Result, error)
}

// ExecRunner implements Runner via os/exec.
type ExecRunner struct {
	logger *slog.Logger
}

// NewExecRunner creates a runner that logs every invocation at debug level.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

// Run executes name with args. Entries in env are appended to the current
// process environment. The returned error is non-nil only when the command
// could not be started or was killed; an ordinary non-zero exit is reported
// through Result.Status.
func (r *ExecRunner) Run(ctx context.Context, env map[string]string, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	r.logger.Debug("executing command", "cmd", name+" "+strings.Join(args, " "))

	output, err := cmd.CombinedOutput()
	res := Result{Output: strings.TrimSpace(string(output))}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.Status = exitErr.ExitCode()
			r.logger.Debug("command exited", "status", res.Status, "output", res.Output)
			return res, nil
		}
		return res, err
	}

	r.logger.Debug("command exited", "status", 0, "output", res.Output)
	return res, nil
}
