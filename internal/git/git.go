package git

import (
	"context"
	"path/filepath"

	"github.com/schaermu/gerritsync/internal/shell"
)

// Repo issues git subcommands against a fixed working copy. Every command
// runs with explicit --git-dir/--work-tree arguments so the process working
// directory never matters.
type Repo struct {
	path   string
	runner shell.Runner
}

// NewRepo creates a handle for the working copy at path. The repository is
// not required to exist yet.
func NewRepo(path string, runner shell.Runner) *Repo {
	return &Repo{path: path, runner: runner}
}

// Path returns the working copy path.
func (r *Repo) Path() string {
	return r.path
}

// Git runs a git subcommand in the repository and returns its exit status.
func (r *Repo) Git(ctx context.Context, env map[string]string, args ...string) (int, error) {
	status, _, err := r.GitOutput(ctx, env, args...)
	return status, err
}

// GitOutput runs a git subcommand in the repository and returns its exit
// status and combined output.
func (r *Repo) GitOutput(ctx context.Context, env map[string]string, args ...string) (int, string, error) {
	full := append([]string{
		"--git-dir=" + filepath.Join(r.path, ".git"),
		"--work-tree=" + r.path,
	}, args...)
	res, err := r.runner.Run(ctx, env, "git", full...)
	return res.Status, res.Output, err
}

// Clone clones url into dest.
func Clone(ctx context.Context, runner shell.Runner, env map[string]string, url, dest string) (int, string, error) {
	res, err := runner.Run(ctx, env, "git", "clone", url, dest)
	return res.Status, res.Output, err
}

// Init initializes a new repository with a working tree at dest.
func Init(ctx context.Context, runner shell.Runner, dest string) (int, string, error) {
	res, err := runner.Run(ctx, nil, "git", "init", dest)
	return res.Status, res.Output, err
}

// InitBare initializes a new bare repository at dest.
func InitBare(ctx context.Context, runner shell.Runner, dest string) (int, string, error) {
	res, err := runner.Run(ctx, nil, "git", "init", "--bare", dest)
	return res.Status, res.Output, err
}
