// Package sync implements the project reconciliation engine: it classifies
// each declared project against the review server and the local mirror pool
// and drives the convergence actions that bring both in line with the
// registry.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/schaermu/gerritsync/internal/acl"
	"github.com/schaermu/gerritsync/internal/config"
	"github.com/schaermu/gerritsync/internal/gerrit"
	"github.com/schaermu/gerritsync/internal/git"
	"github.com/schaermu/gerritsync/internal/retry"
	"github.com/schaermu/gerritsync/internal/shell"
)

// Default budget for polling the server's eventually consistent metadata
// refs.
const (
	fetchAttempts = 10
	fetchDelay    = 2 * time.Second
)

// Engine reconciles declared projects against the review server and the
// local mirror pool. Projects are processed strictly sequentially; the
// mirror tree, the working copies and the SSH credential wrapper are shared
// across the whole run without synchronization.
type Engine struct {
	cfg    *config.Config
	gerrit gerrit.Client
	runner shell.Runner
	logger *slog.Logger
	retry  retry.Policy
}

// New creates an engine with the default retry budget.
func New(cfg *config.Config, client gerrit.Client, runner shell.Runner, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		gerrit: client,
		runner: runner,
		logger: logger,
		retry:  retry.Policy{Attempts: fetchAttempts, Delay: fetchDelay},
	}
}

// locations is the per-project repository location triple, recomputed every
// run.
type locations struct {
	remoteURL  string
	repoPath   string
	mirrorPath string
}

func (e *Engine) locations(name string) locations {
	return locations{
		remoteURL:  e.cfg.RemoteURL(name),
		repoPath:   e.cfg.RepoPath(name),
		mirrorPath: e.cfg.MirrorPath(name),
	}
}

// Run processes every declared project, or only those named in `only` when
// non-empty. A project failure is recorded and logged, never propagated:
// the returned error covers batch-level setup only (server listing, SSH
// wrapper creation). Reconciliation is designed to be safely re-run, so a
// partially converged project is an acceptable outcome for this run.
func (e *Engine) Run(ctx context.Context, only []string) (*Report, error) {
	known, err := e.gerrit.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list server projects: %w", err)
	}
	knownSet := make(map[string]bool, len(known))
	for _, name := range known {
		knownSet[name] = true
	}

	sshEnv, err := git.NewSSHEnv(e.cfg.Defaults.GerritUser, e.cfg.Defaults.GerritKey)
	if err != nil {
		return nil, err
	}
	// The wrapper is shared by every project; it must go away exactly once,
	// however the batch ends.
	defer func() {
		if err := sshEnv.Remove(); err != nil {
			e.logger.Warn("failed to remove ssh wrapper", "error", err)
		}
	}()

	var filter map[string]bool
	if len(only) > 0 {
		filter = make(map[string]bool, len(only))
		for _, name := range only {
			filter[name] = true
		}
	}

	report := &Report{}
	for _, p := range e.cfg.Projects {
		if filter != nil && !filter[p.Name] {
			continue
		}
		if p.NoGerrit() {
			report.add(p.Name, OutcomeSkipped, nil)
			continue
		}
		if err := e.processProject(ctx, p, knownSet, sshEnv); err != nil {
			e.logger.Error("problems reconciling project, moving on",
				"project", p.Name, "error", err)
			report.add(p.Name, OutcomeFailed, err)
			continue
		}
		report.add(p.Name, OutcomeSynced, nil)
	}
	return report, nil
}

// processProject runs the full convergence sequence for one project. Any
// returned error is caught at the boundary in Run.
func (e *Engine) processProject(ctx context.Context, p config.Project, known map[string]bool, sshEnv *git.SSHEnv) error {
	if p.TrackUpstream() && p.Upstream == "" {
		return fmt.Errorf("track-upstream is set but no upstream is configured")
	}

	loc := e.locations(p.Name)
	env := sshEnv.Env()
	logger := e.logger.With("project", p.Name)

	// Create the project on the server first: creation fails spectacularly
	// if the server-side directory or replica already exists on disk.
	created, err := e.ensureProject(ctx, p.Name, known)
	if err != nil {
		return fmt.Errorf("failed to create project on server: %w", err)
	}
	if created {
		logger.Info("created project on server")
	}

	if err := e.ensureMirror(ctx, p.Name); err != nil {
		return err
	}

	repo := git.NewRepo(loc.repoPath, e.runner)
	var action string
	if !pathExists(loc.repoPath) || created {
		action, err = e.makeLocalCopy(ctx, p, known, loc, env)
	} else {
		err = e.updateLocalCopy(ctx, p, repo, env)
	}
	if err != nil {
		return err
	}

	if created {
		if action != "" {
			e.pushToGerrit(ctx, p.Name, repo, action, loc.remoteURL, env)
		}
		if err := e.gerrit.Replicate(ctx, p.Name); err != nil {
			return fmt.Errorf("failed to trigger replication: %w", err)
		}
	}

	if p.TrackUpstream() {
		if err := e.syncUpstream(ctx, p, repo, env); err != nil {
			return err
		}
	}

	if acl.TemplateExists(e.cfg.Defaults.ACLDir, p) {
		if err := e.processACLs(ctx, p, repo, loc, env); err != nil {
			return err
		}
	} else if p.Description != "" {
		// Only reached when the project has no policy template; a template
		// is expected to carry the description itself.
		if err := e.gerrit.SetDescription(ctx, p.Name, p.Description); err != nil {
			return fmt.Errorf("failed to update description: %w", err)
		}
	}

	return nil
}

// ensureProject creates the server record when absent and reports whether a
// creation happened.
func (e *Engine) ensureProject(ctx context.Context, name string, known map[string]bool) (bool, error) {
	if known[name] {
		return false, nil
	}
	if err := e.gerrit.CreateProject(ctx, name); err != nil {
		return false, err
	}
	known[name] = true
	return true, nil
}

// pushToGerrit publishes the initial content produced by the local copy
// builder, plus all tags. Publication is at-least-once and idempotent, so
// failures are logged with project context and never propagate.
func (e *Engine) pushToGerrit(ctx context.Context, project string, repo *git.Repo, refspec, remoteURL string, env map[string]string) {
	if status, out, err := repo.GitOutput(ctx, env, "push", remoteURL, refspec); err != nil || status != 0 {
		e.logger.Error("error pushing to gerrit",
			"project", project, "status", status, "output", out, "error", err)
		return
	}
	if status, out, err := repo.GitOutput(ctx, env, "push", "--tags", remoteURL); err != nil || status != 0 {
		e.logger.Error("error pushing tags to gerrit",
			"project", project, "status", status, "output", out, "error", err)
	}
}

// gitStrict runs one git subcommand and converts a non-zero exit into an
// error. Used where a failed command must abort the project.
func (e *Engine) gitStrict(ctx context.Context, repo *git.Repo, env map[string]string, args ...string) error {
	status, out, err := repo.GitOutput(ctx, env, args...)
	if err != nil {
		return err
	}
	if status != 0 {
		return fmt.Errorf("git %s exited with status %d: %s", args[0], status, out)
	}
	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
