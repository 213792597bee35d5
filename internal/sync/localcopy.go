package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schaermu/gerritsync/internal/config"
	"github.com/schaermu/gerritsync/internal/git"
)

// reconcileState classifies where a project without a local working copy
// currently lives. Exactly one state applies; it selects the build path.
type reconcileState int

const (
	// stateServerKnownWithMaster: the server has the project and its master
	// ref exists, so the server is the source of truth.
	stateServerKnownWithMaster reconcileState = iota
	// stateUpstreamOnly: the server does not have usable content but an
	// upstream is configured, so this is a first-time import.
	stateUpstreamOnly
	// stateAbsentEverywhere: nothing exists anywhere, a brand-new
	// repository is initialized.
	stateAbsentEverywhere
)

func classify(p config.Project, knownWithMaster bool) reconcileState {
	switch {
	case knownWithMaster:
		return stateServerKnownWithMaster
	case p.Upstream != "":
		return stateUpstreamOnly
	default:
		return stateAbsentEverywhere
	}
}

// makeLocalCopy builds a working copy for a project that has none (or whose
// server record was just created) and returns the push refspec that
// publishes its content, or empty string when no push is needed. The
// builder itself never pushes.
func (e *Engine) makeLocalCopy(ctx context.Context, p config.Project, known map[string]bool, loc locations, env map[string]string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(loc.repoPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	// "Server has it" means the master ref exists there: a freshly created
	// record advertises no usable content yet.
	knownWithMaster := false
	if known[p.Name] {
		refs, err := e.gerrit.ListProjectRefs(ctx, p.Name)
		if err != nil {
			return "", fmt.Errorf("failed to list project refs: %w", err)
		}
		for _, ref := range refs {
			if ref == "refs/heads/master" {
				knownWithMaster = true
				break
			}
		}
	}

	repo := git.NewRepo(loc.repoPath, e.runner)

	switch classify(p, knownWithMaster) {
	case stateServerKnownWithMaster:
		if status, out, err := git.Clone(ctx, e.runner, env, loc.remoteURL, loc.repoPath); err != nil {
			return "", err
		} else if status != 0 {
			return "", fmt.Errorf("failed to clone %s: %s", loc.remoteURL, out)
		}
		if p.Upstream != "" {
			// Registered for later tracking only, not fetched here.
			if err := e.gitStrict(ctx, repo, nil, "remote", "add", "upstream", p.Upstream); err != nil {
				return "", err
			}
		}
		return "", nil

	case stateUpstreamOnly:
		// First-time import: clone upstream, hold its branch heads under
		// refs/copy/heads/* so they survive the remote rename, then point
		// origin at the review server. Ongoing tracking happens through the
		// renamed upstream remote.
		if status, out, err := git.Clone(ctx, e.runner, env, p.Upstream, loc.repoPath); err != nil {
			return "", err
		} else if status != 0 {
			return "", fmt.Errorf("failed to clone upstream %s: %s", p.Upstream, out)
		}
		if err := e.gitStrict(ctx, repo, env, "fetch", "origin", "+refs/heads/*:refs/copy/heads/*"); err != nil {
			return "", err
		}
		if err := e.gitStrict(ctx, repo, nil, "remote", "rename", "origin", "upstream"); err != nil {
			return "", err
		}
		if err := e.gitStrict(ctx, repo, nil, "remote", "add", "origin", loc.remoteURL); err != nil {
			return "", err
		}
		return "+refs/copy/heads/*:refs/heads/*", nil

	default: // stateAbsentEverywhere
		if status, out, err := git.Init(ctx, e.runner, loc.repoPath); err != nil {
			return "", err
		} else if status != 0 {
			return "", fmt.Errorf("failed to init %s: %s", loc.repoPath, out)
		}
		if err := e.gitStrict(ctx, repo, nil, "remote", "add", "origin", loc.remoteURL); err != nil {
			return "", err
		}
		if err := e.writeGitReview(p.Name, loc.repoPath); err != nil {
			return "", err
		}
		if err := e.gitStrict(ctx, repo, nil, "add", ".gitreview"); err != nil {
			return "", err
		}
		if err := e.gitStrict(ctx, repo, nil, "commit", "-a", "-m", "Added .gitreview",
			"--author="+e.cfg.Defaults.GerritCommitter); err != nil {
			return "", err
		}
		return "HEAD:refs/heads/master", nil
	}
}

// writeGitReview drops the review-binding descriptor into a newly
// initialized working copy.
func (e *Engine) writeGitReview(project, repoPath string) error {
	content := fmt.Sprintf("[gerrit]\nhost=%s\nport=%d\nproject=%s.git\n",
		e.cfg.Defaults.GerritHost, e.cfg.Defaults.GerritPort, project)
	if err := os.WriteFile(filepath.Join(repoPath, ".gitreview"), []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write .gitreview: %w", err)
	}
	return nil
}

// updateLocalCopy reconciles an existing working copy: upstream remote
// configuration, tracking branch refresh, and a master checkout reset to
// the server's master. Safe to run every cycle regardless of prior state.
func (e *Engine) updateLocalCopy(ctx context.Context, p config.Project, repo *git.Repo, env map[string]string) error {
	_, remotes, err := repo.GitOutput(ctx, nil, "remote")
	if err != nil {
		return err
	}
	hasUpstreamRemote := false
	for _, name := range strings.Fields(remotes) {
		if name == "upstream" {
			hasUpstreamRemote = true
			break
		}
	}

	if p.TrackUpstream() {
		if !hasUpstreamRemote {
			if err := e.gitStrict(ctx, repo, nil, "remote", "add", "upstream", p.Upstream); err != nil {
				return err
			}
		} else {
			// The remote may predate a registry change; force the URL to
			// match the declared upstream.
			if err := e.gitStrict(ctx, repo, nil, "remote", "set-url", "upstream", p.Upstream); err != nil {
				return err
			}
		}
		if err := e.gitStrict(ctx, repo, env, "remote", "update", "--prune"); err != nil {
			return err
		}
	} else if hasUpstreamRemote {
		if err := e.gitStrict(ctx, repo, nil, "remote", "rm", "upstream"); err != nil {
			return err
		}
	}

	// Leave the tree on a master branch matching the server's master.
	_, _ = repo.Git(ctx, env, "checkout", "-B", "master", "origin/master")
	return nil
}

// ensureMirror creates the local bare mirror for a project if missing and
// hands it to the configured system account. A half-created mirror is
// removed before the error is surfaced.
func (e *Engine) ensureMirror(ctx context.Context, name string) error {
	path := e.cfg.MirrorPath(name)
	if pathExists(path) {
		return nil
	}

	status, out, err := git.InitBare(ctx, e.runner, path)
	if err != nil {
		return err
	}
	if status != 0 {
		_, _ = e.runner.Run(ctx, nil, "rm", "-rf", path)
		return fmt.Errorf("failed to init mirror %s: %s", path, out)
	}

	owner := e.cfg.Defaults.SystemUser + ":" + e.cfg.Defaults.SystemGroup
	res, err := e.runner.Run(ctx, nil, "chown", "-R", owner, path)
	if err != nil {
		return err
	}
	if res.Status != 0 {
		return fmt.Errorf("failed to chown mirror %s: %s", path, res.Output)
	}
	return nil
}
