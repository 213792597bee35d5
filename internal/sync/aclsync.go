package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schaermu/gerritsync/internal/acl"
	"github.com/schaermu/gerritsync/internal/config"
	"github.com/schaermu/gerritsync/internal/git"
)

// Error kinds raised by the access-control sync session. All are caught at
// the project boundary in Run.
var (
	// ErrFetchConfig: the server's metadata ref or policy file never became
	// reachable within the retry budget.
	ErrFetchConfig = errors.New("failed to fetch project metadata config")
	// ErrCopyACL: the declared policy template could not be rendered into
	// the working copy.
	ErrCopyACL = errors.New("failed to copy access-control policy")
	// ErrCreateGroup: the server did not produce a usable identifier for a
	// referenced group.
	ErrCreateGroup = errors.New("failed to create group")
)

const (
	policyFile = "project.config"
	groupsFile = "groups"
	metaRef    = "refs/meta/config"
	metaTrack  = "refs/remotes/gerrit-meta/config"
)

// processACLs runs one access-control policy sync session against the
// working copy. Terminal states: applied (committed and pushed), unchanged
// (rendered policy already matches the server), failed (one of the error
// kinds above). The session teardown is unconditional: whatever happened,
// the tree is hard reset, returned to master, and the temporary config
// branch is deleted.
func (e *Engine) processACLs(ctx context.Context, p config.Project, repo *git.Repo, loc locations, env map[string]string) error {
	logger := e.logger.With("project", p.Name)

	defer func() {
		_, _ = repo.Git(ctx, nil, "reset", "--hard")
		_, _ = repo.Git(ctx, nil, "checkout", "master")
		_, _ = repo.Git(ctx, nil, "branch", "-D", "config")
	}()

	if err := e.fetchConfig(ctx, p, repo, loc, env); err != nil {
		return err
	}

	changed, err := e.copyACL(ctx, p, repo)
	if err != nil {
		return err
	}
	if !changed {
		logger.Debug("policy unchanged, nothing to push")
		return nil
	}

	if err := e.createGroupsFile(ctx, p, repo); err != nil {
		return err
	}

	e.pushACL(ctx, p, repo, loc, env)
	return nil
}

// fetchConfig makes the server's metadata ref available on a local config
// branch. A freshly created project materializes refs/meta/config, and then
// an empty policy file, only after some delay, so both steps poll with the
// engine's retry budget. The final checkout is defined to run at most once
// per working copy per session and is not retried.
func (e *Engine) fetchConfig(ctx context.Context, p config.Project, repo *git.Repo, loc locations, env map[string]string) error {
	logger := e.logger.With("project", p.Name)

	err := e.retry.Do(ctx, func(attempt int) error {
		status, out, err := repo.GitOutput(ctx, env, "fetch", loc.remoteURL, "+"+metaRef+":"+metaTrack)
		if err != nil {
			return err
		}
		if status != 0 {
			logger.Debug("metadata ref not fetchable yet", "attempt", attempt, "output", out)
			return fmt.Errorf("fetch exited with status %d", status)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: metadata ref for %s: %v", ErrFetchConfig, p.Name, err)
	}

	err = e.retry.Do(ctx, func(attempt int) error {
		if status, _, err := repo.GitOutput(ctx, env, "remote", "update", "--prune"); err != nil {
			return err
		} else if status != 0 {
			logger.Debug("remote update failed", "attempt", attempt)
			return fmt.Errorf("remote update exited with status %d", status)
		}
		status, out, err := repo.GitOutput(ctx, env, "ls-files", "--with-tree="+metaTrack, policyFile)
		if err != nil {
			return err
		}
		if status != 0 || strings.TrimSpace(out) != policyFile {
			logger.Debug("policy file not present yet", "attempt", attempt)
			return fmt.Errorf("%s not on %s yet", policyFile, metaTrack)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s for %s: %v", ErrFetchConfig, policyFile, p.Name, err)
	}

	if err := e.gitStrict(ctx, repo, nil, "checkout", "-b", "config", metaTrack); err != nil {
		return fmt.Errorf("%w: checkout config branch for %s: %v", ErrFetchConfig, p.Name, err)
	}
	return nil
}

// copyACL renders the declared policy over the working copy's policy file
// and reports whether that changed the tree.
func (e *Engine) copyACL(ctx context.Context, p config.Project, repo *git.Repo) (bool, error) {
	if !acl.TemplateExists(e.cfg.Defaults.ACLDir, p) {
		return false, fmt.Errorf("%w: template %s not found", ErrCopyACL, p.ACLFile())
	}

	content, err := acl.Render(e.cfg.Defaults.ACLDir, p)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCopyACL, err)
	}
	if err := os.WriteFile(filepath.Join(repo.Path(), policyFile), []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("%w: %v", ErrCopyACL, err)
	}

	status, _, err := repo.GitOutput(ctx, nil, "diff", "--quiet")
	if err != nil {
		return false, err
	}
	return status != 0, nil
}

// createGroupsFile resolves every group referenced by the policy to its
// server identifier, creating groups on demand, and stages the mapping
// file next to the policy.
func (e *Engine) createGroupsFile(ctx context.Context, p config.Project, repo *git.Repo) error {
	data, err := os.ReadFile(filepath.Join(repo.Path(), policyFile))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCreateGroup, err)
	}

	names := acl.Groups(string(data))
	if len(names) == 0 {
		return nil
	}

	var rows []string
	for _, name := range names {
		uuid, err := e.groupUUID(ctx, name)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCreateGroup, name, err)
		}
		if uuid == "" {
			e.logger.Error("unable to get UUID for group", "project", p.Name, "group", name)
			return fmt.Errorf("%w: no UUID for %s", ErrCreateGroup, name)
		}
		rows = append(rows, uuid+"\t"+name+"\n")
	}

	path := filepath.Join(repo.Path(), groupsFile)
	if err := os.WriteFile(path, []byte(strings.Join(rows, "")), 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrCreateGroup, err)
	}
	if err := e.gitStrict(ctx, repo, nil, "add", groupsFile); err != nil {
		return fmt.Errorf("%w: %v", ErrCreateGroup, err)
	}
	return nil
}

// groupUUID resolves one group, creating it on the server when it does not
// exist yet.
func (e *Engine) groupUUID(ctx context.Context, name string) (string, error) {
	uuid, err := e.gerrit.GroupUUID(ctx, name)
	if err != nil || uuid != "" {
		return uuid, err
	}
	if err := e.gerrit.CreateGroup(ctx, name); err != nil {
		return "", err
	}
	return e.gerrit.GroupUUID(ctx, name)
}

// pushACL commits the policy branch and pushes it to the server's metadata
// ref. Commit and push failures leave the server in its prior state and are
// logged without ending the session in error.
func (e *Engine) pushACL(ctx context.Context, p config.Project, repo *git.Repo, loc locations, env map[string]string) {
	status, out, err := repo.GitOutput(ctx, nil, "commit", "-a", "-m", "Update project config.",
		"--author="+e.cfg.Defaults.GerritCommitter)
	if err != nil || status != 0 {
		e.logger.Error("failed to commit policy config",
			"project", p.Name, "status", status, "output", out, "error", err)
		return
	}

	status, out, err = repo.GitOutput(ctx, env, "push", loc.remoteURL, "HEAD:"+metaRef)
	if err != nil || status != 0 {
		e.logger.Error("failed to push policy config",
			"project", p.Name, "status", status, "output", out, "error", err)
	}
}
