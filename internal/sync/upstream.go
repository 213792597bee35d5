package sync

import (
	"context"
	"strings"

	"github.com/schaermu/gerritsync/internal/config"
	"github.com/schaermu/gerritsync/internal/git"
)

const upstreamRemotePrefix = "remotes/upstream/"

// syncUpstream mirrors every upstream branch into a local branch, optionally
// namespaced with the project's upstream prefix, then republishes all
// branches and tags to the review server. The final publication is best
// effort: failures are logged with project context and do not propagate.
func (e *Engine) syncUpstream(ctx context.Context, p config.Project, repo *git.Repo, env map[string]string) error {
	if err := e.gitStrict(ctx, repo, env, "remote", "update", "upstream", "--prune"); err != nil {
		return err
	}

	_, branches, err := repo.GitOutput(ctx, nil, "branch", "-a")
	if err != nil {
		return err
	}

	for _, line := range strings.Split(branches, "\n") {
		// Symbolic alias entries (HEAD -> upstream/master) are not branches.
		if strings.Contains(line, "->") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		branch := fields[0]
		if !strings.HasPrefix(branch, upstreamRemotePrefix) {
			continue
		}

		local := strings.TrimPrefix(branch, upstreamRemotePrefix)
		if p.UpstreamPrefix != "" {
			local = p.UpstreamPrefix + "/" + local
		}

		// Check out a tracking branch so the head is picked up by the push
		// below. Fails harmlessly when the branch already exists.
		_, _ = repo.Git(ctx, nil, "checkout", "-b", local, branch)
	}

	if status, out, err := repo.GitOutput(ctx, env, "push", "origin", "refs/heads/*:refs/heads/*"); err != nil || status != 0 {
		e.logger.Error("error pushing branches to gerrit",
			"project", p.Name, "status", status, "output", out, "error", err)
		return nil
	}
	if status, out, err := repo.GitOutput(ctx, env, "push", "origin", "--tags"); err != nil || status != 0 {
		e.logger.Error("error pushing tags to gerrit",
			"project", p.Name, "status", status, "output", out, "error", err)
	}
	return nil
}
