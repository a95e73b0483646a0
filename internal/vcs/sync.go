package vcs

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"netpromote/pkg/errors"
)

// Fetch updates remote-tracking refs. An empty remote selects origin, or the
// first configured remote; a repository without remotes has nothing to fetch.
func (r *GitRepository) Fetch(ctx context.Context, remote string) error {
	name, url, ok := r.pickRemote(remote)
	if !ok {
		if remote != "" {
			return errors.New(errors.ErrCodeFetchFailed,
				fmt.Sprintf("Remote '%s' not configured", remote))
		}
		r.logger.Debug().Msg("No remotes configured, skipping fetch")
		return nil
	}

	auth, err := r.auth.AuthFor(url)
	if err != nil {
		return err
	}

	r.logger.Debug().Str("remote", name).Msg("Fetching")
	err = r.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: name,
		Auth:       auth,
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return errors.Wrap(err, errors.ErrCodeFetchFailed,
			fmt.Sprintf("Failed to fetch from remote %s", name)).
			WithContext("remote", name).
			AsRecoverable()
	}
	return nil
}

// Pull merges branch into the current branch. Only fast-forwards are applied;
// diverged histories touching the same paths yield *MergeConflictError and
// other divergence yields ErrNotFastForward.
func (r *GitRepository) Pull(ctx context.Context, remote, branch string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	head, err := r.repo.Head()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeBranchNotFound, "Failed to get HEAD reference")
	}
	if !head.Name().IsBranch() {
		return ErrDetachedHead
	}

	sourceName := plumbing.NewBranchReferenceName(branch)
	if remote != "" {
		if err := r.Fetch(ctx, remote); err != nil {
			return err
		}
		sourceName = plumbing.NewRemoteReferenceName(remote, branch)
	}

	source, err := r.repo.Reference(sourceName, true)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeBranchNotFound,
			fmt.Sprintf("Source branch '%s' not found", branch)).
			WithContext("branch", branch)
	}
	if source.Hash() == head.Hash() {
		return nil
	}

	headCommit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeRepoNotFound, "Failed to load HEAD commit")
	}
	sourceCommit, err := r.repo.CommitObject(source.Hash())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeRepoNotFound, "Failed to load source commit")
	}

	if merged, err := sourceCommit.IsAncestor(headCommit); err == nil && merged {
		r.logger.Debug().Str("branch", branch).Msg("Source already merged")
		return nil
	}

	if ff, err := headCommit.IsAncestor(sourceCommit); err == nil && ff {
		return r.fastForward(branch, source.Hash())
	}

	overlap, err := overlappingChanges(headCommit, sourceCommit)
	if err != nil {
		return err
	}
	if len(overlap) > 0 {
		return &MergeConflictError{Branch: branch, Files: overlap}
	}
	return fmt.Errorf("%w: %s into %s", ErrNotFastForward, branch, head.Name().Short())
}

func (r *GitRepository) fastForward(branch string, to plumbing.Hash) error {
	wt, err := r.worktree()
	if err != nil {
		return err
	}

	r.logger.Debug().Str("branch", branch).Str("to", ShortHash(to.String())).Msg("Fast-forwarding")
	if err := wt.Reset(&git.ResetOptions{Commit: to, Mode: git.HardReset}); err != nil {
		return errors.Wrap(err, errors.ErrCodeCheckoutFailed,
			fmt.Sprintf("Failed to fast-forward to '%s'", branch))
	}
	return nil
}

func (r *GitRepository) pickRemote(name string) (string, string, bool) {
	remotes, err := r.repo.Remotes()
	if err != nil || len(remotes) == 0 {
		return "", "", false
	}

	pick := remotes[0]
	for _, remote := range remotes {
		if remote.Config().Name == name || (name == "" && remote.Config().Name == "origin") {
			pick = remote
			break
		}
	}
	if name != "" && pick.Config().Name != name {
		return "", "", false
	}

	url := ""
	if urls := pick.Config().URLs; len(urls) > 0 {
		url = urls[0]
	}
	return pick.Config().Name, url, true
}

// overlappingChanges returns the paths both sides changed since their merge base
func overlappingChanges(ours, theirs *object.Commit) ([]string, error) {
	bases, err := ours.MergeBase(theirs)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "Failed to compute merge base")
	}
	if len(bases) == 0 {
		return nil, fmt.Errorf("%w: no common ancestor", ErrNotFastForward)
	}

	ourPaths, err := changedPaths(bases[0], ours)
	if err != nil {
		return nil, err
	}
	theirPaths, err := changedPaths(bases[0], theirs)
	if err != nil {
		return nil, err
	}

	changed := make(map[string]struct{}, len(ourPaths))
	for _, p := range ourPaths {
		changed[p] = struct{}{}
	}
	var overlap []string
	for _, p := range theirPaths {
		if _, ok := changed[p]; ok {
			overlap = append(overlap, p)
		}
	}
	return overlap, nil
}
