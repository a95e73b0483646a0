package vcs

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/rs/zerolog"

	"netpromote/internal/logging"
	"netpromote/pkg/errors"
)

// stageMerged is the stage of a fully merged entry as decoded from the index.
// index.Merged shares its value with AncestorMode and never matches.
const stageMerged index.Stage = 0

// GitRepository implements Repository on a local go-git working copy
type GitRepository struct {
	path      string
	repo      *git.Repository
	auth      *AuthManager
	signature Signature
	logger    zerolog.Logger
}

// Option configures a GitRepository
type Option func(*GitRepository)

// WithAuthManager sets the credential source used for fetches
func WithAuthManager(am *AuthManager) Option {
	return func(r *GitRepository) { r.auth = am }
}

// WithDefaultSignature sets the identity used when Commit gets nil signatures
func WithDefaultSignature(name, email string) Option {
	return func(r *GitRepository) {
		if name != "" {
			r.signature.Name = name
		}
		if email != "" {
			r.signature.Email = email
		}
	}
}

// WithLogger overrides the component logger
func WithLogger(logger zerolog.Logger) Option {
	return func(r *GitRepository) { r.logger = logger }
}

// Open opens the working copy at path
func Open(path string, opts ...Option) (*GitRepository, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRepoNotFound, "Failed to resolve repository path")
	}

	repo, err := git.PlainOpen(abs)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRepoNotFound, "Failed to open repository").
			WithContext("path", abs).
			WithSuggestions(
				"Check that the path is a git working copy",
				"Set repository.path in netpromote.yaml",
			)
	}

	r := &GitRepository{
		path: abs,
		repo: repo,
		signature: Signature{
			Name:  "netpromote",
			Email: "netpromote@localhost",
		},
		logger: logging.Get("vcs"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.auth == nil {
		r.auth = NewAuthManager()
	}

	return r, nil
}

// Root returns the absolute path of the working copy
func (r *GitRepository) Root() string {
	return r.path
}

// Checkout switches the working copy to branch, creating a local branch
// from a remote-tracking ref when only the remote one exists
func (r *GitRepository) Checkout(branch string) error {
	wt, err := r.worktree()
	if err != nil {
		return err
	}

	branchRef := plumbing.NewBranchReferenceName(branch)
	if _, err := r.repo.Reference(branchRef, false); err == nil {
		r.logger.Debug().Str("branch", branch).Msg("Checking out branch")
		if err := wt.Checkout(&git.CheckoutOptions{Branch: branchRef}); err != nil {
			return errors.Wrap(err, errors.ErrCodeCheckoutFailed,
				fmt.Sprintf("Failed to checkout branch '%s'", branch)).
				WithContext("branch", branch)
		}
		return nil
	}

	if ref, ok := r.remoteBranch(branch); ok {
		r.logger.Debug().Str("branch", branch).Str("remote_ref", ref.Name().String()).
			Msg("Creating local branch from remote")
		if err := wt.Checkout(&git.CheckoutOptions{
			Branch: branchRef,
			Hash:   ref.Hash(),
			Create: true,
		}); err != nil {
			return errors.Wrap(err, errors.ErrCodeCheckoutFailed,
				fmt.Sprintf("Failed to checkout branch '%s'", branch)).
				WithContext("branch", branch)
		}
		return nil
	}

	return errors.New(errors.ErrCodeBranchNotFound,
		fmt.Sprintf("Branch '%s' not found", branch)).
		WithContext("branch", branch).
		WithSuggestions(
			"List available branches with 'netpromote env list'",
			"Check for typos in the environment branch name",
		)
}

// CreateBranch creates name pointing at from, or at HEAD when from is empty
func (r *GitRepository) CreateBranch(name, from string) error {
	branchRef := plumbing.NewBranchReferenceName(name)
	if _, err := r.repo.Reference(branchRef, false); err == nil {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("Branch '%s' already exists", name)).
			WithContext("branch", name)
	}

	var base plumbing.Hash
	if from == "" {
		head, err := r.repo.Head()
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeBranchNotFound, "Failed to get HEAD reference")
		}
		base = head.Hash()
	} else {
		hash, err := r.resolveRef(from)
		if err != nil {
			return err
		}
		base = hash
	}

	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(branchRef, base)); err != nil {
		return errors.Wrap(err, errors.ErrCodeCheckoutFailed,
			fmt.Sprintf("Failed to create branch '%s'", name))
	}

	r.logger.Debug().Str("branch", name).Str("from", ShortHash(base.String())).Msg("Branch created")
	return nil
}

// CurrentBranch returns the short name of the checked out branch
func (r *GitRepository) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeBranchNotFound, "Failed to get HEAD reference")
	}
	if !head.Name().IsBranch() {
		return "", ErrDetachedHead
	}
	return head.Name().Short(), nil
}

// CurrentCommit returns the full hash HEAD points at
func (r *GitRepository) CurrentCommit() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeBranchNotFound, "Failed to get HEAD reference")
	}
	return head.Hash().String(), nil
}

// Status reports every non-clean path, with unmerged index entries as FileConflicted
func (r *GitRepository) Status() ([]StatusEntry, error) {
	stages, err := r.ConflictStages()
	if err != nil {
		return nil, err
	}

	byPath := make(map[string]FileStatus)

	wt, err := r.worktree()
	if err != nil {
		return nil, err
	}
	status, err := wt.Status()
	if err != nil {
		// go-git cannot always compute status over an unmerged index
		if len(stages) == 0 {
			return nil, errors.Wrap(err, errors.ErrCodeRepoNotFound, "Failed to get repository status")
		}
		r.logger.Debug().Err(err).Msg("Status failed, reporting unmerged entries only")
	}
	for path, fs := range status {
		if s := convertStatus(fs); s != FileUnmodified {
			byPath[path] = s
		}
	}
	for path := range stages {
		byPath[path] = FileConflicted
	}

	entries := make([]StatusEntry, 0, len(byPath))
	for path, s := range byPath {
		entries = append(entries, StatusEntry{Path: path, Status: s})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// Stage adds a single path to the index. Unmerged entries for the path are
// replaced, which marks its conflict resolved.
func (r *GitRepository) Stage(path string) error {
	wt, err := r.worktree()
	if err != nil {
		return err
	}
	path = filepath.ToSlash(path)
	if err := r.dropStages(path); err != nil {
		return err
	}
	// status cannot be computed while other paths are still unmerged
	if err := wt.AddWithOptions(&git.AddOptions{Path: path, SkipStatus: true}); err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation,
			fmt.Sprintf("Failed to stage '%s'", path))
	}
	return nil
}

func (r *GitRepository) dropStages(path string) error {
	idx, err := r.repo.Storer.Index()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeRepoNotFound, "Failed to read index")
	}

	kept := idx.Entries[:0]
	dropped := 0
	for _, entry := range idx.Entries {
		if entry.Name == path && entry.Stage != stageMerged {
			dropped++
			continue
		}
		kept = append(kept, entry)
	}
	if dropped == 0 {
		return nil
	}
	idx.Entries = kept

	r.logger.Debug().Str("path", path).Int("entries", dropped).Msg("Dropping unmerged index entries")
	if err := r.repo.Storer.SetIndex(idx); err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to write index")
	}
	return nil
}

// StageAll adds every change in the working copy to the index
func (r *GitRepository) StageAll() error {
	wt, err := r.worktree()
	if err != nil {
		return err
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to stage changes")
	}
	return nil
}

// Commit records the index as a new commit on the current branch
func (r *GitRepository) Commit(message string, author, committer *Signature) (string, error) {
	wt, err := r.worktree()
	if err != nil {
		return "", err
	}

	authorSig := r.objectSignature(author)
	committerSig := authorSig
	if committer != nil {
		committerSig = r.objectSignature(committer)
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author:    authorSig,
		Committer: committerSig,
	})
	if errors.Is(err, git.ErrEmptyCommit) {
		return "", ErrNothingToCommit
	}
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeCommitFailed, "Failed to commit changes")
	}

	r.logger.Debug().Str("commit", ShortHash(hash.String())).Msg("Committed changes")
	return hash.String(), nil
}

// ListBranches lists local and remote-tracking branches matching filter
func (r *GitRepository) ListBranches(filter string) ([]BranchInfo, error) {
	current, _ := r.CurrentBranch()

	refs, err := r.repo.References()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRepoNotFound, "Failed to list references")
	}

	var branches []BranchInfo
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name()
		if !name.IsBranch() && !name.IsRemote() {
			return nil
		}
		short := name.Short()
		if name.IsRemote() && filepath.Base(short) == "HEAD" {
			return nil
		}
		if !MatchBranch(short, filter) {
			return nil
		}
		branches = append(branches, BranchInfo{
			Name:      short,
			IsCurrent: name.IsBranch() && short == current,
			IsRemote:  name.IsRemote(),
			Commit:    ShortHash(ref.Hash().String()),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(branches, func(i, j int) bool {
		if branches[i].IsRemote != branches[j].IsRemote {
			return !branches[i].IsRemote
		}
		return branches[i].Name < branches[j].Name
	})
	return branches, nil
}

// DiffNames lists paths changed between two commits; an empty from lists
// every file in to
func (r *GitRepository) DiffNames(from, to string) ([]string, error) {
	if from == to {
		return nil, nil
	}

	toCommit, err := r.repo.CommitObject(plumbing.NewHash(to))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRepoNotFound,
			fmt.Sprintf("Commit '%s' not found", ShortHash(to)))
	}

	if from == "" {
		tree, err := toCommit.Tree()
		if err != nil {
			return nil, err
		}
		var names []string
		err = tree.Files().ForEach(func(f *object.File) error {
			names = append(names, f.Name)
			return nil
		})
		sort.Strings(names)
		return names, err
	}

	fromCommit, err := r.repo.CommitObject(plumbing.NewHash(from))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRepoNotFound,
			fmt.Sprintf("Commit '%s' not found", ShortHash(from)))
	}

	return changedPaths(fromCommit, toCommit)
}

// CheckPromotion verifies both branches exist and differ
func (r *GitRepository) CheckPromotion(sourceBranch, targetBranch string) error {
	if sourceBranch == targetBranch {
		return errors.New(errors.ErrCodeProtectedBranch,
			fmt.Sprintf("Cannot promote branch '%s' into itself", sourceBranch))
	}
	for _, branch := range []string{sourceBranch, targetBranch} {
		if _, err := r.resolve(branch); err != nil {
			return err
		}
	}
	return nil
}

// ConflictStages reads unmerged entries (stages 1 to 3) from the index
func (r *GitRepository) ConflictStages() (map[string]Stages, error) {
	idx, err := r.repo.Storer.Index()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRepoNotFound, "Failed to read index")
	}

	stages := make(map[string]Stages)
	for _, entry := range idx.Entries {
		if entry.Stage == stageMerged {
			continue
		}
		s := stages[entry.Name]
		switch entry.Stage {
		case index.AncestorMode:
			s.Base = true
		case index.OurMode:
			s.Ours = true
		case index.TheirMode:
			s.Theirs = true
		}
		if entry.Mode == filemode.Submodule {
			s.Submodule = true
		}
		stages[entry.Name] = s
	}
	return stages, nil
}

func (r *GitRepository) worktree() (*git.Worktree, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRepoNotFound, "Failed to get worktree")
	}
	return wt, nil
}

// resolve finds the commit a local or remote-tracking branch points at
func (r *GitRepository) resolve(branch string) (plumbing.Hash, error) {
	if ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(branch), true); err == nil {
		return ref.Hash(), nil
	}
	if ref, ok := r.remoteBranch(branch); ok {
		return ref.Hash(), nil
	}
	return plumbing.ZeroHash, errors.New(errors.ErrCodeBranchNotFound,
		fmt.Sprintf("Branch '%s' not found", branch)).
		WithContext("branch", branch)
}

// resolveRef accepts a branch name first and falls back to any revision
// git understands, such as a commit hash or tag
func (r *GitRepository) resolveRef(ref string) (plumbing.Hash, error) {
	if hash, err := r.resolve(ref); err == nil {
		return hash, nil
	}
	hash, err := r.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, errors.ErrCodeBranchNotFound,
			fmt.Sprintf("Reference '%s' not found", ref)).
			WithContext("ref", ref)
	}
	return *hash, nil
}

func (r *GitRepository) remoteBranch(branch string) (*plumbing.Reference, bool) {
	remotes, err := r.repo.Remotes()
	if err != nil {
		return nil, false
	}
	for _, remote := range remotes {
		ref, err := r.repo.Reference(plumbing.NewRemoteReferenceName(remote.Config().Name, branch), true)
		if err == nil {
			return ref, true
		}
	}
	return nil, false
}

func (r *GitRepository) objectSignature(sig *Signature) *object.Signature {
	s := r.signature
	if sig != nil {
		s = *sig
	}
	if s.When.IsZero() {
		s.When = time.Now()
	}
	return &object.Signature{Name: s.Name, Email: s.Email, When: s.When}
}

func convertStatus(fs *git.FileStatus) FileStatus {
	if fs.Staging == git.UpdatedButUnmerged || fs.Worktree == git.UpdatedButUnmerged {
		return FileConflicted
	}
	if fs.Staging == git.Untracked && fs.Worktree == git.Untracked {
		return FileUntracked
	}

	code := fs.Staging
	if code == git.Unmodified {
		code = fs.Worktree
	}
	switch code {
	case git.Modified:
		return FileModified
	case git.Added:
		return FileAdded
	case git.Deleted:
		return FileDeleted
	case git.Renamed:
		return FileRenamed
	case git.Copied:
		return FileCopied
	case git.Untracked:
		return FileUntracked
	default:
		return FileUnmodified
	}
}

func changedPaths(from, to *object.Commit) ([]string, error) {
	fromTree, err := from.Tree()
	if err != nil {
		return nil, err
	}
	toTree, err := to.Tree()
	if err != nil {
		return nil, err
	}

	changes, err := fromTree.Diff(toTree)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "Failed to diff commits")
	}

	seen := make(map[string]struct{})
	var names []string
	for _, change := range changes {
		for _, name := range []string{change.From.Name, change.To.Name} {
			if name == "" {
				continue
			}
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}
