package vcs

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netpromote/pkg/errors"
)

// initTestRepo creates a working copy on master with one committed file
func initTestRepo(t *testing.T) (string, *git.Repository) {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	commitFile(t, repo, dir, "router1.conf", "hostname router1\n", "Initial commit")
	return dir, repo
}

func commitFile(t *testing.T, repo *git.Repository, dir, name, content, message string) plumbing.Hash {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(name)
	require.NoError(t, err)

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Test User",
			Email: "test@example.com",
			When:  time.Now(),
		},
	})
	require.NoError(t, err)
	return hash
}

func openTestRepo(t *testing.T, dir string) *GitRepository {
	t.Helper()
	r, err := Open(dir, WithAuthManager(NewAuthManager(WithEnv(func(string) string { return "" }))))
	require.NoError(t, err)
	return r
}

func TestOpenMissingRepository(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeRepoNotFound, errors.GetErrorCode(err))
}

func TestCurrentBranchAndCommit(t *testing.T) {
	dir, repo := initTestRepo(t)
	r := openTestRepo(t, dir)

	branch, err := r.CurrentBranch()
	require.NoError(t, err)
	assert.Equal(t, "master", branch)

	head, err := repo.Head()
	require.NoError(t, err)
	commit, err := r.CurrentCommit()
	require.NoError(t, err)
	assert.Equal(t, head.Hash().String(), commit)
	assert.Equal(t, dir, r.Root())
}

func TestCreateBranchAndCheckout(t *testing.T) {
	dir, _ := initTestRepo(t)
	r := openTestRepo(t, dir)

	require.NoError(t, r.CreateBranch("staging", ""))
	require.NoError(t, r.Checkout("staging"))

	branch, err := r.CurrentBranch()
	require.NoError(t, err)
	assert.Equal(t, "staging", branch)

	err = r.CreateBranch("staging", "")
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetErrorCode(err))

	err = r.Checkout("does-not-exist")
	assert.Equal(t, errors.ErrCodeBranchNotFound, errors.GetErrorCode(err))
}

func TestCreateBranchFromRef(t *testing.T) {
	dir, repo := initTestRepo(t)
	r := openTestRepo(t, dir)
	first, err := r.CurrentCommit()
	require.NoError(t, err)

	commitFile(t, repo, dir, "router2.conf", "hostname router2\n", "Add router2")

	require.NoError(t, r.CreateBranch("develop", first))
	ref, err := repo.Reference(plumbing.NewBranchReferenceName("develop"), true)
	require.NoError(t, err)
	assert.Equal(t, first, ref.Hash().String())
}

func TestCreateBranchFromUnknownRef(t *testing.T) {
	dir, _ := initTestRepo(t)
	r := openTestRepo(t, dir)

	err := r.CreateBranch("develop", "0123456789abcdef0123456789abcdef01234567")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeBranchNotFound, errors.GetErrorCode(err))
}

func TestCleanRepositoryHasNoConflicts(t *testing.T) {
	dir, repo := initTestRepo(t)
	commitFile(t, repo, dir, "router2.conf", "hostname router2\n", "Add router2")
	r := openTestRepo(t, dir)

	stages, err := r.ConflictStages()
	require.NoError(t, err)
	assert.Empty(t, stages)

	entries, err := r.Status()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCommitCleanTree(t *testing.T) {
	dir, _ := initTestRepo(t)
	r := openTestRepo(t, dir)

	require.NoError(t, r.StageAll())
	_, err := r.Commit("Nothing changed", nil, nil)
	assert.ErrorIs(t, err, ErrNothingToCommit)
}

func TestStatusStageAndCommit(t *testing.T) {
	dir, _ := initTestRepo(t)
	r := openTestRepo(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "switch1.conf"), []byte("vlan 10\n"), 0644))

	entries, err := r.Status()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "switch1.conf", entries[0].Path)
	assert.Equal(t, FileUntracked, entries[0].Status)

	require.NoError(t, r.StageAll())
	hash, err := r.Commit("Add switch1", nil, nil)
	require.NoError(t, err)
	assert.Len(t, hash, 40)

	entries, err = r.Status()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPullFastForward(t *testing.T) {
	dir, repo := initTestRepo(t)
	r := openTestRepo(t, dir)

	require.NoError(t, r.CreateBranch("develop", ""))
	require.NoError(t, r.Checkout("develop"))
	devHead := commitFile(t, repo, dir, "router1.conf", "hostname router1\nntp server 10.0.0.1\n", "Add NTP")
	require.NoError(t, r.Checkout("master"))

	require.NoError(t, r.Pull(context.Background(), "", "develop"))

	commit, err := r.CurrentCommit()
	require.NoError(t, err)
	assert.Equal(t, devHead.String(), commit)

	content, err := os.ReadFile(filepath.Join(dir, "router1.conf"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "ntp server")

	branch, err := r.CurrentBranch()
	require.NoError(t, err)
	assert.Equal(t, "master", branch)
}

func TestPullAlreadyMerged(t *testing.T) {
	dir, _ := initTestRepo(t)
	r := openTestRepo(t, dir)
	require.NoError(t, r.CreateBranch("develop", ""))

	assert.NoError(t, r.Pull(context.Background(), "", "develop"))
}

func TestPullReportsOverlappingConflicts(t *testing.T) {
	dir, repo := initTestRepo(t)
	r := openTestRepo(t, dir)

	require.NoError(t, r.CreateBranch("develop", ""))
	require.NoError(t, r.Checkout("develop"))
	commitFile(t, repo, dir, "router1.conf", "hostname router1-dev\n", "Rename on develop")
	require.NoError(t, r.Checkout("master"))
	commitFile(t, repo, dir, "router1.conf", "hostname router1-prod\n", "Rename on master")

	err := r.Pull(context.Background(), "", "develop")
	require.Error(t, err)

	conflict, ok := AsMergeConflict(err)
	require.True(t, ok)
	assert.Equal(t, "develop", conflict.Branch)
	assert.Equal(t, []string{"router1.conf"}, conflict.Files)
}

func TestPullDivergedWithoutOverlap(t *testing.T) {
	dir, repo := initTestRepo(t)
	r := openTestRepo(t, dir)

	require.NoError(t, r.CreateBranch("develop", ""))
	require.NoError(t, r.Checkout("develop"))
	commitFile(t, repo, dir, "router2.conf", "hostname router2\n", "Add router2")
	require.NoError(t, r.Checkout("master"))
	commitFile(t, repo, dir, "router3.conf", "hostname router3\n", "Add router3")

	err := r.Pull(context.Background(), "", "develop")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, ErrNotFastForward))
	_, ok := AsMergeConflict(err)
	assert.False(t, ok)
}

func TestPullMissingBranch(t *testing.T) {
	dir, _ := initTestRepo(t)
	r := openTestRepo(t, dir)

	err := r.Pull(context.Background(), "", "nope")
	assert.Equal(t, errors.ErrCodeBranchNotFound, errors.GetErrorCode(err))
}

func TestFetchWithoutRemotes(t *testing.T) {
	dir, _ := initTestRepo(t)
	r := openTestRepo(t, dir)

	assert.NoError(t, r.Fetch(context.Background(), ""))
	assert.Error(t, r.Fetch(context.Background(), "upstream"))
}

func TestDiffNames(t *testing.T) {
	dir, repo := initTestRepo(t)
	r := openTestRepo(t, dir)
	first, err := r.CurrentCommit()
	require.NoError(t, err)

	second := commitFile(t, repo, dir, "sites/lab/switch1.conf", "vlan 20\n", "Add lab switch")

	names, err := r.DiffNames(first, second.String())
	require.NoError(t, err)
	assert.Equal(t, []string{"sites/lab/switch1.conf"}, names)

	names, err = r.DiffNames("", second.String())
	require.NoError(t, err)
	assert.Equal(t, []string{"router1.conf", "sites/lab/switch1.conf"}, names)

	names, err = r.DiffNames(first, first)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestListBranches(t *testing.T) {
	dir, _ := initTestRepo(t)
	r := openTestRepo(t, dir)
	require.NoError(t, r.CreateBranch("develop", ""))
	require.NoError(t, r.CreateBranch("staging", ""))

	branches, err := r.ListBranches("")
	require.NoError(t, err)
	require.Len(t, branches, 3)
	assert.Equal(t, "develop", branches[0].Name)
	assert.Equal(t, "master", branches[1].Name)
	assert.True(t, branches[1].IsCurrent)

	branches, err = r.ListBranches("stag")
	require.NoError(t, err)
	require.Len(t, branches, 1)
	assert.Equal(t, "staging", branches[0].Name)
}

func TestCheckPromotion(t *testing.T) {
	dir, _ := initTestRepo(t)
	r := openTestRepo(t, dir)
	require.NoError(t, r.CreateBranch("develop", ""))

	assert.NoError(t, r.CheckPromotion("develop", "master"))
	assert.Equal(t, errors.ErrCodeProtectedBranch, errors.GetErrorCode(r.CheckPromotion("master", "master")))
	assert.Equal(t, errors.ErrCodeBranchNotFound, errors.GetErrorCode(r.CheckPromotion("develop", "staging")))
}

func TestConflictStagesFromIndex(t *testing.T) {
	dir, repo := initTestRepo(t)
	r := openTestRepo(t, dir)

	idx, err := repo.Storer.Index()
	require.NoError(t, err)
	idx.Entries = append(idx.Entries,
		&index.Entry{Name: "acl.conf", Stage: index.AncestorMode, Mode: filemode.Regular},
		&index.Entry{Name: "acl.conf", Stage: index.OurMode, Mode: filemode.Regular},
		&index.Entry{Name: "acl.conf", Stage: index.TheirMode, Mode: filemode.Regular},
		&index.Entry{Name: "bgp.conf", Stage: index.OurMode, Mode: filemode.Regular},
		&index.Entry{Name: "bgp.conf", Stage: index.TheirMode, Mode: filemode.Regular},
		&index.Entry{Name: "vendor/lib", Stage: index.OurMode, Mode: filemode.Submodule},
	)
	require.NoError(t, repo.Storer.SetIndex(idx))

	stages, err := r.ConflictStages()
	require.NoError(t, err)
	assert.Equal(t, Stages{Base: true, Ours: true, Theirs: true}, stages["acl.conf"])
	assert.Equal(t, Stages{Ours: true, Theirs: true}, stages["bgp.conf"])
	assert.True(t, stages["vendor/lib"].Submodule)
	assert.NotContains(t, stages, "router1.conf")

	entries, err := r.Status()
	require.NoError(t, err)
	conflicted := map[string]bool{}
	for _, e := range entries {
		if e.Status == FileConflicted {
			conflicted[e.Path] = true
		}
	}
	assert.True(t, conflicted["acl.conf"])
	assert.True(t, conflicted["bgp.conf"])
}

func TestStageResolvesUnmergedPath(t *testing.T) {
	dir, repo := initTestRepo(t)
	r := openTestRepo(t, dir)

	idx, err := repo.Storer.Index()
	require.NoError(t, err)
	idx.Entries = append(idx.Entries,
		&index.Entry{Name: "acl.conf", Stage: index.OurMode, Mode: filemode.Regular},
		&index.Entry{Name: "acl.conf", Stage: index.TheirMode, Mode: filemode.Regular},
		&index.Entry{Name: "bgp.conf", Stage: index.OurMode, Mode: filemode.Regular},
		&index.Entry{Name: "bgp.conf", Stage: index.TheirMode, Mode: filemode.Regular},
	)
	require.NoError(t, repo.Storer.SetIndex(idx))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "acl.conf"), []byte("permit any\n"), 0644))

	require.NoError(t, r.Stage("acl.conf"))

	stages, err := r.ConflictStages()
	require.NoError(t, err)
	assert.NotContains(t, stages, "acl.conf")
	assert.Contains(t, stages, "bgp.conf")

	idx, err = repo.Storer.Index()
	require.NoError(t, err)
	entry, err := idx.Entry("acl.conf")
	require.NoError(t, err)
	assert.Equal(t, stageMerged, entry.Stage)
}

func TestFileStatusString(t *testing.T) {
	assert.Equal(t, "conflicted", FileConflicted.String())
	assert.Equal(t, "FileStatus(99)", FileStatus(99).String())
}
