package conflict

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netpromote/internal/common"
	"netpromote/internal/environment"
	"netpromote/internal/testutil"
	"netpromote/internal/vcs"
	"netpromote/pkg/errors"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestResolver(t *testing.T, opts ...ResolverOption) (*Resolver, *testutil.MockRepository, *testutil.TestHelper) {
	t.Helper()
	h := testutil.NewTestHelper(t)
	repo := testutil.NewMockRepository("staging", "develop")
	repo.RootDir = h.TempDir()

	opts = append([]ResolverOption{
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(zerolog.Nop()),
	}, opts...)
	return NewResolver(repo, opts...), repo, h
}

func strPtr(s string) *string { return &s }

func TestResolveAutoMergeAddAdd(t *testing.T) {
	r, _, _ := newTestResolver(t)
	c := NewInfo("README.md", TypeAddAdd)
	c.OurContent = strPtr("a")
	c.TheirContent = strPtr("b")

	res := r.Resolve(c, AutoMerge)
	assert.True(t, res.Success)
	assert.Equal(t, AutoMerge, res.Strategy)
	require.NotNil(t, res.ResolvedContent)
	assert.Equal(t, "a\nb", *res.ResolvedContent)
	assert.False(t, res.RequiresManualIntervention)
}

func TestResolveAutoMergeJoinsSidesVerbatim(t *testing.T) {
	r, _, _ := newTestResolver(t)
	c := NewInfo("README.md", TypeAddAdd)
	c.OurContent = strPtr("a\n")
	c.TheirContent = strPtr("b\n")

	res := r.Resolve(c, AutoMerge)
	require.True(t, res.Success)
	assert.Equal(t, "a\n\nb\n", *res.ResolvedContent)
}

func TestResolveAutoMergeRefusesBinary(t *testing.T) {
	r, _, _ := newTestResolver(t)
	c := NewInfo("logo.png", TypeAddAdd)
	c.OurContent = strPtr("\x00\x01")
	c.TheirContent = strPtr("b")

	res := r.Resolve(c, AutoMerge)
	assert.False(t, res.Success)
	assert.True(t, res.RequiresManualIntervention)
	assert.Equal(t, Manual, res.Strategy)
}

func TestResolveAutoMergeDeleteModifyKeepsOurs(t *testing.T) {
	r, _, _ := newTestResolver(t)
	for _, typ := range []Type{TypeDeleteModify, TypeModifyDelete} {
		c := NewInfo("acl/edge.conf", typ)
		c.OurContent = strPtr("permit ip any any\n")

		res := r.Resolve(c, AutoMerge)
		assert.True(t, res.Success, typ.String())
		assert.Equal(t, UseOurs, res.Strategy, typ.String())
		assert.Equal(t, "permit ip any any\n", *res.ResolvedContent)
	}

	missing := r.Resolve(NewInfo("acl/edge.conf", TypeDeleteModify), AutoMerge)
	assert.False(t, missing.Success)
	assert.True(t, missing.RequiresManualIntervention)
}

func TestResolveAutoMergeContentNeedsManual(t *testing.T) {
	r, _, _ := newTestResolver(t)
	c := NewInfo("devices/core-rtr1.conf", TypeContent)
	c.OurContent = strPtr("a")
	c.TheirContent = strPtr("b")

	res := r.Resolve(c, AutoMerge)
	assert.False(t, res.Success)
	assert.True(t, res.RequiresManualIntervention)
}

func TestResolveManual(t *testing.T) {
	r, _, _ := newTestResolver(t)
	res := r.Resolve(NewInfo("devices/core-rtr1.conf", TypeContent), Manual)

	assert.False(t, res.Success)
	assert.True(t, res.RequiresManualIntervention)
	assert.Nil(t, res.ResolvedContent)
}

func TestResolveSides(t *testing.T) {
	r, _, _ := newTestResolver(t)
	c := NewInfo("inventory.yaml", TypeContent)
	c.OurContent = strPtr("ours\n")
	c.TheirContent = strPtr("theirs\n")

	ours := r.Resolve(c, UseOurs)
	assert.True(t, ours.Success)
	assert.Equal(t, "ours\n", *ours.ResolvedContent)

	theirs := r.Resolve(c, UseTheirs)
	assert.True(t, theirs.Success)
	assert.Equal(t, "theirs\n", *theirs.ResolvedContent)

	c.TheirContent = nil
	noTheirs := r.Resolve(c, UseTheirs)
	assert.False(t, noTheirs.Success)
	assert.True(t, noTheirs.RequiresManualIntervention)
	assert.Contains(t, noTheirs.Error, "no content available")
}

func TestResolveCustomAndAbort(t *testing.T) {
	r, _, _ := newTestResolver(t)
	c := NewInfo("inventory.yaml", TypeContent)

	custom := r.Resolve(c, Custom)
	assert.False(t, custom.Success)
	assert.True(t, custom.RequiresManualIntervention)

	abort := r.Resolve(c, Abort)
	assert.False(t, abort.Success)
	assert.False(t, abort.RequiresManualIntervention)
	assert.Equal(t, Abort, abort.Strategy)

	unknown := r.Resolve(c, Strategy(99))
	assert.False(t, unknown.Success)
	assert.True(t, unknown.RequiresManualIntervention)
}

func TestApplyResolutionWritesBackupAndStages(t *testing.T) {
	r, repo, h := newTestResolver(t)
	original := h.WriteConflictedFile(repo.RootDir, "README.md", "a\n", "", "b\n")
	require.NoError(t, os.Chmod(original, 0600))
	repo.SetConflict("README.md", vcs.Stages{Ours: true, Theirs: true})

	require.NoError(t, r.ApplyResolution("README.md", "a\nb\n"))

	assert.Equal(t, "a\nb\n", h.ReadFile(original))
	info, err := os.Stat(original)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	backup := fmt.Sprintf("%s.backup.%d", original, fixedNow.Unix())
	assert.Contains(t, h.ReadFile(backup), "<<<<<<< HEAD")

	staged := repo.OperationsOfType("stage")
	require.Len(t, staged, 1)
	assert.Equal(t, []string{"README.md"}, staged[0].Arguments)
	assert.Equal(t, vcs.FileAdded, repo.Files["README.md"])
}

func TestApplyResolutionWithoutBackup(t *testing.T) {
	r, repo, h := newTestResolver(t, WithBackups(false))
	original := h.WriteFile(repo.RootDir, "notes.txt", "old\n")

	require.NoError(t, r.ApplyResolution("notes.txt", "new\n"))
	assert.Equal(t, "new\n", h.ReadFile(original))
	_, err := os.Stat(common.BackupPath(original, fixedNow))
	assert.True(t, os.IsNotExist(err))
}

func TestApplyResolutionCreatesMissingFile(t *testing.T) {
	r, repo, h := newTestResolver(t)

	require.NoError(t, r.ApplyResolution("acl/edge.conf", "permit ip any any\n"))
	full := filepath.Join(repo.RootDir, "acl", "edge.conf")
	assert.Equal(t, "permit ip any any\n", h.ReadFile(full))

	info, err := os.Stat(full)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(common.FilePermissionNormal), info.Mode().Perm())
}

func TestApplyResolutionRejectsEscapingPath(t *testing.T) {
	r, repo, _ := newTestResolver(t)

	err := r.ApplyResolution("../outside.conf", "x")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetErrorCode(err))
	assert.Empty(t, repo.OperationsOfType("stage"))
}

func TestResolveForEnvironment(t *testing.T) {
	r, repo, h := newTestResolver(t)
	h.WriteConflictedFile(repo.RootDir, "README.md", "a\n", "", "b\n")
	h.WriteConflictedFile(repo.RootDir, "devices/core-rtr1.conf", "x\n", "", "y\n")

	readme := NewInfo("README.md", TypeAddAdd)
	readme.OurContent = strPtr("a\n")
	readme.TheirContent = strPtr("b\n")
	device := NewInfo("devices/core-rtr1.conf", TypeContent)
	analysis := NewAnalysis([]Info{readme, device})

	staging := &environment.Config{Name: "staging", Type: environment.TypeStaging}
	results := r.ResolveForEnvironment(staging, analysis, true)
	require.Len(t, results, 2)

	assert.True(t, results[0].Success)
	assert.Equal(t, AutoMerge, results[0].Strategy)
	assert.Equal(t, "a\n\nb\n", h.ReadFile(filepath.Join(repo.RootDir, "README.md")))

	assert.False(t, results[1].Success)
	assert.True(t, results[1].RequiresManualIntervention)
	assert.Len(t, repo.OperationsOfType("stage"), 1)
}

func TestResolveForEnvironmentProductionNeverWrites(t *testing.T) {
	r, repo, _ := newTestResolver(t)
	readme := NewInfo("README.md", TypeAddAdd)
	readme.OurContent = strPtr("a")
	readme.TheirContent = strPtr("b")

	prod := &environment.Config{Name: "production", Type: environment.TypeProduction}
	results := r.ResolveForEnvironment(prod, NewAnalysis([]Info{readme}), true)
	require.Len(t, results, 1)
	assert.Equal(t, Manual, results[0].Strategy)
	assert.False(t, results[0].Success)
	assert.Empty(t, repo.OperationsOfType("stage"))
}

func TestResolveForEnvironmentDryRun(t *testing.T) {
	r, repo, _ := newTestResolver(t)
	readme := NewInfo("README.md", TypeAddAdd)
	readme.OurContent = strPtr("a")
	readme.TheirContent = strPtr("b")

	dev := &environment.Config{Name: "development", Type: environment.TypeDevelopment}
	results := r.ResolveForEnvironment(dev, NewAnalysis([]Info{readme}), false)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, "a\nb", *results[0].ResolvedContent)
	assert.Empty(t, repo.OperationsOfType("stage"))
}

func TestResolveForEnvironmentApplyFailureBecomesResult(t *testing.T) {
	r, _, _ := newTestResolver(t)
	c := NewInfo("../escape.md", TypeAddAdd)
	c.OurContent = strPtr("a")
	c.TheirContent = strPtr("b")

	dev := &environment.Config{Name: "development", Type: environment.TypeDevelopment}
	results := r.ResolveForEnvironment(dev, NewAnalysis([]Info{c}), true)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.True(t, results[0].RequiresManualIntervention)
	assert.NotEmpty(t, results[0].Error)
}
