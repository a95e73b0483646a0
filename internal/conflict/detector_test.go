package conflict

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netpromote/internal/testutil"
	"netpromote/internal/vcs"
	"netpromote/pkg/errors"
)

func newTestDetector(t *testing.T) (*Detector, *testutil.MockRepository, *testutil.TestHelper) {
	t.Helper()
	h := testutil.NewTestHelper(t)
	repo := testutil.NewMockRepository("staging", "develop")
	repo.RootDir = h.TempDir()

	d := NewDetector(repo, DefaultPolicy())
	d.logger = zerolog.Nop()
	return d, repo, h
}

func findConflict(t *testing.T, a *Analysis, path string) Info {
	t.Helper()
	for _, c := range a.Conflicts {
		if c.Path == path {
			return c
		}
	}
	t.Fatalf("conflict %s not found", path)
	return Info{}
}

func TestDetectNoConflicts(t *testing.T) {
	d, repo, _ := newTestDetector(t)
	repo.Files["devices/core-rtr1.conf"] = vcs.FileModified

	a, err := d.Detect()
	require.NoError(t, err)
	assert.Equal(t, 0, a.Total)
	assert.True(t, a.CanAutoResolve)
	assert.Equal(t, "No conflicts detected", a.RecommendedApproach)
}

func TestDetectClassifiesByStages(t *testing.T) {
	d, repo, h := newTestDetector(t)

	h.WriteConflictedFile(repo.RootDir, "devices/core-rtr1.conf", "ntp server 10.0.0.1\n", "ntp server 10.0.0.9\n", "ntp server 10.0.0.2\n")
	repo.SetConflict("devices/core-rtr1.conf", vcs.Stages{Base: true, Ours: true, Theirs: true})

	h.WriteConflictedFile(repo.RootDir, "README.md", "a\n", "", "b\n")
	repo.SetConflict("README.md", vcs.Stages{Ours: true, Theirs: true})

	h.WriteFile(repo.RootDir, "acl/edge.conf", "permit ip any any\n")
	repo.SetConflict("acl/edge.conf", vcs.Stages{Base: true, Theirs: true})

	h.WriteFile(repo.RootDir, "inventory.yaml", "devices: []\n")
	repo.SetConflict("inventory.yaml", vcs.Stages{Base: true, Ours: true})

	repo.SetConflict("vendor/templates", vcs.Stages{Ours: true, Theirs: true, Submodule: true})

	h.WriteFile(repo.RootDir, "images/topology.png", "\x89PNG\x00\x01")
	repo.SetConflict("images/topology.png", vcs.Stages{Base: true, Ours: true, Theirs: true})

	a, err := d.Detect()
	require.NoError(t, err)
	assert.Equal(t, 6, a.Total)
	assert.Equal(t, 3, a.AutoResolvableCount)
	assert.Equal(t, 3, a.ManualCount)
	assert.False(t, a.CanAutoResolve)

	content := findConflict(t, a, "devices/core-rtr1.conf")
	assert.Equal(t, TypeContent, content.Type)
	require.NotNil(t, content.OurContent)
	require.NotNil(t, content.TheirContent)
	require.NotNil(t, content.BaseContent)
	assert.Equal(t, "ntp server 10.0.0.1\n", *content.OurContent)
	assert.Equal(t, "ntp server 10.0.0.2\n", *content.TheirContent)
	assert.Equal(t, "ntp server 10.0.0.9\n", *content.BaseContent)
	assert.Equal(t, "123", content.Metadata["stages"])
	assert.Equal(t, "1", content.Metadata["hunks"])

	readme := findConflict(t, a, "README.md")
	assert.Equal(t, TypeAddAdd, readme.Type)
	assert.True(t, readme.AutoResolvable)
	assert.Equal(t, AutoMerge, readme.SuggestedStrategy)
	assert.Nil(t, readme.BaseContent)
	assert.Equal(t, "-23", readme.Metadata["stages"])

	deleted := findConflict(t, a, "acl/edge.conf")
	assert.Equal(t, TypeDeleteModify, deleted.Type)
	assert.Nil(t, deleted.OurContent)
	require.NotNil(t, deleted.TheirContent)
	assert.Equal(t, "permit ip any any\n", *deleted.TheirContent)

	modified := findConflict(t, a, "inventory.yaml")
	assert.Equal(t, TypeModifyDelete, modified.Type)
	require.NotNil(t, modified.OurContent)
	assert.Equal(t, UseOurs, modified.SuggestedStrategy)

	sub := findConflict(t, a, "vendor/templates")
	assert.Equal(t, TypeSubmodule, sub.Type)
	assert.False(t, sub.AutoResolvable)
	assert.NotContains(t, sub.Metadata, "read_error")

	binary := findConflict(t, a, "images/topology.png")
	assert.Equal(t, TypeBinary, binary.Type)
	assert.Nil(t, binary.OurContent)
	assert.Equal(t, "6", binary.Metadata["size"])
}

func TestDetectManualPatternOverridesAddAdd(t *testing.T) {
	d, repo, h := newTestDetector(t)
	h.WriteConflictedFile(repo.RootDir, "config.key", "key-a\n", "", "key-b\n")
	repo.SetConflict("config.key", vcs.Stages{Ours: true, Theirs: true})

	a, err := d.Detect()
	require.NoError(t, err)
	require.Len(t, a.Conflicts, 1)

	c := a.Conflicts[0]
	assert.Equal(t, TypeAddAdd, c.Type)
	assert.False(t, c.AutoResolvable)
	assert.Equal(t, Manual, c.SuggestedStrategy)
	assert.Equal(t, 1, a.ManualCount)
}

func TestDetectWithoutStagesTreatsEverythingAsContent(t *testing.T) {
	h := testutil.NewTestHelper(t)
	mock := testutil.NewMockRepository("staging")
	mock.RootDir = h.TempDir()

	h.WriteConflictedFile(mock.RootDir, "README.md", "a\n", "", "b\n")
	mock.SetConflict("README.md", vcs.Stages{Ours: true, Theirs: true})
	h.WriteFile(mock.RootDir, "blob.bin", "x\x00y")
	mock.SetConflict("blob.bin", vcs.Stages{Base: true, Ours: true, Theirs: true})

	d := NewDetector(testutil.StaticRepository{Repository: mock}, DefaultPolicy())
	d.logger = zerolog.Nop()

	a, err := d.Detect()
	require.NoError(t, err)
	assert.Equal(t, TypeContent, findConflict(t, a, "README.md").Type)
	assert.NotContains(t, findConflict(t, a, "README.md").Metadata, "stages")
	assert.Equal(t, TypeBinary, findConflict(t, a, "blob.bin").Type)
	assert.Equal(t, 0, a.AutoResolvableCount)
}

func TestDetectStatusError(t *testing.T) {
	d, repo, _ := newTestDetector(t)
	repo.StatusError = fmt.Errorf("index locked")

	_, err := d.Detect()
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeRepoNotFound, errors.GetErrorCode(err))
}

func TestDetectMissingFileHasNoContent(t *testing.T) {
	d, repo, _ := newTestDetector(t)
	repo.SetConflict("gone.conf", vcs.Stages{Base: true, Ours: true, Theirs: true})

	a, err := d.Detect()
	require.NoError(t, err)
	c := findConflict(t, a, "gone.conf")
	assert.Equal(t, TypeContent, c.Type)
	assert.Nil(t, c.OurContent)
	assert.NotContains(t, c.Metadata, "read_error")
}
