package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netpromote/internal/environment"
	"netpromote/pkg/errors"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.yaml")
	s := NewFileStore(path)

	created := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	completed := created.Add(time.Minute)
	state := environment.State{
		Environments: []environment.Config{
			{
				Name:             "staging",
				Type:             environment.TypeStaging,
				Branch:           "staging",
				AllowedSources:   []string{"development"},
				RequiresApproval: true,
				Protection: environment.Protection{
					RequiredReviewers:    1,
					RequireStatusChecks:  true,
					RequiredStatusChecks: []string{"validate"},
				},
				CreatedAt: created,
				UpdatedAt: created,
			},
		},
		Promotions: []environment.PromotionRequest{
			{
				ID:           "promo-development-staging-1773478800-1a2b3c4d",
				Source:       "development",
				Target:       "staging",
				SourceBranch: "develop",
				TargetBranch: "staging",
				SourceCommit: "4f2a9c1",
				Status:       environment.StatusFailed,
				Conflicts:    []string{"devices/core-rtr1.conf"},
				CreatedAt:    created,
				UpdatedAt:    completed,
				CompletedAt:  &completed,
				Metadata:     map[string]string{"source_type": "development"},
			},
		},
	}

	require.NoError(t, s.Save(state))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "status: failed")
	assert.Contains(t, string(raw), "type: staging")

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, state.Environments, loaded.Environments)
	require.Len(t, loaded.Promotions, 1)
	got := loaded.Promotions[0]
	assert.Equal(t, environment.StatusFailed, got.Status)
	assert.Equal(t, state.Promotions[0].Conflicts, got.Conflicts)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, completed.Equal(*got.CompletedAt))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestFileStoreLoadMissing(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "state.yaml"))
	state, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, state.Environments)
	assert.Empty(t, state.Promotions)
}

func TestFileStoreLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environments: [unterminated"), 0600))

	_, err := NewFileStore(path).Load()
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStorage, errors.GetErrorCode(err))
}

func TestFileStoreLoadUnknownStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte("promotions:\n  - id: p1\n    status: exploded\n"), 0600))

	_, err := NewFileStore(path).Load()
	assert.Error(t, err)
}

func TestFileStoreFeedsManager(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	s := NewFileStore(path)
	require.NoError(t, s.Save(environment.State{
		Environments: []environment.Config{
			{Name: "development", Type: environment.TypeDevelopment, Branch: "develop"},
			{Name: "lab", Type: environment.TypeCustom, Branch: "develop"},
		},
	}))

	state, err := s.Load()
	require.NoError(t, err)

	m := environment.NewManager(nil)
	err = m.Restore(state)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDuplicateBranch, errors.GetErrorCode(err))
}
