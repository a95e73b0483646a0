package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netpromote/internal/environment"
	"netpromote/internal/testutil"
)

func TestPromotionOptionsNewestFirst(t *testing.T) {
	now := time.Now()
	reqs := []environment.PromotionRequest{
		{ID: "old", Source: "development", Target: "staging", Status: environment.StatusCompleted, CreatedAt: now.Add(-48 * time.Hour)},
		{ID: "new", Source: "staging", Target: "production", Status: environment.StatusPending,
			Message: strings.Repeat("x", 60) + "\nsecond line", CreatedAt: now.Add(-time.Minute * 5)},
	}

	options, ids := PromotionOptions(reqs)
	require.Len(t, options, 2)
	assert.True(t, strings.HasPrefix(options[0], "new"))
	assert.Equal(t, "new", ids[options[0]])
	assert.Equal(t, "old", ids[options[1]])
	assert.Contains(t, options[0], strings.Repeat("x", 47)+"...")
	assert.NotContains(t, options[0], "second line")
	assert.Contains(t, options[0], "[pending]")
	assert.Contains(t, options[1], "2 days ago")
}

func TestSelectPromotionEmpty(t *testing.T) {
	_, err := SelectPromotion("Pick", nil)
	assert.Error(t, err)
}

func TestConfirmAssumeYes(t *testing.T) {
	u := NewUI(false, false)
	u.AssumeYes = true
	ok, err := u.Confirm("Promote to production?", false)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestQuietSuppressesOutput(t *testing.T) {
	h := testutil.NewTestHelper(t)
	u := NewUI(false, true)

	stdout, _ := h.CaptureOutput(func() {
		u.Info("info")
		u.Success("done")
		u.Warning("careful")
		u.Printf("%s\n", "printf")
	})
	assert.Empty(t, stdout)
}

func TestVerbosePrintf(t *testing.T) {
	h := testutil.NewTestHelper(t)

	stdout, _ := h.CaptureOutput(func() {
		NewUI(false, false).VerbosePrintf("hidden\n")
		NewUI(true, false).VerbosePrintf("shown\n")
	})
	assert.NotContains(t, stdout, "hidden")
	assert.Contains(t, stdout, "shown")
}

func TestShowPromotionResult(t *testing.T) {
	withoutColor(t)
	h := testutil.NewTestHelper(t)
	start := time.Now()

	stdout, _ := h.CaptureOutput(func() {
		ShowPromotionResult(&environment.PromotionResult{
			RequestID:    "p1",
			Success:      true,
			TargetCommit: "9e8d7c6b5a",
			ChangedFiles: []string{"devices/core-rtr1.conf"},
			StartedAt:    start,
			FinishedAt:   start.Add(1500 * time.Millisecond),
		})
		ShowPromotionResult(&environment.PromotionResult{
			RequestID: "p2",
			Conflicts: []string{"acl.conf"},
		})
	})
	assert.Contains(t, stdout, "Promotion p1 completed in 1.5s")
	assert.Contains(t, stdout, "9e8d7c6")
	assert.Contains(t, stdout, "devices/core-rtr1.conf")
	assert.Contains(t, stdout, "stopped on 1 merge conflict(s)")
	assert.Contains(t, stdout, "acl.conf")
}

func TestSpinnerStopTwice(t *testing.T) {
	h := testutil.NewTestHelper(t)
	stdout, _ := h.CaptureOutput(func() {
		s := NewSpinner("working")
		s.Start()
		s.Stop(true, "finished")
		s.Stop(false, "again")
	})
	assert.Contains(t, stdout, "finished")
	assert.NotContains(t, stdout, "again")
}

func TestSpinnerFailureOutcome(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer
	s := NewSpinner("Pulling develop")
	s.out = &buf

	s.Stop(false, "pull failed")
	assert.Contains(t, buf.String(), "✗ pull failed")
	assert.NotContains(t, buf.String(), "Pulling develop")
}
