package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"netpromote/internal/conflict"
	"netpromote/internal/environment"
)

func withoutColor(t *testing.T) {
	t.Helper()
	prev := supportsColor
	supportsColor = false
	t.Cleanup(func() { supportsColor = prev })
}

func TestRenderEnvironments(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer
	RenderEnvironments(&buf, []environment.Config{
		{Name: "development", Type: environment.TypeDevelopment, Branch: "develop"},
		{Name: "staging", Type: environment.TypeStaging, Branch: "staging", RequiresApproval: true,
			AllowedSources: []string{"development"}, Protection: environment.Protection{RequiredReviewers: 1}},
	}, "staging")

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "develop")
	lines := strings.Split(out, "\n")
	var stagingLine string
	for _, l := range lines {
		if strings.Contains(l, "staging") && strings.Contains(l, "yes") {
			stagingLine = l
		}
	}
	assert.Contains(t, stagingLine, "*")
	assert.Contains(t, stagingLine, "development")
}

func TestRenderPromotions(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer
	RenderPromotions(&buf, []environment.PromotionRequest{
		{
			ID:           "promo-development-staging-1-abcdef12",
			Source:       "development",
			Target:       "staging",
			SourceCommit: "4f2a9c1e5d",
			Status:       environment.StatusPending,
			RequestedBy:  "netops",
			CreatedAt:    time.Now().Add(-2 * time.Hour),
		},
	})

	out := buf.String()
	assert.Contains(t, out, "promo-development-staging-1-abcdef12")
	assert.Contains(t, out, "development -> staging")
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "4f2a9c1")
	assert.NotContains(t, out, "4f2a9c1e")
	assert.Contains(t, out, "2 hours ago")
}

func TestRenderAnalysis(t *testing.T) {
	withoutColor(t)
	readme := conflict.NewInfo("README.md", conflict.TypeAddAdd)
	readme.SuggestedStrategy = conflict.AutoMerge
	analysis := conflict.NewAnalysis([]conflict.Info{
		readme,
		conflict.NewInfo("devices/core-rtr1.conf", conflict.TypeContent),
	})

	var buf bytes.Buffer
	RenderAnalysis(&buf, analysis)
	out := buf.String()
	assert.Contains(t, out, "add_add")
	assert.Contains(t, out, "auto-merge")
	assert.Contains(t, out, "2 conflict(s): 1 auto-resolvable, 1 manual")
	assert.Contains(t, out, "Resolve 1 conflict(s) automatically, then 1 manually")
}

func TestRenderRecommendationsAndResults(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer
	RenderRecommendations(&buf, []conflict.Recommendation{
		{Path: "README.md", Strategy: conflict.AutoMerge, Confidence: 0.76, Reasoning: "Staging combines both sides"},
	})
	assert.Contains(t, buf.String(), "76%")
	assert.Contains(t, buf.String(), "Staging combines both sides")

	buf.Reset()
	RenderResults(&buf, []conflict.Result{
		{Path: "README.md", Success: true, Strategy: conflict.AutoMerge},
		{Path: "acl.conf", Strategy: conflict.Manual, RequiresManualIntervention: true},
		{Path: "x.conf", Strategy: conflict.Abort, Error: "resolution aborted"},
	})
	out := buf.String()
	assert.Contains(t, out, "resolved")
	assert.Contains(t, out, "manual")
	assert.Contains(t, out, "skipped")
	assert.Contains(t, out, "resolution aborted")
}

func TestStatusLabelPlain(t *testing.T) {
	withoutColor(t)
	assert.Equal(t, "in_progress", StatusLabel(environment.StatusInProgress))
}
