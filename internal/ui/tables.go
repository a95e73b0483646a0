package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"netpromote/internal/conflict"
	"netpromote/internal/environment"
)

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	return table
}

// StatusLabel colors a promotion status by outcome
func StatusLabel(s environment.Status) string {
	label := s.String()
	if !supportsColor {
		return label
	}
	switch s {
	case environment.StatusCompleted:
		return color.GreenString(label)
	case environment.StatusFailed, environment.StatusRejected:
		return color.RedString(label)
	case environment.StatusPending, environment.StatusApproved:
		return color.YellowString(label)
	case environment.StatusInProgress:
		return color.BlueString(label)
	default:
		return color.HiBlackString(label)
	}
}

func strategyLabel(s conflict.Strategy) string {
	label := s.String()
	if !supportsColor {
		return label
	}
	switch s {
	case conflict.Manual, conflict.Abort:
		return color.YellowString(label)
	default:
		return color.GreenString(label)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// RenderEnvironments writes the environment registry as a table, marking
// the environment whose branch is checked out
func RenderEnvironments(w io.Writer, envs []environment.Config, current string) {
	table := newTable(w, []string{"", "Name", "Type", "Branch", "Approval", "Reviewers", "Allowed sources"})
	for _, env := range envs {
		marker := ""
		if env.Name == current {
			marker = "*"
		}
		sources := strings.Join(env.AllowedSources, ", ")
		if sources == "" {
			sources = "-"
		}
		table.Append([]string{
			marker,
			env.Name,
			env.Type.String(),
			env.Branch,
			yesNo(env.RequiresApproval),
			fmt.Sprintf("%d", env.Protection.RequiredReviewers),
			sources,
		})
	}
	table.Render()
}

// RenderPromotions writes promotion requests as a table
func RenderPromotions(w io.Writer, reqs []environment.PromotionRequest) {
	table := newTable(w, []string{"ID", "Path", "Status", "Commit", "Requested by", "Created"})
	for _, req := range reqs {
		table.Append([]string{
			req.ID,
			req.Source + " -> " + req.Target,
			StatusLabel(req.Status),
			shortHash(req.SourceCommit),
			req.RequestedBy,
			formatRelativeTime(req.CreatedAt),
		})
	}
	table.Render()
}

// RenderAnalysis writes a conflict analysis as a table followed by its summary
func RenderAnalysis(w io.Writer, analysis *conflict.Analysis) {
	table := newTable(w, []string{"#", "Path", "Type", "Auto", "Suggested"})
	for i, c := range analysis.Conflicts {
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			c.Path,
			c.Type.String(),
			yesNo(c.AutoResolvable),
			strategyLabel(c.SuggestedStrategy),
		})
	}
	table.Render()

	fmt.Fprintf(w, "\n%d conflict(s): %d auto-resolvable, %d manual\n",
		analysis.Total, analysis.AutoResolvableCount, analysis.ManualCount)
	fmt.Fprintf(w, "%s\n", analysis.RecommendedApproach)
}

// RenderRecommendations writes environment-aware recommendations as a table
func RenderRecommendations(w io.Writer, recs []conflict.Recommendation) {
	table := newTable(w, []string{"Path", "Strategy", "Confidence", "Reasoning"})
	for _, rec := range recs {
		table.Append([]string{
			rec.Path,
			strategyLabel(rec.Strategy),
			fmt.Sprintf("%.0f%%", rec.Confidence*100),
			rec.Reasoning,
		})
	}
	table.Render()
}

// RenderResults writes resolution outcomes as a table
func RenderResults(w io.Writer, results []conflict.Result) {
	table := newTable(w, []string{"Path", "Strategy", "Outcome", "Detail"})
	for _, r := range results {
		outcome := "resolved"
		switch {
		case r.Success:
		case r.RequiresManualIntervention:
			outcome = "manual"
		default:
			outcome = "skipped"
		}
		if supportsColor {
			switch outcome {
			case "resolved":
				outcome = color.GreenString(outcome)
			case "manual":
				outcome = color.YellowString(outcome)
			default:
				outcome = color.HiBlackString(outcome)
			}
		}
		table.Append([]string{r.Path, strategyLabel(r.Strategy), outcome, r.Error})
	}
	table.Render()
}
