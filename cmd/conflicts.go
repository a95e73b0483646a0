package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"netpromote/internal/conflict"
	"netpromote/internal/environment"
	"netpromote/internal/ui"
	"netpromote/pkg/errors"
)

var conflictsCmd = &cobra.Command{
	Use:     "conflicts",
	Aliases: []string{"conflict"},
	Short:   "Classify and resolve merge conflicts in the working copy",
}

var conflictsDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "List conflicted files with their classification",
	Args:  cobra.NoArgs,
	RunE:  runConflictsDetect,
}

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve [path]",
	Short: "Resolve one conflicted file with the given strategy",
	Args:  cobra.ExactArgs(1),
	RunE:  runConflictsResolve,
}

var conflictsRecommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Recommend a strategy per conflict for an environment",
	Args:  cobra.NoArgs,
	RunE:  runConflictsRecommend,
}

var conflictsAutoCmd = &cobra.Command{
	Use:   "auto",
	Short: "Apply the recommended strategy to every conflict",
	Long: `Resolve every conflict with the strategy recommended for the environment and
write the results into the working copy. Conflicts whose recommendation is
manual are left for a person to resolve.`,
	Args: cobra.NoArgs,
	RunE: runConflictsAuto,
}

var (
	detectJSON        bool
	resolveStrategy   string
	resolveDryRun     bool
	conflictsEnv      string
	autoDryRun        bool
	autoCommit        bool
	autoCommitMessage string
)

func init() {
	rootCmd.AddCommand(conflictsCmd)
	conflictsCmd.AddCommand(conflictsDetectCmd, conflictsResolveCmd, conflictsRecommendCmd, conflictsAutoCmd)

	conflictsDetectCmd.Flags().BoolVar(&detectJSON, "json", false, "print the analysis as JSON")

	conflictsResolveCmd.Flags().StringVarP(&resolveStrategy, "strategy", "s", "", "ours, theirs, auto-merge or manual")
	conflictsResolveCmd.Flags().BoolVar(&resolveDryRun, "dry-run", false, "print the resolved content instead of writing it")
	_ = conflictsResolveCmd.MarkFlagRequired("strategy")

	for _, c := range []*cobra.Command{conflictsRecommendCmd, conflictsAutoCmd} {
		c.Flags().StringVarP(&conflictsEnv, "env", "e", "", "environment to recommend for (default the current one)")
	}
	conflictsAutoCmd.Flags().BoolVar(&autoDryRun, "dry-run", false, "show the outcome without writing files")
	conflictsAutoCmd.Flags().BoolVar(&autoCommit, "commit", false, "commit when every conflict was resolved")
	conflictsAutoCmd.Flags().StringVarP(&autoCommitMessage, "message", "m", "", "commit message used with --commit")
}

func detectConflicts(ws *workspace) (*conflict.Analysis, error) {
	policy, err := settings.Policy()
	if err != nil {
		return nil, err
	}
	return conflict.NewDetector(ws.repo, policy).Detect()
}

func newResolver(ws *workspace) *conflict.Resolver {
	return conflict.NewResolver(ws.repo,
		conflict.WithBackups(settings.Conflicts.BackupOriginals),
		conflict.WithScoringWeights(settings.Conflicts.Scoring),
	)
}

// targetEnvironment returns the --env environment, or the one bound to the
// checked out branch
func targetEnvironment(ws *workspace) (*environment.Config, error) {
	if conflictsEnv != "" {
		return ws.manager.Environment(conflictsEnv)
	}
	if env, ok := ws.manager.Current(); ok {
		return env, nil
	}
	return nil, errors.New(errors.ErrCodeNoCurrentEnvironment,
		"The checked out branch is not bound to an environment").
		WithSuggestions("Pass --env with the environment the merge targets")
}

func runConflictsDetect(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer ws.Close()

	analysis, err := detectConflicts(ws)
	if err != nil {
		return err
	}

	if detectJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(analysis)
	}
	if analysis.Total == 0 {
		out.Success("No conflicts detected")
		return nil
	}
	ui.RenderAnalysis(cmd.OutOrStdout(), analysis)
	return nil
}

func runConflictsResolve(cmd *cobra.Command, args []string) error {
	strategy, err := conflict.ParseStrategy(resolveStrategy)
	if err != nil {
		return errors.ValidationError("strategy", resolveStrategy, err.Error())
	}

	ws, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer ws.Close()

	analysis, err := detectConflicts(ws)
	if err != nil {
		return err
	}

	var target *conflict.Info
	for i := range analysis.Conflicts {
		if analysis.Conflicts[i].Path == args[0] {
			target = &analysis.Conflicts[i]
			break
		}
	}
	if target == nil {
		return errors.NotFound(errors.ErrCodeFileNotFound, "conflicted file", args[0]).
			WithSuggestions("List conflicted files with 'netpromote conflicts detect'")
	}

	resolver := newResolver(ws)
	result := resolver.Resolve(*target, strategy)
	if !result.Success {
		e := errors.New(errors.ErrCodeResolutionFailed,
			fmt.Sprintf("Could not resolve %s with %s", target.Path, strategy))
		if result.Error != "" {
			e = e.WithContext("reason", result.Error)
		}
		if result.RequiresManualIntervention {
			e = e.WithSuggestions("Edit the file by hand, then stage it with 'git add " + target.Path + "'")
		}
		return e
	}

	content := ""
	if result.ResolvedContent != nil {
		content = *result.ResolvedContent
	}
	if resolveDryRun {
		fmt.Fprint(cmd.OutOrStdout(), content)
		return nil
	}
	if err := resolver.ApplyResolution(target.Path, content); err != nil {
		return err
	}
	out.Success(fmt.Sprintf("Resolved %s with %s", target.Path, result.Strategy))
	return nil
}

func runConflictsRecommend(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer ws.Close()

	env, err := targetEnvironment(ws)
	if err != nil {
		return err
	}
	analysis, err := detectConflicts(ws)
	if err != nil {
		return err
	}
	if analysis.Total == 0 {
		out.Success("No conflicts detected")
		return nil
	}

	resolver := newResolver(ws)
	recs := make([]conflict.Recommendation, 0, analysis.Total)
	for _, c := range analysis.Conflicts {
		recs = append(recs, resolver.Recommend(env, c))
	}
	out.Info(fmt.Sprintf("Recommendations for %s (%s)", env.Name, env.Type))
	ui.RenderRecommendations(cmd.OutOrStdout(), recs)
	return nil
}

func runConflictsAuto(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer ws.Close()

	env, err := targetEnvironment(ws)
	if err != nil {
		return err
	}
	analysis, err := detectConflicts(ws)
	if err != nil {
		return err
	}
	if analysis.Total == 0 {
		out.Success("No conflicts detected")
		return nil
	}

	results := newResolver(ws).ResolveForEnvironment(env, analysis, !autoDryRun)
	ui.RenderResults(cmd.OutOrStdout(), results)

	resolved := 0
	for _, r := range results {
		if r.Success {
			resolved++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d conflict(s) resolved\n", resolved, len(results))

	if autoDryRun || !autoCommit {
		return nil
	}
	if resolved != len(results) {
		out.Warning("Not committing: some conflicts still need manual resolution")
		return nil
	}

	message := autoCommitMessage
	if message == "" {
		message = fmt.Sprintf("Resolve %d conflict(s) for %s", resolved, env.Name)
	}
	hash, err := ws.repo.Commit(message, nil, nil)
	if err != nil {
		return err
	}
	out.Success("Committed " + hash)
	return nil
}
