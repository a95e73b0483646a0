package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"netpromote/internal/environment"
	"netpromote/internal/ui"
	"netpromote/pkg/errors"
)

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Request, review and execute promotions between environments",
}

var promoteCreateCmd = &cobra.Command{
	Use:   "create [source] [target]",
	Short: "Request promotion of the source environment into the target",
	Args:  cobra.ExactArgs(2),
	RunE:  runPromoteCreate,
}

var promoteApproveCmd = &cobra.Command{
	Use:   "approve [id]",
	Short: "Approve a pending promotion",
	Long:  "Approve a pending promotion. Without an id the pending promotions are offered for selection.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPromoteApprove,
}

var promoteRejectCmd = &cobra.Command{
	Use:   "reject [id]",
	Short: "Reject a pending promotion",
	Args:  cobra.ExactArgs(1),
	RunE:  runPromoteReject,
}

var promoteExecuteCmd = &cobra.Command{
	Use:   "execute [id]",
	Short: "Merge an approved promotion into its target branch",
	Long: `Merge an approved promotion into its target branch. Without an id the
approved promotions are offered for selection. Promotions into a production
environment ask for confirmation unless --yes is given.

Only fast-forwards are applied. When both branches changed the same files the
promotion fails with the list of files and leaves the working copy untouched;
no conflict markers are written. Merge the source branch into the target with
git, resolve the markers with 'netpromote conflicts', commit, then run
'netpromote promote retry' and execute again.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPromoteExecute,
}

var promoteCancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a promotion that has not started",
	Args:  cobra.ExactArgs(1),
	RunE:  runPromoteCancel,
}

var promoteRetryCmd = &cobra.Command{
	Use:   "retry [id]",
	Short: "Return a failed promotion to approved so it can run again",
	Long: `Return a failed promotion to approved so it can run again. Retrying a
promotion that stopped on merge conflicts repeats the same conflict until the
source branch has been merged into the target and committed.`,
	Args: cobra.ExactArgs(1),
	RunE: runPromoteRetry,
}

var promoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List promotion requests",
	Args:  cobra.NoArgs,
	RunE:  runPromoteList,
}

var promoteShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show one promotion request",
	Args:  cobra.ExactArgs(1),
	RunE:  runPromoteShow,
}

var promoteHistoryCmd = &cobra.Command{
	Use:   "history [environment]",
	Short: "List promotions into or out of an environment",
	Args:  cobra.ExactArgs(1),
	RunE:  runPromoteHistory,
}

var promoteBlockersCmd = &cobra.Command{
	Use:   "blockers [id]",
	Short: "Explain why a promotion cannot execute now",
	Args:  cobra.ExactArgs(1),
	RunE:  runPromoteBlockers,
}

var (
	promoteMessage string
	promoteActor   string
	promoteReason  string
	listStatus     string
)

func init() {
	rootCmd.AddCommand(promoteCmd)
	promoteCmd.AddCommand(
		promoteCreateCmd,
		promoteApproveCmd,
		promoteRejectCmd,
		promoteExecuteCmd,
		promoteCancelCmd,
		promoteRetryCmd,
		promoteListCmd,
		promoteShowCmd,
		promoteHistoryCmd,
		promoteBlockersCmd,
	)

	promoteCreateCmd.Flags().StringVarP(&promoteMessage, "message", "m", "", "description of the change being promoted")
	for _, c := range []*cobra.Command{promoteCreateCmd, promoteApproveCmd, promoteRejectCmd} {
		c.Flags().StringVar(&promoteActor, "by", "", "user recorded on the request (default $USER)")
	}
	promoteRejectCmd.Flags().StringVar(&promoteReason, "reason", "", "reason recorded with the rejection")
	promoteCancelCmd.Flags().StringVar(&promoteReason, "reason", "", "reason recorded with the cancellation")
	promoteListCmd.Flags().StringVar(&listStatus, "status", "", "only list requests with this status")
}

// actor returns the user recorded on workflow actions
func actor() string {
	if promoteActor != "" {
		return promoteActor
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return settings.Commit.AuthorName
}

// pickPromotion returns args[0], or asks the user to choose among the
// requests with the given status
func pickPromotion(ws *workspace, args []string, status environment.Status, verb string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}

	var candidates []environment.PromotionRequest
	for _, req := range ws.manager.Promotions() {
		if req.Status == status {
			candidates = append(candidates, req)
		}
	}
	if len(candidates) == 0 {
		return "", errors.New(errors.ErrCodePromotionNotFound,
			fmt.Sprintf("No %s promotions to %s", status, verb)).
			WithSuggestions("List promotions with 'netpromote promote list'")
	}
	return ui.SelectPromotion(fmt.Sprintf("Select a promotion to %s:", verb), candidates)
}

func runPromoteCreate(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer ws.Close()

	id, err := ws.manager.CreatePromotionRequest(args[0], args[1], promoteMessage, actor())
	if err != nil {
		return err
	}
	if err := ws.save(); err != nil {
		return err
	}

	req, err := ws.manager.Promotion(id)
	if err != nil {
		return err
	}
	out.Success(fmt.Sprintf("Created promotion %s -> %s (%s)", req.Source, req.Target, req.Status))
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func runPromoteApprove(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer ws.Close()

	id, err := pickPromotion(ws, args, environment.StatusPending, "approve")
	if err != nil {
		return err
	}
	if err := ws.manager.Approve(id, actor()); err != nil {
		return err
	}
	if err := ws.save(); err != nil {
		return err
	}
	out.Success("Approved " + id)
	return nil
}

func runPromoteReject(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer ws.Close()

	if err := ws.manager.Reject(args[0], actor(), promoteReason); err != nil {
		return err
	}
	if err := ws.save(); err != nil {
		return err
	}
	out.Success("Rejected " + args[0])
	return nil
}

func runPromoteExecute(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer ws.Close()

	id, err := pickPromotion(ws, args, environment.StatusApproved, "execute")
	if err != nil {
		return err
	}
	req, err := ws.manager.Promotion(id)
	if err != nil {
		return err
	}

	blockers, err := ws.manager.Blockers(id)
	if err != nil {
		return err
	}
	if len(blockers) > 0 {
		out.Warning(fmt.Sprintf("Promotion %s is blocked:", id))
		ui.PrintList(blockers)
		return errors.InvalidState(id, req.Status.String(), environment.StatusInProgress.String())
	}

	if target, err := ws.manager.Environment(req.Target); err == nil && target.Type == environment.TypeProduction {
		ok, err := out.Confirm(fmt.Sprintf("Promote %s into production environment %s?", req.Source, req.Target), false)
		if err != nil {
			return err
		}
		if !ok {
			out.Info("Promotion not executed")
			return nil
		}
	}

	out.StartProgress(fmt.Sprintf("Promoting %s -> %s", req.SourceBranch, req.TargetBranch))
	result, execErr := ws.manager.Execute(cmd.Context(), id)
	out.StopProgress(execErr == nil && result != nil && result.Success, "Promotion finished")

	// the request's final status is persisted whatever the outcome
	if err := ws.save(); err != nil {
		return err
	}
	if result != nil {
		ui.ShowPromotionResult(result)
	}
	if execErr != nil {
		return execErr
	}
	if len(result.Conflicts) > 0 {
		return errors.New(errors.ErrCodeMergeConflict,
			fmt.Sprintf("Promotion %s stopped on merge conflicts", id)).
			WithContext("files", result.Conflicts).
			WithSuggestions(
				"Merge "+req.SourceBranch+" into "+req.TargetBranch+" with git, then run 'netpromote conflicts detect'",
				"Retry afterwards with 'netpromote promote retry "+id+"'",
			)
	}
	return nil
}

func runPromoteCancel(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer ws.Close()

	if err := ws.manager.Cancel(args[0], promoteReason); err != nil {
		return err
	}
	if err := ws.save(); err != nil {
		return err
	}
	out.Success("Cancelled " + args[0])
	return nil
}

func runPromoteRetry(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer ws.Close()

	if err := ws.manager.Retry(args[0]); err != nil {
		return err
	}
	if err := ws.save(); err != nil {
		return err
	}
	out.Success(fmt.Sprintf("Promotion %s is approved again; run 'netpromote promote execute %s'", args[0], args[0]))
	return nil
}

func runPromoteList(cmd *cobra.Command, args []string) error {
	var filter *environment.Status
	if listStatus != "" {
		s, err := environment.ParseStatus(listStatus)
		if err != nil {
			return errors.ValidationError("status", listStatus, err.Error())
		}
		filter = &s
	}

	ws, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer ws.Close()

	var reqs []environment.PromotionRequest
	for _, req := range ws.manager.Promotions() {
		if filter == nil || req.Status == *filter {
			reqs = append(reqs, req)
		}
	}
	if len(reqs) == 0 {
		out.Info("No promotions found")
		return nil
	}
	ui.RenderPromotions(cmd.OutOrStdout(), reqs)
	return nil
}

func runPromoteShow(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer ws.Close()

	req, err := ws.manager.Promotion(args[0])
	if err != nil {
		return err
	}
	ui.ShowPromotion(*req)
	return nil
}

func runPromoteHistory(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer ws.Close()

	if _, err := ws.manager.Environment(args[0]); err != nil {
		return err
	}
	reqs := ws.manager.History(args[0])
	if len(reqs) == 0 {
		out.Info("No promotions into or out of " + args[0])
		return nil
	}
	ui.RenderPromotions(cmd.OutOrStdout(), reqs)
	return nil
}

func runPromoteBlockers(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer ws.Close()

	blockers, err := ws.manager.Blockers(args[0])
	if err != nil {
		return err
	}
	if len(blockers) == 0 {
		out.Success(fmt.Sprintf("Promotion %s can execute", args[0]))
		return nil
	}
	for _, b := range blockers {
		fmt.Fprintf(cmd.OutOrStdout(), "- %s\n", b)
	}
	return nil
}
