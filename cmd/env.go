package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"netpromote/internal/environment"
	"netpromote/internal/ui"
	"netpromote/pkg/errors"
)

var envCmd = &cobra.Command{
	Use:     "env",
	Aliases: []string{"environment"},
	Short:   "Manage the environment registry",
}

var envListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered environments",
	Args:  cobra.NoArgs,
	RunE:  runEnvList,
}

var envInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Register the default development, staging and production environments",
	Args:  cobra.NoArgs,
	RunE:  runEnvInit,
}

var envRegisterCmd = &cobra.Command{
	Use:   "register [name]",
	Short: "Register a custom environment",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnvRegister,
}

var envSwitchCmd = &cobra.Command{
	Use:   "switch [name]",
	Short: "Check out the branch of an environment",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnvSwitch,
}

var envCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the environment of the checked out branch",
	Args:  cobra.NoArgs,
	RunE:  runEnvCurrent,
}

var envSyncCmd = &cobra.Command{
	Use:   "sync [name]",
	Short: "Fast-forward an environment branch from the remote",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnvSync,
}

var (
	createBranches bool

	registerType             string
	registerBranch           string
	registerDescription      string
	registerSources          []string
	registerRequiresApproval bool
	registerReviewers        int
	registerStatusChecks     []string

	syncRemote string
)

func init() {
	rootCmd.AddCommand(envCmd)
	envCmd.AddCommand(envListCmd, envInitCmd, envRegisterCmd, envSwitchCmd, envCurrentCmd, envSyncCmd)

	envInitCmd.Flags().BoolVar(&createBranches, "create-branches", false, "create missing environment branches from HEAD")

	envRegisterCmd.Flags().StringVar(&registerType, "type", "custom", "environment type (development, staging, production, custom)")
	envRegisterCmd.Flags().StringVar(&registerBranch, "branch", "", "branch bound to the environment")
	envRegisterCmd.Flags().StringVar(&registerDescription, "description", "", "free-form description")
	envRegisterCmd.Flags().StringSliceVar(&registerSources, "allowed-sources", nil, "environments allowed to promote into this one (empty allows all)")
	envRegisterCmd.Flags().BoolVar(&registerRequiresApproval, "requires-approval", false, "require approval before promotions execute")
	envRegisterCmd.Flags().IntVar(&registerReviewers, "reviewers", 0, "number of required reviewers")
	envRegisterCmd.Flags().StringSliceVar(&registerStatusChecks, "status-checks", nil, "required status checks")
	_ = envRegisterCmd.MarkFlagRequired("branch")

	envSyncCmd.Flags().StringVar(&syncRemote, "remote", "", "remote to pull from (default repository.remote)")
}

func runEnvList(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer ws.Close()

	envs := ws.manager.Environments()
	if len(envs) == 0 {
		out.Info("No environments registered. Run 'netpromote env init' to create the defaults")
		return nil
	}
	ui.RenderEnvironments(cmd.OutOrStdout(), envs, ws.currentEnvironmentName())
	return nil
}

func runEnvInit(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer ws.Close()

	if err := ws.manager.InitializeDefaults(); err != nil {
		return err
	}

	if createBranches {
		existing, err := ws.repo.ListBranches("")
		if err != nil {
			return err
		}
		known := make(map[string]bool, len(existing))
		for _, b := range existing {
			known[b.Name] = true
		}
		for _, env := range ws.manager.Environments() {
			if known[env.Branch] {
				continue
			}
			if err := ws.repo.CreateBranch(env.Branch, ""); err != nil {
				return err
			}
			out.Info(fmt.Sprintf("Created branch %s for %s", env.Branch, env.Name))
		}
	}

	if err := ws.save(); err != nil {
		return err
	}
	out.Success("Registered development, staging and production environments")
	return nil
}

func runEnvRegister(cmd *cobra.Command, args []string) error {
	envType, err := environment.ParseType(registerType)
	if err != nil {
		return errors.ValidationError("type", registerType, err.Error())
	}

	ws, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer ws.Close()

	cfg := environment.Config{
		Name:             args[0],
		Type:             envType,
		Branch:           registerBranch,
		Description:      registerDescription,
		AllowedSources:   registerSources,
		RequiresApproval: registerRequiresApproval,
		Protection: environment.Protection{
			RequiredReviewers:    registerReviewers,
			RequireStatusChecks:  len(registerStatusChecks) > 0,
			RequiredStatusChecks: registerStatusChecks,
		},
	}
	if err := ws.manager.Register(cfg); err != nil {
		return err
	}
	if err := ws.save(); err != nil {
		return err
	}
	out.Success(fmt.Sprintf("Registered environment %s on branch %s", cfg.Name, cfg.Branch))
	return nil
}

func runEnvSwitch(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer ws.Close()

	if err := ws.manager.Switch(args[0]); err != nil {
		return err
	}
	env, err := ws.manager.Environment(args[0])
	if err != nil {
		return err
	}
	out.Success(fmt.Sprintf("Switched to %s (%s)", env.Name, env.Branch))
	return nil
}

func runEnvCurrent(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer ws.Close()

	env, ok := ws.manager.Current()
	if !ok {
		branch, _ := ws.repo.CurrentBranch()
		out.Warning(fmt.Sprintf("Branch %s is not bound to an environment", branch))
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, branch %s)\n", env.Name, env.Type, env.Branch)
	return nil
}

func runEnvSync(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace(cmd.Context())
	if err != nil {
		return err
	}
	defer ws.Close()

	remote := syncRemote
	if remote == "" {
		remote = settings.Repository.Remote
	}

	env, err := ws.manager.Environment(args[0])
	if err != nil {
		return err
	}
	if err := ws.manager.Switch(env.Name); err != nil {
		return err
	}

	out.StartProgress(fmt.Sprintf("Pulling %s", env.Branch))
	if err := ws.repo.Pull(cmd.Context(), remote, env.Branch); err != nil {
		out.StopProgress(false, "Pull failed")
		return err
	}
	out.StopProgress(true, "Pulled "+env.Branch)

	commit, err := ws.repo.CurrentCommit()
	if err != nil {
		return err
	}
	out.Success(fmt.Sprintf("%s is at %s", env.Name, commit))
	return nil
}
