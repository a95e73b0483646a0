package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"netpromote/internal/config"
	"netpromote/internal/logging"
	"netpromote/internal/ui"
)

var (
	cfgFile   string
	repoPath  string
	verbosity int
	assumeYes bool
	quiet     bool

	settings *config.Settings
	out      *ui.UI

	rootCmd = &cobra.Command{
		Use:   "netpromote",
		Short: "Promote network configuration changes between environments",
		Long: `netpromote moves network device configuration changes through a chain of
environments, one git branch per environment (development, staging, production),
and classifies and resolves the merge conflicts a promotion produces.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadSettings,
	}
)

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.ShowError(err)
		os.Exit(1)
	}
}

func init() {
	registerGlobalFlags(rootCmd.PersistentFlags())
}

func registerGlobalFlags(fs *pflag.FlagSet) {
	fs.StringVar(&cfgFile, "config", "", "config file (default ./netpromote.yaml or ~/.netpromote/netpromote.yaml)")
	fs.StringVarP(&repoPath, "repo", "C", "", "path of the configuration repository (overrides repository.path)")
	fs.CountVarP(&verbosity, "verbose", "v", "log verbosity, repeat for more detail (-v info, -vv debug)")
	fs.BoolVarP(&assumeYes, "yes", "y", false, "answer yes to every confirmation")
	fs.BoolVarP(&quiet, "quiet", "q", false, "only print errors and requested data")
	fs.SortFlags = false
}

func loadSettings(cmd *cobra.Command, args []string) error {
	s, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("repo") && repoPath != "" {
		s.Repository.Path = repoPath
	}

	level := s.Log.Verbosity
	if verbosity > 0 {
		level = verbosity
	}
	logging.Setup(level, nil)

	settings = s
	out = ui.NewUI(verbosity > 0, quiet)
	out.AssumeYes = assumeYes
	return nil
}
