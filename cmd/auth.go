package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"netpromote/internal/ui"
	"netpromote/internal/vcs"
	"netpromote/pkg/errors"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage HTTPS tokens for configuration remotes",
	Long: `Manage personal access tokens used when fetching over HTTPS. Tokens are
kept in the system keyring and take precedence over <HOST>_TOKEN, GITHUB_TOKEN,
GITLAB_TOKEN and GIT_TOKEN. SSH remotes use the agent or keys in ~/.ssh.`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login [host]",
	Short: "Store a token for a git host",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout [host]",
	Short: "Remove the stored token for a git host",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthLogout,
}

var authToken string

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd, authLogoutCmd)

	authLoginCmd.Flags().StringVar(&authToken, "token", "", "token to store (prompted when omitted)")
}

func authHost(arg string) string {
	if strings.Contains(arg, "://") || strings.HasPrefix(arg, "git@") {
		return vcs.ExtractHost(arg)
	}
	return arg
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	host := authHost(args[0])
	token := authToken
	if token == "" {
		var err error
		token, err = ui.Input(fmt.Sprintf("Token for %s:", host), "", "A personal access token with read access to the repository")
		if err != nil {
			return err
		}
	}
	if strings.TrimSpace(token) == "" {
		return errors.New(errors.ErrCodeRequiredField, "Token must not be empty")
	}

	if err := vcs.NewAuthManager().StoreToken(host, strings.TrimSpace(token)); err != nil {
		return err
	}
	out.Success("Stored token for " + host)
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	host := authHost(args[0])
	if err := vcs.NewAuthManager().RemoveToken(host); err != nil {
		return err
	}
	out.Success("Removed token for " + host)
	return nil
}
