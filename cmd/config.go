package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"netpromote/internal/common"
	"netpromote/internal/config"
	"netpromote/pkg/errors"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect settings and encrypt secrets in the config file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configEncryptCmd = &cobra.Command{
	Use:   "encrypt [value]",
	Short: "Encrypt the audit DSN in the config file, or print an encrypted value",
	Long: `Encrypt the audit DSN with AES-256-GCM. With a value argument the encrypted
form is printed for pasting into netpromote.yaml. Without one, audit.dsn in the
loaded config file is encrypted in place.

The key comes from NETPROMOTE_ENCRYPTION_KEY when set, otherwise from a
machine-specific identifier (hostname and home directory).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigEncrypt,
}

var configBackup bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configEncryptCmd)

	configEncryptCmd.Flags().BoolVar(&configBackup, "backup", true, "keep a copy of the original config file")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	shown := *settings
	if shown.Audit.DSN != "" {
		shown.Audit.DSN = "********"
	}

	data, err := yaml.Marshal(&shown)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "Failed to render settings")
	}
	if settings.ConfigFile != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", settings.ConfigFile)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "# defaults and environment only")
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigEncrypt(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		encrypted, err := config.EncryptValue(args[0])
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "Failed to encrypt value")
		}
		fmt.Fprintln(cmd.OutOrStdout(), encrypted)
		return nil
	}

	path := settings.ConfigFile
	if path == "" {
		return errors.ConfigError("No config file loaded", "audit.dsn").
			WithSuggestions("Pass --config or create netpromote.yaml")
	}
	path = filepath.Clean(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to read config file").
			WithContext("path", path)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to parse config file").
			WithContext("path", path)
	}
	audit, _ := raw["audit"].(map[string]any)
	dsn, _ := audit["dsn"].(string)
	if dsn == "" {
		out.Info("No audit.dsn to encrypt")
		return nil
	}
	if config.IsEncrypted(dsn) {
		out.Info("audit.dsn is already encrypted")
		return nil
	}

	encrypted, err := config.EncryptValue(dsn)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "Failed to encrypt audit.dsn")
	}
	audit["dsn"] = encrypted

	if configBackup {
		backup := path + ".backup"
		if err := os.WriteFile(backup, data, common.FilePermissionSecure); err != nil {
			return errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to create backup").
				WithContext("path", backup)
		}
		out.Success("Created backup: " + backup)
	}

	updated, err := yaml.Marshal(raw)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "Failed to render config file")
	}
	if err := os.WriteFile(path, updated, common.FilePermissionSecure); err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to save config file").
			WithContext("path", path)
	}

	out.Success("Encrypted audit.dsn in " + path)
	return nil
}
