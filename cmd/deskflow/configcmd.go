package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/daviddao/deskflow/internal/config"
	"github.com/daviddao/deskflow/internal/display"
)

var forceInit bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the deskflow config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	Long: `Write the default configuration to the --config path.

Credentials are left blank; set them in the file or through the environment
(JIRA_EMAIL, JIRA_API_TOKEN, DB_PASSWORD, ...).

Examples:
  deskflow config init
  deskflow config init --config /etc/deskflow.yaml --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil && !forceInit {
			return NewExitError(ExitConfigError, configPath+" already exists (use --force to overwrite)")
		}
		if err := config.DefaultConfig().Save(configPath); err != nil {
			return WrapExitError(ExitFailure, "write config", err)
		}
		display.SuccessMsg(cmd.OutOrStdout(), "Wrote %s", configPath)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing config file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
