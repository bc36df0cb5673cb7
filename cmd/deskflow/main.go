package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daviddao/deskflow/internal/config"
	"github.com/daviddao/deskflow/internal/display"
	"github.com/daviddao/deskflow/internal/logging"
)

// Version is set via ldflags at build time.
var Version = "dev"

var (
	configPath   string
	trackingPath string
	jsonOutput   bool
	verboseFlag  bool

	cfg         *config.Config
	logger      *zap.Logger
	closeLogger func()
)

var rootCmd = &cobra.Command{
	Use:   "deskflow",
	Short: "deskflow - submit new phone equipment requests to Jira Service Management",
	Long: `deskflow reads new phone equipment request rows from the requests table,
maps them onto the live Jira form of the request type, and creates one
customer request per requester. Progress is kept in a tracking file so
that re-running never submits the same requester twice.

Examples:
  deskflow                          # Process new rows
  deskflow --dry-run --verbose      # Show payloads without submitting
  deskflow --json                   # Machine-readable run summary
  deskflow state                    # Show the tracking file
  deskflow config init              # Write a default deskflow.yaml`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch cmd.Name() {
		case "version", "help", "init":
			return nil
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return WrapExitError(ExitConfigError, "load config", err)
		}
		if trackingPath != "" {
			cfg.Tracking.File = trackingPath
		}

		logger, closeLogger, err = logging.New(logging.Options{
			Config:  cfg.Logging,
			Verbose: verboseFlag,
			Console: cmd.ErrOrStderr(),
		})
		if err != nil {
			return WrapExitError(ExitConfigError, "set up logging", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLogger != nil {
			closeLogger()
			closeLogger = nil
		}
	},
	RunE: runPipeline,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "deskflow version %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "deskflow.yaml", "Config file (missing file: defaults plus environment)")
	rootCmd.PersistentFlags().StringVar(&trackingPath, "tracking", "", "Tracking file (overrides tracking.file)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log debug detail to the console")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// PersistentPostRun does not run when RunE fails.
		if closeLogger != nil {
			closeLogger()
		}
		display.ErrorMsg(os.Stderr, "%v", err)
		os.Exit(GetExitCode(err))
	}
}
