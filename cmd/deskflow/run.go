package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daviddao/deskflow/internal/display"
	"github.com/daviddao/deskflow/internal/jira"
	"github.com/daviddao/deskflow/internal/pipeline"
	"github.com/daviddao/deskflow/internal/source"
	"github.com/daviddao/deskflow/internal/tracking"
)

var dryRun bool

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitConfigError, "invalid config", err)
	}

	client, err := jira.NewClientFromConfig(ctx, cfg, logger.Named("jira"))
	if err != nil {
		return WrapExitError(ExitConfigError, "set up jira client", err)
	}

	rows, err := source.Open(ctx, cfg, logger.Named("source"))
	if err != nil {
		logger.Error("could not open row source", zap.String("driver", cfg.Source.Driver), zap.Error(err))
		return WrapExitError(ExitFailure, "open row source", err)
	}
	defer rows.Close()

	opts := pipeline.OptionsFromConfig(cfg)
	opts.DryRun = dryRun

	p := pipeline.New(pipeline.Deps{
		Forms:    client,
		Requests: client,
		Rows:     rows,
		Store:    tracking.NewFileStore(cfg.Tracking.File, logger.Named("tracking")),
		Logger:   logger,
	}, opts)

	summary, err := p.Run(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "run aborted", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	display.RunSummary(cmd.OutOrStdout(), summary)
	return nil
}

func init() {
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Build request payloads and log them without submitting or saving")
}
