package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mkalas/sessionkeeper/internal/adapters/render/report"
	"github.com/mkalas/sessionkeeper/internal/application"
	"github.com/mkalas/sessionkeeper/internal/domain"
	"github.com/spf13/cobra"
)

func newCheckpointCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Distill recent transcript activity into each agent's memory files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheckpoint(cmd, app, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func runCheckpoint(cmd *cobra.Command, app *app, asJSON bool) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), app.config.GetDuration("checkpoint.budget"))
	defer cancel()

	service := application.NewCheckpointService(
		app.config.GetString("agents.path"),
		app.config.GetString("transcripts.dir"),
		app.home,
		app.state,
		app.clock,
		app.logger,
		app.checkpointConfig(),
	)

	checkpointReport, err := service.Run(ctx)
	if err != nil {
		return fmt.Errorf("run checkpoint pass: %w", err)
	}

	return writeCheckpointOutput(cmd, checkpointReport, asJSON)
}

func writeCheckpointOutput(cmd *cobra.Command, checkpointReport domain.CheckpointReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(checkpointReport)
	}

	_, err := fmt.Fprintln(cmd.OutOrStdout(), report.Checkpoint(checkpointReport))
	return err
}
