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

func newRotateCmd(app *app) *cobra.Command {
	var dryRun bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Rotate sessions whose token count crossed the threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRotate(cmd, app, dryRun, asJSON)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report which sessions would rotate without issuing commands")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func runRotate(cmd *cobra.Command, app *app, dryRun, asJSON bool) error {
	service, err := application.NewRotationService(app.gateway, app.state, app.clock, app.logger, app.rotationConfig())
	if err != nil {
		return fmt.Errorf("build rotation service: %w", err)
	}

	var rotationReport domain.RotationReport
	run := func(ctx context.Context) error {
		var runErr error
		rotationReport, runErr = service.Run(ctx, dryRun)
		return runErr
	}

	if asJSON || dryRun {
		err = run(cmd.Context())
	} else {
		err = runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), "Rotating sessions...", run)
	}
	if err != nil {
		return fmt.Errorf("run rotation pass: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rotationReport)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), report.Rotation(rotationReport))
	return err
}
