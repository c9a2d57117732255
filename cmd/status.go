package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/mkalas/sessionkeeper/internal/adapters/render/report"
	"github.com/mkalas/sessionkeeper/internal/domain"
	"github.com/spf13/cobra"
)

func newStatusCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show observed sessions and recent checkpoint activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, app, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func runStatus(cmd *cobra.Command, app *app, asJSON bool) error {
	sessions, err := app.gateway.ListSessions(cmd.Context())
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	state, err := app.state.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("load run state: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Sessions []domain.Session
			State    domain.RunState
		}{Sessions: sessions, State: state})
	}

	rendered, err := report.Sessions(sessions, state, report.SessionsOptions{
		Now:        app.clock.Now(),
		Threshold:  app.config.GetInt64("rotation.threshold_tokens"),
		StaleAfter: app.config.GetDuration("checkpoint.stale_after"),
	})
	if err != nil {
		return fmt.Errorf("render status: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}
