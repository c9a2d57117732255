package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/mkalas/sessionkeeper/internal/adapters/agentcfg"
	"github.com/mkalas/sessionkeeper/internal/adapters/memfile"
	"github.com/mkalas/sessionkeeper/internal/application"
	"github.com/spf13/cobra"
)

func newBootstrapCmd(app *app) *cobra.Command {
	var agentID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Assemble startup context blocks for a fresh agent session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBootstrap(cmd, app, agentID, asJSON)
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "Agent ID (required)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	_ = cmd.MarkFlagRequired("agent")

	return cmd
}

func runBootstrap(cmd *cobra.Command, app *app, agentID string, asJSON bool) error {
	doc, err := agentcfg.Load(app.config.GetString("agents.path"))
	if err != nil {
		return fmt.Errorf("load agents document: %w", err)
	}

	store := memfile.NewStore(agentcfg.MemoryDir(doc, agentID, app.home))
	service := application.NewDisclosureService(app.config.GetInt64("disclosure.threshold_bytes"), app.logger)

	var collector application.BlockCollector
	if err := service.Plan(agentID, store, &collector); err != nil {
		return fmt.Errorf("plan context disclosure: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(collector.Blocks())
	}

	out := cmd.OutOrStdout()
	for _, block := range collector.Blocks() {
		if _, err := fmt.Fprintf(out, "<%s>\n%s\n</%s>\n", block.Name, block.Content, block.Name); err != nil {
			return err
		}
	}

	return nil
}
