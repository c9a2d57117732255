package cmd

import (
	"fmt"

	"github.com/mkalas/sessionkeeper/internal/adapters/agentcfg"
	"github.com/mkalas/sessionkeeper/internal/adapters/memfile"
	"github.com/mkalas/sessionkeeper/internal/domain"
	"github.com/mkalas/sessionkeeper/internal/memindex"
	"github.com/spf13/cobra"
)

func newIndexCmd(app *app) *cobra.Command {
	var agentID string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Rebuild memory index documents from memory directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd, app, agentID)
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "Agent ID (default: all agents)")

	return cmd
}

func runIndex(cmd *cobra.Command, app *app, agentID string) error {
	doc, err := agentcfg.Load(app.config.GetString("agents.path"))
	if err != nil {
		return fmt.Errorf("load agents document: %w", err)
	}

	agentIDs := make([]string, 0, len(doc.Agents))
	if agentID != "" {
		if _, ok := doc.Agent(agentID); !ok {
			return fmt.Errorf("agent %s: %w", agentID, domain.ErrNotFound)
		}
		agentIDs = append(agentIDs, agentID)
	} else {
		for _, agent := range doc.Agents {
			agentIDs = append(agentIDs, agent.ID)
		}
	}

	now := app.clock.Now()
	for _, id := range agentIDs {
		store := memfile.NewStore(agentcfg.MemoryDir(doc, id, app.home))
		index, err := memindex.WriteIndex(store.Dir(), store.IndexPath(), now)
		if err != nil {
			return fmt.Errorf("rebuild index for agent %s: %w", id, err)
		}

		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d documents, %s, ~%d tokens\n",
			id, index.Totals.Documents, domain.FormatSize(index.Totals.SizeBytes), index.Totals.TokenEstimate)
		if err != nil {
			return err
		}
	}

	return nil
}
