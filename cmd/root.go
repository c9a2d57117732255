package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "sk",
		Short:         "Session keeper (sk): checkpoint agent memory and rotate heavy sessions",
		Long:          "sk (session keeper) distills agent transcripts into durable memory files, rotates conversation sessions that grow past the token threshold, rebuilds memory indexes, and assembles startup context for fresh sessions.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newCheckpointCmd(app),
		newRotateCmd(app),
		newBootstrapCmd(app),
		newIndexCmd(app),
		newStatusCmd(app),
	)

	return rootCmd
}
