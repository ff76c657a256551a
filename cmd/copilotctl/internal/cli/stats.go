package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show context usage for a subject",
		Run:   runStats,
	}
	cmd.Flags().Int64("subject", 0, "Subject id (required)")
	cmd.MarkFlagRequired("subject")

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	subject, _ := cmd.Flags().GetInt64("subject")

	stats, err := newClient().Stats(cmd.Context(), subject)
	if err != nil {
		exitErr("stats", err)
	}
	printJSON(stats)
}
