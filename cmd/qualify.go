package main

import (
	"github.com/spf13/cobra"
)

var qualifyCmd = &cobra.Command{
	Use:   "qualify <deal-id>",
	Short: "Qualify a single deal",
	Long:  "Runs the full enrichment and triage pipeline for one CRM deal and posts the report to Slack.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := buildEnv()
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Qualifier.Process(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(qualifyCmd)
}
