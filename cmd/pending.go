package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Process pending deals once",
	Long:  "Searches the CRM for deals in to_start, in_progress or failed status and qualifies each.",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := buildEnv()
		if err != nil {
			return err
		}
		defer env.Close()

		count, err := env.Qualifier.ProcessPending(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Processed %d deal(s)\n", count)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pendingCmd)
}
