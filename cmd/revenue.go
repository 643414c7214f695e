package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	revenueName   string
	revenueVAT    string
	revenueDomain string
)

var revenueCmd = &cobra.Command{
	Use:   "revenue",
	Short: "Resolve a company's revenue standalone",
	Long:  "Runs the multi-source revenue resolver for one company and prints the reconciled value with its diagnostic trail.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if revenueName == "" && revenueVAT == "" {
			return eris.New("at least one of --name or --vat is required")
		}

		env, err := buildEnv()
		if err != nil {
			return err
		}
		defer env.Close()

		res := env.Resolver.Resolve(cmd.Context(), revenueName, revenueDomain, revenueVAT, "", "")

		fmt.Printf("Revenue:     %s\n", res.Value)
		fmt.Printf("Source:      %s\n", orDash(res.Source))
		fmt.Printf("Confidence:  %s\n", res.Confidence)
		fmt.Printf("Legal name:  %s\n", orDash(res.LegalName))
		fmt.Printf("Fiscal year: %s\n", orDash(res.FiscalYear))
		fmt.Println("Diagnostics:")
		for _, d := range res.Diagnostics {
			fmt.Printf("  - %s\n", d)
		}
		return nil
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	revenueCmd.Flags().StringVar(&revenueName, "name", "", "company name")
	revenueCmd.Flags().StringVar(&revenueVAT, "vat", "", "VAT identifier (with or without country prefix)")
	revenueCmd.Flags().StringVar(&revenueDomain, "domain", "", "company website domain")
	rootCmd.AddCommand(revenueCmd)
}
