package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/growthops/deal-qualifier/internal/model"
)

var paymentCmd = &cobra.Command{
	Use:   "payment <domain>",
	Short: "Inspect a merchant's payment stack standalone",
	Long:  "Sweeps a storefront's homepage, product page and checkout for payment providers and BNPL competitors.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := buildEnv()
		if err != nil {
			return err
		}
		defer env.Close()

		res := env.Detector.Detect(cmd.Context(), args[0])

		fmt.Printf("Providers:  %s\n", orNone(strings.Join(res.Providers, ", ")))
		fmt.Printf("BNPL:       %s\n", orNone(strings.Join(res.BNPLProviders, ", ")))
		var seen []string
		for _, stage := range []model.FunnelStage{model.StageHomepage, model.StageProduct, model.StageCheckout} {
			if res.Locations[stage] {
				seen = append(seen, string(stage))
			}
		}
		if len(seen) > 0 {
			fmt.Printf("Seen at:    %s\n", strings.Join(seen, ", "))
		}
		fmt.Printf("Method:     %s\n", res.Method)
		if res.BlockedBy != "" {
			fmt.Printf("Blocked by: %s\n", res.BlockedBy)
		}
		fmt.Printf("Confidence: %d/100 (%s) - %s\n",
			res.Confidence.Score, res.Confidence.Label, res.Confidence.Reason)
		return nil
	},
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func init() {
	rootCmd.AddCommand(paymentCmd)
}
