package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/growthops/deal-qualifier/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "deal-qualifier",
	Short: "Inbound deal qualification pipeline",
	Long:  "Receives CRM deal webhooks, enriches each deal with registry revenue, traffic and payment-stack data, triages it with an LLM, and posts a qualification report to Slack.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
