package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atelier-north/studio-ops/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "studio-ops",
	Short: "Suggestion review and learning engine for studio operations",
	Long:  "Turns detected entities from client correspondence into reviewable database change suggestions, applies approved ones with exact rollback, and learns review patterns over time.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if _, err := config.InitLogger(cfg.Log); err != nil {
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
