package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paperkey/unlock-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "unlock-cli",
	Short: "Unlock and extract text from password-protected documents",
	Long:  "Probes a document's lock status, recovers a working password through layered guessing (supplied variants, personal-data rules, model-assisted candidates), and extracts its text via the external extractor.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
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
