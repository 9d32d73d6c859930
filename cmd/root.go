package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/quality-engine/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "quality-engine",
	Short: "Quality evaluation and iteration control for extracted knowledge",
	Long:  "Scores extracted artifacts against a quality rubric, generates improvement suggestions, and drives bounded extract-evaluate-retry loops recorded as durable execution records.",
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
