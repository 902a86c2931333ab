package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/render-cli/internal/config"
	"github.com/sells-group/render-cli/internal/logging"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "render-cli",
	Short: "Browser-backed page rendering",
	Long:  "Renders JavaScript-heavy pages with a real Chrome browser over Selenium WebDriver, saves the rendered HTML to disk, and records fetch sessions in a store.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := logging.Setup(cfg.Log); err != nil {
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
