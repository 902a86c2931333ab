package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tebeka/selenium"

	"github.com/sells-group/render-cli/internal/browser"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Smoke-test the browser setup",
	Long:  "Starts chromedriver and Chrome once, loads about:blank, and tears everything down again. Useful to verify an installation before a real fetch.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("check"); err != nil {
			return err
		}

		start := time.Now()
		c := browser.New(cfg.Browser.Wrapper())

		err := c.With(func(wd selenium.WebDriver) error {
			return eris.Wrap(wd.Get("about:blank"), "check: load about:blank")
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Browser OK (%s)\n", time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
