package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/render-cli/internal/browser"
	"github.com/sells-group/render-cli/internal/model"
	"github.com/sells-group/render-cli/internal/render"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>...",
	Short: "Render one or more URLs through a real browser",
	Long:  "Loads each URL in Chrome, waits for the DOM, and writes the rendered HTML (and optionally a screenshot) to the output directory.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		applyFetchFlags(cmd)
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		engCfg, err := engineConfig(cmd)
		if err != nil {
			return err
		}

		eng := render.NewEngine(st, engCfg)
		sess, err := eng.Run(ctx, args)
		if err != nil {
			return eris.Wrap(err, "fetch")
		}

		formatSessionSummary(os.Stdout, sess)
		return nil
	},
}

func init() {
	fetchCmd.Flags().Bool("headless", true, "run Chrome without a display")
	fetchCmd.Flags().String("driver-path", "", "chromedriver executable (default: chromedriver on PATH)")
	fetchCmd.Flags().StringP("output", "o", "", "output directory for rendered pages (default from config)")
	fetchCmd.Flags().Int("workers", 0, "number of parallel browsers (default from config)")
	fetchCmd.Flags().Bool("screenshot", false, "also save a PNG screenshot per page")
	fetchCmd.Flags().String("profile", "", "named browser profile from the profiles file")
	fetchCmd.Flags().Duration("timeout", 0, "per-page load timeout (default from config)")

	rootCmd.AddCommand(fetchCmd)
}

// applyFetchFlags copies explicitly set flags over the loaded config.
func applyFetchFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless, _ = cmd.Flags().GetBool("headless")
	}
	if cmd.Flags().Changed("driver-path") {
		cfg.Browser.DriverPath, _ = cmd.Flags().GetString("driver-path")
	}
	if cmd.Flags().Changed("output") {
		cfg.Fetch.OutputDir, _ = cmd.Flags().GetString("output")
	}
	if cmd.Flags().Changed("workers") {
		cfg.Fetch.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if cmd.Flags().Changed("screenshot") {
		cfg.Fetch.Screenshot, _ = cmd.Flags().GetBool("screenshot")
	}
	if cmd.Flags().Changed("timeout") {
		d, _ := cmd.Flags().GetDuration("timeout")
		cfg.Fetch.PageTimeoutSecs = int(d.Seconds())
	}
}

// engineConfig assembles the render engine configuration from the loaded
// config, resolving the named browser profile when one was requested.
func engineConfig(cmd *cobra.Command) (render.Config, error) {
	engCfg := render.Config{
		Browser:     cfg.Browser.Wrapper(),
		OutputDir:   cfg.Fetch.OutputDir,
		Workers:     cfg.Fetch.Workers,
		RatePerSec:  cfg.Fetch.RatePerSec,
		PageTimeout: time.Duration(cfg.Fetch.PageTimeoutSecs) * time.Second,
		Screenshot:  cfg.Fetch.Screenshot,
	}

	name, _ := cmd.Flags().GetString("profile")
	if name == "" {
		return engCfg, nil
	}
	if cfg.Browser.ProfilesPath == "" {
		return engCfg, eris.New("browser.profiles_path must be set to use --profile")
	}
	p, err := browser.LookupProfile(cfg.Browser.ProfilesPath, name)
	if err != nil {
		return engCfg, err
	}
	engCfg.Profile = p
	return engCfg, nil
}

// formatSessionSummary writes a one-screen summary of a finished session.
func formatSessionSummary(out io.Writer, sess *model.Session) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Session:\t%s\n", sess.ID)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", sess.Status)
	_, _ = fmt.Fprintf(w, "Pages:\t%d\n", sess.PagesTotal)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", sess.PagesFailed)
	_, _ = fmt.Fprintf(w, "Output:\t%s\n", sess.OutputDir)
	_, _ = fmt.Fprintf(w, "Duration:\t%s\n", sess.Duration().Round(time.Millisecond))
	_ = w.Flush()
}
