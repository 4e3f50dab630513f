package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/timvw/bias-lens/internal/analyzer"
	"github.com/timvw/bias-lens/internal/model"
	"github.com/timvw/bias-lens/internal/ui"
)

// errNoVerdict makes the process exit non-zero after the failure card has
// been printed.
var errNoVerdict = errors.New("no verdict: the model output did not validate")

var (
	analyzeInput  inputFlags
	flagWordLimit int
	flagTimeout   time.Duration
	flagOutput    string
	flagTheme     string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [text|-]",
	Short: "Classify the political bias of one article",
	Long: `Classify one article as left, right, or neutral leaning.

The article can be given as arguments, on stdin ("-" or a pipe), with
--file, or with --url. HTML is reduced to the visible text of its main
content before it reaches the model. Only the first --word-limit words are
sent.

The model is called once, without retries. If its answer does not contain a
valid verdict the raw output is shown and the command exits non-zero.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnalyze(cmd, args)
	},
}

func init() {
	analyzeInput.register(analyzeCmd)
	analyzeCmd.Flags().IntVar(&flagWordLimit, "word-limit", 0, "max article words sent to the model (default: 200)")
	analyzeCmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "max wait for the model, e.g. 90s (default: 240s)")
	analyzeCmd.Flags().StringVar(&flagOutput, "output", "text", "output format: text, json")
	analyzeCmd.Flags().StringVar(&flagTheme, "theme", "", "color theme: dark, light (default: dark)")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if flagOutput != "text" && flagOutput != "json" {
		return fmt.Errorf("unsupported output format %q (use text or json)", flagOutput)
	}
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	input, src, err := analyzeInput.read(ctx, args, a.cfg.FetchTimeoutDuration)
	if err != nil {
		return err
	}

	req := analyzer.Request{
		Input:     input,
		Source:    src,
		Model:     a.cfg.Model,
		WordLimit: a.cfg.WordLimit,
		Timeout:   a.cfg.TimeoutDuration,
	}
	if flagWordLimit > 0 {
		req.WordLimit = flagWordLimit
	}
	if cmd.Flags().Changed("timeout") {
		req.Timeout = flagTimeout
	}

	theme := ui.ThemeByName(a.cfg.Theme)
	if flagTheme != "" {
		theme = ui.ThemeByName(flagTheme)
	}

	var res *model.Analysis
	label := fmt.Sprintf("Analyzing with %s", req.Model)
	err = ui.Spin(ctx, os.Stderr, theme, label, func(ctx context.Context) error {
		var err error
		res, err = a.analyzer.Run(ctx, req)
		return err
	})
	if err != nil {
		return err
	}

	if flagOutput == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(os.Stdout, ui.NewCard(theme, ui.DefaultWidth).Render(res))
	}

	if !res.Outcome.OK() {
		fmt.Fprintf(os.Stderr, "run log: %s\n", a.runLog.PathFor(res.Model))
		return errNoVerdict
	}
	return nil
}
