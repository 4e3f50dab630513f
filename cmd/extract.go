package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/timvw/bias-lens/internal/model"
	"github.com/timvw/bias-lens/internal/normalize"
)

var (
	extractInput    inputFlags
	flagMarkdown    bool
	flagExtractJSON bool
)

var extractCmd = &cobra.Command{
	Use:   "extract [text|-]",
	Short: "Print the text the model would see",
	Long: `Normalize the input and print the resulting text to stdout.

For HTML and URLs this is the visible text of the main content container
(article, then main, then the page body) with navigation, ads, scripts, and
styles removed. --markdown renders that container as Markdown instead,
which is handy for checking what the extractor picked.

This is pure transport: no model is called and nothing is truncated.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		input, src, err := extractInput.read(cmd.Context(), args, cfg.FetchTimeoutDuration)
		if err != nil {
			return err
		}

		var text string
		if flagMarkdown && input.Kind == model.KindHTML {
			text, err = normalize.Markdown(input.Content)
		} else {
			text, err = normalize.Normalize(input)
		}
		if err != nil {
			return err
		}

		if flagExtractJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetEscapeHTML(false)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Source model.SourceInfo `json:"source"`
				Words  int              `json:"words"`
				Text   string           `json:"text"`
			}{src, len(strings.Fields(text)), text})
		}

		fmt.Fprintln(os.Stdout, text)
		fmt.Fprintf(os.Stderr, "source: %s", src.Source)
		if src.URL != "" {
			fmt.Fprintf(os.Stderr, " %s", src.URL)
		}
		fmt.Fprintf(os.Stderr, ", extracted: %t, words: %d\n", src.Extracted, len(strings.Fields(text)))
		return nil
	},
}

func init() {
	extractInput.register(extractCmd)
	extractCmd.Flags().BoolVar(&flagMarkdown, "markdown", false, "render the chosen HTML container as Markdown")
	extractCmd.Flags().BoolVar(&flagExtractJSON, "json", false, "print source metadata and text as JSON")
	rootCmd.AddCommand(extractCmd)
}
