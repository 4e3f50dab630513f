package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/timvw/bias-lens/internal/normalize"
	"github.com/timvw/bias-lens/internal/prompt"
)

var (
	promptInput         inputFlags
	flagPromptWordLimit int
)

var promptCmd = &cobra.Command{
	Use:   "prompt [text|-]",
	Short: "Print the prompt that would be sent to the model",
	Long: `Print the exact prompt analyze would send for this input, without
calling the model. Word counts before and after truncation go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		input, _, err := promptInput.read(cmd.Context(), args, cfg.FetchTimeoutDuration)
		if err != nil {
			return err
		}
		text, err := normalize.Normalize(input)
		if err != nil {
			return err
		}

		limit := cfg.WordLimit
		if flagPromptWordLimit > 0 {
			limit = flagPromptWordLimit
		}
		res := prompt.NewBuilder(cfg.Instructions, cfg.Fields).Build(text, limit)

		fmt.Fprint(os.Stdout, res.Prompt)
		fmt.Fprintf(os.Stderr, "words: %d of %d (%d cut)\n", res.Words.Kept, res.Words.Original, res.Words.Cut())
		return nil
	},
}

func init() {
	promptInput.register(promptCmd)
	promptCmd.Flags().IntVar(&flagPromptWordLimit, "word-limit", 0, "max article words in the prompt (default: 200)")
	rootCmd.AddCommand(promptCmd)
}
