package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/timvw/bias-lens/internal/llm"
	"github.com/timvw/bias-lens/internal/model"
)

var flagInstalled bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the configured models",
	Long: `List the models offered by default, one per line as
"<name>  <display name>". The name is what --model expects.

The list is configuration only: analyze accepts any model name the local
runtime knows. Use --installed to ask the Ollama server which models it has
pulled and mark the configured ones that are missing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if !flagInstalled {
			for _, m := range cfg.Models {
				fmt.Printf("%-20s %s\n", m.Name, m.Title())
			}
			return nil
		}

		installed, err := llm.ListInstalled(cmd.Context(), cfg.BaseURL, nil)
		if err != nil {
			return fmt.Errorf("failed to list installed models: %w", err)
		}
		have := make(map[string]bool, len(installed))
		for _, m := range installed {
			have[m.Name] = true
		}
		for _, m := range cfg.Models {
			status := "missing (ollama pull " + m.Name + ")"
			if have[m.Name] {
				status = "installed"
			}
			fmt.Printf("%-20s %-20s %s\n", m.Name, m.Title(), status)
		}
		for _, m := range installed {
			if !configured(cfg.Models, m.Name) {
				fmt.Printf("%-20s %-20s %s\n", m.Name, m.ParameterSize, "installed, not configured")
			}
		}
		return nil
	},
}

func configured(models []model.ModelOption, name string) bool {
	for _, m := range models {
		if m.Name == name {
			return true
		}
	}
	return false
}

func init() {
	modelsCmd.Flags().BoolVar(&flagInstalled, "installed", false, "compare against the models pulled on the Ollama server")
	rootCmd.AddCommand(modelsCmd)
}
