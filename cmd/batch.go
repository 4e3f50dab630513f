package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/timvw/bias-lens/internal/batch"
)

var (
	flagBatchParallel  int
	flagBatchWordLimit int
	flagBatchTimeout   time.Duration
	flagBatchQuiet     bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <folder>",
	Short: "Classify every .txt file in a folder",
	Long: `Classify every .txt file in a folder, in sorted order.

Each file is analyzed on its own and gets one JSON result in
<folder>/results/<name>.json. A file that cannot be analyzed (empty, model
unreachable, output not valid) records the error in its result and does not
stop the batch. A summary with the number of processed files and the
results directory is printed to stdout.

Use --parallel to analyze several files at once; the local model server
usually serializes requests, so more than a few rarely helps.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		r := &batch.Runner{
			Analyzer:  a.analyzer,
			Model:     a.cfg.Model,
			WordLimit: a.cfg.WordLimit,
			Timeout:   a.cfg.TimeoutDuration,
			Parallel:  a.cfg.Parallel,
			Logger:    a.log,
		}
		if flagBatchParallel > 0 {
			r.Parallel = flagBatchParallel
		}
		if flagBatchWordLimit > 0 {
			r.WordLimit = flagBatchWordLimit
		}
		if cmd.Flags().Changed("timeout") {
			r.Timeout = flagBatchTimeout
		}
		if !flagBatchQuiet {
			r.Progress = func(done, total int, res *batch.Result) {
				status := string(res.Label)
				if res.Error != nil {
					status = "error: " + res.Error.Kind
				}
				fmt.Fprintf(os.Stderr, "[%d/%d] %s: %s\n", done, total, res.File, status)
			}
		}

		sum, err := r.Run(ctx, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	},
}

func init() {
	batchCmd.Flags().IntVar(&flagBatchParallel, "parallel", 0, "number of files to analyze concurrently (default: 1)")
	batchCmd.Flags().IntVar(&flagBatchWordLimit, "word-limit", 0, "max article words sent to the model (default: 200)")
	batchCmd.Flags().DurationVar(&flagBatchTimeout, "timeout", 0, "max wait for the model per file, e.g. 90s (default: 240s)")
	batchCmd.Flags().BoolVar(&flagBatchQuiet, "quiet", false, "do not print per-file progress to stderr")
	rootCmd.AddCommand(batchCmd)
}
