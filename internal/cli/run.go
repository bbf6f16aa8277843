package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"form990/internal/app"
	"form990/internal/formatter"
	"form990/internal/models"
)

type runOptions struct {
	output      string
	format      string
	concurrency int
	maxRows     int
}

func newRunCommand(opts *options) *cobra.Command {
	ro := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <input.csv|input.xlsx>",
		Short: "Process a table of EINs and years into an extract file",
		Long: `Read a CSV or XLSX table with "ein" and "year" columns, look up and
extract every filing, and write the combined table.

The output defaults to nonprofit_data_extract_<date>.<format>.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, opts, ro, args[0])
		},
	}

	cmd.Flags().StringVarP(&ro.output, "output", "o", "", "output file path")
	cmd.Flags().StringVarP(&ro.format, "format", "f", "", "output format: csv or xlsx")
	cmd.Flags().IntVar(&ro.concurrency, "concurrency", 0, "number of parallel lookups")
	cmd.Flags().IntVar(&ro.maxRows, "max-rows", 0, "maximum number of input rows")

	return cmd
}

func runBatch(cmd *cobra.Command, opts *options, ro *runOptions, input string) error {
	cfg := *opts.cfg

	if ro.format != "" {
		cfg.Output.Format = ro.format
	}

	if ro.output != "" {
		cfg.Output.Path = ro.output
	}

	if ro.concurrency > 0 {
		cfg.Batch.Concurrency = ro.concurrency
	}

	if ro.maxRows > 0 {
		cfg.Batch.MaxRows = ro.maxRows
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	a, err := app.New(&cfg, opts.log)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	outputPath := cfg.GetOutputPath(time.Now())

	fmt.Fprintf(out, "📂 Reading %s\n", input)

	progress := make(chan models.Event)
	done := make(chan struct{})

	go func() {
		defer close(done)

		for evt := range progress {
			fmt.Fprintln(out, ProgressLine(evt))
		}
	}()

	result, err := a.RunFile(cmd.Context(), input, outputPath, progress)
	close(progress)
	<-done

	if result != nil {
		printSummary(out, result)
	}

	switch {
	case errors.Is(err, models.ErrEmptyResult):
		fmt.Fprintln(out, "❌ Process finished, but no data could be extracted.")

		return err
	case errors.Is(err, models.ErrInvalidBatchInput):
		fmt.Fprintf(out, "❌ %v\n", err)

		return err
	case err != nil:
		return err
	}

	fmt.Fprintf(out, "✅ Wrote %d rows to %s\n", result.Table.Len(), outputPath)

	return nil
}

// ProgressLine renders one progress event, e.g. "[ 40%] Success: EIN 1, Year 2022".
func ProgressLine(evt models.Event) string {
	return fmt.Sprintf("[%3.0f%%] %s", evt.Percent(), evt.Message)
}

func printSummary(w io.Writer, result *models.BatchResult) {
	rows := make([][]string, 0, len(models.Statuses))
	for _, s := range models.Statuses {
		rows = append(rows, []string{string(s), strconv.Itoa(result.Counts[s])})
	}

	fmt.Fprintf(w, "\n📊 Run %s finished in %.1fs\n\n", result.RunID, result.Duration.Seconds())
	fmt.Fprintln(w, formatter.Table([]string{"Status", "Count"}, rows))
}
