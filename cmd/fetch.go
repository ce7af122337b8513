package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"bkam-rates/failure"
	"bkam-rates/logger"
	"bkam-rates/models"
	"bkam-rates/source"
)

const failureNotice = "Failed to retrieve data. Check the log file for details."

type fetchOptions struct {
	date         string
	from         string
	to           string
	skipWeekends bool
}

func newFetchCmd(opts *options) *cobra.Command {
	fo := &fetchOptions{}

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "download the reference rates for a date or a range of dates.",
		Example: "  bkam fetch --date 15/01/2024\n" +
			"  bkam fetch --from 2024-01-01 --to 2024-01-31 --skip-weekends",
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			single := fo.date != ""
			ranged := fo.from != "" || fo.to != ""
			switch {
			case single && ranged:
				return fmt.Errorf("--date cannot be combined with --from/--to")
			case !single && !ranged:
				return fmt.Errorf("either --date or --from and --to is required")
			case ranged && (fo.from == "" || fo.to == ""):
				return fmt.Errorf("--from and --to must be given together")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if fo.date != "" {
				result, err := a.pipeline.RunString(cmd.Context(), fo.date)
				if err != nil || result.Empty() {
					return printFailure(out, a.cfg.Log.File)
				}
				printTable(out, result)
				return nil
			}

			from, err := source.ParseDate(fo.from)
			if err != nil {
				return err
			}
			to, err := source.ParseDate(fo.to)
			if err != nil {
				return err
			}
			results, err := a.pipeline.RunRange(cmd.Context(), from, to, fo.skipWeekends)
			if err != nil && len(results) == 0 {
				return err
			}
			printSummary(out, results)
			for _, r := range results {
				if r.Err != nil || r.Empty() {
					return printFailure(out, a.cfg.Log.File)
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&fo.date, "date", "", "date to fetch (dd/mm/yyyy or yyyy-mm-dd)")
	cmd.Flags().StringVar(&fo.from, "from", "", "first date of a range")
	cmd.Flags().StringVar(&fo.to, "to", "", "last date of a range (inclusive)")
	cmd.Flags().BoolVar(&fo.skipWeekends, "skip-weekends", false, "skip Saturdays and Sundays in a range")
	return cmd
}

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(out)
	return t
}

// printTable renders the rate table followed by the CSV location
func printTable(out io.Writer, result *models.Result) {
	t := newTable(out)

	header := make(table.Row, len(result.Table.Columns))
	for i, c := range result.Table.Columns {
		header[i] = c
	}
	t.AppendHeader(header)

	for _, r := range result.Table.Rows {
		row := make(table.Row, len(r))
		for i, v := range r {
			row[i] = v
		}
		t.AppendRow(row)
	}
	t.SetCaption("%d rows for %s via %s", result.Table.Len(), result.Date.Format(source.SiteDateLayout), result.Strategy)
	t.Render()

	fmt.Fprintf(out, "Saved to %s\n", result.OutputPath)
	for name, loc := range result.Locations {
		fmt.Fprintf(out, "Saved to %s: %s\n", name, loc)
	}
}

// printSummary renders one line per date of a range
func printSummary(out io.Writer, results []*models.Result) {
	t := newTable(out)
	t.AppendHeader(table.Row{"Date", "Rows", "Strategy", "Result"})
	for _, r := range results {
		outcome := filepath.Base(r.OutputPath)
		if r.Err != nil {
			outcome = string(failure.KindOf(r.Err))
		} else if r.Empty() {
			outcome = "no data rows"
		}
		t.AppendRow(table.Row{r.Date.Format(source.SiteDateLayout), r.Table.Len(), r.Strategy, outcome})
	}
	t.Render()
}

// printFailure prints the failure notice and the run log, then reports the
// failure to the caller
func printFailure(out io.Writer, logFile string) error {
	fmt.Fprintln(out, failureNotice)
	if contents, err := logger.Tail(logFile, 0); err == nil && contents != "" {
		fmt.Fprintln(out, contents)
	}
	return errFetchFailed
}
