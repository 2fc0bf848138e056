package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mmynk/posrecon/internal/calculator"
	"github.com/mmynk/posrecon/internal/service"
)

func newPreviewCmd(g *globals) *cobra.Command {
	var (
		from, to string
		buffer   int
		confirm  bool
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Preview auto-match proposals for a period",
		Long: `Run the auto-match engine over open statements in a period and
print the proposed pairs. Nothing is written unless --confirm is given, in
which case every proposal is committed and per-statement results are printed.

Example:
  reconctl preview --from 2024-01-01 --to 2024-01-31
  reconctl preview --from 2024-01-01 --to 2024-01-31 --buffer 5 --confirm`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := parseRange(from, to)
			if err != nil {
				return err
			}
			var overrides *calculator.CriteriaOverrides
			if cmd.Flags().Changed("buffer") {
				overrides = &calculator.CriteriaOverrides{DateBufferDays: &buffer}
			}

			e, err := g.open()
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := g.context(cmd)
			preview, err := e.auto.Preview(ctx, r, overrides)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STATEMENT\tAGGREGATE\tCRITERIA\tSCORE\tDIFFERENCE\tDAYS")
			for _, m := range preview.Matches {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%d\n",
					m.StatementID, m.AggregateID, m.Criteria, m.Score, m.AmountDifference.StringFixed(2), m.DayDifference)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d of %d statements matched, %d unmatched\n",
				preview.Summary.MatchedStatements, preview.Summary.TotalStatements, preview.Summary.UnmatchedStatements)

			if !confirm || len(preview.Matches) == 0 {
				return nil
			}

			ids := make([]string, len(preview.Matches))
			for i, m := range preview.Matches {
				ids[i] = m.StatementID
			}
			result, err := e.auto.Confirm(ctx, service.ConfirmRequest{StatementIDs: ids, Overrides: overrides, Range: &r})
			if err != nil {
				return err
			}
			for _, item := range result.Results {
				if !item.Matched {
					fmt.Fprintf(out, "  %s: %s %s\n", item.StatementID, item.Code, item.Message)
				}
			}
			fmt.Fprintf(out, "Confirmed %d matches\n", result.MatchedCount)
			return nil
		},
	}
	dateRangeFlags(cmd, &from, &to)
	cmd.Flags().IntVar(&buffer, "buffer", calculator.DefaultDateBufferDays, "date buffer in days for this run")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "commit every proposal")
	return cmd
}
