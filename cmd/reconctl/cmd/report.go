package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mmynk/posrecon/internal/export"
)

func newSummaryCmd(g *globals) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the reconciliation summary for a period",
		Long: `Print statement counts by outcome, the total unresolved difference
and the reconciled percentage for a period.

Example:
  reconctl summary --from 2024-01-01 --to 2024-01-31`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := parseRange(from, to)
			if err != nil {
				return err
			}
			e, err := g.open()
			if err != nil {
				return err
			}
			defer e.Close()

			s, err := e.report.Summary(g.context(cmd), r)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\n=== Reconciliation %s to %s ===\n", r.Start, r.End)
			fmt.Fprintf(out, "Statements:        %d\n", s.TotalStatements)
			fmt.Fprintf(out, "Aggregates:        %d\n", s.TotalAggregates)
			fmt.Fprintf(out, "Auto matched:      %d\n", s.AutoMatched)
			fmt.Fprintf(out, "Manually matched:  %d\n", s.ManuallyMatched)
			fmt.Fprintf(out, "Discrepancies:     %d\n", s.Discrepancies)
			fmt.Fprintf(out, "Unreconciled:      %d\n", s.Unreconciled)
			fmt.Fprintf(out, "Total difference:  %s\n", s.TotalDifference.StringFixed(2))
			fmt.Fprintf(out, "Reconciled:        %.2f%%\n", s.PercentageReconciled)
			return nil
		},
	}
	dateRangeFlags(cmd, &from, &to)
	return cmd
}

func newDiscrepanciesCmd(g *globals) *cobra.Command {
	var (
		from, to  string
		threshold string
		xlsxPath  string
	)
	cmd := &cobra.Command{
		Use:   "discrepancies",
		Short: "List discrepancies for a period",
		Long: `List unmatched statements, amount mismatches and date anomalies,
most severe first. With --xlsx the report is written as a workbook instead.

Example:
  reconctl discrepancies --from 2024-01-01 --to 2024-01-31 --threshold 5000
  reconctl discrepancies --from 2024-01-01 --to 2024-01-31 --xlsx january.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := parseRange(from, to)
			if err != nil {
				return err
			}
			var limit *decimal.Decimal
			if threshold != "" {
				d, err := decimal.NewFromString(threshold)
				if err != nil {
					return fmt.Errorf("invalid threshold %q: %w", threshold, err)
				}
				limit = &d
			}

			e, err := g.open()
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := g.context(cmd)
			items, err := e.report.Discrepancies(ctx, r, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if xlsxPath != "" {
				summary, err := e.report.Summary(ctx, r)
				if err != nil {
					return err
				}
				f, err := os.Create(xlsxPath)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", xlsxPath, err)
				}
				if err := export.WriteDiscrepancies(f, summary, items); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				slog.Info("Discrepancy report exported", "path", xlsxPath, "items", len(items))
				fmt.Fprintf(out, "Wrote %d discrepancies to %s\n", len(items), xlsxPath)
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SEVERITY\tREASON\tSTATEMENT\tDATE\tAMOUNT\tDIFFERENCE\tMATCHED")
			for _, it := range items {
				matched := it.AggregateID
				if it.GroupID != "" {
					matched = it.GroupID
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					it.Severity, it.Reason, it.StatementID, it.TransactionDate,
					it.StatementAmount.StringFixed(2), it.Difference.StringFixed(2), matched)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d discrepancies\n", len(items))
			return nil
		},
	}
	dateRangeFlags(cmd, &from, &to)
	cmd.Flags().StringVar(&threshold, "threshold", "", "minimum absolute amount difference to report")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "write the report to this XLSX file")
	return cmd
}
