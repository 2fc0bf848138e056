package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmynk/posrecon/internal/models"
)

// Dataset is the JSON document accepted by the load command.
type Dataset struct {
	Statements []*models.BankStatement         `json:"statements"`
	Aggregates []*models.AggregatedTransaction `json:"aggregates"`
}

func newLoadCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "load FILE",
		Short: "Import statements and aggregates from a JSON file",
		Long: `Import bank statements and POS aggregates into the ledger.

The file holds {"statements": [...], "aggregates": [...]} using the same
field names the API returns. Existing records are refreshed; their match
state is left untouched. Records without a company_id take --company.

Example:
  reconctl load january.json --company c1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			var ds Dataset
			if err := json.Unmarshal(data, &ds); err != nil {
				return fmt.Errorf("failed to parse %s: %w", args[0], err)
			}
			for _, st := range ds.Statements {
				if st.CompanyID == "" {
					st.CompanyID = g.companyID
				}
			}
			for _, a := range ds.Aggregates {
				if a.CompanyID == "" {
					a.CompanyID = g.companyID
				}
			}

			e, err := g.open()
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			if len(ds.Statements) > 0 {
				if err := e.store.UpsertStatements(ctx, ds.Statements); err != nil {
					return err
				}
			}
			if len(ds.Aggregates) > 0 {
				if err := e.store.UpsertAggregates(ctx, ds.Aggregates); err != nil {
					return err
				}
			}

			slog.Info("Import completed", "statements", len(ds.Statements), "aggregates", len(ds.Aggregates))
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d statements and %d aggregates\n", len(ds.Statements), len(ds.Aggregates))
			return nil
		},
	}
}
