// Package cmd provides the reconctl commands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mmynk/posrecon/internal/config"
	"github.com/mmynk/posrecon/internal/middleware"
	"github.com/mmynk/posrecon/internal/models"
	"github.com/mmynk/posrecon/internal/service"
	"github.com/mmynk/posrecon/internal/storage/journal"
	"github.com/mmynk/posrecon/internal/storage/sqlite"
	"github.com/mmynk/posrecon/pkg/logging"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	envFile   string
	debug     bool
	operator  string
	companyID string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "reconctl",
		Short: "Operate the bank statement reconciliation ledger",
		Long: `reconctl loads bank statements and POS aggregates into the
reconciliation ledger and runs the engine against it from the shell.

It supports:
- Loading statements and aggregates from a JSON file
- Previewing and confirming auto-match proposals
- Printing the reconciliation summary and discrepancy list
- Exporting discrepancies to XLSX
- Issuing operator tokens for the API

Example:
  reconctl load data.json
  reconctl preview --from 2024-01-01 --to 2024-01-31 --confirm
  reconctl discrepancies --from 2024-01-01 --to 2024-01-31 --xlsx report.xlsx`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.debug {
				logging.SetupWithLevel(slog.LevelDebug, "text")
				return
			}
			logging.Setup()
		},
	}

	root.PersistentFlags().StringVar(&g.envFile, "config", "", "env file (default is .env)")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "enable debug logging (overrides LOG_LEVEL)")
	root.PersistentFlags().StringVar(&g.operator, "operator", "reconctl", "operator recorded on ledger changes")
	root.PersistentFlags().StringVar(&g.companyID, "company", "", "company scope (empty means all companies)")

	root.AddCommand(
		newLoadCmd(g),
		newPreviewCmd(g),
		newSummaryCmd(g),
		newDiscrepanciesCmd(g),
		newTokenCmd(g),
	)
	return root
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

// env is an opened ledger plus the services built on it.
type env struct {
	cfg     *config.Config
	store   *sqlite.SQLiteStore
	journal *journal.Journal
	auto    *service.AutoMatchService
	report  *service.ReportService
}

// open loads config and opens the ledger. The journal is optional: a running
// server holds its lock, in which case changes go unjournaled.
func (g *globals) open() (*env, error) {
	cfg, err := config.Load(g.envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	slog.Debug("Opening ledger", "path", cfg.DBPath)
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	e := &env{cfg: cfg, store: store}
	var opts []service.Option
	if j, err := journal.Open(cfg.JournalPath); err != nil {
		slog.Warn("Audit journal unavailable, continuing without it", "path", cfg.JournalPath, "error", err)
	} else {
		e.journal = j
		opts = append(opts, service.WithAuditLog(j))
	}
	e.auto = service.NewAutoMatchService(store, cfg.Criteria, opts...)
	e.report = service.NewReportService(store, cfg.Criteria, opts...)
	return e, nil
}

func (e *env) Close() {
	if e.journal != nil {
		_ = e.journal.Close()
	}
	_ = e.store.Close()
}

func (g *globals) context(cmd *cobra.Command) context.Context {
	return middleware.WithOperator(cmd.Context(), g.operator, g.companyID, "")
}

// dateRangeFlags registers the --from and --to flags on cmd.
func dateRangeFlags(cmd *cobra.Command, from, to *string) {
	cmd.Flags().StringVar(from, "from", "", "Start date (YYYY-MM-DD) (required)")
	cmd.Flags().StringVar(to, "to", "", "End date (YYYY-MM-DD) (required)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
}

func parseRange(from, to string) (models.DateRange, error) {
	r, err := models.NewDateRange(from, to)
	if err != nil {
		return models.DateRange{}, fmt.Errorf("invalid date range: %w", err)
	}
	return r, nil
}
