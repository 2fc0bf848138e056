package service

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mmynk/posrecon/internal/calculator"
	"github.com/mmynk/posrecon/internal/errs"
	"github.com/mmynk/posrecon/internal/middleware"
	"github.com/mmynk/posrecon/internal/models"
	"github.com/mmynk/posrecon/internal/storage"
)

// Statement list filters that expand to several statuses.
const (
	FilterReconciled   = "RECONCILED"
	FilterUnreconciled = "UNRECONCILED"
	FilterDiscrepancy  = "DISCREPANCY"
)

// highSeverityFactor multiplies the difference threshold to grade HIGH.
const highSeverityFactor = 10

// ReportService derives summaries and discrepancy lists from ledger state.
// Nothing it returns is persisted.
type ReportService struct {
	base
	criteria calculator.MatchingCriteria
}

// NewReportService creates a ReportService. criteria supplies the default
// discrepancy threshold and the date buffer used for DATE_ANOMALY.
func NewReportService(store storage.Ledger, criteria calculator.MatchingCriteria, opts ...Option) *ReportService {
	return &ReportService{base: newBase(store, opts), criteria: criteria}
}

// StatementQuery filters the statement listing.
type StatementQuery struct {
	Range  *models.DateRange
	Status string
	Search string
	Page   models.PageRequest
}

// statusFilter expands a list filter into the statuses it selects.
func statusFilter(filter string) ([]models.StatementStatus, error) {
	switch filter {
	case "":
		return nil, nil
	case FilterReconciled:
		return []models.StatementStatus{models.StatusAutoMatched, models.StatusManuallyMatched}, nil
	case FilterUnreconciled:
		return models.OpenStatuses, nil
	case FilterDiscrepancy:
		return []models.StatementStatus{models.StatusDiscrepancy}, nil
	}
	status, err := models.ParseStatementStatus(filter)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, err, err.Error())
	}
	return []models.StatementStatus{status}, nil
}

// ListStatements returns one page of statements ordered by date.
func (s *ReportService) ListStatements(ctx context.Context, q StatementQuery) (*models.Page[*models.BankStatement], error) {
	if q.Range != nil {
		if err := validateRange(*q.Range); err != nil {
			return nil, fail("list_statements", err)
		}
	}
	statuses, err := statusFilter(q.Status)
	if err != nil {
		return nil, fail("list_statements", err)
	}

	page := q.Page.Normalize()
	stmts, total, err := s.store.ListStatements(ctx, storage.StatementFilter{
		CompanyID: middleware.GetCompanyID(ctx),
		Range:     q.Range,
		Statuses:  statuses,
		Search:    q.Search,
	}, page)
	if err != nil {
		return nil, fail("list_statements", err)
	}
	if stmts == nil {
		stmts = []*models.BankStatement{}
	}
	return &models.Page[*models.BankStatement]{Data: stmts, Pagination: models.NewPagination(page, total)}, nil
}

// Summary counts statements by status for r and totals the differences
// accepted by single matches and active groups.
func (s *ReportService) Summary(ctx context.Context, r models.DateRange) (*models.ReconciliationSummary, error) {
	slog.Info("Summary request received", "start_date", r.Start, "end_date", r.End)

	if err := validateRange(r); err != nil {
		return nil, fail("summary", err)
	}
	company := middleware.GetCompanyID(ctx)

	stmts, _, err := s.store.ListStatements(ctx, storage.StatementFilter{CompanyID: company, Range: &r}, models.PageRequest{})
	if err != nil {
		return nil, fail("summary", err)
	}
	_, aggCount, err := s.store.ListAggregates(ctx, storage.AggregateFilter{CompanyID: company, Range: &r}, models.PageRequest{Page: 1, Limit: 1})
	if err != nil {
		return nil, fail("summary", err)
	}

	summary := &models.ReconciliationSummary{
		Period:          r,
		TotalStatements: len(stmts),
		TotalAggregates: aggCount,
		TotalDifference: decimal.Zero,
	}

	reconciled := 0
	var singles []*models.BankStatement
	for _, st := range stmts {
		switch st.Status {
		case models.StatusAutoMatched:
			summary.AutoMatched++
		case models.StatusManuallyMatched:
			summary.ManuallyMatched++
		case models.StatusDiscrepancy:
			summary.Discrepancies++
		default:
			summary.Unreconciled++
		}
		if st.IsReconciled {
			reconciled++
		}
		if st.MatchedAggregateID != "" {
			singles = append(singles, st)
		}
	}

	pairs, err := s.pairAggregates(ctx, singles)
	if err != nil {
		return nil, fail("summary", err)
	}
	for _, st := range singles {
		if agg, ok := pairs[st.MatchedAggregateID]; ok {
			summary.TotalDifference = summary.TotalDifference.Add(st.NetAmount().Sub(agg.NettAmount).Abs())
		}
	}

	groups, _, err := s.store.ListReconciliationGroups(ctx, storage.GroupFilter{CompanyID: company, Range: &r}, models.PageRequest{})
	if err != nil {
		return nil, fail("summary", err)
	}
	for _, g := range groups {
		if g.Status.IsActive() {
			summary.TotalDifference = summary.TotalDifference.Add(g.Difference.Abs())
		}
	}
	settlements, _, err := s.store.ListSettlementGroups(ctx, storage.SettlementFilter{CompanyID: company, Range: &r}, models.PageRequest{})
	if err != nil {
		return nil, fail("summary", err)
	}
	for _, g := range settlements {
		if g.Status.IsActive() {
			summary.TotalDifference = summary.TotalDifference.Add(g.Difference.Abs())
		}
	}

	if summary.TotalStatements > 0 {
		pct := float64(reconciled) / float64(summary.TotalStatements) * 100
		summary.PercentageReconciled = math.Round(pct*100) / 100
	}

	succeed("summary")
	slog.Info("Summary successful",
		"statements", summary.TotalStatements,
		"aggregates", summary.TotalAggregates,
		"percentage_reconciled", summary.PercentageReconciled,
	)
	return summary, nil
}

// pairAggregates loads the aggregates singly matched to stmts, keyed by ID.
func (s *ReportService) pairAggregates(ctx context.Context, stmts []*models.BankStatement) (map[string]*models.AggregatedTransaction, error) {
	out := make(map[string]*models.AggregatedTransaction, len(stmts))
	if len(stmts) == 0 {
		return out, nil
	}
	ids := make([]string, len(stmts))
	for i, st := range stmts {
		ids[i] = st.MatchedAggregateID
	}
	aggs, err := s.store.GetAggregates(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, a := range aggs {
		out[a.ID] = a
	}
	return out, nil
}

// Discrepancies lists the statements in r that need review:
//   - NO_MATCH for open statements, graded by their net amount.
//   - AMOUNT_MISMATCH for single matches outside tolerance and for groups held
//     in DISCREPANCY, once per group.
//   - DATE_ANOMALY for single matches within tolerance whose dates are further
//     apart than the date buffer.
//
// threshold drops AMOUNT_MISMATCH items whose |difference| is not above it;
// nil uses the configured difference threshold. Items are ordered by
// severity, then |difference|, then statement ID.
func (s *ReportService) Discrepancies(ctx context.Context, r models.DateRange, threshold *decimal.Decimal) ([]models.DiscrepancyItem, error) {
	slog.Info("Discrepancies request received", "start_date", r.Start, "end_date", r.End)

	if err := validateRange(r); err != nil {
		return nil, fail("discrepancies", err)
	}
	limit := s.criteria.DifferenceThreshold
	if threshold != nil {
		if threshold.IsNegative() {
			return nil, fail("discrepancies", errs.New(errs.Validation, "threshold must not be negative"))
		}
		limit = *threshold
	}

	stmts, _, err := s.store.ListStatements(ctx, storage.StatementFilter{
		CompanyID: middleware.GetCompanyID(ctx),
		Range:     &r,
	}, models.PageRequest{})
	if err != nil {
		return nil, fail("discrepancies", err)
	}

	var singles []*models.BankStatement
	for _, st := range stmts {
		if st.MatchedAggregateID != "" {
			singles = append(singles, st)
		}
	}
	pairs, err := s.pairAggregates(ctx, singles)
	if err != nil {
		return nil, fail("discrepancies", err)
	}

	items := []models.DiscrepancyItem{}
	seenGroups := make(map[string]bool)
	for _, st := range stmts {
		net := st.NetAmount()
		item := models.DiscrepancyItem{
			StatementID:     st.ID,
			TransactionDate: st.TransactionDate,
			Description:     st.Description,
			StatementAmount: net,
			Status:          st.Status,
		}

		switch {
		case unlinked(st):
			item.Reason = models.ReasonNoMatch
			item.Difference = net.Abs()
			item.Severity = s.amountSeverity(item.Difference)

		case st.MatchedAggregateID != "":
			agg, ok := pairs[st.MatchedAggregateID]
			if !ok {
				continue
			}
			amount := agg.NettAmount
			item.AggregateID = agg.ID
			item.AggregateAmount = &amount
			item.Difference = net.Sub(amount)
			item.DayDifference = calculator.DayDifference(st.TransactionDate, agg.TransactionDate)

			if !calculator.IsWithinAmountTolerance(net, amount, s.criteria.Tolerance()) {
				if !item.Difference.Abs().GreaterThan(limit) {
					continue
				}
				item.Reason = models.ReasonAmountMismatch
				item.Severity = s.amountSeverity(item.Difference)
			} else if item.DayDifference > s.criteria.DateBufferDays {
				item.Reason = models.ReasonDateAnomaly
				item.Severity = models.SeverityMedium
				if item.DayDifference <= 2*s.criteria.DateBufferDays {
					item.Severity = models.SeverityLow
				}
			} else {
				continue
			}

		case st.Status == models.StatusDiscrepancy && st.IsGrouped():
			diff, aggregateAmount, groupID, err := s.groupDifference(ctx, st)
			if err != nil {
				return nil, fail("discrepancies", err)
			}
			if groupID == "" || seenGroups[groupID] || !diff.Abs().GreaterThan(limit) {
				continue
			}
			seenGroups[groupID] = true
			item.GroupID = groupID
			item.AggregateAmount = aggregateAmount
			item.Difference = diff
			item.Reason = models.ReasonAmountMismatch
			item.Severity = s.amountSeverity(diff)

		default:
			continue
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		wi, wj := items[i].Severity.Weight(), items[j].Severity.Weight()
		if wi != wj {
			return wi > wj
		}
		di, dj := items[i].Difference.Abs(), items[j].Difference.Abs()
		if !di.Equal(dj) {
			return di.GreaterThan(dj)
		}
		return items[i].StatementID < items[j].StatementID
	})

	succeed("discrepancies")
	slog.Info("Discrepancies successful", "statements", len(stmts), "items", len(items))
	return items, nil
}

// groupDifference reads the difference recorded on the group holding st.
// Groups no longer active yield an empty group ID.
func (s *ReportService) groupDifference(ctx context.Context, st *models.BankStatement) (decimal.Decimal, *decimal.Decimal, string, error) {
	if st.ReconciliationGroupID != "" {
		g, err := s.store.GetReconciliationGroup(ctx, st.ReconciliationGroupID)
		if err != nil {
			return decimal.Zero, nil, "", err
		}
		if !g.Status.IsActive() {
			return decimal.Zero, nil, "", nil
		}
		amount := g.AggregateAmount
		return g.Difference, &amount, g.ID, nil
	}
	g, err := s.store.GetSettlementGroup(ctx, st.SettlementGroupID)
	if err != nil {
		return decimal.Zero, nil, "", err
	}
	if !g.Status.IsActive() {
		return decimal.Zero, nil, "", nil
	}
	amount := g.TotalAllocatedAmount
	return g.Difference, &amount, g.ID, nil
}

// amountSeverity grades a difference against the configured threshold.
func (s *ReportService) amountSeverity(diff decimal.Decimal) models.Severity {
	d := diff.Abs()
	switch {
	case d.GreaterThan(s.criteria.DifferenceThreshold.Mul(decimal.NewFromInt(highSeverityFactor))):
		return models.SeverityHigh
	case d.GreaterThan(s.criteria.DifferenceThreshold):
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// AuditTrail returns the newest audit entries recorded for entityID.
func (s *ReportService) AuditTrail(ctx context.Context, entityID string, limit int) ([]models.AuditEntry, error) {
	if entityID == "" {
		return nil, fail("audit_trail", errs.New(errs.Validation, "entityId is required"))
	}
	if s.audit == nil {
		return []models.AuditEntry{}, nil
	}
	entries, err := s.audit.List(ctx, entityID, limit)
	if err != nil {
		return nil, fail("audit_trail", err)
	}
	visible := make([]models.AuditEntry, 0, len(entries))
	for _, e := range entries {
		if inScope(ctx, e.CompanyID) || e.CompanyID == "" {
			visible = append(visible, e)
		}
	}
	succeed("audit_trail")
	return visible, nil
}
