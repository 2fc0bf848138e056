package service

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/mmynk/posrecon/internal/calculator"
	"github.com/mmynk/posrecon/internal/errs"
	"github.com/mmynk/posrecon/internal/middleware"
	"github.com/mmynk/posrecon/internal/models"
	"github.com/mmynk/posrecon/internal/storage"
)

// Bounds for statement suggestions.
const (
	DefaultSuggestionDateDays = 2
	MaxSuggestedStatements    = 20
)

// MultiMatchService manages reconciliation groups: one aggregate linked to
// several statements.
type MultiMatchService struct {
	base
	criteria calculator.MatchingCriteria
	limits   calculator.GroupLimits
}

// NewMultiMatchService creates a MultiMatchService.
func NewMultiMatchService(store storage.Ledger, criteria calculator.MatchingCriteria, limits calculator.GroupLimits, opts ...Option) *MultiMatchService {
	return &MultiMatchService{base: newBase(store, opts), criteria: criteria, limits: limits}
}

// CreateGroupRequest links statements to one aggregate.
type CreateGroupRequest struct {
	AggregateID        string   `json:"aggregateId"`
	StatementIDs       []string `json:"statementIds"`
	OverrideDifference bool     `json:"overrideDifference,omitempty"`
	Notes              string   `json:"notes,omitempty"`
}

// AggregateSuggestion is the closest open aggregate for a statement set.
type AggregateSuggestion struct {
	Aggregate         *models.AggregatedTransaction `json:"aggregate"`
	TotalBankAmount   decimal.Decimal               `json:"totalBankAmount"`
	Difference        decimal.Decimal               `json:"difference"`
	PercentDifference float64                       `json:"percentDifference"`
}

// StatementSuggestionRequest tunes the statement search for one aggregate.
type StatementSuggestionRequest struct {
	AggregateID       string
	TolerancePercent  *float64
	DateToleranceDays *int
	MaxStatements     int
}

// StatementSuggestion is a greedy statement selection for an aggregate.
type StatementSuggestion struct {
	Aggregate         *models.AggregatedTransaction `json:"aggregate"`
	Statements        []*models.BankStatement       `json:"statements"`
	TotalBankAmount   decimal.Decimal               `json:"totalBankAmount"`
	Difference        decimal.Decimal               `json:"difference"`
	PercentDifference float64                       `json:"percentDifference"`
	WithinTolerance   bool                          `json:"withinTolerance"`
}

// GroupQuery filters group listings.
type GroupQuery struct {
	Range  *models.DateRange
	Status models.GroupStatus
	Page   models.PageRequest
}

// CreateGroup links the statements to the aggregate in one transaction. The
// statement sum must be within the group tolerance of the aggregate nett
// amount unless OverrideDifference is set, which yields a DISCREPANCY group.
func (s *MultiMatchService) CreateGroup(ctx context.Context, req CreateGroupRequest) (*models.ReconciliationGroup, error) {
	ids := dedupe(req.StatementIDs)
	slog.Info("CreateGroup request received",
		"aggregate_id", req.AggregateID,
		"statements_count", len(ids),
		"override", req.OverrideDifference,
	)

	if len(ids) < s.limits.MinStatements || len(ids) > s.limits.MaxStatements {
		return nil, fail("create_group", errs.New(errs.BulkLimitExceeded,
			"a group needs between %d and %d statements, got %d", s.limits.MinStatements, s.limits.MaxStatements, len(ids)).
			WithDetails(map[string]any{"min": s.limits.MinStatements, "max": s.limits.MaxStatements, "count": len(ids)}))
	}

	agg, err := s.getAggregate(ctx, req.AggregateID)
	if err != nil {
		return nil, fail("create_group", err)
	}
	if !aggregateUnlinked(agg) {
		return nil, fail("create_group", errs.New(errs.AlreadyReconciled, "aggregate %s is already reconciled", agg.ID))
	}
	stmts, err := s.getStatements(ctx, ids)
	if err != nil {
		return nil, fail("create_group", err)
	}
	var taken []string
	for _, st := range stmts {
		if !unlinked(st) {
			taken = append(taken, st.ID)
		}
	}
	if len(taken) > 0 {
		return nil, fail("create_group", errs.New(errs.AlreadyReconciled, "statements already reconciled: %v", taken).
			WithDetails(map[string]any{"statementIds": taken}))
	}

	total := decimal.Zero
	details := make([]models.ReconciliationGroupDetail, len(stmts))
	for i, st := range stmts {
		total = total.Add(st.NetAmount())
		details[i] = models.ReconciliationGroupDetail{
			StatementID:     st.ID,
			Amount:          st.NetAmount(),
			TransactionDate: st.TransactionDate,
			Description:     st.Description,
		}
	}
	diff := total.Sub(agg.NettAmount)
	pct := calculator.PercentOf(diff, agg.NettAmount)
	within := calculator.IsWithinDifference(diff, agg.NettAmount, s.limits.MultiMatchTolerance())
	if !within && !req.OverrideDifference {
		return nil, fail("create_group", errs.New(errs.GroupDifferenceExceedsTolerance,
			"statement total %s differs from aggregate %s by %.2f%%; confirm with overrideDifference",
			total.String(), agg.NettAmount.String(), pct*100).
			WithDetails(map[string]any{
				"totalBankAmount":   total,
				"aggregateAmount":   agg.NettAmount,
				"difference":        diff,
				"percentDifference": pct,
				"tolerancePercent":  s.limits.Tolerance,
			}))
	}

	groupStatus, stmtStatus := models.GroupReconciled, models.StatusManuallyMatched
	if !within {
		groupStatus, stmtStatus = models.GroupDiscrepancy, models.StatusDiscrepancy
	}
	operator := middleware.GetUserID(ctx)
	now := s.now().Unix()

	group := &models.ReconciliationGroup{
		CompanyID:         agg.CompanyID,
		AggregateID:       agg.ID,
		TransactionDate:   agg.TransactionDate,
		Details:           details,
		TotalBankAmount:   total,
		AggregateAmount:   agg.NettAmount,
		Difference:        diff,
		PercentDifference: pct,
		Status:            groupStatus,
		Notes:             req.Notes,
		ReconciledBy:      operator,
		ReconciledAt:      now,
	}

	err = s.store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.InsertReconciliationGroup(ctx, group); err != nil {
			return err
		}
		for _, st := range stmts {
			if err := tx.CompareAndSetStatement(ctx, st.ID, storage.StatementStateOf(st), storage.StatementState{
				Status:                stmtStatus,
				IsReconciled:          true,
				PreMatchStatus:        st.Status,
				ReconciliationGroupID: group.ID,
				MatchCriteria:         models.CriteriaManual,
				MatchedAt:             now,
				MatchedBy:             operator,
				Notes:                 st.Notes,
			}); err != nil {
				return err
			}
		}
		return tx.CompareAndSetAggregate(ctx, agg.ID, storage.AggregateStateOf(agg), storage.AggregateState{
			IsReconciled:          true,
			ReconciliationGroupID: group.ID,
		})
	})
	if err != nil {
		return nil, fail("create_group", err)
	}

	s.record(ctx, models.AuditGroupCreate, "reconciliation_group", group.ID, map[string]any{
		"aggregateId":  agg.ID,
		"statementIds": group.StatementIDs(),
		"status":       string(groupStatus),
		"difference":   diff.String(),
	})
	succeed("create_group")
	slog.Info("Group created", "group_id", group.ID, "status", groupStatus, "difference", diff.String())
	return group, nil
}

// UndoGroup sets the group to UNDO and reopens every member statement and the
// aggregate, all or nothing. Undoing an UNDO group is a no-op.
func (s *MultiMatchService) UndoGroup(ctx context.Context, groupID string) (*models.ReconciliationGroup, error) {
	slog.Info("UndoGroup request received", "group_id", groupID)

	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.Status == models.GroupUndo {
		succeed("undo_group")
		return group, nil
	}

	stmts, err := s.store.GetStatements(ctx, group.StatementIDs())
	if err != nil {
		return nil, fail("undo_group", err)
	}
	agg, err := s.store.GetAggregate(ctx, group.AggregateID)
	if err != nil {
		return nil, fail("undo_group", err)
	}

	operator := middleware.GetUserID(ctx)
	now := s.now().Unix()
	err = s.store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.SetReconciliationGroupStatus(ctx, group.ID, group.Status, models.GroupUndo, operator, now); err != nil {
			return err
		}
		for _, st := range stmts {
			if st.ReconciliationGroupID != group.ID {
				continue
			}
			if err := tx.CompareAndSetStatement(ctx, st.ID, storage.StatementStateOf(st), storage.OpenStatementState(st.OpenStatus())); err != nil {
				return err
			}
		}
		if agg.ReconciliationGroupID != group.ID {
			return nil
		}
		return tx.CompareAndSetAggregate(ctx, agg.ID, storage.AggregateStateOf(agg), storage.AggregateState{})
	})
	if err != nil {
		return nil, fail("undo_group", err)
	}

	s.record(ctx, models.AuditGroupUndo, "reconciliation_group", group.ID, map[string]any{
		"aggregateId":    group.AggregateID,
		"statementIds":   group.StatementIDs(),
		"previousStatus": string(group.Status),
	})
	succeed("undo_group")
	slog.Info("Group undone", "group_id", group.ID)

	group.Status = models.GroupUndo
	group.UndoneBy = operator
	group.UndoneAt = now
	return group, nil
}

// GetGroup retrieves a reconciliation group by ID.
func (s *MultiMatchService) GetGroup(ctx context.Context, groupID string) (*models.ReconciliationGroup, error) {
	if groupID == "" {
		return nil, fail("get_group", errs.New(errs.Validation, "groupId is required"))
	}
	group, err := s.store.GetReconciliationGroup(ctx, groupID)
	if err == nil && !inScope(ctx, group.CompanyID) {
		err = storage.ErrNotFound
	}
	if err != nil {
		if asError(err).Code == errs.NotFound {
			err = errs.New(errs.NotFound, "reconciliation group %s not found", groupID)
		}
		return nil, fail("get_group", err)
	}
	return group, nil
}

// ListGroups returns one page of groups, newest first.
func (s *MultiMatchService) ListGroups(ctx context.Context, q GroupQuery) (*models.Page[*models.ReconciliationGroup], error) {
	if q.Range != nil {
		if err := validateRange(*q.Range); err != nil {
			return nil, fail("list_groups", err)
		}
	}
	if q.Status != "" && !q.Status.Valid() {
		return nil, fail("list_groups", errs.New(errs.Validation, "unknown group status %q", q.Status))
	}

	page := q.Page.Normalize()
	groups, total, err := s.store.ListReconciliationGroups(ctx, storage.GroupFilter{
		CompanyID: middleware.GetCompanyID(ctx),
		Range:     q.Range,
		Status:    q.Status,
	}, page)
	if err != nil {
		return nil, fail("list_groups", err)
	}
	if groups == nil {
		groups = []*models.ReconciliationGroup{}
	}
	return &models.Page[*models.ReconciliationGroup]{Data: groups, Pagination: models.NewPagination(page, total)}, nil
}

// SuggestAggregate finds the open aggregate closest to the statements' sum
// within the group tolerance. Aggregate is nil when nothing qualifies.
func (s *MultiMatchService) SuggestAggregate(ctx context.Context, statementIDs []string) (*AggregateSuggestion, error) {
	ids := dedupe(statementIDs)
	slog.Info("SuggestAggregate request received", "statements_count", len(ids))

	if len(ids) == 0 {
		return nil, fail("suggest_aggregate", errs.New(errs.Validation, "statementIds must not be empty"))
	}
	stmts, err := s.getStatements(ctx, ids)
	if err != nil {
		return nil, fail("suggest_aggregate", err)
	}

	total := decimal.Zero
	for _, st := range stmts {
		total = total.Add(st.NetAmount())
	}

	window := spanOf(stmts).Widen(s.criteria.DateBufferDays)
	aggs, _, err := s.store.ListAggregates(ctx, storage.AggregateFilter{
		CompanyID: middleware.GetCompanyID(ctx),
		Range:     &window,
		OpenOnly:  true,
	}, models.PageRequest{})
	if err != nil {
		return nil, fail("suggest_aggregate", err)
	}

	result := &AggregateSuggestion{TotalBankAmount: total}
	if best := calculator.ClosestAggregate(total, aggs, s.limits.Tolerance); best != nil {
		result.Aggregate = best
		result.Difference = total.Sub(best.NettAmount)
		result.PercentDifference = calculator.PercentOf(result.Difference, best.NettAmount)
	}

	succeed("suggest_aggregate")
	slog.Info("SuggestAggregate successful", "found", result.Aggregate != nil)
	return result, nil
}

// SuggestStatements greedily picks open statements near the aggregate's date
// whose sum approaches its nett amount.
func (s *MultiMatchService) SuggestStatements(ctx context.Context, req StatementSuggestionRequest) (*StatementSuggestion, error) {
	slog.Info("SuggestStatements request received", "aggregate_id", req.AggregateID)

	tolerance := s.limits.Tolerance
	if req.TolerancePercent != nil {
		tolerance = *req.TolerancePercent
	}
	days := DefaultSuggestionDateDays
	if req.DateToleranceDays != nil {
		days = *req.DateToleranceDays
	}
	limit := req.MaxStatements
	if limit <= 0 {
		limit = s.limits.MaxStatements
	}
	switch {
	case tolerance < 0 || tolerance > 1:
		return nil, fail("suggest_statements", errs.New(errs.Validation, "tolerancePercent must be between 0 and 1"))
	case days < 0 || days > calculator.MaxDateBufferDays:
		return nil, fail("suggest_statements", errs.New(errs.Validation, "dateToleranceDays must be between 0 and %d", calculator.MaxDateBufferDays))
	case limit > MaxSuggestedStatements:
		return nil, fail("suggest_statements", errs.New(errs.Validation, "maxStatements must be at most %d", MaxSuggestedStatements))
	}

	agg, err := s.getAggregate(ctx, req.AggregateID)
	if err != nil {
		return nil, fail("suggest_statements", err)
	}

	window := models.DateRange{Start: agg.TransactionDate, End: agg.TransactionDate}.Widen(days)
	stmts, _, err := s.store.ListStatements(ctx, storage.StatementFilter{
		CompanyID: middleware.GetCompanyID(ctx),
		Range:     &window,
		OpenOnly:  true,
	}, models.PageRequest{})
	if err != nil {
		return nil, fail("suggest_statements", err)
	}

	items := make([]calculator.Item, len(stmts))
	byID := make(map[string]*models.BankStatement, len(stmts))
	for i, st := range stmts {
		items[i] = calculator.Item{ID: st.ID, Amount: st.NetAmount()}
		byID[st.ID] = st
	}
	picked := calculator.GreedyCombination(agg.NettAmount, items, tolerance, limit)

	result := &StatementSuggestion{Aggregate: agg, Statements: make([]*models.BankStatement, 0, len(picked))}
	for _, it := range picked {
		result.Statements = append(result.Statements, byID[it.ID])
	}
	result.TotalBankAmount = calculator.SumItems(picked)
	result.Difference = result.TotalBankAmount.Sub(agg.NettAmount)
	result.PercentDifference = calculator.PercentOf(result.Difference, agg.NettAmount)
	result.WithinTolerance = len(picked) > 0 &&
		calculator.IsWithinDifference(result.Difference, agg.NettAmount, calculator.Tolerance{Percent: tolerance})

	succeed("suggest_statements")
	slog.Info("SuggestStatements successful", "aggregate_id", agg.ID, "picked", len(picked))
	return result, nil
}
