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

// Suggestion defaults for settlement lookups.
const (
	DefaultSettlementSuggestions = 10
	DefaultSuggestionTolerance   = 0.05
)

// SettlementService manages settlement groups: one statement linked to
// several aggregates, with soft delete and restore.
type SettlementService struct {
	base
	limits calculator.GroupLimits
}

// NewSettlementService creates a SettlementService.
func NewSettlementService(store storage.Ledger, limits calculator.GroupLimits, opts ...Option) *SettlementService {
	return &SettlementService{base: newBase(store, opts), limits: limits}
}

// CreateSettlementRequest links one statement to several aggregates.
// Allocations optionally override the amount counted per aggregate.
type CreateSettlementRequest struct {
	BankStatementID    string                     `json:"bankStatementId"`
	AggregateIDs       []string                   `json:"aggregateIds"`
	Allocations        map[string]decimal.Decimal `json:"allocations,omitempty"`
	Notes              string                     `json:"notes,omitempty"`
	OverrideDifference bool                       `json:"overrideDifference,omitempty"`
}

// SettlementQuery filters settlement listings.
type SettlementQuery struct {
	Range  *models.DateRange
	Status models.GroupStatus
	Search string
	Page   models.PageRequest
}

// AvailableQuery filters the open statements or aggregates offered for a settlement.
type AvailableQuery struct {
	Range         *models.DateRange
	Search        string
	BranchID      string
	PaymentMethod string
	Page          models.PageRequest
}

// SuggestionRequest asks for aggregates summing toward a statement or amount.
type SuggestionRequest struct {
	BankStatementID  string
	TargetAmount     *decimal.Decimal
	TolerancePercent *float64
	MaxResults       int
	Range            *models.DateRange
}

// SettlementSuggestion is a greedy aggregate selection toward a target.
type SettlementSuggestion struct {
	TargetAmount      decimal.Decimal                 `json:"targetAmount"`
	Aggregates        []*models.AggregatedTransaction `json:"aggregates"`
	TotalAmount       decimal.Decimal                 `json:"totalAmount"`
	Difference        decimal.Decimal                 `json:"difference"`
	PercentDifference float64                         `json:"percentDifference"`
	WithinTolerance   bool                            `json:"withinTolerance"`
}

// Create validates the selection, assigns the next settlement number and
// links the statement and every aggregate to the new group in one
// transaction. The group is RECONCILED, or DISCREPANCY when the difference
// needed an override.
func (s *SettlementService) Create(ctx context.Context, req CreateSettlementRequest) (*models.SettlementGroup, error) {
	slog.Info("CreateSettlement request received",
		"bank_statement_id", req.BankStatementID,
		"aggregates_count", len(req.AggregateIDs),
		"override", req.OverrideDifference,
	)

	if len(req.AggregateIDs) == 0 {
		return nil, fail("create_settlement", errs.New(errs.Validation, "aggregateIds is required"))
	}
	if len(req.AggregateIDs) > s.limits.MaxAggregates {
		return nil, fail("create_settlement", errs.New(errs.BulkLimitExceeded,
			"a settlement takes at most %d aggregates, got %d", s.limits.MaxAggregates, len(req.AggregateIDs)).
			WithDetails(map[string]any{"min": 1, "max": s.limits.MaxAggregates, "count": len(req.AggregateIDs)}))
	}
	ids := dedupe(req.AggregateIDs)
	if len(ids) != len(req.AggregateIDs) {
		return nil, fail("create_settlement", errs.New(errs.Validation, "aggregateIds must be unique and non-empty"))
	}
	selected := make(map[string]bool, len(ids))
	for _, id := range ids {
		selected[id] = true
	}
	for id, amount := range req.Allocations {
		if !selected[id] {
			return nil, fail("create_settlement", errs.New(errs.Validation, "allocation for unselected aggregate %s", id))
		}
		if amount.IsZero() {
			return nil, fail("create_settlement", errs.New(errs.Validation, "allocation for aggregate %s must not be zero", id))
		}
	}

	st, err := s.getStatement(ctx, req.BankStatementID)
	if err != nil {
		return nil, fail("create_settlement", err)
	}
	if !unlinked(st) {
		return nil, fail("create_settlement", errs.New(errs.AlreadyReconciled,
			"statement %s is already reconciled (status %s)", st.ID, st.Status))
	}
	aggs, err := s.getAggregates(ctx, ids)
	if err != nil {
		return nil, fail("create_settlement", err)
	}
	var taken []string
	for _, a := range aggs {
		if !aggregateUnlinked(a) {
			taken = append(taken, a.ID)
		}
	}
	if len(taken) > 0 {
		return nil, fail("create_settlement", errs.New(errs.AlreadyReconciled, "aggregates already reconciled: %v", taken).
			WithDetails(map[string]any{"aggregateIds": taken}))
	}

	allocations := make([]models.SettlementAllocation, len(aggs))
	allocated := decimal.Zero
	for i, a := range aggs {
		amount := a.NettAmount
		if override, ok := req.Allocations[a.ID]; ok {
			amount = override
		}
		allocated = allocated.Add(amount)
		allocations[i] = models.SettlementAllocation{
			AggregateID:     a.ID,
			OriginalAmount:  a.NettAmount,
			AllocatedAmount: amount,
			BranchName:      a.BranchName,
			PaymentMethod:   a.PaymentMethod,
			TransactionDate: a.TransactionDate,
		}
	}

	net := st.NetAmount()
	diff := net.Sub(allocated)
	pct := calculator.PercentOf(diff, net)
	within := calculator.IsWithinDifference(diff, net, s.limits.SettlementTolerance())
	if !within && !req.OverrideDifference {
		return nil, fail("create_settlement", errs.New(errs.GroupDifferenceExceedsTolerance,
			"allocated total %s differs from statement amount %s by %s; confirm with overrideDifference",
			allocated.String(), net.String(), diff.String()).
			WithDetails(map[string]any{
				"totalStatementAmount": net,
				"totalAllocatedAmount": allocated,
				"difference":           diff,
				"percentDifference":    pct,
				"tolerancePercent":     s.limits.Tolerance,
				"absoluteThreshold":    s.limits.SettlementThreshold,
			}))
	}

	groupStatus, stmtStatus := models.GroupReconciled, models.StatusManuallyMatched
	if !within {
		groupStatus, stmtStatus = models.GroupDiscrepancy, models.StatusDiscrepancy
	}
	operator := middleware.GetUserID(ctx)
	now := s.now().Unix()

	group := &models.SettlementGroup{
		CompanyID:            st.CompanyID,
		BankStatementID:      st.ID,
		SettlementDate:       st.TransactionDate,
		Allocations:          allocations,
		TotalStatementAmount: net,
		TotalAllocatedAmount: allocated,
		Difference:           diff,
		PercentDifference:    pct,
		Status:               groupStatus,
		Notes:                req.Notes,
		CreatedBy:            operator,
		CreatedAt:            now,
		ConfirmedBy:          operator,
		ConfirmedAt:          now,
	}

	err = s.store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.InsertSettlementGroup(ctx, group); err != nil {
			return err
		}
		if err := tx.CompareAndSetStatement(ctx, st.ID, storage.StatementStateOf(st), storage.StatementState{
			Status:            stmtStatus,
			IsReconciled:      true,
			PreMatchStatus:    st.Status,
			SettlementGroupID: group.ID,
			MatchCriteria:     models.CriteriaManual,
			MatchedAt:         now,
			MatchedBy:         operator,
			Notes:             st.Notes,
		}); err != nil {
			return err
		}
		for _, a := range aggs {
			if err := tx.CompareAndSetAggregate(ctx, a.ID, storage.AggregateStateOf(a), storage.AggregateState{
				IsReconciled:      true,
				SettlementGroupID: group.ID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fail("create_settlement", err)
	}

	s.record(ctx, models.AuditSettlementCreate, "settlement_group", group.ID, map[string]any{
		"settlementNumber": group.SettlementNumber,
		"bankStatementId":  st.ID,
		"aggregateIds":     group.AggregateIDs(),
		"status":           string(groupStatus),
		"difference":       diff.String(),
	})
	succeed("create_settlement")
	slog.Info("Settlement created",
		"settlement_id", group.ID,
		"settlement_number", group.SettlementNumber,
		"status", groupStatus,
	)
	return group, nil
}

// SoftDelete hides a group. With revert, the statement and aggregates still
// linked to it return to unreconciled and the group becomes UNDO; without,
// they stay reconciled. Deleting a deleted group is a no-op.
func (s *SettlementService) SoftDelete(ctx context.Context, id string, revert bool) (*models.SettlementGroup, error) {
	slog.Info("SoftDeleteSettlement request received", "settlement_id", id, "revert", revert)

	group, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if group.IsDeleted {
		succeed("delete_settlement")
		return group, nil
	}

	operator := middleware.GetUserID(ctx)
	now := s.now().Unix()
	deletion := storage.SettlementDeletion{By: operator, At: now, Reverted: group.ReconciliationReverted}

	var (
		st   *models.BankStatement
		aggs []*models.AggregatedTransaction
	)
	revertLinks := revert && group.Status.IsActive()
	if revertLinks {
		deletion.Reverted = true
		deletion.Status = models.GroupUndo
		if st, err = s.store.GetStatement(ctx, group.BankStatementID); err != nil {
			return nil, fail("delete_settlement", err)
		}
		if aggs, err = s.store.GetAggregates(ctx, group.AggregateIDs()); err != nil {
			return nil, fail("delete_settlement", err)
		}
	}

	err = s.store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.MarkSettlementGroupDeleted(ctx, group.ID, deletion); err != nil {
			return err
		}
		if !revertLinks {
			return nil
		}
		if st.SettlementGroupID == group.ID {
			if err := tx.CompareAndSetStatement(ctx, st.ID, storage.StatementStateOf(st), storage.OpenStatementState(st.OpenStatus())); err != nil {
				return err
			}
		}
		for _, a := range aggs {
			if a.SettlementGroupID != group.ID {
				continue
			}
			if err := tx.CompareAndSetAggregate(ctx, a.ID, storage.AggregateStateOf(a), storage.AggregateState{}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fail("delete_settlement", err)
	}

	s.record(ctx, models.AuditSettlementDelete, "settlement_group", group.ID, map[string]any{
		"settlementNumber":       group.SettlementNumber,
		"reconciliationReverted": deletion.Reverted,
	})
	succeed("delete_settlement")
	slog.Info("Settlement deleted", "settlement_id", group.ID, "reverted", revertLinks)

	group.IsDeleted = true
	group.DeletedAt = now
	group.DeletedBy = operator
	group.ReconciliationReverted = deletion.Reverted
	if deletion.Status != "" {
		group.Status = deletion.Status
	}
	return group, nil
}

// Restore clears the deletion mark. Reverted records are not re-reconciled;
// the group keeps its UNDO status. Restoring an active group is a no-op.
func (s *SettlementService) Restore(ctx context.Context, id string) (*models.SettlementGroup, error) {
	slog.Info("RestoreSettlement request received", "settlement_id", id)

	group, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !group.IsDeleted {
		succeed("restore_settlement")
		return group, nil
	}

	now := s.now().Unix()
	err = s.store.Update(ctx, func(tx storage.Tx) error {
		return tx.RestoreSettlementGroup(ctx, group.ID, now)
	})
	if err != nil {
		return nil, fail("restore_settlement", err)
	}

	s.record(ctx, models.AuditSettlementRestore, "settlement_group", group.ID, map[string]any{
		"settlementNumber":       group.SettlementNumber,
		"reconciliationReverted": group.ReconciliationReverted,
	})
	succeed("restore_settlement")
	slog.Info("Settlement restored", "settlement_id", group.ID)

	group.IsDeleted = false
	group.DeletedAt = 0
	group.DeletedBy = ""
	group.UpdatedAt = now
	return group, nil
}

// Get retrieves a settlement group, deleted or not.
func (s *SettlementService) Get(ctx context.Context, id string) (*models.SettlementGroup, error) {
	if id == "" {
		return nil, fail("get_settlement", errs.New(errs.Validation, "settlement id is required"))
	}
	group, err := s.store.GetSettlementGroup(ctx, id)
	return s.scoped(ctx, "get_settlement", id, group, err)
}

// GetByNumber retrieves a settlement group by its settlement number.
func (s *SettlementService) GetByNumber(ctx context.Context, number string) (*models.SettlementGroup, error) {
	if number == "" {
		return nil, fail("get_settlement", errs.New(errs.Validation, "settlement number is required"))
	}
	group, err := s.store.GetSettlementGroupByNumber(ctx, number)
	return s.scoped(ctx, "get_settlement", number, group, err)
}

func (s *SettlementService) scoped(ctx context.Context, op, key string, group *models.SettlementGroup, err error) (*models.SettlementGroup, error) {
	if err == nil && !inScope(ctx, group.CompanyID) {
		err = storage.ErrNotFound
	}
	if err != nil {
		if asError(err).Code == errs.NotFound {
			err = errs.New(errs.NotFound, "settlement group %s not found", key)
		}
		return nil, fail(op, err)
	}
	return group, nil
}

// Aggregates returns the allocations of a settlement group in allocation order.
func (s *SettlementService) Aggregates(ctx context.Context, id string) ([]models.SettlementAllocation, error) {
	group, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return group.Allocations, nil
}

// List returns one page of active settlement groups, newest first.
func (s *SettlementService) List(ctx context.Context, q SettlementQuery) (*models.Page[*models.SettlementGroup], error) {
	return s.list(ctx, q, false)
}

// ListTrash returns one page of soft-deleted settlement groups, most recently deleted first.
func (s *SettlementService) ListTrash(ctx context.Context, q SettlementQuery) (*models.Page[*models.SettlementGroup], error) {
	return s.list(ctx, q, true)
}

func (s *SettlementService) list(ctx context.Context, q SettlementQuery, deleted bool) (*models.Page[*models.SettlementGroup], error) {
	if q.Range != nil {
		if err := validateRange(*q.Range); err != nil {
			return nil, fail("list_settlements", err)
		}
	}
	if q.Status != "" && !q.Status.Valid() {
		return nil, fail("list_settlements", errs.New(errs.Validation, "unknown group status %q", q.Status))
	}

	page := q.Page.Normalize()
	groups, total, err := s.store.ListSettlementGroups(ctx, storage.SettlementFilter{
		CompanyID: middleware.GetCompanyID(ctx),
		Range:     q.Range,
		Status:    q.Status,
		Deleted:   deleted,
		Search:    q.Search,
	}, page)
	if err != nil {
		return nil, fail("list_settlements", err)
	}
	if groups == nil {
		groups = []*models.SettlementGroup{}
	}
	return &models.Page[*models.SettlementGroup]{Data: groups, Pagination: models.NewPagination(page, total)}, nil
}

// AvailableStatements lists open statements that can anchor a settlement.
func (s *SettlementService) AvailableStatements(ctx context.Context, q AvailableQuery) (*models.Page[*models.BankStatement], error) {
	if q.Range != nil {
		if err := validateRange(*q.Range); err != nil {
			return nil, fail("available_statements", err)
		}
	}
	page := q.Page.Normalize()
	stmts, total, err := s.store.ListStatements(ctx, storage.StatementFilter{
		CompanyID: middleware.GetCompanyID(ctx),
		Range:     q.Range,
		OpenOnly:  true,
		Search:    q.Search,
	}, page)
	if err != nil {
		return nil, fail("available_statements", err)
	}
	if stmts == nil {
		stmts = []*models.BankStatement{}
	}
	return &models.Page[*models.BankStatement]{Data: stmts, Pagination: models.NewPagination(page, total)}, nil
}

// AvailableAggregates lists open aggregates that can be allocated to a settlement.
func (s *SettlementService) AvailableAggregates(ctx context.Context, q AvailableQuery) (*models.Page[*models.AggregatedTransaction], error) {
	if q.Range != nil {
		if err := validateRange(*q.Range); err != nil {
			return nil, fail("available_aggregates", err)
		}
	}
	branch := q.BranchID
	if own := middleware.GetBranchID(ctx); own != "" {
		branch = own
	}
	page := q.Page.Normalize()
	aggs, total, err := s.store.ListAggregates(ctx, storage.AggregateFilter{
		CompanyID:     middleware.GetCompanyID(ctx),
		BranchID:      branch,
		PaymentMethod: q.PaymentMethod,
		Range:         q.Range,
		OpenOnly:      true,
		Search:        q.Search,
	}, page)
	if err != nil {
		return nil, fail("available_aggregates", err)
	}
	if aggs == nil {
		aggs = []*models.AggregatedTransaction{}
	}
	return &models.Page[*models.AggregatedTransaction]{Data: aggs, Pagination: models.NewPagination(page, total)}, nil
}

// Suggestions picks open aggregates closest to the target first, keeping each
// one that leaves the running sum within target plus tolerance. The target is
// the statement's net amount when BankStatementID is set.
func (s *SettlementService) Suggestions(ctx context.Context, req SuggestionRequest) (*SettlementSuggestion, error) {
	slog.Info("SettlementSuggestions request received", "bank_statement_id", req.BankStatementID)

	tolerance := DefaultSuggestionTolerance
	if req.TolerancePercent != nil {
		tolerance = *req.TolerancePercent
	}
	if tolerance < 0 || tolerance > 1 {
		return nil, fail("settlement_suggestions", errs.New(errs.Validation, "tolerancePercent must be between 0 and 1"))
	}
	limit := req.MaxResults
	if limit <= 0 {
		limit = DefaultSettlementSuggestions
	}
	if limit > s.limits.MaxAggregates {
		limit = s.limits.MaxAggregates
	}
	if req.Range != nil {
		if err := validateRange(*req.Range); err != nil {
			return nil, fail("settlement_suggestions", err)
		}
	}

	var target decimal.Decimal
	switch {
	case req.BankStatementID != "":
		st, err := s.getStatement(ctx, req.BankStatementID)
		if err != nil {
			return nil, fail("settlement_suggestions", err)
		}
		target = st.NetAmount()
	case req.TargetAmount != nil:
		target = *req.TargetAmount
	default:
		return nil, fail("settlement_suggestions", errs.New(errs.Validation, "bankStatementId or targetAmount is required"))
	}

	aggs, _, err := s.store.ListAggregates(ctx, storage.AggregateFilter{
		CompanyID: middleware.GetCompanyID(ctx),
		Range:     req.Range,
		OpenOnly:  true,
	}, models.PageRequest{})
	if err != nil {
		return nil, fail("settlement_suggestions", err)
	}

	items := make([]calculator.Item, len(aggs))
	byID := make(map[string]*models.AggregatedTransaction, len(aggs))
	for i, a := range aggs {
		items[i] = calculator.Item{ID: a.ID, Amount: a.NettAmount}
		byID[a.ID] = a
	}
	picked := calculator.GreedyCombination(target, items, tolerance, limit)

	result := &SettlementSuggestion{TargetAmount: target, Aggregates: make([]*models.AggregatedTransaction, 0, len(picked))}
	for _, it := range picked {
		result.Aggregates = append(result.Aggregates, byID[it.ID])
	}
	result.TotalAmount = calculator.SumItems(picked)
	result.Difference = target.Sub(result.TotalAmount)
	result.PercentDifference = calculator.PercentOf(result.Difference, target)
	result.WithinTolerance = len(picked) > 0 &&
		calculator.IsWithinDifference(result.Difference, target, calculator.Tolerance{Absolute: s.limits.SettlementThreshold, Percent: tolerance})

	succeed("settlement_suggestions")
	slog.Info("SettlementSuggestions successful", "target", target.String(), "picked", len(picked))
	return result, nil
}
