package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/mmynk/posrecon/internal/calculator"
	"github.com/mmynk/posrecon/internal/errs"
	"github.com/mmynk/posrecon/internal/middleware"
	"github.com/mmynk/posrecon/internal/models"
	"github.com/mmynk/posrecon/internal/storage"
)

// ManualMatchService links one statement to one aggregate on operator choice
// and reverts single matches.
type ManualMatchService struct {
	base
	criteria calculator.MatchingCriteria
}

// NewManualMatchService creates a ManualMatchService. criteria supplies the
// tolerance a manual match must meet without override.
func NewManualMatchService(store storage.Ledger, criteria calculator.MatchingCriteria, opts ...Option) *ManualMatchService {
	return &ManualMatchService{base: newBase(store, opts), criteria: criteria}
}

// ManualRequest is an explicit statement-to-aggregate pairing.
type ManualRequest struct {
	StatementID        string `json:"statementId"`
	AggregateID        string `json:"aggregateId"`
	OverrideDifference bool   `json:"overrideDifference,omitempty"`
	Notes              string `json:"notes,omitempty"`
}

// ManualResult describes a committed manual match.
type ManualResult struct {
	StatementID       string                 `json:"statementId"`
	AggregateID       string                 `json:"aggregateId"`
	Status            models.StatementStatus `json:"status"`
	Difference        decimal.Decimal        `json:"difference"`
	PercentDifference float64                `json:"percentDifference"`
}

// UndoResult reports whether an undo changed anything.
type UndoResult struct {
	StatementID string                 `json:"statementId"`
	AggregateID string                 `json:"aggregateId,omitempty"`
	Undone      bool                   `json:"undone"`
	Status      models.StatementStatus `json:"status"`
}

// Reconcile links a statement to an aggregate. A difference outside the
// tolerance fails with DIFFERENCE_EXCEEDS_TOLERANCE unless OverrideDifference
// is set, in which case both records end up in DISCREPANCY.
func (s *ManualMatchService) Reconcile(ctx context.Context, req ManualRequest) (*ManualResult, error) {
	slog.Info("ManualReconcile request received",
		"statement_id", req.StatementID,
		"aggregate_id", req.AggregateID,
		"override", req.OverrideDifference,
	)

	st, err := s.getStatement(ctx, req.StatementID)
	if err != nil {
		return nil, fail("manual_reconcile", err)
	}
	agg, err := s.getAggregate(ctx, req.AggregateID)
	if err != nil {
		return nil, fail("manual_reconcile", err)
	}
	if !unlinked(st) {
		return nil, fail("manual_reconcile", errs.New(errs.AlreadyReconciled,
			"statement %s is already reconciled (status %s)", st.ID, st.Status))
	}
	if !aggregateUnlinked(agg) {
		return nil, fail("manual_reconcile", errs.New(errs.AlreadyReconciled, "aggregate %s is already reconciled", agg.ID))
	}

	net := st.NetAmount()
	diff := net.Sub(agg.NettAmount)
	pct := calculator.PercentDifference(net, agg.NettAmount)
	within := calculator.IsWithinAmountTolerance(net, agg.NettAmount, s.criteria.Tolerance())
	if !within && !req.OverrideDifference {
		return nil, fail("manual_reconcile", errs.New(errs.DifferenceExceedsTolerance,
			"difference %s exceeds tolerance; confirm with overrideDifference", diff.String()).
			WithDetails(map[string]any{
				"difference":          diff,
				"percentDifference":   pct,
				"differenceThreshold": s.criteria.DifferenceThreshold,
				"amountTolerance":     s.criteria.AmountTolerance,
			}))
	}

	status := models.StatusManuallyMatched
	if !within {
		status = models.StatusDiscrepancy
	}
	notes := st.Notes
	if req.Notes != "" {
		notes = req.Notes
	}

	err = s.store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.CompareAndSetStatement(ctx, st.ID, storage.StatementStateOf(st), storage.StatementState{
			Status:             status,
			IsReconciled:       true,
			PreMatchStatus:     st.Status,
			MatchedAggregateID: agg.ID,
			MatchCriteria:      models.CriteriaManual,
			MatchedAt:          s.now().Unix(),
			MatchedBy:          middleware.GetUserID(ctx),
			Notes:              notes,
		}); err != nil {
			return err
		}
		return tx.CompareAndSetAggregate(ctx, agg.ID, storage.AggregateStateOf(agg), storage.AggregateState{
			IsReconciled:       true,
			MatchedStatementID: st.ID,
		})
	})
	if err != nil {
		return nil, fail("manual_reconcile", err)
	}

	s.record(ctx, models.AuditManualMatch, "statement", st.ID, map[string]any{
		"aggregateId": agg.ID,
		"status":      string(status),
		"difference":  diff.String(),
		"override":    req.OverrideDifference,
	})
	succeed("manual_reconcile")
	slog.Info("ManualReconcile successful", "statement_id", st.ID, "aggregate_id", agg.ID, "status", status)

	return &ManualResult{
		StatementID:       st.ID,
		AggregateID:       agg.ID,
		Status:            status,
		Difference:        diff,
		PercentDifference: pct,
	}, nil
}

// Undo reverts a single match: the statement returns to its pre-match status
// and the aggregate to unreconciled. Undoing an open statement is a no-op.
// Members of a multi-match or settlement group must be reverted through the group.
func (s *ManualMatchService) Undo(ctx context.Context, statementID string) (*UndoResult, error) {
	slog.Info("UndoMatch request received", "statement_id", statementID)

	st, err := s.getStatement(ctx, statementID)
	if err != nil {
		return nil, fail("undo_match", err)
	}
	if st.IsGrouped() {
		groupID := st.ReconciliationGroupID
		if groupID == "" {
			groupID = st.SettlementGroupID
		}
		return nil, fail("undo_match", errs.New(errs.Validation,
			"statement %s belongs to group %s; undo the group instead", st.ID, groupID).
			WithDetails(map[string]any{"groupId": groupID}))
	}
	if unlinked(st) {
		succeed("undo_match")
		slog.Info("UndoMatch no-op, statement already open", "statement_id", st.ID)
		return &UndoResult{StatementID: st.ID, Status: st.Status}, nil
	}

	var agg *models.AggregatedTransaction
	if st.MatchedAggregateID != "" {
		agg, err = s.store.GetAggregate(ctx, st.MatchedAggregateID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fail("undo_match", err)
		}
	}

	restored := st.OpenStatus()
	err = s.store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.CompareAndSetStatement(ctx, st.ID, storage.StatementStateOf(st), storage.OpenStatementState(restored)); err != nil {
			return err
		}
		if agg == nil || agg.MatchedStatementID != st.ID {
			return nil
		}
		return tx.CompareAndSetAggregate(ctx, agg.ID, storage.AggregateStateOf(agg), storage.AggregateState{})
	})
	if errors.Is(err, storage.ErrConflict) {
		// A concurrent undo that already reopened the statement is success.
		if current, getErr := s.store.GetStatement(ctx, st.ID); getErr == nil && unlinked(current) {
			succeed("undo_match")
			return &UndoResult{StatementID: st.ID, Status: current.Status}, nil
		}
	}
	if err != nil {
		return nil, fail("undo_match", err)
	}

	s.record(ctx, models.AuditUndoMatch, "statement", st.ID, map[string]any{
		"aggregateId":    st.MatchedAggregateID,
		"previousStatus": string(st.Status),
		"restoredStatus": string(restored),
	})
	succeed("undo_match")
	slog.Info("UndoMatch successful", "statement_id", st.ID, "aggregate_id", st.MatchedAggregateID)

	return &UndoResult{StatementID: st.ID, AggregateID: st.MatchedAggregateID, Undone: true, Status: restored}, nil
}
