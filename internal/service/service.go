// Package service implements the reconciliation engine operations on top of
// the ledger: auto-match, manual match, multi-match groups, settlement groups
// and discrepancy reporting.
package service

//go:generate mockgen -destination=mocks/mock_audit_log.go -package=mocks github.com/mmynk/posrecon/internal/service AuditLog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mmynk/posrecon/internal/errs"
	"github.com/mmynk/posrecon/internal/metrics"
	"github.com/mmynk/posrecon/internal/middleware"
	"github.com/mmynk/posrecon/internal/models"
	"github.com/mmynk/posrecon/internal/storage"
)

// AuditLog persists and reads back the audit trail of committed mutations.
type AuditLog interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	List(ctx context.Context, entityID string, limit int) ([]models.AuditEntry, error)
}

// Option configures the shared parts of a service.
type Option func(*base)

// WithAuditLog records every committed mutation to log.
func WithAuditLog(log AuditLog) Option {
	return func(b *base) { b.audit = log }
}

// WithClock overrides the time source used for match and audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// base holds what every service needs: the ledger, an optional audit log and a clock.
type base struct {
	store storage.Ledger
	audit AuditLog
	now   func() time.Time
}

func newBase(store storage.Ledger, opts []Option) base {
	b := base{store: store, now: time.Now}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// record appends an audit entry. A journal failure never undoes a committed
// ledger change, so it is only logged.
func (b *base) record(ctx context.Context, action models.AuditAction, entityType, entityID string, details map[string]any) {
	if b.audit == nil {
		return
	}
	entry := &models.AuditEntry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      middleware.GetUserID(ctx),
		CompanyID:  middleware.GetCompanyID(ctx),
		At:         b.now().Unix(),
		Details:    details,
	}
	if err := b.audit.Append(ctx, entry); err != nil {
		slog.Warn("Audit append failed", "action", action, "entity_id", entityID, "error", err)
	}
}

// fail logs err under op, counts it, and returns it as an *errs.Error.
func fail(op string, err error) error {
	e := asError(err)
	if e.Code == errs.Internal {
		slog.Error(op+" failed", "code", e.Code, "error", err)
	} else {
		slog.Warn(op+" failed", "code", e.Code, "error", e.Message)
	}
	metrics.ObserveOperation(op, string(e.Code))
	return e
}

// succeed counts a successful operation.
func succeed(op string) {
	metrics.ObserveOperation(op, "")
}

// asError translates ledger sentinels into the engine taxonomy.
func asError(err error) *errs.Error {
	var e *errs.Error
	switch {
	case errors.As(err, &e):
		return e
	case errors.Is(err, storage.ErrNotFound):
		return errs.Wrap(errs.NotFound, err, "record not found")
	case errors.Is(err, storage.ErrConflict):
		return errs.Wrap(errs.ConcurrentModification, err, "record was modified by another operation")
	default:
		return errs.Wrap(errs.Internal, err, "internal error")
	}
}

// inScope reports whether a record owned by companyID is visible to ctx.
func inScope(ctx context.Context, companyID string) bool {
	scope := middleware.GetCompanyID(ctx)
	return scope == "" || scope == companyID
}

func (b *base) getStatement(ctx context.Context, id string) (*models.BankStatement, error) {
	if id == "" {
		return nil, errs.New(errs.Validation, "statementId is required")
	}
	st, err := b.store.GetStatement(ctx, id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && !inScope(ctx, st.CompanyID)) {
		return nil, errs.New(errs.NotFound, "statement %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (b *base) getAggregate(ctx context.Context, id string) (*models.AggregatedTransaction, error) {
	if id == "" {
		return nil, errs.New(errs.Validation, "aggregateId is required")
	}
	agg, err := b.store.GetAggregate(ctx, id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && !inScope(ctx, agg.CompanyID)) {
		return nil, errs.New(errs.NotFound, "aggregate %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return agg, nil
}

// getStatements loads every id or fails with NOT_FOUND listing the missing ones.
// The result follows the order of ids.
func (b *base) getStatements(ctx context.Context, ids []string) ([]*models.BankStatement, error) {
	found, err := b.store.GetStatements(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.BankStatement, len(found))
	for _, st := range found {
		if inScope(ctx, st.CompanyID) {
			byID[st.ID] = st
		}
	}
	out := make([]*models.BankStatement, 0, len(ids))
	var missing []string
	for _, id := range ids {
		st, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		out = append(out, st)
	}
	if len(missing) > 0 {
		return nil, errs.New(errs.NotFound, "statements not found: %v", missing).
			WithDetails(map[string]any{"statementIds": missing})
	}
	return out, nil
}

// getAggregates loads every id or fails with NOT_FOUND listing the missing ones.
func (b *base) getAggregates(ctx context.Context, ids []string) ([]*models.AggregatedTransaction, error) {
	found, err := b.store.GetAggregates(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.AggregatedTransaction, len(found))
	for _, a := range found {
		if inScope(ctx, a.CompanyID) {
			byID[a.ID] = a
		}
	}
	out := make([]*models.AggregatedTransaction, 0, len(ids))
	var missing []string
	for _, id := range ids {
		a, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		out = append(out, a)
	}
	if len(missing) > 0 {
		return nil, errs.New(errs.NotFound, "aggregates not found: %v", missing).
			WithDetails(map[string]any{"aggregateIds": missing})
	}
	return out, nil
}

// unlinked reports whether a statement is open and held by nothing.
func unlinked(st *models.BankStatement) bool {
	return st.IsOpen() && st.MatchedAggregateID == "" && !st.IsGrouped()
}

// aggregateUnlinked reports whether an aggregate is open and held by nothing.
func aggregateUnlinked(a *models.AggregatedTransaction) bool {
	return a.IsOpen() && a.MatchedStatementID == "" && a.ReconciliationGroupID == "" && a.SettlementGroupID == ""
}

// dedupe drops empty and repeated ids, keeping first occurrences in order.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func validateRange(r models.DateRange) error {
	if err := r.Validate(); err != nil {
		return errs.Wrap(errs.Validation, err, err.Error())
	}
	return nil
}

// spanOf returns the smallest range covering every statement date.
func spanOf(stmts []*models.BankStatement) models.DateRange {
	var r models.DateRange
	for i, st := range stmts {
		if i == 0 || st.TransactionDate.Before(r.Start.Time) {
			r.Start = st.TransactionDate
		}
		if i == 0 || st.TransactionDate.After(r.End.Time) {
			r.End = st.TransactionDate
		}
	}
	return r
}
