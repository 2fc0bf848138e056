package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/posrecon/internal/calculator"
	"github.com/mmynk/posrecon/internal/errs"
	"github.com/mmynk/posrecon/internal/middleware"
	"github.com/mmynk/posrecon/internal/models"
	"github.com/mmynk/posrecon/internal/service/mocks"
	"github.com/mmynk/posrecon/internal/storage"
	"github.com/mmynk/posrecon/internal/storage/journal"
	"github.com/mmynk/posrecon/internal/storage/sqlite"
)

var fixedNow = time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// newLedger opens a fresh SQLite ledger under the test's temp dir.
func newLedger(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// newJournal opens a fresh audit journal under the test's temp dir.
func newJournal(t *testing.T) *journal.Journal {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

// operatorCtx scopes calls to company c1 as operator op-1.
func operatorCtx() context.Context {
	return middleware.WithOperator(context.Background(), "op-1", "c1", "")
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// statement builds a pending c1 statement; a negative net becomes a debit.
func statement(id, date, net string) *models.BankStatement {
	st := &models.BankStatement{
		ID:              id,
		CompanyID:       "c1",
		TransactionDate: models.MustDate(date),
		Description:     "Transfer " + id,
	}
	amount := dec(net)
	if amount.IsNegative() {
		st.DebitAmount = amount.Neg()
	} else {
		st.CreditAmount = amount
	}
	return st
}

func aggregate(id, date, nett string) *models.AggregatedTransaction {
	return &models.AggregatedTransaction{
		ID:              id,
		CompanyID:       "c1",
		BranchID:        "b1",
		BranchName:      "Central",
		PaymentMethod:   "QRIS",
		TransactionDate: models.MustDate(date),
		GrossAmount:     dec(nett),
		NettAmount:      dec(nett),
	}
}

func load(t *testing.T, store storage.Ledger, stmts []*models.BankStatement, aggs []*models.AggregatedTransaction) {
	t.Helper()
	ctx := context.Background()
	if len(stmts) > 0 {
		require.NoError(t, store.UpsertStatements(ctx, stmts))
	}
	if len(aggs) > 0 {
		require.NoError(t, store.UpsertAggregates(ctx, aggs))
	}
}

func mustStatement(t *testing.T, store storage.Ledger, id string) *models.BankStatement {
	t.Helper()
	st, err := store.GetStatement(context.Background(), id)
	require.NoError(t, err)
	return st
}

func mustAggregate(t *testing.T, store storage.Ledger, id string) *models.AggregatedTransaction {
	t.Helper()
	a, err := store.GetAggregate(context.Background(), id)
	require.NoError(t, err)
	return a
}

func assertCode(t *testing.T, err error, code errs.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, errs.CodeOf(err), "error: %v", err)
}

func dateRange(start, end string) models.DateRange {
	return models.DateRange{Start: models.MustDate(start), End: models.MustDate(end)}
}

func TestAsError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.Code
	}{
		{"not found", storage.ErrNotFound, errs.NotFound},
		{"wrapped conflict", errors.Join(errors.New("cas"), storage.ErrConflict), errs.ConcurrentModification},
		{"typed passes through", errs.New(errs.AlreadyReconciled, "taken"), errs.AlreadyReconciled},
		{"foreign", errors.New("disk full"), errs.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, asError(tt.err).Code)
		})
	}
}

func TestAuditRecordsCommittedMutations(t *testing.T) {
	ctrl := gomock.NewController(t)
	audit := mocks.NewMockAuditLog(ctrl)

	store := newLedger(t)
	load(t, store,
		[]*models.BankStatement{statement("s1", "2024-01-05", "100000")},
		[]*models.AggregatedTransaction{aggregate("a1", "2024-01-05", "100000")},
	)
	svc := NewManualMatchService(store, calculator.DefaultCriteria(), WithAuditLog(audit), WithClock(fixedClock))

	audit.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e *models.AuditEntry) error {
		assert.Equal(t, models.AuditManualMatch, e.Action)
		assert.Equal(t, "s1", e.EntityID)
		assert.Equal(t, "op-1", e.Actor)
		assert.Equal(t, "c1", e.CompanyID)
		assert.Equal(t, fixedNow.Unix(), e.At)
		assert.Equal(t, "a1", e.Details["aggregateId"])
		return nil
	})

	_, err := svc.Reconcile(operatorCtx(), ManualRequest{StatementID: "s1", AggregateID: "a1"})
	require.NoError(t, err)
}

func TestAuditFailureDoesNotFailOperation(t *testing.T) {
	ctrl := gomock.NewController(t)
	audit := mocks.NewMockAuditLog(ctrl)
	audit.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("journal closed")).Times(1)

	store := newLedger(t)
	load(t, store,
		[]*models.BankStatement{statement("s1", "2024-01-05", "100000")},
		[]*models.AggregatedTransaction{aggregate("a1", "2024-01-05", "100000")},
	)
	svc := NewManualMatchService(store, calculator.DefaultCriteria(), WithAuditLog(audit))

	_, err := svc.Reconcile(operatorCtx(), ManualRequest{StatementID: "s1", AggregateID: "a1"})
	require.NoError(t, err)
	assert.True(t, mustStatement(t, store, "s1").IsReconciled)
}

func TestAuditNotRecordedOnRejection(t *testing.T) {
	ctrl := gomock.NewController(t)
	audit := mocks.NewMockAuditLog(ctrl)
	audit.EXPECT().Append(gomock.Any(), gomock.Any()).Times(0)

	store := newLedger(t)
	load(t, store,
		[]*models.BankStatement{statement("s1", "2024-01-05", "100000")},
		[]*models.AggregatedTransaction{aggregate("a1", "2024-01-05", "80000")},
	)
	svc := NewManualMatchService(store, calculator.DefaultCriteria(), WithAuditLog(audit))

	_, err := svc.Reconcile(operatorCtx(), ManualRequest{StatementID: "s1", AggregateID: "a1"})
	assertCode(t, err, errs.DifferenceExceedsTolerance)
}

func TestCompanyScope(t *testing.T) {
	store := newLedger(t)
	other := statement("s9", "2024-01-05", "100000")
	other.CompanyID = "c2"
	load(t, store,
		[]*models.BankStatement{other},
		[]*models.AggregatedTransaction{aggregate("a1", "2024-01-05", "100000")},
	)
	svc := NewManualMatchService(store, calculator.DefaultCriteria())

	_, err := svc.Reconcile(operatorCtx(), ManualRequest{StatementID: "s9", AggregateID: "a1"})
	assertCode(t, err, errs.NotFound)

	unscoped := middleware.WithOperator(context.Background(), "admin", "", "")
	_, err = svc.Reconcile(unscoped, ManualRequest{StatementID: "s9", AggregateID: "a1"})
	require.NoError(t, err)
}
