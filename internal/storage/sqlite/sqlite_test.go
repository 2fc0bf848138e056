package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mmynk/posrecon/internal/models"
	"github.com/mmynk/posrecon/internal/storage"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seed(t *testing.T, store *SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	err := store.UpsertStatements(ctx, []*models.BankStatement{
		{ID: "s1", CompanyID: "c1", TransactionDate: models.MustDate("2024-01-05"), Description: "QRIS settlement", ReferenceNumber: "INV001", CreditAmount: decimal.NewFromInt(100000)},
		{ID: "s2", CompanyID: "c1", TransactionDate: models.MustDate("2024-01-06"), Description: "Card batch", CreditAmount: decimal.NewFromInt(60000)},
		{ID: "s3", CompanyID: "c2", TransactionDate: models.MustDate("2024-01-07"), Description: "Bank fee", DebitAmount: decimal.NewFromInt(2500)},
	})
	if err != nil {
		t.Fatalf("UpsertStatements failed: %v", err)
	}
	err = store.UpsertAggregates(ctx, []*models.AggregatedTransaction{
		{ID: "a1", CompanyID: "c1", BranchName: "Central", PaymentMethod: "QRIS", TransactionDate: models.MustDate("2024-01-05"), GrossAmount: decimal.NewFromInt(101000), NettAmount: decimal.NewFromInt(100000)},
		{ID: "a2", CompanyID: "c1", BranchName: "North", PaymentMethod: "CARD", TransactionDate: models.MustDate("2024-01-06"), GrossAmount: decimal.NewFromInt(61000), NettAmount: decimal.RequireFromString("59999.50")},
	})
	if err != nil {
		t.Fatalf("UpsertAggregates failed: %v", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	t.Run("GetStatement round-trips amounts and dates", func(t *testing.T) {
		st, err := store.GetStatement(ctx, "s1")
		if err != nil {
			t.Fatalf("GetStatement failed: %v", err)
		}
		if st.TransactionDate.String() != "2024-01-05" {
			t.Errorf("date = %s, want 2024-01-05", st.TransactionDate)
		}
		if !st.NetAmount().Equal(decimal.NewFromInt(100000)) {
			t.Errorf("net = %s, want 100000", st.NetAmount())
		}
		if st.Status != models.StatusPending {
			t.Errorf("status = %s, want PENDING", st.Status)
		}
		if st.CreatedAt == 0 {
			t.Error("Expected CreatedAt to be set")
		}
	})

	t.Run("GetAggregate keeps decimal precision", func(t *testing.T) {
		a, err := store.GetAggregate(ctx, "a2")
		if err != nil {
			t.Fatalf("GetAggregate failed: %v", err)
		}
		if a.NettAmount.String() != "59999.5" {
			t.Errorf("nett = %s, want 59999.5", a.NettAmount)
		}
	})

	t.Run("unknown ids return ErrNotFound", func(t *testing.T) {
		if _, err := store.GetStatement(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := store.GetAggregate(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := store.GetSettlementGroup(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListStatements filters and paginates", func(t *testing.T) {
		r, _ := models.NewDateRange("2024-01-01", "2024-01-31")
		all, total, err := store.ListStatements(ctx, storage.StatementFilter{Range: &r}, models.PageRequest{})
		if err != nil {
			t.Fatalf("ListStatements failed: %v", err)
		}
		if total != 3 || len(all) != 3 {
			t.Fatalf("expected 3 statements, got %d/%d", len(all), total)
		}

		scoped, total, err := store.ListStatements(ctx, storage.StatementFilter{CompanyID: "c1"}, models.PageRequest{Page: 2, Limit: 1})
		if err != nil {
			t.Fatalf("ListStatements failed: %v", err)
		}
		if total != 2 || len(scoped) != 1 || scoped[0].ID != "s2" {
			t.Errorf("page 2 of company c1: got %d rows (total %d)", len(scoped), total)
		}

		found, _, err := store.ListStatements(ctx, storage.StatementFilter{Search: "inv0"}, models.PageRequest{})
		if err != nil {
			t.Fatalf("ListStatements failed: %v", err)
		}
		if len(found) != 1 || found[0].ID != "s1" {
			t.Errorf("search returned %d rows", len(found))
		}
	})

	t.Run("upsert keeps match state", func(t *testing.T) {
		err := store.Update(ctx, func(tx storage.Tx) error {
			return tx.CompareAndSetStatement(ctx, "s2",
				storage.StatementState{Status: models.StatusPending},
				storage.StatementState{Status: models.StatusManuallyMatched, IsReconciled: true, PreMatchStatus: models.StatusPending, MatchedAggregateID: "a2"},
			)
		})
		if err != nil {
			t.Fatalf("CompareAndSetStatement failed: %v", err)
		}

		err = store.UpsertStatements(ctx, []*models.BankStatement{
			{ID: "s2", CompanyID: "c1", TransactionDate: models.MustDate("2024-01-06"), Description: "Card batch (corrected)", CreditAmount: decimal.NewFromInt(60000)},
		})
		if err != nil {
			t.Fatalf("UpsertStatements failed: %v", err)
		}

		st, _ := store.GetStatement(ctx, "s2")
		if st.Description != "Card batch (corrected)" {
			t.Errorf("description not refreshed: %q", st.Description)
		}
		if st.Status != models.StatusManuallyMatched || !st.IsReconciled || st.MatchedAggregateID != "a2" {
			t.Errorf("match state lost: %+v", st)
		}
	})
}

func TestCompareAndSet(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	open := storage.StatementState{Status: models.StatusPending}
	matched := storage.StatementState{Status: models.StatusAutoMatched, IsReconciled: true, PreMatchStatus: models.StatusPending, MatchedAggregateID: "a1"}

	if err := store.Update(ctx, func(tx storage.Tx) error {
		return tx.CompareAndSetStatement(ctx, "s1", open, matched)
	}); err != nil {
		t.Fatalf("first CAS failed: %v", err)
	}

	err := store.Update(ctx, func(tx storage.Tx) error {
		return tx.CompareAndSetStatement(ctx, "s1", open, matched)
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("second CAS: expected ErrConflict, got %v", err)
	}

	err = store.Update(ctx, func(tx storage.Tx) error {
		return tx.CompareAndSetStatement(ctx, "nope", open, matched)
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing row: expected ErrNotFound, got %v", err)
	}

	t.Run("failed transaction rolls back", func(t *testing.T) {
		err := store.Update(ctx, func(tx storage.Tx) error {
			if err := tx.CompareAndSetAggregate(ctx, "a1",
				storage.AggregateState{},
				storage.AggregateState{IsReconciled: true, MatchedStatementID: "s1"},
			); err != nil {
				return err
			}
			// Fails: a2 is expected reconciled but is not.
			return tx.CompareAndSetAggregate(ctx, "a2",
				storage.AggregateState{IsReconciled: true},
				storage.AggregateState{},
			)
		})
		if !errors.Is(err, storage.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}

		a, _ := store.GetAggregate(ctx, "a1")
		if a.IsReconciled {
			t.Error("a1 should have been rolled back")
		}
	})
}

func TestReconciliationGroups(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	g := &models.ReconciliationGroup{
		CompanyID:       "c1",
		AggregateID:     "a1",
		TransactionDate: models.MustDate("2024-01-05"),
		TotalBankAmount: decimal.NewFromInt(160000),
		AggregateAmount: decimal.NewFromInt(100000),
		Difference:      decimal.NewFromInt(60000),
		Status:          models.GroupDiscrepancy,
		Details: []models.ReconciliationGroupDetail{
			{StatementID: "s2", Amount: decimal.NewFromInt(60000), TransactionDate: models.MustDate("2024-01-06")},
			{StatementID: "s1", Amount: decimal.NewFromInt(100000), TransactionDate: models.MustDate("2024-01-05")},
		},
	}
	if err := store.Update(ctx, func(tx storage.Tx) error { return tx.InsertReconciliationGroup(ctx, g) }); err != nil {
		t.Fatalf("InsertReconciliationGroup failed: %v", err)
	}
	if g.ID == "" {
		t.Fatal("Expected group ID to be generated")
	}

	got, err := store.GetReconciliationGroup(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetReconciliationGroup failed: %v", err)
	}
	if ids := got.StatementIDs(); len(ids) != 2 || ids[0] != "s2" || ids[1] != "s1" {
		t.Errorf("detail order = %v, want [s2 s1]", ids)
	}

	if err := store.Update(ctx, func(tx storage.Tx) error {
		return tx.SetReconciliationGroupStatus(ctx, g.ID, models.GroupDiscrepancy, models.GroupUndo, "op-1", 1700000000)
	}); err != nil {
		t.Fatalf("SetReconciliationGroupStatus failed: %v", err)
	}

	err = store.Update(ctx, func(tx storage.Tx) error {
		return tx.SetReconciliationGroupStatus(ctx, g.ID, models.GroupDiscrepancy, models.GroupUndo, "op-1", 1700000000)
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict on stale status, got %v", err)
	}

	list, total, err := store.ListReconciliationGroups(ctx, storage.GroupFilter{Status: models.GroupUndo}, models.PageRequest{})
	if err != nil {
		t.Fatalf("ListReconciliationGroups failed: %v", err)
	}
	if total != 1 || list[0].UndoneBy != "op-1" || len(list[0].Details) != 2 {
		t.Errorf("unexpected list result: total=%d", total)
	}
}

func TestSettlementGroups(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	ctx := context.Background()

	newGroup := func() *models.SettlementGroup {
		return &models.SettlementGroup{
			CompanyID:            "c1",
			BankStatementID:      "s1",
			SettlementDate:       models.MustDate("2024-01-05"),
			TotalStatementAmount: decimal.NewFromInt(100000),
			TotalAllocatedAmount: decimal.NewFromInt(100000),
			Difference:           decimal.Zero,
			Status:               models.GroupReconciled,
			Notes:                "january batch",
			Allocations: []models.SettlementAllocation{
				{AggregateID: "a1", OriginalAmount: decimal.NewFromInt(100000), AllocatedAmount: decimal.NewFromInt(100000), TransactionDate: models.MustDate("2024-01-05")},
			},
		}
	}

	first, second := newGroup(), newGroup()
	if err := store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.InsertSettlementGroup(ctx, first); err != nil {
			return err
		}
		return tx.InsertSettlementGroup(ctx, second)
	}); err != nil {
		t.Fatalf("InsertSettlementGroup failed: %v", err)
	}

	if !strings.HasPrefix(first.SettlementNumber, "STL-") || !strings.HasSuffix(first.SettlementNumber, "-0001") {
		t.Errorf("first number = %s", first.SettlementNumber)
	}
	if !strings.HasSuffix(second.SettlementNumber, "-0002") {
		t.Errorf("second number = %s, want sequence 0002", second.SettlementNumber)
	}

	byNumber, err := store.GetSettlementGroupByNumber(ctx, second.SettlementNumber)
	if err != nil {
		t.Fatalf("GetSettlementGroupByNumber failed: %v", err)
	}
	if byNumber.ID != second.ID || len(byNumber.Allocations) != 1 {
		t.Errorf("unexpected group %+v", byNumber)
	}

	if err := store.Update(ctx, func(tx storage.Tx) error {
		return tx.MarkSettlementGroupDeleted(ctx, first.ID, storage.SettlementDeletion{By: "op", At: 1700000000, Reverted: true, Status: models.GroupUndo})
	}); err != nil {
		t.Fatalf("MarkSettlementGroupDeleted failed: %v", err)
	}

	active, _, _ := store.ListSettlementGroups(ctx, storage.SettlementFilter{}, models.PageRequest{})
	trash, _, _ := store.ListSettlementGroups(ctx, storage.SettlementFilter{Deleted: true}, models.PageRequest{})
	if len(active) != 1 || active[0].ID != second.ID {
		t.Errorf("active listing = %d groups", len(active))
	}
	if len(trash) != 1 || !trash[0].IsDeleted || !trash[0].ReconciliationReverted || trash[0].Status != models.GroupUndo {
		t.Errorf("trash listing wrong: %+v", trash)
	}

	err = store.Update(ctx, func(tx storage.Tx) error {
		return tx.MarkSettlementGroupDeleted(ctx, first.ID, storage.SettlementDeletion{By: "op", At: 1700000001})
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("double delete: expected ErrConflict, got %v", err)
	}

	if err := store.Update(ctx, func(tx storage.Tx) error {
		return tx.RestoreSettlementGroup(ctx, first.ID, 1700000002)
	}); err != nil {
		t.Fatalf("RestoreSettlementGroup failed: %v", err)
	}
	restored, _ := store.GetSettlementGroup(ctx, first.ID)
	if restored.IsDeleted || !restored.ReconciliationReverted || restored.Status != models.GroupUndo {
		t.Errorf("restore changed more than the deletion mark: %+v", restored)
	}
}
