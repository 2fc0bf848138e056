package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/posrecon/internal/calculator"
	"github.com/mmynk/posrecon/internal/errs"
	"github.com/mmynk/posrecon/internal/models"
	"github.com/mmynk/posrecon/internal/storage"
)

func groupFixture(t *testing.T, stmts []*models.BankStatement, aggs []*models.AggregatedTransaction) *MultiMatchService {
	t.Helper()
	store := newLedger(t)
	load(t, store, stmts, aggs)
	return NewMultiMatchService(store, calculator.DefaultCriteria(), calculator.DefaultGroupLimits(), WithClock(fixedClock))
}

func TestCreateGroup_WithinTolerance(t *testing.T) {
	svc := groupFixture(t,
		[]*models.BankStatement{
			statement("B1", "2024-01-10", "60000"),
			statement("B2", "2024-01-11", "39500"),
		},
		[]*models.AggregatedTransaction{aggregate("Y", "2024-01-10", "100000")},
	)
	ctx := operatorCtx()

	group, err := svc.CreateGroup(ctx, CreateGroupRequest{AggregateID: "Y", StatementIDs: []string{"B1", "B2"}, Notes: "split transfer"})
	require.NoError(t, err)

	assert.NotEmpty(t, group.ID)
	assert.Equal(t, models.GroupReconciled, group.Status)
	assert.True(t, group.TotalBankAmount.Equal(dec("99500")))
	assert.True(t, group.Difference.Equal(dec("-500")))
	assert.InDelta(t, 0.005, group.PercentDifference, 1e-9)
	assert.Equal(t, "op-1", group.ReconciledBy)
	assert.Equal(t, fixedNow.Unix(), group.ReconciledAt)

	for _, id := range []string{"B1", "B2"} {
		st := mustStatement(t, svc.store, id)
		assert.Equal(t, models.StatusManuallyMatched, st.Status, id)
		assert.True(t, st.IsReconciled, id)
		assert.Equal(t, group.ID, st.ReconciliationGroupID, id)
	}
	agg := mustAggregate(t, svc.store, "Y")
	assert.True(t, agg.IsReconciled)
	assert.Equal(t, group.ID, agg.ReconciliationGroupID)

	stored, err := svc.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"B1", "B2"}, stored.StatementIDs())
	assert.Equal(t, "split transfer", stored.Notes)
}

func TestCreateGroup_OutsideTolerance(t *testing.T) {
	svc := groupFixture(t,
		[]*models.BankStatement{
			statement("B1", "2024-01-10", "50000"),
			statement("B2", "2024-01-10", "40000"),
		},
		[]*models.AggregatedTransaction{aggregate("Y", "2024-01-10", "100000")},
	)
	ctx := operatorCtx()
	req := CreateGroupRequest{AggregateID: "Y", StatementIDs: []string{"B1", "B2"}}

	_, err := svc.CreateGroup(ctx, req)
	assertCode(t, err, errs.GroupDifferenceExceedsTolerance)
	assert.False(t, mustAggregate(t, svc.store, "Y").IsReconciled)

	req.OverrideDifference = true
	group, err := svc.CreateGroup(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.GroupDiscrepancy, group.Status)
	assert.Equal(t, models.StatusDiscrepancy, mustStatement(t, svc.store, "B2").Status)
}

func TestCreateGroup_Rejections(t *testing.T) {
	svc := groupFixture(t,
		[]*models.BankStatement{
			statement("B1", "2024-01-10", "60000"),
			statement("B2", "2024-01-10", "40000"),
			statement("B3", "2024-01-10", "100000"),
		},
		[]*models.AggregatedTransaction{
			aggregate("Y", "2024-01-10", "100000"),
			aggregate("W", "2024-01-10", "100000"),
		},
	)
	ctx := operatorCtx()

	manual := NewManualMatchService(svc.store, calculator.DefaultCriteria())
	_, err := manual.Reconcile(ctx, ManualRequest{StatementID: "B3", AggregateID: "W"})
	require.NoError(t, err)

	tooMany := make([]string, 11)
	for i := range tooMany {
		tooMany[i] = string(rune('a' + i))
	}

	tests := []struct {
		name string
		req  CreateGroupRequest
		want errs.Code
	}{
		{"single statement", CreateGroupRequest{AggregateID: "Y", StatementIDs: []string{"B1"}}, errs.BulkLimitExceeded},
		{"duplicates collapse below minimum", CreateGroupRequest{AggregateID: "Y", StatementIDs: []string{"B1", "B1"}}, errs.BulkLimitExceeded},
		{"above maximum", CreateGroupRequest{AggregateID: "Y", StatementIDs: tooMany}, errs.BulkLimitExceeded},
		{"unknown aggregate", CreateGroupRequest{AggregateID: "nope", StatementIDs: []string{"B1", "B2"}}, errs.NotFound},
		{"aggregate taken", CreateGroupRequest{AggregateID: "W", StatementIDs: []string{"B1", "B2"}}, errs.AlreadyReconciled},
		{"unknown statement", CreateGroupRequest{AggregateID: "Y", StatementIDs: []string{"B1", "nope"}}, errs.NotFound},
		{"statement taken", CreateGroupRequest{AggregateID: "Y", StatementIDs: []string{"B1", "B3"}}, errs.AlreadyReconciled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateGroup(ctx, tt.req)
			assertCode(t, err, tt.want)
		})
	}
}

func TestUndoGroup(t *testing.T) {
	svc := groupFixture(t,
		[]*models.BankStatement{
			statement("B1", "2024-01-10", "60000"),
			statement("B2", "2024-01-10", "39500"),
		},
		[]*models.AggregatedTransaction{aggregate("Y", "2024-01-10", "100000")},
	)
	ctx := operatorCtx()

	group, err := svc.CreateGroup(ctx, CreateGroupRequest{AggregateID: "Y", StatementIDs: []string{"B1", "B2"}})
	require.NoError(t, err)

	undone, err := svc.UndoGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GroupUndo, undone.Status)
	assert.Equal(t, "op-1", undone.UndoneBy)

	for _, id := range []string{"B1", "B2"} {
		st := mustStatement(t, svc.store, id)
		assert.Equal(t, models.StatusPending, st.Status, id)
		assert.False(t, st.IsReconciled, id)
		assert.Empty(t, st.ReconciliationGroupID, id)
	}
	agg := mustAggregate(t, svc.store, "Y")
	assert.False(t, agg.IsReconciled)
	assert.Empty(t, agg.ReconciliationGroupID)

	again, err := svc.UndoGroup(ctx, group.ID)
	require.NoError(t, err, "undoing an undone group is a no-op")
	assert.Equal(t, models.GroupUndo, again.Status)

	stored, err := svc.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GroupUndo, stored.Status)

	_, err = svc.UndoGroup(ctx, "nope")
	assertCode(t, err, errs.NotFound)
}

// racingLedger runs before once ahead of the next Update, standing in for a
// writer that commits between a service's read and its transaction.
type racingLedger struct {
	storage.Ledger
	before func()
}

func (r *racingLedger) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	if r.before != nil {
		hook := r.before
		r.before = nil
		hook()
	}
	return r.Ledger.Update(ctx, fn)
}

func TestUndoGroup_AllOrNothing(t *testing.T) {
	store := newLedger(t)
	load(t, store,
		[]*models.BankStatement{
			statement("B1", "2024-01-10", "60000"),
			statement("B2", "2024-01-10", "39500"),
		},
		[]*models.AggregatedTransaction{aggregate("Y", "2024-01-10", "100000")},
	)
	racing := &racingLedger{Ledger: store}
	svc := NewMultiMatchService(racing, calculator.DefaultCriteria(), calculator.DefaultGroupLimits())
	ctx := operatorCtx()

	group, err := svc.CreateGroup(ctx, CreateGroupRequest{AggregateID: "Y", StatementIDs: []string{"B1", "B2"}})
	require.NoError(t, err)

	racing.before = func() {
		b2 := mustStatement(t, store, "B2")
		next := storage.StatementStateOf(b2)
		next.Status = models.StatusDiscrepancy
		require.NoError(t, store.Update(ctx, func(tx storage.Tx) error {
			return tx.CompareAndSetStatement(ctx, "B2", storage.StatementStateOf(b2), next)
		}))
	}

	_, err = svc.UndoGroup(ctx, group.ID)
	assertCode(t, err, errs.ConcurrentModification)

	stored, err := svc.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GroupReconciled, stored.Status)
	for _, id := range []string{"B1", "B2"} {
		st := mustStatement(t, store, id)
		assert.True(t, st.IsReconciled, id)
		assert.Equal(t, group.ID, st.ReconciliationGroupID, id)
	}
	assert.Equal(t, group.ID, mustAggregate(t, store, "Y").ReconciliationGroupID)
}

func TestListGroups(t *testing.T) {
	svc := groupFixture(t,
		[]*models.BankStatement{
			statement("B1", "2024-01-10", "60000"),
			statement("B2", "2024-01-10", "39500"),
			statement("C1", "2024-01-20", "30000"),
			statement("C2", "2024-01-20", "20000"),
		},
		[]*models.AggregatedTransaction{
			aggregate("Y", "2024-01-10", "100000"),
			aggregate("V", "2024-01-20", "50000"),
		},
	)
	ctx := operatorCtx()

	first, err := svc.CreateGroup(ctx, CreateGroupRequest{AggregateID: "Y", StatementIDs: []string{"B1", "B2"}})
	require.NoError(t, err)
	_, err = svc.CreateGroup(ctx, CreateGroupRequest{AggregateID: "V", StatementIDs: []string{"C1", "C2"}})
	require.NoError(t, err)
	_, err = svc.UndoGroup(ctx, first.ID)
	require.NoError(t, err)

	all, err := svc.ListGroups(ctx, GroupQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, all.Pagination.Total)

	r := dateRange("2024-01-15", "2024-01-31")
	ranged, err := svc.ListGroups(ctx, GroupQuery{Range: &r})
	require.NoError(t, err)
	require.Len(t, ranged.Data, 1)
	assert.Equal(t, "V", ranged.Data[0].AggregateID)

	undone, err := svc.ListGroups(ctx, GroupQuery{Status: models.GroupUndo})
	require.NoError(t, err)
	require.Len(t, undone.Data, 1)
	assert.Equal(t, first.ID, undone.Data[0].ID)

	_, err = svc.ListGroups(ctx, GroupQuery{Status: "BOGUS"})
	assertCode(t, err, errs.Validation)
}

func TestSuggestAggregate(t *testing.T) {
	svc := groupFixture(t,
		[]*models.BankStatement{
			statement("B1", "2024-01-10", "60000"),
			statement("B2", "2024-01-11", "39500"),
		},
		[]*models.AggregatedTransaction{
			aggregate("far", "2024-01-10", "130000"),
			aggregate("close", "2024-01-10", "100000"),
			aggregate("closer", "2024-01-12", "99600"),
			aggregate("late", "2024-02-20", "99500"),
		},
	)
	ctx := operatorCtx()

	got, err := svc.SuggestAggregate(ctx, []string{"B1", "B2"})
	require.NoError(t, err)
	require.NotNil(t, got.Aggregate)
	assert.Equal(t, "closer", got.Aggregate.ID)
	assert.True(t, got.TotalBankAmount.Equal(dec("99500")))
	assert.True(t, got.Difference.Equal(dec("-100")))

	none, err := svc.SuggestAggregate(ctx, []string{"B1"})
	require.NoError(t, err)
	assert.Nil(t, none.Aggregate)

	_, err = svc.SuggestAggregate(ctx, nil)
	assertCode(t, err, errs.Validation)
}

func TestSuggestStatements(t *testing.T) {
	svc := groupFixture(t,
		[]*models.BankStatement{
			statement("s1", "2024-01-10", "60000"),
			statement("s2", "2024-01-11", "39500"),
			statement("s3", "2024-01-10", "6000"),
			statement("s4", "2024-01-25", "40000"),
		},
		[]*models.AggregatedTransaction{aggregate("Y", "2024-01-10", "100000")},
	)
	ctx := operatorCtx()

	got, err := svc.SuggestStatements(ctx, StatementSuggestionRequest{AggregateID: "Y"})
	require.NoError(t, err)
	ids := make([]string, len(got.Statements))
	for i, st := range got.Statements {
		ids[i] = st.ID
	}
	assert.Equal(t, []string{"s1", "s2"}, ids)
	assert.True(t, got.TotalBankAmount.Equal(dec("99500")))
	assert.True(t, got.WithinTolerance)

	bad := 2.0
	_, err = svc.SuggestStatements(ctx, StatementSuggestionRequest{AggregateID: "Y", TolerancePercent: &bad})
	assertCode(t, err, errs.Validation)

	_, err = svc.SuggestStatements(ctx, StatementSuggestionRequest{AggregateID: "Y", MaxStatements: MaxSuggestedStatements + 1})
	assertCode(t, err, errs.Validation)
}
