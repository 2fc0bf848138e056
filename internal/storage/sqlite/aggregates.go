package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mmynk/posrecon/internal/models"
	"github.com/mmynk/posrecon/internal/storage"
)

const aggregateColumns = `id, company_id, branch_id, branch_name, payment_method, transaction_date,
	reference_number, gross_amount, nett_amount, is_reconciled,
	matched_statement_id, reconciliation_group_id, settlement_group_id, created_at, updated_at`

func scanAggregate(row rowScanner) (*models.AggregatedTransaction, error) {
	a := &models.AggregatedTransaction{}
	var isReconciled int
	err := row.Scan(&a.ID, &a.CompanyID, &a.BranchID, &a.BranchName, &a.PaymentMethod, &a.TransactionDate,
		&a.ReferenceNumber, &a.GrossAmount, &a.NettAmount, &isReconciled,
		&a.MatchedStatementID, &a.ReconciliationGroupID, &a.SettlementGroupID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.IsReconciled = isReconciled == 1
	return a, nil
}

// UpsertAggregates inserts new aggregates and refreshes the POS-owned fields
// of existing ones.
func (s *SQLiteStore) UpsertAggregates(ctx context.Context, aggs []*models.AggregatedTransaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, a := range aggs {
		if a.ID == "" {
			return fmt.Errorf("aggregate id is required")
		}
		if a.CreatedAt == 0 {
			a.CreatedAt = now
		}
		a.UpdatedAt = now

		_, err = tx.ExecContext(ctx,
			`INSERT INTO aggregated_transactions (id, company_id, branch_id, branch_name, payment_method,
				transaction_date, reference_number, gross_amount, nett_amount, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				company_id = excluded.company_id,
				branch_id = excluded.branch_id,
				branch_name = excluded.branch_name,
				payment_method = excluded.payment_method,
				transaction_date = excluded.transaction_date,
				reference_number = excluded.reference_number,
				gross_amount = excluded.gross_amount,
				nett_amount = excluded.nett_amount,
				updated_at = excluded.updated_at`,
			a.ID, a.CompanyID, a.BranchID, a.BranchName, a.PaymentMethod,
			a.TransactionDate, a.ReferenceNumber, a.GrossAmount.String(), a.NettAmount.String(),
			a.CreatedAt, a.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert aggregate %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetAggregate retrieves an aggregate by ID.
func (r reader) GetAggregate(ctx context.Context, id string) (*models.AggregatedTransaction, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+aggregateColumns+" FROM aggregated_transactions WHERE id = ?", id)
	a, err := scanAggregate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("aggregate %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get aggregate: %w", err)
	}
	return a, nil
}

// GetAggregates retrieves the aggregates with the given IDs, in ID order.
// Unknown IDs are skipped.
func (r reader) GetAggregates(ctx context.Context, ids []string) ([]*models.AggregatedTransaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.q.QueryContext(ctx,
		"SELECT "+aggregateColumns+" FROM aggregated_transactions WHERE id IN ("+placeholders(len(ids))+") ORDER BY id",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get aggregates: %w", err)
	}
	return collectAggregates(rows)
}

// ListAggregates returns one page of aggregates ordered by date then ID,
// plus the total number of matching rows.
func (r reader) ListAggregates(ctx context.Context, f storage.AggregateFilter, page models.PageRequest) ([]*models.AggregatedTransaction, int, error) {
	w := &whereClause{}
	if f.CompanyID != "" {
		w.add("company_id = ?", f.CompanyID)
	}
	if f.BranchID != "" {
		w.add("branch_id = ?", f.BranchID)
	}
	if f.PaymentMethod != "" {
		w.add("payment_method = ?", f.PaymentMethod)
	}
	if f.Range != nil {
		w.add("transaction_date BETWEEN ? AND ?", f.Range.Start.String(), f.Range.End.String())
	}
	if f.OpenOnly {
		w.add(`is_reconciled = 0 AND matched_statement_id = ''
			AND reconciliation_group_id = '' AND settlement_group_id = ''`)
	}
	if f.Search != "" {
		p := likePattern(f.Search)
		w.add("(LOWER(branch_name) LIKE ? OR LOWER(payment_method) LIKE ? OR LOWER(reference_number) LIKE ?)", p, p, p)
	}

	var total int
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM aggregated_transactions"+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count aggregates: %w", err)
	}

	suffix, pageArgs := pageSuffix(page.Limit, page.Offset())
	rows, err := r.q.QueryContext(ctx,
		"SELECT "+aggregateColumns+" FROM aggregated_transactions"+w.String()+" ORDER BY transaction_date, id"+suffix,
		append(w.args, pageArgs...)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list aggregates: %w", err)
	}
	aggs, err := collectAggregates(rows)
	if err != nil {
		return nil, 0, err
	}
	return aggs, total, nil
}

func collectAggregates(rows *sql.Rows) ([]*models.AggregatedTransaction, error) {
	defer rows.Close()

	var aggs []*models.AggregatedTransaction
	for rows.Next() {
		a, err := scanAggregate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		aggs = append(aggs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate aggregates: %w", err)
	}
	return aggs, nil
}

// CompareAndSetAggregate replaces the match state of an aggregate if its
// reconciled flag and links still equal expected.
func (t *sqliteTx) CompareAndSetAggregate(ctx context.Context, id string, expected, next storage.AggregateState) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE aggregated_transactions SET
			is_reconciled = ?, matched_statement_id = ?, reconciliation_group_id = ?, settlement_group_id = ?,
			updated_at = ?
		 WHERE id = ? AND is_reconciled = ?
			AND matched_statement_id = ? AND reconciliation_group_id = ? AND settlement_group_id = ?`,
		boolToInt(next.IsReconciled), next.MatchedStatementID, next.ReconciliationGroupID, next.SettlementGroupID,
		time.Now().Unix(),
		id, boolToInt(expected.IsReconciled),
		expected.MatchedStatementID, expected.ReconciliationGroupID, expected.SettlementGroupID,
	)
	if err != nil {
		return fmt.Errorf("failed to update aggregate: %w", err)
	}
	return checkAffected(ctx, t.q, res, "aggregated_transactions", id)
}
