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

const statementColumns = `id, company_id, bank_account_id, transaction_date, description, reference_number,
	debit_amount, credit_amount, is_reconciled, status, pre_match_status,
	matched_aggregate_id, reconciliation_group_id, settlement_group_id,
	match_criteria, match_score, matched_at, matched_by, notes, created_at, updated_at`

func scanStatement(row rowScanner) (*models.BankStatement, error) {
	s := &models.BankStatement{}
	var isReconciled int
	err := row.Scan(&s.ID, &s.CompanyID, &s.BankAccountID, &s.TransactionDate, &s.Description, &s.ReferenceNumber,
		&s.DebitAmount, &s.CreditAmount, &isReconciled, &s.Status, &s.PreMatchStatus,
		&s.MatchedAggregateID, &s.ReconciliationGroupID, &s.SettlementGroupID,
		&s.MatchCriteria, &s.MatchScore, &s.MatchedAt, &s.MatchedBy, &s.Notes, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.IsReconciled = isReconciled == 1
	return s, nil
}

// UpsertStatements inserts new statements and refreshes the imported fields
// of existing ones. Match state is never overwritten by an import.
func (s *SQLiteStore) UpsertStatements(ctx context.Context, stmts []*models.BankStatement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, st := range stmts {
		if st.ID == "" {
			return fmt.Errorf("statement id is required")
		}
		if st.Status == "" {
			st.Status = models.StatusPending
		}
		if st.CreatedAt == 0 {
			st.CreatedAt = now
		}
		st.UpdatedAt = now

		_, err = tx.ExecContext(ctx,
			`INSERT INTO bank_statements (id, company_id, bank_account_id, transaction_date, description,
				reference_number, debit_amount, credit_amount, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				company_id = excluded.company_id,
				bank_account_id = excluded.bank_account_id,
				transaction_date = excluded.transaction_date,
				description = excluded.description,
				reference_number = excluded.reference_number,
				debit_amount = excluded.debit_amount,
				credit_amount = excluded.credit_amount,
				updated_at = excluded.updated_at`,
			st.ID, st.CompanyID, st.BankAccountID, st.TransactionDate, st.Description,
			st.ReferenceNumber, st.DebitAmount.String(), st.CreditAmount.String(), string(st.Status),
			st.CreatedAt, st.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert statement %s: %w", st.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetStatement retrieves a statement by ID.
func (r reader) GetStatement(ctx context.Context, id string) (*models.BankStatement, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+statementColumns+" FROM bank_statements WHERE id = ?", id)
	st, err := scanStatement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("statement %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get statement: %w", err)
	}
	return st, nil
}

// GetStatements retrieves the statements with the given IDs, in ID order.
// Unknown IDs are skipped.
func (r reader) GetStatements(ctx context.Context, ids []string) ([]*models.BankStatement, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.q.QueryContext(ctx,
		"SELECT "+statementColumns+" FROM bank_statements WHERE id IN ("+placeholders(len(ids))+") ORDER BY id",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get statements: %w", err)
	}
	return collectStatements(rows)
}

// ListStatements returns one page of statements ordered by date then ID,
// plus the total number of matching rows.
func (r reader) ListStatements(ctx context.Context, f storage.StatementFilter, page models.PageRequest) ([]*models.BankStatement, int, error) {
	w := &whereClause{}
	if f.CompanyID != "" {
		w.add("company_id = ?", f.CompanyID)
	}
	if f.Range != nil {
		w.add("transaction_date BETWEEN ? AND ?", f.Range.Start.String(), f.Range.End.String())
	}
	if len(f.Statuses) > 0 {
		args := make([]any, len(f.Statuses))
		for i, st := range f.Statuses {
			args[i] = string(st)
		}
		w.add("status IN ("+placeholders(len(args))+")", args...)
	}
	if f.OpenOnly {
		w.add(`is_reconciled = 0 AND status IN ('PENDING', 'UNRECONCILED')
			AND matched_aggregate_id = '' AND reconciliation_group_id = '' AND settlement_group_id = ''`)
	}
	if f.Search != "" {
		p := likePattern(f.Search)
		w.add("(LOWER(description) LIKE ? OR LOWER(reference_number) LIKE ?)", p, p)
	}

	var total int
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM bank_statements"+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count statements: %w", err)
	}

	suffix, pageArgs := pageSuffix(page.Limit, page.Offset())
	rows, err := r.q.QueryContext(ctx,
		"SELECT "+statementColumns+" FROM bank_statements"+w.String()+" ORDER BY transaction_date, id"+suffix,
		append(w.args, pageArgs...)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list statements: %w", err)
	}
	stmts, err := collectStatements(rows)
	if err != nil {
		return nil, 0, err
	}
	return stmts, total, nil
}

func collectStatements(rows *sql.Rows) ([]*models.BankStatement, error) {
	defer rows.Close()

	var stmts []*models.BankStatement
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan statement: %w", err)
		}
		stmts = append(stmts, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate statements: %w", err)
	}
	return stmts, nil
}

// CompareAndSetStatement replaces the match state of a statement if its
// status, reconciled flag and links still equal expected.
func (t *sqliteTx) CompareAndSetStatement(ctx context.Context, id string, expected, next storage.StatementState) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE bank_statements SET
			status = ?, is_reconciled = ?, pre_match_status = ?,
			matched_aggregate_id = ?, reconciliation_group_id = ?, settlement_group_id = ?,
			match_criteria = ?, match_score = ?, matched_at = ?, matched_by = ?, notes = ?,
			updated_at = ?
		 WHERE id = ? AND status = ? AND is_reconciled = ?
			AND matched_aggregate_id = ? AND reconciliation_group_id = ? AND settlement_group_id = ?`,
		string(next.Status), boolToInt(next.IsReconciled), string(next.PreMatchStatus),
		next.MatchedAggregateID, next.ReconciliationGroupID, next.SettlementGroupID,
		string(next.MatchCriteria), next.MatchScore, next.MatchedAt, next.MatchedBy, next.Notes,
		time.Now().Unix(),
		id, string(expected.Status), boolToInt(expected.IsReconciled),
		expected.MatchedAggregateID, expected.ReconciliationGroupID, expected.SettlementGroupID,
	)
	if err != nil {
		return fmt.Errorf("failed to update statement: %w", err)
	}
	return checkAffected(ctx, t.q, res, "bank_statements", id)
}
