package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/posrecon/internal/models"
	"github.com/mmynk/posrecon/internal/storage"
)

const reconciliationGroupColumns = `id, company_id, aggregate_id, transaction_date, total_bank_amount,
	aggregate_amount, difference, percent_difference, status, notes,
	reconciled_by, reconciled_at, undone_by, undone_at, created_at, updated_at`

func scanReconciliationGroup(row rowScanner) (*models.ReconciliationGroup, error) {
	g := &models.ReconciliationGroup{}
	err := row.Scan(&g.ID, &g.CompanyID, &g.AggregateID, &g.TransactionDate, &g.TotalBankAmount,
		&g.AggregateAmount, &g.Difference, &g.PercentDifference, &g.Status, &g.Notes,
		&g.ReconciledBy, &g.ReconciledAt, &g.UndoneBy, &g.UndoneAt, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// InsertReconciliationGroup persists a new group together with its detail rows.
func (t *sqliteTx) InsertReconciliationGroup(ctx context.Context, g *models.ReconciliationGroup) error {
	// Generate ID if not set
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	now := time.Now().Unix()
	if g.CreatedAt == 0 {
		g.CreatedAt = now
	}
	g.UpdatedAt = now

	_, err := t.q.ExecContext(ctx,
		`INSERT INTO reconciliation_groups (id, company_id, aggregate_id, transaction_date, total_bank_amount,
			aggregate_amount, difference, percent_difference, status, notes,
			reconciled_by, reconciled_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.CompanyID, g.AggregateID, g.TransactionDate, g.TotalBankAmount.String(),
		g.AggregateAmount.String(), g.Difference.String(), g.PercentDifference, string(g.Status), g.Notes,
		g.ReconciledBy, g.ReconciledAt, g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reconciliation group: %w", err)
	}

	for i, d := range g.Details {
		_, err = t.q.ExecContext(ctx,
			`INSERT INTO reconciliation_group_details (group_id, statement_id, position, amount, transaction_date, description)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			g.ID, d.StatementID, i, d.Amount.String(), d.TransactionDate, d.Description,
		)
		if err != nil {
			return fmt.Errorf("failed to insert group detail: %w", err)
		}
	}
	return nil
}

// SetReconciliationGroupStatus moves a group from one status to another and
// stamps the matching audit fields.
func (t *sqliteTx) SetReconciliationGroupStatus(ctx context.Context, id string, from, to models.GroupStatus, actor string, at int64) error {
	query := `UPDATE reconciliation_groups SET status = ?, reconciled_by = ?, reconciled_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`
	if to == models.GroupUndo {
		query = `UPDATE reconciliation_groups SET status = ?, undone_by = ?, undone_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`
	}
	res, err := t.q.ExecContext(ctx, query, string(to), actor, at, at, id, string(from))
	if err != nil {
		return fmt.Errorf("failed to update reconciliation group: %w", err)
	}
	return checkAffected(ctx, t.q, res, "reconciliation_groups", id)
}

// GetReconciliationGroup retrieves a group and its detail rows.
func (r reader) GetReconciliationGroup(ctx context.Context, id string) (*models.ReconciliationGroup, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+reconciliationGroupColumns+" FROM reconciliation_groups WHERE id = ?", id)
	g, err := scanReconciliationGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reconciliation group %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reconciliation group: %w", err)
	}
	if err := r.loadGroupDetails(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// ListReconciliationGroups returns one page of groups, newest first.
func (r reader) ListReconciliationGroups(ctx context.Context, f storage.GroupFilter, page models.PageRequest) ([]*models.ReconciliationGroup, int, error) {
	w := &whereClause{}
	if f.CompanyID != "" {
		w.add("company_id = ?", f.CompanyID)
	}
	if f.Range != nil {
		w.add("transaction_date BETWEEN ? AND ?", f.Range.Start.String(), f.Range.End.String())
	}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}

	var total int
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM reconciliation_groups"+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count reconciliation groups: %w", err)
	}

	suffix, pageArgs := pageSuffix(page.Limit, page.Offset())
	rows, err := r.q.QueryContext(ctx,
		"SELECT "+reconciliationGroupColumns+" FROM reconciliation_groups"+w.String()+" ORDER BY created_at DESC, id"+suffix,
		append(w.args, pageArgs...)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reconciliation groups: %w", err)
	}

	var groups []*models.ReconciliationGroup
	for rows.Next() {
		g, err := scanReconciliationGroup(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("failed to scan reconciliation group: %w", err)
		}
		groups = append(groups, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate reconciliation groups: %w", err)
	}

	// Details are loaded after the group cursor is closed; the store holds a
	// single connection.
	for _, g := range groups {
		if err := r.loadGroupDetails(ctx, g); err != nil {
			return nil, 0, err
		}
	}
	return groups, total, nil
}

func (r reader) loadGroupDetails(ctx context.Context, g *models.ReconciliationGroup) error {
	rows, err := r.q.QueryContext(ctx,
		`SELECT statement_id, amount, transaction_date, description
		 FROM reconciliation_group_details WHERE group_id = ? ORDER BY position`,
		g.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to get group details: %w", err)
	}
	defer rows.Close()

	g.Details = g.Details[:0]
	for rows.Next() {
		var d models.ReconciliationGroupDetail
		if err := rows.Scan(&d.StatementID, &d.Amount, &d.TransactionDate, &d.Description); err != nil {
			return fmt.Errorf("failed to scan group detail: %w", err)
		}
		g.Details = append(g.Details, d)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate group details: %w", err)
	}
	return nil
}
