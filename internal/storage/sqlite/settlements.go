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

// settlementNumberAttempts bounds the retries when a generated number is taken.
const settlementNumberAttempts = 5

const settlementGroupColumns = `id, settlement_number, company_id, bank_statement_id, settlement_date,
	total_statement_amount, total_allocated_amount, difference, percent_difference, status, notes,
	created_by, created_at, confirmed_by, confirmed_at, updated_at,
	is_deleted, deleted_at, deleted_by, reconciliation_reverted`

func scanSettlementGroup(row rowScanner) (*models.SettlementGroup, error) {
	g := &models.SettlementGroup{}
	var isDeleted, reverted int
	err := row.Scan(&g.ID, &g.SettlementNumber, &g.CompanyID, &g.BankStatementID, &g.SettlementDate,
		&g.TotalStatementAmount, &g.TotalAllocatedAmount, &g.Difference, &g.PercentDifference, &g.Status, &g.Notes,
		&g.CreatedBy, &g.CreatedAt, &g.ConfirmedBy, &g.ConfirmedAt, &g.UpdatedAt,
		&isDeleted, &g.DeletedAt, &g.DeletedBy, &reverted)
	if err != nil {
		return nil, err
	}
	g.IsDeleted = isDeleted == 1
	g.ReconciliationReverted = reverted == 1
	return g, nil
}

// nextSettlementNumber draws the next STL-YYYYMMDD-NNNN number for day,
// skipping any number already present.
func (t *sqliteTx) nextSettlementNumber(ctx context.Context, day time.Time) (string, error) {
	key := day.UTC().Format("20060102")
	for i := 0; i < settlementNumberAttempts; i++ {
		var seq int
		err := t.q.QueryRowContext(ctx,
			`INSERT INTO settlement_sequences (day, seq) VALUES (?, 1)
			 ON CONFLICT(day) DO UPDATE SET seq = seq + 1
			 RETURNING seq`,
			key,
		).Scan(&seq)
		if err != nil {
			return "", fmt.Errorf("failed to advance settlement sequence: %w", err)
		}

		number := fmt.Sprintf("STL-%s-%04d", key, seq)
		var exists int
		err = t.q.QueryRowContext(ctx, "SELECT 1 FROM settlement_groups WHERE settlement_number = ?", number).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return number, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check settlement number: %w", err)
		}
	}
	return "", fmt.Errorf("no free settlement number for %s after %d attempts", key, settlementNumberAttempts)
}

// InsertSettlementGroup persists a new settlement group and its allocations.
func (t *sqliteTx) InsertSettlementGroup(ctx context.Context, g *models.SettlementGroup) error {
	// Generate ID if not set
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	now := time.Now()
	if g.CreatedAt == 0 {
		g.CreatedAt = now.Unix()
	}
	g.UpdatedAt = now.Unix()

	if g.SettlementNumber == "" {
		number, err := t.nextSettlementNumber(ctx, time.Unix(g.CreatedAt, 0))
		if err != nil {
			return err
		}
		g.SettlementNumber = number
	}

	_, err := t.q.ExecContext(ctx,
		`INSERT INTO settlement_groups (id, settlement_number, company_id, bank_statement_id, settlement_date,
			total_statement_amount, total_allocated_amount, difference, percent_difference, status, notes,
			created_by, created_at, confirmed_by, confirmed_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.SettlementNumber, g.CompanyID, g.BankStatementID, g.SettlementDate,
		g.TotalStatementAmount.String(), g.TotalAllocatedAmount.String(), g.Difference.String(),
		g.PercentDifference, string(g.Status), g.Notes,
		g.CreatedBy, g.CreatedAt, g.ConfirmedBy, g.ConfirmedAt, g.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert settlement group: %w", err)
	}

	for i := range g.Allocations {
		a := &g.Allocations[i]
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		_, err = t.q.ExecContext(ctx,
			`INSERT INTO settlement_group_aggregates (id, group_id, aggregate_id, position, original_amount,
				allocated_amount, branch_name, payment_method, transaction_date)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, g.ID, a.AggregateID, i, a.OriginalAmount.String(),
			a.AllocatedAmount.String(), a.BranchName, a.PaymentMethod, a.TransactionDate,
		)
		if err != nil {
			return fmt.Errorf("failed to insert settlement allocation: %w", err)
		}
	}
	return nil
}

// MarkSettlementGroupDeleted soft-deletes a group that is not yet deleted.
func (t *sqliteTx) MarkSettlementGroupDeleted(ctx context.Context, id string, d storage.SettlementDeletion) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE settlement_groups SET
			is_deleted = 1, deleted_at = ?, deleted_by = ?, reconciliation_reverted = ?,
			status = CASE WHEN ? = '' THEN status ELSE ? END,
			updated_at = ?
		 WHERE id = ? AND is_deleted = 0`,
		d.At, d.By, boolToInt(d.Reverted),
		string(d.Status), string(d.Status),
		d.At,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete settlement group: %w", err)
	}
	return checkAffected(ctx, t.q, res, "settlement_groups", id)
}

// RestoreSettlementGroup clears the deletion mark. The reverted flag and
// status are kept, so a reverted group stays UNDO after restore.
func (t *sqliteTx) RestoreSettlementGroup(ctx context.Context, id string, at int64) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE settlement_groups SET is_deleted = 0, deleted_at = 0, deleted_by = '', updated_at = ?
		 WHERE id = ? AND is_deleted = 1`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("failed to restore settlement group: %w", err)
	}
	return checkAffected(ctx, t.q, res, "settlement_groups", id)
}

// GetSettlementGroup retrieves a settlement group, deleted or not, with its allocations.
func (r reader) GetSettlementGroup(ctx context.Context, id string) (*models.SettlementGroup, error) {
	return r.getSettlementGroup(ctx, "id", id)
}

// GetSettlementGroupByNumber retrieves a settlement group by its settlement number.
func (r reader) GetSettlementGroupByNumber(ctx context.Context, number string) (*models.SettlementGroup, error) {
	return r.getSettlementGroup(ctx, "settlement_number", number)
}

func (r reader) getSettlementGroup(ctx context.Context, column, value string) (*models.SettlementGroup, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+settlementGroupColumns+" FROM settlement_groups WHERE "+column+" = ?", value)
	g, err := scanSettlementGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("settlement group %s: %w", value, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement group: %w", err)
	}
	if err := r.loadAllocations(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// ListSettlementGroups returns one page of active or deleted groups, newest first.
func (r reader) ListSettlementGroups(ctx context.Context, f storage.SettlementFilter, page models.PageRequest) ([]*models.SettlementGroup, int, error) {
	w := &whereClause{}
	w.add("is_deleted = ?", boolToInt(f.Deleted))
	if f.CompanyID != "" {
		w.add("company_id = ?", f.CompanyID)
	}
	if f.Range != nil {
		w.add("settlement_date BETWEEN ? AND ?", f.Range.Start.String(), f.Range.End.String())
	}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	if f.Search != "" {
		p := likePattern(f.Search)
		w.add("(LOWER(settlement_number) LIKE ? OR LOWER(notes) LIKE ?)", p, p)
	}

	var total int
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM settlement_groups"+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count settlement groups: %w", err)
	}

	order := " ORDER BY created_at DESC, id"
	if f.Deleted {
		order = " ORDER BY deleted_at DESC, id"
	}
	suffix, pageArgs := pageSuffix(page.Limit, page.Offset())
	rows, err := r.q.QueryContext(ctx,
		"SELECT "+settlementGroupColumns+" FROM settlement_groups"+w.String()+order+suffix,
		append(w.args, pageArgs...)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list settlement groups: %w", err)
	}

	var groups []*models.SettlementGroup
	for rows.Next() {
		g, err := scanSettlementGroup(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("failed to scan settlement group: %w", err)
		}
		groups = append(groups, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate settlement groups: %w", err)
	}

	for _, g := range groups {
		if err := r.loadAllocations(ctx, g); err != nil {
			return nil, 0, err
		}
	}
	return groups, total, nil
}

func (r reader) loadAllocations(ctx context.Context, g *models.SettlementGroup) error {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, aggregate_id, original_amount, allocated_amount, branch_name, payment_method, transaction_date
		 FROM settlement_group_aggregates WHERE group_id = ? ORDER BY position`,
		g.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to get settlement allocations: %w", err)
	}
	defer rows.Close()

	g.Allocations = g.Allocations[:0]
	for rows.Next() {
		var a models.SettlementAllocation
		if err := rows.Scan(&a.ID, &a.AggregateID, &a.OriginalAmount, &a.AllocatedAmount,
			&a.BranchName, &a.PaymentMethod, &a.TransactionDate); err != nil {
			return fmt.Errorf("failed to scan settlement allocation: %w", err)
		}
		g.Allocations = append(g.Allocations, a)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate settlement allocations: %w", err)
	}
	return nil
}
