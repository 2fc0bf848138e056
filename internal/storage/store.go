// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/posrecon/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a compare-and-set finds the record in a
	// state other than the expected one.
	ErrConflict = errors.New("record modified concurrently")
)

// Ledger is the single authority for match state and group membership.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the service layer.
type Ledger interface {
	Reader

	// UpsertStatements inserts or refreshes imported statements. Match-state
	// fields of existing rows are left untouched.
	UpsertStatements(ctx context.Context, stmts []*models.BankStatement) error

	// UpsertAggregates inserts or refreshes POS aggregates. The reconciled
	// flag and back-references of existing rows are left untouched.
	UpsertAggregates(ctx context.Context, aggs []*models.AggregatedTransaction) error

	// Update runs fn inside one transaction. A non-nil error from fn rolls
	// everything back and is returned unchanged.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any resources held by the ledger.
	Close() error
}

// Reader holds the read operations available both outside and inside a transaction.
// Get methods return ErrNotFound for unknown IDs; batch gets skip them.
type Reader interface {
	GetStatement(ctx context.Context, id string) (*models.BankStatement, error)
	GetStatements(ctx context.Context, ids []string) ([]*models.BankStatement, error)
	ListStatements(ctx context.Context, f StatementFilter, page models.PageRequest) ([]*models.BankStatement, int, error)

	GetAggregate(ctx context.Context, id string) (*models.AggregatedTransaction, error)
	GetAggregates(ctx context.Context, ids []string) ([]*models.AggregatedTransaction, error)
	ListAggregates(ctx context.Context, f AggregateFilter, page models.PageRequest) ([]*models.AggregatedTransaction, int, error)

	GetReconciliationGroup(ctx context.Context, id string) (*models.ReconciliationGroup, error)
	ListReconciliationGroups(ctx context.Context, f GroupFilter, page models.PageRequest) ([]*models.ReconciliationGroup, int, error)

	GetSettlementGroup(ctx context.Context, id string) (*models.SettlementGroup, error)
	GetSettlementGroupByNumber(ctx context.Context, number string) (*models.SettlementGroup, error)
	ListSettlementGroups(ctx context.Context, f SettlementFilter, page models.PageRequest) ([]*models.SettlementGroup, int, error)
}

// Tx is the write surface of one ledger transaction. Every state change is a
// compare-and-set keyed by record ID and the expected prior state, so two
// concurrent operations on the same record cannot both succeed.
type Tx interface {
	Reader

	// CompareAndSetStatement writes next if the row still matches expected,
	// otherwise returns ErrConflict (or ErrNotFound).
	CompareAndSetStatement(ctx context.Context, id string, expected, next StatementState) error

	// CompareAndSetAggregate writes next if the row still matches expected,
	// otherwise returns ErrConflict (or ErrNotFound).
	CompareAndSetAggregate(ctx context.Context, id string, expected, next AggregateState) error

	// InsertReconciliationGroup persists a new group and its detail rows.
	// ID and CreatedAt are generated when empty.
	InsertReconciliationGroup(ctx context.Context, g *models.ReconciliationGroup) error

	// SetReconciliationGroupStatus moves a group from one status to another.
	SetReconciliationGroupStatus(ctx context.Context, id string, from, to models.GroupStatus, actor string, at int64) error

	// InsertSettlementGroup persists a new settlement group and its allocations,
	// assigning the next settlement number for its settlement date.
	InsertSettlementGroup(ctx context.Context, g *models.SettlementGroup) error

	// MarkSettlementGroupDeleted soft-deletes an active group.
	MarkSettlementGroupDeleted(ctx context.Context, id string, d SettlementDeletion) error

	// RestoreSettlementGroup clears the deletion mark of a deleted group.
	RestoreSettlementGroup(ctx context.Context, id string, at int64) error
}

// StatementState is the engine-owned projection of a bank statement.
type StatementState struct {
	Status                models.StatementStatus
	IsReconciled          bool
	PreMatchStatus        models.StatementStatus
	MatchedAggregateID    string
	ReconciliationGroupID string
	SettlementGroupID     string
	MatchCriteria         models.MatchCriteria
	MatchScore            float64
	MatchedAt             int64
	MatchedBy             string
	Notes                 string
}

// StatementStateOf extracts the current match state of s.
func StatementStateOf(s *models.BankStatement) StatementState {
	return StatementState{
		Status:                s.Status,
		IsReconciled:          s.IsReconciled,
		PreMatchStatus:        s.PreMatchStatus,
		MatchedAggregateID:    s.MatchedAggregateID,
		ReconciliationGroupID: s.ReconciliationGroupID,
		SettlementGroupID:     s.SettlementGroupID,
		MatchCriteria:         s.MatchCriteria,
		MatchScore:            s.MatchScore,
		MatchedAt:             s.MatchedAt,
		MatchedBy:             s.MatchedBy,
		Notes:                 s.Notes,
	}
}

// OpenStatementState returns the cleared state a statement returns to on undo.
func OpenStatementState(status models.StatementStatus) StatementState {
	return StatementState{Status: status}
}

// AggregateState is the engine-owned projection of an aggregate.
type AggregateState struct {
	IsReconciled          bool
	MatchedStatementID    string
	ReconciliationGroupID string
	SettlementGroupID     string
}

// AggregateStateOf extracts the current match state of a.
func AggregateStateOf(a *models.AggregatedTransaction) AggregateState {
	return AggregateState{
		IsReconciled:          a.IsReconciled,
		MatchedStatementID:    a.MatchedStatementID,
		ReconciliationGroupID: a.ReconciliationGroupID,
		SettlementGroupID:     a.SettlementGroupID,
	}
}

// SettlementDeletion describes a soft delete.
type SettlementDeletion struct {
	By       string
	At       int64
	Reverted bool
	// Status replaces the group status when set.
	Status models.GroupStatus
}

// StatementFilter narrows statement listings. Zero values match everything.
type StatementFilter struct {
	CompanyID string
	Range     *models.DateRange
	Statuses  []models.StatementStatus
	// OpenOnly keeps statements that are unreconciled and not held by any link.
	OpenOnly bool
	// Search matches description or reference number, case-insensitively.
	Search string
}

// AggregateFilter narrows aggregate listings. Zero values match everything.
type AggregateFilter struct {
	CompanyID     string
	BranchID      string
	PaymentMethod string
	Range         *models.DateRange
	OpenOnly      bool
	Search        string
}

// GroupFilter narrows reconciliation group listings by aggregate date.
type GroupFilter struct {
	CompanyID string
	Range     *models.DateRange
	Status    models.GroupStatus
}

// SettlementFilter narrows settlement group listings by settlement date.
type SettlementFilter struct {
	CompanyID string
	Range     *models.DateRange
	Status    models.GroupStatus
	// Deleted selects the trash view instead of the active one.
	Deleted bool
	Search  string
}
