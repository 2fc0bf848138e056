package models

import "github.com/shopspring/decimal"

// GroupStatus is the lifecycle state shared by reconciliation and settlement groups.
type GroupStatus string

const (
	GroupPending     GroupStatus = "PENDING"
	GroupReconciled  GroupStatus = "RECONCILED"
	GroupDiscrepancy GroupStatus = "DISCREPANCY"
	GroupUndo        GroupStatus = "UNDO"
)

// Valid reports whether s is a known group status.
func (s GroupStatus) Valid() bool {
	switch s {
	case GroupPending, GroupReconciled, GroupDiscrepancy, GroupUndo:
		return true
	}
	return false
}

// IsActive reports whether the group still holds its members reconciled.
func (s GroupStatus) IsActive() bool {
	return s == GroupPending || s == GroupReconciled || s == GroupDiscrepancy
}

// ReconciliationGroup links one aggregate to many bank statements (multi-match).
//
// TotalBankAmount is the sum of the member statements' net amounts and is
// authoritative; Difference is TotalBankAmount minus AggregateAmount.
type ReconciliationGroup struct {
	// ID is the unique identifier for the group (UUID format).
	ID string `json:"id"`

	CompanyID   string `json:"company_id,omitempty"`
	AggregateID string `json:"aggregate_id"`

	// TransactionDate is the aggregate's date, used for period listings.
	TransactionDate Date `json:"transaction_date"`

	// Details holds one row per member statement.
	Details []ReconciliationGroupDetail `json:"details"`

	TotalBankAmount decimal.Decimal `json:"total_bank_amount"`
	AggregateAmount decimal.Decimal `json:"aggregate_amount"`
	Difference      decimal.Decimal `json:"difference"`

	// PercentDifference is |Difference| / AggregateAmount.
	PercentDifference float64 `json:"percent_difference"`

	Status GroupStatus `json:"status"`
	Notes  string      `json:"notes,omitempty"`

	ReconciledBy string `json:"reconciled_by,omitempty"`
	ReconciledAt int64  `json:"reconciled_at,omitempty"`
	UndoneBy     string `json:"undone_by,omitempty"`
	UndoneAt     int64  `json:"undone_at,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// ReconciliationGroupDetail is one member statement of a reconciliation group.
type ReconciliationGroupDetail struct {
	StatementID     string          `json:"statement_id"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionDate Date            `json:"transaction_date"`
	Description     string          `json:"description,omitempty"`
}

// StatementIDs returns the member statement IDs in detail order.
func (g *ReconciliationGroup) StatementIDs() []string {
	ids := make([]string, len(g.Details))
	for i, d := range g.Details {
		ids[i] = d.StatementID
	}
	return ids
}
