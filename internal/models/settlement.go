package models

import "github.com/shopspring/decimal"

// SettlementGroup links one bank statement to many aggregates.
//
// IsDeleted and ReconciliationReverted are independent: a group can be hidden
// while its records stay reconciled.
type SettlementGroup struct {
	// ID is the unique identifier for the group (UUID format).
	ID string `json:"id"`

	// SettlementNumber is the human-facing identifier, STL-YYYYMMDD-NNNN.
	SettlementNumber string `json:"settlement_number"`

	CompanyID       string `json:"company_id,omitempty"`
	BankStatementID string `json:"bank_statement_id"`

	// SettlementDate is the statement's transaction date.
	SettlementDate Date `json:"settlement_date"`

	Allocations []SettlementAllocation `json:"aggregates"`

	TotalStatementAmount decimal.Decimal `json:"total_statement_amount"`
	TotalAllocatedAmount decimal.Decimal `json:"total_allocated_amount"`
	Difference           decimal.Decimal `json:"difference"`
	PercentDifference    float64         `json:"percent_difference"`

	Status GroupStatus `json:"status"`
	Notes  string      `json:"notes,omitempty"`

	CreatedBy   string `json:"created_by,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	ConfirmedBy string `json:"confirmed_by,omitempty"`
	ConfirmedAt int64  `json:"confirmed_at,omitempty"`
	UpdatedAt   int64  `json:"updated_at"`

	IsDeleted bool   `json:"is_deleted"`
	DeletedAt int64  `json:"deleted_at,omitempty"`
	DeletedBy string `json:"deleted_by,omitempty"`

	// ReconciliationReverted is set when deletion flipped the linked records
	// back to unreconciled.
	ReconciliationReverted bool `json:"reconciliation_reverted"`
}

// SettlementAllocation is the share of one aggregate counted toward a settlement.
// AllocatedAmount defaults to OriginalAmount unless overridden at creation.
type SettlementAllocation struct {
	ID              string          `json:"id"`
	AggregateID     string          `json:"aggregate_id"`
	OriginalAmount  decimal.Decimal `json:"original_amount"`
	AllocatedAmount decimal.Decimal `json:"allocated_amount"`
	BranchName      string          `json:"branch_name,omitempty"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	TransactionDate Date            `json:"transaction_date"`
}

// AggregateIDs returns the allocated aggregate IDs in allocation order.
func (g *SettlementGroup) AggregateIDs() []string {
	ids := make([]string, len(g.Allocations))
	for i, a := range g.Allocations {
		ids[i] = a.AggregateID
	}
	return ids
}
