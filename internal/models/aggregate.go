package models

import "github.com/shopspring/decimal"

// AggregatedTransaction is one POS revenue summary for a date, branch and payment method.
// POS aggregation creates it; the engine only flips IsReconciled and its back-references.
type AggregatedTransaction struct {
	ID              string `json:"id"`
	CompanyID       string `json:"company_id,omitempty"`
	BranchID        string `json:"branch_id,omitempty"`
	BranchName      string `json:"branch_name,omitempty"`
	PaymentMethod   string `json:"payment_method"`
	TransactionDate Date   `json:"transaction_date"`

	// ReferenceNumber is the settlement reference reported by the payment
	// provider, if any.
	ReferenceNumber string `json:"reference_number,omitempty"`

	GrossAmount decimal.Decimal `json:"gross_amount"`
	NettAmount  decimal.Decimal `json:"nett_amount"`

	IsReconciled bool `json:"is_reconciled"`

	MatchedStatementID    string `json:"matched_statement_id,omitempty"`
	ReconciliationGroupID string `json:"reconciliation_group_id,omitempty"`
	SettlementGroupID     string `json:"settlement_group_id,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// IsOpen reports whether the aggregate can be matched.
func (a *AggregatedTransaction) IsOpen() bool {
	return !a.IsReconciled
}
