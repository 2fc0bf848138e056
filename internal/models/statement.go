package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// StatementStatus is the match lifecycle state of a bank statement line.
type StatementStatus string

const (
	StatusPending         StatementStatus = "PENDING"
	StatusAutoMatched     StatementStatus = "AUTO_MATCHED"
	StatusManuallyMatched StatementStatus = "MANUALLY_MATCHED"
	StatusDiscrepancy     StatementStatus = "DISCREPANCY"
	StatusUnreconciled    StatementStatus = "UNRECONCILED"
)

// OpenStatuses are the states from which a statement can be matched.
var OpenStatuses = []StatementStatus{StatusPending, StatusUnreconciled}

// Valid reports whether s is a known status.
func (s StatementStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAutoMatched, StatusManuallyMatched, StatusDiscrepancy, StatusUnreconciled:
		return true
	}
	return false
}

// IsOpen reports whether the statement is still waiting for a match.
func (s StatementStatus) IsOpen() bool {
	return s == StatusPending || s == StatusUnreconciled
}

// ParseStatementStatus converts a wire string to a StatementStatus.
func ParseStatementStatus(s string) (StatementStatus, error) {
	status := StatementStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown statement status %q", s)
	}
	return status, nil
}

// BankStatement is one imported bank line.
// Import owns the descriptive fields; the engine owns the match state.
type BankStatement struct {
	// ID is the unique identifier assigned by the import.
	ID string `json:"id"`

	// CompanyID scopes the statement to one company.
	CompanyID string `json:"company_id,omitempty"`

	// BankAccountID identifies the account the line was imported from.
	BankAccountID string `json:"bank_account_id,omitempty"`

	TransactionDate Date   `json:"transaction_date"`
	Description     string `json:"description"`
	ReferenceNumber string `json:"reference_number,omitempty"`

	// DebitAmount and CreditAmount are mutually exclusive; see NetAmount.
	DebitAmount  decimal.Decimal `json:"debit_amount"`
	CreditAmount decimal.Decimal `json:"credit_amount"`

	IsReconciled bool            `json:"is_reconciled"`
	Status       StatementStatus `json:"status"`

	// PreMatchStatus is the open status the line held before its current match,
	// restored on undo.
	PreMatchStatus StatementStatus `json:"-"`

	// At most one of the three link fields is set while matched.
	MatchedAggregateID    string `json:"matched_aggregate_id,omitempty"`
	ReconciliationGroupID string `json:"reconciliation_group_id,omitempty"`
	SettlementGroupID     string `json:"settlement_group_id,omitempty"`

	MatchCriteria MatchCriteria `json:"match_criteria,omitempty"`
	MatchScore    float64       `json:"match_score,omitempty"`

	// MatchedAt is the Unix timestamp of the current match, zero when open.
	MatchedAt int64  `json:"matched_at,omitempty"`
	MatchedBy string `json:"matched_by,omitempty"`
	Notes     string `json:"notes,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// NetAmount returns credit minus debit.
func (s *BankStatement) NetAmount() decimal.Decimal {
	return s.CreditAmount.Sub(s.DebitAmount)
}

// IsOpen reports whether the statement can be matched.
func (s *BankStatement) IsOpen() bool {
	return !s.IsReconciled && s.Status.IsOpen()
}

// IsGrouped reports whether the statement is held by a multi-match or settlement group.
func (s *BankStatement) IsGrouped() bool {
	return s.ReconciliationGroupID != "" || s.SettlementGroupID != ""
}

// OpenStatus returns the status to restore on undo.
func (s *BankStatement) OpenStatus() StatementStatus {
	if s.PreMatchStatus.IsOpen() {
		return s.PreMatchStatus
	}
	return StatusUnreconciled
}
