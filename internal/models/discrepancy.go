package models

import "github.com/shopspring/decimal"

// DiscrepancyReason explains why a statement appears in the discrepancy list.
type DiscrepancyReason string

const (
	ReasonNoMatch        DiscrepancyReason = "NO_MATCH"
	ReasonAmountMismatch DiscrepancyReason = "AMOUNT_MISMATCH"
	ReasonDateAnomaly    DiscrepancyReason = "DATE_ANOMALY"
)

// Severity grades a discrepancy for review ordering.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// Weight orders severities, HIGH first.
func (s Severity) Weight() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// DiscrepancyItem is derived from ledger state at query time and never stored.
type DiscrepancyItem struct {
	StatementID     string            `json:"statementId"`
	AggregateID     string            `json:"aggregateId,omitempty"`
	GroupID         string            `json:"groupId,omitempty"`
	TransactionDate Date              `json:"transactionDate"`
	Description     string            `json:"description"`
	StatementAmount decimal.Decimal   `json:"statementAmount"`
	AggregateAmount *decimal.Decimal  `json:"aggregateAmount,omitempty"`
	Difference      decimal.Decimal   `json:"difference"`
	DayDifference   int               `json:"dayDifference,omitempty"`
	Reason          DiscrepancyReason `json:"reason"`
	Severity        Severity          `json:"severity"`
	Status          StatementStatus   `json:"status"`
}

// ReconciliationSummary holds the counters for one period.
type ReconciliationSummary struct {
	Period               DateRange       `json:"period"`
	TotalAggregates      int             `json:"totalAggregates"`
	TotalStatements      int             `json:"totalStatements"`
	AutoMatched          int             `json:"autoMatched"`
	ManuallyMatched      int             `json:"manuallyMatched"`
	Discrepancies        int             `json:"discrepancies"`
	Unreconciled         int             `json:"unreconciled"`
	TotalDifference      decimal.Decimal `json:"totalDifference"`
	PercentageReconciled float64         `json:"percentageReconciled"`
}
