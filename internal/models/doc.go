// Package models defines the core domain models for posrecon.
//
// # Base records
//
// Two record kinds are owned by upstream subsystems and only have their
// match-state fields written here:
//   - BankStatement: one imported bank line (debit or credit)
//   - AggregatedTransaction: one POS revenue summary per date/branch/payment method
//
// # Link records
//
// The engine owns the records that tie the two together:
//   - ReconciliationGroup: one aggregate linked to many statements (multi-match)
//   - SettlementGroup: one statement linked to many aggregates (settlement)
//
// # Derived views
//
// DiscrepancyItem and ReconciliationSummary are computed from ledger state on
// every query and are never persisted.
//
// # Conventions
//
//  1. Money is decimal.Decimal and serializes as a JSON number
//  2. Transaction dates are calendar dates (Date), audit timestamps are Unix seconds
//  3. Relationships use ID strings, never pointers
//  4. Status and criteria tags are closed string types with Valid methods
package models

import "github.com/shopspring/decimal"

func init() {
	// Amounts leave the API as numbers, matching the POS and bank import formats.
	decimal.MarshalJSONWithoutQuotes = true
}
