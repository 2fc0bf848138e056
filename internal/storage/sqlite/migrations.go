package sqlite

import "database/sql"

// schema contains the SQL statements to set up the database schema.
// These run on startup to ensure tables exist.
// Amounts are stored as decimal TEXT, dates as YYYY-MM-DD TEXT, timestamps as
// Unix seconds. Link columns use '' for "no link".
const schema = `
CREATE TABLE IF NOT EXISTS bank_statements (
    id TEXT PRIMARY KEY,
    company_id TEXT NOT NULL DEFAULT '',
    bank_account_id TEXT NOT NULL DEFAULT '',
    transaction_date TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    reference_number TEXT NOT NULL DEFAULT '',
    debit_amount TEXT NOT NULL DEFAULT '0',
    credit_amount TEXT NOT NULL DEFAULT '0',
    is_reconciled INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'PENDING'
        CHECK (status IN ('PENDING', 'AUTO_MATCHED', 'MANUALLY_MATCHED', 'DISCREPANCY', 'UNRECONCILED')),
    pre_match_status TEXT NOT NULL DEFAULT '',
    matched_aggregate_id TEXT NOT NULL DEFAULT '',
    reconciliation_group_id TEXT NOT NULL DEFAULT '',
    settlement_group_id TEXT NOT NULL DEFAULT '',
    match_criteria TEXT NOT NULL DEFAULT '',
    match_score REAL NOT NULL DEFAULT 0,
    matched_at INTEGER NOT NULL DEFAULT 0,
    matched_by TEXT NOT NULL DEFAULT '',
    notes TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS aggregated_transactions (
    id TEXT PRIMARY KEY,
    company_id TEXT NOT NULL DEFAULT '',
    branch_id TEXT NOT NULL DEFAULT '',
    branch_name TEXT NOT NULL DEFAULT '',
    payment_method TEXT NOT NULL DEFAULT '',
    transaction_date TEXT NOT NULL,
    reference_number TEXT NOT NULL DEFAULT '',
    gross_amount TEXT NOT NULL DEFAULT '0',
    nett_amount TEXT NOT NULL DEFAULT '0',
    is_reconciled INTEGER NOT NULL DEFAULT 0,
    matched_statement_id TEXT NOT NULL DEFAULT '',
    reconciliation_group_id TEXT NOT NULL DEFAULT '',
    settlement_group_id TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS reconciliation_groups (
    id TEXT PRIMARY KEY,
    company_id TEXT NOT NULL DEFAULT '',
    aggregate_id TEXT NOT NULL,
    transaction_date TEXT NOT NULL,
    total_bank_amount TEXT NOT NULL,
    aggregate_amount TEXT NOT NULL,
    difference TEXT NOT NULL,
    percent_difference REAL NOT NULL DEFAULT 0,
    status TEXT NOT NULL
        CHECK (status IN ('PENDING', 'RECONCILED', 'DISCREPANCY', 'UNDO')),
    notes TEXT NOT NULL DEFAULT '',
    reconciled_by TEXT NOT NULL DEFAULT '',
    reconciled_at INTEGER NOT NULL DEFAULT 0,
    undone_by TEXT NOT NULL DEFAULT '',
    undone_at INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    FOREIGN KEY (aggregate_id) REFERENCES aggregated_transactions(id)
);

CREATE TABLE IF NOT EXISTS reconciliation_group_details (
    group_id TEXT NOT NULL,
    statement_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    amount TEXT NOT NULL,
    transaction_date TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (group_id, statement_id),
    FOREIGN KEY (group_id) REFERENCES reconciliation_groups(id) ON DELETE CASCADE,
    FOREIGN KEY (statement_id) REFERENCES bank_statements(id)
);

CREATE TABLE IF NOT EXISTS settlement_groups (
    id TEXT PRIMARY KEY,
    settlement_number TEXT NOT NULL UNIQUE,
    company_id TEXT NOT NULL DEFAULT '',
    bank_statement_id TEXT NOT NULL,
    settlement_date TEXT NOT NULL,
    total_statement_amount TEXT NOT NULL,
    total_allocated_amount TEXT NOT NULL,
    difference TEXT NOT NULL,
    percent_difference REAL NOT NULL DEFAULT 0,
    status TEXT NOT NULL
        CHECK (status IN ('PENDING', 'RECONCILED', 'DISCREPANCY', 'UNDO')),
    notes TEXT NOT NULL DEFAULT '',
    created_by TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    confirmed_by TEXT NOT NULL DEFAULT '',
    confirmed_at INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL,
    is_deleted INTEGER NOT NULL DEFAULT 0,
    deleted_at INTEGER NOT NULL DEFAULT 0,
    deleted_by TEXT NOT NULL DEFAULT '',
    reconciliation_reverted INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (bank_statement_id) REFERENCES bank_statements(id)
);

CREATE TABLE IF NOT EXISTS settlement_group_aggregates (
    id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL,
    aggregate_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    original_amount TEXT NOT NULL,
    allocated_amount TEXT NOT NULL,
    branch_name TEXT NOT NULL DEFAULT '',
    payment_method TEXT NOT NULL DEFAULT '',
    transaction_date TEXT NOT NULL,
    UNIQUE (group_id, aggregate_id),
    FOREIGN KEY (group_id) REFERENCES settlement_groups(id) ON DELETE CASCADE,
    FOREIGN KEY (aggregate_id) REFERENCES aggregated_transactions(id)
);

CREATE TABLE IF NOT EXISTS settlement_sequences (
    day TEXT PRIMARY KEY,
    seq INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_statements_date ON bank_statements(transaction_date);
CREATE INDEX IF NOT EXISTS idx_statements_company_status ON bank_statements(company_id, status);
CREATE INDEX IF NOT EXISTS idx_aggregates_date ON aggregated_transactions(transaction_date);
CREATE INDEX IF NOT EXISTS idx_aggregates_company_open ON aggregated_transactions(company_id, is_reconciled);
CREATE INDEX IF NOT EXISTS idx_recon_groups_date ON reconciliation_groups(transaction_date);
CREATE INDEX IF NOT EXISTS idx_recon_group_details_statement ON reconciliation_group_details(statement_id);
CREATE INDEX IF NOT EXISTS idx_settlement_groups_date ON settlement_groups(settlement_date);
CREATE INDEX IF NOT EXISTS idx_settlement_aggregates_group ON settlement_group_aggregates(group_id);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
