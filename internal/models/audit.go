package models

// AuditAction names a committed ledger mutation.
type AuditAction string

const (
	AuditAutoMatch         AuditAction = "AUTO_MATCH"
	AuditManualMatch       AuditAction = "MANUAL_MATCH"
	AuditUndoMatch         AuditAction = "UNDO_MATCH"
	AuditGroupCreate       AuditAction = "GROUP_CREATE"
	AuditGroupUndo         AuditAction = "GROUP_UNDO"
	AuditSettlementCreate  AuditAction = "SETTLEMENT_CREATE"
	AuditSettlementDelete  AuditAction = "SETTLEMENT_DELETE"
	AuditSettlementRestore AuditAction = "SETTLEMENT_RESTORE"
	AuditImport            AuditAction = "IMPORT"
)

// AuditEntry is one line of the audit journal.
type AuditEntry struct {
	// Seq is assigned by the journal, increasing with each append.
	Seq        uint64         `json:"seq"`
	Action     AuditAction    `json:"action"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Actor      string         `json:"actor,omitempty"`
	CompanyID  string         `json:"companyId,omitempty"`
	At         int64          `json:"at"`
	Details    map[string]any `json:"details,omitempty"`
}
