package model

import "time"

// ChangeAudit is one row of the append-only change ledger: a single field
// or record mutation made on behalf of a suggestion. Rows are written by
// handlers inside the same transaction as the mutation itself and are
// never modified afterwards except to flip RolledBack during rollback.
type ChangeAudit struct {
	ID           string       `json:"id"`
	SuggestionID string       `json:"suggestion_id"`
	TableName    string       `json:"table_name"`
	RecordID     string       `json:"record_id"`
	FieldName    string       `json:"field_name,omitempty"` // empty for insert/delete
	OldValue     string       `json:"old_value,omitempty"`
	NewValue     string       `json:"new_value,omitempty"`
	ChangeKind   ChangeAction `json:"change_kind"`
	RolledBack   bool         `json:"rolled_back"`
	RolledBackAt *time.Time   `json:"rolled_back_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}
