package model

// ChangeAction is the kind of mutation a handler would perform.
type ChangeAction string

const (
	ActionInsert ChangeAction = "insert"
	ActionUpdate ChangeAction = "update"
	ActionDelete ChangeAction = "delete"
	ActionNone   ChangeAction = "none"
)

// FieldChange describes one field-level difference in a preview.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old,omitempty"`
	New   string `json:"new,omitempty"`
}

// ChangePreview is a non-persisted projection of what Apply would do.
// Computing a preview must never mutate state.
type ChangePreview struct {
	TargetTable string        `json:"target_table"`
	Action      ChangeAction  `json:"action"`
	Summary     string        `json:"summary"`
	Changes     []FieldChange `json:"changes,omitempty"`
}

// ChangeRecord identifies one concrete mutation made by Apply.
type ChangeRecord struct {
	Table    string       `json:"table"`
	RecordID string       `json:"record_id"`
	Kind     ChangeAction `json:"kind"`
}

// SuggestionResult is returned by a handler's Apply. RollbackData is the
// minimal payload needed to reverse exactly this application.
type SuggestionResult struct {
	Success      bool           `json:"success"`
	Message      string         `json:"message"`
	Changes      []ChangeRecord `json:"changes,omitempty"`
	RollbackData map[string]any `json:"rollback_data,omitempty"`
}
