package engine

import (
	"context"

	"github.com/atelier-north/studio-ops/internal/model"
	"github.com/atelier-north/studio-ops/internal/store"
)

// recordChange is the one way handlers write audit ledger rows. It runs
// on the same tx as the mutation it describes.
func recordChange(ctx context.Context, tx store.Tx, suggestionID, table, recordID, field, oldV, newV string, kind model.ChangeAction) error {
	return tx.RecordChange(ctx, &model.ChangeAudit{
		SuggestionID: suggestionID,
		TableName:    table,
		RecordID:     recordID,
		FieldName:    field,
		OldValue:     oldV,
		NewValue:     newV,
		ChangeKind:   kind,
	})
}

// rbString reads a string field out of unmarshalled rollback data.
func rbString(rb map[string]any, key string) string {
	if rb == nil {
		return ""
	}
	s, _ := rb[key].(string)
	return s
}

// rbFloat reads a numeric field out of unmarshalled rollback data.
// JSON numbers decode as float64.
func rbFloat(rb map[string]any, key string) (float64, bool) {
	if rb == nil {
		return 0, false
	}
	f, ok := rb[key].(float64)
	return f, ok
}
