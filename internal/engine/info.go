package engine

import (
	"context"

	"github.com/atelier-north/studio-ops/internal/model"
	"github.com/atelier-north/studio-ops/internal/store"
)

// InfoHandler services informational suggestions. Nothing to validate,
// nothing to mutate, nothing to undo.
type InfoHandler struct{}

func (InfoHandler) Type() string     { return model.TypeInfo }
func (InfoHandler) Actionable() bool { return false }

func (InfoHandler) Validate(context.Context, store.Tx, *model.Suggestion, model.SuggestedData) []string {
	return nil
}

func (InfoHandler) Preview(_ context.Context, _ store.Tx, sug *model.Suggestion, _ model.SuggestedData) (*model.ChangePreview, error) {
	return &model.ChangePreview{
		Action:  model.ActionNone,
		Summary: sug.Title,
	}, nil
}

func (InfoHandler) Apply(_ context.Context, _ store.Tx, _ *model.Suggestion, _ model.SuggestedData) (*model.SuggestionResult, error) {
	return &model.SuggestionResult{Success: true, Message: "noted"}, nil
}

func (InfoHandler) Rollback(context.Context, store.Tx, map[string]any) (bool, error) {
	return true, nil
}
