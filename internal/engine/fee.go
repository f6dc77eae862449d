package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/atelier-north/studio-ops/internal/model"
	"github.com/atelier-north/studio-ops/internal/money"
	"github.com/atelier-north/studio-ops/internal/store"
)

// FeeChangeHandler updates a proposal's value from detected fee text.
// The first parseable candidate from the amounts list wins.
type FeeChangeHandler struct{}

func (FeeChangeHandler) Type() string     { return model.TypeFeeChange }
func (FeeChangeHandler) Actionable() bool { return true }

func feeTarget(ctx context.Context, tx store.Tx, sug *model.Suggestion) (*model.Proposal, error) {
	if sug.ProposalID != "" {
		return tx.GetProposalByID(ctx, sug.ProposalID)
	}
	if sug.ProjectCode != "" {
		p, err := tx.GetProposalByCode(ctx, sug.ProjectCode)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, eris.Errorf("no proposal for project code %s", sug.ProjectCode)
		}
		return p, nil
	}
	return nil, eris.New("suggestion names no proposal or project code")
}

func (FeeChangeHandler) Validate(ctx context.Context, tx store.Tx, sug *model.Suggestion, data model.SuggestedData) []string {
	var errs []string
	if len(data.Amounts) == 0 {
		errs = append(errs, "no amount candidates supplied")
	} else if _, _, err := money.ParseFirst(data.Amounts); err != nil {
		errs = append(errs, fmt.Sprintf("no parseable amount among [%s]", strings.Join(data.Amounts, ", ")))
	}
	if _, err := feeTarget(ctx, tx, sug); err != nil {
		errs = append(errs, "cannot resolve target proposal: "+err.Error())
	}
	return errs
}

func (FeeChangeHandler) Preview(ctx context.Context, tx store.Tx, sug *model.Suggestion, data model.SuggestedData) (*model.ChangePreview, error) {
	target, err := feeTarget(ctx, tx, sug)
	if err != nil {
		return nil, err
	}
	value, raw, err := money.ParseFirst(data.Amounts)
	if err != nil {
		return nil, err
	}
	return &model.ChangePreview{
		TargetTable: "proposals",
		Action:      model.ActionUpdate,
		Summary:     fmt.Sprintf("Set %s value to %s", target.ProjectCode, raw),
		Changes: []model.FieldChange{{
			Field: "value",
			Old:   formatValue(target.Value),
			New:   formatValue(value),
		}},
	}, nil
}

func (FeeChangeHandler) Apply(ctx context.Context, tx store.Tx, sug *model.Suggestion, data model.SuggestedData) (*model.SuggestionResult, error) {
	target, err := feeTarget(ctx, tx, sug)
	if err != nil {
		return nil, err
	}
	value, raw, err := money.ParseFirst(data.Amounts)
	if err != nil {
		return nil, err
	}
	prior := target.Value
	if err := tx.SetProposalValue(ctx, target.ID, value); err != nil {
		return nil, err
	}
	if err := recordChange(ctx, tx, sug.ID, "proposals", target.ID, "value",
		formatValue(prior), formatValue(value), model.ActionUpdate); err != nil {
		return nil, err
	}
	return &model.SuggestionResult{
		Success: true,
		Message: fmt.Sprintf("set %s value to %s (from %q)", target.ProjectCode, formatValue(value), raw),
		Changes: []model.ChangeRecord{{Table: "proposals", RecordID: target.ID, Kind: model.ActionUpdate}},
		RollbackData: map[string]any{
			"table":       "proposals",
			"record_id":   target.ID,
			"prior_value": prior,
		},
	}, nil
}

func (FeeChangeHandler) Rollback(ctx context.Context, tx store.Tx, rollback map[string]any) (bool, error) {
	id := rbString(rollback, "record_id")
	prior, ok := rbFloat(rollback, "prior_value")
	if id == "" || !ok {
		return false, eris.New("rollback data missing record_id or prior_value")
	}
	if err := tx.SetProposalValue(ctx, id, prior); err != nil {
		return false, err
	}
	return true, nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
