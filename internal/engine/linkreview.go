package engine

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/atelier-north/studio-ops/internal/model"
	"github.com/atelier-north/studio-ops/internal/store"
)

// LinkReviewHandler reviews an existing low-confidence auto-link.
// Approving marks the link reviewed; rejecting deletes it. Either way the
// producing pattern's counters are updated, and a failure there never
// fails the review itself.
type LinkReviewHandler struct {
	Learner Learner
}

func (LinkReviewHandler) Type() string     { return model.TypeLinkReview }
func (LinkReviewHandler) Actionable() bool { return true }

func (h LinkReviewHandler) Validate(ctx context.Context, tx store.Tx, _ *model.Suggestion, data model.SuggestedData) []string {
	var errs []string
	if data.LinkID == "" {
		errs = append(errs, "link id is required")
	}
	if data.LinkTable == "" {
		errs = append(errs, "link table is required")
	}
	if len(errs) > 0 {
		return errs
	}
	if _, err := tx.GetLink(ctx, data.LinkTable, data.LinkID); err != nil {
		errs = append(errs, fmt.Sprintf("link %s not found in %s", data.LinkID, data.LinkTable))
	}
	return errs
}

func (h LinkReviewHandler) Preview(ctx context.Context, tx store.Tx, _ *model.Suggestion, data model.SuggestedData) (*model.ChangePreview, error) {
	link, err := tx.GetLink(ctx, data.LinkTable, data.LinkID)
	if err != nil {
		return nil, err
	}
	target := link.ProjectCode
	if target == "" {
		target = "proposal " + link.ProposalID
	}
	return &model.ChangePreview{
		TargetTable: data.LinkTable,
		Action:      model.ActionUpdate,
		Summary:     fmt.Sprintf("Confirm auto-link to %s (confidence %.2f)", target, link.Confidence),
		Changes:     []model.FieldChange{{Field: "reviewed", Old: "false", New: "true"}},
	}, nil
}

func (h LinkReviewHandler) Apply(ctx context.Context, tx store.Tx, sug *model.Suggestion, data model.SuggestedData) (*model.SuggestionResult, error) {
	link, err := tx.GetLink(ctx, data.LinkTable, data.LinkID)
	if err != nil {
		return nil, err
	}
	if err := tx.SetLinkReviewed(ctx, data.LinkTable, link.ID, true); err != nil {
		return nil, err
	}
	if err := recordChange(ctx, tx, sug.ID, data.LinkTable, link.ID, "reviewed",
		"false", "true", model.ActionUpdate); err != nil {
		return nil, err
	}
	h.rewardPattern(ctx, tx, link.PatternID, true)

	return &model.SuggestionResult{
		Success: true,
		Message: "link confirmed",
		Changes: []model.ChangeRecord{{Table: data.LinkTable, RecordID: link.ID, Kind: model.ActionUpdate}},
		RollbackData: map[string]any{
			"table":   data.LinkTable,
			"link_id": link.ID,
		},
	}, nil
}

// OnReject deletes the reviewed link and penalizes the producing pattern.
// Called by the review service inside the reject transaction.
func (h LinkReviewHandler) OnReject(ctx context.Context, tx store.Tx, sug *model.Suggestion, data model.SuggestedData) error {
	link, err := tx.GetLink(ctx, data.LinkTable, data.LinkID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil
		}
		return err
	}
	if err := tx.DeleteLink(ctx, data.LinkTable, link.ID); err != nil {
		return err
	}
	if err := recordChange(ctx, tx, sug.ID, data.LinkTable, link.ID, "",
		link.ProjectCode, "", model.ActionDelete); err != nil {
		return err
	}
	h.rewardPattern(ctx, tx, link.PatternID, false)
	return nil
}

func (h LinkReviewHandler) Rollback(ctx context.Context, tx store.Tx, rollback map[string]any) (bool, error) {
	table := rbString(rollback, "table")
	linkID := rbString(rollback, "link_id")
	if table == "" || linkID == "" {
		return false, eris.New("rollback data missing table or link_id")
	}
	if err := tx.SetLinkReviewed(ctx, table, linkID, false); err != nil {
		return false, err
	}
	return true, nil
}

func (h LinkReviewHandler) rewardPattern(ctx context.Context, tx store.Tx, patternID string, approved bool) {
	if patternID == "" || h.Learner == nil {
		return
	}
	var err error
	if approved {
		err = h.Learner.RewardLinkPattern(ctx, tx, patternID)
	} else {
		err = h.Learner.PenalizeLinkPattern(ctx, tx, patternID)
	}
	if err != nil {
		zap.L().Warn("engine: link review pattern update failed",
			zap.String("pattern_id", patternID),
			zap.Bool("approved", approved),
			zap.Error(err))
	}
}
