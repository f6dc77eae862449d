package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/atelier-north/studio-ops/internal/model"
	"github.com/atelier-north/studio-ops/internal/store"
)

// StatusChangeHandler transitions a proposal to a new pipeline status.
// Transitioning to "Sent" additionally stamps the sent date and bumps the
// send counter; both are captured in rollback data.
type StatusChangeHandler struct{}

func (StatusChangeHandler) Type() string     { return model.TypeStatusChange }
func (StatusChangeHandler) Actionable() bool { return true }

var titleCaser = cases.Title(language.English)

// NormalizeStatus maps legacy lower-case aliases ("in progress",
// "under review") to the canonical display form. Returns false when the
// result is outside the fixed status set.
func NormalizeStatus(s string) (string, bool) {
	candidate := titleCaser.String(strings.ToLower(strings.TrimSpace(s)))
	for _, valid := range model.ProposalStatuses {
		if candidate == valid {
			return valid, true
		}
	}
	return candidate, false
}

func (StatusChangeHandler) Validate(ctx context.Context, tx store.Tx, sug *model.Suggestion, data model.SuggestedData) []string {
	var errs []string
	if data.NewStatus == "" {
		errs = append(errs, "new status is required")
	} else if _, ok := NormalizeStatus(data.NewStatus); !ok {
		errs = append(errs, fmt.Sprintf("%q is not a valid status (one of: %s)",
			data.NewStatus, strings.Join(model.ProposalStatuses, ", ")))
	}
	if _, err := feeTarget(ctx, tx, sug); err != nil {
		errs = append(errs, "cannot resolve target proposal: "+err.Error())
	}
	return errs
}

func (StatusChangeHandler) Preview(ctx context.Context, tx store.Tx, sug *model.Suggestion, data model.SuggestedData) (*model.ChangePreview, error) {
	target, err := feeTarget(ctx, tx, sug)
	if err != nil {
		return nil, err
	}
	status, ok := NormalizeStatus(data.NewStatus)
	if !ok {
		return nil, eris.Errorf("invalid status %q", data.NewStatus)
	}
	changes := []model.FieldChange{{Field: "status", Old: target.Status, New: status}}
	if status == "Sent" {
		changes = append(changes,
			model.FieldChange{Field: "sent_date", Old: formatTimePtr(target.SentDate), New: "now"},
			model.FieldChange{Field: "send_count", Old: strconv.Itoa(target.SendCount), New: strconv.Itoa(target.SendCount + 1)},
		)
	}
	return &model.ChangePreview{
		TargetTable: "proposals",
		Action:      model.ActionUpdate,
		Summary:     fmt.Sprintf("Move %s from %s to %s", target.ProjectCode, target.Status, status),
		Changes:     changes,
	}, nil
}

func (StatusChangeHandler) Apply(ctx context.Context, tx store.Tx, sug *model.Suggestion, data model.SuggestedData) (*model.SuggestionResult, error) {
	target, err := feeTarget(ctx, tx, sug)
	if err != nil {
		return nil, err
	}
	status, ok := NormalizeStatus(data.NewStatus)
	if !ok {
		return nil, eris.Errorf("invalid status %q", data.NewStatus)
	}

	rollback := map[string]any{
		"table":            "proposals",
		"record_id":        target.ID,
		"prior_status":     target.Status,
		"prior_sent_date":  formatTimePtr(target.SentDate),
		"prior_send_count": target.SendCount,
	}

	sentDate := target.SentDate
	sendCount := target.SendCount
	if status == "Sent" {
		now := time.Now().UTC()
		sentDate = &now
		sendCount++
	}
	if err := tx.SetProposalStatus(ctx, target.ID, status, sentDate, sendCount); err != nil {
		return nil, err
	}

	if err := recordChange(ctx, tx, sug.ID, "proposals", target.ID, "status",
		target.Status, status, model.ActionUpdate); err != nil {
		return nil, err
	}
	if status == "Sent" {
		if err := recordChange(ctx, tx, sug.ID, "proposals", target.ID, "sent_date",
			formatTimePtr(target.SentDate), formatTimePtr(sentDate), model.ActionUpdate); err != nil {
			return nil, err
		}
		if err := recordChange(ctx, tx, sug.ID, "proposals", target.ID, "send_count",
			strconv.Itoa(target.SendCount), strconv.Itoa(sendCount), model.ActionUpdate); err != nil {
			return nil, err
		}
	}

	return &model.SuggestionResult{
		Success:      true,
		Message:      fmt.Sprintf("moved %s to %s", target.ProjectCode, status),
		Changes:      []model.ChangeRecord{{Table: "proposals", RecordID: target.ID, Kind: model.ActionUpdate}},
		RollbackData: rollback,
	}, nil
}

func (StatusChangeHandler) Rollback(ctx context.Context, tx store.Tx, rollback map[string]any) (bool, error) {
	id := rbString(rollback, "record_id")
	priorStatus := rbString(rollback, "prior_status")
	if id == "" || priorStatus == "" {
		return false, eris.New("rollback data missing record_id or prior_status")
	}

	var sentDate *time.Time
	if raw := rbString(rollback, "prior_sent_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return false, eris.Wrap(err, "parse prior sent date")
		}
		sentDate = &t
	}
	sendCount := 0
	if f, ok := rbFloat(rollback, "prior_send_count"); ok {
		sendCount = int(f)
	}

	if err := tx.SetProposalStatus(ctx, id, priorStatus, sentDate, sendCount); err != nil {
		return false, err
	}
	return true, nil
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
