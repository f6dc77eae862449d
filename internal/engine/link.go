package engine

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/atelier-north/studio-ops/internal/model"
	"github.com/atelier-north/studio-ops/internal/store"
)

// linkHandler links an email or transcript to a project or proposal.
// Shared implementation behind the email_link and transcript_link types;
// the table is fixed by the suggestion type, the target key (project code
// or proposal id) selects the link column.
type linkHandler struct {
	sugType string
	table   string
}

// NewEmailLinkHandler links emails to projects/proposals.
func NewEmailLinkHandler() Handler {
	return linkHandler{sugType: model.TypeEmailLink, table: model.TableEmailLinks}
}

// NewTranscriptLinkHandler links meeting transcripts to projects/proposals.
func NewTranscriptLinkHandler() Handler {
	return linkHandler{sugType: model.TypeTranscriptLink, table: model.TableTranscriptLinks}
}

func (h linkHandler) Type() string     { return h.sugType }
func (h linkHandler) Actionable() bool { return true }

func (h linkHandler) sourceID(data model.SuggestedData) string {
	if h.sugType == model.TypeTranscriptLink {
		return data.TranscriptID
	}
	return data.EmailID
}

func (h linkHandler) Validate(ctx context.Context, tx store.Tx, sug *model.Suggestion, data model.SuggestedData) []string {
	var errs []string
	sourceID := h.sourceID(data)
	if sourceID == "" {
		errs = append(errs, "source id is required")
	}
	if sug.ProjectCode == "" && sug.ProposalID == "" {
		errs = append(errs, "a project code or proposal id is required")
	}
	if len(errs) > 0 {
		return errs
	}

	exists, err := tx.LinkExists(ctx, h.table, sourceID, sug.ProjectCode, sug.ProposalID)
	if err != nil {
		return []string{"could not check for duplicate link: " + err.Error()}
	}
	if exists {
		errs = append(errs, fmt.Sprintf("link already exists for %s", sourceID))
	}
	return errs
}

func (h linkHandler) Preview(ctx context.Context, tx store.Tx, sug *model.Suggestion, data model.SuggestedData) (*model.ChangePreview, error) {
	target := sug.ProjectCode
	if target == "" {
		target = "proposal " + sug.ProposalID
	}
	return &model.ChangePreview{
		TargetTable: h.table,
		Action:      model.ActionInsert,
		Summary:     fmt.Sprintf("Link %s to %s", h.sourceID(data), target),
		Changes: []model.FieldChange{
			{Field: "source_id", New: h.sourceID(data)},
			{Field: "project_code", New: sug.ProjectCode},
			{Field: "proposal_id", New: sug.ProposalID},
		},
	}, nil
}

func (h linkHandler) Apply(ctx context.Context, tx store.Tx, sug *model.Suggestion, data model.SuggestedData) (*model.SuggestionResult, error) {
	sourceID := h.sourceID(data)

	// Re-checked under the apply transaction; two overlapping approvals
	// must not produce two rows.
	exists, err := tx.LinkExists(ctx, h.table, sourceID, sug.ProjectCode, sug.ProposalID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, eris.Errorf("link already exists for %s", sourceID)
	}

	link := &model.ProjectLink{
		EmailID:      data.EmailID,
		TranscriptID: data.TranscriptID,
		ProjectCode:  sug.ProjectCode,
		ProposalID:   sug.ProposalID,
		Confidence:   sug.Confidence,
		PatternID:    data.PatternID,
		Reviewed:     true,
	}
	if err := tx.CreateLink(ctx, h.table, link); err != nil {
		return nil, err
	}
	if err := recordChange(ctx, tx, sug.ID, h.table, link.ID, "", "", sourceID, model.ActionInsert); err != nil {
		return nil, err
	}

	return &model.SuggestionResult{
		Success: true,
		Message: fmt.Sprintf("linked %s", sourceID),
		Changes: []model.ChangeRecord{{Table: h.table, RecordID: link.ID, Kind: model.ActionInsert}},
		RollbackData: map[string]any{
			"table":   h.table,
			"link_id": link.ID,
		},
	}, nil
}

func (h linkHandler) Rollback(ctx context.Context, tx store.Tx, rollback map[string]any) (bool, error) {
	table := rbString(rollback, "table")
	linkID := rbString(rollback, "link_id")
	if table == "" || linkID == "" {
		return false, eris.New("rollback data missing table or link_id")
	}
	if err := tx.DeleteLink(ctx, table, linkID); err != nil {
		return false, err
	}
	return true, nil
}
