package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/atelier-north/studio-ops/internal/model"
	"github.com/atelier-north/studio-ops/internal/resilience"
	"github.com/atelier-north/studio-ops/internal/store"
)

// Learner is the slice of the learning engine the review service needs.
// Outcome recording runs inside the review transaction; link-pattern
// confidence updates are non-fatal to the review itself.
type Learner interface {
	RecordOutcome(ctx context.Context, tx store.Tx, sug *model.Suggestion, outcome string, corrected *model.SuggestedData) error
	ShouldSuppress(ctx context.Context, tx store.Tx, suggestionType, projectCode string) (bool, error)
	RewardLinkPattern(ctx context.Context, tx store.Tx, patternID string) error
	PenalizeLinkPattern(ctx context.Context, tx store.Tx, patternID string) error
}

// Service orchestrates the suggestion lifecycle: generation from
// detections, review transitions, transactional apply and rollback.
type Service struct {
	store    store.Store
	registry *Registry
	learner  Learner
	retry    resilience.RetryConfig
}

func NewService(st store.Store, reg *Registry, learner Learner) *Service {
	retry := resilience.StoreRetryConfig()
	retry.OnRetry = resilience.RetryLogger("engine", "apply")
	return &Service{store: st, registry: reg, learner: learner, retry: retry}
}

// ReviewOutcome reports what a review call did.
type ReviewOutcome struct {
	Success bool   `json:"success"`
	Applied bool   `json:"applied"`
	Message string `json:"message,omitempty"`
}

// ValidationError carries the per-field validation messages a handler
// returned. It blocks apply and is surfaced verbatim to the reviewer.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// entityTypes maps detection entity kinds to suggestion types. Link
// entities resolve per source in GenerateSuggestions.
var entityTypes = map[model.EntityKind]string{
	model.EntityContact:    model.TypeNewContact,
	model.EntityFee:        model.TypeFeeChange,
	model.EntityStatus:     model.TypeStatusChange,
	model.EntityTask:       model.TypeTask,
	model.EntityCommitment: model.TypeCommitment,
	model.EntityMeeting:    model.TypeMeeting,
	model.EntityDeadline:   model.TypeDeadline,
}

// GenerateSuggestions turns one detection record into pending suggestions,
// one per extracted entity, skipping entities a suppression pattern
// matches and types with no registered handler.
func (s *Service) GenerateSuggestions(ctx context.Context, d model.Detection) ([]model.Suggestion, error) {
	var out []model.Suggestion
	for _, ent := range d.Entities {
		sugType, ok := s.entityType(d, ent)
		if !ok {
			zap.L().Warn("engine: skipping entity with no suggestion type",
				zap.String("kind", string(ent.Kind)))
			continue
		}
		if !s.registry.Has(sugType) {
			return nil, eris.Errorf("engine: no handler registered for type %q", sugType)
		}

		suppressed, err := s.learner.ShouldSuppress(ctx, s.store, sugType, d.LinkedProjectCode)
		if err != nil {
			return nil, eris.Wrap(err, "engine: suppression check")
		}
		if suppressed {
			zap.L().Info("engine: suggestion suppressed by learned pattern",
				zap.String("type", sugType),
				zap.String("project_code", d.LinkedProjectCode))
			continue
		}

		sug := model.Suggestion{
			SuggestionType:  sugType,
			Priority:        priorityFor(ent.Confidence),
			Confidence:      ent.Confidence,
			SourceType:      d.SourceType(),
			SourceID:        d.SourceID(),
			SourceReference: d.Subject,
			Title:           titleFor(sugType, ent),
			Description:     ent.Quoted,
			SuggestedData:   ent.Data,
			ProjectCode:     d.LinkedProjectCode,
			ProposalID:      d.LinkedProposalID,
		}
		fillLinkData(&sug, d)
		if err := s.store.CreateSuggestion(ctx, &sug); err != nil {
			return nil, eris.Wrap(err, "engine: create suggestion")
		}
		out = append(out, sug)
	}
	return out, nil
}

func (s *Service) entityType(d model.Detection, ent model.DetectedEntity) (string, bool) {
	if ent.Kind == model.EntityLink {
		if d.TranscriptID != "" {
			return model.TypeTranscriptLink, true
		}
		return model.TypeEmailLink, true
	}
	if ent.Kind == model.EntityContact && len(ent.Data.Updates) > 0 {
		return model.TypeUpdateContact, true
	}
	t, ok := entityTypes[ent.Kind]
	return t, ok
}

func fillLinkData(sug *model.Suggestion, d model.Detection) {
	if sug.SuggestionType != model.TypeEmailLink && sug.SuggestionType != model.TypeTranscriptLink {
		return
	}
	if sug.SuggestedData.EmailID == "" {
		sug.SuggestedData.EmailID = d.EmailID
	}
	if sug.SuggestedData.TranscriptID == "" {
		sug.SuggestedData.TranscriptID = d.TranscriptID
	}
}

func priorityFor(confidence float64) model.Priority {
	switch {
	case confidence >= 0.9:
		return model.PriorityHigh
	case confidence >= 0.7:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

func titleFor(sugType string, ent model.DetectedEntity) string {
	switch sugType {
	case model.TypeNewContact:
		return fmt.Sprintf("Add contact %s", ent.Data.Name)
	case model.TypeUpdateContact:
		return fmt.Sprintf("Update contact %s", ent.Data.ContactName)
	case model.TypeFeeChange:
		return "Update proposal fee"
	case model.TypeStatusChange:
		return fmt.Sprintf("Change status to %s", ent.Data.NewStatus)
	case model.TypeEmailLink:
		return "Link email to project"
	case model.TypeTranscriptLink:
		return "Link transcript to project"
	default:
		if ent.Data.ItemTitle != "" {
			return fmt.Sprintf("Create %s: %s", sugType, ent.Data.ItemTitle)
		}
		return "Create " + sugType
	}
}

// ListPending returns pending suggestions matching the filter.
func (s *Service) ListPending(ctx context.Context, f model.SuggestionFilter) ([]model.Suggestion, error) {
	f.Status = model.SuggestionPending
	return s.store.ListSuggestions(ctx, f)
}

// Preview computes what applying the suggestion would do, without
// mutating anything.
func (s *Service) Preview(ctx context.Context, id string) (*model.ChangePreview, error) {
	sug, err := s.store.GetSuggestion(ctx, id)
	if err != nil {
		return nil, err
	}
	h, ok := s.registry.Get(sug.SuggestionType)
	if !ok {
		return nil, eris.Errorf("engine: no handler registered for type %q", sug.SuggestionType)
	}
	return h.Preview(ctx, s.store, sug, sug.SuggestedData)
}

// Approve marks a pending suggestion approved and, when applyChanges is
// set, applies it in one transaction. An apply failure leaves the
// suggestion approved-unapplied so the apply can be retried. A suggestion
// stuck modified-unapplied after a failed Modify apply is also accepted
// here; the retry uses its recorded correction.
func (s *Service) Approve(ctx context.Context, id, reviewer string, applyChanges bool) (*ReviewOutcome, error) {
	sug, err := s.store.GetSuggestion(ctx, id)
	if err != nil {
		return nil, err
	}
	switch sug.Status {
	case model.SuggestionPending, model.SuggestionApproved, model.SuggestionModified:
	default:
		return nil, eris.Errorf("engine: suggestion %s is %s, not reviewable", id, sug.Status)
	}
	h, ok := s.registry.Get(sug.SuggestionType)
	if !ok {
		return nil, eris.Errorf("engine: no handler registered for type %q", sug.SuggestionType)
	}

	if sug.Status == model.SuggestionPending {
		err = s.store.InTx(ctx, func(tx store.Tx) error {
			if err := tx.UpdateSuggestionReview(ctx, id, model.SuggestionApproved, reviewer, ""); err != nil {
				return err
			}
			return s.learner.RecordOutcome(ctx, tx, sug, "approved", nil)
		})
		if err != nil {
			return nil, err
		}
		sug.Status = model.SuggestionApproved
		s.feedLinkOutcome(ctx, sug, true)
	}

	data := sug.SuggestedData
	if sug.Status == model.SuggestionModified && sug.CorrectionData != nil {
		data = *sug.CorrectionData
	}

	if !applyChanges || !h.Actionable() {
		return &ReviewOutcome{Success: true, Message: "approved"}, nil
	}
	result, err := s.apply(ctx, h, sug, data)
	if err != nil {
		return nil, err
	}
	return &ReviewOutcome{Success: true, Applied: true, Message: result.Message}, nil
}

// Rejecter is implemented by handlers that need to act on rejection (the
// link-review handler deletes the rejected link). Runs inside the reject
// transaction.
type Rejecter interface {
	OnReject(ctx context.Context, tx store.Tx, sug *model.Suggestion, data model.SuggestedData) error
}

// Reject marks a pending suggestion rejected. Nothing is applied, but
// handlers implementing Rejecter get to act on the rejection.
func (s *Service) Reject(ctx context.Context, id, reviewer, reason string) (*ReviewOutcome, error) {
	sug, err := s.store.GetSuggestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if sug.Status != model.SuggestionPending {
		return nil, eris.Errorf("engine: suggestion %s is %s, not reviewable", id, sug.Status)
	}
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.UpdateSuggestionReview(ctx, id, model.SuggestionRejected, reviewer, reason); err != nil {
			return err
		}
		if h, ok := s.registry.Get(sug.SuggestionType); ok {
			if rej, ok := h.(Rejecter); ok {
				if err := rej.OnReject(ctx, tx, sug, sug.SuggestedData); err != nil {
					return eris.Wrapf(err, "engine: reject %s", sug.SuggestionType)
				}
			}
		}
		return s.learner.RecordOutcome(ctx, tx, sug, "rejected", nil)
	})
	if err != nil {
		return nil, err
	}
	s.feedLinkOutcome(ctx, sug, false)
	return &ReviewOutcome{Success: true, Message: "rejected"}, nil
}

// Modify records the reviewer's corrected payload, marks the suggestion
// modified, and applies the corrected data when applyChanges is set. The
// original/corrected pair is recorded as feedback for mining.
func (s *Service) Modify(ctx context.Context, id, reviewer string, corrected model.SuggestedData, applyChanges bool) (*ReviewOutcome, error) {
	sug, err := s.store.GetSuggestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if sug.Status != model.SuggestionPending {
		return nil, eris.Errorf("engine: suggestion %s is %s, not reviewable", id, sug.Status)
	}
	h, ok := s.registry.Get(sug.SuggestionType)
	if !ok {
		return nil, eris.Errorf("engine: no handler registered for type %q", sug.SuggestionType)
	}

	err = s.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.SetSuggestionCorrection(ctx, id, &corrected); err != nil {
			return err
		}
		if err := tx.UpdateSuggestionReview(ctx, id, model.SuggestionModified, reviewer, ""); err != nil {
			return err
		}
		return s.learner.RecordOutcome(ctx, tx, sug, "modified", &corrected)
	})
	if err != nil {
		return nil, err
	}
	sug.Status = model.SuggestionModified

	if !applyChanges || !h.Actionable() {
		return &ReviewOutcome{Success: true, Message: "modified"}, nil
	}
	result, err := s.apply(ctx, h, sug, corrected)
	if err != nil {
		return nil, err
	}
	return &ReviewOutcome{Success: true, Applied: true, Message: result.Message}, nil
}

// apply validates and applies inside one transaction. Validation failures
// and apply errors abort the transaction; the suggestion keeps its
// reviewed (approved/modified) status so a retry is possible. Write
// contention (sqlite busy, postgres serialization failure) retries the
// whole transaction.
func (s *Service) apply(ctx context.Context, h Handler, sug *model.Suggestion, data model.SuggestedData) (*model.SuggestionResult, error) {
	return resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*model.SuggestionResult, error) {
		var result *model.SuggestionResult
		err := s.store.InTx(ctx, func(tx store.Tx) error {
			if errs := h.Validate(ctx, tx, sug, data); len(errs) > 0 {
				return &ValidationError{Errors: errs}
			}
			r, err := h.Apply(ctx, tx, sug, data)
			if err != nil {
				return eris.Wrapf(err, "engine: apply %s", sug.SuggestionType)
			}
			if !r.Success {
				return eris.Errorf("engine: apply %s: %s", sug.SuggestionType, r.Message)
			}
			result = r
			return tx.MarkSuggestionApplied(ctx, sug.ID, r.RollbackData)
		})
		if err != nil {
			return nil, err
		}
		return result, nil
	})
}

// Rollback reverses an applied suggestion using its stored rollback data,
// marks the audit entries rolled back, and returns the suggestion to the
// approved (unapplied) state.
func (s *Service) Rollback(ctx context.Context, id string) (bool, error) {
	sug, err := s.store.GetSuggestion(ctx, id)
	if err != nil {
		return false, err
	}
	if sug.Status != model.SuggestionApplied {
		return false, eris.Errorf("engine: suggestion %s is %s, not applied", id, sug.Status)
	}
	h, ok := s.registry.Get(sug.SuggestionType)
	if !ok {
		return false, eris.Errorf("engine: no handler registered for type %q", sug.SuggestionType)
	}

	var ok2 bool
	err = resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.store.InTx(ctx, func(tx store.Tx) error {
			done, err := h.Rollback(ctx, tx, sug.RollbackData)
			if err != nil {
				return eris.Wrapf(err, "engine: rollback %s", sug.SuggestionType)
			}
			if !done {
				return eris.Errorf("engine: rollback %s: handler could not reverse", id)
			}
			if _, err := tx.MarkChangesRolledBack(ctx, id); err != nil {
				return err
			}
			if err := tx.ClearSuggestionApplied(ctx, id); err != nil {
				return err
			}
			ok2 = true
			return nil
		})
	})
	return ok2, err
}

// feedLinkOutcome feeds an email/transcript link review back into the
// producing pattern's confidence. Failures here never fail the review.
func (s *Service) feedLinkOutcome(ctx context.Context, sug *model.Suggestion, approved bool) {
	if sug.SuggestionType != model.TypeEmailLink && sug.SuggestionType != model.TypeTranscriptLink {
		return
	}
	patternID := sug.SuggestedData.PatternID
	if patternID == "" {
		return
	}
	var err error
	if approved {
		err = s.learner.RewardLinkPattern(ctx, s.store, patternID)
	} else {
		err = s.learner.PenalizeLinkPattern(ctx, s.store, patternID)
	}
	if err != nil {
		zap.L().Warn("engine: link pattern update failed",
			zap.String("pattern_id", patternID),
			zap.Bool("approved", approved),
			zap.Error(err))
	}
}
