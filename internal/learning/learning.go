// Package learning turns human review outcomes into reusable patterns:
// suppression rules, advisory adjustments, category and link remaps. It
// owns every write to the pattern store.
package learning

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/atelier-north/studio-ops/internal/model"
	"github.com/atelier-north/studio-ops/internal/store"
)

// Confidence bounds and nudges. Sender and domain link patterns carry
// their own caps; everything else caps at the general ceiling.
const (
	generalCap = 0.95
	senderCap  = 0.98
	domainCap  = 0.90

	suppressionCap   = 0.9
	suppressionFloor = 0.7 // ShouldSuppress threshold
	adjustmentFloor  = 0.6 // Adjustments threshold

	mergeNudge   = 0.05
	linkReward   = 0.02
	linkPenalty  = 0.1
	linkFloor    = 0.1
	decayFactor  = 0.9
	decayFloor   = 0.3
	defaultDecay = 30 * 24 * time.Hour
)

// DefaultMinEvidence is the number of matching feedback rows a signal
// needs before mining creates a pattern from it.
const DefaultMinEvidence = 3

// Engine is the learning/feedback engine.
type Engine struct {
	store store.Store
}

func NewEngine(st store.Store) *Engine {
	return &Engine{store: st}
}

// ProjectPrefix derives the canonical grouping prefix of a project code:
// the text before the first ':' when present, else before the first '-',
// else the whole code. Applied uniformly at every call site.
func ProjectPrefix(code string) string {
	code = strings.TrimSpace(code)
	if i := strings.Index(code, ":"); i >= 0 {
		return strings.TrimSpace(code[:i])
	}
	if i := strings.Index(code, "-"); i >= 0 {
		return strings.TrimSpace(code[:i])
	}
	return code
}

// capFor returns the confidence ceiling for a pattern type.
func capFor(typ model.PatternType) float64 {
	switch typ {
	case model.PatternSender:
		return senderCap
	case model.PatternDomain:
		return domainCap
	default:
		return generalCap
	}
}

// RecordOutcome persists one review event as feedback for later mining.
// Runs on the review transaction so the outcome and the status change
// commit together.
func (e *Engine) RecordOutcome(ctx context.Context, tx store.Tx, sug *model.Suggestion, outcome string, corrected *model.SuggestedData) error {
	f := &model.Feedback{
		Kind:           feedbackKind(sug, corrected),
		SuggestionID:   sug.ID,
		SuggestionType: sug.SuggestionType,
		ProjectCode:    sug.ProjectCode,
		Outcome:        outcome,
		Actor:          sug.ReviewedBy,
	}
	switch f.Kind {
	case model.FeedbackCategory:
		f.OriginalValue, _ = sug.SuggestedData.Extra["category"].(string)
		f.CorrectedValue, _ = corrected.Extra["category"].(string)
	case model.FeedbackLink:
		f.OriginalValue = sug.ProjectCode
		if corrected != nil {
			if code, ok := corrected.Extra["project_code"].(string); ok {
				f.CorrectedValue = code
			}
		}
	default:
		if corrected != nil {
			f.OriginalValue = sug.SuggestedAction
			if lesson, ok := corrected.Extra["lesson"].(string); ok {
				f.Lesson = lesson
			}
		}
	}
	return tx.RecordFeedback(ctx, f)
}

func feedbackKind(sug *model.Suggestion, corrected *model.SuggestedData) model.FeedbackKind {
	switch sug.SuggestionType {
	case model.TypeEmailLink, model.TypeTranscriptLink, model.TypeLinkReview:
		return model.FeedbackLink
	}
	if corrected != nil && corrected.Extra != nil {
		if _, ok := corrected.Extra["category"]; ok {
			return model.FeedbackCategory
		}
	}
	return model.FeedbackSuggestion
}

// ShouldSuppress reports whether an active business-rule pattern with
// confidence above the suppression threshold matches the suggestion type
// and, when the rule constrains a prefix, the project code's prefix.
func (e *Engine) ShouldSuppress(ctx context.Context, tx store.Tx, suggestionType, projectCode string) (bool, error) {
	patterns, err := tx.ListPatterns(ctx, model.PatternBusinessRule, true)
	if err != nil {
		return false, eris.Wrap(err, "learning: list suppression patterns")
	}
	prefix := ProjectPrefix(projectCode)
	for _, p := range patterns {
		if p.Confidence <= suppressionFloor {
			continue
		}
		if p.Condition.SuggestionType != suggestionType {
			continue
		}
		if p.Condition.ProjectPrefix != "" && p.Condition.ProjectPrefix != prefix {
			continue
		}
		if err := tx.TouchPatternUsed(ctx, p.ID); err != nil {
			zap.L().Warn("learning: touch pattern failed", zap.String("id", p.ID), zap.Error(err))
		}
		return true, nil
	}
	return false, nil
}

// Adjustments returns active advisory patterns for a suggestion type,
// for generators to consult. Confidence must clear the adjustment
// threshold.
func (e *Engine) Adjustments(ctx context.Context, tx store.Tx, suggestionType string) ([]model.LearnedPattern, error) {
	patterns, err := tx.ListPatterns(ctx, model.PatternEntity, true)
	if err != nil {
		return nil, eris.Wrap(err, "learning: list adjustment patterns")
	}
	var out []model.LearnedPattern
	for _, p := range patterns {
		if p.Confidence > adjustmentFloor && p.Condition.SuggestionType == suggestionType {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetLearnedPatterns lists patterns, optionally filtered by type and
// restricted to active rows.
func (e *Engine) GetLearnedPatterns(ctx context.Context, typ model.PatternType, activeOnly bool) ([]model.LearnedPattern, error) {
	return e.store.ListPatterns(ctx, typ, activeOnly)
}

// RewardLinkPattern nudges a link-producing pattern upward after an
// approved link, respecting the type-specific ceiling.
func (e *Engine) RewardLinkPattern(ctx context.Context, tx store.Tx, patternID string) error {
	p, err := tx.GetPattern(ctx, patternID)
	if err != nil {
		return err
	}
	return tx.ReinforcePattern(ctx, patternID, linkReward, capFor(p.Type))
}

// PenalizeLinkPattern drops a link-producing pattern's confidence after a
// rejected link, floored so one bad stretch doesn't erase the rule.
func (e *Engine) PenalizeLinkPattern(ctx context.Context, tx store.Tx, patternID string) error {
	return tx.PenalizePattern(ctx, patternID, linkPenalty, linkFloor)
}

// ReinforceSenderPattern upserts the sender→project mapping learned from
// an approved batch: a new pattern starts at 0.85, an existing one is
// nudged upward toward the sender ceiling.
func (e *Engine) ReinforceSenderPattern(ctx context.Context, tx store.Tx, sender, projectCode, proposalID string) error {
	return e.reinforceMapping(ctx, tx, model.PatternSender, "sender:"+sender,
		model.PatternCondition{Sender: sender}, projectCode, proposalID, 0.85)
}

// ReinforceDomainPattern upserts the domain→project mapping: new at
// 0.70, nudged toward the domain ceiling thereafter.
func (e *Engine) ReinforceDomainPattern(ctx context.Context, tx store.Tx, domain, projectCode, proposalID string) error {
	return e.reinforceMapping(ctx, tx, model.PatternDomain, "domain:"+domain,
		model.PatternCondition{Domain: domain}, projectCode, proposalID, 0.70)
}

func (e *Engine) reinforceMapping(ctx context.Context, tx store.Tx, typ model.PatternType, name string, cond model.PatternCondition, projectCode, proposalID string, initial float64) error {
	existing, err := tx.GetPatternByName(ctx, name)
	if err != nil {
		return eris.Wrapf(err, "learning: look up pattern %s", name)
	}
	if existing != nil {
		return tx.ReinforcePattern(ctx, existing.ID, mergeNudge, capFor(typ))
	}
	return tx.CreatePattern(ctx, &model.LearnedPattern{
		Name:      name,
		Type:      typ,
		Condition: cond,
		Action: model.PatternAction{
			Kind:        model.PatternMap,
			ProjectCode: projectCode,
			ProposalID:  proposalID,
		},
		Confidence:    initial,
		EvidenceCount: 1,
		Active:        true,
	})
}

// DecayPatterns reduces the confidence of patterns not validated within
// the window. Returns how many rows were touched.
func (e *Engine) DecayPatterns(ctx context.Context, daysThreshold int) (int, error) {
	window := defaultDecay
	if daysThreshold > 0 {
		window = time.Duration(daysThreshold) * 24 * time.Hour
	}
	n, err := e.store.DecayPatterns(ctx, window, decayFactor, decayFloor)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		zap.L().Info("learning: decayed stale patterns", zap.Int("count", n))
	}
	return n, nil
}

// PatternValidation is one row of a validation sweep report.
type PatternValidation struct {
	PatternID string `json:"pattern_id"`
	Name      string `json:"name"`
	Approved  int    `json:"approved"`
	Rejected  int    `json:"rejected"`
	Justified bool   `json:"justified"`
}

// ValidatePatterns samples recent review outcomes for each active
// business-rule pattern and reports whether rejections still outweigh
// approvals. Justified patterns get their validation timestamp refreshed
// (which shields them from the next decay sweep).
func (e *Engine) ValidatePatterns(ctx context.Context, window time.Duration) ([]PatternValidation, error) {
	if window <= 0 {
		window = 90 * 24 * time.Hour
	}
	patterns, err := e.store.ListPatterns(ctx, model.PatternBusinessRule, true)
	if err != nil {
		return nil, eris.Wrap(err, "learning: list patterns for validation")
	}

	since := time.Now().UTC().Add(-window)
	report := make([]PatternValidation, 0, len(patterns))
	for _, p := range patterns {
		approved, rejected, err := e.store.CountOutcomes(ctx, p.Condition.SuggestionType, p.Condition.ProjectPrefix, since)
		if err != nil {
			return nil, eris.Wrapf(err, "learning: count outcomes for %s", p.Name)
		}
		justified := rejected > approved
		if justified {
			if err := e.store.MarkPatternValidated(ctx, p.ID); err != nil {
				return nil, err
			}
		}
		report = append(report, PatternValidation{
			PatternID: p.ID,
			Name:      p.Name,
			Approved:  approved,
			Rejected:  rejected,
			Justified: justified,
		})
	}
	return report, nil
}
