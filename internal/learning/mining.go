package learning

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/atelier-north/studio-ops/internal/model"
	"github.com/atelier-north/studio-ops/internal/store"
)

// MiningResult summarizes one mining run.
type MiningResult struct {
	RulesCreated int      `json:"rules_created"`
	RulesUpdated int      `json:"rules_updated"`
	PatternNames []string `json:"pattern_names,omitempty"`
}

// MineRules scans unincorporated feedback for the four signal families
// and creates or reinforces patterns. Feedback that contributed to a
// pattern is marked incorporated so a repeat run never double-counts;
// rows still below the evidence threshold stay unconsumed and keep
// accumulating.
func (e *Engine) MineRules(ctx context.Context, minEvidence int) (*MiningResult, error) {
	if minEvidence <= 0 {
		minEvidence = DefaultMinEvidence
	}

	result := &MiningResult{}
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		feedback, err := tx.ListUnincorporatedFeedback(ctx)
		if err != nil {
			return eris.Wrap(err, "learning: list feedback")
		}
		if len(feedback) == 0 {
			return nil
		}

		var consumed []string
		for _, mine := range []func([]model.Feedback, int) []candidatePattern{
			mineRejections,
			mineCorrections,
			mineCategoryRemaps,
			mineLinkRemaps,
		} {
			for _, cand := range mine(feedback, minEvidence) {
				created, err := e.upsertPattern(ctx, tx, cand.pattern)
				if err != nil {
					return err
				}
				if created {
					result.RulesCreated++
				} else {
					result.RulesUpdated++
				}
				result.PatternNames = append(result.PatternNames, cand.pattern.Name)
				consumed = append(consumed, cand.feedbackIDs...)
			}
		}

		if len(consumed) == 0 {
			return nil
		}
		sort.Strings(consumed)
		consumed = dedupe(consumed)
		return tx.MarkFeedbackIncorporated(ctx, consumed)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("learning: mining complete",
		zap.Int("created", result.RulesCreated),
		zap.Int("updated", result.RulesUpdated))
	return result, nil
}

type candidatePattern struct {
	pattern     model.LearnedPattern
	feedbackIDs []string
}

// mineRejections: a suggestion type + project prefix rejected at least
// minEvidence times becomes a suppression rule. Confidence grows with the
// rejection count, capped below certainty so suppression stays reversible.
func mineRejections(feedback []model.Feedback, minEvidence int) []candidatePattern {
	type key struct{ sugType, prefix string }
	groups := map[key][]string{}
	for _, f := range feedback {
		if f.Outcome != "rejected" || f.SuggestionType == "" {
			continue
		}
		k := key{f.SuggestionType, ProjectPrefix(f.ProjectCode)}
		groups[k] = append(groups[k], f.ID)
	}

	var out []candidatePattern
	for k, ids := range groups {
		if len(ids) < minEvidence {
			continue
		}
		name := fmt.Sprintf("suppress:%s:%s", k.sugType, k.prefix)
		out = append(out, candidatePattern{
			pattern: model.LearnedPattern{
				Name: name,
				Type: model.PatternBusinessRule,
				Condition: model.PatternCondition{
					SuggestionType: k.sugType,
					ProjectPrefix:  k.prefix,
				},
				Action:        model.PatternAction{Kind: model.PatternSuppress},
				Confidence:    math.Min(0.5+0.1*float64(len(ids)), suppressionCap),
				EvidenceCount: len(ids),
				Active:        true,
			},
			feedbackIDs: ids,
		})
	}
	return sortCandidates(out)
}

// mineCorrections: a suggestion type repeatedly modified (not rejected)
// becomes an advisory adjustment pattern carrying the distilled lessons.
func mineCorrections(feedback []model.Feedback, minEvidence int) []candidatePattern {
	groups := map[string][]model.Feedback{}
	for _, f := range feedback {
		if f.Outcome != "modified" || f.Kind != model.FeedbackSuggestion || f.SuggestionType == "" {
			continue
		}
		groups[f.SuggestionType] = append(groups[f.SuggestionType], f)
	}

	var out []candidatePattern
	for sugType, rows := range groups {
		if len(rows) < minEvidence {
			continue
		}
		var ids, lessons []string
		for _, f := range rows {
			ids = append(ids, f.ID)
			if f.Lesson != "" {
				lessons = append(lessons, f.Lesson)
			}
		}
		out = append(out, candidatePattern{
			pattern: model.LearnedPattern{
				Name:      "adjust:" + sugType,
				Type:      model.PatternEntity,
				Condition: model.PatternCondition{SuggestionType: sugType},
				Action: model.PatternAction{
					Kind:    model.PatternAdjust,
					Lessons: lessons,
				},
				Confidence:    0.65,
				EvidenceCount: len(rows),
				Active:        true,
			},
			feedbackIDs: ids,
		})
	}
	return sortCandidates(out)
}

// mineCategoryRemaps: (wrong category → corrected category) pairs seen at
// least minEvidence times become a remap pattern.
func mineCategoryRemaps(feedback []model.Feedback, minEvidence int) []candidatePattern {
	type key struct{ from, to string }
	groups := map[key][]string{}
	for _, f := range feedback {
		if f.Kind != model.FeedbackCategory || f.OriginalValue == "" || f.CorrectedValue == "" {
			continue
		}
		groups[key{f.OriginalValue, f.CorrectedValue}] = append(groups[key{f.OriginalValue, f.CorrectedValue}], f.ID)
	}

	var out []candidatePattern
	for k, ids := range groups {
		if len(ids) < minEvidence {
			continue
		}
		out = append(out, candidatePattern{
			pattern: model.LearnedPattern{
				Name:      fmt.Sprintf("category:%s->%s", k.from, k.to),
				Type:      model.PatternCategoryMap,
				Condition: model.PatternCondition{Category: k.from},
				Action: model.PatternAction{
					Kind:     model.PatternMap,
					Category: k.to,
				},
				Confidence:    0.7,
				EvidenceCount: len(ids),
				Active:        true,
			},
			feedbackIDs: ids,
		})
	}
	return sortCandidates(out)
}

// mineLinkRemaps: corrected link targets seen at least minEvidence times
// become a "link to X" pattern.
func mineLinkRemaps(feedback []model.Feedback, minEvidence int) []candidatePattern {
	groups := map[string][]string{}
	for _, f := range feedback {
		if f.Kind != model.FeedbackLink || f.CorrectedValue == "" {
			continue
		}
		groups[f.CorrectedValue] = append(groups[f.CorrectedValue], f.ID)
	}

	var out []candidatePattern
	for target, ids := range groups {
		if len(ids) < minEvidence {
			continue
		}
		out = append(out, candidatePattern{
			pattern: model.LearnedPattern{
				Name:      "link:" + target,
				Type:      model.PatternLinkMap,
				Condition: model.PatternCondition{},
				Action: model.PatternAction{
					Kind:        model.PatternMap,
					ProjectCode: target,
				},
				Confidence:    0.7,
				EvidenceCount: len(ids),
				Active:        true,
			},
			feedbackIDs: ids,
		})
	}
	return sortCandidates(out)
}

// upsertPattern creates the pattern, or when an active pattern with the
// same name already exists, bumps its evidence count and nudges its
// confidence instead of inserting a duplicate row. The increment is an
// atomic SQL update, never a read-modify-write.
func (e *Engine) upsertPattern(ctx context.Context, tx store.Tx, p model.LearnedPattern) (created bool, err error) {
	existing, err := tx.GetPatternByName(ctx, p.Name)
	if err != nil {
		return false, eris.Wrapf(err, "learning: look up pattern %s", p.Name)
	}
	if existing != nil {
		if err := tx.ReinforcePattern(ctx, existing.ID, mergeNudge, generalCap); err != nil {
			return false, err
		}
		return false, nil
	}
	if err := tx.CreatePattern(ctx, &p); err != nil {
		return false, err
	}
	return true, nil
}

func sortCandidates(cands []candidatePattern) []candidatePattern {
	sort.Slice(cands, func(i, j int) bool { return cands[i].pattern.Name < cands[j].pattern.Name })
	return cands
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
