package learning

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-north/studio-ops/internal/model"
	"github.com/atelier-north/studio-ops/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "learning.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return NewEngine(st), st
}

func TestProjectPrefix(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"25 AB: Harbor Lane", "25 AB"},
		{"25 AB-101", "25 AB"},
		{"25 AB-101: extension", "25 AB"},
		{"STUDIO", "STUDIO"},
		{"  25 AB-101  ", "25 AB"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ProjectPrefix(tt.in), tt.in)
	}
}

func TestRecordOutcomeKinds(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	sug := &model.Suggestion{
		ID:             "s-1",
		SuggestionType: model.TypeFeeChange,
		ProjectCode:    "25 AB-101",
		ReviewedBy:     "ana",
	}
	require.NoError(t, e.RecordOutcome(ctx, st, sug, "approved", nil))

	linkSug := &model.Suggestion{
		ID:             "s-2",
		SuggestionType: model.TypeEmailLink,
		ProjectCode:    "25 AB-101",
	}
	corrected := &model.SuggestedData{Extra: map[string]any{"project_code": "26 CD-200"}}
	require.NoError(t, e.RecordOutcome(ctx, st, linkSug, "modified", corrected))

	rows, err := st.ListUnincorporatedFeedback(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byID := map[string]model.Feedback{}
	for _, f := range rows {
		byID[f.SuggestionID] = f
	}
	assert.Equal(t, model.FeedbackSuggestion, byID["s-1"].Kind)
	assert.Equal(t, "approved", byID["s-1"].Outcome)
	assert.Equal(t, "ana", byID["s-1"].Actor)

	assert.Equal(t, model.FeedbackLink, byID["s-2"].Kind)
	assert.Equal(t, "25 AB-101", byID["s-2"].OriginalValue)
	assert.Equal(t, "26 CD-200", byID["s-2"].CorrectedValue)
}

func TestShouldSuppress(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	strong := &model.LearnedPattern{
		Name:       "suppress:fee_change:25 AB",
		Type:       model.PatternBusinessRule,
		Condition:  model.PatternCondition{SuggestionType: model.TypeFeeChange, ProjectPrefix: "25 AB"},
		Action:     model.PatternAction{Kind: model.PatternSuppress},
		Confidence: 0.8,
		Active:     true,
	}
	require.NoError(t, st.CreatePattern(ctx, strong))
	require.NoError(t, st.CreatePattern(ctx, &model.LearnedPattern{
		Name:       "suppress:task:26 CD",
		Type:       model.PatternBusinessRule,
		Condition:  model.PatternCondition{SuggestionType: model.TypeTask, ProjectPrefix: "26 CD"},
		Action:     model.PatternAction{Kind: model.PatternSuppress},
		Confidence: 0.65, // below the suppression threshold
		Active:     true,
	}))

	got, err := e.ShouldSuppress(ctx, st, model.TypeFeeChange, "25 AB-101")
	require.NoError(t, err)
	assert.True(t, got)

	got, err = e.ShouldSuppress(ctx, st, model.TypeFeeChange, "26 CD-200")
	require.NoError(t, err)
	assert.False(t, got, "prefix mismatch must not suppress")

	got, err = e.ShouldSuppress(ctx, st, model.TypeTask, "26 CD-200")
	require.NoError(t, err)
	assert.False(t, got, "weak patterns must not suppress")

	p, err := st.GetPattern(ctx, strong.ID)
	require.NoError(t, err)
	assert.NotNil(t, p.LastUsedAt, "a matching pattern is marked used")
}

func TestMineRejectionsCreatesSuppressionRule(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	for range 3 {
		require.NoError(t, st.RecordFeedback(ctx, &model.Feedback{
			Kind:           model.FeedbackSuggestion,
			SuggestionType: model.TypeFeeChange,
			ProjectCode:    "25 AB-101",
			Outcome:        "rejected",
		}))
	}
	// Below the evidence threshold; must not produce a rule.
	require.NoError(t, st.RecordFeedback(ctx, &model.Feedback{
		Kind:           model.FeedbackSuggestion,
		SuggestionType: model.TypeStatusChange,
		ProjectCode:    "26 CD-200",
		Outcome:        "rejected",
	}))

	result, err := e.MineRules(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RulesCreated)
	assert.Equal(t, 0, result.RulesUpdated)
	assert.Equal(t, []string{"suppress:fee_change:25 AB"}, result.PatternNames)

	p, err := st.GetPatternByName(ctx, "suppress:fee_change:25 AB")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, model.PatternBusinessRule, p.Type)
	assert.Equal(t, model.PatternSuppress, p.Action.Kind)
	assert.InDelta(t, 0.8, p.Confidence, 0.001) // 0.5 + 0.1*3
	assert.Equal(t, 3, p.EvidenceCount)

	// Consumed rows are gone; the under-threshold row keeps accumulating.
	rows, err := st.ListUnincorporatedFeedback(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.TypeStatusChange, rows[0].SuggestionType)

	// A repeat run never double-counts.
	result, err = e.MineRules(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, result.RulesCreated+result.RulesUpdated)
}

func TestMineRejectionsConfidenceCapped(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	for range 7 {
		require.NoError(t, st.RecordFeedback(ctx, &model.Feedback{
			Kind:           model.FeedbackSuggestion,
			SuggestionType: model.TypeTask,
			ProjectCode:    "25 AB-101",
			Outcome:        "rejected",
		}))
	}
	_, err := e.MineRules(ctx, 3)
	require.NoError(t, err)

	p, err := st.GetPatternByName(ctx, "suppress:task:25 AB")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.InDelta(t, 0.9, p.Confidence, 0.001, "0.5 + 0.1*7 caps at 0.9")
}

func TestMineCorrectionsCreatesAdjustment(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	lessons := []string{"use business days", "", "exclude holidays"}
	for _, lesson := range lessons {
		require.NoError(t, st.RecordFeedback(ctx, &model.Feedback{
			Kind:           model.FeedbackSuggestion,
			SuggestionType: model.TypeDeadline,
			Outcome:        "modified",
			Lesson:         lesson,
		}))
	}
	_, err := e.MineRules(ctx, 3)
	require.NoError(t, err)

	p, err := st.GetPatternByName(ctx, "adjust:deadline")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, model.PatternEntity, p.Type)
	assert.Equal(t, model.PatternAdjust, p.Action.Kind)
	assert.InDelta(t, 0.65, p.Confidence, 0.001)
	assert.ElementsMatch(t, []string{"use business days", "exclude holidays"}, p.Action.Lessons)

	// Adjustments surfaces it to generators.
	adj, err := e.Adjustments(ctx, st, model.TypeDeadline)
	require.NoError(t, err)
	require.Len(t, adj, 1)
	assert.Equal(t, "adjust:deadline", adj[0].Name)
}

func TestMineCategoryRemaps(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	for range 3 {
		require.NoError(t, st.RecordFeedback(ctx, &model.Feedback{
			Kind:           model.FeedbackCategory,
			SuggestionType: model.TypeInfo,
			Outcome:        "modified",
			OriginalValue:  "Admin",
			CorrectedValue: "Finance",
		}))
	}
	_, err := e.MineRules(ctx, 3)
	require.NoError(t, err)

	p, err := st.GetPatternByName(ctx, "category:Admin->Finance")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, model.PatternCategoryMap, p.Type)
	assert.Equal(t, "Admin", p.Condition.Category)
	assert.Equal(t, "Finance", p.Action.Category)
	assert.InDelta(t, 0.7, p.Confidence, 0.001)
}

func TestMineLinkRemaps(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	for range 3 {
		require.NoError(t, st.RecordFeedback(ctx, &model.Feedback{
			Kind:           model.FeedbackLink,
			SuggestionType: model.TypeEmailLink,
			Outcome:        "modified",
			OriginalValue:  "25 AB-101",
			CorrectedValue: "26 CD-200",
		}))
	}
	_, err := e.MineRules(ctx, 3)
	require.NoError(t, err)

	p, err := st.GetPatternByName(ctx, "link:26 CD-200")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, model.PatternLinkMap, p.Type)
	assert.Equal(t, "26 CD-200", p.Action.ProjectCode)
}

func TestMineRulesMergesIntoExistingPattern(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, st.CreatePattern(ctx, &model.LearnedPattern{
		Name:          "suppress:fee_change:25 AB",
		Type:          model.PatternBusinessRule,
		Condition:     model.PatternCondition{SuggestionType: model.TypeFeeChange, ProjectPrefix: "25 AB"},
		Action:        model.PatternAction{Kind: model.PatternSuppress},
		Confidence:    0.8,
		EvidenceCount: 3,
		Active:        true,
	}))
	for range 3 {
		require.NoError(t, st.RecordFeedback(ctx, &model.Feedback{
			Kind:           model.FeedbackSuggestion,
			SuggestionType: model.TypeFeeChange,
			ProjectCode:    "25 AB-102",
			Outcome:        "rejected",
		}))
	}

	result, err := e.MineRules(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, result.RulesCreated)
	assert.Equal(t, 1, result.RulesUpdated)

	p, err := st.GetPatternByName(ctx, "suppress:fee_change:25 AB")
	require.NoError(t, err)
	assert.InDelta(t, 0.85, p.Confidence, 0.001, "existing rule nudged, not duplicated")
	assert.Equal(t, 4, p.EvidenceCount)
}

func TestLinkPatternRewardAndPenalty(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	sender := &model.LearnedPattern{
		Name:       "sender:dana@harborlane.com",
		Type:       model.PatternSender,
		Condition:  model.PatternCondition{Sender: "dana@harborlane.com"},
		Action:     model.PatternAction{Kind: model.PatternMap, ProjectCode: "25 AB-101"},
		Confidence: 0.97,
		Active:     true,
	}
	require.NoError(t, st.CreatePattern(ctx, sender))

	// Two rewards: the second is absorbed by the sender ceiling.
	require.NoError(t, e.RewardLinkPattern(ctx, st, sender.ID))
	require.NoError(t, e.RewardLinkPattern(ctx, st, sender.ID))
	p, err := st.GetPattern(ctx, sender.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.98, p.Confidence, 0.001)

	weak := &model.LearnedPattern{
		Name:       "domain:harborlane.com",
		Type:       model.PatternDomain,
		Condition:  model.PatternCondition{Domain: "harborlane.com"},
		Action:     model.PatternAction{Kind: model.PatternMap, ProjectCode: "25 AB-101"},
		Confidence: 0.15,
		Active:     true,
	}
	require.NoError(t, st.CreatePattern(ctx, weak))

	require.NoError(t, e.PenalizeLinkPattern(ctx, st, weak.ID))
	p, err = st.GetPattern(ctx, weak.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, p.Confidence, 0.001, "penalty floors at 0.1")
}

func TestReinforceSenderAndDomainPatterns(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.ReinforceSenderPattern(ctx, st, "dana@harborlane.com", "25 AB-101", ""))
	p, err := st.GetPatternByName(ctx, "sender:dana@harborlane.com")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.InDelta(t, 0.85, p.Confidence, 0.001)
	assert.Equal(t, "25 AB-101", p.Action.ProjectCode)

	require.NoError(t, e.ReinforceSenderPattern(ctx, st, "dana@harborlane.com", "25 AB-101", ""))
	p, err = st.GetPatternByName(ctx, "sender:dana@harborlane.com")
	require.NoError(t, err)
	assert.InDelta(t, 0.90, p.Confidence, 0.001)
	assert.Equal(t, 2, p.EvidenceCount)

	require.NoError(t, e.ReinforceDomainPattern(ctx, st, "harborlane.com", "25 AB-101", ""))
	p, err = st.GetPatternByName(ctx, "domain:harborlane.com")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.InDelta(t, 0.70, p.Confidence, 0.001)
}

func TestValidatePatterns(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	justified := &model.LearnedPattern{
		Name:       "suppress:fee_change:25 AB",
		Type:       model.PatternBusinessRule,
		Condition:  model.PatternCondition{SuggestionType: model.TypeFeeChange, ProjectPrefix: "25 AB"},
		Action:     model.PatternAction{Kind: model.PatternSuppress},
		Confidence: 0.8,
		Active:     true,
	}
	stale := &model.LearnedPattern{
		Name:       "suppress:task:26 CD",
		Type:       model.PatternBusinessRule,
		Condition:  model.PatternCondition{SuggestionType: model.TypeTask, ProjectPrefix: "26 CD"},
		Action:     model.PatternAction{Kind: model.PatternSuppress},
		Confidence: 0.8,
		Active:     true,
	}
	require.NoError(t, st.CreatePattern(ctx, justified))
	require.NoError(t, st.CreatePattern(ctx, stale))

	seed := []struct {
		typ, code, outcome string
	}{
		{model.TypeFeeChange, "25 AB-101", "rejected"},
		{model.TypeFeeChange, "25 AB-102", "rejected"},
		{model.TypeFeeChange, "25 AB-101", "approved"},
		{model.TypeTask, "26 CD-200", "approved"},
		{model.TypeTask, "26 CD-200", "approved"},
		{model.TypeTask, "26 CD-200", "rejected"},
	}
	for _, s := range seed {
		require.NoError(t, st.RecordFeedback(ctx, &model.Feedback{
			Kind:           model.FeedbackSuggestion,
			SuggestionType: s.typ,
			ProjectCode:    s.code,
			Outcome:        s.outcome,
		}))
	}

	report, err := e.ValidatePatterns(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, report, 2)

	byName := map[string]PatternValidation{}
	for _, r := range report {
		byName[r.Name] = r
	}
	assert.True(t, byName["suppress:fee_change:25 AB"].Justified)
	assert.Equal(t, 2, byName["suppress:fee_change:25 AB"].Rejected)
	assert.Equal(t, 1, byName["suppress:fee_change:25 AB"].Approved)
	assert.False(t, byName["suppress:task:26 CD"].Justified)

	p, err := st.GetPattern(ctx, justified.ID)
	require.NoError(t, err)
	assert.NotNil(t, p.LastValidatedAt)

	p, err = st.GetPattern(ctx, stale.ID)
	require.NoError(t, err)
	assert.Nil(t, p.LastValidatedAt)
}
