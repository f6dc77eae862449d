package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-north/studio-ops/internal/learning"
	"github.com/atelier-north/studio-ops/internal/model"
	"github.com/atelier-north/studio-ops/internal/store"
)

func newTestService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	learner := learning.NewEngine(st)
	return NewService(st, DefaultRegistry(learner), learner), st
}

func seedProposal(t *testing.T, st store.Store, code string, value float64) *model.Proposal {
	t.Helper()
	p := &model.Proposal{ProjectCode: code, ClientName: "Harbor Lane", Value: value}
	require.NoError(t, st.CreateProposal(context.Background(), p))
	return p
}

func pendingSuggestion(t *testing.T, st store.Store, sug *model.Suggestion) *model.Suggestion {
	t.Helper()
	sug.Status = model.SuggestionPending
	sug.SourceType = model.SourceEmail
	require.NoError(t, st.CreateSuggestion(context.Background(), sug))
	return sug
}

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry(nil)

	assert.Len(t, reg.Types(), 12)
	for _, typ := range []string{
		model.TypeNewContact, model.TypeUpdateContact, model.TypeFeeChange,
		model.TypeStatusChange, model.TypeEmailLink, model.TypeTranscriptLink,
		model.TypeTask, model.TypeCommitment, model.TypeMeeting,
		model.TypeDeadline, model.TypeLinkReview, model.TypeInfo,
	} {
		assert.True(t, reg.Has(typ), typ)
	}
	assert.NotContains(t, reg.ActionableTypes(), model.TypeInfo)
	assert.Contains(t, reg.ActionableTypes(), model.TypeFeeChange)
}

func TestGenerateSuggestions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	d := model.Detection{
		EmailID:           "em-1",
		Sender:            "dana@harborlane.com",
		Subject:           "Re: 25 AB-101 fee",
		LinkedProjectCode: "25 AB-101",
		Entities: []model.DetectedEntity{
			{Kind: model.EntityFee, Confidence: 0.92, Quoted: "revised fee of $50,000",
				Data: model.SuggestedData{Amounts: []string{"$50,000"}}},
			{Kind: model.EntityTask, Confidence: 0.6,
				Data: model.SuggestedData{ItemTitle: "Send revised schedule"}},
		},
	}
	out, err := svc.GenerateSuggestions(ctx, d)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, model.TypeFeeChange, out[0].SuggestionType)
	assert.Equal(t, model.PriorityHigh, out[0].Priority)
	assert.Equal(t, model.SourceEmail, out[0].SourceType)
	assert.Equal(t, "em-1", out[0].SourceID)
	assert.Equal(t, "25 AB-101", out[0].ProjectCode)
	assert.Equal(t, model.SuggestionPending, out[0].Status)

	assert.Equal(t, model.TypeTask, out[1].SuggestionType)
	assert.Equal(t, model.PriorityLow, out[1].Priority)
}

func TestGenerateSuggestionsLinkSource(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	out, err := svc.GenerateSuggestions(ctx, model.Detection{
		TranscriptID:      "tr-1",
		LinkedProjectCode: "25 AB-101",
		Entities:          []model.DetectedEntity{{Kind: model.EntityLink, Confidence: 0.8}},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, model.TypeTranscriptLink, out[0].SuggestionType)
	assert.Equal(t, model.SourceTranscript, out[0].SourceType)
	assert.Equal(t, "tr-1", out[0].SuggestedData.TranscriptID)
}

func TestGenerateSuggestionsSuppressed(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	require.NoError(t, st.CreatePattern(ctx, &model.LearnedPattern{
		Name: "suppress:fee_change:25 AB",
		Type: model.PatternBusinessRule,
		Condition: model.PatternCondition{
			SuggestionType: model.TypeFeeChange,
			ProjectPrefix:  "25 AB",
		},
		Action:     model.PatternAction{Kind: model.PatternSuppress},
		Confidence: 0.8,
		Active:     true,
	}))

	out, err := svc.GenerateSuggestions(ctx, model.Detection{
		EmailID:           "em-2",
		LinkedProjectCode: "25 AB-101",
		Entities: []model.DetectedEntity{
			{Kind: model.EntityFee, Confidence: 0.9, Data: model.SuggestedData{Amounts: []string{"$10k"}}},
			{Kind: model.EntityMeeting, Confidence: 0.9, Data: model.SuggestedData{ItemTitle: "Kickoff"}},
		},
	})
	require.NoError(t, err)
	require.Len(t, out, 1, "fee suggestion should be suppressed, meeting kept")
	assert.Equal(t, model.TypeMeeting, out[0].SuggestionType)
}

func TestFeeChangeLifecycle(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	seedProposal(t, st, "25 AB-101", 40000)
	sug := pendingSuggestion(t, st, &model.Suggestion{
		SuggestionType: model.TypeFeeChange,
		Confidence:     0.9,
		ProjectCode:    "25 AB-101",
		SuggestedData:  model.SuggestedData{Amounts: []string{"fifty grand or so", "$50,000"}},
	})

	preview, err := svc.Preview(ctx, sug.ID)
	require.NoError(t, err)
	assert.Equal(t, "proposals", preview.TargetTable)
	assert.Equal(t, model.ActionUpdate, preview.Action)
	require.Len(t, preview.Changes, 1)
	assert.Equal(t, "40000", preview.Changes[0].Old)
	assert.Equal(t, "50000", preview.Changes[0].New)

	outcome, err := svc.Approve(ctx, sug.ID, "ana", true)
	require.NoError(t, err)
	assert.True(t, outcome.Applied)

	got, err := st.GetSuggestion(ctx, sug.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SuggestionApplied, got.Status)
	assert.NotEmpty(t, got.RollbackData["record_id"])

	p, err := st.GetProposalByCode(ctx, "25 AB-101")
	require.NoError(t, err)
	assert.InDelta(t, 50000, p.Value, 0.001)

	// An applied suggestion is terminal for review.
	_, err = svc.Approve(ctx, sug.ID, "ana", true)
	assert.Error(t, err)

	ok, err := svc.Rollback(ctx, sug.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	p, err = st.GetProposalByCode(ctx, "25 AB-101")
	require.NoError(t, err)
	assert.InDelta(t, 40000, p.Value, 0.001)

	got, err = st.GetSuggestion(ctx, sug.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SuggestionApproved, got.Status)

	changes, err := st.ListChanges(ctx, sug.ID)
	require.NoError(t, err)
	require.NotEmpty(t, changes)
	for _, c := range changes {
		assert.True(t, c.RolledBack)
		assert.NotNil(t, c.RolledBackAt)
	}

	_, err = svc.Rollback(ctx, sug.ID)
	assert.Error(t, err, "second rollback has nothing applied to reverse")
}

func TestApproveWithoutApplyThenRetry(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	seedProposal(t, st, "25 AB-101", 40000)
	sug := pendingSuggestion(t, st, &model.Suggestion{
		SuggestionType: model.TypeFeeChange,
		ProjectCode:    "25 AB-101",
		SuggestedData:  model.SuggestedData{Amounts: []string{"$45,000"}},
	})

	outcome, err := svc.Approve(ctx, sug.ID, "ana", false)
	require.NoError(t, err)
	assert.False(t, outcome.Applied)

	got, err := st.GetSuggestion(ctx, sug.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SuggestionApproved, got.Status)

	// Approved-unapplied is retryable.
	outcome, err = svc.Approve(ctx, sug.ID, "ana", true)
	require.NoError(t, err)
	assert.True(t, outcome.Applied)
}

func TestApplyFailureLeavesApprovedUnapplied(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	sug := pendingSuggestion(t, st, &model.Suggestion{
		SuggestionType: model.TypeFeeChange,
		ProjectCode:    "99 ZZ-000",
		SuggestedData:  model.SuggestedData{Amounts: []string{"$45,000"}},
	})

	_, err := svc.Approve(ctx, sug.ID, "ana", true)
	require.Error(t, err)

	got, err := st.GetSuggestion(ctx, sug.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SuggestionApproved, got.Status)
	assert.Nil(t, got.RollbackData)
}

func TestDuplicateEmailLinkBlocked(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	require.NoError(t, st.CreateLink(ctx, model.TableEmailLinks, &model.ProjectLink{
		EmailID:     "em-9",
		ProjectCode: "25 AB-101",
		Confidence:  0.9,
		Reviewed:    true,
	}))
	sug := pendingSuggestion(t, st, &model.Suggestion{
		SuggestionType: model.TypeEmailLink,
		Confidence:     0.85,
		ProjectCode:    "25 AB-101",
		SuggestedData:  model.SuggestedData{EmailID: "em-9"},
	})

	_, err := svc.Approve(ctx, sug.ID, "ana", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestEmailLinkApplyAndRollback(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	sug := pendingSuggestion(t, st, &model.Suggestion{
		SuggestionType: model.TypeEmailLink,
		Confidence:     0.85,
		ProjectCode:    "25 AB-101",
		SuggestedData:  model.SuggestedData{EmailID: "em-10"},
	})

	outcome, err := svc.Approve(ctx, sug.ID, "ana", true)
	require.NoError(t, err)
	assert.True(t, outcome.Applied)

	exists, err := st.LinkExists(ctx, model.TableEmailLinks, "em-10", "25 AB-101", "")
	require.NoError(t, err)
	assert.True(t, exists)

	ok, err := svc.Rollback(ctx, sug.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	exists, err = st.LinkExists(ctx, model.TableEmailLinks, "em-10", "25 AB-101", "")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestNewContactApplyAndRollback(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	sug := pendingSuggestion(t, st, &model.Suggestion{
		SuggestionType: model.TypeNewContact,
		SuggestedData: model.SuggestedData{
			Name:    "Dana Reyes",
			Email:   "dana@harborlane.com",
			Company: "Harbor Lane",
		},
	})

	outcome, err := svc.Approve(ctx, sug.ID, "ana", true)
	require.NoError(t, err)
	assert.True(t, outcome.Applied)

	c, err := st.GetContactByEmail(ctx, "dana@harborlane.com")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "Dana Reyes", c.Name)

	ok, err := svc.Rollback(ctx, sug.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	c, err = st.GetContactByEmail(ctx, "dana@harborlane.com")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestUpdateContactRollbackRestoresFields(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	require.NoError(t, st.CreateContact(ctx, &model.Contact{
		Name:  "Dana Reyes",
		Email: "dana@harborlane.com",
		Phone: "555-0100",
	}))
	sug := pendingSuggestion(t, st, &model.Suggestion{
		SuggestionType: model.TypeUpdateContact,
		SuggestedData: model.SuggestedData{
			ContactName: "Dana Reyes",
			Updates:     map[string]string{"phone": "555-0199", "role": "Principal"},
		},
	})

	_, err := svc.Approve(ctx, sug.ID, "ana", true)
	require.NoError(t, err)

	c, err := st.GetContactByEmail(ctx, "dana@harborlane.com")
	require.NoError(t, err)
	assert.Equal(t, "555-0199", c.Phone)
	assert.Equal(t, "Principal", c.Role)

	ok, err := svc.Rollback(ctx, sug.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	c, err = st.GetContactByEmail(ctx, "dana@harborlane.com")
	require.NoError(t, err)
	assert.Equal(t, "555-0100", c.Phone)
	assert.Equal(t, "", c.Role)
}

func TestStatusChangeSentAndRollback(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	p := seedProposal(t, st, "25 AB-101", 40000)
	sug := pendingSuggestion(t, st, &model.Suggestion{
		SuggestionType: model.TypeStatusChange,
		ProposalID:     p.ID,
		SuggestedData:  model.SuggestedData{NewStatus: "sent"},
	})

	_, err := svc.Approve(ctx, sug.ID, "ana", true)
	require.NoError(t, err)

	got, err := st.GetProposalByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sent", got.Status)
	assert.Equal(t, 1, got.SendCount)
	require.NotNil(t, got.SentDate)

	// One ledger row per mutated field.
	changes, err := st.ListChanges(ctx, sug.ID)
	require.NoError(t, err)
	fields := make([]string, len(changes))
	for i, c := range changes {
		fields[i] = c.FieldName
	}
	assert.ElementsMatch(t, []string{"status", "sent_date", "send_count"}, fields)

	ok, err := svc.Rollback(ctx, sug.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = st.GetProposalByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Draft", got.Status)
	assert.Equal(t, 0, got.SendCount)
	assert.Nil(t, got.SentDate)
}

func TestStatusChangeRejectsUnknownStatus(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	p := seedProposal(t, st, "25 AB-101", 40000)
	sug := pendingSuggestion(t, st, &model.Suggestion{
		SuggestionType: model.TypeStatusChange,
		ProposalID:     p.ID,
		SuggestedData:  model.SuggestedData{NewStatus: "shipped"},
	})

	_, err := svc.Approve(ctx, sug.ID, "ana", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid status")
}

func TestLinkReviewApproveRewardsPattern(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	pattern := &model.LearnedPattern{
		Name:       "sender:dana@harborlane.com",
		Type:       model.PatternSender,
		Condition:  model.PatternCondition{Sender: "dana@harborlane.com"},
		Action:     model.PatternAction{Kind: model.PatternMap, ProjectCode: "25 AB-101"},
		Confidence: 0.85,
		Active:     true,
	}
	require.NoError(t, st.CreatePattern(ctx, pattern))

	link := &model.ProjectLink{EmailID: "em-20", ProjectCode: "25 AB-101", Confidence: 0.85, PatternID: pattern.ID}
	require.NoError(t, st.CreateLink(ctx, model.TableEmailLinks, link))

	sug := pendingSuggestion(t, st, &model.Suggestion{
		SuggestionType: model.TypeLinkReview,
		SuggestedData:  model.SuggestedData{LinkID: link.ID, LinkTable: model.TableEmailLinks},
	})

	_, err := svc.Approve(ctx, sug.ID, "ana", true)
	require.NoError(t, err)

	got, err := st.GetLink(ctx, model.TableEmailLinks, link.ID)
	require.NoError(t, err)
	assert.True(t, got.Reviewed)

	p, err := st.GetPattern(ctx, pattern.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.87, p.Confidence, 0.001)

	ok, err := svc.Rollback(ctx, sug.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = st.GetLink(ctx, model.TableEmailLinks, link.ID)
	require.NoError(t, err)
	assert.False(t, got.Reviewed)
}

func TestLinkReviewRejectDeletesLinkAndPenalizes(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	pattern := &model.LearnedPattern{
		Name:       "domain:harborlane.com",
		Type:       model.PatternDomain,
		Condition:  model.PatternCondition{Domain: "harborlane.com"},
		Action:     model.PatternAction{Kind: model.PatternMap, ProjectCode: "25 AB-101"},
		Confidence: 0.7,
		Active:     true,
	}
	require.NoError(t, st.CreatePattern(ctx, pattern))

	link := &model.ProjectLink{EmailID: "em-21", ProjectCode: "25 AB-101", Confidence: 0.7, PatternID: pattern.ID}
	require.NoError(t, st.CreateLink(ctx, model.TableEmailLinks, link))

	sug := pendingSuggestion(t, st, &model.Suggestion{
		SuggestionType: model.TypeLinkReview,
		SuggestedData:  model.SuggestedData{LinkID: link.ID, LinkTable: model.TableEmailLinks},
	})

	outcome, err := svc.Reject(ctx, sug.ID, "ana", "wrong project")
	require.NoError(t, err)
	assert.True(t, outcome.Success)

	_, err = st.GetLink(ctx, model.TableEmailLinks, link.ID)
	assert.True(t, store.IsNotFound(err))

	p, err := st.GetPattern(ctx, pattern.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, p.Confidence, 0.001)

	got, err := st.GetSuggestion(ctx, sug.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SuggestionRejected, got.Status)
}

func TestModifyAppliesCorrectedData(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	seedProposal(t, st, "25 AB-101", 40000)
	sug := pendingSuggestion(t, st, &model.Suggestion{
		SuggestionType: model.TypeFeeChange,
		ProjectCode:    "25 AB-101",
		SuggestedData:  model.SuggestedData{Amounts: []string{"$50,000"}},
	})

	corrected := model.SuggestedData{Amounts: []string{"$45,000"}}
	outcome, err := svc.Modify(ctx, sug.ID, "ana", corrected, true)
	require.NoError(t, err)
	assert.True(t, outcome.Applied)

	p, err := st.GetProposalByCode(ctx, "25 AB-101")
	require.NoError(t, err)
	assert.InDelta(t, 45000, p.Value, 0.001)

	got, err := st.GetSuggestion(ctx, sug.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SuggestionApplied, got.Status)
	require.NotNil(t, got.CorrectionData)
	assert.Equal(t, []string{"$45,000"}, got.CorrectionData.Amounts)

	feedback, err := st.ListUnincorporatedFeedback(ctx)
	require.NoError(t, err)
	require.Len(t, feedback, 1)
	assert.Equal(t, "modified", feedback[0].Outcome)
	assert.Equal(t, sug.ID, feedback[0].SuggestionID)
}

func TestModifyApplyFailureRetriesViaApprove(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	sug := pendingSuggestion(t, st, &model.Suggestion{
		SuggestionType: model.TypeFeeChange,
		ProjectCode:    "25 AB-101",
		SuggestedData:  model.SuggestedData{Amounts: []string{"$50,000"}},
	})

	// No proposal exists yet, so the corrected apply fails but the
	// correction is recorded.
	corrected := model.SuggestedData{Amounts: []string{"$45,000"}}
	_, err := svc.Modify(ctx, sug.ID, "ana", corrected, true)
	require.Error(t, err)

	got, err := st.GetSuggestion(ctx, sug.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SuggestionModified, got.Status)
	require.NotNil(t, got.CorrectionData)

	// Once the proposal lands, a retried approve applies the correction.
	seedProposal(t, st, "25 AB-101", 40000)
	outcome, err := svc.Approve(ctx, sug.ID, "ana", true)
	require.NoError(t, err)
	assert.True(t, outcome.Applied)

	p, err := st.GetProposalByCode(ctx, "25 AB-101")
	require.NoError(t, err)
	assert.InDelta(t, 45000, p.Value, 0.001)

	got, err = st.GetSuggestion(ctx, sug.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SuggestionApplied, got.Status)
}

func TestRejectRecordsFeedback(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	sug := pendingSuggestion(t, st, &model.Suggestion{
		SuggestionType: model.TypeTask,
		ProjectCode:    "25 AB-101",
		SuggestedData:  model.SuggestedData{ItemTitle: "Chase invoice"},
	})

	outcome, err := svc.Reject(ctx, sug.ID, "ana", "not our job")
	require.NoError(t, err)
	assert.True(t, outcome.Success)

	got, err := st.GetSuggestion(ctx, sug.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SuggestionRejected, got.Status)
	assert.Equal(t, "not our job", got.ReviewNotes)

	// Rejected is terminal.
	_, err = svc.Approve(ctx, sug.ID, "ana", true)
	assert.Error(t, err)

	feedback, err := st.ListUnincorporatedFeedback(ctx)
	require.NoError(t, err)
	require.Len(t, feedback, 1)
	assert.Equal(t, "rejected", feedback[0].Outcome)
	assert.Equal(t, model.TypeTask, feedback[0].SuggestionType)
}

func TestInfoSuggestionNeverApplies(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	sug := pendingSuggestion(t, st, &model.Suggestion{
		SuggestionType: model.TypeInfo,
		Title:          "Client mentioned a site visit",
	})

	outcome, err := svc.Approve(ctx, sug.ID, "ana", true)
	require.NoError(t, err)
	assert.False(t, outcome.Applied)

	got, err := st.GetSuggestion(ctx, sug.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SuggestionApproved, got.Status)
}

func TestRollbackRequiresApplied(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	sug := pendingSuggestion(t, st, &model.Suggestion{
		SuggestionType: model.TypeTask,
		SuggestedData:  model.SuggestedData{ItemTitle: "Chase invoice"},
	})

	_, err := svc.Rollback(ctx, sug.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not applied")
}

func TestListPending(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	pendingSuggestion(t, st, &model.Suggestion{
		SuggestionType: model.TypeTask,
		ProjectCode:    "25 AB-101",
		SuggestedData:  model.SuggestedData{ItemTitle: "One"},
	})
	done := pendingSuggestion(t, st, &model.Suggestion{
		SuggestionType: model.TypeTask,
		ProjectCode:    "25 AB-101",
		SuggestedData:  model.SuggestedData{ItemTitle: "Two"},
	})
	_, err := svc.Reject(ctx, done.ID, "ana", "")
	require.NoError(t, err)

	out, err := svc.ListPending(ctx, model.SuggestionFilter{ProjectCode: "25 AB-101"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "One", out[0].SuggestedData.ItemTitle)
}
