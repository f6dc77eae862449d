package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-north/studio-ops/internal/model"
	"github.com/atelier-north/studio-ops/internal/store"
)

func TestParseDeadlineText(t *testing.T) {
	// A Wednesday, so weekday arithmetic is observable.
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"by end of month", "2026-03-31", true},
		{"EOM", "2026-03-31", true},
		{"by end of week", "2026-03-06", true},
		{"tomorrow morning", "2026-03-05", true},
		{"sometime next week", "2026-03-11", true},
		{"by Friday", "2026-03-06", true},
		{"next Wednesday", "2026-03-11", true},
		{"Monday", "2026-03-09", true},
		{"2026-04-15", "2026-04-15", true},
		{"4/1/2026", "2026-04-01", true},
		{"March 20", "2026-03-20", true},
		// A bare date already past this year rolls to next year.
		{"January 5", "2027-01-05", true},
		{"", "", false},
		{"when you get a chance", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := parseDeadlineText(tt.text, now)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got.Format("2006-01-02"))
			}
		})
	}
}

func TestDueDateFor(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	explicit := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	got := dueDateFor(model.SuggestedData{DueDate: &explicit, DeadlineText: "tomorrow"}, now)
	assert.Equal(t, explicit, got, "explicit due date beats deadline text")

	got = dueDateFor(model.SuggestedData{DeadlineText: "tomorrow"}, now)
	assert.Equal(t, "2026-03-05", got.Format("2006-01-02"))

	got = dueDateFor(model.SuggestedData{}, now)
	assert.Equal(t, "2026-03-11", got.Format("2006-01-02"), "no signal defaults a week out")
}

func TestDeadlineSuggestionCreatesTask(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	sug := pendingSuggestion(t, st, &model.Suggestion{
		SuggestionType: model.TypeDeadline,
		ProjectCode:    "25 AB-101",
		SuggestedData: model.SuggestedData{
			ItemTitle:    "Submit planning set",
			DeadlineText: "by Friday",
			QuotedText:   "we need the planning set by Friday",
			Assignee:     "ana",
		},
	})

	outcome, err := svc.Approve(ctx, sug.ID, "ana", true)
	require.NoError(t, err)
	assert.True(t, outcome.Applied)

	got, err := st.GetSuggestion(ctx, sug.ID)
	require.NoError(t, err)
	itemID, _ := got.RollbackData["record_id"].(string)
	require.NotEmpty(t, itemID)
	assert.Equal(t, model.TableTasks, got.RollbackData["table"])

	item, err := st.GetWorkItem(ctx, model.TableTasks, itemID)
	require.NoError(t, err)
	assert.Equal(t, "Submit planning set", item.Title)
	assert.Equal(t, "25 AB-101", item.ProjectCode)
	assert.Equal(t, "ana", item.Assignee)
	assert.Contains(t, item.Description, "> we need the planning set by Friday")
	require.NotNil(t, item.DueDate)

	ok, err := svc.Rollback(ctx, sug.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = st.GetWorkItem(ctx, model.TableTasks, itemID)
	assert.True(t, store.IsNotFound(err))
}

func TestWorkItemValidateRequiresTitle(t *testing.T) {
	h := NewCommitmentHandler()
	errs := h.Validate(context.Background(), nil, &model.Suggestion{}, model.SuggestedData{})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "title")
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"sent", "Sent", true},
		{"in progress", "In Progress", true},
		{"UNDER REVIEW", "Under Review", true},
		{" on hold ", "On Hold", true},
		{"shipped", "Shipped", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeStatus(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.in)
		}
	}
}
