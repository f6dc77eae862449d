package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/atelier-north/studio-ops/internal/model"
	"github.com/atelier-north/studio-ops/internal/store"
)

// workItemHandler creates a task, commitment or meeting row. The deadline
// type is a task whose due date comes from free-text deadline heuristics.
type workItemHandler struct {
	sugType string
	table   string
}

func NewTaskHandler() Handler {
	return workItemHandler{sugType: model.TypeTask, table: model.TableTasks}
}

func NewCommitmentHandler() Handler {
	return workItemHandler{sugType: model.TypeCommitment, table: model.TableCommitments}
}

func NewMeetingHandler() Handler {
	return workItemHandler{sugType: model.TypeMeeting, table: model.TableMeetings}
}

func NewDeadlineHandler() Handler {
	return workItemHandler{sugType: model.TypeDeadline, table: model.TableTasks}
}

func (h workItemHandler) Type() string     { return h.sugType }
func (h workItemHandler) Actionable() bool { return true }

func (h workItemHandler) Validate(_ context.Context, _ store.Tx, _ *model.Suggestion, data model.SuggestedData) []string {
	var errs []string
	if data.ItemTitle == "" {
		errs = append(errs, "item title is required")
	}
	return errs
}

// dueDateFor picks the explicit due date when supplied, otherwise derives
// one from the deadline text, defaulting to a week out.
func dueDateFor(data model.SuggestedData, now time.Time) time.Time {
	if data.DueDate != nil {
		return data.DueDate.UTC()
	}
	if d, ok := parseDeadlineText(data.DeadlineText, now); ok {
		return d
	}
	return now.AddDate(0, 0, 7)
}

// parseDeadlineText understands the deadline phrasings that actually show
// up in correspondence: end of month/week, "tomorrow", weekday names, and
// a few explicit date layouts.
func parseDeadlineText(text string, now time.Time) (time.Time, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return time.Time{}, false
	}

	switch {
	case strings.Contains(s, "end of month") || strings.Contains(s, "month end") || strings.Contains(s, "eom"):
		firstOfNext := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
		return firstOfNext.AddDate(0, 0, -1), true
	case strings.Contains(s, "end of week") || strings.Contains(s, "eow"):
		days := int(time.Friday - now.Weekday())
		if days < 0 {
			days += 7
		}
		return now.AddDate(0, 0, days), true
	case strings.Contains(s, "tomorrow"):
		return now.AddDate(0, 0, 1), true
	case strings.Contains(s, "next week"):
		return now.AddDate(0, 0, 7), true
	}

	for day := time.Sunday; day <= time.Saturday; day++ {
		if strings.Contains(s, strings.ToLower(day.String())) {
			days := int(day-now.Weekday()+6)%7 + 1
			return now.AddDate(0, 0, days), true
		}
	}

	for _, layout := range []string{"2006-01-02", "1/2/2006", "January 2, 2006", "January 2", "Jan 2"} {
		if t, err := time.Parse(layout, titleCaser.String(s)); err == nil {
			if t.Year() == 0 {
				t = t.AddDate(now.Year(), 0, 0)
				if t.Before(now) {
					t = t.AddDate(1, 0, 0)
				}
			}
			return t, true
		}
	}
	return time.Time{}, false
}

func describeItem(data model.SuggestedData) string {
	desc := data.Details
	if data.QuotedText != "" {
		if desc != "" {
			desc += "\n\n"
		}
		desc += "> " + data.QuotedText
	}
	return desc
}

func (h workItemHandler) Preview(_ context.Context, _ store.Tx, sug *model.Suggestion, data model.SuggestedData) (*model.ChangePreview, error) {
	due := dueDateFor(data, time.Now().UTC())
	return &model.ChangePreview{
		TargetTable: h.table,
		Action:      model.ActionInsert,
		Summary:     fmt.Sprintf("Create %s %q due %s", h.sugType, data.ItemTitle, due.Format("2006-01-02")),
		Changes: []model.FieldChange{
			{Field: "title", New: data.ItemTitle},
			{Field: "due_date", New: due.Format("2006-01-02")},
			{Field: "project_code", New: sug.ProjectCode},
		},
	}, nil
}

func (h workItemHandler) Apply(ctx context.Context, tx store.Tx, sug *model.Suggestion, data model.SuggestedData) (*model.SuggestionResult, error) {
	due := dueDateFor(data, time.Now().UTC())
	w := &model.WorkItem{
		Title:       data.ItemTitle,
		Description: describeItem(data),
		ProjectCode: sug.ProjectCode,
		Assignee:    data.Assignee,
		DueDate:     &due,
	}
	if err := tx.CreateWorkItem(ctx, h.table, w); err != nil {
		return nil, err
	}
	if err := recordChange(ctx, tx, sug.ID, h.table, w.ID, "", "", w.Title, model.ActionInsert); err != nil {
		return nil, err
	}
	return &model.SuggestionResult{
		Success: true,
		Message: fmt.Sprintf("created %s %q", h.sugType, w.Title),
		Changes: []model.ChangeRecord{{Table: h.table, RecordID: w.ID, Kind: model.ActionInsert}},
		RollbackData: map[string]any{
			"table":     h.table,
			"record_id": w.ID,
		},
	}, nil
}

func (h workItemHandler) Rollback(ctx context.Context, tx store.Tx, rollback map[string]any) (bool, error) {
	table := rbString(rollback, "table")
	id := rbString(rollback, "record_id")
	if table == "" || id == "" {
		return false, eris.New("rollback data missing table or record_id")
	}
	if err := tx.DeleteWorkItem(ctx, table, id); err != nil {
		return false, err
	}
	return true, nil
}
