package model

import "time"

// SuggestionStatus represents the review state of a suggestion.
type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionApproved SuggestionStatus = "approved"
	SuggestionApplied  SuggestionStatus = "applied"
	SuggestionRejected SuggestionStatus = "rejected"
	SuggestionModified SuggestionStatus = "modified"
)

// Terminal reports whether no further review transitions are allowed.
// An approved suggestion whose apply failed is deliberately not terminal:
// the apply step may be retried.
func (s SuggestionStatus) Terminal() bool {
	return s == SuggestionApplied || s == SuggestionRejected
}

// Priority orders suggestions in the review queue.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// SourceType identifies where a detection came from.
type SourceType string

const (
	SourceEmail         SourceType = "email"
	SourceTranscript    SourceType = "transcript"
	SourcePattern       SourceType = "pattern"
	SourceSentEmailScan SourceType = "sent_email_scan"
)

// Suggestion type discriminators. Each value has exactly one registered
// handler; there is no fallback path for unregistered types.
const (
	TypeNewContact     = "new_contact"
	TypeFeeChange      = "fee_change"
	TypeStatusChange   = "status_change"
	TypeEmailLink      = "email_link"
	TypeTranscriptLink = "transcript_link"
	TypeTask           = "task"
	TypeCommitment     = "commitment"
	TypeMeeting        = "meeting"
	TypeDeadline       = "deadline"
	TypeUpdateContact  = "update_contact"
	TypeLinkReview     = "link_review"
	TypeInfo           = "info"
)

// Suggestion is a proposed, human-reviewable database change with
// provenance and confidence.
type Suggestion struct {
	ID              string           `json:"id"`
	SuggestionType  string           `json:"suggestion_type"`
	Priority        Priority         `json:"priority"`
	Confidence      float64          `json:"confidence_score"`
	SourceType      SourceType       `json:"source_type"`
	SourceID        string           `json:"source_id,omitempty"`
	SourceReference string           `json:"source_reference,omitempty"`
	Title           string           `json:"title"`
	Description     string           `json:"description,omitempty"`
	SuggestedAction string           `json:"suggested_action,omitempty"`
	SuggestedData   SuggestedData    `json:"suggested_data"`
	TargetTable     string           `json:"target_table,omitempty"`
	ProjectCode     string           `json:"project_code,omitempty"`
	ProposalID      string           `json:"proposal_id,omitempty"`
	Status          SuggestionStatus `json:"status"`
	RollbackData    map[string]any   `json:"rollback_data,omitempty"`
	ReviewedBy      string           `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time       `json:"reviewed_at,omitempty"`
	ReviewNotes     string           `json:"review_notes,omitempty"`
	CorrectionData  *SuggestedData   `json:"correction_data,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// SuggestedData carries the typed payload of a suggestion. Only the
// fields relevant to the suggestion's type are populated; each handler
// validates the subset it needs.
type SuggestedData struct {
	// Contact creation and update.
	Name        string            `json:"name,omitempty"`
	Email       string            `json:"email,omitempty"`
	Phone       string            `json:"phone,omitempty"`
	Company     string            `json:"company,omitempty"`
	Role        string            `json:"role,omitempty"`
	ContactName string            `json:"contact_name,omitempty"`
	Updates     map[string]string `json:"updates,omitempty"`

	// Fee changes. Amounts holds raw candidate strings as detected; the
	// first parseable one wins.
	Amounts []string `json:"amounts,omitempty"`

	// Status transitions.
	NewStatus string `json:"new_status,omitempty"`

	// Email/transcript linking and link review.
	EmailID      string `json:"email_id,omitempty"`
	TranscriptID string `json:"transcript_id,omitempty"`
	LinkID       string `json:"link_id,omitempty"`
	LinkTable    string `json:"link_table,omitempty"`
	PatternID    string `json:"pattern_id,omitempty"`

	// Task, commitment, meeting and deadline creation.
	ItemTitle    string     `json:"item_title,omitempty"`
	Details      string     `json:"details,omitempty"`
	QuotedText   string     `json:"quoted_text,omitempty"`
	DeadlineText string     `json:"deadline_text,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	Assignee     string     `json:"assignee,omitempty"`

	// Anything a generator attaches that no handler consumes directly.
	Extra map[string]any `json:"extra,omitempty"`
}

// SuggestionFilter specifies criteria for listing suggestions.
type SuggestionFilter struct {
	Status      SuggestionStatus `json:"status,omitempty"`
	Type        string           `json:"type,omitempty"`
	ProjectCode string           `json:"project_code,omitempty"`
	Limit       int              `json:"limit,omitempty"`
	Offset      int              `json:"offset,omitempty"`
}
