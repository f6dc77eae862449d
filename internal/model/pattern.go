package model

import "time"

// PatternType classifies what a learned pattern is for.
type PatternType string

const (
	// PatternBusinessRule suppresses future suggestions matching its condition.
	PatternBusinessRule PatternType = "business_rule"
	// PatternEntity carries advisory adjustments for suggestion generators.
	PatternEntity PatternType = "entity_pattern"
	// PatternSender maps a sender address to a project or proposal.
	PatternSender PatternType = "sender"
	// PatternDomain maps a sender domain to a project or proposal.
	PatternDomain PatternType = "domain"
	// PatternCategoryMap remaps a repeatedly mis-assigned category.
	PatternCategoryMap PatternType = "category_map"
	// PatternLinkMap remaps a repeatedly corrected link target.
	PatternLinkMap PatternType = "link_map"
)

// PatternActionKind is the structured effect a pattern has when it matches.
type PatternActionKind string

const (
	PatternSuppress PatternActionKind = "suppress"
	PatternAdjust   PatternActionKind = "adjust"
	PatternMap      PatternActionKind = "map"
	PatternSkip     PatternActionKind = "skip"
)

// PatternCondition is the structured predicate a pattern matches against.
type PatternCondition struct {
	SuggestionType string `json:"suggestion_type,omitempty"`
	ProjectPrefix  string `json:"project_prefix,omitempty"`
	Sender         string `json:"sender,omitempty"`
	Domain         string `json:"domain,omitempty"`
	Category       string `json:"category,omitempty"`
}

// PatternAction is the structured effect applied when the condition matches.
type PatternAction struct {
	Kind        PatternActionKind `json:"kind"`
	ProjectCode string            `json:"project_code,omitempty"`
	ProposalID  string            `json:"proposal_id,omitempty"`
	Category    string            `json:"category,omitempty"`
	Lessons     []string          `json:"lessons,omitempty"`
}

// LearnedPattern is a mined condition→action rule with confidence and
// evidence counters. Created and updated only by the learning engine.
type LearnedPattern struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Type            PatternType      `json:"type"`
	Condition       PatternCondition `json:"condition"`
	Action          PatternAction    `json:"action"`
	Confidence      float64          `json:"confidence"`
	EvidenceCount   int              `json:"evidence_count"`
	TimesRejected   int              `json:"times_rejected"`
	Active          bool             `json:"active"`
	LastValidatedAt *time.Time       `json:"last_validated_at,omitempty"`
	LastUsedAt      *time.Time       `json:"last_used_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// FeedbackKind distinguishes the three correction event families.
type FeedbackKind string

const (
	FeedbackSuggestion FeedbackKind = "suggestion_correction"
	FeedbackCategory   FeedbackKind = "category_correction"
	FeedbackLink       FeedbackKind = "link_correction"
)

// Feedback is one raw human review event recorded for later mining.
type Feedback struct {
	ID             string       `json:"id"`
	Kind           FeedbackKind `json:"kind"`
	SuggestionID   string       `json:"suggestion_id,omitempty"`
	SuggestionType string       `json:"suggestion_type,omitempty"`
	ProjectCode    string       `json:"project_code,omitempty"`
	OriginalValue  string       `json:"original_value,omitempty"`
	CorrectedValue string       `json:"corrected_value,omitempty"`
	Lesson         string       `json:"lesson,omitempty"`
	Outcome        string       `json:"outcome"` // approved, rejected, modified
	Actor          string       `json:"actor,omitempty"`
	Incorporated   bool         `json:"incorporated"`
	CreatedAt      time.Time    `json:"created_at"`
}
