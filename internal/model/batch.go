package model

import "time"

// ConfidenceTier decides how much human review a candidate group needs.
type ConfidenceTier string

const (
	TierAutoApprove ConfidenceTier = "auto_approve"
	TierBatchReview ConfidenceTier = "batch_review"
	TierIndividual  ConfidenceTier = "individual"
	TierLogOnly     ConfidenceTier = "log_only"
)

// TierFor maps a match confidence to its review tier. Boundary values
// belong to the higher tier.
func TierFor(confidence float64) ConfidenceTier {
	switch {
	case confidence >= 0.90:
		return TierAutoApprove
	case confidence >= 0.70:
		return TierBatchReview
	case confidence >= 0.50:
		return TierIndividual
	default:
		return TierLogOnly
	}
}

// BatchStatus is the review state of a suggestion batch.
type BatchStatus string

const (
	BatchPending  BatchStatus = "pending"
	BatchApproved BatchStatus = "approved"
	BatchRejected BatchStatus = "rejected"
)

// SuggestionBatch groups email-link candidates sharing a grouping key
// (e.g. "sender:client@example.com") into one reviewable decision.
type SuggestionBatch struct {
	ID          string         `json:"id"`
	GroupKey    string         `json:"group_key"`
	Tier        ConfidenceTier `json:"tier"`
	Confidence  float64        `json:"confidence"`
	Signals     []string       `json:"signals,omitempty"`
	ProjectCode string         `json:"project_code,omitempty"`
	ProposalID  string         `json:"proposal_id,omitempty"`
	Status      BatchStatus    `json:"status"`
	ReviewedBy  string         `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time     `json:"reviewed_at,omitempty"`
	ReviewNotes string         `json:"review_notes,omitempty"`
	Members     []BatchMember  `json:"members,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// BatchMember is one candidate email inside a batch.
type BatchMember struct {
	ID      string      `json:"id"`
	BatchID string      `json:"batch_id"`
	EmailID string      `json:"email_id"`
	Subject string      `json:"subject,omitempty"`
	Status  BatchStatus `json:"status"`
}

// LowConfidenceLink records a candidate that scored below every review
// tier. Kept out of the suggestion table to avoid noise while preserving
// the signal for later analysis.
type LowConfidenceLink struct {
	ID          string    `json:"id"`
	EmailID     string    `json:"email_id"`
	Sender      string    `json:"sender"`
	ProjectCode string    `json:"project_code,omitempty"`
	Confidence  float64   `json:"confidence"`
	Signals     []string  `json:"signals,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// BatchSweepResult summarizes one grouping sweep.
type BatchSweepResult struct {
	EmailsProcessed     int `json:"emails_processed"`
	BatchesCreated      int `json:"batches_created"`
	AutoApproved        int `json:"auto_approved"`
	BatchReview         int `json:"batch_review"`
	Individual          int `json:"individual"`
	LowConfidenceLogged int `json:"low_confidence_logged"`
	SkippedInternal     int `json:"skipped_internal"`
}
