package model

// EntityKind classifies an extracted entity inside a detection.
type EntityKind string

const (
	EntityContact    EntityKind = "contact"
	EntityFee        EntityKind = "fee"
	EntityStatus     EntityKind = "status"
	EntityTask       EntityKind = "task"
	EntityCommitment EntityKind = "commitment"
	EntityMeeting    EntityKind = "meeting"
	EntityDeadline   EntityKind = "deadline"
	EntityLink       EntityKind = "link"
)

// DetectedEntity is one typed extraction from a source text.
type DetectedEntity struct {
	Kind       EntityKind    `json:"kind"`
	Confidence float64       `json:"confidence"`
	Quoted     string        `json:"quoted,omitempty"`
	Data       SuggestedData `json:"data"`
}

// Detection is the input record the engine synthesizes suggestions from.
// Text extraction happens upstream; the engine only consumes the result.
type Detection struct {
	EmailID           string           `json:"email_id,omitempty"`
	TranscriptID      string           `json:"transcript_id,omitempty"`
	Sender            string           `json:"sender,omitempty"`
	Subject           string           `json:"subject,omitempty"`
	Body              string           `json:"body,omitempty"`
	LinkedProjectCode string           `json:"linked_project_code,omitempty"`
	LinkedProposalID  string           `json:"linked_proposal_id,omitempty"`
	Entities          []DetectedEntity `json:"entities"`
}

// SourceType returns the provenance implied by the populated id fields.
func (d Detection) SourceType() SourceType {
	if d.TranscriptID != "" {
		return SourceTranscript
	}
	return SourceEmail
}

// SourceID returns whichever source id is populated.
func (d Detection) SourceID() string {
	if d.TranscriptID != "" {
		return d.TranscriptID
	}
	return d.EmailID
}
