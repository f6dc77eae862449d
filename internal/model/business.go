package model

import "time"

// Contact is a person in the studio's address book.
type Contact struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Company   string    `json:"company,omitempty"`
	Role      string    `json:"role,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Proposal is a project proposal tracked through the pipeline. The engine
// treats its business meaning as opaque; handlers only touch the fields
// named by their suggestion types.
type Proposal struct {
	ID          string     `json:"id"`
	ProjectCode string     `json:"project_code"`
	ClientName  string     `json:"client_name,omitempty"`
	Title       string     `json:"title,omitempty"`
	Status      string     `json:"status"`
	Value       float64    `json:"value"`
	SentDate    *time.Time `json:"sent_date,omitempty"`
	SendCount   int        `json:"send_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Canonical proposal statuses. Legacy lower-case aliases normalize to
// these display forms before being persisted.
var ProposalStatuses = []string{
	"Draft",
	"In Progress",
	"Sent",
	"Under Review",
	"Accepted",
	"Declined",
	"On Hold",
	"Closed",
}

// WorkItem is a task, commitment or meeting created from a suggestion.
// The three tables share a shape; Table selects the target.
type WorkItem struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	ProjectCode string     `json:"project_code,omitempty"`
	Assignee    string     `json:"assignee,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Work item target tables.
const (
	TableTasks       = "tasks"
	TableCommitments = "commitments"
	TableMeetings    = "meetings"
)

// Email is an ingested message, already parsed by the mail collaborator.
type Email struct {
	ID         string    `json:"id"`
	Sender     string    `json:"sender"`
	Subject    string    `json:"subject,omitempty"`
	Snippet    string    `json:"snippet,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// ProjectLink ties an email or transcript to a project or proposal. One of
// ProjectCode / ProposalID is set, selecting which link table the row
// lives in.
type ProjectLink struct {
	ID          string    `json:"id"`
	EmailID     string    `json:"email_id,omitempty"`
	TranscriptID string   `json:"transcript_id,omitempty"`
	ProjectCode string    `json:"project_code,omitempty"`
	ProposalID  string    `json:"proposal_id,omitempty"`
	Confidence  float64   `json:"confidence"`
	PatternID   string    `json:"pattern_id,omitempty"`
	Reviewed    bool      `json:"reviewed"`
	CreatedAt   time.Time `json:"created_at"`
}

// Link tables.
const (
	TableEmailLinks      = "email_project_links"
	TableTranscriptLinks = "transcript_project_links"
)
