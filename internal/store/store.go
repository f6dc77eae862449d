package store

import (
	"context"
	"time"

	"github.com/atelier-north/studio-ops/internal/model"
)

// Tx is the data surface shared by callers and suggestion handlers. The
// same interface is implemented by a live connection and by an open
// transaction, so a handler's mutation and its audit write can run in one
// transaction scope without the handler knowing which it has.
type Tx interface {
	// Suggestions
	CreateSuggestion(ctx context.Context, s *model.Suggestion) error
	GetSuggestion(ctx context.Context, id string) (*model.Suggestion, error)
	ListSuggestions(ctx context.Context, f model.SuggestionFilter) ([]model.Suggestion, error)
	UpdateSuggestionReview(ctx context.Context, id string, status model.SuggestionStatus, reviewer, notes string) error
	MarkSuggestionApplied(ctx context.Context, id string, rollback map[string]any) error
	ClearSuggestionApplied(ctx context.Context, id string) error
	SetSuggestionCorrection(ctx context.Context, id string, corrected *model.SuggestedData) error

	// Change audit ledger
	RecordChange(ctx context.Context, c *model.ChangeAudit) error
	ListChanges(ctx context.Context, suggestionID string) ([]model.ChangeAudit, error)
	MarkChangesRolledBack(ctx context.Context, suggestionID string) (int, error)

	// Learned patterns
	CreatePattern(ctx context.Context, p *model.LearnedPattern) error
	GetPattern(ctx context.Context, id string) (*model.LearnedPattern, error)
	GetPatternByName(ctx context.Context, name string) (*model.LearnedPattern, error)
	ListPatterns(ctx context.Context, typ model.PatternType, activeOnly bool) ([]model.LearnedPattern, error)
	ReinforcePattern(ctx context.Context, id string, delta, ceil float64) error
	PenalizePattern(ctx context.Context, id string, delta, floor float64) error
	TouchPatternUsed(ctx context.Context, id string) error
	MarkPatternValidated(ctx context.Context, id string) error
	DeactivatePattern(ctx context.Context, id string) error
	DecayPatterns(ctx context.Context, notValidatedFor time.Duration, factor, floor float64) (int, error)

	// Review feedback
	RecordFeedback(ctx context.Context, f *model.Feedback) error
	ListUnincorporatedFeedback(ctx context.Context) ([]model.Feedback, error)
	MarkFeedbackIncorporated(ctx context.Context, ids []string) error
	CountOutcomes(ctx context.Context, suggestionType, projectPrefix string, since time.Time) (approved, rejected int, err error)

	// Suggestion batches
	CreateBatch(ctx context.Context, b *model.SuggestionBatch) error
	GetBatch(ctx context.Context, id string) (*model.SuggestionBatch, error)
	ListBatches(ctx context.Context, status model.BatchStatus, limit int) ([]model.SuggestionBatch, error)
	UpdateBatchReview(ctx context.Context, id string, status model.BatchStatus, reviewer, notes string) error

	// Contacts
	CreateContact(ctx context.Context, c *model.Contact) error
	GetContactByID(ctx context.Context, id string) (*model.Contact, error)
	GetContactByEmail(ctx context.Context, email string) (*model.Contact, error)
	GetContactByName(ctx context.Context, name string, fold bool) (*model.Contact, error)
	SearchContactsByName(ctx context.Context, fragment string) ([]model.Contact, error)
	UpdateContactFields(ctx context.Context, id string, updates map[string]string) error
	DeleteContact(ctx context.Context, id string) error

	// Proposals
	CreateProposal(ctx context.Context, p *model.Proposal) error
	GetProposalByID(ctx context.Context, id string) (*model.Proposal, error)
	GetProposalByCode(ctx context.Context, code string) (*model.Proposal, error)
	SetProposalValue(ctx context.Context, id string, value float64) error
	SetProposalStatus(ctx context.Context, id, status string, sentDate *time.Time, sendCount int) error

	// Tasks, commitments, meetings
	CreateWorkItem(ctx context.Context, table string, w *model.WorkItem) error
	GetWorkItem(ctx context.Context, table, id string) (*model.WorkItem, error)
	DeleteWorkItem(ctx context.Context, table, id string) error

	// Email and transcript project links
	CreateLink(ctx context.Context, table string, l *model.ProjectLink) error
	GetLink(ctx context.Context, table, id string) (*model.ProjectLink, error)
	LinkExists(ctx context.Context, table, sourceID, projectCode, proposalID string) (bool, error)
	DeleteLink(ctx context.Context, table, id string) error
	SetLinkReviewed(ctx context.Context, table, id string, reviewed bool) error

	// Emails and the low-confidence log
	CreateEmail(ctx context.Context, e *model.Email) error
	ListUnlinkedEmails(ctx context.Context, since time.Time, limit int) ([]model.Email, error)
	CreateLowConfidenceLink(ctx context.Context, l *model.LowConfidenceLink) error
}

// Store is the persistence interface for the suggestion engine.
type Store interface {
	Tx

	// InTx runs fn inside one transaction; every Tx call made through the
	// handle it receives shares that transaction. fn returning an error
	// aborts the whole scope.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Migrate(ctx context.Context) error
	Close() error
}
