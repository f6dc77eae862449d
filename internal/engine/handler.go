// Package engine dispatches reviewable suggestions to type-specific
// handlers and orchestrates the approve/reject/modify/rollback lifecycle.
package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/atelier-north/studio-ops/internal/model"
	"github.com/atelier-north/studio-ops/internal/store"
)

// Handler implements validate/preview/apply/rollback for one suggestion
// type. All storage access goes through the transaction-scoped handle so
// a mutation and its audit write commit or abort together.
type Handler interface {
	// Type is the suggestion_type this handler services. Unique per
	// registry; re-registering overwrites.
	Type() string

	// Actionable reports whether Apply mutates anything. Informational
	// handlers return false.
	Actionable() bool

	// Validate checks shape, required fields and referential integrity
	// against the suggestion's target. It never mutates. A non-empty
	// return blocks Apply.
	Validate(ctx context.Context, tx store.Tx, sug *model.Suggestion, data model.SuggestedData) []string

	// Preview computes what Apply would do without doing it.
	Preview(ctx context.Context, tx store.Tx, sug *model.Suggestion, data model.SuggestedData) (*model.ChangePreview, error)

	// Apply executes the mutation and writes the audit entries. Duplicate
	// checks from Validate are re-verified here; Validate results are
	// never trusted across the call boundary.
	Apply(ctx context.Context, tx store.Tx, sug *model.Suggestion, data model.SuggestedData) (*model.SuggestionResult, error)

	// Rollback reverses a prior Apply using its rollback data. Returns
	// false when the data is missing or the reversal cannot be completed.
	Rollback(ctx context.Context, tx store.Tx, rollback map[string]any) (bool, error)
}

// Registry maps suggestion types to handlers. Constructed once at startup
// and passed explicitly; lookups are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns a registry pre-populated with the given handlers.
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[string]Handler, len(handlers))}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

// DefaultRegistry registers every suggestion type the engine services.
// The type set is fixed per build; there is no fallback path for an
// unregistered type.
func DefaultRegistry(learner Learner) *Registry {
	return NewRegistry(
		NewContactHandler{},
		UpdateContactHandler{},
		FeeChangeHandler{},
		StatusChangeHandler{},
		NewEmailLinkHandler(),
		NewTranscriptLinkHandler(),
		NewTaskHandler(),
		NewCommitmentHandler(),
		NewMeetingHandler(),
		NewDeadlineHandler(),
		LinkReviewHandler{Learner: learner},
		InfoHandler{},
	)
}

// Register adds or replaces the handler for its declared type.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Type()] = h
}

// Get returns the handler for a suggestion type.
func (r *Registry) Get(suggestionType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[suggestionType]
	return h, ok
}

// Has reports whether a handler is registered for the type.
func (r *Registry) Has(suggestionType string) bool {
	_, ok := r.Get(suggestionType)
	return ok
}

// Types returns all registered suggestion types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ActionableTypes returns the registered types whose handlers mutate.
func (r *Registry) ActionableTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t, h := range r.handlers {
		if h.Actionable() {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}
