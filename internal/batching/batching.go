// Package batching converts many independent email→project candidate
// matches into a small number of reviewable decisions, grouped by sender
// and classified into confidence tiers.
package batching

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atelier-north/studio-ops/internal/learning"
	"github.com/atelier-north/studio-ops/internal/model"
	"github.com/atelier-north/studio-ops/internal/store"
)

// Subject-line signal carries a fixed confidence: an explicit project
// code in a subject is the strongest evidence there is.
const subjectCodeConfidence = 0.95

// Config tunes a sweep.
type Config struct {
	// InternalDomains are sender domains never batched (the studio's own).
	InternalDomains []string
	// Concurrency bounds how many sender groups are classified at once.
	Concurrency int
}

// Engine is the batch grouping engine.
type Engine struct {
	store   store.Store
	learner *learning.Engine
	cfg     Config
}

func NewEngine(st store.Store, learner *learning.Engine, cfg Config) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Engine{store: st, learner: learner, cfg: cfg}
}

// projectCodeRe matches project code tokens in subject lines; matches are
// normalized to the canonical "NN XX-NNN" shape.
var projectCodeRe = regexp.MustCompile(`\b(\d{2})\s*([A-Za-z]{2})[-\s]?(\d{3})\b`)

// SubjectProjectCode extracts and canonicalizes the first project code
// token in a subject line.
func SubjectProjectCode(subject string) (string, bool) {
	m := projectCodeRe.FindStringSubmatch(subject)
	if m == nil {
		return "", false
	}
	return fmt.Sprintf("%s %s-%s", m[1], strings.ToUpper(m[2]), m[3]), true
}

func senderDomain(sender string) string {
	if i := strings.LastIndex(sender, "@"); i >= 0 {
		return strings.ToLower(sender[i+1:])
	}
	return ""
}

// groupMatch is the best project match computed for one sender group.
type groupMatch struct {
	projectCode string
	proposalID  string
	confidence  float64
	patternID   string
	signals     []string
}

// patternIndex holds the sweep's read-only view of the link patterns.
type patternIndex struct {
	bySender map[string]*model.LearnedPattern
	byDomain map[string]*model.LearnedPattern
	skip     map[string]bool
}

func (e *Engine) loadPatterns(ctx context.Context) (*patternIndex, error) {
	idx := &patternIndex{
		bySender: map[string]*model.LearnedPattern{},
		byDomain: map[string]*model.LearnedPattern{},
		skip:     map[string]bool{},
	}
	senders, err := e.store.ListPatterns(ctx, model.PatternSender, true)
	if err != nil {
		return nil, eris.Wrap(err, "batching: list sender patterns")
	}
	for i := range senders {
		p := &senders[i]
		idx.bySender[strings.ToLower(p.Condition.Sender)] = p
	}
	domains, err := e.store.ListPatterns(ctx, model.PatternDomain, true)
	if err != nil {
		return nil, eris.Wrap(err, "batching: list domain patterns")
	}
	for i := range domains {
		p := &domains[i]
		domain := strings.ToLower(p.Condition.Domain)
		if p.Action.Kind == model.PatternSkip {
			idx.skip[domain] = true
			continue
		}
		idx.byDomain[domain] = p
	}
	return idx, nil
}

// classify computes the best match for a sender group from the three
// signal sources. The highest-confidence signal wins; every contributing
// signal is named for review transparency.
func (idx *patternIndex) classify(sender string, emails []model.Email) groupMatch {
	var best groupMatch

	if p, ok := idx.bySender[strings.ToLower(sender)]; ok {
		best = groupMatch{
			projectCode: p.Action.ProjectCode,
			proposalID:  p.Action.ProposalID,
			confidence:  p.Confidence,
			patternID:   p.ID,
			signals:     []string{"sender pattern"},
		}
	}

	for _, em := range emails {
		if code, ok := SubjectProjectCode(em.Subject); ok {
			if subjectCodeConfidence > best.confidence {
				best = groupMatch{
					projectCode: code,
					confidence:  subjectCodeConfidence,
					signals:     append(best.signals, "subject project code"),
				}
			} else {
				best.signals = append(best.signals, "subject project code")
			}
			break
		}
	}

	if p, ok := idx.byDomain[senderDomain(sender)]; ok {
		if p.Confidence > best.confidence {
			best = groupMatch{
				projectCode: p.Action.ProjectCode,
				proposalID:  p.Action.ProposalID,
				confidence:  p.Confidence,
				patternID:   p.ID,
				signals:     append(best.signals, "domain pattern"),
			}
		} else {
			best.signals = append(best.signals, "domain pattern")
		}
	}

	return best
}

func (e *Engine) isInternal(sender string) bool {
	domain := senderDomain(sender)
	for _, d := range e.cfg.InternalDomains {
		if strings.EqualFold(d, domain) {
			return true
		}
	}
	return false
}

// ProcessBatches sweeps candidate emails from the last `hours` hours,
// groups them by sender, classifies each group into a tier, and creates
// batches, links, or low-confidence log rows accordingly. Safe to re-run:
// already linked, logged, or batched emails are excluded up front.
func (e *Engine) ProcessBatches(ctx context.Context, hours, limit int) (*model.BatchSweepResult, error) {
	if hours <= 0 {
		hours = 24
	}
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	emails, err := e.store.ListUnlinkedEmails(ctx, since, limit)
	if err != nil {
		return nil, eris.Wrap(err, "batching: list candidate emails")
	}

	result := &model.BatchSweepResult{}
	if len(emails) == 0 {
		return result, nil
	}

	idx, err := e.loadPatterns(ctx)
	if err != nil {
		return nil, err
	}

	groups := map[string][]model.Email{}
	for _, em := range emails {
		if e.isInternal(em.Sender) {
			result.SkippedInternal++
			continue
		}
		if idx.skip[senderDomain(em.Sender)] {
			result.SkippedInternal++
			continue
		}
		groups[em.Sender] = append(groups[em.Sender], em)
		result.EmailsProcessed++
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for sender, members := range groups {
		g.Go(func() error {
			match := idx.classify(sender, members)
			tier := model.TierLogOnly
			if len(match.signals) > 0 {
				tier = model.TierFor(match.confidence)
			}
			if err := e.handleGroup(gctx, sender, members, match, tier, result, &mu); err != nil {
				return eris.Wrapf(err, "batching: group %s", sender)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	zap.L().Info("batching: sweep complete",
		zap.Int("emails", result.EmailsProcessed),
		zap.Int("batches", result.BatchesCreated),
		zap.Int("auto_approved", result.AutoApproved),
		zap.Int("log_only", result.LowConfidenceLogged))
	return result, nil
}

func (e *Engine) handleGroup(ctx context.Context, sender string, members []model.Email, match groupMatch, tier model.ConfidenceTier, result *model.BatchSweepResult, mu *sync.Mutex) error {
	if tier == model.TierLogOnly {
		for _, em := range members {
			err := e.store.CreateLowConfidenceLink(ctx, &model.LowConfidenceLink{
				EmailID:     em.ID,
				Sender:      sender,
				ProjectCode: match.projectCode,
				Confidence:  match.confidence,
				Signals:     match.signals,
			})
			if err != nil {
				return err
			}
		}
		mu.Lock()
		result.LowConfidenceLogged += len(members)
		mu.Unlock()
		return nil
	}

	batch := &model.SuggestionBatch{
		GroupKey:    "sender:" + sender,
		Tier:        tier,
		Confidence:  match.confidence,
		Signals:     match.signals,
		ProjectCode: match.projectCode,
		ProposalID:  match.proposalID,
	}
	for _, em := range members {
		batch.Members = append(batch.Members, model.BatchMember{
			EmailID: em.ID,
			Subject: em.Subject,
		})
	}

	if tier == model.TierAutoApprove {
		batch.Status = model.BatchApproved
		err := e.store.InTx(ctx, func(tx store.Tx) error {
			if err := tx.CreateBatch(ctx, batch); err != nil {
				return err
			}
			_, err := e.fanOutLinks(ctx, tx, batch, match.patternID, false)
			return err
		})
		if err != nil {
			return err
		}
		mu.Lock()
		result.BatchesCreated++
		result.AutoApproved++
		mu.Unlock()
		return nil
	}

	if err := e.store.CreateBatch(ctx, batch); err != nil {
		return err
	}
	mu.Lock()
	result.BatchesCreated++
	switch tier {
	case model.TierBatchReview:
		result.BatchReview++
	case model.TierIndividual:
		result.Individual++
	}
	mu.Unlock()
	return nil
}

// fanOutLinks creates one email link per batch member, skipping members
// already linked. Reviewed marks human-approved links; auto-approved ones
// stay unreviewed so the link-review flow can confirm them later.
func (e *Engine) fanOutLinks(ctx context.Context, tx store.Tx, batch *model.SuggestionBatch, patternID string, reviewed bool) (int, error) {
	created := 0
	for _, m := range batch.Members {
		exists, err := tx.LinkExists(ctx, model.TableEmailLinks, m.EmailID, batch.ProjectCode, batch.ProposalID)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}
		err = tx.CreateLink(ctx, model.TableEmailLinks, &model.ProjectLink{
			EmailID:     m.EmailID,
			ProjectCode: batch.ProjectCode,
			ProposalID:  batch.ProposalID,
			Confidence:  batch.Confidence,
			PatternID:   patternID,
			Reviewed:    reviewed,
		})
		if err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// BatchDecision reports the effect of a batch review.
type BatchDecision struct {
	Success      bool `json:"success"`
	LinksCreated int  `json:"links_created"`
}

// ApproveBatch fans a pending batch out into per-member links (skipping
// duplicates), marks batch and members approved, and feeds the sender and
// domain mappings back into the pattern store.
func (e *Engine) ApproveBatch(ctx context.Context, batchID, reviewer string) (*BatchDecision, error) {
	batch, err := e.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != model.BatchPending {
		return nil, eris.Errorf("batching: batch %s is %s, not pending", batchID, batch.Status)
	}
	sender := strings.TrimPrefix(batch.GroupKey, "sender:")

	decision := &BatchDecision{}
	err = e.store.InTx(ctx, func(tx store.Tx) error {
		n, err := e.fanOutLinks(ctx, tx, batch, "", true)
		if err != nil {
			return err
		}
		decision.LinksCreated = n
		if err := tx.UpdateBatchReview(ctx, batchID, model.BatchApproved, reviewer, ""); err != nil {
			return err
		}
		if err := e.learner.ReinforceSenderPattern(ctx, tx, sender, batch.ProjectCode, batch.ProposalID); err != nil {
			return err
		}
		return e.learner.ReinforceDomainPattern(ctx, tx, senderDomain(sender), batch.ProjectCode, batch.ProposalID)
	})
	if err != nil {
		return nil, err
	}
	decision.Success = true
	return decision, nil
}

// RejectBatch marks the batch and its members rejected. No links are
// created and no pattern is rewarded.
func (e *Engine) RejectBatch(ctx context.Context, batchID, reviewer, reason string) (*BatchDecision, error) {
	batch, err := e.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != model.BatchPending {
		return nil, eris.Errorf("batching: batch %s is %s, not pending", batchID, batch.Status)
	}
	if err := e.store.UpdateBatchReview(ctx, batchID, model.BatchRejected, reviewer, reason); err != nil {
		return nil, err
	}
	return &BatchDecision{Success: true}, nil
}
